package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"pdflearn/internal/identity"
	"pdflearn/internal/model"
)

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) SignIn(ctx context.Context, email, password string) (*identity.Token, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Token), args.Error(1)
}

func (m *MockProvider) SignUp(ctx context.Context, email, password string) (*model.User, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockProvider) SendPasswordResetEmail(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

func (m *MockProvider) VerifyResetCode(ctx context.Context, code string) (string, error) {
	args := m.Called(ctx, code)
	return args.String(0), args.Error(1)
}

func (m *MockProvider) ConfirmPasswordReset(ctx context.Context, code, newPassword string) error {
	return m.Called(ctx, code, newPassword).Error(0)
}

func (m *MockProvider) Reauthenticate(ctx context.Context, userID, password string) error {
	return m.Called(ctx, userID, password).Error(0)
}

func (m *MockProvider) UpdatePassword(ctx context.Context, userID, newPassword string) error {
	return m.Called(ctx, userID, newPassword).Error(0)
}

func (m *MockProvider) SignOut(ctx context.Context, token string) error {
	return m.Called(ctx, token).Error(0)
}

func (m *MockProvider) Verify(ctx context.Context, token string) (*identity.Claims, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Claims), args.Error(1)
}

func (m *MockProvider) Subscribe(fn func(identity.Event)) func() {
	args := m.Called(fn)
	if f, ok := args.Get(0).(func()); ok {
		return f
	}
	return func() {}
}
