package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"pdflearn/internal/identity"
	"pdflearn/internal/model"
	"pdflearn/internal/service"
)

type MockAccountService struct {
	mock.Mock
}

func (m *MockAccountService) SignIn(ctx context.Context, req service.SignInRequest) (*identity.Token, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.Token), args.Error(1)
}

func (m *MockAccountService) SignUp(ctx context.Context, req service.SignUpRequest) (*model.User, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockAccountService) ForgotPassword(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

func (m *MockAccountService) VerifyReset(ctx context.Context, code string) (string, error) {
	args := m.Called(ctx, code)
	return args.String(0), args.Error(1)
}

func (m *MockAccountService) ResetPassword(ctx context.Context, req service.ResetPasswordRequest) error {
	return m.Called(ctx, req).Error(0)
}

func (m *MockAccountService) ChangePassword(ctx context.Context, userID string, req service.ChangePasswordRequest) error {
	return m.Called(ctx, userID, req).Error(0)
}

func (m *MockAccountService) SignOut(ctx context.Context, userID, token string) error {
	return m.Called(ctx, userID, token).Error(0)
}
