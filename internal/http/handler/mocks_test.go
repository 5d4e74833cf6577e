package handler

import (
	"context"
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/mock"

	"pdflearn/internal/http/middleware"
	"pdflearn/internal/model"
	"pdflearn/internal/service"
	"pdflearn/internal/workflow"
)

type MockUploads struct {
	mock.Mock
}

func (m *MockUploads) upload(args mock.Arguments) (*model.Upload, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Upload), args.Error(1)
}

func (m *MockUploads) Intake(ctx context.Context, caller workflow.Caller, f workflow.File, confirmToken string) (*model.Upload, error) {
	return m.upload(m.Called(ctx, caller, f, confirmToken))
}

func (m *MockUploads) Submit(ctx context.Context, caller workflow.Caller) (*model.Upload, error) {
	return m.upload(m.Called(ctx, caller))
}

func (m *MockUploads) Status(ctx context.Context, caller workflow.Caller) (*model.Upload, error) {
	return m.upload(m.Called(ctx, caller))
}

func (m *MockUploads) Halt(ctx context.Context, caller workflow.Caller) (*model.Upload, error) {
	return m.upload(m.Called(ctx, caller))
}

func (m *MockUploads) Remove(ctx context.Context, caller workflow.Caller, confirmToken string) (*model.Upload, error) {
	return m.upload(m.Called(ctx, caller, confirmToken))
}

func (m *MockUploads) Save(ctx context.Context, caller workflow.Caller, in workflow.SaveInput) (*service.SaveResult, error) {
	args := m.Called(ctx, caller, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.SaveResult), args.Error(1)
}

type MockPreferences struct {
	mock.Mock
}

func (m *MockPreferences) Get(ctx context.Context, owner, key string) (json.RawMessage, error) {
	args := m.Called(ctx, owner, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

func (m *MockPreferences) All(ctx context.Context, owner string) (map[string]json.RawMessage, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]json.RawMessage), args.Error(1)
}

func (m *MockPreferences) Set(ctx context.Context, owner, key string, value json.RawMessage) error {
	return m.Called(ctx, owner, key, value).Error(0)
}

func (m *MockPreferences) Delete(ctx context.Context, owner, key string) error {
	return m.Called(ctx, owner, key).Error(0)
}

const (
	testToken   = "token-1"
	testUserID  = "user-1"
	testSession = "sess-1"
)

var testCaller = workflow.Caller{SessionID: testSession, UserID: testUserID, Token: testToken}

type stubResolver struct {
	err error
}

func (s stubResolver) Resolve(_ context.Context, token string) (model.Session, error) {
	if s.err != nil {
		return model.Session{}, s.err
	}
	if token != testToken {
		return model.Session{}, nil
	}
	name := "Ada"
	return model.Session{
		ID:            testSession,
		User:          &model.User{ID: testUserID, Email: "ada@example.com"},
		UserName:      &name,
		Authenticated: true,
	}, nil
}

// newApp returns an app whose requests carry a resolved session when they send testToken.
func newApp() *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	app.Use(middleware.RequestID())
	app.Use(middleware.Session(stubResolver{}, nil))
	return app
}
