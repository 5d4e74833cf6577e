package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"pdflearn/internal/analysis"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Submit(ctx context.Context, token string, job analysis.Job) error {
	if job.Body != nil {
		_, _ = io.Copy(io.Discard, job.Body)
	}
	job.Body = nil
	return m.Called(ctx, token, job).Error(0)
}

func (m *MockService) Status(ctx context.Context, token, correlationID string) (*analysis.StatusReport, error) {
	args := m.Called(ctx, token, correlationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*analysis.StatusReport), args.Error(1)
}

func (m *MockService) Halt(ctx context.Context, token, correlationID string) error {
	return m.Called(ctx, token, correlationID).Error(0)
}

func (m *MockService) DeletePDF(ctx context.Context, token, correlationID, filename string) error {
	return m.Called(ctx, token, correlationID, filename).Error(0)
}
