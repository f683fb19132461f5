package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"honest-grader/internal/grading"
)

// MockStore is a mock implementation of Store using testify/mock.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateGrading(ctx context.Context, req grading.Request) (Grading, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(Grading), args.Error(1)
}

func (m *MockStore) GetGrading(ctx context.Context, id uuid.UUID) (Grading, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Grading), args.Error(1)
}

func (m *MockStore) UpdateGradingStatus(ctx context.Context, id uuid.UUID, status Status, errMsg string) error {
	args := m.Called(ctx, id, status, errMsg)
	return args.Error(0)
}

func (m *MockStore) SaveResult(ctx context.Context, id uuid.UUID, result grading.Result) error {
	args := m.Called(ctx, id, result)
	return args.Error(0)
}

func (m *MockStore) ListGradings(ctx context.Context, limit int) ([]Summary, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Summary), args.Error(1)
}

func (m *MockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
