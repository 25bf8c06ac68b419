package services

import (
	"context"

	"github.com/stretchr/testify/mock"

	"eventstudy/internal/eventstudy"
)

// MockResultStore is a mock for the ResultStore interface
type MockResultStore struct {
	mock.Mock
}

func (m *MockResultStore) SaveRun(ctx context.Context, runID string, res *eventstudy.Result) error {
	args := m.Called(ctx, runID, res)
	return args.Error(0)
}
