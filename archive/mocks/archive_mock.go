package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/zlnvch/duo/models"
)

type MockArchive struct {
	mock.Mock
}

func (m *MockArchive) WriteMessages(ctx context.Context, messages []models.Message) ([]models.Message, error) {
	args := m.Called(ctx, messages)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *MockArchive) GetMessage(ctx context.Context, pairId string, messageId string) (models.Message, error) {
	args := m.Called(ctx, pairId, messageId)
	return args.Get(0).(models.Message), args.Error(1)
}

func (m *MockArchive) DeleteMessage(ctx context.Context, pairId string, messageId string) error {
	args := m.Called(ctx, pairId, messageId)
	return args.Error(0)
}

func (m *MockArchive) History(ctx context.Context, pairId string, limit int32) ([]models.Message, error) {
	args := m.Called(ctx, pairId, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}
