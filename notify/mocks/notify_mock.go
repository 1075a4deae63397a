package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/zlnvch/duo/notify"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, n notify.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}
