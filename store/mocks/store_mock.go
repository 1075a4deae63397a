package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/zlnvch/duo/store"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Get(ctx context.Context, path string) ([]byte, error) {
	args := m.Called(ctx, path)
	if b := args.Get(0); b != nil {
		return b.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) GetNode(ctx context.Context, path string) (map[string][]byte, error) {
	args := m.Called(ctx, path)
	if n := args.Get(0); n != nil {
		return n.(map[string][]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) Set(ctx context.Context, path string, value []byte) error {
	args := m.Called(ctx, path, value)
	return args.Error(0)
}

func (m *MockStore) Update(ctx context.Context, path string, children map[string][]byte) error {
	args := m.Called(ctx, path, children)
	return args.Error(0)
}

func (m *MockStore) Delete(ctx context.Context, path string) error {
	args := m.Called(ctx, path)
	return args.Error(0)
}

func (m *MockStore) NewKey() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockStore) SubscribeValue(ctx context.Context, path string, fn func(store.Snapshot)) (store.Unsubscribe, error) {
	args := m.Called(ctx, path, fn)
	if u := args.Get(0); u != nil {
		return u.(store.Unsubscribe), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) SubscribeNode(ctx context.Context, path string, fn func(store.Snapshot)) (store.Unsubscribe, error) {
	args := m.Called(ctx, path, fn)
	if u := args.Get(0); u != nil {
		return u.(store.Unsubscribe), args.Error(1)
	}
	return nil, args.Error(1)
}
