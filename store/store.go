package store

import (
	"context"
	"errors"
)

// Snapshot is the state of a path delivered to a subscriber. Value is set for
// leaf subscriptions and Children for node subscriptions.
type Snapshot struct {
	Path     string
	Exists   bool
	Value    []byte
	Children map[string][]byte
}

type Unsubscribe func()

// RemoteStore is the realtime tree both paired devices read and write.
//
// A leaf path is stored as a named child of its parent node, so
// "messages/p1/latest" is child "latest" of node "messages/p1". Delete is not
// recursive: it removes the node at path and the child entry in its parent.
type RemoteStore interface {
	Get(ctx context.Context, path string) ([]byte, error)
	GetNode(ctx context.Context, path string) (map[string][]byte, error)
	Set(ctx context.Context, path string, value []byte) error
	Update(ctx context.Context, path string, children map[string][]byte) error
	Delete(ctx context.Context, path string) error
	NewKey() string

	SubscribeValue(ctx context.Context, path string, fn func(Snapshot)) (Unsubscribe, error)
	SubscribeNode(ctx context.Context, path string, fn func(Snapshot)) (Unsubscribe, error)
}

var (
	ErrItemNotFound = errors.New("item does not exist")
	ErrInvalidPath  = errors.New("invalid path")
)
