// Package device is the device-scoped key/value storage that survives app
// restarts: the local identity, the pair id and the widget cache record.
package device

import (
	"context"
	"errors"
)

const (
	KeyLocalUserId   = "localUserId"
	KeyLocalUserName = "localUserName"
	KeyLocalPairId   = "localPairId"
	KeyPendingCode   = "pendingCode"
	KeyWidgetData    = "widgetData"
)

var ErrNotFound = errors.New("key not found")

type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
}
