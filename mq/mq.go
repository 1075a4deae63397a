package mq

import (
	"context"
	"time"
)

// MessageQueue carries work that outlives the device call that produced it:
// partner notifications and delayed invite-code expiry.
type MessageQueue interface {
	Send(ctx context.Context, body string) error
	SendDelayed(ctx context.Context, body string, delay time.Duration) error
	Receive(ctx context.Context, visibilityTimeout int32) (*Message, error)
	Delete(ctx context.Context, msg *Message) error
}

type Message struct {
	Id   string
	Body string
}

// MaxDelay is the longest delay a queue accepts for a single message.
const MaxDelay = 15 * time.Minute
