// Package notify hands partner notifications to the external push service.
// Delivery is best effort: a notification that cannot be queued is logged
// and dropped.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/zlnvch/duo/models"
	"github.com/zlnvch/duo/mq"
	"github.com/zlnvch/duo/outcome"
)

type Kind string

const (
	KindMessage Kind = "message"
	KindDoodle  Kind = "doodle"
	KindNudge   Kind = "nudge"
)

// Notification is the body of one queued push request.
type Notification struct {
	Token  string `json:"token"`
	Kind   Kind   `json:"kind"`
	PairId string `json:"pairId"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// QueueNotifier serializes notifications onto a message queue consumed by
// the push delivery service.
type QueueNotifier struct {
	queue mq.MessageQueue
}

func NewQueueNotifier(queue mq.MessageQueue) *QueueNotifier {
	return &QueueNotifier{queue: queue}
}

func (q *QueueNotifier) Notify(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}
	if err := q.queue.Send(ctx, string(body)); err != nil {
		return fmt.Errorf("queue notification: %w", err)
	}
	return nil
}

// Nop is used when no notification queue is configured.
type Nop struct{}

func (Nop) Notify(ctx context.Context, n Notification) error {
	return nil
}

type PartnerResolver interface {
	GetPartner(ctx context.Context, pairId string, selfId string) (models.UserIdentity, error)
}

type Dispatcher struct {
	partners PartnerResolver
	notifier Notifier
}

func NewDispatcher(partners PartnerResolver, notifier Notifier) *Dispatcher {
	if notifier == nil {
		notifier = Nop{}
	}
	return &Dispatcher{partners: partners, notifier: notifier}
}

// NotifyPartner sends a notification to the member of pairId that is not
// senderId. A partner without a notification token is skipped.
func (d *Dispatcher) NotifyPartner(ctx context.Context, pairId string, senderId string, kind Kind, title string, body string) outcome.BestEffort {
	op := "notify " + string(kind)

	partner, err := d.partners.GetPartner(ctx, pairId, senderId)
	if err != nil {
		return outcome.Drop(op, err)
	}
	if partner.NotificationToken == "" {
		return outcome.Skipped(op, "partner has no notification token")
	}

	err = d.notifier.Notify(ctx, Notification{
		Token:  partner.NotificationToken,
		Kind:   kind,
		PairId: pairId,
		Title:  title,
		Body:   body,
	})
	if err != nil {
		return outcome.Drop(op, err)
	}
	return outcome.Delivered(op)
}
