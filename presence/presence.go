// Package presence carries the ephemeral signals of a pair: nudges and
// moods. Every write here is best effort.
package presence

import (
	"context"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/zlnvch/duo/models"
	"github.com/zlnvch/duo/notify"
	"github.com/zlnvch/duo/outcome"
	"github.com/zlnvch/duo/store"
	"golang.org/x/time/rate"
)

const (
	DefaultNudgeInterval = 10 * time.Second
	maxMoodLength        = 32
)

type PartnerNotifier interface {
	NotifyPartner(ctx context.Context, pairId string, senderId string, kind notify.Kind, title string, body string) outcome.BestEffort
}

type Engine struct {
	remote   store.RemoteStore
	notifier PartnerNotifier
	limiter  *rate.Limiter
	now      func() time.Time
}

// NewEngine allows one nudge per interval. A non-positive interval disables
// the throttle. notifier may be nil.
func NewEngine(remote store.RemoteStore, interval time.Duration, notifier PartnerNotifier) *Engine {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Engine{
		remote:   remote,
		notifier: notifier,
		limiter:  rate.NewLimiter(limit, 1),
		now:      time.Now,
	}
}

func (e *Engine) SendNudge(ctx context.Context, pairId string, senderId string, senderName string) outcome.BestEffort {
	if !e.limiter.AllowN(e.now(), 1) {
		return outcome.Skipped("nudge", "nudged too recently")
	}

	data, err := models.EncodeNudge(models.Nudge{
		SenderId:   senderId,
		SenderName: senderName,
		Timestamp:  e.now().UnixMilli(),
	})
	if err != nil {
		return outcome.Drop("nudge", err)
	}
	if err := e.remote.Set(ctx, store.NudgePath(pairId), data); err != nil {
		return outcome.Drop("nudge", err)
	}

	if e.notifier != nil {
		e.notifier.NotifyPartner(ctx, pairId, senderId, notify.KindNudge, senderName, "is thinking of you")
	}
	return outcome.Delivered("nudge")
}

// SubscribeNudges calls fn for every nudge the partner sends after the
// subscription starts. The snapshot delivered on subscribe is the last nudge
// already sent and is skipped.
func (e *Engine) SubscribeNudges(ctx context.Context, pairId string, selfId string, fn func(models.Nudge)) (store.Unsubscribe, error) {
	var subscribed atomic.Bool
	return e.remote.SubscribeValue(ctx, store.NudgePath(pairId), func(snap store.Snapshot) {
		if !subscribed.Swap(true) || !snap.Exists {
			return
		}
		n, err := models.DecodeNudge(snap.Value)
		if err != nil {
			log.Printf("Dropping unreadable nudge for pair %s: %v", pairId, err)
			return
		}
		if n.SenderId == selfId {
			return
		}
		fn(n)
	})
}

// SetMood sets the user's mood, or clears it when mood is nil.
func (e *Engine) SetMood(ctx context.Context, userId string, mood *string) outcome.BestEffort {
	var value []byte
	if mood != nil {
		m := strings.TrimSpace(*mood)
		if len(m) > maxMoodLength {
			return outcome.Skipped("mood", "mood is too long")
		}
		if m != "" {
			value = []byte(m)
		}
	}

	err := e.remote.Update(ctx, store.UserPath(userId), map[string][]byte{
		models.FieldMood: value,
	})
	if err != nil {
		return outcome.Drop("mood", err)
	}
	return outcome.Delivered("mood")
}

// WatchMood delivers the user's current mood and every change to it. ok is
// false while no mood is set.
func (e *Engine) WatchMood(ctx context.Context, userId string, fn func(mood string, ok bool)) (store.Unsubscribe, error) {
	return e.remote.SubscribeValue(ctx, store.UserFieldPath(userId, models.FieldMood), func(snap store.Snapshot) {
		if !snap.Exists {
			fn("", false)
			return
		}
		fn(string(snap.Value), true)
	})
}
