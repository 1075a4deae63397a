package messaging

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/zlnvch/duo/archive"
	"github.com/zlnvch/duo/models"
	"github.com/zlnvch/duo/notify"
	"github.com/zlnvch/duo/outcome"
	"github.com/zlnvch/duo/store"
)

var (
	ErrEmptyContent     = errors.New("message content is empty")
	ErrInvalidKind      = errors.New("invalid message kind")
	ErrDailyDoodleLimit = errors.New("a doodle was already sent today")
	ErrArchiveDisabled  = errors.New("message archive is not configured")
)

const (
	CouldNotRender = "could not render"
	// MaxTextLength bounds a text message in bytes.
	MaxTextLength = 4000
)

// Archiver receives copies of sent and deleted messages.
// worker.HistoryArchiver implements it.
type Archiver interface {
	Enqueue(m models.Message) bool
	Remove(pairId string, messageId string) bool
}

type PartnerNotifier interface {
	NotifyPartner(ctx context.Context, pairId string, senderId string, kind notify.Kind, title string, body string) outcome.BestEffort
}

type WidgetPublisher interface {
	Publish(ctx context.Context, w models.WidgetData) outcome.BestEffort
}

type Options struct {
	Now                func() time.Time
	Archiver           Archiver
	Archive            archive.Archive
	Notifier           PartnerNotifier
	Widget             WidgetPublisher
	EnforceDailyDoodle bool
}

type Engine struct {
	remote store.RemoteStore
	opts   Options
}

func NewEngine(remote store.RemoteStore, opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{remote: remote, opts: opts}
}

func validateContent(content string, kind models.MessageKind) error {
	switch kind {
	case models.KindText:
		if strings.TrimSpace(content) == "" {
			return ErrEmptyContent
		}
		if len(content) > MaxTextLength {
			return fmt.Errorf("message longer than %d bytes", MaxTextLength)
		}
	case models.KindDrawing:
		if strings.TrimSpace(content) == "" {
			return ErrEmptyContent
		}
		if _, err := models.DecodeDrawing(content); err != nil {
			return err
		}
	default:
		return ErrInvalidKind
	}
	return nil
}

// Send appends a message to the pair's history and then overwrites the
// latest projection. Only the history write is critical: a failed projection
// write is logged and heals on the next send.
func (e *Engine) Send(ctx context.Context, pairId string, authorId string, authorName string, content string, kind models.MessageKind) (models.Message, error) {
	if err := validateContent(content, kind); err != nil {
		return models.Message{}, err
	}

	now := e.opts.Now()
	enforce := e.opts.EnforceDailyDoodle && kind == models.KindDrawing
	if enforce {
		last, err := e.lastDoodleAt(ctx, authorId)
		if err != nil {
			return models.Message{}, err
		}
		if !CanSendDoodleToday(last, now) {
			return models.Message{}, ErrDailyDoodleLimit
		}
	}

	msg := models.Message{
		Id:         e.remote.NewKey(),
		PairId:     pairId,
		AuthorId:   authorId,
		AuthorName: authorName,
		Content:    content,
		Kind:       kind,
		Timestamp:  now.UnixMilli(),
	}

	data, err := models.EncodeMessage(msg)
	if err != nil {
		return models.Message{}, err
	}
	if err := e.remote.Set(ctx, store.MessagePath(pairId, msg.Id), data); err != nil {
		return models.Message{}, fmt.Errorf("write message: %w", err)
	}

	latest, err := models.EncodeLatestMessage(msg.Latest())
	if err == nil {
		err = e.remote.Set(ctx, store.LatestPath(pairId), latest)
	}
	if err != nil {
		log.Printf("Failed to update latest message for pair %s: %v", pairId, err)
	}

	if enforce {
		err := e.remote.Update(ctx, store.UserPath(authorId), map[string][]byte{
			models.FieldLastDoodleAt: []byte(strconv.FormatInt(msg.Timestamp, 10)),
		})
		if err != nil {
			log.Printf("Failed to record doodle time for user %s: %v", authorId, err)
		}
	}

	if e.opts.Notifier != nil {
		nk := notify.KindMessage
		if kind == models.KindDrawing {
			nk = notify.KindDoodle
		}
		e.opts.Notifier.NotifyPartner(ctx, pairId, authorId, nk, authorName, Preview(msg))
	}
	if e.opts.Archiver != nil {
		e.opts.Archiver.Enqueue(msg)
	}

	return msg, nil
}

func (e *Engine) lastDoodleAt(ctx context.Context, userId string) (time.Time, error) {
	raw, err := e.remote.Get(ctx, store.UserFieldPath(userId, models.FieldLastDoodleAt))
	if err != nil {
		if errors.Is(err, store.ErrItemNotFound) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("read last doodle time: %w", err)
	}
	ms, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		log.Printf("Unreadable lastDoodleAt for user %s: %q", userId, raw)
		return time.Time{}, nil
	}
	return time.UnixMilli(ms), nil
}

// SubscribeLatest delivers the latest projection of the pair, including the
// subscriber's own sends. ok is false while the pair has no messages.
func (e *Engine) SubscribeLatest(ctx context.Context, pairId string, fn func(latest models.LatestMessage, ok bool)) (store.Unsubscribe, error) {
	return e.remote.SubscribeValue(ctx, store.LatestPath(pairId), func(snap store.Snapshot) {
		if !snap.Exists {
			fn(models.LatestMessage{}, false)
			return
		}
		latest, err := models.DecodeLatestMessage(snap.Value)
		if err != nil {
			log.Printf("Dropping unreadable latest message for pair %s: %v", pairId, err)
			return
		}
		fn(latest, true)
	})
}

// SubscribeHistory delivers the whole history on every change, newest first.
// Unreadable records are left out.
func (e *Engine) SubscribeHistory(ctx context.Context, pairId string, fn func(msgs []models.Message)) (store.Unsubscribe, error) {
	return e.remote.SubscribeNode(ctx, store.HistoryPath(pairId), func(snap store.Snapshot) {
		fn(decodeHistory(pairId, snap.Children))
	})
}

// History reads the current history once, newest first.
func (e *Engine) History(ctx context.Context, pairId string) ([]models.Message, error) {
	children, err := e.remote.GetNode(ctx, store.HistoryPath(pairId))
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return decodeHistory(pairId, children), nil
}

func decodeHistory(pairId string, children map[string][]byte) []models.Message {
	msgs := make([]models.Message, 0, len(children))
	for id, raw := range children {
		m, err := models.DecodeMessage(raw)
		if err != nil {
			log.Printf("Dropping unreadable message %s in pair %s: %v", id, pairId, err)
			continue
		}
		m.Id = id
		msgs = append(msgs, m)
	}
	SortNewestFirst(msgs)
	return msgs
}

func SortNewestFirst(msgs []models.Message) {
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].Timestamp != msgs[j].Timestamp {
			return msgs[i].Timestamp > msgs[j].Timestamp
		}
		return msgs[i].Id > msgs[j].Id
	})
}

// DeleteMessage removes one message from the history. The latest projection
// is left as is even when it shows the deleted message.
func (e *Engine) DeleteMessage(ctx context.Context, pairId string, messageId string) error {
	if messageId == "" {
		return store.ErrInvalidPath
	}
	if err := e.remote.Delete(ctx, store.MessagePath(pairId, messageId)); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if e.opts.Archiver != nil {
		e.opts.Archiver.Remove(pairId, messageId)
	}
	return nil
}

// ArchivedHistory reads up to limit archived messages, newest first.
func (e *Engine) ArchivedHistory(ctx context.Context, pairId string, limit int32) ([]models.Message, error) {
	if e.opts.Archive == nil {
		return nil, ErrArchiveDisabled
	}
	return e.opts.Archive.History(ctx, pairId, limit)
}

func (e *Engine) ArchivedMessage(ctx context.Context, pairId string, messageId string) (models.Message, error) {
	if e.opts.Archive == nil {
		return models.Message{}, ErrArchiveDisabled
	}
	return e.opts.Archive.GetMessage(ctx, pairId, messageId)
}

// MirrorLatest publishes every partner-authored latest message to the
// widget surfaces.
func (e *Engine) MirrorLatest(ctx context.Context, pairId string, selfId string) (store.Unsubscribe, error) {
	if e.opts.Widget == nil {
		return func() {}, nil
	}
	return e.SubscribeLatest(ctx, pairId, func(latest models.LatestMessage, ok bool) {
		if !ok || latest.AuthorId == selfId {
			return
		}
		e.opts.Widget.Publish(ctx, models.WidgetData{
			Message:   latest.Content,
			FromName:  latest.AuthorName,
			Type:      latest.Kind,
			Timestamp: latest.Timestamp,
		})
	})
}
