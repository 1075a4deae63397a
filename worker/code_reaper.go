package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/zlnvch/duo/models"
	"github.com/zlnvch/duo/mq"
	"github.com/zlnvch/duo/store"
)

// CodeReaper deletes invite codes whose expiry message has come due. A code
// is only deleted while it still carries the createdAt of the message, so a
// code that was consumed and later regenerated with the same value survives.
type CodeReaper struct {
	expiryQueue mq.MessageQueue
	remote      store.RemoteStore
}

func NewCodeReaper(expiryQueue mq.MessageQueue, remote store.RemoteStore) *CodeReaper {
	return &CodeReaper{
		expiryQueue: expiryQueue,
		remote:      remote,
	}
}

const reaperVisibilityTimeout = 30

func (r *CodeReaper) Run(shutdownCtx context.Context) {
	for {
		msg, err := r.expiryQueue.Receive(shutdownCtx, reaperVisibilityTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			log.Printf("codeReaper receive error: %v", err)
			continue
		}

		if msg == nil {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(reaperVisibilityTimeout-1)*time.Second)
		err = r.Handle(ctx, msg)
		cancel()
		if err != nil {
			// Left on the queue to be retried after the visibility timeout
			log.Printf("codeReaper handle error: %v", err)
			continue
		}

		if err := r.expiryQueue.Delete(context.Background(), msg); err != nil {
			log.Printf("codeReaper delete error: %v", err)
		}
	}
}

// Handle processes one expiry message. Malformed messages are acknowledged.
func (r *CodeReaper) Handle(ctx context.Context, msg *mq.Message) error {
	var expiry models.CodeExpiry
	if err := json.Unmarshal([]byte(msg.Body), &expiry); err != nil || expiry.Code == "" {
		log.Printf("codeReaper dropping malformed message %q", msg.Body)
		return nil
	}

	path := store.PairCodePath(expiry.Code)
	data, err := r.remote.Get(ctx, path)
	if err != nil {
		if errors.Is(err, store.ErrItemNotFound) {
			return nil // consumed or already expired
		}
		return fmt.Errorf("read code %s: %w", expiry.Code, err)
	}

	pc, err := models.DecodePairCode(data)
	if err == nil && pc.CreatedAt != expiry.CreatedAt {
		return nil
	}

	if err := r.remote.Delete(ctx, path); err != nil {
		return fmt.Errorf("delete code %s: %w", expiry.Code, err)
	}
	log.Printf("Expired invite code %s", expiry.Code)
	return nil
}
