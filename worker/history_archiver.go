package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/zlnvch/duo/archive"
	"github.com/zlnvch/duo/models"
)

type ArchiveDelete struct {
	PairId    string
	MessageId string
}

// HistoryArchiver copies sent messages into the archive in batches.
type HistoryArchiver struct {
	WriteCh            chan models.Message
	DeleteCh           chan ArchiveDelete
	archive            archive.Archive
	tickerMilliseconds int
}

// Deletes are not batched because the archive deletes conditionally. A delete
// for a message still in the buffer removes it from the buffer instead, so
// the write never happens.
func NewHistoryArchiver(a archive.Archive, tickerMilliseconds int) *HistoryArchiver {
	return &HistoryArchiver{
		WriteCh:            make(chan models.Message, 1024), // buffer to absorb bursts
		DeleteCh:           make(chan ArchiveDelete, 1024),
		archive:            a,
		tickerMilliseconds: tickerMilliseconds,
	}
}

// Enqueue hands a message to the archiver without blocking. It reports
// whether the message was accepted.
func (b *HistoryArchiver) Enqueue(m models.Message) bool {
	select {
	case b.WriteCh <- m:
		return true
	default:
		log.Printf("History archiver full, dropping message %s", m.Id)
		return false
	}
}

func (b *HistoryArchiver) Remove(pairId string, messageId string) bool {
	select {
	case b.DeleteCh <- ArchiveDelete{PairId: pairId, MessageId: messageId}:
		return true
	default:
		log.Printf("History archiver full, dropping delete of message %s", messageId)
		return false
	}
}

func archiveKey(pairId string, messageId string) string {
	return pairId + "/" + messageId
}

func (b *HistoryArchiver) Run(shutdownCtx context.Context) {
	ticker := time.NewTicker(time.Duration(b.tickerMilliseconds) * time.Millisecond)
	defer ticker.Stop()

	batch := make([]models.Message, 0, archive.MaxBatchSize)
	batchIndices := make(map[string]int, archive.MaxBatchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Not derived from shutdownCtx so the final flush can finish
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		unprocessed, err := b.archive.WriteMessages(ctx, batch)
		if err != nil {
			log.Printf("Error writing history batch to archive: %v", err)
		}
		if len(unprocessed) > 0 {
			log.Printf("%d of %d messages were not archived", len(unprocessed), len(batch))
		}

		batch = batch[:0]
		clear(batchIndices)
	}

	remove := func(req ArchiveDelete) {
		key := archiveKey(req.PairId, req.MessageId)
		if idx, ok := batchIndices[key]; ok {
			l := len(batch)
			batch[idx] = batch[l-1]
			batch = batch[:l-1]

			// Update index of the moved item
			if idx < len(batch) {
				batchIndices[archiveKey(batch[idx].PairId, batch[idx].Id)] = idx
			}
			delete(batchIndices, key)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := b.archive.DeleteMessage(ctx, req.PairId, req.MessageId)
		if err != nil && !errors.Is(err, archive.ErrItemNotFound) {
			log.Printf("Error deleting archived message %s: %v", req.MessageId, err)
		}
	}

	for {
		select {
		case m := <-b.WriteCh:
			key := archiveKey(m.PairId, m.Id)
			if _, dup := batchIndices[key]; dup {
				continue
			}
			batch = append(batch, m)
			batchIndices[key] = len(batch) - 1
			if len(batch) == archive.MaxBatchSize {
				flush()
			}

		case req := <-b.DeleteCh:
			remove(req)

		case <-ticker.C:
			flush()

		case <-shutdownCtx.Done():
			flush()
			return
		}
	}
}
