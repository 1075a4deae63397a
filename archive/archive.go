// Package archive is the durable copy of every pair's message history. The
// realtime store holds the live history; the archive outlives it and serves
// older pages.
package archive

import (
	"context"
	"errors"

	"github.com/zlnvch/duo/models"
)

type Archive interface {
	// WriteMessages stores messages and returns the ones that could not be
	// written.
	WriteMessages(ctx context.Context, messages []models.Message) ([]models.Message, error)
	GetMessage(ctx context.Context, pairId string, messageId string) (models.Message, error)
	DeleteMessage(ctx context.Context, pairId string, messageId string) error
	// History returns up to limit messages of a pair, newest first. A limit of
	// zero returns everything.
	History(ctx context.Context, pairId string, limit int32) ([]models.Message, error)
}

var ErrItemNotFound = errors.New("item does not exist")

// MaxBatchSize is the largest number of messages written in one request.
const MaxBatchSize = 25
