package main

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const popRetryDelay = time.Second

type Consumer interface {
	Consume(ctx context.Context) error
}

type archiveConsumer struct {
	logger  *zap.Logger
	queue   Queuer
	archive EventArchiver
}

// NewArchiveConsumer provides a consumer which moves events from the queue into the archive.
func NewArchiveConsumer(logger *zap.Logger, q Queuer, archive EventArchiver) Consumer {
	return &archiveConsumer{logger, q, archive}
}

// Consume runs until the context is done. Failures on a single
// event are logged and do not stop the loop.
func (ac *archiveConsumer) Consume(ctx context.Context) error {
	for {
		event, err := ac.queue.Pop(ctx)
		if err != nil && ctx.Err() != nil {
			ac.logger.Info("consumer: queue pop call: context is done: exit", zap.String("reason", ctx.Err().Error()))
			return nil
		}

		if errors.Is(err, ErrQueueEmpty) {
			continue
		}

		if err != nil {
			ac.logger.Error("consumer: error on queue pop call", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(popRetryDelay):
			}
			continue
		}

		switch event.Kind {
		case BookCreated, BookDeleted:
			seq, err := ac.archive.Append(event)
			if err != nil {
				ac.logger.Error("consumer: failed to archive event", zap.Any("event", event), zap.Error(err))
				continue
			}
			ac.logger.Debug("consumer: event archived", zap.Uint64("seq", seq), zap.String("book.id", event.BookID))
		default:
			ac.logger.Warn("consumer: received event of unknown kind", zap.String("kind", string(event.Kind)), zap.Any("event", event))
		}
	}
}
