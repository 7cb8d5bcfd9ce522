package main

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// publishTimeout bounds an event push so a slow queue cannot hold
// a request whose write already committed.
const publishTimeout = 2 * time.Second

type BookServiceProvider interface {
	GetAll(ctx context.Context) ([]Book, error)
	GetOne(ctx context.Context, id string) (*Book, error)
	Add(ctx context.Context, input NewBookInput) (Book, error)
	Delete(ctx context.Context, id string) error
}

// BookService sits between the resolvers and the storage. Each call
// issues exactly one storage call. When a queue is set, successful
// writes are announced on it afterwards on a best effort basis.
type BookService struct {
	logger  *zap.Logger
	clock   Clocker
	storage BookStorage
	queue   Queuer
}

// NewBookService provides a book service. The queue may be nil.
func NewBookService(logger *zap.Logger, clock Clocker, storage BookStorage, queue Queuer) BookServiceProvider {
	return &BookService{
		logger:  logger,
		clock:   clock,
		storage: storage,
		queue:   queue,
	}
}

func (bs *BookService) GetAll(ctx context.Context) ([]Book, error) {
	return bs.storage.GetAll(ctx)
}

func (bs *BookService) GetOne(ctx context.Context, id string) (*Book, error) {
	return bs.storage.GetOne(ctx, id)
}

func (bs *BookService) Add(ctx context.Context, input NewBookInput) (Book, error) {
	book, err := bs.storage.Add(ctx, input)
	if err != nil {
		return book, err
	}
	bs.publish(ctx, BookEvent{
		Kind:   BookCreated,
		BookID: strconv.FormatInt(book.ID, 10),
		Book:   &book,
		At:     bs.clock.Now(),
	})
	return book, nil
}

func (bs *BookService) Delete(ctx context.Context, id string) error {
	if err := bs.storage.Delete(ctx, id); err != nil {
		return err
	}
	bs.publish(ctx, BookEvent{Kind: BookDeleted, BookID: id, At: bs.clock.Now()})
	return nil
}

func (bs *BookService) publish(ctx context.Context, event BookEvent) {
	if bs.queue == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := bs.queue.Push(pctx, event); err != nil {
		bs.logger.Error("service: failed to push event to queue",
			zap.String("request.id", GetRequestIDFromContext(ctx)),
			zap.String("event.kind", string(event.Kind)),
			zap.String("book.id", event.BookID),
			zap.Error(err),
		)
	}
}
