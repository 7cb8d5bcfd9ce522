package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestBookServicePublishesEvents ensures successful writes are announced on the queue.
func TestBookServicePublishesEvents(t *testing.T) {
	queue := &MockQueue{}
	clock := NewMockClocker()
	bs := NewBookService(zap.NewNop(), clock, NewFakeBookStorage(), queue)

	year := int32(1965)
	book, err := bs.Add(context.Background(), NewBookInput{Title: "Dune", Author: "Herbert", PublishedYear: &year})
	require.NoError(t, err)
	require.NoError(t, bs.Delete(context.Background(), "1"))

	_, err = bs.GetAll(context.Background())
	require.NoError(t, err)
	_, err = bs.GetOne(context.Background(), "1")
	require.NoError(t, err)

	events := queue.Events()
	require.Len(t, events, 2)
	assert.Equal(t, BookCreated, events[0].Kind)
	assert.Equal(t, "1", events[0].BookID)
	assert.Equal(t, &book, events[0].Book)
	assert.Equal(t, clock.Now(), events[0].At)
	assert.Equal(t, BookDeleted, events[1].Kind)
	assert.Equal(t, "1", events[1].BookID)
	assert.Nil(t, events[1].Book)
}

// TestBookServiceQueueFailure ensures a failing queue does not fail the operation.
func TestBookServiceQueueFailure(t *testing.T) {
	queue := &MockQueue{PushErr: errors.New("redis down")}
	bs := NewBookService(zap.NewNop(), NewMockClocker(), NewFakeBookStorage(), queue)

	book, err := bs.Add(context.Background(), NewBookInput{Title: "Dune", Author: "Herbert"})
	assert.NoError(t, err)
	assert.Equal(t, int64(1), book.ID)
	assert.NoError(t, bs.Delete(context.Background(), "1"))
}

// TestBookServiceStalledQueue ensures a stuck push is cut short and
// does not survive as a request failure, even after the caller is gone.
func TestBookServiceStalledQueue(t *testing.T) {
	queue := &MockQueue{Stall: true}
	bs := NewBookService(zap.NewNop(), NewMockClocker(), NewFakeBookStorage(), queue)

	ctx, cancel := context.WithCancel(context.Background())
	start := time.Now()
	done := make(chan error, 1)
	go func() {
		_, err := bs.Add(ctx, NewBookInput{Title: "Dune", Author: "Herbert"})
		done <- err
	}()
	// the request context ending must not abort the push early.
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(publishTimeout + 2*time.Second):
		t.Fatal("add did not return while the queue was stalled")
	}
	assert.GreaterOrEqual(t, time.Since(start), publishTimeout-100*time.Millisecond)

	deadlines := queue.PushDeadlines()
	require.Len(t, deadlines, 1)
	assert.False(t, deadlines[0].IsZero())
	assert.WithinDuration(t, start.Add(publishTimeout), deadlines[0], time.Second)
}

// TestBookServiceWithoutQueue ensures the feed is optional.
func TestBookServiceWithoutQueue(t *testing.T) {
	store := NewFakeBookStorage()
	bs := NewBookService(zap.NewNop(), NewMockClocker(), store, nil)
	_, err := bs.Add(context.Background(), NewBookInput{Title: "Dune", Author: "Herbert"})
	assert.NoError(t, err)
	assert.NoError(t, bs.Delete(context.Background(), "1"))
	assert.Equal(t, 1, store.Calls("Add"))
	assert.Equal(t, 1, store.Calls("Delete"))
}

// TestBookServiceNoEventOnFailure ensures nothing is published when the store fails.
func TestBookServiceNoEventOnFailure(t *testing.T) {
	queue := &MockQueue{}
	mockRepo := &MockBookStorage{
		AddFunc:    func(ctx context.Context, input NewBookInput) (Book, error) { return Book{}, errors.New("failed") },
		DeleteFunc: func(ctx context.Context, id string) error { return errors.New("failed") },
	}
	bs := NewBookService(zap.NewNop(), NewMockClocker(), mockRepo, queue)
	_, err := bs.Add(context.Background(), NewBookInput{Title: "Dune", Author: "Herbert"})
	assert.Error(t, err)
	assert.Error(t, bs.Delete(context.Background(), "1"))
	assert.Empty(t, queue.Events())
}

// TestArchiveConsumer ensures queued events end up in the archive and the
// consumer exits once its context is done.
func TestArchiveConsumer(t *testing.T) {
	queue := &MockQueue{}
	archive := &MockArchive{}
	ctx := context.Background()
	require.NoError(t, queue.Push(ctx, BookEvent{Kind: BookCreated, BookID: "1"}))
	require.NoError(t, queue.Push(ctx, BookEvent{Kind: "updated", BookID: "1"}))
	require.NoError(t, queue.Push(ctx, BookEvent{Kind: BookDeleted, BookID: "1"}))

	cctx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- NewArchiveConsumer(zap.NewNop(), queue, archive).Consume(cctx)
	}()

	assert.Eventually(t, func() bool {
		events, _ := archive.List(0)
		return len(events) == 2
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not exit after cancellation")
	}

	events, err := archive.List(0)
	require.NoError(t, err)
	assert.Equal(t, BookCreated, events[0].Kind)
	assert.Equal(t, BookDeleted, events[1].Kind)
}
