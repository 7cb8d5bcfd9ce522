package main

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"
)

// This file contains mocks definitions needed to perform unit tests.

type MockBookStorage struct {
	GetAllFunc func(ctx context.Context) ([]Book, error)
	GetOneFunc func(ctx context.Context, id string) (*Book, error)
	AddFunc    func(ctx context.Context, input NewBookInput) (Book, error)
	DeleteFunc func(ctx context.Context, id string) error
	PingFunc   func(ctx context.Context) error
	CloseFunc  func() error
}

// GetAll mocks the behavior of retrieving all books by the repository.
func (m *MockBookStorage) GetAll(ctx context.Context) ([]Book, error) {
	return m.GetAllFunc(ctx)
}

// GetOne mocks the behavior of retrieving a book by the repository.
func (m *MockBookStorage) GetOne(ctx context.Context, id string) (*Book, error) {
	return m.GetOneFunc(ctx, id)
}

// Add mocks the behavior of book creation by the repository.
func (m *MockBookStorage) Add(ctx context.Context, input NewBookInput) (Book, error) {
	return m.AddFunc(ctx, input)
}

// Delete mocks the behavior of deleting a book by the repository.
func (m *MockBookStorage) Delete(ctx context.Context, id string) error {
	return m.DeleteFunc(ctx, id)
}

func (m *MockBookStorage) Ping(ctx context.Context) error {
	if m.PingFunc == nil {
		return nil
	}
	return m.PingFunc(ctx)
}

func (m *MockBookStorage) Close() error {
	if m.CloseFunc == nil {
		return nil
	}
	return m.CloseFunc()
}

// FakeBookStorage is an in-memory BookStorage which assigns ids from
// a sequence like the books table does. It counts calls per method.
type FakeBookStorage struct {
	mu    sync.Mutex
	seq   int64
	books map[int64]Book
	calls map[string]int
}

func NewFakeBookStorage() *FakeBookStorage {
	return &FakeBookStorage{books: make(map[int64]Book), calls: make(map[string]int)}
}

// Calls returns how many times the named method was invoked.
func (f *FakeBookStorage) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *FakeBookStorage) GetAll(_ context.Context) ([]Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["GetAll"]++
	books := make([]Book, 0, len(f.books))
	for _, b := range f.books {
		books = append(books, b)
	}
	sort.Slice(books, func(i, j int) bool { return books[i].ID < books[j].ID })
	return books, nil
}

func (f *FakeBookStorage) GetOne(_ context.Context, id string) (*Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["GetOne"]++
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, errors.New(`invalid input syntax for type bigint: "` + id + `"`)
	}
	b, ok := f.books[n]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (f *FakeBookStorage) Add(_ context.Context, input NewBookInput) (Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Add"]++
	f.seq++
	b := Book{ID: f.seq, Title: input.Title, Author: input.Author, PublishedYear: input.PublishedYear}
	f.books[b.ID] = b
	return b, nil
}

func (f *FakeBookStorage) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Delete"]++
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return errors.New(`invalid input syntax for type bigint: "` + id + `"`)
	}
	delete(f.books, n)
	return nil
}

func (f *FakeBookStorage) Ping(_ context.Context) error { return nil }

func (f *FakeBookStorage) Close() error { return nil }

// MockQueue records pushed events and serves them back on Pop.
// With Stall set, Push waits for its context to end and fails.
type MockQueue struct {
	mu        sync.Mutex
	events    []BookEvent
	PushErr   error
	PopErr    error
	Stall     bool
	popCalls  int
	deadlines []time.Time
}

func (mq *MockQueue) Push(ctx context.Context, event BookEvent) error {
	deadline, _ := ctx.Deadline()
	mq.mu.Lock()
	mq.deadlines = append(mq.deadlines, deadline)
	mq.mu.Unlock()
	if mq.Stall {
		<-ctx.Done()
		return ctx.Err()
	}
	if mq.PushErr != nil {
		return mq.PushErr
	}
	mq.mu.Lock()
	mq.events = append(mq.events, event)
	mq.mu.Unlock()
	return nil
}

// Pop returns queued events in order then ErrQueueEmpty. It honors ctx.
func (mq *MockQueue) Pop(ctx context.Context) (BookEvent, error) {
	if err := ctx.Err(); err != nil {
		return BookEvent{}, err
	}
	mq.mu.Lock()
	defer mq.mu.Unlock()
	mq.popCalls++
	if mq.PopErr != nil {
		return BookEvent{}, mq.PopErr
	}
	if len(mq.events) == 0 {
		return BookEvent{}, ErrQueueEmpty
	}
	event := mq.events[0]
	mq.events = mq.events[1:]
	return event, nil
}

// Events returns a copy of the events still queued.
func (mq *MockQueue) Events() []BookEvent {
	mq.mu.Lock()
	defer mq.mu.Unlock()
	return append([]BookEvent(nil), mq.events...)
}

// PushDeadlines returns the deadline seen by each Push call.
func (mq *MockQueue) PushDeadlines() []time.Time {
	mq.mu.Lock()
	defer mq.mu.Unlock()
	return append([]time.Time(nil), mq.deadlines...)
}

// MockArchive is an in-memory EventArchiver.
type MockArchive struct {
	mu      sync.Mutex
	events  []ArchivedEvent
	ListErr error
}

func (ma *MockArchive) Append(event BookEvent) (uint64, error) {
	ma.mu.Lock()
	defer ma.mu.Unlock()
	seq := uint64(len(ma.events) + 1)
	ma.events = append(ma.events, ArchivedEvent{Seq: seq, BookEvent: event})
	return seq, nil
}

func (ma *MockArchive) List(limit int) ([]ArchivedEvent, error) {
	if ma.ListErr != nil {
		return nil, ma.ListErr
	}
	ma.mu.Lock()
	defer ma.mu.Unlock()
	events := ma.events
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return append([]ArchivedEvent{}, events...), nil
}

func (ma *MockArchive) Close() error { return nil }

// MockClocker implements a fake Clocker.
type MockClocker struct {
	MockNow time.Time
}

// NewMockClocker returns a mocked instance with fixed time.
func NewMockClocker() *MockClocker {
	return &MockClocker{time.Date(2023, 0o7, 0o2, 0o0, 0o0, 0o0, 0o00000000, time.UTC)}
}

// Now returns an already defined time to be used as mock. This
// equals to `Sun, 02 Jul 2023 00:00:00 UTC` in time.RFC1123 format.
func (mck *MockClocker) Now() time.Time {
	return mck.MockNow
}

// MockUIDHandler implements a fake UIDHandler.
type MockUIDHandler struct {
	MockedUID string
	Valid     bool
}

// NewMockUIDHandler returns a mocked instance with predictable id.
func NewMockUIDHandler(id string, valid bool) *MockUIDHandler {
	return &MockUIDHandler{MockedUID: id, Valid: valid}
}

// Generate constructs a predictable id to be used as mock.
func (muid *MockUIDHandler) Generate(prefix string) string {
	return prefix + ":" + muid.MockedUID
}

// IsValid mocks IsValid behavior by providing configured status.
func (muid *MockUIDHandler) IsValid(_, _ string) bool {
	return muid.Valid
}
