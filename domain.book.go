package main

import (
	"context"
	"time"
)

// Book represents a book entity as persisted in the `books` table.
// PublishedYear is nil when the year was not provided on creation.
type Book struct {
	ID            int64  `json:"id"`
	Title         string `json:"title"`
	Author        string `json:"author"`
	PublishedYear *int32 `json:"publishedYear"`
}

// NewBookInput carries the fields accepted by the book creation operation.
// The identifier is never part of it since the store assigns one.
type NewBookInput struct {
	Title         string
	Author        string
	PublishedYear *int32
}

// BookStorage defines possible operations on book entity. GetOne returns
// a nil book and no error when nothing matches. Delete does not report
// whether a record was actually removed.
type BookStorage interface {
	GetAll(ctx context.Context) ([]Book, error)
	GetOne(ctx context.Context, id string) (*Book, error)
	Add(ctx context.Context, input NewBookInput) (Book, error)
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
	Close() error
}

// BookEventKind names the type of change recorded on the change feed.
type BookEventKind string

const (
	BookCreated BookEventKind = "created"
	BookDeleted BookEventKind = "deleted"
)

// BookEvent is a single entry of the change feed.
type BookEvent struct {
	Kind BookEventKind `json:"kind"`
	// BookID is kept as received for deletions since the
	// record itself may never have existed.
	BookID string    `json:"bookId"`
	Book   *Book     `json:"book,omitempty"`
	At     time.Time `json:"at"`
}
