package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/graph-gophers/graphql-go"
	"go.uber.org/zap"
)

// Resolver is the root resolver serving both query and mutation fields.
type Resolver struct {
	logger *zap.Logger
	books  BookServiceProvider
}

// NewResolver provides a root resolver using the given book service.
func NewResolver(logger *zap.Logger, books BookServiceProvider) *Resolver {
	return &Resolver{logger: logger, books: books}
}

type bookResolver struct {
	book Book
}

func (br *bookResolver) ID() graphql.ID {
	return graphql.ID(strconv.FormatInt(br.book.ID, 10))
}

func (br *bookResolver) Title() string {
	return br.book.Title
}

func (br *bookResolver) Author() string {
	return br.book.Author
}

func (br *bookResolver) PublishedYear() *int32 {
	return br.book.PublishedYear
}

// GetBooks resolves `getBooks`.
func (r *Resolver) GetBooks(ctx context.Context) (*[]*bookResolver, error) {
	books, err := r.books.GetAll(ctx)
	if err != nil {
		return nil, r.storeFailure(ctx, "getBooks", "", err)
	}
	result := make([]*bookResolver, 0, len(books))
	for _, b := range books {
		result = append(result, &bookResolver{book: b})
	}
	return &result, nil
}

// GetBook resolves `getBook`. An unknown id resolves to null.
func (r *Resolver) GetBook(ctx context.Context, args struct{ ID graphql.ID }) (*bookResolver, error) {
	book, err := r.books.GetOne(ctx, string(args.ID))
	if err != nil {
		return nil, r.storeFailure(ctx, "getBook", string(args.ID), err)
	}
	if book == nil {
		return nil, nil
	}
	return &bookResolver{book: *book}, nil
}

type addBookArgs struct {
	Title         string
	Author        string
	PublishedYear *int32
}

// AddBook resolves `addBook` and returns the record as created by the store.
func (r *Resolver) AddBook(ctx context.Context, args addBookArgs) (*bookResolver, error) {
	book, err := r.books.Add(ctx, NewBookInput{
		Title:         args.Title,
		Author:        args.Author,
		PublishedYear: args.PublishedYear,
	})
	if err != nil {
		return nil, r.storeFailure(ctx, "addBook", "", err)
	}
	r.logger.Info("book created",
		zap.String("request.id", GetRequestIDFromContext(ctx)),
		zap.Int64("book.id", book.ID),
	)
	return &bookResolver{book: book}, nil
}

// DeleteBook resolves `deleteBook`. The confirmation does not tell
// whether a record was actually removed.
func (r *Resolver) DeleteBook(ctx context.Context, args struct{ ID graphql.ID }) (*string, error) {
	id := string(args.ID)
	if err := r.books.Delete(ctx, id); err != nil {
		return nil, r.storeFailure(ctx, "deleteBook", id, err)
	}
	msg := DeleteConfirmation(id)
	return &msg, nil
}

// DeleteConfirmation is the text returned by `deleteBook`.
func DeleteConfirmation(id string) string {
	return fmt.Sprintf("Book with id %s deleted.", id)
}

func (r *Resolver) storeFailure(ctx context.Context, op, id string, err error) error {
	r.logger.Error("graphql: store call failed",
		zap.String("request.id", GetRequestIDFromContext(ctx)),
		zap.String("graphql.operation", op),
		zap.String("book.id", id),
		zap.String("db.code", SQLStateCode(err)),
		zap.Error(err),
	)
	return &StoreError{Op: op, Err: err}
}
