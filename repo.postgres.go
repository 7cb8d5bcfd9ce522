package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver.
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Supported database/sql driver names.
const (
	DriverPQ  = "postgres"
	DriverPGX = "pgx"
)

const (
	selectAllBooksQuery = `SELECT id, title, author, published_year FROM books`
	selectBookQuery     = `SELECT id, title, author, published_year FROM books WHERE id = $1`
	insertBookQuery     = `INSERT INTO books (title, author, published_year) VALUES ($1, $2, $3)
		RETURNING id, title, author, published_year`
	deleteBookQuery = `DELETE FROM books WHERE id = $1`
)

var _ BookStorage = (*postgresBookStorage)(nil)

type postgresBookStorage struct {
	logger *zap.Logger
	db     *sql.DB
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// GetPostgresClient opens the connection pool with the configured driver
// and verifies the database is reachable.
func GetPostgresClient(ctx context.Context, config *Config) (*sql.DB, error) {
	pc := config.Postgres
	db, err := sql.Open(pc.Driver, pc.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if pc.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pc.MaxOpenConns)
	}
	if pc.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pc.MaxIdleConns)
	}
	if pc.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pc.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("test connection failed: %w", err)
	}
	return db, nil
}

// NewPostgresBookStorage provides an instance of postgres-based book storage.
func NewPostgresBookStorage(logger *zap.Logger, db *sql.DB) BookStorage {
	return &postgresBookStorage{
		logger: logger,
		db:     db,
	}
}

// withConn runs fn on a connection dedicated to this call and
// hands it back to the pool whatever the outcome.
func (ps *postgresBookStorage) withConn(ctx context.Context, fn func(conn *sql.Conn) error) error {
	conn, err := ps.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			ps.logger.Warn("storage: failed to release connection", zap.Error(cerr))
		}
	}()
	return fn(conn)
}

// GetAll retrieves all books in the order the database returns them.
func (ps *postgresBookStorage) GetAll(ctx context.Context) ([]Book, error) {
	books := []Book{}
	err := ps.withConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, selectAllBooksQuery)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			book, err := scanBook(rows)
			if err != nil {
				return err
			}
			books = append(books, book)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list books: %w", err)
	}
	return books, nil
}

// GetOne retrieves a book record based on its ID. It returns nil with no error
// when no record matches.
func (ps *postgresBookStorage) GetOne(ctx context.Context, id string) (*Book, error) {
	var book *Book
	err := ps.withConn(ctx, func(conn *sql.Conn) error {
		b, err := scanBook(conn.QueryRowContext(ctx, selectBookQuery, id))
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		book = &b
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get book: %w", err)
	}
	return book, nil
}

// Add inserts a new book record and returns it as stored, with its assigned id.
func (ps *postgresBookStorage) Add(ctx context.Context, input NewBookInput) (Book, error) {
	var book Book
	err := ps.withConn(ctx, func(conn *sql.Conn) error {
		var year sql.NullInt32
		if input.PublishedYear != nil {
			year = sql.NullInt32{Int32: *input.PublishedYear, Valid: true}
		}
		var err error
		book, err = scanBook(conn.QueryRowContext(ctx, insertBookQuery, input.Title, input.Author, year))
		return err
	})
	if err != nil {
		return Book{}, fmt.Errorf("failed to insert book: %w", err)
	}
	return book, nil
}

// Delete removes the book record with the given id if any.
func (ps *postgresBookStorage) Delete(ctx context.Context, id string) error {
	err := ps.withConn(ctx, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, deleteBookQuery, id)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete book: %w", err)
	}
	return nil
}

// Ping checks the database is still reachable.
func (ps *postgresBookStorage) Ping(ctx context.Context) error {
	return ps.db.PingContext(ctx)
}

// Close closes the connection pool.
func (ps *postgresBookStorage) Close() error {
	return ps.db.Close()
}

func scanBook(row rowScanner) (Book, error) {
	var book Book
	var year sql.NullInt32
	if err := row.Scan(&book.ID, &book.Title, &book.Author, &year); err != nil {
		return Book{}, err
	}
	if year.Valid {
		y := year.Int32
		book.PublishedYear = &y
	}
	return book, nil
}

// SQLStateCode extracts the SQLSTATE code carried by a driver error
// from either lib/pq or pgx. It returns an empty string otherwise.
func SQLStateCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
