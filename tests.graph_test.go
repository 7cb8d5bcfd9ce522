package main

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/graph-gophers/graphql-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// This file contains tests of the schema and the resolvers executed
// end to end against an in-memory store.

func newTestSchema(t *testing.T, storage BookStorage, queue Queuer) *graphql.Schema {
	t.Helper()
	bs := NewBookService(zap.NewNop(), NewMockClocker(), storage, queue)
	schema, err := NewSchema(zap.NewNop(), &GraphQLConfig{MaxDepth: 10}, NewResolver(zap.NewNop(), bs))
	require.NoError(t, err)
	return schema
}

// exec runs the document and decodes the data part into a generic map.
func exec(t *testing.T, schema *graphql.Schema, query string, vars map[string]interface{}) (map[string]interface{}, *graphql.Response) {
	t.Helper()
	resp := schema.Exec(context.Background(), query, "", vars)
	data := map[string]interface{}{}
	if len(resp.Data) > 0 {
		require.NoError(t, json.Unmarshal(resp.Data, &data))
	}
	return data, resp
}

// TestBuildSchemaSDL ensures every registered operation lands on its root type.
func TestBuildSchemaSDL(t *testing.T) {
	sdl := BuildSchemaSDL(BookOperations)
	assert.Contains(t, sdl, "schema {\n  query: Query\n  mutation: Mutation\n}")
	assert.Contains(t, sdl, "type Query {\n  getBooks: [Book]\n  getBook(id: ID!): Book\n}")
	assert.Contains(t, sdl, "type Mutation {\n  addBook(title: String!, author: String!, publishedYear: Int): Book\n  deleteBook(id: ID!): String\n}")
	assert.Contains(t, sdl, "publishedYear: Int\n}")

	t.Run("queries only", func(t *testing.T) {
		sdl := BuildSchemaSDL(BookOperations[:2])
		assert.NotContains(t, sdl, "mutation: Mutation")
		assert.NotContains(t, sdl, "type Mutation")
	})
}

// TestNewSchema ensures the registry and the resolver agree. A declared
// operation without resolver method must make the schema build fail.
func TestNewSchema(t *testing.T) {
	t.Run("should pass: registry bound to resolver", func(t *testing.T) {
		_ = newTestSchema(t, NewFakeBookStorage(), nil)
	})

	t.Run("should fail: operation without resolver", func(t *testing.T) {
		sdl := BuildSchemaSDL(append(append([]Operation{}, BookOperations...), Operation{
			Kind:   QueryOperation,
			Name:   "countBooks",
			Result: "Int",
		}))
		_, err := graphql.ParseSchema(sdl, NewResolver(zap.NewNop(), nil))
		assert.Error(t, err)
	})
}

func TestGetBooksEmpty(t *testing.T) {
	schema := newTestSchema(t, NewFakeBookStorage(), nil)
	data, resp := exec(t, schema, `{ getBooks { id title } }`, nil)
	require.Empty(t, resp.Errors)
	assert.Equal(t, []interface{}{}, data["getBooks"])
}

func TestGetBookUnknownIsNull(t *testing.T) {
	store := NewFakeBookStorage()
	schema := newTestSchema(t, store, nil)
	data, resp := exec(t, schema, `{ getBook(id: "42") { id } }`, nil)
	assert.Empty(t, resp.Errors)
	v, ok := data["getBook"]
	assert.True(t, ok)
	assert.Nil(t, v)
	assert.Equal(t, 1, store.Calls("GetOne"))
}

func TestAddThenGetBook(t *testing.T) {
	testCases := []struct {
		name  string
		query string
		year  interface{}
	}{
		{"with year", `mutation { addBook(title: "Go", author: "Pike", publishedYear: 2015) { id } }`, float64(2015)},
		{"without year", `mutation { addBook(title: "Go", author: "Pike") { id } }`, nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			schema := newTestSchema(t, NewFakeBookStorage(), nil)
			data, resp := exec(t, schema, tc.query, nil)
			require.Empty(t, resp.Errors)
			id := data["addBook"].(map[string]interface{})["id"].(string)

			data, resp = exec(t, schema, `query($id: ID!) { getBook(id: $id) { id title author publishedYear } }`,
				map[string]interface{}{"id": id})
			require.Empty(t, resp.Errors)
			assert.Equal(t, map[string]interface{}{
				"id":            id,
				"title":         "Go",
				"author":        "Pike",
				"publishedYear": tc.year,
			}, data["getBook"])
		})
	}
}

func TestDeleteBookUnknownAndTwice(t *testing.T) {
	store := NewFakeBookStorage()
	schema := newTestSchema(t, store, nil)
	for i := 0; i < 2; i++ {
		data, resp := exec(t, schema, `mutation { deleteBook(id: "7") }`, nil)
		require.Empty(t, resp.Errors)
		assert.Equal(t, "Book with id 7 deleted.", data["deleteBook"])
	}
	data, resp := exec(t, schema, `{ getBook(id: "7") { id } }`, nil)
	assert.Empty(t, resp.Errors)
	assert.Nil(t, data["getBook"])
	assert.Equal(t, 2, store.Calls("Delete"))
}

// TestDuneScenario walks a book through creation, retrieval and deletion.
func TestDuneScenario(t *testing.T) {
	schema := newTestSchema(t, NewFakeBookStorage(), nil)

	data, resp := exec(t, schema,
		`mutation { addBook(title: "Dune", author: "Herbert", publishedYear: 1965) { id title author publishedYear } }`, nil)
	require.Empty(t, resp.Errors)
	created := data["addBook"].(map[string]interface{})
	id := created["id"].(string)
	assert.NotEmpty(t, id)
	assert.Equal(t, "Dune", created["title"])
	assert.Equal(t, "Herbert", created["author"])
	assert.Equal(t, float64(1965), created["publishedYear"])

	data, resp = exec(t, schema, `query($id: ID!) { getBook(id: $id) { id title author publishedYear } }`,
		map[string]interface{}{"id": id})
	require.Empty(t, resp.Errors)
	assert.Equal(t, created, data["getBook"])

	data, resp = exec(t, schema, `mutation($id: ID!) { deleteBook(id: $id) }`, map[string]interface{}{"id": id})
	require.Empty(t, resp.Errors)
	assert.Equal(t, "Book with id "+id+" deleted.", data["deleteBook"])

	data, resp = exec(t, schema, `query($id: ID!) { getBook(id: $id) { id } }`, map[string]interface{}{"id": id})
	require.Empty(t, resp.Errors)
	assert.Nil(t, data["getBook"])
}

func TestGetBooksListsAll(t *testing.T) {
	schema := newTestSchema(t, NewFakeBookStorage(), nil)
	for _, title := range []string{"A", "B", "C"} {
		_, resp := exec(t, schema, `mutation($t: String!) { addBook(title: $t, author: "X") { id } }`,
			map[string]interface{}{"t": title})
		require.Empty(t, resp.Errors)
	}
	data, resp := exec(t, schema, `{ getBooks { title } }`, nil)
	require.Empty(t, resp.Errors)
	assert.Len(t, data["getBooks"], 3)
}

// TestSchemaValidation ensures malformed requests never reach the store.
func TestSchemaValidation(t *testing.T) {
	testCases := []struct {
		name  string
		query string
	}{
		{"unknown field", `{ getBooks { isbn } }`},
		{"unknown operation", `{ listBooks { id } }`},
		{"missing required argument", `mutation { addBook(title: "Dune") { id } }`},
		{"wrong argument type", `mutation { addBook(title: "Dune", author: "Herbert", publishedYear: "1965") { id } }`},
		{"missing id", `{ getBook { id } }`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			mockRepo := &MockBookStorage{
				GetAllFunc: func(ctx context.Context) ([]Book, error) { calls++; return nil, nil },
				GetOneFunc: func(ctx context.Context, id string) (*Book, error) { calls++; return nil, nil },
				AddFunc:    func(ctx context.Context, input NewBookInput) (Book, error) { calls++; return Book{}, nil },
				DeleteFunc: func(ctx context.Context, id string) error { calls++; return nil },
			}
			schema := newTestSchema(t, mockRepo, nil)
			_, resp := exec(t, schema, tc.query, nil)
			assert.NotEmpty(t, resp.Errors)
			assert.Equal(t, 0, calls)
		})
	}
}

// TestStoreFailure ensures store errors surface as field errors carrying the failure code.
func TestStoreFailure(t *testing.T) {
	storeErr := errors.New("connection refused")
	mockRepo := &MockBookStorage{
		GetAllFunc: func(ctx context.Context) ([]Book, error) { return nil, storeErr },
		GetOneFunc: func(ctx context.Context, id string) (*Book, error) { return nil, storeErr },
		AddFunc:    func(ctx context.Context, input NewBookInput) (Book, error) { return Book{}, storeErr },
		DeleteFunc: func(ctx context.Context, id string) error { return storeErr },
	}
	queue := &MockQueue{}
	schema := newTestSchema(t, mockRepo, queue)

	testCases := []struct {
		op    string
		query string
	}{
		{"getBooks", `{ getBooks { id } }`},
		{"getBook", `{ getBook(id: "1") { id } }`},
		{"addBook", `mutation { addBook(title: "Dune", author: "Herbert") { id } }`},
		{"deleteBook", `mutation { deleteBook(id: "1") }`},
	}

	for _, tc := range testCases {
		t.Run(tc.op, func(t *testing.T) {
			data, resp := exec(t, schema, tc.query, nil)
			require.Len(t, resp.Errors, 1)
			assert.True(t, strings.Contains(resp.Errors[0].Message, "connection refused"))
			assert.Equal(t, StoreFailureCode, resp.Errors[0].Extensions["code"])
			assert.Equal(t, tc.op, resp.Errors[0].Extensions["operation"])
			assert.Nil(t, data[tc.op])
		})
	}
	assert.Empty(t, queue.Events())
}

func TestStoreError(t *testing.T) {
	inner := errors.New("boom")
	err := error(&StoreError{Op: "getBook", Err: inner})
	assert.Equal(t, "getBook: boom", err.Error())
	assert.True(t, errors.Is(err, inner))
	var se *StoreError
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, map[string]interface{}{"code": StoreFailureCode, "operation": "getBook"}, se.Extensions())
}

func TestDeleteConfirmation(t *testing.T) {
	assert.Equal(t, "Book with id 12 deleted.", DeleteConfirmation("12"))
}
