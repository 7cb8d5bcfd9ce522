package main

import (
	"fmt"
	"strings"

	"github.com/graph-gophers/graphql-go"
	"go.uber.org/zap"
)

// OperationKind tells on which root type an operation is exposed.
type OperationKind int

const (
	QueryOperation OperationKind = iota
	MutationOperation
)

// RootType returns the name of the root object type hosting the operation.
func (k OperationKind) RootType() string {
	if k == MutationOperation {
		return "Mutation"
	}
	return "Query"
}

// Argument is a single named and typed operation argument.
type Argument struct {
	Name string
	Type string
}

// Operation is one root field of the schema. Each of them must be
// backed by a method of the same name on *Resolver.
type Operation struct {
	Kind      OperationKind
	Name      string
	Arguments []Argument
	Result    string
}

// field renders the operation as an SDL field definition.
func (op Operation) field() string {
	var b strings.Builder
	b.WriteString(op.Name)
	if len(op.Arguments) > 0 {
		args := make([]string, 0, len(op.Arguments))
		for _, a := range op.Arguments {
			args = append(args, a.Name+": "+a.Type)
		}
		b.WriteString("(" + strings.Join(args, ", ") + ")")
	}
	b.WriteString(": " + op.Result)
	return b.String()
}

const bookTypeSDL = `type Book {
  id: ID!
  title: String!
  author: String!
  publishedYear: Int
}`

// BookOperations is the complete list of operations the API serves.
var BookOperations = []Operation{
	{Kind: QueryOperation, Name: "getBooks", Result: "[Book]"},
	{
		Kind:      QueryOperation,
		Name:      "getBook",
		Arguments: []Argument{{"id", "ID!"}},
		Result:    "Book",
	},
	{
		Kind: MutationOperation,
		Name: "addBook",
		Arguments: []Argument{
			{"title", "String!"},
			{"author", "String!"},
			{"publishedYear", "Int"},
		},
		Result: "Book",
	},
	{
		Kind:      MutationOperation,
		Name:      "deleteBook",
		Arguments: []Argument{{"id", "ID!"}},
		Result:    "String",
	},
}

// BuildSchemaSDL renders the schema definition language document for a set of operations.
func BuildSchemaSDL(ops []Operation) string {
	roots := map[OperationKind][]string{}
	for _, op := range ops {
		roots[op.Kind] = append(roots[op.Kind], "  "+op.field())
	}

	var b strings.Builder
	b.WriteString("schema {\n  query: Query\n")
	if len(roots[MutationOperation]) > 0 {
		b.WriteString("  mutation: Mutation\n")
	}
	b.WriteString("}\n\n")
	b.WriteString(bookTypeSDL + "\n")
	for _, kind := range []OperationKind{QueryOperation, MutationOperation} {
		if len(roots[kind]) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\ntype %s {\n%s\n}\n", kind.RootType(), strings.Join(roots[kind], "\n"))
	}
	return b.String()
}

// NewSchema binds the book operations to the resolver. It fails when any
// declared field has no matching resolver method or argument field.
func NewSchema(logger *zap.Logger, config *GraphQLConfig, resolver *Resolver) (*graphql.Schema, error) {
	opts := []graphql.SchemaOpt{
		graphql.Logger(&panicLogger{logger: logger}),
	}
	if config != nil && config.MaxDepth > 0 {
		opts = append(opts, graphql.MaxDepth(config.MaxDepth))
	}
	if config != nil && config.MaxParallelism > 0 {
		opts = append(opts, graphql.MaxParallelism(config.MaxParallelism))
	}

	schema, err := graphql.ParseSchema(BuildSchemaSDL(BookOperations), resolver, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build graphql schema: %w", err)
	}
	return schema, nil
}
