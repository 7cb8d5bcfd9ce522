package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/graph-gophers/graphql-go"
	gqlerrors "github.com/graph-gophers/graphql-go/errors"
	"github.com/julienschmidt/httprouter"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
	"go.uber.org/zap"
)

const maxGraphQLBodySize = 1 << 20

var (
	errMissingQuery      = errors.New("Must provide query string.")
	errMutationOverGET   = errors.New("Can only perform a mutation operation from a POST request.")
	errInvalidVariables  = errors.New("Variables are invalid JSON.")
	errUnsupportedFormat = errors.New("Unsupported content type, expecting application/json or application/graphql.")
	errUnparsableQuery   = errors.New("Query could not be parsed.")
)

// GraphQLRequest is the body of a graphql http request.
type GraphQLRequest struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName"`
	Variables     map[string]interface{} `json:"variables"`
}

// ExecuteGraphQL serves POST requests. Bodies are either json encoded
// GraphQLRequest or a raw document with the application/graphql type.
func (api *APIHandler) ExecuteGraphQL(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetRequestIDFromContext(r.Context())
	req, err := DecodeGraphQLRequestBody(r)
	if err != nil {
		api.logger.Error("failed to decode graphql request", zap.String("request.id", requestID), zap.Error(err))
		api.writeGraphQLError(w, r, http.StatusBadRequest, err)
		return
	}
	if req.Query == "" {
		api.writeGraphQLError(w, r, http.StatusBadRequest, errMissingQuery)
		return
	}
	api.execute(w, r, req)
}

// QueryGraphQL serves GET requests. Without a query it shows the GraphiQL
// page when enabled. Mutations are refused since GET must stay safe.
func (api *APIHandler) QueryGraphQL(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	requestID := GetRequestIDFromContext(r.Context())
	q := r.URL.Query()
	req := GraphQLRequest{
		Query:         q.Get("query"),
		OperationName: q.Get("operationName"),
	}

	if req.Query == "" {
		if api.playground != nil {
			api.playground.ServeHTTP(w, r)
			return
		}
		api.writeGraphQLError(w, r, http.StatusBadRequest, errMissingQuery)
		return
	}

	if raw := q.Get("variables"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Variables); err != nil {
			api.logger.Error("invalid graphql variables", zap.String("request.id", requestID), zap.Error(err))
			api.writeGraphQLError(w, r, http.StatusBadRequest, errInvalidVariables)
			return
		}
	}

	mutation, err := IsMutationRequest(req.Query, req.OperationName)
	if err != nil {
		api.logger.Info("refused unparsable graphql query over GET", zap.String("request.id", requestID), zap.Error(err))
		api.writeGraphQLError(w, r, http.StatusBadRequest, errUnparsableQuery)
		return
	}
	if mutation {
		w.Header().Set("Allow", http.MethodPost)
		api.writeGraphQLError(w, r, http.StatusMethodNotAllowed, errMutationOverGET)
		return
	}
	api.execute(w, r, req)
}

func (api *APIHandler) execute(w http.ResponseWriter, r *http.Request, req GraphQLRequest) {
	requestID := GetRequestIDFromContext(r.Context())
	resp := api.schema.Exec(r.Context(), req.Query, req.OperationName, req.Variables)
	if len(resp.Errors) > 0 {
		api.logger.Info("graphql request completed with errors",
			zap.String("request.id", requestID),
			zap.String("graphql.operation", req.OperationName),
			zap.Int("graphql.errors", len(resp.Errors)),
		)
	}
	if err := abortIfDone(r.Context(), w); err != nil {
		api.logger.Error("graphql request aborted", zap.String("request.id", requestID), zap.Error(err))
		return
	}
	if err := writeJSON(w, http.StatusOK, resp); err != nil {
		api.logger.Error("failed to send graphql response", zap.String("request.id", requestID), zap.Error(err))
	}
}

func (api *APIHandler) writeGraphQLError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if aerr := abortIfDone(r.Context(), w); aerr != nil {
		return
	}
	resp := &graphql.Response{Errors: []*gqlerrors.QueryError{{Message: err.Error()}}}
	if werr := writeJSON(w, status, resp); werr != nil {
		api.logger.Error("failed to send graphql error response",
			zap.String("request.id", GetRequestIDFromContext(r.Context())),
			zap.Error(werr),
		)
	}
}

// DecodeGraphQLRequestBody reads a graphql request out of a POST body.
func DecodeGraphQLRequestBody(r *http.Request) (GraphQLRequest, error) {
	var req GraphQLRequest
	if r.Body == nil {
		return req, errMissingQuery
	}
	body := io.LimitReader(r.Body, maxGraphQLBodySize)

	mediaType := "application/json"
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil {
			return req, errUnsupportedFormat
		}
		mediaType = mt
	}

	switch mediaType {
	case "application/json":
		if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			return req, fmt.Errorf("POST body sent invalid JSON: %w", err)
		}
	case "application/graphql":
		doc, err := io.ReadAll(body)
		if err != nil {
			return req, err
		}
		req.Query = string(doc)
	default:
		return req, errUnsupportedFormat
	}
	return req, nil
}

// IsMutationRequest tells whether the operation selected by name in the
// document is a mutation. When no operation matches the name, any
// mutation in the document counts. Parsing failures are returned so
// callers can refuse documents they cannot classify.
func IsMutationRequest(query, operationName string) (bool, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: query})
	if err != nil {
		return false, err
	}
	if op := doc.Operations.ForName(operationName); op != nil {
		return op.Operation == ast.Mutation, nil
	}
	for _, op := range doc.Operations {
		if op.Operation == ast.Mutation {
			return true, nil
		}
	}
	return false, nil
}
