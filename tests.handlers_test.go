package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// This file contains unit tests for the core and ops handlers.

func decodeAPIResponse(t *testing.T, res *http.Response) map[string]interface{} {
	t.Helper()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Equal(t, "application/json; charset=UTF-8", res.Header.Get("Content-Type"))
	m := make(map[string]interface{})
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

// TestStatusHandler ensures api handler can provides its status.
func TestStatusHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	api := newTestAPIHandler(t, nil, NewFakeBookStorage(), nil)
	api.stats.started = NewMockClocker().Now()
	api.Status(w, req, httprouter.Params{})
	res := w.Result()
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	m := decodeAPIResponse(t, res)
	_, ok := m["requestid"]
	assert.True(t, ok)
	assert.Equal(t, "Hello. Books graphql api is available. Enjoy :)", m["message"])
	assert.Equal(t, map[string]interface{}{"uptime": "0s", "graphql": "/graphql"}, m["data"])
}

func TestIndexHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	api := newTestAPIHandler(t, nil, NewFakeBookStorage(), nil)
	api.Index(w, req, httprouter.Params{})
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/status", w.Header().Get("Location"))
}

func TestNotFoundHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/books", nil)
	w := httptest.NewRecorder()
	api := newTestAPIHandler(t, nil, NewFakeBookStorage(), nil)
	api.NotFound().ServeHTTP(w, req)
	res := w.Result()
	defer res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	m := decodeAPIResponse(t, res)
	assert.Equal(t, "the requested resource does not exist", m["message"])
}

// TestMaintenanceHandler ensures the mode can be switched on and off.
func TestMaintenanceHandler(t *testing.T) {
	api := newTestAPIHandler(t, nil, NewFakeBookStorage(), nil)

	testCases := []struct {
		name    string
		target  string
		code    int
		enabled bool
	}{
		{"show mode", "/ops/maintenance", http.StatusOK, false},
		{"enable mode", "/ops/maintenance?status=enable&msg=upgrading", http.StatusOK, true},
		{"show enabled mode", "/ops/maintenance", http.StatusOK, true},
		{"invalid status", "/ops/maintenance?status=on", http.StatusBadRequest, true},
		{"disable mode", "/ops/maintenance?status=disable", http.StatusOK, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			api.Maintenance(w, httptest.NewRequest(http.MethodGet, tc.target, nil), httprouter.Params{})
			assert.Equal(t, tc.code, w.Code)
			assert.Equal(t, tc.enabled, api.mode.enabled.Load())
		})
	}
}

func TestGetStatisticsHandler(t *testing.T) {
	api := newTestAPIHandler(t, nil, NewFakeBookStorage(), nil)
	api.stats.called = 3
	api.stats.status[http.StatusOK] = 2
	w := httptest.NewRecorder()
	api.GetStatistics(w, httptest.NewRequest(http.MethodGet, "/ops/stats", nil), httprouter.Params{})
	res := w.Result()
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	m := decodeAPIResponse(t, res)
	data, ok := m["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(2), data["called"])
	assert.Equal(t, map[string]interface{}{"200": float64(2)}, data["status"])
}

// TestGetConfigsHandler ensures secrets are never sent back.
func TestGetConfigsHandler(t *testing.T) {
	config := &Config{Postgres: PostgresConfig{Host: "db", Password: "secret"}, Redis: RedisConfig{Password: "secret"}}
	api := newTestAPIHandler(t, config, NewFakeBookStorage(), nil)
	w := httptest.NewRecorder()
	api.GetConfigs(w, httptest.NewRequest(http.MethodGet, "/ops/configs", nil), httprouter.Params{})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "secret")
	assert.Contains(t, w.Body.String(), `"Host":"db"`)
}

func TestListEventsHandler(t *testing.T) {
	t.Run("should fail: feed disabled", func(t *testing.T) {
		api := newTestAPIHandler(t, nil, NewFakeBookStorage(), nil)
		w := httptest.NewRecorder()
		api.ListEvents(w, httptest.NewRequest(http.MethodGet, "/ops/events", nil), httprouter.Params{})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	archive := &MockArchive{}
	for _, id := range []string{"1", "2", "3"} {
		_, _ = archive.Append(BookEvent{Kind: BookCreated, BookID: id})
	}
	api := newTestAPIHandler(t, nil, NewFakeBookStorage(), archive)

	t.Run("should pass: limited listing", func(t *testing.T) {
		w := httptest.NewRecorder()
		api.ListEvents(w, httptest.NewRequest(http.MethodGet, "/ops/events?limit=2", nil), httprouter.Params{})
		res := w.Result()
		defer res.Body.Close()
		assert.Equal(t, http.StatusOK, res.StatusCode)
		m := decodeAPIResponse(t, res)
		assert.Equal(t, float64(2), m["total"])
		events, ok := m["data"].([]interface{})
		require.True(t, ok)
		assert.Equal(t, "2", events[0].(map[string]interface{})["bookId"])
	})

	t.Run("should fail: invalid limit", func(t *testing.T) {
		w := httptest.NewRecorder()
		api.ListEvents(w, httptest.NewRequest(http.MethodGet, "/ops/events?limit=x", nil), httprouter.Params{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("should fail: archive error", func(t *testing.T) {
		archive.ListErr = errors.New("bolt closed")
		defer func() { archive.ListErr = nil }()
		w := httptest.NewRecorder()
		api.ListEvents(w, httptest.NewRequest(http.MethodGet, "/ops/events", nil), httprouter.Params{})
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestHealthHandler(t *testing.T) {
	t.Run("should pass: database up", func(t *testing.T) {
		api := newTestAPIHandler(t, nil, NewFakeBookStorage(), nil)
		w := httptest.NewRecorder()
		api.Health(w, httptest.NewRequest(http.MethodGet, "/ops/health", nil), httprouter.Params{})
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("should fail: database down", func(t *testing.T) {
		mockRepo := &MockBookStorage{
			PingFunc: func(ctx context.Context) error { return errors.New("connection refused") },
		}
		api := newTestAPIHandler(t, nil, mockRepo, nil)
		w := httptest.NewRecorder()
		api.Health(w, httptest.NewRequest(http.MethodGet, "/ops/health", nil), httprouter.Params{})
		res := w.Result()
		defer res.Body.Close()
		assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
		m := decodeAPIResponse(t, res)
		assert.Equal(t, map[string]interface{}{"database": "down"}, m["data"])
	})
}
