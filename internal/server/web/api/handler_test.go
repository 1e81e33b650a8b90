package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/pandeptwidyaop/hookrelay/internal/db"
	"github.com/pandeptwidyaop/hookrelay/internal/db/models"
	"github.com/pandeptwidyaop/hookrelay/internal/server/config"
	"github.com/pandeptwidyaop/hookrelay/internal/server/credential"
	"github.com/pandeptwidyaop/hookrelay/internal/server/events"
	"github.com/pandeptwidyaop/hookrelay/internal/server/hooks"
	"github.com/pandeptwidyaop/hookrelay/internal/server/ingest"
	pkgerrors "github.com/pandeptwidyaop/hookrelay/pkg/errors"
)

const (
	tokenA = "token-alice"
	tokenB = "token-bob"
)

// staticVerifier accepts a fixed set of tokens.
type staticVerifier map[string]string

func (v staticVerifier) Verify(ctx context.Context, token, operation string) credential.Result {
	if identity, ok := v[token]; ok {
		return credential.Result{Valid: true, Identity: identity}
	}
	return credential.Result{Valid: false, Error: "Invalid token"}
}

func (v staticVerifier) RecordCall(identity, operation string) {}

type testServer struct {
	db      *gorm.DB
	handler http.Handler
	store   *events.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	database, err := db.Connect(db.Config{Driver: "sqlite", Database: ":memory:", LogLevel: "silent"})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(database))

	cfg := &config.Config{
		Server:  config.ServerConfig{PublicURL: "http://relay.test"},
		Logging: config.LoggingConfig{HTTPLevel: "silent"},
	}

	registry := hooks.NewRegistry(database)
	store := events.NewStore(database)
	pipeline := ingest.NewPipeline(registry, store, nil, ingest.Options{})
	verifier := staticVerifier{tokenA: "alice", tokenB: "bob"}

	h := NewHandler(database, registry, store, pipeline, verifier, nil, cfg)
	return &testServer{db: database, handler: h.Router(), store: store}
}

func (s *testServer) do(t *testing.T, method, path, token string, body []byte) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type hookJSON struct {
	ID             string          `json:"id"`
	Name           *string         `json:"name"`
	DeliveryMethod string          `json:"delivery_method"`
	DeliveryConfig json.RawMessage `json:"delivery_config"`
	WebhookURL     string          `json:"webhook_url"`
	EventCount     int64           `json:"event_count"`
}

type eventJSON struct {
	ID          string          `json:"id"`
	Method      string          `json:"method"`
	Body        json.RawMessage `json:"body"`
	DeliveredAt *time.Time      `json:"delivered_at"`
}

type pollJSON struct {
	Events  []eventJSON `json:"events"`
	Count   int         `json:"count"`
	HasMore bool        `json:"has_more"`
}

func (s *testServer) createHook(t *testing.T, token string, body string) hookJSON {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/hooks", token, []byte(body))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[hookJSON](t, rec)
}

func TestRespondJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	respondJSON(rec, http.StatusOK, map[string]string{"message": "test"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "test", decode[map[string]string](t, rec)["message"])
}

func TestRespondError(t *testing.T) {
	rec := httptest.NewRecorder()
	respondError(rec, http.StatusBadRequest, "invalid input")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid input", decode[map[string]string](t, rec)["error"])
}

func TestRespondServiceError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantMessage string
	}{
		{"forbidden", fmt.Errorf("get: %w", pkgerrors.ErrForbidden), http.StatusForbidden, "Forbidden"},
		{"not found", pkgerrors.ErrHookNotFound, http.StatusNotFound, "Hook not found"},
		{"storage", pkgerrors.Storage("failed to list hooks", errors.New("database is locked")), http.StatusInternalServerError, "Failed to list hooks"},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError, "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			respondServiceError(rec, tt.err, "Failed to list hooks")

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decode[map[string]string](t, rec)
			assert.Equal(t, tt.wantMessage, body["error"])
			assert.NotContains(t, rec.Body.String(), "database is locked")
		})
	}
}

// TestCreateIngestPoll walks a hook from creation through ingestion to polling.
func TestCreateIngestPoll(t *testing.T) {
	s := newTestServer(t)

	hook := s.createHook(t, tokenA, `{}`)
	assert.Equal(t, "poll", hook.DeliveryMethod)
	assert.Len(t, hook.ID, 12)
	assert.Equal(t, "http://relay.test/webhook/"+hook.ID, hook.WebhookURL)

	payload := `{"order":{"id":42,"items":["a","b"]},"paid":true}`
	rec := s.do(t, http.MethodPost, "/webhook/"+hook.ID, "", []byte(payload))
	require.Equal(t, http.StatusOK, rec.Code)
	receipt := decode[map[string]interface{}](t, rec)
	assert.Equal(t, true, receipt["received"])
	eventID, _ := receipt["event_id"].(string)
	assert.Len(t, eventID, 16)

	rec = s.do(t, http.MethodGet, "/hooks/"+hook.ID+"/events", tokenA, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[pollJSON](t, rec)
	require.Len(t, page.Events, 1)
	assert.Equal(t, 1, page.Count)
	assert.False(t, page.HasMore)
	assert.Equal(t, eventID, page.Events[0].ID)
	assert.Equal(t, http.MethodPost, page.Events[0].Method)
	assert.JSONEq(t, payload, string(page.Events[0].Body))
	assert.NotNil(t, page.Events[0].DeliveredAt)

	rec = s.do(t, http.MethodGet, "/hooks/"+hook.ID+"/events?undelivered=true", tokenA, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page = decode[pollJSON](t, rec)
	assert.Empty(t, page.Events)
	assert.Equal(t, 0, page.Count)

	rec = s.do(t, http.MethodGet, "/hooks/"+hook.ID, tokenA, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), decode[hookJSON](t, rec).EventCount)
}

func TestPollWithoutMarking(t *testing.T) {
	s := newTestServer(t)
	hook := s.createHook(t, tokenA, `{}`)

	for i := 0; i < 3; i++ {
		rec := s.do(t, http.MethodPut, "/webhook/"+hook.ID, "", []byte(`{"n":1}`))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := s.do(t, http.MethodGet, "/hooks/"+hook.ID+"/events?mark_delivered=false&limit=2", tokenA, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[pollJSON](t, rec)
	assert.Equal(t, 2, page.Count)
	assert.True(t, page.HasMore)
	for _, e := range page.Events {
		assert.Nil(t, e.DeliveredAt)
	}

	rec = s.do(t, http.MethodGet, "/hooks/"+hook.ID+"/events?undelivered=true&limit=500", tokenA, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page = decode[pollJSON](t, rec)
	assert.Equal(t, 3, page.Count)
	assert.False(t, page.HasMore)
}

func TestPoll_ReportsStoredDeliveryTime(t *testing.T) {
	s := newTestServer(t)
	hook := s.createHook(t, tokenA, `{}`)

	rec := s.do(t, http.MethodPost, "/webhook/"+hook.ID, "", []byte(`{}`))
	require.Equal(t, http.StatusOK, rec.Code)
	eventID, _ := decode[map[string]interface{}](t, rec)["event_id"].(string)
	require.NotEmpty(t, eventID)

	// Another poller marks the event between this poll's read and its own mark.
	earlier := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var once sync.Once
	err := s.db.Callback().Update().Before("gorm:update").Register("test:concurrent_mark", func(tx *gorm.DB) {
		if tx.Statement.Table != "events" {
			return
		}
		once.Do(func() {
			tx.Session(&gorm.Session{NewDB: true}).
				Exec("UPDATE events SET delivered_at = ? WHERE id = ?", earlier, eventID)
		})
	})
	require.NoError(t, err)

	rec = s.do(t, http.MethodGet, "/hooks/"+hook.ID+"/events", tokenA, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[pollJSON](t, rec)
	require.Len(t, page.Events, 1)
	require.NotNil(t, page.Events[0].DeliveredAt)
	assert.True(t, page.Events[0].DeliveredAt.Equal(earlier), "got %s", page.Events[0].DeliveredAt)

	var stored models.Event
	require.NoError(t, s.db.First(&stored, "id = ?", eventID).Error)
	require.NotNil(t, stored.DeliveredAt)
	assert.True(t, stored.DeliveredAt.Equal(*page.Events[0].DeliveredAt))
}

func TestCreateHook_Options(t *testing.T) {
	s := newTestServer(t)

	t.Run("push message with config", func(t *testing.T) {
		hook := s.createHook(t, tokenA, `{"name":"orders","delivery_method":"push-message","delivery_config":{"recipient":"r1"}}`)
		assert.Equal(t, "push-message", hook.DeliveryMethod)
		require.NotNil(t, hook.Name)
		assert.Equal(t, "orders", *hook.Name)
		assert.JSONEq(t, `{"recipient":"r1"}`, string(hook.DeliveryConfig))
	})

	t.Run("unknown method falls back to poll", func(t *testing.T) {
		hook := s.createHook(t, tokenA, `{"delivery_method":"carrier-pigeon"}`)
		assert.Equal(t, "poll", hook.DeliveryMethod)
	})

	t.Run("malformed body yields default hook", func(t *testing.T) {
		hook := s.createHook(t, tokenA, `{"name": "broken`)
		assert.Equal(t, "poll", hook.DeliveryMethod)
		assert.Nil(t, hook.Name)
	})

	t.Run("empty body yields default hook", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/hooks", tokenA, nil)
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "poll", decode[hookJSON](t, rec).DeliveryMethod)
	})
}

func TestListHooks_ScopedToOwner(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/hooks", tokenA, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())

	first := s.createHook(t, tokenA, `{}`)
	s.createHook(t, tokenB, `{}`)

	rec = s.do(t, http.MethodGet, "/hooks", tokenA, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]hookJSON](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, first.WebhookURL, list[0].WebhookURL)
}

func TestOwnership(t *testing.T) {
	s := newTestServer(t)
	hook := s.createHook(t, tokenA, `{}`)

	tests := []struct {
		name       string
		method     string
		path       string
		token      string
		wantStatus int
	}{
		{"get by non-owner", http.MethodGet, "/hooks/" + hook.ID, tokenB, http.StatusForbidden},
		{"poll by non-owner", http.MethodGet, "/hooks/" + hook.ID + "/events", tokenB, http.StatusForbidden},
		{"delete by non-owner looks missing", http.MethodDelete, "/hooks/" + hook.ID, tokenB, http.StatusNotFound},
		{"get unknown", http.MethodGet, "/hooks/doesnotexist", tokenA, http.StatusNotFound},
		{"poll unknown", http.MethodGet, "/hooks/doesnotexist/events", tokenA, http.StatusNotFound},
		{"delete unknown", http.MethodDelete, "/hooks/doesnotexist", tokenA, http.StatusNotFound},
		{"get by owner", http.MethodGet, "/hooks/" + hook.ID, tokenA, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.token, nil)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
		})
	}
}

func TestDeleteHook(t *testing.T) {
	s := newTestServer(t)
	hook := s.createHook(t, tokenA, `{}`)

	rec := s.do(t, http.MethodPost, "/webhook/"+hook.ID, "", []byte(`{}`))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodDelete, "/hooks/"+hook.ID, tokenA, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode[map[string]bool](t, rec)["success"])

	var remaining int64
	require.NoError(t, s.db.Model(&models.Event{}).Where("hook_id = ?", hook.ID).Count(&remaining).Error)
	assert.Zero(t, remaining)

	rec = s.do(t, http.MethodGet, "/hooks/"+hook.ID, tokenA, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	paths := []struct{ method, path string }{
		{http.MethodPost, "/hooks"},
		{http.MethodGet, "/hooks"},
		{http.MethodGet, "/hooks/abc"},
		{http.MethodDelete, "/hooks/abc"},
		{http.MethodGet, "/hooks/abc/events"},
	}

	for _, p := range paths {
		t.Run(p.method+" "+p.path, func(t *testing.T) {
			rec := s.do(t, p.method, p.path, "", nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)

			rec = s.do(t, p.method, p.path, "not-a-token", nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "Invalid token", decode[map[string]string](t, rec)["error"])
		})
	}
}

func TestReceiveWebhook_UnknownHook(t *testing.T) {
	s := newTestServer(t)

	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions} {
		t.Run(method, func(t *testing.T) {
			rec := s.do(t, method, "/webhook/unknownhook1", "", []byte(`{"a":1}`))
			require.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, `{"received":true}`, rec.Body.String())
		})
	}

	var count int64
	require.NoError(t, s.db.Model(&models.Event{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestReceiveWebhook_CapturesRequest(t *testing.T) {
	s := newTestServer(t)
	hook := s.createHook(t, tokenA, `{}`)

	req := httptest.NewRequest(http.MethodPost, "/webhook/"+hook.ID+"?source=github&source=gitlab", strings.NewReader("plain text"))
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	req.Header.Set("X-GitHub-Event", "push")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := s.store.ListByHook(context.Background(), hook.ID, 10, false)
	require.NoError(t, err)
	require.Len(t, stored, 1)

	event := stored[0]
	require.NotNil(t, event.Body)
	assert.Equal(t, "plain text", *event.Body)
	require.NotNil(t, event.SourceIP)
	assert.Equal(t, "203.0.113.7", *event.SourceIP)
	require.NotNil(t, event.QueryParams)
	assert.JSONEq(t, `{"source":"github"}`, string(*event.QueryParams))
	assert.Contains(t, string(event.Headers), `"x-github-event":"push"`)
}

func TestHealthAndVersion(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[map[string]string](t, rec)["status"])

	rec = s.do(t, http.MethodGet, "/version", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode[map[string]string](t, rec)["version"])

	sqlDB, err := s.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	rec = s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRouter_MiddlewareChain(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/hooks", tokenA, nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	req := httptest.NewRequest(http.MethodOptions, "/hooks/abc/events", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}
