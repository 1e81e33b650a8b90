package credential

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPAuthority_Verify(t *testing.T) {
	var got verifyRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/verify", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "shared-secret", r.Header.Get(ServiceSecretHeader))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		if got.Token == "good-token" {
			_, _ = w.Write([]byte(`{"valid":true,"identity":"user-1","quota":42}`))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"valid":false,"error":"unknown token"}`))
	}))
	defer server.Close()

	auth := NewHTTPAuthority(server.URL, "shared-secret", "hookrelay", time.Second)

	res, err := auth.Verify(context.Background(), "good-token", "hooks.create")
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, "user-1", res.Identity)
	require.NotNil(t, res.Quota)
	assert.Equal(t, int64(42), *res.Quota)

	assert.Equal(t, "hookrelay", got.Service)
	assert.Equal(t, "hooks.create", got.Operation)
	assert.Equal(t, 1, got.Quantity)

	res, err = auth.Verify(context.Background(), "bad-token", "hooks.create")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, "unknown token", res.Error)
}

func TestHTTPAuthority_VerifyServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	auth := NewHTTPAuthority(server.URL, "s", "hookrelay", time.Second)

	_, err := auth.Verify(context.Background(), "any", "hooks.list")
	assert.Error(t, err)
}

func TestHTTPAuthority_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	auth := NewHTTPAuthority(url, "s", "hookrelay", time.Second)
	cache := NewCache(auth, time.Minute, 10)

	res := cache.Verify(context.Background(), "any", "hooks.list")
	assert.False(t, res.Valid)
	assert.Equal(t, "credential service unavailable", res.Error)
}

func TestHTTPAuthority_ReportUsage(t *testing.T) {
	received := make(chan usageRequest, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/usage", r.URL.Path)
		assert.Equal(t, "shared-secret", r.Header.Get(ServiceSecretHeader))

		var body usageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		received <- body
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	auth := NewHTTPAuthority(server.URL, "shared-secret", "hookrelay", time.Second)

	err := auth.ReportUsage(context.Background(), []UsageRecord{{
		ID:        "rec-1",
		Identity:  "user-1",
		Operation: "hooks.list",
		Quantity:  1,
		Timestamp: time.Now().UTC(),
	}})
	require.NoError(t, err)

	body := <-received
	assert.Equal(t, "hookrelay", body.Service)
	require.Len(t, body.Records, 1)
	assert.Equal(t, "rec-1", body.Records[0].ID)
}

func TestHTTPAuthority_ReportUsageRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	auth := NewHTTPAuthority(server.URL, "wrong", "hookrelay", time.Second)
	err := auth.ReportUsage(context.Background(), []UsageRecord{{ID: "rec-1"}})
	assert.Error(t, err)
}
