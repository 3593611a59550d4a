package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/jmerrifield20/contentrisk/pkg/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ── Stub server ─────────────────────────────────────────────────────────

type stub struct {
	*httptest.Server
	tokenCalls atomic.Int32
	flakes     atomic.Int32
}

func newStub(t *testing.T) *stub {
	t.Helper()
	s := &stub{}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/auth/token", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			PrincipalID int64  `json:"principal_id"`
			Secret      string `json:"secret"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Secret != "letmein-please" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid credentials"}`))
			return
		}
		s.tokenCalls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-1", "expires_in": 3600})
	})

	requireToken := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer tok-1" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"Bearer access token required"}`))
				return
			}
			next(w, r)
		}
	}

	mux.HandleFunc("POST /api/v1/automod/messages", requireToken(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"allowed": false, "stage": "sender", "reasons": []string{"restricted"},
		})
	}))

	mux.HandleFunc("GET /api/v1/flags", requireToken(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "pending", r.URL.Query().Get("status"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"flags": []map[string]any{{"id": 3, "content_type": "ad", "content_id": 9, "status": "pending"}},
			"total": 1,
		})
	}))

	mux.HandleFunc("POST /api/v1/flags/{id}/review", requireToken(func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "3" {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"error":"flag already reviewed"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not found"}`))
	}))

	mux.HandleFunc("GET /api/v1/audit/subjects/{kind}/{id}", requireToken(func(w http.ResponseWriter, r *http.Request) {
		subject := r.PathValue("kind") + ":" + r.PathValue("id")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"subject": subject,
			"entries": []map[string]any{
				{"index": 4, "subject": subject, "action": "flag.created", "actor": "risk-engine"},
				{"index": 9, "subject": subject, "action": "flag.reviewed", "actor": "100"},
			},
		})
	}))

	mux.HandleFunc("GET /api/v1/users/{id}/reputation", func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		if s.flakes.Add(-1) >= 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"user_id": 10, "score": 85})
	})

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// ── Tests ────────────────────────────────────────────────────────────────

func TestClient_fetchesTokenOnce(t *testing.T) {
	s := newStub(t)
	c := client.MustNew(s.URL, client.WithCredentials(2, "letmein-please"))
	ctx := context.Background()

	v, err := c.AutoModMessage(ctx, &client.Message{SenderID: 42, Body: "hi"})
	require.NoError(t, err)
	assert.False(t, v.Allowed)
	assert.Equal(t, []string{"restricted"}, v.Reasons)

	page, err := c.ListFlags(ctx, "pending", 0, 50)
	require.NoError(t, err)
	require.Len(t, page.Flags, 1)
	assert.Equal(t, int64(3), page.Flags[0].ID)

	assert.Equal(t, int32(1), s.tokenCalls.Load())
}

func TestClient_badCredentials(t *testing.T) {
	s := newStub(t)
	c := client.MustNew(s.URL, client.WithCredentials(2, "wrong"))

	_, err := c.RiskSummary(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, client.ErrUnauthorized)
}

func TestClient_errorMapping(t *testing.T) {
	s := newStub(t)
	c := client.MustNew(s.URL, client.WithBearerToken("tok-1"))
	ctx := context.Background()

	f, err := c.ReviewFlag(ctx, 3, "approve")
	assert.Nil(t, f)
	assert.ErrorIs(t, err, client.ErrConflict)

	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "flag already reviewed", apiErr.Message)

	_, err = c.ReviewFlag(ctx, 4, "approve")
	assert.ErrorIs(t, err, client.ErrNotFound)
}

func TestClient_noTokenIsUnauthorized(t *testing.T) {
	s := newStub(t)
	c := client.MustNew(s.URL)
	_, err := c.ListFlags(context.Background(), "pending", 0, 10)
	assert.ErrorIs(t, err, client.ErrUnauthorized)
}

func TestClient_retriesServerErrors(t *testing.T) {
	s := newStub(t)
	s.flakes.Store(2)
	c := client.MustNew(s.URL, client.WithRetries(3))

	rep, err := c.Reputation(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, float64(85), rep.Score)
}

func TestClient_auditHistory(t *testing.T) {
	s := newStub(t)
	c := client.MustNew(s.URL, client.WithBearerToken("tok-1"))

	trail, err := c.AuditHistory(context.Background(), "ad", 11)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, "ad:11", trail[0].Subject)
	assert.Equal(t, "flag.reviewed", trail[1].Action)
	assert.Equal(t, "100", trail[1].Actor)
}

func TestWithCredentials_validates(t *testing.T) {
	_, err := client.New("http://x", client.WithCredentials(0, "s"))
	assert.Error(t, err)
}
