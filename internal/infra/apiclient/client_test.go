package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yanqian/cashtags/internal/domain/auth"
	"github.com/yanqian/cashtags/internal/domain/summarizer"
	"github.com/yanqian/cashtags/internal/domain/summarysession"
)

func TestOpenStreamSendsBearerAndReturnsBody(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/summary", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var req summarizer.Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "AAPL", req.Ticker)
		require.True(t, req.IsTopic)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "streamed text")
	}))
	defer srv.Close()

	body, err := New(srv.URL, time.Second).OpenStream(context.Background(), "tok", summarizer.Request{Ticker: "AAPL", IsTopic: true})
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	require.Equal(t, "streamed text", string(data))
}

func TestOpenStreamDecodesErrorShapes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		status  int
		body    string
		code    string
		message string
	}{
		{name: "structured", status: http.StatusBadGateway, body: `{"error":{"code":"llm_error","message":"summary stream failed"}}`, code: "llm_error", message: "summary stream failed"},
		{name: "flat", status: http.StatusBadRequest, body: `{"error":"Missing posts or ticker"}`, message: "Missing posts or ticker"},
		{name: "plain text", status: http.StatusInternalServerError, body: "boom", message: "boom"},
		{name: "empty", status: http.StatusUnauthorized, message: "Unauthorized"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := New(srv.URL, time.Second).OpenStream(context.Background(), "tok", summarizer.Request{Ticker: "AAPL"})
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			require.Equal(t, tt.status, apiErr.Status)
			require.Equal(t, tt.code, apiErr.Code)
			require.Equal(t, tt.message, apiErr.Message)
		})
	}
}

func TestOpenStreamStopsOnCancel(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "first")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	body, err := New(srv.URL, time.Second).OpenStream(ctx, "tok", summarizer.Request{Ticker: "AAPL"})
	require.NoError(t, err)
	defer body.Close()

	buf := make([]byte, 5)
	_, err = io.ReadFull(body, buf)
	require.NoError(t, err)
	cancel()
	_, err = io.ReadAll(body)
	require.Error(t, err)
}

func TestNewsTopicPostsAndLogin(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/NVDA/news", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode([]summarizer.Post{{Hours: 2, Text: "Chips - Reuters (No description)"}})
	})
	mux.HandleFunc("/api/Crypto/topic-posts", func(w http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode([]summarizer.Post{{Hours: 1, Text: "agents"}})
	})
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req auth.LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Password != "secret-pass" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":{"code":"invalid_credentials","message":"invalid email or password"}}`)
			return
		}
		_ = json.NewEncoder(w).Encode(auth.TokenPair{Token: "tok", ExpiresIn: 3600})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	client := New(srv.URL+"/", time.Second)
	ctx := context.Background()

	news, err := client.News(ctx, "tok", "$NVDA")
	require.NoError(t, err)
	require.Len(t, news, 1)

	posts, err := client.TopicPosts(ctx, "Crypto")
	require.NoError(t, err)
	require.Equal(t, "agents", posts[0].Text)

	resp, err := client.Login(ctx, "a@example.com", "secret-pass")
	require.NoError(t, err)
	require.Equal(t, "tok", resp.Token)

	_, err = client.Login(ctx, "a@example.com", "wrong")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, "invalid_credentials", apiErr.Code)
}

func TestTokenStoreRoundTripAndExpiry(t *testing.T) {
	t.Parallel()
	store, err := NewTokenStore(filepath.Join(t.TempDir(), "nested", "token.json"))
	require.NoError(t, err)
	now := time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	_, err = store.Credential(context.Background())
	require.ErrorIs(t, err, summarysession.ErrNoCredential)

	require.NoError(t, store.Save(auth.TokenPair{Token: "tok", ExpiresIn: 60}))
	got, err := store.Credential(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tok", got)

	now = now.Add(time.Minute)
	_, err = store.Credential(context.Background())
	require.ErrorIs(t, err, summarysession.ErrNoCredential)
}
