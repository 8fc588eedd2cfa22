package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yanqian/cashtags/internal/domain/auth"
	"github.com/yanqian/cashtags/internal/domain/summarizer"
)

type fakeAPI struct {
	*httptest.Server
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req auth.LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Password != "correct-horse" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":{"code":"invalid_credentials","message":"invalid email or password"}}`)
			return
		}
		_ = json.NewEncoder(w).Encode(auth.TokenPair{Token: "tok", ExpiresIn: 3600, User: auth.Profile{Nickname: "trader", Tier: "FREE"}})
	})
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/news"):
			if r.Header.Get("Authorization") != "Bearer tok" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_ = json.NewEncoder(w).Encode([]summarizer.Post{{Hours: 1, Text: "headline"}})
		case strings.HasSuffix(r.URL.Path, "/topic-posts"):
			_ = json.NewEncoder(w).Encode([]summarizer.Post{{Hours: 2, Text: "topic post"}})
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("/api/summary", func(w http.ResponseWriter, r *http.Request) {
		var req summarizer.Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		flusher := w.(http.Flusher)
		switch req.Ticker {
		case "FAIL":
			w.WriteHeader(http.StatusBadGateway)
			_, _ = io.WriteString(w, `{"error":{"code":"llm_error","message":"summary stream failed"}}`)
		case "SLOW":
			_, _ = io.WriteString(w, "never finishes")
			flusher.Flush()
			<-r.Context().Done()
		default:
			_, _ = io.WriteString(w, "**"+req.Ticker+"** is ")
			flusher.Flush()
			_, _ = io.WriteString(w, "trending\nwith more to come")
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &fakeAPI{Server: srv}
}

func runCLI(t *testing.T, api *fakeAPI, tokenPath, stdin string, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append(args, "--server", api.URL, "--token-file", tokenPath))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := root.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

func loggedIn(t *testing.T, api *fakeAPI) string {
	t.Helper()
	tokenPath := filepath.Join(t.TempDir(), "token.json")
	out, _, err := runCLI(t, api, tokenPath, "correct-horse\n", "login", "--email", "trader@example.com")
	require.NoError(t, err)
	require.Equal(t, "Signed in as trader (FREE)\n", out)
	return tokenPath
}

func TestLoginRejectsBadPassword(t *testing.T) {
	t.Parallel()
	api := newFakeAPI(t)
	_, _, err := runCLI(t, api, filepath.Join(t.TempDir(), "token.json"), "", "login", "--email", "a@example.com", "--password", "nope")
	require.ErrorContains(t, err, "invalid email or password")
}

func TestSummaryStreamsTickerSummary(t *testing.T) {
	t.Parallel()
	api := newFakeAPI(t)
	tokenPath := loggedIn(t, api)

	out, _, err := runCLI(t, api, tokenPath, "", "summary", "$aapl")
	require.NoError(t, err)
	require.Equal(t, "**AAPL** is trending\nwith more to come\n", out)
}

func TestSummaryRequiresLogin(t *testing.T) {
	t.Parallel()
	api := newFakeAPI(t)
	_, _, err := runCLI(t, api, filepath.Join(t.TempDir(), "token.json"), "", "summary", "AAPL")
	require.ErrorIs(t, err, errNotSignedIn)
}

func TestSummaryRendersHTML(t *testing.T) {
	t.Parallel()
	api := newFakeAPI(t)
	tokenPath := loggedIn(t, api)

	out, _, err := runCLI(t, api, tokenPath, "", "summary", "Crypto", "--topic", "--html")
	require.NoError(t, err)
	require.Contains(t, out, "<strong>Crypto</strong> is trending<br")
	require.Contains(t, out, "with more to come</p>")
}

func TestSummaryReportsFailure(t *testing.T) {
	t.Parallel()
	api := newFakeAPI(t)
	tokenPath := loggedIn(t, api)

	out, _, err := runCLI(t, api, tokenPath, "", "summary", "FAIL")
	require.EqualError(t, err, "Failed to generate summary due to an error.")
	require.Contains(t, out, "Failed to generate summary due to an error.")
}

func TestWatchSwitchesSubjects(t *testing.T) {
	t.Parallel()
	api := newFakeAPI(t)
	tokenPath := loggedIn(t, api)

	out, errOut, err := runCLI(t, api, tokenPath, "SLOW\n\n$tsla\n", "watch")
	require.NoError(t, err)
	require.Empty(t, errOut)
	require.Contains(t, out, "== $SLOW ==\n")
	require.Contains(t, out, "== $TSLA ==\n**TSLA** is trending\nwith more to come\n")
	require.True(t, strings.HasSuffix(out, "with more to come\n"))
}
