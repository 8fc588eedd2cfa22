package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yanqian/cashtags/internal/domain/summarizer"
)

func TestStreamYieldsContentDeltas(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "text/event-stream")
		for _, delta := range []string{"", "Apple ", "is ", "up."} {
			fmt.Fprintf(w, "data: %s\n\n", chunkJSON(delta))
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	client, err := NewClient(Options{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	stream, err := client.Stream(context.Background(), summarizer.ChatRequest{
		Model:       "gpt-4o-mini",
		Temperature: 0.3,
		Messages: []summarizer.Message{
			{Role: "system", Content: "be brief"},
			{Role: "user", Content: "- (1h ago) post"},
		},
	})
	require.NoError(t, err)
	defer stream.Close()

	var got []string
	for {
		delta, err := stream.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, delta)
	}
	require.Equal(t, []string{"Apple ", "is ", "up."}, got)

	require.Equal(t, "gpt-4o-mini", captured["model"])
	require.Equal(t, true, captured["stream"])
	messages, ok := captured["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	require.Equal(t, "system", messages[0].(map[string]any)["role"])
}

func TestStreamSurfacesRequestFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	client, err := NewClient(Options{APIKey: "wrong", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Stream(context.Background(), summarizer.ChatRequest{Model: "gpt-4o-mini"})
	require.Error(t, err)
}

func TestCompleteReturnsFirstChoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Summary."}}]}`))
	}))
	defer srv.Close()

	client, err := NewClient(Options{APIKey: "k", BaseURL: srv.URL + "/"})
	require.NoError(t, err)

	got, err := client.Complete(context.Background(), summarizer.ChatRequest{Model: "gpt-4o-mini"})
	require.NoError(t, err)
	require.Equal(t, "Summary.", got)
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(Options{})
	require.Error(t, err)
}

func chunkJSON(delta string) string {
	payload := map[string]any{
		"id":      "chunk",
		"object":  "chat.completion.chunk",
		"created": 1,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"delta":         map[string]any{"role": "assistant", "content": delta},
			"finish_reason": nil,
		}},
	}
	data, _ := json.Marshal(payload)
	return string(data)
}
