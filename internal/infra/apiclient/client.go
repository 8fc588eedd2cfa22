package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yanqian/cashtags/internal/domain/auth"
	"github.com/yanqian/cashtags/internal/domain/summarizer"
	"github.com/yanqian/cashtags/internal/domain/summarysession"
)

const errorBodyLimit = 64 << 10

// Client talks to the cashtags HTTP API.
type Client struct {
	baseURL string
	// http bounds plain JSON calls; stream has no overall timeout since summaries arrive over minutes.
	http   *http.Client
	stream *http.Client
}

// New builds a client for the server at baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: timeout},
		stream:  &http.Client{},
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// OpenStream posts the summary request and hands back the streaming body. The request is aborted
// when ctx is cancelled.
func (c *Client) OpenStream(ctx context.Context, credential string, req summarizer.Request) (io.ReadCloser, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode summary request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/summary", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build summary request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/plain")
	setBearer(httpReq, credential)

	resp, err := c.stream.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("summary request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp.Body, nil
}

// News fetches recent headlines for ticker shaped as summary posts.
func (c *Client) News(ctx context.Context, credential, ticker string) ([]summarizer.Post, error) {
	var posts []summarizer.Post
	path := "/api/" + url.PathEscape(strings.TrimPrefix(strings.TrimSpace(ticker), "$")) + "/news"
	if err := c.getJSON(ctx, credential, path, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// TopicPosts fetches the posts of a topic.
func (c *Client) TopicPosts(ctx context.Context, topic string) ([]summarizer.Post, error) {
	var posts []summarizer.Post
	if err := c.getJSON(ctx, "", "/api/"+url.PathEscape(strings.TrimSpace(topic))+"/topic-posts", &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// Login exchanges credentials for an access token.
func (c *Client) Login(ctx context.Context, email, password string) (auth.TokenPair, error) {
	payload, err := json.Marshal(auth.LoginRequest{Email: email, Password: password})
	if err != nil {
		return auth.TokenPair{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/login", bytes.NewReader(payload))
	if err != nil {
		return auth.TokenPair{}, fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	var out auth.TokenPair
	if err := c.do(req, &out); err != nil {
		return auth.TokenPair{}, err
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, credential, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	setBearer(req, credential)
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", req.URL.Path, err)
	}
	return nil
}

func setBearer(req *http.Request, credential string) {
	if credential = strings.TrimSpace(credential); credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}
}

// decodeError understands both {"error":{"code","message"}} and {"error":"message"} bodies.
func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	var body struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil || len(body.Error) == 0 {
		if text := strings.TrimSpace(string(data)); text != "" {
			apiErr.Message = text
		}
		return apiErr
	}
	var detailed struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body.Error, &detailed); err == nil {
		apiErr.Code = detailed.Code
		if detailed.Message != "" {
			apiErr.Message = detailed.Message
		}
		return apiErr
	}
	var message string
	if err := json.Unmarshal(body.Error, &message); err == nil && message != "" {
		apiErr.Message = message
	}
	return apiErr
}

var _ summarysession.Dispatcher = (*Client)(nil)
