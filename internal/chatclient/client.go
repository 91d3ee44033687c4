package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tjfontaine/propertychat/internal/domain"
	"github.com/tjfontaine/propertychat/internal/protocol"
)

// AskPath is the chat endpoint.
const AskPath = "/api/ask"

// HTTPStatusError is returned when the server answers with a non-200 status.
// Such responses carry no body.
type HTTPStatusError struct {
	Code int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("chat request failed: %d %s", e.Code, http.StatusText(e.Code))
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithAPIKey sends key as a bearer token.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) { c.apiKey = key }
}

// Client sends conversations to a propertychat server.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		// No overall timeout: the stream lives as long as the turn.
		httpClient: &http.Client{Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: 60 * time.Second,
		}},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type askRequest struct {
	Messages []domain.Message `json:"messages"`
}

// Send posts history and folds the response stream, calling onUpdate with a
// snapshot after the request is submitted and after every applied event.
// Cancelling ctx is a user stop: the turn is finalized as aborted and no
// error is returned.
func (c *Client) Send(ctx context.Context, history []domain.Message, onUpdate func(Snapshot)) (Snapshot, error) {
	if onUpdate == nil {
		onUpdate = func(Snapshot) {}
	}
	cons := NewConsumer()
	onUpdate(cons.Snapshot())

	finish := func(err error) (Snapshot, error) {
		if ctx.Err() != nil {
			cons.Abort()
			err = nil
		} else if err != nil {
			cons.Fail(err.Error())
		} else {
			cons.End()
		}
		snap := cons.Snapshot()
		onUpdate(snap)
		return snap, err
	}

	body, err := json.Marshal(askRequest{Messages: history})
	if err != nil {
		return finish(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+AskPath, bytes.NewReader(body))
	if err != nil {
		return finish(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return finish(fmt.Errorf("send request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return finish(&HTTPStatusError{Code: resp.StatusCode})
	}

	dec := protocol.NewDecoder(resp.Body)
	for {
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return finish(nil)
		}
		if err != nil {
			return finish(fmt.Errorf("read stream: %w", err))
		}
		if cons.Apply(ev) {
			onUpdate(cons.Snapshot())
		}
	}
}
