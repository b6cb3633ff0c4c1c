package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/kiranshivaraju/batchlingo/internal/llm"
)

// Client satisfies llm.Client for testing and records every request.
type Client struct {
	mu           sync.Mutex
	requests     []llm.Request
	CompleteFunc func(ctx context.Context, req llm.Request) (llm.Response, error)
}

func (c *Client) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()
	if c.CompleteFunc != nil {
		return c.CompleteFunc(ctx, req)
	}
	return llm.Response{}, nil
}

// Requests returns a copy of the recorded requests.
func (c *Client) Requests() []llm.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]llm.Request(nil), c.requests...)
}

func (c *Client) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

// NewEchoClient returns a client that "translates" by prefixing the source
// text (the part of the user message after the blank line) with "[tr] ".
func NewEchoClient() *Client {
	return &Client{
		CompleteFunc: func(_ context.Context, req llm.Request) (llm.Response, error) {
			return llm.Response{Content: "[tr] " + SourceText(req)}, nil
		},
	}
}

// NewFailingClient returns a client that always returns err.
func NewFailingClient(err error) *Client {
	return &Client{
		CompleteFunc: func(_ context.Context, _ llm.Request) (llm.Response, error) {
			return llm.Response{}, err
		},
	}
}

// NewTimeoutClient returns a client that blocks until the context is done.
func NewTimeoutClient() *Client {
	return &Client{
		CompleteFunc: func(ctx context.Context, _ llm.Request) (llm.Response, error) {
			<-ctx.Done()
			return llm.Response{}, ctx.Err()
		},
	}
}

// SourceText extracts the text to translate from the user message.
func SourceText(req llm.Request) string {
	for _, m := range req.Messages {
		if m.Role == llm.RoleUser {
			if _, text, ok := strings.Cut(m.Content, "\n\n"); ok {
				return text
			}
			return m.Content
		}
	}
	return ""
}

var _ llm.Client = (*Client)(nil)
