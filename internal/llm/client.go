// Package llm talks to OpenAI-compatible chat-completion endpoints.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	RoleSystem = "system"
	RoleUser   = "user"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is one chat-completion call. Credential overrides the client's
// default key when set.
type Request struct {
	Model      string
	Messages   []Message
	Credential string
}

type Response struct {
	Content string
}

// Client completes chat requests.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

type chatBody struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type chatReply struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// HTTPClient calls {baseURL}/chat/completions.
type HTTPClient struct {
	http    *resty.Client
	baseURL string
	apiKey  string
}

// NewHTTPClient returns a client for one endpoint. timeout bounds the
// transport; callers are expected to also pass a deadline per call.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		http:    resty.New().SetTimeout(timeout),
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

func (c *HTTPClient) Complete(ctx context.Context, req Request) (Response, error) {
	key := req.Credential
	if key == "" {
		key = c.apiKey
	}

	var reply chatReply
	r := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(chatBody{Model: req.Model, Messages: req.Messages}).
		SetResult(&reply).
		ForceContentType("application/json")
	if key != "" {
		r.SetAuthToken(key)
	}

	resp, err := r.Post(c.baseURL + "/chat/completions")
	if err != nil {
		return Response{}, fmt.Errorf("chat completion: %w", err)
	}
	if resp.IsError() {
		return Response{}, &APIError{StatusCode: resp.StatusCode(), Body: abbreviate(resp.String(), 500)}
	}
	if len(reply.Choices) == 0 {
		return Response{}, ErrEmptyResponse
	}
	return Response{Content: reply.Choices[0].Message.Content}, nil
}

func abbreviate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

var _ Client = (*HTTPClient)(nil)
