package llm

import (
	"context"
	"fmt"

	"github.com/kiranshivaraju/batchlingo/internal/config"
)

// Router dispatches each request to the endpoint that serves its model:
// models in the local list go to the local endpoint, all others to the
// hosted one.
type Router struct {
	hosted Client
	local  Client
	locals map[string]struct{}
}

func NewRouter(hosted, local Client, localModels []string) *Router {
	locals := make(map[string]struct{}, len(localModels))
	for _, m := range localModels {
		locals[m] = struct{}{}
	}
	return &Router{hosted: hosted, local: local, locals: locals}
}

// NewFromConfig builds the router used at server startup.
func NewFromConfig(cfg config.LLMConfig) *Router {
	return NewRouter(
		NewHTTPClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.RequestTimeout),
		NewHTTPClient(cfg.LocalBaseURL, "", cfg.RequestTimeout),
		cfg.LocalModels,
	)
}

func (r *Router) Complete(ctx context.Context, req Request) (Response, error) {
	c := r.hosted
	if _, ok := r.locals[req.Model]; ok {
		c = r.local
	}
	if c == nil {
		return Response{}, fmt.Errorf("%w: %q", ErrNoEndpoint, req.Model)
	}
	return c.Complete(ctx, req)
}

var _ Client = (*Router)(nil)
