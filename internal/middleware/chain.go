package middleware

import (
	"log/slog"
	"net/http"

	"github.com/Davincible/llm-bridge/internal/config"
)

type Middleware func(http.Handler) http.Handler

// Chain is an ordered list of middleware; the first entry wraps outermost.
type Chain []Middleware

func New(middlewares ...Middleware) Chain {
	return Chain(middlewares)
}

// Then returns a new chain with middlewares appended. The receiver is left
// untouched, so one base chain can be extended several ways.
func (c Chain) Then(middlewares ...Middleware) Chain {
	out := make(Chain, 0, len(c)+len(middlewares))
	out = append(out, c...)

	return append(out, middlewares...)
}

func (c Chain) Handler(h http.Handler) http.Handler {
	for i := len(c) - 1; i >= 0; i-- {
		h = c[i](h)
	}

	return h
}

// MiddlewareSet holds the gateway's middleware built once at startup. The
// server picks a chain per route group.
type MiddlewareSet struct {
	Recovery Middleware
	Metrics  Middleware
	Logging  Middleware
	Auth     Middleware
}

func NewMiddlewareSet(cfg *config.Manager, logger *slog.Logger) MiddlewareSet {
	return MiddlewareSet{
		Recovery: NewRecoveryMiddleware(logger),
		Metrics:  NewMetricsMiddleware(),
		Logging:  NewLoggingMiddleware(logger),
		Auth:     NewAuthMiddleware(cfg, logger),
	}
}

// DefaultChain guards /v1/chat/completions and /v1/messages.
func (ms MiddlewareSet) DefaultChain() Chain {
	return New(ms.Recovery, ms.Metrics, ms.Logging, ms.Auth)
}

// HealthChain serves /health without the proxy key.
func (ms MiddlewareSet) HealthChain() Chain {
	return New(ms.Recovery, ms.Logging)
}

// PublicChain serves the /metrics scrape: no key and no request log.
func (ms MiddlewareSet) PublicChain() Chain {
	return New(ms.Recovery)
}
