// Package kit adapts transport-neutral endpoints to the MCP tool surface.
// An Endpoint takes a decoded request and returns a JSON-encodable response.
package kit

import (
	"context"
	"log/slog"
	"time"
)

// Endpoint handles one decoded request.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares; the first is outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// Logging logs every call of the endpoint named name at debug, and
// failures at warn.
func Logging(logger *slog.Logger, name string) Middleware {
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			attrs := []any{
				"endpoint", name,
				"transport", GetTransport(ctx),
				"duration", time.Since(start),
			}
			if id := GetRequestID(ctx); id != "" {
				attrs = append(attrs, "request_id", id)
			}
			if err != nil {
				logger.Warn("kit: endpoint failed", append(attrs, "error", err)...)
			} else {
				logger.Debug("kit: endpoint", attrs...)
			}
			return resp, err
		}
	}
}
