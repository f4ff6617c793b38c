package httpapi

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// UserResolver returns the id of the user making the request.
type UserResolver func(r *http.Request) (string, error)

// HeaderUser reads the user id from header.
func HeaderUser(header string) UserResolver {
	return func(r *http.Request) (string, error) {
		id := strings.TrimSpace(r.Header.Get(header))
		if id == "" {
			return "", ErrUnauthenticated
		}
		return id, nil
	}
}

type Option func(*Handler)

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

func WithUserResolver(fn UserResolver) Option {
	return func(h *Handler) {
		if fn != nil {
			h.user = fn
		}
	}
}

// WithStream enables GET /stream.
func WithStream(s Stream) Option {
	return func(h *Handler) { h.stream = s }
}

// WithHeartbeat sets the SSE keep-alive interval. Default is 25 seconds.
func WithHeartbeat(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.heartbeat = d
		}
	}
}

// WithMaxPageSize caps the list limit. Default is 200.
func WithMaxPageSize(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxPage = n
		}
	}
}
