package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

const (
	defaultPageSize = 50
	maxBodyBytes    = 1 << 20
)

// Service is the engine API the handler needs. *notifications.Engine
// satisfies it.
type Service interface {
	Submit(ctx context.Context, in notifications.Intent) (notifications.Receipt, error)
	Cancel(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (notifications.View, error)
	ListNotifications(ctx context.Context, userID string, opts notifications.ListOptions) ([]notifications.View, error)
	GetUnreadCount(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int, error)
	Delete(ctx context.Context, userID string, ids ...string) error
}

// Stream is satisfied by *notifications.InAppSink.
type Stream interface {
	Subscribe(ctx context.Context, userID string) <-chan notifications.Message
}

var _ Service = (*notifications.Engine)(nil)

// Handler serves the notification API for one Service. Every per-id
// route is scoped to the user returned by its UserResolver.
type Handler struct {
	svc       Service
	stream    Stream
	user      UserResolver
	logger    *slog.Logger
	heartbeat time.Duration
	maxPage   int
}

// New creates a Handler over svc. By default the user comes from the
// X-User-ID header, the stream route is disabled and pages hold at most
// 200 items.
func New(svc Service, opts ...Option) *Handler {
	h := &Handler{
		svc:       svc,
		user:      HeaderUser("X-User-ID"),
		logger:    slog.Default(),
		heartbeat: 25 * time.Second,
		maxPage:   200,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With(logger.Component("httpapi"))
	return h
}

// Handle returns the router.
func (h *Handler) Handle() http.Handler {
	r := chi.NewRouter()

	r.Post("/", h.submit)
	r.Post("/{id}/cancel", h.cancel)

	r.Get("/", h.list)
	r.Get("/unread-count", h.unreadCount)
	r.Get("/stream", h.streamEvents)
	r.Post("/read", h.markAllRead)
	r.Delete("/", h.deleteMany)
	r.Get("/{id}", h.get)
	r.Post("/{id}/read", h.markRead)
	r.Delete("/{id}", h.deleteOne)

	return r
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			logger.Error(err),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}
	writeJSON(w, status, Response{Error: detail})
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	var in notifications.Intent
	if err := decode(w, r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	receipt, err := h.svc.Submit(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusAccepted, receipt, nil)
}

// cancel is scoped like get: other users' notifications are not found.
func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	userID, err := h.user(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	view, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if view.RecipientID != userID {
		h.fail(w, r, notifications.ErrNotFound)
		return
	}
	if err := h.svc.Cancel(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	userID, err := h.user(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	opts, err := h.listOptions(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	views, err := h.svc.ListNotifications(r.Context(), userID, opts)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if views == nil {
		views = []notifications.View{}
	}
	writeData(w, http.StatusOK, views, map[string]any{"limit": opts.Limit, "offset": opts.Offset})
}

func (h *Handler) listOptions(r *http.Request) (notifications.ListOptions, error) {
	q := r.URL.Query()
	opts := notifications.ListOptions{Limit: defaultPageSize}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return opts, fmt.Errorf("%w: limit must be a positive integer", ErrBadRequest)
		}
		opts.Limit = min(n, h.maxPage)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, fmt.Errorf("%w: offset must be a non-negative integer", ErrBadRequest)
		}
		opts.Offset = n
	}
	if v := q.Get("since"); v != "" {
		at, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return opts, fmt.Errorf("%w: since must be RFC 3339", ErrBadRequest)
		}
		opts.Since = &at
	}
	if v := q.Get("types"); v != "" {
		for name := range strings.SplitSeq(v, ",") {
			t := notifications.Type(strings.TrimSpace(name))
			if !t.Valid() {
				return opts, fmt.Errorf("%w: unknown type %q", ErrBadRequest, name)
			}
			opts.Types = append(opts.Types, t)
		}
	}
	var err error
	if opts.OnlyUnread, err = boolParam(q.Get("unread")); err != nil {
		return opts, err
	}
	if opts.IncludeSuppressed, err = boolParam(q.Get("include_suppressed")); err != nil {
		return opts, err
	}
	return opts, nil
}

func boolParam(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %q is not a boolean", ErrBadRequest, v)
	}
	return b, nil
}

func (h *Handler) unreadCount(w http.ResponseWriter, r *http.Request) {
	userID, err := h.user(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	n, err := h.svc.GetUnreadCount(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]int{"count": n}, nil)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	userID, err := h.user(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	view, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if view.RecipientID != userID {
		h.fail(w, r, notifications.ErrNotFound)
		return
	}
	writeData(w, http.StatusOK, view, nil)
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	userID, err := h.user(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.svc.MarkRead(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) markAllRead(w http.ResponseWriter, r *http.Request) {
	userID, err := h.user(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	n, err := h.svc.MarkAllRead(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]int{"marked": n}, nil)
}

func (h *Handler) deleteOne(w http.ResponseWriter, r *http.Request) {
	h.delete(w, r, chi.URLParam(r, "id"))
}

func (h *Handler) deleteMany(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IDs []string `json:"ids"`
	}
	if err := decode(w, r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	if len(body.IDs) == 0 {
		h.fail(w, r, fmt.Errorf("%w: ids is required", ErrBadRequest))
		return
	}
	h.delete(w, r, body.IDs...)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request, ids ...string) {
	userID, err := h.user(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.svc.Delete(r.Context(), userID, ids...); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Join(ErrBadRequest, err)
	}
	return nil
}
