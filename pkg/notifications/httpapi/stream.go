package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// streamEvents sends each in-app delivery as an SSE "notification" event
// until the client goes away.
func (h *Handler) streamEvents(w http.ResponseWriter, r *http.Request) {
	if h.stream == nil {
		h.fail(w, r, notifications.ErrNotFound)
		return
	}
	userID, err := h.user(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.fail(w, r, errors.New("response writer does not support streaming"))
		return
	}

	ctx := r.Context()
	messages := h.stream.Subscribe(ctx, userID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case msg, ok := <-messages:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				h.logger.ErrorContext(ctx, "failed to encode stream event",
					logger.Error(err),
					logger.NotificationID(msg.NotificationID),
				)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: notification\nid: %s\ndata: %s\n\n", msg.NotificationID, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
