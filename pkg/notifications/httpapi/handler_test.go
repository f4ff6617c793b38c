package httpapi_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/notifications/httpapi"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Submit(ctx context.Context, in notifications.Intent) (notifications.Receipt, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(notifications.Receipt), args.Error(1)
}

func (m *MockService) Cancel(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockService) Get(ctx context.Context, id string) (notifications.View, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(notifications.View), args.Error(1)
}

func (m *MockService) ListNotifications(ctx context.Context, userID string, opts notifications.ListOptions) ([]notifications.View, error) {
	args := m.Called(ctx, userID, opts)
	return args.Get(0).([]notifications.View), args.Error(1)
}

func (m *MockService) GetUnreadCount(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *MockService) MarkRead(ctx context.Context, userID, id string) error {
	return m.Called(ctx, userID, id).Error(0)
}

func (m *MockService) MarkAllRead(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *MockService) Delete(ctx context.Context, userID string, ids ...string) error {
	return m.Called(ctx, userID, ids).Error(0)
}

func do(t *testing.T, h http.Handler, method, target, body, user string) (*httptest.ResponseRecorder, httpapi.Response) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var resp httpapi.Response
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func TestSubmit(t *testing.T) {
	t.Parallel()

	svc := &MockService{}
	h := httpapi.New(svc, httpapi.WithLogger(logger.Nop())).Handle()

	svc.On("Submit", mock.Anything, notifications.Intent{
		Type:          notifications.TypeTask,
		Priority:      notifications.PriorityHigh,
		TemplateRef:   "task.assigned",
		RecipientID:   "u1",
		CorrelationID: "evt-1",
		Data:          map[string]any{"task": "Review"},
	}).Return(notifications.Receipt{NotificationID: "n1", Outcome: notifications.OutcomeAccepted, Status: notifications.StatusQueued}, nil).Once()

	w, resp := do(t, h, http.MethodPost, "/", `{"type":"task","priority":"high","template_ref":"task.assigned",
		"recipient_id":"u1","correlation_id":"evt-1","data":{"task":"Review"}}`, "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "n1", data["notification_id"])
	assert.Equal(t, "accepted", data["outcome"])
	svc.AssertExpectations(t)
}

func TestSubmit_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		body     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"malformed json", `{"type":`, nil, http.StatusBadRequest, "bad_request"},
		{"unknown field", `{"kind":"task"}`, nil, http.StatusBadRequest, "bad_request"},
		{"validation", `{"type":"task"}`, &notifications.ValidationError{Field: "recipient_id", Reason: "is required"}, http.StatusUnprocessableEntity, "validation_error"},
		{"not started", `{"type":"task"}`, notifications.ErrEngineNotStarted, http.StatusServiceUnavailable, "unavailable"},
		{"store down", `{"type":"task"}`, errors.New("connection refused"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc := &MockService{}
			if tt.err != nil {
				svc.On("Submit", mock.Anything, mock.Anything).Return(notifications.Receipt{}, tt.err).Once()
			}
			h := httpapi.New(svc, httpapi.WithLogger(logger.Nop())).Handle()

			w, resp := do(t, h, http.MethodPost, "/", tt.body, "")
			assert.Equal(t, tt.wantCode, w.Code)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantErr, resp.Error.Code)
			if tt.wantErr == "validation_error" {
				assert.Equal(t, []string{"is required"}, resp.Error.Details["recipient_id"])
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestList(t *testing.T) {
	t.Parallel()

	since := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	svc := &MockService{}
	svc.On("ListNotifications", mock.Anything, "u1", notifications.ListOptions{
		Limit:      20,
		Offset:     40,
		OnlyUnread: true,
		Since:      &since,
		Types:      []notifications.Type{notifications.TypeTask, notifications.TypeTeam},
	}).Return([]notifications.View{{Notification: notifications.Notification{ID: "n1", RecipientID: "u1"}}}, nil).Once()
	svc.On("ListNotifications", mock.Anything, "u1", notifications.ListOptions{Limit: 200}).
		Return([]notifications.View(nil), nil).Once()

	h := httpapi.New(svc, httpapi.WithLogger(logger.Nop())).Handle()

	w, resp := do(t, h, http.MethodGet, "/?limit=20&offset=40&unread=true&types=task,team&since=2025-03-10T00:00:00Z", "", "u1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp.Data, 1)
	assert.EqualValues(t, 20, resp.Meta["limit"])

	w, resp = do(t, h, http.MethodGet, "/?limit=5000", "", "u1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{}, resp.Data, "empty pages are arrays")

	svc.AssertExpectations(t)
}

func TestList_BadQuery(t *testing.T) {
	t.Parallel()

	h := httpapi.New(&MockService{}, httpapi.WithLogger(logger.Nop())).Handle()
	for _, q := range []string{"limit=0", "limit=x", "offset=-1", "since=yesterday", "types=billing", "unread=maybe"} {
		w, resp := do(t, h, http.MethodGet, "/?"+q, "", "u1")
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
		require.NotNil(t, resp.Error, q)
	}

	w, _ := do(t, h, http.MethodGet, "/", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGet(t *testing.T) {
	t.Parallel()

	svc := &MockService{}
	view := notifications.View{Notification: notifications.Notification{ID: "n1", RecipientID: "u1"}}
	svc.On("Get", mock.Anything, "n1").Return(view, nil)
	svc.On("Get", mock.Anything, "missing").Return(notifications.View{}, notifications.ErrNotFound)
	h := httpapi.New(svc, httpapi.WithLogger(logger.Nop())).Handle()

	w, resp := do(t, h, http.MethodGet, "/n1", "", "u1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "n1", resp.Data.(map[string]any)["id"])

	w, _ = do(t, h, http.MethodGet, "/n1", "", "u2")
	assert.Equal(t, http.StatusNotFound, w.Code, "other users' notifications are hidden")

	w, _ = do(t, h, http.MethodGet, "/missing", "", "u1")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReadState(t *testing.T) {
	t.Parallel()

	svc := &MockService{}
	svc.On("GetUnreadCount", mock.Anything, "u1").Return(3, nil).Once()
	svc.On("MarkRead", mock.Anything, "u1", "n1").Return(nil).Once()
	svc.On("MarkRead", mock.Anything, "u1", "n9").Return(notifications.ErrNotFound).Once()
	svc.On("MarkAllRead", mock.Anything, "u1").Return(2, nil).Once()
	h := httpapi.New(svc, httpapi.WithLogger(logger.Nop())).Handle()

	w, resp := do(t, h, http.MethodGet, "/unread-count", "", "u1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, resp.Data.(map[string]any)["count"])

	w, _ = do(t, h, http.MethodPost, "/n1/read", "", "u1")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, _ = do(t, h, http.MethodPost, "/n9/read", "", "u1")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, resp = do(t, h, http.MethodPost, "/read", "", "u1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, resp.Data.(map[string]any)["marked"])

	svc.AssertExpectations(t)
}

func TestDeleteAndCancel(t *testing.T) {
	t.Parallel()

	svc := &MockService{}
	svc.On("Delete", mock.Anything, "u1", []string{"n1"}).Return(nil).Once()
	svc.On("Delete", mock.Anything, "u1", []string{"n2", "n3"}).Return(nil).Once()
	svc.On("Get", mock.Anything, "n4").Return(notifications.View{Notification: notifications.Notification{ID: "n4", RecipientID: "u1"}}, nil)
	svc.On("Get", mock.Anything, "n5").Return(notifications.View{Notification: notifications.Notification{ID: "n5", RecipientID: "u1"}}, nil)
	svc.On("Cancel", mock.Anything, "n4").Return(nil).Once()
	svc.On("Cancel", mock.Anything, "n5").Return(notifications.ErrNotCancellable).Once()
	h := httpapi.New(svc, httpapi.WithLogger(logger.Nop())).Handle()

	w, _ := do(t, h, http.MethodDelete, "/n1", "", "u1")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, _ = do(t, h, http.MethodDelete, "/", `{"ids":["n2","n3"]}`, "u1")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, _ = do(t, h, http.MethodDelete, "/", `{"ids":[]}`, "u1")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, h, http.MethodPost, "/n4/cancel", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = do(t, h, http.MethodPost, "/n4/cancel", "", "u2")
	assert.Equal(t, http.StatusNotFound, w.Code, "another user's notification is hidden")

	w, _ = do(t, h, http.MethodPost, "/n4/cancel", "", "u1")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, resp := do(t, h, http.MethodPost, "/n5/cancel", "", "u1")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "not_cancellable", resp.Error.Code)

	svc.AssertExpectations(t)
	svc.AssertNumberOfCalls(t, "Cancel", 2)
}

func TestStream(t *testing.T) {
	t.Parallel()

	sink := notifications.NewInAppSink(4)
	h := httpapi.New(&MockService{}, httpapi.WithStream(sink), httpapi.WithLogger(logger.Nop())).Handle()
	server := httptest.NewServer(h)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/stream", nil)
	require.NoError(t, err)
	req.Header.Set("X-User-ID", "u1")

	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return sink.Subscribers("u1") == 1 }, time.Second, time.Millisecond)
	require.NoError(t, sink.Deliver(ctx, notifications.Message{NotificationID: "n1", UserID: "u1", Body: "hello"}, "u1"))

	scanner := bufio.NewScanner(resp.Body)
	var lines []string
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" && len(lines) > 0 {
			break
		}
		if line != "" {
			lines = append(lines, line)
		}
	}
	require.Len(t, lines, 3)
	assert.Equal(t, "event: notification", lines[0])
	assert.Equal(t, "id: n1", lines[1])
	assert.Contains(t, lines[2], `"body":"hello"`)

	cancel()
	require.Eventually(t, func() bool { return sink.Subscribers("u1") == 0 }, time.Second, time.Millisecond)
}

func TestStream_Disabled(t *testing.T) {
	t.Parallel()

	h := httpapi.New(&MockService{}, httpapi.WithLogger(logger.Nop())).Handle()
	w, _ := do(t, h, http.MethodGet, "/stream", "", "u1")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
