package notifications_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

func TestChannelSet(t *testing.T) {
	t.Parallel()

	set := notifications.NewChannelSet(notifications.ChannelEmail, notifications.ChannelInApp, "fax")
	assert.True(t, set.Has(notifications.ChannelInApp))
	assert.True(t, set.Has(notifications.ChannelEmail))
	assert.False(t, set.Has(notifications.ChannelSMS))
	assert.False(t, set.Has("fax"))
	assert.Equal(t, []notifications.Channel{notifications.ChannelInApp, notifications.ChannelEmail}, set.List())

	assert.True(t, notifications.ChannelSet(0).Empty())
	assert.Equal(t, notifications.AllChannels, set.Union(notifications.AllChannels))
	assert.Equal(t, notifications.NewChannelSet(notifications.ChannelEmail),
		set.Intersect(notifications.NewChannelSet(notifications.ChannelEmail, notifications.ChannelPush)))
}

func TestParseChannelSet(t *testing.T) {
	t.Parallel()

	set, err := notifications.ParseChannelSet("email, sms")
	require.NoError(t, err)
	assert.Equal(t, notifications.NewChannelSet(notifications.ChannelEmail, notifications.ChannelSMS), set)

	empty, err := notifications.ParseChannelSet("")
	require.NoError(t, err)
	assert.True(t, empty.Empty())

	_, err = notifications.ParseChannelSet("email,fax")
	assert.Error(t, err)
}

func TestChannelSet_JSON(t *testing.T) {
	t.Parallel()

	set := notifications.NewChannelSet(notifications.ChannelPush, notifications.ChannelWebhook)
	b, err := json.Marshal(set)
	require.NoError(t, err)
	assert.JSONEq(t, `["push","webhook"]`, string(b))

	var got notifications.ChannelSet
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, set, got)

	assert.Error(t, json.Unmarshal([]byte(`["pigeon"]`), &got))
}

func TestPriority(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    notifications.Priority
		wantErr bool
	}{
		{"low", notifications.PriorityLow, false},
		{"Normal", notifications.PriorityNormal, false},
		{"", notifications.PriorityNormal, false},
		{" high ", notifications.PriorityHigh, false},
		{"urgent", notifications.PriorityUrgent, false},
		{"critical", notifications.PriorityNormal, true},
	}
	for _, tt := range tests {
		got, err := notifications.ParsePriority(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	assert.True(t, notifications.PriorityUrgent > notifications.PriorityHigh)
	assert.True(t, notifications.PriorityHigh > notifications.PriorityNormal)
	assert.True(t, notifications.PriorityNormal > notifications.PriorityLow)

	var body struct {
		Priority notifications.Priority `json:"priority"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"priority":"urgent"}`), &body))
	assert.Equal(t, notifications.PriorityUrgent, body.Priority)
}

func TestStatus_Final(t *testing.T) {
	t.Parallel()

	assert.False(t, notifications.StatusQueued.Final())
	assert.False(t, notifications.StatusDispatched.Final())
	for _, s := range []notifications.Status{
		notifications.StatusDelivered, notifications.StatusPartiallyDelivered, notifications.StatusFailed,
		notifications.StatusSuppressed, notifications.StatusSkipped, notifications.StatusCancelled,
	} {
		assert.True(t, s.Final(), s)
	}
}

func TestClassifyError(t *testing.T) {
	t.Parallel()

	class, hint := notifications.ClassifyError(nil)
	assert.Equal(t, notifications.ClassSuccess, class)
	assert.Zero(t, hint)

	class, hint = notifications.ClassifyError(notifications.Transient(assert.AnError, 42))
	assert.Equal(t, notifications.ClassTransient, class)
	assert.EqualValues(t, 42, hint)

	class, _ = notifications.ClassifyError(notifications.Permanent(assert.AnError))
	assert.Equal(t, notifications.ClassPermanent, class)

	class, _ = notifications.ClassifyError(notifications.ErrNoDestination)
	assert.Equal(t, notifications.ClassPermanent, class)

	class, _ = notifications.ClassifyError(&notifications.TemplateError{Ref: "x"})
	assert.Equal(t, notifications.ClassPermanent, class)

	class, _ = notifications.ClassifyError(assert.AnError)
	assert.Equal(t, notifications.ClassTransient, class, "unknown errors are retried")

	err := notifications.Permanent(assert.AnError)
	assert.ErrorIs(t, err, notifications.ErrPermanentDelivery)
	assert.ErrorIs(t, err, assert.AnError)
}
