package email_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/email"
)

func TestSendEmailParams_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		params    email.SendEmailParams
		wantErr   bool
		recipient bool
	}{
		{
			name:   "valid html",
			params: email.SendEmailParams{SendTo: "user@example.com", Subject: "Hi", BodyHTML: "<p>x</p>"},
		},
		{
			name:   "valid text only",
			params: email.SendEmailParams{SendTo: "user@example.com", Subject: "Hi", BodyText: "x"},
		},
		{
			name:      "empty recipient",
			params:    email.SendEmailParams{SendTo: "  ", Subject: "Hi", BodyHTML: "x"},
			wantErr:   true,
			recipient: true,
		},
		{
			name:      "malformed recipient",
			params:    email.SendEmailParams{SendTo: "not-an-email", Subject: "Hi", BodyHTML: "x"},
			wantErr:   true,
			recipient: true,
		},
		{
			name:    "missing subject",
			params:  email.SendEmailParams{SendTo: "user@example.com", BodyHTML: "x"},
			wantErr: true,
		},
		{
			name:    "missing body",
			params:  email.SendEmailParams{SendTo: "user@example.com", Subject: "Hi"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.params.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, email.ErrInvalidParams)
			assert.Equal(t, tt.recipient, errors.Is(err, email.ErrInvalidRecipient))
		})
	}
}

func TestDevSender_SendEmail(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "out")
	sender := email.NewDevSender(dir)

	err := sender.SendEmail(context.Background(), email.SendEmailParams{
		SendTo:   "user@example.com",
		Subject:  "Weekly Digest!",
		BodyHTML: "<p>hello</p>",
		BodyText: "hello",
	})
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	var metaPath string
	for _, e := range entries {
		assert.Contains(t, e.Name(), "weekly_digest")
		assert.NotContains(t, e.Name(), "!")
		if strings.HasSuffix(e.Name(), ".json") {
			metaPath = filepath.Join(dir, e.Name())
		}
	}
	require.NotEmpty(t, metaPath)

	raw, err := os.ReadFile(metaPath)
	require.NoError(t, err)
	var meta map[string]string
	require.NoError(t, json.Unmarshal(raw, &meta))
	assert.Equal(t, "user@example.com", meta["send_to"])
	assert.Equal(t, "Weekly Digest!", meta["subject"])
}

func TestDevSender_UniqueNames(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sender := email.NewDevSender(dir)
	params := email.SendEmailParams{SendTo: "user@example.com", Subject: "Same", BodyHTML: "x", Tag: "task"}

	require.NoError(t, sender.SendEmail(context.Background(), params))
	require.NoError(t, sender.SendEmail(context.Background(), params))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}

func TestDevSender_RejectsInvalid(t *testing.T) {
	t.Parallel()

	sender := email.NewDevSender(t.TempDir())
	err := sender.SendEmail(context.Background(), email.SendEmailParams{SendTo: "bad", Subject: "x", BodyHTML: "x"})
	assert.ErrorIs(t, err, email.ErrInvalidRecipient)
}

func TestNewPostmarkClient_InvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  email.Config
	}{
		{"no tokens", email.Config{SenderEmail: "a@example.com", SupportEmail: "b@example.com"}},
		{"only server token", email.Config{PostmarkServerToken: "s", SenderEmail: "a@example.com", SupportEmail: "b@example.com"}},
		{"bad sender", email.Config{PostmarkServerToken: "s", PostmarkAccountToken: "a", SenderEmail: "nope", SupportEmail: "b@example.com"}},
		{"bad support", email.Config{PostmarkServerToken: "s", PostmarkAccountToken: "a", SenderEmail: "a@example.com", SupportEmail: "nope"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := email.NewPostmarkClient(tt.cfg)
			assert.ErrorIs(t, err, email.ErrInvalidConfig)
		})
	}
}

func TestNewSender(t *testing.T) {
	t.Parallel()

	dev, err := email.NewSender(email.Config{SenderEmail: "a@example.com", SupportEmail: "b@example.com", DevOutputDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &email.DevSender{}, dev)

	pm, err := email.NewSender(email.Config{
		PostmarkServerToken:  "server",
		PostmarkAccountToken: "account",
		SenderEmail:          "a@example.com",
		SupportEmail:         "b@example.com",
	})
	require.NoError(t, err)
	assert.NotNil(t, pm)
	assert.NotEqual(t, dev, pm)
}

func TestIsValidAddress(t *testing.T) {
	t.Parallel()

	assert.True(t, email.IsValidAddress("user+tag@mail.example.com"))
	assert.True(t, email.IsValidAddress(" user@example.io "))
	assert.False(t, email.IsValidAddress("user@"))
	assert.False(t, email.IsValidAddress("@example.com"))
}
