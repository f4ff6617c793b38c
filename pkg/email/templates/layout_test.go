package templates_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/email/templates"
)

func TestLayout(t *testing.T) {
	t.Parallel()

	html, err := templates.Render(context.Background(), templates.Layout(templates.LayoutProps{
		Title:   "Task <assigned>",
		Body:    "Line one\nline two\n\nSecond paragraph",
		Product: "Acme",
		Footer:  "You get this because you follow the project.",
	}))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(html, "<!DOCTYPE html>"))
	assert.Contains(t, html, "Task &lt;assigned&gt;")
	assert.NotContains(t, html, "<assigned>")
	assert.Contains(t, html, "Line one<br>line two")
	assert.Equal(t, 2, strings.Count(html, "<p "))
	assert.Contains(t, html, "Acme")
	assert.Contains(t, html, "follow the project")
}

func TestLayout_OmitsEmptySections(t *testing.T) {
	t.Parallel()

	html, err := templates.Render(context.Background(), templates.Layout(templates.LayoutProps{Title: "Hi", Body: "x"}))
	require.NoError(t, err)
	assert.NotContains(t, html, "color:#a1a1aa")
	assert.NotContains(t, html, "color:#71717a")
}
