package templates

import (
	"context"
	"io"
	"strings"

	"github.com/a-h/templ"
)

// LayoutProps feeds the notification email layout.
type LayoutProps struct {
	Title   string
	Body    string
	Product string
	// Footer is optional small print, e.g. why the user got this email.
	Footer string
}

// Layout wraps a plain-text notification body in the HTML email shell.
// Blank lines in Body separate paragraphs; all text is escaped.
func Layout(p LayoutProps) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<!DOCTYPE html><html><head><meta charset="utf-8"><title>`)
		b.WriteString(templ.EscapeString(p.Title))
		b.WriteString(`</title></head><body style="font-family:Helvetica,Arial,sans-serif;background:#f4f4f5;margin:0;padding:24px">`)
		b.WriteString(`<table role="presentation" width="100%" cellpadding="0" cellspacing="0"><tr><td align="center">`)
		b.WriteString(`<table role="presentation" width="560" cellpadding="0" cellspacing="0" style="background:#ffffff;border-radius:8px;padding:32px">`)
		if p.Product != "" {
			b.WriteString(`<tr><td style="font-size:13px;color:#71717a;padding-bottom:16px">`)
			b.WriteString(templ.EscapeString(p.Product))
			b.WriteString(`</td></tr>`)
		}
		b.WriteString(`<tr><td><h1 style="font-size:20px;margin:0 0 16px">`)
		b.WriteString(templ.EscapeString(p.Title))
		b.WriteString(`</h1>`)
		for _, para := range paragraphs(p.Body) {
			b.WriteString(`<p style="font-size:15px;line-height:22px;margin:0 0 12px">`)
			b.WriteString(strings.ReplaceAll(templ.EscapeString(para), "\n", "<br>"))
			b.WriteString(`</p>`)
		}
		b.WriteString(`</td></tr>`)
		if p.Footer != "" {
			b.WriteString(`<tr><td style="font-size:12px;color:#a1a1aa;padding-top:24px">`)
			b.WriteString(templ.EscapeString(p.Footer))
			b.WriteString(`</td></tr>`)
		}
		b.WriteString(`</table></td></tr></table></body></html>`)

		_, err := io.WriteString(w, b.String())
		return err
	})
}

func paragraphs(body string) []string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	var out []string
	for _, p := range strings.Split(body, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
