// Package report renders validation reports and error alerts as HTML
// components.
package report

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/rowbind/internal/core"
)

// MaxErrorRows caps the error table; the summary still counts every error.
const MaxErrorRows = 100

// Page renders a complete HTML document around Summary.
func Page(title string, r *core.Report) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &html{w: w}
		h.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>`)
		h.text(title)
		h.raw(`</title></head><body>`)
		if h.err != nil {
			return h.err
		}
		if err := Summary(r).Render(ctx, w); err != nil {
			return err
		}
		h.raw(`</body></html>`)
		return h.err
	})
}

// Summary renders the counts, the header row, the error table and the
// preview rows of a report.
func Summary(r *core.Report) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		h := &html{w: w}

		status := "valid"
		if !r.IsValid() {
			status = "invalid"
		}
		h.raw(`<section class="report report-` + status + `" data-kind="`)
		h.text(r.Kind)
		h.raw(`">`)

		h.raw(`<dl class="report-counts">`)
		h.pair("Rows", fmt.Sprint(r.TotalRows))
		h.pair("Valid", fmt.Sprint(r.ValidRows))
		h.pair("Errors", fmt.Sprint(len(r.Errors)))
		h.pair("Success rate", fmt.Sprintf("%.1f%%", r.SuccessRate()))
		h.pair("Duration", r.Duration.String())
		h.raw(`</dl>`)

		if len(r.Errors) > 0 {
			h.raw(`<table class="report-errors"><thead><tr><th>Row</th><th>Column</th><th>Problem</th></tr></thead><tbody>`)
			for _, e := range r.Errors[:min(len(r.Errors), MaxErrorRows)] {
				h.raw(`<tr><td>`)
				h.text(fmt.Sprint(e.Row))
				h.raw(`</td><td>`)
				h.text(e.Column)
				h.raw(`</td><td>`)
				h.text(e.Message)
				h.raw(`</td></tr>`)
			}
			h.raw(`</tbody></table>`)
			if hidden := len(r.Errors) - MaxErrorRows; hidden > 0 {
				h.raw(`<p class="report-more">`)
				h.text(fmt.Sprintf("%d more errors not shown", hidden))
				h.raw(`</p>`)
			}
		}

		if len(r.Preview) > 0 {
			h.raw(`<table class="report-preview"><thead><tr>`)
			for _, header := range r.Headers {
				h.raw(`<th>`)
				h.text(header)
				h.raw(`</th>`)
			}
			h.raw(`</tr></thead><tbody>`)
			for _, row := range r.Preview {
				h.raw(`<tr>`)
				for _, cell := range row {
					h.raw(`<td>`)
					h.text(cell)
					h.raw(`</td>`)
				}
				h.raw(`</tr>`)
			}
			h.raw(`</tbody></table>`)
		}

		h.raw(`</section>`)
		return h.err
	})
}

// ErrorAlert renders a user message with its suggested action and code.
func ErrorAlert(msg core.UserMessage) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		h := &html{w: w}
		h.raw(`<div class="alert alert-error" role="alert"><p class="alert-message">`)
		h.text(msg.Message)
		h.raw(`</p>`)
		if msg.Action != "" {
			h.raw(`<p class="alert-action">`)
			h.text(msg.Action)
			h.raw(`</p>`)
		}
		h.raw(`<p class="alert-code">Code: `)
		h.text(msg.Code)
		h.raw(`</p></div>`)
		return h.err
	})
}

// html writes markup and keeps the first write error.
type html struct {
	w   io.Writer
	err error
}

func (h *html) raw(s string) {
	if h.err == nil {
		_, h.err = io.WriteString(h.w, s)
	}
}

func (h *html) text(s string) {
	h.raw(templ.EscapeString(s))
}

func (h *html) pair(term, value string) {
	h.raw(`<dt>`)
	h.text(term)
	h.raw(`</dt><dd>`)
	h.text(value)
	h.raw(`</dd>`)
}
