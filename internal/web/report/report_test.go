package report

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/rowbind/internal/core"
	"github.com/JonMunkholm/rowbind/internal/mapping"
)

func render(t *testing.T, c templ.Component) string {
	t.Helper()
	var b strings.Builder
	require.NoError(t, c.Render(context.Background(), &b))
	return b.String()
}

func TestSummary(t *testing.T) {
	r := &core.Report{
		Kind:      "product",
		Headers:   []string{"SKU", "Product Name"},
		TotalRows: 3,
		ValidRows: 2,
		Errors:    []mapping.RowError{{Row: 2, Column: "SKU", Message: "value is required"}},
		Preview:   [][]string{{"W-1", "Widget <b>"}, {"W-2", "Gadget & Co"}},
		Duration:  1500 * time.Millisecond,
	}

	out := render(t, Summary(r))

	assert.Contains(t, out, `class="report report-invalid"`)
	assert.Contains(t, out, `data-kind="product"`)
	assert.Contains(t, out, "<dt>Rows</dt><dd>3</dd>")
	assert.Contains(t, out, "<dt>Errors</dt><dd>1</dd>")
	assert.Contains(t, out, "<dt>Success rate</dt><dd>66.7%</dd>")
	assert.Contains(t, out, "<td>2</td><td>SKU</td><td>value is required</td>")
	assert.Contains(t, out, "<th>Product Name</th>")
	assert.Contains(t, out, "Widget &lt;b&gt;")
	assert.Contains(t, out, "Gadget &amp; Co")
	assert.NotContains(t, out, "<b>")
}

func TestSummaryValidWithoutTables(t *testing.T) {
	out := render(t, Summary(&core.Report{Kind: "customer"}))

	assert.Contains(t, out, "report-valid")
	assert.NotContains(t, out, "<table")
}

func TestSummaryCapsErrorRows(t *testing.T) {
	r := &core.Report{Kind: "product", TotalRows: MaxErrorRows + 5}
	for i := 0; i < MaxErrorRows+5; i++ {
		r.Errors = append(r.Errors, mapping.RowError{Row: i + 1, Message: fmt.Sprintf("bad %d", i)})
	}

	out := render(t, Summary(r))

	assert.Equal(t, MaxErrorRows, strings.Count(out, "<tr><td>"))
	assert.Contains(t, out, "5 more errors not shown")
}

func TestPage(t *testing.T) {
	out := render(t, Page("Products <check>", &core.Report{Kind: "product"}))

	assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html>"))
	assert.Contains(t, out, "<title>Products &lt;check&gt;</title>")
	assert.Contains(t, out, `<section class="report report-valid"`)
	assert.True(t, strings.HasSuffix(out, "</body></html>"))
}

func TestErrorAlert(t *testing.T) {
	out := render(t, ErrorAlert(core.UserMessage{Message: "File too large", Action: "Split it", Code: "FILE001"}))

	assert.Contains(t, out, `role="alert"`)
	assert.Contains(t, out, "File too large")
	assert.Contains(t, out, "Split it")
	assert.Contains(t, out, "Code: FILE001")

	out = render(t, ErrorAlert(core.UserMessage{Message: "x", Code: "ERR000"}))
	assert.NotContains(t, out, "alert-action")
}
