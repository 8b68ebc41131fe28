package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) (string, bool) { return "", false }

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, noEnv, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestKindsAndHeaders(t *testing.T) {
	code, out, _ := runCLI(t, "kinds")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "product")
	assert.Contains(t, out, "customers")

	code, out, _ = runCLI(t, "headers", "-kind", "contact")
	require.Equal(t, 0, code)
	assert.Equal(t, "Customer ID\nFull Name\nEmail\nPhone\nMiddle Initial\nReference\n", out)
}

func TestValidate(t *testing.T) {
	valid := writeFile(t, "customers.csv", "Customer ID,Customer Name\nC-1,Acme\n")
	code, out, _ := runCLI(t, "validate", "-kind", "customer", valid)
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "customer: valid, 1 rows, 1 valid, 0 errors")

	invalid := writeFile(t, "customers.csv", "Customer ID,Customer Name,Tier\nC-1,Acme,Diamond\n")
	code, out, _ = runCLI(t, "validate", "-kind", "customer", invalid)
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "invalid")
	assert.Contains(t, out, "Tier")

	code, out, _ = runCLI(t, "validate", "-kind", "customer", "-json", invalid)
	assert.Equal(t, 1, code)
	assert.Contains(t, out, `"valid_rows": 0`)
}

func TestConvert(t *testing.T) {
	in := writeFile(t, "customers.csv", "Customer ID,Customer Name,State\nC-1,Acme,california\n,Nobody,TX\n")
	out := filepath.Join(t.TempDir(), "customers.xlsx")

	code, _, stderr := runCLI(t, "convert", "-kind", "customer", "-o", out, in)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stderr, "wrote 1 of 2 rows")
	assert.Contains(t, stderr, "skipped row 2")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("PK")))

	code, _, stderr = runCLI(t, "validate", "-kind", "customer", "-sheet", "Missing", out)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "FILE003")
	assert.Contains(t, stderr, "available sheets: Customers")

	code, _, _ = runCLI(t, "convert", "-kind", "customer", "-strict", "-to", "csv", in)
	assert.Equal(t, 1, code)
}

func TestConvert_ToStdout(t *testing.T) {
	in := writeFile(t, "products.tsv", "SKU\tProduct Name\tUnit Price\nW-1\tWidget\t$5.00\n")

	code, out, stderr := runCLI(t, "convert", "-kind", "product", in)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "SKU,Product Name,Category,Unit Price,In Stock,Launch Date,Description\nW-1,Widget,,5.00,false,,\n", out)
}

func TestTemplate(t *testing.T) {
	code, out, _ := runCLI(t, "template", "-kind", "product", "-format", "tsv")
	require.Equal(t, 0, code)
	assert.Equal(t, "SKU\tProduct Name\tCategory\tUnit Price\tIn Stock\tLaunch Date\tDescription\n", out)
}

func TestUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no command", nil, "usage: rowbind"},
		{"unknown command", []string{"explode"}, `unknown command "explode"`},
		{"missing kind", []string{"headers"}, "-kind is required"},
		{"unknown kind", []string{"headers", "-kind", "widgets"}, "MAP002"},
		{"missing file", []string{"validate", "-kind", "product"}, "expected exactly one input file"},
		{"unsupported output", []string{"template", "-kind", "product", "-o", "out.pdf"}, "FILE002"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runCLI(t, tt.args...)
			assert.Equal(t, 2, code)
			assert.Contains(t, stderr, tt.want)
		})
	}
}
