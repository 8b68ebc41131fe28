package web

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/rowbind/internal/config"
	"github.com/JonMunkholm/rowbind/internal/core"
	"github.com/JonMunkholm/rowbind/internal/kinds"
	"github.com/JonMunkholm/rowbind/internal/pgsink"
)

type fakeTx struct {
	pgx.Tx
	table     string
	rows      [][]any
	committed bool
}

func (f *fakeTx) CopyFrom(_ context.Context, table pgx.Identifier, _ []string, src pgx.CopyFromSource) (int64, error) {
	f.table = table.Sanitize()
	var n int64
	for src.Next() {
		values, err := src.Values()
		if err != nil {
			return n, err
		}
		f.rows = append(f.rows, values)
		n++
	}
	return n, src.Err()
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	if f.committed {
		return pgx.ErrTxClosed
	}
	return nil
}

type fakePool struct{ tx *fakeTx }

func (p *fakePool) Begin(context.Context) (pgx.Tx, error) {
	p.tx = &fakeTx{}
	return p.tx, nil
}

func testConfig(t *testing.T, vars map[string]string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFrom(func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	})
	require.NoError(t, err)
	return cfg
}

func newTestServer(t *testing.T, pool pgsink.TxBeginner, vars map[string]string) *Server {
	t.Helper()
	e := core.New(core.DefaultConfig())
	kinds.Install(e)
	return NewServer(testConfig(t, vars), e, pool)
}

func multipartUpload(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	} else {
		require.NoError(t, mw.WriteField("note", "empty"))
	}
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func do(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

const productCSV = "SKU,Product Name,Category,Unit Price\nW-1,Widget,Hardware,9.99\n,Nameless,Hardware,1.00\n"

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil, nil)
	rec := do(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["imports"])
}

func TestListKinds(t *testing.T) {
	s := newTestServer(t, &fakePool{}, nil)
	rec := do(s, httptest.NewRequest(http.MethodGet, "/api/kinds", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var groups []GroupResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &groups))

	found := map[string]KindResponse{}
	for _, g := range groups {
		for _, k := range g.Kinds {
			assert.Equal(t, g.Group, k.Group)
			found[k.Key] = k
		}
	}
	require.Contains(t, found, "product")
	require.Contains(t, found, "contact")
	assert.True(t, found["product"].Importable)
	assert.False(t, found["contact"].Importable)
	assert.Equal(t, "SKU", found["product"].Headers[0])
}

func TestGetKind(t *testing.T) {
	s := newTestServer(t, nil, nil)

	rec := do(s, httptest.NewRequest(http.MethodGet, "/api/kinds/customer", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var kind KindResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &kind))
	assert.Equal(t, "CRM", kind.Group)
	assert.False(t, kind.Importable, "imports are off without a database")

	rec = do(s, httptest.NewRequest(http.MethodGet, "/api/kinds/widgets", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "MAP002", decodeError(t, rec).Code)
}

func TestTemplate(t *testing.T) {
	s := newTestServer(t, nil, nil)

	rec := do(s, httptest.NewRequest(http.MethodGet, "/api/kinds/product/template", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="product_template.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "SKU,Product Name,Category,Unit Price,In Stock,Launch Date,Description\n", rec.Body.String())

	rec = do(s, httptest.NewRequest(http.MethodGet, "/api/kinds/product/template?format=xlsx", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "product_template.xlsx")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))

	rec = do(s, httptest.NewRequest(http.MethodGet, "/api/kinds/product/template?format=pdf", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "FILE002", decodeError(t, rec).Code)
}

func TestValidate(t *testing.T) {
	s := newTestServer(t, nil, nil)
	body, contentType := multipartUpload(t, "products.csv", productCSV)

	req := httptest.NewRequest(http.MethodPost, "/api/kinds/product/validate", body)
	req.Header.Set("Content-Type", contentType)
	rec := do(s, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report core.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "product", report.Kind)
	assert.Equal(t, 2, report.TotalRows)
	assert.Equal(t, 1, report.ValidRows)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, 2, report.Errors[0].Row)
	assert.Zero(t, s.limiter.ActiveCount())
}

func TestValidate_HTMX(t *testing.T) {
	s := newTestServer(t, nil, nil)
	body, contentType := multipartUpload(t, "products.csv", productCSV)

	req := httptest.NewRequest(http.MethodPost, "/api/kinds/product/validate", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("HX-Request", "true")
	rec := do(s, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), `class="report report-invalid"`)
	assert.NotContains(t, rec.Body.String(), "<html")
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		filename   string
		content    string
		vars       map[string]string
		wantStatus int
		wantCode   string
	}{
		{"missing file", "", "", nil, http.StatusBadRequest, "FILE007"},
		{"unsupported format", "notes.txt", "hello", nil, http.StatusUnprocessableEntity, "FILE002"},
		{"too large", "big.csv", strings.Repeat("x", 4096), map[string]string{"UPLOAD_MAX_FILE_SIZE": "1024"}, http.StatusRequestEntityTooLarge, "FILE001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, nil, tt.vars)
			body, contentType := multipartUpload(t, tt.filename, tt.content)

			req := httptest.NewRequest(http.MethodPost, "/api/kinds/product/validate", body)
			req.Header.Set("Content-Type", contentType)
			rec := do(s, req)

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Code)
		})
	}
}

func TestImport(t *testing.T) {
	pool := &fakePool{}
	s := newTestServer(t, pool, nil)
	body, contentType := multipartUpload(t, "customers.csv",
		"Customer ID,Customer Name,State\nC-1,Acme,california\n,Nobody,TX\nC-2,Globex,ny\n")

	req := httptest.NewRequest(http.MethodPost, "/api/kinds/customer/import", body)
	req.Header.Set("Content-Type", contentType)
	rec := do(s, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res core.ImportResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, int64(2), res.Inserted)
	assert.Equal(t, int64(1), res.Skipped)

	require.NotNil(t, pool.tx)
	assert.True(t, pool.tx.committed)
	assert.Equal(t, `"customers"`, pool.tx.table)
	require.Len(t, pool.tx.rows, 2)
	assert.Equal(t, "CA", pool.tx.rows[0][3])
}

func TestImport_Refused(t *testing.T) {
	body, contentType := multipartUpload(t, "contacts.csv", "Customer ID,Full Name\nC-1,Ann\n")

	s := newTestServer(t, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/kinds/product/import", body)
	req.Header.Set("Content-Type", contentType)
	rec := do(s, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "DB004", decodeError(t, rec).Code)

	body, contentType = multipartUpload(t, "contacts.csv", "Customer ID,Full Name\nC-1,Ann\n")
	s = newTestServer(t, &fakePool{}, nil)
	req = httptest.NewRequest(http.MethodPost, "/api/kinds/contact/import", body)
	req.Header.Set("Content-Type", contentType)
	rec = do(s, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "DB003", decodeError(t, rec).Code)
}

func TestAPIKeyRequired(t *testing.T) {
	s := newTestServer(t, nil, map[string]string{
		"REQUIRE_API_KEY": "true",
		"API_KEYS":        "secret-key",
	})

	rec := do(s, httptest.NewRequest(http.MethodGet, "/api/kinds", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/kinds", nil)
	req.Header.Set("X-API-Key", "secret-key")
	rec = do(s, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusFor(t *testing.T) {
	err := errImportsDisabled
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(err, core.MapError(err)))

	err = core.ErrTooManyUploads
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(err, core.MapError(err)))

	err = context.DeadlineExceeded
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(err, core.MapError(err)))
}
