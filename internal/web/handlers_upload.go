package web

import (
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/JonMunkholm/rowbind/internal/core"
	"github.com/JonMunkholm/rowbind/internal/logging"
	"github.com/JonMunkholm/rowbind/internal/pgsink"
	"github.com/JonMunkholm/rowbind/internal/web/report"
)

// multipartMemory is the part of an upload kept in memory; the rest
// spills to temporary files.
const multipartMemory = 8 << 20

// upload is a document received as the "file" field of a multipart form.
type upload struct {
	file multipart.File
	name string
	opts core.ReadOptions
	form *multipart.Form
}

func (u *upload) Close() {
	u.file.Close()
	if u.form != nil {
		_ = u.form.RemoveAll()
	}
}

// receive reads the multipart form and detects the document format from
// the file name. An optional "sheet" field selects the workbook sheet.
func (s *Server) receive(w http.ResponseWriter, r *http.Request) (*upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, fmt.Errorf("%w: %v", errNoFile, err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		_ = r.MultipartForm.RemoveAll()
		return nil, errNoFile
	}
	up := &upload{file: file, name: header.Filename, form: r.MultipartForm}

	opts, err := s.engine.ReadOptionsFor(header.Filename)
	if err != nil {
		up.Close()
		return nil, err
	}
	opts.Size = header.Size
	opts.XLSX.Sheet = r.FormValue("sheet")
	up.opts = opts
	return up, nil
}

// handleValidate maps an uploaded document onto a kind and reports every
// row that failed. Nothing is stored.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	k, err := kindParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	ctx := logging.ContextWith(r.Context(), "kind", k.Info.Key)
	r = r.WithContext(ctx)

	if err := s.limiter.Acquire(ctx); err != nil {
		respondError(w, r, err)
		return
	}
	defer s.limiter.Release()

	up, err := s.receive(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer up.Close()

	rep, err := k.Validate(ctx, s.engine, up.file, up.opts)
	if err != nil {
		respondError(w, r, err)
		return
	}
	logging.FromContext(ctx).Info("validated upload",
		"file", up.name,
		"bytes", rep.BytesRead,
		"rows", rep.TotalRows,
		"errors", len(rep.Errors),
		"duration_ms", rep.Duration.Milliseconds(),
	)

	if wantsHTML(r) {
		component := report.Summary(rep)
		if !isHTMX(r) {
			component = report.Page(k.Info.Label+" validation", rep)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := component.Render(ctx, w); err != nil {
			logging.FromContext(ctx).Error("render report", "error", err)
		}
		return
	}
	writeJSON(w, r, rep)
}

// handleImport loads the valid rows of an uploaded document into the kind's
// table in one transaction. Rows that fail to map are skipped and counted.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	k, err := kindParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	ctx := logging.ContextWith(r.Context(), "kind", k.Info.Key)
	r = r.WithContext(ctx)

	if s.pool == nil {
		respondError(w, r, errImportsDisabled)
		return
	}
	if !k.Importable() {
		respondError(w, r, fmt.Errorf("%s: %w", k.Info.Key, core.ErrNotImportable))
		return
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		respondError(w, r, err)
		return
	}
	defer s.limiter.Release()

	up, err := s.receive(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer up.Close()

	var res *core.ImportResult
	err = pgsink.InTx(ctx, s.pool, func(c *pgsink.Copier) error {
		var err error
		res, err = k.Import(ctx, s.engine, up.file, up.opts, c)
		return err
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	logging.FromContext(ctx).Info("imported upload",
		"file", up.name,
		"upload_id", res.UploadID,
		"inserted", res.Inserted,
		"skipped", res.Skipped,
		"bytes", res.BytesRead,
		"duration_ms", res.Duration.Milliseconds(),
	)
	writeJSON(w, r, res)
}
