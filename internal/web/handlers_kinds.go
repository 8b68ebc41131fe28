package web

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/rowbind/internal/codec"
	"github.com/JonMunkholm/rowbind/internal/core"
)

// KindResponse describes a record kind to API clients.
type KindResponse struct {
	Key         string   `json:"key"`
	Group       string   `json:"group"`
	Label       string   `json:"label"`
	Description string   `json:"description,omitempty"`
	Importable  bool     `json:"importable"`
	Headers     []string `json:"headers"`
}

// GroupResponse lists the kinds of one display group.
type GroupResponse struct {
	Group string         `json:"group"`
	Kinds []KindResponse `json:"kinds"`
}

func (s *Server) kindResponse(k core.Kind) (KindResponse, error) {
	headers, err := k.Headers(s.engine)
	if err != nil {
		return KindResponse{}, fmt.Errorf("kind %s: %w", k.Info.Key, err)
	}
	return KindResponse{
		Key:         k.Info.Key,
		Group:       k.Info.Group,
		Label:       k.Info.Label,
		Description: k.Info.Description,
		Importable:  k.Importable() && s.pool != nil,
		Headers:     headers,
	}, nil
}

// kindParam returns the kind named by the {kind} URL parameter.
func kindParam(r *http.Request) (core.Kind, error) {
	key := chi.URLParam(r, "kind")
	k, ok := core.Get(key)
	if !ok {
		return core.Kind{}, fmt.Errorf("%w: %q", core.ErrUnknownKind, key)
	}
	return k, nil
}

// handleListKinds returns every registered kind, grouped for display.
func (s *Server) handleListKinds(w http.ResponseWriter, r *http.Request) {
	byGroup := make(map[string]*GroupResponse)
	var groups []*GroupResponse
	for _, k := range core.All() {
		kr, err := s.kindResponse(k)
		if err != nil {
			respondError(w, r, err)
			return
		}
		g, ok := byGroup[k.Info.Group]
		if !ok {
			g = &GroupResponse{Group: k.Info.Group}
			byGroup[k.Info.Group] = g
			groups = append(groups, g)
		}
		g.Kinds = append(g.Kinds, kr)
	}

	out := make([]GroupResponse, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	writeJSON(w, r, out)
}

// handleGetKind returns one kind with its expected headers.
func (s *Server) handleGetKind(w http.ResponseWriter, r *http.Request) {
	k, err := kindParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	kr, err := s.kindResponse(k)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, kr)
}

// handleTemplate returns an empty document holding only the header row.
// The format query parameter picks csv (default), tsv or xlsx.
func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	k, err := kindParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	format := codec.FormatCSV
	if name := r.URL.Query().Get("format"); name != "" {
		if format, err = codec.ParseFormat(name); err != nil {
			respondError(w, r, err)
			return
		}
	}

	var buf bytes.Buffer
	if err := k.Template(s.engine, &buf, format); err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s_template.%s"`, k.Info.Key, format))
	_, _ = w.Write(buf.Bytes())
}
