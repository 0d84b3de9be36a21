package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/c360/schemaregistry/compat"
	"github.com/c360/schemaregistry/schema"
)

// RecordResponse is the body returned for a stored schema version.
type RecordResponse struct {
	Schema        schema.Document `json:"schema"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Compatibility *compat.Report  `json:"compatibility,omitempty"`
}

// VersionsResponse lists the versions of one schema.
type VersionsResponse struct {
	Versions []string `json:"versions"`
	Latest   string   `json:"latest"`
	Total    int      `json:"total"`
}

// SchemasResponse lists schema ids.
type SchemasResponse struct {
	Schemas []string `json:"schemas"`
	Total   int      `json:"total"`
}

// DataRequest is the body of POST /schema/{id}/compat.
type DataRequest struct {
	Data json.RawMessage `json:"data"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.registry.Health(r.Context())
	code := http.StatusOK
	if status.IsUnhealthy() {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, status)
}

func (s *Server) handleListSchemas(w http.ResponseWriter, r *http.Request) {
	ids, err := s.registry.ListIDs(r.Context())
	if err != nil {
		s.writeRegistryError(w, r, err, "schemas")
		return
	}
	if ids == nil {
		ids = []string{}
	}
	s.writeJSON(w, http.StatusOK, SchemasResponse{Schemas: ids, Total: len(ids)})
}

func (s *Server) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	v := r.URL.Query().Get("version")

	rec, err := s.registry.Get(r.Context(), id, v)
	if err != nil {
		s.writeRegistryError(w, r, err, subject(id, v))
		return
	}
	s.writeJSON(w, http.StatusOK, RecordResponse{
		Schema:    rec.Schema,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	})
}

func (s *Server) handleCreateSchema(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	doc, err := decodeDocument(r.Body)
	if err != nil {
		if _, kind := statusFor(err); kind == kindTooLarge {
			s.writeRegistryError(w, r, err, "")
			return
		}
		s.writeError(w, http.StatusBadRequest, kindInvalidRequest, "request body is not a valid schema document", nil)
		return
	}

	if doc.ID == "" {
		doc.ID = id
	}
	if doc.ID != id {
		s.writeError(w, http.StatusBadRequest, kindInvalidRequest,
			fmt.Sprintf("schema id '%s' does not match path id '%s'", doc.ID, id), nil)
		return
	}

	res, err := s.registry.Create(r.Context(), doc)
	if err != nil {
		s.writeRegistryError(w, r, err, subject(id, doc.Version))
		return
	}
	s.writeJSON(w, http.StatusCreated, RecordResponse{
		Schema:        res.Record.Schema,
		CreatedAt:     res.Record.CreatedAt,
		UpdatedAt:     res.Record.UpdatedAt,
		Compatibility: res.Report,
	})
}

func (s *Server) handleDeleteSchema(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	v := r.URL.Query().Get("version")

	deleted, err := s.registry.Delete(r.Context(), id, v)
	if err != nil {
		s.writeRegistryError(w, r, err, subject(id, v))
		return
	}
	if !deleted {
		s.writeError(w, http.StatusNotFound, kindNotFound, fmt.Sprintf("%s not found", subject(id, v)), nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	list, err := s.registry.ListVersions(r.Context(), id)
	if err != nil {
		s.writeRegistryError(w, r, err, subject(id, ""))
		return
	}
	if len(list.Versions) == 0 {
		s.writeError(w, http.StatusNotFound, kindNotFound, fmt.Sprintf("no versions found for schema '%s'", id), nil)
		return
	}
	s.writeJSON(w, http.StatusOK, VersionsResponse{
		Versions: list.Versions,
		Latest:   list.Latest,
		Total:    len(list.Versions),
	})
}

func (s *Server) handleValidateData(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req DataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if _, kind := statusFor(err); kind == kindTooLarge {
			s.writeRegistryError(w, r, err, "")
			return
		}
		s.writeError(w, http.StatusBadRequest, kindInvalidRequest, "request body must be {\"data\": ...}", nil)
		return
	}
	var data any
	if len(req.Data) > 0 {
		if err := json.Unmarshal(req.Data, &data); err != nil {
			s.writeError(w, http.StatusBadRequest, kindInvalidRequest, "data is not valid JSON", nil)
			return
		}
	}

	result, err := s.registry.ValidateData(r.Context(), id, data)
	if err != nil {
		s.writeRegistryError(w, r, err, subject(id, ""))
		return
	}
	if result.Errors == nil {
		result.Errors = []string{}
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCheckVersions(w http.ResponseWriter, r *http.Request) {
	id, from, to := r.PathValue("id"), r.PathValue("from"), r.PathValue("to")

	report, err := s.registry.CheckVersions(r.Context(), id, from, to)
	if err != nil {
		s.writeRegistryError(w, r, err, fmt.Sprintf("schema '%s' version '%s' or '%s'", id, from, to))
		return
	}
	if report.BreakingChanges == nil {
		report.BreakingChanges = []string{}
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleDiffVersions(w http.ResponseWriter, r *http.Request) {
	id, from, to := r.PathValue("id"), r.PathValue("from"), r.PathValue("to")

	diff, err := s.registry.DiffVersions(r.Context(), id, from, to)
	if err != nil {
		s.writeRegistryError(w, r, err, fmt.Sprintf("schema '%s' version '%s' or '%s'", id, from, to))
		return
	}
	s.writeJSON(w, http.StatusOK, diff)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		s.writeError(w, http.StatusNotFound, kindNotFound, "cache is not configured", nil)
		return
	}
	s.writeJSON(w, http.StatusOK, s.cache.Stats(r.Context()))
}

// decodeDocument accepts a bare document or one wrapped as {"schema": {...}}.
func decodeDocument(body io.Reader) (*schema.Document, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, err
	}
	if wrapped, ok := top["schema"]; ok && len(wrapped) > 0 && wrapped[0] == '{' {
		raw = wrapped
	}

	var doc schema.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func subject(id, v string) string {
	if v == "" {
		return fmt.Sprintf("schema '%s'", id)
	}
	return fmt.Sprintf("schema '%s' version '%s'", id, v)
}
