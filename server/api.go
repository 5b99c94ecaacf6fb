package server

import (
	"net/http"
	"strconv"

	"github.com/teranos/attackls/attack"
	"github.com/teranos/attackls/errors"
	"github.com/teranos/attackls/logger"
	"github.com/teranos/attackls/lsp"
	"github.com/teranos/attackls/version"
)

// TechniqueResponse is the JSON form of a technique
type TechniqueResponse struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	FullName     string   `json:"full_name"`
	URL          string   `json:"url"`
	Tactics      []string `json:"tactics"`
	Revoked      bool     `json:"revoked"`
	Deprecated   bool     `json:"deprecated"`
	Subtechnique bool     `json:"subtechnique"`
	Parent       string   `json:"parent,omitempty"`
	Markdown     string   `json:"markdown,omitempty"`
}

// HealthResponse reports server and dataset status
type HealthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	Techniques int    `json:"techniques"`
	Active     int    `json:"active"`
	Revoked    int    `json:"revoked"`
}

// NewTechniqueResponse converts t to its JSON form without markdown
func NewTechniqueResponse(t *attack.Technique) TechniqueResponse {
	resp := TechniqueResponse{
		ID:           t.ID,
		Name:         t.Name,
		FullName:     t.FullName(),
		URL:          t.URL,
		Tactics:      t.Tactics,
		Revoked:      t.Revoked,
		Deprecated:   t.Deprecated,
		Subtechnique: t.Subtechnique,
	}
	if resp.Tactics == nil {
		resp.Tactics = []string{}
	}
	if t.Parent != nil {
		resp.Parent = t.Parent.ID
	}
	return resp
}

// HandleHealth reports liveness and dataset size
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	idx := s.service.Index()
	_ = writeJSON(w, http.StatusOK, HealthResponse{
		Status:     "ok",
		Version:    version.Get().ServerVersion(),
		Techniques: idx.Len(),
		Active:     len(idx.Active()),
		Revoked:    len(idx.Revoked()),
	})
}

// HandleTechnique serves GET /api/techniques/{id}?mode=short|long|link
func (s *Server) HandleTechnique(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var mode attack.Mode
	if m := r.URL.Query().Get("mode"); m != "" {
		parsed, err := attack.ParseMode(m)
		if err != nil {
			writeServiceError(w, errors.NewInvalidRequestError("mode: %s", err.Error()))
			return
		}
		mode = parsed
	}

	markdown, err := s.service.Describe(id, mode)
	s.metrics.lookup(lookupAPITechnique, err == nil)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	t, _ := s.service.Index().ByID(attack.NormalizeID(id))
	resp := NewTechniqueResponse(t)
	resp.Markdown = markdown
	_ = writeJSON(w, http.StatusOK, resp)
}

// HandleTechniques serves GET /api/techniques?prefix=T10, listing techniques by id prefix
func (s *Server) HandleTechniques(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")

	matches := s.service.Index().WithPrefix(prefix)
	s.metrics.lookup(lookupAPIList, len(matches) > 0)
	out := make([]TechniqueResponse, len(matches))
	for i, t := range matches {
		out[i] = NewTechniqueResponse(t)
	}
	_ = writeJSON(w, http.StatusOK, out)
}

// HandleComplete serves GET /api/complete?term=..&manual=true
func (s *Server) HandleComplete(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	term := q.Get("term")

	trigger := lsp.TriggerAuto
	if v := q.Get("manual"); v != "" {
		manual, err := strconv.ParseBool(v)
		if err != nil {
			writeServiceError(w, errors.NewInvalidRequestError("manual must be a boolean, got %q", v))
			return
		}
		if manual {
			trigger = lsp.TriggerManual
		}
	}

	items, err := s.service.GetCompletions(r.Context(), lsp.CompletionRequest{
		Text:    term,
		Offset:  len(term),
		Trigger: trigger,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	s.metrics.completed(lookupAPIComplete, len(items))
	logger.LoggerFromContext(r.Context()).Debugw("API completion",
		logger.FieldTerm, term,
		logger.FieldCount, len(items),
	)
	_ = writeJSON(w, http.StatusOK, items)
}
