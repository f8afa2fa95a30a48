package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"attacknav/internal/chain"
	"attacknav/internal/domain"
	"attacknav/internal/service"
)

// DomainService is the part of service.DomainService the handler uses
type DomainService interface {
	Domains() []service.DomainInfo
	Load(ctx context.Context, id string, refresh bool) (*domain.Domain, error)
	Techniques(ctx context.Context, id string) ([]*domain.Technique, error)
	Technique(ctx context.Context, id, attackID string) (*service.TechniqueDetail, error)
	Compare(ctx context.Context, oldID, newID string) (*service.Comparison, error)
	Chains(ctx context.Context, id, attackID string) (*chain.Result, error)
}

// DomainHandler handles domain API requests
type DomainHandler struct {
	svc    DomainService
	logger *slog.Logger
}

// NewDomainHandler creates a new domain handler
func NewDomainHandler(svc DomainService, logger *slog.Logger) *DomainHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DomainHandler{svc: svc, logger: logger.With("component", "handler")}
}

// ListDomains returns every configured domain version and its load state
func (h *DomainHandler) ListDomains(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.svc.Domains(), http.StatusOK)
}

// LoadDomain loads a domain version, refetching it when refresh is set
func (h *DomainHandler) LoadDomain(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	refresh := false
	if v := r.URL.Query().Get("refresh"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, "Invalid refresh flag", err.Error(), http.StatusBadRequest)
			return
		}
		refresh = b
	}

	d, err := h.svc.Load(r.Context(), id, refresh)
	if err != nil {
		writeServiceError(w, h.logger, "load domain", err)
		return
	}

	writeJSON(w, map[string]any{
		"id":            d.ID,
		"techniques":    len(d.Techniques),
		"subtechniques": len(d.Subtechniques),
		"tactics":       len(d.Tactics),
		"platforms":     d.Platforms,
	}, http.StatusOK)
}

// ListTechniques returns the techniques of a domain version
func (h *DomainHandler) ListTechniques(w http.ResponseWriter, r *http.Request) {
	techniques, err := h.svc.Techniques(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, h.logger, "list techniques", err)
		return
	}
	writeJSON(w, techniques, http.StatusOK)
}

// GetTechnique returns one technique with its related objects
func (h *DomainHandler) GetTechnique(w http.ResponseWriter, r *http.Request) {
	detail, err := h.svc.Technique(r.Context(), r.PathValue("id"), r.PathValue("attackID"))
	if err != nil {
		writeServiceError(w, h.logger, "get technique", err)
		return
	}
	writeJSON(w, detail, http.StatusOK)
}

// Changelog compares two domain versions given as ?old=&new=
func (h *DomainHandler) Changelog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cmp, err := h.svc.Compare(r.Context(), q.Get("old"), q.Get("new"))
	if err != nil {
		writeServiceError(w, h.logger, "compare domains", err)
		return
	}
	writeJSON(w, cmp, http.StatusOK)
}

// Chains returns the attack chains through a technique
func (h *DomainHandler) Chains(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.Chains(r.Context(), r.PathValue("id"), r.PathValue("attackID"))
	if err != nil {
		writeServiceError(w, h.logger, "build chains", err)
		return
	}
	writeJSON(w, result, http.StatusOK)
}
