package handler

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"

	"attacknav/internal/codec"
	"attacknav/internal/service"
)

// LayerHandler handles layer API requests
type LayerHandler struct {
	svc    *service.LayerService
	logger *slog.Logger
}

// NewLayerHandler creates a new layer handler
func NewLayerHandler(svc *service.LayerService, logger *slog.Logger) *LayerHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LayerHandler{svc: svc, logger: logger.With("component", "handler")}
}

// ListLayers returns stored layer summaries
func (h *LayerHandler) ListLayers(w http.ResponseWriter, r *http.Request) {
	layers, err := h.svc.ListLayers(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, "list layers", err)
		return
	}
	writeJSON(w, layers, http.StatusOK)
}

// CreateLayer creates an empty layer
func (h *LayerHandler) CreateLayer(w http.ResponseWriter, r *http.Request) {
	var req service.CreateLayerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	l, err := h.svc.CreateLayer(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, "create layer", err)
		return
	}
	writeJSON(w, service.View(l), http.StatusCreated)
}

// GetLayer returns a single layer
func (h *LayerHandler) GetLayer(w http.ResponseWriter, r *http.Request) {
	l, err := h.svc.GetLayer(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, h.logger, "get layer", err)
		return
	}
	writeJSON(w, service.View(l), http.StatusOK)
}

// DeleteLayer removes a layer
func (h *LayerHandler) DeleteLayer(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteLayer(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, h.logger, "delete layer", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateSettings changes layer-wide settings: gradient, filters, sorting
// and layout
func (h *LayerHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch service.SettingsPatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	l, err := h.svc.UpdateSettings(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeServiceError(w, h.logger, "update layer settings", err)
		return
	}
	writeJSON(w, service.View(l), http.StatusOK)
}

// Matrix returns the filtered and sorted tactic columns of a layer
func (h *LayerHandler) Matrix(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.Matrix(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, h.logger, "render layer matrix", err)
		return
	}
	writeJSON(w, views, http.StatusOK)
}

// PatchTechnique updates the annotation of one technique-tactic pair
func (h *LayerHandler) PatchTechnique(w http.ResponseWriter, r *http.Request) {
	var patch service.TechniquePatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	tvm, err := h.svc.PatchTechnique(r.Context(), r.PathValue("id"), r.PathValue("unionID"), patch)
	if err != nil {
		writeServiceError(w, h.logger, "update technique", err)
		return
	}
	writeJSON(w, tvm, http.StatusOK)
}

// ResetTechnique clears the annotation of one technique-tactic pair
func (h *LayerHandler) ResetTechnique(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ResetTechnique(r.Context(), r.PathValue("id"), r.PathValue("unionID")); err != nil {
		writeServiceError(w, h.logger, "reset technique", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Compose builds a new layer from an expression over stored layers
func (h *LayerHandler) Compose(w http.ResponseWriter, r *http.Request) {
	var req service.ComposeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	l, err := h.svc.Compose(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, "compose layers", err)
		return
	}
	writeJSON(w, service.View(l), http.StatusCreated)
}

// Colors returns the display color of every colored union id
func (h *LayerHandler) Colors(w http.ResponseWriter, r *http.Request) {
	colors, err := h.svc.Colors(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, h.logger, "resolve colors", err)
		return
	}
	writeJSON(w, colors, http.StatusOK)
}

// Mitigations scores the domain's mitigations by the layer
func (h *LayerHandler) Mitigations(w http.ResponseWriter, r *http.Request) {
	scored, err := h.svc.Mitigations(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, h.logger, "score mitigations", err)
		return
	}
	writeJSON(w, scored, http.StatusOK)
}

// ImportLayer stores an uploaded layer document. The format follows
// ?format= when given, else the Content-Type.
func (h *LayerHandler) ImportLayer(w http.ResponseWriter, r *http.Request) {
	var c codec.Codec
	if format := r.URL.Query().Get("format"); format != "" {
		var err error
		if c, err = codec.ForFormat(format); err != nil {
			writeError(w, "Unsupported format", err.Error(), http.StatusBadRequest)
			return
		}
	} else {
		c = codec.ForContentType(r.Header.Get("Content-Type"))
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	l, err := h.svc.Import(r.Context(), r.Body, c)
	if err != nil {
		writeServiceError(w, h.logger, "import layer", err)
		return
	}
	writeJSON(w, service.View(l), http.StatusCreated)
}

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ExportLayer downloads a layer document as ?format=json (default) or yaml
func (h *LayerHandler) ExportLayer(w http.ResponseWriter, r *http.Request) {
	c, err := codec.ForFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, "Unsupported format", err.Error(), http.StatusBadRequest)
		return
	}

	id := r.PathValue("id")
	var buf bytes.Buffer
	if err := h.svc.Export(r.Context(), id, &buf, c); err != nil {
		writeServiceError(w, h.logger, "export layer", err)
		return
	}

	filename := unsafeFilename.ReplaceAllString(id, "_") + "." + c.Format()
	w.Header().Set("Content-Type", c.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	w.Write(buf.Bytes())
}
