package handler

import "net/http"

// Register adds every API route to mux. events serves the SSE stream and
// may be nil.
func Register(mux *http.ServeMux, domains *DomainHandler, layers *LayerHandler, events http.Handler) {
	// Domain endpoints
	mux.HandleFunc("GET /api/domains", domains.ListDomains)
	mux.HandleFunc("POST /api/domains/{id}/load", domains.LoadDomain)
	mux.HandleFunc("GET /api/domains/{id}/techniques", domains.ListTechniques)
	mux.HandleFunc("GET /api/domains/{id}/techniques/{attackID}", domains.GetTechnique)
	mux.HandleFunc("GET /api/domains/{id}/chains/{attackID}", domains.Chains)
	mux.HandleFunc("GET /api/changelog", domains.Changelog)

	// Layer endpoints
	mux.HandleFunc("GET /api/layers", layers.ListLayers)
	mux.HandleFunc("POST /api/layers", layers.CreateLayer)
	mux.HandleFunc("POST /api/layers/compose", layers.Compose)
	mux.HandleFunc("GET /api/layers/{id}", layers.GetLayer)
	mux.HandleFunc("PATCH /api/layers/{id}", layers.UpdateSettings)
	mux.HandleFunc("DELETE /api/layers/{id}", layers.DeleteLayer)
	mux.HandleFunc("GET /api/layers/{id}/matrix", layers.Matrix)
	mux.HandleFunc("PUT /api/layers/{id}/techniques/{unionID}", layers.PatchTechnique)
	mux.HandleFunc("DELETE /api/layers/{id}/techniques/{unionID}", layers.ResetTechnique)
	mux.HandleFunc("GET /api/layers/{id}/colors", layers.Colors)
	mux.HandleFunc("GET /api/layers/{id}/mitigations", layers.Mitigations)
	mux.HandleFunc("GET /api/layers/{id}/export", layers.ExportLayer)

	// Import endpoints
	mux.HandleFunc("POST /api/import/layer", layers.ImportLayer)

	// SSE events endpoint
	if events != nil {
		mux.Handle("GET /events", events)
	}
}
