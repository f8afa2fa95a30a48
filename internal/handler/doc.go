// Package handler implements the HTTP API over the domain and layer
// services.
//
// DomainHandler serves configured ATT&CK domain versions: load state,
// technique lookups, changelogs between versions and attack chains.
//
// LayerHandler serves stored layers: creation, per-technique annotation
// patches, composition, derived colors and mitigation scores, and
// import/export of layer documents in JSON or YAML.
//
// Errors are returned as JSON with an {error, details} structure. Missing
// records map to 404, unusable input to 400 and upstream fetch failures
// to 502.
//
// Middleware provides panic recovery, CORS and request logging.
package handler
