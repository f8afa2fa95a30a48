// Package service implements the application logic of attacknav.
//
// This package coordinates the HTTP handlers, the CLI and the watcher with
// the pure core packages (loader, layer, compose, changelog, chain) and the
// repository.
//
// # Services
//
// DomainService owns the loaded ATT&CK domains. It fetches the bundles of a
// configured domain version concurrently, fingerprints them so unchanged
// content is not parsed twice, keeps a snapshot in the repository for
// offline restarts, and builds a second model including revoked and
// deprecated objects on demand for changelogs.
//
// LayerService manages stored layers: creation, per-technique annotation
// patches, composition, derived colors and mitigation scores, and
// import/export through the codec package.
//
// # Event System
//
// Services publish events via EventBus for real-time updates to connected
// clients via Server-Sent Events (SSE).
//
// # Tracing
//
// Domain loads and compositions run inside OpenTelemetry spans from the
// global tracer provider unless a tracer is set explicitly.
package service
