package repository

import (
	"context"
	"errors"
	"time"

	"attacknav/internal/layer"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("not found")

// LayerSummary is the listing form of a stored layer
type LayerSummary struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	DomainVersionID string    `json:"domain_version_id"`
	Techniques      int       `json:"techniques"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Snapshot holds the raw bundles a domain version was built from
type Snapshot struct {
	DomainVersionID string
	Fingerprint     string
	Bundles         [][]byte
	FetchedAt       time.Time
}

// SnapshotInfo is the listing form of a snapshot
type SnapshotInfo struct {
	DomainVersionID string    `json:"domain_version_id"`
	Fingerprint     string    `json:"fingerprint"`
	Bundles         int       `json:"bundles"`
	FetchedAt       time.Time `json:"fetched_at"`
}

// LayerStore persists layers. Every read returns a fresh value.
type LayerStore interface {
	ListLayers(ctx context.Context) ([]LayerSummary, error)
	GetLayer(ctx context.Context, id string) (*layer.Layer, error)
	SaveLayer(ctx context.Context, l *layer.Layer) error
	DeleteLayer(ctx context.Context, id string) error
}

// SnapshotStore persists domain snapshots
type SnapshotStore interface {
	GetSnapshot(ctx context.Context, domainVersionID string) (*Snapshot, error)
	SaveSnapshot(ctx context.Context, s *Snapshot) error
	ListSnapshots(ctx context.Context) ([]SnapshotInfo, error)
}

// Repository combines all stores
type Repository interface {
	LayerStore
	SnapshotStore

	// Close releases resources
	Close() error
}
