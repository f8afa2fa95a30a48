package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"attacknav/internal/layer"
	"attacknav/internal/repository"

	_ "modernc.org/sqlite"
)

// Repository implements repository.Repository using SQLite
type Repository struct {
	db *sql.DB
}

var _ repository.Repository = (*Repository)(nil)

// New creates a new SQLite repository. ":memory:" opens a private
// in-memory database.
func New(dbPath string) (*Repository, error) {
	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	memory := dbPath == ":memory:" || strings.Contains(dbPath, "mode=memory")
	if memory {
		dsn = ":memory:"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if memory {
		// every connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}

	repo := &Repository{db: db}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS layers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		domain_version_id TEXT NOT NULL,
		description TEXT,
		document JSON NOT NULL,
		techniques INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS snapshots (
		domain_version_id TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL,
		fetched_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS snapshot_bundles (
		domain_version_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		data BLOB NOT NULL,
		PRIMARY KEY (domain_version_id, position),
		FOREIGN KEY (domain_version_id) REFERENCES snapshots(domain_version_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_layers_domain ON layers(domain_version_id);
	`

	_, err := r.db.Exec(schema)
	return err
}

// ListLayers returns all layers, most recently updated first
func (r *Repository) ListLayers(ctx context.Context) ([]repository.LayerSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, domain_version_id, techniques, updated_at
		FROM layers ORDER BY updated_at DESC, name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query layers: %w", err)
	}
	defer rows.Close()

	summaries := []repository.LayerSummary{}
	for rows.Next() {
		var (
			s         repository.LayerSummary
			updatedAt int64
		)
		if err := rows.Scan(&s.ID, &s.Name, &s.DomainVersionID, &s.Techniques, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan layer: %w", err)
		}
		s.UpdatedAt = unixToTime(updatedAt)
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating layers: %w", err)
	}

	return summaries, nil
}

// GetLayer loads a layer by id
func (r *Repository) GetLayer(ctx context.Context, id string) (*layer.Layer, error) {
	var (
		domainVersionID string
		description     sql.NullString
		data            []byte
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT domain_version_id, description, document FROM layers WHERE id = ?
	`, id).Scan(&domainVersionID, &description, &data)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("layer %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query layer: %w", err)
	}

	var doc layer.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal layer document: %w", err)
	}

	// stored documents always carry a tactic, so no domain is needed
	l, err := layer.FromDocument(&doc, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load layer %s: %w", id, err)
	}
	l.ID = id
	l.DomainVersionID = domainVersionID
	l.Description = nullToString(description)

	return l, nil
}

// SaveLayer inserts or updates a layer
func (r *Repository) SaveLayer(ctx context.Context, l *layer.Layer) error {
	doc := l.Document()
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal layer document: %w", err)
	}

	now := timeToUnix(time.Time{})
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO layers (id, name, domain_version_id, description, document, techniques, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			domain_version_id = excluded.domain_version_id,
			description = excluded.description,
			document = excluded.document,
			techniques = excluded.techniques,
			updated_at = excluded.updated_at
	`, l.ID, l.Name, l.DomainVersionID, stringToNull(l.Description), data, len(doc.Techniques), now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert layer: %w", err)
	}

	return nil
}

// DeleteLayer removes a layer
func (r *Repository) DeleteLayer(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM layers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete layer: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check deleted rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("layer %s: %w", id, repository.ErrNotFound)
	}

	return nil
}

// GetSnapshot loads the bundles stored for a domain version
func (r *Repository) GetSnapshot(ctx context.Context, domainVersionID string) (*repository.Snapshot, error) {
	var fetchedAt int64
	s := &repository.Snapshot{DomainVersionID: domainVersionID}

	err := r.db.QueryRowContext(ctx, `
		SELECT fingerprint, fetched_at FROM snapshots WHERE domain_version_id = ?
	`, domainVersionID).Scan(&s.Fingerprint, &fetchedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("snapshot %s: %w", domainVersionID, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}
	s.FetchedAt = unixToTime(fetchedAt)

	rows, err := r.db.QueryContext(ctx, `
		SELECT data FROM snapshot_bundles WHERE domain_version_id = ? ORDER BY position
	`, domainVersionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot bundles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot bundle: %w", err)
		}
		s.Bundles = append(s.Bundles, data)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshot bundles: %w", err)
	}

	return s, nil
}

// SaveSnapshot replaces the snapshot of a domain version
func (r *Repository) SaveSnapshot(ctx context.Context, s *repository.Snapshot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM snapshot_bundles WHERE domain_version_id = ?
	`, s.DomainVersionID); err != nil {
		return fmt.Errorf("failed to clear snapshot bundles: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO snapshots (domain_version_id, fingerprint, fetched_at)
		VALUES (?, ?, ?)
		ON CONFLICT(domain_version_id) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			fetched_at = excluded.fetched_at
	`, s.DomainVersionID, s.Fingerprint, timeToUnix(s.FetchedAt)); err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}

	for i, bundle := range s.Bundles {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO snapshot_bundles (domain_version_id, position, data) VALUES (?, ?, ?)
		`, s.DomainVersionID, i, bundle); err != nil {
			return fmt.Errorf("failed to insert snapshot bundle: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ListSnapshots describes every stored snapshot
func (r *Repository) ListSnapshots(ctx context.Context) ([]repository.SnapshotInfo, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.domain_version_id, s.fingerprint, s.fetched_at, COUNT(b.position)
		FROM snapshots s
		LEFT JOIN snapshot_bundles b ON b.domain_version_id = s.domain_version_id
		GROUP BY s.domain_version_id
		ORDER BY s.domain_version_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	infos := []repository.SnapshotInfo{}
	for rows.Next() {
		var (
			info      repository.SnapshotInfo
			fetchedAt int64
		)
		if err := rows.Scan(&info.DomainVersionID, &info.Fingerprint, &fetchedAt, &info.Bundles); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		info.FetchedAt = unixToTime(fetchedAt)
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}

	return infos, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}
