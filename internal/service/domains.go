package service

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"attacknav/internal/chain"
	"attacknav/internal/changelog"
	"attacknav/internal/config"
	"attacknav/internal/domain"
	"attacknav/internal/loader"
	"attacknav/internal/repository"
	"attacknav/internal/transport"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"
)

const tracerName = "attacknav/service"

// Fetcher retrieves raw bundles
type Fetcher interface {
	Fetch(ctx context.Context, req transport.Request) ([]byte, error)
}

// DomainInfo describes a configured domain version and its load state
type DomainInfo struct {
	config.DomainVersion
	Loaded      bool           `json:"loaded"`
	LoadedAt    *time.Time     `json:"loaded_at,omitempty"`
	Source      string         `json:"source,omitempty"`
	Fingerprint string         `json:"fingerprint,omitempty"`
	Techniques  int            `json:"techniques"`
	Report      *loader.Report `json:"report,omitempty"`
}

// Comparison is the changelog between two domain versions
type Comparison struct {
	Old       string               `json:"old"`
	New       string               `json:"new"`
	Changelog *changelog.Changelog `json:"changelog"`
	Removed   []string             `json:"removed"`
}

// Load sources
const (
	SourceFetch    = "fetch"
	SourceSnapshot = "snapshot"
	SourceLocal    = "local"
)

type loadedDomain struct {
	version     config.DomainVersion
	live        *domain.Domain
	full        *domain.Domain
	report      *loader.Report
	bundles     [][]byte
	fingerprint string
	source      string
	loadedAt    time.Time
}

// DomainService owns the loaded domains. Domains are replaced, never
// mutated, so callers may keep using a *domain.Domain after a reload.
type DomainService struct {
	fetcher   Fetcher
	snapshots repository.SnapshotStore
	eventBus  *EventBus
	logger    *slog.Logger
	tracer    trace.Tracer

	// concurrency bounds parallel bundle fetches per domain
	concurrency int

	mu       sync.RWMutex
	versions map[string]config.DomainVersion
	order    []string
	loaded   map[string]*loadedDomain
}

// NewDomainService creates a domain service for the configured versions.
// snapshots and eventBus may be nil.
func NewDomainService(versions []config.DomainVersion, fetcher Fetcher, snapshots repository.SnapshotStore, eventBus *EventBus, logger *slog.Logger) *DomainService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &DomainService{
		fetcher:     fetcher,
		snapshots:   snapshots,
		eventBus:    eventBus,
		logger:      logger.With("component", "domains"),
		tracer:      otel.Tracer(tracerName),
		concurrency: 4,
		versions:    make(map[string]config.DomainVersion),
		loaded:      make(map[string]*loadedDomain),
	}
	for _, v := range versions {
		s.register(v)
	}
	return s
}

// SetTracer replaces the tracer used for load spans
func (s *DomainService) SetTracer(tracer trace.Tracer) {
	s.tracer = tracer
}

func (s *DomainService) register(v config.DomainVersion) {
	if _, ok := s.versions[v.ID]; !ok {
		s.order = append(s.order, v.ID)
	}
	s.versions[v.ID] = v
}

// Domains lists every known domain version in configuration order
func (s *DomainService) Domains() []DomainInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]DomainInfo, 0, len(s.order))
	for _, id := range s.order {
		info := DomainInfo{DomainVersion: s.versions[id]}
		if ld, ok := s.loaded[id]; ok {
			loadedAt := ld.loadedAt
			info.Loaded = true
			info.LoadedAt = &loadedAt
			info.Source = ld.source
			info.Fingerprint = ld.fingerprint
			info.Techniques = len(ld.live.Techniques) + len(ld.live.Subtechniques)
			info.Report = ld.report
		}
		infos = append(infos, info)
	}
	return infos
}

// Loaded returns the live domain if it has been loaded
func (s *DomainService) Loaded(id string) (*domain.Domain, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ld, ok := s.loaded[id]
	if !ok {
		return nil, false
	}
	return ld.live, true
}

// Domain returns the live domain, loading it on first use
func (s *DomainService) Domain(ctx context.Context, id string) (*domain.Domain, error) {
	if d, ok := s.Loaded(id); ok {
		return d, nil
	}
	return s.Load(ctx, id, false)
}

// Load fetches and parses a domain version. Without refresh an already
// loaded domain is returned as is. When fetching fails the last snapshot
// is used, if there is one.
func (s *DomainService) Load(ctx context.Context, id string, refresh bool) (*domain.Domain, error) {
	ctx, span := s.tracer.Start(ctx, "domain.load", trace.WithAttributes(
		attribute.String("domain.id", id),
		attribute.Bool("domain.refresh", refresh),
	))
	defer span.End()

	s.mu.RLock()
	v, known := s.versions[id]
	ld, loaded := s.loaded[id]
	s.mu.RUnlock()

	if !known {
		span.SetStatus(codes.Error, "unknown domain")
		return nil, fmt.Errorf("%w: %s", ErrUnknownDomain, id)
	}
	if loaded && !refresh {
		span.SetAttributes(attribute.String("domain.source", "memory"))
		return ld.live, nil
	}

	source := SourceFetch
	bundles, err := s.fetchAll(ctx, v, refresh)
	if err != nil {
		snapshot, snapErr := s.snapshot(ctx, id)
		if snapErr != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "fetch failed")
			s.eventBus.Publish(Event{
				Type:    EventDomainLoadFailed,
				Payload: map[string]string{"domain": id, "error": err.Error()},
			})
			return nil, fmt.Errorf("failed to load %s: %w", id, err)
		}
		s.logger.Warn("fetch failed, using snapshot", "domain", id, "error", err, "fetched_at", snapshot.FetchedAt)
		bundles = snapshot.Bundles
		source = SourceSnapshot
	}

	d, err := s.install(ctx, v, bundles, source)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse failed")
		return nil, err
	}
	span.SetAttributes(attribute.String("domain.source", source))
	span.SetStatus(codes.Ok, "loaded")
	return d, nil
}

// LoadBundles installs bundles obtained elsewhere, such as a watched
// directory. Unknown ids are registered from their identifier and version.
func (s *DomainService) LoadBundles(ctx context.Context, id string, bundles [][]byte) (*domain.Domain, error) {
	s.mu.Lock()
	v, ok := s.versions[id]
	if !ok {
		identifier, version := domain.SplitVersionID(id)
		v = config.DomainVersion{ID: id, Name: identifier, Identifier: identifier, Version: version}
		s.register(v)
	}
	s.mu.Unlock()

	return s.install(ctx, v, bundles, SourceLocal)
}

// LoadFile installs a bundle file named <domain-version-id>.json and
// announces the change
func (s *DomainService) LoadFile(ctx context.Context, path string) (*domain.Domain, error) {
	base := filepath.Base(path)
	id := strings.TrimSuffix(base, filepath.Ext(base))
	if identifier, version := domain.SplitVersionID(id); identifier == "" || version == "" {
		return nil, &ValidationError{Field: "path", Reason: fmt.Sprintf("%s is not named <domain>-<version>.json", base)}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle file: %w", err)
	}
	d, err := s.LoadBundles(ctx, id, [][]byte{data})
	if err != nil {
		return nil, err
	}
	s.eventBus.Publish(Event{
		Type:    EventBundleChanged,
		Payload: map[string]string{"domain": id, "path": path},
	})
	return d, nil
}

// Restore installs every stored snapshot of a known domain version without
// touching the network. It returns the number of domains restored.
func (s *DomainService) Restore(ctx context.Context) (int, error) {
	if s.snapshots == nil {
		return 0, nil
	}
	infos, err := s.snapshots.ListSnapshots(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list snapshots: %w", err)
	}

	restored := 0
	for _, info := range infos {
		s.mu.RLock()
		v, known := s.versions[info.DomainVersionID]
		s.mu.RUnlock()
		if !known {
			continue
		}
		snapshot, err := s.snapshots.GetSnapshot(ctx, info.DomainVersionID)
		if err != nil {
			s.logger.Warn("failed to read snapshot", "domain", info.DomainVersionID, "error", err)
			continue
		}
		if _, err := s.install(ctx, v, snapshot.Bundles, SourceSnapshot); err != nil {
			s.logger.Warn("failed to restore snapshot", "domain", info.DomainVersionID, "error", err)
			continue
		}
		restored++
	}
	return restored, nil
}

func (s *DomainService) fetchAll(ctx context.Context, v config.DomainVersion, refresh bool) ([][]byte, error) {
	if len(v.Data) == 0 {
		return nil, fmt.Errorf("domain %s has no data", v.ID)
	}
	var auth *transport.Auth
	if v.Auth != nil {
		auth = &transport.Auth{ServiceName: v.Auth.ServiceName, APIKey: v.Auth.APIKey}
	}

	bundles := make([][]byte, len(v.Data))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, url := range v.Data {
		g.Go(func() error {
			data, err := s.fetcher.Fetch(gctx, transport.Request{URL: url, Auth: auth, Refresh: refresh})
			if err != nil {
				return err
			}
			bundles[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return bundles, nil
}

func (s *DomainService) snapshot(ctx context.Context, id string) (*repository.Snapshot, error) {
	if s.snapshots == nil {
		return nil, repository.ErrNotFound
	}
	return s.snapshots.GetSnapshot(ctx, id)
}

// install parses bundles unless their fingerprint matches what is loaded
func (s *DomainService) install(ctx context.Context, v config.DomainVersion, bundles [][]byte, source string) (*domain.Domain, error) {
	fingerprint := Fingerprint(bundles)

	s.mu.RLock()
	current, ok := s.loaded[v.ID]
	s.mu.RUnlock()
	if ok && current.fingerprint == fingerprint {
		s.logger.Debug("bundles unchanged, keeping parsed domain", "domain", v.ID, "fingerprint", fingerprint)
		return current.live, nil
	}

	meta := domain.Meta{Identifier: v.Identifier, Name: v.Name, Version: v.Version}
	live, report, err := loader.NewParser(loader.Options{}, s.logger).Parse(meta, bundles...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", v.ID, err)
	}

	ld := &loadedDomain{
		version:     v,
		live:        live,
		report:      report,
		bundles:     bundles,
		fingerprint: fingerprint,
		source:      source,
		loadedAt:    time.Now(),
	}
	s.mu.Lock()
	s.loaded[v.ID] = ld
	s.mu.Unlock()

	if source != SourceSnapshot && s.snapshots != nil {
		err := s.snapshots.SaveSnapshot(ctx, &repository.Snapshot{
			DomainVersionID: v.ID,
			Fingerprint:     fingerprint,
			Bundles:         bundles,
			FetchedAt:       ld.loadedAt,
		})
		if err != nil {
			s.logger.Warn("failed to save snapshot", "domain", v.ID, "error", err)
		}
	}

	s.logger.Info("domain loaded",
		"domain", v.ID,
		"source", source,
		"techniques", len(live.Techniques),
		"subtechniques", len(live.Subtechniques),
		"malformed", report.MalformedCount(),
		"unresolved", report.UnresolvedCount())
	s.eventBus.Publish(Event{
		Type: EventDomainLoaded,
		Payload: map[string]any{
			"domain":     v.ID,
			"source":     source,
			"techniques": len(live.Techniques) + len(live.Subtechniques),
			"malformed":  report.MalformedCount(),
		},
	})
	return live, nil
}

// full returns the comparison model of a domain, which keeps revoked and
// deprecated objects. It is built once per loaded fingerprint.
func (s *DomainService) full(ctx context.Context, id string) (*domain.Domain, error) {
	if _, err := s.Domain(ctx, id); err != nil {
		return nil, err
	}

	s.mu.RLock()
	ld := s.loaded[id]
	full := ld.full
	s.mu.RUnlock()
	if full != nil {
		return full, nil
	}

	meta := domain.Meta{Identifier: ld.version.Identifier, Name: ld.version.Name, Version: ld.version.Version}
	full, _, err := loader.NewParser(loader.Options{IncludeInactive: true}, s.logger).Parse(meta, ld.bundles...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s for comparison: %w", id, err)
	}

	s.mu.Lock()
	if s.loaded[id] == ld {
		ld.full = full
	}
	s.mu.Unlock()
	return full, nil
}

// Compare builds the changelog from one domain version to another
func (s *DomainService) Compare(ctx context.Context, oldID, newID string) (*Comparison, error) {
	if oldID == "" || newID == "" {
		return nil, &ValidationError{Field: "versions", Reason: "both old and new are required"}
	}
	ctx, span := s.tracer.Start(ctx, "domain.compare", trace.WithAttributes(
		attribute.String("domain.old", oldID),
		attribute.String("domain.new", newID),
	))
	defer span.End()

	older, err := s.full(ctx, oldID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	newer, err := s.full(ctx, newID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	removed := changelog.Removed(older, newer)
	if removed == nil {
		removed = []string{}
	}
	result := &Comparison{
		Old:       oldID,
		New:       newID,
		Changelog: changelog.Compare(older, newer),
		Removed:   removed,
	}
	span.SetAttributes(attribute.Int("changelog.size", result.Changelog.Len()))
	return result, nil
}

// Chains returns the attack chains through a technique
func (s *DomainService) Chains(ctx context.Context, id, attackID string) (*chain.Result, error) {
	d, err := s.Domain(ctx, id)
	if err != nil {
		return nil, err
	}
	result, err := chain.Build(d, attackID)
	if errors.Is(err, chain.ErrUnknownTechnique) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTechnique, attackID)
	}
	return result, err
}

// Techniques lists the techniques and sub-techniques of a domain, sorted by
// ATT&CK id
func (s *DomainService) Techniques(ctx context.Context, id string) ([]*domain.Technique, error) {
	d, err := s.Domain(ctx, id)
	if err != nil {
		return nil, err
	}
	out := d.AllTechniques()
	sort.Slice(out, func(i, j int) bool { return out[i].AttackID < out[j].AttackID })
	return out, nil
}

// TechniqueDetail is a technique with its related objects
type TechniqueDetail struct {
	*domain.Technique
	UnionIDs      []string             `json:"union_ids"`
	Parent        string               `json:"parent,omitempty"`
	Subtechniques []string             `json:"subtechniques"`
	Mitigations   []*domain.Mitigation `json:"mitigations"`
	Groups        []*domain.Group      `json:"groups"`
	Detections    []Detection          `json:"detections"`
	Notes         []*domain.Note       `json:"notes"`
}

// Detection names a data component that detects a technique and its source
type Detection struct {
	DataComponent string `json:"data_component"`
	DataSource    string `json:"data_source,omitempty"`
}

// Technique looks up one technique or sub-technique by ATT&CK id
func (s *DomainService) Technique(ctx context.Context, id, attackID string) (*TechniqueDetail, error) {
	d, err := s.Domain(ctx, id)
	if err != nil {
		return nil, err
	}
	t, ok := d.TechniqueByAttackID(attackID)
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrUnknownTechnique, attackID, id)
	}

	detail := &TechniqueDetail{
		Technique:     t,
		UnionIDs:      t.TechniqueTacticIDs(),
		Subtechniques: []string{},
		Mitigations:   d.MitigationsFor(t.StixID),
		Groups:        d.GroupsUsing(t.StixID),
		Detections:    []Detection{},
		Notes:         d.NotesFor(t.StixID),
	}
	if parent, ok := d.Parent(t); ok {
		detail.Parent = parent.AttackID
	}
	for _, sub := range d.SubtechniquesOf(t) {
		detail.Subtechniques = append(detail.Subtechniques, sub.AttackID)
	}
	for _, dc := range d.DetectingComponents(t.StixID) {
		detection := Detection{DataComponent: dc.Name}
		if ds, ok := d.DataComponentSource(dc); ok {
			detection.DataSource = ds.Name
		}
		detail.Detections = append(detail.Detections, detection)
	}
	if detail.Mitigations == nil {
		detail.Mitigations = []*domain.Mitigation{}
	}
	if detail.Groups == nil {
		detail.Groups = []*domain.Group{}
	}
	return detail, nil
}

// Fingerprint hashes a list of bundles with BLAKE2b-256. Bundle boundaries
// are part of the hash.
func Fingerprint(bundles [][]byte) string {
	h, _ := blake2b.New256(nil)
	var size [8]byte
	for _, b := range bundles {
		binary.BigEndian.PutUint64(size[:], uint64(len(b)))
		h.Write(size[:])
		h.Write(b)
	}
	return hex.EncodeToString(h.Sum(nil))
}
