package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"

	"attacknav/internal/codec"
	"attacknav/internal/compose"
	"attacknav/internal/domain"
	"attacknav/internal/layer"
	"attacknav/internal/repository"

	"github.com/lucasb-eyer/go-colorful"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DomainSource resolves domain versions for layers
type DomainSource interface {
	Domain(ctx context.Context, id string) (*domain.Domain, error)
}

// LayerService provides business logic for layers
type LayerService struct {
	repo     repository.LayerStore
	domains  DomainSource
	engine   *compose.Engine
	eventBus *EventBus
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewLayerService creates a new layer service
func NewLayerService(repo repository.LayerStore, domains DomainSource, eventBus *EventBus, logger *slog.Logger) *LayerService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LayerService{
		repo:     repo,
		domains:  domains,
		engine:   compose.NewEngine(logger),
		eventBus: eventBus,
		logger:   logger.With("component", "layers"),
		tracer:   otel.Tracer(tracerName),
	}
}

// LayerView is the API form of a layer: its id plus the portable document
type LayerView struct {
	ID              string `json:"id"`
	DomainVersionID string `json:"domain_version_id"`
	*layer.Document
}

// View renders a layer for API responses
func View(l *layer.Layer) *LayerView {
	return &LayerView{ID: l.ID, DomainVersionID: l.DomainVersionID, Document: l.Document()}
}

// CreateLayerRequest describes a new empty layer
type CreateLayerRequest struct {
	Name            string `json:"name"`
	DomainVersionID string `json:"domain_version_id"`
	Description     string `json:"description"`
}

// TechniquePatch updates selected annotation fields of one technique.
// Nil fields are left unchanged.
type TechniquePatch struct {
	Score             *string               `json:"score,omitempty"`
	Color             *string               `json:"color,omitempty"`
	Comment           *string               `json:"comment,omitempty"`
	Enabled           *bool                 `json:"enabled,omitempty"`
	Links             *[]layer.Link         `json:"links,omitempty"`
	Metadata          *[]layer.MetadataItem `json:"metadata,omitempty"`
	ShowSubtechniques *bool                 `json:"showSubtechniques,omitempty"`
}

// InheritRequest names, per aspect, the id of the layer to inherit from
type InheritRequest struct {
	Comments string `json:"comments,omitempty"`
	Links    string `json:"links,omitempty"`
	Metadata string `json:"metadata,omitempty"`
	Colors   string `json:"colors,omitempty"`
	Enabled  string `json:"enabled,omitempty"`
	Filters  string `json:"filters,omitempty"`
	Legend   string `json:"legend,omitempty"`
	Gradient string `json:"gradient,omitempty"`
}

func (r InheritRequest) ids() []string {
	return []string{r.Comments, r.Links, r.Metadata, r.Colors, r.Enabled, r.Filters, r.Legend, r.Gradient}
}

// ComposeRequest creates a layer from stored layers. Layers maps expression
// variables to layer ids.
type ComposeRequest struct {
	Name            string            `json:"name"`
	DomainVersionID string            `json:"domain_version_id"`
	Expression      string            `json:"expression"`
	Layers          map[string]string `json:"layers"`
	Inherit         InheritRequest    `json:"inherit"`
	Mode            compose.Mode      `json:"mode,omitempty"`
}

// ListLayers returns stored layer summaries
func (s *LayerService) ListLayers(ctx context.Context) ([]repository.LayerSummary, error) {
	return s.repo.ListLayers(ctx)
}

// GetLayer retrieves a layer by id
func (s *LayerService) GetLayer(ctx context.Context, id string) (*layer.Layer, error) {
	return s.repo.GetLayer(ctx, id)
}

// CreateLayer creates an empty layer over a domain version
func (s *LayerService) CreateLayer(ctx context.Context, req CreateLayerRequest) (*layer.Layer, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, &ValidationError{Field: "name", Reason: "required"}
	}
	if req.DomainVersionID == "" {
		return nil, &ValidationError{Field: "domain_version_id", Reason: "required"}
	}
	d, err := s.domains.Domain(ctx, req.DomainVersionID)
	if err != nil {
		return nil, err
	}

	l := layer.New(req.Name, d.ID)
	l.Description = req.Description
	l.Filter.InitPlatformOptions(d)

	if err := s.repo.SaveLayer(ctx, l); err != nil {
		return nil, err
	}
	s.eventBus.Publish(Event{
		Type:    EventLayerCreated,
		Payload: map[string]string{"layer_id": l.ID, "name": l.Name},
	})
	return l, nil
}

// DeleteLayer removes a layer
func (s *LayerService) DeleteLayer(ctx context.Context, id string) error {
	if err := s.repo.DeleteLayer(ctx, id); err != nil {
		return err
	}
	s.eventBus.Publish(Event{
		Type:    EventLayerDeleted,
		Payload: map[string]string{"layer_id": id},
	})
	return nil
}

// PatchTechnique updates the annotation of one technique-tactic pair
func (s *LayerService) PatchTechnique(ctx context.Context, layerID, unionID string, patch TechniquePatch) (*layer.TechniqueVM, error) {
	l, err := s.repo.GetLayer(ctx, layerID)
	if err != nil {
		return nil, err
	}
	d, err := s.resolveTechnique(ctx, l, unionID)
	if err != nil {
		return nil, err
	}
	if err := validatePatch(patch); err != nil {
		return nil, err
	}

	tvm := l.TechniqueVM(unionID)
	if patch.Score != nil {
		tvm.Score = strings.TrimSpace(*patch.Score)
	}
	if patch.Color != nil {
		tvm.Color = *patch.Color
	}
	if patch.Comment != nil {
		tvm.Comment = *patch.Comment
	}
	if patch.Enabled != nil {
		tvm.Enabled = *patch.Enabled
	}
	if patch.Links != nil {
		tvm.Links = append([]layer.Link{}, (*patch.Links)...)
	}
	if patch.Metadata != nil {
		tvm.Metadata = append([]layer.MetadataItem{}, (*patch.Metadata)...)
	}
	if patch.ShowSubtechniques != nil {
		tvm.ShowSubtechniques = *patch.ShowSubtechniques
	}
	if d != nil && l.Layout.ShowAggregateScores {
		l.UpdateAggregateScores(d)
	}

	if err := s.repo.SaveLayer(ctx, l); err != nil {
		return nil, err
	}
	s.eventBus.Publish(Event{
		Type:    EventLayerUpdated,
		Payload: map[string]string{"layer_id": l.ID, "technique": unionID},
	})
	return tvm, nil
}

// ResetTechnique clears the annotation of one technique-tactic pair
func (s *LayerService) ResetTechnique(ctx context.Context, layerID, unionID string) error {
	l, err := s.repo.GetLayer(ctx, layerID)
	if err != nil {
		return err
	}
	if _, _, ok := domain.SplitUnionID(unionID); !ok {
		return &ValidationError{Field: "technique", Reason: fmt.Sprintf("%q is not a technique^tactic id", unionID)}
	}
	if !l.ResetTechnique(unionID) {
		return nil
	}

	if err := s.repo.SaveLayer(ctx, l); err != nil {
		return err
	}
	s.eventBus.Publish(Event{
		Type:    EventLayerUpdated,
		Payload: map[string]string{"layer_id": l.ID, "technique": unionID, "action": "reset"},
	})
	return nil
}

// Compose evaluates a composition over stored layers and stores the result
func (s *LayerService) Compose(ctx context.Context, req ComposeRequest) (*layer.Layer, error) {
	ctx, span := s.tracer.Start(ctx, "layer.compose", trace.WithAttributes(
		attribute.String("compose.expression", req.Expression),
		attribute.Int("compose.layers", len(req.Layers)),
	))
	defer span.End()

	result, err := s.compose(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "compose failed")
		return nil, err
	}

	if err := s.repo.SaveLayer(ctx, result); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("layer.id", result.ID), attribute.Int("layer.techniques", result.Len()))
	s.eventBus.Publish(Event{
		Type:    EventLayerComposed,
		Payload: map[string]string{"layer_id": result.ID, "name": result.Name, "expression": req.Expression},
	})
	return result, nil
}

func (s *LayerService) compose(ctx context.Context, req ComposeRequest) (*layer.Layer, error) {
	cache := make(map[string]*layer.Layer)
	load := func(id string) (*layer.Layer, error) {
		if id == "" {
			return nil, nil
		}
		if l, ok := cache[id]; ok {
			return l, nil
		}
		l, err := s.repo.GetLayer(ctx, id)
		if err != nil {
			return nil, err
		}
		cache[id] = l
		return l, nil
	}

	names := make([]string, 0, len(req.Layers))
	for name := range req.Layers {
		names = append(names, name)
	}
	sort.Strings(names)

	bindings := make(map[string]*layer.Layer, len(req.Layers))
	for _, name := range names {
		l, err := load(req.Layers[name])
		if err != nil {
			return nil, fmt.Errorf("failed to load layer %q: %w", name, err)
		}
		bindings[name] = l
	}

	var inherit compose.Inherit
	targets := []**layer.Layer{
		&inherit.Comments, &inherit.Links, &inherit.Metadata, &inherit.Colors,
		&inherit.Enabled, &inherit.Filters, &inherit.Legend, &inherit.Gradient,
	}
	for i, id := range req.Inherit.ids() {
		l, err := load(id)
		if err != nil {
			return nil, fmt.Errorf("failed to load inherited layer: %w", err)
		}
		*targets[i] = l
	}

	versionID := req.DomainVersionID
	if versionID == "" && len(names) > 0 {
		versionID = bindings[names[0]].DomainVersionID
	}
	for _, l := range targets {
		if versionID != "" {
			break
		}
		if *l != nil {
			versionID = (*l).DomainVersionID
		}
	}
	if versionID == "" {
		return nil, &ValidationError{Field: "domain_version_id", Reason: "required when no layer is referenced"}
	}

	d, err := s.domains.Domain(ctx, versionID)
	if err != nil {
		return nil, err
	}

	return s.engine.Compose(d, compose.Request{
		DomainVersionID: versionID,
		Expression:      req.Expression,
		Bindings:        bindings,
		Inherit:         inherit,
		Name:            req.Name,
		Mode:            req.Mode,
	})
}

// Colors returns the display color of every colored union id, including
// aggregate colors when the layer shows aggregate scores
func (s *LayerService) Colors(ctx context.Context, id string) (map[string]string, error) {
	l, err := s.repo.GetLayer(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.Layout.ShowAggregateScores {
		d, err := s.domains.Domain(ctx, l.DomainVersionID)
		if err != nil {
			return nil, err
		}
		l.UpdateAggregateScores(d)
	}
	return l.Colors(), nil
}

// Mitigations scores the mitigations of the layer's domain by the layer
func (s *LayerService) Mitigations(ctx context.Context, id string) ([]layer.ScoredMitigation, error) {
	l, err := s.repo.GetLayer(ctx, id)
	if err != nil {
		return nil, err
	}
	d, err := s.domains.Domain(ctx, l.DomainVersionID)
	if err != nil {
		return nil, err
	}
	return l.ScoreMitigations(d), nil
}

// Import reads a layer document and stores it as a new layer. Entries
// without a tactic are expanded when the domain is available.
func (s *LayerService) Import(ctx context.Context, r io.Reader, importer codec.Importer) (*layer.Layer, error) {
	doc, err := importer.Parse(r)
	if err != nil {
		return nil, &ValidationError{Field: "document", Reason: err.Error()}
	}

	versionID := domain.VersionID(doc.Domain, doc.Versions.Attack)
	d, err := s.domains.Domain(ctx, versionID)
	if err != nil && !errors.Is(err, ErrUnknownDomain) {
		return nil, err
	}

	l, err := layer.FromDocument(doc, d)
	if err != nil {
		var missing *layer.MissingContextError
		if errors.As(err, &missing) {
			return nil, &ValidationError{Field: "techniques", Reason: err.Error()}
		}
		return nil, err
	}

	if err := s.repo.SaveLayer(ctx, l); err != nil {
		return nil, err
	}
	s.logger.Info("layer imported", "layer_id", l.ID, "format", importer.Format(), "techniques", l.Len())
	s.eventBus.Publish(Event{
		Type:    EventLayerImported,
		Payload: map[string]string{"layer_id": l.ID, "name": l.Name, "format": importer.Format()},
	})
	return l, nil
}

// Export writes a stored layer as a portable document
func (s *LayerService) Export(ctx context.Context, id string, w io.Writer, exporter codec.Exporter) error {
	l, err := s.repo.GetLayer(ctx, id)
	if err != nil {
		return err
	}
	return exporter.Export(l.Document(), w)
}

// resolveTechnique checks a union id against the layer's domain. Layers
// over unknown domains only get a syntax check and a nil domain.
func (s *LayerService) resolveTechnique(ctx context.Context, l *layer.Layer, unionID string) (*domain.Domain, error) {
	if _, _, ok := domain.SplitUnionID(unionID); !ok {
		return nil, &ValidationError{Field: "technique", Reason: fmt.Sprintf("%q is not a technique^tactic id", unionID)}
	}
	d, err := s.domains.Domain(ctx, l.DomainVersionID)
	if errors.Is(err, ErrUnknownDomain) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if _, _, ok := d.ResolveUnionID(unionID); !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrUnknownTechnique, unionID, d.ID)
	}
	return d, nil
}

func validatePatch(p TechniquePatch) error {
	if p.Score != nil {
		if score := strings.TrimSpace(*p.Score); score != "" {
			v, err := strconv.ParseFloat(score, 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				return &ValidationError{Field: "score", Reason: fmt.Sprintf("%q is not a number", *p.Score)}
			}
		}
	}
	if p.Color != nil && *p.Color != "" {
		if _, err := colorful.Hex(*p.Color); err != nil {
			return &ValidationError{Field: "color", Reason: fmt.Sprintf("%q is not a #rrggbb color", *p.Color)}
		}
	}
	return nil
}
