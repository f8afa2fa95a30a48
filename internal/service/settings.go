package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"attacknav/internal/domain"
	"attacknav/internal/layer"
)

// GradientPatch edits the color ramp of a layer. The preset is applied
// first, then the color edits, then the range.
type GradientPatch struct {
	Preset      string   `json:"preset,omitempty"`
	AddColor    bool     `json:"addColor,omitempty"`
	RemoveColor *int     `json:"removeColor,omitempty"`
	MinValue    *float64 `json:"minValue,omitempty"`
	MaxValue    *float64 `json:"maxValue,omitempty"`
}

// LayoutPatch edits the layout options of a layer
type LayoutPatch struct {
	Layout                *layer.LayoutKind        `json:"layout,omitempty"`
	ShowID                *bool                    `json:"showID,omitempty"`
	ShowName              *bool                    `json:"showName,omitempty"`
	AggregateFunction     *layer.AggregateFunction `json:"aggregateFunction,omitempty"`
	ShowAggregateScores   *bool                    `json:"showAggregateScores,omitempty"`
	CountUnscored         *bool                    `json:"countUnscored,omitempty"`
	ExpandedSubtechniques *string                  `json:"expandedSubtechniques,omitempty"`
}

// SettingsPatch updates layer-wide settings. Nil fields are left unchanged.
// TogglePlatforms flips each platform in the platform filter.
type SettingsPatch struct {
	Name            *string        `json:"name,omitempty"`
	Description     *string        `json:"description,omitempty"`
	Sorting         *int           `json:"sorting,omitempty"`
	HideDisabled    *bool          `json:"hideDisabled,omitempty"`
	TogglePlatforms []string       `json:"togglePlatforms,omitempty"`
	Gradient        *GradientPatch `json:"gradient,omitempty"`
	Layout          *LayoutPatch   `json:"layout,omitempty"`
}

// UpdateSettings applies a settings patch to a stored layer. Nothing is
// saved when any part of the patch is invalid.
func (s *LayerService) UpdateSettings(ctx context.Context, id string, patch SettingsPatch) (*layer.Layer, error) {
	l, err := s.repo.GetLayer(ctx, id)
	if err != nil {
		return nil, err
	}
	d, err := s.domains.Domain(ctx, l.DomainVersionID)
	if err != nil && !errors.Is(err, ErrUnknownDomain) {
		return nil, err
	}

	if patch.Name != nil {
		if strings.TrimSpace(*patch.Name) == "" {
			return nil, &ValidationError{Field: "name", Reason: "required"}
		}
		l.Name = *patch.Name
	}
	if patch.Description != nil {
		l.Description = *patch.Description
	}
	if patch.Sorting != nil {
		mode := layer.SortMode(*patch.Sorting)
		if mode < layer.SortNameAscending || mode > layer.SortScoreDescending {
			return nil, &ValidationError{Field: "sorting", Reason: fmt.Sprintf("%d is not a sort mode", *patch.Sorting)}
		}
		l.Sorting = mode
	}
	if patch.HideDisabled != nil {
		l.HideDisabled = *patch.HideDisabled
	}
	if err := togglePlatforms(l, d, patch.TogglePlatforms); err != nil {
		return nil, err
	}
	if patch.Gradient != nil {
		if err := applyGradient(l.Gradient, *patch.Gradient); err != nil {
			return nil, err
		}
	}
	if patch.Layout != nil {
		if err := applyLayout(l.Layout, *patch.Layout); err != nil {
			return nil, err
		}
	}

	if err := s.repo.SaveLayer(ctx, l); err != nil {
		return nil, err
	}
	s.eventBus.Publish(Event{
		Type:    EventLayerUpdated,
		Payload: map[string]string{"layer_id": l.ID, "action": "settings"},
	})
	return l, nil
}

// togglePlatforms flips platform selections. With a known domain only its
// platforms are accepted.
func togglePlatforms(l *layer.Layer, d *domain.Domain, platforms []string) error {
	for _, p := range platforms {
		if d != nil && !contains(d.Platforms, p) {
			return &ValidationError{Field: "togglePlatforms", Reason: fmt.Sprintf("%q is not a platform of %s", p, d.ID)}
		}
		l.Filter.ToggleInFilter(layer.CategoryPlatforms, p)
	}
	return nil
}

func applyGradient(g *layer.Gradient, p GradientPatch) error {
	if p.Preset != "" {
		if err := g.SetGradientPreset(p.Preset); err != nil {
			return &ValidationError{Field: "gradient.preset", Reason: err.Error()}
		}
	}
	if p.AddColor {
		g.AddColor()
	}
	if p.RemoveColor != nil {
		if *p.RemoveColor < 0 || *p.RemoveColor >= len(g.Colors) {
			return &ValidationError{Field: "gradient.removeColor", Reason: fmt.Sprintf("index %d out of range", *p.RemoveColor)}
		}
		if err := g.RemoveColor(*p.RemoveColor); err != nil {
			return err
		}
	}

	minValue, maxValue := g.MinValue, g.MaxValue
	if p.MinValue != nil {
		minValue = *p.MinValue
	}
	if p.MaxValue != nil {
		maxValue = *p.MaxValue
	}
	if math.IsNaN(minValue) || math.IsNaN(maxValue) || minValue >= maxValue {
		return &ValidationError{Field: "gradient", Reason: fmt.Sprintf("minValue %g must be below maxValue %g", minValue, maxValue)}
	}
	g.MinValue, g.MaxValue = minValue, maxValue
	g.UpdateGradient()
	return nil
}

func applyLayout(o *layer.LayoutOptions, p LayoutPatch) error {
	if p.Layout != nil {
		if err := o.SetLayout(*p.Layout); err != nil {
			return &ValidationError{Field: "layout.layout", Reason: err.Error()}
		}
	}
	if p.ShowID != nil {
		o.SetShowID(*p.ShowID)
	}
	if p.ShowName != nil {
		o.SetShowName(*p.ShowName)
	}
	if p.AggregateFunction != nil {
		if err := o.SetAggregateFunction(*p.AggregateFunction); err != nil {
			return &ValidationError{Field: "layout.aggregateFunction", Reason: err.Error()}
		}
	}
	if p.ShowAggregateScores != nil {
		o.ShowAggregateScores = *p.ShowAggregateScores
	}
	if p.CountUnscored != nil {
		o.CountUnscored = *p.CountUnscored
	}
	if p.ExpandedSubtechniques != nil {
		switch *p.ExpandedSubtechniques {
		case layer.ExpandNone, layer.ExpandAnnotated, layer.ExpandAll:
			o.ExpandedSubtechniques = *p.ExpandedSubtechniques
		default:
			return &ValidationError{Field: "layout.expandedSubtechniques", Reason: fmt.Sprintf("%q is not one of none, annotated, all", *p.ExpandedSubtechniques)}
		}
	}
	return nil
}

// MatrixCell is one technique as a layer displays it
type MatrixCell struct {
	AttackID       string       `json:"attack_id"`
	UnionID        string       `json:"union_id"`
	Name           string       `json:"name"`
	Score          string       `json:"score,omitempty"`
	AggregateScore string       `json:"aggregate_score,omitempty"`
	Color          string       `json:"color,omitempty"`
	Enabled        bool         `json:"enabled"`
	Subtechniques  []MatrixCell `json:"subtechniques,omitempty"`
}

// MatrixColumn is one tactic column after filtering and sorting
type MatrixColumn struct {
	Tactic     string       `json:"tactic"`
	Shortname  string       `json:"shortname"`
	Techniques []MatrixCell `json:"techniques"`
}

// MatrixView is one matrix of a layer's domain
type MatrixView struct {
	Name    string         `json:"name"`
	Columns []MatrixColumn `json:"columns"`
}

// Matrix renders every matrix of the layer's domain as tactic columns of
// techniques that pass the layer filters, in the layer sort order
func (s *LayerService) Matrix(ctx context.Context, id string) ([]MatrixView, error) {
	l, err := s.repo.GetLayer(ctx, id)
	if err != nil {
		return nil, err
	}
	d, err := s.domains.Domain(ctx, l.DomainVersionID)
	if err != nil {
		return nil, err
	}
	if l.Layout.ShowAggregateScores {
		l.UpdateAggregateScores(d)
	}
	colors := l.Colors()

	views := make([]MatrixView, 0, len(d.Matrices))
	for _, m := range d.Matrices {
		view := MatrixView{Name: m.Name, Columns: []MatrixColumn{}}
		for _, tactic := range d.MatrixTactics(m) {
			column := MatrixColumn{Tactic: tactic.Name, Shortname: tactic.Shortname, Techniques: []MatrixCell{}}
			for _, t := range matrixTechniques(l, d, d.TacticTechniques(tactic), tactic, m) {
				cell := matrixCell(l, t, tactic, colors)
				for _, sub := range matrixTechniques(l, d, d.SubtechniquesOf(t), tactic, m) {
					cell.Subtechniques = append(cell.Subtechniques, matrixCell(l, sub, tactic, colors))
				}
				column.Techniques = append(column.Techniques, cell)
			}
			view.Columns = append(view.Columns, column)
		}
		views = append(views, view)
	}
	return views, nil
}

func matrixTechniques(l *layer.Layer, d *domain.Domain, techniques []*domain.Technique, tactic *domain.Tactic, m *domain.Matrix) []*domain.Technique {
	return l.SortTechniques(l.FilterTechniques(d, techniques, tactic, m), tactic)
}

func matrixCell(l *layer.Layer, t *domain.Technique, tactic *domain.Tactic, colors map[string]string) MatrixCell {
	unionID := t.TechniqueTacticID(tactic.Shortname)
	tvm := l.TechniqueVMFor(t, tactic)
	return MatrixCell{
		AttackID:       t.AttackID,
		UnionID:        unionID,
		Name:           t.Name,
		Score:          tvm.Score,
		AggregateScore: tvm.AggregateScore,
		Color:          colors[unionID],
		Enabled:        tvm.Enabled,
	}
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
