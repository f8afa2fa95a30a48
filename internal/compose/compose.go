// Package compose builds new layers from existing ones by evaluating a
// scoring expression over bound layers and optionally inheriting their
// non-numeric state.
package compose

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"attacknav/internal/domain"
	"attacknav/internal/expr"
	"attacknav/internal/layer"
)

// Mode selects how the expression seeds scores
type Mode string

const (
	// ModeAuto picks static for expressions without variables and
	// combined otherwise
	ModeAuto Mode = ""
	// ModeCombined evaluates the expression per union id over the bound layers
	ModeCombined Mode = "combined"
	// ModeStatic evaluates a literal once and seeds every union id of the domain
	ModeStatic Mode = "static"
)

// DefaultName is used when a request carries no name
const DefaultName = "layer by operation"

var (
	// ErrDomainMismatch is returned when a source layer belongs to another domain version
	ErrDomainMismatch = errors.New("layer belongs to a different domain version")
	// ErrStaticVariables is returned for static requests whose expression references variables
	ErrStaticVariables = errors.New("static expressions cannot reference layers")
	// ErrDomainRequired is returned when static seeding has no domain to enumerate
	ErrDomainRequired = errors.New("domain required")
	// ErrUnknownMode is returned for modes other than combined and static
	ErrUnknownMode = errors.New("unknown composition mode")
)

// Inherit names the source layer of each inherited aspect. Nil fields are
// not inherited.
type Inherit struct {
	Comments *layer.Layer
	Links    *layer.Layer
	Metadata *layer.Layer
	Colors   *layer.Layer
	Enabled  *layer.Layer

	Filters  *layer.Layer
	Legend   *layer.Layer
	Gradient *layer.Layer
}

func (i Inherit) sources() []*layer.Layer {
	return []*layer.Layer{i.Comments, i.Links, i.Metadata, i.Colors, i.Enabled, i.Filters, i.Legend, i.Gradient}
}

// Request describes one composition
type Request struct {
	DomainVersionID string
	Expression      string
	Bindings        map[string]*layer.Layer
	Inherit         Inherit
	Name            string
	Mode            Mode
}

// Engine composes layers. It never mutates its inputs.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates an engine. A nil logger uses slog.Default().
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger.With("component", "compose")}
}

// Compose builds a new layer from the request. Missing layer entries count
// as zero and never fail the call; bad expressions, unbound variables and
// layers from another domain version do.
func (e *Engine) Compose(d *domain.Domain, req Request) (*layer.Layer, error) {
	versionID := req.DomainVersionID
	if versionID == "" && d != nil {
		versionID = d.ID
	}
	if d != nil && versionID != d.ID {
		return nil, fmt.Errorf("%w: request %s, domain %s", ErrDomainMismatch, versionID, d.ID)
	}

	bindings := make(map[string]*layer.Layer, len(req.Bindings))
	for name, l := range req.Bindings {
		bindings[strings.ToLower(name)] = l
	}
	for _, src := range append(bindingLayers(bindings), req.Inherit.sources()...) {
		if src != nil && src.DomainVersionID != versionID {
			return nil, fmt.Errorf("%w: %s is %s, want %s", ErrDomainMismatch, src.Name, src.DomainVersionID, versionID)
		}
	}

	name := req.Name
	if name == "" {
		name = DefaultName
	}
	result := layer.New(name, versionID)
	if d != nil {
		result.Filter.InitPlatformOptions(d)
	}

	if strings.TrimSpace(req.Expression) != "" {
		if err := e.score(d, req, bindings, result); err != nil {
			return nil, err
		}
	}

	inherit(result, req.Inherit)

	e.logger.Debug("composed layer",
		"name", result.Name,
		"domain", versionID,
		"expression", req.Expression,
		"techniques", result.Len())
	return result, nil
}

func (e *Engine) score(d *domain.Domain, req Request, bindings map[string]*layer.Layer, result *layer.Layer) error {
	parsed, err := expr.Parse(req.Expression)
	if err != nil {
		return err
	}
	if err := parsed.CheckBound(func(name string) bool { return bindings[name] != nil }); err != nil {
		return err
	}

	mode := req.Mode
	if mode == ModeAuto {
		mode = ModeCombined
		if parsed.IsStatic() {
			mode = ModeStatic
		}
	}

	switch mode {
	case ModeStatic:
		if !parsed.IsStatic() {
			return ErrStaticVariables
		}
		if d == nil {
			return ErrDomainRequired
		}
		return scoreStatic(d, parsed, result)
	case ModeCombined:
		scoreCombined(parsed, bindings, result)
		return nil
	}
	return fmt.Errorf("%w %q", ErrUnknownMode, mode)
}

func scoreStatic(d *domain.Domain, parsed *expr.Expression, result *layer.Layer) error {
	v, err := parsed.Eval(nil)
	if err != nil {
		return fmt.Errorf("failed to evaluate %s: %w", parsed, err)
	}
	result.InitializeScoresTo = v.Score()
	result.InitTechniqueVMs(d)
	if v.Kind == expr.KindBool {
		return useBinaryGradient(result.Gradient)
	}
	return nil
}

func scoreCombined(parsed *expr.Expression, bindings map[string]*layer.Layer, result *layer.Layer) {
	vars := parsed.Variables()

	ids := make(map[string]struct{})
	for _, name := range vars {
		for _, id := range bindings[name].UnionIDs() {
			ids[id] = struct{}{}
		}
	}

	low, high := math.Inf(1), math.Inf(-1)
	for id := range ids {
		scope := make(map[string]float64, len(vars))
		misses := 0
		for _, name := range vars {
			tvm, ok := bindings[name].Lookup(id)
			if !ok {
				misses++
				scope[name] = 0
				continue
			}
			v, ok := tvm.NumericScore()
			if !ok {
				misses++
			}
			scope[name] = v
		}
		if len(vars) > 0 && misses == len(vars) {
			continue
		}

		v, err := parsed.Eval(scope)
		if err != nil {
			// division by zero and boolean arithmetic leave the id unscored
			continue
		}
		tvm := result.TechniqueVM(id)
		tvm.Score = v.Score()

		n := v.Float()
		low = min(low, n)
		high = max(high, n)
	}

	if low < high {
		result.Gradient.MinValue = low
		result.Gradient.MaxValue = high
		result.Gradient.UpdateGradient()
	}
}

// useBinaryGradient colors boolean layers: false is transparent, true blue
func useBinaryGradient(g *layer.Gradient) error {
	if err := g.SetGradientPreset(layer.BinaryPreset); err != nil {
		return fmt.Errorf("failed to apply binary gradient: %w", err)
	}
	g.MinValue = 0
	g.MaxValue = 1
	g.UpdateGradient()
	return nil
}

func inherit(result *layer.Layer, in Inherit) {
	copyField := func(src *layer.Layer, apply func(dst, src *layer.TechniqueVM)) {
		if src == nil {
			return
		}
		for _, id := range src.UnionIDs() {
			from, _ := src.Lookup(id)
			apply(result.TechniqueVM(id), from)
		}
	}
	copyField(in.Comments, func(dst, src *layer.TechniqueVM) { dst.Comment = src.Comment })
	copyField(in.Links, func(dst, src *layer.TechniqueVM) { dst.Links = append([]layer.Link{}, src.Links...) })
	copyField(in.Metadata, func(dst, src *layer.TechniqueVM) {
		dst.Metadata = append([]layer.MetadataItem{}, src.Metadata...)
	})
	copyField(in.Colors, func(dst, src *layer.TechniqueVM) { dst.Color = src.Color })
	copyField(in.Enabled, func(dst, src *layer.TechniqueVM) { dst.Enabled = src.Enabled })

	if in.Filters != nil {
		result.Filter = in.Filters.Filter.Clone()
	}
	if in.Legend != nil {
		result.LegendItems = append([]layer.LegendItem{}, in.Legend.LegendItems...)
	}
	if in.Gradient != nil {
		result.Gradient = in.Gradient.Gradient.Clone()
	}
}

func bindingLayers(bindings map[string]*layer.Layer) []*layer.Layer {
	out := make([]*layer.Layer, 0, len(bindings))
	for _, l := range bindings {
		out = append(out, l)
	}
	return out
}
