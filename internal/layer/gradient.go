package layer

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// gradientSteps is the size of the dense lookup table
const gradientSteps = 160

// DefaultPreset is the preset a new gradient starts with
const DefaultPreset = "redgreen"

// BinaryPreset is the two-stop preset used for 0/1 layers
const BinaryPreset = "transparentblue"

var presets = map[string][]string{
	"redgreen":        {"#ff6666", "#ffe766", "#8ec843"},
	"greenred":        {"#8ec843", "#ffe766", "#ff6666"},
	"bluered":         {"#66b1ff", "#ff66f4", "#ff6666"},
	"redblue":         {"#ff6666", "#ff66f4", "#66b1ff"},
	"transparentblue": {"#ffffff00", "#66b1ff"},
	"transparentred":  {"#ffffff00", "#ff6666"},
	"whiteblue":       {"#ffffff", "#66b1ff"},
	"bluewhite":       {"#66b1ff", "#ffffff"},
	"whitered":        {"#ffffff", "#ff6666"},
	"redwhite":        {"#ff6666", "#ffffff"},
	"whitegreen":      {"#ffffff", "#8ec843"},
	"greenwhite":      {"#8ec843", "#ffffff"},
}

// Presets returns the names of the built-in palettes, sorted
func Presets() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type stop struct {
	color colorful.Color
	alpha float64
}

func (s stop) hex() string {
	h := s.color.Clamped().Hex()
	if s.alpha >= 1 {
		return h
	}
	return fmt.Sprintf("%s%02x", h, uint8(math.Round(s.alpha*255)))
}

// parseStop accepts #rgb, #rrggbb and #rrggbbaa
func parseStop(s string) (stop, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	alpha := 1.0
	if len(s) == 9 {
		a, err := strconv.ParseUint(s[7:], 16, 8)
		if err != nil {
			return stop{}, fmt.Errorf("invalid color %q: %w", s, err)
		}
		alpha = float64(a) / 255
		s = s[:7]
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return stop{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return stop{color: c, alpha: alpha}, nil
}

// Gradient maps numeric scores onto a color ramp
type Gradient struct {
	Colors   []string
	MinValue float64
	MaxValue float64

	table []string
}

// GradientDocument is the serialized form of a Gradient
type GradientDocument struct {
	Colors   []string `json:"colors" yaml:"colors"`
	MinValue float64  `json:"minValue" yaml:"minValue"`
	MaxValue float64  `json:"maxValue" yaml:"maxValue"`
}

// NewGradient returns the default red-to-green gradient over 0..100
func NewGradient() *Gradient {
	g := &Gradient{
		Colors:   append([]string{}, presets[DefaultPreset]...),
		MinValue: 0,
		MaxValue: 100,
	}
	g.UpdateGradient()
	return g
}

// SetGradientPreset replaces the stops with a named palette
func (g *Gradient) SetGradientPreset(name string) error {
	colors, ok := presets[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPreset, name)
	}
	g.Colors = append([]string{}, colors...)
	g.UpdateGradient()
	return nil
}

// AddColor appends a copy of the last stop
func (g *Gradient) AddColor() {
	last := "#ffffff"
	if len(g.Colors) > 0 {
		last = g.Colors[len(g.Colors)-1]
	}
	g.Colors = append(g.Colors, last)
	g.UpdateGradient()
}

// RemoveColor removes the stop at index. The gradient keeps at least two.
func (g *Gradient) RemoveColor(index int) error {
	if len(g.Colors) <= 2 {
		return ErrTooFewStops
	}
	if index < 0 || index >= len(g.Colors) {
		return fmt.Errorf("color index %d out of range", index)
	}
	g.Colors = append(g.Colors[:index:index], g.Colors[index+1:]...)
	g.UpdateGradient()
	return nil
}

// UpdateGradient rebuilds the dense lookup table. Invalid stops render as
// white so a bad color never breaks lookups.
func (g *Gradient) UpdateGradient() {
	stops := make([]stop, 0, len(g.Colors))
	for _, c := range g.Colors {
		s, err := parseStop(c)
		if err != nil {
			s = stop{color: colorful.Color{R: 1, G: 1, B: 1}, alpha: 1}
		}
		stops = append(stops, s)
	}
	g.table = g.table[:0]
	switch len(stops) {
	case 0:
		return
	case 1:
		for i := 0; i <= gradientSteps; i++ {
			g.table = append(g.table, stops[0].hex())
		}
		return
	}
	segments := len(stops) - 1
	for i := 0; i <= gradientSteps; i++ {
		pos := float64(i) / gradientSteps * float64(segments)
		seg := int(pos)
		if seg >= segments {
			seg = segments - 1
		}
		t := pos - float64(seg)
		a, b := stops[seg], stops[seg+1]
		g.table = append(g.table, stop{
			color: a.color.BlendRgb(b.color, t),
			alpha: a.alpha + (b.alpha-a.alpha)*t,
		}.hex())
	}
}

// GradientRGB returns the dense lookup table
func (g *Gradient) GradientRGB() []string {
	if len(g.table) == 0 {
		g.UpdateGradient()
	}
	return append([]string{}, g.table...)
}

// GetColor maps a score onto the ramp, clamping to the end colors. An
// empty or non-numeric score yields an empty color.
func (g *Gradient) GetColor(score string) string {
	v, ok := parseScore(score)
	if !ok {
		return ""
	}
	return g.ColorFor(v)
}

// ColorFor maps a numeric value onto the ramp
func (g *Gradient) ColorFor(v float64) string {
	if len(g.table) == 0 {
		g.UpdateGradient()
	}
	if len(g.table) == 0 {
		return ""
	}
	if v >= g.MaxValue {
		return g.table[len(g.table)-1]
	}
	if v <= g.MinValue {
		return g.table[0]
	}
	index := (v - g.MinValue) / (g.MaxValue - g.MinValue) * gradientSteps
	return g.table[int(math.Round(index))]
}

// Document returns the serialized form
func (g *Gradient) Document() GradientDocument {
	return GradientDocument{
		Colors:   append([]string{}, g.Colors...),
		MinValue: g.MinValue,
		MaxValue: g.MaxValue,
	}
}

// ApplyDocument replaces the gradient state with a serialized one
func (g *Gradient) ApplyDocument(doc GradientDocument) error {
	if len(doc.Colors) < 2 {
		return ErrTooFewStops
	}
	for _, c := range doc.Colors {
		if _, err := parseStop(c); err != nil {
			return err
		}
	}
	g.Colors = append([]string{}, doc.Colors...)
	g.MinValue = doc.MinValue
	g.MaxValue = doc.MaxValue
	g.UpdateGradient()
	return nil
}

// Clone returns a deep copy
func (g *Gradient) Clone() *Gradient {
	c := &Gradient{
		Colors:   append([]string{}, g.Colors...),
		MinValue: g.MinValue,
		MaxValue: g.MaxValue,
	}
	c.UpdateGradient()
	return c
}

// Serialize renders the gradient as JSON
func (g *Gradient) Serialize() ([]byte, error) {
	return json.Marshal(g.Document())
}

// Deserialize restores a gradient produced by Serialize
func (g *Gradient) Deserialize(data []byte) error {
	var doc GradientDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse gradient: %w", err)
	}
	return g.ApplyDocument(doc)
}
