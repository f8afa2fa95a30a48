package compose

import (
	"errors"
	"testing"

	"attacknav/internal/domain"
	"attacknav/internal/expr"
	"attacknav/internal/layer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alphaID = "T8000^execution"
	bravoID = "T8001^execution"
	subID   = "T8000.001^execution"
)

func testDomain(t *testing.T) *domain.Domain {
	t.Helper()
	b := domain.NewBuilder(domain.Meta{Identifier: "test", Version: "12"})
	b.AddTechnique(&domain.Technique{
		Base:      domain.Base{StixID: "attack-pattern--t1", AttackID: "T8000", Name: "Alpha"},
		Platforms: []string{"Windows"},
		Tactics:   []domain.TacticMembership{{Shortname: "execution"}},
	})
	b.AddTechnique(&domain.Technique{
		Base:      domain.Base{StixID: "attack-pattern--t2", AttackID: "T8001", Name: "Bravo"},
		Platforms: []string{"Linux"},
		Tactics:   []domain.TacticMembership{{Shortname: "execution"}},
	})
	b.AddTechnique(&domain.Technique{
		Base:           domain.Base{StixID: "attack-pattern--s1", AttackID: "T8000.001", Name: "Alpha.001"},
		Platforms:      []string{"Windows"},
		Tactics:        []domain.TacticMembership{{Shortname: "execution"}},
		IsSubtechnique: true,
	})
	b.AddTactic(&domain.Tactic{Base: domain.Base{StixID: "x-mitre-tactic--E", AttackID: "TA0002", Name: "Execution"}, Shortname: "execution"})
	require.True(t, b.Link(domain.RelationshipSubtechniqueOf, "attack-pattern--s1", "attack-pattern--t1"))
	return b.Build()
}

func scored(t *testing.T, d *domain.Domain, name string, scores map[string]string) *layer.Layer {
	t.Helper()
	l := layer.New(name, d.ID)
	for id, s := range scores {
		l.TechniqueVM(id).Score = s
	}
	return l
}

func score(t *testing.T, l *layer.Layer, id string) string {
	t.Helper()
	tvm, ok := l.Lookup(id)
	if !ok {
		return ""
	}
	return tvm.Score
}

func TestComposeCombined(t *testing.T) {
	d := testDomain(t)
	a := scored(t, d, "a", map[string]string{alphaID: "1", bravoID: "1"})
	b := scored(t, d, "b", map[string]string{alphaID: "2"})

	out, err := NewEngine(nil).Compose(d, Request{
		Expression: "a+b",
		Bindings:   map[string]*layer.Layer{"a": a, "b": b},
	})
	require.NoError(t, err)

	assert.Equal(t, "3", score(t, out, alphaID))
	assert.Equal(t, "1", score(t, out, bravoID))
	_, ok := out.Lookup(subID)
	assert.False(t, ok, "ids absent from every binding are skipped")
	assert.Equal(t, DefaultName, out.Name)
	assert.Equal(t, d.ID, out.DomainVersionID)
	assert.NotEqual(t, a.ID, out.ID)

	assert.Equal(t, 1.0, out.Gradient.MinValue)
	assert.Equal(t, 3.0, out.Gradient.MaxValue)
}

func TestComposeMixedArithmetic(t *testing.T) {
	d := testDomain(t)
	a := scored(t, d, "a", map[string]string{alphaID: "1", bravoID: "3"})
	b := scored(t, d, "b", map[string]string{alphaID: "3", bravoID: "1.5"})

	out, err := NewEngine(nil).Compose(d, Request{
		Expression: "a*2 - b/3 + 1",
		Bindings:   map[string]*layer.Layer{"a": a, "b": b},
	})
	require.NoError(t, err)
	assert.Equal(t, "2", score(t, out, alphaID))
	assert.Equal(t, "6.5", score(t, out, bravoID))
}

func TestComposeEqualScoresKeepDefaultRange(t *testing.T) {
	d := testDomain(t)
	a := scored(t, d, "a", map[string]string{alphaID: "1", bravoID: "1"})
	b := scored(t, d, "b", map[string]string{alphaID: "1", bravoID: "1"})

	out, err := NewEngine(nil).Compose(d, Request{
		Expression: "a+b",
		Bindings:   map[string]*layer.Layer{"a": a, "b": b},
	})
	require.NoError(t, err)
	assert.Equal(t, "2", score(t, out, alphaID))
	assert.Equal(t, "2", score(t, out, bravoID))

	def := layer.NewGradient()
	assert.Equal(t, def.MinValue, out.Gradient.MinValue)
	assert.Equal(t, def.MaxValue, out.Gradient.MaxValue)
}

func TestComposeZeroOneRangeKeepsStops(t *testing.T) {
	d := testDomain(t)
	a := scored(t, d, "a", map[string]string{alphaID: "1", bravoID: "0"})

	out, err := NewEngine(nil).Compose(d, Request{
		Expression: "a",
		Bindings:   map[string]*layer.Layer{"a": a},
	})
	require.NoError(t, err)

	assert.Equal(t, layer.NewGradient().Colors, out.Gradient.Colors)
	assert.Equal(t, 0.0, out.Gradient.MinValue)
	assert.Equal(t, 1.0, out.Gradient.MaxValue)
}

func TestComposeStatic(t *testing.T) {
	d := testDomain(t)

	t.Run("boolean", func(t *testing.T) {
		out, err := NewEngine(nil).Compose(d, Request{Expression: "TRUE"})
		require.NoError(t, err)
		assert.Equal(t, "1", out.InitializeScoresTo)
		for _, id := range []string{alphaID, bravoID, subID} {
			assert.Equal(t, "1", score(t, out, id), id)
		}
		assert.Equal(t, 0.0, out.Gradient.MinValue)
		assert.Equal(t, 1.0, out.Gradient.MaxValue)

		binary := layer.NewGradient()
		require.NoError(t, binary.SetGradientPreset(layer.BinaryPreset))
		assert.Equal(t, binary.Colors, out.Gradient.Colors)
	})

	t.Run("number keeps stops", func(t *testing.T) {
		out, err := NewEngine(nil).Compose(d, Request{Expression: "1"})
		require.NoError(t, err)
		assert.Equal(t, layer.NewGradient().Colors, out.Gradient.Colors)
	})

	t.Run("division by zero", func(t *testing.T) {
		_, err := NewEngine(nil).Compose(d, Request{Expression: "1/0"})
		assert.ErrorIs(t, err, expr.ErrDivisionByZero)
	})

	t.Run("false", func(t *testing.T) {
		out, err := NewEngine(nil).Compose(d, Request{Expression: "false"})
		require.NoError(t, err)
		assert.Equal(t, "0", out.InitializeScoresTo)
		assert.Equal(t, "0", score(t, out, bravoID))
	})

	t.Run("number", func(t *testing.T) {
		out, err := NewEngine(nil).Compose(d, Request{Expression: "-2.5"})
		require.NoError(t, err)
		assert.Equal(t, "-2.5", score(t, out, alphaID))
		assert.Equal(t, 3, out.Len())
	})

	t.Run("variables rejected", func(t *testing.T) {
		a := scored(t, d, "a", nil)
		_, err := NewEngine(nil).Compose(d, Request{
			Expression: "a",
			Bindings:   map[string]*layer.Layer{"a": a},
			Mode:       ModeStatic,
		})
		assert.ErrorIs(t, err, ErrStaticVariables)
	})

	t.Run("needs domain", func(t *testing.T) {
		_, err := NewEngine(nil).Compose(nil, Request{Expression: "1", DomainVersionID: "test-12"})
		assert.ErrorIs(t, err, ErrDomainRequired)
	})
}

func TestComposeInheritOnly(t *testing.T) {
	d := testDomain(t)
	src := layer.New("src", d.ID)
	tvm := src.TechniqueVM(alphaID)
	tvm.Comment = "seen in the wild"
	tvm.Color = "#ff0000"
	tvm.Enabled = false
	tvm.Links = []layer.Link{{Label: "ref", URL: "https://example.com"}}
	tvm.Metadata = []layer.MetadataItem{{Name: "owner", Value: "blue"}}
	src.LegendItems = []layer.LegendItem{{Label: "hot", Color: "#ff0000"}}
	src.Filter.InitPlatformOptions(d)
	src.Filter.ToggleInFilter(layer.CategoryPlatforms, "Linux")
	require.NoError(t, src.Gradient.SetGradientPreset("bluered"))

	out, err := NewEngine(nil).Compose(d, Request{
		Name: "inherited",
		Inherit: Inherit{
			Comments: src, Links: src, Metadata: src, Colors: src, Enabled: src,
			Filters: src, Legend: src, Gradient: src,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "inherited", out.Name)

	got, ok := out.Lookup(alphaID)
	require.True(t, ok)
	assert.Equal(t, "seen in the wild", got.Comment)
	assert.Equal(t, "#ff0000", got.Color)
	assert.False(t, got.Enabled)
	assert.Equal(t, tvm.Links, got.Links)
	assert.Equal(t, tvm.Metadata, got.Metadata)
	assert.Empty(t, got.Score)

	assert.False(t, out.Filter.InFilter(layer.CategoryPlatforms, "Linux"))
	assert.True(t, out.Filter.InFilter(layer.CategoryPlatforms, "Windows"))
	assert.Equal(t, src.LegendItems, out.LegendItems)
	assert.Equal(t, src.Gradient.Colors, out.Gradient.Colors)

	// the result owns its state
	got.Links[0].Label = "changed"
	out.LegendItems[0].Label = "changed"
	out.Gradient.AddColor()
	out.Filter.ToggleInFilter(layer.CategoryPlatforms, "Windows")
	assert.Equal(t, "ref", tvm.Links[0].Label)
	assert.Equal(t, "hot", src.LegendItems[0].Label)
	assert.Len(t, src.Gradient.Colors, len(out.Gradient.Colors)-1)
	assert.True(t, src.Filter.InFilter(layer.CategoryPlatforms, "Windows"))
}

func TestComposeDoesNotMutateInputs(t *testing.T) {
	d := testDomain(t)
	a := scored(t, d, "a", map[string]string{alphaID: "4"})
	b := scored(t, d, "b", map[string]string{bravoID: "2"})

	_, err := NewEngine(nil).Compose(d, Request{
		Expression: "a/b",
		Bindings:   map[string]*layer.Layer{"a": a, "b": b},
		Inherit:    Inherit{Comments: a},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 1, b.Len())
	assert.Equal(t, []string{alphaID}, a.UnionIDs())
}

func TestComposeDivisionByZeroLeavesUnscored(t *testing.T) {
	d := testDomain(t)
	a := scored(t, d, "a", map[string]string{alphaID: "4", bravoID: "6"})
	b := scored(t, d, "b", map[string]string{bravoID: "2"})

	out, err := NewEngine(nil).Compose(d, Request{
		Expression: "a/b",
		Bindings:   map[string]*layer.Layer{"a": a, "b": b},
	})
	require.NoError(t, err)
	assert.Empty(t, score(t, out, alphaID))
	assert.Equal(t, "3", score(t, out, bravoID))
}

func TestComposeErrors(t *testing.T) {
	d := testDomain(t)
	a := scored(t, d, "a", map[string]string{alphaID: "1"})

	t.Run("syntax", func(t *testing.T) {
		_, err := NewEngine(nil).Compose(d, Request{
			Expression: "a +",
			Bindings:   map[string]*layer.Layer{"a": a},
		})
		var syntaxErr *expr.SyntaxError
		assert.True(t, errors.As(err, &syntaxErr))
	})

	t.Run("unbound", func(t *testing.T) {
		_, err := NewEngine(nil).Compose(d, Request{
			Expression: "a + c",
			Bindings:   map[string]*layer.Layer{"a": a},
		})
		var unbound *expr.UnboundVariableError
		require.True(t, errors.As(err, &unbound))
		assert.Equal(t, "c", unbound.Name)
	})

	t.Run("domain mismatch", func(t *testing.T) {
		other := layer.New("other", "mobile-attack-12")
		other.TechniqueVM(alphaID).Score = "1"
		_, err := NewEngine(nil).Compose(d, Request{
			Expression: "a",
			Bindings:   map[string]*layer.Layer{"a": other},
		})
		assert.ErrorIs(t, err, ErrDomainMismatch)
	})

	t.Run("binding names are case insensitive", func(t *testing.T) {
		out, err := NewEngine(nil).Compose(d, Request{
			Expression: "A + 1",
			Bindings:   map[string]*layer.Layer{"A": a},
		})
		require.NoError(t, err)
		assert.Equal(t, "2", score(t, out, alphaID))
	})

	t.Run("unknown mode", func(t *testing.T) {
		_, err := NewEngine(nil).Compose(d, Request{
			Expression: "a",
			Bindings:   map[string]*layer.Layer{"a": a},
			Mode:       Mode("sum"),
		})
		assert.ErrorIs(t, err, ErrUnknownMode)
	})
}
