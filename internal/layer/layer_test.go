package layer

import (
	"testing"

	"attacknav/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// controlsDomain has two techniques under execution, one sub-technique of
// T8000, an Enterprise matrix and a PRE-ATT&CK matrix over the same tactic
func controlsDomain(t *testing.T) *domain.Domain {
	t.Helper()
	b := domain.NewBuilder(domain.Meta{Identifier: "test", Version: "12"})
	b.AddTechnique(&domain.Technique{
		Base:      domain.Base{StixID: "attack-pattern--t1", AttackID: "T8000", Name: "Alpha"},
		Platforms: []string{"Windows", "Linux"},
		Tactics:   []domain.TacticMembership{{Shortname: "execution"}},
	})
	b.AddTechnique(&domain.Technique{
		Base:      domain.Base{StixID: "attack-pattern--t2", AttackID: "T8001", Name: "Bravo"},
		Platforms: []string{"macOS"},
		Tactics:   []domain.TacticMembership{{Shortname: "execution"}},
	})
	b.AddTechnique(&domain.Technique{
		Base:           domain.Base{StixID: "attack-pattern--s1", AttackID: "T8000.001", Name: "Alpha.001"},
		Platforms:      []string{"Windows"},
		Tactics:        []domain.TacticMembership{{Shortname: "execution"}},
		IsSubtechnique: true,
	})
	b.AddTactic(&domain.Tactic{Base: domain.Base{StixID: "x-mitre-tactic--E", AttackID: "TA0002", Name: "Execution"}, Shortname: "execution"})
	b.AddMatrix(&domain.Matrix{
		Base:       domain.Base{StixID: "x-mitre-matrix--ENT", AttackID: "enterprise-matrix", Name: "Enterprise"},
		TacticRefs: []string{"x-mitre-tactic--E"},
	})
	b.AddMatrix(&domain.Matrix{
		Base:       domain.Base{StixID: "x-mitre-matrix--PRE", AttackID: "pre-attack-matrix", Name: domain.PreAttackMatrixName},
		TacticRefs: []string{"x-mitre-tactic--E"},
	})
	b.AddMitigation(&domain.Mitigation{Base: domain.Base{StixID: "course-of-action--m1", AttackID: "M1000", Name: "Block"}})
	b.AddMitigation(&domain.Mitigation{Base: domain.Base{StixID: "course-of-action--m2", AttackID: "M1001", Name: "Audit"}})
	require.True(t, b.Link(domain.RelationshipSubtechniqueOf, "attack-pattern--s1", "attack-pattern--t1"))
	require.True(t, b.Link(domain.RelationshipMitigates, "course-of-action--m1", "attack-pattern--t1"))
	require.True(t, b.Link(domain.RelationshipMitigates, "course-of-action--m1", "attack-pattern--t2"))
	require.True(t, b.Link(domain.RelationshipMitigates, "course-of-action--m2", "attack-pattern--t2"))
	return b.Build()
}

type controls struct {
	d        *domain.Domain
	layer    *Layer
	tactic   *domain.Tactic
	alpha    *domain.Technique
	bravo    *domain.Technique
	alphaSub *domain.Technique
	ent      *domain.Matrix
	pre      *domain.Matrix
}

func newControls(t *testing.T) *controls {
	t.Helper()
	d := controlsDomain(t)
	c := &controls{d: d, layer: New("controls", d.ID)}
	c.layer.InitTechniqueVMs(d)
	c.layer.Filter.InitPlatformOptions(d)

	var ok bool
	c.tactic, ok = d.TacticByShortname("execution")
	require.True(t, ok)
	c.alpha, _ = d.TechniqueByAttackID("T8000")
	c.bravo, _ = d.TechniqueByAttackID("T8001")
	c.alphaSub, _ = d.TechniqueByAttackID("T8000.001")
	c.ent, _ = d.MatrixByName("Enterprise")
	c.pre, _ = d.MatrixByName(domain.PreAttackMatrixName)
	return c
}

func TestNewLayer(t *testing.T) {
	l := New("VM", "test-12")
	assert.NotEmpty(t, l.ID)
	assert.NotEqual(t, l.ID, New("VM", "test-12").ID)
	assert.Equal(t, 0, l.Len())
	assert.Equal(t, SortNameAscending, l.Sorting)
	assert.Equal(t, LayoutSide, l.Layout.Layout())
}

func TestInitTechniqueVMs(t *testing.T) {
	d := controlsDomain(t)
	l := New("VM", d.ID)
	l.InitializeScoresTo = "1"

	existing := l.TechniqueVM("T8000^execution")
	existing.Score = "7"

	l.InitTechniqueVMs(d)
	assert.Equal(t, 3, l.Len())
	assert.Equal(t, []string{"T8000.001^execution", "T8000^execution", "T8001^execution"}, l.UnionIDs())
	assert.Equal(t, "7", l.TechniqueVM("T8000^execution").Score)
	assert.Equal(t, "1", l.TechniqueVM("T8001^execution").Score)
}

func TestTechniqueVMLazyCreation(t *testing.T) {
	l := New("VM", "test-12")
	_, ok := l.Lookup("T1^execution")
	assert.False(t, ok)

	tvm := l.TechniqueVM("T1^execution")
	assert.True(t, tvm.Enabled)
	assert.Same(t, tvm, l.TechniqueVM("T1^execution"))

	tvm.Score = "3"
	assert.True(t, l.ResetTechnique("T1^execution"))
	assert.Empty(t, tvm.Score)
	assert.False(t, l.ResetTechnique("T2^execution"))
}

func TestLayerColors(t *testing.T) {
	l := New("VM", "test-12")
	l.TechniqueVM("T1^execution").Score = "0"
	l.TechniqueVM("T2^execution").Color = "#123456"
	l.TechniqueVM("T3^execution").Comment = "no color"

	colors := l.Colors()
	assert.Len(t, colors, 2)
	assert.Equal(t, "#ff6666", colors["T1^execution"])
	assert.Equal(t, "#123456", colors["T2^execution"])
}

func TestLayerClone(t *testing.T) {
	l := New("VM", "test-12")
	l.TechniqueVM("T1^execution").Links = []Link{{Label: "a", URL: "b"}}
	l.LegendItems = []LegendItem{{Label: "low", Color: "#000000"}}
	l.Filter.Platforms.Selection = []string{"Windows"}

	c := l.Clone()
	c.TechniqueVM("T1^execution").Links[0].Label = "changed"
	c.LegendItems[0].Label = "changed"
	c.Filter.Platforms.Selection[0] = "Linux"
	require.NoError(t, c.Gradient.SetGradientPreset("bluered"))

	assert.Equal(t, "a", l.TechniqueVM("T1^execution").Links[0].Label)
	assert.Equal(t, "low", l.LegendItems[0].Label)
	assert.Equal(t, []string{"Windows"}, l.Filter.Platforms.Selection)
	assert.Equal(t, presets[DefaultPreset], l.Gradient.Colors)
}
