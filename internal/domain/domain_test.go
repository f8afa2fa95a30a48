package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDomain(t *testing.T) *Domain {
	t.Helper()
	b := NewBuilder(Meta{Identifier: "enterprise-attack", Name: "Enterprise", Version: "14"})

	b.AddMatrix(&Matrix{
		Base:       Base{StixID: "x-mitre-matrix--1", AttackID: "enterprise-attack", Name: "Enterprise ATT&CK"},
		TacticRefs: []string{"x-mitre-tactic--exec", "x-mitre-tactic--persist"},
	})
	b.AddTactic(&Tactic{Base: Base{StixID: "x-mitre-tactic--persist", AttackID: "TA0003", Name: "Persistence"}, Shortname: "persistence"})
	b.AddTactic(&Tactic{Base: Base{StixID: "x-mitre-tactic--exec", AttackID: "TA0002", Name: "Execution"}, Shortname: "execution"})

	b.AddTechnique(&Technique{
		Base:      Base{StixID: "attack-pattern--t1059", AttackID: "T1059", Name: "Command and Scripting Interpreter"},
		Platforms: []string{"Windows", "Linux"},
		Tactics:   []TacticMembership{{Shortname: "execution"}},
	})
	b.AddTechnique(&Technique{
		Base:      Base{StixID: "attack-pattern--t1059-001", AttackID: "T1059.001", Name: "PowerShell"},
		Platforms: []string{"Windows"},
		Tactics:   []TacticMembership{{Shortname: "execution"}},
	})
	b.AddTechnique(&Technique{
		Base:      Base{StixID: "attack-pattern--t1053", AttackID: "T1053", Name: "Scheduled Task/Job"},
		Platforms: []string{"macOS", "Windows"},
		Tactics:   []TacticMembership{{Shortname: "persistence"}, {Shortname: "execution"}, {Shortname: "lateral-movement"}},
	})

	b.AddMitigation(&Mitigation{Base: Base{StixID: "course-of-action--m1038", AttackID: "M1038", Name: "Execution Prevention"}})
	b.AddGroup(&Group{Base: Base{StixID: "intrusion-set--g0007", AttackID: "G0007", Name: "APT28"}})
	b.AddCampaign(&Campaign{Base: Base{StixID: "campaign--c0001", AttackID: "C0001", Name: "Frankenstein"}})
	b.AddSoftware(&Software{Base: Base{StixID: "malware--s0001", AttackID: "S0001", Name: "Trojan"}, Type: SoftwareTypeMalware})
	b.AddDataSource(&DataSource{Base: Base{StixID: "x-mitre-data-source--ds1", AttackID: "DS0017", Name: "Command"}})
	b.AddDataComponent(&DataComponent{Base: Base{StixID: "x-mitre-data-component--dc1", Name: "Command Execution"}, DataSourceRef: "x-mitre-data-source--ds1"})
	b.AddNote(&Note{StixID: "note--1", Content: "watch this", ObjectRefs: []string{"attack-pattern--t1059", "unknown--x"}})

	require.True(t, b.Link(RelationshipSubtechniqueOf, "attack-pattern--t1059-001", "attack-pattern--t1059"))
	require.True(t, b.Link(RelationshipMitigates, "course-of-action--m1038", "attack-pattern--t1059"))
	require.True(t, b.Link(RelationshipUses, "intrusion-set--g0007", "attack-pattern--t1053"))
	require.True(t, b.Link(RelationshipUses, "intrusion-set--g0007", "malware--s0001"))
	require.True(t, b.Link(RelationshipUses, "campaign--c0001", "attack-pattern--t1059"))
	require.True(t, b.Link(RelationshipAttributedTo, "campaign--c0001", "intrusion-set--g0007"))
	require.True(t, b.Link(RelationshipDetects, "x-mitre-data-component--dc1", "attack-pattern--t1059-001"))

	return b.Build()
}

func TestBuilderBuild(t *testing.T) {
	d := newTestDomain(t)

	assert.Equal(t, "enterprise-attack-14", d.ID)
	assert.Len(t, d.Techniques, 2)
	assert.Len(t, d.Subtechniques, 1)
	assert.Equal(t, "T1053", d.Techniques[0].AttackID)
	assert.Equal(t, []string{"Linux", "Windows", "macOS"}, d.Platforms)

	t.Run("sub-technique flag derived from relationship", func(t *testing.T) {
		sub, ok := d.TechniqueByAttackID("T1059.001")
		require.True(t, ok)
		assert.True(t, sub.IsSubtechnique)
		assert.Equal(t, "T1059", sub.ParentAttackID())
	})

	t.Run("tactic order from matrix then kill chain", func(t *testing.T) {
		tech, ok := d.TechniqueByAttackID("T1053")
		require.True(t, ok)
		orders := map[string]int{}
		for _, m := range tech.Tactics {
			orders[m.Shortname] = m.Order
		}
		assert.Equal(t, 2, orders["persistence"])
		assert.Equal(t, 1, orders["execution"])
		assert.Equal(t, 10, orders["lateral-movement"])

		primary, ok := tech.PrimaryTactic()
		require.True(t, ok)
		assert.Equal(t, "execution", primary.Shortname)
	})

	t.Run("overwrite keeps one entity", func(t *testing.T) {
		b := NewBuilder(Meta{Identifier: "mobile-attack", Version: "v2"})
		b.AddMitigation(&Mitigation{Base: Base{StixID: "course-of-action--1", AttackID: "M1", Name: "old"}})
		b.AddMitigation(&Mitigation{Base: Base{StixID: "course-of-action--1", AttackID: "M1", Name: "new"}})
		d := b.Build()
		require.Len(t, d.Mitigations, 1)
		assert.Equal(t, "new", d.Mitigations[0].Name)
		assert.Equal(t, "mobile-attack-2", d.ID)
	})
}

func TestBuilderLink(t *testing.T) {
	b := NewBuilder(Meta{Identifier: "enterprise-attack"})
	b.AddTechnique(&Technique{Base: Base{StixID: "attack-pattern--1", AttackID: "T1"}})
	b.AddMitigation(&Mitigation{Base: Base{StixID: "course-of-action--1", AttackID: "M1"}})
	b.AddSoftware(&Software{Base: Base{StixID: "tool--1", AttackID: "S1"}, Type: SoftwareTypeTool})

	tests := []struct {
		name    string
		relType RelationshipType
		source  string
		target  string
		want    bool
	}{
		{"mitigates", RelationshipMitigates, "course-of-action--1", "attack-pattern--1", true},
		{"reversed mitigates", RelationshipMitigates, "attack-pattern--1", "course-of-action--1", false},
		{"unknown source", RelationshipMitigates, "course-of-action--404", "attack-pattern--1", false},
		{"software uses technique", RelationshipUses, "tool--1", "attack-pattern--1", true},
		{"software uses software", RelationshipUses, "tool--1", "tool--1", false},
		{"revoked-by is not indexed", RelationshipRevokedBy, "attack-pattern--1", "attack-pattern--1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, b.Link(tt.relType, tt.source, tt.target))
		})
	}
}

func TestDomainLookups(t *testing.T) {
	d := newTestDomain(t)

	t.Run("union ids", func(t *testing.T) {
		tech, tactic, ok := d.ResolveUnionID("T1053^persistence")
		require.True(t, ok)
		assert.Equal(t, "T1053", tech.AttackID)
		assert.Equal(t, "TA0003", tactic.AttackID)

		_, _, ok = d.ResolveUnionID("T1059^persistence")
		assert.False(t, ok)
		_, _, ok = d.ResolveUnionID("T1059")
		assert.False(t, ok)

		assert.Equal(t, []string{
			"T1053^execution", "T1053^lateral-movement", "T1053^persistence",
			"T1059.001^execution", "T1059^execution",
		}, d.UnionIDs())
	})

	t.Run("matrix columns", func(t *testing.T) {
		m, ok := d.MatrixByName("Enterprise ATT&CK")
		require.True(t, ok)
		assert.False(t, m.IsPreAttack())
		tactics := d.MatrixTactics(m)
		require.Len(t, tactics, 2)
		assert.Equal(t, "execution", tactics[0].Shortname)

		techs := d.TacticTechniques(tactics[0])
		require.Len(t, techs, 2)
		assert.Equal(t, "Command and Scripting Interpreter", techs[0].Name)
	})

	t.Run("parent and children", func(t *testing.T) {
		parent, _ := d.TechniqueByAttackID("T1059")
		subs := d.SubtechniquesOf(parent)
		require.Len(t, subs, 1)
		assert.Equal(t, "T1059.001", subs[0].AttackID)

		got, ok := d.Parent(subs[0])
		require.True(t, ok)
		assert.Same(t, parent, got)
	})

	t.Run("relationship helpers", func(t *testing.T) {
		assert.Equal(t, []string{"attack-pattern--t1059"}, d.Mitigated("course-of-action--m1038"))
		require.Len(t, d.MitigationsFor("attack-pattern--t1059"), 1)
		assert.Len(t, d.GroupsUsing("attack-pattern--t1053"), 1)
		assert.Equal(t, []string{"attack-pattern--t1059"}, d.CampaignsUsed("intrusion-set--g0007"))
		assert.Len(t, d.CampaignsAttributedTo("intrusion-set--g0007"), 1)
		assert.Equal(t, []string{"malware--s0001"}, d.Relationships.SoftwareUsed["intrusion-set--g0007"])
		assert.Equal(t, []string{"attack-pattern--t1059-001"}, d.Detected("x-mitre-data-component--dc1"))

		ds, ok := d.DataComponentSource(d.DataComponents[0])
		require.True(t, ok)
		assert.Equal(t, "Command", ds.Name)

		components := d.DetectingComponents("attack-pattern--t1059-001")
		require.Len(t, components, 1)
		assert.Equal(t, "x-mitre-data-component--dc1", components[0].StixID)
		assert.Empty(t, d.DetectingComponents("attack-pattern--t1059"))
	})

	t.Run("notes drop unknown refs", func(t *testing.T) {
		notes := d.NotesFor("attack-pattern--t1059")
		require.Len(t, notes, 1)
		assert.Equal(t, "watch this", notes[0].Content)
		assert.Empty(t, d.NotesFor("unknown--x"))
	})
}

func TestUnionID(t *testing.T) {
	assert.Equal(t, "T1059^execution", UnionID("T1059", "execution"))

	id, tactic, ok := SplitUnionID("T1059.001^defense-evasion")
	require.True(t, ok)
	assert.Equal(t, "T1059.001", id)
	assert.Equal(t, "defense-evasion", tactic)

	_, _, ok = SplitUnionID("^execution")
	assert.False(t, ok)
}

func TestBaseModifiedTime(t *testing.T) {
	b := Base{Modified: "2023-04-12T15:00:00.000Z"}
	ts, ok := b.ModifiedTime()
	require.True(t, ok)
	assert.Equal(t, 2023, ts.Year())

	_, ok = (&Base{Modified: "yesterday"}).ModifiedTime()
	assert.False(t, ok)
	assert.True(t, (&Base{}).Active())
	assert.False(t, (&Base{Revoked: true}).Active())
}
