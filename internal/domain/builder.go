package domain

import "sort"

// Meta identifies the dataset a domain is built from
type Meta struct {
	Identifier string `json:"identifier"`
	Name       string `json:"name"`
	Version    string `json:"version"`
}

// EntityKind names the entity table a STIX id belongs to
type EntityKind string

const (
	KindUnknown       EntityKind = ""
	KindTechnique     EntityKind = "technique"
	KindTactic        EntityKind = "tactic"
	KindMatrix        EntityKind = "matrix"
	KindMitigation    EntityKind = "mitigation"
	KindGroup         EntityKind = "group"
	KindSoftware      EntityKind = "software"
	KindCampaign      EntityKind = "campaign"
	KindDataSource    EntityKind = "data-source"
	KindDataComponent EntityKind = "data-component"
	KindNote          EntityKind = "note"
)

// Builder accumulates entities and links and produces an indexed Domain.
// Adding an entity with a STIX id that already exists overwrites it.
type Builder struct {
	meta  Meta
	kinds map[string]EntityKind
	order []string

	techniques     map[string]*Technique
	tactics        map[string]*Tactic
	matrices       map[string]*Matrix
	mitigations    map[string]*Mitigation
	groups         map[string]*Group
	software       map[string]*Software
	campaigns      map[string]*Campaign
	dataSources    map[string]*DataSource
	dataComponents map[string]*DataComponent
	notes          map[string]*Note

	rels *Relationships
}

// NewBuilder creates an empty builder for a dataset
func NewBuilder(meta Meta) *Builder {
	return &Builder{
		meta:           meta,
		kinds:          make(map[string]EntityKind),
		techniques:     make(map[string]*Technique),
		tactics:        make(map[string]*Tactic),
		matrices:       make(map[string]*Matrix),
		mitigations:    make(map[string]*Mitigation),
		groups:         make(map[string]*Group),
		software:       make(map[string]*Software),
		campaigns:      make(map[string]*Campaign),
		dataSources:    make(map[string]*DataSource),
		dataComponents: make(map[string]*DataComponent),
		notes:          make(map[string]*Note),
		rels:           NewRelationships(),
	}
}

func (b *Builder) register(stixID string, kind EntityKind) {
	if _, exists := b.kinds[stixID]; !exists {
		b.order = append(b.order, stixID)
	}
	b.kinds[stixID] = kind
}

// AddTechnique adds or replaces a technique
func (b *Builder) AddTechnique(t *Technique) {
	b.register(t.StixID, KindTechnique)
	b.techniques[t.StixID] = t
}

// AddTactic adds or replaces a tactic
func (b *Builder) AddTactic(t *Tactic) {
	b.register(t.StixID, KindTactic)
	b.tactics[t.StixID] = t
}

// AddMatrix adds or replaces a matrix
func (b *Builder) AddMatrix(m *Matrix) {
	b.register(m.StixID, KindMatrix)
	b.matrices[m.StixID] = m
}

// AddMitigation adds or replaces a mitigation
func (b *Builder) AddMitigation(m *Mitigation) {
	b.register(m.StixID, KindMitigation)
	b.mitigations[m.StixID] = m
}

// AddGroup adds or replaces a group
func (b *Builder) AddGroup(g *Group) {
	b.register(g.StixID, KindGroup)
	b.groups[g.StixID] = g
}

// AddSoftware adds or replaces a piece of software
func (b *Builder) AddSoftware(s *Software) {
	b.register(s.StixID, KindSoftware)
	b.software[s.StixID] = s
}

// AddCampaign adds or replaces a campaign
func (b *Builder) AddCampaign(c *Campaign) {
	b.register(c.StixID, KindCampaign)
	b.campaigns[c.StixID] = c
}

// AddDataSource adds or replaces a data source
func (b *Builder) AddDataSource(ds *DataSource) {
	b.register(ds.StixID, KindDataSource)
	b.dataSources[ds.StixID] = ds
}

// AddDataComponent adds or replaces a data component
func (b *Builder) AddDataComponent(dc *DataComponent) {
	b.register(dc.StixID, KindDataComponent)
	b.dataComponents[dc.StixID] = dc
}

// AddNote adds or replaces a note
func (b *Builder) AddNote(n *Note) {
	b.register(n.StixID, KindNote)
	b.notes[n.StixID] = n
}

// Kind returns the entity kind registered for a STIX id
func (b *Builder) Kind(stixID string) EntityKind {
	return b.kinds[stixID]
}

// Link records a relationship between two known entities. It returns false
// when the combination of relationship type and entity kinds is not indexed.
func (b *Builder) Link(relType RelationshipType, source, target string) bool {
	src, tgt := b.kinds[source], b.kinds[target]
	switch relType {
	case RelationshipSubtechniqueOf:
		if src != KindTechnique || tgt != KindTechnique {
			return false
		}
		appendUnique(b.rels.SubtechniquesOf, target, source)
		b.rels.ParentOf[source] = target
		return true
	case RelationshipMitigates:
		if src != KindMitigation || tgt != KindTechnique {
			return false
		}
		appendUnique(b.rels.Mitigates, source, target)
		return true
	case RelationshipUses:
		if src != KindGroup && src != KindSoftware && src != KindCampaign {
			return false
		}
		switch tgt {
		case KindTechnique:
			appendUnique(b.rels.TechniquesUsed, source, target)
			return true
		case KindSoftware:
			if src == KindSoftware {
				return false
			}
			appendUnique(b.rels.SoftwareUsed, source, target)
			return true
		}
		return false
	case RelationshipAttributedTo:
		if src != KindCampaign || tgt != KindGroup {
			return false
		}
		appendUnique(b.rels.AttributedTo, source, target)
		return true
	case RelationshipDetects:
		if src != KindDataComponent || tgt != KindTechnique {
			return false
		}
		appendUnique(b.rels.Detects, source, target)
		return true
	}
	return false
}

// Build indexes everything added so far into a read-only Domain
func (b *Builder) Build() *Domain {
	d := newDomain(b.meta)

	// Notes reference arbitrary objects, resolved against everything known
	for _, id := range b.order {
		if n, ok := b.notes[id]; ok && b.kinds[id] == KindNote {
			for _, ref := range n.ObjectRefs {
				if _, known := b.kinds[ref]; known {
					appendUnique(b.rels.NotesAbout, ref, n.StixID)
				}
			}
		}
	}
	b.rels.deriveCampaignIndex()
	b.rels.sortValues()
	d.Relationships = b.rels

	for _, id := range b.order {
		switch b.kinds[id] {
		case KindMatrix:
			d.Matrices = append(d.Matrices, b.matrices[id])
		case KindTactic:
			d.Tactics = append(d.Tactics, b.tactics[id])
		}
	}
	tacticOrder := b.tacticOrder()

	for _, id := range b.order {
		switch b.kinds[id] {
		case KindTechnique:
			t := b.techniques[id]
			for i := range t.Tactics {
				if order, ok := tacticOrder[t.Tactics[i].Shortname]; ok {
					t.Tactics[i].Order = order
				} else {
					t.Tactics[i].Order = StandardTacticOrder(t.Tactics[i].Shortname)
				}
			}
			if _, hasParent := b.rels.ParentOf[t.StixID]; hasParent {
				t.IsSubtechnique = true
			}
			if t.IsSubtechnique {
				d.Subtechniques = append(d.Subtechniques, t)
			} else {
				d.Techniques = append(d.Techniques, t)
			}
		case KindMitigation:
			d.Mitigations = append(d.Mitigations, b.mitigations[id])
		case KindGroup:
			d.Groups = append(d.Groups, b.groups[id])
		case KindSoftware:
			d.Software = append(d.Software, b.software[id])
		case KindCampaign:
			d.Campaigns = append(d.Campaigns, b.campaigns[id])
		case KindDataSource:
			d.DataSources = append(d.DataSources, b.dataSources[id])
		case KindDataComponent:
			d.DataComponents = append(d.DataComponents, b.dataComponents[id])
		case KindNote:
			d.Notes = append(d.Notes, b.notes[id])
		}
	}

	d.index()
	return d
}

// tacticOrder assigns each tactic shortname its 1-based position in the
// first matrix (in insertion order) that references it
func (b *Builder) tacticOrder() map[string]int {
	order := make(map[string]int)
	for _, id := range b.order {
		m, ok := b.matrices[id]
		if !ok || b.kinds[id] != KindMatrix {
			continue
		}
		for i, ref := range m.TacticRefs {
			tactic, ok := b.tactics[ref]
			if !ok {
				continue
			}
			if _, seen := order[tactic.Shortname]; !seen {
				order[tactic.Shortname] = i + 1
			}
		}
	}
	return order
}

func sortByAttackID[T any](items []T, key func(T) *Base) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := key(items[i]), key(items[j])
		if a.AttackID != b.AttackID {
			return a.AttackID < b.AttackID
		}
		return a.StixID < b.StixID
	})
}
