package domain

import "sort"

// Domain is one parsed ATT&CK dataset version. It is read-only once built.
type Domain struct {
	ID         string `json:"id"`
	Identifier string `json:"identifier"`
	Name       string `json:"name"`
	Version    string `json:"version"`

	Techniques     []*Technique     `json:"techniques"`
	Subtechniques  []*Technique     `json:"subtechniques"`
	Tactics        []*Tactic        `json:"tactics"`
	Matrices       []*Matrix        `json:"matrices"`
	Mitigations    []*Mitigation    `json:"mitigations"`
	Groups         []*Group         `json:"groups"`
	Software       []*Software      `json:"software"`
	Campaigns      []*Campaign      `json:"campaigns"`
	DataSources    []*DataSource    `json:"data_sources"`
	DataComponents []*DataComponent `json:"data_components"`
	Notes          []*Note          `json:"notes"`
	Platforms      []string         `json:"platforms"`

	Relationships *Relationships `json:"relationships"`

	techniquesByStix   map[string]*Technique
	techniquesByAttack map[string]*Technique
	tacticsByStix      map[string]*Tactic
	tacticsByShortname map[string]*Tactic
	entities           map[string]*Base
	notesByStix        map[string]*Note
	dataSourcesByStix  map[string]*DataSource
}

func newDomain(meta Meta) *Domain {
	return &Domain{
		ID:         VersionID(meta.Identifier, meta.Version),
		Identifier: meta.Identifier,
		Name:       meta.Name,
		Version:    meta.Version,
	}
}

func (d *Domain) index() {
	sortByAttackID(d.Techniques, func(t *Technique) *Base { return &t.Base })
	sortByAttackID(d.Subtechniques, func(t *Technique) *Base { return &t.Base })
	sortByAttackID(d.Mitigations, func(m *Mitigation) *Base { return &m.Base })
	sortByAttackID(d.Groups, func(g *Group) *Base { return &g.Base })
	sortByAttackID(d.Software, func(s *Software) *Base { return &s.Base })
	sortByAttackID(d.Campaigns, func(c *Campaign) *Base { return &c.Base })
	sortByAttackID(d.DataSources, func(ds *DataSource) *Base { return &ds.Base })
	sortByAttackID(d.DataComponents, func(dc *DataComponent) *Base { return &dc.Base })
	sort.Slice(d.Notes, func(i, j int) bool { return d.Notes[i].StixID < d.Notes[j].StixID })

	d.techniquesByStix = make(map[string]*Technique)
	d.techniquesByAttack = make(map[string]*Technique)
	d.tacticsByStix = make(map[string]*Tactic)
	d.tacticsByShortname = make(map[string]*Tactic)
	d.entities = make(map[string]*Base)
	d.notesByStix = make(map[string]*Note)
	d.dataSourcesByStix = make(map[string]*DataSource)

	platforms := make(map[string]struct{})
	for _, list := range [][]*Technique{d.Techniques, d.Subtechniques} {
		for _, t := range list {
			d.techniquesByStix[t.StixID] = t
			d.techniquesByAttack[t.AttackID] = t
			d.entities[t.StixID] = &t.Base
			for _, p := range t.Platforms {
				platforms[p] = struct{}{}
			}
		}
	}
	for _, t := range d.Tactics {
		d.tacticsByStix[t.StixID] = t
		d.tacticsByShortname[t.Shortname] = t
		d.entities[t.StixID] = &t.Base
	}
	for _, m := range d.Matrices {
		d.entities[m.StixID] = &m.Base
	}
	for _, m := range d.Mitigations {
		d.entities[m.StixID] = &m.Base
	}
	for _, g := range d.Groups {
		d.entities[g.StixID] = &g.Base
	}
	for _, s := range d.Software {
		d.entities[s.StixID] = &s.Base
	}
	for _, c := range d.Campaigns {
		d.entities[c.StixID] = &c.Base
	}
	for _, ds := range d.DataSources {
		d.entities[ds.StixID] = &ds.Base
		d.dataSourcesByStix[ds.StixID] = ds
	}
	for _, dc := range d.DataComponents {
		d.entities[dc.StixID] = &dc.Base
	}
	for _, n := range d.Notes {
		d.notesByStix[n.StixID] = n
	}

	d.Platforms = make([]string, 0, len(platforms))
	for p := range platforms {
		d.Platforms = append(d.Platforms, p)
	}
	sort.Strings(d.Platforms)
}

// Entity returns the shared fields of any entity by STIX id
func (d *Domain) Entity(stixID string) (*Base, bool) {
	b, ok := d.entities[stixID]
	return b, ok
}

// TechniqueByStixID looks up a technique or sub-technique by STIX id
func (d *Domain) TechniqueByStixID(stixID string) (*Technique, bool) {
	t, ok := d.techniquesByStix[stixID]
	return t, ok
}

// TechniqueByAttackID looks up a technique or sub-technique by ATT&CK id
func (d *Domain) TechniqueByAttackID(attackID string) (*Technique, bool) {
	t, ok := d.techniquesByAttack[attackID]
	return t, ok
}

// TacticByShortname looks up a tactic by its shortname
func (d *Domain) TacticByShortname(shortname string) (*Tactic, bool) {
	t, ok := d.tacticsByShortname[shortname]
	return t, ok
}

// TacticByStixID looks up a tactic by STIX id
func (d *Domain) TacticByStixID(stixID string) (*Tactic, bool) {
	t, ok := d.tacticsByStix[stixID]
	return t, ok
}

// ResolveUnionID resolves a technique-tactic union id. The tactic is nil
// when the technique lists the shortname but no tactic entity exists.
func (d *Domain) ResolveUnionID(id string) (*Technique, *Tactic, bool) {
	attackID, shortname, ok := SplitUnionID(id)
	if !ok {
		return nil, nil, false
	}
	t, ok := d.techniquesByAttack[attackID]
	if !ok || !t.InTactic(shortname) {
		return nil, nil, false
	}
	return t, d.tacticsByShortname[shortname], true
}

// AllTechniques returns techniques followed by sub-techniques
func (d *Domain) AllTechniques() []*Technique {
	all := make([]*Technique, 0, len(d.Techniques)+len(d.Subtechniques))
	all = append(all, d.Techniques...)
	return append(all, d.Subtechniques...)
}

// UnionIDs returns every technique-tactic union id in the domain, sorted
func (d *Domain) UnionIDs() []string {
	var ids []string
	for _, t := range d.AllTechniques() {
		ids = append(ids, t.TechniqueTacticIDs()...)
	}
	sort.Strings(ids)
	return ids
}

// MatrixTactics returns the tactics of a matrix in column order
func (d *Domain) MatrixTactics(m *Matrix) []*Tactic {
	tactics := make([]*Tactic, 0, len(m.TacticRefs))
	for _, ref := range m.TacticRefs {
		if t, ok := d.tacticsByStix[ref]; ok {
			tactics = append(tactics, t)
		}
	}
	return tactics
}

// MatrixByName returns the first matrix with the given name
func (d *Domain) MatrixByName(name string) (*Matrix, bool) {
	for _, m := range d.Matrices {
		if m.Name == name {
			return m, true
		}
	}
	return nil, false
}

// TacticTechniques returns the top-level techniques of a tactic, by name
func (d *Domain) TacticTechniques(t *Tactic) []*Technique {
	var out []*Technique
	for _, tech := range d.Techniques {
		if tech.InTactic(t.Shortname) {
			out = append(out, tech)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SubtechniquesOf returns the sub-techniques of a technique ordered by ATT&CK id
func (d *Domain) SubtechniquesOf(parent *Technique) []*Technique {
	ids := d.Relationships.SubtechniquesOf[parent.StixID]
	subs := make([]*Technique, 0, len(ids))
	for _, id := range ids {
		if t, ok := d.techniquesByStix[id]; ok {
			subs = append(subs, t)
		}
	}
	sort.SliceStable(subs, func(i, j int) bool { return subs[i].AttackID < subs[j].AttackID })
	return subs
}

// Parent returns the parent of a sub-technique
func (d *Domain) Parent(sub *Technique) (*Technique, bool) {
	id, ok := d.Relationships.ParentOf[sub.StixID]
	if !ok {
		return nil, false
	}
	return d.TechniqueByStixID(id)
}

// Mitigated returns the STIX ids of techniques mitigated by a mitigation
func (d *Domain) Mitigated(mitigationID string) []string {
	return d.Relationships.Mitigates[mitigationID]
}

// MitigationsFor returns the mitigations of a technique
func (d *Domain) MitigationsFor(techniqueID string) []*Mitigation {
	var out []*Mitigation
	for _, m := range d.Mitigations {
		for _, id := range d.Relationships.Mitigates[m.StixID] {
			if id == techniqueID {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

// Used returns the STIX ids of techniques used directly by an actor
func (d *Domain) Used(actorID string) []string {
	return d.Relationships.TechniquesUsed[actorID]
}

// CampaignsUsed returns the STIX ids of techniques a group uses through
// campaigns attributed to it
func (d *Domain) CampaignsUsed(groupID string) []string {
	return d.Relationships.TechniquesViaCampaigns[groupID]
}

// GroupsUsing returns the groups that directly use a technique
func (d *Domain) GroupsUsing(techniqueID string) []*Group {
	var out []*Group
	for _, g := range d.Groups {
		for _, id := range d.Relationships.TechniquesUsed[g.StixID] {
			if id == techniqueID {
				out = append(out, g)
				break
			}
		}
	}
	return out
}

// CampaignsAttributedTo returns the campaigns attributed to a group
func (d *Domain) CampaignsAttributedTo(groupID string) []*Campaign {
	var out []*Campaign
	for _, c := range d.Campaigns {
		for _, id := range d.Relationships.AttributedTo[c.StixID] {
			if id == groupID {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// DataComponentSource returns the data source of a data component
func (d *Domain) DataComponentSource(dc *DataComponent) (*DataSource, bool) {
	ds, ok := d.dataSourcesByStix[dc.DataSourceRef]
	return ds, ok
}

// Detected returns the STIX ids of techniques detected by a data component
func (d *Domain) Detected(dataComponentID string) []string {
	return d.Relationships.Detects[dataComponentID]
}

// DetectingComponents returns the data components that detect a technique
func (d *Domain) DetectingComponents(techniqueID string) []*DataComponent {
	var out []*DataComponent
	for _, dc := range d.DataComponents {
		for _, id := range d.Detected(dc.StixID) {
			if id == techniqueID {
				out = append(out, dc)
				break
			}
		}
	}
	return out
}

// NotesFor returns the notes attached to an object
func (d *Domain) NotesFor(stixID string) []*Note {
	ids := d.Relationships.NotesAbout[stixID]
	notes := make([]*Note, 0, len(ids))
	for _, id := range ids {
		if n, ok := d.notesByStix[id]; ok {
			notes = append(notes, n)
		}
	}
	return notes
}
