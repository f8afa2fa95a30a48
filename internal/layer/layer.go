// Package layer holds the annotation state of ATT&CK layers: per-technique
// annotations, filters, sorting, aggregate scoring and color gradients.
package layer

import (
	"sort"

	"attacknav/internal/domain"

	"github.com/google/uuid"
)

// SortMode orders techniques within a tactic column
type SortMode int

const (
	SortNameAscending SortMode = iota
	SortNameDescending
	SortScoreAscending
	SortScoreDescending
)

// LegendItem is one entry of a layer legend
type LegendItem struct {
	Label string `json:"label" yaml:"label"`
	Color string `json:"color" yaml:"color"`
}

// Layer is a named set of technique annotations bound to one domain version
type Layer struct {
	ID              string
	Name            string
	Description     string
	DomainVersionID string

	Filter       *Filter
	Gradient     *Gradient
	Sorting      SortMode
	LegendItems  []LegendItem
	Layout       *LayoutOptions
	HideDisabled bool

	// InitializeScoresTo seeds the score of technique states created by
	// InitTechniqueVMs
	InitializeScoresTo string

	Metadata []MetadataItem
	Links    []Link

	ShowTacticRowBackground       bool
	TacticRowBackground           string
	SelectTechniquesAcrossTactics bool
	SelectSubtechniquesWithParent bool
	SelectVisibleTechniques       bool

	techniqueVMs map[string]*TechniqueVM
}

// New creates an empty layer with a fresh id
func New(name, domainVersionID string) *Layer {
	return &Layer{
		ID:                            uuid.NewString(),
		Name:                          name,
		DomainVersionID:               domainVersionID,
		Filter:                        NewFilter(),
		Gradient:                      NewGradient(),
		Layout:                        NewLayoutOptions(),
		LegendItems:                   []LegendItem{},
		Metadata:                      []MetadataItem{},
		Links:                         []Link{},
		TacticRowBackground:           "#dddddd",
		SelectTechniquesAcrossTactics: true,
		techniqueVMs:                  make(map[string]*TechniqueVM),
	}
}

// TechniqueVM returns the state for a union id, creating the default state
// on first access
func (l *Layer) TechniqueVM(unionID string) *TechniqueVM {
	if tvm, ok := l.techniqueVMs[unionID]; ok {
		return tvm
	}
	tvm := NewTechniqueVM(unionID)
	l.techniqueVMs[unionID] = tvm
	return tvm
}

// TechniqueVMFor returns the state of a technique under a tactic
func (l *Layer) TechniqueVMFor(t *domain.Technique, tactic *domain.Tactic) *TechniqueVM {
	return l.TechniqueVM(t.TechniqueTacticID(tactic.Shortname))
}

// Lookup returns the state for a union id without creating it
func (l *Layer) Lookup(unionID string) (*TechniqueVM, bool) {
	tvm, ok := l.techniqueVMs[unionID]
	return tvm, ok
}

// SetTechniqueVM stores a state under its union id, replacing any existing one
func (l *Layer) SetTechniqueVM(tvm *TechniqueVM) {
	l.techniqueVMs[tvm.UnionID] = tvm
}

// UnionIDs returns the ids that have state, sorted
func (l *Layer) UnionIDs() []string {
	ids := make([]string, 0, len(l.techniqueVMs))
	for id := range l.techniqueVMs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of technique states
func (l *Layer) Len() int {
	return len(l.techniqueVMs)
}

// InitTechniqueVMs creates state for every union id of the domain that does
// not have one yet, seeded with InitializeScoresTo
func (l *Layer) InitTechniqueVMs(d *domain.Domain) {
	for _, id := range d.UnionIDs() {
		if _, ok := l.techniqueVMs[id]; ok {
			continue
		}
		tvm := NewTechniqueVM(id)
		tvm.Score = l.InitializeScoresTo
		l.techniqueVMs[id] = tvm
	}
}

// ResetTechnique resets the annotations of one union id, if it has state
func (l *Layer) ResetTechnique(unionID string) bool {
	tvm, ok := l.techniqueVMs[unionID]
	if !ok {
		return false
	}
	tvm.ResetAnnotations()
	return true
}

// AnnotatedCount returns how many technique states carry annotations
func (l *Layer) AnnotatedCount() int {
	n := 0
	for _, tvm := range l.techniqueVMs {
		if tvm.Annotated() {
			n++
		}
	}
	return n
}

// Colors resolves the display color of every scored or colored state. An
// explicit color wins; with aggregate scores shown the aggregate color comes
// next, then the gradient color of the score.
func (l *Layer) Colors() map[string]string {
	colors := make(map[string]string)
	showAggregate := l.Layout.ShowAggregateScores
	for id, tvm := range l.techniqueVMs {
		switch {
		case tvm.Color != "":
			colors[id] = tvm.Color
		case showAggregate && tvm.AggregateScoreColor != "":
			colors[id] = tvm.AggregateScoreColor
		case tvm.Score != "":
			if c := l.Gradient.GetColor(tvm.Score); c != "" {
				colors[id] = c
			}
		}
	}
	return colors
}

// Clone returns a deep copy that shares no mutable state with l. The id is
// kept; callers that store the copy as a new layer assign a new one.
func (l *Layer) Clone() *Layer {
	c := *l
	c.Filter = l.Filter.Clone()
	c.Gradient = l.Gradient.Clone()
	c.Layout = l.Layout.Clone()
	c.LegendItems = append([]LegendItem{}, l.LegendItems...)
	c.Metadata = append([]MetadataItem{}, l.Metadata...)
	c.Links = append([]Link{}, l.Links...)
	c.techniqueVMs = make(map[string]*TechniqueVM, len(l.techniqueVMs))
	for id, tvm := range l.techniqueVMs {
		c.techniqueVMs[id] = tvm.Clone()
	}
	return &c
}
