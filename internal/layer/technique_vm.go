package layer

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"attacknav/internal/domain"
)

// Link is a labelled URL attached to a technique or layer. A divider entry
// carries no label or URL.
type Link struct {
	Label   string `json:"label,omitempty" yaml:"label,omitempty"`
	URL     string `json:"url,omitempty" yaml:"url,omitempty"`
	Divider bool   `json:"divider,omitempty" yaml:"divider,omitempty"`
}

// MetadataItem is a name/value pair attached to a technique or layer
type MetadataItem struct {
	Name    string `json:"name,omitempty" yaml:"name,omitempty"`
	Value   string `json:"value,omitempty" yaml:"value,omitempty"`
	Divider bool   `json:"divider,omitempty" yaml:"divider,omitempty"`
}

func (m MetadataItem) valid() bool {
	return m.Divider || (m.Name != "" && m.Value != "")
}

func (l Link) valid() bool {
	return l.Divider || (l.Label != "" && l.URL != "")
}

// TechniqueVM is the annotation state of one technique under one tactic
type TechniqueVM struct {
	UnionID           string         `json:"technique_tactic_union_id"`
	Score             string         `json:"score"`
	Color             string         `json:"color"`
	Comment           string         `json:"comment"`
	Enabled           bool           `json:"enabled"`
	Links             []Link         `json:"links"`
	Metadata          []MetadataItem `json:"metadata"`
	ShowSubtechniques bool           `json:"showSubtechniques"`

	// AggregateScore and AggregateScoreColor are derived by aggregation
	AggregateScore      string `json:"aggregateScore,omitempty"`
	AggregateScoreColor string `json:"aggregateScoreColor,omitempty"`
}

// NewTechniqueVM creates the default, unannotated state for a union id
func NewTechniqueVM(unionID string) *TechniqueVM {
	return &TechniqueVM{
		UnionID:  unionID,
		Enabled:  true,
		Links:    []Link{},
		Metadata: []MetadataItem{},
	}
}

// TechniqueID returns the ATT&CK id part of the union id
func (t *TechniqueVM) TechniqueID() string {
	id, _, _ := domain.SplitUnionID(t.UnionID)
	return id
}

// Tactic returns the tactic shortname part of the union id
func (t *TechniqueVM) Tactic() string {
	_, tactic, _ := domain.SplitUnionID(t.UnionID)
	return tactic
}

// Annotated reports whether any user-set state differs from the defaults
func (t *TechniqueVM) Annotated() bool {
	return t.Score != "" ||
		t.Color != "" ||
		!t.Enabled ||
		t.Comment != "" ||
		len(t.Links) > 0 ||
		len(t.Metadata) > 0
}

// Modified is the same predicate as Annotated
func (t *TechniqueVM) Modified() bool {
	return t.Annotated()
}

// ResetAnnotations returns all user-set state to the defaults
func (t *TechniqueVM) ResetAnnotations() {
	t.Score = ""
	t.Color = ""
	t.Comment = ""
	t.Enabled = true
	t.Links = []Link{}
	t.Metadata = []MetadataItem{}
	t.AggregateScore = ""
	t.AggregateScoreColor = ""
}

// NumericScore parses the score. The second value is false when the score
// is empty or not a number.
func (t *TechniqueVM) NumericScore() (float64, bool) {
	return parseScore(t.Score)
}

// NumericAggregateScore parses the aggregate score
func (t *TechniqueVM) NumericAggregateScore() (float64, bool) {
	return parseScore(t.AggregateScore)
}

// Clone returns a deep copy
func (t *TechniqueVM) Clone() *TechniqueVM {
	c := *t
	c.Links = append([]Link{}, t.Links...)
	c.Metadata = append([]MetadataItem{}, t.Metadata...)
	return &c
}

// Entry converts the state to its layer document form
func (t *TechniqueVM) Entry() TechniqueEntry {
	entry := TechniqueEntry{
		TechniqueID:       t.TechniqueID(),
		Tactic:            t.Tactic(),
		Color:             t.Color,
		Comment:           t.Comment,
		Enabled:           boolPtr(t.Enabled),
		Metadata:          []MetadataItem{},
		Links:             []Link{},
		ShowSubtechniques: t.ShowSubtechniques,
	}
	if _, ok := t.NumericScore(); ok {
		entry.Score = ScoreValue(strings.TrimSpace(t.Score))
	}
	for _, m := range t.Metadata {
		if m.valid() {
			entry.Metadata = append(entry.Metadata, m)
		}
	}
	for _, l := range t.Links {
		if l.valid() {
			entry.Links = append(entry.Links, l)
		}
	}
	return entry
}

// Serialize renders the layer document entry for this state
func (t *TechniqueVM) Serialize() ([]byte, error) {
	data, err := json.MarshalIndent(t.Entry(), "", "\t")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize technique %s: %w", t.UnionID, err)
	}
	return data, nil
}

// DeserializeTechniqueVM restores state serialized by Serialize. The
// technique id and tactic are required to rebuild the union id.
func DeserializeTechniqueVM(data []byte, techniqueID, tactic string) (*TechniqueVM, error) {
	if techniqueID == "" || tactic == "" {
		return nil, &MissingContextError{TechniqueID: techniqueID, Tactic: tactic}
	}
	var entry TechniqueEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to parse technique %s: %w", techniqueID, err)
	}
	return entry.toVM(domain.UnionID(techniqueID, tactic)), nil
}

func (e TechniqueEntry) toVM(unionID string) *TechniqueVM {
	tvm := NewTechniqueVM(unionID)
	tvm.Score = string(e.Score)
	tvm.Color = e.Color
	tvm.Comment = e.Comment
	tvm.Enabled = e.Enabled == nil || *e.Enabled
	tvm.ShowSubtechniques = e.ShowSubtechniques
	for _, m := range e.Metadata {
		if m.valid() {
			tvm.Metadata = append(tvm.Metadata, m)
		}
	}
	for _, l := range e.Links {
		if l.valid() {
			tvm.Links = append(tvm.Links, l)
		}
	}
	return tvm
}

func parseScore(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// FormatScore renders a score with the shortest exact representation
func FormatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
