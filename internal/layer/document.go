package layer

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"attacknav/internal/domain"

	"gopkg.in/yaml.v3"
)

// Format versions written into layer documents
const (
	LayerFormatVersion = "4.5"
	NavigatorVersion   = "4.9.1"
)

// ScoreValue is a score as it appears in a layer document: written as a
// number, read from either a number or a string
type ScoreValue string

func (s ScoreValue) MarshalJSON() ([]byte, error) {
	if v, ok := parseScore(string(s)); ok {
		return []byte(FormatScore(v)), nil
	}
	return json.Marshal(string(s))
}

func (s *ScoreValue) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*s = ScoreValue(n.String())
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("score must be a number or string: %w", err)
	}
	*s = ScoreValue(strings.TrimSpace(str))
	return nil
}

func (s ScoreValue) MarshalYAML() (interface{}, error) {
	if v, ok := parseScore(string(s)); ok {
		return v, nil
	}
	return string(s), nil
}

func (s *ScoreValue) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("score must be a scalar, got line %d", value.Line)
	}
	if value.Tag == "!!null" {
		*s = ""
		return nil
	}
	*s = ScoreValue(strings.TrimSpace(value.Value))
	return nil
}

// TechniqueEntry is one technique annotation in a layer document
type TechniqueEntry struct {
	TechniqueID       string         `json:"techniqueID" yaml:"techniqueID"`
	Tactic            string         `json:"tactic,omitempty" yaml:"tactic,omitempty"`
	Score             ScoreValue     `json:"score,omitempty" yaml:"score,omitempty"`
	Color             string         `json:"color" yaml:"color"`
	Comment           string         `json:"comment" yaml:"comment"`
	Enabled           *bool          `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Metadata          []MetadataItem `json:"metadata" yaml:"metadata"`
	Links             []Link         `json:"links" yaml:"links"`
	ShowSubtechniques bool           `json:"showSubtechniques" yaml:"showSubtechniques"`
}

// Versions records the dataset and format versions of a document
type Versions struct {
	Attack    string `json:"attack" yaml:"attack"`
	Navigator string `json:"navigator" yaml:"navigator"`
	Layer     string `json:"layer" yaml:"layer"`
}

// Document is the portable layer file format
type Document struct {
	Name                          string           `json:"name" yaml:"name"`
	Versions                      Versions         `json:"versions" yaml:"versions"`
	Domain                        string           `json:"domain" yaml:"domain"`
	Description                   string           `json:"description" yaml:"description"`
	Filters                       FilterDocument   `json:"filters" yaml:"filters"`
	Sorting                       int              `json:"sorting" yaml:"sorting"`
	Layout                        LayoutDocument   `json:"layout" yaml:"layout"`
	HideDisabled                  bool             `json:"hideDisabled" yaml:"hideDisabled"`
	Techniques                    []TechniqueEntry `json:"techniques" yaml:"techniques"`
	Gradient                      GradientDocument `json:"gradient" yaml:"gradient"`
	LegendItems                   []LegendItem     `json:"legendItems" yaml:"legendItems"`
	Metadata                      []MetadataItem   `json:"metadata" yaml:"metadata"`
	Links                         []Link           `json:"links" yaml:"links"`
	ShowTacticRowBackground       bool             `json:"showTacticRowBackground" yaml:"showTacticRowBackground"`
	TacticRowBackground           string           `json:"tacticRowBackground" yaml:"tacticRowBackground"`
	SelectTechniquesAcrossTactics bool             `json:"selectTechniquesAcrossTactics" yaml:"selectTechniquesAcrossTactics"`
	SelectSubtechniquesWithParent bool             `json:"selectSubtechniquesWithParent" yaml:"selectSubtechniquesWithParent"`
	SelectVisibleTechniques       bool             `json:"selectVisibleTechniques" yaml:"selectVisibleTechniques"`
}

// Document renders the layer in the portable file format. Only annotated
// technique states are written.
func (l *Layer) Document() *Document {
	identifier, version := domain.SplitVersionID(l.DomainVersionID)
	doc := &Document{
		Name:                          l.Name,
		Versions:                      Versions{Attack: version, Navigator: NavigatorVersion, Layer: LayerFormatVersion},
		Domain:                        identifier,
		Description:                   l.Description,
		Filters:                       l.Filter.Document(),
		Sorting:                       int(l.Sorting),
		Layout:                        l.Layout.Document(),
		HideDisabled:                  l.HideDisabled,
		Techniques:                    []TechniqueEntry{},
		Gradient:                      l.Gradient.Document(),
		LegendItems:                   append([]LegendItem{}, l.LegendItems...),
		Metadata:                      validMetadata(l.Metadata),
		Links:                         validLinks(l.Links),
		ShowTacticRowBackground:       l.ShowTacticRowBackground,
		TacticRowBackground:           l.TacticRowBackground,
		SelectTechniquesAcrossTactics: l.SelectTechniquesAcrossTactics,
		SelectSubtechniquesWithParent: l.SelectSubtechniquesWithParent,
		SelectVisibleTechniques:       l.SelectVisibleTechniques,
	}
	for _, id := range l.UnionIDs() {
		tvm := l.techniqueVMs[id]
		if tvm.Annotated() || tvm.ShowSubtechniques {
			doc.Techniques = append(doc.Techniques, tvm.Entry())
		}
	}
	return doc
}

// FromDocument builds a layer from the portable file format. Technique
// entries without a tactic apply to every tactic of the technique, which
// needs the domain; with a nil domain such entries fail with a
// MissingContextError.
func FromDocument(doc *Document, d *domain.Domain) (*Layer, error) {
	l := New(doc.Name, domain.VersionID(doc.Domain, doc.Versions.Attack))
	l.Description = doc.Description
	if d != nil {
		l.Filter.InitPlatformOptions(d)
	}
	if doc.Filters.Platforms != nil {
		l.Filter.ApplyDocument(doc.Filters)
	}
	if doc.Sorting >= int(SortNameAscending) && doc.Sorting <= int(SortScoreDescending) {
		l.Sorting = SortMode(doc.Sorting)
	}
	l.Layout.ApplyDocument(doc.Layout)
	l.HideDisabled = doc.HideDisabled
	if len(doc.Gradient.Colors) > 0 {
		if err := l.Gradient.ApplyDocument(doc.Gradient); err != nil {
			return nil, fmt.Errorf("failed to load gradient: %w", err)
		}
	}
	l.LegendItems = append(l.LegendItems, doc.LegendItems...)
	l.Metadata = validMetadata(doc.Metadata)
	l.Links = validLinks(doc.Links)
	l.ShowTacticRowBackground = doc.ShowTacticRowBackground
	if doc.TacticRowBackground != "" {
		l.TacticRowBackground = doc.TacticRowBackground
	}
	l.SelectTechniquesAcrossTactics = doc.SelectTechniquesAcrossTactics
	l.SelectSubtechniquesWithParent = doc.SelectSubtechniquesWithParent
	l.SelectVisibleTechniques = doc.SelectVisibleTechniques

	for _, entry := range doc.Techniques {
		if entry.TechniqueID == "" {
			return nil, &MissingContextError{Tactic: entry.Tactic}
		}
		if entry.Tactic != "" {
			l.SetTechniqueVM(entry.toVM(domain.UnionID(entry.TechniqueID, entry.Tactic)))
			continue
		}
		if d == nil {
			return nil, &MissingContextError{TechniqueID: entry.TechniqueID}
		}
		t, ok := d.TechniqueByAttackID(entry.TechniqueID)
		if !ok {
			continue
		}
		for _, id := range t.TechniqueTacticIDs() {
			l.SetTechniqueVM(entry.toVM(id))
		}
	}
	return l, nil
}

// ParseSorting converts a sort mode name or number
func ParseSorting(s string) (SortMode, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < int(SortNameAscending) || n > int(SortScoreDescending) {
		return 0, fmt.Errorf("invalid sort mode %q", s)
	}
	return SortMode(n), nil
}

func validMetadata(items []MetadataItem) []MetadataItem {
	out := []MetadataItem{}
	for _, m := range items {
		if m.valid() {
			out = append(out, m)
		}
	}
	return out
}

func validLinks(items []Link) []Link {
	out := []Link{}
	for _, l := range items {
		if l.valid() {
			out = append(out, l)
		}
	}
	return out
}

func boolPtr(b bool) *bool { return &b }
