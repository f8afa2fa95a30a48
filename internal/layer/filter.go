package layer

import (
	"encoding/json"
	"fmt"

	"attacknav/internal/domain"
)

// CategoryPlatforms is the platform filter category
const CategoryPlatforms = "platforms"

// FilterCategory holds the available options of a category and the
// currently selected subset
type FilterCategory struct {
	Options   []string `json:"options"`
	Selection []string `json:"selection"`
}

func (c *FilterCategory) selected(value string) bool {
	for _, s := range c.Selection {
		if s == value {
			return true
		}
	}
	return false
}

// Filter restricts which techniques a layer shows
type Filter struct {
	Platforms FilterCategory `json:"platforms"`
}

// FilterDocument is the serialized form of a Filter: selections only
type FilterDocument struct {
	Platforms []string `json:"platforms" yaml:"platforms"`
}

// NewFilter creates an empty filter
func NewFilter() *Filter {
	return &Filter{Platforms: FilterCategory{Options: []string{}, Selection: []string{}}}
}

func (f *Filter) category(name string) *FilterCategory {
	if name == CategoryPlatforms {
		return &f.Platforms
	}
	return nil
}

// InitPlatformOptions seeds the platform options from the domain and
// selects all of them
func (f *Filter) InitPlatformOptions(d *domain.Domain) {
	f.Platforms.Options = append([]string{}, d.Platforms...)
	f.Platforms.Selection = append([]string{}, d.Platforms...)
}

// ToggleInFilter adds the value to the category selection, or removes it
// when already selected. Unknown categories are ignored.
func (f *Filter) ToggleInFilter(category, value string) {
	c := f.category(category)
	if c == nil {
		return
	}
	for i, s := range c.Selection {
		if s == value {
			c.Selection = append(c.Selection[:i:i], c.Selection[i+1:]...)
			return
		}
	}
	c.Selection = append(c.Selection, value)
}

// InFilter reports whether the value is selected in the category
func (f *Filter) InFilter(category, value string) bool {
	c := f.category(category)
	return c != nil && c.selected(value)
}

// MatchesPlatforms reports whether any of the platforms is selected
func (f *Filter) MatchesPlatforms(platforms []string) bool {
	for _, p := range platforms {
		if f.Platforms.selected(p) {
			return true
		}
	}
	return false
}

// Document returns the serialized selections
func (f *Filter) Document() FilterDocument {
	return FilterDocument{Platforms: append([]string{}, f.Platforms.Selection...)}
}

// ApplyDocument restores selections. Selected values missing from the
// options are added to them.
func (f *Filter) ApplyDocument(doc FilterDocument) {
	f.Platforms.Selection = append([]string{}, doc.Platforms...)
	for _, p := range doc.Platforms {
		found := false
		for _, o := range f.Platforms.Options {
			if o == p {
				found = true
				break
			}
		}
		if !found {
			f.Platforms.Options = append(f.Platforms.Options, p)
		}
	}
}

// Serialize renders the filter selections as JSON
func (f *Filter) Serialize() ([]byte, error) {
	return json.Marshal(f.Document())
}

// Deserialize restores selections produced by Serialize
func (f *Filter) Deserialize(data []byte) error {
	var doc FilterDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse filters: %w", err)
	}
	f.ApplyDocument(doc)
	return nil
}

// Clone returns a deep copy
func (f *Filter) Clone() *Filter {
	return &Filter{Platforms: FilterCategory{
		Options:   append([]string{}, f.Platforms.Options...),
		Selection: append([]string{}, f.Platforms.Selection...),
	}}
}
