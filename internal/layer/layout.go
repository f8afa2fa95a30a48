package layer

import "fmt"

// LayoutKind is the matrix rendering style stored with a layer
type LayoutKind string

const (
	LayoutSide LayoutKind = "side"
	LayoutFlat LayoutKind = "flat"
	LayoutMini LayoutKind = "mini"
)

// AggregateFunction selects how sub-technique scores roll up
type AggregateFunction string

const (
	AggregateAverage AggregateFunction = "average"
	AggregateMin     AggregateFunction = "min"
	AggregateMax     AggregateFunction = "max"
	AggregateSum     AggregateFunction = "sum"
)

// ExpandedSubtechniques values
const (
	ExpandNone      = "none"
	ExpandAnnotated = "annotated"
	ExpandAll       = "all"
)

// LayoutOptions holds the display and aggregation settings of a layer.
// The mini layout has no room for ids or names, so choosing it turns both
// off and turning either back on leaves mini for side.
type LayoutOptions struct {
	layout                LayoutKind
	showID                bool
	showName              bool
	aggregateFunction     AggregateFunction
	ShowAggregateScores   bool
	CountUnscored         bool
	ExpandedSubtechniques string
}

// LayoutDocument is the serialized form of LayoutOptions
type LayoutDocument struct {
	Layout                string `json:"layout" yaml:"layout"`
	AggregateFunction     string `json:"aggregateFunction" yaml:"aggregateFunction"`
	ShowID                bool   `json:"showID" yaml:"showID"`
	ShowName              bool   `json:"showName" yaml:"showName"`
	ShowAggregateScores   bool   `json:"showAggregateScores" yaml:"showAggregateScores"`
	CountUnscored         bool   `json:"countUnscored" yaml:"countUnscored"`
	ExpandedSubtechniques string `json:"expandedSubtechniques,omitempty" yaml:"expandedSubtechniques,omitempty"`
}

// NewLayoutOptions returns the defaults: side layout, names shown, average
func NewLayoutOptions() *LayoutOptions {
	return &LayoutOptions{
		layout:                LayoutSide,
		showName:              true,
		aggregateFunction:     AggregateAverage,
		ExpandedSubtechniques: ExpandNone,
	}
}

func (o *LayoutOptions) Layout() LayoutKind                   { return o.layout }
func (o *LayoutOptions) ShowID() bool                         { return o.showID }
func (o *LayoutOptions) ShowName() bool                       { return o.showName }
func (o *LayoutOptions) AggregateFunction() AggregateFunction { return o.aggregateFunction }

// SetLayout changes the layout kind
func (o *LayoutOptions) SetLayout(kind LayoutKind) error {
	switch kind {
	case LayoutSide, LayoutFlat:
	case LayoutMini:
		o.showID = false
		o.showName = false
	default:
		return fmt.Errorf("invalid layout %q", kind)
	}
	o.layout = kind
	return nil
}

// SetShowID toggles technique ids
func (o *LayoutOptions) SetShowID(show bool) {
	o.showID = show
	if show && o.layout == LayoutMini {
		o.layout = LayoutSide
	}
}

// SetShowName toggles technique names
func (o *LayoutOptions) SetShowName(show bool) {
	o.showName = show
	if show && o.layout == LayoutMini {
		o.layout = LayoutSide
	}
}

// SetAggregateFunction changes the roll-up function
func (o *LayoutOptions) SetAggregateFunction(fn AggregateFunction) error {
	switch fn {
	case AggregateAverage, AggregateMin, AggregateMax, AggregateSum:
		o.aggregateFunction = fn
		return nil
	}
	return fmt.Errorf("invalid aggregate function %q", fn)
}

// Document returns the serialized form
func (o *LayoutOptions) Document() LayoutDocument {
	return LayoutDocument{
		Layout:                string(o.layout),
		AggregateFunction:     string(o.aggregateFunction),
		ShowID:                o.showID,
		ShowName:              o.showName,
		ShowAggregateScores:   o.ShowAggregateScores,
		CountUnscored:         o.CountUnscored,
		ExpandedSubtechniques: o.ExpandedSubtechniques,
	}
}

// ApplyDocument restores serialized options. Invalid enum values keep the
// current setting.
func (o *LayoutOptions) ApplyDocument(doc LayoutDocument) {
	o.showID = doc.ShowID
	o.showName = doc.ShowName
	if doc.Layout != "" {
		_ = o.SetLayout(LayoutKind(doc.Layout))
	}
	if doc.AggregateFunction != "" {
		_ = o.SetAggregateFunction(AggregateFunction(doc.AggregateFunction))
	}
	o.ShowAggregateScores = doc.ShowAggregateScores
	o.CountUnscored = doc.CountUnscored
	switch doc.ExpandedSubtechniques {
	case ExpandNone, ExpandAnnotated, ExpandAll:
		o.ExpandedSubtechniques = doc.ExpandedSubtechniques
	}
}

// Clone returns a copy
func (o *LayoutOptions) Clone() *LayoutOptions {
	c := *o
	return &c
}
