package domain

// Mitigation is a course of action that mitigates techniques
type Mitigation struct {
	Base
}

// Group is an intrusion set
type Group struct {
	Base
	Aliases []string `json:"aliases,omitempty"`
}

// SoftwareType distinguishes malware from tools
type SoftwareType string

const (
	SoftwareTypeMalware SoftwareType = "malware"
	SoftwareTypeTool    SoftwareType = "tool"
)

// Software is malware or a tool
type Software struct {
	Base
	Type      SoftwareType `json:"type"`
	Platforms []string     `json:"platforms,omitempty"`
	Aliases   []string     `json:"aliases,omitempty"`
}

// Campaign is a grouping of adversary activity over a period of time
type Campaign struct {
	Base
	FirstSeen string `json:"first_seen,omitempty"`
	LastSeen  string `json:"last_seen,omitempty"`
}

// DataSource is a source of telemetry
type DataSource struct {
	Base
}

// DataComponent is a specific property of a data source that detects techniques
type DataComponent struct {
	Base
	DataSourceRef string `json:"data_source_ref,omitempty"`
}

// Note is free text attached to arbitrary objects
type Note struct {
	StixID     string   `json:"stix_id"`
	Abstract   string   `json:"abstract,omitempty"`
	Content    string   `json:"content"`
	ObjectRefs []string `json:"object_refs"`
}
