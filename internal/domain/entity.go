package domain

import (
	"strings"
	"time"
)

// Base holds the fields shared by all STIX-derived entities
type Base struct {
	StixID      string `json:"stix_id"`
	AttackID    string `json:"attack_id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
	Created     string `json:"created,omitempty"`
	Modified    string `json:"modified,omitempty"`
	Version     string `json:"version,omitempty"`
	Revoked     bool   `json:"revoked,omitempty"`
	Deprecated  bool   `json:"deprecated,omitempty"`
}

// Active reports whether the entity is neither revoked nor deprecated
func (b *Base) Active() bool {
	return !b.Revoked && !b.Deprecated
}

// ModifiedTime parses the modified timestamp. The second return value is
// false when the timestamp is missing or not RFC 3339.
func (b *Base) ModifiedTime() (time.Time, bool) {
	if b.Modified == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, b.Modified)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// VersionID builds the domain version identifier used by layers,
// e.g. "enterprise-attack-14"
func VersionID(identifier, version string) string {
	version = strings.TrimPrefix(strings.TrimPrefix(version, "v"), "V")
	if version == "" {
		return identifier
	}
	return identifier + "-" + version
}

// SplitVersionID splits a domain version id back into identifier and
// version. The version is the text after the last dash.
func SplitVersionID(id string) (identifier, version string) {
	i := strings.LastIndex(id, "-")
	if i <= 0 || i == len(id)-1 {
		return id, ""
	}
	return id[:i], id[i+1:]
}
