// Package changelog classifies the techniques of two versions of the same
// ATT&CK dataset into changelog buckets.
package changelog

import (
	"sort"

	"attacknav/internal/domain"

	"github.com/Masterminds/semver/v3"
)

// Bucket names one changelog category
type Bucket string

const (
	Additions    Bucket = "additions"
	Changes      Bucket = "changes"
	MinorChanges Bucket = "minor_changes"
	Deprecations Bucket = "deprecations"
	Revocations  Bucket = "revocations"
	Unchanged    Bucket = "unchanged"
)

// Changelog partitions the ATT&CK ids of the newer domain. Every id appears
// in exactly one list; each list is sorted.
type Changelog struct {
	Additions    []string `json:"additions"`
	Changes      []string `json:"changes"`
	MinorChanges []string `json:"minor_changes"`
	Deprecations []string `json:"deprecations"`
	Revocations  []string `json:"revocations"`
	Unchanged    []string `json:"unchanged"`
}

// Compare classifies every technique and sub-technique of newer against
// older. Revocation and deprecation take priority over modified/version
// diffing. Ids present only in older are not classified; see Removed.
func Compare(older, newer *domain.Domain) *Changelog {
	c := &Changelog{
		Additions:    []string{},
		Changes:      []string{},
		MinorChanges: []string{},
		Deprecations: []string{},
		Revocations:  []string{},
		Unchanged:    []string{},
	}
	for _, tech := range newer.AllTechniques() {
		prev, ok := older.TechniqueByAttackID(tech.AttackID)
		if !ok {
			c.add(Additions, tech.AttackID)
			continue
		}
		c.add(classify(prev, tech), tech.AttackID)
	}
	for _, list := range []*[]string{&c.Additions, &c.Changes, &c.MinorChanges, &c.Deprecations, &c.Revocations, &c.Unchanged} {
		sort.Strings(*list)
	}
	return c
}

func classify(prev, next *domain.Technique) Bucket {
	switch {
	case next.Revoked && !prev.Revoked:
		return Revocations
	case next.Deprecated && !prev.Deprecated:
		return Deprecations
	case modifiedDiffers(&prev.Base, &next.Base):
		if versionDiffers(prev.Version, next.Version) {
			return Changes
		}
		return MinorChanges
	default:
		return Unchanged
	}
}

// Removed returns the ATT&CK ids present in older but absent from newer
func Removed(older, newer *domain.Domain) []string {
	removed := []string{}
	for _, tech := range older.AllTechniques() {
		if _, ok := newer.TechniqueByAttackID(tech.AttackID); !ok {
			removed = append(removed, tech.AttackID)
		}
	}
	sort.Strings(removed)
	return removed
}

func (c *Changelog) add(b Bucket, id string) {
	switch b {
	case Additions:
		c.Additions = append(c.Additions, id)
	case Changes:
		c.Changes = append(c.Changes, id)
	case MinorChanges:
		c.MinorChanges = append(c.MinorChanges, id)
	case Deprecations:
		c.Deprecations = append(c.Deprecations, id)
	case Revocations:
		c.Revocations = append(c.Revocations, id)
	case Unchanged:
		c.Unchanged = append(c.Unchanged, id)
	}
}

// BucketOf returns the bucket holding an ATT&CK id
func (c *Changelog) BucketOf(attackID string) (Bucket, bool) {
	for b, list := range c.buckets() {
		i := sort.SearchStrings(list, attackID)
		if i < len(list) && list[i] == attackID {
			return b, true
		}
	}
	return "", false
}

// Len returns the number of classified ids
func (c *Changelog) Len() int {
	n := 0
	for _, list := range c.buckets() {
		n += len(list)
	}
	return n
}

func (c *Changelog) buckets() map[Bucket][]string {
	return map[Bucket][]string{
		Additions:    c.Additions,
		Changes:      c.Changes,
		MinorChanges: c.MinorChanges,
		Deprecations: c.Deprecations,
		Revocations:  c.Revocations,
		Unchanged:    c.Unchanged,
	}
}

// modifiedDiffers compares timestamps as instants, falling back to the raw
// strings when either side does not parse
func modifiedDiffers(prev, next *domain.Base) bool {
	a, okA := prev.ModifiedTime()
	b, okB := next.ModifiedTime()
	if okA && okB {
		return !a.Equal(b)
	}
	return prev.Modified != next.Modified
}

// versionDiffers compares x_mitre_version values semantically ("1.0" equals
// "1"), falling back to the raw strings
func versionDiffers(prev, next string) bool {
	a, errA := semver.NewVersion(prev)
	b, errB := semver.NewVersion(next)
	if errA == nil && errB == nil {
		return !a.Equal(b)
	}
	return prev != next
}
