package domain

import "strings"

// UnionSeparator joins an ATT&CK id and a tactic shortname into a
// technique-tactic union id
const UnionSeparator = "^"

// TacticMembership places a technique under one tactic column
type TacticMembership struct {
	Shortname string `json:"shortname"`
	Order     int    `json:"order"`
}

// Technique is an ATT&CK technique or sub-technique
type Technique struct {
	Base
	Platforms      []string           `json:"platforms,omitempty"`
	Tactics        []TacticMembership `json:"tactics"`
	IsSubtechnique bool               `json:"is_subtechnique,omitempty"`
}

// UnionID builds the technique-tactic union id for an ATT&CK id and tactic
func UnionID(attackID, tacticShortname string) string {
	return attackID + UnionSeparator + tacticShortname
}

// SplitUnionID splits a union id into its ATT&CK id and tactic shortname
func SplitUnionID(id string) (attackID, tactic string, ok bool) {
	attackID, tactic, ok = strings.Cut(id, UnionSeparator)
	if !ok || attackID == "" || tactic == "" {
		return "", "", false
	}
	return attackID, tactic, true
}

// TechniqueTacticID returns the union id of this technique under the tactic
func (t *Technique) TechniqueTacticID(tacticShortname string) string {
	return UnionID(t.AttackID, tacticShortname)
}

// TechniqueTacticIDs returns one union id per tactic membership
func (t *Technique) TechniqueTacticIDs() []string {
	ids := make([]string, 0, len(t.Tactics))
	for _, m := range t.Tactics {
		ids = append(ids, t.TechniqueTacticID(m.Shortname))
	}
	return ids
}

// InTactic reports whether the technique belongs to the tactic
func (t *Technique) InTactic(tacticShortname string) bool {
	for _, m := range t.Tactics {
		if m.Shortname == tacticShortname {
			return true
		}
	}
	return false
}

// TacticShortnames returns the shortnames of all memberships in order
func (t *Technique) TacticShortnames() []string {
	names := make([]string, 0, len(t.Tactics))
	for _, m := range t.Tactics {
		names = append(names, m.Shortname)
	}
	return names
}

// PrimaryTactic returns the membership with the lowest tactic order
func (t *Technique) PrimaryTactic() (TacticMembership, bool) {
	if len(t.Tactics) == 0 {
		return TacticMembership{}, false
	}
	best := t.Tactics[0]
	for _, m := range t.Tactics[1:] {
		if m.Order < best.Order {
			best = m
		}
	}
	return best, true
}

// HasPlatform reports whether the technique lists the platform
func (t *Technique) HasPlatform(platform string) bool {
	for _, p := range t.Platforms {
		if p == platform {
			return true
		}
	}
	return false
}

// ParentAttackID derives the parent ATT&CK id of a sub-technique
// from its dotted id (T1566.001 -> T1566)
func (t *Technique) ParentAttackID() string {
	if !t.IsSubtechnique {
		return ""
	}
	parent, _, found := strings.Cut(t.AttackID, ".")
	if !found {
		return ""
	}
	return parent
}
