package layer

import (
	"math"
	"sort"

	"attacknav/internal/domain"
)

// FilterTechniques returns the techniques of a tactic column that pass the
// layer filters. Techniques pass when one of their platforms is selected;
// the PRE-ATT&CK matrix has no platform semantics and skips that check.
// With HideDisabled, disabled techniques without an enabled visible
// sub-technique are dropped.
func (l *Layer) FilterTechniques(d *domain.Domain, techniques []*domain.Technique, tactic *domain.Tactic, matrix *domain.Matrix) []*domain.Technique {
	out := make([]*domain.Technique, 0, len(techniques))
	for _, t := range techniques {
		if l.HideDisabled && !l.IsSubtechniqueEnabled(d, t, l.TechniqueVMFor(t, tactic), tactic) {
			continue
		}
		if matrix != nil && matrix.IsPreAttack() {
			out = append(out, t)
			continue
		}
		if l.Filter.MatchesPlatforms(t.Platforms) {
			out = append(out, t)
		}
	}
	return out
}

// IsSubtechniqueEnabled reports whether a technique should stay visible:
// it is enabled itself, or one of its sub-techniques is enabled and matches
// the platform filter
func (l *Layer) IsSubtechniqueEnabled(d *domain.Domain, t *domain.Technique, tvm *TechniqueVM, tactic *domain.Tactic) bool {
	if tvm.Enabled {
		return true
	}
	for _, sub := range d.SubtechniquesOf(t) {
		if l.TechniqueVMFor(sub, tactic).Enabled && l.Filter.MatchesPlatforms(sub.Platforms) {
			return true
		}
	}
	return false
}

// SortTechniques returns a sorted copy of the techniques according to the
// layer sort mode. Unscored techniques sort lowest; ties on score fall back
// to name ascending. With ShowAggregateScores the aggregate score is used
// where one exists.
func (l *Layer) SortTechniques(techniques []*domain.Technique, tactic *domain.Tactic) []*domain.Technique {
	sorted := append([]*domain.Technique{}, techniques...)
	score := func(t *domain.Technique) float64 {
		tvm := l.TechniqueVMFor(t, tactic)
		if l.Layout.ShowAggregateScores {
			if v, ok := tvm.NumericAggregateScore(); ok {
				return v
			}
		}
		if v, ok := tvm.NumericScore(); ok {
			return v
		}
		return math.Inf(-1)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		switch l.Sorting {
		case SortNameDescending:
			return a.Name > b.Name
		case SortScoreAscending, SortScoreDescending:
			sa, sb := score(a), score(b)
			if sa != sb {
				if l.Sorting == SortScoreAscending {
					return sa < sb
				}
				return sa > sb
			}
		}
		return a.Name < b.Name
	})
	return sorted
}
