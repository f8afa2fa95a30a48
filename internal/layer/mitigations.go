package layer

import (
	"sort"

	"attacknav/internal/domain"
)

// ScoredMitigation summarizes how much of a layer's scored surface a
// mitigation covers
type ScoredMitigation struct {
	Mitigation *domain.Mitigation `json:"mitigation"`
	Count      int                `json:"count"`
	Score      float64            `json:"score"`
}

// ScoreMitigations counts, per mitigation, the scored technique states of
// the layer it mitigates and sums their scores. Mitigations covering no
// scored state are omitted. Results are ordered by score, then count, then
// ATT&CK id.
func (l *Layer) ScoreMitigations(d *domain.Domain) []ScoredMitigation {
	var out []ScoredMitigation
	for _, m := range d.Mitigations {
		sm := ScoredMitigation{Mitigation: m}
		for _, stixID := range d.Mitigated(m.StixID) {
			t, ok := d.TechniqueByStixID(stixID)
			if !ok {
				continue
			}
			for _, id := range t.TechniqueTacticIDs() {
				tvm, ok := l.Lookup(id)
				if !ok {
					continue
				}
				if v, ok := tvm.NumericScore(); ok {
					sm.Count++
					sm.Score += v
				}
			}
		}
		if sm.Count > 0 {
			out = append(out, sm)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Mitigation.AttackID < out[j].Mitigation.AttackID
	})
	return out
}
