package layer

import (
	"attacknav/internal/domain"
)

// CalculateAggregateScore rolls the scores of a technique and its direct
// sub-techniques under one tactic into a single value using the layout
// aggregate function. The result and its gradient color are stored on the
// technique's own state. With no scored values the aggregate is cleared
// and 0 returned.
func (l *Layer) CalculateAggregateScore(d *domain.Domain, t *domain.Technique, tactic *domain.Tactic) float64 {
	tvm := l.TechniqueVMFor(t, tactic)
	subs := d.SubtechniquesOf(t)

	var scores []float64
	if v, ok := tvm.NumericScore(); ok {
		scores = append(scores, v)
	}
	for _, sub := range subs {
		if subTVM, ok := l.Lookup(sub.TechniqueTacticID(tactic.Shortname)); ok {
			if v, ok := subTVM.NumericScore(); ok {
				scores = append(scores, v)
			}
		}
	}

	if len(scores) == 0 {
		tvm.AggregateScore = ""
		tvm.AggregateScoreColor = ""
		return 0
	}

	var result float64
	switch l.Layout.AggregateFunction() {
	case AggregateMin:
		result = scores[0]
		for _, s := range scores[1:] {
			result = min(result, s)
		}
	case AggregateMax:
		result = scores[0]
		for _, s := range scores[1:] {
			result = max(result, s)
		}
	case AggregateSum:
		result = sum(scores)
	default:
		denominator := float64(len(scores))
		if l.Layout.CountUnscored {
			denominator = float64(len(subs) + 1)
		}
		result = sum(scores) / denominator
	}

	tvm.AggregateScore = FormatScore(result)
	tvm.AggregateScoreColor = l.Gradient.ColorFor(result)
	return result
}

// UpdateAggregateScores recomputes the aggregate of every technique with
// sub-techniques under each of its tactics
func (l *Layer) UpdateAggregateScores(d *domain.Domain) {
	for _, t := range d.Techniques {
		if len(d.Relationships.SubtechniquesOf[t.StixID]) == 0 {
			continue
		}
		for _, m := range t.Tactics {
			tactic, ok := d.TacticByShortname(m.Shortname)
			if !ok {
				tactic = &domain.Tactic{Shortname: m.Shortname}
			}
			l.CalculateAggregateScore(d, t, tactic)
		}
	}
}

func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}
