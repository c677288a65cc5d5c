package entity_resolver

import (
	"sort"

	"github.com/turtacn/LegalDoc-Intelligence/pkg/types/entity"
)

// Materialize aligns merged entities to token boundaries of view.  Each span
// grows to the union of the tokens it touches; a span touching no token is
// dropped.  Alignment can make neighbours overlap again, so the aligned list
// is re-scanned by start and an entity is kept only when it begins at or
// after the end of the last kept one.  On equal starts a rule-based entity
// goes first.  The second return value counts the dropped entities.
func Materialize(view *DocView, merged []entity.Entity) ([]entity.Entity, int) {
	if len(merged) == 0 {
		return nil, 0
	}

	aligned := make([]entity.Entity, 0, len(merged))
	for _, e := range merged {
		start, end, ok := view.expand(e.Start, e.End)
		if !ok {
			continue
		}
		e.Start, e.End = start, end
		e.Text = string(view.Text[start:end])
		aligned = append(aligned, e)
	}
	sort.SliceStable(aligned, func(i, j int) bool {
		if aligned[i].Start != aligned[j].Start {
			return aligned[i].Start < aligned[j].Start
		}
		return aligned[i].Source == entity.SourceRuleBased && aligned[j].Source != entity.SourceRuleBased
	})

	out := make([]entity.Entity, 0, len(aligned))
	lastEnd := -1
	for _, e := range aligned {
		if e.Start < lastEnd {
			continue
		}
		e.SentenceIdx = view.SentenceIndex(e.Start)
		out = append(out, e)
		lastEnd = e.End
	}
	return out, len(merged) - len(out)
}

// expand returns the union of tokens overlapping [start, end).
func (v *DocView) expand(start, end int) (int, int, bool) {
	i := v.firstTokenEndingAfter(start)
	if i >= len(v.Tokens) || v.Tokens[i].Start >= end {
		return 0, 0, false
	}
	first := v.Tokens[i]
	last := first
	for j := i + 1; j < len(v.Tokens) && v.Tokens[j].Start < end; j++ {
		last = v.Tokens[j]
	}
	return first.Start, last.End, true
}
