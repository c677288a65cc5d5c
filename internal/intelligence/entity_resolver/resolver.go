package entity_resolver

import (
	"context"
	"sort"

	"github.com/turtacn/LegalDoc-Intelligence/pkg/types/entity"
)

// Priorities used by the two built-in recognizers.
const (
	PriorityRuleBased   = 100
	PriorityStatistical = 10
)

// Recognizer is any producer of entity candidates for a document.  Higher
// priority recognizers are trusted over lower ones when spans overlap.
type Recognizer interface {
	Name() string
	Priority() int
	Recognize(ctx context.Context, doc *entity.Document) ([]entity.Entity, error)
}

// SourceBatch is the output of one recognizer for one document.
type SourceBatch struct {
	Name     string
	Priority int
	Entities []entity.Entity
}

// MergeStats reports how many lower-priority candidates lost to overlaps.
type MergeStats struct {
	Accepted   int
	Overlapped int
}

// Merge combines candidate batches by descending priority.  The entities of
// the highest-priority batch are copied as is; every later entity is kept
// only when it overlaps nothing merged so far.  The result is stably sorted
// by Start.
func Merge(batches ...SourceBatch) ([]entity.Entity, MergeStats) {
	var stats MergeStats
	if len(batches) == 0 {
		return nil, stats
	}

	ordered := make([]SourceBatch, len(batches))
	copy(ordered, batches)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority > ordered[j].Priority })

	total := 0
	for _, b := range ordered {
		total += len(b.Entities)
	}
	merged := make([]entity.Entity, 0, total)
	merged = append(merged, ordered[0].Entities...)
	stats.Accepted = len(ordered[0].Entities)

	for _, b := range ordered[1:] {
		for _, cand := range b.Entities {
			if overlapsAny(cand, merged) {
				stats.Overlapped++
				continue
			}
			merged = append(merged, cand)
			stats.Accepted++
		}
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Start < merged[j].Start })
	return merged, stats
}

// ResolveRuleFirst merges rule-based and statistical candidates with the
// rule-based ones trusted.
func ResolveRuleFirst(rule, stat []entity.Entity) ([]entity.Entity, MergeStats) {
	return Merge(
		SourceBatch{Name: string(entity.SourceRuleBased), Priority: PriorityRuleBased, Entities: rule},
		SourceBatch{Name: string(entity.SourceStatistical), Priority: PriorityStatistical, Entities: stat},
	)
}

func overlaps(a, b entity.Entity) bool {
	return !(a.End <= b.Start || b.End <= a.Start)
}

func overlapsAny(cand entity.Entity, merged []entity.Entity) bool {
	for _, m := range merged {
		if overlaps(cand, m) {
			return true
		}
	}
	return false
}

// patternEntities converts pattern matches into trusted rule-based entities.
func patternEntities(matches []entity.PatternMatch) []entity.Entity {
	out := make([]entity.Entity, 0, len(matches))
	for _, m := range matches {
		out = append(out, entity.Entity{
			Text:        m.Text,
			Label:       m.Label,
			Start:       m.Start,
			End:         m.End,
			Source:      entity.SourceRuleBased,
			SentenceIdx: -1,
		})
	}
	return out
}

//Personal.AI order the ending
