package entity_resolver

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/turtacn/LegalDoc-Intelligence/pkg/errors"
	"github.com/turtacn/LegalDoc-Intelligence/pkg/types/entity"
)

// ---------------------------------------------------------------------------
// Pattern definitions (tables file shape)
// ---------------------------------------------------------------------------

// TokenPredicateSpec describes one token slot of a pattern.  Exactly one of
// Text, Lower or Regex must be set.
type TokenPredicateSpec struct {
	Text     string `yaml:"text,omitempty" json:"text,omitempty"`
	Lower    string `yaml:"lower,omitempty" json:"lower,omitempty"`
	Regex    string `yaml:"regex,omitempty" json:"regex,omitempty"`
	Optional bool   `yaml:"optional,omitempty" json:"optional,omitempty"`
}

// PatternSpec is a labelled sequence of token predicates.
type PatternSpec struct {
	Label  string               `yaml:"label" json:"label"`
	Tokens []TokenPredicateSpec `yaml:"tokens" json:"tokens"`
}

// ---------------------------------------------------------------------------
// Compiled predicates
// ---------------------------------------------------------------------------

type predicateKind uint8

const (
	predText predicateKind = iota
	predLower
	predRegex
)

type tokenPredicate struct {
	kind     predicateKind
	value    string
	re       *regexp.Regexp
	optional bool
}

func (p tokenPredicate) matches(tok string) bool {
	switch p.kind {
	case predText:
		return tok == p.value
	case predLower:
		return strings.ToLower(tok) == p.value
	default:
		return p.re.MatchString(tok)
	}
}

type compiledPattern struct {
	label string
	preds []tokenPredicate
}

func compilePredicate(label string, i int, s TokenPredicateSpec) (tokenPredicate, error) {
	set := 0
	for _, v := range []string{s.Text, s.Lower, s.Regex} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return tokenPredicate{}, errors.New(errors.ErrCodePatternCompile, "token predicate must set exactly one of text, lower, regex").
			WithDetail(fmt.Sprintf("label=%s token=%d", label, i))
	}
	p := tokenPredicate{optional: s.Optional}
	switch {
	case s.Text != "":
		p.kind, p.value = predText, s.Text
	case s.Lower != "":
		p.kind, p.value = predLower, strings.ToLower(s.Lower)
	default:
		re, err := regexp.Compile(s.Regex)
		if err != nil {
			return tokenPredicate{}, errors.Wrap(err, errors.ErrCodePatternCompile, "invalid token regex").
				WithDetail(fmt.Sprintf("label=%s token=%d regex=%q", label, i, s.Regex))
		}
		p.kind, p.re = predRegex, re
	}
	return p, nil
}

// ---------------------------------------------------------------------------
// PatternProducer
// ---------------------------------------------------------------------------

// PatternProducer matches token patterns against a document's token view and
// emits rule-based spans.  It is immutable after construction.
type PatternProducer struct {
	patterns []compiledPattern
}

// NewPatternProducer compiles specs.  A pattern without a label, without
// tokens, or made only of optional tokens is rejected.
func NewPatternProducer(specs []PatternSpec) (*PatternProducer, error) {
	pp := &PatternProducer{patterns: make([]compiledPattern, 0, len(specs))}
	for _, s := range specs {
		label := strings.ToUpper(strings.TrimSpace(s.Label))
		if label == "" {
			return nil, errors.New(errors.ErrCodePatternCompile, "pattern label is required")
		}
		if len(s.Tokens) == 0 {
			return nil, errors.New(errors.ErrCodePatternCompile, "pattern has no tokens").WithDetail(label)
		}
		cp := compiledPattern{label: label, preds: make([]tokenPredicate, 0, len(s.Tokens))}
		required := 0
		for i, ts := range s.Tokens {
			p, err := compilePredicate(label, i, ts)
			if err != nil {
				return nil, err
			}
			if !p.optional {
				required++
			}
			cp.preds = append(cp.preds, p)
		}
		if required == 0 {
			return nil, errors.New(errors.ErrCodePatternCompile, "pattern needs at least one required token").WithDetail(label)
		}
		pp.patterns = append(pp.patterns, cp)
	}
	return pp, nil
}

// Len returns the number of compiled patterns.
func (pp *PatternProducer) Len() int {
	if pp == nil {
		return 0
	}
	return len(pp.patterns)
}

type tokenMatch struct {
	pattern    int
	start, end int // token indices, half-open
}

// Match runs every pattern at every token position and returns the surviving
// spans ordered by start.  Overlapping matches are reduced greedily: longer
// spans first, then earlier ones.
func (pp *PatternProducer) Match(view *DocView) []entity.PatternMatch {
	if pp.Len() == 0 || view == nil || len(view.Tokens) == 0 {
		return nil
	}

	var found []tokenMatch
	for pi, p := range pp.patterns {
		for start := range view.Tokens {
			ends := map[int]struct{}{}
			matchFrom(p.preds, 0, view.Tokens, start, ends)
			for end := range ends {
				if end > start {
					found = append(found, tokenMatch{pattern: pi, start: start, end: end})
				}
			}
		}
	}
	if len(found) == 0 {
		return nil
	}

	sort.SliceStable(found, func(i, j int) bool {
		li, lj := found[i].end-found[i].start, found[j].end-found[j].start
		if li != lj {
			return li > lj
		}
		if found[i].start != found[j].start {
			return found[i].start < found[j].start
		}
		return found[i].pattern < found[j].pattern
	})

	taken := make([]bool, len(view.Tokens))
	kept := make([]tokenMatch, 0, len(found))
next:
	for _, m := range found {
		for t := m.start; t < m.end; t++ {
			if taken[t] {
				continue next
			}
		}
		for t := m.start; t < m.end; t++ {
			taken[t] = true
		}
		kept = append(kept, m)
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].start < kept[j].start })

	out := make([]entity.PatternMatch, 0, len(kept))
	for _, m := range kept {
		s, e := view.Tokens[m.start].Start, view.Tokens[m.end-1].End
		out = append(out, entity.PatternMatch{
			Label: pp.patterns[m.pattern].label,
			Text:  string(view.Text[s:e]),
			Start: s,
			End:   e,
		})
	}
	return out
}

// matchFrom explores every way preds[pi:] can match tokens from ti and
// records the token index reached after the last predicate.
func matchFrom(preds []tokenPredicate, pi int, tokens []TokenSpan, ti int, ends map[int]struct{}) {
	if pi == len(preds) {
		ends[ti] = struct{}{}
		return
	}
	p := preds[pi]
	if p.optional {
		matchFrom(preds, pi+1, tokens, ti, ends)
	}
	if ti < len(tokens) && p.matches(tokens[ti].Text) {
		matchFrom(preds, pi+1, tokens, ti+1, ends)
	}
}
