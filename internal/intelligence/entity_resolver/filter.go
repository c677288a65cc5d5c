package entity_resolver

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/turtacn/LegalDoc-Intelligence/pkg/types/entity"
)

// ---------------------------------------------------------------------------
// Filter reasons
// ---------------------------------------------------------------------------

// FilterReason names the rule that decided a candidate's fate.
type FilterReason string

const (
	ReasonKept             FilterReason = "kept"
	ReasonGazetteerSplit   FilterReason = "gazetteer_split"
	ReasonGazetteerExact   FilterReason = "gazetteer_exact"
	ReasonEmpty            FilterReason = "empty"
	ReasonNewline          FilterReason = "newline"
	ReasonDenylist         FilterReason = "denylist"
	ReasonDenylistPrefix   FilterReason = "denylist_prefix"
	ReasonLegalCode        FilterReason = "legal_code"
	ReasonTooShort         FilterReason = "too_short"
	ReasonShortLocation    FilterReason = "short_location"
	ReasonShortPersonOrOrg FilterReason = "short_person_or_org"
	ReasonDanglingTitle    FilterReason = "dangling_title"
)

// FilterDecision records the outcome for one candidate.
type FilterDecision struct {
	Candidate entity.Entity  `json:"candidate"`
	Reason    FilterReason   `json:"reason"`
	Kept      bool           `json:"kept"`
	Emitted   *entity.Entity `json:"emitted,omitempty"`
}

const (
	minCandidateRunes   = 3
	shortCandidateRunes = 6
)

// ---------------------------------------------------------------------------
// NoiseFilter
// ---------------------------------------------------------------------------

// NoiseFilter prunes or rewrites Statistical candidates using the reference
// tables.  It is a pure function of its inputs.
type NoiseFilter struct {
	tables *Tables
}

// NewNoiseFilter returns a filter bound to a tables snapshot.
func NewNoiseFilter(tables *Tables) *NoiseFilter {
	return &NoiseFilter{tables: tables}
}

// Apply filters cands in order.  text is the document the candidates index
// into.  A gazetteer split replaces its candidate in place, so the output
// keeps discovery order.
func (f *NoiseFilter) Apply(text []rune, cands []entity.Entity) ([]entity.Entity, []FilterDecision) {
	out := make([]entity.Entity, 0, len(cands))
	decisions := make([]FilterDecision, 0, len(cands))
	for _, c := range cands {
		d := f.Decide(text, c)
		decisions = append(decisions, d)
		switch {
		case d.Emitted != nil:
			out = append(out, *d.Emitted)
		case d.Kept:
			out = append(out, c)
		}
	}
	return out, decisions
}

// Decide applies the rules to a single candidate; the first matching rule is
// terminal.
func (f *NoiseFilter) Decide(text []rune, c entity.Entity) FilterDecision {
	d := FilterDecision{Candidate: c}
	t := f.tables

	lowerRaw := lowerRunes([]rune(c.Text))
	clean := strings.TrimSpace(string(lowerRaw))
	if clean == "" {
		d.Reason = ReasonEmpty
		return d
	}

	// 1. a known place inside a longer candidate is split out as LOCATION
	if place, idx, ok := t.ContainedPlace(lowerRaw); ok && idx >= 0 {
		start := c.Start + idx
		end := start + len(place)
		if start >= 0 && end <= len(text) {
			d.Reason = ReasonGazetteerSplit
			d.Emitted = &entity.Entity{
				Text:        string(text[start:end]),
				Label:       entity.LabelLocation,
				Start:       start,
				End:         end,
				Source:      entity.SourceStatistical,
				SentenceIdx: -1,
			}
			return d
		}
	}

	// 2. exact place names are kept as LOCATION whatever the tagger said
	if t.IsGazetteer(clean) {
		c.Label = entity.LabelLocation
		d.Candidate = c
		d.Reason = ReasonGazetteerExact
		d.Kept = true
		return d
	}

	if strings.ContainsAny(c.Text, "\n\r") {
		d.Reason = ReasonNewline
		return d
	}
	if t.IsDenied(clean) {
		d.Reason = ReasonDenylist
		return d
	}
	if fields := strings.Fields(clean); len(fields) > 0 && t.IsDenied(fields[0]) {
		d.Reason = ReasonDenylistPrefix
		return d
	}
	if t.HasLegalCodeMarker(clean) || isNumericCode(clean) {
		d.Reason = ReasonLegalCode
		return d
	}

	n := utf8.RuneCountInString(clean)
	if n < minCandidateRunes {
		d.Reason = ReasonTooShort
		return d
	}
	if n <= shortCandidateRunes && c.Label == entity.LabelLocation && !t.IsDenied(clean) {
		d.Reason = ReasonShortLocation
		d.Kept = true
		return d
	}
	if n < shortCandidateRunes && (c.Label == entity.LabelPerson || c.Label == entity.LabelOrganization) {
		d.Reason = ReasonShortPersonOrOrg
		return d
	}
	if t.EndsWithTitle(clean) {
		d.Reason = ReasonDanglingTitle
		return d
	}

	d.Reason = ReasonKept
	d.Kept = true
	return d
}

// isNumericCode reports whether s is made only of digits once '/', '-' and
// spaces are removed (and at least one digit remains).
func isNumericCode(s string) bool {
	digits := 0
	for _, r := range s {
		switch {
		case r == '/' || r == '-' || r == ' ':
		case unicode.IsDigit(r):
			digits++
		default:
			return false
		}
	}
	return digits > 0
}

// lowerRunes lower-cases rune by rune so indices stay aligned with the input.
func lowerRunes(rs []rune) []rune {
	out := make([]rune, len(rs))
	for i, r := range rs {
		out[i] = unicode.ToLower(r)
	}
	return out
}

//Personal.AI order the ending
