// Package entity defines the data types exchanged with the entity resolution
// engine: the tagger and pattern-matcher inputs, the resolved entity record,
// and the per-document result.  Only plain data lives here so every layer
// (engine, application, transports, client code) can import it.
//
// All offsets are 0-based, half-open [Start, End) character offsets, counted
// in Unicode code points (runes) of Document.Text.
package entity

import "fmt"

// ─────────────────────────────────────────────────────────────────────────────
// Source
// ─────────────────────────────────────────────────────────────────────────────

// Source identifies which recognizer produced an entity.
type Source string

const (
	// SourceRuleBased marks entities from the deterministic pattern matcher.
	// They are trusted and never displaced by statistical candidates.
	SourceRuleBased Source = "rule-based"

	// SourceStatistical marks entities reconstructed from BIO tagger output.
	SourceStatistical Source = "statistical"
)

// ─────────────────────────────────────────────────────────────────────────────
// Labels
// ─────────────────────────────────────────────────────────────────────────────

// Canonical entity labels.
const (
	LabelPerson        = "PERSON"
	LabelOrganization  = "ORGANIZATION"
	LabelLocation      = "LOCATION"
	LabelMiscellaneous = "MISCELLANEOUS"
	LabelDecisionID    = "DECISION_ID"
	LabelIssueDate     = "ISSUE_DATE"
)

// ─────────────────────────────────────────────────────────────────────────────
// Inputs
// ─────────────────────────────────────────────────────────────────────────────

// TaggedToken is one element of the statistical tagger's output.  Tokens
// carry no offsets; the engine relocates them in the document text.
type TaggedToken struct {
	Text string `json:"text"`
	Tag  string `json:"tag"`
}

// PatternMatch is one span produced by the pattern matcher.
type PatternMatch struct {
	Label string `json:"label"`
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Document is one unit of work for the engine.
type Document struct {
	ID     string        `json:"id,omitempty"`
	Text   string        `json:"text"`
	Tokens []TaggedToken `json:"tokens"`

	// Patterns, when non-nil, replaces the engine's built-in pattern producer.
	// An empty list marshals as [] and a nil one as null, so the two stay
	// distinct across JSON hops.
	Patterns []PatternMatch `json:"patterns"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Outputs
// ─────────────────────────────────────────────────────────────────────────────

// Entity is a resolved entity record.
type Entity struct {
	Text   string `json:"text"`
	Label  string `json:"label"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
	Source Source `json:"source"`

	// SentenceIdx is the index of the sentence containing Start, -1 if none.
	SentenceIdx int `json:"sentence_idx"`

	// Normalized carries the canonical form for DECISION_ID and PERSON.
	Normalized string `json:"normalized,omitempty"`

	// DateISO carries the YYYY-MM-DD form of an ISSUE_DATE.
	DateISO string `json:"date_iso,omitempty"`
}

// Len returns the span length in characters.
func (e Entity) Len() int { return e.End - e.Start }

// Overlaps reports whether e and o share at least one character position.
func (e Entity) Overlaps(o Entity) bool {
	return !(e.End <= o.Start || o.End <= e.Start)
}

func (e Entity) String() string {
	return fmt.Sprintf("%s[%d:%d]%q(%s)", e.Label, e.Start, e.End, e.Text, e.Source)
}

// Stats counts what happened to candidates while resolving one document.
type Stats struct {
	TokensIn              int            `json:"tokens_in"`
	StatisticalFound      int            `json:"statistical_found"`
	StatisticalUnlocated  int            `json:"statistical_unlocated"`
	StatisticalFiltered   int            `json:"statistical_filtered"`
	StatisticalSplit      int            `json:"statistical_split"`
	StatisticalKept       int            `json:"statistical_kept"`
	StatisticalOverlapped int            `json:"statistical_overlapped"`
	RuleBased             int            `json:"rule_based"`
	MaterializerDropped   int            `json:"materializer_dropped"`
	Final                 int            `json:"final"`
	FilterReasons         map[string]int `json:"filter_reasons,omitempty"`
	Labels                map[string]int `json:"labels,omitempty"`
}

// Result is the engine output for one document.
type Result struct {
	DocumentID string   `json:"document_id"`
	Text       string   `json:"text,omitempty"`
	Entities   []Entity `json:"entities"`
	Sentences  int      `json:"sentences"`
	Stats      Stats    `json:"stats"`

	// TablesVersion identifies the gazetteer/denylist snapshot used.
	TablesVersion string `json:"tables_version,omitempty"`
}

//Personal.AI order the ending
