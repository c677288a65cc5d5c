package entity_resolver

import (
	"strings"

	"github.com/turtacn/LegalDoc-Intelligence/pkg/types/entity"
)

// ---------------------------------------------------------------------------
// BIO tags
// ---------------------------------------------------------------------------

// tagKind is the prefix class of a BIO tag.
type tagKind uint8

const (
	tagOutside tagKind = iota
	tagBegin
	tagInside
)

// parseTag splits a BIO tag into its kind and label.  Anything that is not a
// well-formed B-<L> or I-<L> tag (including "O") is treated as outside.
func parseTag(tag string) (tagKind, string) {
	tag = strings.TrimSpace(tag)
	if len(tag) < 3 || tag[1] != '-' {
		return tagOutside, ""
	}
	label := tag[2:]
	switch tag[0] {
	case 'B', 'b':
		return tagBegin, label
	case 'I', 'i':
		return tagInside, label
	default:
		return tagOutside, ""
	}
}

// ---------------------------------------------------------------------------
// Chunking state machine
// ---------------------------------------------------------------------------

// bioState is either Idle (accumulating == false) or Accumulating(label)
// with the words collected so far.
type bioState struct {
	accumulating bool
	label        string
	words        []string
}

// bioChunk is a completed run of tokens sharing one entity label.
type bioChunk struct {
	label string
	words []string
}

var idle = bioState{}

func accumulate(label, word string) bioState {
	return bioState{accumulating: true, label: label, words: []string{word}}
}

// flush returns the chunk held by s, or nil when s is Idle.
func (s bioState) flush() *bioChunk {
	if !s.accumulating || len(s.words) == 0 {
		return nil
	}
	return &bioChunk{label: s.label, words: s.words}
}

// transition is the pure transition function of the chunker.  It returns the
// next state and the chunk completed by this token, if any.
//
//	B-L            : flush, Accumulating(L)
//	I-L, same L    : append
//	I-L, other L'  : flush, Accumulating(L)
//	I-L, Idle      : Accumulating(L)   (orphan continuation is kept)
//	O / malformed  : flush, Idle
func transition(s bioState, tok entity.TaggedToken) (bioState, *bioChunk) {
	kind, label := parseTag(tok.Tag)
	switch kind {
	case tagBegin:
		return accumulate(label, tok.Text), s.flush()
	case tagInside:
		if s.accumulating && s.label == label {
			words := make([]string, len(s.words), len(s.words)+1)
			copy(words, s.words)
			return bioState{accumulating: true, label: label, words: append(words, tok.Text)}, nil
		}
		return accumulate(label, tok.Text), s.flush()
	default:
		return idle, s.flush()
	}
}

// chunkTokens runs the state machine over tokens and returns the chunks in
// discovery order, including the one pending at end of input.
func chunkTokens(tokens []entity.TaggedToken) []bioChunk {
	var (
		chunks []bioChunk
		state  = idle
		done   *bioChunk
	)
	for _, tok := range tokens {
		state, done = transition(state, tok)
		if done != nil {
			chunks = append(chunks, *done)
		}
	}
	if last := state.flush(); last != nil {
		chunks = append(chunks, *last)
	}
	return chunks
}

// ---------------------------------------------------------------------------
// Reconstruction
// ---------------------------------------------------------------------------

// ReconstructStats reports how many chunks were located or lost.
type ReconstructStats struct {
	Chunks    int
	Located   int
	Unlocated int
}

// ReconstructSpans converts tagger output into Statistical candidates with
// character offsets into text.  Chunks that cannot be located are dropped.
func ReconstructSpans(text []rune, tokens []entity.TaggedToken, tables *Tables) ([]entity.Entity, ReconstructStats) {
	chunks := chunkTokens(tokens)
	stats := ReconstructStats{Chunks: len(chunks)}
	if len(chunks) == 0 || len(text) == 0 {
		stats.Unlocated = len(chunks)
		return nil, stats
	}

	loc := newSpanLocator(text)
	out := make([]entity.Entity, 0, len(chunks))
	for _, c := range chunks {
		start, end, ok := loc.locate(c.words)
		if !ok {
			stats.Unlocated++
			continue
		}
		label := c.label
		if tables != nil {
			label = tables.CanonicalLabel(label)
		}
		out = append(out, entity.Entity{
			Text:        string(text[start:end]),
			Label:       label,
			Start:       start,
			End:         end,
			Source:      entity.SourceStatistical,
			SentenceIdx: -1,
		})
		stats.Located++
	}
	return out, stats
}
