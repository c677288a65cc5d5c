package entity_resolver

import (
	"sort"
	"unicode"
)

// TokenSpan is one token of the document view, with rune offsets.
type TokenSpan struct {
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Sentence is a half-open rune range of the document.
type Sentence struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// DocView is the token-aligned view of a document used by the pattern
// producer and the span materializer.
type DocView struct {
	Text      []rune
	Tokens    []TokenSpan
	Sentences []Sentence
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}

// Tokenize splits text into word tokens (runs of letters, digits and
// combining marks) and single-rune punctuation tokens.  Whitespace is never
// part of a token.
func Tokenize(text []rune) []TokenSpan {
	tokens := make([]TokenSpan, 0, len(text)/4+1)
	i := 0
	for i < len(text) {
		r := text[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case isWordRune(r):
			j := i + 1
			for j < len(text) && isWordRune(text[j]) {
				j++
			}
			tokens = append(tokens, TokenSpan{Text: string(text[i:j]), Start: i, End: j})
			i = j
		default:
			tokens = append(tokens, TokenSpan{Text: string(r), Start: i, End: i + 1})
			i++
		}
	}
	return tokens
}

func isSentenceTerminal(tok string) bool {
	switch tok {
	case ".", "!", "?", ";", "…":
		return true
	}
	return false
}

// SplitSentences groups tokens into sentences.  A sentence ends after one of
// . ! ? ; … when it is followed by whitespace (or ends the text) and does not
// close a known abbreviation, and at every line break.
func SplitSentences(text []rune, tokens []TokenSpan, tables *Tables) []Sentence {
	if len(tokens) == 0 {
		return nil
	}
	var sentences []Sentence
	start := tokens[0].Start
	for i, tok := range tokens {
		boundary := false
		if isSentenceTerminal(tok.Text) {
			followedBySpace := tok.End == len(text) || unicode.IsSpace(text[tok.End])
			abbrev := i > 0 && tokens[i-1].End == tok.Start && tables != nil && tables.IsAbbreviation(tokens[i-1].Text)
			boundary = followedBySpace && !abbrev
		}
		if !boundary && i+1 < len(tokens) && hasLineBreak(text[tok.End:tokens[i+1].Start]) {
			boundary = true
		}
		if boundary || i == len(tokens)-1 {
			sentences = append(sentences, Sentence{Start: start, End: tok.End})
			if i+1 < len(tokens) {
				start = tokens[i+1].Start
			}
		}
	}
	return sentences
}

func hasLineBreak(gap []rune) bool {
	for _, r := range gap {
		if r == '\n' || r == '\r' {
			return true
		}
	}
	return false
}

// NewDocView tokenises text and splits it into sentences.
func NewDocView(text []rune, tables *Tables) *DocView {
	tokens := Tokenize(text)
	return &DocView{
		Text:      text,
		Tokens:    tokens,
		Sentences: SplitSentences(text, tokens, tables),
	}
}

// SentenceIndex returns the index of the sentence containing offset, or -1.
func (v *DocView) SentenceIndex(offset int) int {
	i := sort.Search(len(v.Sentences), func(i int) bool { return v.Sentences[i].End > offset })
	if i < len(v.Sentences) && v.Sentences[i].Start <= offset {
		return i
	}
	return -1
}

// firstTokenEndingAfter returns the index of the first token whose End is
// greater than offset.
func (v *DocView) firstTokenEndingAfter(offset int) int {
	return sort.Search(len(v.Tokens), func(i int) bool { return v.Tokens[i].End > offset })
}
