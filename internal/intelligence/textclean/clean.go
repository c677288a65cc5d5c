// Package textclean prepares raw document text (usually OCR or PDF output)
// for tagging.  Cleaning keeps letter case; it only repairs layout damage.
package textclean

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	invisibleReplacer = strings.NewReplacer(
		"\u00ad", "", // soft hyphen
		"\u200b", "", // zero-width space
		"\ufeff", "", // byte order mark
	)

	hyphenBreakRe   = regexp.MustCompile(`-\s*\r?\n\s*`)
	lineBreakRe     = regexp.MustCompile(`[\r\n]+`)
	blankRunRe      = regexp.MustCompile(`[ \t]+`)
	spaceBeforePunc = regexp.MustCompile(`\s+([,.;:])`)
)

// Options toggles individual cleaning steps.  The zero value disables the
// optional steps; DefaultOptions enables everything.
type Options struct {
	JoinHyphenatedBreaks bool `json:"join_hyphenated_breaks" yaml:"join_hyphenated_breaks" mapstructure:"join_hyphenated_breaks"`
	CollapseLineBreaks   bool `json:"collapse_line_breaks" yaml:"collapse_line_breaks" mapstructure:"collapse_line_breaks"`
	FixPunctuationSpace  bool `json:"fix_punctuation_space" yaml:"fix_punctuation_space" mapstructure:"fix_punctuation_space"`
}

// DefaultOptions returns options with every step enabled.
func DefaultOptions() Options {
	return Options{
		JoinHyphenatedBreaks: true,
		CollapseLineBreaks:   true,
		FixPunctuationSpace:  true,
	}
}

// Cleaner applies a fixed set of cleaning steps.
type Cleaner struct {
	opts Options
}

// New returns a Cleaner for opts.
func New(opts Options) *Cleaner {
	return &Cleaner{opts: opts}
}

// Clean runs the configured steps over text.  NFC normalisation, removal of
// invisible characters and blank collapsing always run.
func (c *Cleaner) Clean(text string) string {
	text = norm.NFC.String(text)
	text = invisibleReplacer.Replace(text)

	if c.opts.JoinHyphenatedBreaks {
		text = hyphenBreakRe.ReplaceAllString(text, "")
	}
	if c.opts.CollapseLineBreaks {
		text = lineBreakRe.ReplaceAllString(text, " ")
	}
	text = strings.TrimSpace(blankRunRe.ReplaceAllString(text, " "))

	if c.opts.FixPunctuationSpace {
		text = spaceBeforePunc.ReplaceAllString(text, "$1")
		text = spaceAfterPunctuation(text)
		text = strings.TrimSpace(blankRunRe.ReplaceAllString(text, " "))
	}
	return text
}

// Clean cleans text with DefaultOptions.
func Clean(text string) string {
	return New(DefaultOptions()).Clean(text)
}

// spaceAfterPunctuation inserts one space after , . ; : when the next
// character is not already whitespace.
func spaceAfterPunctuation(s string) string {
	rs := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + len(s)/16)
	for i, r := range rs {
		b.WriteRune(r)
		if !isSpacedPunct(r) {
			continue
		}
		if i+1 < len(rs) && !unicode.IsSpace(rs[i+1]) {
			b.WriteByte(' ')
		}
	}
	return b.String()
}

func isSpacedPunct(r rune) bool {
	return r == ',' || r == '.' || r == ';' || r == ':'
}
