package entity_resolver

// spanLocator recovers character offsets for token chunks that carry none.
// It keeps a monotonically advancing cursor into the text; the cursor only
// moves backward through the fallback search from offset 0.
//
// The approach is approximate when words repeat or were altered by upstream
// normalisation.  A tagger that emits offsets natively would make it
// unnecessary.
type spanLocator struct {
	text []rune
	pos  int
}

func newSpanLocator(text []rune) *spanLocator {
	return &spanLocator{text: text}
}

// locate finds the span covering words.  The first word is searched at or
// after the cursor, then from 0; when both fail the chunk is unlocatable and
// the cursor is left untouched.  Each following word must occur at or after
// the end of the previous one; the first miss ends the span early.  On
// success the cursor moves to the span end.
func (l *spanLocator) locate(words []string) (start, end int, ok bool) {
	if len(words) == 0 {
		return 0, 0, false
	}

	first := []rune(words[0])
	start = indexRunes(l.text, first, l.pos)
	if start < 0 {
		start = indexRunes(l.text, first, 0)
		if start < 0 {
			return 0, 0, false
		}
	}
	end = start + len(first)

	for _, w := range words[1:] {
		r := []rune(w)
		at := indexRunes(l.text, r, end)
		if at < 0 {
			break
		}
		end = at + len(r)
	}

	if end <= start {
		return 0, 0, false
	}
	l.pos = end
	return start, end, true
}

// indexRunes returns the index of the first occurrence of needle in hay at or
// after from, or -1.  An empty needle matches at from.
func indexRunes(hay, needle []rune, from int) int {
	if from < 0 {
		from = 0
	}
	n := len(needle)
	if n == 0 {
		if from <= len(hay) {
			return from
		}
		return -1
	}
	last := len(hay) - n
outer:
	for i := from; i <= last; i++ {
		if hay[i] != needle[0] {
			continue
		}
		for j := 1; j < n; j++ {
			if hay[i+j] != needle[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}

//Personal.AI order the ending
