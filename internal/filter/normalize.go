package filter

import (
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalized is the obfuscation-resistant form of one line of text plus the
// index bookkeeping needed to map matches back to original byte offsets.
type Normalized struct {
	Runes []rune

	// origStart[i] / origEnd[i] are the original byte offsets covered by
	// normalized rune i. A rune dropped by repeat-collapsing extends the
	// end of the rune it duplicated, so matches censor the whole run.
	origStart []int
	origEnd   []int
}

func isNormAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}

// normalize produces the canonical scan form of s:
//
//  1. NFD-decompose and drop combining marks (diacritics).
//  2. Map each rune through the confusable table and lowercase it.
//  3. Keep [a-z0-9]; fold whitespace runs to a single space; drop the rest.
//  4. Collapse 3+ repeats of the same rune to 2.
func normalize(table map[rune]rune, s string) *Normalized {
	n := &Normalized{
		Runes:     make([]rune, 0, len(s)),
		origStart: make([]int, 0, len(s)),
		origEnd:   make([]int, 0, len(s)),
	}

	emit := func(r rune, start, end int) {
		ln := len(n.Runes)
		if r == ' ' {
			// Fold whitespace runs.
			if ln > 0 && n.Runes[ln-1] == ' ' {
				return
			}
		} else if ln >= 2 && n.Runes[ln-1] == r && n.Runes[ln-2] == r {
			// Third repeat in a row: collapse, but keep the censoring
			// range covering the padding characters.
			n.origEnd[ln-1] = end
			return
		}
		n.Runes = append(n.Runes, r)
		n.origStart = append(n.origStart, start)
		n.origEnd = append(n.origEnd, end)
	}

	for byteOff, orig := range s {
		end := byteOff + len(string(orig))
		for _, r := range norm.NFD.String(string(orig)) {
			if unicode.Is(unicode.Mn, r) {
				continue
			}
			r = lookupConfusable(table, r)
			r = unicode.ToLower(r)
			switch {
			case isNormAlnum(r):
				emit(r, byteOff, end)
			case unicode.IsSpace(r):
				emit(' ', byteOff, end)
			default:
				// Dropped entirely; evasion punctuation vanishes.
			}
		}
	}

	return n
}

// OriginalRange maps a normalized rune span [start, end) back to original
// byte offsets.
func (n *Normalized) OriginalRange(start, end int) (int, int) {
	if start < 0 || end <= start || end > len(n.Runes) {
		return 0, 0
	}
	return n.origStart[start], n.origEnd[end-1]
}

// FindOriginalIndex returns the original byte offset backing normalized rune
// position pos. pos == len(runes) resolves to the end of the last rune.
func (n *Normalized) FindOriginalIndex(pos int) int {
	if len(n.Runes) == 0 || pos < 0 {
		return 0
	}
	if pos >= len(n.Runes) {
		return n.origEnd[len(n.Runes)-1]
	}
	return n.origStart[pos]
}

// String returns the normalized text.
func (n *Normalized) String() string {
	return string(n.Runes)
}
