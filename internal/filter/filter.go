// Package filter implements the obfuscation-resistant word filter: a
// two-phase per-line scan over normalized text, backed by static term tries
// and a bounded result cache. All structures are read-only after New, so one
// Filter is safely shared across concurrent drains.
package filter

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"
)

// Range is a half-open byte range [Start, End) into the original text.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Result is the outcome of scanning one text.
type Result struct {
	HasOffensiveWord bool    `json:"has_offensive_word"`
	Ranges           []Range `json:"ranges,omitempty"`
}

// Filter checks text against the offensive and whitelist tries.
type Filter struct {
	offensive   *Trie
	whitelist   *Trie
	confusables map[rune]rune
	cache       *resultCache
	sf          singleflight.Group
}

// Option customizes filter construction.
type Option func(*options)

type options struct {
	offensiveTerms []string
	whitelistTerms []string
}

// WithTerms replaces the built-in term lists.
func WithTerms(offensive, whitelist []string) Option {
	return func(o *options) {
		o.offensiveTerms = offensive
		o.whitelistTerms = whitelist
	}
}

// New builds the filter. Terms are normalized through the same pipeline as
// scanned text so list entries and input meet in the same canonical space.
func New(cacheSize int, overrideFile string, opts ...Option) (*Filter, error) {
	o := options{
		offensiveTerms: defaultOffensiveTerms,
		whitelistTerms: defaultWhitelistTerms,
	}
	for _, opt := range opts {
		opt(&o)
	}

	table, err := buildConfusables(overrideFile)
	if err != nil {
		return nil, err
	}

	f := &Filter{
		offensive:   NewTrie(),
		whitelist:   NewTrie(),
		confusables: table,
		cache:       newResultCache(cacheSize),
	}

	for _, term := range o.offensiveTerms {
		if n := normalize(table, term); len(n.Runes) > 0 {
			f.offensive.Insert(n.String())
		}
	}
	for _, term := range o.whitelistTerms {
		if n := normalize(table, term); len(n.Runes) > 0 {
			f.whitelist.Insert(n.String())
		}
	}

	return f, nil
}

// CheckText scans text and reports offensive matches with their original
// byte ranges. Results are memoized; concurrent misses for the same text are
// collapsed to one scan.
func (f *Filter) CheckText(text string) Result {
	if res, ok := f.cache.Get(text); ok {
		return res
	}

	v, _, _ := f.sf.Do(text, func() (interface{}, error) {
		res := f.scan(text)
		f.cache.Put(text, res)
		return res, nil
	})
	return v.(Result)
}

// FilterText replaces every offensive range with '*' of equal rune length,
// preserving the surrounding structure. Idempotent on already-filtered text
// since '*' normalizes away.
func (f *Filter) FilterText(text string) string {
	res := f.CheckText(text)
	if !res.HasOffensiveWord {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	prev := 0
	for _, r := range res.Ranges {
		if r.Start < prev || r.End > len(text) {
			continue
		}
		b.WriteString(text[prev:r.Start])
		b.WriteString(strings.Repeat("*", utf8.RuneCountInString(text[r.Start:r.End])))
		prev = r.End
	}
	b.WriteString(text[prev:])
	return b.String()
}

// Normalize exposes the normalization pipeline for one line of text.
func (f *Filter) Normalize(line string) *Normalized {
	return normalize(f.confusables, line)
}

// CacheLen reports the current number of memoized results.
func (f *Filter) CacheLen() int {
	return f.cache.Len()
}

// OffensiveCount reports how many offensive terms are loaded.
func (f *Filter) OffensiveCount() int {
	return f.offensive.Size()
}

func (f *Filter) scan(text string) Result {
	var res Result

	base := 0
	for {
		nl := strings.IndexByte(text[base:], '\n')
		var line string
		if nl < 0 {
			line = text[base:]
		} else {
			line = text[base : base+nl]
		}

		f.scanLine(line, base, &res)

		if nl < 0 {
			break
		}
		base += nl + 1
	}

	res.HasOffensiveWord = len(res.Ranges) > 0
	return res
}

// scanLine runs the longest-match walk over one normalized line, appending
// accepted matches as original-text ranges offset by base.
func (f *Filter) scanLine(line string, base int, res *Result) {
	n := normalize(f.confusables, line)
	runes := n.Runes

	i := 0
	for i < len(runes) {
		offLen := f.offensive.LongestMatchAt(runes, i)
		wlLen := f.whitelist.LongestMatchAt(runes, i)

		// Ties between the tries resolve to the offensive match; the
		// whitelist protects only by outmatching.
		if offLen > 0 && offLen >= wlLen && f.acceptMatch(runes, i, offLen) {
			start, end := n.OriginalRange(i, i+offLen)
			res.Ranges = append(res.Ranges, Range{Start: base + start, End: base + end})
			i += offLen
			continue
		}
		if wlLen > 0 {
			i += wlLen
			continue
		}
		i++
	}
}

// acceptMatch applies the length heuristics: 1-2 rune matches are noise,
// 3-4 rune matches flanked by alphanumerics on both sides are likely
// substrings of longer words, 5+ always count.
func (f *Filter) acceptMatch(runes []rune, pos, length int) bool {
	switch {
	case length <= 2:
		return false
	case length <= 4:
		leftAlnum := pos > 0 && isNormAlnum(runes[pos-1])
		rightAlnum := pos+length < len(runes) && isNormAlnum(runes[pos+length])
		return !(leftAlnum && rightAlnum)
	default:
		return true
	}
}
