package filter

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFilter(t *testing.T) *Filter {
	t.Helper()
	f, err := New(128, "")
	require.NoError(t, err)
	return f
}

func TestNormalize(t *testing.T) {
	f := newTestFilter(t)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text", "hello world", "hello world"},
		{"leet digits", "h3ll0 w0rld", "hello world"},
		{"uppercase", "HeLLo", "hello"},
		{"punctuation dropped", "s.h.i.t", "shit"},
		{"whitespace folded", "a   \t b", "a b"},
		{"repeats collapsed to two", "haaaappy", "haappy"},
		{"diacritics stripped", "héllo", "hello"},
		{"fullwidth mapped", "ｓｈｉｔ", "shit"},
		{"asterisks vanish", "****", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.Normalize(tt.in).String())
		})
	}
}

func TestNormalizedIndexMapping(t *testing.T) {
	f := newTestFilter(t)

	n := f.Normalize("a.b")
	require.Equal(t, "ab", n.String())

	assert.Equal(t, 0, n.FindOriginalIndex(0))
	assert.Equal(t, 2, n.FindOriginalIndex(1))
	assert.Equal(t, 3, n.FindOriginalIndex(2))

	start, end := n.OriginalRange(0, 2)
	assert.Equal(t, 0, start)
	assert.Equal(t, 3, end)
}

func TestCheckText(t *testing.T) {
	f := newTestFilter(t)

	tests := []struct {
		name      string
		in        string
		offensive bool
	}{
		{"clean text", "hello world", false},
		{"plain profanity", "shit", true},
		{"leet obfuscation", "sh1t", true},
		{"punctuation obfuscation", "s.h.i.t", true},
		{"fullwidth obfuscation", "ｓｈｉｔ", true},
		{"whitelist outmatches", "analysis", false},
		{"whitelist prefix protects", "shitake mushroom", false},
		{"scunthorpe", "scunthorpe town", false},
		{"canal", "panama canal", false},
		{"short term standalone", "anal", true},
		{"short term flanked both sides", "xanalx", false},
		{"long term flanked both sides", "xfuckerx", true},
		{"second line", "hello\nshit here", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := f.CheckText(tt.in)
			assert.Equal(t, tt.offensive, res.HasOffensiveWord)
			if tt.offensive {
				assert.NotEmpty(t, res.Ranges)
			} else {
				assert.Empty(t, res.Ranges)
			}
		})
	}
}

func TestFilterText(t *testing.T) {
	f := newTestFilter(t)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"clean passthrough", "hello world", "hello world"},
		{"plain", "shit", "****"},
		{"leet", "sh1t", "****"},
		{"punctuation censors whole run", "s.h.i.t", "*******"},
		{"surrounding text kept", "that is shit here", "that is **** here"},
		{"flanked long term", "xfuckerx", "x******x"},
		{"multiline offsets", "hello\nshit here", "hello\n**** here"},
		{"whitelist untouched", "my analysis passed", "my analysis passed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.FilterText(tt.in))
		})
	}
}

func TestFilterTextIdempotent(t *testing.T) {
	f := newTestFilter(t)

	once := f.FilterText("total bullshit, honestly")
	twice := f.FilterText(once)
	assert.Equal(t, once, twice)
}

func TestTieResolvesOffensive(t *testing.T) {
	f, err := New(16, "", WithTerms([]string{"dang"}, []string{"dang"}))
	require.NoError(t, err)

	// Equal-length matches from both tries: the offensive one wins.
	res := f.CheckText("dang")
	assert.True(t, res.HasOffensiveWord)
}

func TestCustomTerms(t *testing.T) {
	f, err := New(16, "", WithTerms([]string{"blorbo"}, nil))
	require.NoError(t, err)

	assert.True(t, f.CheckText("blorbo").HasOffensiveWord)
	assert.Equal(t, "******", f.FilterText("blorbo"))
	assert.False(t, f.CheckText("shit").HasOffensiveWord)
}

func TestCacheEviction(t *testing.T) {
	f, err := New(2, "")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		f.CheckText(fmt.Sprintf("text number %d", i))
	}
	assert.Equal(t, 2, f.CacheLen())

	// Repeat lookups hit the cache instead of growing it.
	f.CheckText("text number 4")
	assert.Equal(t, 2, f.CacheLen())
}

func TestTrieLongestMatch(t *testing.T) {
	tr := NewTrie()
	tr.Insert("ab")
	tr.Insert("abcd")

	assert.Equal(t, 2, tr.Size())
	assert.Equal(t, 4, tr.LongestMatchAt([]rune("abcdx"), 0))
	assert.Equal(t, 2, tr.LongestMatchAt([]rune("abx"), 0))
	assert.Equal(t, 0, tr.LongestMatchAt([]rune("xabcd"), 0))
	assert.Equal(t, 4, tr.LongestMatchAt([]rune("xabcd"), 1))
}

func TestConcurrentCheck(t *testing.T) {
	f := newTestFilter(t)

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 50; j++ {
				f.CheckText("some shit in here")
				f.FilterText("clean text")
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	assert.True(t, f.CheckText("some shit in here").HasOffensiveWord)
}
