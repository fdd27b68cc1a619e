package filter

import (
	"encoding/json"
	"fmt"
	"os"
)

// builtinConfusables maps visually confusable code points to their ASCII
// canonical form. Covers Cyrillic, Greek, leet/symbol lookalikes; the
// contiguous math-alphanumeric and fullwidth blocks are handled
// arithmetically in lookupConfusable.
var builtinConfusables = map[rune]rune{
	// Leet digits and symbols
	'0': 'o', '1': 'i', '3': 'e', '4': 'a', '5': 's', '7': 't', '8': 'b',
	'@': 'a', '$': 's', '!': 'i', '|': 'l', '+': 't', '€': 'e', '£': 'l',

	// Cyrillic lowercase lookalikes
	'а': 'a', 'в': 'b', 'е': 'e', 'к': 'k', 'м': 'm', 'н': 'h', 'о': 'o',
	'р': 'p', 'с': 'c', 'т': 't', 'у': 'y', 'х': 'x', 'і': 'i', 'ѕ': 's',
	'ј': 'j', 'ԁ': 'd', 'ɡ': 'g',

	// Cyrillic uppercase lookalikes
	'А': 'a', 'В': 'b', 'Е': 'e', 'К': 'k', 'М': 'm', 'Н': 'h', 'О': 'o',
	'Р': 'p', 'С': 'c', 'Т': 't', 'У': 'y', 'Х': 'x', 'І': 'i', 'Ѕ': 's',

	// Greek lookalikes
	'α': 'a', 'β': 'b', 'ε': 'e', 'η': 'n', 'ι': 'i', 'κ': 'k', 'ν': 'v',
	'ο': 'o', 'ρ': 'p', 'τ': 't', 'υ': 'u', 'χ': 'x', 'ω': 'w', 'σ': 'o',
	'Α': 'a', 'Β': 'b', 'Ε': 'e', 'Η': 'h', 'Ι': 'i', 'Κ': 'k', 'Μ': 'm',
	'Ν': 'n', 'Ο': 'o', 'Ρ': 'p', 'Τ': 't', 'Υ': 'y', 'Χ': 'x',
}

// lookupConfusable resolves a rune to its canonical form, consulting the
// merged override+builtin table first and the arithmetic Unicode blocks after.
// Returns the rune unchanged when no mapping applies.
func lookupConfusable(table map[rune]rune, r rune) rune {
	if mapped, ok := table[r]; ok {
		return mapped
	}

	// Fullwidth forms: ！(FF01) .. ～(FF5E) mirror ASCII 21..7E.
	if r >= 0xFF01 && r <= 0xFF5E {
		return r - 0xFEE0
	}

	// Mathematical alphanumeric letters: 13 styled alphabets of 52 letters
	// each, uppercase then lowercase, starting at U+1D400. Reserved holes in
	// the block resolve to arbitrary letters, which is harmless here.
	if r >= 0x1D400 && r <= 0x1D6A3 {
		offset := (r - 0x1D400) % 52
		if offset < 26 {
			return 'a' + offset
		}
		return 'a' + offset - 26
	}

	// Mathematical digits: five styled runs of 0-9 starting at U+1D7CE.
	if r >= 0x1D7CE && r <= 0x1D7FF {
		return '0' + (r-0x1D7CE)%10
	}

	return r
}

// buildConfusables merges an optional JSON override file
// ({"lookalike":"canonical", ...}) with the built-in tables. Overrides win.
func buildConfusables(overridePath string) (map[rune]rune, error) {
	table := make(map[rune]rune, len(builtinConfusables))
	for k, v := range builtinConfusables {
		table[k] = v
	}

	if overridePath == "" {
		return table, nil
	}

	data, err := os.ReadFile(overridePath)
	if err != nil {
		return nil, fmt.Errorf("read confusable overrides: %w", err)
	}

	var overrides map[string]string
	if err := json.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse confusable overrides: %w", err)
	}

	for from, to := range overrides {
		fr := []rune(from)
		tr := []rune(to)
		if len(fr) != 1 || len(tr) != 1 {
			return nil, fmt.Errorf("confusable override %q -> %q must map one rune to one rune", from, to)
		}
		table[fr[0]] = tr[0]
	}

	return table, nil
}
