package models

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeSide folds a side label for comparison: lowercase, accents removed,
// whitespace collapsed. "Équipe  A" and "equipe a" compare equal.
func NormalizeSide(side string) string {
	side = strings.ToLower(side)

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(t, side); err == nil {
		side = folded
	}

	return strings.Join(strings.Fields(side), " ")
}
