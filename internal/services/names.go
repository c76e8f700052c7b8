package services

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// normalizeName folds a person's name for comparison: NFKC, trimmed, case folded.
func normalizeName(name string) string {
	return cases.Fold().String(strings.TrimSpace(norm.NFKC.String(name)))
}

func namesMatch(stored, asserted string) bool {
	return normalizeName(stored) == normalizeName(asserted)
}
