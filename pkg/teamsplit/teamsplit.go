// Package teamsplit disambiguates multi-team spreadsheet cells that use
// inconsistent separators across source files: some use whitespace, others
// a pipe character or one of its Unicode lookalikes (§4.5).
//
// Separator detection must see the raw, unsplit team cell text to tell pipe
// from whitespace apart, so it runs once over the whole dataset's raw
// `teams` column before the Validator applies its per-row team rules — the
// Validator then validates the already-split team lists this package
// produces rather than re-deriving them.
package teamsplit

import (
	"regexp"
	"strings"
)

// Separator is the detected inter-team delimiter class for one dataset.
type Separator int

const (
	SeparatorNone Separator = iota
	SeparatorPipe
	SeparatorWhitespace
)

// pipeLike is the separator's character class (§4.5: '|' plus two Unicode
// lookalikes observed in source files).
const pipeLike = "|ӏǀ"

var whitespaceRun = regexp.MustCompile(`\s+`)

// DetectSeparator implements §4.5 steps 1-2: pipe wins if any raw cell in
// the dataset contains a pipe-like character; otherwise whitespace if any
// cell contains a space.
func DetectSeparator(rawCells []string) Separator {
	for _, cell := range rawCells {
		if strings.ContainsAny(cell, pipeLike) {
			return SeparatorPipe
		}
	}
	for _, cell := range rawCells {
		if strings.ContainsAny(cell, " \t") {
			return SeparatorWhitespace
		}
	}
	return SeparatorNone
}

// Split rewrites every raw teams cell using the separator detected across
// the whole set, trimming parts, dropping empties, and deduplicating while
// preserving each row's team order (§4.5 steps 3-4). occurred reports
// whether any cell was actually broken into more than one team.
func Split(rawCells []string) (split [][]string, sep Separator, occurred bool) {
	sep = DetectSeparator(rawCells)
	split = make([][]string, len(rawCells))
	for i, cell := range rawCells {
		var parts []string
		switch sep {
		case SeparatorPipe:
			parts = splitAny(cell, pipeLike)
		case SeparatorWhitespace:
			parts = whitespaceRun.Split(cell, -1)
		default:
			parts = []string{cell}
		}
		deduped := dedupNonEmpty(parts)
		if len(deduped) > 1 {
			occurred = true
		}
		split[i] = deduped
	}
	return split, sep, occurred
}

func splitAny(s, chars string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return strings.ContainsRune(chars, r)
	})
}

func dedupNonEmpty(parts []string) []string {
	seen := make(map[string]bool, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// Notice renders the human-readable rewrite description the Approval Engine
// appends to the marker when splitting occurred (§4.5 step 5).
func Notice(sep Separator) string {
	switch sep {
	case SeparatorPipe:
		return "Team cells were split on a pipe-like separator."
	case SeparatorWhitespace:
		return "Team cells used whitespace as the team separator; rewritten into separate teams."
	default:
		return ""
	}
}
