package statement

import (
	"strings"

	"statement-service/internal/core/tabular"
)

// NoHeader is returned by LocateHeader when no row looks like a header.
const NoHeader = -1

// minHeaderMatches is the number of distinct vocabulary tokens a header row must show.
const minHeaderMatches = 2

// LocateHeader returns the index of the first row that mentions at least
// minHeaderMatches distinct vocabulary tokens. Scanning stops at the first hit,
// so summary rows further down that repeat header words are never chosen.
func LocateHeader(m tabular.Matrix, vocabulary []string) int {
	for i, row := range m {
		if countVocabularyMatches(row, vocabulary) >= minHeaderMatches {
			return i
		}
	}
	return NoHeader
}

func countVocabularyMatches(row []tabular.Cell, vocabulary []string) int {
	cells := make([]string, 0, len(row))
	for _, c := range row {
		if c.IsBlank() {
			continue
		}
		if k := normalizeKey(c.String()); k != "" {
			cells = append(cells, k)
		}
	}
	if len(cells) == 0 {
		return 0
	}

	matches := 0
	for _, token := range vocabulary {
		for _, cell := range cells {
			if strings.Contains(cell, token) {
				matches++
				break
			}
		}
	}
	return matches
}
