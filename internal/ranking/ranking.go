// Package ranking orders players by progress. The same order backs the room
// leaderboard and the global per-category leaderboard.
package ranking

import (
	"slices"

	"escaperoom/internal/model"
)

// Compare returns a negative number when a ranks ahead of b, positive when b
// ranks ahead, and zero when every key ties. Keys in priority order:
// completed levels desc, total time asc, wrong answers asc, recency desc.
func Compare(a, b model.Progress) int {
	if a.CompletedLevels != b.CompletedLevels {
		if a.CompletedLevels > b.CompletedLevels {
			return -1
		}
		return 1
	}
	if a.TotalTimeMs != b.TotalTimeMs {
		if a.TotalTimeMs < b.TotalTimeMs {
			return -1
		}
		return 1
	}
	if a.TotalWrongAnswers != b.TotalWrongAnswers {
		if a.TotalWrongAnswers < b.TotalWrongAnswers {
			return -1
		}
		return 1
	}
	// More recent progress wins the final tie.
	return b.RecencyKey().Compare(a.RecencyKey())
}

// Less reports whether a ranks strictly ahead of b.
func Less(a, b model.Progress) bool {
	return Compare(a, b) < 0
}

// Sort orders items best-first. Items whose keys all tie keep no guaranteed
// relative order beyond what the stable sort gives for the input order.
func Sort[T any](items []T, progress func(T) model.Progress) {
	slices.SortStableFunc(items, func(a, b T) int {
		return Compare(progress(a), progress(b))
	})
}

// RankOf returns the 1-based position of the first item matching pred in an
// already-sorted slice, or 0 when absent.
func RankOf[T any](sorted []T, pred func(T) bool) int {
	for i, it := range sorted {
		if pred(it) {
			return i + 1
		}
	}
	return 0
}
