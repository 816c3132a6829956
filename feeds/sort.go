package feeds

import (
	"slices"

	"sharexp/storage/models"
)

// SortNewestFirst orders posts by creation time descending. Posts created at
// the same instant are ordered by Seq descending, so the order is total and
// identical across calls regardless of how storage returned them.
func SortNewestFirst(posts []models.Post) {
	slices.SortStableFunc(posts, compareNewestFirst)
}

func compareNewestFirst(a, b models.Post) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	switch {
	case a.Seq > b.Seq:
		return -1
	case a.Seq < b.Seq:
		return 1
	}
	return 0
}
