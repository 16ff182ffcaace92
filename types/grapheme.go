package types

import "github.com/rivo/uniseg"

// GraphemeCount returns the number of grapheme clusters in s, matching the
// MOO convention that string indexing operates on user-perceived characters
// rather than bytes or code points.
func GraphemeCount(s string) int {
	n := 0
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		n++
	}
	return n
}

// graphemeBounds returns the byte offsets of the start of each grapheme
// cluster in s, plus a trailing entry for len(s).
func graphemeBounds(s string) []int {
	bounds := make([]int, 0, len(s)+1)
	bounds = append(bounds, 0)
	g := uniseg.NewGraphemes(s)
	for g.Next() {
		_, to := g.Positions()
		bounds = append(bounds, to)
	}
	return bounds
}

// GraphemeAt returns the 1-indexed i'th grapheme cluster of s.
// ok is false if i is out of range.
func GraphemeAt(s string, i int) (string, bool) {
	bounds := graphemeBounds(s)
	n := len(bounds) - 1
	if i < 1 || i > n {
		return "", false
	}
	return s[bounds[i-1]:bounds[i]], true
}

// GraphemeSlice returns the 1-indexed, inclusive grapheme range [start, end]
// of s. ok is false if start or end fall outside [1, GraphemeCount(s)].
func GraphemeSlice(s string, start, end int) (string, bool) {
	if start > end {
		return "", true
	}
	bounds := graphemeBounds(s)
	n := len(bounds) - 1
	if start < 1 || start > n || end < 1 || end > n {
		return "", false
	}
	return s[bounds[start-1]:bounds[end]], true
}
