package ptx

import (
	"sort"

	"github.com/hesusruiz/rmd2ptx/sliceedit"
)

// Apply inserts the fragments of points in doc and returns the new text and
// the number of fragments inserted. Each fragment is preceded by a blank line.
//
// All points must have been resolved against doc itself, before any change:
// anchor lines are positions in the original text. Points are processed from
// the highest anchor to the lowest, so that every insertion only shifts lines
// below the anchors still to be processed. Fragments sharing an anchor keep
// the order of points.
//
// With no valid point, doc is returned unchanged.
func Apply(doc string, points []InsertionPoint) (string, int) {
	sorted := SortForSplice(points)

	buf := sliceedit.NewBuffer([]byte(doc))
	inserted := 0

	for _, p := range sorted {
		if buf.InsertLines(p.AnchorLine, "\n"+p.Fragment) {
			inserted++
		}
	}

	if inserted == 0 {
		return doc, 0
	}

	return buf.String(), inserted
}

// SortForSplice returns a copy of points sorted by anchor line, highest first.
// Points with the same anchor keep their relative order.
func SortForSplice(points []InsertionPoint) []InsertionPoint {
	sorted := make([]InsertionPoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].AnchorLine > sorted[j].AnchorLine
	})
	return sorted
}
