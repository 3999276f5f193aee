// Package testutil holds small helpers shared by this module's table-driven
// tests, in the teacher's own style: structural diffing via go-cmp rather
// than testify assertions.
package testutil

import (
	"math"
	"sort"

	"github.com/google/go-cmp/cmp"
)

var (
	alwaysEqual       = cmp.Comparer(func(_, _ interface{}) bool { return true })
	defaultCmpOptions = []cmp.Option{
		// NaNs compare equal.
		cmp.FilterValues(func(x, y float64) bool {
			return math.IsNaN(x) && math.IsNaN(y)
		}, alwaysEqual),
		cmp.FilterValues(func(x, y float32) bool {
			return math.IsNaN(float64(x)) && math.IsNaN(float64(y))
		}, alwaysEqual),
	}

	False = false
	True  = true
)

// Diff returns a human-readable diff between a and b, or "" if equal.
func Diff(a, b interface{}, opts ...cmp.Option) string {
	opts = append(opts, defaultCmpOptions...)
	return cmp.Diff(a, b, opts...)
}

// DedupStrings returns the sorted, de-duplicated contents of sl.
func DedupStrings(sl []string) (uniq []string) {
	m := make(map[string]bool)
	for _, s := range sl {
		if _, ok := m[s]; !ok {
			uniq = append(uniq, s)
			m[s] = true
		}
	}
	sort.Strings(uniq)
	return uniq
}
