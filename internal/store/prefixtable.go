package store

import (
	"sort"

	"github.com/sb4client/safebrowsing4/internal/hashutil"
)

// applyUpdate computes the new sorted, deduplicated prefix table for a list
// given its current table, a set of removal indices (into current, applied
// before additions), and a set of additions. If override is true, current
// is ignored and the new table is built from add alone.
func applyUpdate(current []string, add []string, removeIndices []int, override bool) []string {
	base := current
	if override {
		base = nil
	}

	base = removeByIndex(base, removeIndices)

	merged := make([]string, 0, len(base)+len(add))
	merged = append(merged, base...)
	merged = append(merged, add...)

	return sortUnique(merged)
}

// removeByIndex returns table with the elements at the given indices
// removed. Indices are resolved against the original table, not against
// any partially-removed intermediate state; out-of-range indices are
// ignored.
func removeByIndex(table []string, indices []int) []string {
	if len(indices) == 0 {
		return append([]string(nil), table...)
	}

	drop := make(map[int]struct{}, len(indices))
	for _, idx := range indices {
		drop[idx] = struct{}{}
	}

	out := make([]string, 0, len(table))
	for i, p := range table {
		if _, ok := drop[i]; ok {
			continue
		}
		out = append(out, p)
	}

	return out
}

// sortUnique sorts prefixes in lexicographic byte order and removes
// duplicates.
func sortUnique(prefixes []string) []string {
	sort.Strings(prefixes)

	out := prefixes[:0]
	var prev string
	for i, p := range prefixes {
		if i > 0 && p == prev {
			continue
		}
		out = append(out, p)
		prev = p
	}

	return out
}

// longestMatchingPrefix returns the longest element of table that is a
// byte-prefix of hash, and true, or "" and false if none matches. table must
// be sorted in lexicographic byte order.
//
// Stored prefixes are always between [hashutil.MinPrefixLen] and
// [hashutil.MaxPrefixLen] bytes, so rather than scan the table, this checks
// each candidate length from longest to shortest with a binary search and
// returns on the first hit.
func longestMatchingPrefix(table []string, hash string) (prefix string, ok bool) {
	maxLen := len(hash)
	if maxLen > hashutil.MaxPrefixLen {
		maxLen = hashutil.MaxPrefixLen
	}

	for l := maxLen; l >= hashutil.MinPrefixLen; l-- {
		cand := hash[:l]
		i := sort.SearchStrings(table, cand)
		if i < len(table) && table[i] == cand {
			return cand, true
		}
	}

	return "", false
}
