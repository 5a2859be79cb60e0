// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sfz

import (
	"math"
	"sort"
	"strings"
)

// EntrySortStrategy defines an ordering of entries.
type EntrySortStrategy int

const (
	SortDefault              EntrySortStrategy = iota
	SortNameLengthDescending                   // Longest filename first
	SortAlphabetical                           // A-Z by filename
	SortSizeAscending                          // Smallest first
	SortSizeDescending                         // Largest first
	SortLargeEntriesLast                       // Entries needing Zip64 sizes at the end
)

// SortEntries returns a sorted copy of entries. Every strategy is stable.
//
// SortNameLengthDescending is the order used to substitute entry names in
// documents: a name is always replaced before any shorter name it contains.
func SortEntries(entries []*Entry, strategy EntrySortStrategy) []*Entry {
	sorted := make([]*Entry, len(entries))
	copy(sorted, entries)
	if len(sorted) <= 1 {
		return sorted
	}

	switch strategy {
	case SortNameLengthDescending:
		sort.SliceStable(sorted, func(i, j int) bool {
			return len(sorted[i].Filename) > len(sorted[j].Filename)
		})

	case SortAlphabetical:
		// Groups entries of the same directory together.
		sort.SliceStable(sorted, func(i, j int) bool {
			return strings.Compare(sorted[i].Filename, sorted[j].Filename) < 0
		})

	case SortSizeAscending:
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].UncompressedSize < sorted[j].UncompressedSize
		})

	case SortSizeDescending:
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].UncompressedSize > sorted[j].UncompressedSize
		})

	case SortLargeEntriesLast:
		return partitionStable(sorted, func(e *Entry) bool {
			return e.UncompressedSize < math.MaxUint32
		})
	}
	return sorted
}

// partitionStable moves entries matching keepFirst to the front, keeping
// the relative order inside both groups.
func partitionStable(entries []*Entry, keepFirst func(*Entry) bool) []*Entry {
	result := make([]*Entry, 0, len(entries))
	var rest []*Entry
	for _, e := range entries {
		if keepFirst(e) {
			result = append(result, e)
		} else {
			rest = append(rest, e)
		}
	}
	return append(result, rest...)
}
