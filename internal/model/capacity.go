package model

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// CanonicalCapacities is the fixed ordering used for trade-in device capacity buttons.
var CanonicalCapacities = []string{"16GB", "32GB", "64GB", "128GB", "256GB", "512GB", "1TB"}

var (
	capacityWithUnit = regexp.MustCompile(`^(\d+)\s*(GB|TB)$`)
	annotation       = regexp.MustCompile(`\(\*\)`)
)

// NormalizeCapacityLabel cleans a capacity label from the catalog search API.
// Strips "(*)" annotation markers and inserts a space between value and unit.
// Examples: "128GB" → "128 GB", "256 GB(*)" → "256 GB", "1TB" → "1 TB"
func NormalizeCapacityLabel(s string) string {
	s = strings.TrimSpace(annotation.ReplaceAllString(s, ""))
	if m := capacityWithUnit.FindStringSubmatch(strings.ToUpper(s)); m != nil {
		return m[1] + " " + m[2]
	}
	return s
}

// CapacitySlug converts a capacity label to its URL suffix form.
// Examples: "256 GB" → "256gb", "1 TB" → "1tb"
func CapacitySlug(label string) string {
	return strings.ToLower(strings.ReplaceAll(label, " ", ""))
}

// StorageBytes converts a capacity label to a comparable size in gigabytes.
// Returns false when the label has no recognizable value and unit.
// Examples: "128 GB" → 128, "1TB" → 1024, "huge" → (0, false)
func StorageBytes(label string) (int64, bool) {
	m := capacityWithUnit.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(label)))
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	if m[2] == "TB" {
		n *= 1024
	}
	return n, true
}

// SortCanonical orders trade-in capacity labels by CanonicalCapacities.
// Labels outside the canonical list keep lexicographic order after the known ones.
func SortCanonical(labels []string) []string {
	rank := func(label string) int {
		key := strings.ToUpper(strings.ReplaceAll(label, " ", ""))
		for i, c := range CanonicalCapacities {
			if c == key {
				return i
			}
		}
		return len(CanonicalCapacities)
	}

	out := append([]string(nil), labels...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := rank(out[i]), rank(out[j])
		if ri != rj {
			return ri < rj
		}
		return out[i] < out[j]
	})
	return out
}
