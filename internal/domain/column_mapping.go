package domain

import (
	"fmt"
	"sort"
)

// ColumnMapping maps raw source header strings to canonical field names.
// It is created once per job, either auto-detected or user supplied, and is
// immutable for the job's lifetime.
type ColumnMapping map[string]string

// Clone returns an independent copy of the mapping.
func (m ColumnMapping) Clone() ColumnMapping {
	if m == nil {
		return nil
	}
	out := make(ColumnMapping, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Conflicts scans the mapping for canonical fields claimed by more than one
// source header and returns one human-readable description per collision.
// The mapping itself is not mutated; callers decide whether to reject.
func (m ColumnMapping) Conflicts() []string {
	sources := make(map[string][]string)
	for raw, target := range m {
		if target == "" {
			continue
		}
		sources[target] = append(sources[target], raw)
	}

	var conflicts []string
	for target, raws := range sources {
		if len(raws) < 2 {
			continue
		}
		sort.Strings(raws)
		conflicts = append(conflicts, fmt.Sprintf("field %q is mapped from %d source columns: %v", target, len(raws), raws))
	}
	sort.Strings(conflicts)
	return conflicts
}

// UnknownTargets returns mapped targets that are not canonical fields.
func (m ColumnMapping) UnknownTargets() []string {
	var unknown []string
	for _, target := range m {
		if target != "" && !IsCanonicalField(target) {
			unknown = append(unknown, target)
		}
	}
	sort.Strings(unknown)
	return unknown
}
