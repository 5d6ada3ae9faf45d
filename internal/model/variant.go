package model

import (
	"fmt"
	"sort"
)

// Variant identifies a specific configuration of the remote vision model
// endpoint. The orchestrator tries variants strictly in priority order
// (lower rank first); variants are immutable once configured.
type Variant struct {
	// Name is the provider-facing model identifier (e.g., "gpt-4o")
	Name string
	// Priority ranks the variant; lower is preferred
	Priority int
	// Vision indicates the variant accepts image input
	Vision bool
}

func (v Variant) String() string {
	return fmt.Sprintf("%s(p%d)", v.Name, v.Priority)
}

// sortVariants returns a copy of variants ordered by ascending priority.
// Ties keep their configured order so selection stays deterministic.
func sortVariants(variants []Variant) []Variant {
	out := make([]Variant, len(variants))
	copy(out, variants)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})
	return out
}
