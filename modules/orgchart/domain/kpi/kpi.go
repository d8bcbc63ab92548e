package kpi

import (
	"github.com/google/uuid"
)

// FullWeight is the total an assignment set must reach before it can be saved.
const FullWeight = 100

// KPI is a named performance indicator in the catalog. Name is the case-sensitive key.
type KPI struct {
	Name               string `json:"name"`
	Formula            string `json:"formula,omitempty"`
	StrategicIndicator string `json:"strategic_indicator,omitempty"`
}

// StrategicIndicator is a top-level strategic theme a KPI can align to.
type StrategicIndicator struct {
	Name string `json:"name"`
}

// Assignment is the weighted link between a position and a KPI.
type Assignment struct {
	ID       uuid.UUID `json:"id"`
	Position string    `json:"position"`
	KPI      string    `json:"kpi"`
	Weight   int       `json:"weight"`
}

// Key identifies an assignment by its (position, kpi) pair.
type Key struct {
	Position string
	KPI      string
}

func (a Assignment) Key() Key {
	return Key{Position: a.Position, KPI: a.KPI}
}

// Metadata holds descriptive columns carried through from import to export.
type Metadata struct {
	Frequency         string `json:"frequency,omitempty"`
	Source            string `json:"source,omitempty"`
	Owner             string `json:"owner,omitempty"`
	Target            string `json:"target,omitempty"`
	Direction         string `json:"direction,omitempty"`
	Area              string `json:"area,omitempty"`
	Department        string `json:"department,omitempty"`
	AlignedFromSource string `json:"aligned_from_source,omitempty"`
	Notes             string `json:"notes,omitempty"`
}

func (m Metadata) IsZero() bool {
	return m == Metadata{}
}

// MetadataKey addresses metadata by indicator and position. An empty Position is the
// indicator-wide fallback.
type MetadataKey struct {
	Indicator string `json:"indicator"`
	Position  string `json:"position"`
}

// TotalWeight sums assignment weights.
func TotalWeight(assignments []Assignment) int {
	total := 0
	for _, a := range assignments {
		total += a.Weight
	}
	return total
}

// EquitableWeights splits FullWeight across n slots: floor(100/n) each, with the
// remainder handed out one point at a time from the first slot.
func EquitableWeights(n int) []int {
	if n <= 0 {
		return nil
	}
	base := FullWeight / n
	rem := FullWeight % n
	out := make([]int, n)
	for i := range out {
		out[i] = base
		if i < rem {
			out[i]++
		}
	}
	return out
}
