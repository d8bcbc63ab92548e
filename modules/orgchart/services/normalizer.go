package services

import (
	"strings"

	"github.com/iota-uz/orgchart/modules/orgchart/domain/kpi"
	"github.com/iota-uz/orgchart/modules/orgchart/domain/position"
	"github.com/iota-uz/orgchart/modules/orgchart/domain/roster"
)

// Seed is one indicator occurrence captured from the roster for the KPI ledger.
type Seed struct {
	Line               int
	Indicator          string
	Formula            string
	Position           string
	StrategicIndicator string
	Weight             int
	Meta               kpi.Metadata
}

type NormalizeResult struct {
	Positions *position.Set
	Seeds     []Seed
	// Levels lists distinct level values in first-seen order.
	Levels []string
}

// Normalize turns roster rows into the canonical position set. Every name that
// appears as a position or as a superior becomes a position; superior and level
// take the first non-blank value seen for the name.
func Normalize(rows []roster.Row) NormalizeResult {
	names := make([]string, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	addName := func(v string) {
		v = position.Clean(v)
		if v == "" {
			return
		}
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		names = append(names, v)
	}
	for _, r := range rows {
		addName(r.Position)
	}
	for _, r := range rows {
		addName(r.Superior)
	}

	superior := make(map[string]string, len(names))
	level := make(map[string]string, len(names))
	kpis := make(map[string][]string, len(names))
	kpiSeen := make(map[string]map[string]struct{}, len(names))
	var levels []string
	levelSeen := make(map[string]struct{})

	seeds := make([]Seed, 0, len(rows))
	seedSeen := make(map[[2]string]struct{}, len(rows))

	for _, r := range rows {
		name := position.Clean(r.Position)
		indicator := position.Clean(r.Indicator)
		lvl := position.Clean(r.Level)

		if lvl != "" {
			if _, ok := levelSeen[lvl]; !ok {
				levelSeen[lvl] = struct{}{}
				levels = append(levels, lvl)
			}
		}

		if name != "" {
			if _, ok := superior[name]; !ok {
				if sup := position.Clean(r.Superior); sup != "" {
					superior[name] = sup
				}
			}
			if _, ok := level[name]; !ok && lvl != "" {
				level[name] = lvl
			}
			if indicator != "" {
				folded := strings.ToLower(indicator)
				if kpiSeen[name] == nil {
					kpiSeen[name] = make(map[string]struct{})
				}
				if _, dup := kpiSeen[name][folded]; !dup {
					kpiSeen[name][folded] = struct{}{}
					kpis[name] = append(kpis[name], indicator)
				}
			}
		}

		if indicator == "" {
			continue
		}
		key := [2]string{name, strings.ToLower(indicator)}
		if _, dup := seedSeen[key]; dup {
			continue
		}
		seedSeen[key] = struct{}{}
		strategic := position.Clean(r.AlignedTo)
		if strategic == "" {
			strategic = position.Clean(r.Meta.AlignedFromSource)
		}
		seeds = append(seeds, Seed{
			Line:               r.Line,
			Indicator:          indicator,
			Formula:            strings.TrimSpace(r.Formula),
			Position:           name,
			StrategicIndicator: strategic,
			Weight:             r.Weight,
			Meta:               r.Meta,
		})
	}

	set := position.NewSet()
	for _, name := range names {
		set.Add(position.Position{
			Name:     name,
			Superior: superior[name],
			Level:    level[name],
			KPIs:     kpis[name],
		})
	}
	return NormalizeResult{Positions: set, Seeds: seeds, Levels: levels}
}
