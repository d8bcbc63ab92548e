package services

import (
	"strconv"

	"github.com/iota-uz/orgchart/modules/orgchart/domain/kpi"
	"github.com/iota-uz/orgchart/modules/orgchart/domain/position"
)

// ReportRow is one flat (KPI, position) record of the export.
type ReportRow struct {
	Indicator         string `json:"indicator"`
	Formula           string `json:"formula"`
	Frequency         string `json:"frequency"`
	Source            string `json:"source"`
	Owner             string `json:"owner"`
	Target            string `json:"target"`
	Direction         string `json:"direction"`
	Area              string `json:"area"`
	Department        string `json:"department"`
	Position          string `json:"position"`
	Superior          string `json:"superior"`
	Level             string `json:"level"`
	AlignedTo         string `json:"aligned_to"`
	Notes             string `json:"notes"`
	AlignedFromSource string `json:"aligned_from_source"`
	Weight            *int   `json:"weight"`
}

// Values renders the row in roster.ExportHeader order.
func (r ReportRow) Values() []string {
	weight := ""
	if r.Weight != nil {
		weight = strconv.Itoa(*r.Weight)
	}
	return []string{
		r.Indicator, r.Formula, r.Frequency, r.Source, r.Owner, r.Target, r.Direction, r.Area,
		r.Department, r.Position, r.Superior, r.Level, r.AlignedTo, r.Notes, r.AlignedFromSource, weight,
	}
}

// BuildReport flattens the ledger: one row per assignment grouped by KPI in catalog
// order, one row for each KPI nobody holds, and one row for each position holding no
// KPI so its superior and level survive a re-import.
func BuildReport(set *position.Set, ledger *Ledger, metadata map[kpi.MetadataKey]kpi.Metadata) []ReportRow {
	byKPI := make(map[string][]kpi.Assignment)
	held := make(map[string]struct{})
	for _, a := range ledger.AllAssignments() {
		byKPI[a.KPI] = append(byKPI[a.KPI], a)
		held[a.Position] = struct{}{}
	}

	lookup := func(indicator, positionName string) kpi.Metadata {
		if m, ok := metadata[kpi.MetadataKey{Indicator: indicator, Position: positionName}]; ok {
			return m
		}
		return metadata[kpi.MetadataKey{Indicator: indicator}]
	}

	var rows []ReportRow
	for _, k := range ledger.KPIs() {
		assigned := byKPI[k.Name]
		if len(assigned) == 0 {
			rows = append(rows, kpiRow(k, lookup(k.Name, "")))
			continue
		}
		for _, a := range assigned {
			row := kpiRow(k, lookup(k.Name, a.Position))
			row.Position = a.Position
			if p, ok := set.Get(a.Position); ok {
				row.Superior = p.Superior
				row.Level = p.Level
			}
			w := a.Weight
			row.Weight = &w
			rows = append(rows, row)
		}
	}
	for _, p := range set.All() {
		if _, ok := held[p.Name]; ok {
			continue
		}
		rows = append(rows, ReportRow{Position: p.Name, Superior: p.Superior, Level: p.Level})
	}
	return rows
}

func kpiRow(k kpi.KPI, m kpi.Metadata) ReportRow {
	return ReportRow{
		Indicator:         k.Name,
		Formula:           k.Formula,
		Frequency:         m.Frequency,
		Source:            m.Source,
		Owner:             m.Owner,
		Target:            m.Target,
		Direction:         m.Direction,
		Area:              m.Area,
		Department:        m.Department,
		AlignedTo:         k.StrategicIndicator,
		Notes:             m.Notes,
		AlignedFromSource: m.AlignedFromSource,
	}
}
