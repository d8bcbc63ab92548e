// Package roster maps raw spreadsheet records onto typed roster rows.
package roster

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/iota-uz/orgchart/modules/orgchart/domain/kpi"
	"github.com/iota-uz/orgchart/pkg/headermatch"
)

type Column string

const (
	ColPosition          Column = "position"
	ColSuperior          Column = "superior"
	ColLevel             Column = "level"
	ColIndicator         Column = "indicator"
	ColFormula           Column = "formula"
	ColWeight            Column = "weight"
	ColAlignedFromSource Column = "aligned_from_source"
	ColAlignedTo         Column = "aligned_to"
	ColArea              Column = "area"
	ColDepartment        Column = "department"
	ColFrequency         Column = "frequency"
	ColSource            Column = "source"
	ColOwner             Column = "owner"
	ColTarget            Column = "target"
	ColDirection         Column = "direction"
	ColNotes             Column = "notes"
)

// ColumnSpec lists the accepted header spellings of a column. The first name is the
// one reported when a required column is missing.
type ColumnSpec struct {
	Column   Column
	Names    []string
	Required bool
}

// Columns is resolved in order, so the more specific names claim their headers
// before shorter ones ("Responde al Cargo" before "Cargo").
var Columns = []ColumnSpec{
	{Column: ColSuperior, Names: []string{"Responde al Cargo", "Superior", "Jefe Inmediato"}, Required: true},
	{Column: ColPosition, Names: []string{"Cargo", "Position", "Puesto"}, Required: true},
	{Column: ColLevel, Names: []string{"Nivel Jerárquico", "Level", "Nivel"}, Required: true},
	{Column: ColIndicator, Names: []string{"Indicador", "Indicator", "KPI"}, Required: true},
	{Column: ColFormula, Names: []string{"Fórmula", "Formula"}},
	{Column: ColWeight, Names: []string{"Peso", "Weight", "Ponderación"}},
	{Column: ColAlignedFromSource, Names: []string{"Alineado (archivo)", "AlignedFromSource"}},
	{Column: ColAlignedTo, Names: []string{"Alineado a", "AlignedTo"}},
	{Column: ColArea, Names: []string{"Área", "Area"}},
	{Column: ColDepartment, Names: []string{"Departamento", "Department"}},
	{Column: ColFrequency, Names: []string{"Frecuencia", "Frequency"}},
	{Column: ColSource, Names: []string{"Fuente", "Source"}},
	{Column: ColOwner, Names: []string{"Responsable", "Owner"}},
	{Column: ColTarget, Names: []string{"Meta", "Target"}},
	{Column: ColDirection, Names: []string{"Sentido", "Direction"}},
	{Column: ColNotes, Names: []string{"Observaciones", "Notes"}},
}

// ExportHeader is the fixed column order of the flat report.
var ExportHeader = []string{
	"Indicator", "Formula", "Frequency", "Source", "Owner", "Target", "Direction", "Area",
	"Department", "Position", "Superior", "Level", "AlignedTo", "Notes", "AlignedFromSource", "Weight",
}

// Row is one typed roster record. Line is the 1-based source line (header is line 1).
type Row struct {
	Line      int
	Position  string
	Superior  string
	Level     string
	Indicator string
	Formula   string
	Weight    int
	AlignedTo string
	Meta      kpi.Metadata
}

// ImportStructureError reports required columns that could not be found in the header.
type ImportStructureError struct {
	Missing []string
}

func (e *ImportStructureError) Error() string {
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.Missing, ", "))
}

// Mapping is a resolved header: column -> record index.
type Mapping struct {
	index map[Column]int
}

// MapHeader resolves every known column against header. Exact matches are claimed
// for all columns before any fuzzy match is tried.
func MapHeader(header []string) (Mapping, error) {
	m := headermatch.New(header)
	index := make(map[Column]int, len(Columns))
	for _, spec := range Columns {
		if i, ok := m.Exact(spec.Names); ok {
			index[spec.Column] = i
		}
	}
	var missing []string
	for _, spec := range Columns {
		if _, ok := index[spec.Column]; ok {
			continue
		}
		if i, ok := m.Fuzzy(spec.Names); ok {
			index[spec.Column] = i
			continue
		}
		if spec.Required {
			missing = append(missing, spec.Names[0])
		}
	}
	if len(missing) > 0 {
		return Mapping{}, &ImportStructureError{Missing: missing}
	}
	return Mapping{index: index}, nil
}

func (m Mapping) Has(c Column) bool {
	_, ok := m.index[c]
	return ok
}

func (m Mapping) get(rec []string, c Column) string {
	i, ok := m.index[c]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// Row decodes one record.
func (m Mapping) Row(line int, rec []string) (Row, error) {
	weight, err := ParseWeight(m.get(rec, ColWeight))
	if err != nil {
		return Row{}, fmt.Errorf("line %d: weight: %w", line, err)
	}
	return Row{
		Line:      line,
		Position:  m.get(rec, ColPosition),
		Superior:  m.get(rec, ColSuperior),
		Level:     m.get(rec, ColLevel),
		Indicator: m.get(rec, ColIndicator),
		Formula:   m.get(rec, ColFormula),
		Weight:    weight,
		AlignedTo: m.get(rec, ColAlignedTo),
		Meta: kpi.Metadata{
			Frequency:         m.get(rec, ColFrequency),
			Source:            m.get(rec, ColSource),
			Owner:             m.get(rec, ColOwner),
			Target:            m.get(rec, ColTarget),
			Direction:         m.get(rec, ColDirection),
			Area:              m.get(rec, ColArea),
			Department:        m.get(rec, ColDepartment),
			AlignedFromSource: m.get(rec, ColAlignedFromSource),
			Notes:             m.get(rec, ColNotes),
		},
	}, nil
}

// Decode maps header and decodes every record. Fully blank records are skipped.
func Decode(header []string, records [][]string) ([]Row, error) {
	m, err := MapHeader(header)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, 0, len(records))
	for i, rec := range records {
		if blank(rec) {
			continue
		}
		r, err := m.Row(i+2, rec)
		if err != nil {
			return nil, err
		}
		rows = append(rows, r)
	}
	return rows, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// ParseWeight accepts "40", "40%", "40.0" and fractions like "0.4". Blank and
// placeholder values are zero.
func ParseWeight(v string) (int, error) {
	v = strings.TrimSpace(v)
	switch strings.ToLower(v) {
	case "", "n/a", "nan", "none":
		return 0, nil
	}
	percent := strings.HasSuffix(v, "%")
	v = strings.TrimSpace(strings.TrimSuffix(v, "%"))
	v = strings.Replace(v, ",", ".", 1)
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid weight %q", v)
	}
	if !percent && f > 0 && f < 1 {
		f *= 100
	}
	w := int(math.Round(f))
	if w < 0 || w > kpi.FullWeight {
		return 0, fmt.Errorf("weight %d out of range 0..%d", w, kpi.FullWeight)
	}
	return w, nil
}
