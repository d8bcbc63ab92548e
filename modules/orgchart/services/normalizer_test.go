package services

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/orgchart/modules/orgchart/domain/position"
	"github.com/iota-uz/orgchart/modules/orgchart/domain/roster"
)

func TestNormalize_SuperiorsBecomePositions(t *testing.T) {
	res := Normalize([]roster.Row{
		{Line: 2, Position: "Analista", Superior: "Jefe", Level: "Profesional / Analista"},
		{Line: 3, Position: " Jefe ", Superior: "Gerente"},
	})
	require.Equal(t, []string{"Analista", "Jefe", "Gerente"}, res.Positions.Names())

	jefe, ok := res.Positions.Get("Jefe")
	require.True(t, ok)
	require.Equal(t, "Gerente", jefe.Superior)

	gerente, ok := res.Positions.Get("Gerente")
	require.True(t, ok)
	require.Empty(t, gerente.Superior)
	require.Empty(t, gerente.Level)
	require.Equal(t, []string{position.NoKPI}, gerente.KPIs)
}

func TestNormalize_FirstNonBlankValueWins(t *testing.T) {
	res := Normalize([]roster.Row{
		{Line: 2, Position: "Analista", Superior: "N/A", Level: ""},
		{Line: 3, Position: "Analista", Superior: "Jefe", Level: "Operativo"},
		{Line: 4, Position: "Analista", Superior: "Otro", Level: "Gerente"},
	})
	p, ok := res.Positions.Get("Analista")
	require.True(t, ok)
	require.Equal(t, "Jefe", p.Superior)
	require.Equal(t, "Operativo", p.Level)
	require.Equal(t, []string{"Operativo", "Gerente"}, res.Levels)
}

func TestNormalize_DeduplicatesIndicatorsIgnoringCase(t *testing.T) {
	var rows []roster.Row
	for i, ind := range []string{"X", "x", "N/A", "", "X"} {
		rows = append(rows, roster.Row{Line: i + 2, Position: "P", Indicator: ind, Weight: 100})
	}
	res := Normalize(rows)

	p, ok := res.Positions.Get("P")
	require.True(t, ok)
	require.Equal(t, []string{"X"}, p.KPIs)
	require.Len(t, res.Seeds, 1)
	require.Equal(t, 2, res.Seeds[0].Line)
}

func TestNormalize_StrategicIndicatorFallsBackToSourceColumn(t *testing.T) {
	rows := sampleRows()
	rows[0].AlignedTo = ""
	rows[0].Meta.AlignedFromSource = "Legacy Growth"
	res := Normalize(rows)
	require.Equal(t, "Legacy Growth", res.Seeds[0].StrategicIndicator)
	require.Equal(t, "Growth", res.Seeds[1].StrategicIndicator)
}

func TestNormalize_IsDeterministic(t *testing.T) {
	a := Normalize(sampleRows())
	b := Normalize(sampleRows())
	require.Equal(t, a.Positions.All(), b.Positions.All())
	require.Equal(t, a.Seeds, b.Seeds)
	require.Equal(t, []string{"CEO", "Gerente Ventas", "Analista", "Auxiliar"}, a.Positions.Names())
}
