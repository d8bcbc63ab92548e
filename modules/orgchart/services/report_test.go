package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/orgchart/modules/orgchart/domain/roster"
	"github.com/iota-uz/orgchart/modules/orgchart/infrastructure/persistence"
)

func TestBuildReport_RowsPerAssignmentThenUnassigned(t *testing.T) {
	ctx := context.Background()
	s := NewSession(persistence.NewMemoryRepository())
	_, err := s.Import(ctx, "roster.csv", sampleRows())
	require.NoError(t, err)
	_, _, err = s.AddKpi(ctx, KpiDTO{Name: "NPS"})
	require.NoError(t, err)

	rows := s.Report()
	require.Len(t, rows, 6)

	got := make([][2]string, 0, len(rows))
	for _, r := range rows {
		got = append(got, [2]string{r.Indicator, r.Position})
	}
	require.Equal(t, [][2]string{
		{"Revenue", "CEO"},
		{"Sales", "Gerente Ventas"},
		{"Churn", "Gerente Ventas"},
		{"Leads", "Analista"},
		{"NPS", ""},
		{"", "Auxiliar"},
	}, got)

	churn := rows[2]
	require.Equal(t, "Monthly", churn.Frequency)
	require.Equal(t, "CRM", churn.Owner)
	require.Equal(t, "CEO", churn.Superior)
	require.Equal(t, "Gerente", churn.Level)
	require.Equal(t, "Retention", churn.AlignedTo)
	require.NotNil(t, churn.Weight)
	require.Equal(t, 40, *churn.Weight)

	require.Nil(t, rows[4].Weight)
	require.Len(t, rows[4].Values(), len(roster.ExportHeader))
	require.Equal(t, "", rows[4].Values()[15])
	require.Equal(t, "40", churn.Values()[15])
}

func TestBuildReport_RoundTrip(t *testing.T) {
	ctx := context.Background()
	first := NewSession(persistence.NewMemoryRepository())
	_, err := first.Import(ctx, "roster.csv", sampleRows())
	require.NoError(t, err)

	var records [][]string
	for _, r := range first.Report() {
		records = append(records, r.Values())
	}
	rows, err := roster.Decode(roster.ExportHeader, records)
	require.NoError(t, err)

	second := NewSession(persistence.NewMemoryRepository())
	_, err = second.Import(ctx, "export.csv", rows)
	require.NoError(t, err)

	require.ElementsMatch(t, first.Positions(), second.Positions())
	require.Equal(t, first.KPIs(), second.KPIs())
	for _, name := range []string{"CEO", "Gerente Ventas", "Analista"} {
		a, err := first.KpisForPosition(name)
		require.NoError(t, err)
		b, err := second.KpisForPosition(name)
		require.NoError(t, err)
		require.Len(t, b, len(a))
		for i := range a {
			require.Equal(t, a[i].KPI, b[i].KPI)
			require.Equal(t, a[i].Weight, b[i].Weight)
		}
	}
}
