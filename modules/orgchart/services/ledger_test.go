package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/orgchart/modules/orgchart/domain/kpi"
	"github.com/iota-uz/orgchart/modules/orgchart/domain/position"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	set := position.NewSet(
		position.Position{Name: "CEO", Level: "CEO"},
		position.Position{Name: "Gerente", Superior: "CEO", Level: "Gerente"},
	)
	return NewLedger(set)
}

func TestLedger_AddKpiFillsBlanksOnly(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	k, created, err := l.AddKpi(ctx, " Revenue ", "", "")
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "Revenue", k.Name)

	k, created, err = l.AddKpi(ctx, "Revenue", "sum(sales)", "Growth")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, "sum(sales)", k.Formula)
	require.Equal(t, "Growth", k.StrategicIndicator)

	k, _, err = l.AddKpi(ctx, "Revenue", "other", "Other")
	require.NoError(t, err)
	require.Equal(t, "sum(sales)", k.Formula)
	require.Equal(t, "Growth", k.StrategicIndicator)

	_, created, err = l.AddKpi(ctx, "revenue", "", "")
	require.NoError(t, err)
	require.True(t, created, "names are case-sensitive")

	_, _, err = l.AddKpi(ctx, "  ", "", "")
	var invalid *InvalidInputError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, "required", invalid.Fields["Name"])

	require.Equal(t, []kpi.StrategicIndicator{{Name: "Growth"}, {Name: "Other"}}, l.StrategicIndicators())
}

func TestLedger_AssignIsUpsertAndChecksReferences(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	_, _, err := l.AddKpi(ctx, "Sales", "", "")
	require.NoError(t, err)

	first, err := l.Assign("Gerente", "Sales", 30)
	require.NoError(t, err)
	second, err := l.Assign("Gerente", "Sales", 70)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Len(t, l.Assignments("Gerente"), 1)
	require.Equal(t, 70, l.Assignments("Gerente")[0].Weight)

	var unresolved *UnresolvedReference
	_, err = l.Assign("Ghost", "Sales", 10)
	require.ErrorAs(t, err, &unresolved)
	require.Equal(t, RefPosition, unresolved.Kind)
	_, err = l.Assign("Gerente", "Ghost", 10)
	require.ErrorAs(t, err, &unresolved)
	require.Equal(t, RefKPI, unresolved.Kind)

	var invalid *InvalidInputError
	_, err = l.Assign("Gerente", "Sales", 101)
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, "lte", invalid.Fields["Weight"])

	require.True(t, l.Unassign("Gerente", "Sales"))
	require.False(t, l.Unassign("Gerente", "Sales"))
	_, ok := l.KPI("Sales")
	require.True(t, ok)
}

func TestLedger_ValidateWeights(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	for _, name := range []string{"A", "B"} {
		_, _, err := l.AddKpi(ctx, name, "", "")
		require.NoError(t, err)
		_, err = l.Assign("Gerente", name, 40)
		require.NoError(t, err)
	}
	sum, ok := l.ValidateWeights("Gerente")
	require.Equal(t, 80, sum)
	require.False(t, ok)

	_, err := l.Assign("Gerente", "B", 60)
	require.NoError(t, err)
	sum, ok = l.ValidateWeights("Gerente")
	require.Equal(t, 100, sum)
	require.True(t, ok)
}

func TestLedger_DistributeStrategicIndicatorsToRoot(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	for _, name := range []string{"Growth", "Efficiency", "Customer"} {
		l.AddStrategicIndicator(name)
	}

	created, err := l.DistributeStrategicIndicatorsToRoot(ctx, "CEO")
	require.NoError(t, err)
	require.Len(t, created, 3)

	weights := map[string]int{}
	for _, a := range l.Assignments("CEO") {
		weights[a.KPI] = a.Weight
	}
	require.Equal(t, map[string]int{"Customer": 34, "Efficiency": 33, "Growth": 33}, weights)
	sum, ok := l.ValidateWeights("CEO")
	require.Equal(t, 100, sum)
	require.True(t, ok)

	again, err := l.DistributeStrategicIndicatorsToRoot(ctx, "CEO")
	require.NoError(t, err)
	require.Empty(t, again)
	require.Len(t, l.Assignments("CEO"), 3)

	_, err = l.DistributeStrategicIndicatorsToRoot(ctx, "Ghost")
	var unresolved *UnresolvedReference
	require.ErrorAs(t, err, &unresolved)
}
