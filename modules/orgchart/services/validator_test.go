package services

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/orgchart/modules/orgchart/domain/position"
)

func TestValidate_PendingListsExcludeRoot(t *testing.T) {
	set := Normalize(sampleRows()).Positions
	rep, err := Validate(set, nil, ValidateOptions{})
	require.NoError(t, err)
	require.Equal(t, "CEO", rep.Root)
	require.Equal(t, []string{"Analista"}, rep.MissingLevels)
	require.Equal(t, []string{"Auxiliar"}, rep.MissingSuperiors)
	require.False(t, rep.Complete())
}

func TestValidate_ReportsCycle(t *testing.T) {
	set := position.NewSet(
		position.Position{Name: "A", Superior: "B", Level: "Gerente"},
		position.Position{Name: "B", Superior: "C", Level: "Gerente"},
		position.Position{Name: "C", Superior: "A", Level: "Gerente"},
	)
	rep, err := Validate(set, nil, ValidateOptions{})
	var cyclic *CyclicHierarchyError
	require.ErrorAs(t, err, &cyclic)
	require.Equal(t, [][]string{{"A", "B", "C"}}, cyclic.Cycles)
	require.Equal(t, cyclic.Cycles, rep.Cycles)
	require.Contains(t, err.Error(), "A -> B -> C -> A")
}

func TestFindCycles_RotatesAndSkipsSelfReference(t *testing.T) {
	set := position.NewSet(
		position.Position{Name: "Z", Superior: "M"},
		position.Position{Name: "M", Superior: "Z"},
		position.Position{Name: "Solo", Superior: "Solo"},
		position.Position{Name: "Leaf", Superior: "Solo"},
	)
	require.Equal(t, [][]string{{"M", "Z"}}, FindCycles(set))
}

func TestValidate_SelfReferencingRootIsAllowed(t *testing.T) {
	set := position.NewSet(
		position.Position{Name: "CEO", Superior: "CEO", Level: "CEO"},
		position.Position{Name: "Gerente", Superior: "CEO", Level: "Gerente"},
	)
	rep, err := Validate(set, nil, ValidateOptions{})
	require.NoError(t, err)
	require.Equal(t, "CEO", rep.Root)
	require.Empty(t, rep.MissingSuperiors)
	require.Empty(t, rep.Warnings)
	require.True(t, rep.Complete())
}

func TestValidate_SelfReferenceBelowRootIsPending(t *testing.T) {
	set := position.NewSet(
		position.Position{Name: "Director General", Superior: "Director General"},
		position.Position{Name: "Gerente", Superior: "Gerente", Level: "Gerente"},
	)
	rep, err := Validate(set, nil, ValidateOptions{RootKeyword: "director general"})
	require.NoError(t, err)
	require.Equal(t, "Director General", rep.Root)
	require.Equal(t, []string{"Gerente"}, rep.MissingSuperiors)
	require.Len(t, rep.Warnings, 1)
	require.Contains(t, rep.Warnings[0], `"Gerente" names itself as superior`)
}

func TestRootCandidates_KeywordFallbackIgnoresAccents(t *testing.T) {
	set := position.NewSet(
		position.Position{Name: "Dirección General"},
		position.Position{Name: "Dirección Comercial", Superior: "Dirección General"},
	)
	require.Equal(t, []string{"Dirección General"}, RootCandidates(set, position.DefaultCatalog(), "DIRECCION"))
	require.Empty(t, RootCandidates(set, position.DefaultCatalog(), ""))
}

func TestValidate_WarnsOnMultipleRootsAndDuplicates(t *testing.T) {
	set := position.NewSet(
		position.Position{Name: "CEO Norte", Level: "CEO"},
		position.Position{Name: "CEO Sur", Level: "1"},
		position.Position{Name: "Gerente de Área", Superior: "CEO Norte", Level: "Gerente"},
		position.Position{Name: "gerente de  area", Superior: "CEO Sur", Level: "Gerente"},
	)
	rep, err := Validate(set, nil, ValidateOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"CEO Norte", "CEO Sur"}, rep.RootCandidates)
	require.Equal(t, "CEO Norte", rep.Root)
	require.Equal(t, [][]string{{"Gerente de Área", "gerente de  area"}}, rep.Duplicates)
	require.Len(t, rep.Warnings, 2)
	require.Equal(t, []string{"CEO Sur"}, rep.MissingSuperiors)
}
