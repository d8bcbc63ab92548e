package services

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/orgchart/modules/orgchart/domain/position"
)

func TestResolution_RecordChoicesValidateReferences(t *testing.T) {
	set := Normalize(sampleRows()).Positions
	r := NewResolution()

	var unresolved *UnresolvedReference
	require.ErrorAs(t, r.RecordSuperiorChoice(set, "Ghost", "CEO"), &unresolved)
	require.Equal(t, RefPosition, unresolved.Kind)
	require.ErrorAs(t, r.RecordSuperiorChoice(set, "Auxiliar", "Ghost"), &unresolved)
	require.Equal(t, RefSuperior, unresolved.Kind)
	require.ErrorIs(t, r.RecordSuperiorChoice(set, "Auxiliar", "Auxiliar"), ErrSelfReference)
	require.ErrorAs(t, r.RecordLevelChoice(set, position.DefaultCatalog(), "Analista", "Astronauta"), &unresolved)
	require.Equal(t, RefLevel, unresolved.Kind)

	require.NoError(t, r.RecordLevelChoice(set, position.DefaultCatalog(), "Analista", "  profesional /  analista "))
	require.Equal(t, map[string]string{"Analista": "Profesional / Analista"}, r.PendingLevels())

	require.NoError(t, r.RecordLevelChoice(set, position.DefaultCatalog(), "Analista", position.SelectPlaceholder))
	require.Empty(t, r.PendingLevels())
}

func TestResolution_CompletenessCountsCoveredItems(t *testing.T) {
	set := Normalize(sampleRows()).Positions
	r := NewResolution()
	require.True(t, r.SuperiorsComplete(nil))
	require.False(t, r.SuperiorsComplete([]string{"Auxiliar"}))

	require.NoError(t, r.RecordSuperiorChoice(set, "Analista", "CEO"))
	require.False(t, r.SuperiorsComplete([]string{"Auxiliar"}))

	require.NoError(t, r.RecordSuperiorChoice(set, "Auxiliar", "Gerente Ventas"))
	require.True(t, r.SuperiorsComplete([]string{"Auxiliar"}))
}

func TestResolution_CommitNeverOverwrites(t *testing.T) {
	set := Normalize(sampleRows()).Positions
	catalog := position.DefaultCatalog()
	r := NewResolution()
	require.NoError(t, r.RecordLevelChoice(set, catalog, "Analista", "Operativo"))
	require.NoError(t, r.RecordLevelChoice(set, catalog, "Gerente Ventas", "Director"))
	require.NoError(t, r.RecordSuperiorChoice(set, "Auxiliar", "Analista"))

	res := r.Commit(set, position.FieldLevel)
	require.Equal(t, []string{"Analista"}, res.Levels)
	require.Empty(t, res.Superiors)
	require.Equal(t, 1, res.Updated)

	gerente, _ := set.Get("Gerente Ventas")
	require.Equal(t, "Gerente", gerente.Level)
	analista, _ := set.Get("Analista")
	require.Equal(t, "Operativo", analista.Level)

	require.Empty(t, r.PendingLevels())
	require.Len(t, r.PendingSuperiors(), 1)

	res = r.Commit(set)
	require.Equal(t, []string{"Auxiliar"}, res.Superiors)
	aux, _ := set.Get("Auxiliar")
	require.Equal(t, "Analista", aux.Superior)
}
