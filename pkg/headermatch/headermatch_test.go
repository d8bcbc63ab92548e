package headermatch

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	require.Equal(t, "niveljerarquico", Normalize(" Nivel  Jerárquico "))
	require.Equal(t, "formula", Normalize("FÓRMULA"))
	require.Equal(t, "alineadoarchivo", Normalize("Alineado (archivo)"))
	require.Equal(t, "area", Fold("Área"))
}

func TestResolve_ExactIgnoresCaseAndAccents(t *testing.T) {
	header := []string{"CARGO", "Responde al cargo", "Nivel Jerarquico", "Indicador"}

	got, ok := Resolve(header, []string{"Nivel Jerárquico", "Level"})
	require.True(t, ok)
	require.Equal(t, "Nivel Jerarquico", got)

	got, ok = Resolve(header, []string{"Cargo"})
	require.True(t, ok)
	require.Equal(t, "CARGO", got)
}

func TestResolve_FuzzyFallbacks(t *testing.T) {
	got, ok := Resolve([]string{"Indicador KPI", "Peso"}, []string{"Indicador"})
	require.True(t, ok)
	require.Equal(t, "Indicador KPI", got)

	got, ok = Resolve([]string{"Cargo", "Nivel Jerárq."}, []string{"Nivel Jerárquico"})
	require.True(t, ok)
	require.Equal(t, "Nivel Jerárq.", got)

	_, ok = Resolve([]string{"Cargo", "Peso"}, []string{"Nivel Jerárquico"})
	require.False(t, ok)
}

func TestMatcher_DoesNotReuseClaimedHeaders(t *testing.T) {
	m := New([]string{"Cargo", "Responde al Cargo"})

	i, ok := m.Exact([]string{"Responde al Cargo"})
	require.True(t, ok)
	require.Equal(t, 1, i)

	i, ok = m.Exact([]string{"Cargo"})
	require.True(t, ok)
	require.Equal(t, 0, i)

	_, ok = m.Fuzzy([]string{"Cargo"})
	require.False(t, ok)
}
