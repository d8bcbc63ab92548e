package position

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsPlaceholder(t *testing.T) {
	for _, v := range []string{"", "  ", "N/A", "n/a", "nan", "None", "-- Seleccionar --"} {
		require.True(t, IsPlaceholder(v), v)
	}
	for _, v := range []string{"CEO", "0", "Gerente"} {
		require.False(t, IsPlaceholder(v), v)
	}
}

func TestSet_AddKeepsFirstAndDefaultsKPIs(t *testing.T) {
	s := NewSet()
	require.True(t, s.Add(Position{Name: " Gerente ", Superior: "N/A"}))
	require.False(t, s.Add(Position{Name: "Gerente", Superior: "CEO"}))
	require.False(t, s.Add(Position{Name: "  "}))

	p, ok := s.Get("Gerente")
	require.True(t, ok)
	require.Equal(t, "", p.Superior)
	require.Equal(t, []string{NoKPI}, p.KPIs)
	require.Equal(t, []string{"Gerente"}, s.Missing(FieldSuperior))
}

func TestSet_CloneIsIndependent(t *testing.T) {
	s := NewSet(Position{Name: "A"}, Position{Name: "B", Superior: "A"})
	c := s.Clone()
	require.True(t, c.SetSuperior("A", "B"))

	p, _ := s.Get("A")
	require.Equal(t, "", p.Superior)
	require.Equal(t, []string{"A", "B"}, c.Names())
}

func TestCatalog_Resolve(t *testing.T) {
	c := DefaultCatalog()

	l, ok := c.Resolve(" jefe  /  coordinador ")
	require.True(t, ok)
	require.Equal(t, 5, l.Rank)

	l, ok = c.Resolve("1.0")
	require.True(t, ok)
	require.Equal(t, "CEO", l.Label)

	_, ok = c.Resolve("N/A")
	require.False(t, ok)
	_, ok = c.Resolve("Becario")
	require.False(t, ok)

	require.True(t, c.IsTop("ceo"))
	require.True(t, c.IsTop("1"))
	require.False(t, c.IsTop("2"))
}

func TestCatalog_OptionsHideTopOnceRootExists(t *testing.T) {
	c := DefaultCatalog()
	require.Len(t, c.Options(false), 8)

	opts := c.Options(true)
	require.Len(t, opts, 7)
	require.Equal(t, "Vicepresidente", opts[0].Label)
}

func TestCatalog_WithObserved(t *testing.T) {
	c := DefaultCatalog().WithObserved([]string{"Gerente", "Becario", "", "N/A", "12"})
	levels := c.Levels()
	require.Len(t, levels, 10)
	require.Equal(t, Level{Label: "Becario", Rank: 9}, levels[8])
	require.Equal(t, Level{Label: "12", Rank: 12}, levels[9])

	// the receiver is untouched
	require.Len(t, DefaultCatalog().Levels(), 8)
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "levels.yaml")
	content := "levels:\n  - label: Director General\n    rank: 1\n  - label: Jefatura\n    rank: 2\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Equal(t, "Director General", c.Top().Label)
	require.True(t, c.IsTop("director general"))

	_, err = NewCatalog([]Level{{Label: "A", Rank: 1}, {Label: "a", Rank: 2}})
	require.Error(t, err)
}
