package position

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Level is one entry of the hierarchy level catalog. Lower rank is higher in the chart.
type Level struct {
	Label string `yaml:"label" json:"label"`
	Rank  int    `yaml:"rank" json:"rank"`
}

// Catalog is the fixed set of recognized level labels.
type Catalog struct {
	levels []Level
}

var defaultLevels = []Level{
	{Label: "CEO", Rank: 1},
	{Label: "Vicepresidente", Rank: 2},
	{Label: "Gerente", Rank: 3},
	{Label: "Director", Rank: 4},
	{Label: "Jefe / Coordinador", Rank: 5},
	{Label: "Profesional / Analista", Rank: 6},
	{Label: "Asistente / Auxiliar", Rank: 7},
	{Label: "Operativo", Rank: 8},
}

func DefaultCatalog() *Catalog {
	c, _ := NewCatalog(defaultLevels)
	return c
}

func NewCatalog(levels []Level) (*Catalog, error) {
	if len(levels) == 0 {
		return nil, fmt.Errorf("level catalog is empty")
	}
	seen := make(map[string]struct{}, len(levels))
	out := make([]Level, 0, len(levels))
	for i, l := range levels {
		l.Label = strings.TrimSpace(l.Label)
		if l.Label == "" {
			return nil, fmt.Errorf("level %d: label is required", i+1)
		}
		if l.Rank <= 0 {
			return nil, fmt.Errorf("level %q: rank must be positive", l.Label)
		}
		k := levelKey(l.Label)
		if _, ok := seen[k]; ok {
			return nil, fmt.Errorf("level %q: duplicate label", l.Label)
		}
		seen[k] = struct{}{}
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return &Catalog{levels: out}, nil
}

type catalogFile struct {
	Levels []Level `yaml:"levels"`
}

// LoadCatalog reads a YAML catalog of the form `levels: [{label, rank}, ...]`.
func LoadCatalog(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read level catalog %s: %w", path, err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode level catalog %s: %w", path, err)
	}
	return NewCatalog(f.Levels)
}

func (c *Catalog) Levels() []Level {
	return append([]Level(nil), c.levels...)
}

// Top is the root-of-hierarchy level.
func (c *Catalog) Top() Level {
	return c.levels[0]
}

// Resolve matches v against a label (case and spacing ignored) or a rank number.
func (c *Catalog) Resolve(v string) (Level, bool) {
	k := levelKey(v)
	if k == "" || IsPlaceholder(v) {
		return Level{}, false
	}
	for _, l := range c.levels {
		if levelKey(l.Label) == k {
			return l, true
		}
	}
	if rank, ok := parseRank(k); ok {
		for _, l := range c.levels {
			if l.Rank == rank {
				return l, true
			}
		}
	}
	return Level{}, false
}

// IsTop reports whether v names the top level, either by label or by rank.
func (c *Catalog) IsTop(v string) bool {
	l, ok := c.Resolve(v)
	return ok && l.Rank == c.Top().Rank
}

// WithObserved returns a catalog extended with level values seen in imported data
// that the catalog does not recognize yet.
func (c *Catalog) WithObserved(values []string) *Catalog {
	out := &Catalog{levels: c.Levels()}
	maxRank := out.levels[len(out.levels)-1].Rank
	for _, v := range values {
		v = Clean(v)
		if v == "" {
			continue
		}
		if _, ok := out.Resolve(v); ok {
			continue
		}
		rank, numeric := parseRank(levelKey(v))
		if !numeric || rank <= maxRank {
			rank = maxRank + 1
		}
		maxRank = rank
		out.levels = append(out.levels, Level{Label: v, Rank: rank})
	}
	return out
}

// Options lists the labels a level form may offer. Once a root exists the top
// label is withheld so a second root cannot be picked by accident.
func (c *Catalog) Options(rootExists bool) []Level {
	out := make([]Level, 0, len(c.levels))
	top := c.Top().Rank
	for _, l := range c.levels {
		if rootExists && l.Rank == top {
			continue
		}
		out = append(out, l)
	}
	return out
}

func levelKey(v string) string {
	return strings.ToLower(strings.Join(strings.Fields(v), " "))
}

func parseRank(k string) (int, bool) {
	f, err := strconv.ParseFloat(k, 64)
	if err != nil || f != math.Trunc(f) || f <= 0 {
		return 0, false
	}
	return int(f), true
}
