package position

import (
	"strings"
)

// NoKPI is the display entry of a position that carries no indicator.
const NoKPI = "N/A"

// SelectPlaceholder is the option a form shows before the user picks a value.
const SelectPlaceholder = "-- Seleccionar --"

var placeholders = map[string]struct{}{
	"":                  {},
	"n/a":               {},
	"nan":               {},
	"none":              {},
	"-- seleccionar --": {},
}

// IsPlaceholder reports whether v stands for "unassigned".
func IsPlaceholder(v string) bool {
	_, ok := placeholders[strings.ToLower(strings.TrimSpace(v))]
	return ok
}

// Clean trims v and collapses every placeholder spelling to "".
func Clean(v string) string {
	v = strings.TrimSpace(v)
	if IsPlaceholder(v) {
		return ""
	}
	return v
}

type Field string

const (
	FieldLevel    Field = "level"
	FieldSuperior Field = "superior"
)

func (f Field) Valid() bool {
	return f == FieldLevel || f == FieldSuperior
}

// Position is one organizational role. Empty Superior or Level means unassigned. A
// Superior equal to Name marks a root and otherwise counts as unassigned.
type Position struct {
	Name     string   `json:"name"`
	Superior string   `json:"superior,omitempty"`
	Level    string   `json:"level,omitempty"`
	KPIs     []string `json:"kpis"`
}

func (p Position) HasSuperior() bool { return p.Superior != "" && p.Superior != p.Name }

// SelfReferenced reports whether the position names itself as superior.
func (p Position) SelfReferenced() bool { return p.Superior != "" && p.Superior == p.Name }

func (p Position) HasLevel() bool { return p.Level != "" }

func (p Position) clone() Position {
	out := p
	out.KPIs = append([]string(nil), p.KPIs...)
	return out
}

// Set is an ordered arena of positions keyed by name.
type Set struct {
	order  []string
	byName map[string]*Position
}

func NewSet(positions ...Position) *Set {
	s := &Set{byName: make(map[string]*Position, len(positions))}
	for _, p := range positions {
		s.Add(p)
	}
	return s
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Add inserts p unless a position with the same name exists.
func (s *Set) Add(p Position) bool {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return false
	}
	if s.byName == nil {
		s.byName = make(map[string]*Position)
	}
	if _, ok := s.byName[p.Name]; ok {
		return false
	}
	p.Superior = Clean(p.Superior)
	p.Level = Clean(p.Level)
	cp := p.clone()
	if len(cp.KPIs) == 0 {
		cp.KPIs = []string{NoKPI}
	}
	s.byName[p.Name] = &cp
	s.order = append(s.order, p.Name)
	return true
}

func (s *Set) Has(name string) bool {
	if s == nil {
		return false
	}
	_, ok := s.byName[strings.TrimSpace(name)]
	return ok
}

func (s *Set) Get(name string) (Position, bool) {
	if s == nil {
		return Position{}, false
	}
	p, ok := s.byName[strings.TrimSpace(name)]
	if !ok {
		return Position{}, false
	}
	return p.clone(), true
}

// Names returns position names in insertion order.
func (s *Set) Names() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.order...)
}

// All returns copies of every position in insertion order.
func (s *Set) All() []Position {
	if s == nil {
		return nil
	}
	out := make([]Position, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.byName[name].clone())
	}
	return out
}

func (s *Set) SetSuperior(name, superior string) bool {
	p, ok := s.byName[strings.TrimSpace(name)]
	if !ok {
		return false
	}
	p.Superior = Clean(superior)
	return true
}

func (s *Set) SetLevel(name, level string) bool {
	p, ok := s.byName[strings.TrimSpace(name)]
	if !ok {
		return false
	}
	p.Level = Clean(level)
	return true
}

func (s *Set) SetKPIs(name string, kpis []string) bool {
	p, ok := s.byName[strings.TrimSpace(name)]
	if !ok {
		return false
	}
	p.KPIs = append([]string(nil), kpis...)
	if len(p.KPIs) == 0 {
		p.KPIs = []string{NoKPI}
	}
	return true
}

// Missing lists positions whose field is unassigned, in insertion order.
func (s *Set) Missing(field Field) []string {
	if s == nil {
		return nil
	}
	var out []string
	for _, name := range s.order {
		p := s.byName[name]
		switch field {
		case FieldLevel:
			if !p.HasLevel() {
				out = append(out, name)
			}
		case FieldSuperior:
			if !p.HasSuperior() {
				out = append(out, name)
			}
		}
	}
	return out
}

func (s *Set) Clone() *Set {
	if s == nil {
		return NewSet()
	}
	out := &Set{
		order:  append([]string(nil), s.order...),
		byName: make(map[string]*Position, len(s.byName)),
	}
	for name, p := range s.byName {
		cp := p.clone()
		out.byName[name] = &cp
	}
	return out
}
