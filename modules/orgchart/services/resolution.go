package services

import (
	"github.com/iota-uz/orgchart/modules/orgchart/domain/position"
)

// Resolution accumulates superior and level choices across correction rounds.
type Resolution struct {
	superiors map[string]string
	levels    map[string]string
}

func NewResolution() *Resolution {
	return &Resolution{
		superiors: make(map[string]string),
		levels:    make(map[string]string),
	}
}

// RecordSuperiorChoice stores a pending superior for name. A placeholder choice
// clears the pending entry.
func (r *Resolution) RecordSuperiorChoice(set *position.Set, name, superior string) error {
	name = position.Clean(name)
	if !set.Has(name) {
		return &UnresolvedReference{Kind: RefPosition, Name: name}
	}
	superior = position.Clean(superior)
	if superior == "" {
		delete(r.superiors, name)
		return nil
	}
	if !set.Has(superior) {
		return &UnresolvedReference{Kind: RefSuperior, Name: superior}
	}
	if superior == name {
		return ErrSelfReference
	}
	r.superiors[name] = superior
	return nil
}

// RecordLevelChoice stores a pending level for name, normalized to its catalog label.
// A placeholder choice clears the pending entry.
func (r *Resolution) RecordLevelChoice(set *position.Set, catalog *position.Catalog, name, level string) error {
	name = position.Clean(name)
	if !set.Has(name) {
		return &UnresolvedReference{Kind: RefPosition, Name: name}
	}
	if position.IsPlaceholder(level) {
		delete(r.levels, name)
		return nil
	}
	l, ok := catalog.Resolve(level)
	if !ok {
		return &UnresolvedReference{Kind: RefLevel, Name: position.Clean(level)}
	}
	r.levels[name] = l.Label
	return nil
}

func (r *Resolution) PendingSuperiors() map[string]string {
	return copyChoices(r.superiors)
}

func (r *Resolution) PendingLevels() map[string]string {
	return copyChoices(r.levels)
}

// SuperiorsComplete reports whether every missing name has a pending choice.
func (r *Resolution) SuperiorsComplete(missing []string) bool {
	return covered(r.superiors, missing) >= len(missing)
}

// LevelsComplete reports whether every missing name has a pending choice.
func (r *Resolution) LevelsComplete(missing []string) bool {
	return covered(r.levels, missing) >= len(missing)
}

type CommitResult struct {
	Levels    []string `json:"levels"`
	Superiors []string `json:"superiors"`
	Updated   int      `json:"updated"`
}

// Commit applies pending choices for the given fields (all when none are given) to
// set, only where the stored value is still unassigned, then clears those pending
// choices. Positions are visited in set order.
func (r *Resolution) Commit(set *position.Set, fields ...position.Field) CommitResult {
	applyLevels, applySuperiors := len(fields) == 0, len(fields) == 0
	for _, f := range fields {
		switch f {
		case position.FieldLevel:
			applyLevels = true
		case position.FieldSuperior:
			applySuperiors = true
		}
	}

	res := CommitResult{Levels: []string{}, Superiors: []string{}}
	updated := make(map[string]struct{})
	for _, p := range set.All() {
		if applyLevels && !p.HasLevel() {
			if l, ok := r.levels[p.Name]; ok {
				set.SetLevel(p.Name, l)
				res.Levels = append(res.Levels, p.Name)
				updated[p.Name] = struct{}{}
			}
		}
		if applySuperiors && !p.HasSuperior() {
			if s, ok := r.superiors[p.Name]; ok && set.Has(s) {
				set.SetSuperior(p.Name, s)
				res.Superiors = append(res.Superiors, p.Name)
				updated[p.Name] = struct{}{}
			}
		}
	}
	if applyLevels {
		r.levels = make(map[string]string)
	}
	if applySuperiors {
		r.superiors = make(map[string]string)
	}
	res.Updated = len(updated)
	return res
}

func (r *Resolution) Reset() {
	r.superiors = make(map[string]string)
	r.levels = make(map[string]string)
}

func (r *Resolution) clone() *Resolution {
	return &Resolution{superiors: copyChoices(r.superiors), levels: copyChoices(r.levels)}
}

func covered(choices map[string]string, missing []string) int {
	n := 0
	for _, name := range missing {
		if _, ok := choices[name]; ok {
			n++
		}
	}
	return n
}

func copyChoices(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
