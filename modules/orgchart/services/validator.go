package services

import (
	"fmt"
	"strings"

	"github.com/iota-uz/orgchart/modules/orgchart/domain/position"
	"github.com/iota-uz/orgchart/pkg/headermatch"
)

const DefaultRootKeyword = "ceo"

type ValidateOptions struct {
	// RootKeyword marks a superior-less position as root by name when no level
	// does. Matching ignores case and accents.
	RootKeyword string
}

// Report is the outcome of validating a position set. Missing lists exclude Root.
type Report struct {
	Root             string     `json:"root,omitempty"`
	RootCandidates   []string   `json:"root_candidates,omitempty"`
	MissingLevels    []string   `json:"missing_levels"`
	MissingSuperiors []string   `json:"missing_superiors"`
	Duplicates       [][]string `json:"duplicates,omitempty"`
	Cycles           [][]string `json:"cycles,omitempty"`
	Warnings         []string   `json:"warnings,omitempty"`
}

// Complete reports whether nothing is left to resolve.
func (r Report) Complete() bool {
	return len(r.MissingLevels) == 0 && len(r.MissingSuperiors) == 0 && len(r.Cycles) == 0
}

// Validate computes pending lists and structural problems. A non-nil error is a
// *CyclicHierarchyError; the report is filled in either case.
func Validate(set *position.Set, catalog *position.Catalog, opts ValidateOptions) (Report, error) {
	if catalog == nil {
		catalog = position.DefaultCatalog()
	}
	rep := Report{
		MissingLevels:    []string{},
		MissingSuperiors: []string{},
	}

	rep.RootCandidates = RootCandidates(set, catalog, opts.RootKeyword)
	if len(rep.RootCandidates) > 0 {
		rep.Root = rep.RootCandidates[0]
	}
	if len(rep.RootCandidates) > 1 {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf(
			"multiple root candidates: %s; %q is used as root", strings.Join(rep.RootCandidates, ", "), rep.Root))
	}

	for _, p := range set.All() {
		if p.Name == rep.Root {
			continue
		}
		if !p.HasLevel() {
			rep.MissingLevels = append(rep.MissingLevels, p.Name)
		}
		if !p.HasSuperior() {
			rep.MissingSuperiors = append(rep.MissingSuperiors, p.Name)
			if p.SelfReferenced() {
				rep.Warnings = append(rep.Warnings, fmt.Sprintf(
					"%q names itself as superior; only the root may, so its superior is pending", p.Name))
			}
		}
	}

	rep.Duplicates = DuplicateNames(set)
	for _, group := range rep.Duplicates {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("possible duplicate positions: %s", strings.Join(group, ", ")))
	}

	rep.Cycles = FindCycles(set)
	if len(rep.Cycles) > 0 {
		return rep, &CyclicHierarchyError{Cycles: rep.Cycles}
	}
	return rep, nil
}

// RootCandidates lists positions whose level is the catalog's top level. When none
// is found it falls back to superior-less positions whose name contains keyword.
func RootCandidates(set *position.Set, catalog *position.Catalog, keyword string) []string {
	var out []string
	for _, p := range set.All() {
		if p.HasLevel() && catalog.IsTop(p.Level) {
			out = append(out, p.Name)
		}
	}
	if len(out) > 0 {
		return out
	}
	keyword = headermatch.Fold(strings.TrimSpace(keyword))
	if keyword == "" {
		keyword = DefaultRootKeyword
	}
	for _, p := range set.All() {
		if !p.HasSuperior() && strings.Contains(headermatch.Fold(p.Name), keyword) {
			out = append(out, p.Name)
		}
	}
	return out
}

// DuplicateNames groups distinct names that collide after trimming, case folding and
// accent folding ("Gerente de Área" and "gerente de area").
func DuplicateNames(set *position.Set) [][]string {
	groups := make(map[string][]string)
	var order []string
	for _, name := range set.Names() {
		k := headermatch.Fold(strings.Join(strings.Fields(name), " "))
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], name)
	}
	var out [][]string
	for _, k := range order {
		if len(groups[k]) > 1 {
			out = append(out, groups[k])
		}
	}
	return out
}

// FindCycles walks every superior chain once. Each cycle is reported a single time,
// rotated to start at its lexically smallest member. A self-reference ends its chain
// like a missing superior and is not a cycle.
func FindCycles(set *position.Set) [][]string {
	const (
		unvisited = iota
		onPath
		done
	)
	state := make(map[string]int, set.Len())
	var cycles [][]string

	for _, start := range set.Names() {
		if state[start] != unvisited {
			continue
		}
		var path []string
		pathIdx := make(map[string]int)
		cur := start
		for {
			state[cur] = onPath
			pathIdx[cur] = len(path)
			path = append(path, cur)

			p, ok := set.Get(cur)
			if !ok || !p.HasSuperior() || !set.Has(p.Superior) {
				break
			}
			next := p.Superior
			if state[next] == onPath {
				cycles = append(cycles, rotateToMin(path[pathIdx[next]:]))
				break
			}
			if state[next] == done {
				break
			}
			cur = next
		}
		for _, n := range path {
			state[n] = done
		}
	}
	return cycles
}

func rotateToMin(cycle []string) []string {
	minIdx := 0
	for i, n := range cycle {
		if n < cycle[minIdx] {
			minIdx = i
		}
	}
	out := make([]string, 0, len(cycle))
	out = append(out, cycle[minIdx:]...)
	out = append(out, cycle[:minIdx]...)
	return out
}

// wouldCycle reports whether pointing name at superior closes a loop.
func wouldCycle(set *position.Set, name, superior string) bool {
	visited := map[string]struct{}{}
	cur := superior
	for cur != "" {
		if cur == name {
			return true
		}
		if _, ok := visited[cur]; ok {
			return false
		}
		visited[cur] = struct{}{}
		p, ok := set.Get(cur)
		if !ok {
			return false
		}
		cur = p.Superior
	}
	return false
}
