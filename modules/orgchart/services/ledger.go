package services

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/orgchart/modules/orgchart/domain/kpi"
	"github.com/iota-uz/orgchart/modules/orgchart/domain/position"
)

// PositionLookup answers whether a position name exists.
type PositionLookup interface {
	Has(name string) bool
}

// Ledger is the KPI catalog plus weighted position assignments. It is not safe for
// concurrent use; Session serializes access.
type Ledger struct {
	positions PositionLookup

	kpis   []kpi.KPI
	kpiIdx map[string]int

	indicators   []kpi.StrategicIndicator
	indicatorIdx map[string]struct{}

	order       []kpi.Key
	assignments map[kpi.Key]kpi.Assignment
}

func NewLedger(positions PositionLookup) *Ledger {
	if positions == nil {
		positions = position.NewSet()
	}
	return &Ledger{
		positions:    positions,
		kpiIdx:       make(map[string]int),
		indicatorIdx: make(map[string]struct{}),
		assignments:  make(map[kpi.Key]kpi.Assignment),
	}
}

func (l *Ledger) bind(positions PositionLookup) {
	l.positions = positions
}

// AddKpi inserts a KPI by exact name. An existing KPI is returned with created=false;
// its formula and strategic indicator are filled only when currently blank.
func (l *Ledger) AddKpi(ctx context.Context, name, formula, strategic string) (kpi.KPI, bool, error) {
	dto := KpiDTO{Name: name, Formula: formula, StrategicIndicator: strategic}
	if fields, ok := dto.Ok(); !ok {
		return kpi.KPI{}, false, &InvalidInputError{Fields: fields}
	}
	strategic = position.Clean(dto.StrategicIndicator)
	if strategic != "" {
		l.AddStrategicIndicator(strategic)
	}

	if i, ok := l.kpiIdx[dto.Name]; ok {
		existing := &l.kpis[i]
		if existing.Formula == "" && dto.Formula != "" {
			existing.Formula = dto.Formula
		}
		if existing.StrategicIndicator == "" && strategic != "" {
			existing.StrategicIndicator = strategic
		}
		logWithFields(ctx, logrus.DebugLevel, "orgchart.kpi.duplicate", logrus.Fields{
			"kpi": dto.Name,
		})
		return *existing, false, nil
	}

	k := kpi.KPI{Name: dto.Name, Formula: dto.Formula, StrategicIndicator: strategic}
	l.kpiIdx[k.Name] = len(l.kpis)
	l.kpis = append(l.kpis, k)
	return k, true, nil
}

// AddStrategicIndicator inserts name unless it already exists or is blank.
func (l *Ledger) AddStrategicIndicator(name string) (kpi.StrategicIndicator, bool) {
	name = position.Clean(name)
	if name == "" {
		return kpi.StrategicIndicator{}, false
	}
	si := kpi.StrategicIndicator{Name: name}
	if _, ok := l.indicatorIdx[name]; ok {
		return si, false
	}
	l.indicatorIdx[name] = struct{}{}
	l.indicators = append(l.indicators, si)
	return si, true
}

func (l *Ledger) KPI(name string) (kpi.KPI, bool) {
	i, ok := l.kpiIdx[name]
	if !ok {
		return kpi.KPI{}, false
	}
	return l.kpis[i], true
}

// KPIs returns the catalog in insertion order.
func (l *Ledger) KPIs() []kpi.KPI {
	return append([]kpi.KPI(nil), l.kpis...)
}

// StrategicIndicators returns indicators sorted by name.
func (l *Ledger) StrategicIndicators() []kpi.StrategicIndicator {
	out := append([]kpi.StrategicIndicator(nil), l.indicators...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Assign creates or updates the (position, kpi) assignment.
func (l *Ledger) Assign(positionName, kpiName string, weight int) (kpi.Assignment, error) {
	dto := AssignmentDTO{Position: positionName, KPI: kpiName, Weight: weight}
	if fields, ok := dto.Ok(); !ok {
		return kpi.Assignment{}, &InvalidInputError{Fields: fields}
	}
	if !l.positions.Has(dto.Position) {
		return kpi.Assignment{}, &UnresolvedReference{Kind: RefPosition, Name: dto.Position}
	}
	if _, ok := l.kpiIdx[dto.KPI]; !ok {
		return kpi.Assignment{}, &UnresolvedReference{Kind: RefKPI, Name: dto.KPI}
	}
	key := kpi.Key{Position: dto.Position, KPI: dto.KPI}
	if a, ok := l.assignments[key]; ok {
		a.Weight = dto.Weight
		l.assignments[key] = a
		return a, nil
	}
	a := kpi.Assignment{ID: uuid.New(), Position: dto.Position, KPI: dto.KPI, Weight: dto.Weight}
	l.put(a)
	return a, nil
}

func (l *Ledger) put(a kpi.Assignment) {
	key := a.Key()
	if _, ok := l.assignments[key]; !ok {
		l.order = append(l.order, key)
	}
	l.assignments[key] = a
}

// Unassign removes the assignment. The KPI stays in the catalog.
func (l *Ledger) Unassign(positionName, kpiName string) bool {
	key := kpi.Key{Position: positionName, KPI: kpiName}
	if _, ok := l.assignments[key]; !ok {
		return false
	}
	delete(l.assignments, key)
	for i, k := range l.order {
		if k == key {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return true
}

// Assignments returns the position's assignments in insertion order.
func (l *Ledger) Assignments(positionName string) []kpi.Assignment {
	var out []kpi.Assignment
	for _, k := range l.order {
		if k.Position == positionName {
			out = append(out, l.assignments[k])
		}
	}
	return out
}

func (l *Ledger) AllAssignments() []kpi.Assignment {
	out := make([]kpi.Assignment, 0, len(l.order))
	for _, k := range l.order {
		out = append(out, l.assignments[k])
	}
	return out
}

// ValidateWeights returns the position's weight sum and whether it is exactly 100.
func (l *Ledger) ValidateWeights(positionName string) (int, bool) {
	sum := kpi.TotalWeight(l.Assignments(positionName))
	return sum, sum == kpi.FullWeight
}

// DistributeStrategicIndicatorsToRoot assigns every strategic indicator to root as a
// KPI of the same name. Weights split 100 across all indicators sorted by name,
// the first ones taking the remainder. Indicators already assigned to root keep
// their weight. Returns the assignments created.
func (l *Ledger) DistributeStrategicIndicatorsToRoot(ctx context.Context, root string) ([]kpi.Assignment, error) {
	if !l.positions.Has(root) {
		return nil, &UnresolvedReference{Kind: RefPosition, Name: root}
	}
	indicators := l.StrategicIndicators()
	weights := kpi.EquitableWeights(len(indicators))

	var created []kpi.Assignment
	for i, si := range indicators {
		if _, ok := l.assignments[kpi.Key{Position: root, KPI: si.Name}]; ok {
			continue
		}
		if _, _, err := l.AddKpi(ctx, si.Name, "", si.Name); err != nil {
			return created, err
		}
		a, err := l.Assign(root, si.Name, weights[i])
		if err != nil {
			return created, err
		}
		created = append(created, a)
	}
	logWithFields(ctx, logrus.InfoLevel, "orgchart.strategic.distributed", logrus.Fields{
		"root":       root,
		"indicators": len(indicators),
		"created":    len(created),
	})
	return created, nil
}

func (l *Ledger) clone() *Ledger {
	out := NewLedger(l.positions)
	out.kpis = append([]kpi.KPI(nil), l.kpis...)
	for k, v := range l.kpiIdx {
		out.kpiIdx[k] = v
	}
	out.indicators = append([]kpi.StrategicIndicator(nil), l.indicators...)
	for k := range l.indicatorIdx {
		out.indicatorIdx[k] = struct{}{}
	}
	out.order = append([]kpi.Key(nil), l.order...)
	for k, v := range l.assignments {
		out.assignments[k] = v
	}
	return out
}
