package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/iota-uz/orgchart/modules/orgchart/domain/kpi"
	"github.com/iota-uz/orgchart/modules/orgchart/domain/position"
	"github.com/iota-uz/orgchart/modules/orgchart/domain/roster"
)

type memoryTxKey struct{}

type memoryState struct {
	positions   []position.Position
	kpis        []kpi.KPI
	assignments []kpi.Assignment
	indicators  map[string]struct{}
	metadata    map[kpi.MetadataKey]kpi.Metadata
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		positions:   make([]position.Position, len(s.positions)),
		kpis:        append([]kpi.KPI(nil), s.kpis...),
		assignments: append([]kpi.Assignment(nil), s.assignments...),
		indicators:  make(map[string]struct{}, len(s.indicators)),
		metadata:    make(map[kpi.MetadataKey]kpi.Metadata, len(s.metadata)),
	}
	for i, p := range s.positions {
		p.KPIs = append([]string(nil), p.KPIs...)
		out.positions[i] = p
	}
	for k := range s.indicators {
		out.indicators[k] = struct{}{}
	}
	for k, v := range s.metadata {
		out.metadata[k] = v
	}
	return out
}

// MemoryRepository keeps the roster in process memory. A transaction snapshots the
// state and restores it when the callback fails.
type MemoryRepository struct {
	txMu  sync.Mutex
	mu    sync.Mutex
	state memoryState
}

func NewMemoryRepository() roster.Repository {
	return &MemoryRepository{
		state: memoryState{
			indicators: make(map[string]struct{}),
			metadata:   make(map[kpi.MetadataKey]kpi.Metadata),
		},
	}
}

func (r *MemoryRepository) InTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if ctx.Value(memoryTxKey{}) != nil {
		return fn(ctx)
	}
	r.txMu.Lock()
	defer r.txMu.Unlock()

	r.mu.Lock()
	snapshot := r.state.clone()
	r.mu.Unlock()

	if err := fn(context.WithValue(ctx, memoryTxKey{}, true)); err != nil {
		r.mu.Lock()
		r.state = snapshot
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *MemoryRepository) positionIdx(name string) int {
	for i, p := range r.state.positions {
		if p.Name == name {
			return i
		}
	}
	return -1
}

func (r *MemoryRepository) GetPosition(_ context.Context, name string) (position.Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.positionIdx(name)
	if i < 0 {
		return position.Position{}, roster.ErrNotFound
	}
	p := r.state.positions[i]
	p.KPIs = append([]string(nil), p.KPIs...)
	return p, nil
}

func (r *MemoryRepository) UpsertPosition(_ context.Context, p position.Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.KPIs = append([]string(nil), p.KPIs...)
	if i := r.positionIdx(p.Name); i >= 0 {
		r.state.positions[i] = p
		return nil
	}
	r.state.positions = append(r.state.positions, p)
	return nil
}

func (r *MemoryRepository) ListPositions(_ context.Context) ([]position.Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]position.Position, 0, len(r.state.positions))
	for _, p := range r.state.positions {
		p.KPIs = append([]string(nil), p.KPIs...)
		out = append(out, p)
	}
	return out, nil
}

func (r *MemoryRepository) ListPositionsMissing(_ context.Context, field position.Field) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []string{}
	for _, p := range r.state.positions {
		switch field {
		case position.FieldLevel:
			if !p.HasLevel() {
				out = append(out, p.Name)
			}
		case position.FieldSuperior:
			if !p.HasSuperior() {
				out = append(out, p.Name)
			}
		}
	}
	return out, nil
}

func (r *MemoryRepository) DeletePosition(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.positionIdx(name)
	if i < 0 {
		return roster.ErrNotFound
	}
	r.state.positions = append(r.state.positions[:i], r.state.positions[i+1:]...)
	for j := range r.state.positions {
		if r.state.positions[j].Superior == name {
			r.state.positions[j].Superior = ""
		}
	}
	kept := r.state.assignments[:0]
	for _, a := range r.state.assignments {
		if a.Position != name {
			kept = append(kept, a)
		}
	}
	r.state.assignments = kept
	return nil
}

func (r *MemoryRepository) kpiIdx(name string) int {
	for i, k := range r.state.kpis {
		if k.Name == name {
			return i
		}
	}
	return -1
}

func (r *MemoryRepository) GetKpi(_ context.Context, name string) (kpi.KPI, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.kpiIdx(name)
	if i < 0 {
		return kpi.KPI{}, roster.ErrNotFound
	}
	return r.state.kpis[i], nil
}

func (r *MemoryRepository) UpsertKpi(_ context.Context, k kpi.KPI) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.kpiIdx(k.Name); i >= 0 {
		r.state.kpis[i] = k
		return nil
	}
	r.state.kpis = append(r.state.kpis, k)
	return nil
}

func (r *MemoryRepository) ListKpis(_ context.Context) ([]kpi.KPI, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]kpi.KPI{}, r.state.kpis...), nil
}

func (r *MemoryRepository) DeleteKpi(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.kpiIdx(name)
	if i < 0 {
		return roster.ErrNotFound
	}
	r.state.kpis = append(r.state.kpis[:i], r.state.kpis[i+1:]...)
	kept := r.state.assignments[:0]
	for _, a := range r.state.assignments {
		if a.KPI != name {
			kept = append(kept, a)
		}
	}
	r.state.assignments = kept
	return nil
}

func (r *MemoryRepository) ListAssignments(_ context.Context, positionName string) ([]kpi.Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []kpi.Assignment{}
	for _, a := range r.state.assignments {
		if a.Position == positionName {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *MemoryRepository) ListAllAssignments(_ context.Context) ([]kpi.Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]kpi.Assignment{}, r.state.assignments...), nil
}

func (r *MemoryRepository) UpsertAssignment(_ context.Context, a kpi.Assignment) (kpi.Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.positionIdx(a.Position) < 0 {
		return kpi.Assignment{}, &ReferenceError{Table: "positions", Name: a.Position}
	}
	if r.kpiIdx(a.KPI) < 0 {
		return kpi.Assignment{}, &ReferenceError{Table: "kpis", Name: a.KPI}
	}
	for i, existing := range r.state.assignments {
		if existing.Key() == a.Key() {
			r.state.assignments[i].Weight = a.Weight
			return r.state.assignments[i], nil
		}
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	r.state.assignments = append(r.state.assignments, a)
	return a, nil
}

func (r *MemoryRepository) DeleteAssignment(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, a := range r.state.assignments {
		if a.ID == id {
			r.state.assignments = append(r.state.assignments[:i], r.state.assignments[i+1:]...)
			return nil
		}
	}
	return roster.ErrNotFound
}

func (r *MemoryRepository) ListStrategicIndicators(_ context.Context) ([]kpi.StrategicIndicator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]kpi.StrategicIndicator, 0, len(r.state.indicators))
	for name := range r.state.indicators {
		out = append(out, kpi.StrategicIndicator{Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MemoryRepository) UpsertStrategicIndicator(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.indicators[name] = struct{}{}
	return nil
}

func (r *MemoryRepository) DeleteStrategicIndicator(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.state.indicators, name)
	return nil
}

func (r *MemoryRepository) UpsertMetadata(_ context.Context, key kpi.MetadataKey, m kpi.Metadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.metadata[key] = m
	return nil
}

func (r *MemoryRepository) ListMetadata(_ context.Context) (map[kpi.MetadataKey]kpi.Metadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[kpi.MetadataKey]kpi.Metadata, len(r.state.metadata))
	for k, v := range r.state.metadata {
		out[k] = v
	}
	return out, nil
}

func (r *MemoryRepository) DeleteMetadata(_ context.Context, key kpi.MetadataKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.state.metadata, key)
	return nil
}
