package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/orgchart/modules/orgchart/domain/kpi"
	"github.com/iota-uz/orgchart/modules/orgchart/domain/position"
	"github.com/iota-uz/orgchart/modules/orgchart/domain/roster"
)

type Stage string

const (
	StageAwaitingImport              Stage = "awaiting_import"
	StageAwaitingLevels              Stage = "awaiting_levels"
	StageAwaitingSuperiors           Stage = "awaiting_superiors"
	StageAwaitingStrategicAssignment Stage = "awaiting_strategic_assignment"
	StageReady                       Stage = "ready"
)

type SessionOption func(*Session)

// WithLevelCatalog replaces the built-in level catalog.
func WithLevelCatalog(c *position.Catalog) SessionOption {
	return func(s *Session) {
		if c != nil {
			s.baseCatalog = c
		}
	}
}

func WithRootKeyword(keyword string) SessionOption {
	return func(s *Session) {
		s.opts.RootKeyword = keyword
	}
}

// Session is the single editing session over one imported roster. Every mutation
// is applied to a copy, persisted in one repository transaction and only then
// swapped in, so a failed write leaves both storage and memory as they were.
type Session struct {
	mu   sync.Mutex
	repo roster.Repository
	opts ValidateOptions

	baseCatalog *position.Catalog
	catalog     *position.Catalog

	sourceID   string
	set        *position.Set
	resolution *Resolution
	ledger     *Ledger
	metadata   map[kpi.MetadataKey]kpi.Metadata
}

func NewSession(repo roster.Repository, opts ...SessionOption) *Session {
	s := &Session{
		repo:        repo,
		opts:        ValidateOptions{RootKeyword: DefaultRootKeyword},
		baseCatalog: position.DefaultCatalog(),
		resolution:  NewResolution(),
		metadata:    make(map[kpi.MetadataKey]kpi.Metadata),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.catalog = s.baseCatalog
	s.ledger = NewLedger(position.NewSet())
	return s
}

// LoadSession rebuilds a session from what the repository holds.
func LoadSession(ctx context.Context, repo roster.Repository, opts ...SessionOption) (*Session, error) {
	s := NewSession(repo, opts...)

	positions, err := repo.ListPositions(ctx)
	if err != nil {
		return nil, err
	}
	if len(positions) == 0 {
		return s, nil
	}
	set := position.NewSet(positions...)
	ledger := NewLedger(set)

	kpis, err := repo.ListKpis(ctx)
	if err != nil {
		return nil, err
	}
	for _, k := range kpis {
		ledger.kpiIdx[k.Name] = len(ledger.kpis)
		ledger.kpis = append(ledger.kpis, k)
	}
	indicators, err := repo.ListStrategicIndicators(ctx)
	if err != nil {
		return nil, err
	}
	for _, si := range indicators {
		ledger.AddStrategicIndicator(si.Name)
	}
	assignments, err := repo.ListAllAssignments(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range assignments {
		ledger.put(a)
	}
	metadata, err := repo.ListMetadata(ctx)
	if err != nil {
		return nil, err
	}

	levels := make([]string, 0, len(positions))
	for _, p := range positions {
		levels = append(levels, p.Level)
	}
	s.set = set
	s.ledger = ledger
	s.metadata = metadata
	s.catalog = s.baseCatalog.WithObserved(levels)

	logWithFields(ctx, logrus.InfoLevel, "orgchart.session.loaded", logrus.Fields{
		"positions":   set.Len(),
		"kpis":        len(kpis),
		"assignments": len(assignments),
	})
	return s, nil
}

type ImportResult struct {
	RunID       uuid.UUID        `json:"run_id"`
	SourceID    string           `json:"source_id"`
	Reused      bool             `json:"reused"`
	Rows        int              `json:"rows"`
	Positions   int              `json:"positions"`
	KPIs        int              `json:"kpis"`
	Assignments int              `json:"assignments"`
	Unbalanced  []WeightMismatch `json:"unbalanced,omitempty"`
	Report      Report           `json:"report"`
	Stage       Stage            `json:"stage"`
}

type importState struct {
	set      *position.Set
	catalog  *position.Catalog
	ledger   *Ledger
	metadata map[kpi.MetadataKey]kpi.Metadata
	report   Report
}

// prepare normalizes and validates rows without touching the session.
func (s *Session) prepare(ctx context.Context, rows []roster.Row) (*importState, error) {
	norm := Normalize(rows)
	catalog := s.baseCatalog.WithObserved(norm.Levels)

	rep, err := Validate(norm.Positions, catalog, s.opts)
	if err != nil {
		var cyclic *CyclicHierarchyError
		if errors.As(err, &cyclic) {
			orgchartCyclesDetected.Add(float64(len(cyclic.Cycles)))
			logWithFields(ctx, logrus.WarnLevel, "orgchart.import.cyclic", logrus.Fields{
				"cycles": cyclic.Error(),
			})
		}
		return nil, err
	}

	ledger := NewLedger(norm.Positions)
	metadata := make(map[kpi.MetadataKey]kpi.Metadata)
	for _, seed := range norm.Seeds {
		if _, _, err := ledger.AddKpi(ctx, seed.Indicator, seed.Formula, seed.StrategicIndicator); err != nil {
			return nil, fmt.Errorf("line %d: %w", seed.Line, err)
		}
		if seed.Position != "" {
			if _, err := ledger.Assign(seed.Position, seed.Indicator, seed.Weight); err != nil {
				return nil, fmt.Errorf("line %d: %w", seed.Line, err)
			}
		}
		if seed.Meta.IsZero() {
			continue
		}
		for _, key := range []kpi.MetadataKey{
			{Indicator: seed.Indicator, Position: seed.Position},
			{Indicator: seed.Indicator},
		} {
			if _, ok := metadata[key]; !ok {
				metadata[key] = seed.Meta
			}
		}
	}
	return &importState{set: norm.Positions, catalog: catalog, ledger: ledger, metadata: metadata, report: rep}, nil
}

// Import replaces the session with rows read from sourceID. Importing the source
// that is already loaded keeps the session, pending choices included. Assignments
// are stored only for positions whose weights sum to 100; the rest are reported
// and kept as drafts.
func (s *Session) Import(ctx context.Context, sourceID string, rows []roster.Row) (ImportResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := ImportResult{RunID: uuid.New(), SourceID: sourceID, Rows: len(rows)}
	if sourceID != "" && sourceID == s.sourceID && s.set != nil {
		res.Reused = true
		res.Positions = s.set.Len()
		res.KPIs = len(s.ledger.KPIs())
		res.Assignments = len(s.ledger.AllAssignments())
		res.Report, _ = Validate(s.set, s.catalog, s.opts)
		res.Stage = s.stageLocked(res.Report)
		logWithFields(ctx, logrus.InfoLevel, "orgchart.import.reused", logrus.Fields{
			"run_id": res.RunID.String(),
			"source": sourceID,
		})
		return res, nil
	}

	st, err := s.prepare(ctx, rows)
	if err != nil {
		recordImportRows("rejected", len(rows))
		return res, err
	}

	err = s.repo.InTx(ctx, func(txCtx context.Context) error {
		unbalanced, err := s.replaceStored(txCtx, st)
		res.Unbalanced = unbalanced
		return err
	})
	if err != nil {
		recordImportRows("rejected", len(rows))
		logWithFields(ctx, logrus.ErrorLevel, "orgchart.import.failed", logrus.Fields{
			"run_id": res.RunID.String(),
			"source": sourceID,
			"error":  err.Error(),
		})
		return res, err
	}

	s.sourceID = sourceID
	s.set = st.set
	s.catalog = st.catalog
	s.ledger = st.ledger
	s.metadata = st.metadata
	s.resolution = NewResolution()

	res.Positions = st.set.Len()
	res.KPIs = len(st.ledger.KPIs())
	res.Assignments = len(st.ledger.AllAssignments())
	res.Report = st.report
	res.Stage = s.stageLocked(st.report)

	recordImportRows("accepted", len(rows))
	recordPending(len(st.report.MissingLevels), len(st.report.MissingSuperiors))
	logWithFields(ctx, logrus.InfoLevel, "orgchart.import.applied", logrus.Fields{
		"run_id":            res.RunID.String(),
		"source":            sourceID,
		"rows":              len(rows),
		"positions":         res.Positions,
		"kpis":              res.KPIs,
		"assignments":       res.Assignments,
		"unbalanced":        len(res.Unbalanced),
		"missing_levels":    len(st.report.MissingLevels),
		"missing_superiors": len(st.report.MissingSuperiors),
		"root":              st.report.Root,
	})
	for _, w := range st.report.Warnings {
		logWithFields(ctx, logrus.WarnLevel, "orgchart.import.warning", logrus.Fields{"warning": w})
	}
	return res, nil
}

// Preview runs an import without storing anything or changing the session.
func (s *Session) Preview(ctx context.Context, sourceID string, rows []roster.Row) (ImportResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := ImportResult{RunID: uuid.New(), SourceID: sourceID, Rows: len(rows)}
	st, err := s.prepare(ctx, rows)
	if err != nil {
		return res, err
	}
	res.Positions = st.set.Len()
	res.KPIs = len(st.ledger.KPIs())
	res.Assignments = len(st.ledger.AllAssignments())
	res.Report = st.report
	for _, name := range st.set.Names() {
		if sum, ok := st.ledger.ValidateWeights(name); !ok && len(st.ledger.Assignments(name)) > 0 {
			res.Unbalanced = append(res.Unbalanced, WeightMismatch{Position: name, Sum: sum})
		}
	}
	switch {
	case len(st.report.MissingLevels) > 0:
		res.Stage = StageAwaitingLevels
	case len(st.report.MissingSuperiors) > 0:
		res.Stage = StageAwaitingSuperiors
	default:
		res.Stage = StageReady
	}
	return res, nil
}

// replaceStored makes storage mirror st, dropping rows the new roster no longer has.
func (s *Session) replaceStored(ctx context.Context, st *importState) ([]WeightMismatch, error) {
	stored, err := s.repo.ListPositions(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range stored {
		if !st.set.Has(p.Name) {
			if err := s.repo.DeletePosition(ctx, p.Name); err != nil {
				return nil, err
			}
		}
	}
	for _, p := range st.set.All() {
		if err := s.repo.UpsertPosition(ctx, p); err != nil {
			return nil, err
		}
	}

	storedKpis, err := s.repo.ListKpis(ctx)
	if err != nil {
		return nil, err
	}
	for _, k := range storedKpis {
		if _, ok := st.ledger.KPI(k.Name); !ok {
			if err := s.repo.DeleteKpi(ctx, k.Name); err != nil {
				return nil, err
			}
		}
	}
	for _, k := range st.ledger.KPIs() {
		if err := s.repo.UpsertKpi(ctx, k); err != nil {
			return nil, err
		}
	}

	storedIndicators, err := s.repo.ListStrategicIndicators(ctx)
	if err != nil {
		return nil, err
	}
	keep := make(map[string]struct{})
	for _, si := range st.ledger.StrategicIndicators() {
		keep[si.Name] = struct{}{}
		if err := s.repo.UpsertStrategicIndicator(ctx, si.Name); err != nil {
			return nil, err
		}
	}
	for _, si := range storedIndicators {
		if _, ok := keep[si.Name]; !ok {
			if err := s.repo.DeleteStrategicIndicator(ctx, si.Name); err != nil {
				return nil, err
			}
		}
	}

	storedMeta, err := s.repo.ListMetadata(ctx)
	if err != nil {
		return nil, err
	}
	for key := range storedMeta {
		if _, ok := st.metadata[key]; !ok {
			if err := s.repo.DeleteMetadata(ctx, key); err != nil {
				return nil, err
			}
		}
	}
	for key, m := range st.metadata {
		if err := s.repo.UpsertMetadata(ctx, key, m); err != nil {
			return nil, err
		}
	}

	var unbalanced []WeightMismatch
	for _, name := range st.set.Names() {
		want := st.ledger.Assignments(name)
		sum, ok := st.ledger.ValidateWeights(name)
		if len(want) > 0 && !ok {
			unbalanced = append(unbalanced, WeightMismatch{Position: name, Sum: sum})
			want = nil
		}
		if err := s.syncAssignments(ctx, st.ledger, name, want); err != nil {
			return nil, err
		}
	}
	return unbalanced, nil
}

// syncAssignments makes the stored assignments of name equal want and records the
// stored ids back into ledger.
func (s *Session) syncAssignments(ctx context.Context, ledger *Ledger, name string, want []kpi.Assignment) error {
	stored, err := s.repo.ListAssignments(ctx, name)
	if err != nil {
		return err
	}
	wanted := make(map[kpi.Key]struct{}, len(want))
	for _, a := range want {
		wanted[a.Key()] = struct{}{}
	}
	for _, a := range stored {
		if _, ok := wanted[a.Key()]; !ok {
			if err := s.repo.DeleteAssignment(ctx, a.ID); err != nil {
				return err
			}
		}
	}
	for _, a := range want {
		if k, ok := ledger.KPI(a.KPI); ok {
			if err := s.repo.UpsertKpi(ctx, k); err != nil {
				return err
			}
		}
		saved, err := s.repo.UpsertAssignment(ctx, a)
		if err != nil {
			return err
		}
		ledger.put(saved)
	}
	return nil
}

func (s *Session) requireSourceLocked() error {
	if s.set == nil {
		return ErrNoSource
	}
	return nil
}

// RecordSuperiorChoice stores a pending superior for a position.
func (s *Session) RecordSuperiorChoice(dto ChoiceDTO) error {
	if fields, ok := dto.Ok(); !ok {
		return &InvalidInputError{Fields: fields}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireSourceLocked(); err != nil {
		return err
	}
	return s.resolution.RecordSuperiorChoice(s.set, dto.Position, dto.Value)
}

// RecordLevelChoice stores a pending level for a position.
func (s *Session) RecordLevelChoice(dto ChoiceDTO) error {
	if fields, ok := dto.Ok(); !ok {
		return &InvalidInputError{Fields: fields}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireSourceLocked(); err != nil {
		return err
	}
	return s.resolution.RecordLevelChoice(s.set, s.catalog, dto.Position, dto.Value)
}

// Commit applies pending choices for fields (all when none are given). It is
// refused while any requested field still has missing items without a choice.
func (s *Session) Commit(ctx context.Context, fields ...position.Field) (res CommitResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { recordCommit(err) }()

	if err := s.requireSourceLocked(); err != nil {
		return CommitResult{}, err
	}
	for _, f := range fields {
		if !f.Valid() {
			return CommitResult{}, &InvalidInputError{Fields: map[string]string{"Field": string(f)}}
		}
	}
	if len(fields) == 0 {
		fields = []position.Field{position.FieldLevel, position.FieldSuperior}
	}

	rep, _ := Validate(s.set, s.catalog, s.opts)
	for _, f := range fields {
		switch f {
		case position.FieldLevel:
			if !s.resolution.LevelsComplete(rep.MissingLevels) {
				return CommitResult{}, &ResolutionIncompleteError{
					Category: string(f),
					Pending:  covered(s.resolution.levels, rep.MissingLevels),
					Missing:  len(rep.MissingLevels),
				}
			}
		case position.FieldSuperior:
			if !s.resolution.SuperiorsComplete(rep.MissingSuperiors) {
				return CommitResult{}, &ResolutionIncompleteError{
					Category: string(f),
					Pending:  covered(s.resolution.superiors, rep.MissingSuperiors),
					Missing:  len(rep.MissingSuperiors),
				}
			}
		}
	}

	working := s.set.Clone()
	resolution := s.resolution.clone()
	res = resolution.Commit(working, fields...)

	if cycles := newCycles(FindCycles(s.set), FindCycles(working)); len(cycles) > 0 {
		orgchartCyclesDetected.Add(float64(len(cycles)))
		return CommitResult{}, &CyclicHierarchyError{Cycles: cycles}
	}

	changed := uniqueNames(res.Levels, res.Superiors)
	err = s.repo.InTx(ctx, func(txCtx context.Context) error {
		for _, name := range changed {
			p, _ := working.Get(name)
			if err := s.repo.UpsertPosition(txCtx, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logWithFields(ctx, logrus.ErrorLevel, "orgchart.commit.failed", logrus.Fields{"error": err.Error()})
		return CommitResult{}, err
	}

	s.set = working
	s.resolution = resolution
	s.ledger.bind(working)

	after, _ := Validate(s.set, s.catalog, s.opts)
	recordPositionsUpdated(string(position.FieldLevel), len(res.Levels))
	recordPositionsUpdated(string(position.FieldSuperior), len(res.Superiors))
	recordPending(len(after.MissingLevels), len(after.MissingSuperiors))
	logWithFields(ctx, logrus.InfoLevel, "orgchart.commit.applied", logrus.Fields{
		"updated":           res.Updated,
		"levels":            len(res.Levels),
		"superiors":         len(res.Superiors),
		"missing_levels":    len(after.MissingLevels),
		"missing_superiors": len(after.MissingSuperiors),
	})
	return res, nil
}

// ReassignSuperior re-points a position, overwriting any current superior. This is
// how a cycle gets broken. A placeholder superior clears it.
func (s *Session) ReassignSuperior(ctx context.Context, dto ChoiceDTO) error {
	if fields, ok := dto.Ok(); !ok {
		return &InvalidInputError{Fields: fields}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireSourceLocked(); err != nil {
		return err
	}
	if !s.set.Has(dto.Position) {
		return &UnresolvedReference{Kind: RefPosition, Name: dto.Position}
	}
	superior := position.Clean(dto.Value)
	if superior != "" {
		if !s.set.Has(superior) {
			return &UnresolvedReference{Kind: RefSuperior, Name: superior}
		}
		if superior == dto.Position {
			return ErrSelfReference
		}
	}

	working := s.set.Clone()
	working.SetSuperior(dto.Position, superior)
	if cycles := newCycles(FindCycles(s.set), FindCycles(working)); len(cycles) > 0 {
		orgchartCyclesDetected.Add(float64(len(cycles)))
		return &CyclicHierarchyError{Cycles: cycles}
	}
	return s.swapPositionLocked(ctx, working, dto.Position, "orgchart.superior.reassigned")
}

// ReassignLevel overwrites a position's level. A placeholder level clears it.
func (s *Session) ReassignLevel(ctx context.Context, dto ChoiceDTO) error {
	if fields, ok := dto.Ok(); !ok {
		return &InvalidInputError{Fields: fields}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireSourceLocked(); err != nil {
		return err
	}
	if !s.set.Has(dto.Position) {
		return &UnresolvedReference{Kind: RefPosition, Name: dto.Position}
	}
	level := ""
	if !position.IsPlaceholder(dto.Value) {
		l, ok := s.catalog.Resolve(dto.Value)
		if !ok {
			return &UnresolvedReference{Kind: RefLevel, Name: dto.Value}
		}
		level = l.Label
	}
	working := s.set.Clone()
	working.SetLevel(dto.Position, level)
	return s.swapPositionLocked(ctx, working, dto.Position, "orgchart.level.reassigned")
}

func (s *Session) swapPositionLocked(ctx context.Context, working *position.Set, name, event string) error {
	p, _ := working.Get(name)
	if err := s.repo.InTx(ctx, func(txCtx context.Context) error {
		return s.repo.UpsertPosition(txCtx, p)
	}); err != nil {
		return err
	}
	s.set = working
	s.ledger.bind(working)
	logWithFields(ctx, logrus.InfoLevel, event, logrus.Fields{
		"position": p.Name,
		"superior": p.Superior,
		"level":    p.Level,
	})
	return nil
}

// AddKpi adds a KPI to the catalog and stores it. An existing name is returned
// unchanged apart from filling a blank formula or strategic indicator.
func (s *Session) AddKpi(ctx context.Context, dto KpiDTO) (kpi.KPI, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ledger := s.ledger.clone()
	k, created, err := ledger.AddKpi(ctx, dto.Name, dto.Formula, dto.StrategicIndicator)
	if err != nil {
		return kpi.KPI{}, false, err
	}
	err = s.repo.InTx(ctx, func(txCtx context.Context) error {
		if k.StrategicIndicator != "" {
			if err := s.repo.UpsertStrategicIndicator(txCtx, k.StrategicIndicator); err != nil {
				return err
			}
		}
		return s.repo.UpsertKpi(txCtx, k)
	})
	if err != nil {
		return kpi.KPI{}, false, err
	}
	s.ledger = ledger
	return k, created, nil
}

// Assign drafts an assignment. Drafts reach storage through PersistAssignments.
func (s *Session) Assign(dto AssignmentDTO) (kpi.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireSourceLocked(); err != nil {
		return kpi.Assignment{}, err
	}
	return s.ledger.Assign(dto.Position, dto.KPI, dto.Weight)
}

// Unassign drops a drafted or stored assignment from the draft. The removal reaches
// storage with the next PersistAssignments of the position.
func (s *Session) Unassign(positionName, kpiName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireSourceLocked(); err != nil {
		return false, err
	}
	return s.ledger.Unassign(strings.TrimSpace(positionName), strings.TrimSpace(kpiName)), nil
}

// PersistAssignments saves the position's drafted assignments. A position left with
// no assignments is stored empty. Any other sum than exactly 100 is refused with
// *WeightMismatch and storage is left untouched.
func (s *Session) PersistAssignments(ctx context.Context, positionName string) ([]kpi.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireSourceLocked(); err != nil {
		return nil, err
	}
	positionName = strings.TrimSpace(positionName)
	if !s.set.Has(positionName) {
		return nil, &UnresolvedReference{Kind: RefPosition, Name: positionName}
	}
	if sum, ok := s.ledger.ValidateWeights(positionName); !ok && len(s.ledger.Assignments(positionName)) > 0 {
		orgchartWeightRejections.Inc()
		logWithFields(ctx, logrus.WarnLevel, "orgchart.assignments.rejected", logrus.Fields{
			"position": positionName,
			"sum":      sum,
		})
		return nil, &WeightMismatch{Position: positionName, Sum: sum}
	}

	ledger := s.ledger.clone()
	err := s.repo.InTx(ctx, func(txCtx context.Context) error {
		return s.syncAssignments(txCtx, ledger, positionName, ledger.Assignments(positionName))
	})
	if err != nil {
		return nil, err
	}
	s.ledger = ledger
	out := ledger.Assignments(positionName)
	logWithFields(ctx, logrus.InfoLevel, "orgchart.assignments.persisted", logrus.Fields{
		"position":    positionName,
		"assignments": len(out),
	})
	return out, nil
}

type DistributeResult struct {
	Root      string           `json:"root"`
	Created   []kpi.Assignment `json:"created"`
	Total     int              `json:"total"`
	Persisted bool             `json:"persisted"`
}

// DistributeStrategicIndicators assigns every strategic indicator to the root with
// equitable weights. Root assignments are stored when they sum to 100.
func (s *Session) DistributeStrategicIndicators(ctx context.Context) (DistributeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireSourceLocked(); err != nil {
		return DistributeResult{}, err
	}
	rep, _ := Validate(s.set, s.catalog, s.opts)
	if rep.Root == "" {
		return DistributeResult{}, ErrNoRoot
	}

	ledger := s.ledger.clone()
	created, err := ledger.DistributeStrategicIndicatorsToRoot(ctx, rep.Root)
	if err != nil {
		return DistributeResult{}, err
	}
	total, balanced := ledger.ValidateWeights(rep.Root)

	err = s.repo.InTx(ctx, func(txCtx context.Context) error {
		for _, si := range ledger.StrategicIndicators() {
			if err := s.repo.UpsertStrategicIndicator(txCtx, si.Name); err != nil {
				return err
			}
		}
		for _, a := range created {
			k, _ := ledger.KPI(a.KPI)
			if err := s.repo.UpsertKpi(txCtx, k); err != nil {
				return err
			}
		}
		if !balanced {
			return nil
		}
		return s.syncAssignments(txCtx, ledger, rep.Root, ledger.Assignments(rep.Root))
	})
	if err != nil {
		return DistributeResult{}, err
	}
	s.ledger = ledger
	return DistributeResult{Root: rep.Root, Created: created, Total: total, Persisted: balanced}, nil
}

// Validate reports pending items and structural problems of the current set.
func (s *Session) Validate() (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireSourceLocked(); err != nil {
		return Report{}, err
	}
	return Validate(s.set, s.catalog, s.opts)
}

func (s *Session) PendingMissingLevels() []string {
	rep, _ := s.Validate()
	return rep.MissingLevels
}

func (s *Session) PendingMissingSuperiors() []string {
	rep, _ := s.Validate()
	return rep.MissingSuperiors
}

func (s *Session) Tree() (*Tree, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireSourceLocked(); err != nil {
		return nil, err
	}
	rep, _ := Validate(s.set, s.catalog, s.opts)
	return BuildTree(s.set, s.ledger, rep.Root)
}

// Subtree returns the tree rooted at name, or the full tree when name is unknown.
func (s *Session) Subtree(name string) (*Tree, error) {
	t, err := s.Tree()
	if err != nil {
		return nil, err
	}
	return t.Subtree(name), nil
}

func (s *Session) Graph() (Graph, error) {
	t, err := s.Tree()
	if err != nil {
		return Graph{}, err
	}
	return t.Graph(), nil
}

func (s *Session) Positions() []position.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set.All()
}

// KpisForPosition returns the position's assignments, drafts included.
func (s *Session) KpisForPosition(name string) ([]kpi.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name = strings.TrimSpace(name)
	if !s.set.Has(name) {
		return nil, &UnresolvedReference{Kind: RefPosition, Name: name}
	}
	out := s.ledger.Assignments(name)
	if out == nil {
		out = []kpi.Assignment{}
	}
	return out, nil
}

// WeightTotal returns the position's weight sum and whether it equals 100.
func (s *Session) WeightTotal(name string) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name = strings.TrimSpace(name)
	if !s.set.Has(name) {
		return 0, false, &UnresolvedReference{Kind: RefPosition, Name: name}
	}
	sum, ok := s.ledger.ValidateWeights(name)
	return sum, ok, nil
}

func (s *Session) KPIs() []kpi.KPI {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.KPIs()
}

func (s *Session) StrategicIndicators() []kpi.StrategicIndicator {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.StrategicIndicators()
}

// Report builds the flat export of the current state.
func (s *Session) Report() []ReportRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return BuildReport(s.set, s.ledger, s.metadata)
}

// LevelOptions lists the level labels a form may offer; the top level is withheld
// once a root exists.
func (s *Session) LevelOptions() []position.Level {
	s.mu.Lock()
	defer s.mu.Unlock()
	rootExists := false
	if s.set != nil {
		rootExists = len(RootCandidates(s.set, s.catalog, s.opts.RootKeyword)) > 0
	}
	return s.catalog.Options(rootExists)
}

type Status struct {
	Stage             Stage      `json:"stage"`
	SourceID          string     `json:"source_id,omitempty"`
	Root              string     `json:"root,omitempty"`
	MissingLevels     []string   `json:"missing_levels"`
	MissingSuperiors  []string   `json:"missing_superiors"`
	PendingLevels     int        `json:"pending_levels"`
	PendingSuperiors  int        `json:"pending_superiors"`
	LevelsComplete    bool       `json:"levels_complete"`
	SuperiorsComplete bool       `json:"superiors_complete"`
	Cycles            [][]string `json:"cycles,omitempty"`
	Warnings          []string   `json:"warnings,omitempty"`
	Message           string     `json:"message"`
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set == nil {
		return Status{
			Stage:            StageAwaitingImport,
			MissingLevels:    []string{},
			MissingSuperiors: []string{},
			Message:          "no roster imported",
		}
	}
	rep, _ := Validate(s.set, s.catalog, s.opts)
	st := Status{
		Stage:             s.stageLocked(rep),
		SourceID:          s.sourceID,
		Root:              rep.Root,
		MissingLevels:     rep.MissingLevels,
		MissingSuperiors:  rep.MissingSuperiors,
		PendingLevels:     len(s.resolution.levels),
		PendingSuperiors:  len(s.resolution.superiors),
		LevelsComplete:    s.resolution.LevelsComplete(rep.MissingLevels),
		SuperiorsComplete: s.resolution.SuperiorsComplete(rep.MissingSuperiors),
		Cycles:            rep.Cycles,
		Warnings:          rep.Warnings,
	}
	st.Message = fmt.Sprintf("%d positions without level, %d positions without superior",
		len(rep.MissingLevels), len(rep.MissingSuperiors))
	if len(rep.Cycles) > 0 {
		st.Message += fmt.Sprintf(", %d cycles", len(rep.Cycles))
	}
	return st
}

func (s *Session) Stage() Stage {
	return s.Status().Stage
}

func (s *Session) stageLocked(rep Report) Stage {
	switch {
	case s.set == nil:
		return StageAwaitingImport
	case len(rep.MissingLevels) > 0:
		return StageAwaitingLevels
	case len(rep.MissingSuperiors) > 0 || len(rep.Cycles) > 0:
		return StageAwaitingSuperiors
	}
	if rep.Root != "" {
		for _, si := range s.ledger.StrategicIndicators() {
			if !s.hasAssignmentLocked(rep.Root, si.Name) {
				return StageAwaitingStrategicAssignment
			}
		}
	}
	return StageReady
}

func (s *Session) hasAssignmentLocked(positionName, kpiName string) bool {
	_, ok := s.ledger.assignments[kpi.Key{Position: positionName, KPI: kpiName}]
	return ok
}

func newCycles(before, after [][]string) [][]string {
	seen := make(map[string]struct{}, len(before))
	for _, c := range before {
		seen[strings.Join(c, "\x00")] = struct{}{}
	}
	var out [][]string
	for _, c := range after {
		if _, ok := seen[strings.Join(c, "\x00")]; !ok {
			out = append(out, c)
		}
	}
	return out
}

func uniqueNames(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, l := range lists {
		for _, n := range l {
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}
	return out
}
