package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/iota-uz/orgchart/modules/orgchart/domain/kpi"
	"github.com/iota-uz/orgchart/modules/orgchart/domain/position"
	"github.com/iota-uz/orgchart/modules/orgchart/domain/roster"
	"github.com/iota-uz/orgchart/pkg/composables"
)

// PgRepository stores the roster in PostgreSQL. Queries join the pgx transaction
// carried by the context, falling back to the pool.
type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// OpenPostgres connects to dsn and applies the migrations.
func OpenPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, gerrors.Wrap(err, "connect postgres")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, gerrors.Wrap(err, "ping postgres")
	}
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	if _, err := Migrate(ctx, db, goose.DialectPostgres); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func (r *PgRepository) q(ctx context.Context) (composables.Querier, error) {
	if _, err := composables.UsePool(ctx); err != nil {
		ctx = composables.WithPool(ctx, r.pool)
	}
	return composables.UseTx(ctx)
}

func (r *PgRepository) InTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if _, err := composables.UsePool(ctx); err != nil {
		ctx = composables.WithPool(ctx, r.pool)
	}
	return composables.InTx(ctx, fn)
}

func (r *PgRepository) GetPosition(ctx context.Context, name string) (position.Position, error) {
	q, err := r.q(ctx)
	if err != nil {
		return position.Position{}, err
	}
	p, err := scanPgPosition(q.QueryRow(ctx,
		`SELECT name, superior, level, kpis FROM positions WHERE name = $1`, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return position.Position{}, roster.ErrNotFound
	}
	return p, err
}

func scanPgPosition(row pgx.Row) (position.Position, error) {
	var (
		p        position.Position
		superior *string
		level    *string
		kpisJSON []byte
	)
	if err := row.Scan(&p.Name, &superior, &level, &kpisJSON); err != nil {
		return position.Position{}, err
	}
	if superior != nil {
		p.Superior = *superior
	}
	if level != nil {
		p.Level = *level
	}
	if err := json.Unmarshal(kpisJSON, &p.KPIs); err != nil {
		return position.Position{}, gerrors.Wrapf(err, "decode kpis of %q", p.Name)
	}
	return p, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *PgRepository) UpsertPosition(ctx context.Context, p position.Position) error {
	q, err := r.q(ctx)
	if err != nil {
		return err
	}
	kpisJSON, err := encodeKPIs(p.KPIs)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `
		INSERT INTO positions (name, superior, level, kpis) VALUES ($1, $2, $3, $4::jsonb)
		ON CONFLICT (name) DO UPDATE SET
			superior = EXCLUDED.superior,
			level = EXCLUDED.level,
			kpis = EXCLUDED.kpis`,
		p.Name, optional(p.Superior), optional(p.Level), kpisJSON)
	if err != nil {
		return gerrors.Wrapf(mapPgError(err, "positions", p.Name), "upsert position %q", p.Name)
	}
	return nil
}

func (r *PgRepository) ListPositions(ctx context.Context) ([]position.Position, error) {
	q, err := r.q(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, `SELECT name, superior, level, kpis FROM positions ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []position.Position{}
	for rows.Next() {
		p, err := scanPgPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PgRepository) ListPositionsMissing(ctx context.Context, field position.Field) ([]string, error) {
	var where string
	switch field {
	case position.FieldLevel:
		where = `level IS NULL OR level = ''`
	case position.FieldSuperior:
		// a self-reference counts as unassigned
		where = `superior IS NULL OR superior = '' OR superior = name`
	default:
		return nil, fmt.Errorf("unknown position field %q", field)
	}
	q, err := r.q(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx,
		`SELECT name FROM positions WHERE `+where+` ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *PgRepository) DeletePosition(ctx context.Context, name string) error {
	return r.InTx(ctx, func(txCtx context.Context) error {
		q, err := r.q(txCtx)
		if err != nil {
			return err
		}
		tag, err := q.Exec(txCtx, `DELETE FROM positions WHERE name = $1`, name)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return roster.ErrNotFound
		}
		_, err = q.Exec(txCtx, `UPDATE positions SET superior = NULL WHERE superior = $1`, name)
		return err
	})
}

func (r *PgRepository) GetKpi(ctx context.Context, name string) (kpi.KPI, error) {
	q, err := r.q(ctx)
	if err != nil {
		return kpi.KPI{}, err
	}
	var k kpi.KPI
	err = q.QueryRow(ctx, `SELECT name, formula, strategic_indicator FROM kpis WHERE name = $1`, name).
		Scan(&k.Name, &k.Formula, &k.StrategicIndicator)
	if errors.Is(err, pgx.ErrNoRows) {
		return kpi.KPI{}, roster.ErrNotFound
	}
	return k, err
}

func (r *PgRepository) UpsertKpi(ctx context.Context, k kpi.KPI) error {
	q, err := r.q(ctx)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `
		INSERT INTO kpis (name, formula, strategic_indicator) VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET
			formula = EXCLUDED.formula,
			strategic_indicator = EXCLUDED.strategic_indicator`,
		k.Name, k.Formula, k.StrategicIndicator)
	if err != nil {
		return gerrors.Wrapf(mapPgError(err, "kpis", k.Name), "upsert kpi %q", k.Name)
	}
	return nil
}

func (r *PgRepository) ListKpis(ctx context.Context) ([]kpi.KPI, error) {
	q, err := r.q(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, `SELECT name, formula, strategic_indicator FROM kpis ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []kpi.KPI{}
	for rows.Next() {
		var k kpi.KPI
		if err := rows.Scan(&k.Name, &k.Formula, &k.StrategicIndicator); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (r *PgRepository) DeleteKpi(ctx context.Context, name string) error {
	q, err := r.q(ctx)
	if err != nil {
		return err
	}
	tag, err := q.Exec(ctx, `DELETE FROM kpis WHERE name = $1`, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return roster.ErrNotFound
	}
	return nil
}

func collectPgAssignments(rows pgx.Rows) ([]kpi.Assignment, error) {
	defer rows.Close()
	out := []kpi.Assignment{}
	for rows.Next() {
		var a kpi.Assignment
		if err := rows.Scan(&a.ID, &a.Position, &a.KPI, &a.Weight); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PgRepository) ListAssignments(ctx context.Context, positionName string) ([]kpi.Assignment, error) {
	q, err := r.q(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx,
		`SELECT id, position, kpi, weight FROM assignments WHERE position = $1 ORDER BY seq`, positionName)
	if err != nil {
		return nil, err
	}
	return collectPgAssignments(rows)
}

func (r *PgRepository) ListAllAssignments(ctx context.Context) ([]kpi.Assignment, error) {
	q, err := r.q(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, `SELECT id, position, kpi, weight FROM assignments ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	return collectPgAssignments(rows)
}

func (r *PgRepository) UpsertAssignment(ctx context.Context, a kpi.Assignment) (kpi.Assignment, error) {
	q, err := r.q(ctx)
	if err != nil {
		return kpi.Assignment{}, err
	}
	for _, ref := range []struct{ table, name string }{{"positions", a.Position}, {"kpis", a.KPI}} {
		var found bool
		if err := q.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM `+ref.table+` WHERE name = $1)`, ref.name).Scan(&found); err != nil {
			return kpi.Assignment{}, err
		}
		if !found {
			return kpi.Assignment{}, &ReferenceError{Table: ref.table, Name: ref.name}
		}
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	var out kpi.Assignment
	err = q.QueryRow(ctx, `
		INSERT INTO assignments (id, position, kpi, weight) VALUES ($1, $2, $3, $4)
		ON CONFLICT ON CONSTRAINT assignments_position_kpi_key DO UPDATE SET weight = EXCLUDED.weight
		RETURNING id, position, kpi, weight`,
		a.ID, a.Position, a.KPI, a.Weight).
		Scan(&out.ID, &out.Position, &out.KPI, &out.Weight)
	if err != nil {
		return kpi.Assignment{}, gerrors.Wrapf(mapPgError(err, "assignments", a.Position), "upsert assignment %s/%s", a.Position, a.KPI)
	}
	return out, nil
}

func (r *PgRepository) DeleteAssignment(ctx context.Context, id uuid.UUID) error {
	q, err := r.q(ctx)
	if err != nil {
		return err
	}
	tag, err := q.Exec(ctx, `DELETE FROM assignments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return roster.ErrNotFound
	}
	return nil
}

func (r *PgRepository) ListStrategicIndicators(ctx context.Context) ([]kpi.StrategicIndicator, error) {
	q, err := r.q(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, `SELECT name FROM strategic_indicators ORDER BY name`)
	if err != nil {
		return nil, err
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	out := make([]kpi.StrategicIndicator, 0, len(names))
	for _, n := range names {
		out = append(out, kpi.StrategicIndicator{Name: n})
	}
	return out, nil
}

func (r *PgRepository) UpsertStrategicIndicator(ctx context.Context, name string) error {
	q, err := r.q(ctx)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `INSERT INTO strategic_indicators (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name)
	return err
}

func (r *PgRepository) DeleteStrategicIndicator(ctx context.Context, name string) error {
	q, err := r.q(ctx)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `DELETE FROM strategic_indicators WHERE name = $1`, name)
	return err
}

func (r *PgRepository) UpsertMetadata(ctx context.Context, key kpi.MetadataKey, m kpi.Metadata) error {
	q, err := r.q(ctx)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `
		INSERT INTO kpi_metadata (
			indicator, position, frequency, source, owner, target, direction,
			area, department, aligned_from_source, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (indicator, position) DO UPDATE SET
			frequency = EXCLUDED.frequency,
			source = EXCLUDED.source,
			owner = EXCLUDED.owner,
			target = EXCLUDED.target,
			direction = EXCLUDED.direction,
			area = EXCLUDED.area,
			department = EXCLUDED.department,
			aligned_from_source = EXCLUDED.aligned_from_source,
			notes = EXCLUDED.notes`,
		key.Indicator, key.Position, m.Frequency, m.Source, m.Owner, m.Target, m.Direction,
		m.Area, m.Department, m.AlignedFromSource, m.Notes)
	return err
}

func (r *PgRepository) ListMetadata(ctx context.Context) (map[kpi.MetadataKey]kpi.Metadata, error) {
	q, err := r.q(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, `
		SELECT indicator, position, frequency, source, owner, target, direction,
			area, department, aligned_from_source, notes
		FROM kpi_metadata`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[kpi.MetadataKey]kpi.Metadata)
	for rows.Next() {
		var (
			k kpi.MetadataKey
			m kpi.Metadata
		)
		if err := rows.Scan(&k.Indicator, &k.Position, &m.Frequency, &m.Source, &m.Owner, &m.Target,
			&m.Direction, &m.Area, &m.Department, &m.AlignedFromSource, &m.Notes); err != nil {
			return nil, err
		}
		out[k] = m
	}
	return out, rows.Err()
}

func (r *PgRepository) DeleteMetadata(ctx context.Context, key kpi.MetadataKey) error {
	q, err := r.q(ctx)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `DELETE FROM kpi_metadata WHERE indicator = $1 AND position = $2`, key.Indicator, key.Position)
	return err
}

var _ roster.Repository = (*PgRepository)(nil)
