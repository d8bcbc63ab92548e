package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/iota-uz/orgchart/modules/orgchart/domain/kpi"
	"github.com/iota-uz/orgchart/modules/orgchart/domain/position"
	"github.com/iota-uz/orgchart/modules/orgchart/domain/roster"
	"github.com/iota-uz/orgchart/pkg/composables"
)

const memoryDSN = ":memory:"

type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteRepository stores the roster in a single SQLite file.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// OpenSQLite opens (creating when needed) the database at path and migrates it.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		path = memoryDSN
	}
	if path != memoryDSN {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	dsn := path
	if path != memoryDSN {
		// pragmas set through the DSN apply to every pooled connection
		dsn = "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == memoryDSN {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	if _, err := Migrate(ctx, db, goose.DialectSQLite3); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (r *SQLiteRepository) q(ctx context.Context) sqlQuerier {
	if tx, ok := composables.UseSQLTx(ctx); ok {
		return tx
	}
	return r.db
}

func (r *SQLiteRepository) InTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if _, ok := composables.UseSQLTx(ctx); ok {
		return fn(ctx)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return gerrors.Wrap(err, "begin")
	}
	if err := fn(composables.WithSQLTx(ctx, tx)); err != nil {
		if rErr := tx.Rollback(); rErr != nil {
			return errors.Join(err, rErr)
		}
		return err
	}
	return gerrors.Wrap(tx.Commit(), "commit")
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func scanPosition(scan func(dest ...any) error) (position.Position, error) {
	var (
		p        position.Position
		superior sql.NullString
		level    sql.NullString
		kpisJSON string
	)
	if err := scan(&p.Name, &superior, &level, &kpisJSON); err != nil {
		return position.Position{}, err
	}
	p.Superior = superior.String
	p.Level = level.String
	if err := json.Unmarshal([]byte(kpisJSON), &p.KPIs); err != nil {
		return position.Position{}, gerrors.Wrapf(err, "decode kpis of %q", p.Name)
	}
	return p, nil
}

func encodeKPIs(kpis []string) (string, error) {
	if kpis == nil {
		kpis = []string{}
	}
	b, err := json.Marshal(kpis)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *SQLiteRepository) GetPosition(ctx context.Context, name string) (position.Position, error) {
	row := r.q(ctx).QueryRowContext(ctx,
		`SELECT name, superior, level, kpis FROM positions WHERE name = ?`, name)
	p, err := scanPosition(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return position.Position{}, roster.ErrNotFound
	}
	return p, err
}

func (r *SQLiteRepository) UpsertPosition(ctx context.Context, p position.Position) error {
	kpisJSON, err := encodeKPIs(p.KPIs)
	if err != nil {
		return err
	}
	_, err = r.q(ctx).ExecContext(ctx, `
		INSERT INTO positions (name, superior, level, kpis) VALUES (?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			superior = excluded.superior,
			level = excluded.level,
			kpis = excluded.kpis`,
		p.Name, nullable(p.Superior), nullable(p.Level), kpisJSON)
	return gerrors.Wrapf(mapSQLiteError(err, "positions", p.Name), "upsert position %q", p.Name)
}

func (r *SQLiteRepository) ListPositions(ctx context.Context) ([]position.Position, error) {
	rows, err := r.q(ctx).QueryContext(ctx, `SELECT name, superior, level, kpis FROM positions ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []position.Position{}
	for rows.Next() {
		p, err := scanPosition(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) ListPositionsMissing(ctx context.Context, field position.Field) ([]string, error) {
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
	rows, err := r.q(ctx).QueryContext(ctx,
		`SELECT name FROM positions WHERE `+where+` ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrings(rows)
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) DeletePosition(ctx context.Context, name string) error {
	return r.InTx(ctx, func(txCtx context.Context) error {
		q := r.q(txCtx)
		res, err := q.ExecContext(txCtx, `DELETE FROM positions WHERE name = ?`, name)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return roster.ErrNotFound
		}
		_, err = q.ExecContext(txCtx, `UPDATE positions SET superior = NULL WHERE superior = ?`, name)
		return err
	})
}

func (r *SQLiteRepository) GetKpi(ctx context.Context, name string) (kpi.KPI, error) {
	var k kpi.KPI
	err := r.q(ctx).QueryRowContext(ctx,
		`SELECT name, formula, strategic_indicator FROM kpis WHERE name = ?`, name).
		Scan(&k.Name, &k.Formula, &k.StrategicIndicator)
	if errors.Is(err, sql.ErrNoRows) {
		return kpi.KPI{}, roster.ErrNotFound
	}
	return k, err
}

func (r *SQLiteRepository) UpsertKpi(ctx context.Context, k kpi.KPI) error {
	_, err := r.q(ctx).ExecContext(ctx, `
		INSERT INTO kpis (name, formula, strategic_indicator) VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			formula = excluded.formula,
			strategic_indicator = excluded.strategic_indicator`,
		k.Name, k.Formula, k.StrategicIndicator)
	return gerrors.Wrapf(mapSQLiteError(err, "kpis", k.Name), "upsert kpi %q", k.Name)
}

func (r *SQLiteRepository) ListKpis(ctx context.Context) ([]kpi.KPI, error) {
	rows, err := r.q(ctx).QueryContext(ctx, `SELECT name, formula, strategic_indicator FROM kpis ORDER BY seq`)
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

func (r *SQLiteRepository) DeleteKpi(ctx context.Context, name string) error {
	res, err := r.q(ctx).ExecContext(ctx, `DELETE FROM kpis WHERE name = ?`, name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return roster.ErrNotFound
	}
	return nil
}

func scanAssignments(rows *sql.Rows) ([]kpi.Assignment, error) {
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

func (r *SQLiteRepository) ListAssignments(ctx context.Context, positionName string) ([]kpi.Assignment, error) {
	rows, err := r.q(ctx).QueryContext(ctx,
		`SELECT id, position, kpi, weight FROM assignments WHERE position = ? ORDER BY seq`, positionName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAssignments(rows)
}

func (r *SQLiteRepository) ListAllAssignments(ctx context.Context) ([]kpi.Assignment, error) {
	rows, err := r.q(ctx).QueryContext(ctx, `SELECT id, position, kpi, weight FROM assignments ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAssignments(rows)
}

func (r *SQLiteRepository) exists(ctx context.Context, table, name string) (bool, error) {
	var one int
	err := r.q(ctx).QueryRowContext(ctx, `SELECT 1 FROM `+table+` WHERE name = ?`, name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (r *SQLiteRepository) UpsertAssignment(ctx context.Context, a kpi.Assignment) (kpi.Assignment, error) {
	for _, ref := range []struct{ table, name string }{{"positions", a.Position}, {"kpis", a.KPI}} {
		ok, err := r.exists(ctx, ref.table, ref.name)
		if err != nil {
			return kpi.Assignment{}, err
		}
		if !ok {
			return kpi.Assignment{}, &ReferenceError{Table: ref.table, Name: ref.name}
		}
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	var out kpi.Assignment
	err := r.q(ctx).QueryRowContext(ctx, `
		INSERT INTO assignments (id, position, kpi, weight) VALUES (?, ?, ?, ?)
		ON CONFLICT (position, kpi) DO UPDATE SET weight = excluded.weight
		RETURNING id, position, kpi, weight`,
		a.ID, a.Position, a.KPI, a.Weight).
		Scan(&out.ID, &out.Position, &out.KPI, &out.Weight)
	if err != nil {
		return kpi.Assignment{}, gerrors.Wrapf(mapSQLiteError(err, "assignments", a.Position), "upsert assignment %s/%s", a.Position, a.KPI)
	}
	return out, nil
}

func (r *SQLiteRepository) DeleteAssignment(ctx context.Context, id uuid.UUID) error {
	res, err := r.q(ctx).ExecContext(ctx, `DELETE FROM assignments WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return roster.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) ListStrategicIndicators(ctx context.Context) ([]kpi.StrategicIndicator, error) {
	rows, err := r.q(ctx).QueryContext(ctx, `SELECT name FROM strategic_indicators ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	names, err := scanStrings(rows)
	if err != nil {
		return nil, err
	}
	out := make([]kpi.StrategicIndicator, 0, len(names))
	for _, n := range names {
		out = append(out, kpi.StrategicIndicator{Name: n})
	}
	return out, nil
}

func (r *SQLiteRepository) UpsertStrategicIndicator(ctx context.Context, name string) error {
	_, err := r.q(ctx).ExecContext(ctx,
		`INSERT INTO strategic_indicators (name) VALUES (?) ON CONFLICT (name) DO NOTHING`, name)
	return err
}

func (r *SQLiteRepository) DeleteStrategicIndicator(ctx context.Context, name string) error {
	_, err := r.q(ctx).ExecContext(ctx, `DELETE FROM strategic_indicators WHERE name = ?`, name)
	return err
}

func (r *SQLiteRepository) UpsertMetadata(ctx context.Context, key kpi.MetadataKey, m kpi.Metadata) error {
	_, err := r.q(ctx).ExecContext(ctx, `
		INSERT INTO kpi_metadata (
			indicator, position, frequency, source, owner, target, direction,
			area, department, aligned_from_source, notes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (indicator, position) DO UPDATE SET
			frequency = excluded.frequency,
			source = excluded.source,
			owner = excluded.owner,
			target = excluded.target,
			direction = excluded.direction,
			area = excluded.area,
			department = excluded.department,
			aligned_from_source = excluded.aligned_from_source,
			notes = excluded.notes`,
		key.Indicator, key.Position, m.Frequency, m.Source, m.Owner, m.Target, m.Direction,
		m.Area, m.Department, m.AlignedFromSource, m.Notes)
	return err
}

func (r *SQLiteRepository) ListMetadata(ctx context.Context) (map[kpi.MetadataKey]kpi.Metadata, error) {
	rows, err := r.q(ctx).QueryContext(ctx, `
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

func (r *SQLiteRepository) DeleteMetadata(ctx context.Context, key kpi.MetadataKey) error {
	_, err := r.q(ctx).ExecContext(ctx,
		`DELETE FROM kpi_metadata WHERE indicator = ? AND position = ?`, key.Indicator, key.Position)
	return err
}

var _ roster.Repository = (*SQLiteRepository)(nil)
