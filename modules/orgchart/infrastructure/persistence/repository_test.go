package persistence

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/orgchart/modules/orgchart/domain/kpi"
	"github.com/iota-uz/orgchart/modules/orgchart/domain/position"
	"github.com/iota-uz/orgchart/modules/orgchart/domain/roster"
	"github.com/iota-uz/orgchart/pkg/configuration"
)

var errBoom = errors.New("boom")

func newTestSQLite(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "orgchart.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLiteRepository(db)
}

func TestMemoryRepository(t *testing.T) {
	runRepositoryContract(t, NewMemoryRepository())
}

func TestSQLiteRepository(t *testing.T) {
	runRepositoryContract(t, newTestSQLite(t))
}

func TestSQLiteRepository_InMemoryDSN(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(ctx, "")
	require.NoError(t, err)
	defer db.Close()

	repo := NewSQLiteRepository(db)
	require.NoError(t, repo.UpsertPosition(ctx, position.Position{Name: "CEO"}))
	got, err := repo.ListPositions(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestSQLiteRepository_MigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "orgchart.db")
	db, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer db.Close()
	n, err := Migrate(ctx, db, goose.DialectSQLite3)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestSQLiteRepository_InTxRollsBackOnExecError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO positions").WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	repo := NewSQLiteRepository(db)
	err = repo.InTx(context.Background(), func(txCtx context.Context) error {
		return repo.UpsertPosition(txCtx, position.Position{Name: "CEO"})
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "disk I/O error")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteRepository_InTxCommits(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO kpis").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO strategic_indicators").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	repo := NewSQLiteRepository(db)
	err = repo.InTx(context.Background(), func(txCtx context.Context) error {
		if err := repo.UpsertKpi(txCtx, kpi.KPI{Name: "Revenue"}); err != nil {
			return err
		}
		return repo.UpsertStrategicIndicator(txCtx, "Growth")
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMapSQLiteError(t *testing.T) {
	var refErr *ReferenceError
	require.ErrorAs(t, mapSQLiteError(errors.New("constraint failed: FOREIGN KEY constraint failed (787)"), "assignments", "Ops"), &refErr)
	require.Equal(t, "Ops", refErr.Name)

	var conflict *ConflictError
	require.ErrorAs(t, mapSQLiteError(errors.New("UNIQUE constraint failed: kpis.name"), "kpis", "x"), &conflict)

	require.NoError(t, mapSQLiteError(nil, "kpis", "x"))
	require.EqualError(t, mapSQLiteError(errBoom, "kpis", "x"), "boom")
}

func canDialPostgres(tb testing.TB) bool {
	tb.Helper()

	cfg := configuration.Use()
	addr := net.JoinHostPort(cfg.Database.Host, cfg.Database.Port)
	dialer := &net.Dialer{Timeout: 250 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

func TestPgRepository(t *testing.T) {
	if !canDialPostgres(t) {
		t.Skip("postgres is not reachable; skipping pg repository test")
	}
	ctx := context.Background()
	pool, err := OpenPostgres(ctx, configuration.Use().Database.Opts)
	require.NoError(t, err)
	defer pool.Close()

	_, err = pool.Exec(ctx, `TRUNCATE kpi_metadata, assignments, strategic_indicators, kpis, positions`)
	require.NoError(t, err)
	runRepositoryContract(t, NewPgRepository(pool))
}

func runRepositoryContract(t *testing.T, repo roster.Repository) {
	t.Helper()
	ctx := context.Background()

	for _, p := range []position.Position{
		{Name: "CEO", KPIs: []string{"Revenue"}},
		{Name: "Ops", Superior: "CEO"},
		{Name: "Clerk", Superior: "Ops", Level: "Operativo", KPIs: []string{"Accuracy"}},
	} {
		require.NoError(t, repo.UpsertPosition(ctx, p))
	}

	t.Run("positions keep insertion order", func(t *testing.T) {
		got, err := repo.ListPositions(ctx)
		require.NoError(t, err)
		require.Len(t, got, 3)
		require.Equal(t, []string{"CEO", "Ops", "Clerk"}, []string{got[0].Name, got[1].Name, got[2].Name})
		require.Equal(t, []string{"Accuracy"}, got[2].KPIs)

		require.NoError(t, repo.UpsertPosition(ctx, position.Position{Name: "CEO", Level: "Estratégico", KPIs: []string{"Revenue"}}))
		got, err = repo.ListPositions(ctx)
		require.NoError(t, err)
		require.Equal(t, "CEO", got[0].Name)
		require.Equal(t, "Estratégico", got[0].Level)
	})

	t.Run("missing fields", func(t *testing.T) {
		noLevel, err := repo.ListPositionsMissing(ctx, position.FieldLevel)
		require.NoError(t, err)
		require.Equal(t, []string{"Ops"}, noLevel)

		noSuperior, err := repo.ListPositionsMissing(ctx, position.FieldSuperior)
		require.NoError(t, err)
		require.Equal(t, []string{"CEO"}, noSuperior)

		require.NoError(t, repo.UpsertPosition(ctx, position.Position{Name: "Loop", Superior: "Loop", Level: "Táctico"}))
		noSuperior, err = repo.ListPositionsMissing(ctx, position.FieldSuperior)
		require.NoError(t, err)
		require.Equal(t, []string{"CEO", "Loop"}, noSuperior)
		require.NoError(t, repo.DeletePosition(ctx, "Loop"))
	})

	t.Run("assignments upsert by position and kpi", func(t *testing.T) {
		require.NoError(t, repo.UpsertKpi(ctx, kpi.KPI{Name: "Revenue", StrategicIndicator: "Growth"}))
		require.NoError(t, repo.UpsertKpi(ctx, kpi.KPI{Name: "Accuracy", Formula: "ok / total"}))

		first, err := repo.UpsertAssignment(ctx, kpi.Assignment{Position: "Ops", KPI: "Revenue", Weight: 40})
		require.NoError(t, err)
		second, err := repo.UpsertAssignment(ctx, kpi.Assignment{Position: "Ops", KPI: "Revenue", Weight: 60})
		require.NoError(t, err)
		require.Equal(t, first.ID, second.ID)
		require.Equal(t, 60, second.Weight)

		_, err = repo.UpsertAssignment(ctx, kpi.Assignment{Position: "Ops", KPI: "Accuracy", Weight: 40})
		require.NoError(t, err)

		list, err := repo.ListAssignments(ctx, "Ops")
		require.NoError(t, err)
		require.Len(t, list, 2)
		require.Equal(t, 100, kpi.TotalWeight(list))

		var refErr *ReferenceError
		_, err = repo.UpsertAssignment(ctx, kpi.Assignment{Position: "Ops", KPI: "Ghost", Weight: 10})
		require.ErrorAs(t, err, &refErr)
		require.Equal(t, "kpis", refErr.Table)
		_, err = repo.UpsertAssignment(ctx, kpi.Assignment{Position: "Ghost", KPI: "Revenue", Weight: 10})
		require.ErrorAs(t, err, &refErr)
		require.Equal(t, "positions", refErr.Table)
	})

	t.Run("deleting a kpi drops its assignments", func(t *testing.T) {
		require.NoError(t, repo.DeleteKpi(ctx, "Accuracy"))
		all, err := repo.ListAllAssignments(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		require.Equal(t, "Revenue", all[0].KPI)

		require.NoError(t, repo.DeleteAssignment(ctx, all[0].ID))
		require.ErrorIs(t, repo.DeleteAssignment(ctx, all[0].ID), roster.ErrNotFound)
		require.ErrorIs(t, repo.DeleteKpi(ctx, "Accuracy"), roster.ErrNotFound)
	})

	t.Run("deleting a position detaches subordinates", func(t *testing.T) {
		require.NoError(t, repo.DeletePosition(ctx, "Ops"))
		_, err := repo.GetPosition(ctx, "Ops")
		require.ErrorIs(t, err, roster.ErrNotFound)

		clerk, err := repo.GetPosition(ctx, "Clerk")
		require.NoError(t, err)
		require.Empty(t, clerk.Superior)
		require.ErrorIs(t, repo.DeletePosition(ctx, "Ops"), roster.ErrNotFound)
	})

	t.Run("failed transaction leaves no trace", func(t *testing.T) {
		err := repo.InTx(ctx, func(txCtx context.Context) error {
			if err := repo.UpsertPosition(txCtx, position.Position{Name: "Temp"}); err != nil {
				return err
			}
			return errBoom
		})
		require.ErrorIs(t, err, errBoom)
		_, err = repo.GetPosition(ctx, "Temp")
		require.ErrorIs(t, err, roster.ErrNotFound)
	})

	t.Run("strategic indicators and metadata", func(t *testing.T) {
		require.NoError(t, repo.UpsertStrategicIndicator(ctx, "Growth"))
		require.NoError(t, repo.UpsertStrategicIndicator(ctx, "Efficiency"))
		require.NoError(t, repo.UpsertStrategicIndicator(ctx, "Growth"))
		got, err := repo.ListStrategicIndicators(ctx)
		require.NoError(t, err)
		require.Equal(t, []kpi.StrategicIndicator{{Name: "Efficiency"}, {Name: "Growth"}}, got)
		require.NoError(t, repo.DeleteStrategicIndicator(ctx, "Efficiency"))

		key := kpi.MetadataKey{Indicator: "Revenue", Position: "CEO"}
		require.NoError(t, repo.UpsertMetadata(ctx, key, kpi.Metadata{Frequency: "Monthly", Owner: "CFO"}))
		require.NoError(t, repo.UpsertMetadata(ctx, key, kpi.Metadata{Frequency: "Quarterly"}))
		meta, err := repo.ListMetadata(ctx)
		require.NoError(t, err)
		require.Equal(t, kpi.Metadata{Frequency: "Quarterly"}, meta[key])

		require.NoError(t, repo.DeleteMetadata(ctx, key))
		meta, err = repo.ListMetadata(ctx)
		require.NoError(t, err)
		require.Empty(t, meta)
	})
}
