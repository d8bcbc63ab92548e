package roster

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/iota-uz/orgchart/modules/orgchart/domain/kpi"
	"github.com/iota-uz/orgchart/modules/orgchart/domain/position"
)

var ErrNotFound = errors.New("not found")

// Repository stores the roster state. Calls made with the context handed to InTx's
// callback join that transaction.
//
// Deleting a KPI removes its assignments. Deleting a position clears the superior
// of its direct subordinates and removes its assignments; subordinates stay.
type Repository interface {
	InTx(ctx context.Context, fn func(txCtx context.Context) error) error

	GetPosition(ctx context.Context, name string) (position.Position, error)
	UpsertPosition(ctx context.Context, p position.Position) error
	ListPositions(ctx context.Context) ([]position.Position, error)
	ListPositionsMissing(ctx context.Context, field position.Field) ([]string, error)
	DeletePosition(ctx context.Context, name string) error

	GetKpi(ctx context.Context, name string) (kpi.KPI, error)
	UpsertKpi(ctx context.Context, k kpi.KPI) error
	ListKpis(ctx context.Context) ([]kpi.KPI, error)
	DeleteKpi(ctx context.Context, name string) error

	ListAssignments(ctx context.Context, positionName string) ([]kpi.Assignment, error)
	ListAllAssignments(ctx context.Context) ([]kpi.Assignment, error)
	// UpsertAssignment keys on (position, kpi); the stored row keeps its original id.
	UpsertAssignment(ctx context.Context, a kpi.Assignment) (kpi.Assignment, error)
	DeleteAssignment(ctx context.Context, id uuid.UUID) error

	ListStrategicIndicators(ctx context.Context) ([]kpi.StrategicIndicator, error)
	UpsertStrategicIndicator(ctx context.Context, name string) error
	DeleteStrategicIndicator(ctx context.Context, name string) error

	UpsertMetadata(ctx context.Context, key kpi.MetadataKey, m kpi.Metadata) error
	ListMetadata(ctx context.Context) (map[kpi.MetadataKey]kpi.Metadata, error)
	DeleteMetadata(ctx context.Context, key kpi.MetadataKey) error
}
