package services

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/iota-uz/orgchart/modules/orgchart/domain/roster"
)

var (
	ErrSelfReference = errors.New("a position cannot report to itself")
	ErrNoSource      = errors.New("no roster has been imported")
	ErrNoRoot        = errors.New("no root position detected")
)

type ServiceError struct {
	Status  int
	Code    string
	Message string
	Cause   error
}

func (e *ServiceError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *ServiceError) Unwrap() error { return e.Cause }

func newServiceError(status int, code, message string, cause error) *ServiceError {
	return &ServiceError{Status: status, Code: code, Message: message, Cause: cause}
}

// CyclicHierarchyError lists every superior chain that loops back on itself.
// Each cycle starts at its lexically smallest member.
type CyclicHierarchyError struct {
	Cycles [][]string
}

func (e *CyclicHierarchyError) Error() string {
	parts := make([]string, 0, len(e.Cycles))
	for _, c := range e.Cycles {
		chain := append(append([]string(nil), c...), c[0])
		parts = append(parts, strings.Join(chain, " -> "))
	}
	return fmt.Sprintf("cyclic hierarchy: %s", strings.Join(parts, "; "))
}

// Names returns the distinct positions involved in any cycle.
func (e *CyclicHierarchyError) Names() []string {
	var out []string
	for _, c := range e.Cycles {
		out = append(out, c...)
	}
	return out
}

type ReferenceKind string

const (
	RefPosition ReferenceKind = "position"
	RefSuperior ReferenceKind = "superior"
	RefLevel    ReferenceKind = "level"
	RefKPI      ReferenceKind = "kpi"
)

// UnresolvedReference is a choice or assignment naming something that does not exist.
type UnresolvedReference struct {
	Kind ReferenceKind
	Name string
}

func (e *UnresolvedReference) Error() string {
	return fmt.Sprintf("unknown %s %q", e.Kind, e.Name)
}

// WeightMismatch refuses a save whose assignment weights do not add up to 100.
type WeightMismatch struct {
	Position string `json:"position"`
	Sum      int    `json:"sum"`
}

func (e *WeightMismatch) Error() string {
	return fmt.Sprintf("weights of %q sum to %d, expected 100", e.Position, e.Sum)
}

// ResolutionIncompleteError refuses a commit while missing items lack a choice.
type ResolutionIncompleteError struct {
	Category string
	Pending  int
	Missing  int
}

func (e *ResolutionIncompleteError) Error() string {
	return fmt.Sprintf("%s resolution incomplete: %d of %d choices recorded", e.Category, e.Pending, e.Missing)
}

// ToServiceError maps domain failures onto a status and a stable code.
func ToServiceError(err error) *ServiceError {
	if err == nil {
		return nil
	}
	var (
		se         *ServiceError
		structure  *roster.ImportStructureError
		cyclic     *CyclicHierarchyError
		unresolved *UnresolvedReference
		mismatch   *WeightMismatch
		incomplete *ResolutionIncompleteError
		invalid    *InvalidInputError
	)
	switch {
	case errors.As(err, &se):
		return se
	case errors.As(err, &structure):
		return newServiceError(http.StatusUnprocessableEntity, "ORGCHART_IMPORT_STRUCTURE", structure.Error(), err)
	case errors.As(err, &cyclic):
		return newServiceError(http.StatusConflict, "ORGCHART_CYCLE", cyclic.Error(), err)
	case errors.As(err, &unresolved):
		return newServiceError(http.StatusUnprocessableEntity, "ORGCHART_UNRESOLVED_REFERENCE", unresolved.Error(), err)
	case errors.As(err, &mismatch):
		return newServiceError(http.StatusUnprocessableEntity, "ORGCHART_WEIGHT_MISMATCH", mismatch.Error(), err)
	case errors.As(err, &incomplete):
		return newServiceError(http.StatusConflict, "ORGCHART_RESOLUTION_INCOMPLETE", incomplete.Error(), err)
	case errors.Is(err, roster.ErrNotFound):
		return newServiceError(http.StatusNotFound, "ORGCHART_NOT_FOUND", "not found", err)
	case errors.As(err, &invalid):
		return newServiceError(http.StatusUnprocessableEntity, "ORGCHART_INVALID_INPUT", invalid.Error(), err)
	case errors.Is(err, ErrSelfReference):
		return newServiceError(http.StatusUnprocessableEntity, "ORGCHART_SELF_REFERENCE", ErrSelfReference.Error(), err)
	case errors.Is(err, ErrNoRoot):
		return newServiceError(http.StatusConflict, "ORGCHART_NO_ROOT", ErrNoRoot.Error(), err)
	case errors.Is(err, ErrNoSource):
		return newServiceError(http.StatusConflict, "ORGCHART_NO_SOURCE", "no roster imported", err)
	default:
		return newServiceError(http.StatusInternalServerError, "ORGCHART_INTERNAL", "internal error", err)
	}
}
