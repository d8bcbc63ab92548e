package persistence

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// ReferenceError reports a write that points at a row missing from Table.
type ReferenceError struct {
	Table string
	Name  string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("%s: %q does not exist", e.Table, e.Name)
}

// ConflictError reports a unique constraint violation.
type ConflictError struct {
	Constraint string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("unique constraint %q violated", e.Constraint)
}

func mapPgError(err error, table, name string) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23503":
		return &ReferenceError{Table: table, Name: name}
	case "23505":
		return &ConflictError{Constraint: pgErr.ConstraintName}
	}
	return err
}

// modernc reports constraint failures through the message text only.
func mapSQLiteError(err error, table, name string) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return &ReferenceError{Table: table, Name: name}
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return &ConflictError{Constraint: table}
	}
	return err
}
