package main

import (
	"errors"
	"net/http"

	"github.com/iota-uz/orgchart/modules/orgchart/services"
)

type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string {
	return e.err.Error()
}

func (e *cliError) Unwrap() error {
	return e.err
}

const (
	exitOK         = 0
	exitValidation = 2
	exitUsage      = 3
	exitDB         = 4
	exitDBWrite    = 5
)

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &cliError{code: code, err: err}
}

// serviceCode maps a session failure onto an exit code: rejected input is a
// validation failure, anything else failed while talking to storage.
func serviceCode(err error) error {
	if err == nil {
		return nil
	}
	if svcErr := services.ToServiceError(err); svcErr.Status < http.StatusInternalServerError {
		return withCode(exitValidation, err)
	}
	return withCode(exitDBWrite, err)
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	return 1
}
