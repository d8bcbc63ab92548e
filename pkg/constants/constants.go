// Package constants holds context keys and process-wide singletons shared across packages.
package constants

import "github.com/go-playground/validator/v10"

type contextKey string

const (
	LoggerKey    contextKey = "logger"
	TxKey        contextKey = "tx"
	SQLTxKey     contextKey = "sql_tx"
	PoolKey      contextKey = "pool"
	RequestIDKey contextKey = "request_id"
)

var Validate = validator.New(validator.WithRequiredStructEnabled())
