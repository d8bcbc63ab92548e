package composables

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/orgchart/pkg/constants"
)

func WithLogger(ctx context.Context, logger *logrus.Entry) context.Context {
	return context.WithValue(ctx, constants.LoggerKey, logger)
}

// UseLogger returns the logger from the context, or nil when none is set.
func UseLogger(ctx context.Context) *logrus.Entry {
	if ctx == nil {
		return nil
	}
	switch typed := ctx.Value(constants.LoggerKey).(type) {
	case *logrus.Entry:
		return typed
	case *logrus.Logger:
		return logrus.NewEntry(typed)
	default:
		return nil
	}
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, constants.RequestIDKey, id)
}

func UseRequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(constants.RequestIDKey).(string)
	return id, ok && id != ""
}
