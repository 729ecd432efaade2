// Package log is a logging package that provides functions to log messages.
package log

import (
	"context"

	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
)

var Logger logSDK.Logger

type ctxKey struct{}

func init() {
	var err error
	if Logger, err = logSDK.NewConsoleWithName("docspace", logSDK.LevelInfo); err != nil {
		logSDK.Shared.Panic("new logger", zap.Error(err))
	}
}

// WithContext attaches a scoped logger to ctx.
func WithContext(ctx context.Context, logger logSDK.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the logger attached by WithContext, or fallback when absent.
func FromContext(ctx context.Context, fallback logSDK.Logger) logSDK.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(ctxKey{}).(logSDK.Logger); ok && logger != nil {
			return logger
		}
	}
	if fallback != nil {
		return fallback
	}
	return Logger
}
