package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// StoreFailureCode is set under `extensions.code` for store related field errors.
const StoreFailureCode = "STORE_FAILURE"

// StoreError reports a failed storage call made while resolving an operation.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Extensions is picked up by the executor and rendered in the error payload.
func (e *StoreError) Extensions() map[string]interface{} {
	return map[string]interface{}{
		"code":      StoreFailureCode,
		"operation": e.Op,
	}
}

// panicLogger reports resolver panics caught by the executor.
type panicLogger struct {
	logger *zap.Logger
}

func (pl *panicLogger) LogPanic(ctx context.Context, value interface{}) {
	pl.logger.Error("graphql: panic occurred while resolving",
		zap.String("request.id", GetRequestIDFromContext(ctx)),
		zap.Any("error", value),
		zap.Stack("skt"),
	)
}
