// Package telemetry provides the structured, leveled logger every pipeline
// task uses, wrapping go.uber.org/zap: one logger value is built per task
// invocation and passed down explicitly rather than used as a package-level
// global.
package telemetry

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field names every task-scoped logger is seeded with.
const (
	FieldTraceID         = "trace_id"
	FieldAggregationName = "aggregation_name"
	FieldBatchUUID       = "batch_uuid"
	FieldIsFirst         = "is_first"
)

// NewLogger builds a production JSON logger writing to stderr.
func NewLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// ForTask returns a child logger carrying the correlation fields common to
// every intake or aggregation task invocation.
func ForTask(base *zap.Logger, traceID, aggregationName string, isFirst bool) *zap.Logger {
	return base.With(
		zap.String(FieldTraceID, traceID),
		zap.String(FieldAggregationName, aggregationName),
		zap.Bool(FieldIsFirst, isFirst),
	)
}

// ForBatch returns a child logger additionally scoped to one batch UUID.
func ForBatch(task *zap.Logger, batchUUID string) *zap.Logger {
	return task.With(zap.String(FieldBatchUUID, batchUUID))
}

// Counters holds the per-task counted metrics surfaced on the final
// disposition log line: packets processed, bytes processed, invalid
// batches. These are logged, not scraped.
type Counters struct {
	PacketsProcessed int64
	BytesProcessed   int64
	InvalidBatches   int64
}

// Log emits the final disposition line for a task, success or failure.
func (c Counters) Log(logger *zap.Logger, err error) {
	fields := []zap.Field{
		zap.Int64("packets_processed", c.PacketsProcessed),
		zap.Int64("bytes_processed", c.BytesProcessed),
		zap.Int64("invalid_batches", c.InvalidBatches),
	}
	if err != nil {
		logger.Error("task failed", append(fields, zap.Error(err))...)
		return
	}
	logger.Info("task succeeded", fields...)
}
