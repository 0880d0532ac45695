package observability

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// FlushTelemetry is the last step of graceful shutdown, after requests drained
// and the alert loops stopped. Prometheus is pull-based so metrics need no
// flush; this syncs buffered log output.
func FlushTelemetry(ctx context.Context, logger *zap.Logger) error {
	if logger == nil {
		return nil
	}
	if err := logger.Sync(); err != nil {
		return fmt.Errorf("flush logs: %w", err)
	}
	return nil
}
