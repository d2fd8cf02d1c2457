package ports

import "context"

// HealthChecker is one dependency reported by GET /health. The handler runs
// every checker under a shared deadline; a non-nil Ping error marks the
// service degraded.
type HealthChecker interface {
	Name() string
	Ping(ctx context.Context) error
}
