package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/clinicops/staffadmin/internal/platform/db"
)

// NewServer builds the worker server. Failed task attempts are logged with
// their retry count.
func NewServer(cfg RedisConfig, concurrency int, logger zerolog.Logger) *asynq.Server {
	return asynq.NewServer(cfg.clientOpt(), asynq.Config{
		Concurrency: concurrency,
		Logger:      newAsynqLogger(logger),
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Error().Err(err).
				Str("task", task.Type()).
				Int("retry", retried).
				Int("max_retry", maxRetry).
				Msg("task failed")
		}),
	})
}

// TenantScoper runs fn inside a tenant's database scope.
type TenantScoper func(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error

type tenantPayload struct {
	TenantID string `json:"tenant_id"`
}

// TenantScope reads tenant_id from the JSON payload and runs the handler in
// that tenant's scope, falling back to defaultTenant. Payloads that are not
// JSON objects reach the handler unscoped so it can reject them itself.
func TenantScope(defaultTenant string, scope TenantScoper) asynq.MiddlewareFunc {
	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
			var p tenantPayload
			if len(t.Payload()) > 0 {
				if err := json.Unmarshal(t.Payload(), &p); err != nil {
					return next.ProcessTask(ctx, t)
				}
			}
			tenantID := p.TenantID
			if tenantID == "" {
				tenantID = defaultTenant
			}

			err := scope(ctx, tenantID, func(ctx context.Context) error {
				return next.ProcessTask(ctx, t)
			})
			if errors.Is(err, db.ErrInvalidTenant) {
				return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
			}
			return err
		})
	}
}

// Logging logs each processed task with its duration.
func Logging(logger zerolog.Logger) asynq.MiddlewareFunc {
	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
			start := time.Now()
			err := next.ProcessTask(ctx, t)
			taskID, _ := asynq.GetTaskID(ctx)
			evt := logger.Info()
			if err != nil {
				evt = logger.Warn().Err(err)
			}
			evt.Str("task", t.Type()).
				Str("task_id", taskID).
				Dur("latency", time.Since(start)).
				Msg("task processed")
			return err
		})
	}
}
