package jobs

import (
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// NewScheduler builds the cron scheduler that enqueues periodic tasks.
func NewScheduler(cfg RedisConfig, logger zerolog.Logger) *asynq.Scheduler {
	return asynq.NewScheduler(cfg.clientOpt(), &asynq.SchedulerOpts{
		Logger: newAsynqLogger(logger),
	})
}

// Registrar is implemented by *asynq.Scheduler.
type Registrar interface {
	Register(cronspec string, task *asynq.Task, opts ...asynq.Option) (string, error)
}

// SchedulePerTenant registers one periodic task per tenant, built by build.
func SchedulePerTenant(r Registrar, cronspec string, tenants []string, build func(tenantID string) *asynq.Task, opts ...asynq.Option) error {
	if len(tenants) == 0 {
		return fmt.Errorf("schedule %s: no tenants", cronspec)
	}
	for _, tenantID := range tenants {
		task := build(tenantID)
		if _, err := r.Register(cronspec, task, opts...); err != nil {
			return fmt.Errorf("schedule %s for tenant %s: %w", task.Type(), tenantID, err)
		}
	}
	return nil
}
