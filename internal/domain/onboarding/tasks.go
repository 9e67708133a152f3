package onboarding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/clinicops/staffadmin/internal/platform/db"
)

const (
	// TaskSweep runs periodically from the scheduler.
	TaskSweep = "onboarding:sweep"
	// TaskInviteReminder is scheduled each time an invite is sent.
	TaskInviteReminder = "onboarding:invite-reminder"
)

// ExpiryWarningWindow is how far ahead the sweep looks for expiring documents.
const ExpiryWarningWindow = 30 * 24 * time.Hour

// TaskEnqueuer is satisfied by jobs.Client.
type TaskEnqueuer interface {
	Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) error
}

// Every payload carries tenant_id so the worker can scope the task to the
// tenant schema before the handler runs.
type sweepPayload struct {
	TenantID string `json:"tenant_id"`
}

type reminderPayload struct {
	TenantID string    `json:"tenant_id"`
	InviteID uuid.UUID `json:"invite_id"`
}

// NewSweepTask builds the periodic sweep task for one tenant.
func NewSweepTask(tenantID string) *asynq.Task {
	data, _ := json.Marshal(sweepPayload{TenantID: tenantID})
	return asynq.NewTask(TaskSweep, data)
}

func newReminderTask(tenantID string, inviteID uuid.UUID) (*asynq.Task, error) {
	data, err := json.Marshal(reminderPayload{TenantID: tenantID, InviteID: inviteID})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(TaskInviteReminder, data), nil
}

func (s *Service) scheduleReminder(ctx context.Context, inviteID uuid.UUID, delay time.Duration) error {
	task, err := newReminderTask(db.TenantFromContext(ctx), inviteID)
	if err != nil {
		return err
	}
	return s.tasks.Enqueue(ctx, task,
		asynq.ProcessIn(delay),
		asynq.MaxRetry(3),
		asynq.TaskID(TaskInviteReminder+":"+inviteID.String()),
	)
}

// RegisterTasks mounts the onboarding task handlers on the worker mux.
func (s *Service) RegisterTasks(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskSweep, s.handleSweep)
	mux.HandleFunc(TaskInviteReminder, s.handleInviteReminder)
}

func (s *Service) handleSweep(ctx context.Context, _ *asynq.Task) error {
	expired, err := s.ExpireStaleInvites(ctx)
	if err != nil {
		return fmt.Errorf("expire invites: %w", err)
	}

	docs, err := s.ExpiringDocuments(ctx, ExpiryWarningWindow)
	if err != nil {
		return fmt.Errorf("list expiring documents: %w", err)
	}
	for _, d := range docs {
		s.logger.Warn().
			Str("professional_id", d.ProfessionalID.String()).
			Str("document_id", d.ID.String()).
			Str("document_type", string(d.Type)).
			Time("expires_at", *d.ExpiresAt).
			Msg("document expiring soon")
	}

	s.logger.Info().
		Int64("invites_expired", expired).
		Int("documents_expiring", len(docs)).
		Msg("onboarding sweep finished")
	return nil
}

func (s *Service) handleInviteReminder(ctx context.Context, t *asynq.Task) error {
	var p reminderPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if _, err := s.RemindInvite(ctx, p.InviteID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("invite %s: %w", p.InviteID, asynq.SkipRetry)
		}
		return err
	}
	return nil
}
