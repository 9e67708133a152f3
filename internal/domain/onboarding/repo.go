package onboarding

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("not found")

type InviteRepository interface {
	Create(ctx context.Context, inv *Invite) error
	GetByID(ctx context.Context, id uuid.UUID) (*Invite, error)
	GetByToken(ctx context.Context, token string) (*Invite, error)
	// Latest returns the most recently created invite of a professional.
	Latest(ctx context.Context, professionalID uuid.UUID) (*Invite, error)
	ListByProfessional(ctx context.Context, professionalID uuid.UUID) ([]*Invite, error)
	Update(ctx context.Context, inv *Invite) error
	// RevokeOpen revokes every pending or opened invite of a professional.
	RevokeOpen(ctx context.Context, professionalID uuid.UUID) (int64, error)
	// ExpireStale marks pending invites whose expiry is before now as expired.
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

type SubmissionRepository interface {
	Create(ctx context.Context, sub *Submission) error
	GetByID(ctx context.Context, id uuid.UUID) (*Submission, error)
	GetByInvite(ctx context.Context, inviteID uuid.UUID) (*Submission, error)
	// Latest returns the most recently created submission of a professional.
	Latest(ctx context.Context, professionalID uuid.UUID) (*Submission, error)
	Update(ctx context.Context, sub *Submission) error
}

type DocumentRepository interface {
	Create(ctx context.Context, doc *Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*Document, error)
	ListByProfessional(ctx context.Context, professionalID uuid.UUID) ([]*Document, error)
	SetVerification(ctx context.Context, id uuid.UUID, verifiedAt *time.Time, verifiedBy *string) error
	Delete(ctx context.Context, id uuid.UUID) error
	// ExpiringBetween lists documents whose expiry falls in [from, to).
	ExpiringBetween(ctx context.Context, from, to time.Time) ([]*Document, error)
}
