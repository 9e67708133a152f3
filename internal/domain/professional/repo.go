package professional

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned by repositories when no professional matches.
var ErrNotFound = errors.New("professional not found")

type Repository interface {
	Create(ctx context.Context, p *Professional) error
	GetByID(ctx context.Context, id uuid.UUID) (*Professional, error)
	GetByEmail(ctx context.Context, email string) (*Professional, error)
	Update(ctx context.Context, p *Professional) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
	SetSpecialties(ctx context.Context, id uuid.UUID, specialties []string) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Professional, int, error)
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Professional, int, error)
}
