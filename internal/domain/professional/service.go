package professional

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrDuplicateEmail    = errors.New("email already in use")
)

// DeleteHook runs after a professional row was deleted, to clean up data
// kept outside the database.
type DeleteHook func(ctx context.Context, id uuid.UUID) error

type Service struct {
	repo     Repository
	logger   zerolog.Logger
	onDelete []DeleteHook
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger.With().Str("component", "professional").Logger()}
}

func (s *Service) CreateProfessional(ctx context.Context, p *Professional) error {
	if err := validateProfile(p); err != nil {
		return err
	}
	if err := s.checkEmailFree(ctx, p.Email, uuid.Nil); err != nil {
		return err
	}
	p.Status = StatusPending
	p.Specialties = normalizeSpecialties(p.Specialties)
	if err := s.repo.Create(ctx, p); err != nil {
		return err
	}
	s.logger.Info().Str("professional_id", p.ID.String()).Msg("professional created")
	return nil
}

func (s *Service) GetProfessional(ctx context.Context, id uuid.UUID) (*Professional, error) {
	return s.repo.GetByID(ctx, id)
}

// UpdateProfile saves profile fields. Lifecycle status is kept as stored;
// it only changes through activation and deactivation.
func (s *Service) UpdateProfile(ctx context.Context, p *Professional) error {
	if err := validateProfile(p); err != nil {
		return err
	}
	if err := s.checkEmailFree(ctx, p.Email, p.ID); err != nil {
		return err
	}
	return s.repo.Update(ctx, p)
}

// checkEmailFree fails when another professional than self holds email,
// compared case-insensitively. Concurrent writers still hit the unique
// index, which the repository reports as ErrDuplicateEmail too.
func (s *Service) checkEmailFree(ctx context.Context, email string, self uuid.UUID) error {
	other, err := s.repo.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil
	case err != nil:
		return err
	case other.ID == self:
		return nil
	}
	return fmt.Errorf("%w: %s", ErrDuplicateEmail, email)
}

func (s *Service) SetSpecialties(ctx context.Context, id uuid.UUID, specialties []string) ([]string, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	cleaned := normalizeSpecialties(specialties)
	if err := s.repo.SetSpecialties(ctx, id, cleaned); err != nil {
		return nil, err
	}
	return cleaned, nil
}

// OnDelete registers a hook for DeleteProfessional.
func (s *Service) OnDelete(h DeleteHook) {
	s.onDelete = append(s.onDelete, h)
}

// DeleteProfessional removes the professional; related records go with it
// through the foreign keys. Hook failures are logged only, since the row is
// already gone.
func (s *Service) DeleteProfessional(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	for _, h := range s.onDelete {
		if err := h(ctx, id); err != nil {
			s.logger.Error().Err(err).Str("professional_id", id.String()).Msg("delete hook failed")
		}
	}
	s.logger.Info().Str("professional_id", id.String()).Msg("professional deleted")
	return nil
}

func (s *Service) ListProfessionals(ctx context.Context, limit, offset int) ([]*Professional, int, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) SearchProfessionals(ctx context.Context, params map[string]string, limit, offset int) ([]*Professional, int, error) {
	if st, ok := params["status"]; ok && st != "" && !Status(st).Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrValidation, st)
	}
	return s.repo.Search(ctx, params, limit, offset)
}

// MarkInvited moves a pending professional to invited. Any other status is
// left untouched.
func (s *Service) MarkInvited(ctx context.Context, id uuid.UUID) error {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if p.Status != StatusPending {
		return nil
	}
	return s.repo.UpdateStatus(ctx, id, StatusInvited)
}

// Activate sets the professional active. Callers are responsible for
// checking onboarding completeness first.
func (s *Service) Activate(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.UpdateStatus(ctx, id, StatusActive); err != nil {
		return err
	}
	s.logger.Info().Str("professional_id", id.String()).Msg("professional activated")
	return nil
}

func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if p.Status != StatusActive {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, StatusInactive)
	}
	if err := s.repo.UpdateStatus(ctx, id, StatusInactive); err != nil {
		return err
	}
	s.logger.Info().Str("professional_id", id.String()).Msg("professional deactivated")
	return nil
}

func validateProfile(p *Professional) error {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.Email = strings.TrimSpace(p.Email)
	if p.FirstName == "" || p.LastName == "" {
		return fmt.Errorf("%w: first_name and last_name are required", ErrValidation)
	}
	if p.Email == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}
	if _, err := mail.ParseAddress(p.Email); err != nil {
		return fmt.Errorf("%w: invalid email %q", ErrValidation, p.Email)
	}
	if p.ConsultationFee.Valid {
		fee := p.ConsultationFee.Decimal
		if fee.IsNegative() {
			return fmt.Errorf("%w: consultation_fee must not be negative", ErrValidation)
		}
		if fee.Exponent() < -2 && !fee.Equal(fee.Round(2)) {
			return fmt.Errorf("%w: consultation_fee has more than two decimal places", ErrValidation)
		}
	}
	return nil
}

func normalizeSpecialties(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[strings.ToLower(s)] {
			continue
		}
		seen[strings.ToLower(s)] = true
		out = append(out, s)
	}
	return out
}
