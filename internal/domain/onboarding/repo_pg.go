package onboarding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicops/staffadmin/internal/platform/db"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func connFor(ctx context.Context, pool *pgxpool.Pool) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

// -- Invite --

type inviteRepoPG struct{ pool *pgxpool.Pool }

func NewInviteRepo(pool *pgxpool.Pool) InviteRepository { return &inviteRepoPG{pool: pool} }

func (r *inviteRepoPG) conn(ctx context.Context) querier { return connFor(ctx, r.pool) }

const inviteCols = `id, professional_id, token, status, sent_at, opened_at, completed_at,
	expires_at, created_by, created_at`

func (r *inviteRepoPG) scanRow(row pgx.Row) (*Invite, error) {
	var i Invite
	err := row.Scan(&i.ID, &i.ProfessionalID, &i.Token, &i.Status, &i.SentAt, &i.OpenedAt,
		&i.CompletedAt, &i.ExpiresAt, &i.CreatedBy, &i.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan invite: %w", err)
	}
	return &i, nil
}

func (r *inviteRepoPG) Create(ctx context.Context, i *Invite) error {
	i.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO onboarding_invite (id, professional_id, token, status, sent_at, expires_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		i.ID, i.ProfessionalID, i.Token, i.Status, i.SentAt, i.ExpiresAt, i.CreatedBy,
	).Scan(&i.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert invite: %w", err)
	}
	return nil
}

func (r *inviteRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Invite, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+inviteCols+` FROM onboarding_invite WHERE id = $1`, id))
}

func (r *inviteRepoPG) GetByToken(ctx context.Context, token string) (*Invite, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+inviteCols+` FROM onboarding_invite WHERE token = $1`, token))
}

func (r *inviteRepoPG) Latest(ctx context.Context, professionalID uuid.UUID) (*Invite, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `
		SELECT `+inviteCols+` FROM onboarding_invite
		WHERE professional_id = $1
		ORDER BY created_at DESC, id::text DESC LIMIT 1`, professionalID))
}

func (r *inviteRepoPG) ListByProfessional(ctx context.Context, professionalID uuid.UUID) ([]*Invite, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+inviteCols+` FROM onboarding_invite
		WHERE professional_id = $1
		ORDER BY created_at DESC, id::text DESC`, professionalID)
	if err != nil {
		return nil, fmt.Errorf("list invites: %w", err)
	}
	defer rows.Close()
	var items []*Invite
	for rows.Next() {
		i, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

func (r *inviteRepoPG) Update(ctx context.Context, i *Invite) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE onboarding_invite SET status = $2, sent_at = $3, opened_at = $4, completed_at = $5, expires_at = $6
		WHERE id = $1`,
		i.ID, i.Status, i.SentAt, i.OpenedAt, i.CompletedAt, i.ExpiresAt)
	if err != nil {
		return fmt.Errorf("update invite: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *inviteRepoPG) RevokeOpen(ctx context.Context, professionalID uuid.UUID) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE onboarding_invite SET status = $2
		WHERE professional_id = $1 AND status IN ($3, $4)`,
		professionalID, InviteRevoked, InvitePending, InviteOpened)
	if err != nil {
		return 0, fmt.Errorf("revoke invites: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *inviteRepoPG) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE onboarding_invite SET status = $1
		WHERE status = $2 AND expires_at IS NOT NULL AND expires_at < $3`,
		InviteExpired, InvitePending, now)
	if err != nil {
		return 0, fmt.Errorf("expire invites: %w", err)
	}
	return tag.RowsAffected(), nil
}

// -- Submission --

type submissionRepoPG struct{ pool *pgxpool.Pool }

func NewSubmissionRepo(pool *pgxpool.Pool) SubmissionRepository {
	return &submissionRepoPG{pool: pool}
}

func (r *submissionRepoPG) conn(ctx context.Context) querier { return connFor(ctx, r.pool) }

const submissionCols = `id, professional_id, invite_id, status, responses, submitted_at,
	reviewed_at, reviewed_by, approved_at, approved_by, created_at, updated_at`

func (r *submissionRepoPG) scanRow(row pgx.Row) (*Submission, error) {
	var s Submission
	err := row.Scan(&s.ID, &s.ProfessionalID, &s.InviteID, &s.Status, &s.Responses, &s.SubmittedAt,
		&s.ReviewedAt, &s.ReviewedBy, &s.ApprovedAt, &s.ApprovedBy, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan submission: %w", err)
	}
	return &s, nil
}

func (r *submissionRepoPG) Create(ctx context.Context, s *Submission) error {
	s.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO questionnaire_submission (id, professional_id, invite_id, status, responses, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		s.ID, s.ProfessionalID, s.InviteID, s.Status, s.Responses, s.SubmittedAt,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

func (r *submissionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Submission, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+submissionCols+` FROM questionnaire_submission WHERE id = $1`, id))
}

func (r *submissionRepoPG) GetByInvite(ctx context.Context, inviteID uuid.UUID) (*Submission, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `
		SELECT `+submissionCols+` FROM questionnaire_submission
		WHERE invite_id = $1
		ORDER BY created_at DESC, id::text DESC LIMIT 1`, inviteID))
}

func (r *submissionRepoPG) Latest(ctx context.Context, professionalID uuid.UUID) (*Submission, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `
		SELECT `+submissionCols+` FROM questionnaire_submission
		WHERE professional_id = $1
		ORDER BY created_at DESC, id::text DESC LIMIT 1`, professionalID))
}

func (r *submissionRepoPG) Update(ctx context.Context, s *Submission) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE questionnaire_submission SET
			status = $2, responses = $3, submitted_at = $4, reviewed_at = $5, reviewed_by = $6,
			approved_at = $7, approved_by = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		s.ID, s.Status, s.Responses, s.SubmittedAt, s.ReviewedAt, s.ReviewedBy, s.ApprovedAt, s.ApprovedBy,
	).Scan(&s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("update submission: %w", err)
	}
	return nil
}

// -- Document --

type documentRepoPG struct{ pool *pgxpool.Pool }

func NewDocumentRepo(pool *pgxpool.Pool) DocumentRepository { return &documentRepoPG{pool: pool} }

func (r *documentRepoPG) conn(ctx context.Context) querier { return connFor(ctx, r.pool) }

const documentCols = `id, professional_id, document_type, file_name, storage_key, content_type,
	size, page_count, expires_at, verified_at, verified_by, created_at`

func (r *documentRepoPG) scanRow(row pgx.Row) (*Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.ProfessionalID, &d.Type, &d.FileName, &d.StorageKey, &d.ContentType,
		&d.Size, &d.PageCount, &d.ExpiresAt, &d.VerifiedAt, &d.VerifiedBy, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return &d, nil
}

func (r *documentRepoPG) list(ctx context.Context, sql string, args ...interface{}) ([]*Document, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()
	var items []*Document
	for rows.Next() {
		d, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

func (r *documentRepoPG) Create(ctx context.Context, d *Document) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO professional_document (
			id, professional_id, document_type, file_name, storage_key, content_type,
			size, page_count, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`,
		d.ID, d.ProfessionalID, d.Type, d.FileName, d.StorageKey, d.ContentType,
		d.Size, d.PageCount, d.ExpiresAt,
	).Scan(&d.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *documentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Document, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+documentCols+` FROM professional_document WHERE id = $1`, id))
}

func (r *documentRepoPG) ListByProfessional(ctx context.Context, professionalID uuid.UUID) ([]*Document, error) {
	return r.list(ctx, `
		SELECT `+documentCols+` FROM professional_document
		WHERE professional_id = $1
		ORDER BY created_at DESC, id::text DESC`, professionalID)
}

func (r *documentRepoPG) SetVerification(ctx context.Context, id uuid.UUID, verifiedAt *time.Time, verifiedBy *string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE professional_document SET verified_at = $2, verified_by = $3 WHERE id = $1`,
		id, verifiedAt, verifiedBy)
	if err != nil {
		return fmt.Errorf("update document verification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *documentRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM professional_document WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *documentRepoPG) ExpiringBetween(ctx context.Context, from, to time.Time) ([]*Document, error) {
	return r.list(ctx, `
		SELECT `+documentCols+` FROM professional_document
		WHERE expires_at >= $1 AND expires_at < $2
		ORDER BY expires_at, id`, from, to)
}
