package professional

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicops/staffadmin/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const profCols = `p.id, p.first_name, p.last_name, p.email, p.phone, p.profession,
	COALESCE(ARRAY(SELECT s.specialty FROM professional_specialty s WHERE s.professional_id = p.id ORDER BY s.specialty), '{}'),
	p.registration_number, p.bio, p.consultation_fee, p.status, p.created_at, p.updated_at`

func (r *repoPG) Create(ctx context.Context, p *Professional) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO professional (
			id, first_name, last_name, email, phone, profession,
			registration_number, bio, consultation_fee, status
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		p.ID, p.FirstName, p.LastName, p.Email, p.Phone, p.Profession,
		p.RegistrationNumber, p.Bio, p.ConsultationFee, p.Status,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrDuplicateEmail, p.Email)
	}
	if err != nil {
		return fmt.Errorf("insert professional: %w", err)
	}
	if len(p.Specialties) > 0 {
		return r.SetSpecialties(ctx, p.ID, p.Specialties)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Professional, error) {
	return scanProfessional(r.conn(ctx).QueryRow(ctx, `SELECT `+profCols+` FROM professional p WHERE p.id = $1`, id))
}

func (r *repoPG) GetByEmail(ctx context.Context, email string) (*Professional, error) {
	return scanProfessional(r.conn(ctx).QueryRow(ctx, `SELECT `+profCols+` FROM professional p WHERE lower(p.email) = lower($1)`, email))
}

func (r *repoPG) Update(ctx context.Context, p *Professional) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE professional SET
			first_name=$2, last_name=$3, email=$4, phone=$5, profession=$6,
			registration_number=$7, bio=$8, consultation_fee=$9, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.FirstName, p.LastName, p.Email, p.Phone, p.Profession,
		p.RegistrationNumber, p.Bio, p.ConsultationFee,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrDuplicateEmail, p.Email)
	}
	if err != nil {
		return fmt.Errorf("update professional: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE professional SET status=$2, updated_at=NOW() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update professional status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetSpecialties replaces the specialty associations of a professional.
func (r *repoPG) SetSpecialties(ctx context.Context, id uuid.UUID, specialties []string) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		if _, err := q.Exec(ctx, `DELETE FROM professional_specialty WHERE professional_id = $1`, id); err != nil {
			return fmt.Errorf("clear specialties: %w", err)
		}
		for _, s := range specialties {
			if _, err := q.Exec(ctx,
				`INSERT INTO professional_specialty (professional_id, specialty) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				id, s,
			); err != nil {
				return fmt.Errorf("insert specialty %q: %w", s, err)
			}
		}
		return nil
	})
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM professional WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete professional: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Professional, int, error) {
	return r.Search(ctx, nil, limit, offset)
}

func (r *repoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Professional, int, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if name := params["name"]; name != "" {
		args = append(args, "%"+name+"%")
		where = append(where, fmt.Sprintf("(p.first_name ILIKE $%d OR p.last_name ILIKE $%d)", len(args), len(args)))
	}
	if status := params["status"]; status != "" {
		add("p.status = $%d", status)
	}
	if profession := params["profession"]; profession != "" {
		add("p.profession = $%d", profession)
	}
	if specialty := params["specialty"]; specialty != "" {
		add("EXISTS (SELECT 1 FROM professional_specialty s WHERE s.professional_id = p.id AND s.specialty = $%d)", specialty)
	}

	filter := ""
	if len(where) > 0 {
		filter = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM professional p`+filter, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count professionals: %w", err)
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM professional p%s ORDER BY p.last_name, p.first_name LIMIT $%d OFFSET $%d`,
		profCols, filter, len(args)-1, len(args))
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search professionals: %w", err)
	}
	defer rows.Close()

	var out []*Professional
	for rows.Next() {
		p, err := scanProfessional(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate professionals: %w", err)
	}
	return out, total, nil
}

func scanProfessional(row pgx.Row) (*Professional, error) {
	var p Professional
	err := row.Scan(
		&p.ID, &p.FirstName, &p.LastName, &p.Email, &p.Phone, &p.Profession,
		&p.Specialties,
		&p.RegistrationNumber, &p.Bio, &p.ConsultationFee, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan professional: %w", err)
	}
	return &p, nil
}
