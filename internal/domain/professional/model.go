package professional

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle status of a professional.
type Status string

const (
	StatusPending  Status = "pending"
	StatusInvited  Status = "invited"
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Valid reports whether s is one of the known lifecycle statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInvited, StatusActive, StatusInactive:
		return true
	}
	return false
}

// Professional maps to the professional table.
type Professional struct {
	ID                 uuid.UUID           `db:"id" json:"id"`
	FirstName          string              `db:"first_name" json:"first_name"`
	LastName           string              `db:"last_name" json:"last_name"`
	Email              string              `db:"email" json:"email"`
	Phone              *string             `db:"phone" json:"phone,omitempty"`
	Profession         *string             `db:"profession" json:"profession,omitempty"`
	Specialties        []string            `db:"specialties" json:"specialties"`
	RegistrationNumber *string             `db:"registration_number" json:"registration_number,omitempty"`
	Bio                *string             `db:"bio" json:"bio,omitempty"`
	ConsultationFee    decimal.NullDecimal `db:"consultation_fee" json:"consultation_fee"`
	Status             Status              `db:"status" json:"status"`
	CreatedAt          time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time           `db:"updated_at" json:"updated_at"`
}

// FullName returns "First Last".
func (p *Professional) FullName() string {
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// IsActive reports whether the professional can currently take appointments.
func (p *Professional) IsActive() bool {
	return p.Status == StatusActive
}
