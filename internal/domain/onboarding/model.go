package onboarding

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// InviteStatus is the stored status of an onboarding invite.
type InviteStatus string

const (
	InvitePending   InviteStatus = "pending"
	InviteOpened    InviteStatus = "opened"
	InviteCompleted InviteStatus = "completed"
	InviteExpired   InviteStatus = "expired"
	InviteRevoked   InviteStatus = "revoked"
)

// Invite maps to the onboarding_invite table. A professional may have many
// invites; the one created last is the current one.
type Invite struct {
	ID             uuid.UUID    `db:"id" json:"id"`
	ProfessionalID uuid.UUID    `db:"professional_id" json:"professional_id"`
	Token          string       `db:"token" json:"-"`
	Status         InviteStatus `db:"status" json:"status"`
	SentAt         *time.Time   `db:"sent_at" json:"sent_at,omitempty"`
	OpenedAt       *time.Time   `db:"opened_at" json:"opened_at,omitempty"`
	CompletedAt    *time.Time   `db:"completed_at" json:"completed_at,omitempty"`
	ExpiresAt      *time.Time   `db:"expires_at" json:"expires_at,omitempty"`
	CreatedBy      *string      `db:"created_by" json:"created_by,omitempty"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
}

// ExpiredAt reports whether a pending invite has passed its expiry date.
func (i *Invite) ExpiredAt(now time.Time) bool {
	return i.ExpiresAt != nil && i.ExpiresAt.Before(now)
}

// SubmissionStatus is the stored status of a questionnaire submission.
type SubmissionStatus string

const (
	SubmissionDraft     SubmissionStatus = "draft"
	SubmissionSubmitted SubmissionStatus = "submitted"
	SubmissionReviewed  SubmissionStatus = "reviewed"
	SubmissionApproved  SubmissionStatus = "approved"
)

// Submission maps to the questionnaire_submission table.
type Submission struct {
	ID             uuid.UUID        `db:"id" json:"id"`
	ProfessionalID uuid.UUID        `db:"professional_id" json:"professional_id"`
	InviteID       *uuid.UUID       `db:"invite_id" json:"invite_id,omitempty"`
	Status         SubmissionStatus `db:"status" json:"status"`
	Responses      json.RawMessage  `db:"responses" json:"responses"`
	SubmittedAt    *time.Time       `db:"submitted_at" json:"submitted_at,omitempty"`
	ReviewedAt     *time.Time       `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReviewedBy     *string          `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ApprovedAt     *time.Time       `db:"approved_at" json:"approved_at,omitempty"`
	ApprovedBy     *string          `db:"approved_by" json:"approved_by,omitempty"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}

// ConsentSignature is the electronic image-rights consent embedded in the
// questionnaire responses under the "image_rights_consent" key.
type ConsentSignature struct {
	Signed     bool       `json:"signed"`
	SignerName string     `json:"signer_name,omitempty"`
	SignedAt   *time.Time `json:"signed_at,omitempty"`
}

const consentResponseKey = "image_rights_consent"

// Consent extracts the signed consent from the responses. It returns nil when
// the submission is nil, the responses are not an object, the key is absent
// or malformed, or the consent is unsigned or has no signature time.
func (s *Submission) Consent() *ConsentSignature {
	if s == nil || len(s.Responses) == 0 {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(s.Responses, &fields); err != nil {
		return nil
	}
	raw, ok := fields[consentResponseKey]
	if !ok {
		return nil
	}
	var sig ConsentSignature
	if err := json.Unmarshal(raw, &sig); err != nil {
		return nil
	}
	if !sig.Signed || sig.SignedAt == nil {
		return nil
	}
	return &sig
}

// DocumentType enumerates the kinds of professional documents.
type DocumentType string

const (
	DocPhoto       DocumentType = "photo"
	DocInsurance   DocumentType = "insurance"
	DocLicense     DocumentType = "license"
	DocCV          DocumentType = "cv"
	DocDiploma     DocumentType = "diploma"
	DocFiche       DocumentType = "fiche"
	DocOther       DocumentType = "other"
	DocImageRights DocumentType = "image_rights"
	DocContract    DocumentType = "contract"
)

// Valid reports whether t is a known document type.
func (t DocumentType) Valid() bool {
	switch t {
	case DocPhoto, DocInsurance, DocLicense, DocCV, DocDiploma, DocFiche, DocOther, DocImageRights, DocContract:
		return true
	}
	return false
}

// Document maps to the professional_document table. Its status is never
// stored; see ResolveRequiredDocuments.
type Document struct {
	ID             uuid.UUID    `db:"id" json:"id"`
	ProfessionalID uuid.UUID    `db:"professional_id" json:"professional_id"`
	Type           DocumentType `db:"document_type" json:"document_type"`
	FileName       string       `db:"file_name" json:"file_name"`
	StorageKey     string       `db:"storage_key" json:"-"`
	ContentType    string       `db:"content_type" json:"content_type"`
	Size           int64        `db:"size" json:"size"`
	PageCount      *int         `db:"page_count" json:"page_count,omitempty"`
	ExpiresAt      *time.Time   `db:"expires_at" json:"expires_at,omitempty"`
	VerifiedAt     *time.Time   `db:"verified_at" json:"verified_at,omitempty"`
	VerifiedBy     *string      `db:"verified_by" json:"verified_by,omitempty"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
}
