package onboarding

import (
	"time"

	"github.com/clinicops/staffadmin/internal/domain/professional"
)

// Overview is the read model behind the professional onboarding tab.
type Overview struct {
	Professional        *professional.Professional `json:"professional"`
	Invite              *Invite                    `json:"invite,omitempty"`
	InviteStatus        InviteDisplayStatus        `json:"invite_status"`
	Submission          *Submission                `json:"submission,omitempty"`
	QuestionnaireStatus QuestionnaireDisplayStatus `json:"questionnaire_status"`
	FormStatus          FormStatus                 `json:"form_status"`
	RequiredDocuments   []RequiredDocumentState    `json:"required_documents"`
	Documents           []*Document                `json:"documents"`
	Onboarding          State                      `json:"onboarding"`
	ComputedAt          time.Time                  `json:"computed_at"`
}

// BuildOverview assembles the read model from fetched records.
func BuildOverview(prof *professional.Professional, inv *Invite, sub *Submission, docs []*Document, now time.Time) *Overview {
	form := DeriveFormStatus(inv, sub, now)
	required := ResolveRequiredDocuments(docs, sub, now)

	status := professional.StatusPending
	if prof != nil {
		status = prof.Status
	}
	if docs == nil {
		docs = []*Document{}
	}

	return &Overview{
		Professional:        prof,
		Invite:              inv,
		InviteStatus:        DeriveInviteDisplayStatus(inv, now),
		Submission:          sub,
		QuestionnaireStatus: DeriveQuestionnaireDisplayStatus(sub),
		FormStatus:          form,
		RequiredDocuments:   required,
		Documents:           docs,
		Onboarding:          ComputeState(status, form, required),
		ComputedAt:          now,
	}
}

// Summary is one row of the staff onboarding table.
type Summary struct {
	ProfessionalID       string              `json:"professional_id"`
	Name                 string              `json:"name"`
	Status               professional.Status `json:"status"`
	FormStatus           FormStatus          `json:"form_status"`
	CompletionPercentage int                 `json:"completion_percentage"`
	CanActivate          bool                `json:"can_activate"`
	ActivationBlockers   []string            `json:"activation_blockers"`
}

// Summarize reduces an overview to a table row.
func (o *Overview) Summarize() Summary {
	s := Summary{
		FormStatus:           o.FormStatus,
		CompletionPercentage: o.Onboarding.CompletionPercentage,
		CanActivate:          o.Onboarding.CanActivate,
		ActivationBlockers:   o.Onboarding.ActivationBlockers,
	}
	if o.Professional != nil {
		s.ProfessionalID = o.Professional.ID.String()
		s.Name = o.Professional.FullName()
		s.Status = o.Professional.Status
	}
	return s
}
