package onboarding

import (
	"math"
	"time"

	"github.com/clinicops/staffadmin/internal/domain/professional"
)

// StepStatus is the status of one onboarding step.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepBlocked    StepStatus = "blocked"
)

// StepID identifies an onboarding step.
type StepID string

const (
	StepForm       StepID = "formulaire"
	StepDocuments  StepID = "documents"
	StepActivation StepID = "activation"
)

const (
	BlockerFormIncomplete = "form incomplete"
	blockerUpload         = "upload: "
	blockerRenew          = "renew: "
)

type Step struct {
	ID     StepID     `json:"id"`
	Status StepStatus `json:"status"`
}

// State is the aggregate onboarding state of a professional.
type State struct {
	Steps                []Step   `json:"steps"`
	CompletionPercentage int      `json:"completion_percentage"`
	CanActivate          bool     `json:"can_activate"`
	ActivationBlockers   []string `json:"activation_blockers"`
}

// Step returns the step with the given id.
func (s State) Step(id StepID) Step {
	for _, st := range s.Steps {
		if st.ID == id {
			return st
		}
	}
	return Step{ID: id, Status: StepPending}
}

func formStepStatus(fs FormStatus) StepStatus {
	switch fs {
	case FormApproved:
		return StepCompleted
	case FormSubmitted, FormInReview, FormViewed, FormSent:
		return StepInProgress
	default:
		// a_envoyer, expire and revoque all need a new invite.
		return StepPending
	}
}

func documentsStepStatus(states []RequiredDocumentState) StepStatus {
	if allVerified(states) {
		return StepCompleted
	}
	for _, s := range states {
		if s.Status == DocumentPending || s.Status == DocumentVerified {
			return StepInProgress
		}
	}
	return StepPending
}

func allVerified(states []RequiredDocumentState) bool {
	for _, s := range states {
		if s.Config.Required && s.Status != DocumentVerified {
			return false
		}
	}
	return true
}

// ComputeState derives the three onboarding steps, completion percentage
// and activation blockers from an already derived form status and resolved
// document slots.
func ComputeState(status professional.Status, form FormStatus, docs []RequiredDocumentState) State {
	formStep := formStepStatus(form)
	docsStep := documentsStepStatus(docs)

	var activation StepStatus
	switch {
	case status == professional.StatusActive:
		activation = StepCompleted
	case form == FormApproved && allVerified(docs):
		activation = StepPending
	default:
		activation = StepBlocked
	}

	steps := []Step{
		{ID: StepForm, Status: formStep},
		{ID: StepDocuments, Status: docsStep},
		{ID: StepActivation, Status: activation},
	}

	completed := 0
	for _, s := range steps {
		if s.Status == StepCompleted {
			completed++
		}
	}

	blockers := []string{}
	if form != FormApproved {
		blockers = append(blockers, BlockerFormIncomplete)
	}
	for _, d := range docs {
		if !d.Config.Required {
			continue
		}
		switch d.Status {
		case DocumentMissing:
			blockers = append(blockers, blockerUpload+d.Config.Label)
		case DocumentExpired:
			blockers = append(blockers, blockerRenew+d.Config.Label)
		}
	}

	return State{
		Steps:                steps,
		CompletionPercentage: int(math.Round(100 * float64(completed) / float64(len(steps)))),
		CanActivate:          len(blockers) == 0 && status != professional.StatusActive,
		ActivationBlockers:   blockers,
	}
}

// ComputeOnboardingState derives the full onboarding state from raw records.
// prof may be nil, in which case the professional is treated as pending.
func ComputeOnboardingState(prof *professional.Professional, inv *Invite, sub *Submission, docs []*Document, now time.Time) State {
	status := professional.StatusPending
	if prof != nil {
		status = prof.Status
	}
	return ComputeState(status, DeriveFormStatus(inv, sub, now), ResolveRequiredDocuments(docs, sub, now))
}
