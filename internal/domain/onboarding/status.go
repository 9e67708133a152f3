package onboarding

import "time"

// InviteDisplayStatus is the invite badge shown to staff.
type InviteDisplayStatus string

const (
	InviteDisplayDraft     InviteDisplayStatus = "brouillon"
	InviteDisplaySent      InviteDisplayStatus = "envoyee"
	InviteDisplayOpened    InviteDisplayStatus = "consultee"
	InviteDisplayCompleted InviteDisplayStatus = "completee"
	InviteDisplayExpired   InviteDisplayStatus = "expiree"
	InviteDisplayRevoked   InviteDisplayStatus = "revoquee"
)

// QuestionnaireDisplayStatus is the questionnaire badge shown to staff.
type QuestionnaireDisplayStatus string

const (
	QuestionnaireNone      QuestionnaireDisplayStatus = "non_soumis"
	QuestionnaireSubmitted QuestionnaireDisplayStatus = "soumis"
	QuestionnaireReviewed  QuestionnaireDisplayStatus = "en_revision"
	QuestionnaireApproved  QuestionnaireDisplayStatus = "approuve"
)

// FormStatus merges invite and questionnaire progress into the single
// "Formulaire" status.
type FormStatus string

const (
	FormApproved  FormStatus = "approuve"
	FormInReview  FormStatus = "en_revision"
	FormSubmitted FormStatus = "soumis"
	FormToSend    FormStatus = "a_envoyer"
	FormRevoked   FormStatus = "revoque"
	FormExpired   FormStatus = "expire"
	FormViewed    FormStatus = "consulte"
	FormSent      FormStatus = "envoye"
)

// inviteRule is one row of a first-match-wins table. A nil invite only ever
// reaches rules whose predicate accepts nil.
type inviteRule[T any] struct {
	when   func(inv *Invite, now time.Time) bool
	result T
}

func isStatus(s InviteStatus) func(*Invite, time.Time) bool {
	return func(inv *Invite, _ time.Time) bool { return inv != nil && inv.Status == s }
}

func noInvite(inv *Invite, _ time.Time) bool { return inv == nil }

func pendingPastExpiry(inv *Invite, now time.Time) bool {
	return inv != nil && inv.Status == InvitePending && inv.ExpiredAt(now)
}

func pendingSent(inv *Invite, _ time.Time) bool {
	return inv != nil && inv.Status == InvitePending && inv.SentAt != nil
}

var inviteDisplayRules = []inviteRule[InviteDisplayStatus]{
	{noInvite, InviteDisplayDraft},
	{isStatus(InviteRevoked), InviteDisplayRevoked},
	{isStatus(InviteCompleted), InviteDisplayCompleted},
	{isStatus(InviteOpened), InviteDisplayOpened},
	{pendingPastExpiry, InviteDisplayExpired},
	{isStatus(InviteExpired), InviteDisplayExpired},
	{pendingSent, InviteDisplaySent},
}

// DeriveInviteDisplayStatus maps an invite (or its absence) to a display
// status. Rules are evaluated in order; the first match wins and anything
// unmatched is a draft.
func DeriveInviteDisplayStatus(inv *Invite, now time.Time) InviteDisplayStatus {
	return firstMatch(inviteDisplayRules, inv, now, InviteDisplayDraft)
}

// DeriveQuestionnaireDisplayStatus maps a submission to a display status.
// Drafts never surface as progress.
func DeriveQuestionnaireDisplayStatus(sub *Submission) QuestionnaireDisplayStatus {
	if sub == nil {
		return QuestionnaireNone
	}
	switch sub.Status {
	case SubmissionSubmitted:
		return QuestionnaireSubmitted
	case SubmissionReviewed:
		return QuestionnaireReviewed
	case SubmissionApproved:
		return QuestionnaireApproved
	default:
		return QuestionnaireNone
	}
}

var formInviteRules = []inviteRule[FormStatus]{
	{noInvite, FormToSend},
	{isStatus(InviteRevoked), FormRevoked},
	{isStatus(InviteExpired), FormExpired},
	{pendingPastExpiry, FormExpired},
	{isStatus(InviteCompleted), FormViewed},
	{isStatus(InviteOpened), FormViewed},
	{pendingSent, FormSent},
}

var formSubmissionRules = []struct {
	status SubmissionStatus
	result FormStatus
}{
	{SubmissionApproved, FormApproved},
	{SubmissionReviewed, FormInReview},
	{SubmissionSubmitted, FormSubmitted},
}

// DeriveFormStatus combines the current invite and submission. Submission
// progress short-circuits; invite state only matters while the submission
// is absent or still a draft.
func DeriveFormStatus(inv *Invite, sub *Submission, now time.Time) FormStatus {
	if sub != nil {
		for _, r := range formSubmissionRules {
			if sub.Status == r.status {
				return r.result
			}
		}
	}
	return firstMatch(formInviteRules, inv, now, FormToSend)
}

func firstMatch[T any](rules []inviteRule[T], inv *Invite, now time.Time, fallback T) T {
	for _, r := range rules {
		if r.when(inv, now) {
			return r.result
		}
	}
	return fallback
}
