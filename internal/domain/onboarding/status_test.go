package onboarding

import (
	"testing"
	"time"
)

var testNow = time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)

func tp(t time.Time) *time.Time { return &t }

func invite(status InviteStatus, sent, expires *time.Time) *Invite {
	return &Invite{Status: status, SentAt: sent, ExpiresAt: expires, CreatedAt: testNow.Add(-48 * time.Hour)}
}

func submission(status SubmissionStatus) *Submission {
	return &Submission{Status: status}
}

var (
	yesterday = tp(testNow.Add(-24 * time.Hour))
	tomorrow  = tp(testNow.Add(24 * time.Hour))
	lastWeek  = tp(testNow.Add(-7 * 24 * time.Hour))
)

func TestDeriveInviteDisplayStatus(t *testing.T) {
	tests := []struct {
		name string
		inv  *Invite
		want InviteDisplayStatus
	}{
		{"no invite", nil, InviteDisplayDraft},
		{"revoked", invite(InviteRevoked, lastWeek, tomorrow), InviteDisplayRevoked},
		{"revoked and past expiry", invite(InviteRevoked, lastWeek, yesterday), InviteDisplayRevoked},
		{"completed", invite(InviteCompleted, lastWeek, yesterday), InviteDisplayCompleted},
		{"opened", invite(InviteOpened, lastWeek, yesterday), InviteDisplayOpened},
		{"pending past expiry", invite(InvitePending, lastWeek, yesterday), InviteDisplayExpired},
		{"pending past expiry never sent", invite(InvitePending, nil, yesterday), InviteDisplayExpired},
		{"explicit expired", invite(InviteExpired, lastWeek, tomorrow), InviteDisplayExpired},
		{"pending sent", invite(InvitePending, lastWeek, tomorrow), InviteDisplaySent},
		{"pending sent no expiry", invite(InvitePending, lastWeek, nil), InviteDisplaySent},
		{"pending not sent", invite(InvitePending, nil, tomorrow), InviteDisplayDraft},
		{"unknown status", invite(InviteStatus("bogus"), lastWeek, tomorrow), InviteDisplayDraft},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := DeriveInviteDisplayStatus(tc.inv, testNow); got != tc.want {
				t.Errorf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestDeriveInviteDisplayStatus_ExpiryIsStrict(t *testing.T) {
	inv := invite(InvitePending, lastWeek, tp(testNow))
	if got := DeriveInviteDisplayStatus(inv, testNow); got != InviteDisplaySent {
		t.Errorf("expected invite expiring exactly now to still be sent, got %s", got)
	}
}

func TestDeriveInviteDisplayStatus_RevokedAlwaysWins(t *testing.T) {
	times := []*time.Time{nil, yesterday, tomorrow}
	for _, sent := range times {
		for _, expires := range times {
			for _, opened := range times {
				inv := invite(InviteRevoked, sent, expires)
				inv.OpenedAt = opened
				inv.CompletedAt = opened
				if got := DeriveInviteDisplayStatus(inv, testNow); got != InviteDisplayRevoked {
					t.Fatalf("sent=%v expires=%v opened=%v: got %s", sent, expires, opened, got)
				}
			}
		}
	}
}

func TestDeriveInviteDisplayStatus_Closed(t *testing.T) {
	allowed := map[InviteDisplayStatus]bool{
		InviteDisplayDraft: true, InviteDisplaySent: true, InviteDisplayOpened: true,
		InviteDisplayCompleted: true, InviteDisplayExpired: true, InviteDisplayRevoked: true,
	}
	statuses := []InviteStatus{InvitePending, InviteOpened, InviteCompleted, InviteExpired, InviteRevoked, ""}
	times := []*time.Time{nil, yesterday, tomorrow}
	for _, s := range statuses {
		for _, sent := range times {
			for _, expires := range times {
				got := DeriveInviteDisplayStatus(invite(s, sent, expires), testNow)
				if !allowed[got] {
					t.Errorf("status=%s: unexpected display status %q", s, got)
				}
			}
		}
	}
}

func TestDeriveQuestionnaireDisplayStatus(t *testing.T) {
	tests := []struct {
		sub  *Submission
		want QuestionnaireDisplayStatus
	}{
		{nil, QuestionnaireNone},
		{submission(SubmissionDraft), QuestionnaireNone},
		{submission(SubmissionSubmitted), QuestionnaireSubmitted},
		{submission(SubmissionReviewed), QuestionnaireReviewed},
		{submission(SubmissionApproved), QuestionnaireApproved},
	}
	for _, tc := range tests {
		if got := DeriveQuestionnaireDisplayStatus(tc.sub); got != tc.want {
			t.Errorf("sub=%v: got %s, want %s", tc.sub, got, tc.want)
		}
	}
}

func TestDeriveQuestionnaireDisplayStatus_DraftNeverSubmitted(t *testing.T) {
	sub := submission(SubmissionDraft)
	sub.SubmittedAt = yesterday
	if got := DeriveQuestionnaireDisplayStatus(sub); got != QuestionnaireNone {
		t.Errorf("expected draft with a submitted_at to stay non_soumis, got %s", got)
	}
}

func TestDeriveFormStatus(t *testing.T) {
	tests := []struct {
		name string
		inv  *Invite
		sub  *Submission
		want FormStatus
	}{
		{"approved beats revoked invite", invite(InviteRevoked, lastWeek, yesterday), submission(SubmissionApproved), FormApproved},
		{"approved without invite", nil, submission(SubmissionApproved), FormApproved},
		{"reviewed", invite(InviteCompleted, lastWeek, tomorrow), submission(SubmissionReviewed), FormInReview},
		{"submitted beats opened", invite(InviteOpened, lastWeek, tomorrow), submission(SubmissionSubmitted), FormSubmitted},
		{"submitted beats expired", invite(InvitePending, lastWeek, yesterday), submission(SubmissionSubmitted), FormSubmitted},
		{"no invite no submission", nil, nil, FormToSend},
		{"draft falls through to invite", invite(InviteOpened, lastWeek, tomorrow), submission(SubmissionDraft), FormViewed},
		{"revoked", invite(InviteRevoked, lastWeek, tomorrow), nil, FormRevoked},
		{"explicit expired", invite(InviteExpired, lastWeek, tomorrow), nil, FormExpired},
		{"pending past expiry", invite(InvitePending, lastWeek, yesterday), nil, FormExpired},
		{"completed", invite(InviteCompleted, lastWeek, yesterday), nil, FormViewed},
		{"opened", invite(InviteOpened, lastWeek, tomorrow), nil, FormViewed},
		{"sent", invite(InvitePending, lastWeek, tomorrow), nil, FormSent},
		{"created not sent", invite(InvitePending, nil, tomorrow), nil, FormToSend},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := DeriveFormStatus(tc.inv, tc.sub, testNow); got != tc.want {
				t.Errorf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestDeriveFormStatus_SubmissionPrecedence(t *testing.T) {
	invites := []*Invite{
		nil,
		invite(InvitePending, nil, nil),
		invite(InvitePending, lastWeek, yesterday),
		invite(InviteOpened, lastWeek, tomorrow),
		invite(InviteCompleted, lastWeek, tomorrow),
		invite(InviteExpired, lastWeek, yesterday),
		invite(InviteRevoked, lastWeek, tomorrow),
	}
	for _, inv := range invites {
		if got := DeriveFormStatus(inv, submission(SubmissionApproved), testNow); got != FormApproved {
			t.Errorf("invite=%v: expected approuve, got %s", inv, got)
		}
	}
}
