package onboarding

import (
	"time"
)

// DocumentStatus is the derived status of a required document slot.
type DocumentStatus string

const (
	DocumentMissing  DocumentStatus = "missing"
	DocumentPending  DocumentStatus = "pending"
	DocumentVerified DocumentStatus = "verified"
	DocumentExpired  DocumentStatus = "expired"
)

// RequiredDocument is one fixed document slot that must be satisfied before
// a professional can be activated.
type RequiredDocument struct {
	Type     DocumentType `json:"type"`
	Label    string       `json:"label"`
	Required bool         `json:"required"`
	Expires  bool         `json:"expires"`
	// ElectronicConsent allows the slot to be satisfied by the signed consent
	// embedded in the questionnaire instead of an uploaded file.
	ElectronicConsent bool `json:"electronic_consent"`
	// ValidityMonths applies to electronic consent only.
	ValidityMonths int `json:"validity_months,omitempty"`
}

// RequiredDocuments is the slot configuration, in display order.
var RequiredDocuments = []RequiredDocument{
	{Type: DocPhoto, Label: "Photo", Required: true},
	{Type: DocInsurance, Label: "Attestation d'assurance RC Pro", Required: true, Expires: true},
	{Type: DocImageRights, Label: "Autorisation de droit à l'image", Required: true, Expires: true,
		ElectronicConsent: true, ValidityMonths: 12},
	{Type: DocContract, Label: "Contrat de prestation", Required: true},
}

// ConsentInfo describes an electronic consent that satisfies a slot.
type ConsentInfo struct {
	SignerName string    `json:"signer_name"`
	SignedAt   time.Time `json:"signed_at"`
}

// RequiredDocumentState is the resolved state of one slot.
type RequiredDocumentState struct {
	Config    RequiredDocument `json:"config"`
	Status    DocumentStatus   `json:"status"`
	Document  *Document        `json:"document,omitempty"`
	Consent   *ConsentInfo     `json:"consent,omitempty"`
	ExpiresAt *time.Time       `json:"expires_at,omitempty"`
}

// CurrentDocument returns the most recently created document of type t.
// Equal creation times are broken by the larger ID so the choice does not
// depend on input order.
func CurrentDocument(docs []*Document, t DocumentType) *Document {
	var current *Document
	for _, d := range docs {
		if d == nil || d.Type != t {
			continue
		}
		if current == nil || newer(d, current) {
			current = d
		}
	}
	return current
}

func newer(a, b *Document) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID.String() > b.ID.String()
}

// ResolveRequiredDocuments resolves every configured slot.
func ResolveRequiredDocuments(docs []*Document, sub *Submission, now time.Time) []RequiredDocumentState {
	return resolveSlots(RequiredDocuments, docs, sub, now)
}

func resolveSlots(slots []RequiredDocument, docs []*Document, sub *Submission, now time.Time) []RequiredDocumentState {
	out := make([]RequiredDocumentState, 0, len(slots))
	for _, slot := range slots {
		out = append(out, resolveSlot(slot, docs, sub, now))
	}
	return out
}

func resolveSlot(slot RequiredDocument, docs []*Document, sub *Submission, now time.Time) RequiredDocumentState {
	state := RequiredDocumentState{Config: slot}

	doc := CurrentDocument(docs, slot.Type)
	if doc == nil {
		if sig := sub.Consent(); slot.ElectronicConsent && sig != nil {
			expires := sig.SignedAt.AddDate(0, slot.ValidityMonths, 0)
			state.Consent = &ConsentInfo{SignerName: sig.SignerName, SignedAt: *sig.SignedAt}
			state.ExpiresAt = &expires
			if expires.Before(now) {
				state.Status = DocumentExpired
			} else {
				state.Status = DocumentVerified
			}
			return state
		}
		state.Status = DocumentMissing
		return state
	}

	state.Document = doc
	state.ExpiresAt = doc.ExpiresAt
	switch {
	case slot.Expires && doc.ExpiresAt != nil && doc.ExpiresAt.Before(now):
		state.Status = DocumentExpired
	case doc.VerifiedAt != nil:
		state.Status = DocumentVerified
	default:
		state.Status = DocumentPending
	}
	return state
}
