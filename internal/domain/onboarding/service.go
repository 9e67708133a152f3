package onboarding

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/clinicops/staffadmin/internal/domain/professional"
	"github.com/clinicops/staffadmin/internal/platform/blobstore"
	"github.com/clinicops/staffadmin/internal/platform/db"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrInviteNotUsable   = errors.New("invite is no longer usable")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrActivationBlocked = errors.New("activation blocked")
	ErrLinksUnsupported  = errors.New("storage backend does not issue download links")
)

// ActivationBlockedError lists what still prevents activation.
type ActivationBlockedError struct {
	Blockers []string
}

func (e *ActivationBlockedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrActivationBlocked, strings.Join(e.Blockers, "; "))
}

func (e *ActivationBlockedError) Is(target error) bool { return target == ErrActivationBlocked }

// DefaultInviteTTL is used when Config.InviteTTL is zero.
const DefaultInviteTTL = 14 * 24 * time.Hour

// DocumentLinkTTL is the lifetime of presigned document download links.
const DocumentLinkTTL = 15 * time.Minute

// overviewConcurrency bounds the per-professional fan-out of ListOverviews.
const overviewConcurrency = 8

// DBFunc runs fn with a database scope carried in ctx: a transaction for
// SetTxRunner, a connection of its own for SetConnScope.
type DBFunc func(ctx context.Context, fn func(ctx context.Context) error) error

func runDirect(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

type Config struct {
	InviteTTL     time.Duration
	InviteBaseURL string
}

type Service struct {
	profs   *professional.Service
	invites InviteRepository
	subs    SubmissionRepository
	docs    DocumentRepository
	blobs   blobstore.BlobStore
	tasks   TaskEnqueuer
	inTx    DBFunc
	ownConn DBFunc
	cfg     Config
	logger  zerolog.Logger
	now     func() time.Time
}

func NewService(
	profs *professional.Service,
	invites InviteRepository,
	subs SubmissionRepository,
	docs DocumentRepository,
	blobs blobstore.BlobStore,
	cfg Config,
	logger zerolog.Logger,
) *Service {
	if cfg.InviteTTL <= 0 {
		cfg.InviteTTL = DefaultInviteTTL
	}
	s := &Service{
		profs:   profs,
		invites: invites,
		subs:    subs,
		docs:    docs,
		blobs:   blobs,
		inTx:    runDirect,
		cfg:     cfg,
		logger:  logger.With().Str("component", "onboarding").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	profs.OnDelete(s.PurgeProfessionalFiles)
	return s
}

// SetTaskEnqueuer enables background reminders. Without one, invites are
// still sent but no reminder is scheduled.
func (s *Service) SetTaskEnqueuer(e TaskEnqueuer) {
	s.tasks = e
}

// SetTxRunner makes multi-step writes atomic. Without one, each repository
// call commits on its own.
func (s *Service) SetTxRunner(fn DBFunc) {
	s.inTx = fn
}

// SetConnScope lets overview fetches run concurrently, each on a connection
// of its own. Without one, fetches on a pinned connection run one at a time.
func (s *Service) SetConnScope(fn DBFunc) {
	s.ownConn = fn
}

// ---------------------------------------------------------------------------
// Overview
// ---------------------------------------------------------------------------

// GetOverview fetches the professional, current invite, current submission
// and documents and derives the onboarding read model. The fetches run
// concurrently unless they have to share ctx's connection.
func (s *Service) GetOverview(ctx context.Context, professionalID uuid.UUID) (*Overview, error) {
	var (
		prof *professional.Professional
		inv  *Invite
		sub  *Submission
		docs []*Document
	)

	g := s.fanOut(ctx, 4)
	g.Go(func(ctx context.Context) error {
		var err error
		prof, err = s.profs.GetProfessional(ctx, professionalID)
		return err
	})
	g.Go(func(ctx context.Context) error {
		var err error
		inv, err = optional(s.invites.Latest(ctx, professionalID))
		return err
	})
	g.Go(func(ctx context.Context) error {
		var err error
		sub, err = optional(s.subs.Latest(ctx, professionalID))
		return err
	})
	g.Go(func(ctx context.Context) error {
		var err error
		docs, err = s.docs.ListByProfessional(ctx, professionalID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return BuildOverview(prof, inv, sub, docs, s.now()), nil
}

// ListOverviews returns one summary row per professional for the given page.
func (s *Service) ListOverviews(ctx context.Context, limit, offset int) ([]Summary, int, error) {
	profs, total, err := s.profs.ListProfessionals(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	// Each GetOverview acquires its own connections, so the rows only share
	// the group's limit and never hold a connection while waiting for one.
	out := make([]Summary, len(profs))
	g := s.fanOut(ctx, overviewConcurrency)
	for i, p := range profs {
		g.goShared(func(ctx context.Context) error {
			ov, err := s.GetOverview(ctx, p.ID)
			if err != nil {
				return fmt.Errorf("overview %s: %w", p.ID, err)
			}
			out[i] = ov.Summarize()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// fetchGroup runs read-only fetches concurrently. A pgx connection runs one
// query at a time, so when ctx is pinned to a connection each fetch gets its
// own through ownConn, and inside a transaction fetches run one at a time.
type fetchGroup struct {
	g       *errgroup.Group
	ctx     context.Context
	ownConn DBFunc
}

func (s *Service) fanOut(ctx context.Context, limit int) *fetchGroup {
	g, gctx := errgroup.WithContext(ctx)
	f := &fetchGroup{g: g, ctx: gctx, ownConn: runDirect}
	switch {
	case db.TxFromContext(ctx) != nil:
		limit = 1
	case db.ConnBound(ctx) && s.ownConn == nil:
		limit = 1
	case db.ConnBound(ctx):
		f.ownConn = s.ownConn
	}
	g.SetLimit(limit)
	return f
}

// Go runs fn on a connection of its own when ctx's connection is pinned.
func (f *fetchGroup) Go(fn func(ctx context.Context) error) {
	f.g.Go(func() error { return f.ownConn(f.ctx, fn) })
}

// goShared runs fn on the group's context as is, for work that scopes its own
// queries.
func (f *fetchGroup) goShared(fn func(ctx context.Context) error) {
	f.g.Go(func() error { return fn(f.ctx) })
}

func (f *fetchGroup) Wait() error { return f.g.Wait() }

// Activate re-derives the onboarding state and flips the professional to
// active when nothing blocks it.
func (s *Service) Activate(ctx context.Context, professionalID uuid.UUID) (*Overview, error) {
	var out *Overview
	err := s.inTx(ctx, func(ctx context.Context) error {
		ov, err := s.GetOverview(ctx, professionalID)
		if err != nil {
			return err
		}
		if ov.Professional.IsActive() {
			return fmt.Errorf("%w: professional is already active", ErrInvalidTransition)
		}
		if !ov.Onboarding.CanActivate {
			return &ActivationBlockedError{Blockers: ov.Onboarding.ActivationBlockers}
		}
		if err := s.profs.Activate(ctx, professionalID); err != nil {
			return err
		}
		out, err = s.GetOverview(ctx, professionalID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Invites
// ---------------------------------------------------------------------------

// CreateInvite revokes any open invite of the professional and creates a new
// pending one.
func (s *Service) CreateInvite(ctx context.Context, professionalID uuid.UUID, createdBy string) (*Invite, error) {
	if _, err := s.profs.GetProfessional(ctx, professionalID); err != nil {
		return nil, err
	}

	token, err := newToken()
	if err != nil {
		return nil, err
	}

	expires := s.now().Add(s.cfg.InviteTTL)
	inv := &Invite{
		ProfessionalID: professionalID,
		Token:          token,
		Status:         InvitePending,
		ExpiresAt:      &expires,
	}
	if createdBy != "" {
		inv.CreatedBy = &createdBy
	}

	// The open invite stays usable unless its replacement is stored.
	var revoked int64
	err = s.inTx(ctx, func(ctx context.Context) error {
		var err error
		if revoked, err = s.invites.RevokeOpen(ctx, professionalID); err != nil {
			return err
		}
		return s.invites.Create(ctx, inv)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("professional_id", professionalID.String()).
		Str("invite_id", inv.ID.String()).
		Int64("revoked", revoked).
		Msg("invite created")
	return inv, nil
}

// SendInvite marks a pending invite as sent and returns the link to share
// with the professional. Sending again refreshes SentAt.
func (s *Service) SendInvite(ctx context.Context, inviteID uuid.UUID) (*Invite, string, error) {
	inv, err := s.invites.GetByID(ctx, inviteID)
	if err != nil {
		return nil, "", err
	}
	now := s.now()
	if inv.Status != InvitePending || inv.ExpiredAt(now) {
		return nil, "", fmt.Errorf("%w: %s", ErrInviteNotUsable, DeriveInviteDisplayStatus(inv, now))
	}

	inv.SentAt = &now
	err = s.inTx(ctx, func(ctx context.Context) error {
		if err := s.invites.Update(ctx, inv); err != nil {
			return err
		}
		return s.profs.MarkInvited(ctx, inv.ProfessionalID)
	})
	if err != nil {
		return nil, "", err
	}

	if s.tasks != nil {
		if err := s.scheduleReminder(ctx, inv.ID, s.cfg.InviteTTL/2); err != nil {
			s.logger.Warn().Err(err).Str("invite_id", inv.ID.String()).Msg("schedule invite reminder")
		}
	}

	s.logger.Info().
		Str("professional_id", inv.ProfessionalID.String()).
		Str("invite_id", inv.ID.String()).
		Msg("invite sent")
	return inv, s.InviteLink(ctx, inv), nil
}

// InviteLink builds the public URL for an invite. Outside the default
// setup the tenant rides along as a query parameter, which the onboarding
// page sends back in the X-Tenant-ID header.
func (s *Service) InviteLink(ctx context.Context, inv *Invite) string {
	link := strings.TrimRight(s.cfg.InviteBaseURL, "/") + "/" + inv.Token
	if tid := db.TenantFromContext(ctx); tid != "" {
		link += "?tenant=" + url.QueryEscape(tid)
	}
	return link
}

// InviteSession is what a professional sees when following an invite link.
type InviteSession struct {
	Invite       *Invite                    `json:"invite"`
	Professional *professional.Professional `json:"professional"`
	Submission   *Submission                `json:"submission,omitempty"`
}

// OpenInvite records that the professional followed the link and returns
// the data needed to render the questionnaire.
func (s *Service) OpenInvite(ctx context.Context, token string) (*InviteSession, error) {
	inv, err := s.usableInvite(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := s.markOpened(ctx, inv); err != nil {
		return nil, err
	}

	prof, err := s.profs.GetProfessional(ctx, inv.ProfessionalID)
	if err != nil {
		return nil, err
	}
	sub, err := optional(s.subs.GetByInvite(ctx, inv.ID))
	if err != nil {
		return nil, err
	}
	return &InviteSession{Invite: inv, Professional: prof, Submission: sub}, nil
}

// RevokeInvite revokes any invite that has not been completed.
func (s *Service) RevokeInvite(ctx context.Context, inviteID uuid.UUID) (*Invite, error) {
	inv, err := s.invites.GetByID(ctx, inviteID)
	if err != nil {
		return nil, err
	}
	switch inv.Status {
	case InviteRevoked:
		return inv, nil
	case InviteCompleted:
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, inv.Status, InviteRevoked)
	}
	inv.Status = InviteRevoked
	if err := s.invites.Update(ctx, inv); err != nil {
		return nil, err
	}
	s.logger.Info().Str("invite_id", inv.ID.String()).Msg("invite revoked")
	return inv, nil
}

func (s *Service) ListInvites(ctx context.Context, professionalID uuid.UUID) ([]*Invite, error) {
	if _, err := s.profs.GetProfessional(ctx, professionalID); err != nil {
		return nil, err
	}
	return s.invites.ListByProfessional(ctx, professionalID)
}

// ExpireStaleInvites persists the expired status of pending invites past
// their expiry date.
func (s *Service) ExpireStaleInvites(ctx context.Context) (int64, error) {
	return s.invites.ExpireStale(ctx, s.now())
}

// RemindInvite reports whether the invite still awaits the professional and
// logs a reminder event if so.
func (s *Service) RemindInvite(ctx context.Context, inviteID uuid.UUID) (bool, error) {
	inv, err := s.invites.GetByID(ctx, inviteID)
	if err != nil {
		return false, err
	}
	if DeriveInviteDisplayStatus(inv, s.now()) != InviteDisplaySent {
		return false, nil
	}
	ev := s.logger.Info().
		Str("professional_id", inv.ProfessionalID.String()).
		Str("invite_id", inv.ID.String())
	if inv.ExpiresAt != nil {
		ev = ev.Time("expires_at", *inv.ExpiresAt)
	}
	ev.Msg("invite reminder due")
	return true, nil
}

// usableInvite resolves a public token to an invite that was sent, is
// pending or opened, and has not expired.
func (s *Service) usableInvite(ctx context.Context, token string) (*Invite, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	inv, err := s.invites.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	now := s.now()
	usable := (inv.Status == InvitePending || inv.Status == InviteOpened) &&
		inv.SentAt != nil && !inv.ExpiredAt(now)
	if !usable {
		return nil, fmt.Errorf("%w: %s", ErrInviteNotUsable, DeriveInviteDisplayStatus(inv, now))
	}
	return inv, nil
}

func (s *Service) markOpened(ctx context.Context, inv *Invite) error {
	if inv.Status != InvitePending {
		return nil
	}
	now := s.now()
	inv.Status = InviteOpened
	inv.OpenedAt = &now
	return s.invites.Update(ctx, inv)
}

func (s *Service) complete(ctx context.Context, inv *Invite) error {
	now := s.now()
	if inv.OpenedAt == nil {
		inv.OpenedAt = &now
	}
	inv.Status = InviteCompleted
	inv.CompletedAt = &now
	return s.invites.Update(ctx, inv)
}

func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate invite token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// ---------------------------------------------------------------------------
// Questionnaire
// ---------------------------------------------------------------------------

// SaveDraft creates or replaces the draft responses attached to an invite.
func (s *Service) SaveDraft(ctx context.Context, token string, responses json.RawMessage) (*Submission, error) {
	if err := validateResponses(responses); err != nil {
		return nil, err
	}
	inv, err := s.usableInvite(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := s.markOpened(ctx, inv); err != nil {
		return nil, err
	}

	sub, err := optional(s.subs.GetByInvite(ctx, inv.ID))
	if err != nil {
		return nil, err
	}
	if sub == nil {
		inviteID := inv.ID
		sub = &Submission{
			ProfessionalID: inv.ProfessionalID,
			InviteID:       &inviteID,
			Status:         SubmissionDraft,
			Responses:      responses,
		}
		if err := s.subs.Create(ctx, sub); err != nil {
			return nil, err
		}
		return sub, nil
	}
	if sub.Status != SubmissionDraft {
		return nil, fmt.Errorf("%w: submission is %s", ErrInvalidTransition, sub.Status)
	}
	sub.Responses = responses
	if err := s.subs.Update(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Submit finalizes the draft behind an invite and completes the invite.
// Non-empty responses replace the draft's before submitting.
func (s *Service) Submit(ctx context.Context, token string, responses json.RawMessage) (*Submission, error) {
	var sub *Submission
	err := s.inTx(ctx, func(ctx context.Context) error {
		if len(bytes.TrimSpace(responses)) > 0 {
			if _, err := s.SaveDraft(ctx, token, responses); err != nil {
				return err
			}
		}

		inv, err := s.usableInvite(ctx, token)
		if err != nil {
			return err
		}
		sub, err = s.subs.GetByInvite(ctx, inv.ID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("%w: nothing to submit", ErrValidation)
			}
			return err
		}
		if sub.Status != SubmissionDraft {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, sub.Status, SubmissionSubmitted)
		}

		now := s.now()
		sub.Status = SubmissionSubmitted
		sub.SubmittedAt = &now
		if err := s.subs.Update(ctx, sub); err != nil {
			return err
		}
		return s.complete(ctx, inv)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("professional_id", sub.ProfessionalID.String()).
		Str("submission_id", sub.ID.String()).
		Msg("questionnaire submitted")
	return sub, nil
}

func (s *Service) GetSubmission(ctx context.Context, id uuid.UUID) (*Submission, error) {
	return s.subs.GetByID(ctx, id)
}

// ReviewSubmission moves a submitted questionnaire into review.
func (s *Service) ReviewSubmission(ctx context.Context, id uuid.UUID, staff string) (*Submission, error) {
	sub, err := s.subs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status != SubmissionSubmitted {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, sub.Status, SubmissionReviewed)
	}
	now := s.now()
	sub.Status = SubmissionReviewed
	sub.ReviewedAt = &now
	sub.ReviewedBy = nonEmpty(staff)
	if err := s.subs.Update(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// ApproveSubmission approves a submitted or reviewed questionnaire.
func (s *Service) ApproveSubmission(ctx context.Context, id uuid.UUID, staff string) (*Submission, error) {
	sub, err := s.subs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status != SubmissionSubmitted && sub.Status != SubmissionReviewed {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, sub.Status, SubmissionApproved)
	}
	now := s.now()
	sub.Status = SubmissionApproved
	sub.ApprovedAt = &now
	sub.ApprovedBy = nonEmpty(staff)
	if err := s.subs.Update(ctx, sub); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("professional_id", sub.ProfessionalID.String()).
		Str("submission_id", sub.ID.String()).
		Msg("questionnaire approved")
	return sub, nil
}

func validateResponses(raw json.RawMessage) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return fmt.Errorf("%w: responses must be a JSON object", ErrValidation)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Documents
// ---------------------------------------------------------------------------

type UploadInput struct {
	ProfessionalID uuid.UUID
	Type           DocumentType
	FileName       string
	ContentType    string
	ExpiresAt      *time.Time
	Content        io.Reader
}

// UploadDocument stores the file and records an unverified document.
func (s *Service) UploadDocument(ctx context.Context, in UploadInput) (*Document, error) {
	if !in.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown document type %q", ErrValidation, in.Type)
	}
	name := sanitizeFileName(in.FileName)
	if name == "" {
		return nil, fmt.Errorf("%w: file name is required", ErrValidation)
	}
	if _, err := s.profs.GetProfessional(ctx, in.ProfessionalID); err != nil {
		return nil, err
	}

	doc := &Document{
		ID:             uuid.New(),
		ProfessionalID: in.ProfessionalID,
		Type:           in.Type,
		FileName:       name,
		ExpiresAt:      in.ExpiresAt,
	}
	doc.StorageKey = StorageKey(doc)

	meta, err := s.blobs.Upload(ctx, blobstore.BlobMetadata{
		Key:         doc.StorageKey,
		FileName:    name,
		ContentType: in.ContentType,
		Tags: map[string]string{
			"professional_id": in.ProfessionalID.String(),
			"document_type":   string(in.Type),
		},
	}, in.Content)
	if err != nil {
		return nil, err
	}
	doc.ContentType = meta.ContentType
	doc.Size = meta.Size
	if meta.PageCount > 0 {
		pages := meta.PageCount
		doc.PageCount = &pages
	}

	if err := s.docs.Create(ctx, doc); err != nil {
		if derr := s.blobs.Delete(ctx, doc.StorageKey); derr != nil {
			s.logger.Error().Err(derr).Str("key", doc.StorageKey).Msg("remove orphaned blob")
		}
		return nil, err
	}

	s.logger.Info().
		Str("professional_id", doc.ProfessionalID.String()).
		Str("document_id", doc.ID.String()).
		Str("document_type", string(doc.Type)).
		Int64("size", doc.Size).
		Msg("document uploaded")
	return doc, nil
}

// StorageKey is the blob key of a document.
func StorageKey(d *Document) string {
	return fmt.Sprintf("%s%s/%s-%s", storagePrefix(d.ProfessionalID), d.Type, d.ID, d.FileName)
}

func storagePrefix(professionalID uuid.UUID) string {
	return "professionals/" + professionalID.String() + "/"
}

func (s *Service) VerifyDocument(ctx context.Context, id uuid.UUID, staff string) (*Document, error) {
	now := s.now()
	if err := s.docs.SetVerification(ctx, id, &now, nonEmpty(staff)); err != nil {
		return nil, err
	}
	s.logger.Info().Str("document_id", id.String()).Str("verified_by", staff).Msg("document verified")
	return s.docs.GetByID(ctx, id)
}

func (s *Service) UnverifyDocument(ctx context.Context, id uuid.UUID) (*Document, error) {
	if err := s.docs.SetVerification(ctx, id, nil, nil); err != nil {
		return nil, err
	}
	return s.docs.GetByID(ctx, id)
}

// DeleteDocument removes the record and its blob. A blob that is already
// gone is not an error.
func (s *Service) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.docs.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.blobs.Delete(ctx, doc.StorageKey); err != nil && !errors.Is(err, blobstore.ErrBlobNotFound) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

// DownloadDocument opens the document content. The caller closes the reader.
func (s *Service) DownloadDocument(ctx context.Context, id uuid.UUID) (io.ReadCloser, *Document, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, _, err := s.blobs.Download(ctx, doc.StorageKey)
	if err != nil {
		return nil, nil, err
	}
	return rc, doc, nil
}

type linkPresigner interface {
	PresignDownload(ctx context.Context, key, fileName string, expiry time.Duration) (string, error)
}

// DocumentLink returns a direct download URL valid for DocumentLinkTTL, and
// its expiry. Only object storage backends can issue one.
func (s *Service) DocumentLink(ctx context.Context, id uuid.UUID) (string, time.Time, error) {
	p, ok := s.blobs.(linkPresigner)
	if !ok {
		return "", time.Time{}, ErrLinksUnsupported
	}
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return "", time.Time{}, err
	}
	expires := s.now().Add(DocumentLinkTTL)
	u, err := p.PresignDownload(ctx, doc.StorageKey, doc.FileName, DocumentLinkTTL)
	if err != nil {
		return "", time.Time{}, err
	}
	return u, expires, nil
}

// PurgeProfessionalFiles deletes every stored file of a professional. It
// runs as a professional delete hook; the document rows themselves go with
// the professional row.
func (s *Service) PurgeProfessionalFiles(ctx context.Context, professionalID uuid.UUID) error {
	blobs, err := s.blobs.List(ctx, storagePrefix(professionalID))
	if err != nil {
		return fmt.Errorf("list files: %w", err)
	}
	var errs []error
	for _, b := range blobs {
		if err := s.blobs.Delete(ctx, b.Key); err != nil && !errors.Is(err, blobstore.ErrBlobNotFound) {
			errs = append(errs, fmt.Errorf("delete %s: %w", b.Key, err))
		}
	}
	if len(blobs) > 0 {
		s.logger.Info().
			Str("professional_id", professionalID.String()).
			Int("files", len(blobs)).
			Msg("professional files purged")
	}
	return errors.Join(errs...)
}

func (s *Service) ListDocuments(ctx context.Context, professionalID uuid.UUID) ([]*Document, error) {
	if _, err := s.profs.GetProfessional(ctx, professionalID); err != nil {
		return nil, err
	}
	return s.docs.ListByProfessional(ctx, professionalID)
}

// ExpiringDocuments lists documents that expire within the given window.
func (s *Service) ExpiringDocuments(ctx context.Context, within time.Duration) ([]*Document, error) {
	now := s.now()
	return s.docs.ExpiringBetween(ctx, now, now.Add(within))
}

func sanitizeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	if name == "." || name == "/" {
		return ""
	}
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == '"' {
			return '_'
		}
		return r
	}, name)
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// optional turns ErrNotFound into a nil result.
func optional[T any](v *T, err error) (*T, error) {
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return v, err
}
