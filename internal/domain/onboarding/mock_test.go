package onboarding

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/clinicops/staffadmin/internal/domain/professional"
	"github.com/clinicops/staffadmin/internal/platform/blobstore"
)

// -- professional.Repository --

type mockProfRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*professional.Professional
}

func newMockProfRepo() *mockProfRepo {
	return &mockProfRepo{items: make(map[uuid.UUID]*professional.Professional)}
}

func (m *mockProfRepo) Create(_ context.Context, p *professional.Professional) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	m.items[p.ID] = &cp
	return nil
}

func (m *mockProfRepo) GetByID(_ context.Context, id uuid.UUID) (*professional.Professional, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return nil, professional.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockProfRepo) GetByEmail(_ context.Context, email string) (*professional.Professional, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.items {
		if p.Email == email {
			cp := *p
			return &cp, nil
		}
	}
	return nil, professional.ErrNotFound
}

func (m *mockProfRepo) Update(_ context.Context, p *professional.Professional) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[p.ID]; !ok {
		return professional.ErrNotFound
	}
	cp := *p
	m.items[p.ID] = &cp
	return nil
}

func (m *mockProfRepo) UpdateStatus(_ context.Context, id uuid.UUID, status professional.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return professional.ErrNotFound
	}
	p.Status = status
	return nil
}

func (m *mockProfRepo) SetSpecialties(_ context.Context, id uuid.UUID, specialties []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return professional.ErrNotFound
	}
	p.Specialties = specialties
	return nil
}

func (m *mockProfRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return professional.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *mockProfRepo) List(_ context.Context, limit, offset int) ([]*professional.Professional, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*professional.Professional
	for _, p := range m.items {
		cp := *p
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].LastName < all[j].LastName })
	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *mockProfRepo) Search(ctx context.Context, _ map[string]string, limit, offset int) ([]*professional.Professional, int, error) {
	return m.List(ctx, limit, offset)
}

// -- InviteRepository --

type mockInviteRepo struct {
	mu        sync.Mutex
	items     map[uuid.UUID]*Invite
	createErr error
	updateErr error
}

func newMockInviteRepo() *mockInviteRepo {
	return &mockInviteRepo{items: make(map[uuid.UUID]*Invite)}
}

func (m *mockInviteRepo) Create(_ context.Context, inv *Invite) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	inv.ID = uuid.New()
	inv.CreatedAt = time.Now().Add(time.Duration(len(m.items)) * time.Millisecond)
	cp := *inv
	m.items[inv.ID] = &cp
	return nil
}

func (m *mockInviteRepo) GetByID(_ context.Context, id uuid.UUID) (*Invite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (m *mockInviteRepo) GetByToken(_ context.Context, token string) (*Invite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.items {
		if inv.Token == token {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockInviteRepo) sorted(professionalID uuid.UUID) []*Invite {
	var out []*Invite
	for _, inv := range m.items {
		if inv.ProfessionalID == professionalID {
			cp := *inv
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() > out[j].ID.String()
	})
	return out
}

func (m *mockInviteRepo) Latest(_ context.Context, professionalID uuid.UUID) (*Invite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sorted(professionalID)
	if len(all) == 0 {
		return nil, ErrNotFound
	}
	return all[0], nil
}

func (m *mockInviteRepo) ListByProfessional(_ context.Context, professionalID uuid.UUID) ([]*Invite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(professionalID), nil
}

func (m *mockInviteRepo) Update(_ context.Context, inv *Invite) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.items[inv.ID]; !ok {
		return ErrNotFound
	}
	cp := *inv
	m.items[inv.ID] = &cp
	return nil
}

func (m *mockInviteRepo) RevokeOpen(_ context.Context, professionalID uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, inv := range m.items {
		if inv.ProfessionalID == professionalID && (inv.Status == InvitePending || inv.Status == InviteOpened) {
			inv.Status = InviteRevoked
			n++
		}
	}
	return n, nil
}

func (m *mockInviteRepo) ExpireStale(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, inv := range m.items {
		if inv.Status == InvitePending && inv.ExpiredAt(now) {
			inv.Status = InviteExpired
			n++
		}
	}
	return n, nil
}

// -- SubmissionRepository --

type mockSubmissionRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*Submission
}

func newMockSubmissionRepo() *mockSubmissionRepo {
	return &mockSubmissionRepo{items: make(map[uuid.UUID]*Submission)}
}

func (m *mockSubmissionRepo) Create(_ context.Context, s *Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = uuid.New()
	s.CreatedAt = time.Now().Add(time.Duration(len(m.items)) * time.Millisecond)
	s.UpdatedAt = s.CreatedAt
	cp := *s
	m.items[s.ID] = &cp
	return nil
}

func (m *mockSubmissionRepo) GetByID(_ context.Context, id uuid.UUID) (*Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *mockSubmissionRepo) find(match func(*Submission) bool) (*Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *Submission
	for _, s := range m.items {
		if !match(s) {
			continue
		}
		if best == nil || s.CreatedAt.After(best.CreatedAt) ||
			(s.CreatedAt.Equal(best.CreatedAt) && s.ID.String() > best.ID.String()) {
			best = s
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (m *mockSubmissionRepo) GetByInvite(_ context.Context, inviteID uuid.UUID) (*Submission, error) {
	return m.find(func(s *Submission) bool { return s.InviteID != nil && *s.InviteID == inviteID })
}

func (m *mockSubmissionRepo) Latest(_ context.Context, professionalID uuid.UUID) (*Submission, error) {
	return m.find(func(s *Submission) bool { return s.ProfessionalID == professionalID })
}

func (m *mockSubmissionRepo) Update(_ context.Context, s *Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[s.ID]; !ok {
		return ErrNotFound
	}
	s.UpdatedAt = time.Now()
	cp := *s
	m.items[s.ID] = &cp
	return nil
}

// -- DocumentRepository --

type mockDocumentRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*Document
}

func newMockDocumentRepo() *mockDocumentRepo {
	return &mockDocumentRepo{items: make(map[uuid.UUID]*Document)}
}

func (m *mockDocumentRepo) Create(_ context.Context, d *Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.CreatedAt = time.Now()
	cp := *d
	m.items[d.ID] = &cp
	return nil
}

func (m *mockDocumentRepo) GetByID(_ context.Context, id uuid.UUID) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *mockDocumentRepo) ListByProfessional(_ context.Context, professionalID uuid.UUID) ([]*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Document
	for _, d := range m.items {
		if d.ProfessionalID == professionalID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockDocumentRepo) SetVerification(_ context.Context, id uuid.UUID, verifiedAt *time.Time, verifiedBy *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	d.VerifiedAt = verifiedAt
	d.VerifiedBy = verifiedBy
	return nil
}

func (m *mockDocumentRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *mockDocumentRepo) ExpiringBetween(_ context.Context, from, to time.Time) ([]*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Document
	for _, d := range m.items {
		if d.ExpiresAt != nil && !d.ExpiresAt.Before(from) && d.ExpiresAt.Before(to) {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

// -- TaskEnqueuer --

type enqueued struct {
	task *asynq.Task
	opts []asynq.Option
}

type mockEnqueuer struct {
	mu    sync.Mutex
	tasks []enqueued
	err   error
}

func (m *mockEnqueuer) Enqueue(_ context.Context, task *asynq.Task, opts ...asynq.Option) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.tasks = append(m.tasks, enqueued{task: task, opts: opts})
	return nil
}

// -- fixture --

type fixture struct {
	svc      *Service
	profRepo *mockProfRepo
	invites  *mockInviteRepo
	subs     *mockSubmissionRepo
	docs     *mockDocumentRepo
	blobs    *blobstore.InMemoryBlobStore
	tasks    *mockEnqueuer
	clock    time.Time
	txCalls  int
}

func newFixture() *fixture {
	f := &fixture{
		profRepo: newMockProfRepo(),
		invites:  newMockInviteRepo(),
		subs:     newMockSubmissionRepo(),
		docs:     newMockDocumentRepo(),
		blobs:    blobstore.NewInMemoryBlobStore(0),
		tasks:    &mockEnqueuer{},
		clock:    time.Now().UTC(),
	}
	profs := professional.NewService(f.profRepo, zerolog.Nop())
	f.svc = NewService(profs, f.invites, f.subs, f.docs, f.blobs,
		Config{InviteTTL: 14 * 24 * time.Hour, InviteBaseURL: "https://onboarding.example.com/i/"},
		zerolog.Nop())
	f.svc.SetTaskEnqueuer(f.tasks)
	f.svc.SetTxRunner(f.withTx)
	f.svc.now = func() time.Time { return f.clock }
	return f
}

// withTx stands in for a database transaction: repository state is
// restored when fn fails.
func (f *fixture) withTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.txCalls++
	invites := snapshot(&f.invites.mu, f.invites.items)
	subs := snapshot(&f.subs.mu, f.subs.items)
	profs := snapshot(&f.profRepo.mu, f.profRepo.items)
	if err := fn(ctx); err != nil {
		restore(&f.invites.mu, &f.invites.items, invites)
		restore(&f.subs.mu, &f.subs.items, subs)
		restore(&f.profRepo.mu, &f.profRepo.items, profs)
		return err
	}
	return nil
}

func snapshot[T any](mu *sync.Mutex, items map[uuid.UUID]*T) map[uuid.UUID]*T {
	mu.Lock()
	defer mu.Unlock()
	out := make(map[uuid.UUID]*T, len(items))
	for id, v := range items {
		cp := *v
		out[id] = &cp
	}
	return out
}

func restore[T any](mu *sync.Mutex, items *map[uuid.UUID]*T, saved map[uuid.UUID]*T) {
	mu.Lock()
	defer mu.Unlock()
	*items = saved
}

func (f *fixture) advance(d time.Duration) { f.clock = f.clock.Add(d) }

func (f *fixture) newProfessional(status professional.Status) *professional.Professional {
	p := &professional.Professional{FirstName: "Camille", LastName: "Durand", Email: "camille@example.com", Status: status}
	_ = f.profRepo.Create(context.Background(), p)
	return p
}

func (f *fixture) status(id uuid.UUID) professional.Status {
	p, _ := f.profRepo.GetByID(context.Background(), id)
	return p.Status
}
