package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/spec-kit/clearance-service/internal/domain"
)

// MemoryStore is an in-process Store. RunInTx holds one coarse lock for the whole
// callback and applies staged writes only when the callback succeeds.
type MemoryStore struct {
	mu            sync.Mutex
	profiles      map[string]*domain.Profile
	applications  map[string]*domain.Application
	review        map[string]domain.ReviewItem
	notifications map[string]map[string]domain.NotificationItem
	mail          map[string]*domain.MailRecord
	identities    map[string]*domain.Identity
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles:      make(map[string]*domain.Profile),
		applications:  make(map[string]*domain.Application),
		review:        make(map[string]domain.ReviewItem),
		notifications: make(map[string]map[string]domain.NotificationItem),
		mail:          make(map[string]*domain.MailRecord),
		identities:    make(map[string]*domain.Identity),
	}
}

func (s *MemoryStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{
		store:        s,
		profiles:     make(map[string]*domain.Profile),
		applications: make(map[string]*domain.Application),
		mail:         make(map[string]*domain.MailRecord),
	}
	if err := fn(tx); err != nil {
		return err
	}
	for id, p := range tx.profiles {
		s.profiles[id] = p
	}
	for id, a := range tx.applications {
		s.applications[id] = a
	}
	for id, m := range tx.mail {
		s.mail[id] = m
	}
	return nil
}

func (s *MemoryStore) Profiles() ProfileReader               { return memoryProfiles{s} }
func (s *MemoryStore) Applications() ApplicationReader       { return memoryApplications{s} }
func (s *MemoryStore) ReviewQueue() ReviewQueueRepository    { return memoryReviewQueue{s} }
func (s *MemoryStore) Notifications() NotificationRepository { return memoryNotifications{s} }
func (s *MemoryStore) Mail() MailRepository                  { return memoryMail{s} }
func (s *MemoryStore) Identities() IdentityRepository        { return memoryIdentities{s} }

type memoryTx struct {
	store        *MemoryStore
	profiles     map[string]*domain.Profile
	applications map[string]*domain.Application
	mail         map[string]*domain.MailRecord
}

func (t *memoryTx) GetProfile(_ context.Context, id string) (*domain.Profile, error) {
	if p, ok := t.profiles[id]; ok {
		return p.Clone(), nil
	}
	if p, ok := t.store.profiles[id]; ok {
		return p.Clone(), nil
	}
	return nil, ErrNotFound
}

func (t *memoryTx) InsertProfile(_ context.Context, profile *domain.Profile) error {
	t.profiles[profile.ID] = profile.Clone()
	return nil
}

func (t *memoryTx) UpdateProfile(ctx context.Context, profile *domain.Profile) error {
	if _, err := t.GetProfile(ctx, profile.ID); err != nil {
		return err
	}
	t.profiles[profile.ID] = profile.Clone()
	return nil
}

func (t *memoryTx) GetApplication(_ context.Context, id string) (*domain.Application, error) {
	if a, ok := t.applications[id]; ok {
		return a.Clone(), nil
	}
	if a, ok := t.store.applications[id]; ok {
		return a.Clone(), nil
	}
	return nil, ErrNotFound
}

func (t *memoryTx) InsertApplication(_ context.Context, app *domain.Application) error {
	t.applications[app.ID] = app.Clone()
	return nil
}

func (t *memoryTx) UpdateApplication(ctx context.Context, app *domain.Application) error {
	if _, err := t.GetApplication(ctx, app.ID); err != nil {
		return err
	}
	t.applications[app.ID] = app.Clone()
	return nil
}

func (t *memoryTx) GetMail(_ context.Context, id string) (*domain.MailRecord, error) {
	if m, ok := t.mail[id]; ok {
		return m.Clone(), nil
	}
	if m, ok := t.store.mail[id]; ok {
		return m.Clone(), nil
	}
	return nil, ErrNotFound
}

func (t *memoryTx) UpdateMail(ctx context.Context, record *domain.MailRecord) error {
	if _, err := t.GetMail(ctx, record.ID); err != nil {
		return err
	}
	t.mail[record.ID] = record.Clone()
	return nil
}

type memoryProfiles struct{ s *MemoryStore }

func (r memoryProfiles) Get(_ context.Context, id string) (*domain.Profile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if p, ok := r.s.profiles[id]; ok {
		return p.Clone(), nil
	}
	return nil, ErrNotFound
}

func (r memoryProfiles) CountByStatus(_ context.Context, status domain.ProfileStatus) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, p := range r.s.profiles {
		if p.Status == status {
			n++
		}
	}
	return n, nil
}

func (r memoryProfiles) CountDecidedSince(_ context.Context, status domain.ProfileStatus, since time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, p := range r.s.profiles {
		if p.Status == status && p.DecidedAt != nil && !p.DecidedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

type memoryApplications struct{ s *MemoryStore }

func (r memoryApplications) Get(_ context.Context, id string) (*domain.Application, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if a, ok := r.s.applications[id]; ok {
		return a.Clone(), nil
	}
	return nil, ErrNotFound
}

func (r memoryApplications) ListByAgent(_ context.Context, agentUID string, limit, offset int) ([]domain.Application, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var result []domain.Application
	for _, a := range r.s.applications {
		if a.AgentUID == agentUID {
			result = append(result, *a.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UpdatedAt.After(result[j].UpdatedAt) })
	return paginate(result, limit, offset), nil
}

func (r memoryApplications) CountByTypeStatus(_ context.Context, appType domain.ApplicationType, status domain.ApplicationStatus) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, a := range r.s.applications {
		if a.Type == appType && a.Status == status {
			n++
		}
	}
	return n, nil
}

type memoryReviewQueue struct{ s *MemoryStore }

func (r memoryReviewQueue) InsertOnce(_ context.Context, item domain.ReviewItem) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.review[item.ID]; exists {
		return false, nil
	}
	r.s.review[item.ID] = item
	return true, nil
}

func (r memoryReviewQueue) Get(_ context.Context, id string) (*domain.ReviewItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	item, ok := r.s.review[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &item, nil
}

func (r memoryReviewQueue) List(_ context.Context, limit, offset int) ([]domain.ReviewItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var result []domain.ReviewItem
	for _, item := range r.s.review {
		if p, ok := r.s.profiles[item.ProfileID]; ok && p.Status == domain.StatusPendingApproval {
			result = append(result, item)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SubmittedAt.Before(result[j].SubmittedAt) })
	return paginate(result, limit, offset), nil
}

type memoryNotifications struct{ s *MemoryStore }

func (r memoryNotifications) InsertOnce(_ context.Context, item domain.NotificationItem) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	items, ok := r.s.notifications[item.ProfileID]
	if !ok {
		items = make(map[string]domain.NotificationItem)
		r.s.notifications[item.ProfileID] = items
	}
	if _, exists := items[item.ID]; exists {
		return false, nil
	}
	items[item.ID] = item
	return true, nil
}

func (r memoryNotifications) ListByProfile(_ context.Context, profileID string, limit int) ([]domain.NotificationItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var result []domain.NotificationItem
	for _, item := range r.s.notifications[profileID] {
		result = append(result, item)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return paginate(result, limit, 0), nil
}

type memoryMail struct{ s *MemoryStore }

func (r memoryMail) InsertOnce(_ context.Context, record domain.MailRecord) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.mail[record.ID]; exists {
		return false, nil
	}
	r.s.mail[record.ID] = record.Clone()
	return true, nil
}

func (r memoryMail) Get(_ context.Context, id string) (*domain.MailRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if m, ok := r.s.mail[id]; ok {
		return m.Clone(), nil
	}
	return nil, ErrNotFound
}

type memoryIdentities struct{ s *MemoryStore }

func (r memoryIdentities) Upsert(_ context.Context, identity *domain.Identity) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now().UTC()
	existing, ok := r.s.identities[identity.UID]
	if !ok {
		cp := *identity
		cp.CreatedAt, cp.UpdatedAt = now, now
		r.s.identities[identity.UID] = &cp
		identity.CreatedAt, identity.UpdatedAt = now, now
		return nil
	}
	existing.Email = identity.Email
	existing.DisplayName = identity.DisplayName
	existing.EmailVerified = existing.EmailVerified || identity.EmailVerified
	if existing.Role == "" {
		existing.Role = identity.Role
	}
	existing.UpdatedAt = now
	identity.CreatedAt, identity.UpdatedAt = existing.CreatedAt, now
	return nil
}

func (r memoryIdentities) Get(_ context.Context, uid string) (*domain.Identity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	identity, ok := r.s.identities[uid]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *identity
	return &cp, nil
}

func (r memoryIdentities) SetRole(_ context.Context, uid string, role domain.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	identity, ok := r.s.identities[uid]
	if !ok {
		return ErrNotFound
	}
	identity.Role = role
	identity.UpdatedAt = time.Now().UTC()
	return nil
}

func (r memoryIdentities) MarkEmailVerified(_ context.Context, uid string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	identity, ok := r.s.identities[uid]
	if !ok {
		return ErrNotFound
	}
	identity.EmailVerified = true
	identity.UpdatedAt = time.Now().UTC()
	return nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
