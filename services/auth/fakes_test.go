package auth

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bluewing/auth-core/models"
	"github.com/bluewing/auth-core/repositories"
	"github.com/bluewing/auth-core/tenancy"
	"github.com/google/uuid"
)

// clock is a settable time source shared by the managers under test
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memRefreshTokens struct {
	mu         sync.Mutex
	byToken    map[string]*models.RefreshToken
	duplicates int
}

func newMemRefreshTokens() *memRefreshTokens {
	return &memRefreshTokens{byToken: make(map[string]*models.RefreshToken)}
}

func (r *memRefreshTokens) Create(ctx context.Context, scope tenancy.Scope, token *models.RefreshToken) error {
	if err := scope.Stamp(token); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.duplicates > 0 {
		r.duplicates--
		return repositories.ErrDuplicate
	}
	if _, ok := r.byToken[token.Token]; ok {
		return repositories.ErrDuplicate
	}
	cp := *token
	r.byToken[token.Token] = &cp
	return nil
}

func (r *memRefreshTokens) GetByToken(ctx context.Context, scope tenancy.Scope, token string) (*models.RefreshToken, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byToken[token]
	if !ok || scope.Admit(t) != nil {
		return nil, repositories.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *memRefreshTokens) Use(ctx context.Context, scope tenancy.Scope, token string, now, notBefore time.Time) (*models.RefreshToken, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byToken[token]
	if !ok || scope.Admit(t) != nil || t.IsRotated() || t.UpdatedAt.Before(notBefore) {
		return nil, repositories.ErrNotFound
	}
	t.UseCount++
	t.UpdatedAt = now
	cp := *t
	return &cp, nil
}

func (r *memRefreshTokens) MarkRotated(ctx context.Context, scope tenancy.Scope, token string, now time.Time) (int64, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byToken[token]
	if !ok || scope.Admit(t) != nil || t.IsRotated() {
		return 0, nil
	}
	t.RotatedAt = &now
	t.UpdatedAt = now
	return 1, nil
}

func (r *memRefreshTokens) ListByMember(ctx context.Context, scope tenancy.Scope, memberID uuid.UUID, notBefore time.Time) ([]*models.RefreshToken, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.RefreshToken
	for _, t := range r.byToken {
		if t.MemberID == memberID && scope.Admit(t) == nil && !t.IsRotated() && !t.UpdatedAt.Before(notBefore) {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (r *memRefreshTokens) deleteWhere(scope tenancy.Scope, match func(*models.RefreshToken) bool) (int64, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k, t := range r.byToken {
		if scope.Admit(t) == nil && match(t) {
			delete(r.byToken, k)
			n++
		}
	}
	return n, nil
}

func (r *memRefreshTokens) DeleteByToken(ctx context.Context, scope tenancy.Scope, token string) (int64, error) {
	return r.deleteWhere(scope, func(t *models.RefreshToken) bool { return t.Token == token })
}

func (r *memRefreshTokens) DeleteByMember(ctx context.Context, scope tenancy.Scope, memberID uuid.UUID) (int64, error) {
	return r.deleteWhere(scope, func(t *models.RefreshToken) bool { return t.MemberID == memberID })
}

func (r *memRefreshTokens) DeleteByDevice(ctx context.Context, scope tenancy.Scope, memberID uuid.UUID, device string) (int64, error) {
	return r.deleteWhere(scope, func(t *models.RefreshToken) bool {
		return t.MemberID == memberID && t.DeviceName() == device
	})
}

func (r *memRefreshTokens) DeleteUpdatedBefore(ctx context.Context, scope tenancy.Scope, cutoff time.Time) (int64, error) {
	return r.deleteWhere(scope, func(t *models.RefreshToken) bool { return t.UpdatedAt.Before(cutoff) })
}

func (r *memRefreshTokens) get(token string) *models.RefreshToken {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byToken[token]
	if !ok {
		return nil
	}
	cp := *t
	return &cp
}

func (r *memRefreshTokens) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byToken)
}

type memOrganizations struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*models.Organization
}

func (r *memOrganizations) Create(ctx context.Context, org *models.Organization) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.rows {
		if o.Slug == org.Slug {
			return repositories.ErrDuplicate
		}
	}
	r.rows[org.ID] = org
	return nil
}

func (r *memOrganizations) GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.rows[id]; ok {
		return o, nil
	}
	return nil, repositories.ErrNotFound
}

func (r *memOrganizations) GetBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.rows {
		if o.Slug == slug {
			return o, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *memOrganizations) List(ctx context.Context, limit, offset int) ([]*models.Organization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Organization
	for _, o := range r.rows {
		out = append(out, o)
	}
	return out, nil
}

func (r *memOrganizations) Update(ctx context.Context, org *models.Organization) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[org.ID] = org
	return nil
}

func (r *memOrganizations) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, id)
	return nil
}

type memUsers struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*models.User
}

func (r *memUsers) Create(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.rows {
		if u.Email == user.Email {
			return repositories.ErrDuplicate
		}
	}
	r.rows[user.ID] = user
	return nil
}

func (r *memUsers) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.rows[id]; ok {
		return u, nil
	}
	return nil, repositories.ErrNotFound
}

func (r *memUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	email = models.NormalizeEmail(email)
	for _, u := range r.rows {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *memUsers) Update(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[user.ID] = user
	return nil
}

type memMembers struct {
	mu   sync.Mutex
	rows []*models.Member
}

func (r *memMembers) Create(ctx context.Context, scope tenancy.Scope, member *models.Member) error {
	if err := scope.Stamp(member); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, member)
	return nil
}

func (r *memMembers) GetByID(ctx context.Context, scope tenancy.Scope, id uuid.UUID) (*models.Member, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.rows {
		if m.ID == id && scope.Admit(m) == nil {
			cp := *m
			return &cp, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *memMembers) ListByUser(ctx context.Context, scope tenancy.Scope, userID uuid.UUID) ([]*models.Member, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Member
	for _, m := range r.rows {
		if m.UserID == userID && scope.Admit(m) == nil {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memMembers) List(ctx context.Context, scope tenancy.Scope, limit, offset int) ([]*models.Member, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Member
	for _, m := range r.rows {
		if scope.Admit(m) == nil {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memMembers) Delete(ctx context.Context, scope tenancy.Scope, id uuid.UUID) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, m := range r.rows {
		if m.ID == id && scope.Admit(m) == nil {
			r.rows = append(r.rows[:i], r.rows[i+1:]...)
			return nil
		}
	}
	return repositories.ErrNotFound
}

// passthroughTx runs fn directly; the in-memory repositories have no rollback
type passthroughTx struct {
	ctx context.Context
}

func (t *passthroughTx) Commit() error            { return nil }
func (t *passthroughTx) Rollback() error          { return nil }
func (t *passthroughTx) Context() context.Context { return t.ctx }

type passthroughTxManager struct{}

func (passthroughTxManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	return &passthroughTx{ctx: ctx}, nil
}

func (m passthroughTxManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	tx, _ := m.Begin(ctx)
	return fn(ctx, tx)
}

type recordingAuditor struct {
	mu      sync.Mutex
	entries []*models.AuditLog
}

func (r *recordingAuditor) Record(ctx context.Context, log *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, log)
	return nil
}

func (r *recordingAuditor) actions() []models.AuditAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.AuditAction, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}
