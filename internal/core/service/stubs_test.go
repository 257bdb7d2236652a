package service

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bestheroz/account-service/internal/core/domain"
	"github.com/bestheroz/account-service/internal/core/ports"
)

// ---------------------------------------------------------------------------
// In-memory stub repository
// ---------------------------------------------------------------------------

type stubAccountRepo struct {
	mu       sync.Mutex
	kind     domain.Kind
	byID     map[int64]*domain.Account
	err      error // if set, every call returns it
	takenErr error // if set, LoginIDTaken returns it

	// findHook runs before FindByID reads the map; tests use it to block.
	findHook func(ctx context.Context) error
	// takenHook runs before LoginIDTaken reads the map.
	takenHook func(ctx context.Context) error

	rotations int
}

func newStubAccountRepo(kind domain.Kind) *stubAccountRepo {
	return &stubAccountRepo{kind: kind, byID: make(map[int64]*domain.Account)}
}

func (r *stubAccountRepo) put(a *domain.Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *a
	r.byID[a.ID] = &clone
}

func (r *stubAccountRepo) get(id int64) *domain.Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return nil
	}
	clone := *a
	return &clone
}

func (r *stubAccountRepo) Kind() domain.Kind { return r.kind }

func (r *stubAccountRepo) loginIDTakenLocked(loginID string, excludeID int64) bool {
	for _, a := range r.byID {
		if !a.RemovedFlag && a.LoginID == loginID && a.ID != excludeID {
			return true
		}
	}
	return false
}

func (r *stubAccountRepo) Create(_ context.Context, a *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if r.loginIDTakenLocked(a.LoginID, 0) {
		return domain.ErrDuplicateLoginID
	}
	clone := *a
	r.byID[a.ID] = &clone
	return nil
}

// Update mirrors the real stores: session columns are left untouched unless
// the account is being removed.
func (r *stubAccountRepo) Update(_ context.Context, a *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	current, ok := r.byID[a.ID]
	if !ok {
		return domain.ErrAccountNotFound
	}
	if !a.RemovedFlag && r.loginIDTakenLocked(a.LoginID, a.ID) {
		return domain.ErrDuplicateLoginID
	}
	clone := *a
	clone.RefreshToken = current.RefreshToken
	clone.LatestActiveAt = current.LatestActiveAt
	if a.RemovedFlag {
		clone.RefreshToken = ""
	}
	r.byID[a.ID] = &clone
	return nil
}

func (r *stubAccountRepo) FindByID(ctx context.Context, id int64) (*domain.Account, error) {
	if r.findHook != nil {
		if err := r.findHook(ctx); err != nil {
			return nil, err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	a, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	clone := *a
	return &clone, nil
}

func (r *stubAccountRepo) FindActiveByLoginID(_ context.Context, loginID string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	for _, a := range r.byID {
		if !a.RemovedFlag && a.LoginID == loginID {
			clone := *a
			return &clone, nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

func (r *stubAccountRepo) LoginIDTaken(ctx context.Context, loginID string, excludeID int64) (bool, error) {
	if r.takenHook != nil {
		if err := r.takenHook(ctx); err != nil {
			return false, err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.takenErr != nil {
		return false, r.takenErr
	}
	if r.err != nil {
		return false, r.err
	}
	return r.loginIDTakenLocked(loginID, excludeID), nil
}

// List applies the same filters the real repositories use.
func (r *stubAccountRepo) List(_ context.Context, f ports.ListAccountsFilter) ([]*domain.Account, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, 0, r.err
	}

	var matched []*domain.Account
	for _, a := range r.byID {
		if a.RemovedFlag {
			continue
		}
		if f.ID != 0 && a.ID != f.ID {
			continue
		}
		if f.LoginID != "" && !strings.Contains(a.LoginID, f.LoginID) {
			continue
		}
		if f.Name != "" && !strings.Contains(a.Name, f.Name) {
			continue
		}
		if f.UseFlag != nil && a.UseFlag != *f.UseFlag {
			continue
		}
		if f.ManagerFlag != nil && a.ManagerFlag != *f.ManagerFlag {
			continue
		}
		clone := *a
		matched = append(matched, &clone)
	}
	slices.SortFunc(matched, func(a, b *domain.Account) int {
		switch {
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		}
		return 0
	})

	total := int64(len(matched))
	skip := (f.Page - 1) * f.PageSize
	if skip > len(matched) {
		return []*domain.Account{}, total, nil
	}
	end := min(skip+f.PageSize, len(matched))
	return matched[skip:end], total, nil
}

func (r *stubAccountRepo) SetRefreshToken(_ context.Context, id int64, token string, activeAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	a, ok := r.byID[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	a.RefreshToken = token
	a.LatestActiveAt = &activeAt
	return nil
}

func (r *stubAccountRepo) RotateRefreshToken(_ context.Context, id int64, current, next string, activeAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	a, ok := r.byID[id]
	if !ok || a.RemovedFlag || a.RefreshToken != current {
		return false, nil
	}
	a.RefreshToken = next
	a.LatestActiveAt = &activeAt
	r.rotations++
	return true, nil
}

func (r *stubAccountRepo) ClearRefreshToken(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	a, ok := r.byID[id]
	if !ok {
		return domain.ErrAccountNotFound
	}
	a.RefreshToken = ""
	return nil
}

// ---------------------------------------------------------------------------
// Security stubs
// ---------------------------------------------------------------------------

// plainHasher stores passwords as "hashed:<plain>".
type plainHasher struct{}

func (plainHasher) Hash(plain string) (string, error) { return "hashed:" + plain, nil }

func (plainHasher) Verify(plain, digest string) bool {
	return digest != "" && digest == "hashed:"+plain
}

type seqIDs struct {
	mu   sync.Mutex
	next int64
}

func (g *seqIDs) NextID() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return g.next
}

// stubTokens issues tokens of the form "<use>|<kind>|<id>|<seq>".
type stubTokens struct {
	mu      sync.Mutex
	seq     int
	expired map[string]bool
}

func newStubTokens() *stubTokens {
	return &stubTokens{expired: make(map[string]bool)}
}

func (t *stubTokens) issue(use string, op domain.Operator) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	return fmt.Sprintf("%s|%s|%d|%d", use, op.Kind, op.ID, t.seq)
}

func (t *stubTokens) expire(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.expired[token] = true
}

func (t *stubTokens) CreateAccessToken(op domain.Operator) (string, error) {
	return t.issue("access", op), nil
}

func (t *stubTokens) CreateRefreshToken(op domain.Operator) (string, error) {
	return t.issue("refresh", op), nil
}

func (t *stubTokens) ValidateRefreshToken(token string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.HasPrefix(token, "refresh|") && !t.expired[token]
}

func (t *stubTokens) DecodeSubject(token string) (int64, domain.Kind, error) {
	parts := strings.Split(token, "|")
	if len(parts) != 4 {
		return 0, "", fmt.Errorf("malformed token")
	}
	id, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return 0, "", err
	}
	return id, domain.Kind(parts[1]), nil
}

func (t *stubTokens) ParseAccessToken(token string) (*domain.Operator, error) {
	id, kind, err := t.DecodeSubject(token)
	if err != nil || !strings.HasPrefix(token, "access|") {
		return nil, fmt.Errorf("invalid token")
	}
	return &domain.Operator{ID: id, Kind: kind}, nil
}

// stubLimiter counts failures in memory.
type stubLimiter struct {
	mu       sync.Mutex
	max      int
	failures map[string]int
	checkErr error
}

func newStubLimiter(limit int) *stubLimiter {
	return &stubLimiter{max: limit, failures: make(map[string]int)}
}

func (l *stubLimiter) key(kind domain.Kind, loginID string) string {
	return string(kind) + ":" + loginID
}

func (l *stubLimiter) Check(_ context.Context, kind domain.Kind, loginID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.checkErr != nil {
		return l.checkErr
	}
	if l.failures[l.key(kind, loginID)] >= l.max {
		return domain.ErrTooManyLoginAttempts
	}
	return nil
}

func (l *stubLimiter) RecordFailure(_ context.Context, kind domain.Kind, loginID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures[l.key(kind, loginID)]++
	return nil
}

func (l *stubLimiter) Reset(_ context.Context, kind domain.Kind, loginID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.failures, l.key(kind, loginID))
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

var discardLogger = zerolog.Nop()

// fakeClock is a manually advanced clock shared by services under test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func seedAccount(repo *stubAccountRepo, id int64, loginID, password string) *domain.Account {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := &domain.Account{
		ID:             id,
		Kind:           repo.kind,
		LoginID:        loginID,
		PasswordDigest: "hashed:" + password,
		Name:           "name-" + loginID,
		UseFlag:        true,
		JoinedAt:       now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	repo.put(a)
	return a
}

func adminOperator(id int64, authorities ...domain.Authority) domain.Operator {
	return domain.Operator{ID: id, Kind: domain.KindAdmin, LoginID: "op", Name: "op", Authorities: authorities}
}
