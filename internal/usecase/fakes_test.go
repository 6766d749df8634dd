package usecase

import (
	"context"
	"errors"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/atymri/Promptino/internal/core/domain"
	"github.com/atymri/Promptino/internal/core/port"
	"github.com/atymri/Promptino/internal/infra/security"
	"github.com/atymri/Promptino/internal/repository"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// memoryAccounts mirrors the conditional-write semantics of the PostgreSQL repository.
type memoryAccounts struct {
	mu       sync.Mutex
	byID     map[string]domain.Account
	getErr   error
	writeErr error
}

func newMemoryAccounts() *memoryAccounts {
	return &memoryAccounts{byID: make(map[string]domain.Account)}
}

func (r *memoryAccounts) put(account domain.Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account.Email = domain.NormalizeEmail(account.Email)
	r.byID[account.ID] = account
}

func (r *memoryAccounts) snapshot() map[string]domain.Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := make(map[string]domain.Account, len(r.byID))
	for id, account := range r.byID {
		copied[id] = account
	}
	return copied
}

func (r *memoryAccounts) restore(byID map[string]domain.Account) {
	r.mu.Lock()
	r.byID = byID
	r.mu.Unlock()
}

func (r *memoryAccounts) get(id string) domain.Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID[id]
}

func (r *memoryAccounts) Create(_ context.Context, account domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.Email == domain.NormalizeEmail(account.Email) {
			return repository.ErrConflict
		}
	}
	account.Email = domain.NormalizeEmail(account.Email)
	r.byID[account.ID] = account
	return nil
}

func (r *memoryAccounts) GetByID(_ context.Context, id string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	account, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &account, nil
}

func (r *memoryAccounts) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	normalized := domain.NormalizeEmail(email)
	for _, account := range r.byID {
		if account.Email == normalized {
			found := account
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memoryAccounts) update(id string, fn func(*domain.Account)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writeErr != nil {
		return r.writeErr
	}
	account, ok := r.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(&account)
	r.byID[id] = account
	return nil
}

func (r *memoryAccounts) IncrementAccessFailed(_ context.Context, id string) (int, error) {
	var count int
	err := r.update(id, func(a *domain.Account) {
		a.AccessFailedCount++
		count = a.AccessFailedCount
	})
	return count, err
}

func (r *memoryAccounts) ApplyLockout(_ context.Context, id string, expectedMultiplier int, lockoutEnd time.Time, nextMultiplier int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.byID[id]
	if !ok || account.Multiplier() != expectedMultiplier {
		return false, nil
	}
	end := lockoutEnd
	account.LockoutEnd = &end
	account.LockoutMultiplier = nextMultiplier
	account.AccessFailedCount = 0
	r.byID[id] = account
	return true, nil
}

func (r *memoryAccounts) ResetLockout(_ context.Context, id string) error {
	return r.update(id, func(a *domain.Account) {
		a.AccessFailedCount = 0
		a.LockoutMultiplier = domain.DefaultLockoutMultiplier
		a.LockoutEnd = nil
	})
}

func (r *memoryAccounts) RecordLogin(_ context.Context, id string, refreshToken string, refreshExpiresAt time.Time, at time.Time) error {
	return r.update(id, func(a *domain.Account) {
		expiry := refreshExpiresAt
		login := at
		a.RefreshToken = refreshToken
		a.RefreshTokenExpiresAt = &expiry
		a.LastLoginAt = &login
	})
}

func (r *memoryAccounts) RotateRefreshToken(_ context.Context, id string, expected string, next string, nextExpiresAt time.Time, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.byID[id]
	if !ok || account.RefreshToken != expected || account.RefreshTokenExpiresAt == nil || !account.RefreshTokenExpiresAt.After(now) {
		return false, nil
	}
	expiry := nextExpiresAt
	account.RefreshToken = next
	account.RefreshTokenExpiresAt = &expiry
	r.byID[id] = account
	return true, nil
}

func (r *memoryAccounts) ClearRefreshToken(_ context.Context, id string) error {
	return r.update(id, func(a *domain.Account) {
		a.RefreshToken = ""
		a.RefreshTokenExpiresAt = nil
	})
}

func (r *memoryAccounts) MarkEmailConfirmed(_ context.Context, id string) error {
	return r.update(id, func(a *domain.Account) { a.EmailConfirmed = true })
}

func (r *memoryAccounts) UpdatePassword(_ context.Context, id string, passwordHash string) error {
	return r.update(id, func(a *domain.Account) { a.PasswordHash = passwordHash })
}

type memoryRoles struct {
	mu          sync.Mutex
	roles       map[string]domain.Role
	memberships map[string]map[string]struct{}
	lookupErr   error
	assignErr   error
}

func newMemoryRoles(names ...string) *memoryRoles {
	r := &memoryRoles{
		roles:       make(map[string]domain.Role),
		memberships: make(map[string]map[string]struct{}),
	}
	for _, name := range names {
		r.roles[name] = domain.Role{ID: "role-" + strings.ToLower(name), Name: name}
	}
	return r
}

func (r *memoryRoles) EnsureRole(_ context.Context, role domain.Role) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.roles[role.Name]; ok {
		return false, nil
	}
	r.roles[role.Name] = role
	return true, nil
}

func (r *memoryRoles) AssignRole(_ context.Context, accountID string, roleName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.assignErr != nil {
		return r.assignErr
	}
	if _, ok := r.roles[roleName]; !ok {
		return repository.ErrNotFound
	}
	if r.memberships[accountID] == nil {
		r.memberships[accountID] = make(map[string]struct{})
	}
	r.memberships[accountID][roleName] = struct{}{}
	return nil
}

func (r *memoryRoles) snapshotMemberships() map[string]map[string]struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := make(map[string]map[string]struct{}, len(r.memberships))
	for accountID, names := range r.memberships {
		inner := make(map[string]struct{}, len(names))
		for name := range names {
			inner[name] = struct{}{}
		}
		copied[accountID] = inner
	}
	return copied
}

func (r *memoryRoles) restoreMemberships(memberships map[string]map[string]struct{}) {
	r.mu.Lock()
	r.memberships = memberships
	r.mu.Unlock()
}

func (r *memoryRoles) RolesForAccount(_ context.Context, accountID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lookupErr != nil {
		return nil, r.lookupErr
	}
	roles := make([]string, 0, len(r.memberships[accountID]))
	for name := range r.memberships[accountID] {
		roles = append(roles, name)
	}
	sort.Strings(roles)
	return roles, nil
}

type tokenEntry struct {
	hash      string
	expiresAt time.Time
}

type memoryTokens struct {
	mu      sync.Mutex
	clock   *testClock
	entries map[string]tokenEntry
}

func newMemoryTokens(clock *testClock) *memoryTokens {
	return &memoryTokens{clock: clock, entries: make(map[string]tokenEntry)}
}

func (s *memoryTokens) Issue(_ context.Context, purpose domain.TokenPurpose, accountID, tokenHash string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[string(purpose)+":"+accountID] = tokenEntry{hash: tokenHash, expiresAt: s.clock.Now().Add(ttl)}
	return nil
}

func (s *memoryTokens) Consume(_ context.Context, purpose domain.TokenPurpose, accountID, tokenHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := string(purpose) + ":" + accountID
	entry, ok := s.entries[key]
	if !ok || entry.hash != tokenHash || !entry.expiresAt.After(s.clock.Now()) {
		return false, nil
	}
	delete(s.entries, key)
	return true, nil
}

type recordingNotifier struct {
	mu            sync.Mutex
	err           error
	confirmations []port.ConfirmationMessage
	resets        []port.PasswordResetMessage
}

func (n *recordingNotifier) SendEmailConfirmation(_ context.Context, msg port.ConfirmationMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.confirmations = append(n.confirmations, msg)
	return nil
}

func (n *recordingNotifier) SendPasswordReset(_ context.Context, msg port.PasswordResetMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.resets = append(n.resets, msg)
	return nil
}

type recordingEvents struct {
	mu             sync.Mutex
	registered     []domain.AccountRegisteredEvent
	confirmed      []domain.EmailConfirmedEvent
	lockedOut      []domain.AccountLockedOutEvent
	resetRequested []domain.PasswordResetRequestedEvent
	changed        []domain.PasswordChangedEvent
}

func (e *recordingEvents) PublishAccountRegistered(_ context.Context, event domain.AccountRegisteredEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.registered = append(e.registered, event)
	return nil
}

func (e *recordingEvents) PublishEmailConfirmed(_ context.Context, event domain.EmailConfirmedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.confirmed = append(e.confirmed, event)
	return nil
}

func (e *recordingEvents) PublishAccountLockedOut(_ context.Context, event domain.AccountLockedOutEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lockedOut = append(e.lockedOut, event)
	return nil
}

func (e *recordingEvents) PublishPasswordResetRequested(_ context.Context, event domain.PasswordResetRequestedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetRequested = append(e.resetRequested, event)
	return nil
}

func (e *recordingEvents) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.changed = append(e.changed, event)
	return nil
}

type recordingObserver struct {
	mu       sync.Mutex
	logins   []string
	refresh  []string
	lockouts []int
}

func (o *recordingObserver) ObserveLogin(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.logins = append(o.logins, outcome)
}

func (o *recordingObserver) ObserveRefresh(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.refresh = append(o.refresh, outcome)
}

func (o *recordingObserver) ObserveLockout(minutes int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lockouts = append(o.lockouts, minutes)
}

// plainHasher keeps tests fast; Argon2 itself is covered in the security package.
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) {
	return "plain$" + password, nil
}

func (plainHasher) Verify(password, encoded string) (bool, error) {
	if !strings.HasPrefix(encoded, "plain$") {
		return false, errors.New("unexpected hash format")
	}
	return encoded == "plain$"+password, nil
}

type memoryRateLimits struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
}

func newMemoryRateLimits() *memoryRateLimits {
	return &memoryRateLimits{attempts: make(map[string][]time.Time)}
}

func (m *memoryRateLimits) TrimWindow(_ context.Context, identifier string, window time.Duration, reference time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.attempts[identifier][:0]
	for _, at := range m.attempts[identifier] {
		if !at.Before(reference.Add(-window)) {
			kept = append(kept, at)
		}
	}
	m.attempts[identifier] = kept
	return nil
}

func (m *memoryRateLimits) CountAttempts(_ context.Context, identifier string, _ time.Duration, _ time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.attempts[identifier]), nil
}

func (m *memoryRateLimits) RecordAttempt(_ context.Context, identifier string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[identifier] = append(m.attempts[identifier], at)
	return nil
}

func (m *memoryRateLimits) OldestAttempt(_ context.Context, identifier string, _ time.Duration, _ time.Time) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.attempts[identifier]) == 0 {
		return time.Time{}, false, nil
	}
	return m.attempts[identifier][0], true, nil
}

const (
	testIssuer   = "promptino"
	testAudience = "promptino-clients"
	testPassword = "P@ssw0rd1"
)

func newTestSigner(t *testing.T, roles port.RoleLookup, clock *testClock) *security.TokenSigner {
	t.Helper()

	signer, err := security.NewTokenSigner(security.SignerOptions{
		Issuer:     testIssuer,
		Audience:   testAudience,
		Secret:     "usecase-test-secret",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	}, roles)
	if err != nil {
		t.Fatalf("NewTokenSigner returned error: %v", err)
	}
	return signer.WithClock(clock.Now)
}

func confirmedAccount(id, email string) domain.Account {
	return domain.Account{
		ID:                id,
		Email:             email,
		PasswordHash:      "plain$" + testPassword,
		FirstName:         "Amir",
		LastName:          "Teymoori",
		PhoneNumber:       "09123456789",
		EmailConfirmed:    true,
		LockoutEnabled:    true,
		LockoutMultiplier: domain.DefaultLockoutMultiplier,
		CreatedAt:         time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func queryParam(t *testing.T, link, name string) string {
	t.Helper()

	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse link %q: %v", link, err)
	}
	return u.Query().Get(name)
}
