package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/atymri/Promptino/internal/core/domain"
)

type authFixture struct {
	service  *AuthService
	accounts *memoryAccounts
	roles    *memoryRoles
	events   *recordingEvents
	observer *recordingObserver
	clock    *testClock
}

func newAuthFixture(t *testing.T, policy LockoutPolicy) *authFixture {
	t.Helper()

	clock := newTestClock()
	accounts := newMemoryAccounts()
	roles := newMemoryRoles(domain.RoleAdmin, domain.RoleUser)
	events := &recordingEvents{}
	observer := &recordingObserver{}
	signer := newTestSigner(t, roles, clock)

	service := NewAuthService(accounts, roles, signer, plainHasher{}, policy).
		WithEvents(events).
		WithObserver(observer).
		WithClock(clock.Now)

	return &authFixture{
		service:  service,
		accounts: accounts,
		roles:    roles,
		events:   events,
		observer: observer,
		clock:    clock,
	}
}

func (f *authFixture) login(t *testing.T, email, password string) LoginResult {
	t.Helper()

	result, err := f.service.Login(context.Background(), LoginInput{Email: email, Password: password})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	return result
}

func TestLoginRejectsIncompleteInput(t *testing.T) {
	f := newAuthFixture(t, LockoutPolicy{})
	f.accounts.put(confirmedAccount("acc-1", "a@gmail.com"))

	cases := []LoginInput{
		{Email: "", Password: testPassword},
		{Email: "a@gmail.com", Password: ""},
		{Email: "a@gmail.com", Password: testPassword, ConfirmPassword: "Other1!x"},
	}
	for _, input := range cases {
		result, err := f.service.Login(context.Background(), input)
		if err != nil {
			t.Fatalf("Login(%+v) returned error: %v", input, err)
		}
		if result.Status != LoginInvalidRequest {
			t.Fatalf("Login(%+v) status = %s, want %s", input, result.Status, LoginInvalidRequest)
		}
	}

	if got := f.accounts.get("acc-1").AccessFailedCount; got != 0 {
		t.Fatalf("invalid requests must not count as failures, got %d", got)
	}
}

func TestLoginUnknownEmail(t *testing.T) {
	f := newAuthFixture(t, LockoutPolicy{})

	result := f.login(t, "missing@gmail.com", testPassword)
	if result.Status != LoginEmailUnknown {
		t.Fatalf("status = %s, want %s", result.Status, LoginEmailUnknown)
	}
	if result.Credential != nil {
		t.Fatal("expected no credential")
	}
}

func TestLoginUnconfirmedEmailIgnoresPassword(t *testing.T) {
	f := newAuthFixture(t, LockoutPolicy{})
	account := confirmedAccount("acc-1", "a@gmail.com")
	account.EmailConfirmed = false
	f.accounts.put(account)

	for _, password := range []string{testPassword, "wrong-password"} {
		result := f.login(t, "a@gmail.com", password)
		if result.Status != LoginEmailUnconfirmed {
			t.Fatalf("password %q: status = %s, want %s", password, result.Status, LoginEmailUnconfirmed)
		}
	}
	if got := f.accounts.get("acc-1").AccessFailedCount; got != 0 {
		t.Fatalf("unconfirmed logins must not count failures, got %d", got)
	}
}

func TestLoginIssuesCredentialAndStoresRefreshToken(t *testing.T) {
	f := newAuthFixture(t, LockoutPolicy{})
	f.accounts.put(confirmedAccount("acc-1", "a@gmail.com"))

	result := f.login(t, "  A@Gmail.com ", testPassword)
	if result.Status != LoginAuthenticated {
		t.Fatalf("status = %s, want %s", result.Status, LoginAuthenticated)
	}

	credential := result.Credential
	if credential == nil || credential.Token == "" || credential.RefreshToken == "" {
		t.Fatalf("expected full credential, got %+v", credential)
	}
	if credential.IsAdmin {
		t.Fatal("account without roles must not be admin")
	}

	stored := f.accounts.get("acc-1")
	if stored.RefreshToken != credential.RefreshToken {
		t.Fatal("refresh token was not persisted")
	}
	if stored.LastLoginAt == nil || !stored.LastLoginAt.Equal(f.clock.Now()) {
		t.Fatalf("last login = %v, want %v", stored.LastLoginAt, f.clock.Now())
	}
	if len(f.observer.logins) != 1 || f.observer.logins[0] != "authenticated" {
		t.Fatalf("observer logins = %v", f.observer.logins)
	}
}

func TestLoginReportsAdminRole(t *testing.T) {
	f := newAuthFixture(t, LockoutPolicy{})
	f.accounts.put(confirmedAccount("acc-1", "a@gmail.com"))
	if err := f.roles.AssignRole(context.Background(), "acc-1", domain.RoleAdmin); err != nil {
		t.Fatalf("AssignRole returned error: %v", err)
	}

	result := f.login(t, "a@gmail.com", testPassword)
	if result.Credential == nil || !result.Credential.IsAdmin {
		t.Fatalf("expected admin credential, got %+v", result.Credential)
	}
}

func TestLoginLocksOutAfterThreshold(t *testing.T) {
	f := newAuthFixture(t, LockoutPolicy{MaxFailedAttempts: 2, BaseMinutes: 5})
	f.accounts.put(confirmedAccount("acc-1", "a@gmail.com"))

	first := f.login(t, "a@gmail.com", "wrong")
	if first.Status != LoginPasswordInvalid {
		t.Fatalf("first failure status = %s, want %s", first.Status, LoginPasswordInvalid)
	}
	if got := f.accounts.get("acc-1").AccessFailedCount; got != 1 {
		t.Fatalf("failed count = %d, want 1", got)
	}

	second := f.login(t, "a@gmail.com", "wrong")
	if second.Status != LoginLockedOut {
		t.Fatalf("second failure status = %s, want %s", second.Status, LoginLockedOut)
	}
	if second.LockoutMinutes != 5 {
		t.Fatalf("lockout minutes = %d, want 5", second.LockoutMinutes)
	}

	stored := f.accounts.get("acc-1")
	wantEnd := f.clock.Now().Add(5 * time.Minute)
	if stored.LockoutEnd == nil || !stored.LockoutEnd.Equal(wantEnd) {
		t.Fatalf("lockout end = %v, want %v", stored.LockoutEnd, wantEnd)
	}
	if stored.LockoutMultiplier != 2 {
		t.Fatalf("multiplier = %d, want 2", stored.LockoutMultiplier)
	}
	if stored.AccessFailedCount != 0 {
		t.Fatalf("failed count after lockout = %d, want 0", stored.AccessFailedCount)
	}

	if len(f.events.lockedOut) != 1 {
		t.Fatalf("expected one lockout event, got %d", len(f.events.lockedOut))
	}
	event := f.events.lockedOut[0]
	if event.AccountID != "acc-1" || event.LockoutMinutes != 5 || event.NextMultiplier != 2 {
		t.Fatalf("unexpected lockout event %+v", event)
	}
	if len(f.observer.lockouts) != 1 || f.observer.lockouts[0] != 5 {
		t.Fatalf("observer lockouts = %v", f.observer.lockouts)
	}
}

func TestLoginLockoutDoublesOnRepeat(t *testing.T) {
	f := newAuthFixture(t, LockoutPolicy{MaxFailedAttempts: 2, BaseMinutes: 5})
	f.accounts.put(confirmedAccount("acc-1", "a@gmail.com"))

	f.login(t, "a@gmail.com", "wrong")
	f.login(t, "a@gmail.com", "wrong")
	f.clock.Advance(6 * time.Minute)

	f.login(t, "a@gmail.com", "wrong")
	result := f.login(t, "a@gmail.com", "wrong")
	if result.Status != LoginLockedOut || result.LockoutMinutes != 10 {
		t.Fatalf("second lockout = %s/%d, want %s/10", result.Status, result.LockoutMinutes, LoginLockedOut)
	}
	if got := f.accounts.get("acc-1").LockoutMultiplier; got != 4 {
		t.Fatalf("multiplier = %d, want 4", got)
	}
}

func TestLoginWhileLockedOutHidesPasswordCorrectness(t *testing.T) {
	f := newAuthFixture(t, LockoutPolicy{MaxFailedAttempts: 2, BaseMinutes: 5})
	f.accounts.put(confirmedAccount("acc-1", "a@gmail.com"))

	f.login(t, "a@gmail.com", "wrong")
	f.login(t, "a@gmail.com", "wrong")
	f.clock.Advance(30 * time.Second)

	correct := f.login(t, "a@gmail.com", testPassword)
	wrong := f.login(t, "a@gmail.com", "wrong")

	for _, result := range []LoginResult{correct, wrong} {
		if result.Status != LoginLockedOut {
			t.Fatalf("status = %s, want %s", result.Status, LoginLockedOut)
		}
		if result.LockoutMinutes != 5 {
			t.Fatalf("remaining minutes = %d, want 5 (4m30s rounded up)", result.LockoutMinutes)
		}
		if result.Credential != nil {
			t.Fatal("locked out login must not carry a credential")
		}
	}
	if correct.Message != wrong.Message {
		t.Fatalf("messages differ: %q vs %q", correct.Message, wrong.Message)
	}

	stored := f.accounts.get("acc-1")
	if stored.AccessFailedCount != 0 || stored.LockoutMultiplier != 2 {
		t.Fatalf("locked out attempts mutated state: count=%d multiplier=%d", stored.AccessFailedCount, stored.LockoutMultiplier)
	}
}

func TestLoginSuccessResetsEscalation(t *testing.T) {
	f := newAuthFixture(t, LockoutPolicy{MaxFailedAttempts: 2, BaseMinutes: 5})
	f.accounts.put(confirmedAccount("acc-1", "a@gmail.com"))

	f.login(t, "a@gmail.com", "wrong")
	f.login(t, "a@gmail.com", "wrong")
	f.clock.Advance(5 * time.Minute)

	result := f.login(t, "a@gmail.com", testPassword)
	if result.Status != LoginAuthenticated {
		t.Fatalf("status = %s, want %s", result.Status, LoginAuthenticated)
	}

	stored := f.accounts.get("acc-1")
	if stored.LockoutMultiplier != domain.DefaultLockoutMultiplier || stored.AccessFailedCount != 0 || stored.LockoutEnd != nil {
		t.Fatalf("lockout state not reset: %+v", stored)
	}
}

func TestLoginWithLockoutDisabledNeverLocks(t *testing.T) {
	f := newAuthFixture(t, LockoutPolicy{MaxFailedAttempts: 2, BaseMinutes: 5})
	account := confirmedAccount("acc-1", "a@gmail.com")
	account.LockoutEnabled = false
	f.accounts.put(account)

	for i := 0; i < 5; i++ {
		if result := f.login(t, "a@gmail.com", "wrong"); result.Status != LoginPasswordInvalid {
			t.Fatalf("attempt %d status = %s, want %s", i, result.Status, LoginPasswordInvalid)
		}
	}
	if stored := f.accounts.get("acc-1"); stored.AccessFailedCount != 0 || stored.LockoutEnd != nil {
		t.Fatalf("lockout state changed: %+v", stored)
	}
}

// racingAccounts lets a concurrent request win the lockout write first.
type racingAccounts struct {
	*memoryAccounts
	clock *testClock
}

func (r racingAccounts) ApplyLockout(ctx context.Context, id string, expected int, end time.Time, next int) (bool, error) {
	if _, err := r.memoryAccounts.ApplyLockout(ctx, id, expected, r.clock.Now().Add(3*time.Minute), next); err != nil {
		return false, err
	}
	return r.memoryAccounts.ApplyLockout(ctx, id, expected, end, next)
}

func TestLoginLockoutRaceReportsWinnerState(t *testing.T) {
	clock := newTestClock()
	accounts := newMemoryAccounts()
	accounts.put(confirmedAccount("acc-1", "a@gmail.com"))
	roles := newMemoryRoles()
	events := &recordingEvents{}

	service := NewAuthService(racingAccounts{memoryAccounts: accounts, clock: clock}, roles, newTestSigner(t, roles, clock), plainHasher{}, LockoutPolicy{MaxFailedAttempts: 1, BaseMinutes: 5}).
		WithEvents(events).
		WithClock(clock.Now)

	result, err := service.Login(context.Background(), LoginInput{Email: "a@gmail.com", Password: "wrong"})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if result.Status != LoginLockedOut || result.LockoutMinutes != 3 {
		t.Fatalf("result = %s/%d, want %s/3", result.Status, result.LockoutMinutes, LoginLockedOut)
	}
	if got := accounts.get("acc-1").LockoutMultiplier; got != 2 {
		t.Fatalf("multiplier = %d, want 2 (single escalation)", got)
	}
	if len(events.lockedOut) != 0 {
		t.Fatal("losing writer must not publish a lockout event")
	}
}

func TestLoginPropagatesStoreFailure(t *testing.T) {
	f := newAuthFixture(t, LockoutPolicy{})
	f.accounts.getErr = errors.New("connection reset")

	if _, err := f.service.Login(context.Background(), LoginInput{Email: "a@gmail.com", Password: testPassword}); err == nil {
		t.Fatal("expected store failure to surface as error")
	}
}

func TestRefreshRotatesExactlyOnce(t *testing.T) {
	f := newAuthFixture(t, LockoutPolicy{})
	f.accounts.put(confirmedAccount("acc-1", "a@gmail.com"))

	login := f.login(t, "a@gmail.com", testPassword)
	input := RefreshInput{AccessToken: login.Credential.Token, RefreshToken: login.Credential.RefreshToken}

	f.clock.Advance(20 * time.Minute)

	first, err := f.service.RefreshAccessToken(context.Background(), input)
	if err != nil {
		t.Fatalf("RefreshAccessToken returned error: %v", err)
	}
	if first.Status != RefreshRotated {
		t.Fatalf("first refresh status = %s (%s), want %s", first.Status, first.Reason, RefreshRotated)
	}
	if first.Credential.RefreshToken == login.Credential.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}
	if stored := f.accounts.get("acc-1"); stored.RefreshToken != first.Credential.RefreshToken {
		t.Fatal("rotated refresh token was not persisted")
	}

	second, err := f.service.RefreshAccessToken(context.Background(), input)
	if err != nil {
		t.Fatalf("RefreshAccessToken returned error: %v", err)
	}
	if second.Status != RefreshInvalidRequest {
		t.Fatalf("replayed refresh status = %s, want %s", second.Status, RefreshInvalidRequest)
	}

	next, err := f.service.RefreshAccessToken(context.Background(), RefreshInput{
		AccessToken:  first.Credential.Token,
		RefreshToken: first.Credential.RefreshToken,
	})
	if err != nil {
		t.Fatalf("RefreshAccessToken returned error: %v", err)
	}
	if next.Status != RefreshRotated {
		t.Fatalf("chained refresh status = %s (%s), want %s", next.Status, next.Reason, RefreshRotated)
	}
}

func TestRefreshRejectsUnknownToken(t *testing.T) {
	f := newAuthFixture(t, LockoutPolicy{})
	f.accounts.put(confirmedAccount("acc-1", "a@gmail.com"))

	login := f.login(t, "a@gmail.com", testPassword)
	result, err := f.service.RefreshAccessToken(context.Background(), RefreshInput{
		AccessToken:  login.Credential.Token,
		RefreshToken: "never-issued",
	})
	if err != nil {
		t.Fatalf("RefreshAccessToken returned error: %v", err)
	}
	if result.Status != RefreshInvalidRequest || result.Credential != nil {
		t.Fatalf("unexpected result %+v", result)
	}
	if stored := f.accounts.get("acc-1"); stored.RefreshToken != login.Credential.RefreshToken {
		t.Fatal("rejected refresh must not touch the stored token")
	}
}

func TestRefreshRejectsExpiredRefreshToken(t *testing.T) {
	f := newAuthFixture(t, LockoutPolicy{})
	f.accounts.put(confirmedAccount("acc-1", "a@gmail.com"))

	login := f.login(t, "a@gmail.com", testPassword)
	f.clock.Advance(7*24*time.Hour + time.Second)

	result, err := f.service.RefreshAccessToken(context.Background(), RefreshInput{
		AccessToken:  login.Credential.Token,
		RefreshToken: login.Credential.RefreshToken,
	})
	if err != nil {
		t.Fatalf("RefreshAccessToken returned error: %v", err)
	}
	if result.Status != RefreshInvalidRequest {
		t.Fatalf("status = %s, want %s", result.Status, RefreshInvalidRequest)
	}
}

func TestRefreshRejectsMalformedInput(t *testing.T) {
	f := newAuthFixture(t, LockoutPolicy{})

	cases := []RefreshInput{
		{},
		{AccessToken: "not-a-jwt", RefreshToken: "anything"},
	}
	for _, input := range cases {
		result, err := f.service.RefreshAccessToken(context.Background(), input)
		if err != nil {
			t.Fatalf("RefreshAccessToken(%+v) returned error: %v", input, err)
		}
		if result.Status != RefreshInvalidRequest {
			t.Fatalf("RefreshAccessToken(%+v) status = %s", input, result.Status)
		}
	}
	if len(f.observer.refresh) != len(cases) {
		t.Fatalf("observer refresh = %v", f.observer.refresh)
	}
}

func TestLogoutClearsRefreshToken(t *testing.T) {
	f := newAuthFixture(t, LockoutPolicy{})
	f.accounts.put(confirmedAccount("acc-1", "a@gmail.com"))

	login := f.login(t, "a@gmail.com", testPassword)
	if err := f.service.Logout(context.Background(), "acc-1"); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}
	if f.accounts.get("acc-1").HasRefreshToken() {
		t.Fatal("refresh token still stored after logout")
	}

	result, err := f.service.RefreshAccessToken(context.Background(), RefreshInput{
		AccessToken:  login.Credential.Token,
		RefreshToken: login.Credential.RefreshToken,
	})
	if err != nil {
		t.Fatalf("RefreshAccessToken returned error: %v", err)
	}
	if result.Status != RefreshInvalidRequest || result.Reason != "no refresh token stored" {
		t.Fatalf("refresh after logout = %s (%s), want %s", result.Status, result.Reason, RefreshInvalidRequest)
	}

	if err := f.service.Logout(context.Background(), "missing"); err != nil {
		t.Fatalf("Logout of unknown account returned error: %v", err)
	}
}

func TestProfile(t *testing.T) {
	f := newAuthFixture(t, LockoutPolicy{})
	f.accounts.put(confirmedAccount("acc-1", "a@gmail.com"))
	if err := f.roles.AssignRole(context.Background(), "acc-1", domain.RoleUser); err != nil {
		t.Fatalf("AssignRole returned error: %v", err)
	}

	found, err := f.service.Profile(context.Background(), "acc-1")
	if err != nil {
		t.Fatalf("Profile returned error: %v", err)
	}
	if found.Status != ProfileFound || found.Credential.Email != "a@gmail.com" {
		t.Fatalf("unexpected profile %+v", found)
	}
	if found.Credential.Token != "" || found.Credential.RefreshToken != "" {
		t.Fatal("profile must not carry token material")
	}
	if found.Credential.IsAdmin || !domain.HasRole(found.Credential.Roles, domain.RoleUser) {
		t.Fatalf("unexpected roles %v", found.Credential.Roles)
	}

	missing, err := f.service.Profile(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Profile returned error: %v", err)
	}
	if missing.Status != ProfileNotFound {
		t.Fatalf("status = %s, want %s", missing.Status, ProfileNotFound)
	}
}

func TestLockoutMinutesSaturates(t *testing.T) {
	if got := lockoutMinutes(5, 4); got != 20 {
		t.Fatalf("lockoutMinutes(5, 4) = %d, want 20", got)
	}
	huge := nextMultiplier(1 << 62)
	if got := lockoutMinutes(5, huge); int64(got) != maxLockoutMinutes {
		t.Fatalf("lockoutMinutes saturates to %d, got %d", maxLockoutMinutes, got)
	}
}
