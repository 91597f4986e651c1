package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/quizbuster/quizbuster-api/internal/core/domain"
	"github.com/quizbuster/quizbuster-api/internal/infrastructure/db/memory"
	"github.com/quizbuster/quizbuster-api/internal/infrastructure/security"
	"github.com/quizbuster/quizbuster-api/internal/pkg/clock"
)

const testSecret = "c0ffee-test-signing-key"

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

// faultyRepo wraps the memory repository and injects storage errors.
type faultyRepo struct {
	*memory.UserRepository
	existsErr error
	insertErr error
	fetchErr  error
	addErr    error
	// existsLies makes Exists report false, simulating a lost registration race.
	existsLies bool
}

func newFaultyRepo() *faultyRepo {
	return &faultyRepo{UserRepository: memory.NewUserRepository()}
}

func (r *faultyRepo) Exists(ctx context.Context, username string) (bool, error) {
	if r.existsErr != nil {
		return false, r.existsErr
	}
	if r.existsLies {
		return false, nil
	}
	return r.UserRepository.Exists(ctx, username)
}

func (r *faultyRepo) Insert(ctx context.Context, u *domain.User) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	return r.UserRepository.Insert(ctx, u)
}

func (r *faultyRepo) Fetch(ctx context.Context, username string) (*domain.User, error) {
	if r.fetchErr != nil {
		return nil, r.fetchErr
	}
	return r.UserRepository.Fetch(ctx, username)
}

func (r *faultyRepo) AddScore(ctx context.Context, username string, delta int64) (int64, error) {
	if r.addErr != nil {
		return 0, r.addErr
	}
	return r.UserRepository.AddScore(ctx, username, delta)
}

// countingHasher records how many verifications ran.
type countingHasher struct {
	*security.BcryptHasher
	verifies atomic.Int32
}

func (h *countingHasher) Verify(password, hash string) (bool, error) {
	h.verifies.Add(1)
	return h.BcryptHasher.Verify(password, hash)
}

type authFixture struct {
	svc    *AuthService
	repo   *faultyRepo
	hasher *countingHasher
	codec  *security.JWTCodec
	clock  *clock.Mock
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	codec, err := security.NewJWTCodec(security.TokenConfig{Secret: testSecret, TTL: 30 * time.Minute})
	if err != nil {
		t.Fatalf("NewJWTCodec: %v", err)
	}
	f := &authFixture{
		repo:   newFaultyRepo(),
		hasher: &countingHasher{BcryptHasher: security.NewBcryptHasher(bcrypt.MinCost)},
		codec:  codec,
		clock:  clock.NewMock(t0),
	}
	f.svc = NewAuthService(f.repo, f.hasher, f.codec, f.clock, zerolog.Nop())
	return f
}

// ---------------------------------------------------------------------------
// Register
// ---------------------------------------------------------------------------

func TestAuthService_Register_Success(t *testing.T) {
	f := newAuthFixture(t)

	tok, err := f.svc.Register(context.Background(), "alice", "pass123")
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if tok.TokenType != domain.TokenTypeBearer {
		t.Errorf("token type = %q, want %q", tok.TokenType, domain.TokenTypeBearer)
	}
	if !tok.ExpiresAt.Equal(t0.Add(30 * time.Minute)) {
		t.Errorf("expires at = %v, want %v", tok.ExpiresAt, t0.Add(30*time.Minute))
	}

	sub, err := f.codec.Verify(tok.AccessToken, t0)
	if err != nil || sub != "alice" {
		t.Fatalf("issued token does not verify: sub=%q err=%v", sub, err)
	}

	user, err := f.repo.Fetch(context.Background(), "alice")
	if err != nil {
		t.Fatalf("user not stored: %v", err)
	}
	if user.PasswordHash == "pass123" {
		t.Fatalf("expected password to be hashed")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("pass123")); err != nil {
		t.Fatalf("stored hash does not match password: %v", err)
	}
	if user.Role != domain.RoleUser {
		t.Errorf("role = %q, want %q", user.Role, domain.RoleUser)
	}
	if user.Score != nil {
		t.Errorf("score = %v, want nil", *user.Score)
	}
}

func TestAuthService_Register_EmptyPasswordAllowed(t *testing.T) {
	f := newAuthFixture(t)

	if _, err := f.svc.Register(context.Background(), "bob", ""); err != nil {
		t.Fatalf("Register with empty password: %v", err)
	}
	if _, err := f.svc.Login(context.Background(), "bob", ""); err != nil {
		t.Fatalf("Login with empty password: %v", err)
	}
}

func TestAuthService_Register_EmptyUsername(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.Register(context.Background(), "  ", "pass")
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestAuthService_Register_Duplicate(t *testing.T) {
	f := newAuthFixture(t)

	if _, err := f.svc.Register(context.Background(), "bob", "first"); err != nil {
		t.Fatalf("first register: %v", err)
	}
	before, _ := f.repo.Fetch(context.Background(), "bob")

	_, err := f.svc.Register(context.Background(), "bob", "second")
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if !errors.Is(err, domain.ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}

	after, _ := f.repo.Fetch(context.Background(), "bob")
	if after.PasswordHash != before.PasswordHash {
		t.Fatalf("first user's hash was overwritten")
	}
	if _, err := f.svc.Login(context.Background(), "bob", "first"); err != nil {
		t.Fatalf("first user's password no longer works: %v", err)
	}
}

func TestAuthService_Register_LostRaceIsConflict(t *testing.T) {
	f := newAuthFixture(t)
	if _, err := f.svc.Register(context.Background(), "carol", "pass"); err != nil {
		t.Fatalf("register: %v", err)
	}

	f.repo.existsLies = true
	_, err := f.svc.Register(context.Background(), "carol", "pass2")
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict from the store's uniqueness check, got %v", err)
	}
}

func TestAuthService_Register_ConcurrentSameUsername(t *testing.T) {
	f := newAuthFixture(t)
	f.repo.existsLies = true

	const n = 10
	var wg sync.WaitGroup
	var ok, conflicts atomic.Int32
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Register(context.Background(), "dave", "pass")
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, domain.ErrConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok.Load() != 1 || conflicts.Load() != n-1 {
		t.Fatalf("ok=%d conflicts=%d, want 1 and %d", ok.Load(), conflicts.Load(), n-1)
	}
}

func TestAuthService_Register_StorageUnavailable(t *testing.T) {
	f := newAuthFixture(t)
	f.repo.existsErr = domain.ErrUnavailable

	_, err := f.svc.Register(context.Background(), "erin", "pass")
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}

	f.repo.existsErr = nil
	f.repo.insertErr = domain.ErrUnavailable
	_, err = f.svc.Register(context.Background(), "erin", "pass")
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable from insert, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Login
// ---------------------------------------------------------------------------

func TestAuthService_Login_Success(t *testing.T) {
	f := newAuthFixture(t)
	if _, err := f.svc.Register(context.Background(), "carol", "s3cret"); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	f.clock.Advance(10 * time.Minute)
	tok, err := f.svc.Login(context.Background(), "carol", "s3cret")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if tok.AccessToken == "" {
		t.Fatalf("expected token, got empty")
	}
	if !tok.ExpiresAt.Equal(t0.Add(40 * time.Minute)) {
		t.Errorf("expires at = %v, want %v", tok.ExpiresAt, t0.Add(40*time.Minute))
	}
	sub, err := f.codec.Verify(tok.AccessToken, f.clock.Now())
	if err != nil || sub != "carol" {
		t.Fatalf("token invalid: sub=%q err=%v", sub, err)
	}
}

func TestAuthService_Login_FailuresAreIndistinguishable(t *testing.T) {
	f := newAuthFixture(t)
	if _, err := f.svc.Register(context.Background(), "dave", "goodpass"); err != nil {
		t.Fatalf("register: %v", err)
	}

	before := f.hasher.verifies.Load()
	_, wrongPass := f.svc.Login(context.Background(), "dave", "badpass")
	afterWrong := f.hasher.verifies.Load()
	_, noUser := f.svc.Login(context.Background(), "ghost", "badpass")
	afterGhost := f.hasher.verifies.Load()

	if !errors.Is(wrongPass, domain.ErrUnauthorized) || !errors.Is(noUser, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for both, got %v and %v", wrongPass, noUser)
	}
	if wrongPass.Error() != noUser.Error() {
		t.Fatalf("error messages differ: %q vs %q", wrongPass, noUser)
	}
	if afterWrong-before != 1 || afterGhost-afterWrong != 1 {
		t.Fatalf("both paths must run exactly one hash verification, got %d and %d",
			afterWrong-before, afterGhost-afterWrong)
	}
}

func TestAuthService_Login_MalformedStoredHash(t *testing.T) {
	f := newAuthFixture(t)
	err := f.repo.Insert(context.Background(), &domain.User{Username: "mallory", PasswordHash: "not-bcrypt", Role: domain.RoleUser})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	if _, err := f.svc.Login(context.Background(), "mallory", "x"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestAuthService_Login_StorageUnavailable(t *testing.T) {
	f := newAuthFixture(t)
	f.repo.fetchErr = domain.ErrUnavailable

	_, err := f.svc.Login(context.Background(), "anyone", "pass")
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("storage outage must not look like bad credentials")
	}
}

// ---------------------------------------------------------------------------
// VerifyToken
// ---------------------------------------------------------------------------

func TestAuthService_VerifyToken(t *testing.T) {
	f := newAuthFixture(t)
	tok, err := f.svc.Register(context.Background(), "alice", "pass")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	user, err := f.svc.VerifyToken(context.Background(), tok.AccessToken)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if user.Username != "alice" || user.Role != domain.RoleUser {
		t.Fatalf("unexpected user: %+v", user)
	}

	f.clock.Advance(30*time.Minute - time.Second)
	if _, err := f.svc.VerifyToken(context.Background(), tok.AccessToken); err != nil {
		t.Fatalf("token rejected one second before expiry: %v", err)
	}
}

func TestAuthService_VerifyToken_Rejections(t *testing.T) {
	f := newAuthFixture(t)
	tok, err := f.svc.Register(context.Background(), "alice", "pass")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	other, err := security.NewJWTCodec(security.TokenConfig{Secret: "another-key"})
	if err != nil {
		t.Fatalf("NewJWTCodec: %v", err)
	}
	forged, _, err := other.Issue("alice", t0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	tests := []struct {
		name  string
		token string
		setup func()
	}{
		{name: "no token", token: ""},
		{name: "garbage", token: "not.a.jwt"},
		{name: "wrong key", token: forged},
		{name: "expired", token: tok.AccessToken, setup: func() { f.clock.Advance(30 * time.Minute) }},
		{name: "deleted user", token: tok.AccessToken, setup: func() {
			f.clock.Set(t0)
			if err := f.repo.Delete(context.Background(), "alice"); err != nil {
				t.Fatalf("delete: %v", err)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != nil {
				tt.setup()
			}
			_, err := f.svc.VerifyToken(context.Background(), tt.token)
			if !errors.Is(err, domain.ErrUnauthorized) {
				t.Fatalf("expected ErrUnauthorized, got %v", err)
			}
		})
	}
}

func TestAuthService_VerifyToken_StorageUnavailable(t *testing.T) {
	f := newAuthFixture(t)
	tok, err := f.svc.Register(context.Background(), "alice", "pass")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	f.repo.fetchErr = domain.ErrUnavailable
	_, err = f.svc.VerifyToken(context.Background(), tok.AccessToken)
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
