package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/quizbuster/quizbuster-api/internal/core/domain"
	"github.com/quizbuster/quizbuster-api/internal/core/ports"
	"github.com/quizbuster/quizbuster-api/internal/pkg/clock"
	"github.com/quizbuster/quizbuster-api/internal/pkg/metrics"
)

// AuthService implements registration, login and the token gate.
type AuthService struct {
	repo   ports.UserRepository
	hasher ports.PasswordHasher
	tokens ports.TokenCodec
	clock  clock.Clock
	log    zerolog.Logger

	// dummyHash is verified when a login names an unknown user so both
	// failure paths cost one hash comparison.
	dummyOnce sync.Once
	dummyHash string
}

var _ ports.AuthService = (*AuthService)(nil)

func NewAuthService(
	repo ports.UserRepository,
	hasher ports.PasswordHasher,
	tokens ports.TokenCodec,
	clk clock.Clock,
	log zerolog.Logger,
) *AuthService {
	if clk == nil {
		clk = clock.New()
	}
	return &AuthService{repo: repo, hasher: hasher, tokens: tokens, clock: clk, log: log}
}

// Register creates a user with role "user" and returns a session token.
// A lost race against a concurrent registration surfaces as the store's
// domain.ErrConflict.
func (s *AuthService) Register(ctx context.Context, username, password string) (*domain.Token, error) {
	if strings.TrimSpace(username) == "" {
		return nil, fmt.Errorf("register: %w: username is required", domain.ErrInvalidInput)
	}

	exists, err := s.repo.Exists(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	if exists {
		metrics.AuthAttemptsTotal.WithLabelValues("register", "conflict").Inc()
		return nil, domain.ErrUsernameTaken
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("register: %w: %v", domain.ErrInternal, err)
	}

	user := &domain.User{
		Username:     username,
		PasswordHash: hash,
		Role:         domain.RoleUser,
		CreatedAt:    s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, user); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			metrics.AuthAttemptsTotal.WithLabelValues("register", "conflict").Inc()
			return nil, domain.ErrUsernameTaken
		}
		return nil, fmt.Errorf("register: %w", err)
	}

	token, err := s.issue(username)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	metrics.AuthAttemptsTotal.WithLabelValues("register", "success").Inc()
	s.log.Info().Str("username", username).Msg("user registered")
	return token, nil
}

// Login authenticates a user. Unknown usernames and wrong passwords both
// yield domain.ErrUnauthorized.
func (s *AuthService) Login(ctx context.Context, username, password string) (*domain.Token, error) {
	user, err := s.repo.Fetch(ctx, username)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("login: %w", err)
		}
		_, _ = s.hasher.Verify(password, s.fallbackHash())
		return nil, s.rejectLogin()
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		s.log.Error().Err(err).Str("username", username).Msg("stored password hash is unreadable")
		return nil, s.rejectLogin()
	}
	if !ok {
		return nil, s.rejectLogin()
	}

	token, err := s.issue(user.Username)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	metrics.AuthAttemptsTotal.WithLabelValues("login", "success").Inc()
	return token, nil
}

// VerifyToken resolves a bearer token to its user. Every failure other than
// a storage outage is domain.ErrUnauthorized.
func (s *AuthService) VerifyToken(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, domain.ErrUnauthorized
	}

	subject, err := s.tokens.Verify(token, s.clock.Now())
	if err != nil {
		var tokErr *domain.TokenError
		if errors.As(err, &tokErr) {
			metrics.TokenRejectionsTotal.WithLabelValues(tokErr.Kind.String()).Inc()
			s.log.Debug().Str("reason", tokErr.Kind.String()).Msg("token rejected")
		}
		return nil, domain.ErrUnauthorized
	}

	user, err := s.repo.Fetch(ctx, subject)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.TokenRejectionsTotal.WithLabelValues("unknown_subject").Inc()
			s.log.Debug().Str("username", subject).Msg("token subject no longer exists")
			return nil, domain.ErrUnauthorized
		}
		return nil, fmt.Errorf("verify token: %w", err)
	}
	return user, nil
}

func (s *AuthService) rejectLogin() error {
	metrics.AuthAttemptsTotal.WithLabelValues("login", "unauthorized").Inc()
	s.log.Debug().Msg("login rejected")
	return domain.ErrUnauthorized
}

func (s *AuthService) issue(username string) (*domain.Token, error) {
	signed, expiresAt, err := s.tokens.Issue(username, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInternal, err)
	}
	return &domain.Token{
		AccessToken: signed,
		TokenType:   domain.TokenTypeBearer,
		ExpiresAt:   expiresAt,
	}, nil
}

func (s *AuthService) fallbackHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("quizbuster-timing-equaliser")
		if err != nil {
			s.log.Warn().Err(err).Msg("failed to build dummy password hash")
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}
