package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/quizbuster/quizbuster-api/internal/core/ports"
)

// UserService implements account administration.
type UserService struct {
	repo ports.UserRepository
	log  zerolog.Logger
}

var _ ports.UserService = (*UserService)(nil)

func NewUserService(repo ports.UserRepository, log zerolog.Logger) *UserService {
	return &UserService{repo: repo, log: log}
}

// Delete removes a user. Tokens already issued to that user stop working
// because the auth gate no longer resolves their subject.
func (s *UserService) Delete(ctx context.Context, username string) error {
	if err := s.repo.Delete(ctx, username); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	s.log.Info().Str("username", username).Msg("user deleted")
	return nil
}
