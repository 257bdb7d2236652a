package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/bestheroz/account-service/internal/core/domain"
	"github.com/bestheroz/account-service/internal/core/ports"
)

// RefreshGraceWindow is how long after a rotation the superseded refresh
// token, or a concurrent caller holding it, is still answered.
const RefreshGraceWindow = 3 * time.Second

// SessionService implements login, token renewal and logout for one kind.
type SessionService struct {
	kind    domain.Kind
	repo    ports.AccountRepository
	hasher  ports.PasswordHasher
	tokens  ports.TokenIssuer
	limiter ports.LoginLimiter
	logger  zerolog.Logger
	now     func() time.Time
}

// NewSessionService builds a session service. limiter may be nil, which
// disables login throttling.
func NewSessionService(repo ports.AccountRepository, hasher ports.PasswordHasher, tokens ports.TokenIssuer, limiter ports.LoginLimiter, logger zerolog.Logger) *SessionService {
	return &SessionService{
		kind:    repo.Kind(),
		repo:    repo,
		hasher:  hasher,
		tokens:  tokens,
		limiter: limiter,
		logger:  logger.With().Str("kind", string(repo.Kind())).Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *SessionService) Kind() domain.Kind { return s.kind }

func (s *SessionService) Login(ctx context.Context, loginID, password string) (*ports.TokenPair, error) {
	if s.limiter != nil {
		if err := s.limiter.Check(ctx, s.kind, loginID); err != nil {
			if errors.Is(err, domain.ErrTooManyLoginAttempts) {
				s.logger.Warn().Str("login_id", loginID).Msg("login throttled")
				return nil, err
			}
			s.logger.Warn().Err(err).Msg("login limiter unavailable")
		}
	}

	account, err := s.repo.FindActiveByLoginID(ctx, loginID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, domain.ErrUnjoinedAccount
		}
		return nil, fmt.Errorf("login: %w", err)
	}
	if !account.UseFlag || account.RemovedFlag {
		return nil, domain.ErrUnknownAccount
	}

	if !s.hasher.Verify(password, account.PasswordDigest) {
		s.logger.Warn().Str("login_id", loginID).Msg("password not match")
		if s.limiter != nil {
			if err := s.limiter.RecordFailure(ctx, s.kind, loginID); err != nil {
				s.logger.Warn().Err(err).Msg("failed to record login failure")
			}
		}
		return nil, domain.ErrInvalidPassword
	}

	principal := account.Principal()
	refreshToken, err := s.tokens.CreateRefreshToken(principal)
	if err != nil {
		return nil, fmt.Errorf("login: issue refresh token: %w", err)
	}
	if err := s.repo.SetRefreshToken(ctx, account.ID, refreshToken, s.now()); err != nil {
		return nil, fmt.Errorf("login: store refresh token: %w", err)
	}
	accessToken, err := s.tokens.CreateAccessToken(principal)
	if err != nil {
		return nil, fmt.Errorf("login: issue access token: %w", err)
	}

	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, s.kind, loginID); err != nil {
			s.logger.Warn().Err(err).Msg("failed to reset login failures")
		}
	}

	s.logger.Info().Int64("account_id", account.ID).Msg("login")
	return &ports.TokenPair{AccessToken: accessToken, RefreshToken: refreshToken, Rotated: true}, nil
}

// RenewToken exchanges a refresh token for a new token pair.
//
// The stored token is rotated at most once: a caller presenting the stored
// token swaps it atomically for a new one. A caller presenting any other
// valid token of the account within RefreshGraceWindow of the last rotation
// receives a fresh access token and the currently stored refresh token.
func (s *SessionService) RenewToken(ctx context.Context, presented string) (*ports.TokenPair, error) {
	id, kind, err := s.tokens.DecodeSubject(presented)
	if err != nil || kind != s.kind {
		return nil, domain.ErrUnauthorized
	}

	account, err := s.findByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.renewable(account) || !s.tokens.ValidateRefreshToken(presented) {
		return nil, domain.ErrUnauthorized
	}

	principal := account.Principal()
	if account.RefreshToken == presented {
		next, err := s.tokens.CreateRefreshToken(principal)
		if err != nil {
			return nil, fmt.Errorf("renew token: issue refresh token: %w", err)
		}
		swapped, err := s.repo.RotateRefreshToken(ctx, id, presented, next, s.now())
		if err != nil {
			return nil, fmt.Errorf("renew token: rotate: %w", err)
		}
		if swapped {
			accessToken, err := s.tokens.CreateAccessToken(principal)
			if err != nil {
				return nil, fmt.Errorf("renew token: issue access token: %w", err)
			}
			return &ports.TokenPair{AccessToken: accessToken, RefreshToken: next, Rotated: true}, nil
		}

		// Lost the swap to a concurrent renewal; answer from the winner's state.
		account, err = s.findByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if !s.renewable(account) {
			return nil, domain.ErrUnauthorized
		}
		principal = account.Principal()
	}

	if !s.withinGrace(account) {
		s.logger.Warn().Int64("account_id", id).Msg("stale refresh token presented")
		return nil, domain.ErrUnauthorized
	}
	accessToken, err := s.tokens.CreateAccessToken(principal)
	if err != nil {
		return nil, fmt.Errorf("renew token: issue access token: %w", err)
	}
	return &ports.TokenPair{AccessToken: accessToken, RefreshToken: account.RefreshToken, Rotated: false}, nil
}

// Logout clears the refresh-token slot. It is idempotent.
func (s *SessionService) Logout(ctx context.Context, id int64) error {
	if _, err := s.findByID(ctx, id); err != nil {
		return err
	}
	if err := s.repo.ClearRefreshToken(ctx, id); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	s.logger.Info().Int64("account_id", id).Msg("logout")
	return nil
}

func (s *SessionService) renewable(account *domain.Account) bool {
	return !account.RemovedFlag && account.HasSession()
}

func (s *SessionService) withinGrace(account *domain.Account) bool {
	if account.LatestActiveAt == nil {
		return false
	}
	return s.now().Sub(*account.LatestActiveAt) <= RefreshGraceWindow
}

func (s *SessionService) findByID(ctx context.Context, id int64) (*domain.Account, error) {
	account, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, domain.ErrUnknownAccount
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	return account, nil
}
