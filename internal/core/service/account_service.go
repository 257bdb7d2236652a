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

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// AccountService implements the account lifecycle for one account kind.
type AccountService struct {
	kind   domain.Kind
	repo   ports.AccountRepository
	hasher ports.PasswordHasher
	ids    ports.IDGenerator
	logger zerolog.Logger
	now    func() time.Time
}

// NewAccountService builds the lifecycle service for the kind of repo.
func NewAccountService(repo ports.AccountRepository, hasher ports.PasswordHasher, ids ports.IDGenerator, logger zerolog.Logger) *AccountService {
	return &AccountService{
		kind:   repo.Kind(),
		repo:   repo,
		hasher: hasher,
		ids:    ids,
		logger: logger.With().Str("kind", string(repo.Kind())).Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *AccountService) Kind() domain.Kind { return s.kind }

// List returns a page of non-removed accounts, newest first.
func (s *AccountService) List(ctx context.Context, filter ports.ListAccountsFilter) (*ports.ListResult, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = defaultPageSize
	}
	if filter.PageSize > maxPageSize {
		filter.PageSize = maxPageSize
	}
	if s.kind != domain.KindAdmin {
		filter.ManagerFlag = nil
	}

	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return &ports.ListResult{
		Page:     filter.Page,
		PageSize: filter.PageSize,
		Total:    total,
		Items:    items,
	}, nil
}

// Get returns a non-removed account or ErrUnknownAccount.
func (s *AccountService) Get(ctx context.Context, id int64) (*domain.Account, error) {
	return s.findActive(ctx, id)
}

// Create registers a new account. A login id held by a non-removed account,
// whether seen up front or reported by the store, yields ErrAlreadyJoinedAccount.
func (s *AccountService) Create(ctx context.Context, in ports.CreateAccountInput, operator domain.Operator) (*domain.Account, error) {
	taken, err := s.repo.LoginIDTaken(ctx, in.LoginID, 0)
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	if taken {
		return nil, domain.ErrAlreadyJoinedAccount
	}

	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("create account: hash password: %w", err)
	}

	now := s.now()
	account := &domain.Account{
		ID:             s.ids.NextID(),
		Kind:           s.kind,
		LoginID:        in.LoginID,
		PasswordDigest: digest,
		Name:           in.Name,
		UseFlag:        in.UseFlag,
		ManagerFlag:    s.kind == domain.KindAdmin && in.ManagerFlag,
		Authorities:    in.Authorities,
	}
	account.MarkCreated(operator, now)

	if err := s.repo.Create(ctx, account); err != nil {
		if errors.Is(err, domain.ErrDuplicateLoginID) {
			return nil, domain.ErrAlreadyJoinedAccount
		}
		s.logger.Error().Err(err).Str("login_id", in.LoginID).Msg("failed to create account")
		return nil, fmt.Errorf("create account: %w", err)
	}

	s.logger.Info().Int64("account_id", account.ID).Int64("operator_id", operator.ID).Msg("account created")
	return account, nil
}

// Update replaces the profile of an account. The login-id check and the
// target fetch run concurrently; see fetchForUpdate.
func (s *AccountService) Update(ctx context.Context, id int64, in ports.UpdateAccountInput, operator domain.Operator) (*domain.Account, error) {
	account, err := s.fetchForUpdate(ctx, id, in.LoginID)
	if err != nil {
		return nil, err
	}

	managerFlag := s.kind == domain.KindAdmin && in.ManagerFlag
	if s.kind == domain.KindAdmin && operator.Is(s.kind, id) && account.ManagerFlag && !managerFlag {
		return nil, domain.ErrCannotUpdateYourself
	}

	now := s.now()
	account.LoginID = in.LoginID
	account.Name = in.Name
	account.UseFlag = in.UseFlag
	account.ManagerFlag = managerFlag
	account.Authorities = in.Authorities
	if in.Password != "" {
		digest, err := s.hasher.Hash(in.Password)
		if err != nil {
			return nil, fmt.Errorf("update account: hash password: %w", err)
		}
		account.SetPassword(digest, now)
	}
	account.Touch(operator, now)

	if err := s.repo.Update(ctx, account); err != nil {
		if errors.Is(err, domain.ErrDuplicateLoginID) {
			return nil, domain.ErrAlreadyJoinedAccount
		}
		return nil, fmt.Errorf("update account: %w", err)
	}

	s.logger.Info().Int64("account_id", id).Int64("operator_id", operator.ID).Msg("account updated")
	return account, nil
}

type fetchResult struct {
	account *domain.Account
	err     error
}

// fetchForUpdate issues the login-id uniqueness check and the by-id fetch in
// parallel. Whichever fails first decides the outcome and the other task is
// cancelled; both are reads, so abandoning one has no effect on state.
func (s *AccountService) fetchForUpdate(ctx context.Context, id int64, loginID string) (*domain.Account, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	taken := make(chan error, 1)
	fetched := make(chan fetchResult, 1)

	go func() {
		exists, err := s.repo.LoginIDTaken(ctx, loginID, id)
		switch {
		case err != nil:
			taken <- fmt.Errorf("update account: check login id: %w", err)
		case exists:
			taken <- domain.ErrAlreadyJoinedAccount
		default:
			taken <- nil
		}
	}()

	go func() {
		account, err := s.findActive(ctx, id)
		fetched <- fetchResult{account: account, err: err}
	}()

	var account *domain.Account
	for pending := 2; pending > 0; pending-- {
		select {
		case err := <-taken:
			if err != nil {
				return nil, err
			}
			taken = nil
		case res := <-fetched:
			if res.err != nil {
				return nil, res.err
			}
			account = res.account
			fetched = nil
		}
	}
	return account, nil
}

// ChangePassword replaces the password after verifying the old one. The new
// password must not match the current digest.
func (s *AccountService) ChangePassword(ctx context.Context, id int64, in ports.ChangePasswordInput, operator domain.Operator) (*domain.Account, error) {
	account, err := s.findActive(ctx, id)
	if err != nil {
		return nil, err
	}

	if !s.hasher.Verify(in.OldPassword, account.PasswordDigest) {
		s.logger.Warn().Int64("account_id", id).Msg("password not match")
		return nil, domain.ErrInvalidPassword
	}
	if s.hasher.Verify(in.NewPassword, account.PasswordDigest) {
		return nil, domain.ErrChangeToSamePassword
	}

	digest, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return nil, fmt.Errorf("change password: hash password: %w", err)
	}
	now := s.now()
	account.SetPassword(digest, now)
	account.Touch(operator, now)

	if err := s.repo.Update(ctx, account); err != nil {
		return nil, fmt.Errorf("change password: %w", err)
	}

	s.logger.Info().Int64("account_id", id).Int64("operator_id", operator.ID).Msg("password changed")
	return account, nil
}

// Remove soft-deletes an account and ends its session.
func (s *AccountService) Remove(ctx context.Context, id int64, operator domain.Operator) error {
	account, err := s.findActive(ctx, id)
	if err != nil {
		return err
	}
	if operator.Is(s.kind, id) {
		return domain.ErrCannotRemoveYourself
	}

	account.Remove(operator, s.now())
	if err := s.repo.Update(ctx, account); err != nil {
		return fmt.Errorf("remove account: %w", err)
	}

	s.logger.Info().Int64("account_id", id).Int64("operator_id", operator.ID).Msg("account removed")
	return nil
}

// CheckLoginIDAvailable reports whether loginID is free among non-removed
// accounts other than excludeID (0 = none).
func (s *AccountService) CheckLoginIDAvailable(ctx context.Context, loginID string, excludeID int64) (bool, error) {
	taken, err := s.repo.LoginIDTaken(ctx, loginID, excludeID)
	if err != nil {
		return false, fmt.Errorf("check login id: %w", err)
	}
	return !taken, nil
}

func (s *AccountService) findActive(ctx context.Context, id int64) (*domain.Account, error) {
	account, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, domain.ErrUnknownAccount
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	if account.RemovedFlag {
		return nil, domain.ErrUnknownAccount
	}
	return account, nil
}
