package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bestheroz/account-service/internal/core/domain"
	"github.com/bestheroz/account-service/internal/core/ports"
)

func newTestAccountService(repo *stubAccountRepo, clock *fakeClock) *AccountService {
	svc := NewAccountService(repo, plainHasher{}, &seqIDs{next: 100}, discardLogger)
	svc.now = clock.Now
	return svc
}

func createInput(loginID string) ports.CreateAccountInput {
	return ports.CreateAccountInput{
		LoginID:     loginID,
		Password:    "secret",
		Name:        "Jane",
		UseFlag:     true,
		Authorities: []domain.Authority{domain.AuthorityUserView},
	}
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestAccountService_Create_Success(t *testing.T) {
	repo := newStubAccountRepo(domain.KindAdmin)
	clock := newFakeClock()
	svc := newTestAccountService(repo, clock)
	op := adminOperator(7)

	account, err := svc.Create(context.Background(), createInput("jane"), op)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if account.ID != 101 {
		t.Errorf("expected id from generator, got %d", account.ID)
	}
	if account.PasswordDigest != "hashed:secret" {
		t.Errorf("password was not hashed: %q", account.PasswordDigest)
	}
	if !account.JoinedAt.Equal(clock.Now()) {
		t.Errorf("joinedAt not stamped: %v", account.JoinedAt)
	}
	if account.CreatedBy != op.Ref() || account.UpdatedBy != op.Ref() {
		t.Errorf("audit refs not stamped: %+v %+v", account.CreatedBy, account.UpdatedBy)
	}
	if account.RemovedFlag || account.HasSession() {
		t.Error("new account must be active and without session")
	}
	if repo.get(account.ID) == nil {
		t.Error("account was not persisted")
	}
}

func TestAccountService_Create_DuplicateLoginID(t *testing.T) {
	repo := newStubAccountRepo(domain.KindAdmin)
	seedAccount(repo, 1, "jane", "pw")
	svc := newTestAccountService(repo, newFakeClock())

	_, err := svc.Create(context.Background(), createInput("jane"), adminOperator(7))
	if !errors.Is(err, domain.ErrAlreadyJoinedAccount) {
		t.Fatalf("expected ErrAlreadyJoinedAccount, got %v", err)
	}
}

func TestAccountService_Create_ReusesLoginIDOfRemovedAccount(t *testing.T) {
	repo := newStubAccountRepo(domain.KindAdmin)
	removed := seedAccount(repo, 1, "jane", "pw")
	removed.RemovedFlag = true
	repo.put(removed)
	svc := newTestAccountService(repo, newFakeClock())

	if _, err := svc.Create(context.Background(), createInput("jane"), adminOperator(7)); err != nil {
		t.Fatalf("removed account must free its login id: %v", err)
	}
}

// lateDuplicateRepo passes the pre-check but fails the insert, as a racing
// writer would cause.
type lateDuplicateRepo struct{ *stubAccountRepo }

func (r lateDuplicateRepo) Create(context.Context, *domain.Account) error {
	return domain.ErrDuplicateLoginID
}

func TestAccountService_Create_LateUniquenessViolation(t *testing.T) {
	repo := lateDuplicateRepo{newStubAccountRepo(domain.KindAdmin)}
	svc := NewAccountService(repo, plainHasher{}, &seqIDs{}, discardLogger)

	_, err := svc.Create(context.Background(), createInput("jane"), adminOperator(7))
	if !errors.Is(err, domain.ErrAlreadyJoinedAccount) {
		t.Fatalf("expected ErrAlreadyJoinedAccount, got %v", err)
	}
}

func TestAccountService_Create_UserKindNeverManager(t *testing.T) {
	repo := newStubAccountRepo(domain.KindUser)
	svc := newTestAccountService(repo, newFakeClock())
	in := createInput("joe")
	in.ManagerFlag = true

	account, err := svc.Create(context.Background(), in, adminOperator(7))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if account.ManagerFlag {
		t.Error("user accounts must not carry managerFlag")
	}
}

// ---------------------------------------------------------------------------
// Get / List
// ---------------------------------------------------------------------------

func TestAccountService_Get_RemovedIsUnknown(t *testing.T) {
	repo := newStubAccountRepo(domain.KindUser)
	a := seedAccount(repo, 1, "joe", "pw")
	a.RemovedFlag = true
	repo.put(a)
	svc := newTestAccountService(repo, newFakeClock())

	if _, err := svc.Get(context.Background(), 1); !errors.Is(err, domain.ErrUnknownAccount) {
		t.Errorf("expected ErrUnknownAccount for removed account, got %v", err)
	}
	if _, err := svc.Get(context.Background(), 99); !errors.Is(err, domain.ErrUnknownAccount) {
		t.Errorf("expected ErrUnknownAccount for missing account, got %v", err)
	}
}

func TestAccountService_List_DefaultsAndOrder(t *testing.T) {
	repo := newStubAccountRepo(domain.KindUser)
	for i := int64(1); i <= 3; i++ {
		seedAccount(repo, i, "user"+string(rune('a'+i)), "pw")
	}
	removed := seedAccount(repo, 4, "gone", "pw")
	removed.RemovedFlag = true
	repo.put(removed)
	svc := newTestAccountService(repo, newFakeClock())

	result, err := svc.List(context.Background(), ports.ListAccountsFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Page != 1 || result.PageSize != defaultPageSize {
		t.Errorf("expected defaults page=1 pageSize=%d, got %d/%d", defaultPageSize, result.Page, result.PageSize)
	}
	if result.Total != 3 || len(result.Items) != 3 {
		t.Fatalf("expected 3 non-removed accounts, got total=%d items=%d", result.Total, len(result.Items))
	}
	if result.Items[0].ID != 3 {
		t.Errorf("expected newest first, got id %d", result.Items[0].ID)
	}
}

func TestAccountService_List_CapsPageSize(t *testing.T) {
	repo := newStubAccountRepo(domain.KindAdmin)
	svc := newTestAccountService(repo, newFakeClock())

	result, err := svc.List(context.Background(), ports.ListAccountsFilter{Page: 2, PageSize: 1000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.PageSize != maxPageSize {
		t.Errorf("expected page size capped at %d, got %d", maxPageSize, result.PageSize)
	}
}

// ---------------------------------------------------------------------------
// Update
// ---------------------------------------------------------------------------

func updateInput(loginID string) ports.UpdateAccountInput {
	return ports.UpdateAccountInput{LoginID: loginID, Name: "Renamed", UseFlag: true}
}

func TestAccountService_Update_Success(t *testing.T) {
	repo := newStubAccountRepo(domain.KindAdmin)
	seedAccount(repo, 1, "jane", "pw")
	repo.SetRefreshToken(context.Background(), 1, "refresh|ADMIN|1|1", time.Now())
	clock := newFakeClock()
	svc := newTestAccountService(repo, clock)
	op := adminOperator(7)

	account, err := svc.Update(context.Background(), 1, updateInput("jane2"), op)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if account.LoginID != "jane2" || account.Name != "Renamed" {
		t.Errorf("profile not updated: %+v", account)
	}
	if account.PasswordDigest != "hashed:pw" || account.ChangePasswordAt != nil {
		t.Error("empty password must keep the current digest")
	}
	if account.UpdatedBy != op.Ref() || !account.UpdatedAt.Equal(clock.Now()) {
		t.Error("updater not stamped")
	}

	stored := repo.get(1)
	if stored.RefreshToken != "refresh|ADMIN|1|1" {
		t.Error("profile update must not touch the session")
	}
}

func TestAccountService_Update_WithPassword(t *testing.T) {
	repo := newStubAccountRepo(domain.KindAdmin)
	seedAccount(repo, 1, "jane", "pw")
	svc := newTestAccountService(repo, newFakeClock())
	in := updateInput("jane")
	in.Password = "fresh"

	account, err := svc.Update(context.Background(), 1, in, adminOperator(7))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if account.PasswordDigest != "hashed:fresh" || account.ChangePasswordAt == nil {
		t.Error("password change not applied")
	}
}

func TestAccountService_Update_LoginIDCollision(t *testing.T) {
	repo := newStubAccountRepo(domain.KindAdmin)
	seedAccount(repo, 1, "jane", "pw")
	seedAccount(repo, 2, "john", "pw")
	svc := newTestAccountService(repo, newFakeClock())

	_, err := svc.Update(context.Background(), 1, updateInput("john"), adminOperator(7))
	if !errors.Is(err, domain.ErrAlreadyJoinedAccount) {
		t.Fatalf("expected ErrAlreadyJoinedAccount, got %v", err)
	}
}

func TestAccountService_Update_KeepOwnLoginID(t *testing.T) {
	repo := newStubAccountRepo(domain.KindAdmin)
	seedAccount(repo, 1, "jane", "pw")
	svc := newTestAccountService(repo, newFakeClock())

	if _, err := svc.Update(context.Background(), 1, updateInput("jane"), adminOperator(7)); err != nil {
		t.Fatalf("an account must be able to keep its own login id: %v", err)
	}
}

func TestAccountService_Update_UnknownAccount(t *testing.T) {
	repo := newStubAccountRepo(domain.KindAdmin)
	svc := newTestAccountService(repo, newFakeClock())

	_, err := svc.Update(context.Background(), 42, updateInput("ghost"), adminOperator(7))
	if !errors.Is(err, domain.ErrUnknownAccount) {
		t.Fatalf("expected ErrUnknownAccount, got %v", err)
	}
}

func TestAccountService_Update_CollisionDoesNotWaitForFetch(t *testing.T) {
	repo := newStubAccountRepo(domain.KindAdmin)
	seedAccount(repo, 1, "jane", "pw")
	seedAccount(repo, 2, "john", "pw")

	release := make(chan struct{})
	defer close(release)
	cancelled := make(chan struct{})
	repo.findHook = func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			close(cancelled)
			return ctx.Err()
		case <-release:
			return nil
		}
	}
	svc := newTestAccountService(repo, newFakeClock())

	done := make(chan error, 1)
	go func() {
		_, err := svc.Update(context.Background(), 1, updateInput("john"), adminOperator(7))
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, domain.ErrAlreadyJoinedAccount) {
			t.Fatalf("expected ErrAlreadyJoinedAccount, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("update waited for the blocked fetch")
	}

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("blocked fetch was not cancelled")
	}
}

func TestAccountService_Update_MissingDoesNotWaitForCheck(t *testing.T) {
	repo := newStubAccountRepo(domain.KindAdmin)

	release := make(chan struct{})
	defer close(release)
	repo.takenHook = func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-release:
			return nil
		}
	}
	svc := newTestAccountService(repo, newFakeClock())

	done := make(chan error, 1)
	go func() {
		_, err := svc.Update(context.Background(), 1, updateInput("jane"), adminOperator(7))
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, domain.ErrUnknownAccount) {
			t.Fatalf("expected ErrUnknownAccount, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("update waited for the blocked uniqueness check")
	}
}

func TestAccountService_Update_CannotRevokeOwnManagerFlag(t *testing.T) {
	repo := newStubAccountRepo(domain.KindAdmin)
	self := seedAccount(repo, 7, "me", "pw")
	self.ManagerFlag = true
	repo.put(self)
	svc := newTestAccountService(repo, newFakeClock())

	in := updateInput("me")
	in.ManagerFlag = false
	_, err := svc.Update(context.Background(), 7, in, adminOperator(7))
	if !errors.Is(err, domain.ErrCannotUpdateYourself) {
		t.Fatalf("expected ErrCannotUpdateYourself, got %v", err)
	}

	in.ManagerFlag = true
	if _, err := svc.Update(context.Background(), 7, in, adminOperator(7)); err != nil {
		t.Fatalf("keeping own manager flag must succeed: %v", err)
	}
}

func TestAccountService_Update_UserKindIgnoresSameID(t *testing.T) {
	repo := newStubAccountRepo(domain.KindUser)
	seedAccount(repo, 7, "joe", "pw")
	svc := newTestAccountService(repo, newFakeClock())

	in := updateInput("joe")
	in.ManagerFlag = true
	account, err := svc.Update(context.Background(), 7, in, adminOperator(7))
	if err != nil {
		t.Fatalf("admin 7 editing user 7 is not a self-update: %v", err)
	}
	if account.ManagerFlag {
		t.Error("user accounts must not carry managerFlag")
	}
}

// ---------------------------------------------------------------------------
// ChangePassword
// ---------------------------------------------------------------------------

func TestAccountService_ChangePassword(t *testing.T) {
	tests := []struct {
		name    string
		old     string
		new     string
		wantErr error
	}{
		{name: "success", old: "pw", new: "pw2"},
		{name: "wrong old password", old: "nope", new: "pw2", wantErr: domain.ErrInvalidPassword},
		{name: "same password", old: "pw", new: "pw", wantErr: domain.ErrChangeToSamePassword},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo := newStubAccountRepo(domain.KindUser)
			seedAccount(repo, 1, "joe", "pw")
			clock := newFakeClock()
			svc := newTestAccountService(repo, clock)

			account, err := svc.ChangePassword(context.Background(), 1, ports.ChangePasswordInput{OldPassword: tc.old, NewPassword: tc.new}, adminOperator(7))
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				if repo.get(1).PasswordDigest != "hashed:pw" {
					t.Error("digest must be unchanged after a failed change")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if account.ChangePasswordAt == nil || !account.ChangePasswordAt.Equal(clock.Now()) {
				t.Error("changePasswordAt not stamped")
			}
			if !(plainHasher{}).Verify(tc.new, repo.get(1).PasswordDigest) {
				t.Error("new password does not verify against stored digest")
			}
		})
	}
}

func TestAccountService_ChangePassword_RemovedAccount(t *testing.T) {
	repo := newStubAccountRepo(domain.KindUser)
	a := seedAccount(repo, 1, "joe", "pw")
	a.RemovedFlag = true
	repo.put(a)
	svc := newTestAccountService(repo, newFakeClock())

	_, err := svc.ChangePassword(context.Background(), 1, ports.ChangePasswordInput{OldPassword: "pw", NewPassword: "pw2"}, adminOperator(7))
	if !errors.Is(err, domain.ErrUnknownAccount) {
		t.Fatalf("expected ErrUnknownAccount, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Remove
// ---------------------------------------------------------------------------

func TestAccountService_Remove_SoftDeletesAndEndsSession(t *testing.T) {
	repo := newStubAccountRepo(domain.KindUser)
	seedAccount(repo, 1, "joe", "pw")
	repo.SetRefreshToken(context.Background(), 1, "refresh|USER|1|1", time.Now())
	clock := newFakeClock()
	svc := newTestAccountService(repo, clock)

	if err := svc.Remove(context.Background(), 1, adminOperator(7)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored := repo.get(1)
	if !stored.RemovedFlag || stored.RemovedAt == nil || !stored.RemovedAt.Equal(clock.Now()) {
		t.Errorf("account not soft-deleted: %+v", stored)
	}
	if stored.HasSession() {
		t.Error("remove must clear the refresh token")
	}

	if err := svc.Remove(context.Background(), 1, adminOperator(7)); !errors.Is(err, domain.ErrUnknownAccount) {
		t.Errorf("second remove: expected ErrUnknownAccount, got %v", err)
	}
	if _, err := svc.Get(context.Background(), 1); !errors.Is(err, domain.ErrUnknownAccount) {
		t.Errorf("get after remove: expected ErrUnknownAccount, got %v", err)
	}
	available, err := svc.CheckLoginIDAvailable(context.Background(), "joe", 0)
	if err != nil || !available {
		t.Errorf("login id of removed account must be available, got %v %v", available, err)
	}
}

func TestAccountService_Remove_Yourself(t *testing.T) {
	repo := newStubAccountRepo(domain.KindAdmin)
	seedAccount(repo, 7, "me", "pw")
	svc := newTestAccountService(repo, newFakeClock())

	err := svc.Remove(context.Background(), 7, adminOperator(7))
	if !errors.Is(err, domain.ErrCannotRemoveYourself) {
		t.Fatalf("expected ErrCannotRemoveYourself, got %v", err)
	}
	if repo.get(7).RemovedFlag {
		t.Error("account must not be removed")
	}
}

// ---------------------------------------------------------------------------
// CheckLoginIDAvailable
// ---------------------------------------------------------------------------

func TestAccountService_CheckLoginIDAvailable(t *testing.T) {
	repo := newStubAccountRepo(domain.KindAdmin)
	seedAccount(repo, 1, "jane", "pw")
	svc := newTestAccountService(repo, newFakeClock())
	ctx := context.Background()

	if ok, _ := svc.CheckLoginIDAvailable(ctx, "jane", 0); ok {
		t.Error("jane is taken")
	}
	if ok, _ := svc.CheckLoginIDAvailable(ctx, "jane", 1); !ok {
		t.Error("jane is available when excluding its own account")
	}
	if ok, _ := svc.CheckLoginIDAvailable(ctx, "other", 0); !ok {
		t.Error("other is available")
	}

	repo.takenErr = errors.New("store down")
	if _, err := svc.CheckLoginIDAvailable(ctx, "x", 0); err == nil {
		t.Error("expected store error to propagate")
	}
}
