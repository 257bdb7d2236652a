package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/bestheroz/account-service/internal/core/domain"
	"github.com/bestheroz/account-service/internal/core/ports"
)

const uniqueViolation = "23505"

const accountColumns = `kind, id, login_id, password_digest, refresh_token, name, use_flag,
	manager_flag, authorities, joined_at, change_password_at, latest_active_at, removed_flag,
	removed_at, created_at, created_by_kind, created_by_id, updated_at, updated_by_kind, updated_by_id`

// AccountRepository stores the accounts of one kind in the accounts table.
type AccountRepository struct {
	db   *sqlx.DB
	kind domain.Kind
}

func NewAccountRepository(db *sqlx.DB, kind domain.Kind) *AccountRepository {
	return &AccountRepository{db: db, kind: kind}
}

type accountRow struct {
	Kind             string         `db:"kind"`
	ID               int64          `db:"id"`
	LoginID          string         `db:"login_id"`
	PasswordDigest   string         `db:"password_digest"`
	RefreshToken     string         `db:"refresh_token"`
	Name             string         `db:"name"`
	UseFlag          bool           `db:"use_flag"`
	ManagerFlag      bool           `db:"manager_flag"`
	Authorities      pq.StringArray `db:"authorities"`
	JoinedAt         time.Time      `db:"joined_at"`
	ChangePasswordAt *time.Time     `db:"change_password_at"`
	LatestActiveAt   *time.Time     `db:"latest_active_at"`
	RemovedFlag      bool           `db:"removed_flag"`
	RemovedAt        *time.Time     `db:"removed_at"`
	CreatedAt        time.Time      `db:"created_at"`
	CreatedByKind    string         `db:"created_by_kind"`
	CreatedByID      int64          `db:"created_by_id"`
	UpdatedAt        time.Time      `db:"updated_at"`
	UpdatedByKind    string         `db:"updated_by_kind"`
	UpdatedByID      int64          `db:"updated_by_id"`
}

func toRow(a *domain.Account) accountRow {
	authorities := make(pq.StringArray, len(a.Authorities))
	for i, au := range a.Authorities {
		authorities[i] = string(au)
	}
	return accountRow{
		Kind:             string(a.Kind),
		ID:               a.ID,
		LoginID:          a.LoginID,
		PasswordDigest:   a.PasswordDigest,
		RefreshToken:     a.RefreshToken,
		Name:             a.Name,
		UseFlag:          a.UseFlag,
		ManagerFlag:      a.ManagerFlag,
		Authorities:      authorities,
		JoinedAt:         a.JoinedAt,
		ChangePasswordAt: a.ChangePasswordAt,
		LatestActiveAt:   a.LatestActiveAt,
		RemovedFlag:      a.RemovedFlag,
		RemovedAt:        a.RemovedAt,
		CreatedAt:        a.CreatedAt,
		CreatedByKind:    string(a.CreatedBy.Kind),
		CreatedByID:      a.CreatedBy.ID,
		UpdatedAt:        a.UpdatedAt,
		UpdatedByKind:    string(a.UpdatedBy.Kind),
		UpdatedByID:      a.UpdatedBy.ID,
	}
}

func (r accountRow) toDomain() *domain.Account {
	authorities := make([]domain.Authority, len(r.Authorities))
	for i, au := range r.Authorities {
		authorities[i] = domain.Authority(au)
	}
	return &domain.Account{
		ID:               r.ID,
		Kind:             domain.Kind(r.Kind),
		LoginID:          r.LoginID,
		PasswordDigest:   r.PasswordDigest,
		RefreshToken:     r.RefreshToken,
		Name:             r.Name,
		UseFlag:          r.UseFlag,
		ManagerFlag:      r.ManagerFlag,
		Authorities:      authorities,
		JoinedAt:         r.JoinedAt,
		ChangePasswordAt: r.ChangePasswordAt,
		LatestActiveAt:   r.LatestActiveAt,
		RemovedFlag:      r.RemovedFlag,
		RemovedAt:        r.RemovedAt,
		CreatedAt:        r.CreatedAt,
		CreatedBy:        domain.AuditRef{Kind: domain.Kind(r.CreatedByKind), ID: r.CreatedByID},
		UpdatedAt:        r.UpdatedAt,
		UpdatedBy:        domain.AuditRef{Kind: domain.Kind(r.UpdatedByKind), ID: r.UpdatedByID},
	}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func (r *AccountRepository) Kind() domain.Kind { return r.kind }

func (r *AccountRepository) Create(ctx context.Context, a *domain.Account) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := toRow(a)
	row.Kind = string(r.kind)
	q := `INSERT INTO accounts (` + accountColumns + `) VALUES (
		:kind, :id, :login_id, :password_digest, :refresh_token, :name, :use_flag,
		:manager_flag, :authorities, :joined_at, :change_password_at, :latest_active_at, :removed_flag,
		:removed_at, :created_at, :created_by_kind, :created_by_id, :updated_at, :updated_by_kind, :updated_by_id)`
	if _, err := r.db.NamedExecContext(ctx, q, row); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateLoginID
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// Update writes the profile columns. The refresh token is only written when
// the account is removed, in which case it is cleared.
func (r *AccountRepository) Update(ctx context.Context, a *domain.Account) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := toRow(a)
	row.Kind = string(r.kind)
	q := `UPDATE accounts SET
		login_id = :login_id,
		password_digest = :password_digest,
		name = :name,
		use_flag = :use_flag,
		manager_flag = :manager_flag,
		authorities = :authorities,
		change_password_at = :change_password_at,
		removed_flag = :removed_flag,
		removed_at = :removed_at,
		refresh_token = CASE WHEN :removed_flag THEN '' ELSE refresh_token END,
		updated_at = :updated_at,
		updated_by_kind = :updated_by_kind,
		updated_by_id = :updated_by_id
	WHERE kind = :kind AND id = :id`
	res, err := r.db.NamedExecContext(ctx, q, row)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateLoginID
		}
		return fmt.Errorf("update account: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func (r *AccountRepository) FindByID(ctx context.Context, id int64) (*domain.Account, error) {
	return r.get(ctx, `SELECT `+accountColumns+` FROM accounts WHERE kind = $1 AND id = $2`, string(r.kind), id)
}

func (r *AccountRepository) FindActiveByLoginID(ctx context.Context, loginID string) (*domain.Account, error) {
	return r.get(ctx, `SELECT `+accountColumns+` FROM accounts WHERE kind = $1 AND login_id = $2 AND NOT removed_flag`, string(r.kind), loginID)
}

func (r *AccountRepository) get(ctx context.Context, q string, args ...any) (*domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var row accountRow
	if err := r.db.GetContext(ctx, &row, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	return row.toDomain(), nil
}

func (r *AccountRepository) LoginIDTaken(ctx context.Context, loginID string, excludeID int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	const q = `SELECT EXISTS (
		SELECT 1 FROM accounts WHERE kind = $1 AND login_id = $2 AND NOT removed_flag AND id <> $3)`
	var taken bool
	if err := r.db.GetContext(ctx, &taken, q, string(r.kind), loginID, excludeID); err != nil {
		return false, fmt.Errorf("check login id: %w", err)
	}
	return taken, nil
}

// List returns a page of non-removed accounts, newest first, and the total
// number of matches.
func (r *AccountRepository) List(ctx context.Context, f ports.ListAccountsFilter) ([]*domain.Account, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	where, args := listWhere(r.kind, f)

	var total int64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM accounts WHERE `+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count accounts: %w", err)
	}

	q := fmt.Sprintf(`SELECT %s FROM accounts WHERE %s ORDER BY id DESC LIMIT $%d OFFSET $%d`,
		accountColumns, where, len(args)+1, len(args)+2)
	args = append(args, f.PageSize, (f.Page-1)*f.PageSize)

	var rows []accountRow
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, 0, fmt.Errorf("list accounts: %w", err)
	}

	accounts := make([]*domain.Account, len(rows))
	for i := range rows {
		accounts[i] = rows[i].toDomain()
	}
	return accounts, total, nil
}

// listWhere builds the WHERE clause of a list query with positional
// placeholders starting at $1.
func listWhere(kind domain.Kind, f ports.ListAccountsFilter) (string, []any) {
	conds := []string{"kind = $1", "NOT removed_flag"}
	args := []any{string(kind)}

	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.ID != 0 {
		add("id = $%d", f.ID)
	}
	if f.LoginID != "" {
		add("login_id ILIKE $%d", containsPattern(f.LoginID))
	}
	if f.Name != "" {
		add("name ILIKE $%d", containsPattern(f.Name))
	}
	if f.UseFlag != nil {
		add("use_flag = $%d", *f.UseFlag)
	}
	if f.ManagerFlag != nil {
		add("manager_flag = $%d", *f.ManagerFlag)
	}
	return strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

func (r *AccountRepository) SetRefreshToken(ctx context.Context, id int64, token string, activeAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET refresh_token = $1, latest_active_at = $2 WHERE kind = $3 AND id = $4`,
		token, activeAt, string(r.kind), id)
	if err != nil {
		return fmt.Errorf("set refresh token: %w", err)
	}
	return requireRow(res)
}

// RotateRefreshToken swaps the token only while it still equals current.
func (r *AccountRepository) RotateRefreshToken(ctx context.Context, id int64, current, next string, activeAt time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET refresh_token = $1, latest_active_at = $2
		WHERE kind = $3 AND id = $4 AND refresh_token = $5 AND NOT removed_flag`,
		next, activeAt, string(r.kind), id, current)
	if err != nil {
		return false, fmt.Errorf("rotate refresh token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *AccountRepository) ClearRefreshToken(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET refresh_token = '' WHERE kind = $1 AND id = $2`, string(r.kind), id)
	if err != nil {
		return fmt.Errorf("clear refresh token: %w", err)
	}
	return requireRow(res)
}
