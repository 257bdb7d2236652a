package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/bestheroz/account-service/internal/core/domain"
	"github.com/bestheroz/account-service/internal/core/ports"
)

const collectionAccounts = "accounts"

// AccountRepository stores the accounts of one kind in the shared
// accounts collection. Documents are keyed by (kind, account_id).
type AccountRepository struct {
	col  *mongo.Collection
	kind domain.Kind
}

func NewAccountRepository(db *mongo.Database, kind domain.Kind) *AccountRepository {
	return &AccountRepository{col: db.Collection(collectionAccounts), kind: kind}
}

type auditRefDocument struct {
	Kind string `bson:"kind"`
	ID   int64  `bson:"id"`
}

type accountDocument struct {
	ID               primitive.ObjectID `bson:"_id,omitempty"`
	AccountID        int64              `bson:"account_id"`
	Kind             string             `bson:"kind"`
	LoginID          string             `bson:"login_id"`
	PasswordDigest   string             `bson:"password_digest"`
	RefreshToken     string             `bson:"refresh_token"`
	Name             string             `bson:"name"`
	UseFlag          bool               `bson:"use_flag"`
	ManagerFlag      bool               `bson:"manager_flag"`
	Authorities      []string           `bson:"authorities"`
	JoinedAt         time.Time          `bson:"joined_at"`
	ChangePasswordAt *time.Time         `bson:"change_password_at"`
	LatestActiveAt   *time.Time         `bson:"latest_active_at"`
	RemovedFlag      bool               `bson:"removed_flag"`
	RemovedAt        *time.Time         `bson:"removed_at"`
	CreatedAt        time.Time          `bson:"created_at"`
	CreatedBy        auditRefDocument   `bson:"created_by"`
	UpdatedAt        time.Time          `bson:"updated_at"`
	UpdatedBy        auditRefDocument   `bson:"updated_by"`
}

func toDocument(a *domain.Account) accountDocument {
	authorities := make([]string, len(a.Authorities))
	for i, au := range a.Authorities {
		authorities[i] = string(au)
	}
	return accountDocument{
		AccountID:        a.ID,
		Kind:             string(a.Kind),
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
		CreatedBy:        auditRefDocument{Kind: string(a.CreatedBy.Kind), ID: a.CreatedBy.ID},
		UpdatedAt:        a.UpdatedAt,
		UpdatedBy:        auditRefDocument{Kind: string(a.UpdatedBy.Kind), ID: a.UpdatedBy.ID},
	}
}

func (d accountDocument) toDomain() *domain.Account {
	authorities := make([]domain.Authority, len(d.Authorities))
	for i, au := range d.Authorities {
		authorities[i] = domain.Authority(au)
	}
	return &domain.Account{
		ID:               d.AccountID,
		Kind:             domain.Kind(d.Kind),
		LoginID:          d.LoginID,
		PasswordDigest:   d.PasswordDigest,
		RefreshToken:     d.RefreshToken,
		Name:             d.Name,
		UseFlag:          d.UseFlag,
		ManagerFlag:      d.ManagerFlag,
		Authorities:      authorities,
		JoinedAt:         d.JoinedAt.UTC(),
		ChangePasswordAt: utcPtr(d.ChangePasswordAt),
		LatestActiveAt:   utcPtr(d.LatestActiveAt),
		RemovedFlag:      d.RemovedFlag,
		RemovedAt:        utcPtr(d.RemovedAt),
		CreatedAt:        d.CreatedAt.UTC(),
		CreatedBy:        domain.AuditRef{Kind: domain.Kind(d.CreatedBy.Kind), ID: d.CreatedBy.ID},
		UpdatedAt:        d.UpdatedAt.UTC(),
		UpdatedBy:        domain.AuditRef{Kind: domain.Kind(d.UpdatedBy.Kind), ID: d.UpdatedBy.ID},
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func (r *AccountRepository) Kind() domain.Kind { return r.kind }

func (r *AccountRepository) byID(id int64) bson.M {
	return bson.M{"kind": string(r.kind), "account_id": id}
}

// Create inserts a new account document.
func (r *AccountRepository) Create(ctx context.Context, a *domain.Account) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := toDocument(a)
	doc.Kind = string(r.kind)
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicateLoginID
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// Update writes the profile fields. The session fields are only written when
// the account is removed, in which case the refresh token is cleared.
func (r *AccountRepository) Update(ctx context.Context, a *domain.Account) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.UpdateOne(ctx, r.byID(a.ID), bson.M{"$set": profileUpdate(a)})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicateLoginID
		}
		return fmt.Errorf("update account: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func profileUpdate(a *domain.Account) bson.M {
	doc := toDocument(a)
	set := bson.M{
		"login_id":           doc.LoginID,
		"password_digest":    doc.PasswordDigest,
		"name":               doc.Name,
		"use_flag":           doc.UseFlag,
		"manager_flag":       doc.ManagerFlag,
		"authorities":        doc.Authorities,
		"change_password_at": doc.ChangePasswordAt,
		"removed_flag":       doc.RemovedFlag,
		"removed_at":         doc.RemovedAt,
		"updated_at":         doc.UpdatedAt,
		"updated_by":         doc.UpdatedBy,
	}
	if a.RemovedFlag {
		set["refresh_token"] = ""
	}
	return set
}

func (r *AccountRepository) FindByID(ctx context.Context, id int64) (*domain.Account, error) {
	return r.findOne(ctx, r.byID(id))
}

func (r *AccountRepository) FindActiveByLoginID(ctx context.Context, loginID string) (*domain.Account, error) {
	return r.findOne(ctx, bson.M{"kind": string(r.kind), "login_id": loginID, "removed_flag": false})
}

func (r *AccountRepository) findOne(ctx context.Context, filter bson.M) (*domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc accountDocument
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *AccountRepository) LoginIDTaken(ctx context.Context, loginID string, excludeID int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	n, err := r.col.CountDocuments(ctx, loginIDTakenFilter(r.kind, loginID, excludeID), options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count login id: %w", err)
	}
	return n > 0, nil
}

func loginIDTakenFilter(kind domain.Kind, loginID string, excludeID int64) bson.M {
	filter := bson.M{"kind": string(kind), "login_id": loginID, "removed_flag": false}
	if excludeID != 0 {
		filter["account_id"] = bson.M{"$ne": excludeID}
	}
	return filter
}

// List returns a page of non-removed accounts, newest first, and the total
// number of matches.
func (r *AccountRepository) List(ctx context.Context, f ports.ListAccountsFilter) ([]*domain.Account, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := listFilter(r.kind, f)

	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count accounts: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "account_id", Value: -1}}).
		SetSkip(int64((f.Page - 1) * f.PageSize)).
		SetLimit(int64(f.PageSize))

	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("find accounts: %w", err)
	}
	defer cur.Close(ctx)

	accounts := make([]*domain.Account, 0, f.PageSize)
	for cur.Next(ctx) {
		var doc accountDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, 0, fmt.Errorf("decode account: %w", err)
		}
		accounts = append(accounts, doc.toDomain())
	}
	if err := cur.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate accounts: %w", err)
	}
	return accounts, total, nil
}

func listFilter(kind domain.Kind, f ports.ListAccountsFilter) bson.M {
	filter := bson.M{"kind": string(kind), "removed_flag": false}
	if f.ID != 0 {
		filter["account_id"] = f.ID
	}
	if f.LoginID != "" {
		filter["login_id"] = containsPattern(f.LoginID)
	}
	if f.Name != "" {
		filter["name"] = containsPattern(f.Name)
	}
	if f.UseFlag != nil {
		filter["use_flag"] = *f.UseFlag
	}
	if f.ManagerFlag != nil {
		filter["manager_flag"] = *f.ManagerFlag
	}
	return filter
}

func containsPattern(s string) primitive.Regex {
	return primitive.Regex{Pattern: regexp.QuoteMeta(s), Options: "i"}
}

func (r *AccountRepository) SetRefreshToken(ctx context.Context, id int64, token string, activeAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.UpdateOne(ctx, r.byID(id), bson.M{"$set": bson.M{
		"refresh_token":    token,
		"latest_active_at": activeAt,
	}})
	if err != nil {
		return fmt.Errorf("set refresh token: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// RotateRefreshToken swaps the token only while it still equals current,
// so concurrent renewals with the same token rotate once.
func (r *AccountRepository) RotateRefreshToken(ctx context.Context, id int64, current, next string, activeAt time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := r.byID(id)
	filter["refresh_token"] = current
	filter["removed_flag"] = false

	res, err := r.col.UpdateOne(ctx, filter, bson.M{"$set": bson.M{
		"refresh_token":    next,
		"latest_active_at": activeAt,
	}})
	if err != nil {
		return false, fmt.Errorf("rotate refresh token: %w", err)
	}
	return res.MatchedCount == 1, nil
}

func (r *AccountRepository) ClearRefreshToken(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.UpdateOne(ctx, r.byID(id), bson.M{"$set": bson.M{"refresh_token": ""}})
	if err != nil {
		return fmt.Errorf("clear refresh token: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// EnsureIndexes creates the indexes of the accounts collection. Login ids are
// unique per kind among non-removed accounts only.
func (r *AccountRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "kind", Value: 1}, {Key: "account_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("kind_account_id"),
		},
		{
			Keys: bson.D{{Key: "kind", Value: 1}, {Key: "login_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetName("kind_login_id_active").
				SetPartialFilterExpression(bson.M{"removed_flag": false}),
		},
	}

	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}
