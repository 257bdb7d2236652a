// Package token issues and validates the HS256 access and refresh tokens
// handed out by the session endpoints.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/bestheroz/account-service/internal/core/domain"
)

const (
	useAccess  = "access"
	useRefresh = "refresh"

	defaultAccessTTL  = 5 * time.Minute
	defaultRefreshTTL = 30 * 24 * time.Hour
)

var (
	ErrMissingSecret = errors.New("token: signing secret is required")
	ErrInvalidToken  = errors.New("token: invalid token")
)

// Config holds the signing key and lifetimes.
type Config struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Claims embedded in both token kinds.
type Claims struct {
	Kind        domain.Kind        `json:"kind"`
	LoginID     string             `json:"loginId"`
	Name        string             `json:"name,omitempty"`
	ManagerFlag bool               `json:"managerFlag,omitempty"`
	Authorities []domain.Authority `json:"authorities,omitempty"`
	Use         string             `json:"use"`
	jwt.RegisteredClaims
}

// Issuer implements ports.TokenIssuer.
type Issuer struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewIssuer(cfg Config) (*Issuer, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSecret
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = defaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = defaultRefreshTTL
	}
	return &Issuer{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
	}, nil
}

func (i *Issuer) CreateAccessToken(op domain.Operator) (string, error) {
	return i.sign(op, useAccess, i.accessTTL)
}

func (i *Issuer) CreateRefreshToken(op domain.Operator) (string, error) {
	return i.sign(op, useRefresh, i.refreshTTL)
}

func (i *Issuer) ValidateRefreshToken(tokenStr string) bool {
	claims, err := i.parse(tokenStr)
	return err == nil && claims.Use == useRefresh
}

// DecodeSubject reads the subject and kind without checking the signature.
// Callers must still validate the token before trusting it.
func (i *Issuer) DecodeSubject(tokenStr string) (int64, domain.Kind, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return 0, "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("%w: subject %q", ErrInvalidToken, claims.Subject)
	}
	if !claims.Kind.Valid() {
		return 0, "", fmt.Errorf("%w: kind %q", ErrInvalidToken, claims.Kind)
	}
	return id, claims.Kind, nil
}

func (i *Issuer) ParseAccessToken(tokenStr string) (*domain.Operator, error) {
	claims, err := i.parse(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.Use != useAccess {
		return nil, fmt.Errorf("%w: not an access token", ErrInvalidToken)
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || !claims.Kind.Valid() {
		return nil, fmt.Errorf("%w: malformed subject", ErrInvalidToken)
	}
	return &domain.Operator{
		ID:          id,
		Kind:        claims.Kind,
		LoginID:     claims.LoginID,
		Name:        claims.Name,
		ManagerFlag: claims.ManagerFlag,
		Authorities: claims.Authorities,
	}, nil
}

func (i *Issuer) sign(op domain.Operator, use string, ttl time.Duration) (string, error) {
	now := i.now()
	claims := Claims{
		Kind:        op.Kind,
		LoginID:     op.LoginID,
		Name:        op.Name,
		ManagerFlag: op.ManagerFlag,
		Authorities: op.Authorities,
		Use:         use,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(op.ID, 10),
			Issuer:    i.issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(i.secret)
}

func (i *Issuer) parse(tokenStr string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}

	claims := &Claims{}
	tkn, err := jwt.NewParser(opts...).ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !tkn.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
