// Package auth mints and verifies the dev server's JWT pairs. Token
// issuance belongs to an external identity provider in production; this
// package exists so the engine has a complete collaborator to run
// against.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token type claims, distinguishing access from refresh tokens.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// ErrInvalidToken covers every verification failure: bad signature,
// expiry, wrong audience/issuer or wrong token type.
var ErrInvalidToken = errors.New("invalid or expired token")

// Issuer mints and verifies HS256 token pairs.
type Issuer struct {
	secret     []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewIssuer creates an issuer with the given signing parameters.
func NewIssuer(secret, issuer, audience string, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{
		secret:     []byte(secret),
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// Pair is a freshly minted access/refresh token pair.
type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	// ExpiresAt is the access token expiry as unix seconds.
	ExpiresAt int64  `json:"expires_at"`
	Subject   string `json:"subject"`
}

// IssuePair mints an access and refresh token for subject.
func (i *Issuer) IssuePair(subject string) (*Pair, error) {
	now := i.now()
	accessExp := now.Add(i.accessTTL)

	access, err := i.sign(subject, TypeAccess, now, accessExp)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := i.sign(subject, TypeRefresh, now, now.Add(i.refreshTTL))
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}
	return &Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    accessExp.Unix(),
		Subject:      subject,
	}, nil
}

func (i *Issuer) sign(subject, typ string, now, exp time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub": subject,
		"typ": typ,
		"iss": i.issuer,
		"aud": i.audience,
		"iat": now.Unix(),
		"exp": exp.Unix(),
		"jti": uuid.New().String(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Verify validates a token of the expected type and returns its
// subject.
func (i *Issuer) Verify(token, expectedType string) (string, error) {
	parsed, err := jwt.Parse(token,
		func(t *jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	if typ, _ := claims["typ"].(string); typ != expectedType {
		return "", ErrInvalidToken
	}
	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return "", ErrInvalidToken
	}
	return subject, nil
}
