// Package gateway terminates client WebSocket connections. Each socket is
// one session actor; everything past authentication is translated into bus
// envelopes addressed to the owning zone server.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/riftwalk/server/internal/storage"
)

// Auth methods accepted in the auth wire event.
const (
	AuthMethodGuest       = "guest"
	AuthMethodCredentials = "credentials"
	AuthMethodToken       = "token"
)

// ErrAuthFailed is returned for any credential mismatch. The reason is kept
// generic so login probing learns nothing.
var ErrAuthFailed = errors.New("authentication failed")

// Authenticator resolves auth wire events to accounts and issues session
// tokens.
type Authenticator struct {
	accounts storage.AccountService
	secret   []byte
	tokenTTL time.Duration
	now      func() time.Time
}

// NewAuthenticator builds an Authenticator over the account service.
//
// Precondition: secret must be non-empty; tokenTTL must be > 0.
func NewAuthenticator(accounts storage.AccountService, secret string, tokenTTL time.Duration) *Authenticator {
	return &Authenticator{
		accounts: accounts,
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		now:      time.Now,
	}
}

// Guest creates a throwaway account.
func (a *Authenticator) Guest(ctx context.Context) (*storage.Account, error) {
	return a.accounts.CreateGuest(ctx)
}

// Credentials verifies a username/password pair.
//
// Postcondition: Returns ErrAuthFailed on unknown user or bad password,
// never a more specific reason.
func (a *Authenticator) Credentials(ctx context.Context, username, password string) (*storage.Account, error) {
	acct, err := a.accounts.GetByUsername(ctx, username)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrAuthFailed
	}
	if err != nil {
		return nil, err
	}
	if !storage.CheckPassword(acct.PasswordHash, password) {
		return nil, ErrAuthFailed
	}
	return acct, nil
}

// Token verifies a previously issued session token and loads its account.
func (a *Authenticator) Token(ctx context.Context, tokenString string) (*storage.Account, error) {
	claims := &jwt.RegisteredClaims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid || claims.Subject == "" {
		return nil, ErrAuthFailed
	}
	acct, err := a.accounts.GetByID(ctx, claims.Subject)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrAuthFailed
	}
	return acct, err
}

// IssueToken mints a signed session token for the account.
func (a *Authenticator) IssueToken(accountID string) (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   accountID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.tokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}
