package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/riftwalk/server/internal/storage"
)

// AccountRepository provides account persistence operations.
type AccountRepository struct {
	db *pgxpool.Pool
}

// NewAccountRepository creates an AccountRepository backed by the given pool.
func NewAccountRepository(db *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, username, password_hash, is_guest, max_characters, created_at, COALESCE(last_login_at, 'epoch'::timestamptz)`

// Create inserts a new credentialed account.
//
// Precondition: username is non-empty; password is the plaintext to hash.
// Postcondition: Returns the created account or storage.ErrNameTaken.
func (r *AccountRepository) Create(ctx context.Context, username, password string) (*storage.Account, error) {
	hash, err := storage.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}
	return r.insert(ctx, username, hash, false)
}

// CreateGuest inserts a throwaway guest account with no credentials.
func (r *AccountRepository) CreateGuest(ctx context.Context) (*storage.Account, error) {
	return r.insert(ctx, "guest-"+uuid.NewString()[:8], "", true)
}

func (r *AccountRepository) insert(ctx context.Context, username, hash string, guest bool) (*storage.Account, error) {
	var a storage.Account
	err := r.db.QueryRow(ctx, `
		INSERT INTO accounts (username, password_hash, is_guest)
		VALUES ($1, $2, $3)
		RETURNING `+accountColumns,
		username, hash, guest,
	).Scan(&a.ID, &a.Username, &a.PasswordHash, &a.IsGuest, &a.MaxCharacters, &a.CreatedAt, &a.LastLoginAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, storage.ErrNameTaken
		}
		return nil, fmt.Errorf("inserting account: %w", err)
	}
	return &a, nil
}

// GetByID retrieves an account by primary key.
//
// Postcondition: Returns the account or storage.ErrNotFound.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*storage.Account, error) {
	return r.getWhere(ctx, "id = $1", id)
}

// GetByUsername retrieves an account by username, case-insensitive.
func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*storage.Account, error) {
	return r.getWhere(ctx, "LOWER(username) = LOWER($1)", username)
}

func (r *AccountRepository) getWhere(ctx context.Context, where string, arg any) (*storage.Account, error) {
	var a storage.Account
	err := r.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE `+where, arg,
	).Scan(&a.ID, &a.Username, &a.PasswordHash, &a.IsGuest, &a.MaxCharacters, &a.CreatedAt, &a.LastLoginAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("account: %w", storage.ErrNotFound)
		}
		return nil, fmt.Errorf("querying account: %w", err)
	}
	return &a, nil
}

// UpdateLastLogin stamps the account's last login time.
func (r *AccountRepository) UpdateLastLogin(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `UPDATE accounts SET last_login_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("updating last login: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %s: %w", id, storage.ErrNotFound)
	}
	return nil
}
