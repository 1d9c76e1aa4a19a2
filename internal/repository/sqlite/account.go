package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/mr-blogs/internal/apperror"
	"github.com/sakif/mr-blogs/internal/model"
	"github.com/sakif/mr-blogs/internal/repository"
)

var _ repository.AccountRepository = (*DB)(nil)

const accountColumns = `id, username, email, password_hash, reset_token, reset_expires_at, created_at, updated_at`

// CreateAccount inserts a new account. The email UNIQUE constraint is
// reported as apperror.ErrConflict.
func (db *DB) CreateAccount(ctx context.Context, account *model.Account) error {
	now := time.Now().UTC()
	account.ID = xid.New().String()
	account.CreatedAt = now
	account.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO accounts (id, username, email, password_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		account.ID,
		account.Username,
		account.Email,
		account.PasswordHash,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("email", account.Email)
		}
		return fmt.Errorf("sqlite: creating account %s: %w", account.Username, err)
	}
	return nil
}

func (db *DB) GetAccountByID(ctx context.Context, id string) (*model.Account, error) {
	return db.getAccount(ctx, "id", id)
}

// GetAccountByUsername returns the oldest account with that username.
func (db *DB) GetAccountByUsername(ctx context.Context, username string) (*model.Account, error) {
	return db.getAccount(ctx, "username", username)
}

func (db *DB) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	return db.getAccount(ctx, "email", email)
}

func (db *DB) GetAccountByResetToken(ctx context.Context, token string) (*model.Account, error) {
	if token == "" {
		return nil, apperror.NotFound("account", "reset token")
	}
	return db.getAccount(ctx, "reset_token", token)
}

// getAccount looks an account up by one column. column is never user input.
func (db *DB) getAccount(ctx context.Context, column, value string) (*model.Account, error) {
	var (
		a          model.Account
		resetToken sql.NullString
		resetAt    sql.NullTime
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE `+column+` = ?
		 ORDER BY created_at LIMIT 1`,
		value,
	).Scan(
		&a.ID,
		&a.Username,
		&a.Email,
		&a.PasswordHash,
		&resetToken,
		&resetAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("account", value)
		}
		return nil, fmt.Errorf("sqlite: getting account by %s: %w", column, err)
	}
	a.ResetToken = resetToken.String
	if resetAt.Valid {
		t := resetAt.Time
		a.ResetExpiresAt = &t
	}
	return &a, nil
}

func (db *DB) UpdateUsername(ctx context.Context, id, username string) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE accounts SET username = ?, updated_at = ? WHERE id = ?`,
		username, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: renaming account %s: %w", id, err)
	}
	return requireOneRow(result, apperror.NotFound("account", id))
}

func (db *DB) SetPassword(ctx context.Context, id, passwordHash string) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE accounts
		 SET password_hash = ?, reset_token = NULL, reset_expires_at = NULL, updated_at = ?
		 WHERE id = ?`,
		passwordHash, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting password for %s: %w", id, err)
	}
	return requireOneRow(result, apperror.NotFound("account", id))
}

func (db *DB) SetResetToken(ctx context.Context, id, token string, expiresAt time.Time) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE accounts SET reset_token = ?, reset_expires_at = ?, updated_at = ? WHERE id = ?`,
		token, expiresAt.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting reset token for %s: %w", id, err)
	}
	return requireOneRow(result, apperror.NotFound("account", id))
}

func (db *DB) DeleteAccount(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting account %s: %w", id, err)
	}
	return requireOneRow(result, apperror.NotFound("account", id))
}
