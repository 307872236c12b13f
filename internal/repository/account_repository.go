package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/maheshrc27/postqueue/internal/models"
)

type AccountRepository interface {
	Create(ctx context.Context, a *models.Account) error
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByIGUserID(ctx context.Context, igUserID string) (*models.Account, error)
	List(ctx context.Context) ([]*models.Account, error)
	ListExpiringBefore(ctx context.Context, before time.Time) ([]*models.Account, error)
	SetToken(ctx context.Context, id, oldAccessToken, newAccessToken string, expiresAt, now time.Time) error
	SetActive(ctx context.Context, id string, active bool, now time.Time) error
}

type accountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) AccountRepository {
	return &accountRepository{db: db}
}

const accountColumns = `id, ig_user_id, username, access_token, token_expires_at, is_active, created_at, updated_at`

func scanAccount(s rowScanner) (*models.Account, error) {
	var a models.Account
	err := s.Scan(&a.ID, &a.IGUserID, &a.Username, &a.AccessToken, &a.TokenExpiresAt, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *accountRepository) Create(ctx context.Context, a *models.Account) error {
	query := `
		INSERT INTO instagram_accounts (id, ig_user_id, username, access_token, token_expires_at, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query, a.ID, a.IGUserID, a.Username, a.AccessToken,
		utc(a.TokenExpiresAt), a.IsActive, utc(a.CreatedAt), utc(a.UpdatedAt))
	if err != nil {
		if IsUniqueViolation(err) {
			return models.NewConflictError("account", a.IGUserID, "already registered")
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (r *accountRepository) getOne(ctx context.Context, query string, arg any) (*models.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (r *accountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM instagram_accounts WHERE id = $1`, id)
}

func (r *accountRepository) GetByIGUserID(ctx context.Context, igUserID string) (*models.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM instagram_accounts WHERE ig_user_id = $1`, igUserID)
}

func (r *accountRepository) list(ctx context.Context, query string, args ...any) ([]*models.Account, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *accountRepository) List(ctx context.Context) ([]*models.Account, error) {
	return r.list(ctx, `SELECT `+accountColumns+` FROM instagram_accounts ORDER BY created_at`)
}

func (r *accountRepository) ListExpiringBefore(ctx context.Context, before time.Time) ([]*models.Account, error) {
	return r.list(ctx, `SELECT `+accountColumns+` FROM instagram_accounts
		WHERE is_active = TRUE AND token_expires_at < $1 ORDER BY token_expires_at`, utc(before))
}

// SetToken swaps the stored token only if it still equals oldAccessToken, so
// two concurrent refreshes cannot overwrite each other.
func (r *accountRepository) SetToken(ctx context.Context, id, oldAccessToken, newAccessToken string, expiresAt, now time.Time) error {
	query := `
		UPDATE instagram_accounts
		SET access_token = $3,
			token_expires_at = $4,
			updated_at = $5
		WHERE id = $1 AND access_token = $2
	`
	res, err := r.db.ExecContext(ctx, query, id, oldAccessToken, newAccessToken, utc(expiresAt), utc(now))
	if err != nil {
		return fmt.Errorf("set token for account %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected != 1 {
		return models.NewConflictError("account", id, "token changed concurrently")
	}
	return nil
}

func (r *accountRepository) SetActive(ctx context.Context, id string, active bool, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE instagram_accounts SET is_active = $2, updated_at = $3 WHERE id = $1`, id, active, utc(now))
	if err != nil {
		return fmt.Errorf("set account %s active: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.NewNotFoundError("account", id)
	}
	return nil
}
