package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/maheshrc27/postqueue/internal/models"
)

type ApiKeyRepository interface {
	GetByKey(ctx context.Context, apiKey string) (*models.ApiKey, error)
	GetByActor(ctx context.Context, actor string) ([]*models.ApiKey, error)
	Create(ctx context.Context, apiKey *models.ApiKey) error
	CheckByActor(ctx context.Context, keyID, actor string) (bool, error)
	Remove(ctx context.Context, id string) error
}

type apiKeyRepository struct {
	db *sql.DB
}

func NewApiKeyRepository(db *sql.DB) ApiKeyRepository {
	return &apiKeyRepository{db: db}
}

func (r *apiKeyRepository) GetByKey(ctx context.Context, apiKey string) (*models.ApiKey, error) {
	query := `SELECT id, actor, api_key, created_at FROM api_keys WHERE api_key = $1`
	var k models.ApiKey
	err := r.db.QueryRowContext(ctx, query, apiKey).Scan(&k.ID, &k.Actor, &k.ApiKey, &k.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get api key: %w", err)
	}
	return &k, nil
}

func (r *apiKeyRepository) GetByActor(ctx context.Context, actor string) ([]*models.ApiKey, error) {
	query := `SELECT id, actor, api_key, created_at FROM api_keys WHERE actor = $1 ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, actor)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var apiKeys []*models.ApiKey
	for rows.Next() {
		var k models.ApiKey
		if err := rows.Scan(&k.ID, &k.Actor, &k.ApiKey, &k.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		apiKeys = append(apiKeys, &k)
	}
	return apiKeys, rows.Err()
}

func (r *apiKeyRepository) Create(ctx context.Context, apiKey *models.ApiKey) error {
	query := `INSERT INTO api_keys (id, actor, api_key, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := r.db.ExecContext(ctx, query, apiKey.ID, apiKey.Actor, apiKey.ApiKey, utc(apiKey.CreatedAt)); err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

func (r *apiKeyRepository) CheckByActor(ctx context.Context, keyID, actor string) (bool, error) {
	query := `SELECT 1 FROM api_keys WHERE id = $1 AND actor = $2`

	var result int
	err := r.db.QueryRowContext(ctx, query, keyID, actor).Scan(&result)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check api key: %w", err)
	}
	return result == 1, nil
}

func (r *apiKeyRepository) Remove(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	return nil
}
