package service

import (
	"context"
	"fmt"

	"github.com/maheshrc27/postqueue/internal/models"
	"github.com/maheshrc27/postqueue/internal/repository"
	"github.com/maheshrc27/postqueue/pkg/utils"
)

const maxKeysPerActor = 5

type ApiKeyService interface {
	Create(ctx context.Context, actor string) (*models.ApiKey, error)
	List(ctx context.Context, actor string) ([]*models.ApiKey, error)
	GetActor(ctx context.Context, apiKey string) (string, error)
	RemoveAPIKey(ctx context.Context, actor, keyID string) error
}

type apiKeyService struct {
	k     repository.ApiKeyRepository
	clock Clock
}

func NewApiKeyService(k repository.ApiKeyRepository, clock Clock) ApiKeyService {
	return &apiKeyService{
		k:     k,
		clock: clock,
	}
}

func (s *apiKeyService) Create(ctx context.Context, actor string) (*models.ApiKey, error) {
	if actor == "" {
		return nil, models.NewValidationError("actor", "is required")
	}

	keys, err := s.k.GetByActor(ctx, actor)
	if err != nil {
		return nil, err
	}
	if len(keys) >= maxKeysPerActor {
		return nil, models.NewConflictError("api key", actor, fmt.Sprintf("only %d keys can be created", maxKeysPerActor))
	}

	key, err := utils.GenerateRandomKey(16)
	if err != nil {
		return nil, fmt.Errorf("generate api key: %w", err)
	}

	apiKey := &models.ApiKey{
		ID:        newID(),
		Actor:     actor,
		ApiKey:    key,
		CreatedAt: s.clock.Now(),
	}
	if err := s.k.Create(ctx, apiKey); err != nil {
		return nil, err
	}
	return apiKey, nil
}

func (s *apiKeyService) GetActor(ctx context.Context, apiKey string) (string, error) {
	key, err := s.k.GetByKey(ctx, apiKey)
	if err != nil {
		return "", err
	}
	if key == nil {
		return "", models.NewNotFoundError("api key", "")
	}
	return key.Actor, nil
}

func (s *apiKeyService) List(ctx context.Context, actor string) ([]*models.ApiKey, error) {
	return s.k.GetByActor(ctx, actor)
}

func (s *apiKeyService) RemoveAPIKey(ctx context.Context, actor, keyID string) error {
	if actor == "" {
		return models.NewValidationError("actor", "is required")
	}
	if keyID == "" {
		return models.NewValidationError("key_id", "is required")
	}

	isValid, err := s.k.CheckByActor(ctx, keyID, actor)
	if err != nil {
		return err
	}
	if !isValid {
		return models.NewNotFoundError("api key", keyID)
	}
	return s.k.Remove(ctx, keyID)
}
