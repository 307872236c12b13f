package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maheshrc27/postqueue/internal/models"
	"github.com/maheshrc27/postqueue/internal/repository"
	"github.com/maheshrc27/postqueue/internal/transfer"
	"github.com/maheshrc27/postqueue/pkg/utils"
	"github.com/rs/zerolog"
)

// longLivedTokenTTL is the lifetime Instagram gives long-lived user tokens.
const longLivedTokenTTL = 60 * 24 * time.Hour

// InstagramAccountAPI is the part of the Graph API accounts depend on.
type InstagramAccountAPI interface {
	UserInfo(ctx context.Context, accessToken string) (*transfer.InstagramUserInfo, error)
	RefreshToken(ctx context.Context, accessToken string) (*transfer.InstagramTokenRefresh, error)
}

type AccountService interface {
	Register(ctx context.Context, accessToken string, expiresIn int64) (*models.Account, error)
	Get(ctx context.Context, id string) (*models.Account, error)
	List(ctx context.Context) ([]*models.Account, error)
	SetActive(ctx context.Context, id string, active bool) error
	Destination(ctx context.Context, accountID string) (*models.Destination, error)
	RefreshExpiring(ctx context.Context, within time.Duration) (int, error)
}

type accountService struct {
	ar        repository.AccountRepository
	ig        InstagramAccountAPI
	secretKey []byte
	clock     Clock
	log       zerolog.Logger
}

func NewAccountService(ar repository.AccountRepository, ig InstagramAccountAPI, secretKey string, clock Clock, log zerolog.Logger) AccountService {
	return &accountService{
		ar:        ar,
		ig:        ig,
		secretKey: []byte(secretKey),
		clock:     clock,
		log:       log.With().Str("comp", "accounts").Logger(),
	}
}

// Register verifies a long-lived token against the Graph API and stores the
// account it belongs to.
func (s *accountService) Register(ctx context.Context, accessToken string, expiresIn int64) (*models.Account, error) {
	if accessToken == "" {
		return nil, models.NewValidationError("access_token", "is required")
	}

	userInfo, err := s.ig.UserInfo(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	igUserID := userInfo.UserID
	if igUserID == "" {
		igUserID = userInfo.ID
	}

	encryptedAccessToken, err := utils.Encrypt([]byte(accessToken), s.secretKey)
	if err != nil {
		return nil, fmt.Errorf("encrypt access token: %w", err)
	}

	now := s.clock.Now()
	expiresAt := now.Add(longLivedTokenTTL)
	if expiresIn > 0 {
		expiresAt = GetExpiresAt(now, expiresIn)
	}

	account := &models.Account{
		ID:             newID(),
		IGUserID:       igUserID,
		Username:       userInfo.Username,
		AccessToken:    encryptedAccessToken,
		TokenExpiresAt: expiresAt,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.ar.Create(ctx, account); err != nil {
		return nil, err
	}

	s.log.Info().Str("account_id", account.ID).Str("username", account.Username).Msg("account registered")
	return account, nil
}

func (s *accountService) Get(ctx context.Context, id string) (*models.Account, error) {
	account, err := s.ar.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, models.NewNotFoundError("account", id)
	}
	return account, nil
}

func (s *accountService) List(ctx context.Context) ([]*models.Account, error) {
	return s.ar.List(ctx)
}

func (s *accountService) SetActive(ctx context.Context, id string, active bool) error {
	return s.ar.SetActive(ctx, id, active, s.clock.Now())
}

// Destination resolves an active account with a decrypted, unexpired token.
func (s *accountService) Destination(ctx context.Context, accountID string) (*models.Destination, error) {
	account, err := s.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !account.IsActive {
		return nil, models.NewValidationError("account", "account is disabled")
	}
	if !account.TokenExpiresAt.After(s.clock.Now()) {
		return nil, models.NewValidationError("account", "access token expired")
	}

	token, err := utils.Decrypt(account.AccessToken, s.secretKey)
	if err != nil {
		return nil, fmt.Errorf("decrypt access token: %w", err)
	}

	return &models.Destination{
		AccountID:   account.ID,
		IGUserID:    account.IGUserID,
		Username:    account.Username,
		AccessToken: token,
	}, nil
}

// RefreshExpiring refreshes tokens of active accounts expiring within the
// given duration. A failed account does not stop the others.
func (s *accountService) RefreshExpiring(ctx context.Context, within time.Duration) (int, error) {
	accounts, err := s.ar.ListExpiringBefore(ctx, s.clock.Now().Add(within))
	if err != nil {
		return 0, err
	}

	var (
		refreshed int
		errs      []error
	)
	for _, account := range accounts {
		if err := s.refresh(ctx, account); err != nil {
			s.log.Error().Err(err).Str("account_id", account.ID).Msg("token refresh failed")
			errs = append(errs, fmt.Errorf("account %s: %w", account.ID, err))
			continue
		}
		refreshed++
	}
	return refreshed, errors.Join(errs...)
}

func (s *accountService) refresh(ctx context.Context, account *models.Account) error {
	current, err := utils.Decrypt(account.AccessToken, s.secretKey)
	if err != nil {
		return fmt.Errorf("decrypt access token: %w", err)
	}

	result, err := s.ig.RefreshToken(ctx, current)
	if err != nil {
		return err
	}

	encrypted, err := utils.Encrypt([]byte(result.AccessToken), s.secretKey)
	if err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}

	now := s.clock.Now()
	expiresIn := result.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = int64(longLivedTokenTTL / time.Second)
	}
	return s.ar.SetToken(ctx, account.ID, account.AccessToken, encrypted, GetExpiresAt(now, expiresIn), now)
}
