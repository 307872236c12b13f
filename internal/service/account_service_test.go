package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/postqueue/internal/models"
)

func TestAccountService_RegisterAndDestination(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	account, err := h.accounts.Register(ctx, "tok", 3600)
	require.NoError(t, err)
	assert.Equal(t, "ig-tok", account.IGUserID)
	assert.Equal(t, "user_tok", account.Username)
	assert.NotEqual(t, "tok", account.AccessToken, "stored encrypted")
	assert.Equal(t, t0.Add(time.Hour), account.TokenExpiresAt)

	dest, err := h.accounts.Destination(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "tok", dest.AccessToken)
	assert.Equal(t, "ig-tok", dest.IGUserID)

	h.clock.Advance(time.Hour)
	_, err = h.accounts.Destination(ctx, account.ID)
	var valErr *models.ValidationError
	assert.ErrorAs(t, err, &valErr, "expired token")
}

func TestAccountService_RegisterErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.accounts.Register(ctx, "", 0)
	var valErr *models.ValidationError
	assert.ErrorAs(t, err, &valErr)

	_, err = h.accounts.Register(ctx, "bad", 0)
	var extErr *models.ExternalError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, models.ExternalPermanent, extErr.Kind)

	_, err = h.accounts.Destination(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAccountService_DisabledAccount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	account, err := h.accounts.Register(ctx, "tok", 0)
	require.NoError(t, err)

	require.NoError(t, h.accounts.SetActive(ctx, account.ID, false))
	_, err = h.accounts.Destination(ctx, account.ID)
	var valErr *models.ValidationError
	assert.ErrorAs(t, err, &valErr)

	accounts, err := h.accounts.List(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestAccountService_RefreshExpiring(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	soon, err := h.accounts.Register(ctx, "soon", int64((2 * 24 * time.Hour).Seconds()))
	require.NoError(t, err)
	_, err = h.accounts.Register(ctx, "later", 0)
	require.NoError(t, err)

	n, err := h.accounts.RefreshExpiring(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	dest, err := h.accounts.Destination(ctx, soon.ID)
	require.NoError(t, err)
	assert.Equal(t, "soon-refreshed", dest.AccessToken)

	refreshed, err := h.accounts.Get(ctx, soon.ID)
	require.NoError(t, err)
	assert.True(t, refreshed.TokenExpiresAt.Equal(t0.Add(60*24*time.Hour)))
}
