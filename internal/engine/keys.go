package engine

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"

	"sprintsync/internal/domain"
	"sprintsync/internal/repo"
)

const apiKeyPrefix = "ssk_"

// CreateAPIKey issues a new key for accountID. The plaintext key is only
// returned here.
func (e Engine) CreateAPIKey(ctx context.Context, accountID, name string) (domain.APIKey, string, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return domain.APIKey{}, "", domain.ValidationError{Field: "account_id", Reason: "required"}
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return domain.APIKey{}, "", err
	}
	plain := apiKeyPrefix + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: e.stamp(),
	}
	err := e.Repo.WithTx(ctx, func(tx *sql.Tx) error {
		if err := e.ensureAccounts(ctx, tx, accountID); err != nil {
			return err
		}
		return e.Repo.InsertAPIKey(ctx, tx, key)
	})
	if err != nil {
		return domain.APIKey{}, "", err
	}
	e.log.Info().Str("account", accountID).Str("key_id", key.ID).Msg("api key created")
	return key, plain, nil
}

func (e Engine) ListAPIKeys(ctx context.Context, accountID string) ([]domain.APIKey, error) {
	return e.Repo.ListAPIKeys(ctx, accountID)
}

func (e Engine) RevokeAPIKey(ctx context.Context, id string) error {
	return translate("api key", id, e.Repo.DeleteAPIKey(ctx, id))
}

// AuthenticateAPIKey returns the account a plaintext key belongs to.
func (e Engine) AuthenticateAPIKey(ctx context.Context, plain string) (domain.Account, error) {
	if !strings.HasPrefix(strings.TrimSpace(plain), apiKeyPrefix) {
		return domain.Account{}, domain.ValidationError{Field: "api_key", Reason: "malformed"}
	}
	key, err := e.Repo.GetAPIKeyByHash(ctx, repo.HashAPIKey(plain))
	if err != nil {
		return domain.Account{}, translate("api key", "", err)
	}
	a, err := e.Repo.GetAccount(ctx, key.AccountID)
	return a, translate("account", key.AccountID, err)
}
