package crosspostdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"crosspost/internal/social"
)

// TokenDB persists one OAuth access/refresh token pair per network.
type TokenDB struct {
	db *sql.DB
}

func NewTokenDB(db *sql.DB) *TokenDB {
	return &TokenDB{db: db}
}

func (t *TokenDB) AccessToken(ctx context.Context, network social.Network) (string, error) {
	return t.get(ctx, "access_token", network)
}

func (t *TokenDB) RefreshToken(ctx context.Context, network social.Network) (string, error) {
	return t.get(ctx, "refresh_token", network)
}

func (t *TokenDB) get(ctx context.Context, column string, network social.Network) (string, error) {
	var v string
	q := fmt.Sprintf(`SELECT %s FROM oauth_tokens WHERE network = ?`, column)
	if err := t.db.QueryRowContext(ctx, q, network.String()).Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%s for %s: %w", column, network, ErrTokenNotFound)
		}
		return "", storageErr("get "+column, err)
	}
	return v, nil
}

// StoreTokens upserts both tokens for network.
func (t *TokenDB) StoreTokens(ctx context.Context, network social.Network, access, refresh string) error {
	if strings.TrimSpace(access) == "" || strings.TrimSpace(refresh) == "" {
		return storageErr("store tokens", errors.New("empty access or refresh token"))
	}
	_, err := t.db.ExecContext(ctx, `INSERT INTO oauth_tokens (network, access_token, refresh_token, updated_at)
        VALUES (?, ?, ?, CURRENT_TIMESTAMP)
        ON CONFLICT(network) DO UPDATE SET
           access_token=excluded.access_token,
           refresh_token=excluded.refresh_token,
           updated_at=excluded.updated_at`,
		network.String(), access, refresh,
	)
	return storageErr("store tokens", err)
}
