package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/homegate/server/internal/model"
)

// OAuthTokenRepo defines the interface for issued user session records
type OAuthTokenRepo interface {
	Create(ctx context.Context, t model.OAuthToken) (model.OAuthToken, error)
	FindByAccessHash(ctx context.Context, accessHash string) (model.OAuthToken, error)
	// Revoke is the server-side revocation hook; logout leaves sessions valid until expiry
	Revoke(ctx context.Context, id uuid.UUID) error
}

type oauthTokenRepo struct {
	db *sql.DB
}

// NewOAuthTokenRepo creates a new OAuthTokenRepo instance
func NewOAuthTokenRepo(db *sql.DB) OAuthTokenRepo {
	return &oauthTokenRepo{db: db}
}

const oauthColumns = `id, user_id, access_token_hash, refresh_token_hash, client_id, scope, expires_at, revoked, created_at`

func scanOAuthToken(row interface{ Scan(...any) error }) (model.OAuthToken, error) {
	var t model.OAuthToken
	err := row.Scan(&t.ID, &t.UserID, &t.AccessTokenHash, &t.RefreshTokenHash, &t.ClientID, &t.Scope, &t.ExpiresAt, &t.Revoked, &t.CreatedAt)
	return t, err
}

// Create inserts a session record
func (r *oauthTokenRepo) Create(ctx context.Context, t model.OAuthToken) (model.OAuthToken, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO oauth_tokens (user_id, access_token_hash, refresh_token_hash, client_id, scope, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+oauthColumns,
		t.UserID, t.AccessTokenHash, t.RefreshTokenHash, t.ClientID, t.Scope, t.ExpiresAt)
	out, err := scanOAuthToken(row)
	if err != nil {
		return model.OAuthToken{}, mapErr("insert oauth token", err)
	}
	return out, nil
}

// FindByAccessHash returns the non-revoked record for the hash. Expiry is left to the caller.
func (r *oauthTokenRepo) FindByAccessHash(ctx context.Context, accessHash string) (model.OAuthToken, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+oauthColumns+`
		FROM oauth_tokens
		WHERE access_token_hash = $1 AND revoked = false
	`, accessHash)
	t, err := scanOAuthToken(row)
	if err != nil {
		return model.OAuthToken{}, mapErr("find oauth token", err)
	}
	return t, nil
}

// Revoke marks the record revoked
func (r *oauthTokenRepo) Revoke(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `UPDATE oauth_tokens SET revoked = true WHERE id = $1`, id)
	if err != nil {
		return mapErr("revoke oauth token", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("revoke oauth token: %w", ErrNotFound)
	}
	return nil
}
