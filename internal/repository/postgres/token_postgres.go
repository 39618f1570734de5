package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/andressep95/nfc-access-service/internal/domain"
	"github.com/andressep95/nfc-access-service/internal/repository"
)

const tokenColumns = `
	id, token, entity_type, student_id, artist_id, kind, is_used, used_at,
	expires_at, access_count, last_accessed_at, ip_address, user_agent,
	created_by, notes, created_at`

type tokenRow struct {
	ID             uuid.UUID      `db:"id"`
	Token          string         `db:"token"`
	EntityType     string         `db:"entity_type"`
	StudentID      sql.NullString `db:"student_id"`
	ArtistID       sql.NullString `db:"artist_id"`
	Kind           string         `db:"kind"`
	IsUsed         bool           `db:"is_used"`
	UsedAt         sql.NullTime   `db:"used_at"`
	ExpiresAt      sql.NullTime   `db:"expires_at"`
	AccessCount    int64          `db:"access_count"`
	LastAccessedAt sql.NullTime   `db:"last_accessed_at"`
	IPAddress      sql.NullString `db:"ip_address"`
	UserAgent      sql.NullString `db:"user_agent"`
	CreatedBy      sql.NullString `db:"created_by"`
	Notes          sql.NullString `db:"notes"`
	CreatedAt      time.Time      `db:"created_at"`
}

func (row *tokenRow) toDomain() (*domain.AccessToken, error) {
	ref, err := entityFromColumns(row.EntityType, row.StudentID, row.ArtistID)
	if err != nil {
		return nil, fmt.Errorf("token %s: %w", row.ID, err)
	}
	return &domain.AccessToken{
		ID:             row.ID,
		Token:          row.Token,
		Entity:         ref,
		Kind:           domain.TokenKind(row.Kind),
		IsUsed:         row.IsUsed,
		UsedAt:         fromNullTime(row.UsedAt),
		ExpiresAt:      fromNullTime(row.ExpiresAt),
		AccessCount:    row.AccessCount,
		LastAccessedAt: fromNullTime(row.LastAccessedAt),
		IPAddress:      row.IPAddress.String,
		UserAgent:      row.UserAgent.String,
		CreatedBy:      row.CreatedBy.String,
		Notes:          row.Notes.String,
		CreatedAt:      row.CreatedAt.UTC(),
	}, nil
}

type tokenRepository struct {
	db *sqlx.DB
}

// NewTokenRepository creates a new PostgreSQL access token repository
func NewTokenRepository(db *sqlx.DB) repository.TokenRepository {
	return &tokenRepository{db: db}
}

// Create inserts a new token
func (r *tokenRepository) Create(ctx context.Context, token *domain.AccessToken) error {
	entityType, studentID, artistID := entityColumns(token.Entity)

	query := `
		INSERT INTO access_tokens (
			id, token, entity_type, student_id, artist_id, kind,
			is_used, expires_at, created_by, notes, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.ExecContext(ctx, query,
		token.ID,
		token.Token,
		entityType,
		studentID,
		artistID,
		string(token.Kind),
		token.IsUsed,
		toNullTime(token.ExpiresAt),
		toNullString(token.CreatedBy),
		toNullString(token.Notes),
		token.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrTokenCollision
		}
		return fmt.Errorf("failed to create access token: %w", err)
	}

	return nil
}

// GetByToken looks a token up by exact string match
func (r *tokenRepository) GetByToken(ctx context.Context, token string) (*domain.AccessToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM access_tokens WHERE token = $1`

	var row tokenRow
	if err := r.db.GetContext(ctx, &row, query, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}

	return row.toDomain()
}

// ListByEntity returns every token of an entity, newest first
func (r *tokenRepository) ListByEntity(ctx context.Context, ref domain.EntityRef) ([]*domain.AccessToken, error) {
	entityType, studentID, artistID := entityColumns(ref)

	query := `
		SELECT ` + tokenColumns + `
		FROM access_tokens
		WHERE entity_type = $1
		  AND student_id IS NOT DISTINCT FROM $2
		  AND artist_id IS NOT DISTINCT FROM $3
		ORDER BY created_at DESC`

	var rows []tokenRow
	if err := r.db.SelectContext(ctx, &rows, query, entityType, studentID, artistID); err != nil {
		return nil, fmt.Errorf("failed to list access tokens: %w", err)
	}

	tokens := make([]*domain.AccessToken, 0, len(rows))
	for i := range rows {
		tok, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
	}

	return tokens, nil
}

// Consume checks validity and records the access in one UPDATE. Concurrent
// resolutions of the same one-time token serialize on the row lock and the
// losers re-evaluate the WHERE clause against the committed is_used = TRUE.
func (r *tokenRepository) Consume(ctx context.Context, token string, now time.Time, ipAddress, userAgent string) (*domain.AccessToken, error) {
	query := `
		UPDATE access_tokens
		SET access_count     = access_count + 1,
		    last_accessed_at = $2,
		    ip_address       = $3,
		    user_agent       = $4,
		    is_used          = CASE WHEN kind = 'one-time' THEN TRUE ELSE is_used END,
		    used_at          = CASE WHEN kind = 'one-time' THEN $2 ELSE used_at END
		WHERE token = $1
		  AND NOT (kind = 'one-time' AND is_used)
		  AND NOT (kind = 'temporary' AND expires_at IS NOT NULL AND expires_at <= $2)
		RETURNING ` + tokenColumns

	var row tokenRow
	err := r.db.GetContext(ctx, &row, query, token, now, toNullString(ipAddress), toNullString(userAgent))
	if err == nil {
		return row.toDomain()
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to consume access token: %w", err)
	}

	// Nothing matched: classify without writing.
	existing, err := r.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := existing.Check(now); err != nil {
		return nil, err
	}
	return nil, domain.ErrInvalidToken
}

// Delete hard-deletes a token
func (r *tokenRepository) Delete(ctx context.Context, token string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM access_tokens WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("failed to delete access token: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return domain.ErrInvalidToken
	}

	return nil
}

// DeleteExpired removes temporary tokens past their expiry
func (r *tokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM access_tokens WHERE kind = 'temporary' AND expires_at <= $1`

	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired access tokens: %w", err)
	}

	return result.RowsAffected()
}
