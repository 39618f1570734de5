package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/andressep95/nfc-access-service/internal/domain"
	"github.com/andressep95/nfc-access-service/internal/repository"
)

const sessionColumns = `
	id, session_id, entity_type, student_id, artist_id, ip_address, user_agent,
	referrer, device_type, browser, os, start_time, end_time, duration,
	is_active, page_views, actions`

type sessionRow struct {
	ID         uuid.UUID      `db:"id"`
	SessionID  string         `db:"session_id"`
	EntityType string         `db:"entity_type"`
	StudentID  sql.NullString `db:"student_id"`
	ArtistID   sql.NullString `db:"artist_id"`
	IPAddress  sql.NullString `db:"ip_address"`
	UserAgent  sql.NullString `db:"user_agent"`
	Referrer   sql.NullString `db:"referrer"`
	DeviceType string         `db:"device_type"`
	Browser    string         `db:"browser"`
	OS         string         `db:"os"`
	StartTime  time.Time      `db:"start_time"`
	EndTime    sql.NullTime   `db:"end_time"`
	Duration   int64          `db:"duration"`
	IsActive   bool           `db:"is_active"`
	PageViews  int            `db:"page_views"`
	Actions    []byte         `db:"actions"`
}

func (row *sessionRow) toDomain() (*domain.Session, error) {
	ref, err := entityFromColumns(row.EntityType, row.StudentID, row.ArtistID)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", row.SessionID, err)
	}

	actions := []domain.SessionAction{}
	if len(row.Actions) > 0 {
		if err := json.Unmarshal(row.Actions, &actions); err != nil {
			return nil, fmt.Errorf("session %s: failed to decode actions: %w", row.SessionID, err)
		}
	}

	return &domain.Session{
		ID:         row.ID,
		SessionID:  row.SessionID,
		Entity:     ref,
		IPAddress:  row.IPAddress.String,
		UserAgent:  row.UserAgent.String,
		Referrer:   row.Referrer.String,
		DeviceType: row.DeviceType,
		Browser:    row.Browser,
		OS:         row.OS,
		StartTime:  row.StartTime.UTC(),
		EndTime:    fromNullTime(row.EndTime),
		Duration:   row.Duration,
		IsActive:   row.IsActive,
		PageViews:  row.PageViews,
		Actions:    actions,
	}, nil
}

type sessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new PostgreSQL session repository
func NewSessionRepository(db *sqlx.DB) repository.SessionRepository {
	return &sessionRepository{db: db}
}

// Create inserts a new session into the database
func (r *sessionRepository) Create(ctx context.Context, session *domain.Session) error {
	entityType, studentID, artistID := entityColumns(session.Entity)

	actions, err := json.Marshal(session.Actions)
	if err != nil {
		return fmt.Errorf("failed to encode session actions: %w", err)
	}
	if session.Actions == nil {
		actions = []byte("[]")
	}

	query := `
		INSERT INTO sessions (
			id, session_id, entity_type, student_id, artist_id, ip_address,
			user_agent, referrer, device_type, browser, os, start_time,
			is_active, page_views, actions
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err = r.db.ExecContext(ctx, query,
		session.ID,
		session.SessionID,
		entityType,
		studentID,
		artistID,
		toNullString(session.IPAddress),
		toNullString(session.UserAgent),
		toNullString(session.Referrer),
		session.DeviceType,
		session.Browser,
		session.OS,
		session.StartTime,
		session.IsActive,
		session.PageViews,
		actions,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// GetBySessionID retrieves a session by its public identifier
func (r *sessionRepository) GetBySessionID(ctx context.Context, sessionID string) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE session_id = $1`

	var row sessionRow
	if err := r.db.GetContext(ctx, &row, query, sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return row.toDomain()
}

// AppendAction appends to the actions array and bumps page_views in one statement
func (r *sessionRepository) AppendAction(ctx context.Context, sessionID string, action domain.SessionAction) (*domain.Session, error) {
	payload, err := json.Marshal(action)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session action: %w", err)
	}

	query := `
		UPDATE sessions
		SET actions = actions || jsonb_build_array($2::jsonb),
		    page_views = page_views + 1
		WHERE session_id = $1
		RETURNING ` + sessionColumns

	var row sessionRow
	if err := r.db.GetContext(ctx, &row, query, sessionID, string(payload)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to append session action: %w", err)
	}

	return row.toDomain()
}

// End closes an active session; an already ended one is returned unchanged
func (r *sessionRepository) End(ctx context.Context, sessionID string, now time.Time) (*domain.Session, error) {
	query := `
		UPDATE sessions
		SET end_time  = $2,
		    duration  = GREATEST(0, FLOOR(EXTRACT(EPOCH FROM ($2::timestamptz - start_time))))::bigint,
		    is_active = FALSE
		WHERE session_id = $1 AND is_active
		RETURNING ` + sessionColumns

	var row sessionRow
	err := r.db.GetContext(ctx, &row, query, sessionID, now)
	if err == nil {
		return row.toDomain()
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to end session: %w", err)
	}

	return r.GetBySessionID(ctx, sessionID)
}

// EndStale closes sessions that were never ended explicitly
func (r *sessionRepository) EndStale(ctx context.Context, startedBefore, now time.Time) (int64, error) {
	query := `
		UPDATE sessions
		SET end_time  = $2,
		    duration  = GREATEST(0, FLOOR(EXTRACT(EPOCH FROM ($2::timestamptz - start_time))))::bigint,
		    is_active = FALSE
		WHERE is_active AND end_time IS NULL AND start_time < $1`

	result, err := r.db.ExecContext(ctx, query, startedBefore, now)
	if err != nil {
		return 0, fmt.Errorf("failed to end stale sessions: %w", err)
	}

	return result.RowsAffected()
}

// DeleteOlderThan enforces the retention window
func (r *sessionRepository) DeleteOlderThan(ctx context.Context, startedBefore time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE start_time < $1`, startedBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old sessions: %w", err)
	}

	return result.RowsAffected()
}

// StatsByEntity aggregates every session of one entity
func (r *sessionRepository) StatsByEntity(ctx context.Context, ref domain.EntityRef) (*domain.SessionStats, error) {
	entityType, studentID, artistID := entityColumns(ref)
	where := `entity_type = $1 AND student_id IS NOT DISTINCT FROM $2 AND artist_id IS NOT DISTINCT FROM $3`

	var totals struct {
		Total       int64   `db:"total"`
		Active      int64   `db:"active"`
		AvgDuration float64 `db:"avg_duration"`
		PageViews   int64   `db:"page_views"`
	}
	totalsQuery := `
		SELECT COUNT(*) AS total,
		       COUNT(*) FILTER (WHERE is_active) AS active,
		       COALESCE(AVG(duration) FILTER (WHERE NOT is_active), 0)::float8 AS avg_duration,
		       COALESCE(SUM(page_views), 0) AS page_views
		FROM sessions
		WHERE ` + where
	if err := r.db.GetContext(ctx, &totals, totalsQuery, entityType, studentID, artistID); err != nil {
		return nil, fmt.Errorf("failed to aggregate sessions: %w", err)
	}

	stats := &domain.SessionStats{
		TotalSessions:   totals.Total,
		ActiveSessions:  totals.Active,
		AverageDuration: totals.AvgDuration,
		TotalPageViews:  totals.PageViews,
		ByDeviceType:    map[string]int64{},
		ByAction:        map[domain.ActionType]int64{},
	}

	var devices []struct {
		DeviceType string `db:"device_type"`
		Count      int64  `db:"count"`
	}
	deviceQuery := `SELECT device_type, COUNT(*) AS count FROM sessions WHERE ` + where + ` GROUP BY device_type`
	if err := r.db.SelectContext(ctx, &devices, deviceQuery, entityType, studentID, artistID); err != nil {
		return nil, fmt.Errorf("failed to aggregate session devices: %w", err)
	}
	for _, d := range devices {
		stats.ByDeviceType[d.DeviceType] = d.Count
	}

	var actions []struct {
		Type  string `db:"type"`
		Count int64  `db:"count"`
	}
	actionQuery := `
		SELECT a.elem->>'type' AS type, COUNT(*) AS count
		FROM sessions, jsonb_array_elements(sessions.actions) AS a(elem)
		WHERE ` + where + `
		GROUP BY 1`
	if err := r.db.SelectContext(ctx, &actions, actionQuery, entityType, studentID, artistID); err != nil {
		return nil, fmt.Errorf("failed to aggregate session actions: %w", err)
	}
	for _, a := range actions {
		stats.ByAction[domain.ActionType(a.Type)] = a.Count
	}

	return stats, nil
}
