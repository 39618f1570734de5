package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/andressep95/nfc-access-service/internal/domain"
	"github.com/andressep95/nfc-access-service/internal/repository"
)

// entityTables maps an entity type to its table and public id column.
// Only these fixed identifiers are ever interpolated into SQL.
var entityTables = map[domain.EntityType]struct{ table, idColumn string }{
	domain.EntityTypeStudent: {"students", "student_id"},
	domain.EntityTypeArtist:  {"artists", "artist_id"},
}

type studentProfileRow struct {
	FullName              string       `db:"full_name"`
	SchoolName            string       `db:"school_name"`
	ClassName             string       `db:"class_name"`
	PhotoURL              string       `db:"photo_url"`
	BloodGroup            string       `db:"blood_group"`
	EmergencyContactName  string       `db:"emergency_contact_name"`
	EmergencyContactPhone string       `db:"emergency_contact_phone"`
	ScanCount             int64        `db:"scan_count"`
	LastScanned           sql.NullTime `db:"last_scanned"`
}

type artistProfileRow struct {
	StageName   string       `db:"stage_name"`
	FullName    string       `db:"full_name"`
	Genre       string       `db:"genre"`
	Bio         string       `db:"bio"`
	PhotoURL    string       `db:"photo_url"`
	Website     string       `db:"website"`
	Socials     []byte       `db:"socials"`
	ScanCount   int64        `db:"scan_count"`
	LastScanned sql.NullTime `db:"last_scanned"`
}

type entityRepository struct {
	db *sqlx.DB
}

// NewEntityRepository creates a PostgreSQL view over the students and artists tables
func NewEntityRepository(db *sqlx.DB) repository.EntityRepository {
	return &entityRepository{db: db}
}

// GetProfile loads the public projection of an active entity
func (r *entityRepository) GetProfile(ctx context.Context, ref domain.EntityRef) (*domain.Profile, error) {
	switch ref.Type() {
	case domain.EntityTypeStudent:
		return r.getStudent(ctx, ref)
	case domain.EntityTypeArtist:
		return r.getArtist(ctx, ref)
	default:
		return nil, domain.ErrEntityNotFound
	}
}

func (r *entityRepository) getStudent(ctx context.Context, ref domain.EntityRef) (*domain.Profile, error) {
	query := `
		SELECT s.full_name,
		       COALESCE(sc.name, '') AS school_name,
		       COALESCE(s.class_name, '') AS class_name,
		       COALESCE(s.photo_url, '') AS photo_url,
		       COALESCE(s.blood_group, '') AS blood_group,
		       COALESCE(s.emergency_contact_name, '') AS emergency_contact_name,
		       COALESCE(s.emergency_contact_phone, '') AS emergency_contact_phone,
		       s.scan_count,
		       s.last_scanned
		FROM students s
		LEFT JOIN schools sc ON sc.id = s.school_id
		WHERE s.student_id = $1 AND s.is_active`

	var row studentProfileRow
	if err := r.db.GetContext(ctx, &row, query, ref.ID()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrEntityNotFound
		}
		return nil, fmt.Errorf("failed to get student profile: %w", err)
	}

	return &domain.Profile{
		Ref:         ref,
		DisplayName: row.FullName,
		ScanCount:   row.ScanCount,
		LastScanned: fromNullTime(row.LastScanned),
		Student: &domain.StudentProfile{
			FullName:              row.FullName,
			SchoolName:            row.SchoolName,
			ClassName:             row.ClassName,
			PhotoURL:              row.PhotoURL,
			BloodGroup:            row.BloodGroup,
			EmergencyContactName:  row.EmergencyContactName,
			EmergencyContactPhone: row.EmergencyContactPhone,
		},
	}, nil
}

func (r *entityRepository) getArtist(ctx context.Context, ref domain.EntityRef) (*domain.Profile, error) {
	query := `
		SELECT stage_name,
		       COALESCE(full_name, '') AS full_name,
		       COALESCE(genre, '') AS genre,
		       COALESCE(bio, '') AS bio,
		       COALESCE(photo_url, '') AS photo_url,
		       COALESCE(website, '') AS website,
		       socials,
		       scan_count,
		       last_scanned
		FROM artists
		WHERE artist_id = $1 AND is_active`

	var row artistProfileRow
	if err := r.db.GetContext(ctx, &row, query, ref.ID()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrEntityNotFound
		}
		return nil, fmt.Errorf("failed to get artist profile: %w", err)
	}

	var socials map[string]string
	if len(row.Socials) > 0 {
		if err := json.Unmarshal(row.Socials, &socials); err != nil {
			return nil, fmt.Errorf("failed to decode artist socials: %w", err)
		}
	}

	return &domain.Profile{
		Ref:         ref,
		DisplayName: row.StageName,
		ScanCount:   row.ScanCount,
		LastScanned: fromNullTime(row.LastScanned),
		Artist: &domain.ArtistProfile{
			StageName: row.StageName,
			FullName:  row.FullName,
			Genre:     row.Genre,
			Bio:       row.Bio,
			PhotoURL:  row.PhotoURL,
			Website:   row.Website,
			Socials:   socials,
		},
	}, nil
}

// RecordScan increments the counter and appends to the capped history in one
// UPDATE. The history keeps the newest historyCap entries in insertion order.
func (r *entityRepository) RecordScan(ctx context.Context, ref domain.EntityRef, entry domain.ScanEntry, historyCap int) (int64, error) {
	target, ok := entityTables[ref.Type()]
	if !ok {
		return 0, domain.ErrEntityNotFound
	}
	if historyCap <= 0 {
		historyCap = domain.DefaultScanHistoryCap
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return 0, fmt.Errorf("failed to encode scan entry: %w", err)
	}

	query := fmt.Sprintf(`
		UPDATE %[1]s
		SET scan_count   = scan_count + 1,
		    last_scanned = $2,
		    scan_history = (
		        SELECT COALESCE(jsonb_agg(h.entry ORDER BY h.pos), '[]'::jsonb)
		        FROM (
		            SELECT e.entry, e.pos
		            FROM jsonb_array_elements(%[1]s.scan_history || jsonb_build_array($3::jsonb))
		                 WITH ORDINALITY AS e(entry, pos)
		            ORDER BY e.pos DESC
		            LIMIT $4
		        ) h
		    )
		WHERE %[2]s = $1 AND is_active
		RETURNING scan_count`, target.table, target.idColumn)

	var count int64
	if err := r.db.GetContext(ctx, &count, query, ref.ID(), entry.ScannedAt, string(payload), historyCap); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrEntityNotFound
		}
		return 0, fmt.Errorf("failed to record scan: %w", err)
	}

	return count, nil
}

// ScanHistory returns the stored history, oldest first
func (r *entityRepository) ScanHistory(ctx context.Context, ref domain.EntityRef) ([]domain.ScanEntry, error) {
	target, ok := entityTables[ref.Type()]
	if !ok {
		return nil, domain.ErrEntityNotFound
	}

	query := fmt.Sprintf(`SELECT scan_history FROM %s WHERE %s = $1`, target.table, target.idColumn)

	var raw []byte
	if err := r.db.GetContext(ctx, &raw, query, ref.ID()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrEntityNotFound
		}
		return nil, fmt.Errorf("failed to get scan history: %w", err)
	}

	var history []domain.ScanEntry
	if err := json.Unmarshal(raw, &history); err != nil {
		return nil, fmt.Errorf("failed to decode scan history: %w", err)
	}
	return history, nil
}

func (r *entityRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
