package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/andressep95/nfc-access-service/internal/domain"
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// entityColumns spreads a reference over (entity_type, student_id, artist_id)
func entityColumns(ref domain.EntityRef) (string, sql.NullString, sql.NullString) {
	var studentID, artistID sql.NullString
	if id, ok := ref.StudentID(); ok {
		studentID = sql.NullString{String: id, Valid: true}
	}
	if id, ok := ref.ArtistID(); ok {
		artistID = sql.NullString{String: id, Valid: true}
	}
	return string(ref.Type()), studentID, artistID
}

func entityFromColumns(entityType string, studentID, artistID sql.NullString) (domain.EntityRef, error) {
	switch domain.EntityType(entityType) {
	case domain.EntityTypeStudent:
		if !studentID.Valid || artistID.Valid {
			return domain.EntityRef{}, fmt.Errorf("corrupt entity columns for student row")
		}
		return domain.StudentRef(studentID.String)
	case domain.EntityTypeArtist:
		if !artistID.Valid || studentID.Valid {
			return domain.EntityRef{}, fmt.Errorf("corrupt entity columns for artist row")
		}
		return domain.ArtistRef(artistID.String)
	default:
		return domain.EntityRef{}, fmt.Errorf("unknown entity_type %q", entityType)
	}
}

func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func fromNullTime(nt sql.NullTime) *time.Time {
	if nt.Valid {
		t := nt.Time.UTC()
		return &t
	}
	return nil
}
