package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// EntityType discriminates which profile table a reference points at
type EntityType string

const (
	EntityTypeStudent EntityType = "student"
	EntityTypeArtist  EntityType = "artist"
)

var entityIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// ParseEntityType converts a raw string into a known EntityType
func ParseEntityType(raw string) (EntityType, error) {
	switch EntityType(raw) {
	case EntityTypeStudent, EntityTypeArtist:
		return EntityType(raw), nil
	default:
		return "", fmt.Errorf("%w: unknown entity type %q", ErrInvalidInput, raw)
	}
}

// ValidEntityID reports whether id looks like a human-readable entity identifier (SL1-01, AT-07)
func ValidEntityID(id string) bool {
	return entityIDPattern.MatchString(id)
}

// EntityRef identifies exactly one Student or Artist. The zero value is invalid;
// build one with NewEntityRef, StudentRef or ArtistRef.
type EntityRef struct {
	typ EntityType
	id  string
}

// NewEntityRef validates both halves of the reference
func NewEntityRef(typ EntityType, id string) (EntityRef, error) {
	if _, err := ParseEntityType(string(typ)); err != nil {
		return EntityRef{}, err
	}
	if !ValidEntityID(id) {
		return EntityRef{}, fmt.Errorf("%w: malformed entity id %q", ErrInvalidInput, id)
	}
	return EntityRef{typ: typ, id: id}, nil
}

// ParseEntityRef is NewEntityRef for untyped input (URL params, JSON bodies)
func ParseEntityRef(rawType, id string) (EntityRef, error) {
	typ, err := ParseEntityType(rawType)
	if err != nil {
		return EntityRef{}, err
	}
	return NewEntityRef(typ, id)
}

func StudentRef(id string) (EntityRef, error) { return NewEntityRef(EntityTypeStudent, id) }

func ArtistRef(id string) (EntityRef, error) { return NewEntityRef(EntityTypeArtist, id) }

func (r EntityRef) Type() EntityType { return r.typ }

func (r EntityRef) ID() string { return r.id }

func (r EntityRef) IsZero() bool { return r.typ == "" }

// StudentID returns the id when the reference points at a student
func (r EntityRef) StudentID() (string, bool) {
	if r.typ != EntityTypeStudent {
		return "", false
	}
	return r.id, true
}

// ArtistID returns the id when the reference points at an artist
func (r EntityRef) ArtistID() (string, bool) {
	if r.typ != EntityTypeArtist {
		return "", false
	}
	return r.id, true
}

func (r EntityRef) String() string {
	return string(r.typ) + ":" + r.id
}

// StudentProfile is the public projection of a student record
type StudentProfile struct {
	FullName              string `json:"full_name"`
	SchoolName            string `json:"school_name,omitempty"`
	ClassName             string `json:"class_name,omitempty"`
	PhotoURL              string `json:"photo_url,omitempty"`
	BloodGroup            string `json:"blood_group,omitempty"`
	EmergencyContactName  string `json:"emergency_contact_name,omitempty"`
	EmergencyContactPhone string `json:"emergency_contact_phone,omitempty"`
}

// ArtistProfile is the public projection of an artist record
type ArtistProfile struct {
	StageName string            `json:"stage_name"`
	FullName  string            `json:"full_name,omitempty"`
	Genre     string            `json:"genre,omitempty"`
	Bio       string            `json:"bio,omitempty"`
	PhotoURL  string            `json:"photo_url,omitempty"`
	Website   string            `json:"website,omitempty"`
	Socials   map[string]string `json:"socials,omitempty"`
}

// Profile is what the public resolution endpoint returns. It never carries the
// internal primary key or any token string.
type Profile struct {
	Ref         EntityRef       `json:"-"`
	DisplayName string          `json:"display_name"`
	ScanCount   int64           `json:"scan_count"`
	LastScanned *time.Time      `json:"last_scanned,omitempty"`
	Student     *StudentProfile `json:"student,omitempty"`
	Artist      *ArtistProfile  `json:"artist,omitempty"`
}

// MarshalJSON adds the entity reference to the payload
func (p Profile) MarshalJSON() ([]byte, error) {
	type profile Profile
	return json.Marshal(struct {
		EntityType EntityType `json:"entity_type"`
		EntityID   string     `json:"entity_id"`
		profile
	}{p.Ref.Type(), p.Ref.ID(), profile(p)})
}
