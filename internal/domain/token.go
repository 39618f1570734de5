package domain

import (
	"time"

	"github.com/google/uuid"
)

// TokenKind is fixed at creation
type TokenKind string

const (
	TokenKindPermanent TokenKind = "permanent"
	TokenKindTemporary TokenKind = "temporary"
	TokenKindOneTime   TokenKind = "one-time"
)

func (k TokenKind) Valid() bool {
	switch k {
	case TokenKindPermanent, TokenKindTemporary, TokenKindOneTime:
		return true
	}
	return false
}

// AccessToken is the only external handle to an entity
type AccessToken struct {
	ID             uuid.UUID  `json:"-"`
	Token          string     `json:"token"`
	Entity         EntityRef  `json:"-"`
	Kind           TokenKind  `json:"kind"`
	IsUsed         bool       `json:"is_used"`
	UsedAt         *time.Time `json:"used_at,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	AccessCount    int64      `json:"access_count"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
	IPAddress      string     `json:"ip_address,omitempty"`
	UserAgent      string     `json:"user_agent,omitempty"`
	CreatedBy      string     `json:"created_by,omitempty"`
	Notes          string     `json:"notes,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Check classifies the token at instant now. It depends only on kind, isUsed
// and expiresAt; entity state never affects it.
func (t *AccessToken) Check(now time.Time) error {
	switch t.Kind {
	case TokenKindOneTime:
		if t.IsUsed {
			return ErrTokenAlreadyUsed
		}
	case TokenKindTemporary:
		if t.ExpiresAt != nil && !now.Before(*t.ExpiresAt) {
			return ErrTokenExpired
		}
	}
	return nil
}

// ApplyAccess mutates telemetry for a successful resolution. Callers must have
// checked validity under the same lock or conditional write.
func (t *AccessToken) ApplyAccess(now time.Time, ipAddress, userAgent string) {
	t.AccessCount++
	t.LastAccessedAt = &now
	t.IPAddress = ipAddress
	t.UserAgent = userAgent
	if t.Kind == TokenKindOneTime {
		t.IsUsed = true
		t.UsedAt = &now
	}
}
