package repository

import (
	"context"

	"github.com/andressep95/nfc-access-service/internal/domain"
)

// EntityRepository is the slice of the student/artist store this service needs.
// Inactive records behave as missing.
type EntityRepository interface {
	GetProfile(ctx context.Context, ref domain.EntityRef) (*domain.Profile, error)
	// RecordScan returns the new scan count
	RecordScan(ctx context.Context, ref domain.EntityRef, entry domain.ScanEntry, historyCap int) (int64, error)
	ScanHistory(ctx context.Context, ref domain.EntityRef) ([]domain.ScanEntry, error)
	Ping(ctx context.Context) error
}
