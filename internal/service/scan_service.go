package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/andressep95/nfc-access-service/internal/domain"
	"github.com/andressep95/nfc-access-service/internal/repository"
	"github.com/andressep95/nfc-access-service/pkg/useragent"
)

// ScanService maintains the per-entity scan counter and bounded history
type ScanService struct {
	entityRepo repository.EntityRepository
	historyCap int
	clock      Clock
	logger     *zap.Logger
}

func NewScanService(entityRepo repository.EntityRepository, historyCap int, clock Clock, logger *zap.Logger) *ScanService {
	if historyCap <= 0 {
		historyCap = domain.DefaultScanHistoryCap
	}
	return &ScanService{
		entityRepo: entityRepo,
		historyCap: historyCap,
		clock:      clockOrSystem(clock),
		logger:     logger,
	}
}

// RecordScan bumps the counter and returns its new value
func (s *ScanService) RecordScan(ctx context.Context, ref domain.EntityRef, ipAddress, userAgent string) (int64, error) {
	entry := domain.ScanEntry{
		ScannedAt:  s.clock(),
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		DeviceType: useragent.DeviceType(userAgent),
	}
	return s.entityRepo.RecordScan(ctx, ref, entry, s.historyCap)
}

func (s *ScanService) History(ctx context.Context, ref domain.EntityRef) ([]domain.ScanEntry, error) {
	return s.entityRepo.ScanHistory(ctx, ref)
}
