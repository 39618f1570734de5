package memory

import (
	"context"
	"sync"

	"github.com/andressep95/nfc-access-service/internal/domain"
)

type entityRecord struct {
	profile domain.Profile
	active  bool
	history []domain.ScanEntry
}

// EntityRepository keeps students and artists in memory. Records are added
// with PutStudent / PutArtist; entity CRUD lives outside this service.
type EntityRepository struct {
	mu      sync.Mutex
	records map[domain.EntityRef]*entityRecord
}

func NewEntityRepository() *EntityRepository {
	return &EntityRepository{records: make(map[domain.EntityRef]*entityRecord)}
}

func (r *EntityRepository) PutStudent(ref domain.EntityRef, p domain.StudentProfile, active bool) {
	r.put(ref, domain.Profile{Ref: ref, DisplayName: p.FullName, Student: &p}, active)
}

func (r *EntityRepository) PutArtist(ref domain.EntityRef, p domain.ArtistProfile, active bool) {
	r.put(ref, domain.Profile{Ref: ref, DisplayName: p.StageName, Artist: &p}, active)
}

func (r *EntityRepository) put(ref domain.EntityRef, p domain.Profile, active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[ref] = &entityRecord{profile: p, active: active}
}

func (r *EntityRepository) SetActive(ref domain.EntityRef, active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[ref]; ok {
		rec.active = active
	}
}

func (r *EntityRepository) GetProfile(_ context.Context, ref domain.EntityRef) (*domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[ref]
	if !ok || !rec.active {
		return nil, domain.ErrEntityNotFound
	}
	p := rec.profile
	return &p, nil
}

func (r *EntityRepository) RecordScan(_ context.Context, ref domain.EntityRef, entry domain.ScanEntry, historyCap int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[ref]
	if !ok || !rec.active {
		return 0, domain.ErrEntityNotFound
	}
	rec.profile.ScanCount++
	scanned := entry.ScannedAt
	rec.profile.LastScanned = &scanned
	rec.history = domain.AppendScan(rec.history, entry, historyCap)
	return rec.profile.ScanCount, nil
}

func (r *EntityRepository) ScanHistory(_ context.Context, ref domain.EntityRef) ([]domain.ScanEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[ref]
	if !ok {
		return nil, domain.ErrEntityNotFound
	}
	return append([]domain.ScanEntry(nil), rec.history...), nil
}

func (r *EntityRepository) Ping(context.Context) error { return nil }
