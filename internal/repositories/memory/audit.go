// Package memory holds in-process store implementations used in tests and
// when the service runs with STORE_DRIVER=memory.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"fintrust/internal/domain/transfer"
	"fintrust/internal/repositories"
)

// AuditStore is an append-only audit store and claim table guarded by a
// single mutex.
type AuditStore struct {
	mu        sync.RWMutex
	seq       uint64
	committed map[string]transfer.AuditRecord
	flagged   []transfer.AuditRecord
	claims    map[string]transfer.Claim
}

func NewAuditStore() *AuditStore {
	return &AuditStore{
		committed: make(map[string]transfer.AuditRecord),
		claims:    make(map[string]transfer.Claim),
	}
}

func (s *AuditStore) AppendFlagged(ctx context.Context, rec *transfer.AuditRecord) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if rec.Assessment == nil {
		return 0, errors.New("flagged record requires an assessment")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	rec.ID = s.seq
	s.flagged = append(s.flagged, clone(*rec))
	return rec.ID, nil
}

func (s *AuditStore) AppendCommitted(ctx context.Context, rec *transfer.AuditRecord) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if rec.Outcome == nil {
		return 0, errors.New("committed record requires an outcome")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.committed[rec.Request.ID]; ok {
		return 0, repositories.ErrDuplicate
	}
	s.seq++
	rec.ID = s.seq
	s.committed[rec.Request.ID] = clone(*rec)
	return rec.ID, nil
}

func (s *AuditStore) GetByTransferID(ctx context.Context, id string) (*transfer.AuditRecord, error) {
	s.mu.RLock()
	rec, ok := s.committed[id]
	s.mu.RUnlock()
	if ok {
		out := clone(rec)
		return &out, nil
	}
	return s.GetFlagged(ctx, id)
}

func (s *AuditStore) GetFlagged(_ context.Context, id string) (*transfer.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.flagged) - 1; i >= 0; i-- {
		if s.flagged[i].Request.ID == id {
			out := clone(s.flagged[i])
			return &out, nil
		}
	}
	return nil, repositories.ErrRecordNotFound
}

func (s *AuditStore) ListCommitted(_ context.Context, offset, limit int) ([]transfer.AuditRecord, int64, error) {
	s.mu.RLock()
	all := make([]transfer.AuditRecord, 0, len(s.committed))
	for _, rec := range s.committed {
		all = append(all, clone(rec))
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := int64(len(all))
	if offset >= len(all) {
		return []transfer.AuditRecord{}, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

// FlaggedCount returns the number of flagged records appended so far.
func (s *AuditStore) FlaggedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.flagged)
}

// CommittedCount returns the number of committed records appended so far.
func (s *AuditStore) CommittedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.committed)
}

func (s *AuditStore) ClaimSettlement(ctx context.Context, c transfer.Claim) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.claims[c.TransferID]; ok {
		return repositories.ErrDuplicate
	}
	s.claims[c.TransferID] = c
	return nil
}

func (s *AuditStore) GetClaim(_ context.Context, id string) (*transfer.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.claims[id]
	if !ok {
		return nil, repositories.ErrRecordNotFound
	}
	return &c, nil
}

func (s *AuditStore) ReleaseClaim(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claims, id)
	return nil
}

func (s *AuditStore) Ping(context.Context) error { return nil }

func clone(rec transfer.AuditRecord) transfer.AuditRecord {
	if rec.Assessment != nil {
		a := *rec.Assessment
		rec.Assessment = &a
	}
	if rec.Outcome != nil {
		o := *rec.Outcome
		rec.Outcome = &o
	}
	return rec
}
