package reportstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yanqian/xray-diagnosis/internal/domain/diagnosis"
)

type entry struct {
	report    diagnosis.Report
	expiresAt time.Time
}

// MemoryStore keeps report history in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	reports map[uuid.UUID]entry
	now     func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{reports: make(map[uuid.UUID]entry), now: time.Now}
}

// Save stores report; a non-positive ttl keeps it forever.
func (s *MemoryStore) Save(_ context.Context, report diagnosis.Report, ttl time.Duration) error {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = s.now().Add(ttl)
	}
	s.mu.Lock()
	s.reports[report.ID] = entry{report: report, expiresAt: expiresAt}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (diagnosis.Report, bool, error) {
	s.mu.RLock()
	e, ok := s.reports[id]
	s.mu.RUnlock()
	if !ok {
		return diagnosis.Report{}, false, nil
	}
	if s.expired(e) {
		s.mu.Lock()
		delete(s.reports, id)
		s.mu.Unlock()
		return diagnosis.Report{}, false, nil
	}
	return e.report, true, nil
}

// ListByAccount returns the newest reports first.
func (s *MemoryStore) ListByAccount(_ context.Context, accountID int64, limit int) ([]diagnosis.Report, error) {
	s.mu.Lock()
	out := make([]diagnosis.Report, 0)
	for id, e := range s.reports {
		if s.expired(e) {
			delete(s.reports, id)
			continue
		}
		if e.report.AccountID == accountID {
			out = append(out, e.report)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) expired(e entry) bool {
	return !e.expiresAt.IsZero() && s.now().After(e.expiresAt)
}

var _ diagnosis.ReportStore = (*MemoryStore)(nil)
