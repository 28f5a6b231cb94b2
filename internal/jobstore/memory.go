package jobstore

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory implementation of Store.
// Suitable for development and testing. Data is lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*JobRecord
	order   []string // insertion order, for eviction
	config  *Config
}

// NewMemoryStore creates a new in-memory Store.
func NewMemoryStore(cfg *Config) *MemoryStore {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &MemoryStore{
		records: make(map[string]*JobRecord),
		config:  cfg,
	}
}

func (s *MemoryStore) Put(ctx context.Context, rec *JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.JobID]; !exists {
		s.order = append(s.order, rec.JobID)
	}
	s.records[rec.JobID] = rec

	// Evict oldest records beyond the cap
	if s.config.MaxRecords > 0 {
		for len(s.order) > s.config.MaxRecords {
			oldest := s.order[0]
			s.order = s.order[1:]
			delete(s.records, oldest)
		}
	}

	return nil
}

func (s *MemoryStore) Get(ctx context.Context, jobID string) (*JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return rec, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, len(s.order))
	copy(ids, s.order)
	return ids, nil
}

func (s *MemoryStore) AdapterInfo(ctx context.Context) (map[string]interface{}, error) {
	s.mu.RLock()
	count := len(s.records)
	s.mu.RUnlock()

	return map[string]interface{}{
		"adapter":     "memory",
		"job_count":   count,
		"max_records": s.config.MaxRecords,
	}, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// Verify interface compliance
var _ Store = (*MemoryStore)(nil)
