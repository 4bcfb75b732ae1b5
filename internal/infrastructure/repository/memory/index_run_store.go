package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kirillkom/quarterly-financial-analyser/internal/core/domain"
)

// IndexRunStore keeps index run records in process memory. Records are lost
// on restart; it backs deployments without POSTGRES_DSN.
type IndexRunStore struct {
	mu   sync.RWMutex
	runs map[string]domain.IndexRun
}

func NewIndexRunStore() *IndexRunStore {
	return &IndexRunStore{runs: make(map[string]domain.IndexRun)}
}

func (s *IndexRunStore) CreateRun(_ context.Context, run *domain.IndexRun) error {
	if run == nil || run.ID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "create index run", fmt.Errorf("run id is required"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("create index run: duplicate id %s", run.ID)
	}
	s.runs[run.ID] = cloneRun(*run)
	return nil
}

func (s *IndexRunStore) GetRun(_ context.Context, id string) (*domain.IndexRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, notFound("get index run", id)
	}
	out := cloneRun(run)
	return &out, nil
}

func (s *IndexRunStore) MarkRunning(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return notFound("update index run", id)
	}
	now := time.Now().UTC()
	run.Status = domain.IndexRunRunning
	run.StartedAt = &now
	s.runs[id] = run
	return nil
}

func (s *IndexRunStore) Finish(_ context.Context, id string, status domain.IndexRunStatus, stats domain.IndexStats, errMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return notFound("update index run", id)
	}
	now := time.Now().UTC()
	run.Status = status
	run.Tables = stats.Tables
	run.Passages = stats.Passages
	run.Chunks = stats.Chunks
	run.Skipped = append([]string(nil), stats.Skipped...)
	run.Error = errMessage
	run.FinishedAt = &now
	s.runs[id] = run
	return nil
}

func cloneRun(run domain.IndexRun) domain.IndexRun {
	run.Skipped = append([]string(nil), run.Skipped...)
	if run.StartedAt != nil {
		t := *run.StartedAt
		run.StartedAt = &t
	}
	if run.FinishedAt != nil {
		t := *run.FinishedAt
		run.FinishedAt = &t
	}
	return run
}

func notFound(op, id string) error {
	return domain.WrapError(domain.ErrNotFound, op, fmt.Errorf("index run not found: id=%s", id))
}
