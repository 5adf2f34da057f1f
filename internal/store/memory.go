package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/emilylaguna/memoryd/pkg/schema"
)

// MemoryStore is an in-memory Store used by tests and by deployments
// that do not want a database file.
type MemoryStore struct {
	mu          sync.RWMutex
	workflows   map[string]*schema.WorkflowDefinition
	order       []string
	runs        map[string]*schema.WorkflowRun
	runOrder    []string
	suggestions map[string]*schema.WorkflowSuggestion
	lastFired   map[string]time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows:   make(map[string]*schema.WorkflowDefinition),
		runs:        make(map[string]*schema.WorkflowRun),
		suggestions: make(map[string]*schema.WorkflowSuggestion),
		lastFired:   make(map[string]time.Time),
	}
}

func (s *MemoryStore) PutWorkflow(ctx context.Context, def *schema.WorkflowDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.workflows[def.ID]; !exists {
		s.order = append(s.order, def.ID)
	}
	cp := *def
	s.workflows[def.ID] = &cp
	return nil
}

func (s *MemoryStore) GetWorkflow(ctx context.Context, id string) (*schema.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.workflows[id]
	if !ok {
		return nil, storeNotFound("workflow", id)
	}
	cp := *def
	return &cp, nil
}

func (s *MemoryStore) ListWorkflows(ctx context.Context) ([]*schema.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*schema.WorkflowDefinition, 0, len(s.order))
	for _, id := range s.order {
		cp := *s.workflows[id]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) SetWorkflowEnabled(ctx context.Context, id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := s.workflows[id]
	if !ok {
		return storeNotFound("workflow", id)
	}
	def.Enabled = enabled
	return nil
}

func (s *MemoryStore) DeleteWorkflow(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[id]; !ok {
		return storeNotFound("workflow", id)
	}
	delete(s.workflows, id)
	for i, wid := range s.order {
		if wid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) CreateRun(ctx context.Context, run *schema.WorkflowRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := cloneRun(run)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.runs[run.ID] = cp
	s.runOrder = append(s.runOrder, run.ID)
	return nil
}

func (s *MemoryStore) UpdateRun(ctx context.Context, id string, update RunUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return storeNotFound("run", id)
	}
	if update.Status != nil {
		run.Status = *update.Status
	}
	if update.StartedAt != nil {
		run.StartedAt = update.StartedAt
	}
	if update.FinishedAt != nil {
		run.FinishedAt = update.FinishedAt
	}
	if update.ActionLogs != nil {
		run.ActionLogs = append([]schema.ActionLog(nil), update.ActionLogs...)
	}
	if update.Error != nil {
		run.Error = *update.Error
	}
	return nil
}

func (s *MemoryStore) GetRun(ctx context.Context, id string) (*schema.WorkflowRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, storeNotFound("run", id)
	}
	return cloneRun(run), nil
}

func (s *MemoryStore) ListRuns(ctx context.Context, filter RunFilter) ([]*schema.WorkflowRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*schema.WorkflowRun
	for _, id := range s.runOrder {
		run := s.runs[id]
		if filter.WorkflowID != "" && run.WorkflowID != filter.WorkflowID {
			continue
		}
		if filter.Status != nil && run.Status != *filter.Status {
			continue
		}
		if filter.Since != nil && run.CreatedAt.Before(*filter.Since) {
			continue
		}
		out = append(out, cloneRun(run))
	}
	// Newest first, matching the SQL implementation.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) PutSuggestion(ctx context.Context, sug *schema.WorkflowSuggestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sug
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.suggestions[sug.ID] = &cp
	return nil
}

func (s *MemoryStore) GetSuggestion(ctx context.Context, id string) (*schema.WorkflowSuggestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sug, ok := s.suggestions[id]
	if !ok {
		return nil, storeNotFound("suggestion", id)
	}
	cp := *sug
	return &cp, nil
}

func (s *MemoryStore) ListSuggestions(ctx context.Context, filter SuggestionFilter) ([]*schema.WorkflowSuggestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*schema.WorkflowSuggestion
	for _, sug := range s.suggestions {
		if filter.Status != "" && sug.Status != filter.Status {
			continue
		}
		if filter.PatternType != "" && sug.PatternType != filter.PatternType {
			continue
		}
		cp := *sug
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) UpdateSuggestionStatus(ctx context.Context, id string, status schema.SuggestionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sug, ok := s.suggestions[id]
	if !ok {
		return storeNotFound("suggestion", id)
	}
	sug.Status = status
	sug.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) GetLastFired(ctx context.Context, workflowID string) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	at, ok := s.lastFired[workflowID]
	if !ok {
		return nil, nil
	}
	cp := at
	return &cp, nil
}

func (s *MemoryStore) SetLastFired(ctx context.Context, workflowID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFired[workflowID] = at
	return nil
}

func (s *MemoryStore) Migrate(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func cloneRun(run *schema.WorkflowRun) *schema.WorkflowRun {
	cp := *run
	cp.ActionLogs = append([]schema.ActionLog(nil), run.ActionLogs...)
	return &cp
}
