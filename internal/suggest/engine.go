// Package suggest mines recent memory activity for automatable
// patterns and manages the resulting workflow suggestions through
// their proposed/approved/dismissed lifecycle.
package suggest

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/emilylaguna/memoryd/internal/memory"
	"github.com/emilylaguna/memoryd/internal/registry"
	"github.com/emilylaguna/memoryd/internal/store"
	"github.com/emilylaguna/memoryd/pkg/schema"
)

const (
	// mining window and cap for recent-entity scans
	miningWindow   = 30 * 24 * time.Hour
	miningMaxItems = 1000
)

// Metrics summarizes the suggestion corpus.
type Metrics struct {
	Total     int            `json:"total"`
	ByStatus  map[string]int `json:"byStatus"`
	ByPattern map[string]int `json:"byPattern"`
	Generated int            `json:"generatedLastRun"`
	LastRunAt *time.Time     `json:"lastRunAt,omitempty"`
}

// Engine generates and manages workflow suggestions.
type Engine struct {
	entities memory.EntityStore
	store    store.Store
	registry *registry.Registry
	logger   *slog.Logger
	clock    func() time.Time

	lastRunAt     *time.Time
	lastGenerated int
}

// NewEngine creates a suggestion Engine.
func NewEngine(entities memory.EntityStore, st store.Store, reg *registry.Registry, logger *slog.Logger) *Engine {
	return &Engine{
		entities: entities,
		store:    st,
		registry: reg,
		logger:   logger,
		clock:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source, for tests.
func (e *Engine) SetClock(clock func() time.Time) { e.clock = clock }

// Generate mines recent activity, persists new proposals, and returns
// proposed suggestions ranked by confidence. query filters by substring
// on name and rationale; limit caps the result (0 means no cap).
func (e *Engine) Generate(ctx context.Context, query string, limit int) ([]*schema.WorkflowSuggestion, error) {
	now := e.clock()
	recent, err := e.entities.ListRecentEntities(ctx, now.Add(-miningWindow), miningMaxItems)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "list recent entities: %s", err.Error()).WithCause(err)
	}

	var mined []pattern
	if len(recent) > 0 {
		mined = append(mined, mineCreationFrequency(recent)...)
		mined = append(mined, mineCompletionRate(recent)...)
		mined = append(mined, mineTemporal(recent)...)
		mined = append(mined, mineKeywords(recent)...)
	}
	mined = append(mined, seededPatterns()...)

	existing, err := e.store.ListSuggestions(ctx, store.SuggestionFilter{})
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "list suggestions: %s", err.Error()).WithCause(err)
	}
	seen := make(map[string]struct{}, len(existing))
	for _, s := range existing {
		seen[s.Proposed.Name] = struct{}{}
	}
	// Workflows already registered should not be re-suggested either.
	for _, def := range e.registry.List(false) {
		seen[def.Name] = struct{}{}
	}

	created := 0
	for _, p := range mined {
		if _, dup := seen[p.Proposed.Name]; dup {
			continue
		}
		seen[p.Proposed.Name] = struct{}{}

		sug := &schema.WorkflowSuggestion{
			ID:             uuid.NewString(),
			PatternType:    p.Type,
			Confidence:     p.confidence(),
			ImpactEstimate: p.Impact,
			Rationale:      p.Rationale,
			Proposed:       p.Proposed,
			Status:         schema.SuggestionProposed,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := e.store.PutSuggestion(ctx, sug); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeStore, "persist suggestion: %s", err.Error()).WithCause(err)
		}
		created++
	}

	e.lastRunAt = &now
	e.lastGenerated = created
	e.logger.InfoContext(ctx, "suggestions generated",
		slog.Int("mined", len(mined)),
		slog.Int("new", created),
		slog.Int("entities_scanned", len(recent)),
	)

	return e.listProposed(ctx, query, limit)
}

// List returns proposed suggestions without running the miners.
func (e *Engine) List(ctx context.Context, query string, limit int) ([]*schema.WorkflowSuggestion, error) {
	return e.listProposed(ctx, query, limit)
}

func (e *Engine) listProposed(ctx context.Context, query string, limit int) ([]*schema.WorkflowSuggestion, error) {
	proposed, err := e.store.ListSuggestions(ctx, store.SuggestionFilter{Status: schema.SuggestionProposed})
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "list suggestions: %s", err.Error()).WithCause(err)
	}

	if query != "" {
		q := strings.ToLower(query)
		filtered := proposed[:0]
		for _, s := range proposed {
			if strings.Contains(strings.ToLower(s.Proposed.Name), q) ||
				strings.Contains(strings.ToLower(s.Rationale), q) {
				filtered = append(filtered, s)
			}
		}
		proposed = filtered
	}

	sort.SliceStable(proposed, func(i, j int) bool {
		return proposed[i].Confidence > proposed[j].Confidence
	})
	if limit > 0 && len(proposed) > limit {
		proposed = proposed[:limit]
	}
	return proposed, nil
}

// Approve turns a proposed suggestion into a registered workflow.
// Approving anything not in the proposed state is a conflict.
func (e *Engine) Approve(ctx context.Context, id string) (*schema.WorkflowDefinition, error) {
	sug, err := e.store.GetSuggestion(ctx, id)
	if err != nil {
		return nil, err
	}
	if sug.Status != schema.SuggestionProposed {
		return nil, schema.NewErrorf(schema.ErrCodeConflict,
			"suggestion %q is %s, only proposed suggestions can be approved", id, sug.Status)
	}

	def := sug.Proposed
	registered, err := e.registry.Register(ctx, &def)
	if err != nil {
		return nil, err
	}

	if err := e.store.UpdateSuggestionStatus(ctx, id, schema.SuggestionApproved); err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "suggestion approved",
		slog.String("suggestion_id", id),
		slog.String("workflow_id", registered.ID),
	)
	return registered, nil
}

// Dismiss marks a proposed suggestion as rejected. Dismissing anything
// not proposed is a conflict.
func (e *Engine) Dismiss(ctx context.Context, id string) error {
	sug, err := e.store.GetSuggestion(ctx, id)
	if err != nil {
		return err
	}
	if sug.Status != schema.SuggestionProposed {
		return schema.NewErrorf(schema.ErrCodeConflict,
			"suggestion %q is %s, only proposed suggestions can be dismissed", id, sug.Status)
	}
	if err := e.store.UpdateSuggestionStatus(ctx, id, schema.SuggestionDismissed); err != nil {
		return err
	}
	e.logger.InfoContext(ctx, "suggestion dismissed", slog.String("suggestion_id", id))
	return nil
}

// Metrics returns counts across the suggestion corpus.
func (e *Engine) Metrics(ctx context.Context) (*Metrics, error) {
	all, err := e.store.ListSuggestions(ctx, store.SuggestionFilter{})
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "list suggestions: %s", err.Error()).WithCause(err)
	}

	m := &Metrics{
		Total:     len(all),
		ByStatus:  make(map[string]int),
		ByPattern: make(map[string]int),
		Generated: e.lastGenerated,
		LastRunAt: e.lastRunAt,
	}
	for _, s := range all {
		m.ByStatus[string(s.Status)]++
		m.ByPattern[string(s.PatternType)]++
	}
	return m, nil
}
