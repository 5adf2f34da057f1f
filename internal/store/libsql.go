package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/emilylaguna/memoryd/pkg/schema"
)

// LibSQLStore implements Store over libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path. The path
// should be a file URI, e.g. "file:/path/to/memoryd.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Connection-level PRAGMAs. Some return rows, so QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate applies all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return applyMigrations(ctx, s.db)
}

// --- Workflows ---

func (s *LibSQLStore) PutWorkflow(ctx context.Context, def *schema.WorkflowDefinition) error {
	raw, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflows (id, name, definition, enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(id) DO UPDATE SET
		   name=excluded.name, definition=excluded.definition,
		   enabled=excluded.enabled, updated_at=CURRENT_TIMESTAMP`,
		def.ID, def.Name, string(raw), boolToInt(def.Enabled), time.Now().UTC(),
	)
	return err
}

func (s *LibSQLStore) GetWorkflow(ctx context.Context, id string) (*schema.WorkflowDefinition, error) {
	var raw string
	var enabled int
	err := s.db.QueryRowContext(ctx,
		`SELECT definition, enabled FROM workflows WHERE id = ?`, id,
	).Scan(&raw, &enabled)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("workflow", id)
	}
	if err != nil {
		return nil, err
	}
	return decodeWorkflow(raw, enabled)
}

func (s *LibSQLStore) ListWorkflows(ctx context.Context) ([]*schema.WorkflowDefinition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT definition, enabled FROM workflows ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []*schema.WorkflowDefinition
	for rows.Next() {
		var raw string
		var enabled int
		if err := rows.Scan(&raw, &enabled); err != nil {
			return nil, err
		}
		def, err := decodeWorkflow(raw, enabled)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

func (s *LibSQLStore) SetWorkflowEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflows SET enabled = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		boolToInt(enabled), id,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "workflow", id)
}

func (s *LibSQLStore) DeleteWorkflow(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "workflow", id)
}

// decodeWorkflow restores a definition row. The enabled column is the
// source of truth for pause state, overriding the serialized field.
func decodeWorkflow(raw string, enabled int) (*schema.WorkflowDefinition, error) {
	def := &schema.WorkflowDefinition{}
	if err := json.Unmarshal([]byte(raw), def); err != nil {
		return nil, fmt.Errorf("unmarshal definition: %w", err)
	}
	def.Enabled = enabled != 0
	return def, nil
}

// --- Run ledger ---

func (s *LibSQLStore) CreateRun(ctx context.Context, run *schema.WorkflowRun) error {
	event, err := json.Marshal(run.Event)
	if err != nil {
		return fmt.Errorf("marshal run event: %w", err)
	}
	logs, err := marshalLogs(run.ActionLogs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflow_runs (id, workflow_id, event, status, started_at, finished_at, action_logs, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.WorkflowID, string(event), string(run.Status),
		nullTime(run.StartedAt), nullTime(run.FinishedAt),
		logs, nullStr(run.Error), timeOrNow(run.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) UpdateRun(ctx context.Context, id string, update RunUpdate) error {
	var sets []string
	var args []any

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.StartedAt != nil {
		sets = append(sets, "started_at = ?")
		args = append(args, *update.StartedAt)
	}
	if update.FinishedAt != nil {
		sets = append(sets, "finished_at = ?")
		args = append(args, *update.FinishedAt)
	}
	if update.ActionLogs != nil {
		logs, err := marshalLogs(update.ActionLogs)
		if err != nil {
			return err
		}
		sets = append(sets, "action_logs = ?")
		args = append(args, logs)
	}
	if update.Error != nil {
		sets = append(sets, "error = ?")
		args = append(args, nullStr(*update.Error))
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE workflow_runs SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "run", id)
}

func (s *LibSQLStore) GetRun(ctx context.Context, id string) (*schema.WorkflowRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, workflow_id, event, status, started_at, finished_at, action_logs, error, created_at
		 FROM workflow_runs WHERE id = ?`, id,
	)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("run", id)
	}
	return run, err
}

func (s *LibSQLStore) ListRuns(ctx context.Context, filter RunFilter) ([]*schema.WorkflowRun, error) {
	var where []string
	var args []any

	if filter.WorkflowID != "" {
		where = append(where, "workflow_id = ?")
		args = append(args, filter.WorkflowID)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, *filter.Since)
	}

	query := `SELECT id, workflow_id, event, status, started_at, finished_at, action_logs, error, created_at FROM workflow_runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*schema.WorkflowRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*schema.WorkflowRun, error) {
	run := &schema.WorkflowRun{}
	var (
		eventJSON  string
		status     string
		startedAt  sql.NullTime
		finishedAt sql.NullTime
		logsJSON   sql.NullString
		errStr     sql.NullString
	)
	if err := row.Scan(&run.ID, &run.WorkflowID, &eventJSON, &status,
		&startedAt, &finishedAt, &logsJSON, &errStr, &run.CreatedAt); err != nil {
		return nil, err
	}
	run.Status = schema.RunStatus(status)
	if err := json.Unmarshal([]byte(eventJSON), &run.Event); err != nil {
		return nil, fmt.Errorf("unmarshal run event: %w", err)
	}
	if logsJSON.Valid && logsJSON.String != "" {
		if err := json.Unmarshal([]byte(logsJSON.String), &run.ActionLogs); err != nil {
			return nil, fmt.Errorf("unmarshal action logs: %w", err)
		}
	}
	run.Error = errStr.String
	if startedAt.Valid {
		run.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	return run, nil
}

func marshalLogs(logs []schema.ActionLog) (any, error) {
	if len(logs) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(logs)
	if err != nil {
		return nil, fmt.Errorf("marshal action logs: %w", err)
	}
	return string(b), nil
}

// --- Suggestions ---

func (s *LibSQLStore) PutSuggestion(ctx context.Context, sug *schema.WorkflowSuggestion) error {
	proposed, err := json.Marshal(sug.Proposed)
	if err != nil {
		return fmt.Errorf("marshal proposed workflow: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO suggestions (id, pattern_type, confidence, impact_estimate, rationale, proposed, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(id) DO UPDATE SET
		   confidence=excluded.confidence, impact_estimate=excluded.impact_estimate,
		   rationale=excluded.rationale, proposed=excluded.proposed, updated_at=CURRENT_TIMESTAMP`,
		sug.ID, string(sug.PatternType), sug.Confidence, nullStr(sug.ImpactEstimate),
		nullStr(sug.Rationale), string(proposed), string(sug.Status), timeOrNow(sug.CreatedAt),
	)
	return err
}

func (s *LibSQLStore) GetSuggestion(ctx context.Context, id string) (*schema.WorkflowSuggestion, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, pattern_type, confidence, impact_estimate, rationale, proposed, status, created_at, updated_at
		 FROM suggestions WHERE id = ?`, id,
	)
	sug, err := scanSuggestion(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("suggestion", id)
	}
	return sug, err
}

func (s *LibSQLStore) ListSuggestions(ctx context.Context, filter SuggestionFilter) ([]*schema.WorkflowSuggestion, error) {
	var where []string
	var args []any

	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.PatternType != "" {
		where = append(where, "pattern_type = ?")
		args = append(args, string(filter.PatternType))
	}

	query := `SELECT id, pattern_type, confidence, impact_estimate, rationale, proposed, status, created_at, updated_at FROM suggestions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY confidence DESC, created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var suggestions []*schema.WorkflowSuggestion
	for rows.Next() {
		sug, err := scanSuggestion(rows)
		if err != nil {
			return nil, err
		}
		suggestions = append(suggestions, sug)
	}
	return suggestions, rows.Err()
}

func (s *LibSQLStore) UpdateSuggestionStatus(ctx context.Context, id string, status schema.SuggestionStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE suggestions SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		string(status), id,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "suggestion", id)
}

func scanSuggestion(row rowScanner) (*schema.WorkflowSuggestion, error) {
	sug := &schema.WorkflowSuggestion{}
	var (
		patternType  string
		impact       sql.NullString
		rationale    sql.NullString
		proposedJSON string
		status       string
	)
	if err := row.Scan(&sug.ID, &patternType, &sug.Confidence, &impact, &rationale,
		&proposedJSON, &status, &sug.CreatedAt, &sug.UpdatedAt); err != nil {
		return nil, err
	}
	sug.PatternType = schema.PatternType(patternType)
	sug.ImpactEstimate = impact.String
	sug.Rationale = rationale.String
	sug.Status = schema.SuggestionStatus(status)
	if err := json.Unmarshal([]byte(proposedJSON), &sug.Proposed); err != nil {
		return nil, fmt.Errorf("unmarshal proposed workflow: %w", err)
	}
	return sug, nil
}

// --- Scheduler state ---

func (s *LibSQLStore) GetLastFired(ctx context.Context, workflowID string) (*time.Time, error) {
	var at time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT last_fired_at FROM schedule_state WHERE workflow_id = ?`, workflowID,
	).Scan(&at)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &at, nil
}

func (s *LibSQLStore) SetLastFired(ctx context.Context, workflowID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schedule_state (workflow_id, last_fired_at) VALUES (?, ?)
		 ON CONFLICT(workflow_id) DO UPDATE SET last_fired_at=excluded.last_fired_at`,
		workflowID, at,
	)
	return err
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.AutomationError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
