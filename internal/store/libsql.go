package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/adaptflow/pkg/schema"
)

// LibSQLStore implements Persister using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path.
// The path should be a file URI, e.g. "file:/path/to/adaptflow.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
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

// DB returns the underlying *sql.DB.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// --- Workflows ---

func (s *LibSQLStore) SaveWorkflow(ctx context.Context, rec *schema.WorkflowRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal workflow: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflows (id, description, state, record, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET state=excluded.state, record=excluded.record, updated_at=excluded.updated_at`,
		rec.ID, rec.Description, string(rec.State), string(data),
		timeOrNow(rec.CreatedAt), timeOrNow(rec.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) LoadWorkflows(ctx context.Context) ([]*schema.WorkflowRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT record FROM workflows ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*schema.WorkflowRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		rec := &schema.WorkflowRecord{}
		if err := json.Unmarshal([]byte(data), rec); err != nil {
			return nil, fmt.Errorf("unmarshal workflow: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteWorkflow removes the workflow row; outcomes, fitness and patterns
// cascade. Events are kept.
func (s *LibSQLStore) DeleteWorkflow(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "workflow", id)
}

// --- Outcomes & fitness ---

func (s *LibSQLStore) AppendOutcome(ctx context.Context, workflowID string, outcome schema.ExecutionOutcome) error {
	data, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO outcomes (workflow_id, outcome, recorded_at) VALUES (?, ?, ?)`,
		workflowID, string(data), timeOrNow(outcome.RecordedAt),
	)
	return err
}

// RecentOutcomes returns up to limit most recent outcomes, oldest first.
// A non-positive limit returns the full history.
func (s *LibSQLStore) RecentOutcomes(ctx context.Context, workflowID string, limit int) ([]schema.ExecutionOutcome, error) {
	query := `SELECT outcome FROM outcomes WHERE workflow_id = ? ORDER BY id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []schema.ExecutionOutcome
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var o schema.ExecutionOutcome
		if err := json.Unmarshal([]byte(data), &o); err != nil {
			return nil, fmt.Errorf("unmarshal outcome: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *LibSQLStore) SaveFitness(ctx context.Context, rec schema.FitnessRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal fitness: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO fitness (workflow_id, fitness_score, record, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(workflow_id) DO UPDATE SET fitness_score=excluded.fitness_score, record=excluded.record, updated_at=excluded.updated_at`,
		rec.WorkflowID, rec.FitnessScore, string(data), timeOrNow(rec.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) GetFitness(ctx context.Context, workflowID string) (*schema.FitnessRecord, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM fitness WHERE workflow_id = ?`, workflowID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("fitness", workflowID)
	}
	if err != nil {
		return nil, err
	}
	rec := &schema.FitnessRecord{}
	if err := json.Unmarshal([]byte(data), rec); err != nil {
		return nil, fmt.Errorf("unmarshal fitness: %w", err)
	}
	return rec, nil
}

// --- Patterns ---

func (s *LibSQLStore) SavePatterns(ctx context.Context, set schema.PatternSet) error {
	data, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("marshal patterns: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO patterns (workflow_id, pattern_set, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(workflow_id) DO UPDATE SET pattern_set=excluded.pattern_set, updated_at=excluded.updated_at`,
		set.WorkflowID, string(data), time.Now().UTC(),
	)
	return err
}

func (s *LibSQLStore) GetPatterns(ctx context.Context, workflowID string) (*schema.PatternSet, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT pattern_set FROM patterns WHERE workflow_id = ?`, workflowID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("patterns", workflowID)
	}
	if err != nil {
		return nil, err
	}
	set := &schema.PatternSet{}
	if err := json.Unmarshal([]byte(data), set); err != nil {
		return nil, fmt.Errorf("unmarshal patterns: %w", err)
	}
	return set, nil
}

// --- Events ---

// AppendEvent appends an event with a monotonically increasing per-workflow
// sequence. The read of the current maximum and the insert share one
// transaction on the single connection.
func (s *LibSQLStore) AppendEvent(ctx context.Context, event *Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM events WHERE workflow_id = ?`, event.WorkflowID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	event.Sequence = seq

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO events (workflow_id, event_type, payload, timestamp, sequence) VALUES (?, ?, ?, ?, ?)`,
		event.WorkflowID, event.Type, nullRaw(event.Payload), event.Timestamp, seq,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		event.ID = id
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

// GetEvents returns events for a workflow with sequence > since, ordered by sequence ASC.
func (s *LibSQLStore) GetEvents(ctx context.Context, workflowID string, since int64) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workflow_id, event_type, payload, timestamp, sequence
		 FROM events WHERE workflow_id = ? AND sequence > ? ORDER BY sequence ASC`,
		workflowID, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e := &Event{}
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.WorkflowID, &e.Type, &payload, &e.Timestamp, &e.Sequence); err != nil {
			return nil, err
		}
		e.Payload = rawOrNil(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id).WithWorkflow(id)
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

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

var _ Persister = (*LibSQLStore)(nil)
