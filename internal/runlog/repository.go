package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// timeFormat sorts lexically in time order.
const timeFormat = "2006-01-02T15:04:05.000Z"

// List page sizes.
const (
	defaultLimit = 50
	maxLimit     = 500
)

// Run is one finished bulk operation of an actor's device set.
type Run struct {
	ID          string    `json:"id"`
	ActorID     string    `json:"actor_id"`
	Kind        string    `json:"kind"`
	Text        string    `json:"text"`
	Slots       []string  `json:"slots"`
	FailedSlots []string  `json:"failed_slots"`
	State       string    `json:"state"`
	Message     string    `json:"message,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	DurationMS  int64     `json:"duration_ms"`
}

// Filter controls which runs List returns.
type Filter struct {
	Kind  string    // optional: command, connect, disconnect, replace
	State string    // optional: final governing state
	Since time.Time // optional: runs finished at or after
	Limit int       // default 50, max 500
}

// Repository stores finished runs.
type Repository interface {
	Create(ctx context.Context, run *Run) error
	Get(ctx context.Context, id string) (*Run, error)
	List(ctx context.Context, filter Filter) ([]Run, error)
}

// SQLiteRepository stores runs in the dispatch_runs table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a run. ID and FinishedAt are filled in when empty.
func (r *SQLiteRepository) Create(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now().UTC()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = run.FinishedAt
	}
	if run.DurationMS == 0 {
		run.DurationMS = run.FinishedAt.Sub(run.StartedAt).Milliseconds()
	}

	slots, err := marshalList(run.Slots)
	if err != nil {
		return fmt.Errorf("marshalling slots: %w", err)
	}
	failed, err := marshalList(run.FailedSlots)
	if err != nil {
		return fmt.Errorf("marshalling failed slots: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO dispatch_runs
		 (id, actor_id, kind, text, slots, failed_slots, state, message, started_at, finished_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ActorID, run.Kind, run.Text, slots, failed, run.State, run.Message,
		run.StartedAt.UTC().Format(timeFormat),
		run.FinishedAt.UTC().Format(timeFormat),
		run.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// Get returns one run, or ErrRunNotFound.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Run, error) {
	row := r.db.QueryRowContext(ctx, selectRuns+" WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// List returns runs matching filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) ([]Run, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}

	var conditions []string
	var args []any
	if filter.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, filter.Kind)
	}
	if filter.State != "" {
		conditions = append(conditions, "state = ?")
		args = append(args, filter.State)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "finished_at >= ?")
		args = append(args, filter.Since.UTC().Format(timeFormat))
	}

	query := selectRuns
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY finished_at DESC, rowid DESC LIMIT ?"
	args = append(args, filter.Limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}

const selectRuns = `SELECT id, actor_id, kind, text, slots, failed_slots, state, message,
	started_at, finished_at, duration_ms FROM dispatch_runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var run Run
	var slots, failed, started, finished string
	if err := s.Scan(&run.ID, &run.ActorID, &run.Kind, &run.Text, &slots, &failed,
		&run.State, &run.Message, &started, &finished, &run.DurationMS); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning run: %w", err)
	}

	if err := json.Unmarshal([]byte(slots), &run.Slots); err != nil {
		return nil, fmt.Errorf("decoding slots of run %s: %w", run.ID, err)
	}
	if err := json.Unmarshal([]byte(failed), &run.FailedSlots); err != nil {
		return nil, fmt.Errorf("decoding failed slots of run %s: %w", run.ID, err)
	}

	var err error
	if run.StartedAt, err = time.Parse(timeFormat, started); err != nil {
		return nil, fmt.Errorf("parsing started_at %q: %w", started, err)
	}
	if run.FinishedAt, err = time.Parse(timeFormat, finished); err != nil {
		return nil, fmt.Errorf("parsing finished_at %q: %w", finished, err)
	}
	return &run, nil
}

// marshalList encodes nil as an empty JSON array.
func marshalList(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	b, err := json.Marshal(list)
	return string(b), err
}
