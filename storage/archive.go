// Package storage archives production sessions in PostgreSQL. The session
// store is the working memory of a run; the archive is where finished and
// stopped productions land so they survive process restarts and can be
// listed, reloaded, and resumed.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/lordpython/aisoulstudio/production"
)

// Session lifecycle statuses as archived.
const (
	StatusInProgress = "in_progress"
	StatusComplete   = "complete"
	StatusError      = "error"
)

// Archive persists production sessions in a studio.production_sessions
// table, one row per session, with the full state as JSONB.
type Archive struct {
	db *sql.DB
}

// NewArchive connects to PostgreSQL, verifies the connection, and ensures
// the schema exists.
func NewArchive(postgresURL string) (*Archive, error) {
	db, err := sql.Open("postgres", postgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	a := &Archive{db: db}
	if err := a.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return a, nil
}

func (a *Archive) initSchema() error {
	schema := `
	CREATE SCHEMA IF NOT EXISTS studio;

	CREATE TABLE IF NOT EXISTS studio.production_sessions (
		session_id VARCHAR(255) PRIMARY KEY,
		status VARCHAR(50) NOT NULL,
		topic TEXT,
		scene_count INT NOT NULL DEFAULT 0,
		is_complete BOOLEAN NOT NULL DEFAULT FALSE,
		state JSONB NOT NULL,
		report JSONB,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := a.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_sessions_status ON studio.production_sessions(status)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON studio.production_sessions(updated_at)`,
	}
	for _, stmt := range indexes {
		if _, err := a.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// sessionRow is the column set derived from a session state for one upsert.
type sessionRow struct {
	sessionID  string
	status     string
	topic      string
	sceneCount int
	isComplete bool
	stateJSON  []byte
	reportJSON []byte
}

// rowFor flattens a session state into its archive columns.
func rowFor(state *production.State) (sessionRow, error) {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return sessionRow{}, fmt.Errorf("failed to marshal session state: %w", err)
	}

	row := sessionRow{
		sessionID:  state.SessionID,
		status:     sessionStatus(state),
		sceneCount: state.SceneCount(),
		isComplete: state.IsComplete,
		stateJSON:  stateJSON,
	}
	if state.ContentPlan != nil {
		row.topic = state.ContentPlan.Topic
	}
	if state.PartialSuccessReport != nil {
		row.reportJSON, err = json.Marshal(state.PartialSuccessReport)
		if err != nil {
			return sessionRow{}, fmt.Errorf("failed to marshal report: %w", err)
		}
	}
	return row, nil
}

// sessionStatus derives the archived status: complete wins, recorded errors
// mark an unfinished session as errored, anything else is in progress.
func sessionStatus(state *production.State) string {
	switch {
	case state.IsComplete:
		return StatusComplete
	case len(state.Errors) > 0 && state.ExportResult == nil:
		return StatusError
	default:
		return StatusInProgress
	}
}

// Save upserts a session. Re-saving the same session replaces its state
// and bumps updated_at.
func (a *Archive) Save(ctx context.Context, state *production.State) error {
	if state == nil || state.SessionID == "" {
		return errors.New("cannot archive a session without an id")
	}
	row, err := rowFor(state)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO studio.production_sessions
			(session_id, status, topic, scene_count, is_complete, state, report, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, CURRENT_TIMESTAMP)
		ON CONFLICT (session_id) DO UPDATE SET
			status = EXCLUDED.status,
			topic = EXCLUDED.topic,
			scene_count = EXCLUDED.scene_count,
			is_complete = EXCLUDED.is_complete,
			state = EXCLUDED.state,
			report = EXCLUDED.report,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err = a.db.ExecContext(ctx, query,
		row.sessionID,
		row.status,
		row.topic,
		row.sceneCount,
		row.isComplete,
		row.stateJSON,
		nullableJSON(row.reportJSON),
	)
	return err
}

// Load restores a session state by id.
func (a *Archive) Load(ctx context.Context, sessionID string) (*production.State, error) {
	var stateJSON []byte
	err := a.db.QueryRowContext(ctx,
		`SELECT state FROM studio.production_sessions WHERE session_id = $1`,
		sessionID,
	).Scan(&stateJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	var state production.State
	if err := json.Unmarshal(stateJSON, &state); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", sessionID, err)
	}
	return &state, nil
}

// Record is one row of the session listing.
type Record struct {
	SessionID  string    `json:"sessionId"`
	Status     string    `json:"status"`
	Topic      string    `json:"topic,omitempty"`
	SceneCount int       `json:"sceneCount"`
	IsComplete bool      `json:"isComplete"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Recent lists sessions newest first.
func (a *Archive) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT session_id, status, topic, scene_count, is_complete, updated_at
		FROM studio.production_sessions
		ORDER BY updated_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var topic sql.NullString
		if err := rows.Scan(&r.SessionID, &r.Status, &topic, &r.SceneCount, &r.IsComplete, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		r.Topic = topic.String
		records = append(records, r)
	}
	return records, rows.Err()
}

// Delete removes a session from the archive.
func (a *Archive) Delete(ctx context.Context, sessionID string) error {
	res, err := a.db.ExecContext(ctx,
		`DELETE FROM studio.production_sessions WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close releases the connection pool.
func (a *Archive) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// nullableJSON maps an absent JSON document to SQL NULL.
func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
