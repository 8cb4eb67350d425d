// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sqlite provides a durable, single-process state store backend
// for workcell deployments that need to survive a daemon restart.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/madsci/workcell/internal/store"
	"github.com/madsci/workcell/pkg/errors"
	"github.com/madsci/workcell/pkg/madsci"
)

var _ store.Store = (*Backend)(nil)

// Backend is a SQLite-backed store.Store implementation.
type Backend struct {
	db *sql.DB
}

// Config contains SQLite connection configuration.
type Config struct {
	// Path is the database file path ("" falls back to an in-memory
	// database, useful for tests that want the SQL code path without a
	// file on disk).
	Path string

	// WAL enables Write-Ahead Logging mode for concurrent reads.
	WAL bool
}

// New opens (creating if necessary) the SQLite database at cfg.Path and
// runs migrations.
func New(cfg Config) (*Backend, error) {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	b := &Backend{db: db}

	if err := b.configurePragmas(ctx, cfg.WAL); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure pragmas: %w", err)
	}
	if err := b.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return b, nil
}

func (b *Backend) configurePragmas(ctx context.Context, enableWAL bool) error {
	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	if enableWAL {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, p := range pragmas {
		if _, err := b.db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("exec %s: %w", p, err)
		}
	}
	return nil
}

func (b *Backend) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS workcell_definition (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			data TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS workcell_status (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			data TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS workflow_definitions (
			id TEXT PRIMARY KEY,
			data TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS nodes (
			name TEXT PRIMARY KEY,
			data TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS locations (
			id TEXT PRIMARY KEY,
			data TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS workflow_queue (
			position INTEGER PRIMARY KEY AUTOINCREMENT,
			workflow_id TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS active_workflows (
			id TEXT PRIMARY KEY,
			data TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS archived_workflows (
			id TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			archived_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_archived_workflows_archived_at
			ON archived_workflows(archived_at DESC)`,
		`CREATE TABLE IF NOT EXISTS change_counter (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			value INTEGER NOT NULL
		)`,
		`INSERT OR IGNORE INTO change_counter (id, value) VALUES (1, 0)`,
		`CREATE TABLE IF NOT EXISTS state_lock (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			owner TEXT,
			expires_at TEXT
		)`,
		`INSERT OR IGNORE INTO state_lock (id, owner, expires_at) VALUES (1, NULL, NULL)`,
	}
	for _, m := range migrations {
		if _, err := b.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (b *Backend) Close() error {
	return b.db.Close()
}

// --- DefinitionStore ---

func (b *Backend) GetWorkcellDefinition(ctx context.Context) (*madsci.WorkcellDefinition, error) {
	var data string
	err := b.db.QueryRowContext(ctx, `SELECT data FROM workcell_definition WHERE id = 1`).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("workcell definition not set")
	}
	if err != nil {
		return nil, fmt.Errorf("get workcell definition: %w", err)
	}
	var def madsci.WorkcellDefinition
	if err := json.Unmarshal([]byte(data), &def); err != nil {
		return nil, fmt.Errorf("unmarshal workcell definition: %w", err)
	}
	return &def, nil
}

func (b *Backend) SetWorkcellDefinition(ctx context.Context, def *madsci.WorkcellDefinition) error {
	data, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("marshal workcell definition: %w", err)
	}
	_, err = b.db.ExecContext(ctx, `
		INSERT INTO workcell_definition (id, data) VALUES (1, ?)
		ON CONFLICT (id) DO UPDATE SET data = excluded.data
	`, string(data))
	if err != nil {
		return fmt.Errorf("set workcell definition: %w", err)
	}
	return nil
}

func (b *Backend) SaveWorkflowDefinition(ctx context.Context, id string, def *madsci.WorkflowDefinition) error {
	data, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("marshal workflow definition: %w", err)
	}
	_, err = b.db.ExecContext(ctx, `
		INSERT INTO workflow_definitions (id, data) VALUES (?, ?)
		ON CONFLICT (id) DO UPDATE SET data = excluded.data
	`, id, string(data))
	if err != nil {
		return fmt.Errorf("save workflow definition: %w", err)
	}
	return nil
}

func (b *Backend) GetWorkflowDefinition(ctx context.Context, id string) (*madsci.WorkflowDefinition, error) {
	var data string
	err := b.db.QueryRowContext(ctx, `SELECT data FROM workflow_definitions WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("workflow definition not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get workflow definition: %w", err)
	}
	var def madsci.WorkflowDefinition
	if err := json.Unmarshal([]byte(data), &def); err != nil {
		return nil, fmt.Errorf("unmarshal workflow definition: %w", err)
	}
	return &def, nil
}

// --- StatusStore ---

func (b *Backend) GetWorkcellStatus(ctx context.Context) (*madsci.WorkcellStatus, error) {
	var data string
	err := b.db.QueryRowContext(ctx, `SELECT data FROM workcell_status WHERE id = 1`).Scan(&data)
	if err == sql.ErrNoRows {
		return &madsci.WorkcellStatus{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get workcell status: %w", err)
	}
	var status madsci.WorkcellStatus
	if err := json.Unmarshal([]byte(data), &status); err != nil {
		return nil, fmt.Errorf("unmarshal workcell status: %w", err)
	}
	return &status, nil
}

func (b *Backend) SetWorkcellStatus(ctx context.Context, status *madsci.WorkcellStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal workcell status: %w", err)
	}
	_, err = b.db.ExecContext(ctx, `
		INSERT INTO workcell_status (id, data) VALUES (1, ?)
		ON CONFLICT (id) DO UPDATE SET data = excluded.data
	`, string(data))
	if err != nil {
		return fmt.Errorf("set workcell status: %w", err)
	}
	return nil
}

func (b *Backend) UpdateWorkcellStatus(ctx context.Context, fn func(*madsci.WorkcellStatus)) error {
	status, err := b.GetWorkcellStatus(ctx)
	if err != nil {
		return err
	}
	fn(status)
	return b.SetWorkcellStatus(ctx, status)
}

// --- NodeStore ---

func (b *Backend) GetNode(ctx context.Context, name string) (*madsci.Node, error) {
	var data string
	err := b.db.QueryRowContext(ctx, `SELECT data FROM nodes WHERE name = ?`, name).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("node not found: %s", name)
	}
	if err != nil {
		return nil, fmt.Errorf("get node: %w", err)
	}
	var node madsci.Node
	if err := json.Unmarshal([]byte(data), &node); err != nil {
		return nil, fmt.Errorf("unmarshal node: %w", err)
	}
	return &node, nil
}

func (b *Backend) ListNodes(ctx context.Context) (map[string]*madsci.Node, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT name, data FROM nodes`)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()

	result := make(map[string]*madsci.Node)
	for rows.Next() {
		var name, data string
		if err := rows.Scan(&name, &data); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		var node madsci.Node
		if err := json.Unmarshal([]byte(data), &node); err != nil {
			return nil, fmt.Errorf("unmarshal node %s: %w", name, err)
		}
		result[name] = &node
	}
	return result, rows.Err()
}

func (b *Backend) SetNode(ctx context.Context, name string, node *madsci.Node) error {
	data, err := json.Marshal(node)
	if err != nil {
		return fmt.Errorf("marshal node: %w", err)
	}
	_, err = b.db.ExecContext(ctx, `
		INSERT INTO nodes (name, data) VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET data = excluded.data
	`, name, string(data))
	if err != nil {
		return fmt.Errorf("set node: %w", err)
	}
	return nil
}

func (b *Backend) DeleteNode(ctx context.Context, name string) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM nodes WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete node: %w", err)
	}
	return nil
}

func (b *Backend) UpdateNode(ctx context.Context, name string, fn func(*madsci.Node) error) error {
	node, err := b.GetNode(ctx, name)
	if err != nil {
		return err
	}
	if err := fn(node); err != nil {
		return err
	}
	return b.SetNode(ctx, name, node)
}

// --- LocationStore ---

func (b *Backend) GetLocation(ctx context.Context, id string) (*madsci.Location, error) {
	var data string
	err := b.db.QueryRowContext(ctx, `SELECT data FROM locations WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("location not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get location: %w", err)
	}
	var loc madsci.Location
	if err := json.Unmarshal([]byte(data), &loc); err != nil {
		return nil, fmt.Errorf("unmarshal location: %w", err)
	}
	return &loc, nil
}

func (b *Backend) ListLocations(ctx context.Context) (map[string]*madsci.Location, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT id, data FROM locations`)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	defer rows.Close()

	result := make(map[string]*madsci.Location)
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		var loc madsci.Location
		if err := json.Unmarshal([]byte(data), &loc); err != nil {
			return nil, fmt.Errorf("unmarshal location %s: %w", id, err)
		}
		result[id] = &loc
	}
	return result, rows.Err()
}

func (b *Backend) SetLocation(ctx context.Context, loc *madsci.Location) error {
	data, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("marshal location: %w", err)
	}
	_, err = b.db.ExecContext(ctx, `
		INSERT INTO locations (id, data) VALUES (?, ?)
		ON CONFLICT (id) DO UPDATE SET data = excluded.data
	`, loc.LocationID, string(data))
	if err != nil {
		return fmt.Errorf("set location: %w", err)
	}
	return nil
}

func (b *Backend) DeleteLocation(ctx context.Context, id string) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM locations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete location: %w", err)
	}
	return nil
}

func (b *Backend) UpdateLocation(ctx context.Context, id string, fn func(*madsci.Location) error) error {
	loc, err := b.GetLocation(ctx, id)
	if err != nil {
		return err
	}
	if err := fn(loc); err != nil {
		return err
	}
	return b.SetLocation(ctx, loc)
}

// --- QueueStore ---

func (b *Backend) EnqueueWorkflow(ctx context.Context, workflowID string) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO workflow_queue (workflow_id) VALUES (?)
		ON CONFLICT (workflow_id) DO NOTHING
	`, workflowID)
	if err != nil {
		return fmt.Errorf("enqueue workflow: %w", err)
	}
	return nil
}

func (b *Backend) ListQueue(ctx context.Context) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT workflow_id FROM workflow_queue ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (b *Backend) RemoveFromQueue(ctx context.Context, workflowID string) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM workflow_queue WHERE workflow_id = ?`, workflowID)
	if err != nil {
		return fmt.Errorf("remove from queue: %w", err)
	}
	return nil
}

// --- WorkflowStore ---

func (b *Backend) GetActiveWorkflow(ctx context.Context, id string) (*madsci.Workflow, error) {
	var data string
	err := b.db.QueryRowContext(ctx, `SELECT data FROM active_workflows WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("active workflow not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get active workflow: %w", err)
	}
	var wf madsci.Workflow
	if err := json.Unmarshal([]byte(data), &wf); err != nil {
		return nil, fmt.Errorf("unmarshal active workflow: %w", err)
	}
	return &wf, nil
}

func (b *Backend) SetActiveWorkflow(ctx context.Context, wf *madsci.Workflow) error {
	data, err := json.Marshal(wf)
	if err != nil {
		return fmt.Errorf("marshal workflow: %w", err)
	}
	_, err = b.db.ExecContext(ctx, `
		INSERT INTO active_workflows (id, data) VALUES (?, ?)
		ON CONFLICT (id) DO UPDATE SET data = excluded.data
	`, wf.WorkflowID, string(data))
	if err != nil {
		return fmt.Errorf("set active workflow: %w", err)
	}
	return nil
}

func (b *Backend) ListActiveWorkflows(ctx context.Context) (map[string]*madsci.Workflow, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT id, data FROM active_workflows`)
	if err != nil {
		return nil, fmt.Errorf("list active workflows: %w", err)
	}
	defer rows.Close()

	result := make(map[string]*madsci.Workflow)
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan active workflow: %w", err)
		}
		var wf madsci.Workflow
		if err := json.Unmarshal([]byte(data), &wf); err != nil {
			return nil, fmt.Errorf("unmarshal active workflow %s: %w", id, err)
		}
		result[id] = &wf
	}
	return result, rows.Err()
}

func (b *Backend) UpdateActiveWorkflow(ctx context.Context, id string, fn func(*madsci.Workflow) error) error {
	wf, err := b.GetActiveWorkflow(ctx, id)
	if err != nil {
		return err
	}
	if err := fn(wf); err != nil {
		return err
	}
	return b.SetActiveWorkflow(ctx, wf)
}

func (b *Backend) ArchiveWorkflow(ctx context.Context, wf *madsci.Workflow) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive transaction: %w", err)
	}
	defer tx.Rollback()

	data, err := json.Marshal(wf)
	if err != nil {
		return fmt.Errorf("marshal workflow: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM active_workflows WHERE id = ?`, wf.WorkflowID); err != nil {
		return fmt.Errorf("remove active workflow: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM workflow_queue WHERE workflow_id = ?`, wf.WorkflowID); err != nil {
		return fmt.Errorf("remove from queue: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO archived_workflows (id, data, archived_at) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET data = excluded.data, archived_at = excluded.archived_at
	`, wf.WorkflowID, string(data), time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("insert archived workflow: %w", err)
	}

	return tx.Commit()
}

func (b *Backend) UnarchiveWorkflow(ctx context.Context, wf *madsci.Workflow) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin unarchive transaction: %w", err)
	}
	defer tx.Rollback()

	data, err := json.Marshal(wf)
	if err != nil {
		return fmt.Errorf("marshal workflow: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM archived_workflows WHERE id = ?`, wf.WorkflowID); err != nil {
		return fmt.Errorf("remove archived workflow: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO active_workflows (id, data) VALUES (?, ?)
		ON CONFLICT (id) DO UPDATE SET data = excluded.data
	`, wf.WorkflowID, string(data)); err != nil {
		return fmt.Errorf("insert active workflow: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO workflow_queue (workflow_id) VALUES (?)
		ON CONFLICT (workflow_id) DO NOTHING
	`, wf.WorkflowID); err != nil {
		return fmt.Errorf("re-enqueue workflow: %w", err)
	}

	return tx.Commit()
}

func (b *Backend) GetArchivedWorkflow(ctx context.Context, id string) (*madsci.Workflow, error) {
	var data string
	err := b.db.QueryRowContext(ctx, `SELECT data FROM archived_workflows WHERE id = ?`, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("archived workflow not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get archived workflow: %w", err)
	}
	var wf madsci.Workflow
	if err := json.Unmarshal([]byte(data), &wf); err != nil {
		return nil, fmt.Errorf("unmarshal archived workflow: %w", err)
	}
	return &wf, nil
}

func (b *Backend) ListArchivedWorkflows(ctx context.Context, n int) (map[string]*madsci.Workflow, error) {
	query := `SELECT id, data FROM archived_workflows ORDER BY archived_at DESC`
	args := []any{}
	if n > 0 {
		query += ` LIMIT ?`
		args = append(args, n)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list archived workflows: %w", err)
	}
	defer rows.Close()

	result := make(map[string]*madsci.Workflow)
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan archived workflow: %w", err)
		}
		var wf madsci.Workflow
		if err := json.Unmarshal([]byte(data), &wf); err != nil {
			return nil, fmt.Errorf("unmarshal archived workflow %s: %w", id, err)
		}
		result[id] = &wf
	}
	return result, rows.Err()
}

// --- ChangeCounterStore ---

func (b *Backend) IncrementChangeCounter(ctx context.Context) (int64, error) {
	_, err := b.db.ExecContext(ctx, `UPDATE change_counter SET value = value + 1 WHERE id = 1`)
	if err != nil {
		return 0, fmt.Errorf("increment change counter: %w", err)
	}
	return b.ChangeCounter(ctx)
}

func (b *Backend) ChangeCounter(ctx context.Context) (int64, error) {
	var value int64
	err := b.db.QueryRowContext(ctx, `SELECT value FROM change_counter WHERE id = 1`).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("get change counter: %w", err)
	}
	return value, nil
}

// --- LockProvider ---

// lockPollInterval is how often AcquireStateLock re-attempts the claim
// while contended. Short enough to keep scheduler latency low, long
// enough not to hammer the single SQLite writer connection.
const lockPollInterval = 25 * time.Millisecond

// AcquireStateLock claims the single state_lock row, the SQL analogue of
// the teacher's Postgres advisory lock: instead of a session-scoped
// pg_advisory_lock, the lease is a row with an expires_at column that a
// stale holder's TTL makes reclaimable without needing that process to
// still be alive.
func (b *Backend) AcquireStateLock(ctx context.Context, owner string, ttl time.Duration) (store.Lock, error) {
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		acquired, err := b.tryClaimLock(ctx, owner, ttl)
		if err != nil {
			return nil, err
		}
		if acquired {
			return &sqliteLock{backend: b, owner: owner}, nil
		}

		select {
		case <-ctx.Done():
			return nil, &errors.LockTimeoutError{Owner: owner}
		case <-ticker.C:
		}
	}
}

func (b *Backend) tryClaimLock(ctx context.Context, owner string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(ttl).Format(time.RFC3339Nano)

	result, err := b.db.ExecContext(ctx, `
		UPDATE state_lock SET owner = ?, expires_at = ?
		WHERE id = 1 AND (owner IS NULL OR expires_at < ?)
	`, owner, expiresAt, now.Format(time.RFC3339Nano))
	if err != nil {
		return false, fmt.Errorf("claim state lock: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim state lock: %w", err)
	}
	return rows > 0, nil
}

type sqliteLock struct {
	backend *Backend
	owner   string
}

func (l *sqliteLock) Release(ctx context.Context) error {
	_, err := l.backend.db.ExecContext(ctx, `
		UPDATE state_lock SET owner = NULL, expires_at = NULL
		WHERE id = 1 AND owner = ?
	`, l.owner)
	if err != nil {
		return fmt.Errorf("release state lock: %w", err)
	}
	return nil
}
