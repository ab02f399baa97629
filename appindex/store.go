// Package appindex maintains a queryable secondary index over APP_EVENT
// records (spec §3/§4.9: "indexed by (appId, action, ref, target), used by
// layered applications"). The ledger itself treats APP_EVENT as opaque; this
// package is the only place that cares about its fields, mirroring
// services/swapd/storage's raw-SQL-over-sqlite shape rather than inventing a
// bespoke bucket layout in the chain's own BoltDB store.
package appindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/glebarez/sqlite"

	"srishti/block"
	"srishti/event"
)

const schema = `
CREATE TABLE IF NOT EXISTS app_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    block_index INTEGER NOT NULL,
    app_id TEXT NOT NULL,
    action TEXT NOT NULL,
    ref TEXT NOT NULL,
    target TEXT NOT NULL,
    sender TEXT NOT NULL,
    recipient TEXT NOT NULL,
    data TEXT NOT NULL,
    occurred_at INTEGER NOT NULL,
    recorded_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_app_events_app_action ON app_events(app_id, action);
CREATE INDEX IF NOT EXISTS idx_app_events_ref ON app_events(ref);
CREATE INDEX IF NOT EXISTS idx_app_events_target ON app_events(target);

CREATE TABLE IF NOT EXISTS index_state (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    last_indexed_block INTEGER NOT NULL
);
`

// Store is the sqlite-backed APP_EVENT secondary index for one node.
type Store struct {
	db *sql.DB
}

// Record is one indexed APP_EVENT, denormalised for querying.
type Record struct {
	BlockIndex uint64
	AppID      string
	Action     string
	Ref        string
	Target     string
	Sender     string
	Recipient  string
	Data       json.RawMessage
	OccurredAt int64
	RecordedAt time.Time
}

// Open initialises the backing sqlite database at dsn, creating the schema
// if absent.
func Open(dsn string) (*Store, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, fmt.Errorf("appindex: dsn must be configured")
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("appindex: open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("appindex: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// LastIndexedBlock returns the highest block index already indexed, or
// (0, false) if none has been recorded yet.
func (s *Store) LastIndexedBlock(ctx context.Context) (uint64, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT last_indexed_block FROM index_state WHERE id = 1`)
	var last int64
	if err := row.Scan(&last); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("appindex: query index state: %w", err)
	}
	return uint64(last), true, nil
}

// IndexBlock extracts every APP_EVENT from b and inserts it, then advances
// the checkpoint to b.Index. Non-APP_EVENT events are ignored. Safe to call
// more than once for the same block only if the caller first checks
// LastIndexedBlock, since this does not deduplicate on its own.
func (s *Store) IndexBlock(ctx context.Context, b block.Block) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("appindex: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, e := range b.Body.Events {
		if e.Type != event.AppEvent {
			continue
		}
		var payload event.AppEventPayload
		if err := json.Unmarshal(e.Payload, &payload); err != nil {
			return fmt.Errorf("appindex: decode app event payload: %w", err)
		}
		data, err := json.Marshal(payload.Data)
		if err != nil {
			return fmt.Errorf("appindex: encode app event data: %w", err)
		}
		recipient := ""
		if e.Recipient != nil {
			recipient = *e.Recipient
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO app_events(block_index, app_id, action, ref, target, sender, recipient, data, occurred_at, recorded_at)
			VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, b.Index, payload.AppID, payload.Action, payload.Ref, payload.Target, e.Sender, recipient, string(data), e.Timestamp, time.Now().UTC()); err != nil {
			return fmt.Errorf("appindex: insert app event: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO index_state(id, last_indexed_block) VALUES(1, ?)
		ON CONFLICT(id) DO UPDATE SET last_indexed_block = excluded.last_indexed_block
	`, b.Index); err != nil {
		return fmt.Errorf("appindex: advance checkpoint: %w", err)
	}
	return tx.Commit()
}

// QueryByApp returns every indexed event for appID, most recent first,
// optionally filtered by action (empty string matches any action).
func (s *Store) QueryByApp(ctx context.Context, appID, action string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if action == "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT block_index, app_id, action, ref, target, sender, recipient, data, occurred_at, recorded_at
			FROM app_events WHERE app_id = ? ORDER BY id DESC LIMIT ?
		`, appID, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT block_index, app_id, action, ref, target, sender, recipient, data, occurred_at, recorded_at
			FROM app_events WHERE app_id = ? AND action = ? ORDER BY id DESC LIMIT ?
		`, appID, action, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("appindex: query by app: %w", err)
	}
	return scanRecords(rows)
}

// QueryByRef returns every indexed event whose ref matches, most recent
// first.
func (s *Store) QueryByRef(ctx context.Context, ref string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT block_index, app_id, action, ref, target, sender, recipient, data, occurred_at, recorded_at
		FROM app_events WHERE ref = ? ORDER BY id DESC LIMIT ?
	`, ref, limit)
	if err != nil {
		return nil, fmt.Errorf("appindex: query by ref: %w", err)
	}
	return scanRecords(rows)
}

// QueryByTarget returns every indexed event whose target matches, most
// recent first.
func (s *Store) QueryByTarget(ctx context.Context, target string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT block_index, app_id, action, ref, target, sender, recipient, data, occurred_at, recorded_at
		FROM app_events WHERE target = ? ORDER BY id DESC LIMIT ?
	`, target, limit)
	if err != nil {
		return nil, fmt.Errorf("appindex: query by target: %w", err)
	}
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()
	records := make([]Record, 0)
	for rows.Next() {
		var r Record
		var data string
		if err := rows.Scan(&r.BlockIndex, &r.AppID, &r.Action, &r.Ref, &r.Target, &r.Sender, &r.Recipient, &data, &r.OccurredAt, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("appindex: scan app event: %w", err)
		}
		r.Data = json.RawMessage(data)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appindex: iterate app events: %w", err)
	}
	return records, nil
}
