package events

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"oilsim/internal/calendar"
	"oilsim/internal/errors"
)

// SQLiteStore is the persistent event-log backing used for large
// studies. Unlike the in-memory store, its appends can fail; the kernel
// escalates those failures and aborts the simulation.
type SQLiteStore struct {
	db     *sql.DB
	run    string
	nextID uint64
	lastTS calendar.Timestamp
	count  int
}

// NewSQLiteStore opens (or creates) an event database and scopes all
// appends to the given run identifier.
func NewSQLiteStore(dbPath, run string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db, run: run, nextID: 1}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if err := store.loadCursor(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Append-only event log, one row per event, scoped by run
	CREATE TABLE IF NOT EXISTS events (
		run TEXT NOT NULL,
		id INTEGER NOT NULL,
		day INTEGER NOT NULL,
		minute INTEGER NOT NULL,
		leg_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		reasons TEXT NOT NULL,
		payload TEXT NOT NULL,
		PRIMARY KEY (run, id)
	);
	CREATE INDEX IF NOT EXISTS idx_events_leg ON events(run, leg_id);
	CREATE INDEX IF NOT EXISTS idx_events_day ON events(run, day);

	-- Per-run study results for aggregation across seeds
	CREATE TABLE IF NOT EXISTS run_results (
		run TEXT NOT NULL,
		seed INTEGER NOT NULL,
		fingerprint TEXT NOT NULL,
		net_pnl REAL NOT NULL,
		opens INTEGER NOT NULL,
		closes INTEGER NOT NULL,
		rolls INTEGER NOT NULL,
		wins INTEGER NOT NULL,
		max_drawdown REAL NOT NULL,
		failed INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (run, seed, fingerprint)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// loadCursor resumes the ID sequence and ordering guard after the last
// stored event.
func (s *SQLiteStore) loadCursor() error {
	row := s.db.QueryRow(`SELECT COALESCE(MAX(id), 0), COUNT(*) FROM events WHERE run = ?`, s.run)
	var maxID uint64
	if err := row.Scan(&maxID, &s.count); err != nil {
		return fmt.Errorf("failed to load event cursor: %w", err)
	}
	s.nextID = maxID + 1

	if s.count > 0 {
		var day, minute uint32
		row = s.db.QueryRow(`SELECT day, minute FROM events WHERE run = ? AND id = ?`, s.run, maxID)
		if err := row.Scan(&day, &minute); err != nil {
			return fmt.Errorf("failed to load last event timestamp: %w", err)
		}
		s.lastTS = calendar.NewTimestamp(calendar.Day(day), calendar.TimeOfDay(minute))
	}
	return nil
}

// Append implements Store.
func (s *SQLiteStore) Append(e Event) (uint64, error) {
	if s.db == nil {
		return 0, errors.ErrStoreClosed
	}
	if s.count > 0 && e.Timestamp.Before(s.lastTS) {
		return 0, errors.NewLifecycleError(e.LegID, s.nextID,
			fmt.Sprintf("timestamp %s precedes last event %s", e.Timestamp, s.lastTS))
	}
	e.ID = s.nextID

	payload, err := json.Marshal(e)
	if err != nil {
		return 0, fmt.Errorf("failed to encode event %d: %w", e.ID, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO events (run, id, day, minute, leg_id, kind, reasons, payload) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.run, e.ID, e.Timestamp.Day, e.Timestamp.Minute, e.LegID, e.Kind.String(), e.ReasonsString(), string(payload),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to append event %d: %w", e.ID, err)
	}

	s.nextID++
	s.count++
	s.lastTS = e.Timestamp
	return e.ID, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(id uint64) (Event, error) {
	if s.db == nil {
		return Event{}, errors.ErrStoreClosed
	}
	row := s.db.QueryRow(`SELECT payload FROM events WHERE run = ? AND id = ?`, s.run, id)
	var payload string
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return Event{}, fmt.Errorf("event %d: %w", id, errors.ErrEventNotFound)
		}
		return Event{}, fmt.Errorf("failed to read event %d: %w", id, err)
	}
	var e Event
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return Event{}, fmt.Errorf("failed to decode event %d: %w", id, err)
	}
	return e, nil
}

// Len implements Store.
func (s *SQLiteStore) Len() int {
	return s.count
}

// All implements Store.
func (s *SQLiteStore) All() []Event {
	out, _ := s.scan(`SELECT payload FROM events WHERE run = ? ORDER BY id`)
	return out
}

// Filter implements Store.
func (s *SQLiteStore) Filter(pred func(Event) bool) []Event {
	all := s.All()
	var out []Event
	for _, e := range all {
		if pred(e) {
			out = append(out, e)
		}
	}
	return out
}

func (s *SQLiteStore) scan(query string) ([]Event, error) {
	if s.db == nil {
		return nil, errors.ErrStoreClosed
	}
	rows, err := s.db.Query(query, s.run)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var e Event
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// RunRecord is the persisted per-run study result row.
type RunRecord struct {
	Seed        uint64
	Fingerprint string
	NetPnL      float64
	Opens       int
	Closes      int
	Rolls       int
	Wins        int
	MaxDrawdown float64
	Failed      bool
	Error       string
}

// SaveRunRecord upserts a study result row for aggregation.
func (s *SQLiteStore) SaveRunRecord(rec RunRecord) error {
	if s.db == nil {
		return errors.ErrStoreClosed
	}
	failed := 0
	if rec.Failed {
		failed = 1
	}
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO run_results
		 (run, seed, fingerprint, net_pnl, opens, closes, rolls, wins, max_drawdown, failed, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.run, rec.Seed, rec.Fingerprint, rec.NetPnL, rec.Opens, rec.Closes, rec.Rolls, rec.Wins,
		rec.MaxDrawdown, failed, rec.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to save run record: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
