// internal/collector/db.go
package collector

import (
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"

	"github.com/signalnine/teforward/internal/protocol"
)

// DB wraps SQLite connection
type DB struct {
	db *sql.DB
}

// NewDB opens or creates the SQLite database
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}

	// Enable WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "enable WAL")
	}

	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		received_at TEXT NOT NULL,
		time REAL,
		host TEXT,
		sourcetype TEXT,
		test_id TEXT NOT NULL,
		test_name TEXT,
		test_type TEXT,
		status TEXT NOT NULL,
		results TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_events_test_id ON events(test_id);
	CREATE INDEX IF NOT EXISTS idx_events_status ON events(status);
	CREATE INDEX IF NOT EXISTS idx_events_time ON events(time);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create schema")
	}

	return &DB{db: db}, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.db.Close()
}

// execer is satisfied by both *sql.DB and *sql.Tx
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// InsertEvent stores a received event
func (d *DB) InsertEvent(e *protocol.StoredEvent) error {
	return insertEvent(d.db, e)
}

// InsertEvents stores a batch in one transaction: all of them or none
func (d *DB) InsertEvents(events []*protocol.StoredEvent) error {
	tx, err := d.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin")
	}

	for _, e := range events {
		if err := insertEvent(tx, e); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "insert event for test %s", e.Event.TestID)
		}
	}

	return errors.Wrap(tx.Commit(), "commit")
}

func insertEvent(x execer, e *protocol.StoredEvent) error {
	results := string(e.Event.Results)
	if results == "" {
		results = string(protocol.EmptyResults)
	}

	_, err := x.Exec(`
		INSERT INTO events (received_at, time, host, sourcetype, test_id, test_name, test_type, status, results)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ReceivedAt.UTC().Format(time.RFC3339Nano), e.Time, e.Host, e.SourceType,
		e.Event.TestID, e.Event.TestName, e.Event.Type, string(e.Event.Status), results)

	return err
}

// QueryByTest returns the most recent events for a test
func (d *DB) QueryByTest(testID string, limit int) ([]protocol.StoredEvent, error) {
	rows, err := d.db.Query(`
		SELECT id, received_at, time, host, sourcetype, test_id, test_name, test_type, status, results
		FROM events
		WHERE test_id = ?
		ORDER BY time DESC, id DESC
		LIMIT ?
	`, testID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

// QueryByStatus returns the most recent events with the given classification
func (d *DB) QueryByStatus(status protocol.Classification, limit int) ([]protocol.StoredEvent, error) {
	rows, err := d.db.Query(`
		SELECT id, received_at, time, host, sourcetype, test_id, test_name, test_type, status, results
		FROM events
		WHERE status = ?
		ORDER BY time DESC, id DESC
		LIMIT ?
	`, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

// StatusCounts returns count of events by classification
func (d *DB) StatusCounts() (map[protocol.Classification]int, error) {
	rows, err := d.db.Query(`
		SELECT status, COUNT(*) FROM events GROUP BY status
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[protocol.Classification]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[protocol.Classification(status)] = count
	}
	return counts, rows.Err()
}

func scanEvents(rows *sql.Rows) ([]protocol.StoredEvent, error) {
	var events []protocol.StoredEvent
	for rows.Next() {
		var e protocol.StoredEvent
		var receivedStr, status string
		var ts sql.NullFloat64
		var host, sourceType, testName, testType, results sql.NullString

		err := rows.Scan(&e.ID, &receivedStr, &ts, &host, &sourceType,
			&e.Event.TestID, &testName, &testType, &status, &results)
		if err != nil {
			return nil, err
		}

		e.ReceivedAt, _ = time.Parse(time.RFC3339Nano, receivedStr)
		e.Time = ts.Float64
		e.Host = host.String
		e.SourceType = sourceType.String
		e.Event.TestName = testName.String
		e.Event.Type = testType.String
		e.Event.Status = protocol.Classification(status)
		if results.Valid {
			e.Event.Results = []byte(results.String)
		}

		events = append(events, e)
	}
	return events, rows.Err()
}
