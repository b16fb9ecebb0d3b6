// Package archive persists every log entry to a DuckDB database so traffic
// survives the in-memory buffer window and process restarts. The store
// subscribes to the event bus and records entries as they are appended.
package archive

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/marcboeker/go-duckdb"
	"github.com/serial-hub/backend/internal/event"
	"github.com/serial-hub/backend/internal/models"
)

// Store is a DuckDB-backed archive of log entries across all ports.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	dbPath string
	insert *sql.Stmt
	count  int
}

// Open creates (or reopens) the archive database under dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}
	dbPath := filepath.Join(dir, "traffic.duckdb")

	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		pragmas := []string{
			"PRAGMA memory_limit='256MB'",
			"PRAGMA threads=2",
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("creating DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS entries (
			ts        BIGINT NOT NULL,
			port      VARCHAR NOT NULL,
			direction VARCHAR NOT NULL,
			payload   VARCHAR NOT NULL,
			annotated VARCHAR NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating entries table: %w", err)
	}

	stmt, err := db.Prepare(`INSERT INTO entries (ts, port, direction, payload, annotated) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("preparing insert: %w", err)
	}

	fmt.Printf("[Archive] Database ready at %s\n", dbPath)
	return &Store{db: db, dbPath: dbPath, insert: stmt}, nil
}

// HandleEvent records data_received entries. Other event types are ignored.
// Insert failures are logged; archival is best effort and never destabilizes
// the data path.
func (s *Store) HandleEvent(ev event.Event) {
	if ev.Type != event.TypeDataReceived || ev.Entry == nil {
		return
	}
	if err := s.Insert(ev.Port, *ev.Entry); err != nil {
		fmt.Printf("[Archive] Insert failed for %s: %v\n", ev.Port, err)
	}
}

// Insert writes one entry to the archive.
func (s *Store) Insert(port string, e models.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.insert.Exec(e.Timestamp.UnixMilli(), port, string(e.Direction), e.Payload, e.Annotated)
	if err != nil {
		return err
	}
	s.count++
	return nil
}

// Recent returns up to limit archived entries for a port, newest first.
func (s *Store) Recent(port string, limit int) ([]models.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT ts, direction, payload, annotated
		FROM entries
		WHERE port = ?
		ORDER BY ts DESC
		LIMIT ?
	`, port, limit)
	if err != nil {
		return nil, fmt.Errorf("querying archive: %w", err)
	}
	defer rows.Close()

	entries := make([]models.Entry, 0, limit)
	for rows.Next() {
		var ts int64
		var direction, payload, annotated string
		if err := rows.Scan(&ts, &direction, &payload, &annotated); err != nil {
			return nil, fmt.Errorf("scanning archive row: %w", err)
		}
		entries = append(entries, models.Entry{
			Direction: models.Direction(direction),
			Payload:   payload,
			Annotated: annotated,
			Timestamp: time.UnixMilli(ts),
		})
	}
	return entries, rows.Err()
}

// Len returns the number of entries inserted by this process.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Close releases the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.insert != nil {
		s.insert.Close()
	}
	return s.db.Close()
}
