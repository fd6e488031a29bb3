// Package store provides the persistent fact store: an append-only
// key/value memory log plus a knowledge-document table with a full-text
// index. Facts are never updated in place; the newest row per key wins
// and older rows remain as history up to a global retention cap.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// PrivatePrefix marks system/session keys excluded from user-facing
// listings and from the memory block injected into prompts.
const PrivatePrefix = "__"

// LastTopicKey is the reserved session key for the most recently
// researched topic.
const LastTopicKey = "__last_topic"

// Fact is one row of the append-only memory log.
type Fact struct {
	ID        int64     `json:"id"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

// StoredFact is a key/value pair written by fact extraction, reported
// back to the caller in extraction order.
type StoredFact struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Store manages fact and knowledge-document persistence.
type Store struct {
	db         *sql.DB
	maxRows    int
	ftsEnabled bool
	logger     *slog.Logger
}

// Open creates a store backed by the SQLite database at dbPath.
// maxRows is the system-wide retention cap for memory rows; values
// below 1 fall back to a safe default.
func Open(dbPath string, maxRows int) (*Store, error) {
	if maxRows <= 0 {
		maxRows = 2000
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db, maxRows: maxRows, logger: slog.Default()}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	s.tryEnableFTS()

	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS memory (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_memory_key ON memory(key);

		CREATE TABLE IF NOT EXISTS kb_docs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			topic TEXT NOT NULL,
			source_url TEXT,
			title TEXT,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_kb_topic ON kb_docs(topic);
	`)
	return err
}

// tryEnableFTS creates the FTS5 virtual table for knowledge documents.
// The sqlite driver ships the fts5 module only when built with the
// sqlite_fts5 tag; when the module is missing, documents are stored
// without a search index instead of failing the open.
func (s *Store) tryEnableFTS() {
	_, err := s.db.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS kb_fts
		USING fts5(topic, title, content, url, doc_id UNINDEXED)
	`)
	if err != nil {
		s.logger.Warn("FTS5 not available for knowledge documents, storing without index", "error", err)
		return
	}
	s.ftsEnabled = true
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert appends a new row for key and trims the log to the retention
// cap, oldest rows first, in the same transaction. Duplicate keys are
// expected; they form the history behind the latest-wins projection.
func (s *Store) Upsert(key, value string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.Exec(
		`INSERT INTO memory(key, value, created_at) VALUES(?, ?, ?)`,
		key, strings.TrimSpace(value), now,
	); err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}

	if _, err := tx.Exec(
		`DELETE FROM memory WHERE id NOT IN (SELECT id FROM memory ORDER BY id DESC LIMIT ?)`,
		s.maxRows,
	); err != nil {
		return fmt.Errorf("trim memory: %w", err)
	}

	return tx.Commit()
}

// LatestPerKey returns the memory projection used for prompt grounding:
// for each non-private key, the value of the row with the highest id,
// rendered as "key: value" lines in ascending key order. Returns an
// empty string when nothing is stored.
func (s *Store) LatestPerKey() (string, error) {
	rows, err := s.db.Query(`
		SELECT m.key, m.value
		FROM memory m
		JOIN (
			SELECT key, MAX(id) AS max_id
			FROM memory
			GROUP BY key
		) t ON m.id = t.max_id
		WHERE substr(m.key, 1, 2) != '__'
		ORDER BY m.key ASC
	`)
	if err != nil {
		return "", fmt.Errorf("query latest per key: %w", err)
	}
	defer rows.Close()

	var lines []string
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return "", fmt.Errorf("scan: %w", err)
		}
		if key == "" {
			continue
		}
		lines = append(lines, key+": "+value)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	return strings.Join(lines, "\n"), nil
}

// ListKeys returns the distinct non-private keys in ascending order,
// for user-facing enumeration.
func (s *Store) ListKeys() ([]string, error) {
	rows, err := s.db.Query(
		`SELECT DISTINCT key FROM memory WHERE substr(key, 1, 2) != '__' ORDER BY key ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if key != "" {
			keys = append(keys, key)
		}
	}
	return keys, rows.Err()
}

// LastTopic returns the most recent value of the reserved last-topic
// key, or an empty string when none is recorded.
func (s *Store) LastTopic() (string, error) {
	var value string
	err := s.db.QueryRow(
		`SELECT value FROM memory WHERE key = ? ORDER BY id DESC LIMIT 1`,
		LastTopicKey,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query last topic: %w", err)
	}
	return strings.TrimSpace(value), nil
}

// SetLastTopic records the session's last researched topic under the
// reserved private key.
func (s *Store) SetLastTopic(topic string) error {
	return s.Upsert(LastTopicKey, topic)
}

// InsertDocument stores a knowledge document and indexes it for
// full-text search in the same transaction.
func (s *Store) InsertDocument(topic, sourceURL, title, content string) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	res, err := tx.Exec(
		`INSERT INTO kb_docs(topic, source_url, title, content, created_at) VALUES(?, ?, ?, ?, ?)`,
		topic, sourceURL, title, content, now,
	)
	if err != nil {
		return 0, fmt.Errorf("insert document: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("document id: %w", err)
	}

	if s.ftsEnabled {
		if _, err := tx.Exec(
			`INSERT INTO kb_fts(topic, title, content, url, doc_id) VALUES(?, ?, ?, ?, ?)`,
			topic, title, content, sourceURL, id,
		); err != nil {
			return 0, fmt.Errorf("index document: %w", err)
		}
	}

	return id, tx.Commit()
}

// ClearDocuments deletes all knowledge documents and their search-index
// rows atomically.
func (s *Store) ClearDocuments() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM kb_docs`); err != nil {
		return fmt.Errorf("clear documents: %w", err)
	}
	if s.ftsEnabled {
		if _, err := tx.Exec(`DELETE FROM kb_fts`); err != nil {
			return fmt.Errorf("clear document index: %w", err)
		}
	}

	return tx.Commit()
}

// FastCounts returns best-effort row counts for the memory and document
// tables. Any storage error yields zero for the affected count; this
// path never fails, so telemetry can call it on every tick.
func (s *Store) FastCounts() (memRows, kbDocs int) {
	_ = s.db.QueryRow(`SELECT COUNT(*) FROM memory`).Scan(&memRows)
	_ = s.db.QueryRow(`SELECT COUNT(*) FROM kb_docs`).Scan(&kbDocs)
	return memRows, kbDocs
}
