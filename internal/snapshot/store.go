package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// ErrNotFound is returned when a session ID has no stored snapshot.
var ErrNotFound = errors.New("snapshot: session not found")

// Store persists session documents in a local SQLite file.
// All methods are safe for concurrent use; writes serialise through a single
// connection so concurrent savers never hit SQLITE_BUSY.
type Store struct {
	db        *sql.DB
	closeOnce sync.Once
	closeErr  error
}

// Open creates a Store backed by the SQLite file at path and ensures the
// schema exists. Use ":memory:" for an ephemeral store in tests.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Debug("session.store_opened", "path", path)
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	const ddl = `CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		payload TEXT NOT NULL
	)`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("snapshot: create schema: %w", err)
	}
	return nil
}

// Save upserts the document under its session ID. CreatedAt is preserved for
// existing sessions; UpdatedAt is set to now.
func (s *Store) Save(ctx context.Context, doc *Document) error {
	if doc == nil || doc.SessionID == "" {
		return errors.New("snapshot: document must have a session ID")
	}

	now := time.Now().UTC()
	stored := *doc
	stored.UpdatedAt = now
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	payload, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("snapshot: encode session %q: %w", doc.SessionID, err)
	}

	const q = `INSERT INTO sessions (session_id, created_at, updated_at, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			updated_at = excluded.updated_at,
			payload = excluded.payload`
	if _, err := s.db.ExecContext(ctx, q,
		stored.SessionID, stored.CreatedAt.UnixMilli(), stored.UpdatedAt.UnixMilli(), string(payload),
	); err != nil {
		return fmt.Errorf("snapshot: save session %q: %w", doc.SessionID, err)
	}
	slog.Info("session.save", "session_id", doc.SessionID,
		"messages", len(doc.Messages), "agents", len(doc.Agents))
	return nil
}

// Load retrieves the document stored under sessionID.
func (s *Store) Load(ctx context.Context, sessionID string) (*Document, error) {
	const q = `SELECT payload FROM sessions WHERE session_id = ?`
	var payload string
	err := s.db.QueryRowContext(ctx, q, sessionID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: load session %q: %w", sessionID, err)
	}

	var doc Document
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return nil, fmt.Errorf("snapshot: decode session %q: %w", sessionID, err)
	}
	slog.Info("session.load", "session_id", sessionID, "messages", len(doc.Messages))
	return &doc, nil
}

// List returns stored sessions newest-first. A non-positive limit returns
// all remaining entries after offset.
func (s *Store) List(ctx context.Context, limit, offset int) ([]Info, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	if offset < 0 {
		offset = 0
	}
	const q = `SELECT session_id, created_at, updated_at FROM sessions
		ORDER BY created_at DESC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, q, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("snapshot: list sessions: %w", err)
	}
	defer rows.Close()

	var out []Info
	for rows.Next() {
		var info Info
		var created, updated int64
		if err := rows.Scan(&info.SessionID, &created, &updated); err != nil {
			return nil, fmt.Errorf("snapshot: scan session row: %w", err)
		}
		info.CreatedAt = time.UnixMilli(created).UTC()
		info.UpdatedAt = time.UnixMilli(updated).UTC()
		out = append(out, info)
	}
	return out, rows.Err()
}

// Delete removes a stored session. Deleting an unknown session returns
// [ErrNotFound].
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("snapshot: delete session %q: %w", sessionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("snapshot: delete session %q: %w", sessionID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, sessionID)
	}
	return nil
}

// Ping verifies the database is reachable. Used by readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("snapshot: ping: %w", err)
	}
	return nil
}

// Close releases the database. Safe to call more than once.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

// ExportStructured renders the document as indented JSON.
func ExportStructured(doc *Document) (string, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("snapshot: export session %q: %w", doc.SessionID, err)
	}
	return string(data), nil
}

// ExportText renders the document as a human-readable transcript with a YAML
// front matter header.
func ExportText(doc *Document) (string, error) {
	head, err := yaml.Marshal(struct {
		SessionID string `yaml:"session_id"`
		CreatedAt string `yaml:"created_at"`
		UpdatedAt string `yaml:"updated_at"`
		Messages  int    `yaml:"messages"`
		Agents    int    `yaml:"agents"`
	}{
		SessionID: doc.SessionID,
		CreatedAt: doc.CreatedAt.Format(time.RFC3339),
		UpdatedAt: doc.UpdatedAt.Format(time.RFC3339),
		Messages:  len(doc.Messages),
		Agents:    len(doc.Agents),
	})
	if err != nil {
		return "", fmt.Errorf("snapshot: export session %q: %w", doc.SessionID, err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(head)
	b.WriteString("---\n")
	for _, m := range doc.Messages {
		who := m.SenderCallsign
		if who == "" {
			who = m.SenderID
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", m.Timestamp.Format("15:04:05"), who, m.Content)
	}
	return b.String(), nil
}
