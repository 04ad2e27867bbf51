package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	auditmodel "github.com/vetlink/companion/backend/internal/model/audit"
	"github.com/vetlink/companion/backend/internal/model/chat"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// SQLStore implements Repository on database/sql. Queries are written with
// '?' placeholders and rebound for Postgres.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

// NewSQLite opens (creating if needed) a SQLite database at dbPath.
func NewSQLite(dbPath string) (*SQLStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// modernc serialises writers; one connection avoids SQLITE_BUSY and keeps
	// ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	return newSQLStore(db, dialectSQLite)
}

// NewPostgres connects to Postgres using a lib/pq DSN.
func NewPostgres(dsn string) (*SQLStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return newSQLStore(db, dialectPostgres)
}

func newSQLStore(db *sql.DB, d dialect) (*SQLStore, error) {
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &SQLStore{db: db, dialect: d}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLStore) initSchema() error {
	floatType := "REAL"
	if s.dialect == dialectPostgres {
		floatType = "DOUBLE PRECISION"
	}

	query := `
	CREATE TABLE IF NOT EXISTS flagged_replies (
		id TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		sentiment TEXT NOT NULL,
		score ` + floatType + ` NOT NULL,
		confidence ` + floatType + ` NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		assistant_type TEXT NOT NULL,
		created_at BIGINT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_flagged_created ON flagged_replies(created_at);

	CREATE TABLE IF NOT EXISTS crisis_alerts (
		id TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		resolved BOOLEAN NOT NULL DEFAULT FALSE,
		created_at BIGINT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_crisis_created ON crisis_alerts(created_at);

	CREATE TABLE IF NOT EXISTS chat_messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		sender TEXT NOT NULL,
		text TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		sentiment TEXT NOT NULL DEFAULT '',
		score ` + floatType + ` NOT NULL DEFAULT 0,
		confidence ` + floatType + ` NOT NULL DEFAULT 0,
		flagged BOOLEAN NOT NULL DEFAULT FALSE,
		crisis BOOLEAN NOT NULL DEFAULT FALSE,
		replaced BOOLEAN NOT NULL DEFAULT FALSE,
		needs_escalation BOOLEAN NOT NULL DEFAULT FALSE,
		escalation_reason TEXT NOT NULL DEFAULT '',
		suggestions_json TEXT NOT NULL DEFAULT '[]',
		created_at BIGINT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON chat_messages(session_id, created_at);

	CREATE TABLE IF NOT EXISTS analytics_events (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		attrs_json TEXT NOT NULL DEFAULT '{}',
		created_at BIGINT NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// rebind converts '?' placeholders to '$n' for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) exec(ctx context.Context, query string, args ...any) error {
	_, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	return err
}

// AppendFlag inserts a flagged reply; duplicates are ignored.
func (s *SQLStore) AppendFlag(ctx context.Context, e auditmodel.FlaggedEntry) error {
	err := s.exec(ctx, `
		INSERT INTO flagged_replies (id, text, sentiment, score, confidence, user_id, assistant_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		e.ID, e.Text, string(e.Sentiment.Sentiment), e.Sentiment.Score, e.Sentiment.Confidence,
		e.UserID, e.AssistantType, e.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert flagged reply: %w", err)
	}
	return nil
}

// AppendCrisisAlert inserts an alert; duplicates are ignored.
func (s *SQLStore) AppendCrisisAlert(ctx context.Context, a auditmodel.CrisisAlert) error {
	err := s.exec(ctx, `
		INSERT INTO crisis_alerts (id, text, user_id, resolved, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		a.ID, a.Text, a.UserID, a.Resolved, a.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert crisis alert: %w", err)
	}
	return nil
}

// AppendMessage mirrors one transcript message; duplicates are ignored.
func (s *SQLStore) AppendMessage(ctx context.Context, m chat.Message) error {
	suggestions, err := json.Marshal(m.Suggestions)
	if err != nil {
		return fmt.Errorf("marshal suggestions: %w", err)
	}
	err = s.exec(ctx, `
		INSERT INTO chat_messages (id, session_id, sender, text, category, sentiment, score, confidence,
			flagged, crisis, replaced, needs_escalation, escalation_reason, suggestions_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		m.ID, m.SessionID, string(m.Sender), m.Text, string(m.Category), string(m.Sentiment),
		m.SentimentScore, m.Confidence, m.Flagged, m.Crisis, m.Replaced, m.NeedsEscalation,
		m.EscalationReason, string(suggestions), m.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	return nil
}

// AppendEvent stores an analytics event; duplicates are ignored.
func (s *SQLStore) AppendEvent(ctx context.Context, ev Event) error {
	attrs, err := json.Marshal(ev.Attrs)
	if err != nil {
		return fmt.Errorf("marshal event attrs: %w", err)
	}
	err = s.exec(ctx, `
		INSERT INTO analytics_events (id, name, attrs_json, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		ev.ID, ev.Name, string(attrs), ev.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert analytics event: %w", err)
	}
	return nil
}

// ListFlags returns the newest flagged replies first.
func (s *SQLStore) ListFlags(ctx context.Context, limit int) ([]auditmodel.FlaggedEntry, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, text, sentiment, score, confidence, user_id, assistant_type, created_at
		FROM flagged_replies ORDER BY created_at DESC LIMIT ?`), normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query flagged replies: %w", err)
	}
	defer rows.Close()

	var out []auditmodel.FlaggedEntry
	for rows.Next() {
		var e auditmodel.FlaggedEntry
		var sentiment string
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.Text, &sentiment, &e.Sentiment.Score, &e.Sentiment.Confidence,
			&e.UserID, &e.AssistantType, &createdAt); err != nil {
			return nil, fmt.Errorf("scan flagged reply: %w", err)
		}
		e.Sentiment.Sentiment = chat.Sentiment(sentiment)
		e.CreatedAt = time.Unix(0, createdAt).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListCrisisAlerts returns the newest alerts first.
func (s *SQLStore) ListCrisisAlerts(ctx context.Context, limit int) ([]auditmodel.CrisisAlert, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, text, user_id, resolved, created_at
		FROM crisis_alerts ORDER BY created_at DESC LIMIT ?`), normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query crisis alerts: %w", err)
	}
	defer rows.Close()

	var out []auditmodel.CrisisAlert
	for rows.Next() {
		var a auditmodel.CrisisAlert
		var createdAt int64
		if err := rows.Scan(&a.ID, &a.Text, &a.UserID, &a.Resolved, &createdAt); err != nil {
			return nil, fmt.Errorf("scan crisis alert: %w", err)
		}
		a.CreatedAt = time.Unix(0, createdAt).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListMessages returns a session transcript in creation order.
func (s *SQLStore) ListMessages(ctx context.Context, sessionID string) ([]chat.Message, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, session_id, sender, text, category, sentiment, score, confidence,
			flagged, crisis, replaced, needs_escalation, escalation_reason, suggestions_json, created_at
		FROM chat_messages WHERE session_id = ? ORDER BY created_at ASC`), sessionID)
	if err != nil {
		return nil, fmt.Errorf("query chat messages: %w", err)
	}
	defer rows.Close()

	var out []chat.Message
	for rows.Next() {
		var m chat.Message
		var sender, category, sentiment, suggestions string
		var createdAt int64
		if err := rows.Scan(&m.ID, &m.SessionID, &sender, &m.Text, &category, &sentiment,
			&m.SentimentScore, &m.Confidence, &m.Flagged, &m.Crisis, &m.Replaced, &m.NeedsEscalation,
			&m.EscalationReason, &suggestions, &createdAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		m.Sender = chat.Sender(sender)
		m.Category = chat.Category(category)
		m.Sentiment = chat.Sentiment(sentiment)
		m.CreatedAt = time.Unix(0, createdAt).UTC()
		if err := json.Unmarshal([]byte(suggestions), &m.Suggestions); err != nil {
			return nil, fmt.Errorf("decode suggestions for %s: %w", m.ID, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Ping verifies database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
