package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/nstogner/uistream/pkg/domain"
	"github.com/nstogner/uistream/pkg/store"
)

// Store implements ThreadStore, MessageStore and CheckpointStore using SQLite.
type Store struct {
	db          *sql.DB
	subscribers []chan string
	mu          sync.RWMutex
}

// Verify interface compliance at compile time.
var (
	_ store.ThreadStore     = (*Store)(nil)
	_ store.MessageStore    = (*Store)(nil)
	_ store.CheckpointStore = (*Store)(nil)
)

// New opens (or creates) a SQLite database at the given path and runs migrations.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS threads (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		instructions TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		thread_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '""',
		tool_calls TEXT NOT NULL DEFAULT '',
		tool_call_chunks TEXT NOT NULL DEFAULT '',
		tool_call_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		seq INTEGER NOT NULL,
		FOREIGN KEY (thread_id) REFERENCES threads(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_messages_thread_seq ON messages(thread_id, seq);

	CREATE TABLE IF NOT EXISTS checkpoints (
		id TEXT PRIMARY KEY,
		thread_id TEXT NOT NULL,
		parent_id TEXT NOT NULL DEFAULT '',
		config TEXT NOT NULL,
		message_count INTEGER NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		seq INTEGER NOT NULL,
		FOREIGN KEY (thread_id) REFERENCES threads(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_checkpoints_thread_seq ON checkpoints(thread_id, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

// --- ThreadStore ---

func (s *Store) CreateThread(ctx context.Context, t *domain.Thread) error {
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO threads (id, title, model, instructions, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, t.Model, t.Instructions, t.CreatedAt, t.UpdatedAt,
	)
	return err
}

func (s *Store) GetThread(ctx context.Context, id string) (*domain.Thread, error) {
	t := &domain.Thread{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, model, instructions, created_at, updated_at FROM threads WHERE id = ?`, id,
	).Scan(&t.ID, &t.Title, &t.Model, &t.Instructions, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("thread %s: %w", id, store.ErrNotFound)
	}
	return t, err
}

func (s *Store) ListThreads(ctx context.Context) ([]domain.Thread, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, model, instructions, created_at, updated_at
		 FROM threads ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	threads := []domain.Thread{}
	for rows.Next() {
		var t domain.Thread
		if err := rows.Scan(&t.ID, &t.Title, &t.Model, &t.Instructions, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		threads = append(threads, t)
	}
	return threads, rows.Err()
}

func (s *Store) UpdateThread(ctx context.Context, t *domain.Thread) error {
	t.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE threads SET title=?, model=?, instructions=?, updated_at=? WHERE id=?`,
		t.Title, t.Model, t.Instructions, t.UpdatedAt, t.ID,
	)
	if err != nil {
		return err
	}
	return expectOne(result, "thread", t.ID)
}

func (s *Store) DeleteThread(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM threads WHERE id=?`, id)
	if err != nil {
		return err
	}
	return expectOne(result, "thread", id)
}

// ListThreadIDs returns just the IDs of all threads (used by sandbox reconciliation).
func (s *Store) ListThreadIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM threads`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func expectOne(result sql.Result, kind, id string) error {
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
	}
	return nil
}

// --- MessageStore ---

func (s *Store) AppendMessage(ctx context.Context, msg *domain.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	content, err := json.Marshal(msg.Content)
	if err != nil {
		return fmt.Errorf("encoding content: %w", err)
	}
	toolCalls, err := encodeList(msg.ToolCalls)
	if err != nil {
		return fmt.Errorf("encoding tool calls: %w", err)
	}
	chunks, err := encodeList(msg.ToolCallChunks)
	if err != nil {
		return fmt.Errorf("encoding tool call chunks: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Get next sequence number.
	var maxSeq int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM messages WHERE thread_id=?`, msg.ThreadID,
	).Scan(&maxSeq); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (id, thread_id, role, content, tool_calls, tool_call_chunks, tool_call_id, name, model, created_at, seq)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ThreadID, msg.Role, string(content), toolCalls, chunks,
		msg.ToolCallID, msg.Name, msg.Model, msg.CreatedAt, maxSeq+1,
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE threads SET updated_at=? WHERE id=?`, msg.CreatedAt, msg.ThreadID,
	); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	s.notifySubscribers(msg.ThreadID)
	return nil
}

func encodeList[T any](items []T) (string, error) {
	if len(items) == 0 {
		return "", nil
	}
	b, err := json.Marshal(items)
	return string(b), err
}

func (s *Store) GetMessages(ctx context.Context, threadID string, limit int) ([]domain.Message, error) {
	const cols = `id, thread_id, role, content, tool_calls, tool_call_chunks, tool_call_id, name, model, created_at`
	query := `SELECT ` + cols + ` FROM messages WHERE thread_id=? ORDER BY seq ASC`
	args := []any{threadID}

	if limit > 0 {
		// Subquery to get only the last N messages in ASC order.
		query = `SELECT ` + cols + ` FROM (
			SELECT ` + cols + `, seq FROM messages WHERE thread_id=? ORDER BY seq DESC LIMIT ?
		) sub ORDER BY seq ASC`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []domain.Message{}
	for rows.Next() {
		var (
			m                          domain.Message
			content, toolCalls, chunks string
		)
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.Role, &content, &toolCalls, &chunks,
			&m.ToolCallID, &m.Name, &m.Model, &m.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(content), &m.Content); err != nil {
			return nil, fmt.Errorf("decoding content of message %s: %w", m.ID, err)
		}
		if toolCalls != "" {
			if err := json.Unmarshal([]byte(toolCalls), &m.ToolCalls); err != nil {
				return nil, fmt.Errorf("decoding tool calls of message %s: %w", m.ID, err)
			}
		}
		if chunks != "" {
			if err := json.Unmarshal([]byte(chunks), &m.ToolCallChunks); err != nil {
				return nil, fmt.Errorf("decoding tool call chunks of message %s: %w", m.ID, err)
			}
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *Store) Subscribe() <-chan string {
	ch := make(chan string, 64)
	s.mu.Lock()
	s.subscribers = append(s.subscribers, ch)
	s.mu.Unlock()
	return ch
}

func (s *Store) notifySubscribers(threadID string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- threadID:
		default:
			// Drop if subscriber is not consuming fast enough.
		}
	}
}

// --- CheckpointStore ---

func (s *Store) SaveCheckpoint(ctx context.Context, threadID string, messageCount int) (*domain.Checkpoint, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var (
		parentID string
		maxSeq   int
	)
	err = tx.QueryRowContext(ctx,
		`SELECT id, seq FROM checkpoints WHERE thread_id=? ORDER BY seq DESC LIMIT 1`, threadID,
	).Scan(&parentID, &maxSeq)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	cp := &domain.Checkpoint{
		ID:           uuid.NewString(),
		ThreadID:     threadID,
		ParentID:     parentID,
		MessageCount: messageCount,
		CreatedAt:    time.Now().UTC(),
	}
	cp.Config = store.CheckpointConfig(threadID, cp.ID)

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO checkpoints (id, thread_id, parent_id, config, message_count, created_at, seq)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		cp.ID, cp.ThreadID, cp.ParentID, string(cp.Config), cp.MessageCount, cp.CreatedAt, maxSeq+1,
	); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return cp, nil
}

func (s *Store) ListCheckpoints(ctx context.Context, threadID string) ([]domain.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, thread_id, parent_id, config, message_count, created_at
		 FROM checkpoints WHERE thread_id=? ORDER BY seq ASC`, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cps := []domain.Checkpoint{}
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		cps = append(cps, *cp)
	}
	return cps, rows.Err()
}

func (s *Store) GetCheckpoint(ctx context.Context, threadID, id string) (*domain.Checkpoint, error) {
	cp, err := scanCheckpoint(s.db.QueryRowContext(ctx,
		`SELECT id, thread_id, parent_id, config, message_count, created_at
		 FROM checkpoints WHERE thread_id=? AND id=?`, threadID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("checkpoint %s: %w", id, store.ErrNotFound)
	}
	return cp, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row scanner) (*domain.Checkpoint, error) {
	var (
		cp     domain.Checkpoint
		config string
	)
	if err := row.Scan(&cp.ID, &cp.ThreadID, &cp.ParentID, &config, &cp.MessageCount, &cp.CreatedAt); err != nil {
		return nil, err
	}
	cp.Config = json.RawMessage(config)
	return &cp, nil
}
