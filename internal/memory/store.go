// Package memory implements the opaque long-term memory store backing the
// remember/recall skill pair. A real deployment could swap in a hosted
// vector database; the default, grounded on the teacher's sqlitevec memory
// backend, stores embeddings as blobs in SQLite and ranks by cosine
// similarity computed in Go.
package memory

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Entry is one stored fact, observation, or preference.
type Entry struct {
	ID        string
	UserID    string
	Type      string // fact | observation | preference
	Content   string
	Source    string
	Timestamp time.Time
}

// SearchResult pairs a stored entry with its similarity score against the
// query embedding, highest first.
type SearchResult struct {
	Entry Entry
	Score float32
}

// Store persists and retrieves memory entries, scoped per user.
type Store interface {
	Add(ctx context.Context, e Entry) (string, error)
	Search(ctx context.Context, userID, query string, limit int) ([]SearchResult, error)
	Close() error
}

// SQLiteStore is the default Store, backed by a pure-Go SQLite driver so the
// module carries no CGo dependency.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if absent) a SQLite database at path. Pass
// ":memory:" for an ephemeral, process-local store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("memory: open sqlite: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			type TEXT NOT NULL,
			content TEXT NOT NULL,
			source TEXT,
			embedding BLOB NOT NULL,
			created_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("memory: create table: %w", err)
	}
	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id)`)
	if err != nil {
		return fmt.Errorf("memory: create index: %w", err)
	}
	return nil
}

// Add stores e, assigning a fresh id if e.ID is empty, and returns the id.
func (s *SQLiteStore) Add(ctx context.Context, e Entry) (string, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (id, user_id, type, content, source, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.UserID, e.Type, e.Content, e.Source, encodeEmbedding(embed(e.Content)), e.Timestamp)
	if err != nil {
		return "", fmt.Errorf("memory: insert: %w", err)
	}
	return e.ID, nil
}

// Search ranks every entry belonging to userID by cosine similarity to
// query and returns the top limit.
func (s *SQLiteStore) Search(ctx context.Context, userID, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 5
	}
	queryVec := embed(query)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, type, content, source, embedding, created_at
		FROM memories WHERE user_id = ?
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("memory: search query: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var e Entry
		var embeddingBlob []byte
		if err := rows.Scan(&e.ID, &e.UserID, &e.Type, &e.Content, &e.Source, &embeddingBlob, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("memory: scan: %w", err)
		}
		score := cosineSimilarity(queryVec, decodeEmbedding(embeddingBlob))
		results = append(results, SearchResult{Entry: e, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func encodeEmbedding(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(data []byte) []float32 {
	if len(data)%4 != 0 {
		return nil
	}
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return v
}
