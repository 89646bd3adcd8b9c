package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/phuslu/log"
)

var (
	ErrDuplicateDocument = errors.New("document already ingested")
	ErrNotFound          = errors.New("not found")
)

// SQLiteStore holds the document registry and the conversation history.
// It is expected to run against an in-memory DSN, so nothing here survives
// a process restart.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A shared-cache in-memory database is dropped when its last connection
	// closes; pinning the pool to one connection keeps it alive and
	// serializes access.
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS documents (
        id TEXT PRIMARY KEY, -- UUID
        filename TEXT NOT NULL,
        byte_size INTEGER NOT NULL,
        sha256 TEXT NOT NULL,
        page_count INTEGER NOT NULL DEFAULT 0,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        UNIQUE (filename, sha256)
    );

    CREATE TABLE IF NOT EXISTS chunks (
        id TEXT PRIMARY KEY, -- UUID
        document_id TEXT NOT NULL,
        position INTEGER NOT NULL,
        content TEXT NOT NULL,
        page INTEGER NOT NULL DEFAULT 0,
        FOREIGN KEY (document_id) REFERENCES documents (id)
    );

    CREATE TABLE IF NOT EXISTS turns (
        seq INTEGER PRIMARY KEY AUTOINCREMENT,
        id TEXT UNIQUE NOT NULL, -- UUID
        role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
        content TEXT NOT NULL,
        citations_json TEXT, -- JSON array of cited chunk IDs
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// Document methods

// InsertDocument registers a document and its chunks in one transaction.
// A document is never partially present: any failure rolls the whole
// insert back. An identical filename+hash pair yields ErrDuplicateDocument.
func (s *SQLiteStore) InsertDocument(doc *Document, chunks []Chunk) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	doc.CreatedAt = time.Now()
	doc.ChunkCount = len(chunks)

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin document insert: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRow("SELECT COUNT(1) FROM documents WHERE filename = ? AND sha256 = ?", doc.Filename, doc.SHA256).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check for duplicate document: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateDocument, doc.Filename)
	}

	_, err = tx.Exec("INSERT INTO documents (id, filename, byte_size, sha256, page_count, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		doc.ID, doc.Filename, doc.ByteSize, doc.SHA256, doc.PageCount, doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	stmt, err := tx.Prepare("INSERT INTO chunks (id, document_id, position, content, page) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for i := range chunks {
		chunks[i].DocumentID = doc.ID
		if chunks[i].ID == "" {
			chunks[i].ID = uuid.NewString()
		}
		if _, err := stmt.Exec(chunks[i].ID, doc.ID, chunks[i].Position, chunks[i].Content, chunks[i].Page); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", chunks[i].Position, err)
		}
	}

	return tx.Commit()
}

// DocumentExists reports whether an identical filename+hash pair has
// already been ingested. Same filename with different content is allowed.
func (s *SQLiteStore) DocumentExists(filename, sha256 string) (bool, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(1) FROM documents WHERE filename = ? AND sha256 = ?", filename, sha256).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check for existing document: %w", err)
	}
	return count > 0, nil
}

func (s *SQLiteStore) RemoveDocument(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin document removal: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec("DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("%w: document %s", ErrNotFound, id)
	}
	if _, err := tx.Exec("DELETE FROM chunks WHERE document_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete document chunks: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListDocuments() ([]Document, error) {
	rows, err := s.db.Query(`
        SELECT d.id, d.filename, d.byte_size, d.sha256, d.page_count, d.created_at,
               (SELECT COUNT(1) FROM chunks c WHERE c.document_id = d.id)
        FROM documents d
        ORDER BY d.created_at ASC, d.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.Filename, &doc.ByteSize, &doc.SHA256, &doc.PageCount, &doc.CreatedAt, &doc.ChunkCount); err != nil {
			return nil, fmt.Errorf("failed to scan document row: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *SQLiteStore) CountDocuments() (int, error) {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(1) FROM documents").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) DocumentByID(id string) (*Document, error) {
	var doc Document
	err := s.db.QueryRow("SELECT id, filename, byte_size, sha256, page_count, created_at FROM documents WHERE id = ?", id).
		Scan(&doc.ID, &doc.Filename, &doc.ByteSize, &doc.SHA256, &doc.PageCount, &doc.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: document %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &doc, nil
}

func (s *SQLiteStore) ChunkByID(id string) (*Chunk, error) {
	var chunk Chunk
	err := s.db.QueryRow("SELECT id, document_id, position, content, page FROM chunks WHERE id = ?", id).
		Scan(&chunk.ID, &chunk.DocumentID, &chunk.Position, &chunk.Content, &chunk.Page)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: chunk %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get chunk: %w", err)
	}
	return &chunk, nil
}

// Conversation methods

func (s *SQLiteStore) AppendTurn(turn *Turn) error {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	turn.CreatedAt = time.Now()

	var citationsJSON sql.NullString
	if len(turn.Citations) > 0 {
		data, err := json.Marshal(turn.Citations)
		if err != nil {
			return fmt.Errorf("failed to marshal citations: %w", err)
		}
		citationsJSON = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.Exec("INSERT INTO turns (id, role, content, citations_json, created_at) VALUES (?, ?, ?, ?, ?)",
		turn.ID, turn.Role, turn.Content, citationsJSON, turn.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert turn: %w", err)
	}
	return nil
}

// RecentTurns returns the most recent n turns, oldest first.
func (s *SQLiteStore) RecentTurns(n int) ([]Turn, error) {
	if n <= 0 {
		return []Turn{}, nil
	}
	rows, err := s.db.Query(`
        SELECT id, role, content, citations_json, created_at
        FROM turns
        ORDER BY seq DESC
        LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var turn Turn
		var citationsJSON sql.NullString
		if err := rows.Scan(&turn.ID, &turn.Role, &turn.Content, &citationsJSON, &turn.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn row: %w", err)
		}
		if citationsJSON.Valid && citationsJSON.String != "" {
			if err := json.Unmarshal([]byte(citationsJSON.String), &turn.Citations); err != nil {
				log.Warn().Err(err).Str("turn_id", turn.ID).Msg("Failed to unmarshal turn citations")
				turn.Citations = nil
			}
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// The query walks backwards from the newest turn; callers want
	// chronological order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func (s *SQLiteStore) CountTurns() (int, error) {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(1) FROM turns").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count turns: %w", err)
	}
	return count, nil
}

// Reset clears documents, chunks and conversation history in one
// transaction.
func (s *SQLiteStore) Reset() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin reset: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"chunks", "documents", "turns"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	if _, err := tx.Exec("DELETE FROM sqlite_sequence WHERE name = 'turns'"); err != nil {
		log.Warn().Err(err).Msg("Could not reset turn sequence")
	}
	return tx.Commit()
}
