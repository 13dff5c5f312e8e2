package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists the session in a single-row sqlite table. It is the
// terminal client's stand-in for browser session storage.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, path string) (Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	q := `
	CREATE TABLE IF NOT EXISTS session (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		data TEXT NOT NULL
	);
	`
	if _, err := db.ExecContext(ctx, q); err != nil {
		return nil, fmt.Errorf("failed to create session table: %v", err)
	}

	return &SQLiteStore{
		db: db,
	}, nil
}

func (s *SQLiteStore) Close(ctx context.Context) error {
	return s.db.Close()
}

func (s *SQLiteStore) Save(ctx context.Context, session *Session) error {
	if session == nil {
		return fmt.Errorf("session is nil")
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %v", err)
	}

	q := `
	INSERT OR REPLACE INTO session (id, data)
	VALUES (1, ?);
	`
	if _, err := s.db.ExecContext(ctx, q, string(data)); err != nil {
		return fmt.Errorf("failed to save session: %v", err)
	}

	return nil
}

func (s *SQLiteStore) Load(ctx context.Context) (*Session, error) {
	q := `
	SELECT data FROM session WHERE id = 1;
	`
	var data string
	if err := s.db.QueryRowContext(ctx, q).Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load session: %v", err)
	}

	session := &Session{}
	if err := json.Unmarshal([]byte(data), session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %v", err)
	}

	return session, nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	q := `
	DELETE FROM session WHERE id = 1;
	`
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("failed to clear session: %v", err)
	}
	return nil
}
