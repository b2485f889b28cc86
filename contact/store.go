package contact

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/flowkit/flowkit/model"
	_ "modernc.org/sqlite"
)

// Store keeps contacts and their tags in SQLite. Tags feed condition-step
// predicates and tag_added triggers.
type Store struct {
	db *sql.DB
}

func NewStore(dbPath string) (*Store, error) {
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *Store) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS contacts (
		address TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS contact_tags (
		address TEXT NOT NULL,
		tag TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (address, tag)
	);
	CREATE INDEX IF NOT EXISTS idx_contact_tags_tag ON contact_tags(tag);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, contact *model.Contact) error {
	now := time.Now().Unix()
	query := `
		INSERT INTO contacts (address, name, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE contacts.name END,
			updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, query, contact.Address, contact.Name, now, now); err != nil {
		return fmt.Errorf("upsert contact: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, address string) (*model.Contact, error) {
	row := s.db.QueryRowContext(ctx, `SELECT address, name FROM contacts WHERE address = ?`, address)
	var contact model.Contact
	err := row.Scan(&contact.Address, &contact.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan contact row: %w", err)
	}
	tags, err := s.Tags(ctx, address)
	if err != nil {
		return nil, err
	}
	contact.Tags = tags
	return &contact, nil
}

func (s *Store) List(ctx context.Context) ([]*model.Contact, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT address, name FROM contacts ORDER BY address`)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()
	var contacts []*model.Contact
	for rows.Next() {
		var contact model.Contact
		if err := rows.Scan(&contact.Address, &contact.Name); err != nil {
			return nil, fmt.Errorf("scan contact row: %w", err)
		}
		contacts = append(contacts, &contact)
	}
	return contacts, rows.Err()
}

func (s *Store) AddTag(ctx context.Context, address string, tag string) error {
	now := time.Now().Unix()
	query := `INSERT OR IGNORE INTO contact_tags (address, tag, created_at) VALUES (?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, address, tag, now); err != nil {
		return fmt.Errorf("add tag: %w", err)
	}
	return nil
}

func (s *Store) RemoveTag(ctx context.Context, address string, tag string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM contact_tags WHERE address = ? AND tag = ?`, address, tag); err != nil {
		return fmt.Errorf("remove tag: %w", err)
	}
	return nil
}

func (s *Store) Tags(ctx context.Context, address string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tag FROM contact_tags WHERE address = ? ORDER BY tag`, address)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()
	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("scan tag row: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

func (s *Store) HasTag(ctx context.Context, address string, tag string) (bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT 1 FROM contact_tags WHERE address = ? AND tag = ?`, address, tag)
	var one int
	err := row.Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("scan tag row: %w", err)
	}
	return true, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
