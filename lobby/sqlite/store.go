/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package sqlite provides a SQLite-backed session document store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Seednode/namegame/lobby"
	"github.com/Seednode/namegame/lobby/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists session documents in SQLite and pushes every accepted
// update to subscribers in this process.
type Store struct {
	sqlDB  *sql.DB
	broker *lobby.Broker

	// mu orders writes and their publishes against reads that start
	// a subscription.
	mu sync.Mutex

	now func() time.Time
}

var _ lobby.Store = (*Store)(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// Open opens a SQLite document store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := applyMigrations(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{
		sqlDB:  sqlDB,
		broker: lobby.NewBroker(),
		now:    time.Now,
	}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Create inserts an empty document under a new key.
func (s *Store) Create(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	now := toMillis(s.now())
	for {
		key := lobby.NewKey()

		res, err := s.sqlDB.ExecContext(ctx,
			`INSERT OR IGNORE INTO documents (doc_key, created_at, updated_at) VALUES (?, ?, ?)`,
			key, now, now,
		)
		if err != nil {
			return "", fmt.Errorf("create document: %w", err)
		}

		if n, err := res.RowsAffected(); err == nil && n == 1 {
			return key, nil
		}
	}
}

func (s *Store) Get(ctx context.Context, key string) (lobby.Document, bool, error) {
	if err := ctx.Err(); err != nil {
		return lobby.Document{}, false, err
	}
	if key == "" {
		return lobby.Document{}, false, errors.New("session key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.touchAndLoad(ctx, key)
}

func (s *Store) Update(ctx context.Context, key string, muts ...lobby.Mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return errors.New("session key is required")
	}
	if err := lobby.ValidateMutations(muts); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := toMillis(s.now())
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents (doc_key, created_at, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(doc_key) DO UPDATE SET updated_at = excluded.updated_at`,
		key, now, now,
	); err != nil {
		return fmt.Errorf("upsert document %s: %w", key, err)
	}

	for _, m := range muts {
		if err := applyMutation(ctx, tx, key, m); err != nil {
			return err
		}
	}

	doc, err := loadDocument(ctx, tx, key)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update %s: %w", key, err)
	}

	s.broker.Publish(doc)

	return nil
}

func (s *Store) Subscribe(ctx context.Context, key string, fn func(lobby.Document)) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if key == "" {
		return nil, errors.New("session key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, _, err := s.touchAndLoad(ctx, key)
	if err != nil {
		return nil, err
	}

	return s.broker.Subscribe(key, current, fn), nil
}

// Purge deletes documents whose last touch is before cutoff. Documents
// with live subscribers in this process are touched instead.
func (s *Store) Purge(ctx context.Context, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin purge: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := toMillis(s.now())
	for _, key := range s.broker.Keys() {
		if _, err := tx.ExecContext(ctx,
			`UPDATE documents SET updated_at = ? WHERE doc_key = ?`,
			now, key,
		); err != nil {
			return 0, fmt.Errorf("touch subscribed document %s: %w", key, err)
		}
	}

	limit := toMillis(cutoff)
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM document_values WHERE doc_key IN (SELECT doc_key FROM documents WHERE updated_at < ?)`,
		limit,
	); err != nil {
		return 0, fmt.Errorf("purge document values: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE updated_at < ?`, limit)
	if err != nil {
		return 0, fmt.Errorf("purge documents: %w", err)
	}
	purged, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge documents: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit purge: %w", err)
	}

	return int(purged), nil
}

func (s *Store) touchAndLoad(ctx context.Context, key string) (lobby.Document, bool, error) {
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE documents SET updated_at = ? WHERE doc_key = ?`,
		toMillis(s.now()), key,
	)
	if err != nil {
		return lobby.Document{}, false, fmt.Errorf("touch document %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return lobby.Document{}, false, fmt.Errorf("touch document %s: %w", key, err)
	}
	if n == 0 {
		return lobby.Document{Key: key}, false, nil
	}

	doc, err := loadDocument(ctx, s.sqlDB, key)
	if err != nil {
		return lobby.Document{}, false, err
	}

	return doc, true, nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadDocument(ctx context.Context, q queryer, key string) (lobby.Document, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT field, value FROM document_values WHERE doc_key = ? ORDER BY field, position`,
		key,
	)
	if err != nil {
		return lobby.Document{}, fmt.Errorf("load document %s: %w", key, err)
	}
	defer rows.Close()

	doc := lobby.Document{Key: key, Fields: make(map[string][]string)}
	for rows.Next() {
		var field, value string
		if err := rows.Scan(&field, &value); err != nil {
			return lobby.Document{}, fmt.Errorf("scan document %s: %w", key, err)
		}
		doc.Fields[field] = append(doc.Fields[field], value)
	}
	if err := rows.Err(); err != nil {
		return lobby.Document{}, fmt.Errorf("load document %s: %w", key, err)
	}

	return doc, nil
}

func applyMutation(ctx context.Context, tx *sql.Tx, key string, m lobby.Mutation) error {
	var err error

	switch m.Op {
	case lobby.AddToSet:
		_, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO document_values (doc_key, field, position, value)
			 SELECT ?, ?, COALESCE(MAX(position), 0) + 1, ?
			 FROM document_values WHERE doc_key = ? AND field = ?`,
			key, m.Field, m.Value, key, m.Field,
		)
	case lobby.RemoveFromSet:
		_, err = tx.ExecContext(ctx,
			`DELETE FROM document_values WHERE doc_key = ? AND field = ? AND value = ?`,
			key, m.Field, m.Value,
		)
	default:
		return fmt.Errorf("unsupported mutation %s", m.Op)
	}

	if err != nil {
		return fmt.Errorf("apply %s to %s: %w", m, key, err)
	}

	return nil
}
