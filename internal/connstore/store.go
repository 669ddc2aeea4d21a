// Package connstore persists saved storage connections in PostgreSQL.
package connstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/stardustai/dataset-viewer/internal/logging"
	"github.com/stardustai/dataset-viewer/internal/storage"
)

// ErrNotFound is returned when no saved connection matches.
var ErrNotFound = errors.New("connstore: connection not found")

// SavedConnection is one persisted connection profile. Secret holds the
// password or token, per protocol.
type SavedConnection struct {
	ID       int64             `json:"id"`
	Name     string            `json:"name"`
	Protocol string            `json:"protocol"`
	URL      string            `json:"url"`
	Username string            `json:"username"`
	Secret   string            `json:"secret"`
	Extra    map[string]string `json:"extra,omitempty"`
	LastUsed time.Time         `json:"lastUsed"`
}

// Config converts the saved profile to a live connection config.
func (sc *SavedConnection) Config() *storage.ConnectionConfig {
	cfg := &storage.ConnectionConfig{
		Name:     sc.Name,
		Protocol: sc.Protocol,
		URL:      sc.URL,
		Username: sc.Username,
		Extra:    sc.Extra,
	}
	if sc.Protocol == "huggingface" {
		cfg.Token = sc.Secret
	} else {
		cfg.Password = sc.Secret
	}
	return cfg
}

// Store is a PostgreSQL-backed connection store.
type Store struct {
	db *sql.DB
}

// New opens the database and ensures the schema exists.
func New(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS connections (
			id         BIGSERIAL PRIMARY KEY,
			name       TEXT NOT NULL UNIQUE,
			protocol   TEXT NOT NULL,
			url        TEXT NOT NULL,
			username   TEXT NOT NULL DEFAULT '',
			secret     TEXT NOT NULL DEFAULT '',
			extra      JSONB NOT NULL DEFAULT '{}',
			last_used  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Save inserts a new profile or replaces the one with the same name,
// and stamps last_used.
func (s *Store) Save(ctx context.Context, sc *SavedConnection) error {
	extra, err := json.Marshal(extraOrEmpty(sc.Extra))
	if err != nil {
		return fmt.Errorf("marshal extra: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO connections (name, protocol, url, username, secret, extra, last_used)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (name) DO UPDATE SET
			protocol = EXCLUDED.protocol,
			url      = EXCLUDED.url,
			username = EXCLUDED.username,
			secret   = EXCLUDED.secret,
			extra    = EXCLUDED.extra,
			last_used = now()
		RETURNING id, last_used`,
		sc.Name, sc.Protocol, sc.URL, sc.Username, sc.Secret, extra,
	).Scan(&sc.ID, &sc.LastUsed)
	if err != nil {
		return fmt.Errorf("save connection: %w", err)
	}

	logging.Debug("saved connection",
		zap.String("name", sc.Name),
		zap.String("protocol", sc.Protocol))
	return nil
}

// Find returns the profile with the given name.
func (s *Store) Find(ctx context.Context, name string) (*SavedConnection, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, protocol, url, username, secret, extra, last_used
		FROM connections WHERE name = $1`, name)
	return scanConnection(row)
}

// List returns all profiles, most recently used first.
func (s *Store) List(ctx context.Context) ([]*SavedConnection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, protocol, url, username, secret, extra, last_used
		FROM connections ORDER BY last_used DESC`)
	if err != nil {
		return nil, fmt.Errorf("query connections: %w", err)
	}
	defer rows.Close()

	var out []*SavedConnection
	for rows.Next() {
		sc, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// Touch stamps last_used for the named profile.
func (s *Store) Touch(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE connections SET last_used = now() WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("touch connection: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the named profile.
func (s *Store) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM connections WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (*SavedConnection, error) {
	var sc SavedConnection
	var extra []byte
	err := row.Scan(&sc.ID, &sc.Name, &sc.Protocol, &sc.URL,
		&sc.Username, &sc.Secret, &extra, &sc.LastUsed)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan connection: %w", err)
	}
	if len(extra) > 0 {
		if err := json.Unmarshal(extra, &sc.Extra); err != nil {
			return nil, fmt.Errorf("parse extra: %w", err)
		}
	}
	return &sc, nil
}

func extraOrEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
