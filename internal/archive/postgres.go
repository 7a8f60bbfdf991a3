package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bedwards/sonnet/internal/scansion"
)

// Schema is the DDL for the verse_records table. Run it with
// [PostgresStore.Migrate] or apply it during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS verse_records (
    id         TEXT PRIMARY KEY,
    kind       TEXT NOT NULL,
    lines      JSONB NOT NULL DEFAULT '[]',
    payload    JSONB NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_verse_records_kind_created ON verse_records(kind, created_at DESC);
`

// DB is the database surface used by [PostgresStore]. *pgxpool.Pool and
// *pgx.Conn both satisfy it.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
}

// PostgresStore is a [Store] backed by PostgreSQL.
type PostgresStore struct {
	db    DB
	close func()
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore wraps an existing connection or pool. The caller owns db
// and must run [PostgresStore.Migrate] before use.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Open connects a pool to dsn, migrates the schema and returns the store.
// [PostgresStore.Close] releases the pool.
func Open(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("archive: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("archive: connect: %w", err)
	}
	s := &PostgresStore{db: pool, close: pool.Close}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the pool opened by [Open]. It is a no-op for stores
// created with [NewPostgresStore].
func (s *PostgresStore) Close() {
	if s.close != nil {
		s.close()
	}
}

// Migrate executes [Schema].
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("archive: migrate: %w", err)
	}
	return nil
}

// payload is the JSONB column body.
type payload struct {
	Report   *scansion.Report `json:"report,omitempty"`
	EndWords []string         `json:"end_words,omitempty"`
}

func (s *PostgresStore) Save(ctx context.Context, r *Record) error {
	if err := prepare(r); err != nil {
		return err
	}
	linesJSON, err := json.Marshal(emptySlice(r.Lines))
	if err != nil {
		return fmt.Errorf("archive: marshal lines: %w", err)
	}
	bodyJSON, err := json.Marshal(payload{Report: r.Report, EndWords: r.EndWords})
	if err != nil {
		return fmt.Errorf("archive: marshal payload: %w", err)
	}

	const query = `
		INSERT INTO verse_records (id, kind, lines, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			kind = EXCLUDED.kind,
			lines = EXCLUDED.lines,
			payload = EXCLUDED.payload`
	if _, err := s.db.Exec(ctx, query, r.ID, string(r.Kind), linesJSON, bodyJSON, r.CreatedAt); err != nil {
		return fmt.Errorf("archive: save %q: %w", r.ID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Record, error) {
	const query = `
		SELECT id, kind, lines, payload, created_at
		FROM verse_records
		WHERE id = $1`

	var (
		r                   Record
		kind                string
		linesJSON, bodyJSON []byte
	)
	err := s.db.QueryRow(ctx, query, id).Scan(&r.ID, &kind, &linesJSON, &bodyJSON, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("archive: get %q: %w", id, err)
	}
	r.Kind = Kind(kind)
	if err := decode(&r, linesJSON, bodyJSON); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) List(ctx context.Context, kind Kind, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultMemCapacity
	}
	var (
		rows pgx.Rows
		err  error
	)
	if kind == "" {
		const query = `
			SELECT id, kind, lines, payload, created_at
			FROM verse_records
			ORDER BY created_at DESC
			LIMIT $1`
		rows, err = s.db.Query(ctx, query, limit)
	} else {
		const query = `
			SELECT id, kind, lines, payload, created_at
			FROM verse_records
			WHERE kind = $1
			ORDER BY created_at DESC
			LIMIT $2`
		rows, err = s.db.Query(ctx, query, string(kind), limit)
	}
	if err != nil {
		return nil, fmt.Errorf("archive: list: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r                   Record
			k                   string
			linesJSON, bodyJSON []byte
		)
		if err := rows.Scan(&r.ID, &k, &linesJSON, &bodyJSON, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("archive: list scan: %w", err)
		}
		r.Kind = Kind(k)
		if err := decode(&r, linesJSON, bodyJSON); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: list: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("archive: ping: %w", err)
	}
	return nil
}

func decode(r *Record, linesJSON, bodyJSON []byte) error {
	if err := json.Unmarshal(linesJSON, &r.Lines); err != nil {
		return fmt.Errorf("archive: unmarshal lines of %q: %w", r.ID, err)
	}
	var body payload
	if err := json.Unmarshal(bodyJSON, &body); err != nil {
		return fmt.Errorf("archive: unmarshal payload of %q: %w", r.ID, err)
	}
	r.Report, r.EndWords = body.Report, body.EndWords
	return nil
}

func emptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
