// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists pipeline records in a relational staging store and
// selects the rows each step still has to process.
// Implements: record store (typed tables, run-mode selection, point lookup,
// checkpointed batched insert, counting) over SQLite or PostgreSQL.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/pdiddy/scigraph/pkg/types"
)

// Sentinel errors returned by the store.
var (
	ErrNotFound        = errors.New("record not found")
	ErrDuplicateRecord = errors.New("duplicate record")
	ErrMissingColumn   = errors.New("missing column")
	ErrUnknownTable    = errors.New("unknown table")
)

// Store manages the staging database.
type Store struct {
	db      *sql.DB
	dialect dialect
	sb      sq.StatementBuilderType
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used to stamp date_added and checkpoint
// timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open connects to the store described by cfg and creates the schema if it
// does not exist.
func Open(cfg types.StoreConfig, opts ...Option) (*Store, error) {
	switch cfg.Driver {
	case types.DriverSQLite, "":
		path := cfg.Path
		if path == "" {
			path = types.DefaultConfig().Store.Path
		}
		return OpenSQLite(path, cfg.BusyTimeout, opts...)
	case types.DriverPostgres:
		return OpenPostgres(cfg.DSN, cfg.Password, opts...)
	default:
		return nil, fmt.Errorf("unsupported store driver %q: use sqlite or postgres", cfg.Driver)
	}
}

// OpenSQLite opens or creates a SQLite database at path in WAL mode with
// foreign keys enforced. WAL lets a step read its upstream table while the
// session writes downstream rows on another connection.
func OpenSQLite(path string, busyTimeout time.Duration, opts ...Option) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=%d", path, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return newStore(db, sqliteDialect, opts)
}

// OpenPostgres connects to PostgreSQL through the pgx stdlib adapter. A
// non-empty password overrides the one in dsn.
func OpenPostgres(dsn, password string, opts ...Option) (*Store, error) {
	connCfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	if password != "" {
		connCfg.Password = password
	}
	db := stdlib.OpenDB(*connCfg)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	return newStore(db, postgresDialect, opts)
}

func newStore(db *sql.DB, d dialect, opts []Option) (*Store, error) {
	s := &Store{
		db:      db,
		dialect: d,
		sb:      sq.StatementBuilder.PlaceholderFormat(d.placeholder),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Driver reports which backend the store runs on.
func (s *Store) Driver() types.StoreDriver {
	return s.dialect.name
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Store) createSchema() error {
	id, ts := s.dialect.idColumn, s.dialect.timestamp

	statements := []string{
		`CREATE TABLE IF NOT EXISTS articles (
			id ` + id + `,
			doi TEXT NOT NULL,
			uri TEXT NOT NULL DEFAULT '',
			date_added ` + ts + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS summaries (
			id ` + id + `,
			article_id BIGINT NOT NULL REFERENCES articles(id),
			summary TEXT NOT NULL DEFAULT '',
			conclusion TEXT NOT NULL DEFAULT '',
			version TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			date_added ` + ts + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS abbreviations (
			id ` + id + `,
			article_id BIGINT REFERENCES articles(id),
			summary_id BIGINT REFERENCES summaries(id),
			abbreviation TEXT NOT NULL,
			meaning TEXT NOT NULL,
			date_added ` + ts + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS simple_conclusions (
			id ` + id + `,
			summary_id BIGINT NOT NULL REFERENCES summaries(id),
			conclusion TEXT NOT NULL DEFAULT '',
			version TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			date_added ` + ts + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS simple_substituted_conclusions (
			id ` + id + `,
			simple_conclusion_id BIGINT NOT NULL REFERENCES simple_conclusions(id),
			summary_id BIGINT NOT NULL REFERENCES summaries(id),
			conclusion TEXT NOT NULL DEFAULT '',
			version TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			date_added ` + ts + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS named_entities (
			id ` + id + `,
			ss_conclusion_id BIGINT NOT NULL REFERENCES simple_substituted_conclusions(id),
			matched_term TEXT NOT NULL,
			preferred_term TEXT NOT NULL,
			cui TEXT NOT NULL,
			source_version TEXT NOT NULL DEFAULT '',
			date_added ` + ts + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS nodes (
			id ` + id + `,
			summary_id BIGINT NOT NULL REFERENCES summaries(id),
			node_type TEXT NOT NULL,
			cui_or_name TEXT NOT NULL,
			matched TEXT NOT NULL DEFAULT '',
			preferred TEXT NOT NULL DEFAULT '',
			attributes TEXT NOT NULL DEFAULT '{}',
			date_added ` + ts + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS edges (
			id ` + id + `,
			summary_id BIGINT NOT NULL REFERENCES summaries(id),
			node_left TEXT NOT NULL,
			node_right TEXT NOT NULL,
			edge_type TEXT NOT NULL,
			attributes TEXT NOT NULL DEFAULT '{}',
			date_added ` + ts + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS concept_nodes (
			id ` + id + `,
			node_id BIGINT NOT NULL REFERENCES nodes(id),
			cui TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			version TEXT NOT NULL DEFAULT '',
			date_added ` + ts + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS synonym_nodes (
			id ` + id + `,
			node_id BIGINT NOT NULL REFERENCES nodes(id),
			cui TEXT NOT NULL,
			name TEXT NOT NULL,
			version TEXT NOT NULL DEFAULT '',
			date_added ` + ts + ` NOT NULL,
			UNIQUE (cui, name)
		)`,
		`CREATE TABLE IF NOT EXISTS synonym_edges (
			id ` + id + `,
			node_left BIGINT NOT NULL REFERENCES nodes(id),
			node_right BIGINT NOT NULL REFERENCES nodes(id),
			date_added ` + ts + ` NOT NULL,
			UNIQUE (node_left, node_right)
		)`,
		`CREATE TABLE IF NOT EXISTS predicate_edges (
			id ` + id + `,
			edge_id BIGINT NOT NULL REFERENCES edges(id),
			edge_type TEXT NOT NULL,
			name TEXT NOT NULL,
			doi TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			conclusion TEXT NOT NULL DEFAULT '',
			cui_left TEXT NOT NULL,
			cui_right TEXT NOT NULL,
			version TEXT NOT NULL DEFAULT '',
			date_added ` + ts + ` NOT NULL,
			UNIQUE (doi, cui_left, cui_right)
		)`,
		`CREATE TABLE IF NOT EXISTS log (
			id ` + id + `,
			table_name TEXT NOT NULL,
			last_processed_id BIGINT NOT NULL,
			timestamp ` + ts + ` NOT NULL
		)`,
		s.dialect.createView + ` edge_contexts AS
			SELECT e.id, e.summary_id, e.node_left, e.node_right, e.edge_type,
				e.attributes, e.date_added, a.doi, s.summary, s.conclusion
			FROM edges e
			JOIN summaries s ON s.id = e.summary_id
			JOIN articles a ON a.id = s.article_id`,
	}

	// Anti-joins probe every referencing column.
	for _, sc := range schemas {
		for _, ref := range sc.Refs {
			statements = append(statements, fmt.Sprintf(
				`CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s(%s)`,
				sc.Name, ref.Column, sc.Name, ref.Column,
			))
		}
	}
	statements = append(statements, `CREATE INDEX IF NOT EXISTS idx_log_table_name ON log(table_name)`)

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}
