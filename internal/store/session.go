// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"slices"

	"github.com/pdiddy/scigraph/pkg/types"
)

// DefaultPeriodicCommit is the commit window size used when none is given.
const DefaultPeriodicCommit = 50

// WriteOptions controls how a session commits.
type WriteOptions struct {
	// PeriodicCommit is the number of output elements per commit window.
	// Zero or negative selects DefaultPeriodicCommit.
	PeriodicCommit int

	// Duplicates selects raise or skip for unique-constraint violations.
	Duplicates types.Duplicates
}

// WriteSummary holds counts from one session.
type WriteSummary struct {
	Inserted int
	Skipped  int
	Windows  int
}

// Total returns the number of rows offered to the session.
func (w WriteSummary) Total() int {
	return w.Inserted + w.Skipped
}

// Session is a shared transaction spanning every table a step writes. It is
// committed every PeriodicCommit output elements; each commit appends one
// checkpoint row per bound table inside the committing transaction.
type Session struct {
	store   *Store
	ctx     context.Context
	opts    WriteOptions
	tables  []string
	lastIDs map[string]int64
	tx      *sql.Tx
	pending int
	summary WriteSummary
	closed  bool
}

// Begin opens a session bound to tables. Tables written later through
// Insert are bound on first use.
func (s *Store) Begin(ctx context.Context, opts WriteOptions, tables ...string) (*Session, error) {
	if opts.PeriodicCommit <= 0 {
		opts.PeriodicCommit = DefaultPeriodicCommit
	}
	if opts.Duplicates == "" {
		opts.Duplicates = types.DuplicatesRaise
	}

	sess := &Session{
		store:   s,
		ctx:     ctx,
		opts:    opts,
		lastIDs: make(map[string]int64),
	}
	for _, name := range tables {
		sc, err := Lookup(name)
		if err != nil {
			return nil, err
		}
		sess.bind(sc)
	}

	if err := sess.begin(); err != nil {
		return nil, err
	}
	return sess, nil
}

func (sess *Session) bind(sc *Schema) {
	if !slices.Contains(sess.tables, sc.Name) {
		sess.tables = append(sess.tables, sc.Name)
	}
}

func (sess *Session) begin() error {
	tx, err := sess.store.db.BeginTx(sess.ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	sess.tx = tx
	return nil
}

// Insert adds row to tbl within the open window and sets its id and
// date_added. It reports false when the row was skipped as a duplicate.
func Insert[T any](sess *Session, tbl *Table[T], row *T) (bool, error) {
	if sess.closed {
		return false, errors.New("session is closed")
	}
	if tbl.ReadOnly() || tbl.values == nil {
		return false, fmt.Errorf("%s is read-only", tbl.Name)
	}
	sess.bind(tbl.Schema)

	if d := tbl.dated(row); d.IsZero() {
		*d = sess.store.timestamp()
	} else {
		*d = d.UTC()
	}

	b := sess.store.sb.Insert(tbl.Name).Columns(tbl.Columns...).Values(tbl.values(row)...)
	if sess.opts.Duplicates == types.DuplicatesSkip {
		b = b.Suffix("ON CONFLICT DO NOTHING RETURNING id")
	} else {
		b = b.Suffix("RETURNING id")
	}
	query, args, err := b.ToSql()
	if err != nil {
		return false, fmt.Errorf("building insert into %s: %w", tbl.Name, err)
	}

	var id int64
	err = sess.tx.QueryRowContext(sess.ctx, query, args...).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		sess.summary.Skipped++
		return false, nil
	case err != nil && isUniqueViolation(err):
		return false, fmt.Errorf("inserting into %s: %w: %v", tbl.Name, ErrDuplicateRecord, err)
	case err != nil:
		return false, fmt.Errorf("inserting into %s: %w", tbl.Name, err)
	}

	*tbl.id(row) = id
	sess.lastIDs[tbl.Name] = id
	sess.summary.Inserted++
	return true, nil
}

// Done marks the end of one output element. When the window is full it is
// committed with its checkpoints and a new window is opened.
func (sess *Session) Done() error {
	sess.pending++
	if sess.pending < sess.opts.PeriodicCommit {
		return nil
	}
	if err := sess.commitWindow(); err != nil {
		return err
	}
	return sess.begin()
}

// Commit closes the session: the open window is committed together with a
// final checkpoint row per bound table.
func (sess *Session) Commit() error {
	if sess.closed {
		return nil
	}
	sess.closed = true
	return sess.commitWindow()
}

// Rollback discards the open window. Windows already committed stay.
func (sess *Session) Rollback() error {
	if sess.closed {
		return nil
	}
	sess.closed = true
	if err := sess.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rolling back: %w", err)
	}
	return nil
}

// LastID returns the id of the last row inserted into table, or 0.
func (sess *Session) LastID(table string) int64 {
	return sess.lastIDs[table]
}

// Summary returns the session's counts so far.
func (sess *Session) Summary() WriteSummary {
	return sess.summary
}

func (sess *Session) commitWindow() error {
	if err := sess.checkpoint(); err != nil {
		sess.tx.Rollback()
		sess.closed = true
		return err
	}
	if err := sess.tx.Commit(); err != nil {
		sess.closed = true
		return fmt.Errorf("committing window: %w", err)
	}
	sess.pending = 0
	sess.summary.Windows++
	return nil
}

func (sess *Session) checkpoint() error {
	ts := sess.store.timestamp()
	for _, name := range sess.tables {
		entry := types.LogEntry{TableName: name, LastProcessedID: sess.lastIDs[name], Timestamp: ts}
		query, args, err := sess.store.sb.Insert(Log.Name).Columns(Log.Columns...).Values(Log.values(&entry)...).ToSql()
		if err != nil {
			return fmt.Errorf("building checkpoint: %w", err)
		}
		if _, err := sess.tx.ExecContext(sess.ctx, query, args...); err != nil {
			return fmt.Errorf("writing checkpoint for %s: %w", name, err)
		}
	}
	return nil
}

// AddRecords inserts rows into tbl, committing every PeriodicCommit rows
// with a checkpoint, and returns the id of the last inserted row. On error
// the open window is rolled back and earlier windows stay committed.
func AddRecords[T any](ctx context.Context, s *Store, tbl *Table[T], rows iter.Seq[T], opts WriteOptions) (int64, error) {
	sess, err := s.Begin(ctx, opts, tbl.Name)
	if err != nil {
		return 0, err
	}

	for row := range rows {
		if _, err := Insert(sess, tbl, &row); err != nil {
			sess.Rollback()
			return sess.LastID(tbl.Name), err
		}
		if err := sess.Done(); err != nil {
			return sess.LastID(tbl.Name), err
		}
	}

	if err := sess.Commit(); err != nil {
		return sess.LastID(tbl.Name), err
	}
	return sess.LastID(tbl.Name), nil
}
