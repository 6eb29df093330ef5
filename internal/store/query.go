// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"

	sq "github.com/Masterminds/squirrel"

	"github.com/pdiddy/scigraph/pkg/types"
)

// Query selects rows of one table.
type Query struct {
	// Mode selects which rows are returned. Empty means ALL.
	Mode types.RunMode

	// Downstream names the table whose references decide FRESH and NEWER.
	Downstream string

	// OrderBy lists columns to sort by, ascending. Rows are ordered by id
	// when empty.
	OrderBy []string

	// ID identifies the row for ONCE.
	ID int64

	// Where adds a filter on unqualified columns of the table.
	Where sq.Sqlizer
}

// filter applies the run mode and extra filter of q to b.
func (s *Store) filter(b sq.SelectBuilder, sc *Schema, q Query) (sq.SelectBuilder, error) {
	mode := q.Mode
	if mode == "" {
		mode = types.ModeAll
	}
	if err := mode.Validate(); err != nil {
		return b, err
	}

	if mode.NeedsDownstream() {
		down, err := Lookup(q.Downstream)
		if err != nil {
			return b, fmt.Errorf("%s selection of %s: %w", mode, sc.Name, err)
		}
		col, ok := down.refTo(sc.idTable())
		if !ok {
			return b, fmt.Errorf("%w: %s has no reference to %s", ErrMissingColumn, down.Name, sc.idTable())
		}

		switch mode {
		case types.ModeFresh:
			b = b.Where(fmt.Sprintf(
				"NOT EXISTS (SELECT 1 FROM %s d WHERE d.%s = %s.id)",
				down.Name, col, sc.Name,
			))
		case types.ModeNewer:
			b = b.Where(fmt.Sprintf(
				"%s.date_added > (SELECT min(d.date_added) FROM %s d WHERE d.%s = %s.id)",
				sc.Name, down.Name, col, sc.Name,
			))
		}
	}

	if mode == types.ModeOnce {
		b = b.Where(sq.Eq{sc.Name + ".id": q.ID})
	}
	if q.Where != nil {
		b = b.Where(q.Where)
	}
	return b, nil
}

func (s *Store) selectQuery(sc *Schema, q Query) (string, []any, error) {
	b, err := s.filter(s.sb.Select(sc.selectColumns()...).From(sc.Name), sc, q)
	if err != nil {
		return "", nil, err
	}

	order := q.OrderBy
	if len(order) == 0 {
		order = []string{"id"}
	}
	for _, col := range order {
		if !sc.HasColumn(col) {
			return "", nil, fmt.Errorf("%w: %s.%s", ErrMissingColumn, sc.Name, col)
		}
		b = b.OrderBy(sc.Name + "." + col)
	}

	return b.ToSql()
}

// Records streams the rows of tbl selected by q. The query runs when the
// sequence is first pulled; a selection error is yielded as the only element.
func Records[T any](ctx context.Context, s *Store, tbl *Table[T], q Query) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T

		query, args, err := s.selectQuery(tbl.Schema, q)
		if err != nil {
			yield(zero, err)
			return
		}

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			yield(zero, fmt.Errorf("querying %s: %w", tbl.Name, err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			r, err := tbl.scan(rows)
			if err != nil {
				yield(zero, fmt.Errorf("scanning %s: %w", tbl.Name, err))
				return
			}
			if !yield(r, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(zero, fmt.Errorf("iterating %s: %w", tbl.Name, err))
		}
	}
}

// Collect drains a record sequence into a slice, stopping at the first error.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var out []T
	for r, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, nil
}

// GetByID returns the row of tbl with the given id, or ErrNotFound.
func GetByID[T any](ctx context.Context, s *Store, tbl *Table[T], id int64) (T, error) {
	query, args, err := s.selectQuery(tbl.Schema, Query{Mode: types.ModeOnce, ID: id})
	if err != nil {
		var zero T
		return zero, err
	}

	r, err := tbl.scan(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("%w: %s id %d", ErrNotFound, tbl.Name, id)
	}
	if err != nil {
		return r, fmt.Errorf("loading %s id %d: %w", tbl.Name, id, err)
	}
	return r, nil
}

// Count returns how many rows of sc q selects.
func (s *Store) Count(ctx context.Context, sc *Schema, q Query) (int, error) {
	b, err := s.filter(s.sb.Select("count(*)").From(sc.Name), sc, q)
	if err != nil {
		return 0, err
	}
	query, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("building count query: %w", err)
	}

	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s: %w", sc.Name, err)
	}
	return n, nil
}

// AbbreviationsFor returns the abbreviations recorded for a summary or for
// the article the summary belongs to, ordered by id.
func (s *Store) AbbreviationsFor(ctx context.Context, summary types.Summary) ([]types.Abbreviation, error) {
	return Collect(Records(ctx, s, Abbreviations, Query{
		Where: sq.Or{
			sq.Eq{"summary_id": summary.ID},
			sq.Eq{"article_id": summary.ArticleID},
		},
	}))
}

// Checkpoints returns the checkpoint ledger, optionally for one table.
func (s *Store) Checkpoints(ctx context.Context, table string) ([]types.LogEntry, error) {
	q := Query{}
	if table != "" {
		q.Where = sq.Eq{"table_name": table}
	}
	return Collect(Records(ctx, s, Log, q))
}
