// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"fmt"

	"github.com/pdiddy/scigraph/internal/store"
	"github.com/pdiddy/scigraph/pkg/types"
)

// Sink writes the outputs of a step into one or more downstream tables.
// Write receives a pointer so that inserted ids land on the output before it
// is handed to the consumer.
type Sink[Out any] interface {
	// Tables lists the downstream tables. The first one decides FRESH and
	// NEWER selection.
	Tables() []string

	Write(sess *store.Session, out *Out) error
}

type tableSink[T any] struct {
	tbl *store.Table[T]
}

// Into writes each output as one row of tbl.
func Into[T any](tbl *store.Table[T]) Sink[T] {
	return tableSink[T]{tbl: tbl}
}

func (s tableSink[T]) Tables() []string { return []string{s.tbl.Name} }

func (s tableSink[T]) Write(sess *store.Session, out *T) error {
	_, err := store.Insert(sess, s.tbl, out)
	return err
}

type resultSink[T any] struct {
	tbl *store.Table[T]
}

// IntoResults writes tagged results into tbl. A failed result is stored with
// its reason in the row's error column. tbl must have an error column.
func IntoResults[T any](tbl *store.Table[T]) (Sink[types.Result[T]], error) {
	if !tbl.HasColumn("error") {
		return nil, fmt.Errorf("%w: %s has no error column", ErrConfiguration, tbl.Name)
	}
	return resultSink[T]{tbl: tbl}, nil
}

func (s resultSink[T]) Tables() []string { return []string{s.tbl.Name} }

func (s resultSink[T]) Write(sess *store.Session, out *types.Result[T]) error {
	if !out.IsOk() {
		s.tbl.MarkFailed(&out.Value, out.Err)
	}
	_, err := store.Insert(sess, s.tbl, &out.Value)
	return err
}

// Route sends part of an output to one table.
type Route[Out any] struct {
	table string
	write func(*store.Session, *Out) error
}

// RouteTo routes the rows picked from each output into tbl. pick returns
// pointers into the output so the inserted ids are visible to the consumer.
func RouteTo[Out, R any](tbl *store.Table[R], pick func(*Out) []*R) Route[Out] {
	return Route[Out]{
		table: tbl.Name,
		write: func(sess *store.Session, out *Out) error {
			for _, row := range pick(out) {
				if _, err := store.Insert(sess, tbl, row); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

type fanout[Out any] struct {
	routes []Route[Out]
}

// Fanout writes each output into several tables within the same session.
func Fanout[Out any](routes ...Route[Out]) Sink[Out] {
	return fanout[Out]{routes: routes}
}

func (f fanout[Out]) Tables() []string {
	names := make([]string, len(f.routes))
	for i, r := range f.routes {
		names[i] = r.table
	}
	return names
}

func (f fanout[Out]) Write(sess *store.Session, out *Out) error {
	for _, r := range f.routes {
		if err := r.write(sess, out); err != nil {
			return err
		}
	}
	return nil
}
