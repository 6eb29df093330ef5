// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline binds transformations to upstream and downstream tables
// and drives read, transform, write and checkpoint for each run.
// Implements: pipeline step (run modes, periodic commit with checkpoints,
// dry runs, single-row runs) and the workflow that chains steps.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pdiddy/scigraph/internal/logging"
	"github.com/pdiddy/scigraph/internal/store"
	"github.com/pdiddy/scigraph/pkg/types"
)

const tracerName = "github.com/pdiddy/scigraph/internal/pipeline"

// progressEvery is how often a running step logs its position.
const progressEvery = 100

// ErrConfiguration is returned when a step is built or run without the
// store or tables it needs.
var ErrConfiguration = errors.New("pipeline configuration error")

// TransformError wraps a failure raised by a transformation. It aborts the
// run; row-level failures travel as data instead.
type TransformError struct {
	Step string
	Err  error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("step %s: transform failed: %v", e.Step, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }

// TransformFunc maps the upstream row stream to output elements. It is
// called once per run with the whole stream and must be lazy: it may hold
// state across rows but should not read ahead further than it needs.
type TransformFunc[In, Out any] func(ctx context.Context, in iter.Seq[In]) iter.Seq2[Out, error]

// Map adapts a per-row function into a TransformFunc.
func Map[In, Out any](fn func(ctx context.Context, in In) (Out, error)) TransformFunc[In, Out] {
	return func(ctx context.Context, in iter.Seq[In]) iter.Seq2[Out, error] {
		return func(yield func(Out, error) bool) {
			for row := range in {
				out, err := fn(ctx, row)
				if !yield(out, err) || err != nil {
					return
				}
			}
		}
	}
}

// Config binds a step to its store and tables.
type Config[In, Out any] struct {
	Name string

	Store *store.Store

	// Upstream is read by the step. Nil for source steps, which receive an
	// empty input stream and generate rows themselves.
	Upstream *store.Table[In]

	// Downstream receives the outputs when writing.
	Downstream Sink[Out]

	// OrderBy is the upstream order used when a run does not set one.
	OrderBy []string

	// Duplicates is the duplicate policy used when a run does not set one.
	// It takes precedence over RunOptions.DefaultDuplicates.
	Duplicates types.Duplicates

	Logger *logging.Logger
	Tracer trace.Tracer
}

// RunOptions controls one run of a step.
type RunOptions struct {
	Mode types.RunMode

	// Write persists the outputs. When false the run is a dry run.
	Write bool

	OrderBy []string

	// Duplicates overrides the step's duplicate policy for this run.
	Duplicates types.Duplicates

	// DefaultDuplicates applies to steps that set no policy of their own.
	// Empty means raise.
	DefaultDuplicates types.Duplicates

	PeriodicCommit int
}

// RunSummary holds counts from one run.
type RunSummary struct {
	Outputs  int
	Inserted int
	Skipped  int
	Windows  int
}

// Step is a transformation bound to its tables.
type Step[In, Out any] struct {
	name   string
	fn     TransformFunc[In, Out]
	cfg    Config[In, Out]
	log    *logging.Logger
	tracer trace.Tracer
}

// New builds a step. It fails with ErrConfiguration when tables are bound
// without a store.
func New[In, Out any](fn TransformFunc[In, Out], cfg Config[In, Out]) (*Step[In, Out], error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: step %q has no transformation", ErrConfiguration, cfg.Name)
	}
	if (cfg.Upstream != nil || cfg.Downstream != nil) && cfg.Store == nil {
		return nil, fmt.Errorf("%w: step %q binds tables but has no store", ErrConfiguration, cfg.Name)
	}
	if cfg.Upstream != nil && cfg.Downstream != nil {
		for _, name := range cfg.Downstream.Tables() {
			if name == cfg.Upstream.Name {
				return nil, fmt.Errorf("%w: step %q reads and writes %s", ErrConfiguration, cfg.Name, name)
			}
		}
	}

	name := cfg.Name
	if name == "" {
		name = "step"
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Step[In, Out]{
		name:   name,
		fn:     fn,
		cfg:    cfg,
		log:    logging.OrNop(cfg.Logger).With("step", name),
		tracer: tracer,
	}, nil
}

// Name returns the step name.
func (s *Step[In, Out]) Name() string { return s.name }

// downstream returns the table deciding FRESH and NEWER selection.
func (s *Step[In, Out]) downstream() string {
	if s.cfg.Downstream == nil {
		return ""
	}
	if tables := s.cfg.Downstream.Tables(); len(tables) > 0 {
		return tables[0]
	}
	return ""
}

// duplicates resolves the policy for a run: the run's explicit choice, then
// the step's, then the run's default.
func (s *Step[In, Out]) duplicates(opts RunOptions) types.Duplicates {
	switch {
	case opts.Duplicates != "":
		return opts.Duplicates
	case s.cfg.Duplicates != "":
		return s.cfg.Duplicates
	default:
		return opts.DefaultDuplicates
	}
}

// RunAll runs the step over the upstream rows selected by opts.Mode and
// yields each output after it has been written. Nothing happens until the
// returned sequence is pulled. A consumer that stops early keeps what was
// written so far.
func (s *Step[In, Out]) RunAll(ctx context.Context, opts RunOptions) iter.Seq2[Out, error] {
	return func(yield func(Out, error) bool) {
		s.run(ctx, opts, nil, nil, yield)
	}
}

// RunOnce runs the step over the single upstream row with the given id.
func (s *Step[In, Out]) RunOnce(ctx context.Context, id int64, write bool) iter.Seq2[Out, error] {
	return func(yield func(Out, error) bool) {
		var zero Out
		if s.cfg.Upstream == nil {
			yield(zero, fmt.Errorf("%w: step %s has no upstream table", ErrConfiguration, s.name))
			return
		}
		row, err := store.GetByID(ctx, s.cfg.Store, s.cfg.Upstream, id)
		if err != nil {
			yield(zero, err)
			return
		}
		s.run(ctx, RunOptions{Mode: types.ModeOnce, Write: write}, []In{row}, nil, yield)
	}
}

// Run drains RunAll and returns the run's counts.
func (s *Step[In, Out]) Run(ctx context.Context, opts RunOptions) (RunSummary, error) {
	var summary RunSummary
	var runErr error
	s.run(ctx, opts, nil, &summary, func(_ Out, err error) bool {
		runErr = err
		return err == nil
	})
	return summary, runErr
}

func (s *Step[In, Out]) run(ctx context.Context, opts RunOptions, rows []In, summary *RunSummary, yield func(Out, error) bool) {
	var zero Out
	mode := opts.Mode
	if mode == "" {
		mode = types.ModeAll
	}

	ctx, span := s.tracer.Start(ctx, "pipeline.step", trace.WithAttributes(
		attribute.String("step", s.name),
		attribute.String("mode", string(mode)),
		attribute.Bool("write", opts.Write),
	))
	defer span.End()

	fail := func(err error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.log.Error("step failed", "error", err)
		yield(zero, err)
	}

	if err := mode.Validate(); err != nil {
		fail(err)
		return
	}
	if mode.NeedsDownstream() && s.cfg.Upstream != nil && s.downstream() == "" {
		fail(fmt.Errorf("%w: %s selection needs a downstream table", ErrConfiguration, mode))
		return
	}
	if opts.Write && s.cfg.Downstream == nil {
		fail(fmt.Errorf("%w: step %s has no downstream table to write", ErrConfiguration, s.name))
		return
	}

	orderBy := opts.OrderBy
	if len(orderBy) == 0 {
		orderBy = s.cfg.OrderBy
	}
	query := store.Query{Mode: mode, Downstream: s.downstream(), OrderBy: orderBy}
	var readErr error
	var input iter.Seq[In]
	total := -1
	switch {
	case rows != nil:
		input = slices.Values(rows)
		total = len(rows)
	case s.cfg.Upstream == nil:
		input = func(func(In) bool) {}
	case mode == types.ModeOnce:
		fail(fmt.Errorf("%w: ONCE runs need an id, use RunOnce", ErrConfiguration))
		return
	default:
		total = s.count(ctx, query)
		input = s.read(ctx, query, &readErr)
	}
	span.SetAttributes(attribute.Int("total", total))
	s.log.Info("running step", "mode", mode, "write", opts.Write, "total", total)

	var sess *store.Session
	if opts.Write {
		var err error
		sess, err = s.cfg.Store.Begin(ctx, store.WriteOptions{
			PeriodicCommit: opts.PeriodicCommit,
			Duplicates:     s.duplicates(opts),
		}, s.cfg.Downstream.Tables()...)
		if err != nil {
			fail(err)
			return
		}
	}
	finish := func(commit bool) error {
		if sess == nil {
			return nil
		}
		if summary != nil {
			ws := sess.Summary()
			summary.Inserted, summary.Skipped, summary.Windows = ws.Inserted, ws.Skipped, ws.Windows
		}
		if !commit {
			return sess.Rollback()
		}
		err := sess.Commit()
		if summary != nil {
			summary.Windows = sess.Summary().Windows
		}
		return err
	}

	outputs := 0
	for out, err := range s.fn(ctx, input) {
		if readErr != nil {
			finish(false)
			fail(readErr)
			return
		}
		if err != nil {
			finish(false)
			fail(&TransformError{Step: s.name, Err: err})
			return
		}
		if err := ctx.Err(); err != nil {
			finish(false)
			fail(err)
			return
		}

		if sess != nil {
			if err := s.cfg.Downstream.Write(sess, &out); err != nil {
				finish(false)
				fail(fmt.Errorf("step %s: writing output: %w", s.name, err))
				return
			}
			if err := sess.Done(); err != nil {
				finish(false)
				fail(fmt.Errorf("step %s: %w", s.name, err))
				return
			}
		}

		outputs++
		if summary != nil {
			summary.Outputs = outputs
		}
		if outputs%progressEvery == 0 {
			s.log.Debug("processing entry", "n", outputs, "total", total)
		}
		if !yield(out, nil) {
			if err := finish(true); err != nil {
				s.log.Error("committing after early stop", "error", err)
			}
			return
		}
	}
	if readErr != nil {
		finish(false)
		fail(readErr)
		return
	}

	if err := finish(true); err != nil {
		fail(fmt.Errorf("step %s: %w", s.name, err))
		return
	}
	span.SetAttributes(attribute.Int("outputs", outputs))
	s.log.Info("step finished", "outputs", outputs)
}

// count returns the number of rows the run will read, or -1 when counting
// fails. Counting is best-effort.
func (s *Step[In, Out]) count(ctx context.Context, q store.Query) int {
	n, err := s.cfg.Store.Count(ctx, s.cfg.Upstream.Schema, q)
	if err != nil {
		s.log.Warn("could not count upstream rows", "error", err)
		return -1
	}
	return n
}

// read adapts the upstream record stream to the transformation's input.
// A read failure ends the input and is reported through errp.
func (s *Step[In, Out]) read(ctx context.Context, q store.Query, errp *error) iter.Seq[In] {
	return func(yield func(In) bool) {
		for row, err := range store.Records(ctx, s.cfg.Store, s.cfg.Upstream, q) {
			if err != nil {
				*errp = fmt.Errorf("step %s: reading %s: %w", s.name, s.cfg.Upstream.Name, err)
				return
			}
			if !yield(row) {
				return
			}
		}
	}
}

// Drain consumes a run and returns the number of outputs.
func Drain[Out any](seq iter.Seq2[Out, error]) (int, error) {
	n := 0
	for _, err := range seq {
		if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
