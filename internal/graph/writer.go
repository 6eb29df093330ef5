// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package graph

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pdiddy/scigraph/internal/logging"
	"github.com/pdiddy/scigraph/internal/store"
	"github.com/pdiddy/scigraph/pkg/types"
)

const tracerName = "github.com/pdiddy/scigraph/internal/graph"

// DefaultBatchSize is the number of rows per CSV import.
const DefaultBatchSize = 5000

// DateFormat is the layout of the $date_added parameter.
const DateFormat = "2006-01-02"

// BatchError reports a failed import. Batches before Batch were committed.
type BatchError struct {
	Adapter string
	Batch   int
	Rows    int
	Err     error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("graph: %s batch %d (%d rows): %v", e.Adapter, e.Batch, e.Rows, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// WriterConfig configures a Writer.
type WriterConfig struct {
	// Version is stamped on rows that carry none.
	Version string

	// Now supplies the load date. Defaults to time.Now.
	Now func() time.Time

	// ImportDir overrides the graph's import directory. Required for dry
	// runs without a graph connection.
	ImportDir string

	BatchSize int
	Logger    *logging.Logger
	Tracer    trace.Tracer
}

// LoadStats counts what one adapter sent to the graph.
type LoadStats struct {
	Adapter string
	Rows    int
	Batches int
}

// Writer loads staged rows into the graph in batches.
type Writer struct {
	rel    *store.Store
	graph  Store
	cfg    WriterConfig
	log    *logging.Logger
	tracer trace.Tracer
}

// NewWriter builds a Writer reading from rel and loading into g. g may be
// nil when every load is a dry run and cfg.ImportDir is set.
func NewWriter(rel *store.Store, g Store, cfg WriterConfig) *Writer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Writer{
		rel:    rel,
		graph:  g,
		cfg:    cfg,
		log:    logging.OrNop(cfg.Logger).With("component", "graph-writer"),
		tracer: tracer,
	}
}

// EnsureSchema creates the constraints and indexes backing the merge keys.
// Failures are logged and ignored.
func (w *Writer) EnsureSchema(ctx context.Context) {
	if w.graph == nil {
		return
	}
	for _, stmt := range schemaStatements {
		if _, err := w.graph.Query(ctx, stmt, nil, ShapeList); err != nil {
			w.log.Warn("schema statement failed", "statement", stmt, "error", err)
		}
	}
}

// AddNodes merges concept nodes, then synonym nodes.
func (w *Writer) AddNodes(ctx context.Context, write bool) ([]LoadStats, error) {
	return w.loadAll(ctx, write, conceptAdapter(w.rel), synonymAdapter(w.rel))
}

// AddEdges merges _VERB and _REL edges between concepts, then links every
// synonym to its concept. Concepts must already be loaded.
func (w *Writer) AddEdges(ctx context.Context, write bool) ([]LoadStats, error) {
	stats, err := w.loadAll(ctx, write, predicateAdapter(types.EdgeVerb)(w.rel), predicateAdapter(types.EdgeRel)(w.rel))
	if err != nil {
		return stats, err
	}
	if !write {
		w.log.Info("dry run", "statement", linkSynonyms)
		return stats, nil
	}
	if _, err := w.graph.Query(ctx, linkSynonyms, nil, ShapeList); err != nil {
		return stats, fmt.Errorf("graph: linking synonyms: %w", err)
	}
	return stats, nil
}

// loadAll loads the adapters in order. Their batch files share one
// directory, removed when the last adapter is done.
func (w *Writer) loadAll(ctx context.Context, write bool, adapters ...Adapter) ([]LoadStats, error) {
	if write && w.graph == nil {
		return nil, errNoGraph
	}
	dir, cleanup, err := w.batchDir(ctx)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	var all []LoadStats
	for _, a := range adapters {
		st, err := w.load(ctx, a, write, dir)
		all = append(all, st)
		if err != nil {
			return all, err
		}
	}
	return all, nil
}

var errNoGraph = errors.New("graph: write requested without a graph connection")

// batchDir creates a directory for batch files inside the import directory.
func (w *Writer) batchDir(ctx context.Context) (string, func(), error) {
	base, err := w.importDir(ctx)
	if err != nil {
		return "", nil, err
	}
	dir, err := os.MkdirTemp(base, "scigraph-")
	if err != nil {
		return "", nil, fmt.Errorf("graph: creating batch directory: %w", err)
	}
	return dir, func() { os.RemoveAll(dir) }, nil
}

func (w *Writer) importDir(ctx context.Context) (string, error) {
	if w.cfg.ImportDir != "" {
		return w.cfg.ImportDir, nil
	}
	if w.graph == nil {
		return "", errors.New("graph: no import directory and no graph connection")
	}
	return w.graph.ImportDir(ctx)
}

// Load streams the adapter's rows into CSV batches and runs the MERGE
// statement once per batch. Batch files are removed after use. When write is
// false the statements are logged instead of executed.
func (w *Writer) Load(ctx context.Context, a Adapter, write bool) (LoadStats, error) {
	stats, err := w.loadAll(ctx, write, a)
	if len(stats) == 0 {
		return LoadStats{Adapter: a.Name}, err
	}
	return stats[0], err
}

func (w *Writer) load(ctx context.Context, a Adapter, write bool, tmp string) (stats LoadStats, err error) {
	stats.Adapter = a.Name
	ctx, span := w.tracer.Start(ctx, "graph.load", trace.WithAttributes(
		attribute.String("adapter", a.Name),
		attribute.Bool("write", write),
		attribute.Int("batch_size", w.cfg.BatchSize),
	))
	defer func() {
		span.SetAttributes(attribute.Int("rows", stats.Rows), attribute.Int("batches", stats.Batches))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	params := map[string]any{
		"date_added": w.cfg.Now().UTC().Format(DateFormat),
		"version":    w.cfg.Version,
	}

	batch := make([][]string, 0, w.cfg.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		stats.Batches++
		if err := w.loadBatch(ctx, a, tmp, batch, params, write); err != nil {
			return &BatchError{Adapter: a.Name, Batch: stats.Batches, Rows: len(batch), Err: err}
		}
		stats.Rows += len(batch)
		w.log.Debug("batch loaded", "adapter", a.Name, "batch", stats.Batches, "rows", len(batch))
		batch = batch[:0]
		return nil
	}

	for row, rerr := range a.rows(ctx, w.cfg.Version) {
		if rerr != nil {
			return stats, fmt.Errorf("graph: reading %s rows: %w", a.Name, rerr)
		}
		batch = append(batch, row)
		if len(batch) >= w.cfg.BatchSize {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}
	if err := flush(); err != nil {
		return stats, err
	}

	w.log.Info("adapter loaded", "adapter", a.Name, "rows", stats.Rows, "batches", stats.Batches, "write", write)
	return stats, nil
}

func (w *Writer) loadBatch(ctx context.Context, a Adapter, dir string, rows [][]string, params map[string]any, write bool) error {
	name := "batch-" + uuid.NewString() + ".csv"
	path := filepath.Join(dir, name)
	if err := writeCSV(path, a.Columns, rows); err != nil {
		return err
	}
	defer os.Remove(path)

	stmt := fmt.Sprintf("LOAD CSV WITH HEADERS FROM 'file:///%s/%s' AS row\n%s", filepath.Base(dir), name, a.Merge)
	if !write {
		w.log.Info("dry run", "adapter", a.Name, "rows", len(rows), "statement", stmt)
		return nil
	}
	_, err := w.graph.Query(ctx, stmt, params, ShapeList)
	return err
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("graph: creating batch file: %w", err)
	}
	cw := csv.NewWriter(f)
	if err := cw.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("graph: writing batch file: %w", err)
	}
	if err := cw.WriteAll(rows); err != nil {
		f.Close()
		return fmt.Errorf("graph: writing batch file: %w", err)
	}
	return f.Close()
}
