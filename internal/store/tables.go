// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/pdiddy/scigraph/pkg/types"
)

// Ref declares that Column references rows of the Parent table. Refs drive
// the anti-joins of FRESH and NEWER selection.
type Ref struct {
	Column string
	Parent string
}

// Schema describes one table or view.
type Schema struct {
	Name string

	// Columns lists the stored columns in insert order, excluding id.
	Columns []string

	// Refs lists the foreign keys of this table.
	Refs []Ref

	// Base names the table whose ids a view exposes. Empty for tables.
	Base string
}

// HasColumn reports whether col is id or one of the schema's columns.
func (sc *Schema) HasColumn(col string) bool {
	return col == "id" || slices.Contains(sc.Columns, col)
}

// ReadOnly reports whether the schema is a view.
func (sc *Schema) ReadOnly() bool {
	return sc.Base != ""
}

func (sc *Schema) idTable() string {
	if sc.Base != "" {
		return sc.Base
	}
	return sc.Name
}

// refTo returns the column of sc that references parent.
func (sc *Schema) refTo(parent string) (string, bool) {
	for _, r := range sc.Refs {
		if r.Parent == parent {
			return r.Column, true
		}
	}
	return "", false
}

func (sc *Schema) selectColumns() []string {
	cols := make([]string, 0, len(sc.Columns)+1)
	cols = append(cols, sc.Name+".id")
	for _, c := range sc.Columns {
		cols = append(cols, sc.Name+"."+c)
	}
	return cols
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// Table binds a Schema to its record type.
type Table[T any] struct {
	*Schema

	scan   func(rowScanner) (T, error)
	values func(*T) []any
	id     func(*T) *int64
	dated  func(*T) *time.Time
	failed func(*T, string)
}

// MarkFailed records reason in the row's error column. It reports false when
// the table has no error column.
func (t *Table[T]) MarkFailed(row *T, reason string) bool {
	if t.failed == nil {
		return false
	}
	t.failed(row, reason)
	return true
}

// Tables, in dependency order.
var (
	Articles = &Table[types.Article]{
		Schema: &Schema{
			Name:    "articles",
			Columns: []string{"doi", "uri", "date_added"},
		},
		scan: func(sc rowScanner) (types.Article, error) {
			var r types.Article
			err := sc.Scan(&r.ID, &r.DOI, &r.URI, &r.DateAdded)
			return r, err
		},
		values: func(r *types.Article) []any { return []any{r.DOI, r.URI, r.DateAdded} },
		id:     func(r *types.Article) *int64 { return &r.ID },
		dated:  func(r *types.Article) *time.Time { return &r.DateAdded },
	}

	Summaries = &Table[types.Summary]{
		Schema: &Schema{
			Name:    "summaries",
			Columns: []string{"article_id", "summary", "conclusion", "version", "error", "date_added"},
			Refs:    []Ref{{"article_id", "articles"}},
		},
		scan: func(sc rowScanner) (types.Summary, error) {
			var r types.Summary
			err := sc.Scan(&r.ID, &r.ArticleID, &r.Summary, &r.Conclusion, &r.Version, &r.Error, &r.DateAdded)
			return r, err
		},
		values: func(r *types.Summary) []any {
			return []any{r.ArticleID, r.Summary, r.Conclusion, r.Version, r.Error, r.DateAdded}
		},
		id:     func(r *types.Summary) *int64 { return &r.ID },
		dated:  func(r *types.Summary) *time.Time { return &r.DateAdded },
		failed: func(r *types.Summary, reason string) { r.Error = reason },
	}

	Abbreviations = &Table[types.Abbreviation]{
		Schema: &Schema{
			Name:    "abbreviations",
			Columns: []string{"article_id", "summary_id", "abbreviation", "meaning", "date_added"},
			Refs:    []Ref{{"article_id", "articles"}, {"summary_id", "summaries"}},
		},
		scan: func(sc rowScanner) (types.Abbreviation, error) {
			var r types.Abbreviation
			var articleID, summaryID sql.NullInt64
			if err := sc.Scan(&r.ID, &articleID, &summaryID, &r.Abbreviation, &r.Meaning, &r.DateAdded); err != nil {
				return r, err
			}
			r.ArticleID = fromNull(articleID)
			r.SummaryID = fromNull(summaryID)
			return r, nil
		},
		values: func(r *types.Abbreviation) []any {
			return []any{toNull(r.ArticleID), toNull(r.SummaryID), r.Abbreviation, r.Meaning, r.DateAdded}
		},
		id:    func(r *types.Abbreviation) *int64 { return &r.ID },
		dated: func(r *types.Abbreviation) *time.Time { return &r.DateAdded },
	}

	SimpleConclusions = &Table[types.SimpleConclusion]{
		Schema: &Schema{
			Name:    "simple_conclusions",
			Columns: []string{"summary_id", "conclusion", "version", "error", "date_added"},
			Refs:    []Ref{{"summary_id", "summaries"}},
		},
		scan: func(sc rowScanner) (types.SimpleConclusion, error) {
			var r types.SimpleConclusion
			err := sc.Scan(&r.ID, &r.SummaryID, &r.Conclusion, &r.Version, &r.Error, &r.DateAdded)
			return r, err
		},
		values: func(r *types.SimpleConclusion) []any {
			return []any{r.SummaryID, r.Conclusion, r.Version, r.Error, r.DateAdded}
		},
		id:     func(r *types.SimpleConclusion) *int64 { return &r.ID },
		dated:  func(r *types.SimpleConclusion) *time.Time { return &r.DateAdded },
		failed: func(r *types.SimpleConclusion, reason string) { r.Error = reason },
	}

	SimpleSubstitutedConclusions = &Table[types.SimpleSubstitutedConclusion]{
		Schema: &Schema{
			Name:    "simple_substituted_conclusions",
			Columns: []string{"simple_conclusion_id", "summary_id", "conclusion", "version", "error", "date_added"},
			Refs:    []Ref{{"simple_conclusion_id", "simple_conclusions"}, {"summary_id", "summaries"}},
		},
		scan: func(sc rowScanner) (types.SimpleSubstitutedConclusion, error) {
			var r types.SimpleSubstitutedConclusion
			err := sc.Scan(&r.ID, &r.SimpleConclusionID, &r.SummaryID, &r.Conclusion, &r.Version, &r.Error, &r.DateAdded)
			return r, err
		},
		values: func(r *types.SimpleSubstitutedConclusion) []any {
			return []any{r.SimpleConclusionID, r.SummaryID, r.Conclusion, r.Version, r.Error, r.DateAdded}
		},
		id:     func(r *types.SimpleSubstitutedConclusion) *int64 { return &r.ID },
		dated:  func(r *types.SimpleSubstitutedConclusion) *time.Time { return &r.DateAdded },
		failed: func(r *types.SimpleSubstitutedConclusion, reason string) { r.Error = reason },
	}

	NamedEntities = &Table[types.NamedEntity]{
		Schema: &Schema{
			Name:    "named_entities",
			Columns: []string{"ss_conclusion_id", "matched_term", "preferred_term", "cui", "source_version", "date_added"},
			Refs:    []Ref{{"ss_conclusion_id", "simple_substituted_conclusions"}},
		},
		scan: func(sc rowScanner) (types.NamedEntity, error) {
			var r types.NamedEntity
			err := sc.Scan(&r.ID, &r.SSConclusionID, &r.MatchedTerm, &r.PreferredTerm, &r.CUI, &r.SourceVersion, &r.DateAdded)
			return r, err
		},
		values: func(r *types.NamedEntity) []any {
			return []any{r.SSConclusionID, r.MatchedTerm, r.PreferredTerm, r.CUI, r.SourceVersion, r.DateAdded}
		},
		id:    func(r *types.NamedEntity) *int64 { return &r.ID },
		dated: func(r *types.NamedEntity) *time.Time { return &r.DateAdded },
	}

	Nodes = &Table[types.Node]{
		Schema: &Schema{
			Name:    "nodes",
			Columns: []string{"summary_id", "node_type", "cui_or_name", "matched", "preferred", "attributes", "date_added"},
			Refs:    []Ref{{"summary_id", "summaries"}},
		},
		scan: func(sc rowScanner) (types.Node, error) {
			var r types.Node
			var attrs string
			if err := sc.Scan(&r.ID, &r.SummaryID, &r.NodeType, &r.CUIOrName, &r.Matched, &r.Preferred, &attrs, &r.DateAdded); err != nil {
				return r, err
			}
			return r, decodeAttributes(attrs, &r.Attributes)
		},
		values: func(r *types.Node) []any {
			return []any{r.SummaryID, r.NodeType, r.CUIOrName, r.Matched, r.Preferred, encodeAttributes(r.Attributes), r.DateAdded}
		},
		id:    func(r *types.Node) *int64 { return &r.ID },
		dated: func(r *types.Node) *time.Time { return &r.DateAdded },
	}

	Edges = &Table[types.Edge]{
		Schema: &Schema{
			Name:    "edges",
			Columns: []string{"summary_id", "node_left", "node_right", "edge_type", "attributes", "date_added"},
			Refs:    []Ref{{"summary_id", "summaries"}},
		},
		scan: func(sc rowScanner) (types.Edge, error) {
			var r types.Edge
			var attrs string
			if err := sc.Scan(&r.ID, &r.SummaryID, &r.NodeLeft, &r.NodeRight, &r.EdgeType, &attrs, &r.DateAdded); err != nil {
				return r, err
			}
			return r, decodeAttributes(attrs, &r.Attributes)
		},
		values: func(r *types.Edge) []any {
			return []any{r.SummaryID, r.NodeLeft, r.NodeRight, r.EdgeType, encodeAttributes(r.Attributes), r.DateAdded}
		},
		id:    func(r *types.Edge) *int64 { return &r.ID },
		dated: func(r *types.Edge) *time.Time { return &r.DateAdded },
	}

	// EdgeContexts is a read-only view of edges joined with their summary
	// and article. Its ids are edge ids.
	EdgeContexts = &Table[types.EdgeContext]{
		Schema: &Schema{
			Name:    "edge_contexts",
			Columns: []string{"summary_id", "node_left", "node_right", "edge_type", "attributes", "date_added", "doi", "summary", "conclusion"},
			Base:    "edges",
		},
		scan: func(sc rowScanner) (types.EdgeContext, error) {
			var r types.EdgeContext
			var attrs string
			if err := sc.Scan(&r.ID, &r.SummaryID, &r.NodeLeft, &r.NodeRight, &r.EdgeType, &attrs, &r.DateAdded,
				&r.DOI, &r.Summary, &r.Conclusion); err != nil {
				return r, err
			}
			return r, decodeAttributes(attrs, &r.Attributes)
		},
		id: func(r *types.EdgeContext) *int64 { return &r.ID },
	}

	ConceptNodes = &Table[types.ConceptNode]{
		Schema: &Schema{
			Name:    "concept_nodes",
			Columns: []string{"node_id", "cui", "name", "version", "date_added"},
			Refs:    []Ref{{"node_id", "nodes"}},
		},
		scan: func(sc rowScanner) (types.ConceptNode, error) {
			var r types.ConceptNode
			err := sc.Scan(&r.ID, &r.NodeID, &r.CUI, &r.Name, &r.Version, &r.DateAdded)
			return r, err
		},
		values: func(r *types.ConceptNode) []any { return []any{r.NodeID, r.CUI, r.Name, r.Version, r.DateAdded} },
		id:     func(r *types.ConceptNode) *int64 { return &r.ID },
		dated:  func(r *types.ConceptNode) *time.Time { return &r.DateAdded },
	}

	SynonymNodes = &Table[types.SynonymNode]{
		Schema: &Schema{
			Name:    "synonym_nodes",
			Columns: []string{"node_id", "cui", "name", "version", "date_added"},
			Refs:    []Ref{{"node_id", "nodes"}},
		},
		scan: func(sc rowScanner) (types.SynonymNode, error) {
			var r types.SynonymNode
			err := sc.Scan(&r.ID, &r.NodeID, &r.CUI, &r.Name, &r.Version, &r.DateAdded)
			return r, err
		},
		values: func(r *types.SynonymNode) []any { return []any{r.NodeID, r.CUI, r.Name, r.Version, r.DateAdded} },
		id:     func(r *types.SynonymNode) *int64 { return &r.ID },
		dated:  func(r *types.SynonymNode) *time.Time { return &r.DateAdded },
	}

	SynonymEdges = &Table[types.SynonymEdge]{
		Schema: &Schema{
			Name:    "synonym_edges",
			Columns: []string{"node_left", "node_right", "date_added"},
			Refs:    []Ref{{"node_left", "nodes"}},
		},
		scan: func(sc rowScanner) (types.SynonymEdge, error) {
			var r types.SynonymEdge
			err := sc.Scan(&r.ID, &r.NodeLeft, &r.NodeRight, &r.DateAdded)
			return r, err
		},
		values: func(r *types.SynonymEdge) []any { return []any{r.NodeLeft, r.NodeRight, r.DateAdded} },
		id:     func(r *types.SynonymEdge) *int64 { return &r.ID },
		dated:  func(r *types.SynonymEdge) *time.Time { return &r.DateAdded },
	}

	PredicateEdges = &Table[types.PredicateEdge]{
		Schema: &Schema{
			Name:    "predicate_edges",
			Columns: []string{"edge_id", "edge_type", "name", "doi", "summary", "conclusion", "cui_left", "cui_right", "version", "date_added"},
			Refs:    []Ref{{"edge_id", "edges"}},
		},
		scan: func(sc rowScanner) (types.PredicateEdge, error) {
			var r types.PredicateEdge
			err := sc.Scan(&r.ID, &r.EdgeID, &r.EdgeType, &r.Name, &r.DOI, &r.Summary, &r.Conclusion,
				&r.CUILeft, &r.CUIRight, &r.Version, &r.DateAdded)
			return r, err
		},
		values: func(r *types.PredicateEdge) []any {
			return []any{r.EdgeID, r.EdgeType, r.Name, r.DOI, r.Summary, r.Conclusion, r.CUILeft, r.CUIRight, r.Version, r.DateAdded}
		},
		id:    func(r *types.PredicateEdge) *int64 { return &r.ID },
		dated: func(r *types.PredicateEdge) *time.Time { return &r.DateAdded },
	}

	Log = &Table[types.LogEntry]{
		Schema: &Schema{
			Name:    "log",
			Columns: []string{"table_name", "last_processed_id", "timestamp"},
		},
		scan: func(sc rowScanner) (types.LogEntry, error) {
			var r types.LogEntry
			err := sc.Scan(&r.ID, &r.TableName, &r.LastProcessedID, &r.Timestamp)
			return r, err
		},
		values: func(r *types.LogEntry) []any { return []any{r.TableName, r.LastProcessedID, r.Timestamp} },
		id:     func(r *types.LogEntry) *int64 { return &r.ID },
		dated:  func(r *types.LogEntry) *time.Time { return &r.Timestamp },
	}
)

// schemas is the registry of every table and view, in dependency order.
var schemas = []*Schema{
	Articles.Schema,
	Summaries.Schema,
	Abbreviations.Schema,
	SimpleConclusions.Schema,
	SimpleSubstitutedConclusions.Schema,
	NamedEntities.Schema,
	Nodes.Schema,
	Edges.Schema,
	EdgeContexts.Schema,
	ConceptNodes.Schema,
	SynonymNodes.Schema,
	SynonymEdges.Schema,
	PredicateEdges.Schema,
	Log.Schema,
}

// Schemas returns every registered table and view in dependency order.
func Schemas() []*Schema {
	return slices.Clone(schemas)
}

// Lookup finds a registered table or view by name.
func Lookup(name string) (*Schema, error) {
	for _, sc := range schemas {
		if sc.Name == name {
			return sc, nil
		}
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownTable, name)
}

func toNull(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func fromNull(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func encodeAttributes(attrs map[string]string) string {
	if len(attrs) == 0 {
		return "{}"
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func decodeAttributes(raw string, dst *map[string]string) error {
	if raw == "" || raw == "{}" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("decoding attributes: %w", err)
	}
	return nil
}
