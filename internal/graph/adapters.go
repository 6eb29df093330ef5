// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package graph

import (
	"context"
	"fmt"
	"iter"

	sq "github.com/Masterminds/squirrel"

	"github.com/pdiddy/scigraph/internal/store"
	"github.com/pdiddy/scigraph/pkg/types"
)

// Adapter maps one staging table onto CSV rows and the MERGE statement that
// consumes them. The statement sees each CSV row as `row`, the load date as
// $date_added and the writer version as $version.
type Adapter struct {
	Name    string
	Columns []string
	Merge   string
	rows    func(ctx context.Context, version string) iter.Seq2[[]string, error]
}

// tableAdapter reads every row of tbl matching where.
func tableAdapter[T any](name string, tbl *store.Table[T], where sq.Sqlizer, columns []string, merge string,
	format func(row T, version string) []string) func(s *store.Store) Adapter {
	return func(s *store.Store) Adapter {
		return Adapter{
			Name:    name,
			Columns: columns,
			Merge:   merge,
			rows: func(ctx context.Context, version string) iter.Seq2[[]string, error] {
				return func(yield func([]string, error) bool) {
					for row, err := range store.Records(ctx, s, tbl, store.Query{Where: where}) {
						if err != nil {
							yield(nil, err)
							return
						}
						if !yield(format(row, version), nil) {
							return
						}
					}
				}
			},
		}
	}
}

func versionOr(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

var conceptAdapter = tableAdapter("concept", store.ConceptNodes, nil,
	[]string{"cui", "name", "version"},
	`MERGE (a:concept {cui: row.cui})
SET a.name = row.name, a.date_added = date($date_added), a.version = row.version`,
	func(c types.ConceptNode, version string) []string {
		return []string{c.CUI, c.Name, versionOr(c.Version, version)}
	})

var synonymAdapter = tableAdapter("synonym", store.SynonymNodes, nil,
	[]string{"cui", "name", "version"},
	`MERGE (a:synonym {cui: row.cui, name: row.name})
SET a.date_added = date($date_added), a.version = row.version`,
	func(s types.SynonymNode, version string) []string {
		return []string{s.CUI, s.Name, versionOr(s.Version, version)}
	})

var predicateColumns = []string{"cui_left", "cui_right", "doi", "name", "summary", "conclusion", "version"}

func predicateAdapter(edgeType string) func(s *store.Store) Adapter {
	merge := fmt.Sprintf(`MATCH (a:concept {cui: row.cui_left}), (b:concept {cui: row.cui_right})
MERGE (a)-[r:%s {doi: row.doi}]->(b)
SET r.name = row.name, r.summary = row.summary, r.conclusion = row.conclusion,
    r.date_added = date($date_added), r.version = row.version`, edgeType)
	return tableAdapter(edgeType, store.PredicateEdges, sq.Eq{"edge_type": edgeType}, predicateColumns, merge,
		func(e types.PredicateEdge, version string) []string {
			return []string{e.CUILeft, e.CUIRight, e.DOI, e.Name, e.Summary, e.Conclusion, versionOr(e.Version, version)}
		})
}

// linkSynonyms connects every synonym to the concept sharing its cui.
const linkSynonyms = `MATCH (a:synonym), (b:concept) WHERE a.cui = b.cui
MERGE (a)-[r:` + types.EdgeSynonym + `]->(b)`

// schemaStatements back the MERGE keys with constraints and indexes.
var schemaStatements = []string{
	`CREATE CONSTRAINT concept_cui IF NOT EXISTS FOR (c:concept) REQUIRE c.cui IS UNIQUE`,
	`CREATE INDEX synonym_cui_name IF NOT EXISTS FOR (s:synonym) ON (s.cui, s.name)`,
	`CREATE INDEX synonym_cui IF NOT EXISTS FOR (s:synonym) ON (s.cui)`,
}
