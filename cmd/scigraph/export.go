// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/scigraph/internal/graph"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Merge staged concepts, synonyms and predicates into Neo4j",
	Long: `Export loads concept_nodes, synonym_nodes and predicate_edges into the
graph in batches of CSV files placed in the server's import directory, then
links every synonym to its concept. Nodes and relationships are merged by
key, so repeated exports do not duplicate anything.

Without --write the MERGE statements are logged instead of executed and no
graph connection is needed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		defer a.close(ctx)

		write, _ := cmd.Flags().GetBool("write")
		return exportGraph(ctx, a, write, os.Stdout)
	},
}

// exportGraph runs the graph writer over the staged tables.
func exportGraph(ctx context.Context, a *app, write bool, w io.Writer) error {
	cfg := graph.WriterConfig{
		Version:   a.cfg.Pipeline.Version,
		ImportDir: a.cfg.Graph.ImportDir,
		BatchSize: a.cfg.Graph.BatchSize,
		Logger:    a.log,
	}

	var g graph.Store
	if write {
		neo, err := graph.Open(ctx, a.cfg.Graph, a.log)
		if err != nil {
			return err
		}
		defer neo.Close(ctx)
		g = neo
	} else if cfg.ImportDir == "" {
		cfg.ImportDir = os.TempDir()
	}

	writer := graph.NewWriter(a.store, g, cfg)
	if write {
		writer.EnsureSchema(ctx)
	}

	nodes, err := writer.AddNodes(ctx, write)
	printLoadStats(w, nodes)
	if err != nil {
		return err
	}
	edges, err := writer.AddEdges(ctx, write)
	printLoadStats(w, edges)
	return err
}

func printLoadStats(w io.Writer, stats []graph.LoadStats) {
	for _, s := range stats {
		fmt.Fprintf(w, "loaded  %-8s %d rows in %d batches\n", s.Adapter, s.Rows, s.Batches)
	}
}

func init() {
	exportCmd.Flags().Bool("write", false, "execute the MERGE statements (without it the export is a dry run)")
	rootCmd.AddCommand(exportCmd)
}
