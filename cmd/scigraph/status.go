// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/scigraph/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show row counts and the checkpoint ledger of every table",
	Long: `Status prints, for every staging table, the number of rows and the last
checkpoint written to it. Use --format yaml or json for machine-readable
output.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		defer a.close(ctx)

		format, _ := cmd.Flags().GetString("format")
		return printStatus(ctx, a.store, format, os.Stdout)
	},
}

func printStatus(ctx context.Context, s *store.Store, format string, w io.Writer) error {
	switch strings.ToLower(format) {
	case "yaml":
		return s.ExportYAML(ctx, w)
	case "json":
		return s.ExportJSON(ctx, w)
	case "", "text":
	default:
		return fmt.Errorf("unknown format %q: use text, yaml or json", format)
	}

	status, err := s.Status(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%-32s  %8s  %12s  %s\n", "Table", "Rows", "Checkpoint", "At")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, st := range status {
		at := "-"
		if st.LastCheckpoint != nil {
			at = st.LastCheckpoint.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%-32s  %8d  %12d  %s\n", st.Table, st.Rows, st.LastProcessedID, at)
	}
	return nil
}

func init() {
	statusCmd.Flags().String("format", "text", "output format: text, yaml or json")
	rootCmd.AddCommand(statusCmd)
}
