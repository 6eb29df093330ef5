// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/scigraph/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every stage in order",
	Long: `Run chains summarize, abbreviate, simplify, substitute, ner, triples and
both staging steps with the same options. With --index the articles of that
index are ingested first; with --export the staged rows are merged into the
graph afterwards. The run stops at the first failing stage.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		defer a.close(ctx)

		opts, err := workflowOptions(cmd, a.cfg.Pipeline)
		if err != nil {
			return err
		}
		st, err := a.steps(ctx, true)
		if err != nil {
			return err
		}
		if err := st.CheckImages(ctx); err != nil {
			return err
		}

		var wf pipeline.Workflow
		if index, _ := cmd.Flags().GetString("index"); index != "" {
			base, _ := cmd.Flags().GetString("base-dir")
			ingest, err := st.Ingest(index, base)
			if err != nil {
				return err
			}
			wf = append(wf, ingest)
		}
		for _, build := range []func() (pipeline.Runner, error){
			func() (pipeline.Runner, error) { return st.Summarize() },
			func() (pipeline.Runner, error) { return st.Abbreviate() },
			func() (pipeline.Runner, error) { return st.Simplify() },
			func() (pipeline.Runner, error) { return st.Substitute() },
			func() (pipeline.Runner, error) { return st.NER() },
			func() (pipeline.Runner, error) { return st.Triples() },
		} {
			step, err := build()
			if err != nil {
				return err
			}
			wf = append(wf, step)
		}
		staged, err := stagingWorkflow(a)
		if err != nil {
			return err
		}
		wf = append(wf, staged...)

		summary, err := wf.Run(ctx, opts, os.Stdout)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "%d outputs across %d steps\n", summary.Total(), len(summary.Steps))

		if export, _ := cmd.Flags().GetBool("export"); export {
			return exportGraph(ctx, a, opts.Write, os.Stdout)
		}
		return nil
	},
}

func init() {
	addRunFlags(runCmd)
	runCmd.Flags().String("index", "", "article index to ingest before the other stages")
	runCmd.Flags().String("base-dir", "", "directory relative article paths resolve against")
	runCmd.Flags().Bool("export", false, "merge staged rows into the graph after staging")
	rootCmd.AddCommand(runCmd)
}
