// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/scigraph/internal/pipeline"
	"github.com/pdiddy/scigraph/internal/staging"
	"github.com/pdiddy/scigraph/internal/transform"
	"github.com/pdiddy/scigraph/pkg/types"
)

// addRunFlags registers the flags shared by every command that runs steps.
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("mode", string(types.ModeFresh), "row selection: ALL, FRESH or NEWER (ONCE on single stages)")
	cmd.Flags().Bool("write", false, "persist outputs (without it the run is a dry run)")
	cmd.Flags().String("duplicates", "", "duplicate policy: raise or skip (default per step, then from config)")
	cmd.Flags().Int("periodic-commit", 0, "outputs per commit window (default from config)")
}

// runOptions reads the run flags. A --duplicates flag overrides every step;
// without it steps keep their own policy and the configured one is the
// fallback.
func runOptions(cmd *cobra.Command, cfg types.PipelineConfig) (pipeline.RunOptions, error) {
	var opts pipeline.RunOptions

	raw, _ := cmd.Flags().GetString("mode")
	mode, err := types.ParseRunMode(raw)
	if err != nil {
		return opts, err
	}
	fallback, err := types.ParseDuplicates(cfg.Duplicates)
	if err != nil {
		return opts, fmt.Errorf("pipeline.duplicates: %w", err)
	}
	var duplicates types.Duplicates
	if dup, _ := cmd.Flags().GetString("duplicates"); dup != "" {
		if duplicates, err = types.ParseDuplicates(dup); err != nil {
			return opts, err
		}
	}
	commit, _ := cmd.Flags().GetInt("periodic-commit")
	if commit <= 0 {
		commit = cfg.PeriodicCommit
	}
	write, _ := cmd.Flags().GetBool("write")

	return pipeline.RunOptions{
		Mode:              mode,
		Write:             write,
		Duplicates:        duplicates,
		DefaultDuplicates: fallback,
		PeriodicCommit:    commit,
	}, nil
}

// workflowOptions reads the run flags of commands that chain steps. An id
// names a row of one upstream table only, so ONCE is rejected.
func workflowOptions(cmd *cobra.Command, cfg types.PipelineConfig) (pipeline.RunOptions, error) {
	opts, err := runOptions(cmd, cfg)
	if err != nil {
		return opts, err
	}
	if opts.Mode == types.ModeOnce {
		return opts, fmt.Errorf("%s runs several steps: --mode ONCE is only available on single stage commands", cmd.Name())
	}
	return opts, nil
}

// stageCommand builds a command that runs one pipeline step.
func stageCommand[In, Out any](use, short, long string, needRuntime bool,
	build func(st transform.Steps, args []string) (*pipeline.Step[In, Out], error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer a.close(ctx)

			opts, err := runOptions(cmd, a.cfg.Pipeline)
			if err != nil {
				return err
			}
			st, err := a.steps(ctx, needRuntime)
			if err != nil {
				return err
			}
			step, err := build(st, args)
			if err != nil {
				return err
			}
			id, _ := cmd.Flags().GetInt64("id")
			return runStep(ctx, step, opts, id, os.Stdout)
		},
	}
	addRunFlags(cmd)
	cmd.Flags().Int64("id", 0, "upstream row id for --mode ONCE")
	return cmd
}

// runStep runs step and reports to w. Dry runs print every output as a
// JSON line.
func runStep[In, Out any](ctx context.Context, step *pipeline.Step[In, Out], opts pipeline.RunOptions, id int64, w io.Writer) error {
	if opts.Mode == types.ModeOnce {
		if id <= 0 {
			return fmt.Errorf("--mode ONCE needs --id")
		}
		return printOutputs(w, step.Name(), step.RunOnce(ctx, id, opts.Write), !opts.Write)
	}
	if !opts.Write {
		return printOutputs(w, step.Name(), step.RunAll(ctx, opts), true)
	}

	run, err := step.Run(ctx, opts)
	if err != nil {
		fmt.Fprintf(w, "failed  %s after %d outputs: %v\n", step.Name(), run.Outputs, err)
		return err
	}
	fmt.Fprintf(w, "done    %s: %d outputs, %d inserted, %d skipped, %d windows\n",
		step.Name(), run.Outputs, run.Inserted, run.Skipped, run.Windows)
	return nil
}

func printOutputs[Out any](w io.Writer, name string, seq iter.Seq2[Out, error], show bool) error {
	enc := json.NewEncoder(w)
	n := 0
	for out, err := range seq {
		if err != nil {
			fmt.Fprintf(w, "failed  %s after %d outputs: %v\n", name, n, err)
			return err
		}
		n++
		if show {
			if err := enc.Encode(out); err != nil {
				return err
			}
		}
	}
	fmt.Fprintf(w, "done    %s: %d outputs\n", name, n)
	return nil
}

var ingestCmd = stageCommand("ingest <index.csv>",
	"Add the articles listed in an index file",
	`Ingest reads an article index CSV into the articles table. The index has
either doi,uri columns or the PMC file list layout (DOI, PMCID). Relative
paths resolve against --base-dir, or the index's directory.`,
	false,
	func(st transform.Steps, args []string) (*pipeline.Step[types.Article, types.Article], error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("provide exactly one index file")
		}
		return st.Ingest(args[0], ingestBaseDir)
	})

var ingestBaseDir string

var summarizeCmd = stageCommand("summarize", "Summarize articles",
	`Summarize parses each article and sends its abstract, introduction and
conclusion through the summarizer image. Articles that cannot be parsed are
stored as failed summaries.`,
	true, func(st transform.Steps, _ []string) (*pipeline.Step[types.Article, types.Summary], error) {
		return st.Summarize()
	})

var abbreviateCmd = stageCommand("abbreviate", "Find abbreviations in article introductions",
	`Abbreviate runs the abbreviation finder image over each parsed article.`,
	true, func(st transform.Steps, _ []string) (*pipeline.Step[types.Article, types.Abbreviation], error) {
		return st.Abbreviate()
	})

var simplifyCmd = stageCommand("simplify", "Simplify summary conclusions",
	`Simplify strips boilerplate openings from each conclusion and runs the
simplifier image over it.`,
	true, func(st transform.Steps, _ []string) (*pipeline.Step[types.Summary, types.SimpleConclusion], error) {
		return st.Simplify()
	})

var substituteCmd = stageCommand("substitute", "Expand abbreviations in simplified conclusions",
	`Substitute replaces every abbreviation found for a conclusion's summary or
article with its meaning.`,
	false, func(st transform.Steps, _ []string) (*pipeline.Step[types.SimpleConclusion, types.Result[types.SimpleSubstitutedConclusion]], error) {
		return st.Substitute()
	})

var nerCmd = stageCommand("ner", "Link conclusions to UMLS concepts",
	`NER sends each substituted conclusion to a MetaMapLite annotate endpoint and
stores one named entity per matched concept.`,
	false, func(st transform.Steps, _ []string) (*pipeline.Step[types.SimpleSubstitutedConclusion, types.NamedEntity], error) {
		return st.NER()
	})

var triplesCmd = stageCommand("triples", "Extract nodes and edges from conclusions",
	`Triples runs the triple extractor image over each summary's latest
substituted conclusion and its named entities, writing raw nodes and edges.`,
	true, func(st transform.Steps, _ []string) (*pipeline.Step[types.Summary, types.NodesAndEdges], error) {
		return st.Triples()
	})

var stageCmd = &cobra.Command{
	Use:   "stage",
	Short: "Deduplicate raw nodes and edges into graph-ready rows",
	Long: `Stage groups raw nodes into concepts and synonyms and turns raw edges into
predicate edges carrying their article's provenance.`,
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
		wf, err := stagingWorkflow(a)
		if err != nil {
			return err
		}
		_, err = wf.Run(ctx, opts, os.Stdout)
		return err
	},
}

func stagingWorkflow(a *app) (pipeline.Workflow, error) {
	st := staging.Stager{Version: a.cfg.Pipeline.Version, Logger: a.log}
	nodes, err := st.NodeStep(a.store)
	if err != nil {
		return nil, err
	}
	edges, err := st.EdgeStep(a.store)
	if err != nil {
		return nil, err
	}
	return pipeline.Workflow{nodes, edges}, nil
}

func init() {
	ingestCmd.Flags().StringVar(&ingestBaseDir, "base-dir", "", "directory relative article paths resolve against")
	addRunFlags(stageCmd)

	for _, cmd := range []*cobra.Command{
		ingestCmd, summarizeCmd, abbreviateCmd, simplifyCmd, substituteCmd, nerCmd, triplesCmd, stageCmd,
	} {
		rootCmd.AddCommand(cmd)
	}
}
