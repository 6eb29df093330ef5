// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the scigraph CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/scigraph/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// envKeyReplacer maps config keys to environment names, e.g. store.driver
// to SCIGRAPH_STORE_DRIVER.
var envKeyReplacer = strings.NewReplacer(".", "_")

// rootCmd is the base command for the scigraph CLI.
var rootCmd = &cobra.Command{
	Use:   "scigraph",
	Short: "Incremental staging pipeline and graph loader for scientific articles",
	Long: `scigraph turns scientific articles into a versioned knowledge graph.

Each stage is a subcommand that reads its upstream table, runs one
transformation and writes the downstream table: ingest, summarize,
abbreviate, simplify, substitute, ner and triples. stage reshapes raw nodes
and edges into graph-ready rows and export merges them into Neo4j. run
chains every stage in order.

Stages select rows with --mode (ALL, FRESH, NEWER, ONCE) and only persist
their outputs with --write.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./scigraph.yaml or ~/.config/scigraph/config.yaml)")
	rootCmd.PersistentFlags().String("secrets-dir", ".secrets", "directory of secret files (postgres-password, neo4j-password)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("scigraph")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "scigraph"))
		}
	}

	setDefaults(viper.GetViper(), types.DefaultConfig())
	viper.SetEnvPrefix("SCIGRAPH")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// setDefaults registers every config key so that environment variables
// such as SCIGRAPH_STORE_DRIVER reach the decoded config.
func setDefaults(v *viper.Viper, cfg types.Config) {
	v.SetDefault("store.driver", string(cfg.Store.Driver))
	v.SetDefault("store.path", cfg.Store.Path)
	v.SetDefault("store.dsn", cfg.Store.DSN)
	v.SetDefault("store.password", "")
	v.SetDefault("store.busy_timeout", cfg.Store.BusyTimeout)

	v.SetDefault("graph.uri", cfg.Graph.URI)
	v.SetDefault("graph.user", cfg.Graph.User)
	v.SetDefault("graph.password", "")
	v.SetDefault("graph.database", cfg.Graph.Database)
	v.SetDefault("graph.import_dir", cfg.Graph.ImportDir)
	v.SetDefault("graph.batch_size", cfg.Graph.BatchSize)
	v.SetDefault("graph.timeout", cfg.Graph.Timeout)

	v.SetDefault("pipeline.version", cfg.Pipeline.Version)
	v.SetDefault("pipeline.periodic_commit", cfg.Pipeline.PeriodicCommit)
	v.SetDefault("pipeline.duplicates", cfg.Pipeline.Duplicates)

	v.SetDefault("collaborators.summarizer_image", cfg.Collaborators.SummarizerImage)
	v.SetDefault("collaborators.abbreviation_image", cfg.Collaborators.AbbreviationImage)
	v.SetDefault("collaborators.simplifier_image", cfg.Collaborators.SimplifierImage)
	v.SetDefault("collaborators.triple_image", cfg.Collaborators.TripleImage)
	v.SetDefault("collaborators.metamap_url", cfg.Collaborators.MetaMapURL)
	v.SetDefault("collaborators.metamap_version", cfg.Collaborators.MetaMapVersion)
	v.SetDefault("collaborators.http_timeout", cfg.Collaborators.HTTPTimeout)
	v.SetDefault("collaborators.user_agent", cfg.Collaborators.UserAgent)

	v.SetDefault("logging.mode", cfg.Logging.Mode)
	v.SetDefault("logging.level", cfg.Logging.Level)

	v.SetDefault("tracing.enabled", cfg.Tracing.Enabled)
	v.SetDefault("tracing.pretty", cfg.Tracing.Pretty)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
