// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/scigraph/internal/article"
	"github.com/pdiddy/scigraph/internal/container"
	"github.com/pdiddy/scigraph/internal/logging"
	"github.com/pdiddy/scigraph/internal/secrets"
	"github.com/pdiddy/scigraph/internal/store"
	"github.com/pdiddy/scigraph/internal/transform"
	"github.com/pdiddy/scigraph/pkg/types"
)

// app holds what every command needs: config, logger and the staging store.
type app struct {
	cfg      types.Config
	log      *logging.Logger
	store    *store.Store
	shutdown func(context.Context) error
}

// loadConfig decodes viper settings over the defaults and fills passwords
// from the secrets directory.
func loadConfig(cmd *cobra.Command, log *logging.Logger) (types.Config, error) {
	cfg := types.DefaultConfig()
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding config: %w", err)
	}

	dir, _ := cmd.Flags().GetString("secrets-dir")
	s, err := secrets.Load(dir, log)
	if err != nil {
		return cfg, err
	}
	secrets.Apply(&cfg, s)
	return cfg, nil
}

func newApp(cmd *cobra.Command) (*app, error) {
	ctx := cmd.Context()

	// The logger is built from the raw settings first so that config and
	// secret loading can log.
	log, err := logging.New(viper.GetString("logging.mode"), viper.GetString("logging.level"))
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(cmd, log)
	if err != nil {
		return nil, err
	}
	log = log.With("run_id", uuid.NewString())

	shutdown, err := initTracing(ctx, cfg.Tracing, log)
	if err != nil {
		return nil, err
	}

	s, err := store.Open(cfg.Store)
	if err != nil {
		shutdown(ctx)
		return nil, err
	}
	log.Debug("store opened", "driver", s.Driver())
	return &app{cfg: cfg, log: log, store: s, shutdown: shutdown}, nil
}

func (a *app) close(ctx context.Context) {
	if err := a.store.Close(); err != nil {
		a.log.Warn("closing store", "error", err)
	}
	if err := a.shutdown(ctx); err != nil {
		a.log.Warn("flushing traces", "error", err)
	}
	a.log.Sync()
}

// steps builds the stage constructors. The container runtime is only
// detected when a stage needs one.
func (a *app) steps(ctx context.Context, needRuntime bool) (transform.Steps, error) {
	st := transform.Steps{
		Store:   a.store,
		Config:  a.cfg.Collaborators,
		Version: a.cfg.Pipeline.Version,
		Loader:  article.Loader{Logger: a.log},
		HTTP:    &http.Client{Timeout: a.cfg.Collaborators.HTTPTimeout},
		Logger:  a.log,
	}
	if needRuntime {
		rt, err := container.DetectRuntime(ctx)
		if err != nil {
			return st, err
		}
		a.log.Debug("container runtime detected", "runtime", rt.Name())
		st.Runtime = rt
	}
	return st, nil
}
