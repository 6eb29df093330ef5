// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// StoreDriver identifies the relational staging store backend.
type StoreDriver string

const (
	DriverSQLite   StoreDriver = "sqlite"
	DriverPostgres StoreDriver = "postgres"
)

// StoreConfig holds settings for the relational staging store.
type StoreConfig struct {
	// Driver selects sqlite or postgres (default sqlite).
	Driver StoreDriver `json:"driver" yaml:"driver" mapstructure:"driver"`

	// Path is the SQLite database file (default "data/scigraph.db").
	Path string `json:"path" yaml:"path" mapstructure:"path"`

	// DSN is the PostgreSQL connection string. When Password is set it is
	// added to the DSN.
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty" mapstructure:"dsn"`

	Password string `json:"-" yaml:"-" mapstructure:"password"`

	// BusyTimeout bounds how long SQLite waits on a locked database.
	BusyTimeout time.Duration `json:"busy_timeout" yaml:"busy_timeout" mapstructure:"busy_timeout"`
}

// GraphConfig holds settings for the graph database.
type GraphConfig struct {
	URI      string `json:"uri" yaml:"uri" mapstructure:"uri"`
	User     string `json:"user" yaml:"user" mapstructure:"user"`
	Password string `json:"-" yaml:"-" mapstructure:"password"`
	Database string `json:"database,omitempty" yaml:"database,omitempty" mapstructure:"database"`

	// ImportDir overrides the server's bulk import directory. When empty the
	// directory is read from the server configuration.
	ImportDir string `json:"import_dir,omitempty" yaml:"import_dir,omitempty" mapstructure:"import_dir"`

	// BatchSize is the number of rows per bulk import file (default 5000).
	BatchSize int `json:"batch_size" yaml:"batch_size" mapstructure:"batch_size"`

	// Timeout bounds driver connection attempts (default 10s).
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// PipelineConfig holds settings shared by all pipeline steps.
type PipelineConfig struct {
	// Version tags staged rows and graph entities (e.g. a git hash).
	Version string `json:"version" yaml:"version" mapstructure:"version"`

	// PeriodicCommit is the number of output elements per commit window (default 50).
	PeriodicCommit int `json:"periodic_commit" yaml:"periodic_commit" mapstructure:"periodic_commit"`

	// Duplicates is the default duplicate policy: raise or skip.
	Duplicates string `json:"duplicates" yaml:"duplicates" mapstructure:"duplicates"`
}

// CollaboratorConfig points the NLP stages at their container images and services.
type CollaboratorConfig struct {
	SummarizerImage   string `json:"summarizer_image" yaml:"summarizer_image" mapstructure:"summarizer_image"`
	AbbreviationImage string `json:"abbreviation_image" yaml:"abbreviation_image" mapstructure:"abbreviation_image"`
	SimplifierImage   string `json:"simplifier_image" yaml:"simplifier_image" mapstructure:"simplifier_image"`
	TripleImage       string `json:"triple_image" yaml:"triple_image" mapstructure:"triple_image"`

	// MetaMapURL is the MetaMapLite annotate endpoint used for NER.
	MetaMapURL string `json:"metamap_url" yaml:"metamap_url" mapstructure:"metamap_url"`

	// MetaMapVersion is recorded on every named entity.
	MetaMapVersion string `json:"metamap_version" yaml:"metamap_version" mapstructure:"metamap_version"`

	HTTPTimeout time.Duration `json:"http_timeout" yaml:"http_timeout" mapstructure:"http_timeout"`
	UserAgent   string        `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// LoggingConfig selects the log encoder and level.
type LoggingConfig struct {
	// Mode is dev or prod.
	Mode  string `json:"mode" yaml:"mode" mapstructure:"mode"`
	Level string `json:"level" yaml:"level" mapstructure:"level"`
}

// TracingConfig toggles span export to stdout.
type TracingConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Pretty  bool `json:"pretty" yaml:"pretty" mapstructure:"pretty"`
}

// Config groups all settings for the scigraph CLI.
type Config struct {
	Store         StoreConfig        `json:"store" yaml:"store" mapstructure:"store"`
	Graph         GraphConfig        `json:"graph" yaml:"graph" mapstructure:"graph"`
	Pipeline      PipelineConfig     `json:"pipeline" yaml:"pipeline" mapstructure:"pipeline"`
	Collaborators CollaboratorConfig `json:"collaborators" yaml:"collaborators" mapstructure:"collaborators"`
	Logging       LoggingConfig      `json:"logging" yaml:"logging" mapstructure:"logging"`
	Tracing       TracingConfig      `json:"tracing" yaml:"tracing" mapstructure:"tracing"`
}

// DefaultConfig returns the settings used when no config file is present.
func DefaultConfig() Config {
	return Config{
		Store: StoreConfig{
			Driver:      DriverSQLite,
			Path:        "data/scigraph.db",
			BusyTimeout: 5 * time.Second,
		},
		Graph: GraphConfig{
			URI:       "bolt://localhost:7687",
			User:      "neo4j",
			BatchSize: 5000,
			Timeout:   10 * time.Second,
		},
		Pipeline: PipelineConfig{
			Version:        "dev",
			PeriodicCommit: 50,
			Duplicates:     string(DuplicatesRaise),
		},
		Collaborators: CollaboratorConfig{
			SummarizerImage:   "scitldr:latest",
			AbbreviationImage: "schwartz-hearst:latest",
			SimplifierImage:   "muss:latest",
			TripleImage:       "claucy:latest",
			MetaMapURL:        "http://localhost:8080/metamaplite/rest/annotate",
			MetaMapVersion:    "metamaplite",
			HTTPTimeout:       60 * time.Second,
			UserAgent:         "scigraph/0.1",
		},
		Logging: LoggingConfig{Mode: "dev", Level: "info"},
	}
}
