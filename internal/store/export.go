// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/scigraph/pkg/types"
)

// TableStatus holds the row count and latest checkpoint of one table.
type TableStatus struct {
	Table           string     `json:"table" yaml:"table"`
	Rows            int        `json:"rows" yaml:"rows"`
	LastProcessedID int64      `json:"last_processed_id,omitempty" yaml:"last_processed_id,omitempty"`
	LastCheckpoint  *time.Time `json:"last_checkpoint,omitempty" yaml:"last_checkpoint,omitempty"`
}

// Status returns one entry per registered table and view.
func (s *Store) Status(ctx context.Context) ([]TableStatus, error) {
	latest := make(map[string]types.LogEntry)
	for entry, err := range Records(ctx, s, Log, Query{}) {
		if err != nil {
			return nil, err
		}
		latest[entry.TableName] = entry
	}

	out := make([]TableStatus, 0, len(schemas))
	for _, sc := range schemas {
		if sc == Log.Schema {
			continue
		}
		n, err := s.Count(ctx, sc, Query{})
		if err != nil {
			return nil, err
		}
		st := TableStatus{Table: sc.Name, Rows: n}
		if entry, ok := latest[sc.Name]; ok {
			ts := entry.Timestamp
			st.LastProcessedID = entry.LastProcessedID
			st.LastCheckpoint = &ts
		}
		out = append(out, st)
	}
	return out, nil
}

// ExportYAML writes the store status as YAML.
func (s *Store) ExportYAML(ctx context.Context, w io.Writer) error {
	status, err := s.Status(ctx)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// ExportJSON writes the store status as indented JSON.
func (s *Store) ExportJSON(ctx context.Context, w io.Writer) error {
	status, err := s.Status(ctx)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = w.Write(append(data, '\n'))
	return err
}
