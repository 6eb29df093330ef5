// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads credentials from a directory of plain-text files.
// Each file in the directory represents one secret: the filename is the key
// name and the file contents (trimmed) are the value.
//
// Supported key files: postgres-password, neo4j-password.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/scigraph/internal/logging"
	"github.com/pdiddy/scigraph/pkg/types"
)

// Key file names.
const (
	PostgresPassword = "postgres-password"
	Neo4jPassword    = "neo4j-password"
)

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory or missing files are not errors; Load returns an empty map.
// Unreadable files are logged and skipped.
func Load(dir string, log *logging.Logger) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			logging.OrNop(log).Warn("could not read secret", "name", name, "error", err)
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}

// Apply fills passwords missing from cfg with the loaded secrets. Values
// already set by config or environment win.
func Apply(cfg *types.Config, secrets map[string]string) {
	if cfg.Store.Password == "" {
		cfg.Store.Password = secrets[PostgresPassword]
	}
	if cfg.Graph.Password == "" {
		cfg.Graph.Password = secrets[Neo4jPassword]
	}
}
