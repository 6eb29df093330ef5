// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package graph loads staged rows into the graph database.
// Implements: graph store (query, bulk import directory) and the graph
// writer (batched CSV imports merged by key).
package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/pdiddy/scigraph/internal/logging"
	"github.com/pdiddy/scigraph/pkg/types"
)

// Shape selects how query results are returned.
type Shape string

const (
	// ShapeGraph collects the distinct nodes and relationships in the result.
	ShapeGraph Shape = "graph"

	// ShapeList returns the result records as maps.
	ShapeList Shape = "list"
)

// Node is a graph node returned by a query.
type Node struct {
	ElementID string
	Labels    []string
	Props     map[string]any
}

// Relationship is a graph relationship returned by a query.
type Relationship struct {
	ElementID      string
	Type           string
	StartElementID string
	EndElementID   string
	Props          map[string]any
}

// QueryResult holds the output of one statement.
type QueryResult struct {
	Records       []map[string]any
	Nodes         []Node
	Relationships []Relationship
}

// Store runs statements against a graph database that can import CSV files
// from a server-side directory.
type Store interface {
	Query(ctx context.Context, stmt string, params map[string]any, shape Shape) (QueryResult, error)

	// ImportDir returns the directory LOAD CSV reads file:/// URLs from.
	ImportDir(ctx context.Context) (string, error)
}

// Neo4jStore is a Store backed by the Neo4j Go driver.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
	log      *logging.Logger

	mu        sync.Mutex
	importDir string
}

// Open connects to Neo4j and verifies connectivity.
func Open(ctx context.Context, cfg types.GraphConfig, log *logging.Logger) (*Neo4jStore, error) {
	if strings.TrimSpace(cfg.URI) == "" {
		return nil, errors.New("graph: uri required")
	}
	user := cfg.User
	if user == "" {
		user = "neo4j"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(user, cfg.Password, ""), func(c *neo4j.Config) {
		c.SocketConnectTimeout = timeout
	})
	if err != nil {
		return nil, fmt.Errorf("graph: init driver: %w", err)
	}

	vctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(vctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("graph: verify connectivity: %w", err)
	}

	return &Neo4jStore{
		driver:    driver,
		database:  cfg.Database,
		importDir: cfg.ImportDir,
		log:       logging.OrNop(log).With("client", "neo4j"),
	}, nil
}

// Close releases the driver.
func (s *Neo4jStore) Close(ctx context.Context) error {
	if s == nil || s.driver == nil {
		return nil
	}
	return s.driver.Close(ctx)
}

// Query runs stmt in a write transaction.
func (s *Neo4jStore) Query(ctx context.Context, stmt string, params map[string]any, shape Shape) (QueryResult, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.database,
	})
	defer session.Close(ctx)

	s.log.Debug("running query", "statement", stmt)
	out, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, stmt, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		s.log.Error("query failed", "statement", stmt, "error", err)
		return QueryResult{}, fmt.Errorf("graph: query: %w", err)
	}

	records, _ := out.([]*neo4j.Record)
	return shapeResult(records, shape), nil
}

func shapeResult(records []*neo4j.Record, shape Shape) QueryResult {
	var qr QueryResult
	if shape != ShapeGraph {
		for _, r := range records {
			qr.Records = append(qr.Records, r.AsMap())
		}
		return qr
	}

	seenNodes := make(map[string]bool)
	seenRels := make(map[string]bool)
	addNode := func(n neo4j.Node) {
		if seenNodes[n.ElementId] {
			return
		}
		seenNodes[n.ElementId] = true
		qr.Nodes = append(qr.Nodes, Node{ElementID: n.ElementId, Labels: n.Labels, Props: n.Props})
	}
	addRel := func(r neo4j.Relationship) {
		if seenRels[r.ElementId] {
			return
		}
		seenRels[r.ElementId] = true
		qr.Relationships = append(qr.Relationships, Relationship{
			ElementID: r.ElementId, Type: r.Type,
			StartElementID: r.StartElementId, EndElementID: r.EndElementId,
			Props: r.Props,
		})
	}
	for _, r := range records {
		for _, v := range r.Values {
			switch x := v.(type) {
			case neo4j.Node:
				addNode(x)
			case neo4j.Relationship:
				addRel(x)
			case neo4j.Path:
				for _, n := range x.Nodes {
					addNode(n)
				}
				for _, rel := range x.Relationships {
					addRel(rel)
				}
			}
		}
	}
	return qr
}

// ImportDir returns the configured import directory, or asks the server for
// its import directory setting and caches the answer.
func (s *Neo4jStore) ImportDir(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.importDir != "" {
		return s.importDir, nil
	}

	dir, err := lookupImportDir(ctx, func(ctx context.Context, stmt string) (QueryResult, error) {
		return s.Query(ctx, stmt, nil, ShapeList)
	})
	if err != nil {
		return "", err
	}
	s.importDir = dir
	return dir, nil
}

// importDirQueries read the import directory setting. SHOW SETTINGS is the
// Neo4j 5 form; dbms.listConfig serves 4.x servers.
var importDirQueries = []string{
	`SHOW SETTINGS YIELD name, value
		WHERE name = 'server.directories.import'
		RETURN value`,
	`CALL dbms.listConfig() YIELD name, value
		WHERE name IN ['server.directories.import', 'dbms.directories.import']
		RETURN value`,
}

// lookupImportDir tries importDirQueries in order and returns the first
// non-empty value.
func lookupImportDir(ctx context.Context, query func(context.Context, string) (QueryResult, error)) (string, error) {
	var errs []error
	for _, stmt := range importDirQueries {
		res, err := query(ctx, stmt)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, r := range res.Records {
			if v, ok := r["value"].(string); ok && v != "" {
				return v, nil
			}
		}
	}
	if len(errs) == len(importDirQueries) {
		return "", fmt.Errorf("graph: reading import directory: %w", errors.Join(errs...))
	}
	return "", errors.New("graph: server has no import directory configured")
}
