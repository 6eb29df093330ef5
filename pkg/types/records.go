// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the rows, run modes, results and configuration
// shared by the scigraph pipeline.
package types

import "time"

// Node types carried in Node.NodeType.
const (
	NodeConcept = "concept"
	NodeSynonym = "synonym"
)

// Edge types carried in Edge.EdgeType and PredicateEdge.EdgeType.
const (
	EdgeVerb    = "_VERB"
	EdgeRel     = "_REL"
	EdgeSynonym = "_SYN"
)

// Article is an ingested scientific article.
type Article struct {
	ID        int64     `json:"id" yaml:"id"`
	DOI       string    `json:"doi" yaml:"doi"`
	URI       string    `json:"uri" yaml:"uri"`
	DateAdded time.Time `json:"date_added" yaml:"date_added"`
}

// Summary is the summarized text of one article together with its
// conclusion section.
type Summary struct {
	ID         int64  `json:"id" yaml:"id"`
	ArticleID  int64  `json:"article_id" yaml:"article_id"`
	Summary    string `json:"summary" yaml:"summary"`
	Conclusion string `json:"conclusion" yaml:"conclusion"`
	Version    string `json:"version" yaml:"version"`

	// Error holds a row-level failure reported by the producing stage.
	// Empty when the row is valid.
	Error     string    `json:"error,omitempty" yaml:"error,omitempty"`
	DateAdded time.Time `json:"date_added" yaml:"date_added"`
}

// Abbreviation maps a short form found in an article or summary to its meaning.
// At least one of ArticleID and SummaryID is set.
type Abbreviation struct {
	ID           int64     `json:"id" yaml:"id"`
	ArticleID    *int64    `json:"article_id,omitempty" yaml:"article_id,omitempty"`
	SummaryID    *int64    `json:"summary_id,omitempty" yaml:"summary_id,omitempty"`
	Abbreviation string    `json:"abbreviation" yaml:"abbreviation"`
	Meaning      string    `json:"meaning" yaml:"meaning"`
	DateAdded    time.Time `json:"date_added" yaml:"date_added"`
}

// SimpleConclusion is a simplified rewrite of a summary's conclusion.
type SimpleConclusion struct {
	ID         int64     `json:"id" yaml:"id"`
	SummaryID  int64     `json:"summary_id" yaml:"summary_id"`
	Conclusion string    `json:"conclusion" yaml:"conclusion"`
	Version    string    `json:"version" yaml:"version"`
	Error      string    `json:"error,omitempty" yaml:"error,omitempty"`
	DateAdded  time.Time `json:"date_added" yaml:"date_added"`
}

// SimpleSubstitutedConclusion is a simplified conclusion with abbreviations
// replaced by their meanings.
type SimpleSubstitutedConclusion struct {
	ID                 int64     `json:"id" yaml:"id"`
	SimpleConclusionID int64     `json:"simple_conclusion_id" yaml:"simple_conclusion_id"`
	SummaryID          int64     `json:"summary_id" yaml:"summary_id"`
	Conclusion         string    `json:"conclusion" yaml:"conclusion"`
	Version            string    `json:"version" yaml:"version"`
	Error              string    `json:"error,omitempty" yaml:"error,omitempty"`
	DateAdded          time.Time `json:"date_added" yaml:"date_added"`
}

// NamedEntity is a concept mention linked to a controlled vocabulary.
type NamedEntity struct {
	ID             int64     `json:"id" yaml:"id"`
	SSConclusionID int64     `json:"ss_conclusion_id" yaml:"ss_conclusion_id"`
	MatchedTerm    string    `json:"matched_term" yaml:"matched_term"`
	PreferredTerm  string    `json:"preferred_term" yaml:"preferred_term"`
	CUI            string    `json:"cui" yaml:"cui"`
	SourceVersion  string    `json:"source_version" yaml:"source_version"`
	DateAdded      time.Time `json:"date_added" yaml:"date_added"`
}

// Node is a raw graph node extracted from a summary. CUIOrName holds the
// concept identifier for linked concepts.
type Node struct {
	ID         int64             `json:"id" yaml:"id"`
	SummaryID  int64             `json:"summary_id" yaml:"summary_id"`
	NodeType   string            `json:"node_type" yaml:"node_type"`
	CUIOrName  string            `json:"cui_or_name" yaml:"cui_or_name"`
	Matched    string            `json:"matched" yaml:"matched"`
	Preferred  string            `json:"preferred" yaml:"preferred"`
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	DateAdded  time.Time         `json:"date_added" yaml:"date_added"`
}

// Edge is a raw relation between two concepts. NodeLeft and NodeRight hold
// concept identifiers; Attributes["predicate"] names the relation.
type Edge struct {
	ID         int64             `json:"id" yaml:"id"`
	SummaryID  int64             `json:"summary_id" yaml:"summary_id"`
	NodeLeft   string            `json:"node_left" yaml:"node_left"`
	NodeRight  string            `json:"node_right" yaml:"node_right"`
	EdgeType   string            `json:"edge_type" yaml:"edge_type"`
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	DateAdded  time.Time         `json:"date_added" yaml:"date_added"`
}

// Predicate returns the relation name carried in the edge attributes.
func (e Edge) Predicate() string {
	return e.Attributes["predicate"]
}

// EdgeContext is an Edge joined with the article and summary it came from.
type EdgeContext struct {
	Edge
	DOI        string `json:"doi" yaml:"doi"`
	Summary    string `json:"summary" yaml:"summary"`
	Conclusion string `json:"conclusion" yaml:"conclusion"`
}

// ConceptNode is a deduplicated graph concept, merged by CUI.
type ConceptNode struct {
	ID        int64     `json:"id" yaml:"id"`
	NodeID    int64     `json:"node_id" yaml:"node_id"`
	CUI       string    `json:"cui" yaml:"cui"`
	Name      string    `json:"name" yaml:"name"`
	Version   string    `json:"version" yaml:"version"`
	DateAdded time.Time `json:"date_added" yaml:"date_added"`
}

// SynonymNode is a surface form of a concept, merged by CUI and name.
type SynonymNode struct {
	ID        int64     `json:"id" yaml:"id"`
	NodeID    int64     `json:"node_id" yaml:"node_id"`
	CUI       string    `json:"cui" yaml:"cui"`
	Name      string    `json:"name" yaml:"name"`
	Version   string    `json:"version" yaml:"version"`
	DateAdded time.Time `json:"date_added" yaml:"date_added"`
}

// SynonymEdge links a synonym's node to its concept's node.
type SynonymEdge struct {
	ID        int64     `json:"id" yaml:"id"`
	NodeLeft  int64     `json:"node_left" yaml:"node_left"`
	NodeRight int64     `json:"node_right" yaml:"node_right"`
	DateAdded time.Time `json:"date_added" yaml:"date_added"`
}

// PredicateEdge is a graph-ready relation between two concepts, carrying the
// provenance of the summary it was extracted from.
type PredicateEdge struct {
	ID         int64     `json:"id" yaml:"id"`
	EdgeID     int64     `json:"edge_id" yaml:"edge_id"`
	EdgeType   string    `json:"edge_type" yaml:"edge_type"`
	Name       string    `json:"name" yaml:"name"`
	DOI        string    `json:"doi" yaml:"doi"`
	Summary    string    `json:"summary" yaml:"summary"`
	Conclusion string    `json:"conclusion" yaml:"conclusion"`
	CUILeft    string    `json:"cui_left" yaml:"cui_left"`
	CUIRight   string    `json:"cui_right" yaml:"cui_right"`
	Version    string    `json:"version" yaml:"version"`
	DateAdded  time.Time `json:"date_added" yaml:"date_added"`
}

// LogEntry is a checkpoint row: the last id written to a table when a commit
// window closed.
type LogEntry struct {
	ID              int64     `json:"id" yaml:"id"`
	TableName       string    `json:"table_name" yaml:"table_name"`
	LastProcessedID int64     `json:"last_processed_id" yaml:"last_processed_id"`
	Timestamp       time.Time `json:"timestamp" yaml:"timestamp"`
}

// NodeGroup is the staged form of one concept group: the concept plus the
// distinct synonyms that map to it.
type NodeGroup struct {
	Concept  ConceptNode   `json:"concept" yaml:"concept"`
	Synonyms []SynonymNode `json:"synonyms" yaml:"synonyms"`
	Edges    []SynonymEdge `json:"edges" yaml:"edges"`
}

// NodesAndEdges is the output of a triple extraction stage for one summary.
type NodesAndEdges struct {
	Nodes []Node `json:"nodes" yaml:"nodes"`
	Edges []Edge `json:"edges" yaml:"edges"`
}
