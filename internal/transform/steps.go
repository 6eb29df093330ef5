// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package transform

import (
	"context"
	"fmt"
	"iter"
	"net/http"

	sq "github.com/Masterminds/squirrel"

	"github.com/pdiddy/scigraph/internal/article"
	"github.com/pdiddy/scigraph/internal/container"
	"github.com/pdiddy/scigraph/internal/logging"
	"github.com/pdiddy/scigraph/internal/pipeline"
	"github.com/pdiddy/scigraph/internal/store"
	"github.com/pdiddy/scigraph/pkg/types"
)

// TripleInput is what the triple extractor receives for one summary: the
// latest substituted conclusion and its named entities.
type TripleInput struct {
	SummaryID      int64               `json:"summary_id"`
	SSConclusionID int64               `json:"ss_conclusion_id"`
	Conclusion     string              `json:"conclusion"`
	NamedEntities  []types.NamedEntity `json:"named_entities"`
}

// Steps builds the pipeline steps that fill the staging tables from
// articles up to raw nodes and edges.
type Steps struct {
	Store   *store.Store
	Runtime container.Runtime
	Config  types.CollaboratorConfig
	Version string
	Loader  article.Loader
	HTTP    *http.Client
	Logger  *logging.Logger
}

func (s Steps) log() *logging.Logger { return logging.OrNop(s.Logger) }

// CheckImages verifies that every collaborator image exists locally.
func (s Steps) CheckImages(ctx context.Context) error {
	for _, image := range []string{
		s.Config.SummarizerImage,
		s.Config.AbbreviationImage,
		s.Config.SimplifierImage,
		s.Config.TripleImage,
	} {
		if err := (Collaborator[struct{}, struct{}]{Runtime: s.Runtime, Image: image}).Check(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Ingest reads an article index file into the articles table.
func (s Steps) Ingest(indexPath, baseDir string) (*pipeline.Step[types.Article, types.Article], error) {
	return pipeline.New(article.Index(indexPath, baseDir), pipeline.Config[types.Article, types.Article]{
		Name:       "ingest",
		Store:      s.Store,
		Downstream: pipeline.Into(store.Articles),
		Logger:     s.Logger,
	})
}

// Summarize runs the summarizer image over the parsed articles.
func (s Steps) Summarize() (*pipeline.Step[types.Article, types.Summary], error) {
	collab := Collaborator[article.Document, types.Summary]{
		Runtime: s.Runtime,
		Image:   s.Config.SummarizerImage,
		Bypass: func(d article.Document) ([]types.Summary, bool) {
			if d.Error == "" {
				return nil, false
			}
			return []types.Summary{{ArticleID: d.ArticleID, Error: d.Error}}, true
		},
		Logger: s.Logger,
	}
	fn := func(ctx context.Context, in iter.Seq[types.Article]) iter.Seq2[types.Summary, error] {
		return checked(collab.Transform(ctx, s.Loader.Documents(ctx, in)), func(out *types.Summary) error {
			if out.ArticleID == 0 {
				return fmt.Errorf("%s output has no article_id", collab.Image)
			}
			if out.Version == "" {
				out.Version = s.Version
			}
			return nil
		})
	}
	return pipeline.New(fn, pipeline.Config[types.Article, types.Summary]{
		Name:       "summarize",
		Store:      s.Store,
		Upstream:   store.Articles,
		Downstream: pipeline.Into(store.Summaries),
		Logger:     s.Logger,
	})
}

// Abbreviate runs the abbreviation finder over article introductions.
// Articles that fail to parse yield no abbreviations.
func (s Steps) Abbreviate() (*pipeline.Step[types.Article, types.Abbreviation], error) {
	collab := Collaborator[article.Document, types.Abbreviation]{
		Runtime: s.Runtime,
		Image:   s.Config.AbbreviationImage,
		Bypass: func(d article.Document) ([]types.Abbreviation, bool) {
			return nil, d.Error != ""
		},
		Logger: s.Logger,
	}
	fn := func(ctx context.Context, in iter.Seq[types.Article]) iter.Seq2[types.Abbreviation, error] {
		return checked(collab.Transform(ctx, s.Loader.Documents(ctx, in)), func(out *types.Abbreviation) error {
			if out.ArticleID == nil && out.SummaryID == nil {
				return fmt.Errorf("%s output %q has neither article_id nor summary_id", collab.Image, out.Abbreviation)
			}
			return nil
		})
	}
	return pipeline.New(fn, pipeline.Config[types.Article, types.Abbreviation]{
		Name:       "abbreviate",
		Store:      s.Store,
		Upstream:   store.Articles,
		Downstream: pipeline.Into(store.Abbreviations),
		Logger:     s.Logger,
	})
}

// Simplify runs the sentence simplifier over summary conclusions. Leading
// boilerplate clauses are removed first.
func (s Steps) Simplify() (*pipeline.Step[types.Summary, types.SimpleConclusion], error) {
	collab := Collaborator[types.Summary, types.SimpleConclusion]{
		Runtime: s.Runtime,
		Image:   s.Config.SimplifierImage,
		Bypass: func(sum types.Summary) ([]types.SimpleConclusion, bool) {
			switch {
			case sum.Error != "":
				return []types.SimpleConclusion{{SummaryID: sum.ID, Error: "summary failed: " + sum.Error}}, true
			case sum.Conclusion == "":
				return []types.SimpleConclusion{{SummaryID: sum.ID, Error: "summary has no conclusion"}}, true
			}
			return nil, false
		},
		Logger: s.Logger,
	}
	fn := func(ctx context.Context, in iter.Seq[types.Summary]) iter.Seq2[types.SimpleConclusion, error] {
		prepared := func(yield func(types.Summary) bool) {
			for sum := range in {
				sum.Conclusion = StripStopClauses(sum.Conclusion)
				if !yield(sum) {
					return
				}
			}
		}
		return checked(collab.Transform(ctx, prepared), func(out *types.SimpleConclusion) error {
			if out.SummaryID == 0 {
				return fmt.Errorf("%s output has no summary_id", collab.Image)
			}
			if out.Version == "" {
				out.Version = s.Version
			}
			return nil
		})
	}
	return pipeline.New(fn, pipeline.Config[types.Summary, types.SimpleConclusion]{
		Name:       "simplify",
		Store:      s.Store,
		Upstream:   store.Summaries,
		Downstream: pipeline.Into(store.SimpleConclusions),
		Logger:     s.Logger,
	})
}

// Substitute expands abbreviations in simplified conclusions.
func (s Steps) Substitute() (*pipeline.Step[types.SimpleConclusion, types.Result[types.SimpleSubstitutedConclusion]], error) {
	sink, err := pipeline.IntoResults(store.SimpleSubstitutedConclusions)
	if err != nil {
		return nil, err
	}
	sub := Substituter{Store: s.Store, Version: s.Version, Logger: s.Logger}
	return pipeline.New(sub.Transform, pipeline.Config[types.SimpleConclusion, types.Result[types.SimpleSubstitutedConclusion]]{
		Name:       "substitute",
		Store:      s.Store,
		Upstream:   store.SimpleConclusions,
		Downstream: sink,
		Logger:     s.Logger,
	})
}

// NER links substituted conclusions to UMLS concepts through MetaMapLite.
func (s Steps) NER() (*pipeline.Step[types.SimpleSubstitutedConclusion, types.NamedEntity], error) {
	client := s.HTTP
	if client == nil {
		client = &http.Client{Timeout: s.Config.HTTPTimeout}
	}
	mm := &MetaMap{
		Client:    client,
		URL:       s.Config.MetaMapURL,
		Version:   s.Config.MetaMapVersion,
		UserAgent: s.Config.UserAgent,
		Logger:    s.Logger,
	}
	return pipeline.New(mm.Recognize, pipeline.Config[types.SimpleSubstitutedConclusion, types.NamedEntity]{
		Name:       "ner",
		Store:      s.Store,
		Upstream:   store.SimpleSubstitutedConclusions,
		Downstream: pipeline.Into(store.NamedEntities),
		Logger:     s.Logger,
	})
}

// Triples runs the triple extractor over each summary's latest substituted
// conclusion and fans the result out to nodes and edges. Summaries without
// a conclusion or without named entities produce nothing.
func (s Steps) Triples() (*pipeline.Step[types.Summary, types.NodesAndEdges], error) {
	collab := Collaborator[TripleInput, types.NodesAndEdges]{
		Runtime: s.Runtime,
		Image:   s.Config.TripleImage,
		Bypass: func(in TripleInput) ([]types.NodesAndEdges, bool) {
			return nil, in.SSConclusionID == 0 || len(in.NamedEntities) == 0
		},
		Logger: s.Logger,
	}
	fn := func(ctx context.Context, in iter.Seq[types.Summary]) iter.Seq2[types.NodesAndEdges, error] {
		return func(yield func(types.NodesAndEdges, error) bool) {
			var lookupErr error
			outs := checked(collab.Transform(ctx, s.tripleInputs(ctx, in, &lookupErr)), func(out *types.NodesAndEdges) error {
				for _, n := range out.Nodes {
					if n.SummaryID == 0 {
						return fmt.Errorf("%s node %q has no summary_id", collab.Image, n.CUIOrName)
					}
				}
				for i := range out.Edges {
					if out.Edges[i].SummaryID == 0 {
						return fmt.Errorf("%s edge %s-%s has no summary_id", collab.Image, out.Edges[i].NodeLeft, out.Edges[i].NodeRight)
					}
					if out.Edges[i].EdgeType == "" {
						out.Edges[i].EdgeType = types.EdgeVerb
					}
				}
				return nil
			})
			for out, err := range outs {
				if !yield(out, err) || err != nil {
					return
				}
			}
			if lookupErr != nil {
				yield(types.NodesAndEdges{}, lookupErr)
			}
		}
	}
	return pipeline.New(fn, pipeline.Config[types.Summary, types.NodesAndEdges]{
		Name:     "triples",
		Store:    s.Store,
		Upstream: store.Summaries,
		Downstream: pipeline.Fanout(
			pipeline.RouteTo(store.Nodes, func(o *types.NodesAndEdges) []*types.Node { return pointers(o.Nodes) }),
			pipeline.RouteTo(store.Edges, func(o *types.NodesAndEdges) []*types.Edge { return pointers(o.Edges) }),
		),
		Logger: s.Logger,
	})
}

// tripleInputs pairs each summary with its latest valid substituted
// conclusion and that conclusion's entities. A lookup failure ends the
// stream and is reported through errp.
func (s Steps) tripleInputs(ctx context.Context, in iter.Seq[types.Summary], errp *error) iter.Seq[TripleInput] {
	return func(yield func(TripleInput) bool) {
		for sum := range in {
			ti := TripleInput{SummaryID: sum.ID}
			conclusions, err := store.Collect(store.Records(ctx, s.Store, store.SimpleSubstitutedConclusions, store.Query{
				Where: sq.And{sq.Eq{"summary_id": sum.ID}, sq.Eq{"error": ""}},
			}))
			if err != nil {
				*errp = fmt.Errorf("loading conclusions of summary %d: %w", sum.ID, err)
				return
			}
			if n := len(conclusions); n > 0 {
				latest := conclusions[n-1]
				ti.SSConclusionID, ti.Conclusion = latest.ID, latest.Conclusion
				ti.NamedEntities, err = store.Collect(store.Records(ctx, s.Store, store.NamedEntities, store.Query{
					Where: sq.Eq{"ss_conclusion_id": latest.ID},
				}))
				if err != nil {
					*errp = fmt.Errorf("loading entities of conclusion %d: %w", latest.ID, err)
					return
				}
			} else {
				s.log().Debug("summary has no substituted conclusion", "summary_id", sum.ID)
			}
			if !yield(ti) {
				return
			}
		}
	}
}

// checked applies fix to every output and turns its error into a stream
// error.
func checked[T any](seq iter.Seq2[T, error], fix func(*T) error) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for out, err := range seq {
			if err == nil {
				err = fix(&out)
			}
			if !yield(out, err) || err != nil {
				return
			}
		}
	}
}

func pointers[T any](rows []T) []*T {
	out := make([]*T, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out
}
