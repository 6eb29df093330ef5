// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package staging

import (
	"github.com/pdiddy/scigraph/internal/pipeline"
	"github.com/pdiddy/scigraph/internal/store"
	"github.com/pdiddy/scigraph/pkg/types"
)

// NodeOrder is the upstream order StageNodes relies on.
var NodeOrder = []string{"preferred", "id"}

// NodeStep binds StageNodes to the nodes table and fans each group out to
// synonym_edges, concept_nodes and synonym_nodes. Every node read gets a
// synonym_edges row, so FRESH and NEWER select by synonym_edges. Nodes are
// read in NodeOrder unless the run asks for another order. Groups that
// repeat a staged concept or synonym are skipped unless the run sets its own
// duplicate policy.
func (st Stager) NodeStep(s *store.Store) (*pipeline.Step[types.Node, types.NodeGroup], error) {
	return pipeline.New(st.StageNodes, pipeline.Config[types.Node, types.NodeGroup]{
		Name:     "stage-nodes",
		Store:    s,
		Upstream: store.Nodes,
		OrderBy:  NodeOrder,
		Downstream: pipeline.Fanout(
			pipeline.RouteTo(store.SynonymEdges, func(g *types.NodeGroup) []*types.SynonymEdge {
				return pointers(g.Edges)
			}),
			pipeline.RouteTo(store.ConceptNodes, func(g *types.NodeGroup) []*types.ConceptNode {
				return []*types.ConceptNode{&g.Concept}
			}),
			pipeline.RouteTo(store.SynonymNodes, func(g *types.NodeGroup) []*types.SynonymNode {
				return pointers(g.Synonyms)
			}),
		),
		Duplicates: types.DuplicatesSkip,
		Logger:     st.Logger,
	})
}

// EdgeStep binds StageEdges to the edge_contexts view and the
// predicate_edges table. Edges sharing a doi and concept pair collapse into
// the first one staged.
func (st Stager) EdgeStep(s *store.Store) (*pipeline.Step[types.EdgeContext, types.PredicateEdge], error) {
	return pipeline.New(st.StageEdges, pipeline.Config[types.EdgeContext, types.PredicateEdge]{
		Name:       "stage-edges",
		Store:      s,
		Upstream:   store.EdgeContexts,
		Downstream: pipeline.Into(store.PredicateEdges),
		Duplicates: types.DuplicatesSkip,
		Logger:     st.Logger,
	})
}

func pointers[T any](rows []T) []*T {
	out := make([]*T, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out
}
