// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package staging

import (
	"context"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/scigraph/internal/pipeline"
	"github.com/pdiddy/scigraph/internal/store"
	"github.com/pdiddy/scigraph/pkg/types"
)

var fixed = time.Date(2024, 5, 4, 10, 0, 0, 0, time.UTC)

func stager() Stager {
	return Stager{Version: "abc123", Now: func() time.Time { return fixed }}
}

func node(id int64, cui, matched, preferred string) types.Node {
	return types.Node{ID: id, NodeType: types.NodeConcept, CUIOrName: cui, Matched: matched, Preferred: preferred}
}

func collectGroups(t *testing.T, nodes []types.Node) []types.NodeGroup {
	t.Helper()
	var out []types.NodeGroup
	for g, err := range stager().StageNodes(context.Background(), slices.Values(nodes)) {
		require.NoError(t, err)
		out = append(out, g)
	}
	return out
}

func TestStageNodes_SynonymDedup(t *testing.T) {
	groups := collectGroups(t, []types.Node{
		node(1, "C0018681", "x", "X"),
		node(2, "C0018681", "X", "X"),
		node(3, "C0018681", "y", "X"),
	})

	require.Len(t, groups, 1)
	g := groups[0]
	assert.Equal(t, types.ConceptNode{NodeID: 1, CUI: "C0018681", Name: "X", Version: "abc123", DateAdded: fixed}, g.Concept)

	require.Len(t, g.Synonyms, 2)
	assert.Equal(t, "X", g.Synonyms[0].Name)
	assert.EqualValues(t, 1, g.Synonyms[0].NodeID, "first row of a matched group wins")
	assert.Equal(t, "Y", g.Synonyms[1].Name)
	assert.EqualValues(t, 3, g.Synonyms[1].NodeID)

	require.Len(t, g.Edges, 3, "dropped synonyms still link their node")
	var lefts []int64
	for _, e := range g.Edges {
		assert.EqualValues(t, 1, e.NodeRight, "synonyms link to the concept's node")
		lefts = append(lefts, e.NodeLeft)
	}
	assert.Equal(t, []int64{1, 2, 3}, lefts)
}

func TestStageNodes_Grouping(t *testing.T) {
	tests := []struct {
		name     string
		nodes    []types.Node
		concepts []string
		synonyms [][]string
	}{
		{
			name:  "empty input",
			nodes: nil,
		},
		{
			name: "consecutive groups",
			nodes: []types.Node{
				node(1, "C1", "aspirin", "Aspirin"),
				node(2, "C1", "acetylsalicylic acid", "Aspirin"),
				node(3, "C2", "headache", "Headache"),
			},
			concepts: []string{"Aspirin", "Headache"},
			synonyms: [][]string{{"Acetylsalicylic Acid", "Aspirin"}, {"Headache"}},
		},
		{
			name: "preferred compared case-sensitively",
			nodes: []types.Node{
				node(1, "C1", "tumor", "Tumor"),
				node(2, "C1", "tumour", "tumor"),
			},
			concepts: []string{"Tumor", "Tumor"},
			synonyms: [][]string{{"Tumor"}, {"Tumour"}},
		},
		{
			name: "unsorted input splits groups",
			nodes: []types.Node{
				node(1, "C1", "a", "A"),
				node(2, "C2", "b", "B"),
				node(3, "C1", "a", "A"),
			},
			concepts: []string{"A", "B", "A"},
			synonyms: [][]string{{"A"}, {"B"}, {"A"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			groups := collectGroups(t, tt.nodes)
			require.Len(t, groups, len(tt.concepts))
			for i, g := range groups {
				assert.Equal(t, tt.concepts[i], g.Concept.Name)
				var names []string
				for _, s := range g.Synonyms {
					names = append(names, s.Name)
				}
				assert.Equal(t, tt.synonyms[i], names)
			}
		})
	}
}

func TestStageNodes_Deterministic(t *testing.T) {
	nodes := []types.Node{
		node(4, "C1", "Heart Attack", "Myocardial Infarction"),
		node(5, "C1", "heart attack", "Myocardial Infarction"),
		node(6, "C1", "MI", "Myocardial Infarction"),
	}
	first := collectGroups(t, nodes)
	second := collectGroups(t, nodes)
	assert.Equal(t, first, second)
	require.Len(t, first[0].Synonyms, 2)
	assert.Equal(t, "Heart Attack", first[0].Synonyms[0].Name)
	assert.EqualValues(t, 4, first[0].Synonyms[0].NodeID)
	assert.Equal(t, "Mi", first[0].Synonyms[1].Name)
}

func TestStageNodes_EarlyStop(t *testing.T) {
	nodes := []types.Node{node(1, "C1", "a", "A"), node(2, "C2", "b", "B")}
	n := 0
	for range stager().StageNodes(context.Background(), slices.Values(nodes)) {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestStageEdges(t *testing.T) {
	in := []types.EdgeContext{{
		Edge: types.Edge{ID: 9, NodeLeft: "C1", NodeRight: "C2", EdgeType: types.EdgeVerb,
			Attributes: map[string]string{"predicate": "treats"}},
		DOI: "10.1/a", Summary: "s", Conclusion: "c",
	}}
	var out []types.PredicateEdge
	for pe, err := range stager().StageEdges(context.Background(), slices.Values(in)) {
		require.NoError(t, err)
		out = append(out, pe)
	}
	require.Len(t, out, 1)
	assert.Equal(t, types.PredicateEdge{
		EdgeID: 9, EdgeType: types.EdgeVerb, Name: "treats", DOI: "10.1/a", Summary: "s", Conclusion: "c",
		CUILeft: "C1", CUIRight: "C2", Version: "abc123", DateAdded: fixed,
	}, out[0])
}

func TestTitleAndFold(t *testing.T) {
	assert.Equal(t, "Heart Attack", Title("heart attack"))
	assert.Equal(t, "Hiv Infection", Title("HIV infection"))
	assert.Equal(t, Fold("Straße"), Fold("STRASSE"))
}

// --- store integration ---

func seed(t *testing.T, s *store.Store) {
	t.Helper()
	ctx := context.Background()
	_, err := store.AddRecords(ctx, s, store.Articles, slices.Values([]types.Article{{DOI: "10.1/a"}}), store.WriteOptions{})
	require.NoError(t, err)
	_, err = store.AddRecords(ctx, s, store.Summaries, slices.Values([]types.Summary{
		{ArticleID: 1, Summary: "summary", Conclusion: "aspirin treats headache"},
	}), store.WriteOptions{})
	require.NoError(t, err)
	_, err = store.AddRecords(ctx, s, store.Nodes, slices.Values([]types.Node{
		{SummaryID: 1, NodeType: types.NodeConcept, CUIOrName: "C2", Matched: "headache", Preferred: "Headache"},
		{SummaryID: 1, NodeType: types.NodeConcept, CUIOrName: "C1", Matched: "aspirin", Preferred: "Aspirin"},
		{SummaryID: 1, NodeType: types.NodeConcept, CUIOrName: "C1", Matched: "ASA", Preferred: "Aspirin"},
		{SummaryID: 1, NodeType: types.NodeConcept, CUIOrName: "C1", Matched: "Aspirin", Preferred: "Aspirin"},
	}), store.WriteOptions{})
	require.NoError(t, err)
	_, err = store.AddRecords(ctx, s, store.Edges, slices.Values([]types.Edge{
		{SummaryID: 1, NodeLeft: "C1", NodeRight: "C2", EdgeType: types.EdgeVerb, Attributes: map[string]string{"predicate": "treats"}},
		{SummaryID: 1, NodeLeft: "C1", NodeRight: "C2", EdgeType: types.EdgeRel, Attributes: map[string]string{"predicate": "relieves"}},
	}), store.WriteOptions{})
	require.NoError(t, err)
}

func TestSteps_StageIntoStore(t *testing.T) {
	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "staging.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	seed(t, s)
	ctx := context.Background()

	// No duplicate policy on the run: the steps' own policy applies.
	opts := pipeline.RunOptions{Mode: types.ModeFresh, Write: true}

	nodeStep, err := stager().NodeStep(s)
	require.NoError(t, err)
	summary, err := nodeStep.Run(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Outputs)

	concepts, err := store.Collect(store.Records(ctx, s, store.ConceptNodes, store.Query{OrderBy: []string{"cui"}}))
	require.NoError(t, err)
	require.Len(t, concepts, 2)
	assert.Equal(t, "Aspirin", concepts[0].Name)
	assert.EqualValues(t, 2, concepts[0].NodeID)

	synonyms, err := store.Collect(store.Records(ctx, s, store.SynonymNodes, store.Query{}))
	require.NoError(t, err)
	var names []string
	for _, syn := range synonyms {
		names = append(names, syn.Name)
	}
	assert.Equal(t, []string{"Asa", "Aspirin", "Headache"}, names)
	assert.Equal(t, 4, countRows(t, s, store.SynonymEdges.Schema), "every node is linked, dropped synonyms included")

	summary, err = nodeStep.Run(ctx, opts)
	require.NoError(t, err)
	assert.Zero(t, summary.Outputs, "a second FRESH run selects nothing")
	assert.Equal(t, 2, countRows(t, s, store.ConceptNodes.Schema))
	assert.Equal(t, 4, countRows(t, s, store.SynonymEdges.Schema))

	edgeStep, err := stager().EdgeStep(s)
	require.NoError(t, err)
	summary, err = edgeStep.Run(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Outputs)
	assert.Equal(t, 1, summary.Inserted, "edges sharing doi and concepts collapse to one row")
	assert.Equal(t, 1, summary.Skipped)

	edges, err := store.Collect(store.Records(ctx, s, store.PredicateEdges, store.Query{}))
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "treats", edges[0].Name)
	assert.Equal(t, "10.1/a", edges[0].DOI)
	assert.Equal(t, "aspirin treats headache", edges[0].Conclusion)

	_, err = edgeStep.Run(ctx, pipeline.RunOptions{Mode: types.ModeAll, Write: true, Duplicates: types.DuplicatesRaise})
	assert.ErrorIs(t, err, store.ErrDuplicateRecord, "an explicit raise overrides the step's policy")
}

func TestSteps_NewNodesJoinStagedConcept(t *testing.T) {
	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "staging.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	seed(t, s)
	ctx := context.Background()
	opts := pipeline.RunOptions{Mode: types.ModeFresh, Write: true}

	nodeStep, err := stager().NodeStep(s)
	require.NoError(t, err)
	_, err = nodeStep.Run(ctx, opts)
	require.NoError(t, err)

	_, err = store.AddRecords(ctx, s, store.Nodes, slices.Values([]types.Node{
		{SummaryID: 1, NodeType: types.NodeConcept, CUIOrName: "C1", Matched: "acetylsalicylic acid", Preferred: "Aspirin"},
	}), store.WriteOptions{})
	require.NoError(t, err)

	summary, err := nodeStep.Run(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Outputs, "only the new node is selected")
	assert.Equal(t, 1, summary.Skipped, "its concept is already staged")
	assert.Equal(t, 2, countRows(t, s, store.ConceptNodes.Schema))
	assert.Equal(t, 4, countRows(t, s, store.SynonymNodes.Schema))
	assert.Equal(t, 5, countRows(t, s, store.SynonymEdges.Schema))
}

func countRows(t *testing.T, s *store.Store, tbl *store.Schema) int {
	t.Helper()
	n, err := s.Count(context.Background(), tbl, store.Query{})
	require.NoError(t, err)
	return n
}
