// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package staging reshapes raw node and edge rows into deduplicated,
// graph-ready rows.
package staging

import (
	"context"
	"iter"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/pdiddy/scigraph/internal/logging"
	"github.com/pdiddy/scigraph/pkg/types"
)

// Stager holds the values stamped on every staged row.
type Stager struct {
	Version string

	// Now stamps date_added. When nil the store stamps rows on insert.
	Now func() time.Time

	Logger *logging.Logger
}

// Title capitalizes the first letter of each word and lowercases the rest.
func Title(s string) string {
	return cases.Title(language.Und).String(s)
}

// Fold returns the case-folded form of s used to compare surface forms.
func Fold(s string) string {
	return cases.Fold().String(s)
}

func (st Stager) now() time.Time {
	if st.Now == nil {
		return time.Time{}
	}
	return st.Now().UTC()
}

// StageNodes groups nodes by preferred name and emits one NodeGroup per
// group. The input must be sorted by preferred name: only consecutive rows
// with the same (case-sensitive) preferred name form a group. The first row
// of a group becomes the concept; within the group the first row of each
// case-folded matched form becomes a synonym. Every row of the group, kept
// or not, is linked to the concept's node by a synonym edge.
func (st Stager) StageNodes(ctx context.Context, nodes iter.Seq[types.Node]) iter.Seq2[types.NodeGroup, error] {
	log := logging.OrNop(st.Logger)
	return func(yield func(types.NodeGroup, error) bool) {
		var group []types.Node
		flush := func() bool {
			if len(group) == 0 {
				return true
			}
			g := st.group(group, log)
			group = group[:0]
			return yield(g, nil)
		}

		for n := range nodes {
			if err := ctx.Err(); err != nil {
				yield(types.NodeGroup{}, err)
				return
			}
			if len(group) > 0 && group[0].Preferred != n.Preferred {
				if !flush() {
					return
				}
			}
			group = append(group, n)
		}
		flush()
	}
}

func (st Stager) group(rows []types.Node, log *logging.Logger) types.NodeGroup {
	first := rows[0]
	now := st.now()
	g := types.NodeGroup{
		Concept: types.ConceptNode{
			NodeID:    first.ID,
			CUI:       first.CUIOrName,
			Name:      Title(first.Preferred),
			Version:   st.Version,
			DateAdded: now,
		},
	}

	sorted := slices.Clone(rows)
	slices.SortStableFunc(sorted, func(a, b types.Node) int {
		return strings.Compare(Fold(a.Matched), Fold(b.Matched))
	})

	var key string
	for i, n := range sorted {
		g.Edges = append(g.Edges, types.SynonymEdge{
			NodeLeft:  n.ID,
			NodeRight: first.ID,
			DateAdded: now,
		})
		folded := Fold(n.Matched)
		if i > 0 && folded == key {
			log.Debug("dropping duplicate synonym", "cui", n.CUIOrName, "matched", n.Matched, "node_id", n.ID)
			continue
		}
		key = folded
		g.Synonyms = append(g.Synonyms, types.SynonymNode{
			NodeID:    n.ID,
			CUI:       n.CUIOrName,
			Name:      Title(n.Matched),
			Version:   st.Version,
			DateAdded: now,
		})
	}
	return g
}

// StageEdges turns each edge and its summary context into a predicate edge.
func (st Stager) StageEdges(ctx context.Context, edges iter.Seq[types.EdgeContext]) iter.Seq2[types.PredicateEdge, error] {
	return func(yield func(types.PredicateEdge, error) bool) {
		for e := range edges {
			if err := ctx.Err(); err != nil {
				yield(types.PredicateEdge{}, err)
				return
			}
			pe := types.PredicateEdge{
				EdgeID:     e.ID,
				EdgeType:   e.EdgeType,
				Name:       e.Predicate(),
				DOI:        e.DOI,
				Summary:    e.Summary,
				Conclusion: e.Conclusion,
				CUILeft:    e.NodeLeft,
				CUIRight:   e.NodeRight,
				Version:    st.Version,
				DateAdded:  st.now(),
			}
			if !yield(pe, nil) {
				return
			}
		}
	}
}
