// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package transform

import (
	"context"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/scigraph/internal/store"
	"github.com/pdiddy/scigraph/pkg/types"
)

func abbrev(short, meaning string) types.Abbreviation {
	return types.Abbreviation{Abbreviation: short, Meaning: meaning}
}

func TestSubstitute(t *testing.T) {
	tests := []struct {
		name     string
		sentence string
		abbrevs  []types.Abbreviation
		want     string
	}{
		{
			name:     "whole word",
			sentence: "ASA reduces MI risk.",
			abbrevs:  []types.Abbreviation{abbrev("ASA", "aspirin"), abbrev("MI", "myocardial infarction")},
			want:     "aspirin reduces myocardial infarction risk.",
		},
		{
			name:     "plural of the short form",
			sentence: "Two RCTs found no effect.",
			abbrevs:  []types.Abbreviation{abbrev("RCT", "randomized controlled trial")},
			want:     "Two randomized controlled trial found no effect.",
		},
		{
			name:     "plural short form also matches singular",
			sentence: "One RCT and many RCTs.",
			abbrevs:  []types.Abbreviation{abbrev("RCTs", "randomized controlled trials")},
			want:     "One randomized controlled trials and many randomized controlled trials.",
		},
		{
			name:     "inside a word is left alone",
			sentence: "MIDAS scores and MI.",
			abbrevs:  []types.Abbreviation{abbrev("MI", "myocardial infarction")},
			want:     "MIDAS scores and myocardial infarction.",
		},
		{
			name:     "regex metacharacters are literal",
			sentence: "IL-6 (pg/ml) rose.",
			abbrevs:  []types.Abbreviation{abbrev("IL-6", "interleukin 6"), abbrev("a.b", "x")},
			want:     "interleukin 6 (pg/ml) rose.",
		},
		{
			name:     "meaning is inserted literally",
			sentence: "CO2 rose.",
			abbrevs:  []types.Abbreviation{abbrev("CO2", "carbon $1 dioxide")},
			want:     "carbon $1 dioxide rose.",
		},
		{
			name:     "no abbreviations",
			sentence: "Nothing to do.",
			want:     "Nothing to do.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Substitute(tt.sentence, tt.abbrevs))
		})
	}
}

func TestStripStopClauses(t *testing.T) {
	tests := []struct{ in, want string }{
		{"In conclusion, aspirin works.", "Aspirin works."},
		{"Conclusions: we found that aspirin works.", "Aspirin works."},
		{"  our research shows that X helps.", "X helps."},
		{"Aspirin works.", "Aspirin works."},
		{"conclusion", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StripStopClauses(tt.in), tt.in)
	}
}

func testStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "staging.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func add[T any](t *testing.T, s *store.Store, tbl *store.Table[T], rows ...T) {
	t.Helper()
	_, err := store.AddRecords(context.Background(), s, tbl, slices.Values(rows), store.WriteOptions{})
	require.NoError(t, err)
}

func ptr(v int64) *int64 { return &v }

func TestSubstituter_Transform(t *testing.T) {
	s := testStore(t)
	add(t, s, store.Articles, types.Article{DOI: "10.1/a", URI: "a.nxml"})
	add(t, s, store.Summaries, types.Summary{ArticleID: 1, Summary: "s", Conclusion: "c", Version: "v"})
	add(t, s, store.Abbreviations,
		types.Abbreviation{ArticleID: ptr(1), Abbreviation: "ASA", Meaning: "aspirin"},
		types.Abbreviation{SummaryID: ptr(1), Abbreviation: "HA", Meaning: "headache"},
	)

	sub := Substituter{Store: s, Version: "v2"}
	in := []types.SimpleConclusion{
		{ID: 7, SummaryID: 1, Conclusion: "ASA treats HA."},
		{ID: 8, SummaryID: 1, Error: "simplifier crashed"},
	}
	var got []types.Result[types.SimpleSubstitutedConclusion]
	for r, err := range sub.Transform(context.Background(), slices.Values(in)) {
		require.NoError(t, err)
		got = append(got, r)
	}

	require.Len(t, got, 2)
	require.True(t, got[0].IsOk())
	assert.Equal(t, types.SimpleSubstitutedConclusion{
		SimpleConclusionID: 7, SummaryID: 1, Conclusion: "aspirin treats headache.", Version: "v2",
	}, got[0].Value)
	assert.False(t, got[1].IsOk())
	assert.Contains(t, got[1].Err, "simplifier crashed")
}

func TestSubstituter_MissingSummary(t *testing.T) {
	s := testStore(t)
	sub := Substituter{Store: s}

	var errs []error
	for _, err := range sub.Transform(context.Background(), slices.Values([]types.SimpleConclusion{{ID: 1, SummaryID: 42}})) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorContains(t, errs[0], "loading summary 42")
}
