// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package transform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/scigraph/pkg/types"
)

// fakeRuntime answers Run by decoding each stdin line and passing it to the
// handler registered for the image.
type fakeRuntime struct {
	handlers map[string]func(line json.RawMessage) []any
	missing  map[string]bool
	fail     map[string]error
	runs     map[string]int
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		handlers: make(map[string]func(json.RawMessage) []any),
		missing:  make(map[string]bool),
		fail:     make(map[string]error),
		runs:     make(map[string]int),
	}
}

func (f *fakeRuntime) Name() string { return "fake" }

func (f *fakeRuntime) Available(context.Context) bool { return true }

func (f *fakeRuntime) ImageExists(_ context.Context, image string) error {
	if f.missing[image] {
		return fmt.Errorf("image %s not found", image)
	}
	return nil
}

func (f *fakeRuntime) Run(_ context.Context, image string, stdin io.Reader, stdout io.Writer) error {
	f.runs[image]++
	if err := f.fail[image]; err != nil {
		return err
	}
	handler, ok := f.handlers[image]
	if !ok {
		return fmt.Errorf("no handler for %s", image)
	}
	dec := json.NewDecoder(stdin)
	enc := json.NewEncoder(stdout)
	for {
		var line json.RawMessage
		if err := dec.Decode(&line); err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
		for _, out := range handler(line) {
			if err := enc.Encode(out); err != nil {
				return err
			}
		}
	}
}

type word struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

func upper(line json.RawMessage) []any {
	var w word
	if err := json.Unmarshal(line, &w); err != nil {
		panic(err)
	}
	return []any{word{ID: w.ID, Text: strings.ToUpper(w.Text)}}
}

func words(texts ...string) []word {
	out := make([]word, len(texts))
	for i, t := range texts {
		out[i] = word{ID: i + 1, Text: t}
	}
	return out
}

func TestCollaborator_Transform(t *testing.T) {
	tests := []struct {
		name      string
		in        []word
		batchSize int
		bypass    func(word) ([]word, bool)
		wantTexts []string
		wantRuns  int
	}{
		{
			name:      "single batch",
			in:        words("a", "b"),
			wantTexts: []string{"A", "B"},
			wantRuns:  1,
		},
		{
			name:      "batches of two",
			in:        words("a", "b", "c", "d", "e"),
			batchSize: 2,
			wantTexts: []string{"A", "B", "C", "D", "E"},
			wantRuns:  3,
		},
		{
			name:      "bypassed rows skip the container",
			in:        words("a", "", "c"),
			batchSize: 10,
			bypass: func(w word) ([]word, bool) {
				if w.Text != "" {
					return nil, false
				}
				return []word{{ID: w.ID, Text: "empty"}}, true
			},
			wantTexts: []string{"empty", "A", "C"},
			wantRuns:  1,
		},
		{
			name:      "all rows bypassed",
			in:        words("a"),
			bypass:    func(word) ([]word, bool) { return nil, true },
			wantTexts: nil,
			wantRuns:  0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := newFakeRuntime()
			rt.handlers["upper"] = upper
			c := Collaborator[word, word]{Runtime: rt, Image: "upper", BatchSize: tt.batchSize, Bypass: tt.bypass}

			var got []string
			for out, err := range c.Transform(context.Background(), slices.Values(tt.in)) {
				require.NoError(t, err)
				got = append(got, out.Text)
			}
			assert.Equal(t, tt.wantTexts, got)
			assert.Equal(t, tt.wantRuns, rt.runs["upper"])
		})
	}
}

func TestCollaborator_RunFailure(t *testing.T) {
	rt := newFakeRuntime()
	rt.handlers["upper"] = upper
	rt.fail["upper"] = errors.New("exit status 137")
	c := Collaborator[word, word]{Runtime: rt, Image: "upper"}

	var errs []error
	for _, err := range c.Transform(context.Background(), slices.Values(words("a"))) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorContains(t, errs[0], "exit status 137")
}

func TestCollaborator_BadOutput(t *testing.T) {
	rt := newFakeRuntime()
	rt.handlers["bad"] = func(json.RawMessage) []any { return []any{"not an object"} }
	c := Collaborator[word, word]{Runtime: rt, Image: "bad"}

	var lastErr error
	for _, err := range c.Transform(context.Background(), slices.Values(words("a"))) {
		lastErr = err
	}
	require.Error(t, lastErr)
	assert.Contains(t, lastErr.Error(), "decoding output of bad")
}

func TestCollaborator_EarlyBreak(t *testing.T) {
	rt := newFakeRuntime()
	rt.handlers["upper"] = upper
	c := Collaborator[word, word]{Runtime: rt, Image: "upper", BatchSize: 2}

	n := 0
	for range c.Transform(context.Background(), slices.Values(words("a", "b", "c", "d"))) {
		n++
		break
	}
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, rt.runs["upper"], "later batches are never run")
}

func TestCollaborator_Check(t *testing.T) {
	rt := newFakeRuntime()
	rt.missing["gone:latest"] = true

	assert.NoError(t, Collaborator[word, word]{Runtime: rt, Image: "upper"}.Check(context.Background()))
	err := Collaborator[word, word]{Runtime: rt, Image: "gone:latest"}.Check(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not available in fake")
}

func TestSteps_CheckImages(t *testing.T) {
	rt := newFakeRuntime()
	cfg := Steps{Runtime: rt, Config: types.DefaultConfig().Collaborators}
	assert.NoError(t, cfg.CheckImages(context.Background()))

	rt.missing[cfg.Config.SimplifierImage] = true
	err := cfg.CheckImages(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), cfg.Config.SimplifierImage)
}
