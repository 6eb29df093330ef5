// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"testing"
)

func TestParseRunMode(t *testing.T) {
	tests := []struct {
		in      string
		want    RunMode
		wantErr bool
	}{
		{"ALL", ModeAll, false},
		{"fresh", ModeFresh, false},
		{" Newer ", ModeNewer, false},
		{"once", ModeOnce, false},
		{"LATEST", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRunMode(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownMode) {
					t.Fatalf("ParseRunMode(%q) error = %v, want ErrUnknownMode", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRunMode(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseRunMode(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNeedsDownstream(t *testing.T) {
	for mode, want := range map[RunMode]bool{
		ModeAll: false, ModeFresh: true, ModeNewer: true, ModeOnce: false,
	} {
		if got := mode.NeedsDownstream(); got != want {
			t.Errorf("%s.NeedsDownstream() = %v, want %v", mode, got, want)
		}
	}
}

func TestParseDuplicates(t *testing.T) {
	if d, err := ParseDuplicates(""); err != nil || d != DuplicatesRaise {
		t.Errorf("ParseDuplicates(\"\") = %q, %v", d, err)
	}
	if d, err := ParseDuplicates("SKIP"); err != nil || d != DuplicatesSkip {
		t.Errorf("ParseDuplicates(SKIP) = %q, %v", d, err)
	}
	if _, err := ParseDuplicates("ignore"); err == nil {
		t.Error("ParseDuplicates(ignore) should fail")
	}
}

func TestResult(t *testing.T) {
	ok := Ok(Summary{ID: 1})
	if !ok.IsOk() {
		t.Error("Ok result reports failure")
	}
	failed := Failed(Summary{ArticleID: 3}, "")
	if failed.IsOk() {
		t.Error("Failed result reports success")
	}
	if failed.Err != "unknown error" {
		t.Errorf("Failed with empty reason: Err = %q", failed.Err)
	}
	if failed.Value.ArticleID != 3 {
		t.Errorf("Failed dropped partial value: %+v", failed.Value)
	}
}

func TestEdgePredicate(t *testing.T) {
	e := Edge{Attributes: map[string]string{"predicate": "treats"}}
	if got := e.Predicate(); got != "treats" {
		t.Errorf("Predicate() = %q", got)
	}
	if got := (Edge{}).Predicate(); got != "" {
		t.Errorf("Predicate() on empty edge = %q", got)
	}
}
