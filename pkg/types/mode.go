// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"errors"
	"fmt"
	"strings"
)

// RunMode selects which upstream rows a pipeline step processes.
type RunMode string

const (
	// ModeAll selects every row.
	ModeAll RunMode = "ALL"

	// ModeFresh selects rows with no referencing row in the downstream table.
	ModeFresh RunMode = "FRESH"

	// ModeNewer selects rows added after the earliest referencing row in the
	// downstream table. Rows with no downstream counterpart are not selected.
	ModeNewer RunMode = "NEWER"

	// ModeOnce selects a single row by id.
	ModeOnce RunMode = "ONCE"
)

// ErrUnknownMode is returned for a run mode outside ALL, FRESH, NEWER, ONCE.
var ErrUnknownMode = errors.New("unknown run mode")

// RunModes lists the accepted modes in display order.
var RunModes = []RunMode{ModeAll, ModeFresh, ModeNewer, ModeOnce}

// ParseRunMode parses a mode name case-insensitively.
func ParseRunMode(s string) (RunMode, error) {
	m := RunMode(strings.ToUpper(strings.TrimSpace(s)))
	if err := m.Validate(); err != nil {
		return "", err
	}
	return m, nil
}

// Validate returns ErrUnknownMode when m is not one of RunModes.
func (m RunMode) Validate() error {
	for _, known := range RunModes {
		if m == known {
			return nil
		}
	}
	names := make([]string, len(RunModes))
	for i, known := range RunModes {
		names[i] = string(known)
	}
	return fmt.Errorf("%w %q: allowed values are %s", ErrUnknownMode, string(m), strings.Join(names, ","))
}

// NeedsDownstream reports whether the mode filters against a downstream table.
func (m RunMode) NeedsDownstream() bool {
	return m == ModeFresh || m == ModeNewer
}

// Duplicates selects how inserts that violate a uniqueness constraint are handled.
type Duplicates string

const (
	// DuplicatesRaise fails the commit window with a duplicate-record error.
	DuplicatesRaise Duplicates = "raise"

	// DuplicatesSkip drops the violating row and continues.
	DuplicatesSkip Duplicates = "skip"
)

// ParseDuplicates parses a duplicate policy; the empty string means raise.
func ParseDuplicates(s string) (Duplicates, error) {
	switch Duplicates(strings.ToLower(strings.TrimSpace(s))) {
	case "", DuplicatesRaise:
		return DuplicatesRaise, nil
	case DuplicatesSkip:
		return DuplicatesSkip, nil
	}
	return "", fmt.Errorf("unknown duplicate policy %q: use raise or skip", s)
}
