// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package transform implements the NLP stages feeding the staging tables:
// container collaborators speaking JSON lines, the MetaMapLite NER client
// and abbreviation substitution.
package transform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"

	"github.com/pdiddy/scigraph/internal/container"
	"github.com/pdiddy/scigraph/internal/logging"
)

// DefaultBatchSize is the number of rows sent to one container run.
const DefaultBatchSize = 50

// Collaborator runs a container image over batches of rows. Each input row
// is written to the container's stdin as one JSON line; every JSON line the
// container prints is decoded as one output row. Row-level failures travel
// in the output rows themselves.
type Collaborator[In, Out any] struct {
	Runtime   container.Runtime
	Image     string
	BatchSize int

	// Bypass answers inputs the image must not see. When ok is true the
	// returned rows are emitted in place of a container round trip.
	Bypass func(in In) (out []Out, ok bool)

	Logger *logging.Logger
}

// Check verifies that the image exists locally.
func (c Collaborator[In, Out]) Check(ctx context.Context) error {
	if err := c.Runtime.ImageExists(ctx, c.Image); err != nil {
		return fmt.Errorf("collaborator image not available in %s: %w", c.Runtime.Name(), err)
	}
	return nil
}

// Transform streams in through the image. A failed container run ends the
// stream with an error.
func (c Collaborator[In, Out]) Transform(ctx context.Context, in iter.Seq[In]) iter.Seq2[Out, error] {
	size := c.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	log := logging.OrNop(c.Logger).With("image", c.Image)

	return func(yield func(Out, error) bool) {
		var zero Out
		batch := make([]In, 0, size)
		flush := func() bool {
			if len(batch) == 0 {
				return true
			}
			outs, err := c.run(ctx, batch)
			log.Debug("container batch done", "inputs", len(batch), "outputs", len(outs))
			batch = batch[:0]
			if err != nil {
				yield(zero, err)
				return false
			}
			for _, o := range outs {
				if !yield(o, nil) {
					return false
				}
			}
			return true
		}

		for row := range in {
			if c.Bypass != nil {
				if outs, ok := c.Bypass(row); ok {
					for _, o := range outs {
						if !yield(o, nil) {
							return
						}
					}
					continue
				}
			}
			batch = append(batch, row)
			if len(batch) >= size && !flush() {
				return
			}
		}
		flush()
	}
}

func (c Collaborator[In, Out]) run(ctx context.Context, batch []In) ([]Out, error) {
	var stdin bytes.Buffer
	enc := json.NewEncoder(&stdin)
	for _, row := range batch {
		if err := enc.Encode(row); err != nil {
			return nil, fmt.Errorf("encoding input for %s: %w", c.Image, err)
		}
	}

	var stdout bytes.Buffer
	if err := c.Runtime.Run(ctx, c.Image, &stdin, &stdout); err != nil {
		return nil, err
	}

	var outs []Out
	dec := json.NewDecoder(&stdout)
	for {
		var o Out
		err := dec.Decode(&o)
		if err == io.EOF {
			return outs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decoding output of %s: %w", c.Image, err)
		}
		outs = append(outs, o)
	}
}
