// Package composite evaluates the deformed mesh: the basis plus the weighted
// sum of every active morph target displacement.
package composite

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/facerig/pkg/mesh"
	"github.com/Faultbox/facerig/pkg/morph"
)

// Default tuning for Evaluator.
const (
	DefaultChunkSize = 4096
)

// Evaluate returns basis + Σ weight·delta on the calling goroutine.
// Inputs are not modified.
func Evaluate(basis *mesh.Basis, contribs []morph.Contribution) (mesh.VertexBuffer, error) {
	out := basis.Positions()
	if err := checkLengths(len(out), contribs); err != nil {
		return nil, err
	}
	accumulate(out, contribs, 0, len(out))
	return out, nil
}

// Evaluator splits the vertex range into chunks summed concurrently.
// The result is identical to Evaluate: each output vertex is owned by
// exactly one chunk and contributions are added in slice order.
type Evaluator struct {
	// Workers bounds concurrent chunks. Zero means GOMAXPROCS.
	Workers int
	// ChunkSize is the number of vertices per task. Zero means DefaultChunkSize.
	ChunkSize int
	// SkipZero drops contributions with weight 0 before summing.
	SkipZero bool
}

// NewEvaluator returns an evaluator with default tuning.
func NewEvaluator() *Evaluator {
	return &Evaluator{SkipZero: true}
}

// Evaluate computes the deformed buffer. It returns ctx.Err() if cancelled
// before all chunks ran.
func (e *Evaluator) Evaluate(ctx context.Context, basis *mesh.Basis, contribs []morph.Contribution) (mesh.VertexBuffer, error) {
	out := basis.Positions()
	if err := checkLengths(len(out), contribs); err != nil {
		return nil, err
	}
	if e.SkipZero {
		contribs = nonZero(contribs)
	}
	if len(contribs) == 0 {
		return out, nil
	}

	chunk := e.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	if len(out) <= chunk {
		accumulate(out, contribs, 0, len(out))
		return out, nil
	}

	workers := e.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for lo := 0; lo < len(out); lo += chunk {
		lo, hi := lo, min(lo+chunk, len(out))
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			accumulate(out, contribs, lo, hi)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func accumulate(out mesh.VertexBuffer, contribs []morph.Contribution, lo, hi int) {
	for _, c := range contribs {
		if c.Weight == 0 {
			continue
		}
		d := c.Delta[lo:hi]
		for i, v := range d {
			if v.IsZero() {
				continue
			}
			out[lo+i] = out[lo+i].Add(v.Scale(c.Weight))
		}
	}
}

func nonZero(contribs []morph.Contribution) []morph.Contribution {
	out := make([]morph.Contribution, 0, len(contribs))
	for _, c := range contribs {
		if c.Weight != 0 {
			out = append(out, c)
		}
	}
	return out
}

func checkLengths(n int, contribs []morph.Contribution) error {
	for i, c := range contribs {
		if len(c.Delta) != n {
			return fmt.Errorf("contribution %d: %w (%d != %d)", i, morph.ErrLengthMismatch, len(c.Delta), n)
		}
	}
	return nil
}
