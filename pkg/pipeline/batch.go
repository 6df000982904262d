package pipeline

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Batch processes inputs with at most workers images in flight. A failing
// image never stops the others. Statuses are returned in input order.
// Inputs sharing a stem write to distinct artifact names, see Stems.
func (p *Pipeline) Batch(ctx context.Context, inputs []string, outDir string, workers int) []Status {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	results := make([]Status, len(inputs))
	stems := Stems(inputs)

	var g errgroup.Group
	g.SetLimit(workers)
	for i, input := range inputs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = Failed(err)
				return nil
			}
			results[i] = p.process(ctx, input, outDir, stems[i])
			return nil
		})
	}
	g.Wait()
	return results
}

// Stems assigns every input a unique artifact stem. The first input with
// a given stem keeps it; later ones get "_2", "_3" and so on, skipping
// any name another input already owns.
func Stems(inputs []string) []string {
	taken := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		taken[Stem(in)] = true
	}
	assigned := make(map[string]bool, len(inputs))
	stems := make([]string, len(inputs))
	for i, in := range inputs {
		base := Stem(in)
		if !assigned[base] {
			assigned[base] = true
			stems[i] = base
			continue
		}
		for n := 2; ; n++ {
			c := fmt.Sprintf("%s_%d", base, n)
			if !taken[c] {
				taken[c] = true
				assigned[c] = true
				stems[i] = c
				break
			}
		}
	}
	return stems
}
