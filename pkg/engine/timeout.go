package engine

import (
	"fmt"
	"time"
)

// EvalTimeout is the default limit for a single rule evaluation.
const EvalTimeout = time.Second

// evalResult passes a rule outcome from the evaluating goroutine.
type evalResult struct {
	value  bool
	errors []EvalError
	err    error
}

// waitWithTimeout waits for a result from ch, but returns a timeout error
// if the evaluation exceeds limit. On timeout the goroutine may still be
// running; ch is buffered so its late send never blocks.
func waitWithTimeout(ch <-chan evalResult, limit time.Duration) (bool, []EvalError, error) {
	timer := time.NewTimer(limit)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res.value, res.errors, res.err
	case <-timer.C:
		return false, nil, fmt.Errorf("evaluation timed out after %s", limit)
	}
}
