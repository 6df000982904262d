// Package engine evaluates classification rules written in a small Lisp.
// It wraps zygomys in a sandboxed environment. Every evaluation gets a
// fresh sandbox, so rules cannot leak state into one another.
package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	zygo "github.com/glycerine/zygomys/zygo"
)

// EvalError represents a non-fatal error encountered during evaluation,
// such as a parse error or a runtime error in rule code.
type EvalError struct {
	Line    int
	Col     int
	Message string
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// Bindings are the numeric globals visible to a rule. Names may be
// kebab-case; they are rewritten the same way rule source is.
type Bindings map[string]float64

// Engine runs rule predicates. It holds no interpreter state and is safe
// for concurrent use.
type Engine struct {
	timeout time.Duration
}

// NewEngine creates an Engine. A non-positive timeout selects EvalTimeout.
func NewEngine(timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = EvalTimeout
	}
	return &Engine{timeout: timeout}
}

// Timeout returns the per-evaluation limit.
func (e *Engine) Timeout() time.Duration { return e.timeout }

// Predicate is a compiled-once, evaluated-many rule.
type Predicate struct {
	Name   string
	Source string

	body   string
	engine *Engine
}

// Compile preprocesses source and checks that it parses with sample
// bound. Parse failures are returned as EvalErrors; the predicate is nil
// in that case.
func (e *Engine) Compile(name, source string, sample Bindings) (*Predicate, []EvalError) {
	if strings.TrimSpace(source) == "" {
		return nil, []EvalError{{Message: fmt.Sprintf("rule %q is empty", name)}}
	}
	body := preprocessSource(source)

	env := zygo.NewZlispSandbox()
	defer env.Stop()
	registerBuiltins(env)
	bindGlobals(env, sample)
	if err := env.LoadString(body); err != nil {
		return nil, parseZygomysError(err)
	}
	return &Predicate{Name: name, Source: source, body: body, engine: e}, nil
}

// Eval runs the predicate against vars.
//
// Return semantics:
//   - On success: returns the boolean result + nil errors + nil error
//   - On eval failure or a non-boolean result: false + eval errors + nil error
//   - On fatal failure (timeout, panic): false + nil + error
func (p *Predicate) Eval(vars Bindings) (bool, []EvalError, error) {
	ch := make(chan evalResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- evalResult{err: fmt.Errorf("panic during evaluation of %q: %v", p.Name, r)}
			}
		}()

		ok, evalErrs := p.evaluate(vars)
		ch <- evalResult{value: ok, errors: evalErrs}
	}()

	return waitWithTimeout(ch, p.engine.timeout)
}

// evaluate performs the zygomys evaluation in a fresh sandbox. Bindings
// are installed as globals before the body is loaded, so the body's own
// last expression is the result.
func (p *Predicate) evaluate(vars Bindings) (bool, []EvalError) {
	env := zygo.NewZlispSandbox()
	defer env.Stop()
	registerBuiltins(env)

	bindGlobals(env, vars)
	if err := env.LoadString(p.body); err != nil {
		return false, parseZygomysError(err)
	}
	out, err := env.Run()
	if err != nil {
		return false, parseZygomysError(err)
	}
	b, ok := out.(*zygo.SexpBool)
	if !ok {
		return false, []EvalError{{Message: fmt.Sprintf("rule %q returned %s, want a boolean", p.Name, out.SexpString(nil))}}
	}
	return b.Val, nil
}

// bindGlobals installs vars as float globals at full precision.
func bindGlobals(env *zygo.Zlisp, vars Bindings) {
	for k, v := range vars {
		env.AddGlobal(globalName(k), &zygo.SexpFloat{Val: v})
	}
}

// globalName rewrites a binding name the way rule source is rewritten.
func globalName(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

// linePattern matches zygomys error messages that include "Error on line N: ..."
var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into one or more EvalError values.
func parseZygomysError(err error) []EvalError {
	msg := err.Error()

	for _, re := range []*regexp.Regexp{linePattern, linePatternShort} {
		if m := re.FindStringSubmatch(msg); m != nil {
			line, _ := strconv.Atoi(m[1])
			return []EvalError{{Line: line, Message: strings.TrimSpace(m[2])}}
		}
	}
	return []EvalError{{Message: strings.TrimSpace(msg)}}
}
