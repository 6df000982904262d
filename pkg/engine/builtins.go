package engine

import (
	"fmt"

	zygo "github.com/glycerine/zygomys/zygo"
)

// registerBuiltins adds the numeric helpers rules may call.
func registerBuiltins(env *zygo.Zlisp) {
	// (between x lo hi) is true when lo < x < hi.
	env.AddFunction("between", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("between requires 3 arguments, got %d", len(args))
		}
		v, err := floats(name, args)
		if err != nil {
			return zygo.SexpNull, err
		}
		return &zygo.SexpBool{Val: v[1] < v[0] && v[0] < v[2]}, nil
	})

	// (ratio a b) is max(a/b, b/a), or 0 when either side is zero.
	env.AddFunction("ratio", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("ratio requires 2 arguments, got %d", len(args))
		}
		v, err := floats(name, args)
		if err != nil {
			return zygo.SexpNull, err
		}
		if v[0] == 0 || v[1] == 0 {
			return &zygo.SexpFloat{Val: 0}, nil
		}
		return &zygo.SexpFloat{Val: max(v[0]/v[1], v[1]/v[0])}, nil
	})
}

func floats(name string, args []zygo.Sexp) ([]float64, error) {
	out := make([]float64, len(args))
	for i, a := range args {
		f, err := toFloat64(a)
		if err != nil {
			return nil, fmt.Errorf("%s: argument %d: %w", name, i+1, err)
		}
		out[i] = f
	}
	return out, nil
}

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}
