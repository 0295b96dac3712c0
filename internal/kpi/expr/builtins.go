package expr

import (
	"errors"
	"fmt"
	"math"
)

// Builtins returns a fresh copy of the default function table.
func Builtins() Functions {
	return Functions{
		"abs":   abs,
		"sqrt":  sqrt,
		"min":   extremum(math.Min),
		"max":   extremum(math.Max),
		"pow":   pow,
		"round": round,
	}
}

func arity(name string, args []float64, want int) error {
	if len(args) != want {
		return fmt.Errorf("%s expects %d argument(s), got %d", name, want, len(args))
	}
	return nil
}

func abs(args ...float64) (float64, error) {
	if err := arity("abs", args, 1); err != nil {
		return 0, err
	}
	return math.Abs(args[0]), nil
}

func sqrt(args ...float64) (float64, error) {
	if err := arity("sqrt", args, 1); err != nil {
		return 0, err
	}
	if args[0] < 0 {
		return 0, errors.New("sqrt of negative number")
	}
	return math.Sqrt(args[0]), nil
}

func extremum(pick func(a, b float64) float64) Func {
	return func(args ...float64) (float64, error) {
		if len(args) == 0 {
			return 0, errors.New("expects at least one argument")
		}
		out := args[0]
		for _, v := range args[1:] {
			out = pick(out, v)
		}
		return out, nil
	}
}

func pow(args ...float64) (float64, error) {
	if err := arity("pow", args, 2); err != nil {
		return 0, err
	}
	return applyBinary(tokPower, args[0], args[1])
}

// round rounds half to even, optionally to a number of decimal places.
func round(args ...float64) (float64, error) {
	switch len(args) {
	case 1:
		return math.RoundToEven(args[0]), nil
	case 2:
		scale := math.Pow(10, math.Trunc(args[1]))
		return math.RoundToEven(args[0]*scale) / scale, nil
	}
	return 0, fmt.Errorf("round expects 1 or 2 arguments, got %d", len(args))
}
