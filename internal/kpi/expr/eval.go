package expr

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrDivisionByZero is returned for x/0, x//0 and x%0.
	ErrDivisionByZero = errors.New("division by zero")
	// ErrNotFinite is returned when a result is NaN or infinite.
	ErrNotFinite = errors.New("result is not a finite number")
)

// UndefinedError reports a variable or function missing from the
// evaluation environment.
type UndefinedError struct {
	Name     string
	Function bool
}

func (e *UndefinedError) Error() string {
	if e.Function {
		return fmt.Sprintf("undefined function %q", e.Name)
	}
	return fmt.Sprintf("undefined variable %q", e.Name)
}

// NullOperandError reports arithmetic on a variable that exists but has
// no value.
type NullOperandError struct {
	Name string
}

func (e *NullOperandError) Error() string {
	return fmt.Sprintf("variable %q is null", e.Name)
}

// Vars resolves variable names. A nil value with ok set means the name is
// known but null.
type Vars interface {
	Lookup(name string) (value *float64, ok bool)
}

// Func is a scalar function callable from a formula.
type Func func(args ...float64) (float64, error)

// Functions maps callable names to implementations.
type Functions map[string]Func

// Eval evaluates the expression.
func (e *Expr) Eval(vars Vars, funcs Functions) (float64, error) {
	v, err := eval(e.root, vars, funcs)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrNotFinite
	}
	return v, nil
}

func eval(n node, vars Vars, funcs Functions) (float64, error) {
	switch x := n.(type) {
	case *numberNode:
		return x.value, nil

	case *identNode:
		if vars == nil {
			return 0, &UndefinedError{Name: x.name}
		}
		v, ok := vars.Lookup(x.name)
		if !ok {
			return 0, &UndefinedError{Name: x.name}
		}
		if v == nil {
			return 0, &NullOperandError{Name: x.name}
		}
		return *v, nil

	case *unaryNode:
		v, err := eval(x.operand, vars, funcs)
		if err != nil {
			return 0, err
		}
		if x.op == tokMinus {
			return -v, nil
		}
		return v, nil

	case *binaryNode:
		left, err := eval(x.left, vars, funcs)
		if err != nil {
			return 0, err
		}
		right, err := eval(x.right, vars, funcs)
		if err != nil {
			return 0, err
		}
		return applyBinary(x.op, left, right)

	case *callNode:
		fn, ok := funcs[x.name]
		if !ok {
			return 0, &UndefinedError{Name: x.name, Function: true}
		}
		args := make([]float64, len(x.args))
		for i, arg := range x.args {
			v, err := eval(arg, vars, funcs)
			if err != nil {
				return 0, err
			}
			args[i] = v
		}
		v, err := fn(args...)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", x.name, err)
		}
		return v, nil
	}
	return 0, fmt.Errorf("unknown node %T", n)
}

func applyBinary(op tokenKind, a, b float64) (float64, error) {
	switch op {
	case tokPlus:
		return a + b, nil
	case tokMinus:
		return a - b, nil
	case tokStar:
		return a * b, nil
	case tokSlash:
		if b == 0 {
			return 0, ErrDivisionByZero
		}
		return a / b, nil
	case tokFloorDiv:
		if b == 0 {
			return 0, ErrDivisionByZero
		}
		return math.Floor(a / b), nil
	case tokPercent:
		if b == 0 {
			return 0, ErrDivisionByZero
		}
		// The result takes the sign of the divisor.
		r := math.Mod(a, b)
		if r != 0 && (r < 0) != (b < 0) {
			r += b
		}
		return r, nil
	case tokPower:
		if a == 0 && b < 0 {
			return 0, ErrDivisionByZero
		}
		return math.Pow(a, b), nil
	}
	return 0, fmt.Errorf("unknown operator %s", op)
}
