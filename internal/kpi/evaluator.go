package kpi

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	"kpiwarehouse/internal/kpi/expr"
	"kpiwarehouse/pkg/contracts/domain"
)

// ContextFunc computes a metric from the whole formula context. A metric
// whose formula is exactly the registered name is computed by the function.
type ContextFunc func(ctx Context) (float64, error)

// Evaluator evaluates metric formulas. Faults are logged and turned into
// null values. It is safe for concurrent use.
type Evaluator struct {
	funcs        expr.Functions
	contextFuncs map[string]ContextFunc
	logger       *slog.Logger

	mu    sync.Mutex
	cache map[string]parsed
}

type parsed struct {
	expr *expr.Expr
	err  error
}

// NewEvaluator creates an evaluator with the built-in function table.
func NewEvaluator(logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		funcs:        expr.Builtins(),
		contextFuncs: make(map[string]ContextFunc),
		logger:       logger,
		cache:        make(map[string]parsed),
	}
}

// RegisterFunction adds an arithmetic function callable from formulas.
func (ev *Evaluator) RegisterFunction(name string, fn expr.Func) {
	ev.funcs[name] = fn
}

// RegisterContextFunction adds a whole-context function.
func (ev *Evaluator) RegisterContextFunction(name string, fn ContextFunc) {
	ev.contextFuncs[name] = fn
}

func (ev *Evaluator) parse(formula string) (*expr.Expr, error) {
	ev.mu.Lock()
	defer ev.mu.Unlock()

	if p, ok := ev.cache[formula]; ok {
		return p.expr, p.err
	}
	e, err := expr.Parse(formula)
	ev.cache[formula] = parsed{expr: e, err: err}
	return e, err
}

// Evaluate computes one metric against ctx. ready is false when the
// formula reads a name not yet present in ctx or calls an unregistered
// function; the metric should then be retried once more names are known. A ready metric may still have a nil
// value.
func (ev *Evaluator) Evaluate(def domain.MetricDefinition, ctx Context) (value *float64, ready bool) {
	if !def.HasFormula() {
		v, _ := ctx.Lookup(def.MetricCode)
		return v, true
	}

	formula := strings.TrimSpace(*def.Formula)
	if fn, ok := ev.contextFuncs[formula]; ok {
		return ev.callContextFunc(def.MetricCode, formula, fn, ctx), true
	}

	e, err := ev.parse(formula)
	if err != nil {
		ev.logger.Warn("Metric formula rejected",
			slog.String("metric_code", def.MetricCode),
			slog.String("formula", formula),
			slog.String("error", err.Error()))
		return nil, true
	}

	for _, name := range e.Identifiers() {
		if !ctx.Has(name) {
			return nil, false
		}
	}
	for _, name := range e.Calls() {
		if _, ok := ev.funcs[name]; !ok {
			return nil, false
		}
	}

	v, err := e.Eval(ctx, ev.funcs)
	if err != nil {
		ev.logger.Debug("Metric evaluated to null",
			slog.String("metric_code", def.MetricCode),
			slog.String("error", err.Error()))
		return nil, true
	}
	return &v, true
}

func (ev *Evaluator) callContextFunc(metric, name string, fn ContextFunc, ctx Context) (out *float64) {
	defer func() {
		if r := recover(); r != nil {
			ev.logger.Warn("Context function panicked",
				slog.String("metric_code", metric),
				slog.String("function", name),
				slog.String("panic", fmt.Sprint(r)))
			out = nil
		}
	}()

	v, err := fn(ctx)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		ev.logger.Debug("Context function returned no value",
			slog.String("metric_code", metric),
			slog.String("function", name))
		return nil
	}
	return &v
}
