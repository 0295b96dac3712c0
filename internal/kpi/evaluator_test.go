package kpi

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"kpiwarehouse/pkg/contracts/domain"
)

func TestEvaluate(t *testing.T) {
	ev := NewEvaluator(nil)
	ev.RegisterFunction("clamp01", func(args ...float64) (float64, error) {
		if len(args) != 1 {
			return 0, errors.New("clamp01 expects one argument")
		}
		return max(0, min(1, args[0])), nil
	})
	ev.RegisterContextFunction("headcount_ratio", func(ctx Context) (float64, error) {
		v := ctx.Values()
		return v["output"] / v["headcount"], nil
	})
	ev.RegisterContextFunction("broken", func(Context) (float64, error) {
		panic("boom")
	})

	ctx := Context{"revenue": f(100), "cost": f(40), "output": f(80), "hours": f(0), "headcount": f(4), "empty": nil}

	tests := []struct {
		name      string
		def       domain.MetricDefinition
		want      *float64
		wantReady bool
	}{
		{"difference", domain.MetricDefinition{MetricCode: "total", Formula: s("total = revenue - cost")}, f(60), true},
		{"divide by zero", domain.MetricDefinition{MetricCode: "efficiency", Formula: s("efficiency = output/hours")}, nil, true},
		{"unknown variable waits", domain.MetricDefinition{MetricCode: "x", Formula: s("revenue * later")}, nil, false},
		{"null operand", domain.MetricDefinition{MetricCode: "y", Formula: s("empty + 1")}, nil, true},
		{"unregistered function waits", domain.MetricDefinition{MetricCode: "unk", Formula: s("bogus(revenue)")}, nil, false},
		{"builtin function", domain.MetricDefinition{MetricCode: "mag", Formula: s("abs(cost - revenue)")}, f(60), true},
		{"registered function", domain.MetricDefinition{MetricCode: "share", Formula: s("clamp01(cost / 10)")}, f(1), true},
		{"context function", domain.MetricDefinition{MetricCode: "per_head", Formula: s(" headcount_ratio ")}, f(20), true},
		{"panicking context function", domain.MetricDefinition{MetricCode: "bad", Formula: s("broken")}, nil, true},
		{"rejected syntax", domain.MetricDefinition{MetricCode: "z", Formula: s("revenue.real")}, nil, true},
		{"no formula", domain.MetricDefinition{MetricCode: "REVENUE"}, f(100), true},
		{"no formula and no fact", domain.MetricDefinition{MetricCode: "scrap"}, nil, true},
		{"blank formula", domain.MetricDefinition{MetricCode: "cost", Formula: s("  ")}, f(40), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ready := ev.Evaluate(tt.def, ctx)
			assert.Equal(t, tt.wantReady, ready)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve(t *testing.T) {
	e := NewEngine(nil, nil)
	defs := []domain.MetricDefinition{
		{MetricCode: "c", Formula: s("b * 2")},
		{MetricCode: "b", Formula: s("a + 1")},
		{MetricCode: "a", Formula: s("revenue / 10")},
		{MetricCode: "loop", Formula: s("loop + 1")},
		{MetricCode: "gap", Formula: s("missing_fact - 1")},
		{MetricCode: "unk", Formula: s("bogus(revenue)")},
		{MetricCode: "nullable", Formula: s("cost * 2")},
		{MetricCode: "after_null", Formula: s("nullable + 1")},
	}

	computed := e.resolve(defs, Context{"revenue": f(100), "cost": nil})

	assert.Equal(t, map[string]*float64{
		"a":          f(10),
		"b":          f(11),
		"c":          f(22),
		"nullable":   nil,
		"after_null": nil,
	}, computed)
}
