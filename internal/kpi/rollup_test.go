package kpi

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"kpiwarehouse/pkg/contracts/domain"
)

func TestAggregate(t *testing.T) {
	points := []Point{
		{Month: 1, Value: f(4)},
		{Month: 3, Value: nil},
		{Month: 2, Value: f(10)},
		{Month: 0, Value: f(-1)},
	}

	tests := []struct {
		agg  domain.Aggregation
		want float64
	}{
		{domain.AggregationSum, 13},
		{"", 13},
		{"unknown", 13},
		{domain.AggregationAvg, 13.0 / 3},
		{"MEAN", 13.0 / 3},
		{domain.AggregationMax, 10},
		{domain.AggregationMin, -1},
		{domain.AggregationLatest, 10},
	}

	for _, tt := range tests {
		t.Run(string(tt.agg), func(t *testing.T) {
			got := Aggregate(tt.agg, points)
			if assert.NotNil(t, got) {
				assert.InDelta(t, tt.want, *got, 1e-9)
			}
		})
	}
}

func TestAggregateAllNull(t *testing.T) {
	assert.Nil(t, Aggregate(domain.AggregationSum, []Point{{Month: 1}, {Month: 2}}))
	assert.Nil(t, Aggregate(domain.AggregationLatest, nil))
}
