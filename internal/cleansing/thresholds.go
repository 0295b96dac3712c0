package cleansing

import (
	"strings"
)

// Thresholds is the anomaly gate: a metric is anomalous when its absolute
// value is strictly greater than its threshold.
type Thresholds struct {
	Default   float64
	PerMetric map[string]float64
}

// NewThresholds builds a gate with case-insensitive metric keys.
func NewThresholds(defaultThreshold float64, perMetric map[string]float64) Thresholds {
	normalized := make(map[string]float64, len(perMetric))
	for k, v := range perMetric {
		normalized[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return Thresholds{Default: defaultThreshold, PerMetric: normalized}
}

// For returns the threshold applying to a metric.
func (t Thresholds) For(metric string) float64 {
	if v, ok := t.PerMetric[strings.ToLower(strings.TrimSpace(metric))]; ok {
		return v
	}
	return t.Default
}

// Exceeds reports whether value breaches the threshold of metric.
func (t Thresholds) Exceeds(metric string, value float64) (float64, bool) {
	limit := t.For(metric)
	if value < 0 {
		value = -value
	}
	return limit, value > limit
}
