package kpi

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"

	apierrors "kpiwarehouse/internal/errors"
	"kpiwarehouse/pkg/contracts/domain"
)

// DefinitionFile is the YAML layout of a metric seed file.
type DefinitionFile struct {
	Metrics []domain.MetricDefinition `yaml:"metrics"`
}

// DefinitionWriter stores metric definitions.
type DefinitionWriter interface {
	UpsertMetricDefinitions(ctx context.Context, defs []domain.MetricDefinition) error
}

// ParseDefinitions decodes and validates a YAML seed document.
func ParseDefinitions(data []byte) ([]domain.MetricDefinition, error) {
	var file DefinitionFile
	if err := yaml.UnmarshalStrict(data, &file); err != nil {
		return nil, apierrors.NewParsingError("decode metric definitions", err)
	}
	if err := ValidateDefinitions(file.Metrics); err != nil {
		return nil, err
	}
	return file.Metrics, nil
}

// LoadDefinitionsFile reads and validates a YAML seed file.
func LoadDefinitionsFile(path string) ([]domain.MetricDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read metric definitions: %w", err)
	}
	defs, err := ParseDefinitions(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return defs, nil
}

// ValidateDefinitions normalizes definitions in place and rejects invalid
// or duplicate entries.
func ValidateDefinitions(defs []domain.MetricDefinition) error {
	if len(defs) == 0 {
		return apierrors.NewAppValidationError("no metric definitions", nil)
	}

	validate := validator.New()
	seen := make(map[string]bool, len(defs))
	for i := range defs {
		def := &defs[i]
		def.MetricCode = strings.TrimSpace(def.MetricCode)
		def.Scope = domain.Scope(strings.ToLower(strings.TrimSpace(string(def.Scope))))
		def.Aggregation = def.Aggregation.Normalize()
		if def.Formula != nil && strings.TrimSpace(*def.Formula) == "" {
			def.Formula = nil
		}

		if err := validate.Struct(def); err != nil {
			return apierrors.NewAppValidationError(fmt.Sprintf("metric %d (%q)", i+1, def.MetricCode), err)
		}
		if seen[def.MetricCode] {
			return apierrors.NewAppValidationError(fmt.Sprintf("metric %q defined more than once", def.MetricCode), nil).
				WithContext("metric_code", def.MetricCode)
		}
		seen[def.MetricCode] = true
	}
	return nil
}

// SeedDefinitions loads a YAML seed file into the store.
func SeedDefinitions(ctx context.Context, w DefinitionWriter, path string) (int, error) {
	defs, err := LoadDefinitionsFile(path)
	if err != nil {
		return 0, err
	}
	if err := w.UpsertMetricDefinitions(ctx, defs); err != nil {
		return 0, err
	}
	return len(defs), nil
}
