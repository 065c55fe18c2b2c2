package transform

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/scorewise/scorewise/internal/schema"
)

// Column kinds. A numeric column passes the raw value through imputation and
// optional standardization; an indicator column is the one-hot encoding of a
// single (feature, category) pair.
const (
	KindNumeric   = "numeric"
	KindIndicator = "indicator"
)

// Column is one output column of the fitted transform, in model input order.
type Column struct {
	Name     string   `json:"name"`
	Source   string   `json:"source"`
	Kind     string   `json:"kind"`
	Impute   *float64 `json:"impute,omitempty"`
	Center   *float64 `json:"center,omitempty"`
	Scale    *float64 `json:"scale,omitempty"`
	Category string   `json:"category,omitempty"`
}

// Transform is a deterministic, pre-fitted preprocessing step loaded as an
// artifact. It is immutable after construction and safe for concurrent use.
type Transform struct {
	columns []Column
	// known categorical levels per source feature, collected from the
	// indicator columns; values outside this set are rejected
	categories map[string]map[string]struct{}
}

// New validates the column list and builds a transform.
func New(columns []Column) (*Transform, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("transform: column list is empty")
	}
	categories := make(map[string]map[string]struct{})
	for i, col := range columns {
		if col.Source == "" {
			return nil, fmt.Errorf("transform: column %d (%q) has no source feature", i, col.Name)
		}
		switch col.Kind {
		case KindNumeric:
			if col.Scale != nil && *col.Scale == 0 {
				return nil, fmt.Errorf("transform: column %q has zero scale", col.Name)
			}
		case KindIndicator:
			if col.Category == "" {
				return nil, fmt.Errorf("transform: indicator column %q has no category", col.Name)
			}
			set, ok := categories[col.Source]
			if !ok {
				set = make(map[string]struct{})
				categories[col.Source] = set
			}
			if _, dup := set[col.Category]; dup {
				return nil, fmt.Errorf("transform: duplicate indicator %q=%q", col.Source, col.Category)
			}
			set[col.Category] = struct{}{}
		default:
			return nil, fmt.Errorf("transform: column %q has unknown kind %q", col.Name, col.Kind)
		}
	}
	return &Transform{
		columns:    append([]Column(nil), columns...),
		categories: categories,
	}, nil
}

// Len returns the number of output columns.
func (t *Transform) Len() int { return len(t.columns) }

// Columns returns the output column names in order.
func (t *Transform) Columns() []string {
	names := make([]string, len(t.columns))
	for i, col := range t.columns {
		names[i] = col.Name
	}
	return names
}

// SourceFeature returns the raw feature an output column was derived from.
func (t *Transform) SourceFeature(i int) string { return t.columns[i].Source }

// Categories returns the known categorical levels for a source feature, or
// nil if the feature is not categorically encoded.
func (t *Transform) Categories(source string) []string {
	set, ok := t.categories[source]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for _, col := range t.columns {
		if col.Kind == KindIndicator && col.Source == source {
			out = append(out, col.Category)
		}
	}
	return out
}

// IsCategorical reports whether a source feature is one-hot encoded.
func (t *Transform) IsCategorical(source string) bool {
	_, ok := t.categories[source]
	return ok
}

// Apply converts a fully merged record into the model input vector. A missing
// or null numeric value is imputed; a non-numeric value for a numeric column
// or a categorical level the transform was not fitted on is an error.
func (t *Transform) Apply(rec schema.Record) ([]float64, error) {
	out := make([]float64, len(t.columns))
	for i, col := range t.columns {
		raw, present := rec[col.Source]
		switch col.Kind {
		case KindNumeric:
			v, err := numericValue(raw, present, col)
			if err != nil {
				return nil, err
			}
			if col.Center != nil {
				v -= *col.Center
			}
			if col.Scale != nil {
				v /= *col.Scale
			}
			out[i] = v
		case KindIndicator:
			level, err := categoryValue(raw, present, col)
			if err != nil {
				return nil, err
			}
			if _, known := t.categories[col.Source][level]; !known {
				return nil, fmt.Errorf("transform: unseen category %q for feature %q", level, col.Source)
			}
			if level == col.Category {
				out[i] = 1
			}
		}
	}
	return out, nil
}

func numericValue(raw any, present bool, col Column) (float64, error) {
	if !present || raw == nil {
		return imputed(col)
	}
	switch v := raw.(type) {
	case float64:
		if math.IsNaN(v) {
			return imputed(col)
		}
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("transform: feature %q: %w", col.Source, err)
		}
		return f, nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("transform: feature %q expects a number, got %T", col.Source, raw)
	}
}

func imputed(col Column) (float64, error) {
	if col.Impute == nil {
		return 0, fmt.Errorf("transform: feature %q is missing and has no imputation value", col.Source)
	}
	return *col.Impute, nil
}

func categoryValue(raw any, present bool, col Column) (string, error) {
	if !present || raw == nil {
		return "", fmt.Errorf("transform: categorical feature %q is missing", col.Source)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("transform: feature %q expects a category string, got %T", col.Source, raw)
	}
	return s, nil
}
