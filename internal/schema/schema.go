package schema

import (
	"fmt"
	"sort"
)

// Record is one applicant record: feature name to raw value. Values are
// float64 for numeric features and string for categorical ones, matching what
// encoding/json produces for the wire payloads.
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// MismatchError reports a positional payload whose length does not match the
// declared feature count.
type MismatchError struct {
	Expected int
	Received int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("expected %d feature values, received %d", e.Expected, e.Received)
}

// Schema holds the ordered declared feature list and the baseline record used
// to backfill any feature a caller does not supply. Both are fixed at load
// time and shared read-only across requests; every merge works on a copy.
type Schema struct {
	features []string
	index    map[string]int
	baseline Record
}

// New builds a schema from the declared feature order and the baseline record.
// The baseline may cover a superset of the declared features (the model's full
// training feature space) but must cover every declared one.
func New(features []string, baseline Record) (*Schema, error) {
	if len(features) == 0 {
		return nil, fmt.Errorf("schema: declared feature list is empty")
	}
	index := make(map[string]int, len(features))
	for i, name := range features {
		if name == "" {
			return nil, fmt.Errorf("schema: feature %d has an empty name", i)
		}
		if _, dup := index[name]; dup {
			return nil, fmt.Errorf("schema: duplicate feature %q", name)
		}
		index[name] = i
	}
	var missing []string
	for _, name := range features {
		if _, ok := baseline[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("schema: baseline record missing declared features %v", missing)
	}
	return &Schema{
		features: append([]string(nil), features...),
		index:    index,
		baseline: baseline.Clone(),
	}, nil
}

// Features returns the declared feature names in canonical order.
func (s *Schema) Features() []string {
	return append([]string(nil), s.features...)
}

// Len returns the declared feature count N.
func (s *Schema) Len() int { return len(s.features) }

// Index returns the position of a declared feature, or -1 if it is not
// declared.
func (s *Schema) Index(name string) int {
	if i, ok := s.index[name]; ok {
		return i
	}
	return -1
}

// Baseline returns a copy of the baseline record.
func (s *Schema) Baseline() Record { return s.baseline.Clone() }

// MergeWithBaseline overlays the supplied values onto a copy of the baseline
// record. Keys that are not declared features are ignored; after the merge
// every feature of the model's full feature space resolves to a value.
func (s *Schema) MergeWithBaseline(partial map[string]any) Record {
	merged := s.baseline.Clone()
	for name, value := range partial {
		if _, declared := s.index[name]; declared {
			merged[name] = value
		}
	}
	return merged
}

// MergeValues merges a positional value list, one value per declared feature
// in canonical order. The length must equal the declared feature count; any
// other length fails with a MismatchError.
func (s *Schema) MergeValues(values []any) (Record, error) {
	if len(values) != len(s.features) {
		return nil, &MismatchError{Expected: len(s.features), Received: len(values)}
	}
	partial := make(map[string]any, len(values))
	for i, v := range values {
		partial[s.features[i]] = v
	}
	return s.MergeWithBaseline(partial), nil
}
