package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := New(
		[]string{"income", "age", "housing"},
		Record{"income": 50000.0, "age": 40.0, "housing": "own", "undeclared_extra": 1.0},
	)
	require.NoError(t, err)
	return s
}

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		features []string
		baseline Record
		wantErr  string
	}{
		{
			name:     "valid",
			features: []string{"a", "b"},
			baseline: Record{"a": 1.0, "b": 2.0},
		},
		{
			name:     "empty feature list",
			features: nil,
			baseline: Record{},
			wantErr:  "empty",
		},
		{
			name:     "duplicate feature",
			features: []string{"a", "a"},
			baseline: Record{"a": 1.0},
			wantErr:  "duplicate",
		},
		{
			name:     "empty feature name",
			features: []string{"a", ""},
			baseline: Record{"a": 1.0},
			wantErr:  "empty name",
		},
		{
			name:     "baseline missing a declared feature",
			features: []string{"a", "b"},
			baseline: Record{"a": 1.0},
			wantErr:  "baseline record missing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.features, tt.baseline)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestMergeValues(t *testing.T) {
	s := testSchema(t)

	t.Run("exact length merges in declared order", func(t *testing.T) {
		rec, err := s.MergeValues([]any{62000.0, 33.0, "rent"})
		require.NoError(t, err)
		assert.Equal(t, 62000.0, rec["income"])
		assert.Equal(t, 33.0, rec["age"])
		assert.Equal(t, "rent", rec["housing"])
		// non-declared baseline features survive the merge untouched
		assert.Equal(t, 1.0, rec["undeclared_extra"])
	})

	t.Run("wrong length is rejected with both counts", func(t *testing.T) {
		_, err := s.MergeValues([]any{62000.0, 33.0})
		var mismatch *MismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, 3, mismatch.Expected)
		assert.Equal(t, 2, mismatch.Received)
		assert.Equal(t, "expected 3 feature values, received 2", mismatch.Error())
	})

	t.Run("empty payload is rejected", func(t *testing.T) {
		_, err := s.MergeValues(nil)
		var mismatch *MismatchError
		require.ErrorAs(t, err, &mismatch)
		assert.Equal(t, 0, mismatch.Received)
	})
}

func TestMergeWithBaseline(t *testing.T) {
	s := testSchema(t)

	rec := s.MergeWithBaseline(map[string]any{
		"age":      55.0,
		"unknown":  "ignored",
		"housing":  "rent",
		"SK_ID":    123.0, // not declared, must not leak in
	})
	assert.Equal(t, 50000.0, rec["income"], "untouched features keep the baseline value")
	assert.Equal(t, 55.0, rec["age"])
	assert.Equal(t, "rent", rec["housing"])
	assert.NotContains(t, rec, "unknown")
	assert.NotContains(t, rec, "SK_ID")
}

func TestMergeDoesNotMutateBaseline(t *testing.T) {
	s := testSchema(t)

	_, err := s.MergeValues([]any{1.0, 2.0, "rent"})
	require.NoError(t, err)
	assert.Equal(t, 50000.0, s.Baseline()["income"])
	assert.Equal(t, "own", s.Baseline()["housing"])
}

func TestIndex(t *testing.T) {
	s := testSchema(t)
	assert.Equal(t, 0, s.Index("income"))
	assert.Equal(t, 2, s.Index("housing"))
	assert.Equal(t, -1, s.Index("nope"))
	assert.Equal(t, -1, s.Index("undeclared_extra"))
}
