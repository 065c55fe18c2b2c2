package transform

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scorewise/scorewise/internal/schema"
)

func ptr(v float64) *float64 { return &v }

func testColumns() []Column {
	return []Column{
		{Name: "income_z", Source: "income", Kind: KindNumeric, Impute: ptr(50000), Center: ptr(50000), Scale: ptr(10000)},
		{Name: "age", Source: "age", Kind: KindNumeric, Impute: ptr(40)},
		{Name: "housing_own", Source: "housing", Kind: KindIndicator, Category: "own"},
		{Name: "housing_rent", Source: "housing", Kind: KindIndicator, Category: "rent"},
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		columns []Column
		wantErr string
	}{
		{"valid", testColumns(), ""},
		{"empty", nil, "empty"},
		{"no source", []Column{{Name: "x", Kind: KindNumeric}}, "no source"},
		{"zero scale", []Column{{Name: "x", Source: "a", Kind: KindNumeric, Scale: ptr(0)}}, "zero scale"},
		{"indicator without category", []Column{{Name: "x", Source: "a", Kind: KindIndicator}}, "no category"},
		{"duplicate indicator", []Column{
			{Name: "x", Source: "a", Kind: KindIndicator, Category: "own"},
			{Name: "y", Source: "a", Kind: KindIndicator, Category: "own"},
		}, "duplicate"},
		{"unknown kind", []Column{{Name: "x", Source: "a", Kind: "weird"}}, "unknown kind"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.columns)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestApply(t *testing.T) {
	tr, err := New(testColumns())
	require.NoError(t, err)

	tests := []struct {
		name    string
		rec     schema.Record
		want    []float64
		wantErr string
	}{
		{
			name: "numeric standardization and one hot",
			rec:  schema.Record{"income": 60000.0, "age": 33.0, "housing": "rent"},
			want: []float64{1.0, 33.0, 0, 1},
		},
		{
			name: "missing numeric is imputed",
			rec:  schema.Record{"age": 33.0, "housing": "own"},
			want: []float64{0, 33.0, 1, 0},
		},
		{
			name: "null numeric is imputed",
			rec:  schema.Record{"income": nil, "age": nil, "housing": "own"},
			want: []float64{0, 40.0, 1, 0},
		},
		{
			name: "NaN numeric is imputed",
			rec:  schema.Record{"income": math.NaN(), "age": 20.0, "housing": "own"},
			want: []float64{0, 20.0, 1, 0},
		},
		{
			name: "integers and bools coerce",
			rec:  schema.Record{"income": 70000, "age": true, "housing": "own"},
			want: []float64{2.0, 1.0, 1, 0},
		},
		{
			name:    "unseen category",
			rec:     schema.Record{"income": 60000.0, "age": 33.0, "housing": "houseboat"},
			wantErr: `unseen category "houseboat" for feature "housing"`,
		},
		{
			name:    "missing categorical",
			rec:     schema.Record{"income": 60000.0, "age": 33.0},
			wantErr: `categorical feature "housing" is missing`,
		},
		{
			name:    "non numeric value for numeric column",
			rec:     schema.Record{"income": "lots", "age": 33.0, "housing": "own"},
			wantErr: "expects a number",
		},
		{
			name:    "non string value for categorical column",
			rec:     schema.Record{"income": 60000.0, "age": 33.0, "housing": 7.0},
			wantErr: "expects a category string",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tr.Apply(tt.rec)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApplyMissingWithoutImpute(t *testing.T) {
	tr, err := New([]Column{{Name: "x", Source: "a", Kind: KindNumeric}})
	require.NoError(t, err)

	_, err = tr.Apply(schema.Record{})
	assert.ErrorContains(t, err, "no imputation value")
}

func TestMetadata(t *testing.T) {
	tr, err := New(testColumns())
	require.NoError(t, err)

	assert.Equal(t, 4, tr.Len())
	assert.Equal(t, []string{"income_z", "age", "housing_own", "housing_rent"}, tr.Columns())
	assert.Equal(t, "housing", tr.SourceFeature(2))

	assert.True(t, tr.IsCategorical("housing"))
	assert.False(t, tr.IsCategorical("income"))
	assert.Equal(t, []string{"own", "rent"}, tr.Categories("housing"))
	assert.Nil(t, tr.Categories("income"))
}
