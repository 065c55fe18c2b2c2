package explain

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/scorewise/scorewise/internal/errors"
	"github.com/scorewise/scorewise/internal/model"
	"github.com/scorewise/scorewise/internal/schema"
	"github.com/scorewise/scorewise/internal/transform"
)

func ptr(v float64) *float64 { return &v }

func testArtifacts(t *testing.T) (*schema.Schema, *transform.Transform, *model.Ensemble) {
	t.Helper()
	sc, err := schema.New(
		[]string{"income", "age", "housing"},
		schema.Record{"income": 50000.0, "age": 40.0, "housing": "own"},
	)
	require.NoError(t, err)

	tr, err := transform.New([]transform.Column{
		{Name: "income_z", Source: "income", Kind: transform.KindNumeric, Impute: ptr(50000), Center: ptr(50000), Scale: ptr(10000)},
		{Name: "age", Source: "age", Kind: transform.KindNumeric, Impute: ptr(40)},
		{Name: "housing_own", Source: "housing", Kind: transform.KindIndicator, Category: "own"},
		{Name: "housing_rent", Source: "housing", Kind: transform.KindIndicator, Category: "rent"},
	})
	require.NoError(t, err)

	ens := &model.Ensemble{
		BaseMargin:  -1.0,
		Threshold:   0.5,
		NumFeatures: 4,
		Trees: []model.Tree{
			{Nodes: []model.Node{
				{Feature: 0, Threshold: 0, Left: 1, Right: 2, Missing: 1, Value: 0.1},
				{Feature: -1, Value: -0.5},
				{Feature: -1, Value: 0.8},
			}},
			{Nodes: []model.Node{
				{Feature: 3, Threshold: 0.5, Left: 1, Right: 2, Missing: 1, Value: -0.05},
				{Feature: -1, Value: -0.3},
				{Feature: 1, Threshold: 30, Left: 3, Right: 4, Missing: 4, Value: 0.6},
				{Feature: -1, Value: 2.0},
				{Feature: -1, Value: 0.4},
			}},
		},
	}
	return sc, tr, ens
}

func testExplainer(t *testing.T) *Explainer {
	t.Helper()
	sc, tr, ens := testArtifacts(t)
	e, err := NewExplainer(sc, tr, ens)
	require.NoError(t, err)
	return e
}

func TestNewExplainer(t *testing.T) {
	sc, tr, ens := testArtifacts(t)

	_, err := NewExplainer(nil, tr, ens)
	assert.Error(t, err)

	ens.NumFeatures = 9
	_, err = NewExplainer(sc, tr, ens)
	assert.ErrorContains(t, err, "model expects 9")
}

func TestExplain(t *testing.T) {
	e := testExplainer(t)

	res, err := e.Explain(schema.Record{"income": 30000.0, "age": 25.0, "housing": "rent"})
	require.NoError(t, err)

	assert.Equal(t, []string{"income", "age", "housing"}, res.Features)
	require.Len(t, res.Contributions, 3)

	// per-column contributions re-aggregated onto the declared features:
	// income_z -> income, age -> age, both housing indicators -> housing
	assert.InDelta(t, -0.6, res.Contributions[0], 1e-12)
	assert.InDelta(t, 1.4, res.Contributions[1], 1e-12)
	assert.InDelta(t, 0.65, res.Contributions[2], 1e-12)
	assert.InDelta(t, -0.95, res.ExpectedValue, 1e-12)
}

// The one-hot group for a categorical feature collapses into a single signed
// contribution, so both indicator columns credit the same declared feature.
func TestExplainAggregatesOneHotGroup(t *testing.T) {
	sc, tr, ens := testArtifacts(t)
	// make both housing indicators carry signal
	ens.Trees[0].Nodes[0].Feature = 2
	ens.Trees[0].Nodes[0].Threshold = 0.5
	e, err := NewExplainer(sc, tr, ens)
	require.NoError(t, err)

	res, err := e.Explain(schema.Record{"income": 50000.0, "age": 40.0, "housing": "rent"})
	require.NoError(t, err)

	// tree 0 now splits on housing_own (0 -> left, -0.5 - 0.1) and tree 1 on
	// housing_rent; both land on index 2 of the declared features
	assert.Zero(t, res.Contributions[0])
	assert.InDelta(t, -0.2, res.Contributions[1], 1e-12) // age: 0.4 - 0.6
	assert.InDelta(t, -0.6+0.65, res.Contributions[2], 1e-12)
}

func TestExplainAdditivity(t *testing.T) {
	e := testExplainer(t)
	_, tr, ens := testArtifacts(t)

	records := []schema.Record{
		{"income": 60000.0, "age": 40.0, "housing": "own"},
		{"income": 30000.0, "age": 25.0, "housing": "rent"},
		{"income": nil, "age": 70.0, "housing": "rent"},
	}
	for _, rec := range records {
		res, err := e.Explain(rec)
		require.NoError(t, err)

		total := res.ExpectedValue
		for _, c := range res.Contributions {
			total += c
		}
		x, err := tr.Apply(rec)
		require.NoError(t, err)
		assert.InDelta(t, ens.PredictMargin(x), total, 1e-9)
	}
}

func TestExplainTransformFailure(t *testing.T) {
	e := testExplainer(t)

	_, err := e.Explain(schema.Record{"income": 50000.0, "age": 40.0, "housing": "yurt"})
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryExplanation))
}

func TestGlobalImportance(t *testing.T) {
	e := testExplainer(t)

	background := []schema.Record{
		{"income": 60000.0, "age": 40.0, "housing": "own"},
		{"income": 30000.0, "age": 25.0, "housing": "rent"},
	}
	summary, err := e.GlobalImportance(background)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.SampleSize)
	assert.NotEmpty(t, summary.GeneratedAt)
	require.Len(t, summary.Features, 3)

	// sorted by importance, descending
	for i := 1; i < len(summary.Features); i++ {
		assert.GreaterOrEqual(t, summary.Features[i-1].Importance, summary.Features[i].Importance)
	}
	// mean of |0.7| and |-0.6| for income
	byName := map[string]float64{}
	for _, f := range summary.Features {
		byName[f.Feature] = f.Importance
	}
	assert.InDelta(t, 0.65, byName["income"], 1e-12)
	assert.InDelta(t, 0.7, byName["age"], 1e-12)  // (0 + 1.4) / 2
	assert.InDelta(t, 0.45, byName["housing"], 1e-12) // (0.25 + 0.65) / 2
}

func TestGlobalImportanceEmptyBackground(t *testing.T) {
	e := testExplainer(t)
	_, err := e.GlobalImportance(nil)
	assert.ErrorContains(t, err, "empty")
}

func TestImportanceArtifactRoundTrip(t *testing.T) {
	e := testExplainer(t)
	summary, err := e.GlobalImportance([]schema.Record{
		{"income": 30000.0, "age": 25.0, "housing": "rent"},
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "importance.json")
	require.NoError(t, SaveImportance(path, summary))

	loaded, err := LoadImportance(path)
	require.NoError(t, err)
	assert.Equal(t, summary.SampleSize, loaded.SampleSize)
	assert.Equal(t, summary.Features, loaded.Features)

	_, err = LoadImportance(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}
