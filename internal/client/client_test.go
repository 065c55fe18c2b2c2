package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scorewise/scorewise/internal/api"
	apperrors "github.com/scorewise/scorewise/internal/errors"
)

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{"message": "pong"})
	}))
	defer srv.Close()

	msg, err := New(srv.URL).Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pong", msg)
}

func TestPredict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/predict", r.URL.Path)

		var req api.PredictRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []any{60000.0, 33.0, "rent"}, req.Values)

		expected := -0.95
		json.NewEncoder(w).Encode(api.PredictResponse{
			Prediction:    1,
			Proba:         0.62,
			Threshold:     0.5,
			ShapValues:    []float64{0.3, -0.1, 0.2},
			ExpectedValue: &expected,
		})
	}))
	defer srv.Close()

	resp, err := New(srv.URL).Predict(context.Background(), []any{60000.0, 33.0, "rent"})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Prediction)
	assert.Equal(t, 0.62, resp.Proba)
	assert.Equal(t, []float64{0.3, -0.1, 0.2}, resp.ShapValues)
	require.NotNil(t, resp.ExpectedValue)
	assert.Equal(t, -0.95, *resp.ExpectedValue)
}

func TestPredictErrorDetailSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"detail": "expected 3 feature values, received 2"})
	}))
	defer srv.Close()

	_, err := New(srv.URL).Predict(context.Background(), []any{1.0, 2.0})
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryUpstream))
	assert.ErrorContains(t, err, "400")
	assert.ErrorContains(t, err, "expected 3 feature values, received 2")
}

func TestUnreachableServiceIsUpstreamError(t *testing.T) {
	// a server that is already closed
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := New(srv.URL).Predict(context.Background(), []any{1.0})
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryUpstream))
	assert.ErrorContains(t, err, "unreachable")
}

func TestHistogramQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/population/income/histogram", r.URL.Path)
		assert.Equal(t, "42000", r.URL.Query().Get("value"))
		json.NewEncoder(w).Encode(api.HistogramResponse{Feature: "income", Total: 100})
	}))
	defer srv.Close()

	value := 42000.0
	hist, err := New(srv.URL).Histogram(context.Background(), "income", &value)
	require.NoError(t, err)
	assert.Equal(t, "income", hist.Feature)
	assert.Equal(t, 100, hist.Total)
}

func TestFeaturesAndImportance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/features":
			json.NewEncoder(w).Encode(api.FeaturesResponse{Features: []api.FeatureInfo{
				{Name: "income", Kind: "numeric", Default: 50000.0},
				{Name: "housing", Kind: "categorical", Categories: []string{"own", "rent"}, Default: "own"},
			}})
		case "/importance":
			json.NewEncoder(w).Encode(api.ImportanceResponse{SampleSize: 10, Features: []api.FeatureImportance{
				{Feature: "income", Importance: 0.7},
			}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL)

	features, err := c.Features(context.Background())
	require.NoError(t, err)
	require.Len(t, features, 2)
	assert.Equal(t, "categorical", features[1].Kind)

	summary, err := c.Importance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, summary.SampleSize)
}
