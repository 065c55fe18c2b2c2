package api

// PredictRequest is the body of POST /predict: one value per declared feature,
// in the exact order returned by GET /features.
// Length is validated against the declared schema, not here: an empty or
// missing list must surface the expected-vs-received message.
type PredictRequest struct {
	Values []any `json:"values"`
}

// PredictResponse is the result of one scoring round trip. ShapValues and
// ExpectedValue are null when the explanation step failed; Prediction and
// Proba are always populated on a 200.
type PredictResponse struct {
	Prediction    int       `json:"prediction"`
	Proba         float64   `json:"proba"`
	Threshold     float64   `json:"threshold"`
	ShapValues    []float64 `json:"shap_values"`
	ExpectedValue *float64  `json:"expected_value"`
}

// FeatureInfo describes one declared input feature so clients can render the
// right control and pre-fill the baseline default.
type FeatureInfo struct {
	Name       string   `json:"name"`
	Kind       string   `json:"kind"` // "numeric" or "categorical"
	Categories []string `json:"categories,omitempty"`
	Default    any      `json:"default"`
}

// FeaturesResponse is the body of GET /features.
type FeaturesResponse struct {
	Features []FeatureInfo `json:"features"`
}

// HistogramBucket is one bin of a population histogram.
type HistogramBucket struct {
	Low   float64 `json:"low"`
	High  float64 `json:"high"`
	Count int     `json:"count"`
}

// CategoryCount is one category of a categorical population distribution.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// HistogramResponse is the body of GET /population/:feature/histogram.
// Buckets is set for numeric features, Categories for categorical ones.
// Percentile is only present when the caller supplied a reference value.
type HistogramResponse struct {
	Feature    string            `json:"feature"`
	Total      int               `json:"total"`
	Buckets    []HistogramBucket `json:"buckets,omitempty"`
	Categories []CategoryCount   `json:"categories,omitempty"`
	Value      *float64          `json:"value,omitempty"`
	Percentile *float64          `json:"percentile,omitempty"`
}

// FeatureImportance is one entry of the global attribution summary.
type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// ImportanceResponse is the body of GET /importance, backed by the artifact
// written by the offline global-importance job.
type ImportanceResponse struct {
	GeneratedAt string              `json:"generated_at"`
	SampleSize  int                 `json:"sample_size"`
	Features    []FeatureImportance `json:"features"`
}
