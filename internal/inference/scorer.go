package inference

import (
	"fmt"

	apperrors "github.com/scorewise/scorewise/internal/errors"
	"github.com/scorewise/scorewise/internal/model"
	"github.com/scorewise/scorewise/internal/schema"
	"github.com/scorewise/scorewise/internal/transform"
)

// ScoreResult is one scored applicant. Label is always derived from
// Probability and Threshold, never stored independently.
type ScoreResult struct {
	Probability float64
	Threshold   float64
	Label       int
}

// Scorer wraps the pre-fitted transform and classifier into the single
// score operation: raw record in, calibrated default probability out. The
// loaded artifacts are read-only; a Scorer is safe for concurrent use.
type Scorer struct {
	transform *transform.Transform
	ensemble  *model.Ensemble
	threshold float64
}

// NewScorer builds a scorer. A non-positive threshold falls back to the
// threshold the model artifact was calibrated with.
func NewScorer(tr *transform.Transform, ens *model.Ensemble, threshold float64) (*Scorer, error) {
	if tr == nil || ens == nil {
		return nil, fmt.Errorf("inference: transform and ensemble are required")
	}
	if tr.Len() != ens.NumFeatures {
		return nil, fmt.Errorf("inference: transform produces %d columns, model expects %d", tr.Len(), ens.NumFeatures)
	}
	if threshold <= 0 {
		threshold = ens.Threshold
	}
	if threshold <= 0 || threshold > 1 {
		return nil, fmt.Errorf("inference: decision threshold %v outside (0,1]", threshold)
	}
	return &Scorer{transform: tr, ensemble: ens, threshold: threshold}, nil
}

// Threshold returns the decision threshold in effect.
func (s *Scorer) Threshold() float64 { return s.threshold }

// Score transforms a fully merged record and returns the positive-class
// (default) probability with its derived label: 1 (refused) when the
// probability reaches the threshold, 0 (approved) otherwise. Any transform or
// model failure surfaces as an inference error with the cause attached; a
// probability is never defaulted.
func (s *Scorer) Score(rec schema.Record) (ScoreResult, error) {
	x, err := s.transform.Apply(rec)
	if err != nil {
		return ScoreResult{}, apperrors.NewInferenceError("preprocessing failed: "+err.Error(), err)
	}
	proba := s.ensemble.PredictProba(x)
	return s.resultFor(proba), nil
}

func (s *Scorer) resultFor(proba float64) ScoreResult {
	label := 0
	if proba >= s.threshold {
		label = 1
	}
	return ScoreResult{Probability: proba, Threshold: s.threshold, Label: label}
}
