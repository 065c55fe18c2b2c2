package explain

import (
	"fmt"
	"sync"

	apperrors "github.com/scorewise/scorewise/internal/errors"
	"github.com/scorewise/scorewise/internal/model"
	"github.com/scorewise/scorewise/internal/schema"
	"github.com/scorewise/scorewise/internal/transform"
)

// AttributionResult holds one signed margin-space contribution per declared
// feature, in declared order, plus the expected value the contributions are
// additive against. Positive contributions push toward "refused", matching the
// positive-class orientation of the probability.
type AttributionResult struct {
	Features      []string
	Contributions []float64
	ExpectedValue float64
}

// Explainer computes per-feature attributions for one record. Contributions
// are produced per transformed column and re-aggregated back onto the declared
// feature names: one-hot groups are summed, columns derived from non-declared
// features are dropped, and declared features the transform never touches stay
// at zero. The ensemble walk is serialized; tree attribution state is not
// documented reentrant.
type Explainer struct {
	schema    *schema.Schema
	transform *transform.Transform
	ensemble  *model.Ensemble
	mu        sync.Mutex
}

// NewExplainer builds an explainer over the loaded artifacts.
func NewExplainer(sc *schema.Schema, tr *transform.Transform, ens *model.Ensemble) (*Explainer, error) {
	if sc == nil || tr == nil || ens == nil {
		return nil, fmt.Errorf("explain: schema, transform and ensemble are required")
	}
	if tr.Len() != ens.NumFeatures {
		return nil, fmt.Errorf("explain: transform produces %d columns, model expects %d", tr.Len(), ens.NumFeatures)
	}
	return &Explainer{schema: sc, transform: tr, ensemble: ens}, nil
}

// Explain returns the attribution for one fully merged record. Failures
// surface as explanation errors; the caller decides whether they are fatal.
func (e *Explainer) Explain(rec schema.Record) (*AttributionResult, error) {
	x, err := e.transform.Apply(rec)
	if err != nil {
		return nil, apperrors.NewExplanationError("preprocessing failed: "+err.Error(), err)
	}
	return e.explainVector(x)
}

func (e *Explainer) explainVector(x []float64) (*AttributionResult, error) {
	if len(x) != e.ensemble.NumFeatures {
		return nil, apperrors.NewExplanationError(
			fmt.Sprintf("transformed vector has %d columns, model expects %d", len(x), e.ensemble.NumFeatures), nil)
	}

	e.mu.Lock()
	raw, expected := e.ensemble.Contributions(x)
	e.mu.Unlock()

	features := e.schema.Features()
	out := make([]float64, len(features))
	for col, contrib := range raw {
		if i := e.schema.Index(e.transform.SourceFeature(col)); i >= 0 {
			out[i] += contrib
		}
	}
	return &AttributionResult{
		Features:      features,
		Contributions: out,
		ExpectedValue: expected,
	}, nil
}
