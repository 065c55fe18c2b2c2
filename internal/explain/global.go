package explain

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/scorewise/scorewise/internal/api"
	"github.com/scorewise/scorewise/internal/schema"
)

// GlobalImportance runs the global attribution summary: the mean absolute
// per-feature contribution over a background sample. This is the offline batch
// counterpart of Explain; the service never recomputes it at request time.
func (e *Explainer) GlobalImportance(background []schema.Record) (*api.ImportanceResponse, error) {
	if len(background) == 0 {
		return nil, fmt.Errorf("explain: background sample is empty")
	}
	features := e.schema.Features()
	sums := make([]float64, len(features))
	for i, rec := range background {
		res, err := e.Explain(rec)
		if err != nil {
			return nil, fmt.Errorf("explain: background record %d: %w", i, err)
		}
		for j, c := range res.Contributions {
			sums[j] += math.Abs(c)
		}
	}

	out := &api.ImportanceResponse{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		SampleSize:  len(background),
		Features:    make([]api.FeatureImportance, len(features)),
	}
	for i, name := range features {
		out.Features[i] = api.FeatureImportance{
			Feature:    name,
			Importance: sums[i] / float64(len(background)),
		}
	}
	sort.SliceStable(out.Features, func(i, j int) bool {
		return out.Features[i].Importance > out.Features[j].Importance
	})
	return out, nil
}

// SaveImportance writes the summary artifact the dashboard and GET /importance
// read.
func SaveImportance(path string, summary *api.ImportanceResponse) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("explain: create importance artifact: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("explain: encode importance artifact: %w", err)
	}
	return nil
}

// LoadImportance reads a previously generated summary artifact.
func LoadImportance(path string) (*api.ImportanceResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("explain: open importance artifact: %w", err)
	}
	defer f.Close()

	var summary api.ImportanceResponse
	if err := json.NewDecoder(f).Decode(&summary); err != nil {
		return nil, fmt.Errorf("explain: decode importance artifact: %w", err)
	}
	if len(summary.Features) == 0 {
		return nil, fmt.Errorf("explain: importance artifact %s has no features", path)
	}
	return &summary, nil
}
