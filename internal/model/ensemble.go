package model

import (
	"fmt"
	"math"
)

// Node is one node of a decision tree. A leaf has Feature == -1 and carries
// the leaf score in Value; an internal node splits on Feature < Threshold
// (left) vs >= (right), with NaN routed to the Missing branch, and carries the
// cover-weighted expected score of its subtree in Value. Child indices must be
// strictly greater than the node's own index.
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Missing   int     `json:"missing"`
	Value     float64 `json:"value"`
}

// IsLeaf reports whether the node is a terminal leaf.
func (n Node) IsLeaf() bool { return n.Feature < 0 }

// Tree is one additive tree of the ensemble, nodes indexed from the root at 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Ensemble is a pre-trained gradient-boosted tree classifier for the positive
// (default) class, evaluated in margin (log-odds) space. It is immutable after
// construction and safe for concurrent reads.
type Ensemble struct {
	BaseMargin  float64 `json:"base_margin"`
	Threshold   float64 `json:"threshold"`
	NumFeatures int     `json:"num_features"`
	Trees       []Tree  `json:"trees"`
}

// Validate checks structural soundness: index ranges, leaf shape, and that
// every split references a valid input column. Child indices must increase so
// traversal always terminates.
func (e *Ensemble) Validate() error {
	if e.NumFeatures <= 0 {
		return fmt.Errorf("model: num_features must be positive, got %d", e.NumFeatures)
	}
	if len(e.Trees) == 0 {
		return fmt.Errorf("model: ensemble has no trees")
	}
	if e.Threshold < 0 || e.Threshold > 1 {
		return fmt.Errorf("model: decision threshold %v outside [0,1]", e.Threshold)
	}
	for ti, tree := range e.Trees {
		if len(tree.Nodes) == 0 {
			return fmt.Errorf("model: tree %d is empty", ti)
		}
		for ni, node := range tree.Nodes {
			if node.IsLeaf() {
				continue
			}
			if node.Feature >= e.NumFeatures {
				return fmt.Errorf("model: tree %d node %d splits on feature %d, only %d inputs", ti, ni, node.Feature, e.NumFeatures)
			}
			for _, child := range []int{node.Left, node.Right, node.Missing} {
				if child <= ni || child >= len(tree.Nodes) {
					return fmt.Errorf("model: tree %d node %d has out-of-order child index %d", ti, ni, child)
				}
			}
		}
	}
	return nil
}

// leafFor walks one tree and returns the leaf index reached by x.
func (t Tree) leafFor(x []float64) int {
	i := 0
	for {
		node := t.Nodes[i]
		if node.IsLeaf() {
			return i
		}
		switch {
		case math.IsNaN(x[node.Feature]):
			i = node.Missing
		case x[node.Feature] < node.Threshold:
			i = node.Left
		default:
			i = node.Right
		}
	}
}

// PredictMargin returns the raw additive score (log-odds of default) for one
// transformed input vector.
func (e *Ensemble) PredictMargin(x []float64) float64 {
	margin := e.BaseMargin
	for _, tree := range e.Trees {
		margin += tree.Nodes[tree.leafFor(x)].Value
	}
	return margin
}

// PredictProba returns the calibrated positive-class (default) probability.
func (e *Ensemble) PredictProba(x []float64) float64 {
	return Sigmoid(e.PredictMargin(x))
}

// ExpectedValue is the attribution baseline: the model's expected margin over
// the training background, i.e. the base margin plus every root expectation.
func (e *Ensemble) ExpectedValue() float64 {
	expected := e.BaseMargin
	for _, tree := range e.Trees {
		expected += tree.Nodes[0].Value
	}
	return expected
}

// Contributions decomposes one prediction along the decision path of every
// tree: each split credits the change in subtree expectation to the split
// feature. The result is one signed margin-space contribution per input
// column plus the expected value, additive by construction:
//
//	ExpectedValue() + sum(contribs) == PredictMargin(x)
//
// Positive contributions push toward the positive (default) class.
func (e *Ensemble) Contributions(x []float64) ([]float64, float64) {
	contribs := make([]float64, e.NumFeatures)
	for _, tree := range e.Trees {
		i := 0
		for {
			node := tree.Nodes[i]
			if node.IsLeaf() {
				break
			}
			var next int
			switch {
			case math.IsNaN(x[node.Feature]):
				next = node.Missing
			case x[node.Feature] < node.Threshold:
				next = node.Left
			default:
				next = node.Right
			}
			contribs[node.Feature] += tree.Nodes[next].Value - node.Value
			i = next
		}
	}
	return contribs, e.ExpectedValue()
}

// Sigmoid maps a margin to a probability.
func Sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }
