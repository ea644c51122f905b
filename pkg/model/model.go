// Package model loads document-type models and runs them over feature
// vectors. Models are trained elsewhere; this package only consumes the
// exported artifact.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/aretw0/pdfledger/pkg/core"
	"github.com/aretw0/pdfledger/pkg/taxonomy"
)

// Prediction is the output of a predictor for one document.
type Prediction struct {
	Class      taxonomy.DocType
	Confidence float64
	// Probabilities per canonical class. Sums to 1.
	Probabilities map[taxonomy.DocType]float64
}

// Predictor turns a feature vector into a class and a confidence in [0,1].
type Predictor interface {
	ID() string
	// Features names the vector positions Predict expects.
	Features() []string
	Predict(features []float64) (Prediction, error)
}

// Artifact is a multinomial logistic regression exported with its
// preprocessing: median imputation followed by standard scaling.
type Artifact struct {
	ModelID      string      `json:"model_id"`
	Classes      []string    `json:"classes"`
	FeatureNames []string    `json:"feature_names"`
	Coefficients [][]float64 `json:"coefficients"`
	Intercepts   []float64   `json:"intercepts"`
	Medians      []float64   `json:"imputer_medians"`
	Means        []float64   `json:"scaler_means"`
	Scales       []float64   `json:"scaler_scales"`

	classes []taxonomy.DocType
}

var _ Predictor = (*Artifact)(nil)

// Load reads and validates an artifact file. Any failure wraps
// core.ErrModelUnavailable.
func Load(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrModelUnavailable, err)
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrModelUnavailable, path, err)
	}
	if err := a.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrModelUnavailable, path, err)
	}
	return &a, nil
}

func (a *Artifact) validate() error {
	n := len(a.FeatureNames)
	if n == 0 {
		return errors.New("no features")
	}
	if len(a.Classes) < 2 {
		return errors.New("need at least two classes")
	}
	rows := len(a.Classes)
	if rows == 2 && len(a.Coefficients) == 1 {
		// Binary models carry a single row for the second class.
		rows = 1
	}
	if len(a.Coefficients) != rows || len(a.Intercepts) != rows {
		return fmt.Errorf("coefficient rows %d, intercepts %d, want %d", len(a.Coefficients), len(a.Intercepts), rows)
	}
	for i, row := range a.Coefficients {
		if len(row) != n {
			return fmt.Errorf("coefficient row %d has %d values, want %d", i, len(row), n)
		}
	}
	for name, v := range map[string][]float64{"imputer_medians": a.Medians, "scaler_means": a.Means, "scaler_scales": a.Scales} {
		if v != nil && len(v) != n {
			return fmt.Errorf("%s has %d values, want %d", name, len(v), n)
		}
	}

	a.classes = make([]taxonomy.DocType, len(a.Classes))
	for i, c := range a.Classes {
		t, ok := taxonomy.Current.Normalize(c)
		if !ok {
			return fmt.Errorf("class %q is outside the taxonomy", c)
		}
		a.classes[i] = t
	}
	return nil
}

// ID returns the model identifier.
func (a *Artifact) ID() string { return a.ModelID }

// Features returns the expected feature order.
func (a *Artifact) Features() []string { return a.FeatureNames }

// Predict scores features. NaN values are imputed with the training median.
// Classes written under the legacy taxonomy are folded onto their canonical
// value and their probabilities summed.
func (a *Artifact) Predict(features []float64) (Prediction, error) {
	if a.classes == nil {
		if err := a.validate(); err != nil {
			return Prediction{}, fmt.Errorf("%w: %v", core.ErrModelUnavailable, err)
		}
	}
	if len(features) != len(a.FeatureNames) {
		return Prediction{}, fmt.Errorf("got %d features, want %d", len(features), len(a.FeatureNames))
	}

	x := make([]float64, len(features))
	for i, v := range features {
		if math.IsNaN(v) && a.Medians != nil {
			v = a.Medians[i]
		}
		if a.Means != nil {
			v -= a.Means[i]
		}
		if a.Scales != nil && a.Scales[i] != 0 {
			v /= a.Scales[i]
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		x[i] = v
	}

	var probs []float64
	if len(a.Coefficients) == 1 {
		p := sigmoid(dot(a.Coefficients[0], x) + a.Intercepts[0])
		probs = []float64{1 - p, p}
	} else {
		scores := make([]float64, len(a.Coefficients))
		for k, row := range a.Coefficients {
			scores[k] = dot(row, x) + a.Intercepts[k]
		}
		probs = softmax(scores)
	}

	out := Prediction{Probabilities: make(map[taxonomy.DocType]float64, len(taxonomy.All()))}
	for _, t := range taxonomy.All() {
		out.Probabilities[t] = 0
	}
	for k, p := range probs {
		out.Probabilities[a.classes[k]] += p
	}
	// Ties resolve in taxonomy order.
	for _, t := range taxonomy.All() {
		if p := out.Probabilities[t]; out.Class == "" || p > out.Confidence {
			out.Class, out.Confidence = t, p
		}
	}
	return out, nil
}

// Reason is the contribution of one feature to the predicted class.
type Reason struct {
	Feature      string
	Value        float64
	Contribution float64
}

// Explain returns the k features that contributed most, by magnitude, to
// the score of the class the model predicts for features.
func (a *Artifact) Explain(features []float64, k int) ([]Reason, error) {
	pred, err := a.Predict(features)
	if err != nil {
		return nil, err
	}
	row := 0
	if len(a.Coefficients) > 1 {
		for i, c := range a.classes {
			if c == pred.Class {
				row = i
				break
			}
		}
	}
	reasons := make([]Reason, len(features))
	for i, v := range features {
		z := v
		if math.IsNaN(z) && a.Medians != nil {
			z = a.Medians[i]
		}
		if a.Means != nil {
			z -= a.Means[i]
		}
		if a.Scales != nil && a.Scales[i] != 0 {
			z /= a.Scales[i]
		}
		reasons[i] = Reason{Feature: a.FeatureNames[i], Value: v, Contribution: a.Coefficients[row][i] * z}
	}
	sort.SliceStable(reasons, func(i, j int) bool {
		return math.Abs(reasons[i].Contribution) > math.Abs(reasons[j].Contribution)
	})
	if k > 0 && k < len(reasons) {
		reasons = reasons[:k]
	}
	return reasons, nil
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func softmax(scores []float64) []float64 {
	max := math.Inf(-1)
	for _, s := range scores {
		if s > max {
			max = s
		}
	}
	out := make([]float64, len(scores))
	var sum float64
	for i, s := range scores {
		out[i] = math.Exp(s - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
