package ml

import (
	"context"
	"errors"
	"fmt"
	"math"
)

var ErrModelNotLoaded = errors.New("model not loaded")

// Classifier is a fitted binary classifier over a single-row frame.
type Classifier interface {
	PredictClass(row Row) (int, error)
	PredictProba(row Row) (float64, error)
	Threshold() float64
}

// PredictionResult is the outcome of one inference.
type PredictionResult struct {
	Label       int     `json:"label"`
	Probability float64 `json:"probability"`
	Threshold   float64 `json:"threshold"`
}

// HighRisk reports whether the positive class was predicted.
func (r PredictionResult) HighRisk() bool {
	return r.Label == 1
}

// Percent is the probability as a whole percentage, truncated.
func (r PredictionResult) Percent() int {
	return int(r.Probability * 100)
}

// Invoker runs one record through a loaded classifier.
type Invoker struct {
	classifier Classifier
}

func NewInvoker(classifier Classifier) *Invoker {
	return &Invoker{classifier: classifier}
}

// Ready reports whether a classifier is loaded.
func (i *Invoker) Ready() bool {
	return i != nil && i.classifier != nil
}

// Threshold returns the decision threshold of the loaded classifier.
func (i *Invoker) Threshold() float64 {
	if !i.Ready() {
		return 0
	}
	return i.classifier.Threshold()
}

// Predict validates the record and returns the classifier's decision.
func (i *Invoker) Predict(ctx context.Context, record FeatureRecord) (PredictionResult, error) {
	if !i.Ready() {
		return PredictionResult{}, ErrModelNotLoaded
	}
	if err := ctx.Err(); err != nil {
		return PredictionResult{}, err
	}
	if err := record.Validate(); err != nil {
		return PredictionResult{}, err
	}
	return i.predictRow(record.Row())
}

// PredictRow runs an already assembled frame. Columns are resolved by the
// classifier, so a missing column surfaces as ErrSchemaMismatch.
func (i *Invoker) PredictRow(ctx context.Context, row Row) (PredictionResult, error) {
	if !i.Ready() {
		return PredictionResult{}, ErrModelNotLoaded
	}
	if err := ctx.Err(); err != nil {
		return PredictionResult{}, err
	}
	return i.predictRow(row)
}

func (i *Invoker) predictRow(row Row) (PredictionResult, error) {
	proba, err := i.classifier.PredictProba(row)
	if err != nil {
		return PredictionResult{}, fmt.Errorf("predict proba: %w", err)
	}
	label, err := i.classifier.PredictClass(row)
	if err != nil {
		return PredictionResult{}, fmt.Errorf("predict class: %w", err)
	}
	if math.IsNaN(proba) || proba < 0 || proba > 1 {
		return PredictionResult{}, fmt.Errorf("classifier returned probability %v outside [0,1]", proba)
	}
	if label != 0 && label != 1 {
		return PredictionResult{}, fmt.Errorf("classifier returned label %d", label)
	}
	return PredictionResult{Label: label, Probability: proba, Threshold: i.classifier.Threshold()}, nil
}
