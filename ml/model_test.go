package ml

import (
	"context"
	"errors"
	"math"
	"testing"
)

type fakeClassifier struct {
	label     int
	proba     float64
	threshold float64
	err       error
}

func (f *fakeClassifier) PredictClass(row Row) (int, error) { return f.label, f.err }
func (f *fakeClassifier) PredictProba(row Row) (float64, error) { return f.proba, f.err }
func (f *fakeClassifier) Threshold() float64 { return f.threshold }

func TestInvokerNotLoaded(t *testing.T) {
	var invoker *Invoker
	if _, err := invoker.Predict(context.Background(), exampleRecord()); !errors.Is(err, ErrModelNotLoaded) {
		t.Fatalf("expected ErrModelNotLoaded, got %v", err)
	}
	if _, err := NewInvoker(nil).Predict(context.Background(), exampleRecord()); !errors.Is(err, ErrModelNotLoaded) {
		t.Fatalf("expected ErrModelNotLoaded, got %v", err)
	}
}

func TestInvokerRejectsInvalidRecord(t *testing.T) {
	invoker := NewInvoker(&fakeClassifier{proba: 0.2, threshold: 0.5})
	record := exampleRecord()
	record.Age = 0
	_, err := invoker.Predict(context.Background(), record)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, ok := verr.Messages()["age"]; !ok {
		t.Fatalf("expected age message, got %v", verr.Messages())
	}
}

func TestInvokerContractViolations(t *testing.T) {
	tests := map[string]*fakeClassifier{
		"probability above one": {label: 1, proba: 1.5, threshold: 0.5},
		"probability nan":       {label: 0, proba: math.NaN(), threshold: 0.5},
		"label out of set":      {label: 2, proba: 0.7, threshold: 0.5},
		"classifier error":      {err: errors.New("boom")},
	}
	for name, classifier := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := NewInvoker(classifier).Predict(context.Background(), exampleRecord()); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestInvokerCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	invoker := NewInvoker(&fakeClassifier{proba: 0.2, threshold: 0.5})
	if _, err := invoker.Predict(ctx, exampleRecord()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestInvokerPredictRowMissingColumn(t *testing.T) {
	invoker := NewInvoker(loadBundled(t))
	row := exampleRecord().Row()
	delete(row, "cholesterol_total")
	if _, err := invoker.PredictRow(context.Background(), row); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
	row["cholesterol_total"] = 180.0
	if _, err := invoker.PredictRow(context.Background(), row); err != nil {
		t.Fatalf("unexpected error after restoring column: %v", err)
	}
}

func TestPredictionResultPercent(t *testing.T) {
	result := PredictionResult{Label: 1, Probability: 0.876}
	if result.Percent() != 87 {
		t.Fatalf("expected 87, got %d", result.Percent())
	}
	if !result.HighRisk() {
		t.Fatal("expected high risk")
	}
}
