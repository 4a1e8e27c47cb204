package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
)

const (
	EncodingOneHot  = "onehot"
	EncodingOrdinal = "ordinal"

	DefaultThreshold = 0.5
)

var ErrSchemaMismatch = errors.New("schema mismatch")

// Artifact is the serialized form of a fitted preprocessing + logistic
// regression pipeline.
type Artifact struct {
	ModelType    string            `json:"model_type"`
	Version      string            `json:"version,omitempty"`
	Columns      []string          `json:"columns"`
	Numeric      []NumericStep     `json:"numeric"`
	Categorical  []CategoricalStep `json:"categorical"`
	Coefficients []float64         `json:"coefficients"`
	Intercept    float64           `json:"intercept"`
	Threshold    *float64          `json:"threshold,omitempty"`
}

// NumericStep imputes a missing cell with Fill, then standard-scales it.
type NumericStep struct {
	Column string  `json:"column"`
	Fill   float64 `json:"fill"`
	Mean   float64 `json:"mean"`
	Scale  float64 `json:"scale"`
}

// CategoricalStep imputes a missing cell with Fill, then encodes it.
type CategoricalStep struct {
	Column       string   `json:"column"`
	Fill         string   `json:"fill"`
	Encoding     string   `json:"encoding"`
	Categories   []string `json:"categories"`
	UnknownValue *float64 `json:"unknown_value,omitempty"`
}

func (s CategoricalStep) width() int {
	if s.Encoding == EncodingOrdinal {
		return 1
	}
	return len(s.Categories)
}

func (s CategoricalStep) unknown() float64 {
	if s.UnknownValue != nil {
		return *s.UnknownValue
	}
	return -1
}

// Pipeline is a loaded artifact. It is never mutated after construction.
type Pipeline struct {
	artifact  Artifact
	threshold float64
	width     int
}

// NewPipeline checks the artifact and wraps it for inference.
func NewPipeline(artifact Artifact) (*Pipeline, error) {
	p := &Pipeline{artifact: artifact, threshold: DefaultThreshold}
	if artifact.Threshold != nil {
		p.threshold = *artifact.Threshold
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadPipeline reads an artifact from a JSON file.
func LoadPipeline(path string) (*Pipeline, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var artifact Artifact
	if err := json.Unmarshal(payload, &artifact); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	return NewPipeline(artifact)
}

// Save writes the artifact as JSON.
func (p *Pipeline) Save(path string) error {
	payload, err := json.MarshalIndent(p.artifact, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

// Validate checks the structural consistency of the artifact.
func (p *Pipeline) Validate() error {
	a := p.artifact
	if len(a.Columns) == 0 {
		return errors.New("artifact has no columns")
	}
	if math.IsNaN(p.threshold) || p.threshold <= 0 || p.threshold >= 1 {
		return fmt.Errorf("threshold %v out of range (0,1)", p.threshold)
	}

	declared := make(map[string]bool, len(a.Columns))
	for _, column := range a.Columns {
		if declared[column] {
			return fmt.Errorf("duplicate column %q", column)
		}
		declared[column] = true
	}

	covered := make(map[string]bool, len(a.Columns))
	width := 0
	for _, step := range a.Numeric {
		if !declared[step.Column] {
			return fmt.Errorf("numeric step for undeclared column %q", step.Column)
		}
		if covered[step.Column] {
			return fmt.Errorf("column %q has more than one step", step.Column)
		}
		covered[step.Column] = true
		width++
	}
	for _, step := range a.Categorical {
		if !declared[step.Column] {
			return fmt.Errorf("categorical step for undeclared column %q", step.Column)
		}
		if covered[step.Column] {
			return fmt.Errorf("column %q has more than one step", step.Column)
		}
		if step.Encoding != EncodingOneHot && step.Encoding != EncodingOrdinal {
			return fmt.Errorf("column %q: unsupported encoding %q", step.Column, step.Encoding)
		}
		if len(step.Categories) == 0 {
			return fmt.Errorf("column %q has no categories", step.Column)
		}
		covered[step.Column] = true
		width += step.width()
	}
	for _, column := range a.Columns {
		if !covered[column] {
			return fmt.Errorf("column %q has no preprocessing step", column)
		}
	}

	if len(a.Coefficients) != width {
		return fmt.Errorf("coefficient count %d does not match transformed width %d", len(a.Coefficients), width)
	}
	for i, coef := range a.Coefficients {
		if math.IsNaN(coef) || math.IsInf(coef, 0) {
			return fmt.Errorf("coefficient %d is not finite", i)
		}
	}
	if math.IsNaN(a.Intercept) || math.IsInf(a.Intercept, 0) {
		return errors.New("intercept is not finite")
	}
	p.width = width
	return nil
}

// CheckSchema verifies that the artifact expects exactly the given
// columns in the given order.
func (p *Pipeline) CheckSchema(names []string) error {
	if len(names) != len(p.artifact.Columns) {
		return fmt.Errorf("%w: artifact has %d columns, expected %d", ErrSchemaMismatch, len(p.artifact.Columns), len(names))
	}
	for i, name := range names {
		if p.artifact.Columns[i] != name {
			return fmt.Errorf("%w: column %d is %q, expected %q", ErrSchemaMismatch, i, p.artifact.Columns[i], name)
		}
	}
	return nil
}

// Columns returns the input column names.
func (p *Pipeline) Columns() []string {
	return append([]string(nil), p.artifact.Columns...)
}

// Threshold is the positive-class probability at or above which
// PredictClass returns 1.
func (p *Pipeline) Threshold() float64 {
	return p.threshold
}

// WithThreshold returns a copy of the pipeline using a different decision
// threshold.
func (p *Pipeline) WithThreshold(threshold float64) (*Pipeline, error) {
	if math.IsNaN(threshold) || threshold <= 0 || threshold >= 1 {
		return nil, fmt.Errorf("threshold %v out of range (0,1)", threshold)
	}
	clone := *p
	clone.threshold = threshold
	return &clone, nil
}

// Transform turns a row into the scaled and encoded vector the regression
// consumes: numeric columns first, then categorical encodings.
func (p *Pipeline) Transform(row Row) ([]float64, error) {
	for _, column := range p.artifact.Columns {
		if _, ok := row[column]; !ok {
			return nil, fmt.Errorf("%w: column %q is missing", ErrSchemaMismatch, column)
		}
	}

	vector := make([]float64, 0, p.width)
	for _, step := range p.artifact.Numeric {
		value, err := numericValue(row[step.Column], step.Fill)
		if err != nil {
			return nil, fmt.Errorf("%w: column %q: %v", ErrSchemaMismatch, step.Column, err)
		}
		scale := step.Scale
		if scale == 0 {
			scale = 1
		}
		vector = append(vector, (value-step.Mean)/scale)
	}
	for _, step := range p.artifact.Categorical {
		value, err := categoricalValue(row[step.Column], step.Fill)
		if err != nil {
			return nil, fmt.Errorf("%w: column %q: %v", ErrSchemaMismatch, step.Column, err)
		}
		vector = append(vector, encode(step, value)...)
	}
	return vector, nil
}

// PredictProba returns the positive-class probability for a row.
func (p *Pipeline) PredictProba(row Row) (float64, error) {
	vector, err := p.Transform(row)
	if err != nil {
		return 0, err
	}
	z := p.artifact.Intercept
	for i, x := range vector {
		z += p.artifact.Coefficients[i] * x
	}
	return sigmoid(z), nil
}

// PredictClass returns 1 when the positive-class probability reaches the
// threshold.
func (p *Pipeline) PredictClass(row Row) (int, error) {
	proba, err := p.PredictProba(row)
	if err != nil {
		return 0, err
	}
	if proba >= p.threshold {
		return 1, nil
	}
	return 0, nil
}

func numericValue(cell any, fill float64) (float64, error) {
	switch v := cell.(type) {
	case nil:
		return fill, nil
	case float64:
		if math.IsNaN(v) {
			return fill, nil
		}
		if math.IsInf(v, 0) {
			return 0, errors.New("value is not finite")
		}
		return v, nil
	case int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", cell)
	}
}

func categoricalValue(cell any, fill string) (string, error) {
	switch v := cell.(type) {
	case nil:
		return fill, nil
	case string:
		return v, nil
	default:
		return "", fmt.Errorf("expected a string, got %T", cell)
	}
}

func encode(step CategoricalStep, value string) []float64 {
	if step.Encoding == EncodingOrdinal {
		for i, category := range step.Categories {
			if category == value {
				return []float64{float64(i)}
			}
		}
		return []float64{step.unknown()}
	}
	encoded := make([]float64, len(step.Categories))
	for i, category := range step.Categories {
		if category == value {
			encoded[i] = 1
		}
	}
	return encoded
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
