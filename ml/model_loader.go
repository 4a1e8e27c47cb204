package ml

import (
	"errors"
	"fmt"
)

var ErrUnsupportedModel = errors.New("unsupported model type")

// LoadModel opens a classifier artifact of the given type and verifies it
// was trained on the FeatureRecord columns.
func LoadModel(modelType, path string) (*Pipeline, error) {
	switch modelType {
	case "logistic_regression", "pipeline", "":
		pipeline, err := LoadPipeline(path)
		if err != nil {
			return nil, fmt.Errorf("load model %s: %w", path, err)
		}
		if err := pipeline.CheckSchema(FeatureNames()); err != nil {
			return nil, fmt.Errorf("load model %s: %w", path, err)
		}
		return pipeline, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedModel, modelType)
	}
}
