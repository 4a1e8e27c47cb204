package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"heartrisk/ml"
)

func main() {
	modelPath := flag.String("model", "./models/heart_lr.json", "model artifact path")
	modelType := flag.String("type", "logistic_regression", "model type")
	recordPath := flag.String("record", "-", "JSON record file, - for stdin")
	threshold := flag.Float64("threshold", 0, "decision threshold override, 0 keeps the artifact's")
	flag.Parse()

	model, err := ml.LoadModel(*modelType, *modelPath)
	if err != nil {
		log.Fatalf("failed to load model: %v", err)
	}
	if *threshold != 0 {
		if model, err = model.WithThreshold(*threshold); err != nil {
			log.Fatalf("invalid threshold: %v", err)
		}
	}

	record, err := readRecord(*recordPath)
	if err != nil {
		log.Fatalf("failed to read record: %v", err)
	}

	result, err := ml.NewInvoker(model).Predict(context.Background(), record)
	if err != nil {
		log.Fatalf("prediction failed: %v", err)
	}

	risk := "low risk"
	if result.HighRisk() {
		risk = "high risk"
	}
	fmt.Printf("label=%d probability=%.4f threshold=%.2f (%s)\n", result.Label, result.Probability, result.Threshold, risk)
}

func readRecord(path string) (ml.FeatureRecord, error) {
	var reader io.Reader = os.Stdin
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return ml.FeatureRecord{}, err
		}
		defer file.Close()
		reader = file
	}

	var fields map[string]json.RawMessage
	if err := json.NewDecoder(reader).Decode(&fields); err != nil {
		return ml.FeatureRecord{}, err
	}
	return ml.DecodeRecord(fields)
}
