package http

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"time"

	"go.uber.org/zap"

	"heartrisk/ml"
	"heartrisk/monitoring"
)

// Predictor turns one record into one prediction.
type Predictor interface {
	Ready() bool
	Threshold() float64
	Predict(ctx context.Context, record ml.FeatureRecord) (ml.PredictionResult, error)
}

// Handlers serves the form pages and the JSON API over a loaded model.
type Handlers struct {
	predictor      Predictor
	loadErr        error
	logger         *zap.Logger
	allowedOrigins []string
}

// NewHandlers builds the handler set. loadErr is shown on the pages when
// the predictor has no model.
func NewHandlers(predictor Predictor, loadErr error, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{predictor: predictor, loadErr: loadErr, logger: logger}
}

func (h *Handlers) Register(mux *http.ServeMux) {
	static, _ := fs.Sub(staticFS, "static")

	mux.HandleFunc("GET /{$}", h.handleHome)
	mux.HandleFunc("GET /predict", h.handlePredictForm)
	mux.HandleFunc("POST /predict", h.handlePredictSubmit)
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(static)))

	mux.HandleFunc("GET /api/health", h.handleHealth)
	mux.HandleFunc("GET /api/schema", handleSchema)
	mux.HandleFunc("POST /api/predict", h.handleAPIPredict)
	mux.HandleFunc("GET /api/ws/preview", h.handlePreview)
}

func (h *Handlers) ready() bool {
	return h.predictor != nil && h.predictor.Ready()
}

func (h *Handlers) loadError() string {
	if h.loadErr != nil {
		return "Could not load the model: " + h.loadErr.Error()
	}
	return "Could not load the model."
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if !h.ready() {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, code, map[string]interface{}{
		"status":       status,
		"model_loaded": h.ready(),
		"timestamp":    time.Now().UTC(),
	})
}

type schemaColumn struct {
	ml.ColumnSpec
	Label   string `json:"label"`
	Default string `json:"default"`
}

func handleSchema(w http.ResponseWriter, r *http.Request) {
	defaults := ml.DefaultRecord().Values()
	specs := ml.Schema()
	columns := make([]schemaColumn, len(specs))
	for i, spec := range specs {
		columns[i] = schemaColumn{ColumnSpec: spec, Label: spec.Label(), Default: defaults[spec.Name]}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"columns": columns})
}

type predictResponse struct {
	Label       int     `json:"label"`
	Probability float64 `json:"probability"`
	HighRisk    bool    `json:"high_risk"`
	Threshold   float64 `json:"threshold"`
}

func (h *Handlers) handleAPIPredict(w http.ResponseWriter, r *http.Request) {
	if !h.ready() {
		monitoring.IncPredictionError("model_not_loaded")
		respondError(w, http.StatusServiceUnavailable, ml.ErrModelNotLoaded.Error(), nil)
		return
	}

	var fields map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil || fields == nil {
		monitoring.IncPredictionError("bad_request")
		respondError(w, http.StatusBadRequest, "request body must be a JSON object", nil)
		return
	}
	record, err := ml.DecodeRecord(fields)
	if err != nil {
		monitoring.IncPredictionError("invalid_record")
		respondError(w, http.StatusBadRequest, "invalid record", fieldMessages(err))
		return
	}

	result, err := h.predict(r.Context(), record)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ml.ErrModelNotLoaded) {
			status = http.StatusServiceUnavailable
		}
		respondError(w, status, "prediction failed: "+err.Error(), nil)
		return
	}
	respondJSON(w, http.StatusOK, predictResponse{
		Label:       result.Label,
		Probability: result.Probability,
		HighRisk:    result.HighRisk(),
		Threshold:   result.Threshold,
	})
}

// predict runs one inference and records its outcome.
func (h *Handlers) predict(ctx context.Context, record ml.FeatureRecord) (ml.PredictionResult, error) {
	start := time.Now()
	result, err := h.predictor.Predict(ctx, record)
	elapsed := time.Since(start)
	if err != nil {
		monitoring.IncPredictionError("inference")
		h.logger.Warn("prediction failed",
			zap.String("request_id", GetRequestID(ctx)),
			zap.Error(err))
		return ml.PredictionResult{}, err
	}
	monitoring.ObservePrediction(result.HighRisk(), elapsed)
	h.logger.Info("prediction",
		zap.String("request_id", GetRequestID(ctx)),
		zap.Int("label", result.Label),
		zap.Float64("probability", result.Probability),
		zap.Duration("elapsed", elapsed))
	return result, nil
}

func fieldMessages(err error) map[string]string {
	var verr *ml.ValidationError
	if errors.As(err, &verr) {
		return verr.Messages()
	}
	return nil
}

func respondError(w http.ResponseWriter, status int, message string, fields map[string]string) {
	payload := map[string]interface{}{"error": message}
	if len(fields) > 0 {
		payload["fields"] = fields
	}
	respondJSON(w, status, payload)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
