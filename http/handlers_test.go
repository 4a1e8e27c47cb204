package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"heartrisk/ml"
)

type fakePredictor struct {
	result ml.PredictionResult
	err    error
	calls  int
	ready  bool
}

func (f *fakePredictor) Ready() bool { return f.ready }
func (f *fakePredictor) Threshold() float64 { return 0.5 }

func (f *fakePredictor) Predict(ctx context.Context, record ml.FeatureRecord) (ml.PredictionResult, error) {
	f.calls++
	return f.result, f.err
}

func newTestMux(predictor Predictor, loadErr error) *http.ServeMux {
	mux := http.NewServeMux()
	NewHandlers(predictor, loadErr, nil).Register(mux)
	return mux
}

func exampleForm() url.Values {
	form := url.Values{}
	record := ml.DefaultRecord()
	record.PhysicalActivity = "Active"
	for name, value := range record.Values() {
		form.Set(name, value)
	}
	return form
}

func examplePayload(t *testing.T) map[string]interface{} {
	t.Helper()
	payload := map[string]interface{}{}
	for name, value := range exampleForm() {
		payload[name] = value[0]
	}
	for _, spec := range ml.Schema() {
		if spec.Numeric() {
			var number float64
			if err := json.Unmarshal([]byte(payload[spec.Name].(string)), &number); err != nil {
				t.Fatal(err)
			}
			payload[spec.Name] = number
		}
	}
	return payload
}

func postJSON(t *testing.T, mux http.Handler, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(string(payload)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func postForm(mux http.Handler, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestHealthHandler(t *testing.T) {
	mux := newTestMux(&fakePredictor{ready: true}, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if payload["status"] != "ok" || payload["model_loaded"] != true {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestHealthHandlerWithoutModel(t *testing.T) {
	mux := newTestMux(ml.NewInvoker(nil), errors.New("open model.json: no such file"))
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestSchemaHandler(t *testing.T) {
	mux := newTestMux(&fakePredictor{ready: true}, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/schema", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	var payload struct {
		Columns []struct {
			Name    string `json:"name"`
			Label   string `json:"label"`
			Default string `json:"default"`
		} `json:"columns"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(payload.Columns) != len(ml.FeatureNames()) {
		t.Fatalf("expected %d columns, got %d", len(ml.FeatureNames()), len(payload.Columns))
	}
	for i, name := range ml.FeatureNames() {
		if payload.Columns[i].Name != name {
			t.Fatalf("column %d: expected %s, got %s", i, name, payload.Columns[i].Name)
		}
	}
	if payload.Columns[4].Label != "BMI" || payload.Columns[4].Default != "24.22" {
		t.Fatalf("unexpected bmi column: %+v", payload.Columns[4])
	}
}

func TestAPIPredict(t *testing.T) {
	predictor := &fakePredictor{ready: true, result: ml.PredictionResult{Label: 1, Probability: 0.81, Threshold: 0.5}}
	w := postJSON(t, newTestMux(predictor, nil), examplePayload(t))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var payload predictResponse
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if payload.Label != 1 || payload.Probability != 0.81 || !payload.HighRisk {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestAPIPredictMissingField(t *testing.T) {
	predictor := &fakePredictor{ready: true}
	mux := newTestMux(predictor, nil)
	body := examplePayload(t)
	delete(body, "diet")
	w := postJSON(t, mux, body)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var payload struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if payload.Fields["diet"] == "" {
		t.Fatalf("expected diet field error, got %+v", payload)
	}
	if predictor.calls != 0 {
		t.Fatalf("predictor should not run for an invalid record")
	}

	// the server keeps answering after a rejected request
	w = postJSON(t, mux, examplePayload(t))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 after rejected request, got %d", w.Code)
	}
}

func TestAPIPredictBadBody(t *testing.T) {
	mux := newTestMux(&fakePredictor{ready: true}, nil)
	for _, body := range []string{"[1,2]", "not json", "null"} {
		req := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(body))
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, w.Code)
		}
	}
}

func TestAPIPredictErrors(t *testing.T) {
	w := postJSON(t, newTestMux(&fakePredictor{ready: false}, nil), examplePayload(t))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without model, got %d", w.Code)
	}

	w = postJSON(t, newTestMux(&fakePredictor{ready: true, err: errors.New("boom")}, nil), examplePayload(t))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 on inference failure, got %d", w.Code)
	}
}

func TestAPIPredictBundledModel(t *testing.T) {
	model, err := ml.LoadModel("logistic_regression", "../models/heart_lr.json")
	if err != nil {
		t.Fatalf("failed to load model: %v", err)
	}
	mux := newTestMux(ml.NewInvoker(model), nil)
	w := postJSON(t, mux, examplePayload(t))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var payload predictResponse
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if payload.Probability < 0 || payload.Probability > 1 {
		t.Fatalf("probability out of range: %v", payload.Probability)
	}
	if payload.HighRisk != (payload.Probability >= payload.Threshold) {
		t.Fatalf("inconsistent response: %+v", payload)
	}
}

func TestHomePage(t *testing.T) {
	mux := newTestMux(&fakePredictor{ready: true}, nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Heart Disease Prediction") {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestPredictFormPage(t *testing.T) {
	mux := newTestMux(&fakePredictor{ready: true}, nil)
	req := httptest.NewRequest(http.MethodGet, "/predict", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, name := range ml.FeatureNames() {
		if !strings.Contains(body, `name="`+name+`"`) {
			t.Fatalf("form is missing input %s", name)
		}
	}
	if !strings.Contains(body, `value="24.22"`) {
		t.Fatal("expected computed default bmi")
	}
	if strings.Contains(body, "disabled") {
		t.Fatal("form should be enabled")
	}
}

func TestPredictFormDisabledWithoutModel(t *testing.T) {
	mux := newTestMux(ml.NewInvoker(nil), errors.New("model.json: unexpected end of JSON input"))
	req := httptest.NewRequest(http.MethodGet, "/predict", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "<fieldset disabled>") {
		t.Fatal("expected the form to be disabled")
	}
	if !strings.Contains(body, "Could not load the model") {
		t.Fatal("expected the load error to be shown")
	}

	w = postForm(mux, exampleForm())
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 on submit, got %d", w.Code)
	}
}

func TestPredictSubmitHighRisk(t *testing.T) {
	predictor := &fakePredictor{ready: true, result: ml.PredictionResult{Label: 1, Probability: 0.876, Threshold: 0.5}}
	w := postForm(newTestMux(predictor, nil), exampleForm())

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{"High Risk", "Consult a clinician", "0.88", `value="87"`, "not a diagnosis"} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in body", want)
		}
	}
}

func TestPredictSubmitLowRisk(t *testing.T) {
	predictor := &fakePredictor{ready: true, result: ml.PredictionResult{Label: 0, Probability: 0.12, Threshold: 0.5}}
	w := postForm(newTestMux(predictor, nil), exampleForm())

	body := w.Body.String()
	for _, want := range []string{"Low Risk", "Maintain healthy habits!", "0.12", "Keep up the healthy lifestyle!"} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in body", want)
		}
	}
}

func TestPredictSubmitMissingField(t *testing.T) {
	predictor := &fakePredictor{ready: true}
	mux := newTestMux(predictor, nil)
	form := exampleForm()
	form.Del("cholesterol_total")
	form.Set("age", "77")
	w := postForm(mux, form)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `data-field="cholesterol_total">field is required`) {
		t.Fatal("expected inline field error")
	}
	if !strings.Contains(body, `value="77"`) {
		t.Fatal("expected submitted values to be kept")
	}
	if strings.Contains(body, "disabled") {
		t.Fatal("form must stay usable")
	}
	if predictor.calls != 0 {
		t.Fatal("predictor should not run")
	}
}

func TestPredictSubmitInferenceError(t *testing.T) {
	predictor := &fakePredictor{ready: true, err: errors.New("schema mismatch")}
	w := postForm(newTestMux(predictor, nil), exampleForm())

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Model prediction error: schema mismatch") {
		t.Fatal("expected inline inference error")
	}
}

func TestStaticAssets(t *testing.T) {
	mux := newTestMux(&fakePredictor{ready: true}, nil)
	for _, path := range []string{"/static/app.css", "/static/preview.js"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, w.Code)
		}
	}
}
