package http

import (
	"bytes"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"heartrisk/ml"
	"heartrisk/monitoring"
)

func (h *Handlers) handleHome(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "home", homePage{
		Tab:        "home",
		ModelReady: h.ready(),
		LoadError:  h.loadError(),
	})
}

func (h *Handlers) handlePredictForm(w http.ResponseWriter, r *http.Request) {
	page := h.newPage(ml.DefaultRecord().Values(), nil)
	status := http.StatusOK
	if !page.ModelReady {
		status = http.StatusServiceUnavailable
	}
	h.render(w, r, status, "predict", page)
}

func (h *Handlers) handlePredictSubmit(w http.ResponseWriter, r *http.Request) {
	if !h.ready() {
		monitoring.IncPredictionError("model_not_loaded")
		h.render(w, r, http.StatusServiceUnavailable, "predict", h.newPage(ml.DefaultRecord().Values(), nil))
		return
	}
	if err := r.ParseForm(); err != nil {
		monitoring.IncPredictionError("bad_request")
		page := h.newPage(ml.DefaultRecord().Values(), nil)
		page.Error = "Could not read the submitted form."
		h.render(w, r, http.StatusBadRequest, "predict", page)
		return
	}

	values := submittedValues(r)
	record, err := ml.ParseFormRecord(r.PostForm)
	if err != nil {
		monitoring.IncPredictionError("invalid_record")
		page := h.newPage(values, fieldMessages(err))
		page.Error = "Please correct the highlighted fields."
		h.render(w, r, http.StatusUnprocessableEntity, "predict", page)
		return
	}

	result, err := h.predict(r.Context(), record)
	if err != nil {
		page := h.newPage(values, nil)
		page.Error = "Model prediction error: " + err.Error()
		status := http.StatusInternalServerError
		if errors.Is(err, ml.ErrModelNotLoaded) {
			status = http.StatusServiceUnavailable
		}
		h.render(w, r, status, "predict", page)
		return
	}

	page := h.newPage(record.Values(), nil)
	page.Result = newResultCard(result)
	h.render(w, r, http.StatusOK, "predict", page)
}

func (h *Handlers) newPage(values, fieldErrors map[string]string) predictPage {
	page := newPredictPage(values, fieldErrors)
	page.ModelReady = h.ready()
	if !page.ModelReady {
		page.LoadError = h.loadError()
	}
	return page
}

// render buffers the page so a template failure never leaves a half
// written response.
func (h *Handlers) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	var buf bytes.Buffer
	if err := renderPage(&buf, name, data); err != nil {
		h.logger.Error("render page",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.String("page", name),
			zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// submittedValues keeps what the user typed so a rejected form comes back
// unchanged.
func submittedValues(r *http.Request) map[string]string {
	values := make(map[string]string, len(ml.FeatureNames()))
	for _, name := range ml.FeatureNames() {
		values[name] = r.PostForm.Get(name)
	}
	return values
}
