package http

import (
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"heartrisk/ml"
)

const (
	previewIdleTimeout = 10 * time.Minute
	previewWriteWait   = 10 * time.Second
	previewMaxMessage  = 4096
)

// previewPayload is what the socket sends back for each set of inputs.
type previewPayload struct {
	Rows         []previewRow `json:"rows"`
	SuggestedBMI *float64     `json:"suggested_bmi"`
	Complete     bool         `json:"complete"`
}

// buildPreview checks each raw input on its own. Absent or invalid fields
// are reported per row; nothing is sent to the classifier.
func buildPreview(values map[string]string) previewPayload {
	payload := previewPayload{Complete: true}
	parsed := make(map[string]any, len(values))
	for _, spec := range ml.Schema() {
		row := previewRow{Field: spec.Name, Label: spec.Label(), Value: values[spec.Name]}
		raw, ok := values[spec.Name]
		switch {
		case !ok || raw == "":
			row.Error = "field is required"
		default:
			value, err := ml.ParseField(spec.Name, raw)
			if err != nil {
				row.Error = err.Error()
			} else {
				parsed[spec.Name] = value
			}
		}
		if row.Error != "" {
			payload.Complete = false
		}
		payload.Rows = append(payload.Rows, row)
	}

	weight, wok := parsed["weight"].(int)
	height, hok := parsed["height"].(int)
	if wok && hok {
		bmi := ml.ComputeBMI(weight, height)
		payload.SuggestedBMI = &bmi
	}
	return payload
}

func (h *Handlers) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
}

// checkOrigin accepts same-host requests and the configured CORS origins.
func (h *Handlers) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err == nil && u.Host == r.Host {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// SetAllowedOrigins sets which cross-origin pages may open the preview
// socket.
func (h *Handlers) SetAllowedOrigins(origins []string) {
	h.allowedOrigins = append([]string(nil), origins...)
}

func (h *Handlers) handlePreview(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader().Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("preview upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	logger := h.logger.With(zap.String("request_id", GetRequestID(r.Context())))
	logger.Debug("preview connected", zap.String("remote", r.RemoteAddr))

	conn.SetReadLimit(previewMaxMessage)
	for {
		conn.SetReadDeadline(time.Now().Add(previewIdleTimeout))
		var values map[string]string
		if err := conn.ReadJSON(&values); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("preview closed", zap.Error(err))
			}
			return
		}
		conn.SetWriteDeadline(time.Now().Add(previewWriteWait))
		if err := conn.WriteJSON(buildPreview(values)); err != nil {
			logger.Debug("preview write failed", zap.Error(err))
			return
		}
	}
}
