package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestBuildPreview(t *testing.T) {
	values := map[string]string{}
	for name, value := range exampleForm() {
		values[name] = value[0]
	}
	values["weight"] = "80"
	values["height"] = "180"

	payload := buildPreview(values)
	if !payload.Complete {
		t.Fatalf("expected complete preview, got %+v", payload.Rows)
	}
	if payload.SuggestedBMI == nil || *payload.SuggestedBMI != 24.69 {
		t.Fatalf("unexpected suggested bmi %v", payload.SuggestedBMI)
	}

	values["heart_rate"] = "300"
	delete(values, "smoking")
	values["height"] = "tall"
	payload = buildPreview(values)
	if payload.Complete {
		t.Fatal("expected incomplete preview")
	}
	if payload.SuggestedBMI != nil {
		t.Fatalf("expected no bmi suggestion without a valid height")
	}
	errs := map[string]string{}
	for _, row := range payload.Rows {
		errs[row.Field] = row.Error
	}
	if errs["heart_rate"] != "must be between 30 and 220" {
		t.Fatalf("unexpected heart_rate error %q", errs["heart_rate"])
	}
	if errs["smoking"] != "field is required" {
		t.Fatalf("unexpected smoking error %q", errs["smoking"])
	}
}

func TestPreviewSocket(t *testing.T) {
	server := httptest.NewServer(NewServer(DefaultServerConfig(), NewHandlers(&fakePredictor{ready: true}, nil, nil), nil).Handler())
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/ws/preview"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(map[string]string{"weight": "70", "height": "170", "gender": "female"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	var payload previewPayload
	if err := conn.ReadJSON(&payload); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if payload.SuggestedBMI == nil || *payload.SuggestedBMI != 24.22 {
		t.Fatalf("unexpected suggested bmi %v", payload.SuggestedBMI)
	}
	if payload.Complete {
		t.Fatal("expected incomplete preview for partial input")
	}
	if len(payload.Rows) != 20 || payload.Rows[1].Field != "gender" || payload.Rows[1].Error != "" {
		t.Fatalf("unexpected rows: %+v", payload.Rows)
	}

	// a second message on the same connection gets its own answer
	if err := conn.WriteJSON(map[string]string{"weight": "90", "height": "150"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := conn.ReadJSON(&payload); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if payload.SuggestedBMI == nil || *payload.SuggestedBMI != 40 {
		t.Fatalf("unexpected suggested bmi %v", payload.SuggestedBMI)
	}
}

func TestPreviewSocketRejectsForeignOrigin(t *testing.T) {
	config := DefaultServerConfig()
	config.AllowedOrigins = []string{"https://heartrisk.example"}
	server := httptest.NewServer(NewServer(config, NewHandlers(&fakePredictor{ready: true}, nil, nil), nil).Handler())
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/ws/preview"
	header := http.Header{"Origin": []string{"https://evil.example"}}
	if _, _, err := websocket.DefaultDialer.Dial(url, header); err == nil {
		t.Fatal("expected handshake to fail")
	}
	header = http.Header{"Origin": []string{"https://heartrisk.example"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("expected allowed origin to connect: %v", err)
	}
	conn.Close()
}
