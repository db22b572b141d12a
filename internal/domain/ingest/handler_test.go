package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func newTestHandler() (*Handler, *fixture, *echo.Echo) {
	f := newFixture()
	return NewHandler(f.svc), f, echo.New()
}

func submitJSON(deviceID string, hr float64) string {
	body, _ := json.Marshal(map[string]interface{}{
		"device_id":  deviceID,
		"timestamp":  time.Now().UnixMilli(),
		"heart_rate": hr,
		"spo2":       97,
	})
	return string(body)
}

func doSubmit(h *Handler, e *echo.Echo, apiKey, body string) (*httptest.ResponseRecorder, error) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if apiKey != "" {
		req.Header.Set(APIKeyHeader, apiKey)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return rec, h.Submit(c)
}

func TestSubmit_Success(t *testing.T) {
	h, f, e := newTestHandler()
	f.seed("GW6-001", "key-abc", true)

	rec, err := doSubmit(h, e, "key-abc", submitJSON("GW6-001", 75))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp SubmitResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.Success {
		t.Error("expected success true")
	}
	if resp.Message != "Data received successfully" {
		t.Errorf("unexpected message: %q", resp.Message)
	}
	if resp.AlertsGenerated != 0 {
		t.Errorf("expected 0 alerts, got %d", resp.AlertsGenerated)
	}
}

func TestSubmit_ReportsAlertCount(t *testing.T) {
	h, f, e := newTestHandler()
	f.seed("GW6-001", "key-abc", true)

	rec, err := doSubmit(h, e, "key-abc", submitJSON("GW6-001", 150))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp SubmitResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.AlertsGenerated != 1 {
		t.Errorf("expected 1 alert, got %d", resp.AlertsGenerated)
	}
}

func TestSubmit_MissingAPIKey(t *testing.T) {
	h, f, e := newTestHandler()
	f.seed("GW6-001", "key-abc", true)

	_, err := doSubmit(h, e, "", submitJSON("GW6-001", 75))
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestSubmit_InvalidCredentials(t *testing.T) {
	h, f, e := newTestHandler()
	f.seed("GW6-001", "key-abc", true)

	for _, tc := range []struct {
		name string
		body string
		key  string
	}{
		{"wrong key", submitJSON("GW6-001", 75), "key-wrong"},
		{"unknown device", submitJSON("GW6-404", 75), "key-abc"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := doSubmit(h, e, tc.key, tc.body)
			httpErr, ok := err.(*echo.HTTPError)
			if !ok || httpErr.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %v", err)
			}
			if httpErr.Message != "Invalid device credentials" {
				t.Errorf("message = %v; both failure modes must read the same", httpErr.Message)
			}
		})
	}
}

func TestSubmit_InactiveDevice(t *testing.T) {
	h, f, e := newTestHandler()
	f.seed("GW6-001", "key-abc", false)

	_, err := doSubmit(h, e, "key-abc", submitJSON("GW6-001", 75))
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %v", err)
	}
}

func TestSubmit_ValidationError(t *testing.T) {
	h, f, e := newTestHandler()
	f.seed("GW6-001", "key-abc", true)

	body := fmt.Sprintf(`{"device_id":"GW6-001","timestamp":%d}`, time.Now().UnixMilli())
	_, err := doSubmit(h, e, "key-abc", body)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestSubmit_MalformedBody(t *testing.T) {
	h, f, e := newTestHandler()
	f.seed("GW6-001", "key-abc", true)

	_, err := doSubmit(h, e, "key-abc", `{not json`)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestSubmit_StorageFailure(t *testing.T) {
	h, f, e := newTestHandler()
	f.seed("GW6-001", "key-abc", true)
	f.readings.appendErr = errTest

	_, err := doSubmit(h, e, "key-abc", submitJSON("GW6-001", 75))
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %v", err)
	}
	if httpErr.Message != "internal error" {
		t.Errorf("unexpected message: %v", httpErr.Message)
	}
}

func TestSubmit_RegistryLookupFailure(t *testing.T) {
	h, f, e := newTestHandler()
	f.seed("GW6-001", "key-abc", true)
	f.bindings.lookupErr = errTest

	_, err := doSubmit(h, e, "key-abc", submitJSON("GW6-001", 75))
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %v", err)
	}
	// The failure happened before storage; the message must not say otherwise.
	if httpErr.Message != "internal error" {
		t.Errorf("unexpected message: %v", httpErr.Message)
	}
}

var errTest = errors.New("boom")
