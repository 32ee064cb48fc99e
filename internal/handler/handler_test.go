package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"escpos-service/internal/config"
	"escpos-service/internal/escpos"
	"escpos-service/internal/events"
	"escpos-service/internal/model"
	"escpos-service/internal/protocol"
	"escpos-service/internal/receipt"
	"escpos-service/internal/repository"
	"escpos-service/internal/service"
	"escpos-service/internal/utils"
)

var job = []byte("\x1b@\x1ba\x01SHOP\n\x1ba\x00Bread 1.10\nTOTAL 1.10\n\x1dV\x00")

type fakeForwarder struct {
	mu   sync.Mutex
	jobs int
}

func (f *fakeForwarder) Forward(ctx context.Context, raw []byte) (receipt.PrinterStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs++
	return receipt.PrinterStatusSuccess, nil
}

type fakeRelay struct {
	stats protocol.RelayStats
}

func (r *fakeRelay) Stats() protocol.RelayStats { return r.stats }

func testConfig() *config.Config {
	return &config.Config{
		Listener: config.ListenerConfig{MaxJobSize: 4096},
		Decoder:  config.DecoderConfig{MaxCommandLength: escpos.DefaultMaxCommandLength},
		Capture:  config.CaptureConfig{StoreRaw: true},
		App:      config.AppConfig{Name: "escpos-service", Version: "test"},
	}
}

func newEngine(t *testing.T, cfg *config.Config) (*gin.Engine, *service.CaptureService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := repository.NewMemoryCaptureRepository(100, zap.NewNop())
	svc := service.NewCaptureService(repo, &fakeForwarder{}, nil, nil, cfg, zap.NewNop())

	engine := gin.New()
	api := engine.Group("/api/v1")
	NewDecodeHandler(svc, cfg.Listener.MaxJobSize, zap.NewNop()).RegisterRoutes(api)
	NewCommandHandler(nil).RegisterRoutes(api)
	NewCaptureHandler(svc, zap.NewNop()).RegisterRoutes(api)
	return engine, svc
}

func do(engine http.Handler, method, path, contentType string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) (utils.APIResponse, map[string]interface{}) {
	t.Helper()
	var resp utils.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data, _ := resp.Data.(map[string]interface{})
	return resp, data
}

func TestDecodeOctetStream(t *testing.T) {
	engine, _ := newEngine(t, testConfig())

	w := do(engine, http.MethodPost, "/api/v1/decode?level=quiet", "application/octet-stream", job)
	require.Equal(t, http.StatusOK, w.Code)

	resp, data := decodeBody(t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, "SHOP\nBread 1.10\nTOTAL 1.10\n", data["rendered"])
	assert.Equal(t, "quiet", data["level"])
	assert.Nil(t, data["capture_id"])

	message := data["message"].(map[string]interface{})
	assert.Equal(t, "success", message["decoder_status"])
	assert.Equal(t, "unknown", message["printer_status"])
	content := message["receipt_content"].(map[string]interface{})
	assert.Equal(t, []interface{}{"SHOP", "Bread 1.10", "TOTAL 1.10"}, content["lines"])
}

func TestDecodeJSONAndStore(t *testing.T) {
	engine, _ := newEngine(t, testConfig())

	body, err := json.Marshal(map[string]interface{}{
		"data_base64": base64.StdEncoding.EncodeToString(job),
		"level":       2,
		"store":       true,
	})
	require.NoError(t, err)

	w := do(engine, http.MethodPost, "/api/v1/decode", "application/json", body)
	require.Equal(t, http.StatusOK, w.Code)
	_, data := decodeBody(t, w)
	assert.Equal(t, "debug", data["level"])
	assert.Contains(t, data["rendered"], "{1B 40}")

	captureID, ok := data["capture_id"].(string)
	require.True(t, ok)

	w = do(engine, http.MethodGet, "/api/v1/captures/"+captureID, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	_, capture := decodeBody(t, w)
	assert.Equal(t, "API", capture["source"])
	assert.Equal(t, float64(len(job)), capture["byte_count"])

	w = do(engine, http.MethodPost, "/api/v1/captures/"+captureID+"/replay", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	_, replay := decodeBody(t, w)
	assert.Equal(t, "success", replay["printer_status"])

	w = do(engine, http.MethodGet, "/api/v1/captures?source=API", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	_, page := decodeBody(t, w)
	assert.Equal(t, float64(1), page["total"])

	w = do(engine, http.MethodGet, "/api/v1/captures/stats", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	_, stats := decodeBody(t, w)
	assert.Equal(t, float64(1), stats["total_captures"])
}

func TestDecodeRejectsBadRequests(t *testing.T) {
	cfg := testConfig()
	cfg.Listener.MaxJobSize = 16
	engine, _ := newEngine(t, cfg)

	tests := []struct {
		name        string
		path        string
		contentType string
		body        []byte
		status      int
	}{
		{"bad base64", "/api/v1/decode", "application/json", []byte(`{"data_base64":"%%%"}`), http.StatusBadRequest},
		{"missing data", "/api/v1/decode", "application/json", []byte(`{"level":1}`), http.StatusBadRequest},
		{"level out of range", "/api/v1/decode", "application/json", []byte(`{"data_base64":"aGk=","level":7}`), http.StatusBadRequest},
		{"bad level query", "/api/v1/decode?level=loud", "application/octet-stream", []byte("hi"), http.StatusBadRequest},
		{"bad store query", "/api/v1/decode?store=maybe", "application/octet-stream", []byte("hi"), http.StatusBadRequest},
		{"unsupported type", "/api/v1/decode", "text/plain", []byte("hi"), http.StatusUnsupportedMediaType},
		{"too large", "/api/v1/decode", "application/octet-stream", bytes.Repeat([]byte("x"), 64), http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(engine, http.MethodPost, tt.path, tt.contentType, tt.body)
			assert.Equal(t, tt.status, w.Code)
			resp, _ := decodeBody(t, w)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
		})
	}
}

func TestListCommands(t *testing.T) {
	engine, _ := newEngine(t, testConfig())

	w := do(engine, http.MethodGet, "/api/v1/commands", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	_, data := decodeBody(t, w)
	assert.Equal(t, escpos.TableVersion, data["version"])
	assert.Equal(t, float64(escpos.DefaultTable().Len()), data["count"])

	w = do(engine, http.MethodGet, "/api/v1/commands?prefix=gs", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	_, data = decodeBody(t, w)
	commands := data["commands"].([]interface{})
	require.NotEmpty(t, commands)
	for _, c := range commands {
		assert.Equal(t, "GS", c.(map[string]interface{})["prefix"])
	}
}

func TestCaptureErrors(t *testing.T) {
	cfg := testConfig()
	cfg.Capture.StoreRaw = false
	engine, svc := newEngine(t, cfg)

	w := do(engine, http.MethodGet, "/api/v1/captures/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(engine, http.MethodGet, "/api/v1/captures/"+uuid.NewString(), "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	result, err := svc.Decode(context.Background(), &service.DecodeRequest{Data: job, Store: true})
	require.NoError(t, err)

	w = do(engine, http.MethodPost, "/api/v1/captures/"+result.CaptureID.String()+"/replay", "", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(engine, http.MethodGet, "/api/v1/captures?start_date=yesterday", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp, data := decodeBody(t, w)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	assert.Contains(t, data["validation_errors"], "start_date")
}

func TestPrinterHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	now := time.Now()
	relay := &fakeRelay{stats: protocol.RelayStats{Enabled: true, ConnectionType: protocol.ConnectionTypeTCP, JobsForwarded: 3, LastForwardAt: &now}}

	h := NewPrinterHandler(relay, zap.NewNop())
	h.serialPorts = func() ([]protocol.SerialPort, error) {
		return []protocol.SerialPort{{Name: "/dev/ttyUSB0", IsUSB: true, VendorID: "04b8"}}, nil
	}
	h.usbPrinters = func(*zap.Logger) ([]protocol.USBPrinter, error) {
		return nil, errors.New("libusb unavailable")
	}

	engine := gin.New()
	h.RegisterRoutes(engine.Group("/api/v1"))

	w := do(engine, http.MethodGet, "/api/v1/printer/status", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	_, data := decodeBody(t, w)
	assert.Equal(t, float64(3), data["jobs_forwarded"])
	assert.Equal(t, "TCP", data["connection_type"])

	w = do(engine, http.MethodGet, "/api/v1/printer/ports", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	_, data = decodeBody(t, w)
	assert.Len(t, data["serial_ports"], 1)
	assert.Empty(t, data["usb_printers"])
	assert.Equal(t, "libusb unavailable", data["errors"].(map[string]interface{})["usb"])

	w = do(engine, http.MethodGet, "/api/v1/printer/ports?type=usb", "", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = do(engine, http.MethodGet, "/api/v1/printer/ports?type=bluetooth", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthWithoutDatabase(t *testing.T) {
	gin.SetMode(gin.TestMode)
	relay := &fakeRelay{stats: protocol.RelayStats{Enabled: true, LastError: "connection refused"}}

	engine := gin.New()
	NewHealthHandler(nil, relay, testConfig(), zap.NewNop()).RegisterRoutes(&engine.RouterGroup)

	w := do(engine, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "escpos-service", health.Service)
	assert.Equal(t, "healthy", health.Checks["storage"].Status)
	assert.Equal(t, "degraded", health.Checks["printer"].Status)
	assert.Equal(t, "connection refused", health.Checks["printer"].Message)

	for _, path := range []string{"/health/db", "/ready", "/live"} {
		w = do(engine, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestWebSocketStreamsInstructions(t *testing.T) {
	gin.SetMode(gin.TestMode)
	bus := events.NewEventBus(zap.NewNop())
	go bus.Start()
	defer bus.Stop()

	ws := NewWebSocketHandler(bus, nil, zap.NewNop())
	defer ws.Close()

	engine := gin.New()
	ws.RegisterRoutes(engine.Group("/ws"))
	srv := httptest.NewServer(engine)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/instructions?session_id=s-1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))

	var msg WebSocketMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "connected", msg.Type)

	require.Eventually(t, func() bool { return ws.GetConnectionStats().TotalConnections == 1 }, time.Second, 10*time.Millisecond)

	// Filtered out: another session, then a type the stream does not carry.
	bus.Publish(model.NewEvent(model.EventInstructionDecoded, "s-2", "LISTENER", nil))
	bus.Publish(model.NewEvent(model.EventPrinterForwarded, "s-1", "REPLAY", nil))
	bus.Publish(model.NewEvent(model.EventInstructionDecoded, "s-1", "LISTENER", model.InstructionEventData{
		Offset:   0,
		Kind:     "KNOWN_COMMAND",
		Mnemonic: "ESC @",
		Name:     "initialize",
		Length:   2,
	}))

	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "event", msg.Type)
	event := msg.Data.(map[string]interface{})
	assert.Equal(t, "INSTRUCTION_DECODED", event["event_type"])
	assert.Equal(t, "s-1", event["session_id"])
	assert.Equal(t, "ESC @", event["data"].(map[string]interface{})["mnemonic"])

	require.NoError(t, conn.WriteJSON(WebSocketMessage{Type: "ping", RequestID: "r-1"}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "pong", msg.Type)
	assert.Equal(t, "r-1", msg.RequestID)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://pos.example.com"})

	req := httptest.NewRequest(http.MethodGet, "http://tap.local/ws/events", nil)
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://pos.example.com/")
	assert.True(t, check(req))

	req.Header.Set("Origin", "http://tap.local")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(req))

	assert.True(t, originChecker([]string{"*"})(req))
}
