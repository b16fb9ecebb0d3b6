package api

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/serial-hub/backend/internal/datamgr"
	"github.com/serial-hub/backend/internal/event"
	"github.com/serial-hub/backend/internal/history"
	"github.com/serial-hub/backend/internal/library"
	"github.com/stretchr/testify/assert"
	"github.com/vmihailenco/msgpack/v5"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	dir := t.TempDir()
	bus := event.NewBus()
	mgr := datamgr.NewManager(
		library.Parse(strings.NewReader("DE AD # sync word\n")),
		history.Load(filepath.Join(dir, "send_history.json")),
		bus,
		filepath.Join(dir, "comsettings.yaml"),
	)
	return NewHandler(mgr, nil)
}

func request(e *echo.Echo, method, path, body string, params ...string) (echo.Context, *httptest.ResponseRecorder) {
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	for i := 0; i+1 < len(params); i += 2 {
		c.SetParamNames(params[i])
		c.SetParamValues(params[i+1])
	}
	return c, rec
}

func TestStartStopLifecycle(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t)

	// Start succeeds.
	c, rec := request(e, http.MethodPost, "/api/port/COM1/start", "", "port", "COM1")
	if assert.NoError(t, h.HandleStartPort(c)) {
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	// Second start conflicts.
	c, rec = request(e, http.MethodPost, "/api/port/COM1/start", "", "port", "COM1")
	if assert.NoError(t, h.HandleStartPort(c)) {
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, rec.Body.String(), "CONFLICT")
	}

	// Stop succeeds, second stop conflicts.
	c, rec = request(e, http.MethodPost, "/api/port/COM1/stop", "", "port", "COM1")
	if assert.NoError(t, h.HandleStopPort(c)) {
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	c, rec = request(e, http.MethodPost, "/api/port/COM1/stop", "", "port", "COM1")
	if assert.NoError(t, h.HandleStopPort(c)) {
		assert.Equal(t, http.StatusConflict, rec.Code)
	}
}

func TestSendValidationAndLog(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t)

	c, rec := request(e, http.MethodPost, "/api/port/COM1/start", "", "port", "COM1")
	assert.NoError(t, h.HandleStartPort(c))

	// Malformed hex is rejected with no side effects.
	c, rec = request(e, http.MethodPost, "/api/port/COM1/send", `{"data":"XYZ"}`, "port", "COM1")
	if assert.NoError(t, h.HandleSend(c)) {
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
	}
	c, rec = request(e, http.MethodGet, "/api/history", "")
	assert.NoError(t, h.HandleHistory(c))
	assert.Equal(t, "[]\n", rec.Body.String())

	// Valid hex is logged, canonicalized and annotated.
	c, rec = request(e, http.MethodPost, "/api/port/COM1/send", `{"data":"deadbeef"}`, "port", "COM1")
	if assert.NoError(t, h.HandleSend(c)) {
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	c, rec = request(e, http.MethodGet, "/api/port/COM1/data", "", "port", "COM1")
	if assert.NoError(t, h.HandlePortData(c)) {
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"payload":"DE AD BE EF"`)
		assert.Contains(t, rec.Body.String(), "sync word")
		assert.Contains(t, rec.Body.String(), `"direction":"sent"`)
	}

	c, rec = request(e, http.MethodGet, "/api/history", "")
	if assert.NoError(t, h.HandleHistory(c)) {
		assert.Contains(t, rec.Body.String(), "DE AD BE EF")
	}
}

func TestPortDataMsgpack(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t)

	c, _ := request(e, http.MethodPost, "/api/port/COM1/start", "", "port", "COM1")
	assert.NoError(t, h.HandleStartPort(c))
	c, _ = request(e, http.MethodPost, "/api/port/COM1/send", `{"data":"0102"}`, "port", "COM1")
	assert.NoError(t, h.HandleSend(c))

	c, rec := request(e, http.MethodGet, "/api/port/COM1/data/msgpack", "", "port", "COM1")
	if assert.NoError(t, h.HandlePortDataMsgpack(c)) {
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/msgpack", rec.Header().Get(echo.HeaderContentType))

		var decoded map[string]interface{}
		assert.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &decoded))
		assert.EqualValues(t, 1, decoded["total"])
		assert.Equal(t, "COM1", decoded["port"])
	}
}

func TestSettingsEndpoints(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t)

	// Defaults before any write.
	c, rec := request(e, http.MethodGet, "/api/port/COM3/settings", "", "port", "COM3")
	if assert.NoError(t, h.HandleGetPortSettings(c)) {
		assert.Contains(t, rec.Body.String(), `"baudrate":9600`)
	}

	// Reject nonsense.
	c, rec = request(e, http.MethodPost, "/api/port/COM3/settings", `{"baudrate":-1,"bytesize":8,"parity":"N","stopbits":1}`, "port", "COM3")
	if assert.NoError(t, h.HandleUpdatePortSettings(c)) {
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}

	// Persist and read back.
	c, rec = request(e, http.MethodPost, "/api/port/COM3/settings", `{"name":"meter","baudrate":115200,"bytesize":8,"parity":"E","stopbits":2}`, "port", "COM3")
	if assert.NoError(t, h.HandleUpdatePortSettings(c)) {
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	c, rec = request(e, http.MethodGet, "/api/port/COM3/settings", "", "port", "COM3")
	if assert.NoError(t, h.HandleGetPortSettings(c)) {
		assert.Contains(t, rec.Body.String(), `"baudrate":115200`)
	}

	// Name endpoints.
	c, rec = request(e, http.MethodPost, "/api/port/COM3/name", `{"name":"scanner"}`, "port", "COM3")
	assert.NoError(t, h.HandleUpdatePortName(c))
	c, rec = request(e, http.MethodGet, "/api/port/COM3/name", "", "port", "COM3")
	if assert.NoError(t, h.HandleGetPortName(c)) {
		assert.Contains(t, rec.Body.String(), `"name":"scanner"`)
	}
}

func TestArchiveDisabled(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t)

	c, rec := request(e, http.MethodGet, "/api/port/COM1/archive", "", "port", "COM1")
	if assert.NoError(t, h.HandleArchive(c)) {
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	}
}

func TestHealth(t *testing.T) {
	e := echo.New()
	h := newTestHandler(t)

	c, rec := request(e, http.MethodGet, "/api/health", "")
	if assert.NoError(t, h.HandleHealth(c)) {
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	}
}
