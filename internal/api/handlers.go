package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/serial-hub/backend/internal/archive"
	"github.com/serial-hub/backend/internal/datamgr"
	"github.com/serial-hub/backend/internal/models"
	"github.com/vmihailenco/msgpack/v5"
)

// Handler handles API requests against the data manager.
type Handler struct {
	mgr     *datamgr.Manager
	archive *archive.Store // nil when archiving is disabled
}

// NewHandler creates a new API handler.
func NewHandler(mgr *datamgr.Manager, archiveStore *archive.Store) *Handler {
	return &Handler{
		mgr:     mgr,
		archive: archiveStore,
	}
}

// HandleHealth returns server health status.
func (h *Handler) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// HandleListPorts returns every visible port with its label and active flag.
func (h *Handler) HandleListPorts(c echo.Context) error {
	return c.JSON(http.StatusOK, h.mgr.AvailablePorts())
}

// HandleHistory returns the send history, most recent first.
func (h *Handler) HandleHistory(c echo.Context) error {
	return c.JSON(http.StatusOK, h.mgr.History())
}

// HandlePortData returns a copy of the port's log buffer.
func (h *Handler) HandlePortData(c echo.Context) error {
	port := c.Param("port")
	return c.JSON(http.StatusOK, h.mgr.Entries(port))
}

// HandlePortDataMsgpack returns the port's log buffer in MessagePack
// format, noticeably smaller than JSON for busy ports.
func (h *Handler) HandlePortDataMsgpack(c echo.Context) error {
	port := c.Param("port")
	entries := h.mgr.Entries(port)

	data, err := msgpack.Marshal(map[string]interface{}{
		"port":    port,
		"entries": entries,
		"total":   len(entries),
	})
	if err != nil {
		return RespondWithError(c, NewInternalError("failed to encode msgpack", err))
	}

	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// HandleArchive returns archived entries for a port, newest first.
func (h *Handler) HandleArchive(c echo.Context) error {
	if h.archive == nil {
		return RespondWithError(c, NewServiceUnavailableError("archive is disabled"))
	}

	port := c.Param("port")
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 {
		limit = 100
	}

	entries, err := h.archive.Recent(port, limit)
	if err != nil {
		return RespondWithError(c, NewInternalError("failed to query archive", err))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"port":    port,
		"entries": entries,
	})
}

// HandleGetPortSettings returns the stored configuration for a port,
// defaults included.
func (h *Handler) HandleGetPortSettings(c echo.Context) error {
	port := c.Param("port")
	return c.JSON(http.StatusOK, h.mgr.PortSettings(port))
}

// HandleUpdatePortSettings persists a port configuration.
func (h *Handler) HandleUpdatePortSettings(c echo.Context) error {
	port := c.Param("port")

	var cfg models.PortConfig
	if err := c.Bind(&cfg); err != nil {
		return RespondWithError(c, NewBadRequestError("invalid settings body", err))
	}
	if cfg.BaudRate <= 0 || cfg.ByteSize < 5 || cfg.ByteSize > 8 {
		return RespondWithError(c, NewValidationError("baudrate must be positive and bytesize in 5..8"))
	}

	h.mgr.UpdatePortSettings(port, cfg)
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

// HandleGetPortName returns a port's display label.
func (h *Handler) HandleGetPortName(c echo.Context) error {
	port := c.Param("port")
	return c.JSON(http.StatusOK, map[string]string{"name": h.mgr.PortName(port)})
}

// HandleUpdatePortName sets a port's display label.
func (h *Handler) HandleUpdatePortName(c echo.Context) error {
	port := c.Param("port")

	var req struct {
		Name string `json:"name"`
	}
	if err := c.Bind(&req); err != nil {
		return RespondWithError(c, NewBadRequestError("invalid name body", err))
	}

	h.mgr.UpdatePortName(port, req.Name)
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

// HandleStartPort begins monitoring a port. Starting an already-active
// port is a conflict, not a new session.
func (h *Handler) HandleStartPort(c echo.Context) error {
	port := c.Param("port")
	if !h.mgr.StartPort(port) {
		return RespondWithError(c, NewConflictError("port is already monitored: "+port))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"port": port, "active": true})
}

// HandleStopPort ends monitoring for a port.
func (h *Handler) HandleStopPort(c echo.Context) error {
	port := c.Param("port")
	if !h.mgr.StopPort(port) {
		return RespondWithError(c, NewConflictError("port is not monitored: "+port))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"port": port, "active": false})
}

// HandleSend validates and transmits a hex payload on a port.
func (h *Handler) HandleSend(c echo.Context) error {
	port := c.Param("port")

	var req struct {
		Data string `json:"data"`
	}
	if err := c.Bind(&req); err != nil {
		return RespondWithError(c, NewBadRequestError("invalid send body", err))
	}

	if !h.mgr.Send(port, req.Data) {
		return RespondWithError(c, NewValidationError("payload is not a well-formed hex byte sequence"))
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}

// HandleClear truncates a port's log buffer.
func (h *Handler) HandleClear(c echo.Context) error {
	port := c.Param("port")
	h.mgr.ClearPort(port)
	return c.JSON(http.StatusOK, map[string]bool{"success": true})
}
