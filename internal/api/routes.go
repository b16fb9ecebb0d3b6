// routes.go - Route registration helpers
package api

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes attaches every API route to the echo instance.
func RegisterRoutes(e *echo.Echo, h *Handler, hub *Hub) {
	apiGroup := e.Group("/api")

	apiGroup.GET("/health", h.HandleHealth)
	apiGroup.GET("/ws", hub.HandleWebSocket)

	apiGroup.GET("/ports", h.HandleListPorts)
	apiGroup.GET("/history", h.HandleHistory)

	apiGroup.GET("/port/:port/data", h.HandlePortData)
	apiGroup.GET("/port/:port/data/msgpack", h.HandlePortDataMsgpack)
	apiGroup.GET("/port/:port/archive", h.HandleArchive)
	apiGroup.GET("/port/:port/settings", h.HandleGetPortSettings)
	apiGroup.POST("/port/:port/settings", h.HandleUpdatePortSettings)
	apiGroup.GET("/port/:port/name", h.HandleGetPortName)
	apiGroup.POST("/port/:port/name", h.HandleUpdatePortName)

	apiGroup.POST("/port/:port/start", h.HandleStartPort)
	apiGroup.POST("/port/:port/stop", h.HandleStopPort)
	apiGroup.POST("/port/:port/send", h.HandleSend)
	apiGroup.POST("/port/:port/clear", h.HandleClear)
}
