package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// @Summary      Telemetry view
// @Description  Reconciled execution log with connection and process state.
// @Tags         telemetry
// @Produce      json
// @Success      200  {object}  telemetry.View
// @Router       /api/v1/telemetry [get]
func (h *Handler) getTelemetry(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Telemetry.View())
}

// @Summary      Telemetry log as CSV
// @Tags         telemetry
// @Produce      text/csv
// @Success      200  {string}  string
// @Success      204  "no process running"
// @Router       /api/v1/telemetry/csv [get]
func (h *Handler) getTelemetryCSV(c *gin.Context) {
	v := h.services.Telemetry.View()
	if v.CSV == "" {
		c.Status(http.StatusNoContent)
		return
	}
	c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(v.CSV))
}

// @Summary      Telemetry status
// @Tags         telemetry
// @Produce      json
// @Success      200  {object}  service.TelemetryStatus
// @Router       /api/v1/telemetry/status [get]
func (h *Handler) getTelemetryStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Telemetry.Status())
}

// @Summary      Refresh telemetry
// @Description  Re-reads the snapshot and opens the stream if it is not open.
// @Tags         telemetry
// @Produce      json
// @Success      202  {object}  map[string]string
// @Router       /api/v1/telemetry/refresh [post]
func (h *Handler) refreshTelemetry(c *gin.Context) {
	h.services.Telemetry.Refresh()
	h.log.Infow("telemetry_refresh_requested")
	c.JSON(http.StatusAccepted, gin.H{"status": statusOK})
}
