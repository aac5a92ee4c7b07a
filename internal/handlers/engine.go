package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"kiln_console/internal/models"
	"kiln_console/internal/service"
)

const (
	errStartProgram  = "failed to start program"
	errCancelProgram = "failed to cancel program"
	errGetStatus     = "failed to load status"
	errGetLog        = "failed to load running log"
)

// StartProgramRequest is an exported model for Swagger docs of the start payload.
type StartProgramRequest struct {
	// Program name
	Name string `json:"name" example:"pine 40mm"`
	// Ordered steps
	Steps []models.ProgramStep `json:"steps"`
}

// @Summary      Current run
// @Tags         engine
// @Produce      json
// @Success      200  {object}  models.RunState
// @Success      204  "no program running"
// @Failure      500  {object}  map[string]string
// @Router       /engine/running [get]
func (h *Handler) getRunning(c *gin.Context) {
	st, err := h.services.Monitoring.Status(c.Request.Context())
	switch {
	case errors.Is(err, service.ErrNoProgramRunning):
		c.Status(http.StatusNoContent)
	case err != nil:
		h.logAndJSONError(c, http.StatusInternalServerError, errGetStatus, "engine_status_failed", err)
	default:
		c.JSON(http.StatusOK, st)
	}
}

// @Summary      Start a program
// @Tags         engine
// @Accept       json
// @Produce      json
// @Param        body  body   StartProgramRequest  true  "Program"
// @Success      201   {object}  models.RunState
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /engine/running [post]
func (h *Handler) startProgram(c *gin.Context) {
	var req StartProgramRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}

	st, err := h.services.Runner.Start(c.Request.Context(), models.Program{Name: req.Name, Steps: req.Steps})
	switch {
	case errors.Is(err, service.ErrAlreadyRunning):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case isValidationError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		h.logAndJSONError(c, http.StatusInternalServerError, errStartProgram, "engine_start_failed", err, "program", req.Name)
	default:
		h.log.Infow("engine_program_started", "program", st.Program.Name, "run_id", st.RunID)
		c.JSON(http.StatusCreated, st)
	}
}

// @Summary      Cancel the running program
// @Tags         engine
// @Success      204  "cancelled"
// @Failure      409  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /engine/running [delete]
func (h *Handler) cancelProgram(c *gin.Context) {
	err := h.services.Runner.Cancel(c.Request.Context())
	switch {
	case errors.Is(err, service.ErrNoProgramRunning):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		h.logAndJSONError(c, http.StatusInternalServerError, errCancelProgram, "engine_cancel_failed", err)
	default:
		h.log.Infow("engine_program_cancelled")
		c.Status(http.StatusNoContent)
	}
}

// @Summary      Running log
// @Description  Everything logged so far for the running program, header first.
// @Tags         engine
// @Produce      text/csv
// @Success      200  {string}  string
// @Success      204  "no program running"
// @Failure      500  {object}  map[string]string
// @Router       /engine/running/log [get]
func (h *Handler) getRunningLog(c *gin.Context) {
	body, err := h.services.Monitoring.RunningLog(c.Request.Context())
	switch {
	case errors.Is(err, service.ErrNoProgramRunning):
		c.Status(http.StatusNoContent)
	case err != nil:
		h.logAndJSONError(c, http.StatusInternalServerError, errGetLog, "engine_log_failed", err)
	default:
		c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(body))
	}
}

func isValidationError(err error) bool {
	return errors.Is(err, models.ErrProgramName) || errors.Is(err, models.ErrProgramSteps) ||
		errors.Is(err, models.ErrInvalidStep)
}
