package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"kiln_console/internal/models"
	"kiln_console/internal/service"
)

// @Summary      Live running log
// @Description  WebSocket. Sends the log header, then one CSV row per interval
// @Description  while a program runs. Sends "No program running" and closes
// @Description  when there is none or when the run ends.
// @Tags         engine
// @Param        interval     query  string  false  "Row interval, e.g. 2s (max 10s)"
// @Param        interval_ms  query  int     false  "Row interval in ms (max 10000)"
// @Router       /engine/running/logws [get]
func (h *Handler) streamRunningLog(c *gin.Context) {
	interval := h.parseInterval(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Errorw("logws_upgrade_failed", "err", err)
		return
	}
	defer func() { _ = conn.Close() }()
	prepareConn(conn)

	ctx := c.Request.Context()
	if _, err := h.services.Monitoring.Status(ctx); err != nil {
		h.endStream(conn, err)
		return
	}

	done := make(chan struct{})
	go h.startReader(conn, done)

	ticker := time.NewTicker(interval)
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ping.Stop()
	}()

	if err := writeText(conn, models.LogHeader); err != nil {
		h.log.Infow("logws_write_failed_initial", "err", err)
		return
	}
	last, err := h.sendLiveRow(ctx, conn, -1)
	if err != nil {
		h.endStream(conn, err)
		return
	}

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ping.C:
			if err := writePing(conn); err != nil {
				h.log.Infow("logws_ping_failed", "err", err)
				return
			}
		case <-ticker.C:
			if last, err = h.sendLiveRow(ctx, conn, last); err != nil {
				h.endStream(conn, err)
				return
			}
		}
	}
}

// sendLiveRow writes the current row unless its timestamp does not move
// past last. It returns the timestamp of the newest row sent.
func (h *Handler) sendLiveRow(ctx context.Context, conn *websocket.Conn, last int64) (int64, error) {
	rec, err := h.services.Monitoring.LiveRecord(ctx)
	if err != nil {
		return last, err
	}
	if rec.Timestamp <= last {
		return last, nil
	}
	if err := writeText(conn, rec.CSV()); err != nil {
		return last, err
	}
	return rec.Timestamp, nil
}

// endStream finishes the stream. A finished run gets the sentinel and a
// normal close frame; anything else just drops the connection so the
// client reconnects.
func (h *Handler) endStream(conn *websocket.Conn, err error) {
	if !errors.Is(err, service.ErrNoProgramRunning) {
		h.log.Infow("logws_stream_failed", "err", err)
		return
	}
	if err := writeText(conn, models.NoProgramRunning); err != nil {
		h.log.Infow("logws_write_failed", "err", err)
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
