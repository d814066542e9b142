package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/response"
	"github.com/stemsi/exstem-attempt/internal/service"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // bounds each snapshot query inside the SSE loop
)

type MonitorHandler struct {
	monitorService *service.MonitorService
	log            zerolog.Logger
}

func NewMonitorHandler(monitorService *service.MonitorService, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		monitorService: monitorService,
		log:            log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorExamSSE godoc
// GET /api/v1/admin/exams/:id/monitor
// Sends a snapshot, then forwards attempt events with periodic refreshes and pings.
func (h *MonitorHandler) MonitorExamSSE(c *gin.Context) {
	examID, ok := parseID(c)
	if !ok {
		return
	}

	reqCtx := c.Request.Context()
	snap, err := h.snapshot(reqCtx, examID)
	if errors.Is(err, service.ErrNotFound) {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("exam_id", examID.String()).Msg("Failed to build monitor snapshot")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.SSEvent("message", gin.H{"type": "snapshot", "data": snap})
	c.Writer.Flush()

	pubsub := h.monitorService.Subscribe(reqCtx, examID)
	defer pubsub.Close()
	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()
	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	// Refresh only when something happened since the last one.
	dirty := false

	h.log.Info().Str("exam_id", examID.String()).Msg("Staff attached to live monitor SSE")

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("exam_id", examID.String()).Msg("Staff disconnected from live monitor SSE")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Payload is already JSON.
			_, _ = c.Writer.Write([]byte("data: " + msg.Payload + "\n\n"))
			c.Writer.Flush()
			dirty = true

		case <-refreshTicker.C:
			if !dirty {
				continue
			}
			snap, err := h.snapshot(reqCtx, examID)
			if err != nil {
				h.log.Warn().Err(err).Msg("Failed to refresh monitor snapshot")
				continue
			}
			c.SSEvent("message", gin.H{"type": "refresh", "data": snap.Stats})
			c.Writer.Flush()
			dirty = false

		case <-keepAliveTicker.C:
			_, _ = c.Writer.Write([]byte("data: {\"type\":\"ping\"}\n\n"))
			c.Writer.Flush()
		}
	}
}

func (h *MonitorHandler) snapshot(parent context.Context, examID uuid.UUID) (*service.MonitorSnapshot, error) {
	ctx, cancel := context.WithTimeout(parent, refreshTimeout)
	defer cancel()
	return h.monitorService.Snapshot(ctx, examID)
}
