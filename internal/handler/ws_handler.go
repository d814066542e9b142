package handler

import (
	"context"
	"maps"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/middleware"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/response"
	"github.com/stemsi/exstem-attempt/internal/service"
	"github.com/stemsi/exstem-attempt/internal/validator"
	ws "github.com/stemsi/exstem-attempt/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams attempt edits over a single WebSocket.
type WSHandler struct {
	attemptService *service.AttemptService
	limiter        *middleware.RateLimiter
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler. limiter throttles log actions and may be nil.
func NewWSHandler(attemptService *service.AttemptService, limiter *middleware.RateLimiter, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attemptService: attemptService,
		limiter:        limiter,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/attempts/:id/stream
// Accepts save, mark, submit, log and ping actions for one attempt.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	attemptID, ok := parseID(c)
	if !ok {
		return
	}
	userID := middleware.GetCaller(c).UserID

	// Ownership is checked before the upgrade so failures are plain HTTP errors.
	if _, err := h.attemptService.Result(c.Request.Context(), attemptID, userID); err != nil {
		status, code := errorStatus(err)
		response.Fail(c, status, code)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Str("user_id", userID).
		Str("attempt_id", attemptID.String()).
		Logger()
	wsLog.Info().Msg("Student connected")

	ctx := c.Request.Context()
	for {
		msg, err := ws.ReadRequest(conn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		if err := h.dispatch(ctx, conn, attemptID, userID, msg); err != nil {
			wsLog.Warn().Err(err).Msg("Write failed, closing stream")
			return
		}
	}
}

// dispatch handles one message. The returned error is a write failure only.
func (h *WSHandler) dispatch(ctx context.Context, conn *websocket.Conn, attemptID uuid.UUID, userID string, msg ws.Request) error {
	switch msg.Action {
	case ws.ActionPing:
		return ws.WriteEvent(conn, ws.EventPong, nil)

	case ws.ActionSave:
		var req model.SaveAnswerRequest
		if fields := validator.BindJSON(msg.Data, &req); fields != nil {
			return ws.WriteError(conn, string(response.ErrValidation), joinFields(fields))
		}
		attempt, err := h.attemptService.SaveAnswer(ctx, attemptID, userID, req)
		if err != nil {
			return writeServiceError(conn, err)
		}
		return ws.WriteEvent(conn, savedEvent(attempt), service.ForStudent(*attempt))

	case ws.ActionMark:
		var req model.MarkForReviewRequest
		if fields := validator.BindJSON(msg.Data, &req); fields != nil {
			return ws.WriteError(conn, string(response.ErrValidation), joinFields(fields))
		}
		attempt, err := h.attemptService.MarkForReview(ctx, attemptID, userID, req.QuestionID, *req.Marked)
		if err != nil {
			return writeServiceError(conn, err)
		}
		ev := ws.EventMarked
		if !attempt.IsEditable() {
			ev = ws.EventSubmitted
		}
		return ws.WriteEvent(conn, ev, service.ForStudent(*attempt))

	case ws.ActionSubmit:
		var req model.SubmitRequest
		if fields := validator.BindJSON(msg.Data, &req); fields != nil {
			return ws.WriteError(conn, string(response.ErrValidation), joinFields(fields))
		}
		attempt, err := h.attemptService.Submit(ctx, attemptID, userID, req.Auto)
		if err != nil {
			return writeServiceError(conn, err)
		}
		return ws.WriteEvent(conn, ws.EventSubmitted, service.ForStudent(*attempt))

	case ws.ActionLog:
		if h.limiter != nil && !h.limiter.Allow("user:"+userID) {
			return ws.WriteError(conn, string(response.ErrRateLimitExceeded), response.GetMessage(response.ErrRateLimitExceeded))
		}
		var req model.LogActivityRequest
		if fields := validator.BindJSON(msg.Data, &req); fields != nil {
			return ws.WriteError(conn, string(response.ErrValidation), joinFields(fields))
		}
		entry, err := h.attemptService.LogActivity(ctx, attemptID, userID, req)
		if err != nil {
			return writeServiceError(conn, err)
		}
		return ws.WriteEvent(conn, ws.EventLogged, entry)
	}

	return ws.WriteError(conn, string(response.ErrInvalidPayload), "unknown action: "+string(msg.Action))
}

// savedEvent reports a save that hit the deadline as a submission.
func savedEvent(a *model.Attempt) ws.Event {
	if a.IsEditable() {
		return ws.EventSaved
	}
	return ws.EventSubmitted
}

func writeServiceError(conn *websocket.Conn, err error) error {
	_, code := errorStatus(err)
	return ws.WriteError(conn, string(code), response.GetMessage(code))
}

func joinFields(fields map[string]string) string {
	return strings.Join(slices.Sorted(maps.Values(fields)), "; ")
}
