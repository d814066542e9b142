package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/middleware"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/response"
	"github.com/stemsi/exstem-attempt/internal/service"
	"github.com/stemsi/exstem-attempt/internal/validator"
)

const maxPerPage = 100

// AttemptHandler serves the attempt lifecycle endpoints.
type AttemptHandler struct {
	attemptService *service.AttemptService
	log            zerolog.Logger
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attemptService *service.AttemptService, log zerolog.Logger) *AttemptHandler {
	return &AttemptHandler{
		attemptService: attemptService,
		log:            log.With().Str("component", "attempt_handler").Logger(),
	}
}

// Start godoc
// POST /api/v1/attempts/:id/start
// :id is the exam id. Returns the caller's existing attempt when there is one.
func (h *AttemptHandler) Start(c *gin.Context) {
	examID, ok := parseID(c)
	if !ok {
		return
	}

	attempt, err := h.attemptService.Start(c.Request.Context(), examID, middleware.GetCaller(c))
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, service.ForStudent(*attempt))
}

// View godoc
// GET /api/v1/attempts/:id
func (h *AttemptHandler) View(c *gin.Context) {
	attemptID, ok := parseID(c)
	if !ok {
		return
	}

	view, err := h.attemptService.View(c.Request.Context(), attemptID, middleware.GetCaller(c).UserID)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, view)
}

// Result godoc
// GET /api/v1/attempts/:id/result
func (h *AttemptHandler) Result(c *gin.Context) {
	attemptID, ok := parseID(c)
	if !ok {
		return
	}

	result, err := h.attemptService.Result(c.Request.Context(), attemptID, middleware.GetCaller(c).UserID)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// SaveAnswer godoc
// POST /api/v1/attempts/:id/answer
// A live attempt past its deadline comes back auto-submitted with the edit discarded.
func (h *AttemptHandler) SaveAnswer(c *gin.Context) {
	attemptID, ok := parseID(c)
	if !ok {
		return
	}

	var req model.SaveAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	attempt, err := h.attemptService.SaveAnswer(c.Request.Context(), attemptID, middleware.GetCaller(c).UserID, req)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, service.ForStudent(*attempt))
}

// MarkForReview godoc
// POST /api/v1/attempts/:id/mark
func (h *AttemptHandler) MarkForReview(c *gin.Context) {
	attemptID, ok := parseID(c)
	if !ok {
		return
	}

	var req model.MarkForReviewRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	attempt, err := h.attemptService.MarkForReview(c.Request.Context(), attemptID, middleware.GetCaller(c).UserID, req.QuestionID, *req.Marked)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, service.ForStudent(*attempt))
}

// Submit godoc
// POST /api/v1/attempts/:id/submit
func (h *AttemptHandler) Submit(c *gin.Context) {
	attemptID, ok := parseID(c)
	if !ok {
		return
	}

	var req model.SubmitRequest
	if c.Request.ContentLength != 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	attempt, err := h.attemptService.Submit(c.Request.Context(), attemptID, middleware.GetCaller(c).UserID, req.Auto)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, service.ForStudent(*attempt))
}

// Next godoc
// POST /api/v1/attempts/:id/next
// Adaptive exams only.
func (h *AttemptHandler) Next(c *gin.Context) {
	attemptID, ok := parseID(c)
	if !ok {
		return
	}

	next, err := h.attemptService.Next(c.Request.Context(), attemptID, middleware.GetCaller(c).UserID)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, next)
}

// LogActivity godoc
// POST /api/v1/attempts/:id/log
func (h *AttemptHandler) LogActivity(c *gin.Context) {
	attemptID, ok := parseID(c)
	if !ok {
		return
	}

	var req model.LogActivityRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	entry, err := h.attemptService.LogActivity(c.Request.Context(), attemptID, middleware.GetCaller(c).UserID, req)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusCreated, entry)
}

// Publish godoc
// POST /api/v1/attempts/:id/publish
// Staff only; the route is guarded by RequireStaff.
func (h *AttemptHandler) Publish(c *gin.Context) {
	attemptID, ok := parseID(c)
	if !ok {
		return
	}

	var req model.PublishRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	attempt, err := h.attemptService.Publish(c.Request.Context(), attemptID, *req.Publish)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, attempt)
}

// StaffView godoc
// GET /api/v1/admin/attempts/:id
func (h *AttemptHandler) StaffView(c *gin.Context) {
	attemptID, ok := parseID(c)
	if !ok {
		return
	}

	view, err := h.attemptService.StaffView(c.Request.Context(), attemptID)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, view)
}

// ListByExam godoc
// GET /api/v1/admin/exams/:id/attempts?page=1&per_page=10
func (h *AttemptHandler) ListByExam(c *gin.Context) {
	examID, ok := parseID(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "10"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > maxPerPage {
		perPage = 10
	}

	attempts, total, err := h.attemptService.ListByExam(c.Request.Context(), examID, page, perPage)
	if err != nil {
		h.fail(c, err)
		return
	}
	if attempts == nil {
		attempts = []model.AttemptSummary{}
	}

	response.SuccessWithPagination(c, http.StatusOK, attempts, &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: int(total),
	})
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

// fail maps service errors onto the API error codes.
func (h *AttemptHandler) fail(c *gin.Context, err error) {
	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("Attempt request failed")
	}
	response.Fail(c, status, code)
}

func errorStatus(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, response.ErrNotFound
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, response.ErrForbidden
	case errors.Is(err, service.ErrNotEditable):
		return http.StatusConflict, response.ErrNotEditable
	case errors.Is(err, service.ErrAlreadySubmitted):
		return http.StatusConflict, response.ErrAlreadySubmitted
	case errors.Is(err, service.ErrInvalidMode):
		return http.StatusBadRequest, response.ErrInvalidMode
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict, response.ErrConflict
	}
	return http.StatusInternalServerError, response.ErrInternal
}
