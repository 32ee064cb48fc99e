// internal/handler/capture_handler.go
package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"escpos-service/internal/model"
	"escpos-service/internal/repository"
	"escpos-service/internal/service"
	"escpos-service/internal/utils"
)

// CaptureHandler handles captured print job requests
type CaptureHandler struct {
	captureService *service.CaptureService
	logger         *utils.ServiceLogger
}

// NewCaptureHandler creates a new capture handler
func NewCaptureHandler(captureService *service.CaptureService, logger *zap.Logger) *CaptureHandler {
	return &CaptureHandler{
		captureService: captureService,
		logger:         utils.NewServiceLogger(logger, "capture-handler"),
	}
}

// RegisterRoutes registers capture routes
func (h *CaptureHandler) RegisterRoutes(router *gin.RouterGroup) {
	captures := router.Group("/captures")
	{
		captures.GET("", h.ListCaptures)
		captures.GET("/stats", h.GetStats)
		captures.GET("/:capture_id", h.GetCapture)
		captures.POST("/:capture_id/replay", h.ReplayCapture)
	}
}

// ListCaptures lists captures with filtering and pagination
// @Summary List captures
// @Description Get captured print jobs with filtering and pagination support
// @Tags Captures
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(20)
// @Param source query string false "Filter by source" Enums(LISTENER, API, REPLAY)
// @Param decoder_status query string false "Filter by decoder status" Enums(success, warning, error)
// @Param printer_status query string false "Filter by printer status" Enums(unknown, success, error, disabled)
// @Param start_date query string false "Captured at or after (RFC3339)"
// @Param end_date query string false "Captured at or before (RFC3339)"
// @Param search query string false "Search receipt lines"
// @Param sort_by query string false "Sort by field" Enums(created_at, started_at, byte_count) default(created_at)
// @Param sort_order query string false "Sort order" Enums(asc, desc) default(desc)
// @Success 200 {object} utils.APIResponse{data=service.PaginationResult} "Captures retrieved successfully"
// @Failure 400 {object} utils.APIResponse "Invalid filter"
// @Failure 500 {object} utils.APIResponse "Internal server error"
// @Router /captures [get]
func (h *CaptureHandler) ListCaptures(c *gin.Context) {
	filter := &repository.CaptureFilter{
		Page:      1,
		PerPage:   20,
		SortBy:    c.DefaultQuery("sort_by", "created_at"),
		SortOrder: c.DefaultQuery("sort_order", "desc"),
	}

	if page := c.Query("page"); page != "" {
		if p, err := strconv.Atoi(page); err == nil && p > 0 {
			filter.Page = p
		}
	}
	if perPage := c.Query("per_page"); perPage != "" {
		if pp, err := strconv.Atoi(perPage); err == nil && pp > 0 {
			filter.PerPage = pp
		}
	}

	if source := c.Query("source"); source != "" {
		s := model.CaptureSource(source)
		filter.Source = &s
	}
	if status := c.Query("decoder_status"); status != "" {
		filter.DecoderStatus = &status
	}
	if status := c.Query("printer_status"); status != "" {
		filter.PrinterStatus = &status
	}
	if search := c.Query("search"); search != "" {
		filter.SearchTerm = &search
	}

	errs := make(map[string]string)
	if start := c.Query("start_date"); start != "" {
		if t, err := time.Parse(time.RFC3339, start); err == nil {
			filter.StartDate = &t
		} else {
			errs["start_date"] = "must be an RFC3339 timestamp"
		}
	}
	if end := c.Query("end_date"); end != "" {
		if t, err := time.Parse(time.RFC3339, end); err == nil {
			filter.EndDate = &t
		} else {
			errs["end_date"] = "must be an RFC3339 timestamp"
		}
	}
	if len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs)
		return
	}

	result, err := h.captureService.ListCaptures(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list captures", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list captures", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Captures retrieved successfully", result)
}

// GetCapture retrieves a capture by ID
// @Summary Get capture details
// @Description Get a captured print job with its receipt lines and decoder summary
// @Tags Captures
// @Produce json
// @Param capture_id path string true "Capture ID"
// @Success 200 {object} utils.APIResponse{data=model.Capture} "Capture retrieved successfully"
// @Failure 400 {object} utils.APIResponse "Invalid capture ID"
// @Failure 404 {object} utils.APIResponse "Capture not found"
// @Router /captures/{capture_id} [get]
func (h *CaptureHandler) GetCapture(c *gin.Context) {
	id, ok := parseCaptureID(c)
	if !ok {
		return
	}

	capture, err := h.captureService.GetCapture(c.Request.Context(), id)
	if err != nil {
		h.respondLookupError(c, err, id)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Capture retrieved successfully", capture)
}

// ReplayCapture relays a stored capture to the printer again
// @Summary Replay capture
// @Description Re-send the stored raw bytes of a capture to the configured printer
// @Tags Captures
// @Produce json
// @Param capture_id path string true "Capture ID"
// @Success 200 {object} utils.APIResponse{data=service.ReplayResult} "Capture replayed"
// @Failure 400 {object} utils.APIResponse "Invalid capture ID"
// @Failure 404 {object} utils.APIResponse "Capture not found"
// @Failure 422 {object} utils.APIResponse "Capture has no raw data"
// @Router /captures/{capture_id}/replay [post]
func (h *CaptureHandler) ReplayCapture(c *gin.Context) {
	id, ok := parseCaptureID(c)
	if !ok {
		return
	}

	result, err := h.captureService.Replay(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrNoRawData) {
			utils.ErrorResponse(c, http.StatusUnprocessableEntity, "Capture has no raw data", err)
			return
		}
		h.respondLookupError(c, err, id)
		return
	}

	if result.Error != "" {
		utils.ErrorResponse(c, http.StatusBadGateway, "Printer rejected the job", errors.New(result.Error))
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Capture replayed", result)
}

// GetStats returns capture statistics
// @Summary Capture statistics
// @Description Aggregate captures by decoder and printer status
// @Tags Captures
// @Produce json
// @Param since query string false "Only captures at or after (RFC3339)"
// @Success 200 {object} utils.APIResponse{data=repository.CaptureStats} "Statistics retrieved"
// @Failure 400 {object} utils.APIResponse "Invalid since"
// @Router /captures/stats [get]
func (h *CaptureHandler) GetStats(c *gin.Context) {
	var since *time.Time
	if s := c.Query("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			utils.ValidationErrorResponse(c, map[string]string{"since": "must be an RFC3339 timestamp"})
			return
		}
		since = &t
	}

	stats, err := h.captureService.Stats(c.Request.Context(), since)
	if err != nil {
		h.logger.Error("Failed to get capture stats", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to get capture stats", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Statistics retrieved", stats)
}

func (h *CaptureHandler) respondLookupError(c *gin.Context, err error, id uuid.UUID) {
	if errors.Is(err, repository.ErrCaptureNotFound) {
		utils.ErrorResponse(c, http.StatusNotFound, "Capture not found", err)
		return
	}
	h.logger.Error("Capture lookup failed", zap.Error(err), zap.String("capture_id", id.String()))
	utils.ErrorResponse(c, http.StatusInternalServerError, "Capture lookup failed", err)
}

func parseCaptureID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("capture_id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid capture ID", err)
		return uuid.Nil, false
	}
	return id, true
}
