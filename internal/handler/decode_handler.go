// internal/handler/decode_handler.go
package handler

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"escpos-service/internal/render"
	"escpos-service/internal/service"
	"escpos-service/internal/utils"
)

// DecodeHandler handles ad-hoc decoding of ESC/POS payloads
type DecodeHandler struct {
	captureService *service.CaptureService
	maxBodySize    int64
	logger         *utils.ServiceLogger
}

// NewDecodeHandler creates a new decode handler
func NewDecodeHandler(captureService *service.CaptureService, maxJobSize int, logger *zap.Logger) *DecodeHandler {
	return &DecodeHandler{
		captureService: captureService,
		maxBodySize:    int64(maxJobSize),
		logger:         utils.NewServiceLogger(logger, "decode-handler"),
	}
}

// RegisterRoutes registers decode routes
func (h *DecodeHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.POST("/decode", h.Decode)
}

// DecodeJSONRequest is the JSON form of a decode request
type DecodeJSONRequest struct {
	DataBase64 string `json:"data_base64" binding:"required"`
	Level      *int   `json:"level" binding:"omitempty,min=0,max=2"`
	Store      bool   `json:"store"`
}

// Decode decodes a raw ESC/POS payload
// @Summary Decode an ESC/POS payload
// @Description Decode raw bytes (application/octet-stream) or a base64 JSON payload into instructions, rendered text and the extracted receipt
// @Tags Decode
// @Accept octet-stream
// @Accept json
// @Produce json
// @Param level query string false "Render level" Enums(0, 1, 2, quiet, info, debug)
// @Param store query bool false "Relay and persist the job as a capture"
// @Param request body DecodeJSONRequest false "Base64 payload"
// @Success 200 {object} utils.APIResponse{data=service.DecodeResult} "Payload decoded"
// @Failure 400 {object} utils.APIResponse "Invalid request"
// @Failure 413 {object} utils.APIResponse "Payload too large"
// @Failure 415 {object} utils.APIResponse "Unsupported content type"
// @Router /decode [post]
func (h *DecodeHandler) Decode(c *gin.Context) {
	req, status, err := h.parseRequest(c)
	if err != nil {
		utils.ErrorResponse(c, status, "Invalid decode request", err)
		return
	}
	req.RemoteAddr = c.ClientIP()

	result, err := h.captureService.Decode(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrJobTooLarge) {
			utils.ErrorResponse(c, http.StatusRequestEntityTooLarge, "Payload too large", err)
			return
		}
		if result == nil {
			h.logger.Error("Failed to decode payload", zap.Error(err))
			utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to decode payload", err)
			return
		}
		// Decoded but not stored.
		h.logger.Error("Failed to store decoded payload", zap.Error(err))
	}

	utils.SuccessResponse(c, http.StatusOK, "Payload decoded", result)
}

func (h *DecodeHandler) parseRequest(c *gin.Context) (*service.DecodeRequest, int, error) {
	req := &service.DecodeRequest{Level: render.LevelInfo}

	if lv := c.Query("level"); lv != "" {
		level, err := render.ParseLevel(lv)
		if err != nil {
			return nil, http.StatusBadRequest, err
		}
		req.Level = level
	}
	if st := c.Query("store"); st != "" {
		store, err := strconv.ParseBool(st)
		if err != nil {
			return nil, http.StatusBadRequest, fmt.Errorf("invalid store flag: %w", err)
		}
		req.Store = store
	}

	// Base64 doubles as a size bound for the JSON form.
	limit := h.maxBodySize
	if limit > 0 {
		limit = limit*2 + 1024
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	}

	switch c.ContentType() {
	case "application/json":
		var body DecodeJSONRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			return nil, bodyErrorStatus(err), err
		}
		data, err := base64.StdEncoding.DecodeString(body.DataBase64)
		if err != nil {
			return nil, http.StatusBadRequest, fmt.Errorf("invalid data_base64: %w", err)
		}
		req.Data = data
		if body.Level != nil {
			req.Level = render.Level(*body.Level)
		}
		req.Store = req.Store || body.Store

	case "application/octet-stream", "":
		data, err := io.ReadAll(c.Request.Body)
		if err != nil {
			return nil, bodyErrorStatus(err), fmt.Errorf("failed to read body: %w", err)
		}
		req.Data = data

	default:
		return nil, http.StatusUnsupportedMediaType, fmt.Errorf("unsupported content type: %s", c.ContentType())
	}

	return req, http.StatusOK, nil
}

func bodyErrorStatus(err error) int {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}
