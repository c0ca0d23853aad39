package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Staking-Facilities-GmbH/tidal/internal/catalog"
	"github.com/Staking-Facilities-GmbH/tidal/internal/logger"
	"github.com/Staking-Facilities-GmbH/tidal/internal/services"
)

// CommonServices holds common dependencies used across handlers
type CommonServices struct {
	store    catalog.Store
	publish  *services.PublishService
	purchase *services.PurchaseService
	download *services.DownloadService
}

// NewCommonServices creates a new instance of CommonServices
func NewCommonServices(
	store catalog.Store,
	publish *services.PublishService,
	purchase *services.PurchaseService,
	download *services.DownloadService,
) *CommonServices {
	return &CommonServices{
		store:    store,
		publish:  publish,
		purchase: purchase,
		download: download,
	}
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// SuccessResponse represents a standard success response
type SuccessResponse struct {
	Message string `json:"message"`
}

// sendError is a helper function that combines logging and error response
func sendError(c *gin.Context, statusCode int, message string, err error) {
	logger.Error(message,
		zap.Error(err),
		zap.String("path", c.Request.URL.Path),
		zap.String("method", c.Request.Method),
	)
	c.JSON(statusCode, ErrorResponse{Error: message})
}

// handleStoreError maps catalog errors to HTTP status codes
func handleStoreError(c *gin.Context, err error, notFoundMsg string) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, catalog.ErrAssetNotFound):
		sendError(c, http.StatusNotFound, notFoundMsg, err)
	default:
		sendError(c, http.StatusInternalServerError, "Internal server error", err)
	}
}

// sendSuccess is a helper function that sends a success response
func sendSuccess(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, data)
}

// sendList is a helper function that sends a paginated list response
func sendList(c *gin.Context, items interface{}, total int64) {
	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data":   items,
		"total":  total,
	})
}
