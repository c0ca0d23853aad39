package handlers

import (
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Staking-Facilities-GmbH/tidal/internal/catalog"
	"github.com/Staking-Facilities-GmbH/tidal/internal/services"
)

// PurchaseHandler handles purchase related operations
type PurchaseHandler struct {
	common *CommonServices
}

// NewPurchaseHandler creates a new instance of PurchaseHandler
func NewPurchaseHandler(common *CommonServices) *PurchaseHandler {
	return &PurchaseHandler{common: common}
}

// CreatePurchaseRequest represents the request body for purchasing an asset
type CreatePurchaseRequest struct {
	BuyerAddress string `json:"buyer_address" binding:"required"`
}

// PurchaseResponse represents the standardized API response for purchases
type PurchaseResponse struct {
	ID          string         `json:"id"`
	Object      string         `json:"object"`
	AssetID     string         `json:"asset_id"`
	UserAddress string         `json:"user_address"`
	PurchasedAt int64          `json:"purchased_at"`
	Asset       *AssetResponse `json:"asset,omitempty"`
}

func toPurchaseResponse(p *catalog.Purchase) PurchaseResponse {
	resp := PurchaseResponse{
		ID:          p.ID.String(),
		Object:      "purchase",
		AssetID:     p.AssetID.String(),
		UserAddress: p.UserAddress,
		PurchasedAt: p.PurchasedAt.Unix(),
	}
	if p.Asset != nil {
		asset := toAssetResponse(p.Asset)
		resp.Asset = &asset
	}
	return resp
}

// CreatePurchase admits the buyer to the asset's authorization list
func (h *PurchaseHandler) CreatePurchase(c *gin.Context) {
	assetID, err := uuid.Parse(c.Param("asset_id"))
	if err != nil {
		sendError(c, http.StatusBadRequest, "Invalid asset ID format", err)
		return
	}

	var req CreatePurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !common.IsHexAddress(req.BuyerAddress) {
		sendError(c, http.StatusBadRequest, "Invalid buyer address", nil)
		return
	}

	purchase, err := h.common.purchase.Purchase(c.Request.Context(), assetID, common.HexToAddress(req.BuyerAddress))
	if err != nil {
		var failed *services.PurchaseFailedError
		switch {
		case errors.As(err, &failed):
			sendError(c, http.StatusPaymentRequired, failed.Reason, err)
		case errors.Is(err, catalog.ErrAssetNotFound):
			sendError(c, http.StatusNotFound, "Asset not found", err)
		default:
			sendError(c, http.StatusInternalServerError, "Failed to complete purchase", err)
		}
		return
	}
	sendSuccess(c, http.StatusCreated, toPurchaseResponse(purchase))
}

// GetPurchaseStatus reports whether the address holds a recorded purchase
func (h *PurchaseHandler) GetPurchaseStatus(c *gin.Context) {
	assetID, err := uuid.Parse(c.Param("asset_id"))
	if err != nil {
		sendError(c, http.StatusBadRequest, "Invalid asset ID format", err)
		return
	}
	address := c.Param("address")
	if !common.IsHexAddress(address) {
		sendError(c, http.StatusBadRequest, "Invalid address", nil)
		return
	}

	purchased, err := h.common.purchase.HasPurchased(c.Request.Context(), assetID, common.HexToAddress(address))
	if err != nil {
		sendError(c, http.StatusInternalServerError, "Failed to check purchase status", err)
		return
	}
	sendSuccess(c, http.StatusOK, gin.H{"purchased": purchased})
}

// ListPurchases pages through the purchases of one address
func (h *PurchaseHandler) ListPurchases(c *gin.Context) {
	address := c.Query("address")
	if !common.IsHexAddress(address) {
		sendError(c, http.StatusBadRequest, "Invalid address", nil)
		return
	}
	limit := parseInt32(c.Query("limit"), catalog.DefaultPageSize)
	offset := parseInt32(c.Query("offset"), 0)

	purchases, total, err := h.common.purchase.ListPurchases(c.Request.Context(), common.HexToAddress(address), limit, offset)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "Failed to list purchases", err)
		return
	}

	responses := make([]PurchaseResponse, 0, len(purchases))
	for i := range purchases {
		responses = append(responses, toPurchaseResponse(&purchases[i]))
	}
	sendList(c, responses, total)
}
