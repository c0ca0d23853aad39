package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Staking-Facilities-GmbH/tidal/internal/catalog"
	"github.com/Staking-Facilities-GmbH/tidal/internal/seal"
	"github.com/Staking-Facilities-GmbH/tidal/internal/session"
)

// DownloadHandler handles decrypt-and-download operations
type DownloadHandler struct {
	common *CommonServices
}

// NewDownloadHandler creates a new instance of DownloadHandler
func NewDownloadHandler(common *CommonServices) *DownloadHandler {
	return &DownloadHandler{common: common}
}

// DownloadAsset decrypts the asset for the given address and streams the
// plaintext. A 403 means the key servers declined against current ledger
// state; the client should not retry without purchasing first.
func (h *DownloadHandler) DownloadAsset(c *gin.Context) {
	assetID, err := uuid.Parse(c.Param("asset_id"))
	if err != nil {
		sendError(c, http.StatusBadRequest, "Invalid asset ID format", err)
		return
	}
	address := c.Query("address")
	if !common.IsHexAddress(address) {
		sendError(c, http.StatusBadRequest, "Invalid address", nil)
		return
	}

	filename, data, err := h.common.download.Download(c.Request.Context(), assetID, common.HexToAddress(address))
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrAssetNotFound):
			sendError(c, http.StatusNotFound, "Asset not found", err)
		case errors.Is(err, seal.ErrNoAccess):
			sendError(c, http.StatusForbidden, "Address is not authorized for this asset", err)
		case errors.Is(err, session.ErrCredentialDenied):
			sendError(c, http.StatusUnauthorized, "Session credential was denied", err)
		case errors.Is(err, seal.ErrDecryptionFailed):
			sendError(c, http.StatusInternalServerError, "Failed to decrypt asset", err)
		default:
			sendError(c, http.StatusInternalServerError, "Failed to download asset", err)
		}
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "model/gltf+json", data)
}
