package handlers

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Staking-Facilities-GmbH/tidal/internal/catalog"
	"github.com/Staking-Facilities-GmbH/tidal/internal/services"
)

// AssetHandler handles catalog and publish operations
type AssetHandler struct {
	common *CommonServices
}

// NewAssetHandler creates a new instance of AssetHandler
func NewAssetHandler(common *CommonServices) *AssetHandler {
	return &AssetHandler{common: common}
}

// AssetResponse represents the standardized API response for asset operations
type AssetResponse struct {
	ID             string   `json:"id"`
	Object         string   `json:"object"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Price          int64    `json:"price"`
	Tags           []string `json:"tags"`
	FileURL        string   `json:"file_url"`
	BlobID         string   `json:"blob_id"`
	AllowlistID    string   `json:"allowlist_id"`
	CapID          string   `json:"cap_id"`
	CreatorAddress string   `json:"creator_address"`
	PreviewURL     string   `json:"preview_url,omitempty"`
	CreatedAt      int64    `json:"created_at"`
}

func toAssetResponse(a *catalog.Asset) AssetResponse {
	tags := a.Tags
	if tags == nil {
		tags = []string{}
	}
	return AssetResponse{
		ID:             a.ID.String(),
		Object:         "asset",
		Name:           a.Name,
		Description:    a.Description,
		Price:          a.Price,
		Tags:           tags,
		FileURL:        a.FileURL,
		BlobID:         a.BlobID,
		AllowlistID:    a.AllowlistID,
		CapID:          a.CapID,
		CreatorAddress: a.CreatorAddress,
		PreviewURL:     a.PreviewURL,
		CreatedAt:      a.CreatedAt.Unix(),
	}
}

// AttachPreviewRequest represents the request body for attaching a preview
type AttachPreviewRequest struct {
	PreviewURL string `json:"preview_url" binding:"required"`
}

// ListAssets returns a page of the catalog, filterable by name substring
// and tag
func (h *AssetHandler) ListAssets(c *gin.Context) {
	limit := parseInt32(c.Query("limit"), catalog.DefaultPageSize)
	offset := parseInt32(c.Query("offset"), 0)

	assets, total, err := h.common.store.ListAssets(c.Request.Context(), catalog.ListAssetsParams{
		Name:   c.Query("name"),
		Tag:    c.Query("tag"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		sendError(c, http.StatusInternalServerError, "Failed to list assets", err)
		return
	}

	responses := make([]AssetResponse, 0, len(assets))
	for i := range assets {
		responses = append(responses, toAssetResponse(&assets[i]))
	}
	sendList(c, responses, total)
}

// GetAsset returns one catalog record by ID
func (h *AssetHandler) GetAsset(c *gin.Context) {
	assetID, err := uuid.Parse(c.Param("asset_id"))
	if err != nil {
		sendError(c, http.StatusBadRequest, "Invalid asset ID format", err)
		return
	}

	asset, err := h.common.store.GetAsset(c.Request.Context(), assetID)
	if err != nil {
		handleStoreError(c, err, "Asset not found")
		return
	}
	sendSuccess(c, http.StatusOK, toAssetResponse(asset))
}

// PublishAsset runs the full creator flow from a multipart upload
func (h *AssetHandler) PublishAsset(c *gin.Context) {
	creatorAddr := c.PostForm("creator_address")
	if !common.IsHexAddress(creatorAddr) {
		sendError(c, http.StatusBadRequest, "Invalid creator address", nil)
		return
	}

	price, err := strconv.ParseUint(c.PostForm("price"), 10, 64)
	if err != nil {
		sendError(c, http.StatusBadRequest, "Invalid price", err)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		sendError(c, http.StatusBadRequest, "Asset file is required", err)
		return
	}
	if fileHeader.Size > services.MaxContentSize {
		sendError(c, http.StatusRequestEntityTooLarge, "Asset file exceeds the size limit", nil)
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		sendError(c, http.StatusBadRequest, "Failed to read asset file", err)
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		sendError(c, http.StatusBadRequest, "Failed to read asset file", err)
		return
	}

	var tags []string
	if raw := c.PostForm("tags"); raw != "" {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				tags = append(tags, tag)
			}
		}
	}

	asset, err := h.common.publish.Publish(c.Request.Context(), services.PublishParams{
		Creator:     common.HexToAddress(creatorAddr),
		Name:        c.PostForm("name"),
		Description: c.PostForm("description"),
		Price:       price,
		Tags:        tags,
		Filename:    fileHeader.Filename,
		Content:     content,
		PreviewURL:  c.PostForm("preview_url"),
	})
	if err != nil {
		sendError(c, http.StatusBadGateway, "Failed to publish asset", err)
		return
	}
	sendSuccess(c, http.StatusCreated, toAssetResponse(asset))
}

// AttachPreview sets the preview locator on an existing asset
func (h *AssetHandler) AttachPreview(c *gin.Context) {
	assetID, err := uuid.Parse(c.Param("asset_id"))
	if err != nil {
		sendError(c, http.StatusBadRequest, "Invalid asset ID format", err)
		return
	}

	var req AttachPreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.common.store.AttachPreview(c.Request.Context(), assetID, req.PreviewURL); err != nil {
		handleStoreError(c, err, "Asset not found")
		return
	}
	sendSuccess(c, http.StatusOK, SuccessResponse{Message: "Preview attached"})
}

func parseInt32(s string, fallback int32) int32 {
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil || v < 0 {
		return fallback
	}
	return int32(v)
}
