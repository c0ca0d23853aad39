package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrAssetNotFound reports a lookup for an unknown asset id.
var ErrAssetNotFound = errors.New("asset not found")

// DefaultPageSize is the browse page size.
const DefaultPageSize = 10

// Asset is a catalog record linking the human-readable listing to the
// authorization list and the encrypted content's locator. The catalog is
// advisory glue; decrypt authorization is always re-derived from the ledger.
type Asset struct {
	ID             uuid.UUID
	Name           string
	Description    string
	Price          int64 // admission fee, smallest currency unit
	Tags           []string
	FileURL        string
	BlobID         string
	ObjectRef      string
	AllowlistID    string
	CapID          string
	CreatorAddress string
	PreviewURL     string
	CreatedAt      time.Time
}

// Purchase records a ledger-confirmed admission. Its existence is a local
// cache; the on-ledger authorization list remains the ground truth.
type Purchase struct {
	ID          uuid.UUID
	AssetID     uuid.UUID
	UserAddress string
	PurchasedAt time.Time
	Asset       *Asset
}

// CreateAssetParams are the fields written at publish time.
type CreateAssetParams struct {
	Name           string
	Description    string
	Price          int64
	Tags           []string
	FileURL        string
	BlobID         string
	ObjectRef      string
	AllowlistID    string
	CapID          string
	CreatorAddress string
	PreviewURL     string
}

// ListAssetsParams filter and page the store browse query.
type ListAssetsParams struct {
	Name   string // substring match on name, case-insensitive
	Tag    string // tag-set containment
	Limit  int32
	Offset int32
}

// Store is the catalog boundary used by the flows.
type Store interface {
	CreateAsset(ctx context.Context, params CreateAssetParams) (*Asset, error)
	GetAsset(ctx context.Context, id uuid.UUID) (*Asset, error)
	ListAssets(ctx context.Context, params ListAssetsParams) ([]Asset, int64, error)
	AttachPreview(ctx context.Context, id uuid.UUID, previewURL string) error

	CreatePurchase(ctx context.Context, assetID uuid.UUID, userAddress string) (*Purchase, error)
	ListPurchases(ctx context.Context, userAddress string, limit, offset int32) ([]Purchase, int64, error)
	HasPurchased(ctx context.Context, assetID uuid.UUID, userAddress string) (bool, error)
}
