package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/Staking-Facilities-GmbH/tidal/internal/catalog"
	"github.com/Staking-Facilities-GmbH/tidal/internal/ledger"
	"github.com/Staking-Facilities-GmbH/tidal/internal/seal"
)

// MaxContentSize is the largest asset accepted for publishing.
const MaxContentSize = 10 << 20

var allowedExtensions = map[string]bool{
	".glb":  true,
	".gltf": true,
}

// PublishService runs the creator flow: create an authorization list on the
// ledger, encrypt the asset under its id, store the ciphertext, record the
// blob against the list, and write the catalog entry. Steps are ordered so
// that nothing is uploaded or cataloged until the list exists, and nothing
// is cataloged until the blob is recorded on the ledger.
type PublishService struct {
	ledger   ledger.Client
	resolver ObjectResolver
	sealer   Sealer
	blobs    BlobStore
	store    catalog.Store
	pkg      ledger.ObjectID
	logger   *zap.Logger
}

// NewPublishService creates a PublishService.
func NewPublishService(
	ledgerClient ledger.Client,
	resolver ObjectResolver,
	sealer Sealer,
	blobs BlobStore,
	store catalog.Store,
	pkg ledger.ObjectID,
	log *zap.Logger,
) *PublishService {
	return &PublishService{
		ledger:   ledgerClient,
		resolver: resolver,
		sealer:   sealer,
		blobs:    blobs,
		store:    store,
		pkg:      pkg,
		logger:   log,
	}
}

// PublishParams describe one asset to publish.
type PublishParams struct {
	Creator     common.Address
	Name        string
	Description string
	// Price is the admission fee in the smallest currency unit. Baked into
	// the authorization list at creation and immutable afterwards.
	Price      uint64
	Tags       []string
	Filename   string
	Content    []byte
	PreviewURL string
}

func (p *PublishParams) validate() error {
	if p.Name == "" {
		return fmt.Errorf("asset name is required")
	}
	if len(p.Content) == 0 {
		return fmt.Errorf("asset content is empty")
	}
	if len(p.Content) > MaxContentSize {
		return fmt.Errorf("asset content is %d bytes, limit is %d", len(p.Content), MaxContentSize)
	}
	ext := strings.ToLower(filepath.Ext(p.Filename))
	if !allowedExtensions[ext] {
		return fmt.Errorf("unsupported asset format %q, expected .glb or .gltf", ext)
	}
	return nil
}

// Publish runs the full creator flow and returns the catalog record.
func (s *PublishService) Publish(ctx context.Context, params PublishParams) (*catalog.Asset, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	allowlistID, capID, err := s.createAllowlist(ctx, params)
	if err != nil {
		return nil, err
	}

	encrypted, err := s.sealer.Encrypt(params.Content, allowlistID, seal.EncryptOptions{PackageID: s.pkg})
	if err != nil {
		return nil, fmt.Errorf("encrypting asset: %w", err)
	}
	payload, err := encrypted.Marshal()
	if err != nil {
		return nil, fmt.Errorf("serializing encrypted asset: %w", err)
	}

	stored, err := s.blobs.Put(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("storing encrypted asset: %w", err)
	}
	s.logger.Info("encrypted asset stored",
		zap.String("blob_id", stored.BlobID),
		zap.String("status", stored.Status))

	publishTx := ledger.NewPublishTx(params.Creator, s.pkg, allowlistID, capID, stored.BlobID)
	result, err := s.ledger.ExecuteTransaction(ctx, publishTx)
	if err != nil {
		return nil, fmt.Errorf("submitting publish transaction: %w", err)
	}
	if !result.Succeeded() {
		return nil, fmt.Errorf("publish transaction failed: %s", result.Error)
	}

	asset, err := s.store.CreateAsset(ctx, catalog.CreateAssetParams{
		Name:           params.Name,
		Description:    params.Description,
		Price:          int64(params.Price),
		Tags:           params.Tags,
		FileURL:        s.blobs.BlobURL(stored.BlobID),
		BlobID:         stored.BlobID,
		ObjectRef:      stored.Ref,
		AllowlistID:    allowlistID.Hex(),
		CapID:          capID.Hex(),
		CreatorAddress: params.Creator.Hex(),
		PreviewURL:     params.PreviewURL,
	})
	if err != nil {
		return nil, fmt.Errorf("writing catalog record: %w", err)
	}

	s.logger.Info("asset published",
		zap.String("asset_id", asset.ID.String()),
		zap.String("allowlist_id", allowlistID.Hex()),
		zap.String("creator", params.Creator.Hex()))
	return asset, nil
}

// createAllowlist submits the list-creation transaction and resolves the two
// created objects. Anything other than exactly one list plus one capability
// aborts the flow before any content leaves the process.
func (s *PublishService) createAllowlist(ctx context.Context, params PublishParams) (ledger.ObjectID, ledger.ObjectID, error) {
	var allowlistID, capID ledger.ObjectID

	tx := ledger.NewCreateAllowlistTx(params.Creator, s.pkg, params.Price, params.Name)
	result, err := s.ledger.ExecuteTransaction(ctx, tx)
	if err != nil {
		return allowlistID, capID, fmt.Errorf("submitting allowlist creation: %w", err)
	}
	if !result.Succeeded() {
		return allowlistID, capID, fmt.Errorf("allowlist creation failed: %s", result.Error)
	}

	ids := make([]ledger.ObjectID, 0, len(result.Created))
	for _, ref := range result.Created {
		ids = append(ids, ref.ID)
	}
	objects, err := s.resolver.ResolveObjects(ctx, ids, ledger.GetObjectOptions{ShowType: true})
	if err != nil {
		return allowlistID, capID, fmt.Errorf("resolving created objects: %w", err)
	}

	var allowlists, caps int
	for _, obj := range objects {
		switch {
		case ledger.IsAllowlistType(obj.Type):
			allowlistID = obj.ID
			allowlists++
		case ledger.IsCapType(obj.Type):
			capID = obj.ID
			caps++
		}
	}
	if allowlists != 1 || caps != 1 {
		return allowlistID, capID, fmt.Errorf(
			"allowlist creation produced %d lists and %d capabilities, expected one of each", allowlists, caps)
	}
	return allowlistID, capID, nil
}
