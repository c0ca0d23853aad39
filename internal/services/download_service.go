package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Staking-Facilities-GmbH/tidal/internal/catalog"
	"github.com/Staking-Facilities-GmbH/tidal/internal/ledger"
	"github.com/Staking-Facilities-GmbH/tidal/internal/seal"
)

// DownloadService runs the retrieval flow: fetch the ciphertext from the
// blob store, obtain a session credential, and ask the key-server quorum to
// release shares against the asset's authorization list. Access is decided
// by the servers from current ledger state, never from the catalog.
type DownloadService struct {
	store    catalog.Store
	blobs    BlobStore
	sealer   Sealer
	sessions CredentialSource
	pkg      ledger.ObjectID
	logger   *zap.Logger
}

// NewDownloadService creates a DownloadService.
func NewDownloadService(
	store catalog.Store,
	blobs BlobStore,
	sealer Sealer,
	sessions CredentialSource,
	pkg ledger.ObjectID,
	log *zap.Logger,
) *DownloadService {
	return &DownloadService{
		store:    store,
		blobs:    blobs,
		sealer:   sealer,
		sessions: sessions,
		pkg:      pkg,
		logger:   log,
	}
}

// Download decrypts the asset for the given address. Returns the suggested
// filename and the plaintext. seal.ErrNoAccess means the address is not on
// the authorization list; retrying without a state change will not help.
func (s *DownloadService) Download(ctx context.Context, assetID uuid.UUID, buyer common.Address) (string, []byte, error) {
	asset, err := s.store.GetAsset(ctx, assetID)
	if err != nil {
		return "", nil, err
	}
	allowlistID, err := ledger.ParseObjectID(asset.AllowlistID)
	if err != nil {
		return "", nil, fmt.Errorf("asset %s has malformed allowlist id: %w", assetID, err)
	}

	payload, err := s.blobs.Get(ctx, asset.BlobID)
	if err != nil {
		return "", nil, fmt.Errorf("fetching encrypted asset: %w", err)
	}
	encrypted, err := seal.ParseEncryptedObject(payload)
	if err != nil {
		return "", nil, err
	}
	identity, err := encrypted.IdentityBytes()
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", seal.ErrInvalidIdentity, err)
	}

	approveTx := ledger.NewApproveCall(s.pkg, identity, allowlistID)
	txBytes, err := approveTx.KindBytes()
	if err != nil {
		return "", nil, fmt.Errorf("serializing authorization call: %w", err)
	}

	cred, err := s.sessions.Credential(ctx, buyer)
	if err != nil {
		return "", nil, err
	}

	plaintext, err := s.sealer.FetchAndDecrypt(ctx, encrypted, txBytes, cred)
	if err != nil {
		return "", nil, err
	}

	s.logger.Info("asset decrypted",
		zap.String("asset_id", assetID.String()),
		zap.String("buyer", buyer.Hex()),
		zap.Int("size", len(plaintext)))
	return downloadFilename(asset), plaintext, nil
}

// downloadFilename derives the suggested filename from the listing name.
func downloadFilename(asset *catalog.Asset) string {
	return strings.ReplaceAll(asset.Name, " ", "_") + ".gltf"
}
