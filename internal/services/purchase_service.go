package services

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/Staking-Facilities-GmbH/tidal/internal/catalog"
	"github.com/Staking-Facilities-GmbH/tidal/internal/ledger"
)

const (
	purchaseCacheExpiry  = 5 * time.Minute
	purchaseCacheCleanup = 10 * time.Minute
)

// PurchaseService runs the buyer flow: read the current admission fee from
// the authorization list, submit the single transaction that pays the fee
// and admits the buyer, then mirror the admission into the catalog. The
// ledger is authoritative on fee matching and membership; the catalog and
// the in-process cache are convenience mirrors.
type PurchaseService struct {
	ledger ledger.Client
	store  catalog.Store
	cache  *gocache.Cache
	pkg    ledger.ObjectID
	logger *zap.Logger
}

// NewPurchaseService creates a PurchaseService.
func NewPurchaseService(ledgerClient ledger.Client, store catalog.Store, pkg ledger.ObjectID, log *zap.Logger) *PurchaseService {
	return &PurchaseService{
		ledger: ledgerClient,
		store:  store,
		cache:  gocache.New(purchaseCacheExpiry, purchaseCacheCleanup),
		pkg:    pkg,
		logger: log,
	}
}

func purchaseCacheKey(assetID uuid.UUID, buyer common.Address) string {
	return assetID.String() + ":" + buyer.Hex()
}

// Purchase admits the buyer to the asset's authorization list. The fee is
// read from the list immediately before submission; if the program rejects
// the transaction for any reason the catalog is left untouched and a
// PurchaseFailedError is returned.
func (s *PurchaseService) Purchase(ctx context.Context, assetID uuid.UUID, buyer common.Address) (*catalog.Purchase, error) {
	asset, err := s.store.GetAsset(ctx, assetID)
	if err != nil {
		return nil, err
	}
	allowlistID, err := ledger.ParseObjectID(asset.AllowlistID)
	if err != nil {
		return nil, fmt.Errorf("asset %s has malformed allowlist id: %w", assetID, err)
	}
	capID, err := ledger.ParseObjectID(asset.CapID)
	if err != nil {
		return nil, fmt.Errorf("asset %s has malformed capability id: %w", assetID, err)
	}

	obj, err := s.ledger.GetObject(ctx, allowlistID, ledger.GetObjectOptions{ShowContent: true})
	if err != nil {
		return nil, fmt.Errorf("reading authorization list: %w", err)
	}
	list, err := ledger.DecodeAllowlist(obj)
	if err != nil {
		return nil, err
	}

	if list.HasMember(buyer) {
		// Already admitted on the ledger; just make sure the catalog agrees.
		return s.recordPurchase(ctx, assetID, buyer)
	}

	tx := ledger.NewAdmitBuyerTx(buyer, s.pkg, allowlistID, capID, buyer, list.Fee)
	result, err := s.ledger.ExecuteTransaction(ctx, tx)
	if err != nil {
		return nil, &PurchaseFailedError{AssetID: assetID, Reason: err.Error()}
	}
	if !result.Succeeded() {
		return nil, &PurchaseFailedError{AssetID: assetID, Reason: result.Error}
	}

	s.logger.Info("buyer admitted",
		zap.String("asset_id", assetID.String()),
		zap.String("buyer", buyer.Hex()),
		zap.Uint64("fee", list.Fee),
		zap.String("digest", result.Digest))
	return s.recordPurchase(ctx, assetID, buyer)
}

func (s *PurchaseService) recordPurchase(ctx context.Context, assetID uuid.UUID, buyer common.Address) (*catalog.Purchase, error) {
	purchase, err := s.store.CreatePurchase(ctx, assetID, buyer.Hex())
	if err != nil {
		// The admission is already committed on the ledger; surface the
		// catalog failure without pretending the purchase failed.
		return nil, fmt.Errorf("admission committed but catalog write failed: %w", err)
	}
	s.cache.Set(purchaseCacheKey(assetID, buyer), true, gocache.DefaultExpiration)
	return purchase, nil
}

// HasPurchased reports whether the buyer holds a recorded purchase, checking
// the in-process cache before the catalog.
func (s *PurchaseService) HasPurchased(ctx context.Context, assetID uuid.UUID, buyer common.Address) (bool, error) {
	if _, found := s.cache.Get(purchaseCacheKey(assetID, buyer)); found {
		return true, nil
	}
	purchased, err := s.store.HasPurchased(ctx, assetID, buyer.Hex())
	if err != nil {
		return false, err
	}
	if purchased {
		s.cache.Set(purchaseCacheKey(assetID, buyer), true, gocache.DefaultExpiration)
	}
	return purchased, nil
}

// ListPurchases pages through the buyer's recorded purchases.
func (s *PurchaseService) ListPurchases(ctx context.Context, buyer common.Address, limit, offset int32) ([]catalog.Purchase, int64, error) {
	return s.store.ListPurchases(ctx, buyer.Hex(), limit, offset)
}
