package services_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/Staking-Facilities-GmbH/tidal/internal/catalog"
	"github.com/Staking-Facilities-GmbH/tidal/internal/client/walrus"
	"github.com/Staking-Facilities-GmbH/tidal/internal/ledger"
	"github.com/Staking-Facilities-GmbH/tidal/internal/seal"
	"github.com/Staking-Facilities-GmbH/tidal/internal/session"
)

// fakeLedger scripts transaction results in submission order and serves
// object reads from a fixed map.
type fakeLedger struct {
	results  []*ledger.ExecutionResult
	executed []*ledger.Transaction
	objects  map[ledger.ObjectID]*ledger.Object
}

func (f *fakeLedger) ExecuteTransaction(_ context.Context, tx *ledger.Transaction) (*ledger.ExecutionResult, error) {
	f.executed = append(f.executed, tx)
	if len(f.results) == 0 {
		return nil, errors.New("no scripted result")
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result, nil
}

func (f *fakeLedger) GetObject(_ context.Context, id ledger.ObjectID, _ ledger.GetObjectOptions) (*ledger.Object, error) {
	obj, ok := f.objects[id]
	if !ok {
		return nil, fmt.Errorf("object %s not found", id.Hex())
	}
	return obj, nil
}

// fakeResolver returns a fixed set of objects for any resolve request.
type fakeResolver struct {
	objects []*ledger.Object
	err     error
}

func (f *fakeResolver) ResolveObjects(context.Context, []ledger.ObjectID, ledger.GetObjectOptions) ([]*ledger.Object, error) {
	return f.objects, f.err
}

// fakeSealer records what it encrypted and hands back canned payloads.
type fakeSealer struct {
	encrypted   [][]byte
	allowlistID ledger.ObjectID
	plaintext   []byte
	decryptErr  error
}

func (f *fakeSealer) Encrypt(plaintext []byte, allowlistID ledger.ObjectID, opts seal.EncryptOptions) (*seal.EncryptedObject, error) {
	f.encrypted = append(f.encrypted, plaintext)
	f.allowlistID = allowlistID
	return &seal.EncryptedObject{
		Version:    seal.ObjectVersion,
		ID:         seal.DeriveIdentity(allowlistID, []byte{1, 2, 3, 4, 5}),
		PackageID:  opts.PackageID.Hex(),
		Threshold:  seal.DefaultThreshold,
		Shares:     []seal.KeyAccess{{ServerID: "alpha", Index: 1}, {ServerID: "beta", Index: 2}},
		IV:         make([]byte, 12),
		Ciphertext: plaintext,
	}, nil
}

func (f *fakeSealer) FetchAndDecrypt(_ context.Context, _ *seal.EncryptedObject, _ []byte, _ *session.Credential) ([]byte, error) {
	if f.decryptErr != nil {
		return nil, f.decryptErr
	}
	return f.plaintext, nil
}

// fakeBlobs is an in-memory blob store.
type fakeBlobs struct {
	blobs map[string][]byte
	puts  int
}

func (f *fakeBlobs) Put(_ context.Context, data []byte) (*walrus.StoreResult, error) {
	f.puts++
	id := fmt.Sprintf("blob-%d", f.puts)
	if f.blobs == nil {
		f.blobs = make(map[string][]byte)
	}
	f.blobs[id] = data
	return &walrus.StoreResult{BlobID: id, Status: "newlyCreated", Ref: "ref-" + id}, nil
}

func (f *fakeBlobs) Get(_ context.Context, blobID string) ([]byte, error) {
	data, ok := f.blobs[blobID]
	if !ok {
		return nil, fmt.Errorf("blob %s not found", blobID)
	}
	return data, nil
}

func (f *fakeBlobs) BlobURL(blobID string) string {
	return "https://aggregator.test/v1/blobs/" + blobID
}

// fakeStore is an in-memory catalog.
type fakeStore struct {
	assets    map[uuid.UUID]*catalog.Asset
	purchases map[string]*catalog.Purchase
	created   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		assets:    make(map[uuid.UUID]*catalog.Asset),
		purchases: make(map[string]*catalog.Purchase),
	}
}

func (f *fakeStore) CreateAsset(_ context.Context, params catalog.CreateAssetParams) (*catalog.Asset, error) {
	f.created++
	asset := &catalog.Asset{
		ID:             uuid.New(),
		Name:           params.Name,
		Description:    params.Description,
		Price:          params.Price,
		Tags:           params.Tags,
		FileURL:        params.FileURL,
		BlobID:         params.BlobID,
		ObjectRef:      params.ObjectRef,
		AllowlistID:    params.AllowlistID,
		CapID:          params.CapID,
		CreatorAddress: params.CreatorAddress,
		PreviewURL:     params.PreviewURL,
		CreatedAt:      time.Now(),
	}
	f.assets[asset.ID] = asset
	return asset, nil
}

func (f *fakeStore) GetAsset(_ context.Context, id uuid.UUID) (*catalog.Asset, error) {
	asset, ok := f.assets[id]
	if !ok {
		return nil, catalog.ErrAssetNotFound
	}
	return asset, nil
}

func (f *fakeStore) ListAssets(_ context.Context, _ catalog.ListAssetsParams) ([]catalog.Asset, int64, error) {
	var assets []catalog.Asset
	for _, a := range f.assets {
		assets = append(assets, *a)
	}
	return assets, int64(len(assets)), nil
}

func (f *fakeStore) AttachPreview(_ context.Context, id uuid.UUID, previewURL string) error {
	asset, ok := f.assets[id]
	if !ok {
		return catalog.ErrAssetNotFound
	}
	asset.PreviewURL = previewURL
	return nil
}

func purchaseKey(assetID uuid.UUID, addr string) string {
	return assetID.String() + ":" + addr
}

func (f *fakeStore) CreatePurchase(_ context.Context, assetID uuid.UUID, userAddress string) (*catalog.Purchase, error) {
	key := purchaseKey(assetID, userAddress)
	if existing, ok := f.purchases[key]; ok {
		return existing, nil
	}
	purchase := &catalog.Purchase{
		ID:          uuid.New(),
		AssetID:     assetID,
		UserAddress: userAddress,
		PurchasedAt: time.Now(),
	}
	f.purchases[key] = purchase
	return purchase, nil
}

func (f *fakeStore) ListPurchases(_ context.Context, userAddress string, _, _ int32) ([]catalog.Purchase, int64, error) {
	var purchases []catalog.Purchase
	for _, p := range f.purchases {
		if p.UserAddress == userAddress {
			purchases = append(purchases, *p)
		}
	}
	return purchases, int64(len(purchases)), nil
}

func (f *fakeStore) HasPurchased(_ context.Context, assetID uuid.UUID, userAddress string) (bool, error) {
	_, ok := f.purchases[purchaseKey(assetID, userAddress)]
	return ok, nil
}

// fakeCredentials returns a static credential.
type fakeCredentials struct {
	err error
}

func (f *fakeCredentials) Credential(_ context.Context, address common.Address) (*session.Credential, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &session.Credential{Address: address, TTLMinutes: 10, IssuedAt: time.Now()}, nil
}
