package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Staking-Facilities-GmbH/tidal/internal/catalog"
	"github.com/Staking-Facilities-GmbH/tidal/internal/client/walrus"
	"github.com/Staking-Facilities-GmbH/tidal/internal/handlers"
	"github.com/Staking-Facilities-GmbH/tidal/internal/ledger"
	"github.com/Staking-Facilities-GmbH/tidal/internal/logger"
	"github.com/Staking-Facilities-GmbH/tidal/internal/seal"
	"github.com/Staking-Facilities-GmbH/tidal/internal/services"
	"github.com/Staking-Facilities-GmbH/tidal/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
	logger.InitLogger()
}

var (
	testPkg       = ledger.ObjectID{0xaa}
	testAllowlist = ledger.ObjectID{0xbb}
)

// memStore is an in-memory catalog.Store.
type memStore struct {
	assets    map[uuid.UUID]*catalog.Asset
	purchases map[string]*catalog.Purchase
}

func newMemStore() *memStore {
	return &memStore{
		assets:    make(map[uuid.UUID]*catalog.Asset),
		purchases: make(map[string]*catalog.Purchase),
	}
}

func (s *memStore) CreateAsset(_ context.Context, params catalog.CreateAssetParams) (*catalog.Asset, error) {
	asset := &catalog.Asset{
		ID:          uuid.New(),
		Name:        params.Name,
		Price:       params.Price,
		Tags:        params.Tags,
		BlobID:      params.BlobID,
		AllowlistID: params.AllowlistID,
		CapID:       params.CapID,
		CreatedAt:   time.Now(),
	}
	s.assets[asset.ID] = asset
	return asset, nil
}

func (s *memStore) GetAsset(_ context.Context, id uuid.UUID) (*catalog.Asset, error) {
	asset, ok := s.assets[id]
	if !ok {
		return nil, catalog.ErrAssetNotFound
	}
	return asset, nil
}

func (s *memStore) ListAssets(_ context.Context, _ catalog.ListAssetsParams) ([]catalog.Asset, int64, error) {
	var out []catalog.Asset
	for _, a := range s.assets {
		out = append(out, *a)
	}
	return out, int64(len(out)), nil
}

func (s *memStore) AttachPreview(_ context.Context, id uuid.UUID, previewURL string) error {
	asset, ok := s.assets[id]
	if !ok {
		return catalog.ErrAssetNotFound
	}
	asset.PreviewURL = previewURL
	return nil
}

func (s *memStore) CreatePurchase(_ context.Context, assetID uuid.UUID, userAddress string) (*catalog.Purchase, error) {
	p := &catalog.Purchase{ID: uuid.New(), AssetID: assetID, UserAddress: userAddress, PurchasedAt: time.Now()}
	s.purchases[assetID.String()+":"+userAddress] = p
	return p, nil
}

func (s *memStore) ListPurchases(_ context.Context, userAddress string, _, _ int32) ([]catalog.Purchase, int64, error) {
	var out []catalog.Purchase
	for _, p := range s.purchases {
		if p.UserAddress == userAddress {
			out = append(out, *p)
		}
	}
	return out, int64(len(out)), nil
}

func (s *memStore) HasPurchased(_ context.Context, assetID uuid.UUID, userAddress string) (bool, error) {
	_, ok := s.purchases[assetID.String()+":"+userAddress]
	return ok, nil
}

// scriptedLedger returns canned results and objects.
type scriptedLedger struct {
	result  *ledger.ExecutionResult
	objects map[ledger.ObjectID]*ledger.Object
}

func (l *scriptedLedger) ExecuteTransaction(context.Context, *ledger.Transaction) (*ledger.ExecutionResult, error) {
	if l.result == nil {
		return nil, fmt.Errorf("no scripted result")
	}
	return l.result, nil
}

func (l *scriptedLedger) GetObject(_ context.Context, id ledger.ObjectID, _ ledger.GetObjectOptions) (*ledger.Object, error) {
	obj, ok := l.objects[id]
	if !ok {
		return nil, fmt.Errorf("object %s not found", id.Hex())
	}
	return obj, nil
}

// deniedSealer always reports no access.
type deniedSealer struct{}

func (deniedSealer) Encrypt([]byte, ledger.ObjectID, seal.EncryptOptions) (*seal.EncryptedObject, error) {
	return nil, fmt.Errorf("not implemented")
}

func (deniedSealer) FetchAndDecrypt(context.Context, *seal.EncryptedObject, []byte, *session.Credential) ([]byte, error) {
	return nil, seal.ErrNoAccess
}

// memBlobs holds blobs in memory.
type memBlobs struct {
	blobs map[string][]byte
}

func (b *memBlobs) Put(_ context.Context, data []byte) (*walrus.StoreResult, error) {
	if b.blobs == nil {
		b.blobs = make(map[string][]byte)
	}
	b.blobs["blob-1"] = data
	return &walrus.StoreResult{BlobID: "blob-1", Status: walrus.StatusNewlyCreated}, nil
}

func (b *memBlobs) Get(_ context.Context, blobID string) ([]byte, error) {
	data, ok := b.blobs[blobID]
	if !ok {
		return nil, fmt.Errorf("blob %s not found", blobID)
	}
	return data, nil
}

func (b *memBlobs) BlobURL(blobID string) string { return "https://agg.test/v1/blobs/" + blobID }

type staticCredentials struct{}

func (staticCredentials) Credential(_ context.Context, address common.Address) (*session.Credential, error) {
	return &session.Credential{Address: address, TTLMinutes: 10, IssuedAt: time.Now()}, nil
}

func newRouter(t *testing.T, store catalog.Store, l ledger.Client, blobs services.BlobStore) *gin.Engine {
	t.Helper()

	purchaseSvc := services.NewPurchaseService(l, store, testPkg, zap.NewNop())
	downloadSvc := services.NewDownloadService(store, blobs, deniedSealer{}, staticCredentials{}, testPkg, zap.NewNop())

	common := handlers.NewCommonServices(store, nil, purchaseSvc, downloadSvc)
	assetHandler := handlers.NewAssetHandler(common)
	purchaseHandler := handlers.NewPurchaseHandler(common)
	downloadHandler := handlers.NewDownloadHandler(common)

	router := gin.New()
	router.GET("/api/v1/assets", assetHandler.ListAssets)
	router.GET("/api/v1/assets/:asset_id", assetHandler.GetAsset)
	router.PUT("/api/v1/assets/:asset_id/preview", assetHandler.AttachPreview)
	router.POST("/api/v1/assets/:asset_id/purchases", purchaseHandler.CreatePurchase)
	router.GET("/api/v1/assets/:asset_id/purchases/:address", purchaseHandler.GetPurchaseStatus)
	router.GET("/api/v1/assets/:asset_id/download", downloadHandler.DownloadAsset)
	return router
}

func seedAsset(t *testing.T, store *memStore) *catalog.Asset {
	t.Helper()
	asset, err := store.CreateAsset(context.Background(), catalog.CreateAssetParams{
		Name:        "Space Station",
		Price:       500000,
		BlobID:      "blob-1",
		AllowlistID: testAllowlist.Hex(),
		CapID:       ledger.ObjectID{0xcc}.Hex(),
	})
	require.NoError(t, err)
	return asset
}

func TestGetAsset(t *testing.T) {
	store := newMemStore()
	asset := seedAsset(t, store)
	router := newRouter(t, store, &scriptedLedger{}, &memBlobs{})

	t.Run("found", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/assets/"+asset.ID.String(), nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "Space Station", resp["name"])
		assert.Equal(t, "asset", resp["object"])
	})

	t.Run("unknown id", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/assets/"+uuid.NewString(), nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("malformed id", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/assets/not-a-uuid", nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestListAssets(t *testing.T) {
	store := newMemStore()
	seedAsset(t, store)
	router := newRouter(t, store, &scriptedLedger{}, &memBlobs{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/assets", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Object string            `json:"object"`
		Data   []json.RawMessage `json:"data"`
		Total  int64             `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "list", resp.Object)
	assert.Len(t, resp.Data, 1)
	assert.Equal(t, int64(1), resp.Total)
}

func TestCreatePurchaseRejection(t *testing.T) {
	store := newMemStore()
	asset := seedAsset(t, store)

	content, err := json.Marshal(ledger.Allowlist{Name: "Space Station", Fee: 500000})
	require.NoError(t, err)
	l := &scriptedLedger{
		result:  &ledger.ExecutionResult{Status: ledger.StatusFailure, Error: "insufficient funds"},
		objects: map[ledger.ObjectID]*ledger.Object{testAllowlist: {ID: testAllowlist, Content: content}},
	}
	router := newRouter(t, store, l, &memBlobs{})

	body := bytes.NewBufferString(`{"buyer_address":"0x2222222222222222222222222222222222222222"}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/assets/"+asset.ID.String()+"/purchases", body)
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Contains(t, w.Body.String(), "insufficient funds")
}

func TestCreatePurchaseInvalidAddress(t *testing.T) {
	store := newMemStore()
	asset := seedAsset(t, store)
	router := newRouter(t, store, &scriptedLedger{}, &memBlobs{})

	body := bytes.NewBufferString(`{"buyer_address":"not-an-address"}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/assets/"+asset.ID.String()+"/purchases", body)
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDownloadDeniedMapsToForbidden(t *testing.T) {
	store := newMemStore()
	asset := seedAsset(t, store)

	blobs := &memBlobs{}
	obj := &seal.EncryptedObject{
		Version:   seal.ObjectVersion,
		ID:        seal.DeriveIdentity(testAllowlist, []byte{1, 2, 3, 4, 5}),
		Threshold: 2,
		Shares:    []seal.KeyAccess{{ServerID: "alpha"}, {ServerID: "beta"}},
	}
	payload, err := obj.Marshal()
	require.NoError(t, err)
	_, err = blobs.Put(context.Background(), payload)
	require.NoError(t, err)

	router := newRouter(t, store, &scriptedLedger{}, blobs)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/assets/"+asset.ID.String()+"/download?address=0x2222222222222222222222222222222222222222", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAttachPreview(t *testing.T) {
	store := newMemStore()
	asset := seedAsset(t, store)
	router := newRouter(t, store, &scriptedLedger{}, &memBlobs{})

	body := bytes.NewBufferString(`{"preview_url":"https://cdn.test/p.png"}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/v1/assets/"+asset.ID.String()+"/preview", body)
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://cdn.test/p.png", store.assets[asset.ID].PreviewURL)
}
