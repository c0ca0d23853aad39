package services_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Staking-Facilities-GmbH/tidal/internal/catalog"
	"github.com/Staking-Facilities-GmbH/tidal/internal/seal"
	"github.com/Staking-Facilities-GmbH/tidal/internal/services"
)

func storedEncryptedAsset(t *testing.T, store *fakeStore, blobs *fakeBlobs, sealer *fakeSealer) *catalog.Asset {
	t.Helper()
	obj, err := sealer.Encrypt([]byte("ciphertext"), testAllowlist, seal.EncryptOptions{PackageID: testPkg})
	require.NoError(t, err)
	payload, err := obj.Marshal()
	require.NoError(t, err)
	stored, err := blobs.Put(context.Background(), payload)
	require.NoError(t, err)

	asset, err := store.CreateAsset(context.Background(), catalog.CreateAssetParams{
		Name:        "Space Station",
		BlobID:      stored.BlobID,
		AllowlistID: testAllowlist.Hex(),
		CapID:       testCap.Hex(),
	})
	require.NoError(t, err)
	return asset
}

func TestDownloadSuccess(t *testing.T) {
	store := newFakeStore()
	blobs := &fakeBlobs{}
	sealer := &fakeSealer{plaintext: []byte("glb bytes")}
	asset := storedEncryptedAsset(t, store, blobs, sealer)

	svc := services.NewDownloadService(store, blobs, sealer, &fakeCredentials{}, testPkg, zap.NewNop())
	filename, data, err := svc.Download(context.Background(), asset.ID, testBuyer)
	require.NoError(t, err)
	assert.Equal(t, "Space_Station.gltf", filename)
	assert.Equal(t, []byte("glb bytes"), data)
}

func TestDownloadDenied(t *testing.T) {
	store := newFakeStore()
	blobs := &fakeBlobs{}
	sealer := &fakeSealer{decryptErr: seal.ErrNoAccess}
	asset := storedEncryptedAsset(t, store, blobs, sealer)

	svc := services.NewDownloadService(store, blobs, sealer, &fakeCredentials{}, testPkg, zap.NewNop())
	_, _, err := svc.Download(context.Background(), asset.ID, testBuyer)
	assert.ErrorIs(t, err, seal.ErrNoAccess)
}

func TestDownloadCredentialDenied(t *testing.T) {
	store := newFakeStore()
	blobs := &fakeBlobs{}
	sealer := &fakeSealer{plaintext: []byte("glb bytes")}
	asset := storedEncryptedAsset(t, store, blobs, sealer)

	creds := &fakeCredentials{err: assert.AnError}
	svc := services.NewDownloadService(store, blobs, sealer, creds, testPkg, zap.NewNop())
	_, _, err := svc.Download(context.Background(), asset.ID, testBuyer)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestDownloadUnknownAsset(t *testing.T) {
	svc := services.NewDownloadService(newFakeStore(), &fakeBlobs{}, &fakeSealer{}, &fakeCredentials{}, testPkg, zap.NewNop())
	_, _, err := svc.Download(context.Background(), uuid.New(), testBuyer)
	assert.ErrorIs(t, err, catalog.ErrAssetNotFound)
}
