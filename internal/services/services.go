package services

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Staking-Facilities-GmbH/tidal/internal/client/walrus"
	"github.com/Staking-Facilities-GmbH/tidal/internal/ledger"
	"github.com/Staking-Facilities-GmbH/tidal/internal/seal"
	"github.com/Staking-Facilities-GmbH/tidal/internal/session"
)

// ObjectResolver resolves freshly created ledger objects, retrying until
// the gateway's read path has caught up.
type ObjectResolver interface {
	ResolveObjects(ctx context.Context, ids []ledger.ObjectID, opts ledger.GetObjectOptions) ([]*ledger.Object, error)
}

// Sealer is the threshold-encryption boundary used by the flows.
type Sealer interface {
	Encrypt(plaintext []byte, allowlistID ledger.ObjectID, opts seal.EncryptOptions) (*seal.EncryptedObject, error)
	FetchAndDecrypt(ctx context.Context, obj *seal.EncryptedObject, txBytes []byte, cred *session.Credential) ([]byte, error)
}

// BlobStore is the encrypted-content storage boundary.
type BlobStore interface {
	Put(ctx context.Context, data []byte) (*walrus.StoreResult, error)
	Get(ctx context.Context, blobID string) ([]byte, error)
	BlobURL(blobID string) string
}

// CredentialSource issues or reuses session credentials for an address.
type CredentialSource interface {
	Credential(ctx context.Context, address common.Address) (*session.Credential, error)
}
