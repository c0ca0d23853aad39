package seal

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/Staking-Facilities-GmbH/tidal/internal/ledger"
)

// ObjectVersion is the current serialization version of EncryptedObject.
const ObjectVersion = 1

// MinNonceSize is the minimum length of the identity nonce.
const MinNonceSize = 5

// KeyAccess carries one key server's wrapped share of the content-key seed.
type KeyAccess struct {
	ServerID     string `json:"server_id"`
	URL          string `json:"url,omitempty"`
	Index        byte   `json:"index"`
	WrappedShare []byte `json:"wrapped_share"`
}

// EncryptedObject is the self-describing encrypted form of an asset. The
// embedded identity is immutable once encrypted and is what the key servers
// are later asked to authorize; it is not itself secret.
type EncryptedObject struct {
	Version    int         `json:"version"`
	ID         string      `json:"id"` // hex(allowlist id bytes || nonce)
	PackageID  string      `json:"package_id"`
	Threshold  int         `json:"threshold"`
	Shares     []KeyAccess `json:"shares"`
	IV         []byte      `json:"iv"`
	Ciphertext []byte      `json:"ciphertext"`
}

// IdentityBytes returns the raw identity.
func (o *EncryptedObject) IdentityBytes() ([]byte, error) {
	return hex.DecodeString(o.ID)
}

// Marshal serializes the object for blob storage.
func (o *EncryptedObject) Marshal() ([]byte, error) {
	return json.Marshal(o)
}

// ParseEncryptedObject deserializes an encrypted object fetched from the
// blob store.
func ParseEncryptedObject(data []byte) (*EncryptedObject, error) {
	var obj EncryptedObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("parsing encrypted object: %w", err)
	}
	if obj.Version != ObjectVersion {
		return nil, fmt.Errorf("unsupported encrypted object version %d", obj.Version)
	}
	if _, err := hex.DecodeString(obj.ID); err != nil {
		return nil, fmt.Errorf("encrypted object has malformed identity: %w", err)
	}
	if obj.Threshold < 1 || len(obj.Shares) < obj.Threshold {
		return nil, fmt.Errorf("encrypted object threshold %d exceeds %d shares", obj.Threshold, len(obj.Shares))
	}
	return &obj, nil
}

// DeriveIdentity computes the identity string embedded at encryption time:
// the raw allowlist id bytes concatenated with the nonce, hex-encoded.
// Decryption later re-derives the same prefix from the allowlist id stored
// in the catalog record.
func DeriveIdentity(allowlistID ledger.ObjectID, nonce []byte) string {
	raw := append(allowlistID.Bytes(), nonce...)
	return hex.EncodeToString(raw)
}
