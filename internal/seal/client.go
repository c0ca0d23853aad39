package seal

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"sync"

	"github.com/Staking-Facilities-GmbH/tidal/internal/ledger"
	"github.com/Staking-Facilities-GmbH/tidal/internal/session"

	"github.com/corvus-ch/shamir"
	"github.com/ethereum/go-ethereum/crypto/ecies"
	"go.uber.org/zap"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/sync/errgroup"
)

// DefaultThreshold is the share threshold used when none is given.
const DefaultThreshold = 2

const (
	seedSize = 32
	keySize  = 32
	ivSize   = 12
)

// ShareRequest is the payload presented to a key server. The server
// executes the unsigned transaction hypothetically against current ledger
// state and unwraps the share only if the authorization check succeeds for
// the credential's address.
type ShareRequest struct {
	ID           string              `json:"id"`
	TxBytes      []byte              `json:"tx_bytes"`
	Certificate  *session.Credential `json:"certificate"`
	Index        byte                `json:"index"`
	WrappedShare []byte              `json:"wrapped_share"`
}

// KeyServer is one member of the quorum.
type KeyServer interface {
	ID() string
	// PublicKey is the key shares are wrapped to at encryption time.
	PublicKey() *ecies.PublicKey
	// FetchShare returns the unwrapped share, ErrNoAccess when the server
	// declines, or another error for transport failures.
	FetchShare(ctx context.Context, req ShareRequest) ([]byte, error)
}

// Client implements client-side threshold encryption against a key-server
// quorum. Encryption is purely local; authorization is enforced at decrypt
// time by the servers re-deriving ledger state, so a stale local allowlist
// can never widen access.
type Client struct {
	servers []KeyServer
	logger  *zap.Logger
}

// New creates a Client over the configured quorum.
func New(servers []KeyServer, log *zap.Logger) (*Client, error) {
	if len(servers) == 0 {
		return nil, fmt.Errorf("at least one key server is required")
	}
	seen := make(map[string]bool, len(servers))
	for _, s := range servers {
		if seen[s.ID()] {
			return nil, fmt.Errorf("duplicate key server id %q", s.ID())
		}
		seen[s.ID()] = true
	}
	return &Client{servers: servers, logger: log}, nil
}

// EncryptOptions parameterize Encrypt.
type EncryptOptions struct {
	// PackageID is the program the encrypted object belongs to.
	PackageID ledger.ObjectID
	// Nonce is the identity nonce; a fresh 5-byte random nonce is drawn
	// when nil. Must be at least MinNonceSize bytes.
	Nonce []byte
	// Threshold is the number of distinct key shares required to decrypt.
	// Defaults to DefaultThreshold.
	Threshold int
}

// Encrypt encrypts plaintext under an identity derived from the
// authorization list id plus the nonce. The content-key seed is split into
// one share per configured server, each wrapped to that server's public
// key. CPU-bound only; no network calls.
func (c *Client) Encrypt(plaintext []byte, allowlistID ledger.ObjectID, opts EncryptOptions) (*EncryptedObject, error) {
	if allowlistID.IsZero() {
		return nil, fmt.Errorf("%w: zero allowlist id", ErrInvalidIdentity)
	}

	nonce := opts.Nonce
	if nonce == nil {
		nonce = make([]byte, MinNonceSize)
		if _, err := rand.Read(nonce); err != nil {
			return nil, fmt.Errorf("generating identity nonce: %w", err)
		}
	}
	if len(nonce) < MinNonceSize {
		return nil, fmt.Errorf("identity nonce must be at least %d bytes, got %d", MinNonceSize, len(nonce))
	}

	threshold := opts.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	if threshold < 2 {
		return nil, fmt.Errorf("threshold must be at least 2, got %d", threshold)
	}
	if threshold > len(c.servers) {
		return nil, fmt.Errorf("threshold %d exceeds %d configured key servers", threshold, len(c.servers))
	}

	identity := DeriveIdentity(allowlistID, nonce)
	identityBytes := append(allowlistID.Bytes(), nonce...)

	seed := make([]byte, seedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("generating content key seed: %w", err)
	}

	shares, err := shamir.Split(seed, len(c.servers), threshold)
	if err != nil {
		return nil, fmt.Errorf("splitting content key seed: %w", err)
	}

	accesses := make([]KeyAccess, 0, len(c.servers))
	i := 0
	for index, share := range shares {
		srv := c.servers[i]
		i++
		wrapped, err := ecies.Encrypt(rand.Reader, srv.PublicKey(), share, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("wrapping share for server %s: %w", srv.ID(), err)
		}
		accesses = append(accesses, KeyAccess{
			ServerID:     srv.ID(),
			Index:        index,
			WrappedShare: wrapped,
		})
	}

	key, err := deriveContentKey(seed, identityBytes)
	if err != nil {
		return nil, err
	}
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("generating iv: %w", err)
	}
	ciphertext := aead.Seal(nil, iv, plaintext, identityBytes)

	return &EncryptedObject{
		Version:    ObjectVersion,
		ID:         identity,
		PackageID:  opts.PackageID.Hex(),
		Threshold:  threshold,
		Shares:     accesses,
		IV:         iv,
		Ciphertext: ciphertext,
	}, nil
}

// FetchKeys presents the unsigned authorization-check transaction and the
// session credential to every server holding a share and collects the
// released shares. Fewer than the object's threshold is ErrNoAccess; that
// reflects an authorization decision and is never retried here.
func (c *Client) FetchKeys(ctx context.Context, obj *EncryptedObject, txBytes []byte, cred *session.Credential) (map[byte][]byte, error) {
	byID := make(map[string]KeyServer, len(c.servers))
	for _, s := range c.servers {
		byID[s.ID()] = s
	}

	var (
		mu     sync.Mutex
		shares = make(map[byte][]byte)
	)

	var g errgroup.Group
	for _, access := range obj.Shares {
		srv, ok := byID[access.ServerID]
		if !ok {
			c.logger.Warn("encrypted object references unknown key server",
				zap.String("server_id", access.ServerID))
			continue
		}
		req := ShareRequest{
			ID:           obj.ID,
			TxBytes:      txBytes,
			Certificate:  cred,
			Index:        access.Index,
			WrappedShare: access.WrappedShare,
		}
		g.Go(func() error {
			share, err := srv.FetchShare(ctx, req)
			if err != nil {
				c.logger.Warn("key server declined share",
					zap.String("server_id", srv.ID()),
					zap.Error(err))
				return nil
			}
			mu.Lock()
			shares[req.Index] = share
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if len(shares) < obj.Threshold {
		return nil, fmt.Errorf("%w: %d of %d required shares released", ErrNoAccess, len(shares), obj.Threshold)
	}
	return shares, nil
}

// Decrypt reconstructs the content key from the collected shares and
// decrypts locally. Reconstruction internals are not surfaced to callers.
func (c *Client) Decrypt(obj *EncryptedObject, shares map[byte][]byte) ([]byte, error) {
	if len(shares) < obj.Threshold {
		return nil, fmt.Errorf("%w: %d of %d required shares", ErrNoAccess, len(shares), obj.Threshold)
	}

	identityBytes, err := obj.IdentityBytes()
	if err != nil {
		c.logger.Error("encrypted object identity is malformed", zap.Error(err))
		return nil, ErrDecryptionFailed
	}

	seed, err := shamir.Combine(shares)
	if err != nil {
		c.logger.Error("share reconstruction failed", zap.Error(err))
		return nil, ErrDecryptionFailed
	}

	key, err := deriveContentKey(seed, identityBytes)
	if err != nil {
		c.logger.Error("content key derivation failed", zap.Error(err))
		return nil, ErrDecryptionFailed
	}
	aead, err := newGCM(key)
	if err != nil {
		c.logger.Error("cipher initialization failed", zap.Error(err))
		return nil, ErrDecryptionFailed
	}

	plaintext, err := aead.Open(nil, obj.IV, obj.Ciphertext, identityBytes)
	if err != nil {
		c.logger.Error("authenticated decryption failed", zap.Error(err))
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// FetchAndDecrypt composes FetchKeys and Decrypt. Key servers have no
// cancellation protocol, so once the fetch is issued the operation runs to
// completion or failure regardless of caller cancellation.
func (c *Client) FetchAndDecrypt(ctx context.Context, obj *EncryptedObject, txBytes []byte, cred *session.Credential) ([]byte, error) {
	ctx = context.WithoutCancel(ctx)
	shares, err := c.FetchKeys(ctx, obj, txBytes, cred)
	if err != nil {
		return nil, err
	}
	return c.Decrypt(obj, shares)
}

func deriveContentKey(seed, identity []byte) ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, seed, nil, identity), key); err != nil {
		return nil, fmt.Errorf("deriving content key: %w", err)
	}
	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
