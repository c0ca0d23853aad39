package session

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Staking-Facilities-GmbH/tidal/internal/ledger"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// ErrCredentialDenied reports that the off-band signature was declined or
// failed. The manager stays unissued; the caller may retry the whole flow.
var ErrCredentialDenied = errors.New("session credential denied")

const nonceSize = 16

// Credential is a short-lived, address-bound proof of identity derived from
// a one-time personal-message signature. It is reused across downloads until
// expiry or address change and is never persisted.
type Credential struct {
	Address    common.Address  `json:"address"`
	PackageID  ledger.ObjectID `json:"package_id"`
	TTLMinutes int             `json:"ttl_minutes"`
	IssuedAt   time.Time       `json:"issued_at"`
	Nonce      []byte          `json:"nonce"`
	Signature  []byte          `json:"signature"`
}

// Message returns the canonical personal message covered by the signature.
func (c *Credential) Message() []byte {
	return []byte(fmt.Sprintf(
		"Accessing keys of package %s for %d mins, issued at %s, session nonce 0x%s, requested by %s",
		c.PackageID.Hex(),
		c.TTLMinutes,
		c.IssuedAt.UTC().Format(time.RFC3339),
		hex.EncodeToString(c.Nonce),
		c.Address.Hex(),
	))
}

// ExpiresAt returns the instant the credential stops being valid.
func (c *Credential) ExpiresAt() time.Time {
	return c.IssuedAt.Add(time.Duration(c.TTLMinutes) * time.Minute)
}

// Verify checks that the signature over the canonical message recovers the
// bound address.
func (c *Credential) Verify() error {
	if len(c.Signature) != crypto.SignatureLength {
		return fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(c.Signature))
	}
	sig := make([]byte, crypto.SignatureLength)
	copy(sig, c.Signature)
	// Wallets commonly emit the legacy 27/28 recovery id.
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash(c.Message()), sig)
	if err != nil {
		return fmt.Errorf("recovering signer: %w", err)
	}
	if recovered := crypto.PubkeyToAddress(*pub); recovered != c.Address {
		return fmt.Errorf("signature recovers %s, credential bound to %s", recovered.Hex(), c.Address.Hex())
	}
	return nil
}

// Signer produces a personal-message signature out of band. Implementations
// may suspend for a long time waiting for human approval; they must honor
// context cancellation.
type Signer interface {
	SignPersonalMessage(ctx context.Context, message []byte) ([]byte, error)
}

// LocalSigner signs with an in-process private key. Used by the server's
// operator flows and by tests; interactive wallets implement Signer
// themselves.
type LocalSigner struct {
	key *ecdsa.PrivateKey
}

// NewLocalSigner wraps the given key.
func NewLocalSigner(key *ecdsa.PrivateKey) *LocalSigner {
	return &LocalSigner{key: key}
}

// Address returns the address controlled by the signer.
func (s *LocalSigner) Address() common.Address {
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

// SignPersonalMessage signs the prefixed message hash.
func (s *LocalSigner) SignPersonalMessage(_ context.Context, message []byte) ([]byte, error) {
	return crypto.Sign(accounts.TextHash(message), s.key)
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClock overrides the manager's time source.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// DefaultTTLMinutes is the credential lifetime used when none is given.
const DefaultTTLMinutes = 10

// Manager caches a single session credential keyed by address. A credential
// is reused while unexpired and bound to the current caller's address;
// otherwise a fresh signature is requested. One package identity per
// manager: deployments serving several programs construct one manager each.
type Manager struct {
	signer     Signer
	pkg        ledger.ObjectID
	ttlMinutes int
	now        func() time.Time
	logger     *zap.Logger

	mu      sync.Mutex
	current *Credential
}

// NewManager creates a credential manager for the given package identity.
func NewManager(signer Signer, pkg ledger.ObjectID, ttlMinutes int, log *zap.Logger, opts ...ManagerOption) *Manager {
	if ttlMinutes <= 0 {
		ttlMinutes = DefaultTTLMinutes
	}
	m := &Manager{
		signer:     signer,
		pkg:        pkg,
		ttlMinutes: ttlMinutes,
		now:        time.Now,
		logger:     log,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Credential returns a valid credential for the address, reusing the cached
// one when possible. If the signing step is declined, fails, or is
// abandoned, the manager reports ErrCredentialDenied and keeps no partial
// state.
func (m *Manager) Credential(ctx context.Context, address common.Address) (*Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && m.current.Address == address && m.now().Before(m.current.ExpiresAt()) {
		m.logger.Debug("reusing session credential",
			zap.String("address", address.Hex()),
			zap.Time("expires_at", m.current.ExpiresAt()))
		return m.current, nil
	}
	m.current = nil

	cred, err := m.issue(ctx, address)
	if err != nil {
		return nil, err
	}
	m.current = cred

	m.logger.Info("issued session credential",
		zap.String("address", address.Hex()),
		zap.Time("expires_at", cred.ExpiresAt()))
	return cred, nil
}

// Invalidate discards the cached credential.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = nil
}

func (m *Manager) issue(ctx context.Context, address common.Address) (*Credential, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating session nonce: %w", err)
	}

	cred := &Credential{
		Address:    address,
		PackageID:  m.pkg,
		TTLMinutes: m.ttlMinutes,
		IssuedAt:   m.now().UTC(),
		Nonce:      nonce,
	}

	sig, err := m.signer.SignPersonalMessage(ctx, cred.Message())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialDenied, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialDenied, err)
	}

	cred.Signature = sig
	if err := cred.Verify(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialDenied, err)
	}
	return cred, nil
}
