package keyserver

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	tidalhttp "github.com/Staking-Facilities-GmbH/tidal/internal/client/http"
	"github.com/Staking-Facilities-GmbH/tidal/internal/seal"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/crypto/ecies"
)

// Server is the HTTP client for one key server of the quorum. It implements
// seal.KeyServer.
type Server struct {
	id   string
	pub  *ecies.PublicKey
	http *tidalhttp.HTTPClient
}

// New creates a key-server client. pubKeyHex is the server's secp256k1
// public key, 0x-prefixed, compressed or uncompressed.
func New(id, baseURL, pubKeyHex string) (*Server, error) {
	pub, err := parsePublicKey(pubKeyHex)
	if err != nil {
		return nil, fmt.Errorf("key server %s: %w", id, err)
	}
	return &Server{
		id:  id,
		pub: pub,
		http: tidalhttp.NewHTTPClient(
			tidalhttp.WithBaseURL(baseURL),
			tidalhttp.WithTimeout(30*time.Second),
		),
	}, nil
}

var _ seal.KeyServer = (*Server)(nil)

// ID returns the server's identifier.
func (s *Server) ID() string { return s.id }

// PublicKey returns the key shares are wrapped to.
func (s *Server) PublicKey() *ecies.PublicKey { return s.pub }

type fetchShareResponse struct {
	Share []byte `json:"share"`
	Error string `json:"error,omitempty"`
}

// FetchShare asks the server to simulate the authorization check and
// release its share. A 403 is an authorization decision, not a transport
// fault, and maps to seal.ErrNoAccess.
func (s *Server) FetchShare(ctx context.Context, req seal.ShareRequest) ([]byte, error) {
	resp, err := s.http.Post(ctx, "/v1/fetch_share", req)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			if resp.StatusCode == http.StatusForbidden {
				return nil, seal.ErrNoAccess
			}
		}
		return nil, fmt.Errorf("key server %s: %w", s.id, err)
	}

	var body fetchShareResponse
	if err := s.http.ProcessJSONResponse(resp, &body); err != nil {
		return nil, fmt.Errorf("key server %s: decoding response: %w", s.id, err)
	}
	if body.Error != "" {
		return nil, fmt.Errorf("key server %s: %s", s.id, body.Error)
	}
	if len(body.Share) == 0 {
		return nil, fmt.Errorf("key server %s: empty share", s.id)
	}
	return body.Share, nil
}

func parsePublicKey(pubKeyHex string) (*ecies.PublicKey, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(pubKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("public key is not valid hex: %w", err)
	}
	switch len(raw) {
	case 33:
		pub, err := crypto.DecompressPubkey(raw)
		if err != nil {
			return nil, fmt.Errorf("decompressing public key: %w", err)
		}
		return ecies.ImportECDSAPublic(pub), nil
	case 65:
		pub, err := crypto.UnmarshalPubkey(raw)
		if err != nil {
			return nil, fmt.Errorf("unmarshaling public key: %w", err)
		}
		return ecies.ImportECDSAPublic(pub), nil
	default:
		return nil, fmt.Errorf("public key must be 33 or 65 bytes, got %d", len(raw))
	}
}
