package accounts

import (
	"context"
	"crypto/ecdsa"
	"strings"

	gethaccounts "github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/pkg/errors"
)

// Kind tells how the owning wallet produces signatures.
type Kind int

const (
	// KindPlain is an externally owned key signing messages directly.
	KindPlain Kind = iota
	// KindMultiOwner is a contract wallet with several owners whose
	// signatures are verified through ERC-1271.
	KindMultiOwner
)

func (k Kind) String() string {
	switch k {
	case KindPlain:
		return "plain"
	case KindMultiOwner:
		return "multi-owner"
	default:
		return "unknown"
	}
}

// multiOwnerConnectors lists the wallet connector ids known to front a
// multi-owner contract wallet.
var multiOwnerConnectors = []string{"coinbasewalletsdk", "coinbasesmartwallet", "smartwallet"}

// KindFromConnector maps wallet connector metadata to a signing kind.
func KindFromConnector(connectorID string) Kind {
	id := strings.ToLower(strings.NewReplacer("-", "", "_", "", " ", "").Replace(connectorID))
	for _, c := range multiOwnerConnectors {
		if id == c {
			return KindMultiOwner
		}
	}
	return KindPlain
}

// Signer is the signing identity that owns the smart account. Key custody
// stays with the implementation.
type Signer interface {
	Address() common.Address
	Kind() Kind
	// SignMessage returns an EIP-191 personal signature over msg.
	SignMessage(ctx context.Context, msg []byte) ([]byte, error)
	SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error)
}

// PrivateKeySigner signs with an in-memory key. Used by tooling and tests.
type PrivateKeySigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	kind       Kind
}

var _ Signer = (*PrivateKeySigner)(nil)

// NewPrivateKeySigner parses a hex private key, with or without 0x prefix.
func NewPrivateKeySigner(privateKeyHex string, kind Kind) (*PrivateKeySigner, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "invalid private key")
	}
	return NewSignerFromKey(privateKey, kind), nil
}

func NewSignerFromKey(privateKey *ecdsa.PrivateKey, kind Kind) *PrivateKeySigner {
	return &PrivateKeySigner{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		kind:       kind,
	}
}

// Address returns the address derived from the private key
func (s *PrivateKeySigner) Address() common.Address {
	return s.address
}

func (s *PrivateKeySigner) Kind() Kind {
	return s.kind
}

func (s *PrivateKeySigner) SignMessage(_ context.Context, msg []byte) ([]byte, error) {
	return s.signHash(gethaccounts.TextHash(msg))
}

func (s *PrivateKeySigner) SignTypedData(_ context.Context, data apitypes.TypedData) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to hash typed data")
	}
	return s.signHash(hash)
}

func (s *PrivateKeySigner) signHash(hash []byte) ([]byte, error) {
	sig, err := crypto.Sign(hash, s.privateKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign")
	}
	// wallets return v in {27, 28}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// RecoverMessageSigner returns the address that produced an EIP-191 signature
// over msg.
func RecoverMessageSigner(msg, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, errors.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}
	normalized := common.CopyBytes(sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(gethaccounts.TextHash(msg), normalized)
	if err != nil {
		return common.Address{}, errors.Wrap(err, "failed to recover signer")
	}
	return crypto.PubkeyToAddress(*pub), nil
}
