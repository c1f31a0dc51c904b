package smartaccount

import (
	"context"
	"math/big"

	"github.com/compose-network/gasless/internal/accounts"
	"github.com/compose-network/gasless/internal/chain"
	"github.com/compose-network/gasless/internal/logger"
	gethaccounts "github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// MaxOwnerProbes caps the owner indexes tried against a multi-owner wallet.
const MaxOwnerProbes = 8

// erc1271MagicValue is bytes4(keccak256("isValidSignature(bytes32,bytes)")).
var erc1271MagicValue = [4]byte{0x16, 0x26, 0xba, 0x7e}

var signatureWrapperArgs = mustSignatureWrapperArgs()

func mustSignatureWrapperArgs() abi.Arguments {
	t, err := abi.NewType("tuple", "SignatureWrapper", []abi.ArgumentMarshaling{
		{Name: "ownerIndex", Type: "uint256"},
		{Name: "signatureData", Type: "bytes"},
	})
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Type: t}}
}

type signatureWrapper struct {
	OwnerIndex    *big.Int
	SignatureData []byte
}

// WrapSignature encodes sig for the owner at index as abi.encode(SignatureWrapper).
func WrapSignature(ownerIndex uint64, sig []byte) ([]byte, error) {
	out, err := signatureWrapperArgs.Pack(signatureWrapper{
		OwnerIndex:    new(big.Int).SetUint64(ownerIndex),
		SignatureData: sig,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to wrap signature")
	}
	return out, nil
}

// signingStrategy turns a user operation hash into the signature the account
// validates.
type signingStrategy interface {
	sign(ctx context.Context, signer accounts.Signer, userOpHash common.Hash) ([]byte, error)
}

var strategies = map[accounts.Kind]func(reader *chain.Reader) signingStrategy{
	accounts.KindPlain: func(*chain.Reader) signingStrategy {
		return plainStrategy{}
	},
	accounts.KindMultiOwner: func(reader *chain.Reader) signingStrategy {
		return &multiOwnerStrategy{reader: reader, maxProbes: MaxOwnerProbes}
	},
}

func strategyFor(kind accounts.Kind, reader *chain.Reader) (signingStrategy, error) {
	build, ok := strategies[kind]
	if !ok {
		return nil, errors.Errorf("no signing strategy for wallet kind %s", kind)
	}
	return build(reader), nil
}

type plainStrategy struct{}

func (plainStrategy) sign(ctx context.Context, signer accounts.Signer, userOpHash common.Hash) ([]byte, error) {
	sig, err := signer.SignMessage(ctx, userOpHash.Bytes())
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign user operation")
	}
	return sig, nil
}

// multiOwnerStrategy signs once and searches for the encoding the owner
// wallet accepts: the raw signature first, then the wrapped form for each
// owner index below min(ownerCount, maxProbes). The first candidate that
// validates wins; otherwise the index 0 wrapping is returned.
type multiOwnerStrategy struct {
	reader    *chain.Reader
	maxProbes uint64
}

func (m *multiOwnerStrategy) sign(ctx context.Context, signer accounts.Signer, userOpHash common.Hash) ([]byte, error) {
	sig, err := signer.SignMessage(ctx, userOpHash.Bytes())
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign user operation")
	}

	wallet := signer.Address()
	digest := common.BytesToHash(gethaccounts.TextHash(userOpHash.Bytes()))
	log := logger.WithFields(logger.Fields{"wallet": wallet.Hex(), "userOpHash": userOpHash.Hex()})

	if m.isValid(ctx, wallet, digest, sig) {
		log.Debug("owner wallet accepted raw signature")
		return sig, nil
	}

	probes := m.ownerProbes(ctx, wallet)
	var fallback []byte
	for idx := uint64(0); idx < probes; idx++ {
		candidate, err := WrapSignature(idx, sig)
		if err != nil {
			return nil, err
		}
		if idx == 0 {
			fallback = candidate
		}
		if m.isValid(ctx, wallet, digest, candidate) {
			log.WithField("ownerIndex", idx).Debug("owner wallet accepted wrapped signature")
			return candidate, nil
		}
	}

	log.Warn("no signature candidate validated, falling back to owner index 0")
	if fallback == nil {
		return WrapSignature(0, sig)
	}
	return fallback, nil
}

func (m *multiOwnerStrategy) ownerProbes(ctx context.Context, wallet common.Address) uint64 {
	count, err := m.reader.ReadBigInt(ctx, wallet, OwnerWalletABI, "ownerCount")
	if err != nil {
		logger.Warn("ownerCount unavailable on %s, probing %d indexes: %v", wallet.Hex(), m.maxProbes, err)
		return m.maxProbes
	}
	if !count.IsUint64() || count.Uint64() > m.maxProbes {
		return m.maxProbes
	}
	return count.Uint64()
}

// isValid treats reverts and read errors as rejection.
func (m *multiOwnerStrategy) isValid(ctx context.Context, wallet common.Address, digest common.Hash, sig []byte) bool {
	values, err := m.reader.ReadContract(ctx, wallet, OwnerWalletABI, "isValidSignature", [32]byte(digest), sig)
	if err != nil || len(values) == 0 {
		return false
	}
	magic, ok := values[0].([4]byte)
	return ok && magic == erc1271MagicValue
}
