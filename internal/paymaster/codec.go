package paymaster

import (
	"encoding/binary"
	"math/big"

	"github.com/compose-network/gasless/internal/helpers"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

const (
	modeShort  byte = 0
	modePermit byte = 1

	// token | payer | validUntil | validAfter | mode | activation
	shortPrefixLen = 20 + 20 + 6 + 6 + 1 + 1
	// deadline | v | r | s
	permitLen = 32 + 1 + 32 + 32

	maxUint48 = 1<<48 - 1
)

var (
	ErrIncompletePermit   = errors.New("permit requires deadline, v, r and s")
	ErrTimestampOverflow  = errors.New("timestamp does not fit in uint48")
	ErrMalformedData      = errors.New("malformed paymaster data")
	ErrAuthorizationStale = errors.New("paymaster authorization is outside its validity window")
)

// Permit carries an ERC-2612 permit that travels with the authorization.
type Permit struct {
	Deadline *big.Int
	V        uint8
	R        common.Hash
	S        common.Hash
}

func (p *Permit) complete() bool {
	return p.Deadline != nil && p.Deadline.Sign() > 0 && p.V != 0 &&
		p.R != (common.Hash{}) && p.S != (common.Hash{})
}

// Authorization is a signed, time-boxed permission for the paymaster to
// charge gas in Token to Payer.
type Authorization struct {
	Token      common.Address
	Payer      common.Address
	ValidUntil uint64
	ValidAfter uint64
	Activation bool
	Signature  []byte
	// Permit selects the long layout when set.
	Permit *Permit
}

// Validate checks the authorization against the wall clock.
func (a *Authorization) Validate(now uint64) error {
	if a.ValidAfter > now || now > a.ValidUntil {
		return errors.Wrapf(ErrAuthorizationStale, "window [%d, %d], now %d", a.ValidAfter, a.ValidUntil, now)
	}
	return nil
}

// EncodeAuthorization packs a into the paymaster's data segment.
func EncodeAuthorization(a Authorization) ([]byte, error) {
	if a.ValidUntil > maxUint48 {
		return nil, errors.Wrap(ErrTimestampOverflow, "validUntil")
	}
	if a.ValidAfter > maxUint48 {
		return nil, errors.Wrap(ErrTimestampOverflow, "validAfter")
	}
	mode := modeShort
	if a.Permit != nil {
		if !a.Permit.complete() {
			return nil, ErrIncompletePermit
		}
		if a.Permit.Deadline.BitLen() > 256 {
			return nil, errors.Wrap(ErrIncompletePermit, "deadline overflows uint256")
		}
		mode = modePermit
	}

	size := shortPrefixLen + len(a.Signature)
	if mode == modePermit {
		size += permitLen
	}
	out := make([]byte, 0, size)
	out = append(out, a.Token.Bytes()...)
	out = append(out, a.Payer.Bytes()...)
	out = appendUint48(out, a.ValidUntil)
	out = appendUint48(out, a.ValidAfter)
	out = append(out, mode, boolByte(a.Activation))
	if mode == modePermit {
		out = append(out, common.LeftPadBytes(a.Permit.Deadline.Bytes(), 32)...)
		out = append(out, a.Permit.V)
		out = append(out, a.Permit.R.Bytes()...)
		out = append(out, a.Permit.S.Bytes()...)
	}
	return append(out, a.Signature...), nil
}

// DecodeAuthorization parses data produced by EncodeAuthorization.
func DecodeAuthorization(data []byte) (Authorization, error) {
	if len(data) < shortPrefixLen {
		return Authorization{}, errors.Wrapf(ErrMalformedData, "need at least %d bytes, got %d", shortPrefixLen, len(data))
	}
	a := Authorization{
		Token:      common.BytesToAddress(data[0:20]),
		Payer:      common.BytesToAddress(data[20:40]),
		ValidUntil: readUint48(data[40:46]),
		ValidAfter: readUint48(data[46:52]),
	}
	mode, activation := data[52], data[53]
	if activation > 1 {
		return Authorization{}, errors.Wrapf(ErrMalformedData, "activation flag %d", activation)
	}
	a.Activation = activation == 1
	rest := data[shortPrefixLen:]

	switch mode {
	case modeShort:
	case modePermit:
		if len(rest) < permitLen {
			return Authorization{}, errors.Wrap(ErrMalformedData, "truncated permit")
		}
		a.Permit = &Permit{
			Deadline: new(big.Int).SetBytes(rest[0:32]),
			V:        rest[32],
			R:        common.BytesToHash(rest[33:65]),
			S:        common.BytesToHash(rest[65:97]),
		}
		rest = rest[permitLen:]
	default:
		return Authorization{}, errors.Wrapf(ErrMalformedData, "unknown mode %d", mode)
	}
	a.Signature = common.CopyBytes(rest)
	return a, nil
}

// PaymasterAndData assembles the v0.7 paymasterAndData field.
func PaymasterAndData(paymaster common.Address, verificationGasLimit, postOpGasLimit *big.Int, data []byte) []byte {
	out := make([]byte, 0, 20+16+16+len(data))
	out = append(out, paymaster.Bytes()...)
	out = append(out, helpers.PackUint128(verificationGasLimit)...)
	out = append(out, helpers.PackUint128(postOpGasLimit)...)
	return append(out, data...)
}

func appendUint48(dst []byte, v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return append(dst, buf[2:]...)
}

func readUint48(b []byte) uint64 {
	var buf [8]byte
	copy(buf[2:], b)
	return binary.BigEndian.Uint64(buf[:])
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
