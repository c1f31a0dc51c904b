package helpers

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

func normalize(solType string) string {
	t := strings.TrimSpace(solType)
	// ethers allows "uint" / "int" as shorthand for 256-bit
	if t == "uint" {
		return "uint256"
	}
	if t == "int" {
		return "int256"
	}
	return t
}

func EncodeLikeEthers(typeStrs []string, values []interface{}) ([]byte, error) {
	if len(typeStrs) != len(values) {
		return nil, fmt.Errorf("types/values length mismatch")
	}

	// Build abi.Arguments from the provided type strings.
	args := make(abi.Arguments, len(typeStrs))
	for i, ts := range typeStrs {
		t, err := abi.NewType(normalize(ts), "", nil)
		if err != nil {
			return nil, fmt.Errorf("type %q: %w", ts, err)
		}
		args[i] = abi.Argument{Name: fmt.Sprintf("arg%d", i), Type: t}
	}

	// Pack encodes like Solidity's abi.encode(...)
	return args.Pack(values...)
}

func PackAccountGasLimits(verificationGasLimit, callGasLimit *big.Int) [32]byte {
	// packed = (verificationGasLimit << 128) | callGasLimit
	return packUint128Pair(verificationGasLimit, callGasLimit)
}

func PackGasFees(maxPriorityFeePerGas, maxFeePerGas *big.Int) [32]byte {
	// packed = (maxPriorityFeePerGas << 128) | maxFeePerGas
	return packUint128Pair(maxPriorityFeePerGas, maxFeePerGas)
}

// PackUint128 left pads v into a 16 byte big-endian word, as used inside
// paymasterAndData for the paymaster gas limits.
func PackUint128(v *big.Int) []byte {
	if v == nil {
		return make([]byte, 16)
	}
	return common.LeftPadBytes(v.Bytes(), 16)
}

func packUint128Pair(hi, lo *big.Int) [32]byte {
	var out [32]byte
	copy(out[:16], PackUint128(hi))
	copy(out[16:], PackUint128(lo))
	return out
}
