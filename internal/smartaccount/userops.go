package smartaccount

import (
	"math/big"

	"github.com/compose-network/gasless/internal/helpers"
	"github.com/compose-network/gasless/internal/paymaster"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// Call is one sub-call of an atomic batch. Value is always zero for the
// flows built here but kept for the account's call shape.
type Call struct {
	To    common.Address
	Value *big.Int
	Data  []byte
}

// UserOp is an EntryPoint v0.7 user operation in its unpacked form, which is
// what bundlers accept over JSON-RPC.
type UserOp struct {
	Sender   common.Address
	Nonce    *big.Int
	Factory  *common.Address
	CallData []byte

	FactoryData          []byte
	CallGasLimit         *big.Int
	VerificationGasLimit *big.Int
	PreVerificationGas   *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int

	Paymaster                     *common.Address
	PaymasterVerificationGasLimit *big.Int
	PaymasterPostOpGasLimit       *big.Int
	PaymasterData                 []byte

	Signature []byte
}

// PackedUserOp is the on-chain PackedUserOperation layout.
type PackedUserOp struct {
	Sender             common.Address
	Nonce              *big.Int
	InitCode           []byte
	CallData           []byte
	AccountGasLimits   [32]byte
	PreVerificationGas *big.Int
	GasFees            [32]byte
	PaymasterAndData   []byte
	Signature          []byte
}

// InitCode is factory | factoryData, empty for deployed accounts.
func (op *UserOp) InitCode() []byte {
	if op.Factory == nil {
		return []byte{}
	}
	return append(op.Factory.Bytes(), op.FactoryData...)
}

// PaymasterAndData is paymaster | verificationGas(16) | postOpGas(16) | data.
func (op *UserOp) PaymasterAndData() []byte {
	if op.Paymaster == nil {
		return []byte{}
	}
	return paymaster.PaymasterAndData(*op.Paymaster, op.PaymasterVerificationGasLimit, op.PaymasterPostOpGasLimit, op.PaymasterData)
}

func (op *UserOp) Pack() PackedUserOp {
	return PackedUserOp{
		Sender:             op.Sender,
		Nonce:              bigOrZero(op.Nonce),
		InitCode:           op.InitCode(),
		CallData:           op.CallData,
		AccountGasLimits:   helpers.PackAccountGasLimits(op.VerificationGasLimit, op.CallGasLimit),
		PreVerificationGas: bigOrZero(op.PreVerificationGas),
		GasFees:            helpers.PackGasFees(op.MaxPriorityFeePerGas, op.MaxFeePerGas),
		PaymasterAndData:   op.PaymasterAndData(),
		Signature:          op.Signature,
	}
}

// Hash returns the v0.7 user operation hash:
// keccak256(abi.encode(keccak256(packed fields), entryPoint, chainId)).
// The signature does not take part.
func (op *UserOp) Hash(entryPoint common.Address, chainID *big.Int) (common.Hash, error) {
	p := op.Pack()
	inner, err := helpers.EncodeLikeEthers(
		[]string{"address", "uint256", "bytes32", "bytes32", "bytes32", "uint256", "bytes32", "bytes32"},
		[]interface{}{
			p.Sender,
			p.Nonce,
			crypto.Keccak256Hash(p.InitCode),
			crypto.Keccak256Hash(p.CallData),
			p.AccountGasLimits,
			p.PreVerificationGas,
			p.GasFees,
			crypto.Keccak256Hash(p.PaymasterAndData),
		},
	)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to pack user op")
	}

	outer, err := helpers.EncodeLikeEthers(
		[]string{"bytes32", "address", "uint256"},
		[]interface{}{crypto.Keccak256Hash(inner), entryPoint, bigOrZero(chainID)},
	)
	if err != nil {
		return common.Hash{}, errors.Wrap(err, "failed to pack user op hash envelope")
	}
	return crypto.Keccak256Hash(outer), nil
}

// RPCUserOp is the JSON shape of eth_sendUserOperation for v0.7.
type RPCUserOp struct {
	Sender                        common.Address  `json:"sender"`
	Nonce                         *hexutil.Big    `json:"nonce"`
	Factory                       *common.Address `json:"factory,omitempty"`
	FactoryData                   hexutil.Bytes   `json:"factoryData,omitempty"`
	CallData                      hexutil.Bytes   `json:"callData"`
	CallGasLimit                  *hexutil.Big    `json:"callGasLimit"`
	VerificationGasLimit          *hexutil.Big    `json:"verificationGasLimit"`
	PreVerificationGas            *hexutil.Big    `json:"preVerificationGas"`
	MaxFeePerGas                  *hexutil.Big    `json:"maxFeePerGas"`
	MaxPriorityFeePerGas          *hexutil.Big    `json:"maxPriorityFeePerGas"`
	Paymaster                     *common.Address `json:"paymaster,omitempty"`
	PaymasterVerificationGasLimit *hexutil.Big    `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       *hexutil.Big    `json:"paymasterPostOpGasLimit,omitempty"`
	PaymasterData                 hexutil.Bytes   `json:"paymasterData,omitempty"`
	Signature                     hexutil.Bytes   `json:"signature"`
}

func (op *UserOp) RPC() RPCUserOp {
	out := RPCUserOp{
		Sender:               op.Sender,
		Nonce:                hexBig(op.Nonce),
		CallData:             nonNilBytes(op.CallData),
		CallGasLimit:         hexBig(op.CallGasLimit),
		VerificationGasLimit: hexBig(op.VerificationGasLimit),
		PreVerificationGas:   hexBig(op.PreVerificationGas),
		MaxFeePerGas:         hexBig(op.MaxFeePerGas),
		MaxPriorityFeePerGas: hexBig(op.MaxPriorityFeePerGas),
		Signature:            nonNilBytes(op.Signature),
	}
	if op.Factory != nil {
		out.Factory = op.Factory
		out.FactoryData = nonNilBytes(op.FactoryData)
	}
	if op.Paymaster != nil {
		out.Paymaster = op.Paymaster
		out.PaymasterVerificationGasLimit = hexBig(op.PaymasterVerificationGasLimit)
		out.PaymasterPostOpGasLimit = hexBig(op.PaymasterPostOpGasLimit)
		out.PaymasterData = nonNilBytes(op.PaymasterData)
	}
	return out
}

// ExecuteBatchCallData encodes calls into the account's executeBatch entry.
func ExecuteBatchCallData(calls []Call) ([]byte, error) {
	if len(calls) == 0 {
		return nil, errors.New("empty call batch")
	}
	type call struct {
		Target common.Address
		Value  *big.Int
		Data   []byte
	}
	tuples := make([]call, len(calls))
	for i, c := range calls {
		tuples[i] = call{Target: c.To, Value: bigOrZero(c.Value), Data: c.Data}
	}
	data, err := AccountABI.Pack("executeBatch", tuples)
	if err != nil {
		return nil, errors.Wrap(err, "failed to pack executeBatch")
	}
	return data, nil
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func hexBig(v *big.Int) *hexutil.Big {
	return (*hexutil.Big)(bigOrZero(v))
}

func nonNilBytes(b []byte) hexutil.Bytes {
	if b == nil {
		return hexutil.Bytes{}
	}
	return b
}
