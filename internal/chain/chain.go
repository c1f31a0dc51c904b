package chain

import (
	"context"
	"math/big"

	"github.com/compose-network/gasless/internal/logger"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
)

// Backend is the read-only chain surface the orchestrator needs. *ethclient.Client
// satisfies it.
type Backend interface {
	bind.ContractCaller
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

var _ Backend = (*ethclient.Client)(nil)

// Dial connects to the chain RPC endpoint.
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s", rpcURL)
	}
	return client, nil
}

// Reader performs typed view calls against contracts.
type Reader struct {
	backend Backend
}

func NewReader(backend Backend) *Reader {
	return &Reader{backend: backend}
}

func (r *Reader) Backend() Backend {
	return r.backend
}

// ReadContract packs method with args, calls it at the latest block and unpacks
// the outputs.
func (r *Reader) ReadContract(ctx context.Context, contract common.Address, contractABI abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	input, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to pack %s", method)
	}

	output, err := r.backend.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: input}, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "call %s on %s", method, contract.Hex())
	}
	if len(output) == 0 {
		logger.Debug("empty result from %s on %s", method, contract.Hex())
	}

	values, err := contractABI.Unpack(method, output)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to unpack %s", method)
	}
	return values, nil
}

// ReadBigInt is ReadContract for methods returning a single uint256.
func (r *Reader) ReadBigInt(ctx context.Context, contract common.Address, contractABI abi.ABI, method string, args ...interface{}) (*big.Int, error) {
	values, err := r.ReadContract(ctx, contract, contractABI, method, args...)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, errors.Errorf("%s returned no values", method)
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, errors.Errorf("%s returned %T, expected *big.Int", method, values[0])
	}
	return v, nil
}

// ReadBool is ReadContract for methods returning a single bool.
func (r *Reader) ReadBool(ctx context.Context, contract common.Address, contractABI abi.ABI, method string, args ...interface{}) (bool, error) {
	values, err := r.ReadContract(ctx, contract, contractABI, method, args...)
	if err != nil {
		return false, err
	}
	if len(values) == 0 {
		return false, errors.Errorf("%s returned no values", method)
	}
	v, ok := values[0].(bool)
	if !ok {
		return false, errors.Errorf("%s returned %T, expected bool", method, values[0])
	}
	return v, nil
}

// ReadAddress is ReadContract for methods returning a single address.
func (r *Reader) ReadAddress(ctx context.Context, contract common.Address, contractABI abi.ABI, method string, args ...interface{}) (common.Address, error) {
	values, err := r.ReadContract(ctx, contract, contractABI, method, args...)
	if err != nil {
		return common.Address{}, err
	}
	if len(values) == 0 {
		return common.Address{}, errors.Errorf("%s returned no values", method)
	}
	v, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, errors.Errorf("%s returned %T, expected address", method, values[0])
	}
	return v, nil
}

// HasCode reports whether addr carries bytecode at the latest block.
func (r *Reader) HasCode(ctx context.Context, addr common.Address) (bool, error) {
	code, err := r.backend.CodeAt(ctx, addr, nil)
	if err != nil {
		return false, errors.Wrapf(err, "failed to read code at %s", addr.Hex())
	}
	return len(code) > 0, nil
}
