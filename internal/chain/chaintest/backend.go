// Package chaintest provides an in-memory chain backend for tests.
package chaintest

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Handler answers a call with the unpacked arguments and returns the values to
// pack as the method outputs.
type Handler func(args []interface{}) ([]interface{}, error)

type method struct {
	abi     abi.Method
	handler Handler
}

// Backend is a programmable chain.Backend. Contract methods are registered per
// address and served by ABI selector; unknown calls fail.
type Backend struct {
	mu      sync.Mutex
	methods map[common.Address]map[[4]byte]method
	code    map[common.Address][]byte
	calls   map[string]int

	GasPrice  *big.Int
	TipCap    *big.Int
	BaseFee   *big.Int
	TipErr    error
	HeaderErr error
}

func NewBackend() *Backend {
	return &Backend{
		methods:  make(map[common.Address]map[[4]byte]method),
		code:     make(map[common.Address][]byte),
		calls:    make(map[string]int),
		GasPrice: big.NewInt(1_000_000_000),
		TipCap:   big.NewInt(1_000_000),
		BaseFee:  big.NewInt(10_000_000),
	}
}

// Handle registers handler for name on the contract at addr.
func (b *Backend) Handle(addr common.Address, contractABI abi.ABI, name string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	m, ok := contractABI.Methods[name]
	if !ok {
		panic(fmt.Sprintf("method %s not in ABI", name))
	}
	if b.methods[addr] == nil {
		b.methods[addr] = make(map[[4]byte]method)
	}
	var sel [4]byte
	copy(sel[:], m.ID)
	b.methods[addr][sel] = method{abi: m, handler: handler}
}

// Returns registers a handler that always answers with values.
func (b *Backend) Returns(addr common.Address, contractABI abi.ABI, name string, values ...interface{}) {
	b.Handle(addr, contractABI, name, func([]interface{}) ([]interface{}, error) {
		return values, nil
	})
}

// SetCode sets the bytecode reported for addr.
func (b *Backend) SetCode(addr common.Address, code []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.code[addr] = code
}

// Calls reports how many times name was served across all contracts.
func (b *Backend) Calls(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[name]
}

func (b *Backend) CodeAt(_ context.Context, contract common.Address, _ *big.Int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["codeAt"]++
	return b.code[contract], nil
}

func (b *Backend) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if call.To == nil || len(call.Data) < 4 {
		return nil, fmt.Errorf("malformed call")
	}
	var sel [4]byte
	copy(sel[:], call.Data[:4])

	b.mu.Lock()
	m, ok := b.methods[*call.To][sel]
	if ok {
		b.calls[m.abi.Name]++
	}
	b.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("execution reverted: no handler for %x on %s", sel, call.To.Hex())
	}

	args, err := m.abi.Inputs.Unpack(call.Data[4:])
	if err != nil {
		return nil, err
	}
	out, err := m.handler(args)
	if err != nil {
		return nil, err
	}
	return m.abi.Outputs.Pack(out...)
}

func (b *Backend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.GasPrice), nil
}

func (b *Backend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	if b.TipErr != nil {
		return nil, b.TipErr
	}
	return new(big.Int).Set(b.TipCap), nil
}

func (b *Backend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	if b.HeaderErr != nil {
		return nil, b.HeaderErr
	}
	h := &types.Header{Number: big.NewInt(1)}
	if b.BaseFee != nil {
		h.BaseFee = new(big.Int).Set(b.BaseFee)
	}
	return h, nil
}
