package paymaster

import (
	"context"
	"math/big"
	"testing"

	"github.com/compose-network/gasless/internal/chain"
	"github.com/compose-network/gasless/internal/chain/chaintest"
	"github.com/compose-network/gasless/internal/helpers"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

var (
	testPaymaster = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testAccount   = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

type chainState struct {
	supported bool
	balance   int64
	allowance int64
	gasCost   int64
}

func newPreflight(t *testing.T, st chainState) (*Preflight, *chaintest.Backend) {
	t.Helper()
	backend := chaintest.NewBackend()
	backend.Returns(testPaymaster, ABI, "isSupportedToken", st.supported)
	backend.Returns(testToken, helpers.ERC20ABI, "balanceOf", big.NewInt(st.balance))
	backend.Handle(testToken, helpers.ERC20ABI, "allowance", func(args []interface{}) ([]interface{}, error) {
		require.Equal(t, testAccount, args[0])
		require.Equal(t, testPaymaster, args[1])
		return []interface{}{big.NewInt(st.allowance)}, nil
	})
	backend.Handle(testPaymaster, ABI, "estimateTotalCost", func(args []interface{}) ([]interface{}, error) {
		require.Equal(t, testToken, args[0])
		return []interface{}{big.NewInt(st.gasCost)}, nil
	})
	return NewPreflight(chain.NewReader(backend), testPaymaster), backend
}

func usdcRequest(amount int64) Request {
	return Request{
		Token:        testToken,
		Account:      testAccount,
		Amount:       big.NewInt(amount),
		Decimals:     6,
		Symbol:       "USDC",
		GasLimit:     big.NewInt(150_000),
		MaxFeePerGas: big.NewInt(2_500_000),
	}
}

func rejection(t *testing.T, err error) *PreflightError {
	t.Helper()
	var pfErr *PreflightError
	require.True(t, errors.As(err, &pfErr), "expected *PreflightError, got %v", err)
	return pfErr
}

func TestPreflightSimpleSendPasses(t *testing.T) {
	p, backend := newPreflight(t, chainState{supported: true, balance: 100_000_000, allowance: 1_000_000_000, gasCost: 200_000})

	quote, err := p.Check(context.Background(), usdcRequest(10_500_000))
	require.NoError(t, err)
	require.Equal(t, big.NewInt(200_000), quote.GasCost)
	require.Equal(t, 1, backend.Calls("isSupportedToken"))
	require.Equal(t, 1, backend.Calls("estimateTotalCost"))
}

func TestPreflightInsufficientBalanceReportsShortfall(t *testing.T) {
	p, _ := newPreflight(t, chainState{supported: true, balance: 10_000_000, allowance: 1_000_000_000, gasCost: 200_000})

	_, err := p.Check(context.Background(), usdcRequest(10_500_000))
	pfErr := rejection(t, err)
	require.Equal(t, KindInsufficientBalance, pfErr.Kind)
	require.Equal(t, big.NewInt(700_000), pfErr.Shortfall)
	require.Contains(t, pfErr.Error(), "short by 0.7 USDC")
}

func TestPreflightAffordabilityBoundary(t *testing.T) {
	const spend, gas = 10_500_000, 200_000

	p, _ := newPreflight(t, chainState{supported: true, balance: spend + gas - 1, allowance: gas, gasCost: gas})
	_, err := p.Check(context.Background(), usdcRequest(spend))
	require.Equal(t, KindInsufficientBalance, rejection(t, err).Kind)
	require.Equal(t, big.NewInt(1), rejection(t, err).Shortfall)

	p, _ = newPreflight(t, chainState{supported: true, balance: spend + gas, allowance: gas, gasCost: gas})
	_, err = p.Check(context.Background(), usdcRequest(spend))
	require.NoError(t, err)
}

func TestPreflightRejections(t *testing.T) {
	tests := []struct {
		name       string
		state      chainState
		activation bool
		want       RejectionKind
	}{
		{
			name:  "unsupported token",
			state: chainState{supported: false, balance: 100_000_000, allowance: 1_000_000, gasCost: 200_000},
			want:  KindUnsupportedToken,
		},
		{
			name:  "zero allowance",
			state: chainState{supported: true, balance: 100_000_000, allowance: 0, gasCost: 200_000},
			want:  KindActivationRequired,
		},
		{
			name:  "allowance below gas cost",
			state: chainState{supported: true, balance: 100_000_000, allowance: 199_999, gasCost: 200_000},
			want:  KindReactivationRequired,
		},
		{
			name:       "activation still needs balance",
			state:      chainState{supported: true, balance: 100, allowance: 0, gasCost: 200_000},
			activation: true,
			want:       KindInsufficientBalance,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newPreflight(t, tt.state)
			req := usdcRequest(1_000_000)
			req.Activation = tt.activation

			_, err := p.Check(context.Background(), req)
			require.Equal(t, tt.want, rejection(t, err).Kind)
		})
	}
}

func TestPreflightActivationSkipsAllowance(t *testing.T) {
	p, _ := newPreflight(t, chainState{supported: true, balance: 1_000_000, allowance: 0, gasCost: 200_000})
	req := usdcRequest(0)
	req.Activation = true

	_, err := p.Check(context.Background(), req)
	require.NoError(t, err)
}

func TestPreflightReadFailure(t *testing.T) {
	backend := chaintest.NewBackend()
	backend.Returns(testPaymaster, ABI, "isSupportedToken", true)
	p := NewPreflight(chain.NewReader(backend), testPaymaster)

	_, err := p.Check(context.Background(), usdcRequest(1))
	require.Error(t, err)
	var pfErr *PreflightError
	require.False(t, errors.As(err, &pfErr))
}
