package fees

import (
	"context"
	"math/big"
	"testing"

	"github.com/compose-network/gasless/internal/chain/chaintest"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestBuffer(t *testing.T) {
	tests := []struct {
		in, want int64
	}{
		{in: 0, want: 1},
		{in: 1, want: 2},
		{in: 2, want: 5},
		{in: 10, want: 25},
		{in: 1_000_000_000, want: 2_500_000_000},
	}
	for _, tt := range tests {
		require.Equal(t, big.NewInt(tt.want), Buffer(big.NewInt(tt.in)), "Buffer(%d)", tt.in)
	}
}

func TestBufferMonotonic(t *testing.T) {
	for v := int64(0); v < 2_000; v++ {
		in := big.NewInt(v)
		out := Buffer(in)
		require.True(t, out.Cmp(in) > 0, "Buffer(%d) = %s", v, out)
		require.Equal(t, big.NewInt(v), in, "input must not be mutated")
	}
}

func TestEstimateLive(t *testing.T) {
	backend := chaintest.NewBackend()
	backend.BaseFee = big.NewInt(100)
	backend.TipCap = big.NewInt(10)

	fees, err := NewEstimator(backend).Estimate(context.Background())
	require.NoError(t, err)
	// (100*1.2 + 10) * 2.5
	require.Equal(t, big.NewInt(325), fees.MaxFeePerGas)
	require.Equal(t, big.NewInt(25), fees.MaxPriorityFeePerGas)
}

func TestEstimateFallsBackToGasPrice(t *testing.T) {
	backend := chaintest.NewBackend()
	backend.TipErr = errors.New("method not supported")
	backend.GasPrice = big.NewInt(40)

	fees, err := NewEstimator(backend).Estimate(context.Background())
	require.NoError(t, err)
	require.Equal(t, big.NewInt(100), fees.MaxFeePerGas)
	require.Equal(t, big.NewInt(100), fees.MaxPriorityFeePerGas)
}

func TestEstimatePreLondonHeader(t *testing.T) {
	backend := chaintest.NewBackend()
	backend.BaseFee = nil
	backend.GasPrice = big.NewInt(0)

	fees, err := NewEstimator(backend).Estimate(context.Background())
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1), fees.MaxFeePerGas)
	require.Equal(t, big.NewInt(1), fees.MaxPriorityFeePerGas)
}
