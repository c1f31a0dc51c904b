package helpers

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"
)

func TestPackAccountGasLimits(t *testing.T) {
	packed := PackAccountGasLimits(big.NewInt(150_000), big.NewInt(500_000))

	require.Equal(t, "0x000000000000000000000000000249f00000000000000000000000000007a120", hexutil.Encode(packed[:]))
}

func TestPackGasFees(t *testing.T) {
	packed := PackGasFees(big.NewInt(2), big.NewInt(30))

	require.Equal(t, big.NewInt(2), new(big.Int).SetBytes(packed[:16]))
	require.Equal(t, big.NewInt(30), new(big.Int).SetBytes(packed[16:]))
}

func TestPackUint128Nil(t *testing.T) {
	require.Equal(t, make([]byte, 16), PackUint128(nil))
}

func TestEncodeLikeEthers(t *testing.T) {
	out, err := EncodeLikeEthers([]string{"uint", "address"}, []interface{}{big.NewInt(1), common.HexToAddress("0x01")})
	require.NoError(t, err)
	require.Len(t, out, 64)

	_, err = EncodeLikeEthers([]string{"uint"}, nil)
	require.Error(t, err)
}

func TestParseUnits(t *testing.T) {
	tests := []struct {
		in       string
		decimals uint8
		want     string
		wantErr  bool
	}{
		{in: "10.5", decimals: 6, want: "10500000"},
		{in: "100", decimals: 6, want: "100000000"},
		{in: "0.000001", decimals: 6, want: "1"},
		{in: ".5", decimals: 2, want: "50"},
		{in: "1.", decimals: 2, want: "100"},
		{in: " 7 ", decimals: 0, want: "7"},
		{in: "0.0000001", decimals: 6, wantErr: true},
		{in: "-1", decimals: 6, wantErr: true},
		{in: "abc", decimals: 6, wantErr: true},
		{in: "", decimals: 6, wantErr: true},
		{in: ".", decimals: 6, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseUnits(tt.in, tt.decimals)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got.String())
		})
	}
}

func TestFormatUnits(t *testing.T) {
	require.Equal(t, "0.7", FormatUnits(big.NewInt(700_000), 6))
	require.Equal(t, "10.5", FormatUnits(big.NewInt(10_500_000), 6))
	require.Equal(t, "100", FormatUnits(big.NewInt(100_000_000), 6))
	require.Equal(t, "0.000001", FormatUnits(big.NewInt(1), 6))
	require.Equal(t, "0", FormatUnits(big.NewInt(0), 6))
	require.Equal(t, "42", FormatUnits(big.NewInt(42), 0))
	require.Equal(t, "-1.5", FormatUnits(big.NewInt(-15), 1))
	require.Equal(t, "0", FormatUnits(nil, 18))
}

func TestMulBpsCeil(t *testing.T) {
	require.Equal(t, big.NewInt(101), MulBpsCeil(big.NewInt(100), 100))
	require.Equal(t, big.NewInt(2), MulBpsCeil(big.NewInt(1), 100))
	require.Equal(t, big.NewInt(1_010_000), MulBpsCeil(big.NewInt(1_000_000), 100))
	require.Zero(t, MulBpsCeil(big.NewInt(0), 100).Sign())
}

func TestERC20CallData(t *testing.T) {
	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	data, err := TransferCallData(to, big.NewInt(10_500_000))
	require.NoError(t, err)
	require.Equal(t, "0xa9059cbb", hexutil.Encode(data[:4]))

	args, err := ERC20ABI.Methods["transfer"].Inputs.Unpack(data[4:])
	require.NoError(t, err)
	require.Equal(t, to, args[0])
	require.Equal(t, big.NewInt(10_500_000), args[1])

	data, err = ApproveCallData(to, MaxUint256)
	require.NoError(t, err)
	require.Equal(t, "0x095ea7b3", hexutil.Encode(data[:4]))
}
