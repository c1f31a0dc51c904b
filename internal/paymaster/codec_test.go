package paymaster

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

var (
	testToken = common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e")
	testPayer = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

func shortAuth() Authorization {
	return Authorization{
		Token:      testToken,
		Payer:      testPayer,
		ValidUntil: 1_700_003_600,
		ValidAfter: 1_699_999_940,
		Activation: true,
		Signature:  []byte{0xde, 0xad, 0xbe, 0xef},
	}
}

func fullPermit() *Permit {
	return &Permit{
		Deadline: big.NewInt(1_700_003_600),
		V:        27,
		R:        common.HexToHash("0x01"),
		S:        common.HexToHash("0x02"),
	}
}

func TestEncodeShortFormGolden(t *testing.T) {
	out, err := EncodeAuthorization(shortAuth())
	require.NoError(t, err)

	want := "0x" +
		"036cbd53842c5426634e7929541ec2318f3dcf7e" +
		"1111111111111111111111111111111111111111" +
		"00006553ff10" + // validUntil
		"00006553f0c4" + // validAfter
		"00" + "01" +
		"deadbeef"
	require.Equal(t, want, hexutil.Encode(out))
	require.Len(t, out, shortPrefixLen+4)
}

func TestEncodeIsDeterministic(t *testing.T) {
	a, err := EncodeAuthorization(shortAuth())
	require.NoError(t, err)
	b, err := EncodeAuthorization(shortAuth())
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestDecodeRoundTrip(t *testing.T) {
	for _, withPermit := range []bool{false, true} {
		auth := shortAuth()
		if withPermit {
			auth.Permit = fullPermit()
		}
		out, err := EncodeAuthorization(auth)
		require.NoError(t, err)

		decoded, err := DecodeAuthorization(out)
		require.NoError(t, err)
		require.Equal(t, auth.Token, decoded.Token)
		require.Equal(t, auth.Payer, decoded.Payer)
		require.Equal(t, auth.ValidUntil, decoded.ValidUntil)
		require.Equal(t, auth.ValidAfter, decoded.ValidAfter)
		require.Equal(t, auth.Activation, decoded.Activation)
		require.Equal(t, auth.Signature, decoded.Signature)
		if withPermit {
			require.NotNil(t, decoded.Permit)
			require.Equal(t, 0, auth.Permit.Deadline.Cmp(decoded.Permit.Deadline))
			require.Equal(t, auth.Permit.V, decoded.Permit.V)
			require.Equal(t, auth.Permit.R, decoded.Permit.R)
			require.Equal(t, auth.Permit.S, decoded.Permit.S)
		} else {
			require.Nil(t, decoded.Permit)
		}
	}
}

func TestPermitSelectsLongForm(t *testing.T) {
	auth := shortAuth()
	auth.Permit = fullPermit()

	out, err := EncodeAuthorization(auth)
	require.NoError(t, err)
	require.Equal(t, modePermit, out[52])
	require.Len(t, out, shortPrefixLen+permitLen+len(auth.Signature))
	require.Equal(t, byte(27), out[shortPrefixLen+32])
}

func TestIncompletePermitFails(t *testing.T) {
	mutations := map[string]func(p *Permit){
		"deadline": func(p *Permit) { p.Deadline = nil },
		"v":        func(p *Permit) { p.V = 0 },
		"r":        func(p *Permit) { p.R = common.Hash{} },
		"s":        func(p *Permit) { p.S = common.Hash{} },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			auth := shortAuth()
			auth.Permit = fullPermit()
			mutate(auth.Permit)

			_, err := EncodeAuthorization(auth)
			require.True(t, errors.Is(err, ErrIncompletePermit))
		})
	}
}

func TestTimestampOverflow(t *testing.T) {
	auth := shortAuth()
	auth.ValidUntil = 1 << 48
	_, err := EncodeAuthorization(auth)
	require.True(t, errors.Is(err, ErrTimestampOverflow))

	auth.ValidUntil = maxUint48
	_, err = EncodeAuthorization(auth)
	require.NoError(t, err)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	_, err := DecodeAuthorization(make([]byte, 10))
	require.True(t, errors.Is(err, ErrMalformedData))

	out, err := EncodeAuthorization(shortAuth())
	require.NoError(t, err)
	out[52] = 7
	_, err = DecodeAuthorization(out)
	require.True(t, errors.Is(err, ErrMalformedData))

	out[52] = modePermit
	_, err = DecodeAuthorization(out)
	require.True(t, errors.Is(err, ErrMalformedData))
}

func TestValidate(t *testing.T) {
	auth := shortAuth()
	require.NoError(t, auth.Validate(1_700_000_000))
	require.NoError(t, auth.Validate(auth.ValidAfter))
	require.NoError(t, auth.Validate(auth.ValidUntil))
	require.True(t, errors.Is(auth.Validate(auth.ValidUntil+1), ErrAuthorizationStale))
	require.True(t, errors.Is(auth.Validate(auth.ValidAfter-1), ErrAuthorizationStale))
}

func TestPaymasterAndData(t *testing.T) {
	pm := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	out := PaymasterAndData(pm, big.NewInt(150_000), big.NewInt(80_000), []byte{0x01})

	require.Len(t, out, 20+16+16+1)
	require.Equal(t, pm.Bytes(), out[:20])
	require.Equal(t, big.NewInt(150_000), new(big.Int).SetBytes(out[20:36]))
	require.Equal(t, big.NewInt(80_000), new(big.Int).SetBytes(out[36:52]))
	require.Equal(t, byte(0x01), out[52])
}
