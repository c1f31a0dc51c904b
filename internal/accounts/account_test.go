package accounts

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/require"
)

const testKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestNewPrivateKeySigner(t *testing.T) {
	s, err := NewPrivateKeySigner(testKey, KindPlain)
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress("0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"), s.Address())
	require.Equal(t, KindPlain, s.Kind())

	_, err = NewPrivateKeySigner("not-a-key", KindPlain)
	require.Error(t, err)
}

func TestSignMessageRecovers(t *testing.T) {
	s, err := NewPrivateKeySigner(testKey, KindPlain)
	require.NoError(t, err)

	msg := crypto.Keccak256([]byte("user operation"))
	sig, err := s.SignMessage(context.Background(), msg)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	require.Contains(t, []byte{27, 28}, sig[64])

	recovered, err := RecoverMessageSigner(msg, sig)
	require.NoError(t, err)
	require.Equal(t, s.Address(), recovered)
}

func TestSignTypedData(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	s := NewSignerFromKey(key, KindMultiOwner)

	data := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"Authorization": {
				{Name: "payer", Type: "address"},
				{Name: "validUntil", Type: "uint256"},
			},
		},
		PrimaryType: "Authorization",
		Domain: apitypes.TypedDataDomain{
			Name:    "Paymaster",
			ChainId: (*math.HexOrDecimal256)(big.NewInt(84532)),
		},
		Message: apitypes.TypedDataMessage{
			"payer":      s.Address().Hex(),
			"validUntil": "1700000000",
		},
	}

	sig, err := s.SignTypedData(context.Background(), data)
	require.NoError(t, err)

	hash, _, err := apitypes.TypedDataAndHash(data)
	require.NoError(t, err)
	sig[64] -= 27
	pub, err := crypto.SigToPub(hash, sig)
	require.NoError(t, err)
	require.Equal(t, s.Address(), crypto.PubkeyToAddress(*pub))
}

func TestKindFromConnector(t *testing.T) {
	require.Equal(t, KindMultiOwner, KindFromConnector("coinbaseWalletSDK"))
	require.Equal(t, KindMultiOwner, KindFromConnector("Coinbase Smart Wallet"))
	require.Equal(t, KindPlain, KindFromConnector("metaMask"))
	require.Equal(t, KindPlain, KindFromConnector(""))
	require.Equal(t, "multi-owner", KindMultiOwner.String())
}

func TestRecoverMessageSignerRejectsShortSignature(t *testing.T) {
	_, err := RecoverMessageSigner([]byte("x"), []byte{1, 2, 3})
	require.Error(t, err)
}
