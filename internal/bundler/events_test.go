package bundler

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

var (
	opHash    = common.HexToHash("0xaaaa000000000000000000000000000000000000000000000000000000000001")
	otherHash = common.HexToHash("0xbbbb000000000000000000000000000000000000000000000000000000000002")
	sender    = common.HexToAddress("0x00000000000000000000000000000000000005ac")
	txHash    = common.HexToHash("0x1234")
)

func word(v int64) []byte {
	return common.LeftPadBytes(big.NewInt(v).Bytes(), 32)
}

func userOpEvent(hash common.Hash, success bool) Log {
	flag := int64(0)
	if success {
		flag = 1
	}
	var data []byte
	data = append(data, word(7)...)
	data = append(data, word(flag)...)
	data = append(data, word(1000)...)
	data = append(data, word(21000)...)
	return Log{
		Address: common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032"),
		Topics:  []common.Hash{UserOperationEvent.Topic, hash, common.BytesToHash(sender.Bytes()), {}},
		Data:    data,
	}
}

func revertEvent(t *testing.T, hash common.Hash, reason string) Log {
	t.Helper()
	revertData, err := (abi.Arguments{{Type: mustType("string")}}).Pack(reason)
	require.NoError(t, err)
	data, err := revertReasonArgs.Pack(big.NewInt(7), append(append([]byte{}, errorSelector...), revertData...))
	require.NoError(t, err)
	return Log{
		Topics: []common.Hash{UserOperationRevertReason.Topic, hash, common.BytesToHash(sender.Bytes())},
		Data:   data,
	}
}

func TestUserOperationEventTopic(t *testing.T) {
	require.Equal(t,
		"0x49628fd1471006c1482da88028e9ce4dbb080b815c9b0344d39e5a8e6ec1419f",
		UserOperationEvent.Topic.Hex())
}

func TestScanLogs(t *testing.T) {
	logs := []Log{
		{Topics: []common.Hash{crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))}},
		userOpEvent(otherHash, true),
		userOpEvent(opHash, false),
	}

	found, ok := ScanLogs(UserOperationEvent, opHash, logs)
	require.True(t, ok)
	success, err := UserOperationEvent.Success(found)
	require.NoError(t, err)
	require.False(t, success)

	_, ok = ScanLogs(UserOperationEvent, common.Hash{}, logs)
	require.False(t, ok)
	_, ok = ScanLogs(UserOperationEvent, opHash, nil)
	require.False(t, ok)
}

func TestSuccessRejectsShortData(t *testing.T) {
	_, err := UserOperationEvent.Success(Log{Data: hexutil.Bytes(word(1))})
	require.Error(t, err)

	_, err = UserOperationRevertReason.Success(Log{})
	require.Error(t, err)
}

func TestDecideEventOverridesBundlerFlag(t *testing.T) {
	receipt := &Receipt{
		UserOpHash: opHash,
		Success:    true,
		Receipt:    TxReceipt{TransactionHash: txHash, Logs: []Log{userOpEvent(opHash, false)}},
	}

	out := Decide(receipt, "Transfer failed")
	require.False(t, out.Success)
	require.Equal(t, txHash, out.TxHash)
	require.Equal(t, "Transfer failed", out.Reason)
}

func TestDecideEventConfirmsSuccess(t *testing.T) {
	receipt := &Receipt{
		UserOpHash: opHash,
		Success:    false,
		Logs:       []Log{userOpEvent(opHash, true)},
	}
	require.True(t, Decide(receipt, "x").Success)
}

func TestDecideWithoutEventTrustsBundler(t *testing.T) {
	receipt := &Receipt{UserOpHash: opHash, Success: true, Receipt: TxReceipt{TransactionHash: txHash}}
	out := Decide(receipt, "x")
	require.True(t, out.Success)
	require.Empty(t, out.Reason)

	receipt.Success = false
	receipt.Reason = "AA33 reverted"
	out = Decide(receipt, "x")
	require.False(t, out.Success)
	require.Equal(t, "AA33 reverted", out.Reason)
}

func TestDecideUsesRevertReasonEvent(t *testing.T) {
	receipt := &Receipt{
		UserOpHash: opHash,
		Success:    true,
		Receipt: TxReceipt{Logs: []Log{
			revertEvent(t, opHash, "ERC20: transfer amount exceeds balance"),
			userOpEvent(opHash, false),
		}},
	}
	out := Decide(receipt, "Transfer failed")
	require.False(t, out.Success)
	require.Equal(t, "ERC20: transfer amount exceeds balance", out.Reason)
}

func TestRevertStringRawData(t *testing.T) {
	require.Equal(t, "reverted with data 0xdeadbeef", revertString([]byte{0xde, 0xad, 0xbe, 0xef}))
	require.Empty(t, revertString(nil))
}
