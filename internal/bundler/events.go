package bundler

import (
	"fmt"
	"math/big"

	"github.com/compose-network/gasless/internal/logger"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

const wordSize = 32

// EventSchema describes where an EntryPoint event keeps the fields read here.
type EventSchema struct {
	Name  string
	Topic common.Hash
	// HashTopic is the topic index carrying the user operation hash.
	HashTopic int
	// SuccessWord is the data word holding the success flag, -1 when absent.
	SuccessWord int
}

var (
	UserOperationEvent = EventSchema{
		Name:        "UserOperationEvent",
		Topic:       crypto.Keccak256Hash([]byte("UserOperationEvent(bytes32,address,address,uint256,bool,uint256,uint256)")),
		HashTopic:   1,
		SuccessWord: 1,
	}
	UserOperationRevertReason = EventSchema{
		Name:        "UserOperationRevertReason",
		Topic:       crypto.Keccak256Hash([]byte("UserOperationRevertReason(bytes32,address,uint256,bytes)")),
		HashTopic:   1,
		SuccessWord: -1,
	}
)

// errorSelector is the selector of Error(string).
var errorSelector = crypto.Keccak256([]byte("Error(string)"))[:4]

var revertReasonArgs = abi.Arguments{
	{Name: "nonce", Type: mustType("uint256")},
	{Name: "revertReason", Type: mustType("bytes")},
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// ScanLogs returns the first log emitted under schema for userOpHash.
func ScanLogs(schema EventSchema, userOpHash common.Hash, logs []Log) (Log, bool) {
	for _, l := range logs {
		if len(l.Topics) <= schema.HashTopic || l.Topics[0] != schema.Topic {
			continue
		}
		if l.Topics[schema.HashTopic] == userOpHash {
			return l, true
		}
	}
	return Log{}, false
}

// Success decodes the success flag of a log matched by ScanLogs.
func (s EventSchema) Success(l Log) (bool, error) {
	if s.SuccessWord < 0 {
		return false, errors.Errorf("%s has no success flag", s.Name)
	}
	end := (s.SuccessWord + 1) * wordSize
	if len(l.Data) < end {
		return false, errors.Errorf("%s data too short: %d bytes", s.Name, len(l.Data))
	}
	word := new(big.Int).SetBytes(l.Data[end-wordSize : end])
	if !word.IsUint64() || word.Uint64() > 1 {
		return false, errors.Errorf("%s success word is not a bool", s.Name)
	}
	return word.Uint64() == 1, nil
}

// DecodeRevertReason extracts a readable reason from a
// UserOperationRevertReason log.
func DecodeRevertReason(l Log) (string, error) {
	values, err := revertReasonArgs.Unpack(l.Data)
	if err != nil {
		return "", errors.Wrap(err, "failed to unpack revert reason")
	}
	raw, _ := values[1].([]byte)
	return revertString(raw), nil
}

func revertString(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	if len(raw) >= 4 && string(raw[:4]) == string(errorSelector) {
		if reason, err := abi.UnpackRevert(raw); err == nil {
			return reason
		}
	}
	return fmt.Sprintf("reverted with data %s", hexutil.Encode(raw))
}

// Outcome is the decided result of an operation.
type Outcome struct {
	Success bool
	TxHash  common.Hash
	Reason  string
}

// Decide derives the outcome of receipt. The bundler flag is the default, a
// decoded UserOperationEvent overrides it. Failure reasons come from the
// bundler, then the revert reason event, then defaultReason.
func Decide(receipt *Receipt, defaultReason string) Outcome {
	out := Outcome{Success: receipt.Success, TxHash: receipt.Receipt.TransactionHash}
	logs := receipt.AllLogs()
	log := logger.WithFields(logger.Fields{"userOpHash": receipt.UserOpHash.Hex()})

	if event, ok := ScanLogs(UserOperationEvent, receipt.UserOpHash, logs); ok {
		success, err := UserOperationEvent.Success(event)
		if err != nil {
			log.Warnf("could not decode %s: %v", UserOperationEvent.Name, err)
		} else {
			if success != receipt.Success {
				log.WithField("bundlerSuccess", receipt.Success).Warn("bundler success flag disagrees with UserOperationEvent")
			}
			out.Success = success
		}
	}
	if out.Success {
		return out
	}

	out.Reason = receipt.Reason
	if out.Reason == "" {
		if revert, ok := ScanLogs(UserOperationRevertReason, receipt.UserOpHash, logs); ok {
			if reason, err := DecodeRevertReason(revert); err == nil {
				out.Reason = reason
			}
		}
	}
	if out.Reason == "" {
		out.Reason = defaultReason
	}
	return out
}
