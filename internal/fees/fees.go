package fees

import (
	"context"
	"math/big"

	"github.com/compose-network/gasless/internal/logger"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
)

var (
	bufferNum = big.NewInt(25)
	bufferDen = big.NewInt(10)

	baseFeeNum = big.NewInt(12)
	baseFeeDen = big.NewInt(10)
)

// Fees are EIP-1559 style gas prices for a user operation.
type Fees struct {
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// Source is the subset of the chain backend fee reads go through.
type Source interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

type Estimator struct {
	source Source
}

func NewEstimator(source Source) *Estimator {
	return &Estimator{source: source}
}

// Estimate reads live fee data, falling back to the flat gas price, and
// applies Buffer to both values.
func (e *Estimator) Estimate(ctx context.Context) (Fees, error) {
	maxFee, tip, err := e.live(ctx)
	if err != nil {
		logger.Warn("live fee estimate unavailable, falling back to gas price: %v", err)

		price, priceErr := e.source.SuggestGasPrice(ctx)
		if priceErr != nil {
			return Fees{}, errors.Wrap(priceErr, "failed to read gas price")
		}
		maxFee, tip = price, price
	}

	return Fees{
		MaxFeePerGas:         Buffer(maxFee),
		MaxPriorityFeePerGas: Buffer(tip),
	}, nil
}

func (e *Estimator) live(ctx context.Context) (maxFee, tip *big.Int, err error) {
	tip, err = e.source.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, errors.Wrap(err, "tip cap")
	}
	head, err := e.source.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, errors.Wrap(err, "latest header")
	}
	if head.BaseFee == nil {
		return nil, nil, errors.New("latest header has no base fee")
	}

	maxFee = new(big.Int).Mul(head.BaseFee, baseFeeNum)
	maxFee.Quo(maxFee, baseFeeDen)
	maxFee.Add(maxFee, tip)
	return maxFee, tip, nil
}

// Buffer returns v*2.5 in integer arithmetic, and at least v+1.
func Buffer(v *big.Int) *big.Int {
	if v == nil || v.Sign() < 0 {
		v = new(big.Int)
	}
	out := new(big.Int).Mul(v, bufferNum)
	out.Quo(out, bufferDen)
	if out.Cmp(v) <= 0 {
		out.Add(v, big.NewInt(1))
	}
	return out
}
