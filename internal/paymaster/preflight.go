package paymaster

import (
	"context"
	"fmt"
	"math/big"

	"github.com/compose-network/gasless/internal/chain"
	"github.com/compose-network/gasless/internal/helpers"
	"github.com/compose-network/gasless/internal/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

type RejectionKind string

const (
	KindUnsupportedToken     RejectionKind = "unsupported_token"
	KindActivationRequired   RejectionKind = "activation_required"
	KindReactivationRequired RejectionKind = "reactivation_required"
	KindInsufficientBalance  RejectionKind = "insufficient_balance"
)

// PreflightError is a local rejection raised before anything is submitted.
type PreflightError struct {
	Kind    RejectionKind
	Message string
	// Shortfall is set for KindInsufficientBalance, in token base units.
	Shortfall *big.Int
}

func (e *PreflightError) Error() string {
	return e.Message
}

// Request describes the spend to check. Amount is what the batch moves out of
// the account on top of gas, in base units of Token.
type Request struct {
	Token        common.Address
	Account      common.Address
	Amount       *big.Int
	Decimals     uint8
	Symbol       string
	GasLimit     *big.Int
	MaxFeePerGas *big.Int
	// Activation skips the allowance rules, the batch grants it.
	Activation bool
}

// Quote is what the chain reported during the check.
type Quote struct {
	GasCost   *big.Int
	Balance   *big.Int
	Allowance *big.Int
}

// Preflight verifies that an operation is affordable. It is advisory, the
// paymaster contract remains the authority.
type Preflight struct {
	reader    *chain.Reader
	paymaster common.Address
}

func NewPreflight(reader *chain.Reader, paymaster common.Address) *Preflight {
	return &Preflight{reader: reader, paymaster: paymaster}
}

func (p *Preflight) Check(ctx context.Context, req Request) (*Quote, error) {
	var (
		supported bool
		quote     = &Quote{}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		supported, err = p.reader.ReadBool(gctx, p.paymaster, ABI, "isSupportedToken", req.Token)
		return err
	})
	g.Go(func() error {
		var err error
		quote.Balance, err = p.reader.ReadBigInt(gctx, req.Token, helpers.ERC20ABI, "balanceOf", req.Account)
		return err
	})
	g.Go(func() error {
		var err error
		quote.Allowance, err = p.reader.ReadBigInt(gctx, req.Token, helpers.ERC20ABI, "allowance", req.Account, p.paymaster)
		return err
	})
	g.Go(func() error {
		var err error
		quote.GasCost, err = p.reader.ReadBigInt(gctx, p.paymaster, ABI, "estimateTotalCost", req.Token, req.GasLimit, req.MaxFeePerGas)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "affordability check failed")
	}

	if err := evaluate(req, supported, quote); err != nil {
		logger.WithFields(logger.Fields{
			"token":   req.Token.Hex(),
			"account": req.Account.Hex(),
			"kind":    string(err.Kind),
		}).Info("preflight rejected operation")
		return quote, err
	}
	return quote, nil
}

func evaluate(req Request, supported bool, q *Quote) *PreflightError {
	symbol := req.Symbol
	if symbol == "" {
		symbol = "token"
	}

	if !supported {
		return &PreflightError{
			Kind:    KindUnsupportedToken,
			Message: fmt.Sprintf("%s is not supported by the paymaster for gas payments", symbol),
		}
	}

	if !req.Activation {
		if q.Allowance.Sign() == 0 {
			return &PreflightError{
				Kind:    KindActivationRequired,
				Message: fmt.Sprintf("%s needs a one-time paymaster activation before it can pay for gas", symbol),
			}
		}
		if q.Allowance.Cmp(q.GasCost) < 0 {
			return &PreflightError{
				Kind: KindReactivationRequired,
				Message: fmt.Sprintf("paymaster allowance for %s (%s) is below the gas cost (%s), please re-activate",
					symbol, helpers.FormatUnits(q.Allowance, req.Decimals), helpers.FormatUnits(q.GasCost, req.Decimals)),
			}
		}
	}

	amount := req.Amount
	if amount == nil {
		amount = new(big.Int)
	}
	need := new(big.Int).Add(amount, q.GasCost)
	if q.Balance.Cmp(need) < 0 {
		shortfall := new(big.Int).Sub(need, q.Balance)
		return &PreflightError{
			Kind: KindInsufficientBalance,
			Message: fmt.Sprintf("Insufficient %s balance: need %s (amount %s + gas %s), have %s, short by %s %s",
				symbol,
				helpers.FormatUnits(need, req.Decimals),
				helpers.FormatUnits(amount, req.Decimals),
				helpers.FormatUnits(q.GasCost, req.Decimals),
				helpers.FormatUnits(q.Balance, req.Decimals),
				helpers.FormatUnits(shortfall, req.Decimals),
				symbol),
			Shortfall: shortfall,
		}
	}
	return nil
}
