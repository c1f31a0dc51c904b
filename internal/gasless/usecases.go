package gasless

import (
	"context"
	"math/big"
	"time"

	"github.com/compose-network/gasless/internal/batch"
	"github.com/compose-network/gasless/internal/helpers"
	"github.com/compose-network/gasless/internal/smartaccount"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// Use case labels, also used as metric labels.
const (
	UsecaseTransfer          = "transfer"
	UsecaseBatchTransfer     = "batch_transfer"
	UsecaseSwapTransfer      = "swap_transfer"
	UsecaseSwapBatchTransfer = "swap_batch_transfer"
	UsecaseInvoice           = "invoice"
	UsecaseMultiTokenInvoice = "multi_token_invoice"
	UsecaseActivation        = "activation"
	UsecaseFaucet            = "faucet"
	UsecaseQrisRegistration  = "qris_registration"
)

// Payout is one recipient with a decimal amount such as "10.5".
type Payout struct {
	Recipient common.Address
	Amount    string
}

type TransferRequest struct {
	Token     Token
	Recipient common.Address
	Amount    string
}

type BatchTransferRequest struct {
	Token   Token
	Payouts []Payout
}

// SwapTransferRequest delivers Amount of TokenOut to Recipient by swapping
// TokenIn. AmountIn is the quoted total the user pays in TokenIn, fees
// included. Gas is paid in TokenIn.
type SwapTransferRequest struct {
	TokenIn   Token
	TokenOut  Token
	Recipient common.Address
	Amount    string
	AmountIn  string
}

type SwapBatchTransferRequest struct {
	TokenIn  Token
	TokenOut Token
	Payouts  []Payout
	AmountIn string
}

// InvoiceRequest pays a merchant signed request in PayToken. QuotedTotal is
// the processor quote in PayToken base units.
type InvoiceRequest struct {
	Request           batch.PaymentRequest
	MerchantSignature []byte
	PayToken          Token
	QuotedTotal       *big.Int
}

type Contribution struct {
	Token  Token
	Amount string
}

// MultiTokenInvoiceRequest splits a payment across tokens. Gas is paid in
// the token of the first contribution.
type MultiTokenInvoiceRequest struct {
	Request           batch.PaymentRequest
	MerchantSignature []byte
	Contributions     []Contribution
}

type QrisRequest struct {
	Payload      string
	MerchantName string
	MerchantCity string
	GasToken     Token
}

func (o *Orchestrator) SendGaslessTransfer(ctx context.Context, req TransferRequest) (*Result, error) {
	var (
		b      *batch.Batch
		amount *big.Int
	)
	return o.execute(ctx, plan{
		usecase:  UsecaseTransfer,
		failure:  "Transfer failed",
		gasToken: req.Token,
		validate: func(time.Time) error {
			var err error
			if amount, err = parseAmount(req.Token, req.Amount); err != nil {
				return err
			}
			b, err = o.composer.Transfer(req.Token.Address, req.Recipient, amount)
			return err
		},
		compose: func(context.Context, *smartaccount.Account) (*batch.Batch, *big.Int, error) {
			return b, amount, nil
		},
	})
}

func (o *Orchestrator) SendBatchTransfer(ctx context.Context, req BatchTransferRequest) (*Result, error) {
	var (
		b          *batch.Batch
		recipients []batch.Recipient
	)
	return o.execute(ctx, plan{
		usecase:  UsecaseBatchTransfer,
		failure:  "Batch transfer failed",
		gasToken: req.Token,
		validate: func(time.Time) error {
			var err error
			if recipients, err = parsePayouts(req.Token, req.Payouts); err != nil {
				return err
			}
			b, err = o.composer.BatchTransfer(req.Token.Address, recipients)
			return err
		},
		compose: func(context.Context, *smartaccount.Account) (*batch.Batch, *big.Int, error) {
			return b, batch.Total(recipients), nil
		},
	})
}

func (o *Orchestrator) SwapAndTransfer(ctx context.Context, req SwapTransferRequest) (*Result, error) {
	var amountOut, amountIn *big.Int
	return o.execute(ctx, plan{
		usecase:  UsecaseSwapTransfer,
		failure:  "Swap failed",
		gasToken: req.TokenIn,
		validate: func(time.Time) error {
			if req.Recipient == (common.Address{}) {
				return batch.ErrInvalidRecipient
			}
			var err error
			if amountOut, err = parseAmount(req.TokenOut, req.Amount); err != nil {
				return err
			}
			amountIn, err = parseAmount(req.TokenIn, req.AmountIn)
			return err
		},
		compose: func(ctx context.Context, acc *smartaccount.Account) (*batch.Batch, *big.Int, error) {
			swap, err := o.swap(ctx, acc.Address, req.TokenIn, req.TokenOut, amountIn, amountOut)
			if err != nil {
				return nil, nil, err
			}
			b, err := o.composer.SwapAndTransfer(swap, req.Recipient)
			return b, amountIn, err
		},
	})
}

func (o *Orchestrator) SwapAndBatchTransfer(ctx context.Context, req SwapBatchTransferRequest) (*Result, error) {
	var (
		recipients []batch.Recipient
		amountIn   *big.Int
	)
	return o.execute(ctx, plan{
		usecase:  UsecaseSwapBatchTransfer,
		failure:  "Swap failed",
		gasToken: req.TokenIn,
		validate: func(time.Time) error {
			var err error
			if recipients, err = parsePayouts(req.TokenOut, req.Payouts); err != nil {
				return err
			}
			if err = batch.ValidateRecipients(recipients); err != nil {
				return err
			}
			amountIn, err = parseAmount(req.TokenIn, req.AmountIn)
			return err
		},
		compose: func(ctx context.Context, acc *smartaccount.Account) (*batch.Batch, *big.Int, error) {
			swap, err := o.swap(ctx, acc.Address, req.TokenIn, req.TokenOut, amountIn, batch.Total(recipients))
			if err != nil {
				return nil, nil, err
			}
			b, err := o.composer.SwapAndBatchTransfer(swap, recipients)
			return b, amountIn, err
		},
	})
}

func (o *Orchestrator) PayInvoice(ctx context.Context, req InvoiceRequest) (*Result, error) {
	return o.execute(ctx, plan{
		usecase:  UsecaseInvoice,
		failure:  "Payment failed",
		gasToken: req.PayToken,
		validate: func(now time.Time) error {
			if req.Request.Expired(now) {
				return batch.ErrRequestExpired
			}
			if req.QuotedTotal == nil || req.QuotedTotal.Sign() <= 0 {
				return errors.Wrap(batch.ErrInvalidAmount, "quoted total")
			}
			return nil
		},
		compose: func(ctx context.Context, acc *smartaccount.Account) (*batch.Batch, *big.Int, error) {
			current, err := o.allowance(ctx, req.PayToken.Address, acc.Address, o.cfg.Contracts.PaymentProcessor)
			if err != nil {
				return nil, nil, err
			}
			b, err := o.composer.PayInvoice(batch.Invoice{
				Request:           req.Request,
				MerchantSignature: req.MerchantSignature,
				PayToken:          req.PayToken.Address,
				QuotedTotal:       req.QuotedTotal,
				CurrentAllowance:  current,
			}, o.now())
			return b, o.composer.MaxAmountToPay(req.QuotedTotal), err
		},
	})
}

func (o *Orchestrator) PayMultiTokenInvoice(ctx context.Context, req MultiTokenInvoiceRequest) (*Result, error) {
	var contributions []batch.Contribution
	var gasToken Token
	if len(req.Contributions) > 0 {
		gasToken = req.Contributions[0].Token
	}
	return o.execute(ctx, plan{
		usecase:  UsecaseMultiTokenInvoice,
		failure:  "Payment failed",
		gasToken: gasToken,
		validate: func(now time.Time) error {
			if req.Request.Expired(now) {
				return batch.ErrRequestExpired
			}
			if len(req.Contributions) == 0 {
				return batch.ErrNoContributions
			}
			contributions = make([]batch.Contribution, 0, len(req.Contributions))
			for _, c := range req.Contributions {
				amount, err := parseAmount(c.Token, c.Amount)
				if err != nil {
					return errors.Wrapf(err, "contribution in %s", c.Token.Symbol)
				}
				contributions = append(contributions, batch.Contribution{Token: c.Token.Address, Amount: amount})
			}
			return nil
		},
		compose: func(ctx context.Context, acc *smartaccount.Account) (*batch.Batch, *big.Int, error) {
			allowances, err := o.allowances(ctx, acc.Address, o.cfg.Contracts.PaymentProcessor,
				lo.Uniq(lo.Map(contributions, func(c batch.Contribution, _ int) common.Address { return c.Token })))
			if err != nil {
				return nil, nil, err
			}
			for i := range contributions {
				contributions[i].CurrentAllowance = allowances[contributions[i].Token]
			}

			b, err := o.composer.PayMultiTokenInvoice(batch.MultiTokenInvoice{
				Request:           req.Request,
				MerchantSignature: req.MerchantSignature,
				Contributions:     contributions,
			}, o.now())
			spend := lo.Reduce(contributions, func(sum *big.Int, c batch.Contribution, _ int) *big.Int {
				if c.Token == gasToken.Address {
					sum.Add(sum, c.Amount)
				}
				return sum
			}, new(big.Int))
			return b, spend, err
		},
	})
}

// ApprovePaymaster activates token for gas payments by granting the
// paymaster an unlimited allowance. The activation itself is sponsored.
func (o *Orchestrator) ApprovePaymaster(ctx context.Context, token Token) (*Result, error) {
	return o.execute(ctx, plan{
		usecase:    UsecaseActivation,
		failure:    "Activation failed",
		gasToken:   token,
		activation: true,
		compose: func(context.Context, *smartaccount.Account) (*batch.Batch, *big.Int, error) {
			b, err := o.composer.Activation(token.Address)
			return b, new(big.Int), err
		},
	})
}

// ClaimFaucet claims test tokens. Fresh accounts hold nothing yet, so the
// affordability check is skipped.
func (o *Orchestrator) ClaimFaucet(ctx context.Context, token Token) (*Result, error) {
	return o.execute(ctx, plan{
		usecase:       UsecaseFaucet,
		failure:       "Faucet claim failed",
		gasToken:      token,
		skipPreflight: true,
		compose: func(context.Context, *smartaccount.Account) (*batch.Batch, *big.Int, error) {
			b, err := o.composer.FaucetClaim(token.Address)
			return b, new(big.Int), err
		},
	})
}

func (o *Orchestrator) RegisterQris(ctx context.Context, req QrisRequest) (*Result, error) {
	var b *batch.Batch
	return o.execute(ctx, plan{
		usecase:  UsecaseQrisRegistration,
		failure:  "Registration failed",
		gasToken: req.GasToken,
		validate: func(time.Time) error {
			var err error
			b, err = o.composer.RegisterQris(batch.QrisRegistration{
				Payload:      req.Payload,
				MerchantName: req.MerchantName,
				MerchantCity: req.MerchantCity,
			})
			return err
		},
		compose: func(context.Context, *smartaccount.Account) (*batch.Batch, *big.Int, error) {
			return b, new(big.Int), nil
		},
	})
}

func (o *Orchestrator) swap(ctx context.Context, owner common.Address, in, out Token, amountIn, minOut *big.Int) (batch.Swap, error) {
	current, err := o.allowance(ctx, in.Address, owner, o.cfg.Contracts.SwapPool)
	if err != nil {
		return batch.Swap{}, err
	}
	return batch.Swap{
		TokenIn:          in.Address,
		TokenOut:         out.Address,
		AmountIn:         amountIn,
		MinAmountOut:     minOut,
		CurrentAllowance: current,
	}, nil
}

func (o *Orchestrator) allowances(ctx context.Context, owner, spender common.Address, tokens []common.Address) (map[common.Address]*big.Int, error) {
	out := make([]*big.Int, len(tokens))
	g, gctx := errgroup.WithContext(ctx)
	for i, token := range tokens {
		i, token := i, token
		g.Go(func() error {
			v, err := o.allowance(gctx, token, owner, spender)
			out[i] = v
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	byToken := make(map[common.Address]*big.Int, len(tokens))
	for i, token := range tokens {
		byToken[token] = out[i]
	}
	return byToken, nil
}

func parseAmount(token Token, value string) (*big.Int, error) {
	amount, err := helpers.ParseUnits(value, token.Decimals)
	if err != nil {
		return nil, errors.Wrap(batch.ErrInvalidAmount, err.Error())
	}
	if amount.Sign() <= 0 {
		return nil, batch.ErrInvalidAmount
	}
	return amount, nil
}

func parsePayouts(token Token, payouts []Payout) ([]batch.Recipient, error) {
	recipients := make([]batch.Recipient, 0, len(payouts))
	for _, p := range payouts {
		amount, err := parseAmount(token, p.Amount)
		if err != nil {
			return nil, errors.Wrapf(err, "recipient %s", p.Recipient.Hex())
		}
		recipients = append(recipients, batch.Recipient{Address: p.Recipient, Amount: amount})
	}
	return recipients, nil
}
