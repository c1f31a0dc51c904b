package batch

import (
	"math/big"
	"strings"
	"time"

	"github.com/compose-network/gasless/configs"
	"github.com/compose-network/gasless/internal/helpers"
	"github.com/compose-network/gasless/internal/smartaccount"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// MaxRecipients is the recipient cap of a batch transfer.
const MaxRecipients = 20

// Call gas budgets.
const (
	GasTransfer         = 150_000
	GasBatchBase        = 100_000
	GasPerRecipient     = 65_000
	GasSwap             = 450_000
	GasApprove          = 60_000
	GasInvoice          = 400_000
	GasPerInvoiceToken  = 120_000
	GasActivation       = 120_000
	GasFaucetClaim      = 150_000
	GasQrisRegistration = 300_000
)

// DefaultSlippageBps is the tolerance applied to invoice quotes.
const DefaultSlippageBps = 100

var (
	ErrRecipientCount         = errors.Errorf("batch transfer needs between 1 and %d recipients", MaxRecipients)
	ErrDuplicateRecipient     = errors.New("duplicate recipient address")
	ErrInvalidAmount          = errors.New("amount must be greater than zero")
	ErrInvalidRecipient       = errors.New("recipient must not be the zero address")
	ErrRequestExpired         = errors.New("payment request has expired")
	ErrInsufficientSwapOutput = errors.New("swap output does not cover the transfers")
	ErrNoContributions        = errors.New("multi-token payment needs at least one contribution")
	ErrInvalidMerchant        = errors.New("merchant name and city are required")
	ErrEmptyPayload           = errors.New("QRIS payload is empty")
)

// Batch is an ordered, all-or-nothing list of calls and the call gas limit
// budgeted for it.
type Batch struct {
	Calls    []smartaccount.Call
	GasLimit *big.Int
}

type Recipient struct {
	Address common.Address
	Amount  *big.Int
}

// Swap is a quoted swap. AmountIn is what the user pays in TokenIn.
type Swap struct {
	TokenIn          common.Address
	TokenOut         common.Address
	AmountIn         *big.Int
	MinAmountOut     *big.Int
	CurrentAllowance *big.Int
}

// PaymentRequest is a merchant signed invoice.
type PaymentRequest struct {
	Recipient       common.Address
	RequestedToken  common.Address
	RequestedAmount *big.Int
	Deadline        *big.Int
	Nonce           [32]byte
	MerchantSigner  common.Address
}

// Expired reports whether the request deadline is before now.
func (r PaymentRequest) Expired(now time.Time) bool {
	if r.Deadline == nil {
		return true
	}
	return r.Deadline.Cmp(big.NewInt(now.Unix())) < 0
}

type Invoice struct {
	Request           PaymentRequest
	MerchantSignature []byte
	PayToken          common.Address
	// QuotedTotal is what the processor quoted in PayToken.
	QuotedTotal      *big.Int
	CurrentAllowance *big.Int
}

type Contribution struct {
	Token            common.Address
	Amount           *big.Int
	CurrentAllowance *big.Int
}

type MultiTokenInvoice struct {
	Request           PaymentRequest
	MerchantSignature []byte
	Contributions     []Contribution
}

type QrisRegistration struct {
	Payload      string
	MerchantName string
	MerchantCity string
}

// Contracts are the targets the composer calls into.
type Contracts struct {
	SwapPool         common.Address
	PaymentProcessor common.Address
	QrisRegistry     common.Address
	Faucet           common.Address
	Paymaster        common.Address
}

func ContractsFromApp(app *configs.App) Contracts {
	return Contracts{
		SwapPool:         app.Contract(configs.ContractNameSwapPool),
		PaymentProcessor: app.Contract(configs.ContractNamePaymentProcessor),
		QrisRegistry:     app.Contract(configs.ContractNameQrisRegistry),
		Faucet:           app.Contract(configs.ContractNameFaucet),
		Paymaster:        app.Contract(configs.ContractNamePaymaster),
	}
}

// Composer builds the call batch of each use case.
type Composer struct {
	contracts   Contracts
	slippageBps int64
}

func NewComposer(contracts Contracts, slippageBps int64) *Composer {
	if slippageBps <= 0 {
		slippageBps = DefaultSlippageBps
	}
	return &Composer{contracts: contracts, slippageBps: slippageBps}
}

func (c *Composer) Transfer(token, recipient common.Address, amount *big.Int) (*Batch, error) {
	call, err := transferCall(token, Recipient{Address: recipient, Amount: amount})
	if err != nil {
		return nil, err
	}
	return &Batch{Calls: []smartaccount.Call{call}, GasLimit: big.NewInt(GasTransfer)}, nil
}

func (c *Composer) BatchTransfer(token common.Address, recipients []Recipient) (*Batch, error) {
	calls, err := transferCalls(token, recipients)
	if err != nil {
		return nil, err
	}
	return &Batch{Calls: calls, GasLimit: gas(GasBatchBase + GasPerRecipient*len(recipients))}, nil
}

func (c *Composer) SwapAndTransfer(swap Swap, recipient common.Address) (*Batch, error) {
	if err := validateSwap(swap); err != nil {
		return nil, err
	}
	transfer, err := transferCall(swap.TokenOut, Recipient{Address: recipient, Amount: swap.MinAmountOut})
	if err != nil {
		return nil, err
	}

	calls, budget, err := c.swapCalls(swap)
	if err != nil {
		return nil, err
	}
	calls = append(calls, transfer)
	return &Batch{Calls: calls, GasLimit: gas(budget)}, nil
}

func (c *Composer) SwapAndBatchTransfer(swap Swap, recipients []Recipient) (*Batch, error) {
	if err := validateSwap(swap); err != nil {
		return nil, err
	}
	transfers, err := transferCalls(swap.TokenOut, recipients)
	if err != nil {
		return nil, err
	}
	total := Total(recipients)
	if swap.MinAmountOut.Cmp(total) < 0 {
		return nil, errors.Wrapf(ErrInsufficientSwapOutput, "min out %s, transfers %s", swap.MinAmountOut, total)
	}

	calls, budget, err := c.swapCalls(swap)
	if err != nil {
		return nil, err
	}
	calls = append(calls, transfers...)
	return &Batch{Calls: calls, GasLimit: gas(budget + GasPerRecipient*len(recipients))}, nil
}

func (c *Composer) swapCalls(swap Swap) ([]smartaccount.Call, int, error) {
	var (
		calls  []smartaccount.Call
		budget = GasSwap
	)
	if needsApproval(swap.CurrentAllowance, swap.AmountIn) {
		approve, err := approveCall(swap.TokenIn, c.contracts.SwapPool)
		if err != nil {
			return nil, 0, err
		}
		calls = append(calls, approve)
		budget += GasApprove
	}

	data, err := SwapPoolABI.Pack("swap", swap.AmountIn, swap.TokenIn, swap.TokenOut, swap.MinAmountOut)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to pack swap")
	}
	return append(calls, smartaccount.Call{To: c.contracts.SwapPool, Data: data}), budget, nil
}

// MaxAmountToPay is the quoted total inflated by the slippage tolerance,
// rounded up.
func (c *Composer) MaxAmountToPay(quotedTotal *big.Int) *big.Int {
	return helpers.MulBpsCeil(quotedTotal, c.slippageBps)
}

func (c *Composer) PayInvoice(inv Invoice, now time.Time) (*Batch, error) {
	if inv.Request.Expired(now) {
		return nil, ErrRequestExpired
	}
	if !positive(inv.QuotedTotal) {
		return nil, errors.Wrap(ErrInvalidAmount, "quoted total")
	}

	maxAmount := c.MaxAmountToPay(inv.QuotedTotal)
	var (
		calls  []smartaccount.Call
		budget = GasInvoice
	)
	if needsApproval(inv.CurrentAllowance, maxAmount) {
		approve, err := approveCall(inv.PayToken, c.contracts.PaymentProcessor)
		if err != nil {
			return nil, err
		}
		calls = append(calls, approve)
		budget += GasApprove
	}

	data, err := PaymentProcessorABI.Pack("executePayment", inv.Request.abi(), inv.MerchantSignature, inv.PayToken, maxAmount)
	if err != nil {
		return nil, errors.Wrap(err, "failed to pack executePayment")
	}
	calls = append(calls, smartaccount.Call{To: c.contracts.PaymentProcessor, Data: data})
	return &Batch{Calls: calls, GasLimit: gas(budget)}, nil
}

func (c *Composer) PayMultiTokenInvoice(inv MultiTokenInvoice, now time.Time) (*Batch, error) {
	if inv.Request.Expired(now) {
		return nil, ErrRequestExpired
	}
	if len(inv.Contributions) == 0 {
		return nil, ErrNoContributions
	}
	for _, contribution := range inv.Contributions {
		if !positive(contribution.Amount) {
			return nil, errors.Wrapf(ErrInvalidAmount, "contribution in %s", contribution.Token.Hex())
		}
	}

	// one approve per distinct token, in first seen order
	var (
		calls  []smartaccount.Call
		budget = GasInvoice + GasPerInvoiceToken*len(inv.Contributions)
	)
	perToken := lo.GroupBy(inv.Contributions, func(c Contribution) common.Address { return c.Token })
	for _, token := range lo.Uniq(lo.Map(inv.Contributions, func(c Contribution, _ int) common.Address { return c.Token })) {
		group := perToken[token]
		needed := lo.Reduce(group, func(sum *big.Int, c Contribution, _ int) *big.Int {
			return sum.Add(sum, c.Amount)
		}, new(big.Int))
		if !needsApproval(group[0].CurrentAllowance, needed) {
			continue
		}
		approve, err := approveCall(token, c.contracts.PaymentProcessor)
		if err != nil {
			return nil, err
		}
		calls = append(calls, approve)
		budget += GasApprove
	}

	type payment struct {
		Token  common.Address
		Amount *big.Int
	}
	payments := lo.Map(inv.Contributions, func(c Contribution, _ int) payment {
		return payment{Token: c.Token, Amount: c.Amount}
	})
	data, err := PaymentProcessorABI.Pack("executeMultiTokenPayment", inv.Request.abi(), inv.MerchantSignature, payments)
	if err != nil {
		return nil, errors.Wrap(err, "failed to pack executeMultiTokenPayment")
	}
	calls = append(calls, smartaccount.Call{To: c.contracts.PaymentProcessor, Data: data})
	return &Batch{Calls: calls, GasLimit: gas(budget)}, nil
}

// Activation grants the paymaster an unlimited allowance in token.
func (c *Composer) Activation(token common.Address) (*Batch, error) {
	approve, err := approveCall(token, c.contracts.Paymaster)
	if err != nil {
		return nil, err
	}
	return &Batch{Calls: []smartaccount.Call{approve}, GasLimit: big.NewInt(GasActivation)}, nil
}

func (c *Composer) FaucetClaim(token common.Address) (*Batch, error) {
	data, err := FaucetABI.Pack("claim", token)
	if err != nil {
		return nil, errors.Wrap(err, "failed to pack claim")
	}
	return &Batch{
		Calls:    []smartaccount.Call{{To: c.contracts.Faucet, Data: data}},
		GasLimit: big.NewInt(GasFaucetClaim),
	}, nil
}

func (c *Composer) RegisterQris(reg QrisRegistration) (*Batch, error) {
	payload := strings.TrimSpace(reg.Payload)
	if payload == "" {
		return nil, ErrEmptyPayload
	}
	name, city := strings.TrimSpace(reg.MerchantName), strings.TrimSpace(reg.MerchantCity)
	if name == "" || city == "" {
		return nil, ErrInvalidMerchant
	}

	data, err := QrisRegistryABI.Pack("registerQris", QrisHash(payload), name, city)
	if err != nil {
		return nil, errors.Wrap(err, "failed to pack registerQris")
	}
	return &Batch{
		Calls:    []smartaccount.Call{{To: c.contracts.QrisRegistry, Data: data}},
		GasLimit: big.NewInt(GasQrisRegistration),
	}, nil
}

// QrisHash is the registry key of a QRIS payload.
func QrisHash(payload string) common.Hash {
	return crypto.Keccak256Hash([]byte(strings.TrimSpace(payload)))
}

// Total sums the recipient amounts.
func Total(recipients []Recipient) *big.Int {
	return lo.Reduce(recipients, func(sum *big.Int, r Recipient, _ int) *big.Int {
		if r.Amount == nil {
			return sum
		}
		return sum.Add(sum, r.Amount)
	}, new(big.Int))
}

type requestTuple struct {
	Recipient       common.Address
	RequestedToken  common.Address
	RequestedAmount *big.Int
	Deadline        *big.Int
	Nonce           [32]byte
	MerchantSigner  common.Address
}

func (r PaymentRequest) abi() requestTuple {
	return requestTuple{
		Recipient:       r.Recipient,
		RequestedToken:  r.RequestedToken,
		RequestedAmount: orZero(r.RequestedAmount),
		Deadline:        orZero(r.Deadline),
		Nonce:           r.Nonce,
		MerchantSigner:  r.MerchantSigner,
	}
}

// ValidateRecipients checks the recipient count and uniqueness of a batch
// transfer.
func ValidateRecipients(recipients []Recipient) error {
	if len(recipients) == 0 || len(recipients) > MaxRecipients {
		return errors.Wrapf(ErrRecipientCount, "got %d", len(recipients))
	}
	if dups := lo.FindDuplicatesBy(recipients, func(r Recipient) common.Address { return r.Address }); len(dups) > 0 {
		return errors.Wrapf(ErrDuplicateRecipient, "%s", dups[0].Address.Hex())
	}
	return nil
}

func transferCalls(token common.Address, recipients []Recipient) ([]smartaccount.Call, error) {
	if err := ValidateRecipients(recipients); err != nil {
		return nil, err
	}

	calls := make([]smartaccount.Call, 0, len(recipients))
	for _, r := range recipients {
		call, err := transferCall(token, r)
		if err != nil {
			return nil, err
		}
		calls = append(calls, call)
	}
	return calls, nil
}

func transferCall(token common.Address, r Recipient) (smartaccount.Call, error) {
	if r.Address == (common.Address{}) {
		return smartaccount.Call{}, ErrInvalidRecipient
	}
	if !positive(r.Amount) {
		return smartaccount.Call{}, errors.Wrapf(ErrInvalidAmount, "recipient %s", r.Address.Hex())
	}
	data, err := helpers.TransferCallData(r.Address, r.Amount)
	if err != nil {
		return smartaccount.Call{}, err
	}
	return smartaccount.Call{To: token, Data: data}, nil
}

func approveCall(token, spender common.Address) (smartaccount.Call, error) {
	data, err := helpers.ApproveCallData(spender, helpers.MaxUint256)
	if err != nil {
		return smartaccount.Call{}, err
	}
	return smartaccount.Call{To: token, Data: data}, nil
}

func validateSwap(swap Swap) error {
	if !positive(swap.AmountIn) {
		return errors.Wrap(ErrInvalidAmount, "swap input")
	}
	if !positive(swap.MinAmountOut) {
		return errors.Wrap(ErrInvalidAmount, "swap output")
	}
	if swap.TokenIn == swap.TokenOut {
		return errors.New("swap tokens must differ")
	}
	return nil
}

func needsApproval(current, needed *big.Int) bool {
	return current == nil || current.Cmp(needed) < 0
}

func positive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func gas(v int) *big.Int {
	return big.NewInt(int64(v))
}
