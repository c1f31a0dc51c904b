package gasless

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/compose-network/gasless/configs"
	"github.com/compose-network/gasless/internal/accounts"
	"github.com/compose-network/gasless/internal/batch"
	"github.com/compose-network/gasless/internal/bundler"
	"github.com/compose-network/gasless/internal/chain"
	"github.com/compose-network/gasless/internal/errnorm"
	"github.com/compose-network/gasless/internal/fees"
	"github.com/compose-network/gasless/internal/helpers"
	"github.com/compose-network/gasless/internal/logger"
	"github.com/compose-network/gasless/internal/metrics"
	"github.com/compose-network/gasless/internal/paymaster"
	"github.com/compose-network/gasless/internal/smartaccount"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// Status strings reported while an operation runs.
const (
	StatusCheckingBalance   = "Checking balance…"
	StatusRequestingSponsor = "Requesting paymaster signature…"
	StatusSubmitting        = "Submitting…"
	StatusWaiting           = "Waiting for execution…"
	StatusConfirmed         = "Confirmed"
	StatusFailed            = "Failed"
)

// StatusFunc receives every status change.
type StatusFunc func(status string)

// Authorizer issues paymaster authorizations.
type Authorizer interface {
	Authorize(ctx context.Context, req paymaster.IssueRequest) (paymaster.Authorization, error)
}

// Bundler submits operations and serves their receipts.
type Bundler interface {
	smartaccount.Submitter
	bundler.ReceiptSource
}

// Config is the immutable configuration of an orchestrator.
type Config struct {
	Session         smartaccount.Config
	Contracts       batch.Contracts
	SlippageBps     int64
	ValidityWindow  time.Duration
	ClockSkew       time.Duration
	BundlerProvider string
	PollInterval    time.Duration
	PollAttempts    uint
}

func ConfigFromApp(app *configs.App) Config {
	return Config{
		Session:         smartaccount.ConfigFromApp(app),
		Contracts:       batch.ContractsFromApp(app),
		SlippageBps:     app.Paymaster.SlippageBps,
		ValidityWindow:  app.Paymaster.ValidityWindow,
		ClockSkew:       app.Paymaster.ClockSkew,
		BundlerProvider: app.Network.BundlerProvider,
		PollInterval:    app.Polling.Interval,
		PollAttempts:    app.Polling.Attempts,
	}
}

// Token identifies an ERC-20 with the metadata needed to parse and format
// amounts.
type Token struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
}

// Result is a confirmed operation.
type Result struct {
	TxHash     common.Hash
	UserOpHash common.Hash
	Sender     common.Address
}

// ExecutionError reports an operation that was included but reverted.
type ExecutionError struct {
	Reason string
	TxHash common.Hash
}

func (e *ExecutionError) Error() string {
	return e.Reason
}

type Option func(*Orchestrator)

func WithStatusFunc(fn StatusFunc) Option {
	return func(o *Orchestrator) { o.onStatus = fn }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClock overrides the wall clock used for authorization windows and
// invoice deadlines.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator runs the gasless use cases for one signing identity.
type Orchestrator struct {
	cfg        Config
	reader     *chain.Reader
	fees       *fees.Estimator
	preflight  *paymaster.Preflight
	issuer     Authorizer
	composer   *batch.Composer
	bundler    Bundler
	poller     *bundler.Poller
	normalizer errnorm.Normalizer
	metrics    *metrics.Metrics
	onStatus   StatusFunc
	now        func() time.Time

	mu        sync.Mutex
	signer    accounts.Signer
	session   *smartaccount.Session
	status    string
	lastError string
}

func New(cfg Config, backend chain.Backend, issuer Authorizer, bnd Bundler, signer accounts.Signer, opts ...Option) (*Orchestrator, error) {
	if backend == nil || issuer == nil || bnd == nil {
		return nil, errors.New("backend, issuer and bundler are required")
	}
	if cfg.ValidityWindow <= 0 {
		cfg.ValidityWindow = time.Hour
	}
	if cfg.ClockSkew < 0 {
		cfg.ClockSkew = 0
	}

	reader := chain.NewReader(backend)
	o := &Orchestrator{
		cfg:        cfg,
		reader:     reader,
		fees:       fees.NewEstimator(backend),
		preflight:  paymaster.NewPreflight(reader, cfg.Session.Paymaster),
		issuer:     issuer,
		composer:   batch.NewComposer(cfg.Contracts, cfg.SlippageBps),
		bundler:    bnd,
		poller:     bundler.NewPoller(bnd, cfg.PollInterval, cfg.PollAttempts),
		normalizer: errnorm.New(cfg.BundlerProvider),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.poller.OnAttempt = func(uint) { o.metrics.ReceiptPollAttempt() }

	if err := o.SetSigner(signer); err != nil {
		return nil, err
	}
	return o, nil
}

// SetSigner binds a new signing identity and drops the cached smart account.
func (o *Orchestrator) SetSigner(signer accounts.Signer) error {
	session, err := smartaccount.NewSession(o.cfg.Session, o.reader, signer, o.bundler)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session != nil {
		o.session.Reset()
	}
	o.signer = signer
	o.session = session
	o.status = ""
	o.lastError = ""
	return nil
}

func (o *Orchestrator) Signer() accounts.Signer {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.signer
}

// Status is the last reported status string.
func (o *Orchestrator) Status() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// LastError is the normalized message of the last failure, empty after a
// success.
func (o *Orchestrator) LastError() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastError
}

// SessionStatus reports the smart account resolution state.
func (o *Orchestrator) SessionStatus() smartaccount.Status {
	return o.currentSession().Status()
}

// SmartAccountAddress resolves the counterfactual or deployed account.
func (o *Orchestrator) SmartAccountAddress(ctx context.Context) (common.Address, error) {
	acc, err := o.currentSession().Resolve(ctx)
	if err != nil {
		return common.Address{}, o.normalizer.Normalize(err)
	}
	return acc.Address, nil
}

func (o *Orchestrator) currentSession() *smartaccount.Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session
}

func (o *Orchestrator) setStatus(status string) {
	o.mu.Lock()
	o.status = status
	if status == StatusConfirmed {
		o.lastError = ""
	}
	o.mu.Unlock()

	if o.onStatus != nil {
		o.onStatus(status)
	}
}

// plan describes one use case run through the shared pipeline.
type plan struct {
	usecase       string
	failure       string
	gasToken      Token
	activation    bool
	skipPreflight bool
	// validate runs before any network access.
	validate      func(now time.Time) error
	// compose returns the batch and what it moves out of the account in
	// gasToken on top of gas.
	compose       func(ctx context.Context, acc *smartaccount.Account) (*batch.Batch, *big.Int, error)
}

func (o *Orchestrator) execute(ctx context.Context, p plan) (*Result, error) {
	started := time.Now()
	defer func() {
		o.metrics.ObserveDuration(p.usecase, time.Since(started))
	}()
	log := logger.WithFields(logger.Fields{"usecase": p.usecase, "token": p.gasToken.Symbol})

	if p.validate != nil {
		if err := p.validate(o.now()); err != nil {
			return nil, o.fail(p, metrics.StageValidation, err)
		}
	}

	o.setStatus(StatusCheckingBalance)
	session := o.currentSession()
	acc, err := session.Resolve(ctx)
	if err != nil {
		return nil, o.fail(p, metrics.StageAccount, err)
	}
	log = log.WithField("sender", acc.Address.Hex())

	b, spend, err := p.compose(ctx, acc)
	if err != nil {
		return nil, o.fail(p, metrics.StageCompose, err)
	}

	fee, err := o.fees.Estimate(ctx)
	if err != nil {
		return nil, o.fail(p, metrics.StageFees, err)
	}

	if !p.skipPreflight {
		_, err := o.preflight.Check(ctx, paymaster.Request{
			Token:        p.gasToken.Address,
			Account:      acc.Address,
			Amount:       spend,
			Decimals:     p.gasToken.Decimals,
			Symbol:       p.gasToken.Symbol,
			GasLimit:     o.totalGas(b.GasLimit),
			MaxFeePerGas: fee.MaxFeePerGas,
			Activation:   p.activation,
		})
		if err != nil {
			var rejection *paymaster.PreflightError
			if errors.As(err, &rejection) {
				o.metrics.PreflightRejected(string(rejection.Kind))
			}
			return nil, o.fail(p, metrics.StagePreflight, err)
		}
	}

	o.setStatus(StatusRequestingSponsor)
	paymasterData, err := o.authorize(ctx, acc.Address, p)
	if err != nil {
		return nil, o.fail(p, metrics.StageAuthorization, err)
	}

	o.setStatus(StatusSubmitting)
	handle, err := session.SubmitBatch(ctx, smartaccount.SubmitRequest{
		Calls:         b.Calls,
		PaymasterData: paymasterData,
		CallGasLimit:  b.GasLimit,
		Fees:          fee,
	})
	if err != nil {
		return nil, o.fail(p, metrics.StageSubmit, err)
	}
	o.metrics.Submitted(p.usecase)
	log = log.WithField("userOpHash", handle.UserOpHash.Hex())

	o.setStatus(StatusWaiting)
	outcome, err := o.poller.Wait(ctx, handle.UserOpHash, p.failure)
	if err != nil {
		return nil, o.fail(p, metrics.StageReceipt, err)
	}
	if !outcome.Success {
		return nil, o.fail(p, metrics.StageExecution, &ExecutionError{Reason: outcome.Reason, TxHash: outcome.TxHash})
	}

	if handle.Deploying {
		if state, err := session.ConfirmDeployment(ctx); err != nil || state != smartaccount.DeploymentConfirmed {
			log.Warnf("smart account deployment state %s: %v", state, err)
		}
	}

	o.setStatus(StatusConfirmed)
	log.WithField("txHash", outcome.TxHash.Hex()).Info("operation confirmed")
	return &Result{TxHash: outcome.TxHash, UserOpHash: handle.UserOpHash, Sender: handle.Sender}, nil
}

// authorize requests a fresh authorization for the payer and encodes it.
func (o *Orchestrator) authorize(ctx context.Context, payer common.Address, p plan) ([]byte, error) {
	now := o.now()
	auth, err := o.issuer.Authorize(ctx, paymaster.IssueRequest{
		Payer:      payer,
		Token:      p.gasToken.Address,
		ValidUntil: uint64(now.Add(o.cfg.ValidityWindow).Unix()),
		ValidAfter: uint64(now.Add(-o.cfg.ClockSkew).Unix()),
		Activation: p.activation,
	})
	if err != nil {
		return nil, err
	}
	if err := auth.Validate(uint64(now.Unix())); err != nil {
		return nil, err
	}
	return paymaster.EncodeAuthorization(auth)
}

// totalGas is everything the paymaster may be charged for.
func (o *Orchestrator) totalGas(callGas *big.Int) *big.Int {
	total := new(big.Int).Set(callGas)
	for _, g := range []*big.Int{
		o.cfg.Session.VerificationGasLimit,
		o.cfg.Session.PreVerificationGas,
		o.cfg.Session.PaymasterVerificationGasLimit,
		o.cfg.Session.PaymasterPostOpGasLimit,
	} {
		if g != nil {
			total.Add(total, g)
		}
	}
	return total
}

func (o *Orchestrator) fail(p plan, stage string, err error) error {
	normalized := o.normalizer.Normalize(err)
	o.metrics.Failed(p.usecase, stage)

	o.mu.Lock()
	o.lastError = normalized.Error()
	o.mu.Unlock()
	o.setStatus(StatusFailed)

	logger.WithFields(logger.Fields{"usecase": p.usecase, "stage": stage}).Errorf("%s: %v", p.failure, err)
	return normalized
}

func (o *Orchestrator) allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	return o.reader.ReadBigInt(ctx, token, helpers.ERC20ABI, "allowance", owner, spender)
}
