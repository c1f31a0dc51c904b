package smartaccount

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/Rican7/retry"
	"github.com/Rican7/retry/strategy"
	"github.com/compose-network/gasless/configs"
	"github.com/compose-network/gasless/internal/accounts"
	"github.com/compose-network/gasless/internal/chain"
	"github.com/compose-network/gasless/internal/fees"
	"github.com/compose-network/gasless/internal/helpers"
	"github.com/compose-network/gasless/internal/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

type Status int

const (
	StatusUninitialized Status = iota
	StatusResolving
	StatusReady
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusResolving:
		return "resolving"
	case StatusReady:
		return "ready"
	default:
		return "unknown"
	}
}

// DeploymentState tracks what is known about the account bytecode.
type DeploymentState int

const (
	DeploymentUnknown DeploymentState = iota
	// DeploymentCounterfactual means no bytecode yet, ops carry initCode.
	DeploymentCounterfactual
	DeploymentConfirmed
	// DeploymentUnverified means a deploying op succeeded but no bytecode
	// showed up within the confirmation window.
	DeploymentUnverified
)

func (d DeploymentState) String() string {
	switch d {
	case DeploymentCounterfactual:
		return "counterfactual"
	case DeploymentConfirmed:
		return "confirmed"
	case DeploymentUnverified:
		return "unverified"
	default:
		return "unknown"
	}
}

var (
	ErrUnsupportedEntryPoint = errors.New("unsupported entry point version")
	ErrDeploymentUnverified  = errors.New("smart account bytecode not found after deployment")
)

// Account is a resolved smart account.
type Account struct {
	Address  common.Address
	Deployed bool
	// InitCode is factory | createAccount(owner, salt) while undeployed.
	InitCode []byte
}

// Submitter hands a signed operation to a bundler.
type Submitter interface {
	SendUserOperation(ctx context.Context, op *UserOp, entryPoint common.Address) (common.Hash, error)
}

// SubmitRequest is one atomic batch with its sponsorship data.
type SubmitRequest struct {
	Calls         []Call
	PaymasterData []byte
	CallGasLimit  *big.Int
	Fees          fees.Fees
}

// Handle identifies a submitted operation.
type Handle struct {
	UserOpHash common.Hash
	Sender     common.Address
	// Deploying is set when the operation carried initCode.
	Deploying bool
}

// Session is the memoized smart account of one signing identity.
type Session struct {
	cfg       Config
	reader    *chain.Reader
	signer    accounts.Signer
	strategy  signingStrategy
	submitter Submitter

	resolveGroup singleflight.Group

	mu         sync.RWMutex
	status     Status
	account    *Account
	deployment DeploymentState
}

func NewSession(cfg Config, reader *chain.Reader, signer accounts.Signer, submitter Submitter) (*Session, error) {
	if cfg.EntryPointVersion != configs.EntryPointVersion07 {
		return nil, errors.Wrapf(ErrUnsupportedEntryPoint, "got %q", cfg.EntryPointVersion)
	}
	if signer == nil {
		return nil, errors.New("signer is required")
	}
	strat, err := strategyFor(signer.Kind(), reader)
	if err != nil {
		return nil, err
	}
	if cfg.Salt == nil {
		cfg.Salt = new(big.Int)
	}
	return &Session{
		cfg:       cfg,
		reader:    reader,
		signer:    signer,
		strategy:  strat,
		submitter: submitter,
	}, nil
}

func (s *Session) Owner() common.Address {
	return s.signer.Address()
}

func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Session) Deployment() DeploymentState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deployment
}

// Reset drops the cached account.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusUninitialized
	s.account = nil
	s.deployment = DeploymentUnknown
}

// Resolve returns the smart account, computing it on first use. Concurrent
// callers share one resolution.
func (s *Session) Resolve(ctx context.Context) (*Account, error) {
	s.mu.RLock()
	cached := s.account
	s.mu.RUnlock()
	if cached != nil {
		return copyAccount(cached), nil
	}

	v, err, _ := s.resolveGroup.Do("resolve", func() (interface{}, error) {
		s.setStatus(StatusResolving)
		acc, err := s.resolve(ctx)
		if err != nil {
			s.setStatus(StatusUninitialized)
			return nil, err
		}

		s.mu.Lock()
		s.account = acc
		s.status = StatusReady
		if acc.Deployed {
			s.deployment = DeploymentConfirmed
		} else {
			s.deployment = DeploymentCounterfactual
		}
		s.mu.Unlock()
		return acc, nil
	})
	if err != nil {
		return nil, err
	}
	return copyAccount(v.(*Account)), nil
}

func (s *Session) resolve(ctx context.Context) (*Account, error) {
	owner := s.signer.Address()
	addr, err := s.reader.ReadAddress(ctx, s.cfg.Factory, FactoryABI, "getAddress", owner, s.cfg.Salt)
	if err != nil {
		return nil, errors.Wrap(err, "failed to compute smart account address")
	}
	if addr == (common.Address{}) {
		return nil, errors.Errorf("factory %s returned the zero address", s.cfg.Factory.Hex())
	}

	deployed, err := s.reader.HasCode(ctx, addr)
	if err != nil {
		return nil, err
	}

	acc := &Account{Address: addr, Deployed: deployed}
	if !deployed {
		factoryData, err := FactoryABI.Pack("createAccount", owner, s.cfg.Salt)
		if err != nil {
			return nil, errors.Wrap(err, "failed to pack createAccount")
		}
		acc.InitCode = append(s.cfg.Factory.Bytes(), factoryData...)
	}

	logger.WithFields(logger.Fields{
		"owner":    owner.Hex(),
		"account":  addr.Hex(),
		"deployed": deployed,
	}).Info("smart account resolved")
	return acc, nil
}

// BuildUserOp assembles an unsigned operation for req.
func (s *Session) BuildUserOp(ctx context.Context, req SubmitRequest) (*UserOp, error) {
	acc, err := s.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	callData, err := ExecuteBatchCallData(req.Calls)
	if err != nil {
		return nil, err
	}

	nonce, err := s.reader.ReadBigInt(ctx, s.cfg.EntryPoint, EntryPointABI, "getNonce", acc.Address, new(big.Int))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read account nonce")
	}

	paymaster := s.cfg.Paymaster
	op := &UserOp{
		Sender:                        acc.Address,
		Nonce:                         nonce,
		CallData:                      callData,
		CallGasLimit:                  req.CallGasLimit,
		VerificationGasLimit:          s.cfg.VerificationGasLimit,
		PreVerificationGas:            s.cfg.PreVerificationGas,
		MaxFeePerGas:                  req.Fees.MaxFeePerGas,
		MaxPriorityFeePerGas:          req.Fees.MaxPriorityFeePerGas,
		Paymaster:                     &paymaster,
		PaymasterVerificationGasLimit: s.cfg.PaymasterVerificationGasLimit,
		PaymasterPostOpGasLimit:       s.cfg.PaymasterPostOpGasLimit,
		PaymasterData:                 req.PaymasterData,
	}
	if !acc.Deployed {
		factory := s.cfg.Factory
		op.Factory = &factory
		op.FactoryData = acc.InitCode[common.AddressLength:]
	}
	return op, nil
}

// SubmitBatch builds, signs and submits req as one user operation.
func (s *Session) SubmitBatch(ctx context.Context, req SubmitRequest) (*Handle, error) {
	if s.submitter == nil {
		return nil, errors.New("session has no bundler")
	}
	op, err := s.BuildUserOp(ctx, req)
	if err != nil {
		return nil, err
	}

	hash, err := op.Hash(s.cfg.EntryPoint, s.cfg.ChainID)
	if err != nil {
		return nil, err
	}
	op.Signature, err = s.strategy.sign(ctx, s.signer, hash)
	if err != nil {
		return nil, err
	}

	submitted, err := s.submitter.SendUserOperation(ctx, op, s.cfg.EntryPoint)
	if err != nil {
		return nil, err
	}
	log := logger.WithFields(logger.Fields{"sender": op.Sender.Hex(), "userOpHash": submitted.Hex()})
	if submitted != hash {
		log.WithField("computed", hash.Hex()).Warn("bundler returned a different user operation hash")
	}
	log.WithField("calls", len(req.Calls)).Info("user operation submitted")

	return &Handle{UserOpHash: submitted, Sender: op.Sender, Deploying: op.Factory != nil}, nil
}

// ConfirmDeployment polls for the account bytecode after a deploying operation
// succeeded. When none appears the account is left unverified and the cache
// is dropped, so the next operation reads the chain again.
func (s *Session) ConfirmDeployment(ctx context.Context) (DeploymentState, error) {
	s.mu.RLock()
	acc := s.account
	s.mu.RUnlock()
	if acc == nil {
		return DeploymentUnknown, errors.New("smart account not resolved")
	}
	if acc.Deployed {
		return DeploymentConfirmed, nil
	}

	checks := s.cfg.DeploymentChecks
	if checks == 0 {
		checks = 1
	}
	interval := s.cfg.DeploymentInterval
	if interval <= 0 {
		interval = time.Second
	}

	confirmed := false
	err := retry.Retry(func(attempt uint) error {
		deployed, err := s.reader.HasCode(ctx, acc.Address)
		if err != nil {
			return err
		}
		if !deployed {
			return ErrDeploymentUnverified
		}
		confirmed = true
		return nil
	}, strategy.Limit(checks), helpers.ContextWait(ctx, interval))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.account != acc {
		return s.deployment, nil
	}
	if !confirmed {
		if err == nil {
			err = ctx.Err()
		}
		logger.WithFields(logger.Fields{"account": acc.Address.Hex()}).
			Warnf("deployment could not be verified, account marked unverified: %v", err)
		s.deployment = DeploymentUnverified
		s.account = nil
		s.status = StatusUninitialized
		return DeploymentUnverified, nil
	}
	s.account = &Account{Address: acc.Address, Deployed: true}
	s.deployment = DeploymentConfirmed
	return DeploymentConfirmed, nil
}

func (s *Session) setStatus(st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = st
}

func copyAccount(a *Account) *Account {
	out := *a
	out.InitCode = append([]byte(nil), a.InitCode...)
	return &out
}
