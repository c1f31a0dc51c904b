package bundler

import (
	"context"
	"time"

	"github.com/Rican7/retry"
	"github.com/Rican7/retry/strategy"
	"github.com/compose-network/gasless/internal/helpers"
	"github.com/compose-network/gasless/internal/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultPollAttempts = 60
)

var (
	ErrReceiptTimeout = errors.New("timed out waiting for user operation receipt")

	errPending = errors.New("receipt pending")
)

// ReceiptSource is the read side of the bundler used while polling.
type ReceiptSource interface {
	GetUserOperationReceipt(ctx context.Context, hash common.Hash) (*Receipt, error)
}

// Poller waits for a user operation receipt at a fixed interval.
type Poller struct {
	source   ReceiptSource
	interval time.Duration
	attempts uint

	// OnAttempt, when set, is called before every receipt request.
	OnAttempt func(attempt uint)
}

func NewPoller(source ReceiptSource, interval time.Duration, attempts uint) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if attempts == 0 {
		attempts = DefaultPollAttempts
	}
	return &Poller{source: source, interval: interval, attempts: attempts}
}

// Wait polls until a receipt shows up and decides its outcome. Exhausting the
// attempts returns ErrReceiptTimeout; the operation may still land later.
func (p *Poller) Wait(ctx context.Context, hash common.Hash, defaultReason string) (*Outcome, error) {
	log := logger.WithModule(serviceName).WithField("userOpHash", hash.Hex())

	var receipt *Receipt
	err := retry.Retry(func(attempt uint) error {
		if p.OnAttempt != nil {
			p.OnAttempt(attempt)
		}
		r, err := p.source.GetUserOperationReceipt(ctx, hash)
		if err != nil {
			log.WithField("attempt", attempt).Warnf("receipt poll failed: %v", err)
			return err
		}
		if r == nil {
			return errPending
		}
		receipt = r
		return nil
	}, strategy.Limit(p.attempts), helpers.ContextWait(ctx, p.interval))

	if receipt == nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.Wrap(ctxErr, "stopped waiting for user operation receipt")
		}
		log.Warnf("no receipt after %d attempts, last error: %v", p.attempts, err)
		return nil, errors.Wrapf(ErrReceiptTimeout, "user operation %s", hash.Hex())
	}

	if receipt.UserOpHash == (common.Hash{}) {
		receipt.UserOpHash = hash
	}
	outcome := Decide(receipt, defaultReason)
	log.WithFields(logger.Fields{
		"success": outcome.Success,
		"txHash":  outcome.TxHash.Hex(),
	}).Info("user operation receipt received")
	return &outcome, nil
}
