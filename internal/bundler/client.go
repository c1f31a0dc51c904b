package bundler

import (
	"context"

	"github.com/compose-network/gasless/internal/errnorm"
	"github.com/compose-network/gasless/internal/logger"
	"github.com/compose-network/gasless/internal/smartaccount"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
)

const serviceName = "bundler"

// Log is a log entry as bundlers report it. Bundlers omit several of the
// fields core/types.Log requires, so only what is decoded is kept.
type Log struct {
	Address common.Address `json:"address"`
	Topics  []common.Hash  `json:"topics"`
	Data    hexutil.Bytes  `json:"data"`
}

// TxReceipt is the receipt of the bundle transaction that included the
// operation.
type TxReceipt struct {
	TransactionHash common.Hash  `json:"transactionHash"`
	BlockNumber     *hexutil.Big `json:"blockNumber,omitempty"`
	Logs            []Log        `json:"logs"`
}

// Receipt is the eth_getUserOperationReceipt result.
type Receipt struct {
	UserOpHash    common.Hash    `json:"userOpHash"`
	EntryPoint    common.Address `json:"entryPoint"`
	Sender        common.Address `json:"sender"`
	Nonce         *hexutil.Big   `json:"nonce,omitempty"`
	ActualGasCost *hexutil.Big   `json:"actualGasCost,omitempty"`
	ActualGasUsed *hexutil.Big   `json:"actualGasUsed,omitempty"`
	Success       bool           `json:"success"`
	Reason        string         `json:"reason,omitempty"`
	Logs          []Log          `json:"logs"`
	Receipt       TxReceipt      `json:"receipt"`
}

// AllLogs returns the operation logs followed by the bundle transaction logs.
func (r *Receipt) AllLogs() []Log {
	out := make([]Log, 0, len(r.Logs)+len(r.Receipt.Logs))
	out = append(out, r.Logs...)
	return append(out, r.Receipt.Logs...)
}

// Client talks ERC-4337 JSON-RPC to a bundler.
type Client struct {
	rpc *rpc.Client
	url string
}

// Dial connects to the bundler at url.
func Dial(ctx context.Context, url string) (*Client, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, errnorm.Unreachable(serviceName, url, errors.Wrapf(err, "failed to connect to bundler %s", url))
	}
	return NewClient(c, url), nil
}

func NewClient(c *rpc.Client, url string) *Client {
	return &Client{rpc: c, url: url}
}

func (c *Client) URL() string {
	return c.url
}

// SendUserOperation submits op and returns the bundler's user operation hash.
func (c *Client) SendUserOperation(ctx context.Context, op *smartaccount.UserOp, entryPoint common.Address) (common.Hash, error) {
	var hash common.Hash
	if err := c.rpc.CallContext(ctx, &hash, "eth_sendUserOperation", op.RPC(), entryPoint); err != nil {
		return common.Hash{}, c.wrap(err)
	}
	logger.WithModule(serviceName).WithField("userOpHash", hash.Hex()).Debug("eth_sendUserOperation accepted")
	return hash, nil
}

// GetUserOperationReceipt returns nil while the operation is pending.
func (c *Client) GetUserOperationReceipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	var receipt *Receipt
	if err := c.rpc.CallContext(ctx, &receipt, "eth_getUserOperationReceipt", hash); err != nil {
		return nil, c.wrap(err)
	}
	return receipt, nil
}

func (c *Client) SupportedEntryPoints(ctx context.Context) ([]common.Address, error) {
	var out []common.Address
	if err := c.rpc.CallContext(ctx, &out, "eth_supportedEntryPoints"); err != nil {
		return nil, c.wrap(err)
	}
	return out, nil
}

// SupportsEntryPoint reports whether entryPoint is served by the bundler.
func (c *Client) SupportsEntryPoint(ctx context.Context, entryPoint common.Address) (bool, error) {
	eps, err := c.SupportedEntryPoints(ctx)
	if err != nil {
		return false, err
	}
	for _, ep := range eps {
		if ep == entryPoint {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) Close() {
	c.rpc.Close()
}

// wrap keeps bundler replies verbatim and tags transport failures.
func (c *Client) wrap(err error) error {
	return errnorm.Unreachable(serviceName, c.url, err)
}
