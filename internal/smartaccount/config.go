package smartaccount

import (
	"math/big"
	"time"

	"github.com/compose-network/gasless/configs"
	"github.com/compose-network/gasless/internal/helpers"
	"github.com/ethereum/go-ethereum/common"
)

const (
	factoryABIJSON = `[
		{"type":"function","name":"createAccount","stateMutability":"nonpayable","inputs":[{"name":"owner","type":"address"},{"name":"salt","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
		{"type":"function","name":"getAddress","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"salt","type":"uint256"}],"outputs":[{"name":"","type":"address"}]}
	]`
	entryPointABIJSON = `[
		{"type":"function","name":"getNonce","stateMutability":"view","inputs":[{"name":"sender","type":"address"},{"name":"key","type":"uint192"}],"outputs":[{"name":"nonce","type":"uint256"}]}
	]`
	accountABIJSON = `[
		{"type":"function","name":"execute","stateMutability":"nonpayable","inputs":[{"name":"dest","type":"address"},{"name":"value","type":"uint256"},{"name":"func","type":"bytes"}],"outputs":[]},
		{"type":"function","name":"executeBatch","stateMutability":"nonpayable","inputs":[{"name":"calls","type":"tuple[]","components":[{"name":"target","type":"address"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"}]}],"outputs":[]}
	]`
	ownerWalletABIJSON = `[
		{"type":"function","name":"isValidSignature","stateMutability":"view","inputs":[{"name":"hash","type":"bytes32"},{"name":"signature","type":"bytes"}],"outputs":[{"name":"result","type":"bytes4"}]},
		{"type":"function","name":"ownerCount","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
	]`
)

var (
	FactoryABI     = helpers.MustParseABI(factoryABIJSON)
	EntryPointABI  = helpers.MustParseABI(entryPointABIJSON)
	AccountABI     = helpers.MustParseABI(accountABIJSON)
	OwnerWalletABI = helpers.MustParseABI(ownerWalletABIJSON)
)

// Config is the immutable part of a session.
type Config struct {
	EntryPoint        common.Address
	EntryPointVersion string
	Factory           common.Address
	Paymaster         common.Address
	Salt              *big.Int
	ChainID           *big.Int

	VerificationGasLimit          *big.Int
	PreVerificationGas            *big.Int
	PaymasterVerificationGasLimit *big.Int
	PaymasterPostOpGasLimit       *big.Int

	// DeploymentChecks bounds the bytecode polls after a deploying operation.
	DeploymentChecks   uint
	DeploymentInterval time.Duration
}

// ConfigFromApp maps the application config onto a session config.
func ConfigFromApp(app *configs.App) Config {
	return Config{
		EntryPoint:                    app.Contract(configs.ContractNameEntryPoint),
		EntryPointVersion:             app.Account.EntryPointVersion,
		Factory:                       app.Contract(configs.ContractNameFactory),
		Paymaster:                     app.Contract(configs.ContractNamePaymaster),
		Salt:                          big.NewInt(app.Account.Salt),
		ChainID:                       big.NewInt(app.Network.ChainID),
		VerificationGasLimit:          new(big.Int).SetUint64(app.Gas.VerificationGasLimit),
		PreVerificationGas:            new(big.Int).SetUint64(app.Gas.PreVerificationGas),
		PaymasterVerificationGasLimit: new(big.Int).SetUint64(app.Gas.PaymasterVerificationGasLimit),
		PaymasterPostOpGasLimit:       new(big.Int).SetUint64(app.Gas.PaymasterPostOpGasLimit),
		DeploymentChecks:              5,
		DeploymentInterval:            app.Polling.Interval,
	}
}
