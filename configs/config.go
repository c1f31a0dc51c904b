package configs

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/compose-network/gasless/internal/logger"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

var (
	//go:embed config.yaml
	embeddedConfig []byte
	Values         App
)

const (
	configPathEnvVar = "CONFIG_PATH"

	ContractNameEntryPoint       ContractName = "entry-point"
	ContractNameFactory          ContractName = "factory"
	ContractNamePaymaster        ContractName = "paymaster"
	ContractNameSwapPool         ContractName = "swap-pool"
	ContractNamePaymentProcessor ContractName = "payment-processor"
	ContractNameQrisRegistry     ContractName = "qris-registry"
	ContractNameFaucet           ContractName = "faucet"

	EntryPointVersion07 = "0.7"
)

var requiredContracts = []ContractName{
	ContractNameEntryPoint,
	ContractNameFactory,
	ContractNamePaymaster,
	ContractNameSwapPool,
	ContractNamePaymentProcessor,
	ContractNameQrisRegistry,
	ContractNameFaucet,
}

type (
	ContractName string

	App struct {
		LogLevel  string                          `yaml:"log-level"`
		Network   Network                         `yaml:"network"`
		Contracts map[ContractName]common.Address `yaml:"contracts"`
		Account   Account                         `yaml:"account"`
		Gas       Gas                             `yaml:"gas"`
		Polling   Polling                         `yaml:"polling"`
		Paymaster Paymaster                       `yaml:"paymaster"`
	}
	Network struct {
		Name            string `yaml:"name"`
		ChainID         int64  `yaml:"chain-id"`
		RPCURL          string `yaml:"rpc-url"`
		BundlerURL      string `yaml:"bundler-url"`
		BundlerProvider string `yaml:"bundler-provider"`
		SignerURL       string `yaml:"signer-url"`
	}
	Account struct {
		EntryPointVersion string `yaml:"entry-point-version"`
		Salt              int64  `yaml:"salt"`
	}
	Gas struct {
		VerificationGasLimit          uint64 `yaml:"verification-gas-limit"`
		PreVerificationGas            uint64 `yaml:"pre-verification-gas"`
		PaymasterVerificationGasLimit uint64 `yaml:"paymaster-verification-gas-limit"`
		PaymasterPostOpGasLimit       uint64 `yaml:"paymaster-post-op-gas-limit"`
	}
	Polling struct {
		Interval time.Duration `yaml:"interval"`
		Attempts uint          `yaml:"attempts"`
	}
	Paymaster struct {
		ValidityWindow time.Duration `yaml:"validity-window"`
		ClockSkew      time.Duration `yaml:"clock-skew"`
		SlippageBps    int64         `yaml:"slippage-bps"`
	}
)

func init() {
	configPath, isSet := os.LookupEnv(configPathEnvVar)
	if !isSet {
		logger.Debug("%s was not set, will use configuration values from embedded config.yaml", configPathEnvVar)
		if err := loadInto(&Values, embeddedConfig); err != nil {
			panic(err.Error())
		}
		return
	}

	logger.Info("%s environment variable set to: %s. Loading configuration", configPathEnvVar, configPath)
	data, err := os.ReadFile(configPath)
	if err != nil {
		panic(fmt.Errorf("failed to read config file %s: %w", configPath, err))
	}

	if err := loadInto(&Values, data); err != nil {
		panic(err.Error())
	}
}

// Load parses and validates a YAML document without touching Values.
func Load(data []byte) (App, error) {
	var app App
	if err := loadInto(&app, data); err != nil {
		return App{}, err
	}
	return app, nil
}

func loadInto(app *App, data []byte) error {
	if err := yaml.Unmarshal(data, app); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	app.applyDefaults()
	app.normalizeURLs()

	if err := app.validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger.
		Debug(`configuration loaded successfully.
			Network: %s (chain %d)
			RPC: %s
			Bundler: %s (%s)
			Signer: %s
			EntryPoint: %s
			Paymaster: %s`,
			app.Network.Name,
			app.Network.ChainID,
			app.Network.RPCURL,
			app.Network.BundlerURL,
			app.Network.BundlerProvider,
			app.Network.SignerURL,
			app.Contracts[ContractNameEntryPoint].Hex(),
			app.Contracts[ContractNamePaymaster].Hex())
	return nil
}

// Contract returns the configured address for name, zero when missing.
func (a *App) Contract(name ContractName) common.Address {
	return a.Contracts[name]
}

func (a *App) applyDefaults() {
	if a.Account.EntryPointVersion == "" {
		a.Account.EntryPointVersion = EntryPointVersion07
	}
	if a.Network.BundlerProvider == "" {
		a.Network.BundlerProvider = "Pimlico"
	}
	if a.Polling.Interval == 0 {
		a.Polling.Interval = 2 * time.Second
	}
	if a.Polling.Attempts == 0 {
		a.Polling.Attempts = 60
	}
	if a.Paymaster.ValidityWindow == 0 {
		a.Paymaster.ValidityWindow = time.Hour
	}
	if a.Paymaster.ClockSkew == 0 {
		a.Paymaster.ClockSkew = time.Minute
	}
	if a.Paymaster.SlippageBps == 0 {
		a.Paymaster.SlippageBps = 100
	}
}

func (a *App) validate() error {
	var err error

	if networkErr := a.validateNetwork(); networkErr != nil {
		err = errors.Join(err, networkErr)
	}

	if contractsErr := a.validateContracts(); contractsErr != nil {
		err = errors.Join(err, contractsErr)
	}

	if a.Account.EntryPointVersion != EntryPointVersion07 {
		err = errors.Join(err, fmt.Errorf("field: 'entry-point-version', only '%s' is supported, got '%s'", EntryPointVersion07, a.Account.EntryPointVersion))
	}

	if a.Gas.VerificationGasLimit == 0 {
		err = errors.Join(err, fmt.Errorf("field: 'verification-gas-limit', must be set and non-zero"))
	}
	if a.Gas.PreVerificationGas == 0 {
		err = errors.Join(err, fmt.Errorf("field: 'pre-verification-gas', must be set and non-zero"))
	}
	if a.Gas.PaymasterVerificationGasLimit == 0 {
		err = errors.Join(err, fmt.Errorf("field: 'paymaster-verification-gas-limit', must be set and non-zero"))
	}
	if a.Paymaster.SlippageBps < 0 || a.Paymaster.SlippageBps >= 10_000 {
		err = errors.Join(err, fmt.Errorf("field: 'slippage-bps', must be within [0, 10000)"))
	}

	return err
}

func (a *App) validateNetwork() error {
	var err error
	if a.Network.ChainID == 0 {
		err = errors.Join(err, fmt.Errorf("field: 'chain-id', network: '%s', must be set and non-zero", a.Network.Name))
	}
	if a.Network.RPCURL == "" {
		err = errors.Join(err, fmt.Errorf("field: 'rpc-url', network: '%s', must be set and non-empty", a.Network.Name))
	}
	if a.Network.BundlerURL == "" {
		err = errors.Join(err, fmt.Errorf("field: 'bundler-url', network: '%s', must be set and non-empty", a.Network.Name))
	}
	if a.Network.SignerURL == "" {
		err = errors.Join(err, fmt.Errorf("field: 'signer-url', network: '%s', must be set and non-empty", a.Network.Name))
	}
	return err
}

func (a *App) validateContracts() error {
	var err error
	for _, name := range requiredContracts {
		addr, ok := a.Contracts[name]
		if !ok {
			err = errors.Join(err, fmt.Errorf("contract config for '%s' must be provided", name))
			continue
		}
		if addr == (common.Address{}) {
			err = errors.Join(err, fmt.Errorf("field: 'address', contract: '%s', must be set and non-zero", name))
		}
	}
	return err
}

func (a *App) normalizeURLs() {
	a.Network.RPCURL = strings.TrimSpace(a.Network.RPCURL)
	a.Network.BundlerURL = strings.TrimSpace(a.Network.BundlerURL)
	a.Network.SignerURL = strings.TrimRight(strings.TrimSpace(a.Network.SignerURL), "/")
}
