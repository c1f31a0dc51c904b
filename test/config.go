package test

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/compose-network/gasless/configs"
	"github.com/compose-network/gasless/internal/accounts"
	"github.com/compose-network/gasless/internal/gasless"
	"github.com/compose-network/gasless/internal/logger"
	"github.com/ethereum/go-ethereum/common"
)

// Live suite globals, set by setup when LIVE_PRIVATE_KEY is present.
var (
	TestSigner       *accounts.PrivateKeySigner
	TestOrchestrator *gasless.Orchestrator
	TestToken        gasless.Token
	TestRecipient    common.Address

	release = func() {}
)

func setup() {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}
	logger.SetLogLevelFromString(logLevel)

	pk, ok := os.LookupEnv("LIVE_PRIVATE_KEY")
	if !ok {
		logger.Info("LIVE_PRIVATE_KEY not set, live tests will be skipped")
		return
	}

	var err error
	TestSigner, err = accounts.NewPrivateKeySigner(pk, accounts.KindFromConnector(os.Getenv("LIVE_CONNECTOR")))
	if err != nil {
		panic("Failed to create signer: " + err.Error())
	}

	decimals, err := strconv.ParseUint(envOr("LIVE_TOKEN_DECIMALS", "6"), 10, 8)
	if err != nil {
		panic("Invalid LIVE_TOKEN_DECIMALS: " + err.Error())
	}
	TestToken = gasless.Token{
		Address:  common.HexToAddress(os.Getenv("LIVE_TOKEN_ADDRESS")),
		Symbol:   envOr("LIVE_TOKEN_SYMBOL", "USDC"),
		Decimals: uint8(decimals),
	}
	TestRecipient = common.HexToAddress(envOr("LIVE_RECIPIENT", TestSigner.Address().Hex()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	TestOrchestrator, release, err = gasless.Dial(ctx, &configs.Values, TestSigner,
		gasless.WithStatusFunc(func(status string) { logger.Info("status: %s", status) }))
	if err != nil {
		panic("Failed to connect: " + err.Error())
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
