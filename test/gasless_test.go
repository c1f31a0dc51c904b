package test

import (
	"os"
	"sync"
	"testing"

	"github.com/compose-network/gasless/internal/gasless"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

/*
TestMain connects to the network in configs.Values. Without LIVE_PRIVATE_KEY
every test in this package is skipped.
*/
func TestMain(m *testing.M) {
	setup()
	code := m.Run()
	release()
	os.Exit(code)
}

func requireLive(t *testing.T) {
	t.Helper()
	if TestOrchestrator == nil {
		t.Skip("LIVE_PRIVATE_KEY not set")
	}
}

func TestResolveSmartAccount(t *testing.T) {
	requireLive(t)

	addr, err := TestOrchestrator.SmartAccountAddress(t.Context())
	require.NoError(t, err)
	require.NotEqual(t, common.Address{}, addr)
}

/*
TestConcurrentResolve resolves the account from many goroutines at once, all of
them must observe the same address.
*/
func TestConcurrentResolve(t *testing.T) {
	requireLive(t)
	const workers = 10

	var (
		wg        sync.WaitGroup
		addresses = make([]common.Address, workers)
		errs      = make([]error, workers)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			addresses[i], errs[i] = TestOrchestrator.SmartAccountAddress(t.Context())
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, addresses[0], addresses[i])
	}
}

func TestClaimFaucet(t *testing.T) {
	requireLive(t)

	res, err := TestOrchestrator.ClaimFaucet(t.Context(), TestToken)
	require.NoError(t, err)
	require.NotEqual(t, common.Hash{}, res.TxHash)
}

func TestApprovePaymaster(t *testing.T) {
	requireLive(t)

	res, err := TestOrchestrator.ApprovePaymaster(t.Context(), TestToken)
	require.NoError(t, err)
	require.NotEqual(t, common.Hash{}, res.TxHash)
}

func TestGaslessTransfer(t *testing.T) {
	requireLive(t)

	res, err := TestOrchestrator.SendGaslessTransfer(t.Context(), gasless.TransferRequest{
		Token:     TestToken,
		Recipient: TestRecipient,
		Amount:    "0.01",
	})
	require.NoError(t, err)
	require.NotEqual(t, common.Hash{}, res.TxHash)
	require.Equal(t, gasless.StatusConfirmed, TestOrchestrator.Status())
}

func TestBatchTransfer(t *testing.T) {
	requireLive(t)

	res, err := TestOrchestrator.SendBatchTransfer(t.Context(), gasless.BatchTransferRequest{
		Token: TestToken,
		Payouts: []gasless.Payout{
			{Recipient: TestRecipient, Amount: "0.01"},
			{Recipient: common.HexToAddress("0x000000000000000000000000000000000000dEaD"), Amount: "0.01"},
		},
	})
	require.NoError(t, err)
	require.NotEqual(t, common.Hash{}, res.TxHash)
}
