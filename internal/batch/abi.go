package batch

import "github.com/compose-network/gasless/internal/helpers"

const (
	swapPoolABIJSON = `[
		{"type":"function","name":"swap","stateMutability":"nonpayable","inputs":[{"name":"amountIn","type":"uint256"},{"name":"tokenIn","type":"address"},{"name":"tokenOut","type":"address"},{"name":"minAmountOut","type":"uint256"}],"outputs":[{"name":"amountOut","type":"uint256"}]}
	]`
	paymentProcessorABIJSON = `[
		{"type":"function","name":"executePayment","stateMutability":"nonpayable","inputs":[
			{"name":"request","type":"tuple","components":[{"name":"recipient","type":"address"},{"name":"requestedToken","type":"address"},{"name":"requestedAmount","type":"uint256"},{"name":"deadline","type":"uint256"},{"name":"nonce","type":"bytes32"},{"name":"merchantSigner","type":"address"}]},
			{"name":"merchantSignature","type":"bytes"},
			{"name":"payToken","type":"address"},
			{"name":"maxAmountToPay","type":"uint256"}],"outputs":[]},
		{"type":"function","name":"executeMultiTokenPayment","stateMutability":"nonpayable","inputs":[
			{"name":"request","type":"tuple","components":[{"name":"recipient","type":"address"},{"name":"requestedToken","type":"address"},{"name":"requestedAmount","type":"uint256"},{"name":"deadline","type":"uint256"},{"name":"nonce","type":"bytes32"},{"name":"merchantSigner","type":"address"}]},
			{"name":"merchantSignature","type":"bytes"},
			{"name":"payments","type":"tuple[]","components":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"}]}],"outputs":[]}
	]`
	faucetABIJSON = `[
		{"type":"function","name":"claim","stateMutability":"nonpayable","inputs":[{"name":"token","type":"address"}],"outputs":[]}
	]`
	qrisRegistryABIJSON = `[
		{"type":"function","name":"registerQris","stateMutability":"nonpayable","inputs":[{"name":"qrisHash","type":"bytes32"},{"name":"merchantName","type":"string"},{"name":"merchantCity","type":"string"}],"outputs":[]}
	]`
)

var (
	SwapPoolABI         = helpers.MustParseABI(swapPoolABIJSON)
	PaymentProcessorABI = helpers.MustParseABI(paymentProcessorABIJSON)
	FaucetABI           = helpers.MustParseABI(faucetABIJSON)
	QrisRegistryABI     = helpers.MustParseABI(qrisRegistryABIJSON)
)
