package paymaster

import "github.com/compose-network/gasless/internal/helpers"

const paymasterABIJSON = `[
	{"type":"function","name":"isSupportedToken","stateMutability":"view","inputs":[{"name":"token","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"estimateTotalCost","stateMutability":"view","inputs":[{"name":"token","type":"address"},{"name":"gasLimit","type":"uint256"},{"name":"maxFeePerGas","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]}
]`

// ABI is the read surface of the token paymaster.
var ABI = helpers.MustParseABI(paymasterABIJSON)
