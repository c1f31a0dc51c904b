package rollup

import (
	"math/big"

	"github.com/compose-network/gasless/configs"
)

// Rollup describes the chain the smart accounts live on and the services
// that front it.
type Rollup struct {
	name       string
	chainID    *big.Int
	rpcURL     string
	bundlerURL string
	signerURL  string
}

func New(name string, chainID *big.Int, rpcURL, bundlerURL, signerURL string) *Rollup {
	return &Rollup{
		name:       name,
		chainID:    new(big.Int).Set(chainID),
		rpcURL:     rpcURL,
		bundlerURL: bundlerURL,
		signerURL:  signerURL,
	}
}

// FromConfig builds the descriptor from the network section of the app config.
func FromConfig(n configs.Network) *Rollup {
	return New(n.Name, big.NewInt(n.ChainID), n.RPCURL, n.BundlerURL, n.SignerURL)
}

func (r *Rollup) RPCURL() string {
	return r.rpcURL
}

func (r *Rollup) BundlerURL() string {
	return r.bundlerURL
}

func (r *Rollup) SignerURL() string {
	return r.signerURL
}

// ChainID returns a copy, callers may mutate it freely.
func (r *Rollup) ChainID() *big.Int {
	return new(big.Int).Set(r.chainID)
}

func (r *Rollup) Name() string {
	return r.name
}
