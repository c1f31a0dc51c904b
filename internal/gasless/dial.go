package gasless

import (
	"context"

	"github.com/compose-network/gasless/configs"
	"github.com/compose-network/gasless/internal/accounts"
	"github.com/compose-network/gasless/internal/bundler"
	"github.com/compose-network/gasless/internal/chain"
	"github.com/compose-network/gasless/internal/logger"
	"github.com/compose-network/gasless/internal/paymaster"
	"github.com/compose-network/gasless/internal/rollup"
	"github.com/pkg/errors"
)

// Dial connects to the chain, bundler and paymaster signer of app.Network and
// returns an orchestrator bound to signer. release closes the connections.
func Dial(ctx context.Context, app *configs.App, signer accounts.Signer, opts ...Option) (o *Orchestrator, release func(), err error) {
	network := rollup.FromConfig(app.Network)
	log := logger.WithModule("gasless").WithField("network", network.Name())

	backend, err := chain.Dial(ctx, network.RPCURL())
	if err != nil {
		return nil, nil, err
	}
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		backend.Close()
		return nil, nil, errors.Wrap(err, "failed to read chain id")
	}
	if chainID.Cmp(network.ChainID()) != 0 {
		backend.Close()
		return nil, nil, errors.Errorf("rpc %s serves chain %s, expected %s", network.RPCURL(), chainID, network.ChainID())
	}

	bnd, err := bundler.Dial(ctx, network.BundlerURL())
	if err != nil {
		backend.Close()
		return nil, nil, err
	}
	release = func() {
		bnd.Close()
		backend.Close()
	}

	cfg := ConfigFromApp(app)
	// older bundlers do not implement the method, a failed probe is not fatal
	if ok, err := bnd.SupportsEntryPoint(ctx, cfg.Session.EntryPoint); err != nil {
		log.Warnf("could not list bundler entry points: %v", err)
	} else if !ok {
		release()
		return nil, nil, errors.Errorf("bundler %s does not support entry point %s", network.BundlerURL(), cfg.Session.EntryPoint.Hex())
	}

	o, err = New(cfg, backend, paymaster.NewIssuer(network.SignerURL(), nil), bnd, signer, opts...)
	if err != nil {
		release()
		return nil, nil, err
	}
	log.Infof("connected, bundler %s, signer %s", network.BundlerURL(), network.SignerURL())
	return o, release, nil
}
