package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ethereum/go-ethereum/log"

	rpcclient "github.com/ethereum-optimism/optimism/op-service/client"
	"github.com/ethereum-optimism/optimism/op-service/ctxinterrupt"
	"github.com/ethereum-optimism/optimism/op-service/dial"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	"github.com/ethereum-optimism/optimism/op-service/sources/batching"
	"github.com/ethereum-optimism/optimism/op-service/txmgr"

	"github.com/x2network/op-coordinator/flags"
	"github.com/x2network/op-coordinator/game/contracts"
	"github.com/x2network/op-coordinator/game/registry"
	"github.com/x2network/op-coordinator/game/sender"
	"github.com/x2network/op-coordinator/metrics"
)

// Interruptible wraps a subcommand action so ctrl-c cancels its context.
func Interruptible(action cli.ActionFunc) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		ctx.Context = ctxinterrupt.WithCancelOnInterrupt(ctx.Context)
		return action(ctx)
	}
}

func setupLogger(ctx *cli.Context) log.Logger {
	logger := oplog.NewLogger(oplog.AppOut(ctx), oplog.ReadCLIConfig(ctx))
	oplog.SetGlobalLogHandler(logger.Handler())
	return logger
}

func newCaller(ctx *cli.Context, logger log.Logger) (*batching.MultiCaller, error) {
	l1RPC, err := dial.DialRPCClientWithTimeout(ctx.Context, dial.DefaultDialTimeout, logger, ctx.String(flags.L1EthRpcFlag.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to dial L1: %w", err)
	}
	rpc := rpcclient.NewBaseRPCClient(l1RPC, rpcclient.WithCallTimeout(30*time.Second))
	return batching.NewMultiCaller(rpc, batching.DefaultBatchSize), nil
}

func newTxSender(ctx *cli.Context, logger log.Logger) (*sender.Sender, error) {
	txMgr, err := txmgr.NewSimpleTxManager("coordinator", logger, &metrics.NoopMetricsImpl{}, txmgr.ReadCLIConfig(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to create the transaction manager: %w", err)
	}
	return sender.NewSender(logger, txMgr), nil
}

func newFactoryContract(ctx *cli.Context, caller *batching.MultiCaller) (*contracts.DisputeGameFactoryContract, error) {
	factoryAddr, err := flags.FactoryAddress(ctx)
	if err != nil {
		return nil, err
	}
	return contracts.NewDisputeGameFactoryContract(metrics.NoopMetrics, factoryAddr, caller), nil
}

// newRegistry wires the factory and anchor registry bindings together
// with a tx sender for the one shot admin commands.
func newRegistry(ctx *cli.Context, logger log.Logger) (*registry.Registry, error) {
	caller, err := newCaller(ctx, logger)
	if err != nil {
		return nil, err
	}
	factory, err := newFactoryContract(ctx, caller)
	if err != nil {
		return nil, err
	}
	anchorAddr, err := flags.AnchorRegistryAddress(ctx)
	if err != nil {
		return nil, err
	}
	anchor := contracts.NewAnchorStateRegistryContract(metrics.NoopMetrics, anchorAddr, caller)
	txSender, err := newTxSender(ctx, logger)
	if err != nil {
		return nil, err
	}
	return registry.NewRegistry(logger, metrics.NoopMetrics, factory, anchor, txSender), nil
}
