package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	"github.com/ethereum-optimism/optimism/op-service/txmgr"

	"github.com/x2network/op-coordinator/flags"
)

func Promote(ctx *cli.Context) error {
	logger := setupLogger(ctx)
	gameType := uint32(ctx.Uint64(GameTypeFlag.Name))

	reg, err := newRegistry(ctx, logger)
	if err != nil {
		return err
	}
	if err := reg.Promote(ctx.Context, gameType); err != nil {
		return fmt.Errorf("failed to promote game type: %w", err)
	}
	fmt.Printf("Game type %v is now the respected game type\n", gameType)
	return nil
}

func promoteFlags() []cli.Flag {
	cliFlags := []cli.Flag{
		flags.L1EthRpcFlag,
		flags.FactoryAddressFlag,
		flags.AnchorRegistryAddressFlag,
		GameTypeFlag,
	}
	cliFlags = append(cliFlags, txmgr.CLIFlagsWithDefaults(flags.EnvVarPrefix, txmgr.DefaultChallengerFlagValues)...)
	cliFlags = append(cliFlags, oplog.CLIFlags(flags.EnvVarPrefix)...)
	return cliFlags
}

var PromoteCommand = &cli.Command{
	Name:        "promote",
	Usage:       "Makes a game type the respected game type on the anchor state registry",
	Description: "Makes a game type the respected game type on the anchor state registry. The type must have a registered implementation",
	Action:      Interruptible(Promote),
	Flags:       promoteFlags(),
}
