package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	"github.com/ethereum-optimism/optimism/op-service/txmgr"

	"github.com/x2network/op-coordinator/flags"
)

var (
	GameTypeFlag = &cli.Uint64Flag{
		Name:     "game-type",
		Usage:    "Game type to register (numeric value)",
		EnvVars:  opservice.PrefixEnvVar(flags.EnvVarPrefix, "GAME_TYPE"),
		Required: true,
	}
	GameImplFlag = &cli.StringFlag{
		Name:     "game-impl",
		Usage:    "Address of the dispute game implementation to bind",
		EnvVars:  opservice.PrefixEnvVar(flags.EnvVarPrefix, "GAME_IMPL"),
		Required: true,
	}
)

func RegisterGameType(ctx *cli.Context) error {
	logger := setupLogger(ctx)
	gameType := uint32(ctx.Uint64(GameTypeFlag.Name))
	impl, err := opservice.ParseAddress(ctx.String(GameImplFlag.Name))
	if err != nil {
		return err
	}

	reg, err := newRegistry(ctx, logger)
	if err != nil {
		return err
	}
	if err := reg.Register(ctx.Context, gameType, impl); err != nil {
		return fmt.Errorf("failed to register game type: %w", err)
	}
	fmt.Printf("Registered game type %v with implementation %v\n", gameType, impl)
	return nil
}

func registerGameTypeFlags() []cli.Flag {
	cliFlags := []cli.Flag{
		flags.L1EthRpcFlag,
		flags.FactoryAddressFlag,
		flags.AnchorRegistryAddressFlag,
		GameTypeFlag,
		GameImplFlag,
	}
	cliFlags = append(cliFlags, txmgr.CLIFlagsWithDefaults(flags.EnvVarPrefix, txmgr.DefaultChallengerFlagValues)...)
	cliFlags = append(cliFlags, oplog.CLIFlags(flags.EnvVarPrefix)...)
	return cliFlags
}

var RegisterGameTypeCommand = &cli.Command{
	Name:        "register-game-type",
	Usage:       "Binds a dispute game implementation to a game type on the factory",
	Description: "Binds a dispute game implementation to a game type on the factory and verifies the binding is visible",
	Action:      Interruptible(RegisterGameType),
	Flags:       registerGameTypeFlags(),
}
