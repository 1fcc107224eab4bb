package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"

	"github.com/x2network/op-coordinator/flags"
	"github.com/x2network/op-coordinator/game/contracts"
	"github.com/x2network/op-coordinator/metrics"
)

var GameAddressFlag = &cli.StringFlag{
	Name:     "game-address",
	Usage:    "Address of the dispute game to inspect",
	EnvVars:  opservice.PrefixEnvVar(flags.EnvVarPrefix, "GAME_ADDRESS"),
	Required: true,
}

func GameStatus(ctx *cli.Context) error {
	logger := setupLogger(ctx)
	gameAddr, err := opservice.ParseAddress(ctx.String(GameAddressFlag.Name))
	if err != nil {
		return err
	}
	caller, err := newCaller(ctx, logger)
	if err != nil {
		return err
	}
	game := contracts.NewDisputeGameContract(metrics.NoopMetrics, gameAddr, caller)

	status, err := game.GetStatus(ctx.Context)
	if err != nil {
		return fmt.Errorf("failed to fetch game status: %w", err)
	}
	createdAt, err := game.GetCreatedAt(ctx.Context)
	if err != nil {
		return fmt.Errorf("failed to fetch game creation time: %w", err)
	}
	spec, err := game.GetChallengeWindow(ctx.Context)
	if err != nil {
		return fmt.Errorf("failed to fetch challenge window: %w", err)
	}
	claims, err := game.GetClaimCount(ctx.Context)
	if err != nil {
		return fmt.Errorf("failed to fetch claim count: %w", err)
	}

	fmt.Printf("Game: %v\n", gameAddr)
	fmt.Printf("Status: %v\n", status)
	fmt.Printf("Created: %v\n", createdAt.Format(time.RFC3339))
	fmt.Printf("Resolvable: %v\n", spec.ResolvableAt(createdAt).Format(time.RFC3339))
	fmt.Printf("Claims: %v\n", claims)
	return nil
}

func gameStatusFlags() []cli.Flag {
	cliFlags := []cli.Flag{
		flags.L1EthRpcFlag,
		GameAddressFlag,
	}
	cliFlags = append(cliFlags, oplog.CLIFlags(flags.EnvVarPrefix)...)
	return cliFlags
}

var GameStatusCommand = &cli.Command{
	Name:        "game-status",
	Usage:       "Shows the lifecycle state of a dispute game",
	Description: "Shows the status, creation time and challenge window of a dispute game",
	Action:      Interruptible(GameStatus),
	Flags:       gameStatusFlags(),
}
