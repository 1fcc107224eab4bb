package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	gameTypes "github.com/ethereum-optimism/optimism/op-challenger/game/types"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	"github.com/ethereum-optimism/optimism/op-service/sources/batching"

	"github.com/x2network/op-coordinator/flags"
	"github.com/x2network/op-coordinator/game/contracts"
	"github.com/x2network/op-coordinator/metrics"
)

type gameInfo struct {
	gameTypes.GameMetadata
	status gameTypes.GameStatus
	claims uint64
	err    error
}

func ListGames(ctx *cli.Context) error {
	logger := setupLogger(ctx)
	caller, err := newCaller(ctx, logger)
	if err != nil {
		return err
	}
	factory, err := newFactoryContract(ctx, caller)
	if err != nil {
		return err
	}

	games, err := factory.GetGamesFrom(ctx.Context, 0)
	if err != nil {
		return fmt.Errorf("failed to load games: %w", err)
	}
	infos := loadGameInfos(ctx.Context, caller, games)

	fmt.Println("Idx        Type Created                   Status         Claims Game")
	for _, info := range infos {
		if info.err != nil {
			logger.Error("Failed to load game info", "game", info.Proxy, "err", info.err)
			continue
		}
		created := time.Unix(int64(info.Timestamp), 0).Format(time.RFC3339)
		fmt.Printf("%-10v %4v %-25v %-14v %6v %v\n",
			info.Index, info.GameType, created, info.status, info.claims, info.Proxy)
	}
	fmt.Printf("Total games: %v\n", len(games))
	return nil
}

func loadGameInfos(ctx context.Context, caller *batching.MultiCaller, games []gameTypes.GameMetadata) []*gameInfo {
	infos := make([]*gameInfo, len(games))
	var eg errgroup.Group
	eg.SetLimit(20)
	for idx, game := range games {
		info := &gameInfo{GameMetadata: game}
		infos[idx] = info
		eg.Go(func() error {
			contract := contracts.NewDisputeGameContract(metrics.NoopMetrics, game.Proxy, caller)
			status, err := contract.GetStatus(ctx)
			if err != nil {
				info.err = fmt.Errorf("failed to load status: %w", err)
				return nil
			}
			info.status = status
			claims, err := contract.GetClaimCount(ctx)
			if err != nil {
				info.err = fmt.Errorf("failed to load claim count: %w", err)
				return nil
			}
			info.claims = claims
			return nil
		})
	}
	_ = eg.Wait()
	return infos
}

func listGamesFlags() []cli.Flag {
	cliFlags := []cli.Flag{
		flags.L1EthRpcFlag,
		flags.FactoryAddressFlag,
	}
	cliFlags = append(cliFlags, oplog.CLIFlags(flags.EnvVarPrefix)...)
	return cliFlags
}

var ListGamesCommand = &cli.Command{
	Name:        "list-games",
	Usage:       "Lists games created by the dispute game factory",
	Description: "Lists games created by the dispute game factory",
	Action:      Interruptible(ListGames),
	Flags:       listGamesFlags(),
}
