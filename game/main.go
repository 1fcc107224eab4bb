package game

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"

	"github.com/x2network/op-coordinator/flags"
)

// Main is the lifecycle entrypoint of the coordinator service.
func Main(version string) cliapp.LifecycleAction {
	return func(cliCtx *cli.Context, systemCancel context.CancelCauseFunc) (cliapp.Lifecycle, error) {
		cfg, err := flags.NewConfigFromCLI(cliCtx)
		if err != nil {
			return nil, err
		}
		if err := cfg.Check(); err != nil {
			return nil, fmt.Errorf("invalid CLI flags: %w", err)
		}

		logger := oplog.NewLogger(oplog.AppOut(cliCtx), oplog.ReadCLIConfig(cliCtx))
		oplog.SetGlobalLogHandler(logger.Handler())
		opservice.ValidateEnvVars(flags.EnvVarPrefix, flags.Flags, logger)

		service, err := NewService(cliCtx.Context, logger, cfg, systemCancel)
		if err != nil {
			return nil, fmt.Errorf("failed to create coordinator service: %w", err)
		}
		logger.Info("Starting coordinator", "version", version)
		return service, nil
	}
}
