package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/x2network/op-coordinator/prover"
)

var (
	validL1EthRpc        = "http://localhost:8545"
	validFactoryAddress  = common.Address{0x23}
	validRegistryAddress = common.Address{0x42}
	validGameTypes       = []uint32{0, 1}
)

func validConfig() Config {
	return NewConfig(validFactoryAddress, validRegistryAddress, validL1EthRpc, validGameTypes...)
}

func TestValidConfigIsValid(t *testing.T) {
	require.NoError(t, validConfig().Check())
}

func TestL1EthRpcRequired(t *testing.T) {
	config := validConfig()
	config.L1EthRpc = ""
	require.ErrorIs(t, config.Check(), ErrMissingL1EthRPC)
}

func TestGameFactoryAddressRequired(t *testing.T) {
	config := validConfig()
	config.GameFactoryAddress = common.Address{}
	require.ErrorIs(t, config.Check(), ErrMissingGameFactoryAddress)
}

func TestAnchorRegistryAddressRequired(t *testing.T) {
	config := validConfig()
	config.AnchorStateRegistryAddress = common.Address{}
	require.ErrorIs(t, config.Check(), ErrMissingAnchorRegistryAddress)
}

func TestGameTypesRequired(t *testing.T) {
	config := validConfig()
	config.GameTypes = nil
	require.ErrorIs(t, config.Check(), ErrMissingGameTypes)
}

func TestPollIntervalMustBePositive(t *testing.T) {
	config := validConfig()
	config.PollInterval = 0
	require.ErrorIs(t, config.Check(), ErrInvalidPollInterval)
}

func TestProposalTimeoutMustBePositive(t *testing.T) {
	config := validConfig()
	config.ProposalTimeout = -time.Second
	require.ErrorIs(t, config.Check(), ErrInvalidProposalTimeout)
}

func TestMaxResolutionAttemptsMustBePositive(t *testing.T) {
	config := validConfig()
	config.MaxResolutionAttempts = 0
	require.ErrorIs(t, config.Check(), ErrInvalidMaxResolutionAttempts)
}

func TestFinalityDelayMustNotBeNegative(t *testing.T) {
	config := validConfig()
	config.FinalityDelay = -time.Second
	require.ErrorIs(t, config.Check(), ErrNegativeFinalityDelay)

	// Zero is allowed, credit is claimed as soon as resolve confirms.
	config.FinalityDelay = 0
	require.NoError(t, config.Check())
}

func TestProverConfigOnlyCheckedWhenEnabled(t *testing.T) {
	config := validConfig()
	config.Prover = prover.Config{Kind: "nonsense"}
	require.NoError(t, config.Check())

	config.Prover.Bin = filepath.Join(t.TempDir(), "missing")
	require.ErrorIs(t, config.Check(), prover.ErrUnknownKind)
}

func TestValidProverConfig(t *testing.T) {
	bin := filepath.Join(t.TempDir(), "prover-host")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755))

	config := validConfig()
	config.Prover = prover.Config{Kind: prover.KindFault, Bin: bin}
	require.NoError(t, config.Check())
}

func TestDefaults(t *testing.T) {
	config := validConfig()
	require.Equal(t, DefaultPollInterval, config.PollInterval)
	require.Equal(t, DefaultProposalTimeout, config.ProposalTimeout)
	require.Equal(t, DefaultFinalityDelay, config.FinalityDelay)
	require.Equal(t, DefaultMaxResolutionAttempts, config.MaxResolutionAttempts)
	require.Equal(t, DefaultResolutionBackoff, config.ResolutionBackoff)
	require.Equal(t, validL1EthRpc, config.TxMgrConfig.L1RPCURL)
}
