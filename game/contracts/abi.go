package contracts

import (
	"bytes"
	_ "embed"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// The contracts-bedrock snapshots module does not export a loader for
// the AnchorStateRegistry ABI, so the snapshot is embedded here.
//
//go:embed abi/AnchorStateRegistry.json
var anchorStateRegistry []byte

func loadAnchorStateRegistryABI() *abi.ABI {
	parsed, err := abi.JSON(bytes.NewReader(anchorStateRegistry))
	if err != nil {
		panic(err)
	}
	return &parsed
}
