package ingest

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBuildArgsDoesNotShareBackingArray(t *testing.T) {
	// A base slice with spare capacity would let plain appends overwrite
	// each other's arguments.
	base := make([]string, 1, 8)
	base[0] = "--chain=nova"
	a := NewCommandAdapter("novaswap", "adapter", base, 0, zap.NewNop())

	tvlArgs := a.buildArgs("tvl", "--block", "100")
	txArgs := a.buildArgs("tx", "--from", "100", "--to", "200")

	require.Equal(t, []string{"--chain=nova", "tvl", "--block", "100"}, tvlArgs)
	require.Equal(t, []string{"--chain=nova", "tx", "--from", "100", "--to", "200"}, txArgs)
	require.Equal(t, []string{"--chain=nova"}, a.args)
}
