package store

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zkLinkProtocol/nova-point-backend/schema"
)

func txUnit(start, end int64, ingested, scored bool) *schema.TxProcessingStatus {
	return &schema.TxProcessingStatus{
		ProjectName:      "novaswap",
		BlockNumberStart: start,
		BlockNumberEnd:   end,
		AdapterProcessed: ingested,
		PointProcessed:   scored,
	}
}

func TestNextTxRange(t *testing.T) {
	for _, tc := range []struct {
		name       string
		latest     *schema.TxProcessingStatus
		startBlock int64
		chainHead  int64
		action     txRangeAction
		block      int64
	}{
		{"fresh schedule starts at the project start block", nil, 50, 300, txRangeInsert, 50},
		{"fresh schedule with head below start block", nil, 50, 49, txRangeSkip, 0},
		{"open range extends toward the head", txUnit(100, 200, false, false), 50, 300, txRangeExtend, 300},
		{"open range already covers the head", txUnit(100, 200, false, false), 50, 200, txRangeSkip, 0},
		{"ingested range stays closed until scored", txUnit(100, 200, true, false), 50, 300, txRangeSkip, 0},
		{"scored range opens its successor at end+1", txUnit(100, 200, true, true), 50, 300, txRangeInsert, 201},
		{"scored range with no new blocks", txUnit(100, 200, true, true), 50, 200, txRangeSkip, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			action, block := nextTxRange(tc.latest, tc.startBlock, tc.chainHead)
			require.Equal(t, tc.action, action)
			require.Equal(t, tc.block, block)
		})
	}
}

func TestNextTxRangeContiguity(t *testing.T) {
	// Successive scored ranges chain without gaps or overlaps.
	latest := txUnit(1, 100, true, true)
	for head := int64(150); head < 500; head += 150 {
		action, start := nextTxRange(latest, 1, head)
		require.Equal(t, txRangeInsert, action)
		require.Equal(t, latest.BlockNumberEnd+1, start)
		latest = txUnit(start, head, true, true)
	}
}

func TestIngestedTxFilterPinsRangeEnd(t *testing.T) {
	unit := schema.TxProcessingStatus{ProjectName: "novaswap", BlockNumberStart: 100, BlockNumberEnd: 200}
	filter := ingestedTxFilter(unit)
	require.Equal(t, int64(200), filter[schema.TxStatusBlockNumberEndKey])

	// A row extended past the ingested end no longer matches the mark.
	extended := unit
	extended.BlockNumberEnd = 250
	require.NotEqual(t, filter, ingestedTxFilter(extended))
}
