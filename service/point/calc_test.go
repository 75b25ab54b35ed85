package point

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/zkLinkProtocol/nova-point-backend/config"
	"github.com/zkLinkProtocol/nova-point-backend/schema"
	"github.com/zkLinkProtocol/nova-point-backend/service/booster"
	"github.com/zkLinkProtocol/nova-point-backend/service/price"
)

var (
	phaseStart    = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	withdrawStart = time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	weth = config.TokenConfig{Address: "0xweth", Decimals: 18, PriceID: "ethereum"}
	usdc = config.TokenConfig{Address: "0xusdc", Decimals: 6, Type: config.TokenTypeStable}
)

func newTestContext(tokens []config.TokenConfig, prices price.Map) *CalcContext {
	return &CalcContext{
		ProjectName:   "novaswap",
		Tokens:        tokenMap(tokens),
		Prices:        prices,
		EthPriceID:    "ethereum",
		Booster:       booster.New(config.BoosterConfig{PhaseStart: phaseStart, WithdrawStart: withdrawStart}, tokens),
		FirstDeposits: map[string]time.Time{},
		Scored:        map[string]struct{}{},
	}
}

func tokenMap(tokens []config.TokenConfig) map[string]config.TokenConfig {
	m := make(map[string]config.TokenConfig)
	for _, t := range tokens {
		m[t.Address] = t
	}
	return m
}

func TestHoldPoints(t *testing.T) {
	blockTime := phaseStart.Add(time.Hour) // week 0, earlyBird x2
	c := newTestContext([]config.TokenConfig{weth, usdc}, price.Map{"ethereum": decimal.NewFromInt(2000)})
	facts := []schema.BalanceFact{
		{
			Address:      "0xalice",
			TokenAddress: "0xweth",
			PairAddress:  "0xpool",
			BlockNumber:  100,
			Balance:      "1000000000000000000", // 1 WETH
			Timestamp:    blockTime,
		},
		{
			Address:      "0xalice",
			TokenAddress: "0xusdc",
			PairAddress:  "0xpool",
			BlockNumber:  100,
			Balance:      "2000000000", // 2000 USDC at the pinned 1.0
			Timestamp:    blockTime,
		},
	}

	audits, deltas, err := HoldPoints(facts, schema.PointTypeLPHold, c)
	require.NoError(t, err)
	require.Len(t, audits, 1)
	require.Len(t, deltas, 1)

	// base: 1 ETH + 2000 USDC / 2000 = 2 ETH worth, earlyBird doubles it.
	want := decimal.NewFromInt(4)
	require.True(t, schema.FromDecimal128(audits[0].HoldPoint).Equal(want),
		"got %s", schema.FromDecimal128(audits[0].HoldPoint))
	require.True(t, deltas[0].Delta.Equal(want))
	require.Equal(t, schema.PointTypeLPHold, audits[0].Type)
	require.Equal(t, "0xalice", audits[0].Address)
	require.Equal(t, "0xpool", audits[0].PairAddress)
	require.Equal(t, blockTime, audits[0].Timestamp)
}

func TestHoldPointsTokenMultiplier(t *testing.T) {
	blockTime := phaseStart.Add(time.Hour)
	boosted := weth
	boosted.Multipliers = []config.MultiplierConfig{{Multiplier: 2, Timestamp: phaseStart}}
	c := newTestContext([]config.TokenConfig{boosted}, price.Map{"ethereum": decimal.NewFromInt(3000)})
	facts := []schema.BalanceFact{{
		Address:      "0xalice",
		TokenAddress: "0xweth",
		PairAddress:  "0xpool",
		BlockNumber:  100,
		Balance:      "2000000000000000000",
		Timestamp:    blockTime,
	}}

	audits, _, err := HoldPoints(facts, schema.PointTypeLPHold, c)
	require.NoError(t, err)
	require.Len(t, audits, 1)
	// 2 ETH * tokenMult 2 * earlyBird 2 = 8.
	require.True(t, schema.FromDecimal128(audits[0].HoldPoint).Equal(decimal.NewFromInt(8)),
		"got %s", schema.FromDecimal128(audits[0].HoldPoint))
}

func TestHoldPointsSkipsScored(t *testing.T) {
	blockTime := phaseStart.Add(time.Hour)
	c := newTestContext([]config.TokenConfig{weth}, price.Map{"ethereum": decimal.NewFromInt(2000)})
	c.Scored[GuardKey(schema.PointTypeLPHold, 100, "0xalice", "0xpool")] = struct{}{}
	facts := []schema.BalanceFact{
		{Address: "0xalice", TokenAddress: "0xweth", PairAddress: "0xpool", BlockNumber: 100, Balance: "1000000000000000000", Timestamp: blockTime},
		{Address: "0xbob", TokenAddress: "0xweth", PairAddress: "0xpool", BlockNumber: 100, Balance: "1000000000000000000", Timestamp: blockTime},
	}

	audits, deltas, err := HoldPoints(facts, schema.PointTypeLPHold, c)
	require.NoError(t, err)
	require.Len(t, audits, 1)
	require.Len(t, deltas, 1)
	require.Equal(t, "0xbob", audits[0].Address)
}

func TestHoldPointsUnsupportedToken(t *testing.T) {
	blockTime := phaseStart.Add(time.Hour)
	c := newTestContext([]config.TokenConfig{weth}, price.Map{"ethereum": decimal.NewFromInt(2000)})
	facts := []schema.BalanceFact{{
		Address:      "0xalice",
		TokenAddress: "0xunknown",
		PairAddress:  "0xpool",
		BlockNumber:  100,
		Balance:      "1000000000000000000",
		Timestamp:    blockTime,
	}}

	audits, deltas, err := HoldPoints(facts, schema.PointTypeLPHold, c)
	require.NoError(t, err)
	require.Empty(t, audits)
	require.Empty(t, deltas)
}

func TestHoldPointsMissingEthPrice(t *testing.T) {
	c := newTestContext([]config.TokenConfig{weth}, price.Map{})
	_, _, err := HoldPoints([]schema.BalanceFact{{
		Address: "0xalice", TokenAddress: "0xweth", PairAddress: "0xpool",
		BlockNumber: 100, Balance: "1", Timestamp: phaseStart,
	}}, schema.PointTypeLPHold, c)
	var nfe *price.NotFoundError
	require.ErrorAs(t, err, &nfe)
}

func TestTxPoints(t *testing.T) {
	blockTime := phaseStart.Add(time.Hour)
	c := newTestContext([]config.TokenConfig{usdc}, price.Map{})
	facts := []schema.TransactionFact{
		{
			Timestamp: blockTime, UserAddress: "0xalice", ContractAddress: "0xswap",
			TokenAddress: "0xusdc", Decimals: 6,
			Price:    schema.ToDecimal128(decimal.NewFromInt(1)),
			Quantity: "5000000", // 5 USDC
			TxHash:   "0x1", Nonce: 0, BlockNumber: 100,
		},
		{
			Timestamp: blockTime, UserAddress: "0xalice", ContractAddress: "0xswap",
			TokenAddress: "0xusdc", Decimals: 6,
			Price:    schema.ToDecimal128(decimal.NewFromInt(1)),
			Quantity: "7000000", // 7 USDC
			TxHash:   "0x2", Nonce: 0, BlockNumber: 100,
		},
	}

	audits, err := TxPoints(facts, schema.PointTypeTxNum, c)
	require.NoError(t, err)
	require.Len(t, audits, 2)

	byType := make(map[string]decimal.Decimal)
	for _, a := range audits {
		require.Equal(t, "0xalice", a.Address)
		require.Equal(t, "0xswap", a.PairAddress)
		byType[a.Type] = schema.FromDecimal128(a.HoldPoint)
	}
	// Two transactions fold into one row per type.
	require.True(t, byType[schema.PointTypeTxNum].Equal(decimal.NewFromInt(2)), "got %s", byType[schema.PointTypeTxNum])
	require.True(t, byType[schema.PointTypeTxVol].Equal(decimal.NewFromInt(12)), "got %s", byType[schema.PointTypeTxVol])
}

func TestTxPointsLongQuantityKeepsPrecision(t *testing.T) {
	blockTime := phaseStart.Add(time.Hour)
	c := newTestContext([]config.TokenConfig{weth}, price.Map{})
	// An 18-decimal quantity times a float-precision price overflows the
	// 34-digit Decimal128 coefficient; the volume must still round-trip
	// instead of collapsing to NaN and then zero.
	unitPrice := decimal.NewFromFloat(0.12345678901234567)
	facts := []schema.TransactionFact{{
		Timestamp: blockTime, UserAddress: "0xalice", ContractAddress: "0xswap",
		TokenAddress: "0xweth", Decimals: 18,
		Price:    schema.ToDecimal128(unitPrice),
		Quantity: "12345678901234567890123",
		TxHash:   "0x1", Nonce: 0, BlockNumber: 100,
	}}

	audits, err := TxPoints(facts, schema.PointTypeTxNum, c)
	require.NoError(t, err)

	var vol decimal.Decimal
	for _, a := range audits {
		if a.Type == schema.PointTypeTxVol {
			vol = schema.FromDecimal128(a.HoldPoint)
		}
	}
	require.False(t, vol.IsZero())
	expected := decimal.RequireFromString("12345678901234567890123").Shift(-18).Mul(unitPrice)
	require.True(t, expected.Sub(vol).Abs().LessThan(expected.Shift(-20)),
		"got %s, expected about %s", vol, expected)
}

func TestTxPointsSkipsScoredType(t *testing.T) {
	blockTime := phaseStart.Add(time.Hour)
	c := newTestContext([]config.TokenConfig{usdc}, price.Map{})
	c.Scored[GuardKey(schema.PointTypeTxVol, 100, "0xalice", "0xswap")] = struct{}{}
	facts := []schema.TransactionFact{{
		Timestamp: blockTime, UserAddress: "0xalice", ContractAddress: "0xswap",
		TokenAddress: "0xusdc", Decimals: 6,
		Price:    schema.ToDecimal128(decimal.NewFromInt(1)),
		Quantity: "5000000",
		TxHash:   "0x1", Nonce: 0, BlockNumber: 100,
	}}

	audits, err := TxPoints(facts, schema.PointTypeTxNum, c)
	require.NoError(t, err)
	require.Len(t, audits, 1)
	require.Equal(t, schema.PointTypeTxNum, audits[0].Type)
}

func TestReferralPoints(t *testing.T) {
	users := []schema.User{
		{Address: "0xalice", Referrer: "0xcarol"},
		{Address: "0xbob", Referrer: "0xcarol"},
		{Address: "0xcarol"},
		{Address: "0xdave", Referrer: "0xcarol"}, // no stake
	}
	stake := map[string]decimal.Decimal{
		"0xalice": decimal.NewFromInt(100),
		"0xbob":   decimal.NewFromInt(50),
		"0xcarol": decimal.NewFromInt(10),
	}

	points := ReferralPoints(users, stake, decimal.RequireFromString("0.1"))
	require.Len(t, points, 1)
	require.True(t, points["0xcarol"].Equal(decimal.NewFromInt(15)), "got %s", points["0xcarol"])
}
