package schema

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Point types written to the per-block audit trail and season totals.
const (
	PointTypeDirectHold = "directHold"
	PointTypeLPHold     = "lpHold"
	PointTypeTxNum      = "txNum"
	PointTypeTxVol      = "txVol"
	PointTypeReferral   = "referral"
	PointTypeBridge     = "bridge"
)

const (
	TVLStatusProjectNameKey      = "projectName"
	TVLStatusBlockNumberKey      = "blockNumber"
	TVLStatusAdapterProcessedKey = "adapterProcessed"
	TVLStatusPointProcessedKey   = "pointProcessed"
)

// TVLProcessingStatus tracks one TVL snapshot block per project.
// adapterProcessed and pointProcessed only ever move false -> true.
type TVLProcessingStatus struct {
	ProjectName      string `bson:"projectName"`
	BlockNumber      int64  `bson:"blockNumber"`
	AdapterProcessed bool   `bson:"adapterProcessed"`
	PointProcessed   bool   `bson:"pointProcessed"`
}

const (
	TxStatusProjectNameKey      = "projectName"
	TxStatusBlockNumberStartKey = "blockNumberStart"
	TxStatusBlockNumberEndKey   = "blockNumberEnd"
	TxStatusAdapterProcessedKey = "adapterProcessed"
	TxStatusPointProcessedKey   = "pointProcessed"
)

// TxProcessingStatus tracks one transaction block range per project. At
// most one range per project is open (not yet scored) at a time; a new
// range always starts at the previous range's end + 1.
type TxProcessingStatus struct {
	ProjectName      string `bson:"projectName"`
	BlockNumberStart int64  `bson:"blockNumberStart"`
	BlockNumberEnd   int64  `bson:"blockNumberEnd"`
	AdapterProcessed bool   `bson:"adapterProcessed"`
	PointProcessed   bool   `bson:"pointProcessed"`
}

const (
	BalanceAddressKey      = "address"
	BalanceTokenAddressKey = "tokenAddress"
	BalancePairAddressKey  = "pairAddress"
	BalanceBlockNumberKey  = "blockNumber"
	BalanceTimestampKey    = "timestamp"
)

// BalanceFact is an immutable per-pool TVL snapshot row. Balance is the
// raw on-chain amount, kept as an integer string to avoid precision loss.
type BalanceFact struct {
	Address      string    `bson:"address"`
	TokenAddress string    `bson:"tokenAddress"`
	PairAddress  string    `bson:"pairAddress"`
	BlockNumber  int64     `bson:"blockNumber"`
	Balance      string    `bson:"balance"`
	Timestamp    time.Time `bson:"timestamp"`
}

const (
	TransactionTxHashKey      = "txHash"
	TransactionNonceKey       = "nonce"
	TransactionBlockNumberKey = "blockNumber"
	TransactionContractKey    = "contractAddress"
)

// TransactionFact is an immutable per-transaction event row, unique per
// (txHash, nonce).
type TransactionFact struct {
	Timestamp       time.Time            `bson:"timestamp"`
	UserAddress     string               `bson:"userAddress"`
	ContractAddress string               `bson:"contractAddress"`
	TokenAddress    string               `bson:"tokenAddress"`
	Decimals        int32                `bson:"decimals"`
	Price           primitive.Decimal128 `bson:"price"`
	Quantity        string               `bson:"quantity"`
	TxHash          string               `bson:"txHash"`
	Nonce           int64                `bson:"nonce"`
	BlockNumber     int64                `bson:"blockNumber"`
}

const (
	PointLedgerAddressKey     = "address"
	PointLedgerPairAddressKey = "pairAddress"
	PointLedgerStakePointKey  = "stakePoint"
)

// PointLedger is the cumulative per-(address, pool) point total. It is
// mutated only through additive merges, never overwritten.
type PointLedger struct {
	Address     string               `bson:"address"`
	PairAddress string               `bson:"pairAddress"`
	StakePoint  primitive.Decimal128 `bson:"stakePoint"`
}

const (
	BlockPointBlockNumberKey = "blockNumber"
	BlockPointAddressKey     = "address"
	BlockPointPairAddressKey = "pairAddress"
	BlockPointHoldPointKey   = "holdPoint"
	BlockPointTypeKey        = "type"
	BlockPointTimestampKey   = "timestamp"
)

// BlockAddressPoint is the write-once per-block audit trail. Re-scoring a
// block inserts with ignore-on-conflict, so retries never double-add.
// Timestamp is the block time; season aggregation windows on it.
type BlockAddressPoint struct {
	BlockNumber int64                `bson:"blockNumber"`
	Address     string               `bson:"address"`
	PairAddress string               `bson:"pairAddress"`
	HoldPoint   primitive.Decimal128 `bson:"holdPoint"`
	Type        string               `bson:"type"`
	Timestamp   time.Time            `bson:"timestamp"`
}

const (
	SeasonPointUserAddressKey = "userAddress"
	SeasonPointPairAddressKey = "pairAddress"
	SeasonPointPointKey       = "point"
	SeasonPointTypeKey        = "type"
	SeasonPointSeasonKey      = "season"
	SeasonPointUserNameKey    = "userName"
)

// SeasonTotalPoint is fully derived from the audit trail; only point and
// userName may change on conflict.
type SeasonTotalPoint struct {
	UserAddress string               `bson:"userAddress"`
	PairAddress string               `bson:"pairAddress"`
	Point       primitive.Decimal128 `bson:"point"`
	Type        string               `bson:"type"`
	Season      int                  `bson:"season"`
	UserName    string               `bson:"userName"`
}

const (
	FirstDepositAddressKey = "address"
	FirstDepositTimeKey    = "firstDepositTime"
)

// AddressFirstDeposit records the earliest observed deposit per address.
type AddressFirstDeposit struct {
	Address          string    `bson:"address"`
	FirstDepositTime time.Time `bson:"firstDepositTime"`
}

const (
	PriceSnapshotBlockNumberKey = "blockNumber"
	PriceSnapshotPriceIDKey     = "priceId"
	PriceSnapshotUSDPriceKey    = "usdPrice"
)

// TokenPriceSnapshot caches a resolved price so re-scoring the same block
// never re-queries the external provider.
type TokenPriceSnapshot struct {
	BlockNumber int64                `bson:"blockNumber"`
	PriceID     string               `bson:"priceId"`
	USDPrice    primitive.Decimal128 `bson:"usdPrice"`
}

const (
	ProjectNameKey        = "name"
	ProjectPairAddressKey = "pairAddress"
)

// Project maps a project name to a pool/pair address discovered for it.
type Project struct {
	Name        string `bson:"name"`
	PairAddress string `bson:"pairAddress"`
}

const (
	UserAddressKey  = "address"
	UserNameKey     = "userName"
	UserReferrerKey = "referrer"
)

// User carries display metadata and the referral edge for an address.
type User struct {
	Address  string `bson:"address"`
	UserName string `bson:"userName"`
	Referrer string `bson:"referrer"`
}

// decimal128MaxDigits is the coefficient width of a BSON Decimal128.
const decimal128MaxDigits = 34

// ToDecimal128 converts a decimal into its BSON representation.
// Decimal128 carries at most 34 significant digits; a longer
// coefficient is truncated to fit, since the driver turns a failed
// conversion into NaN and a NaN merged into a ledger row is permanent.
func ToDecimal128(d decimal.Decimal) primitive.Decimal128 {
	if excess := int32(d.NumDigits()) - decimal128MaxDigits; excess > 0 {
		d = d.Truncate(-d.Exponent() - excess)
	}
	v, _ := primitive.ParseDecimal128(d.String())
	return v
}

func FromDecimal128(v primitive.Decimal128) decimal.Decimal {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}
