package config

var DefaultMongoDBConfig = MongoDBConfig{
	URI:                     "mongodb://localhost:27017",
	DB:                      "novapoint",
	TVLStatusCollection:     "tvlProcessingStatuses",
	TxStatusCollection:      "txProcessingStatuses",
	BalanceCollection:       "balances",
	TransactionCollection:   "transactions",
	PointLedgerCollection:   "points",
	BlockPointCollection:    "blockAddressPoints",
	SeasonPointCollection:   "seasonTotalPoints",
	FirstDepositCollection:  "addressFirstDeposits",
	PriceSnapshotCollection: "tokenPriceSnapshots",
	ProjectCollection:       "projects",
	UserCollection:          "users",
}

type MongoDBConfig struct {
	URI                     string `yaml:"uri"`
	DB                      string `yaml:"db"`
	TVLStatusCollection     string `yaml:"tvl_status_collection"`
	TxStatusCollection      string `yaml:"tx_status_collection"`
	BalanceCollection       string `yaml:"balance_collection"`
	TransactionCollection   string `yaml:"transaction_collection"`
	PointLedgerCollection   string `yaml:"point_ledger_collection"`
	BlockPointCollection    string `yaml:"block_point_collection"`
	SeasonPointCollection   string `yaml:"season_point_collection"`
	FirstDepositCollection  string `yaml:"first_deposit_collection"`
	PriceSnapshotCollection string `yaml:"price_snapshot_collection"`
	ProjectCollection       string `yaml:"project_collection"`
	UserCollection          string `yaml:"user_collection"`
}

var DefaultRedisConfig = RedisConfig{
	URI:                 "redis://localhost:6379",
	LeaderBoardCacheKey: "novapoint:leaderboard",
}

type RedisConfig struct {
	URI                 string `yaml:"uri"`
	LeaderBoardCacheKey string `yaml:"leaderboard_cache_key"`
}
