package config

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

var DefaultServerConfig = ServerConfig{
	Debug:               false,
	BindAddr:            "0.0.0.0:8080",
	LeaderBoardSize:     100,
	CacheLoadTimeout:    10 * time.Second,
	CacheUpdateInterval: time.Minute,
	MongoDB:             DefaultMongoDBConfig,
	Redis:               DefaultRedisConfig,
	Log:                 zap.NewProductionConfig(),
}

type ServerConfig struct {
	Debug               bool           `yaml:"debug"`
	BindAddr            string         `yaml:"bind_addr"`
	LeaderBoardSize     int            `yaml:"leaderboard_size"`
	CacheLoadTimeout    time.Duration  `yaml:"cache_load_timeout"`
	CacheUpdateInterval time.Duration  `yaml:"cache_update_interval"`
	Seasons             []SeasonConfig `yaml:"seasons"`
	MongoDB             MongoDBConfig  `yaml:"mongodb"`
	Redis               RedisConfig    `yaml:"redis"`
	Log                 zap.Config     `yaml:"log"`
}

func (cfg ServerConfig) Validate() error {
	if cfg.BindAddr == "" {
		return fmt.Errorf("'bind_addr' is required")
	}
	if cfg.LeaderBoardSize <= 0 {
		return fmt.Errorf("'leaderboard_size' must be positive")
	}
	return nil
}
