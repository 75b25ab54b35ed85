package config

import (
	"os"

	"gopkg.in/yaml.v2"
)

var DefaultConfig = Config{
	Worker: DefaultWorkerConfig,
	Server: DefaultServerConfig,
}

type Config struct {
	Worker WorkerConfig `yaml:"worker"`
	Server ServerConfig `yaml:"server"`
}

func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	cfg := DefaultConfig
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
