package config

import (
	"fmt"
	"sync"

	"github.com/ilyakaznacheev/cleanenv"
)

var (
	instance Config
	once     sync.Once
)

// Load reads the given files in order, YAML first then .env, and finally the
// process environment. Later sources override earlier ones.
func Load(configPaths ...string) (Config, error) {
	var err error
	once.Do(func() {
		var cfg *config
		cfg, err = read(configPaths...)
		if err != nil {
			return
		}
		instance = cfg
	})

	if err != nil {
		return nil, err
	}

	return instance, nil
}

func read(configPaths ...string) (*config, error) {
	cfg := &config{}

	for _, configPath := range configPaths {
		if err := cleanenv.ReadConfig(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	// Secrets only ever come from the environment
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment variables: %w", err)
	}

	return cfg, nil
}

func MustLoad(configPaths ...string) Config {
	cfg, err := Load(configPaths...)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	return cfg
}

func Reset() {
	instance = nil
	once = sync.Once{}
}

func MustGet() Config {
	if instance == nil {
		panic("config not loaded, call Load() first")
	}
	return instance
}
