package valuation

import (
	"time"

	envconfig "github.com/kelseyhightower/envconfig"
	logger "github.com/sirupsen/logrus"
)

type Config struct {
	QuoteRefreshInterval time.Duration `envconfig:"QUOTE_REFRESH_INTERVAL" default:"60s"`
	QuoteMaxAge          time.Duration `envconfig:"QUOTE_MAX_AGE" default:"15m"`
}

func GetConfig() Config {
	config := Config{}
	err := envconfig.Process("", &config)
	if err != nil {
		logger.WithError(err).Panic("Failed to load valuation config")
	}
	return config
}
