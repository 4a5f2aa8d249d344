package gate

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Environment prefixes every client order ID so paper and live
	// submissions can never be confused at the venue.
	Environment string `envconfig:"TRADING_ENVIRONMENT" default:"paper"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
