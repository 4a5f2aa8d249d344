package executors

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	EnableStream       bool `envconfig:"ENABLE_STREAM" default:"true"`
	EnableQuoteRefresh bool `envconfig:"ENABLE_QUOTE_REFRESH" default:"true"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
