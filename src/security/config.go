package security

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	VenueCRKey string `envconfig:"VENUE_CREDENTIALS_KEY" default:"qW8zTn3pXk1vRb9LmC4yH6sEdJ0uGf2aN7iV5oYw8hM="`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
