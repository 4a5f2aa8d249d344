package connectors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	VenueBaseURL   string        `envconfig:"VENUE_BASE_URL" default:"https://paper-api.alpaca.markets"`
	VenueDataURL   string        `envconfig:"VENUE_DATA_URL" default:"https://data.alpaca.markets"`
	VenueStreamURL string        `envconfig:"VENUE_STREAM_URL" default:"wss://paper-api.alpaca.markets/stream"`
	RequestTimeout time.Duration `envconfig:"VENUE_REQUEST_TIMEOUT" default:"15s"`

	VenueAPIKey    string `envconfig:"VENUE_API_KEY"`
	VenueAPISecret string `envconfig:"VENUE_API_SECRET"`
	// CredentialsEncrypted marks the key pair as sealed with the
	// credentials key; see the security package.
	CredentialsEncrypted bool `envconfig:"VENUE_CREDENTIALS_ENCRYPTED" default:"false"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
