package executors

import (
	"context"
	"errors"
	"sync"

	logger "github.com/sirupsen/logrus"

	"tradeledger/src/connectors"
	"tradeledger/src/reconciler"
	"tradeledger/src/repository"
	"tradeledger/src/security"
	"tradeledger/src/valuation"
)

// VenueCredentials resolves the configured venue API key pair, decrypting
// when the pair is stored sealed.
func VenueCredentials() (string, string, error) {
	config := connectors.GetConfig()

	if config.VenueAPIKey == "" || config.VenueAPISecret == "" {
		return "", "", errors.New("no venue API key/secret set")
	}
	if !config.CredentialsEncrypted {
		return config.VenueAPIKey, config.VenueAPISecret, nil
	}

	apiKey, err := security.DecryptString(config.VenueAPIKey)
	if err != nil {
		logger.WithError(err).Error("Failed to decrypt API Key")
		return "", "", err
	}
	apiSecret, err := security.DecryptString(config.VenueAPISecret)
	if err != nil {
		logger.WithError(err).Error("Failed to decrypt API Secret")
		return "", "", err
	}
	return apiKey, apiSecret, nil
}

// Overridable constructors, swapped by tests.
var (
	newVenueClient = connectors.NewClient
	newStream      = connectors.NewStream
)

// StartLoop runs the background workers: the reconciliation loop, the
// trade-update stream that nudges it, and the quote refresher. Blocks until
// ctx is canceled.
func StartLoop(ctx context.Context) error {
	config := GetConfig()

	apiKey, apiSecret, err := VenueCredentials()
	if err != nil {
		return err
	}

	orderRep := repository.NewOrderRepository()
	positionRep := repository.NewPositionRepository()
	cursorRep := repository.NewCursorRepository()
	exceptionRep := repository.NewExceptionRepository()

	venue := newVenueClient(apiKey, apiSecret)
	engine := reconciler.NewEngine(orderRep, positionRep, cursorRep, exceptionRep, venue)

	var wg sync.WaitGroup

	// Without the stream the engine runs on its interval alone; a nil
	// channel never signals.
	var nudges <-chan struct{}
	if config.EnableStream {
		stream := newStream(apiKey, apiSecret)
		nudges = stream.Nudges()
		wg.Add(1)
		go func() {
			defer wg.Done()
			stream.Run(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		engine.Run(ctx, nudges)
	}()

	if config.EnableQuoteRefresh {
		quotes := valuation.NewService(positionRep, venue, connectors.NewCryptoQuoteSource())
		wg.Add(1)
		go func() {
			defer wg.Done()
			quotes.Run(ctx)
		}()
	}

	logger.Info("background workers started")
	wg.Wait()
	logger.Println("loop stopped")
	return nil
}
