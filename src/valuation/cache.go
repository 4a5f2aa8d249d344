package valuation

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"tradeledger/src/connectors"
	"tradeledger/src/gate"
	"tradeledger/src/model"
)

type quoteSource interface {
	GetQuote(ctx context.Context, ticker string) (*connectors.Quote, error)
}

type positionStore interface {
	Get(ctx context.Context, strategyName, ticker string) (*model.Position, error)
	ListAll(ctx context.Context, strategyName string) ([]model.Position, error)
	OpenTickers(ctx context.Context) ([]string, error)
	UpdateQuoteByTicker(ctx context.Context, ticker string, price decimal.Decimal, at time.Time) error
}

// Service refreshes cached quotes for open positions and serves valued
// snapshots built from the ledger plus those quotes. It never blocks a read
// on a live quote fetch; readers get the cache, the refresher fills it.
type Service struct {
	positions positionStore
	equities  quoteSource
	crypto    quoteSource
	maxAge    time.Duration
	interval  time.Duration
}

// NewService wires the service with the venue data feed for equities and
// the spot exchange feed for crypto tickers.
func NewService(positions positionStore, equities, crypto quoteSource) *Service {
	config := GetConfig()
	return &Service{
		positions: positions,
		equities:  equities,
		crypto:    crypto,
		maxAge:    config.QuoteMaxAge,
		interval:  config.QuoteRefreshInterval,
	}
}

// Run refreshes quotes on the configured cadence until ctx is canceled.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger.WithField("interval", s.interval).Info("quote refresher started")

	s.RefreshQuotes(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Info("quote refresher stopped")
			return
		case <-ticker.C:
			s.RefreshQuotes(ctx)
		}
	}
}

// RefreshQuotes fetches the latest price for every ticker with an open
// position and writes it to the cached columns. A failed ticker is skipped;
// its rows keep the previous quote and age out into the stale fallback.
func (s *Service) RefreshQuotes(ctx context.Context) {
	tickers, err := s.positions.OpenTickers(ctx)
	if err != nil {
		logger.WithError(err).Warn("quote refresh skipped, cannot list open tickers")
		return
	}

	for _, ticker := range tickers {
		source := s.equities
		if gate.DetectAssetClass(ticker) == model.AssetClassCrypto {
			source = s.crypto
		}

		quote, err := source.GetQuote(ctx, ticker)
		if err != nil {
			logger.WithError(err).
				WithField("ticker", ticker).
				Warn("quote refresh failed for ticker")
			continue
		}

		if err := s.positions.UpdateQuoteByTicker(ctx, ticker, quote.Price, quote.At); err != nil {
			continue
		}
	}
}

// Summarize values every position, optionally filtered to one strategy.
func (s *Service) Summarize(ctx context.Context, strategyName string) (*Summary, error) {
	positions, err := s.positions.ListAll(ctx, strategyName)
	if err != nil {
		return nil, err
	}

	summary := Aggregate(positions, time.Now().UTC(), s.maxAge)
	return &summary, nil
}

// ValuatePosition values a single strategy position. Returns (nil, nil)
// when no such position exists.
func (s *Service) ValuatePosition(ctx context.Context, strategyName, ticker string) (*PositionView, error) {
	pos, err := s.positions.Get(ctx, strategyName, ticker)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, nil
	}

	view := Valuate(pos, time.Now().UTC(), s.maxAge)
	return &view, nil
}
