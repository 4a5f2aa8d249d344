package connectors

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/nntaoli-project/goex"
	"github.com/nntaoli-project/goex/binance"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

// CryptoQuoteSource serves quotes for crypto tickers from a public spot
// exchange feed. The venue's data endpoint only covers equities; crypto
// tickers fall through to this source on the same refresh cadence.
type CryptoQuoteSource struct {
	exchange goex.API
}

// NewCryptoQuoteSource builds a quote source backed by the Binance public
// ticker endpoint. No credentials are needed for market data.
func NewCryptoQuoteSource() *CryptoQuoteSource {
	apiConfig := &goex.APIConfig{
		HttpClient: http.DefaultClient,
		Endpoint:   binance.GLOBAL_API_BASE_URL,
	}
	return &CryptoQuoteSource{exchange: binance.NewWithConfig(apiConfig)}
}

// WithExchange overrides the underlying exchange API, used by tests.
func (s *CryptoQuoteSource) WithExchange(api goex.API) *CryptoQuoteSource {
	return &CryptoQuoteSource{exchange: api}
}

// pairFor maps ledger crypto tickers (BTCUSD, ETHUSDT) onto an exchange
// currency pair. USD-quoted tickers trade against USDT on the spot feed.
func pairFor(ticker string) goex.CurrencyPair {
	upper := strings.ToUpper(ticker)

	base := upper
	for _, suffix := range []string{"USDT", "USD"} {
		if strings.HasSuffix(upper, suffix) && len(upper) > len(suffix) {
			base = strings.TrimSuffix(upper, suffix)
			break
		}
	}

	return goex.NewCurrencyPair(
		goex.Currency{Symbol: base},
		goex.Currency{Symbol: "USDT"},
	)
}

// GetQuote fetches the latest traded price for a crypto ticker. The context
// is honored only between calls; the goex client carries its own HTTP
// timeout.
func (s *CryptoQuoteSource) GetQuote(ctx context.Context, ticker string) (*Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t, err := s.exchange.GetTicker(pairFor(ticker))
	if err != nil {
		logger.WithError(err).
			WithField("ticker", ticker).
			Warn("crypto quote fetch failed")
		return nil, ErrQuoteUnavailable
	}
	if t == nil || t.Last <= 0 {
		return nil, ErrQuoteUnavailable
	}

	return &Quote{
		Ticker: ticker,
		Price:  decimal.NewFromFloat(t.Last),
		At:     time.Now().UTC(),
	}, nil
}
