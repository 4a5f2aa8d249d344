package gate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"tradeledger/src/model"
)

// SubmitRequest is a validated order submission. Limit-price requirements
// and time-in-force defaults are enforced at construction, not at call
// sites: build one with NewSubmitRequest.
type SubmitRequest struct {
	StrategyName string
	Ticker       string
	Side         string
	OrderType    string
	Quantity     decimal.Decimal
	LimitPrice   *decimal.Decimal

	// Derived at construction.
	AssetClass  string
	TimeInForce string
}

// cryptoSuffixes drive the asset-class heuristic: tickers quoted against
// these are treated as crypto and forced to good-till-canceled.
var cryptoSuffixes = []string{"USDT", "USD", "BTC", "ETH"}

// DetectAssetClass classifies a ticker as crypto or equity.
func DetectAssetClass(ticker string) string {
	upper := strings.ToUpper(ticker)
	for _, suffix := range cryptoSuffixes {
		if strings.HasSuffix(upper, suffix) && len(upper) > len(suffix) {
			return model.AssetClassCrypto
		}
	}
	return model.AssetClassEquity
}

// NewSubmitRequest validates the inputs and derives asset class and
// time-in-force. All violations come back as *ValidationError.
func NewSubmitRequest(strategyName, ticker, side, orderType string, quantity decimal.Decimal, limitPrice *decimal.Decimal) (*SubmitRequest, error) {
	if strategyName == "" {
		strategyName = "default"
	}
	if ticker == "" {
		return nil, &ValidationError{Field: "ticker", Reason: "ticker is required"}
	}

	side = strings.ToLower(side)
	if side != model.OrderSideBuy && side != model.OrderSideSell {
		return nil, &ValidationError{Field: "side", Reason: fmt.Sprintf("invalid side %q, must be buy or sell", side)}
	}

	orderType = strings.ToLower(orderType)
	if orderType == "" {
		orderType = model.OrderTypeMarket
	}
	if orderType != model.OrderTypeMarket && orderType != model.OrderTypeLimit {
		return nil, &ValidationError{Field: "order_type", Reason: fmt.Sprintf("invalid order type %q, must be market or limit", orderType)}
	}

	if !quantity.IsPositive() {
		return nil, &ValidationError{Field: "quantity", Reason: "quantity must be positive"}
	}

	if orderType == model.OrderTypeLimit {
		if limitPrice == nil || !limitPrice.IsPositive() {
			return nil, &ValidationError{Field: "limit_price", Reason: "limit orders require a positive limit price"}
		}
	} else {
		limitPrice = nil
	}

	assetClass := DetectAssetClass(ticker)
	tif := model.TimeInForceDay
	if assetClass == model.AssetClassCrypto {
		// Crypto trades around the clock; day orders are meaningless there.
		tif = model.TimeInForceGTC
	}

	return &SubmitRequest{
		StrategyName: strategyName,
		Ticker:       strings.ToUpper(ticker),
		Side:         side,
		OrderType:    orderType,
		Quantity:     quantity,
		LimitPrice:   limitPrice,
		AssetClass:   assetClass,
		TimeInForce:  tif,
	}, nil
}

var clientOrderIDUnsafe = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

func sanitizeSegment(s string, max int) string {
	s = clientOrderIDUnsafe.ReplaceAllString(s, "-")
	if len(s) > max {
		s = s[:max]
	}
	return s
}

// NewClientOrderID generates a unique, debuggable client order ID.
//
// Format: {env}-{strategy}-{ticker}-{uuid12}. The random suffix keeps batch
// operations like close-all collision free; on a ledger-side unique
// collision a fresh ID is generated rather than retrying the same one, so
// venue-side duplicate detection stays unambiguous.
func NewClientOrderID(environment, strategyName, ticker string) string {
	env := sanitizeSegment(environment, 10)
	if env == "" {
		env = "dev"
	}
	strategy := sanitizeSegment(strategyName, 16)
	if strategy == "" {
		strategy = "default"
	}
	symbol := sanitizeSegment(strings.ToUpper(ticker), 12)
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]

	return fmt.Sprintf("%s-%s-%s-%s", env, strategy, symbol, suffix)
}
