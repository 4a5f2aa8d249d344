package gate

import (
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"tradeledger/src/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestDetectAssetClass(t *testing.T) {
	cases := map[string]string{
		"AAPL":    model.AssetClassEquity,
		"TSLA":    model.AssetClassEquity,
		"BTCUSD":  model.AssetClassCrypto,
		"ETHUSDT": model.AssetClassCrypto,
		"btcusd":  model.AssetClassCrypto,
		"SOLBTC":  model.AssetClassCrypto,
		// A bare suffix is not a pair.
		"USD": model.AssetClassEquity,
	}
	for ticker, want := range cases {
		if got := DetectAssetClass(ticker); got != want {
			t.Errorf("DetectAssetClass(%q) = %q, want %q", ticker, got, want)
		}
	}
}

func TestNewSubmitRequestValidation(t *testing.T) {
	limit := d("10")

	cases := []struct {
		name       string
		ticker     string
		side       string
		orderType  string
		quantity   decimal.Decimal
		limitPrice *decimal.Decimal
		wantField  string
	}{
		{"missing ticker", "", "buy", "market", d("1"), nil, "ticker"},
		{"bad side", "AAPL", "hold", "market", d("1"), nil, "side"},
		{"bad type", "AAPL", "buy", "stop", d("1"), nil, "order_type"},
		{"zero quantity", "AAPL", "buy", "market", d("0"), nil, "quantity"},
		{"negative quantity", "AAPL", "sell", "market", d("-1"), nil, "quantity"},
		{"limit without price", "AAPL", "buy", "limit", d("1"), nil, "limit_price"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewSubmitRequest("s1", tc.ticker, tc.side, tc.orderType, tc.quantity, tc.limitPrice)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tc.wantField {
				t.Fatalf("expected field %q, got %q", tc.wantField, verr.Field)
			}
		})
	}

	req, err := NewSubmitRequest("", "aapl", "BUY", "", d("5"), &limit)
	if err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
	if req.StrategyName != "default" {
		t.Errorf("expected default strategy, got %q", req.StrategyName)
	}
	if req.Ticker != "AAPL" || req.Side != "buy" || req.OrderType != model.OrderTypeMarket {
		t.Errorf("normalization failed: %+v", req)
	}
	if req.LimitPrice != nil {
		t.Errorf("market orders must drop the limit price")
	}
	if req.TimeInForce != model.TimeInForceDay {
		t.Errorf("expected day TIF for equity, got %q", req.TimeInForce)
	}

	crypto, err := NewSubmitRequest("s1", "BTCUSD", "buy", "market", d("0.5"), nil)
	if err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
	if crypto.AssetClass != model.AssetClassCrypto || crypto.TimeInForce != model.TimeInForceGTC {
		t.Errorf("crypto requests must default to gtc: %+v", crypto)
	}
}

func TestNewClientOrderID(t *testing.T) {
	pattern := regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	id := NewClientOrderID("paper", "mean_rev", "AAPL")
	parts := strings.Split(id, "-")
	if len(parts) != 4 {
		t.Fatalf("expected 4 segments, got %d in %q", len(parts), id)
	}
	if parts[0] != "paper" || parts[1] != "mean_rev" || parts[2] != "AAPL" {
		t.Fatalf("unexpected segments in %q", id)
	}
	if len(parts[3]) != 12 {
		t.Fatalf("expected 12 char suffix, got %q", parts[3])
	}
	if !pattern.MatchString(id) {
		t.Fatalf("id contains unsafe characters: %q", id)
	}
	if len(id) > 64 {
		t.Fatalf("id exceeds 64 chars: %q", id)
	}

	// Unsafe characters are replaced before joining.
	dirty := NewClientOrderID("live!", "mean rev/2", "brk.b")
	if !pattern.MatchString(dirty) {
		t.Fatalf("sanitization failed: %q", dirty)
	}

	if NewClientOrderID("paper", "s", "AAPL") == NewClientOrderID("paper", "s", "AAPL") {
		t.Fatal("expected distinct suffixes per call")
	}
}
