package reconciler

import (
	"testing"

	"github.com/shopspring/decimal"

	"tradeledger/src/model"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func dp(s string) *decimal.Decimal {
	v := decimal.RequireFromString(s)
	return &v
}

func TestApplyFill(t *testing.T) {
	cases := []struct {
		name     string
		qty      string
		avg      string
		delta    string
		price    string
		wantQty  string
		wantAvg  string
	}{
		{"open from flat", "0", "0", "10", "100", "10", "100"},
		{"enlarge averages cost", "10", "100", "10", "120", "20", "110"},
		{"enlarge fractional", "1", "100", "3", "120", "4", "115"},
		{"reduce keeps entry", "20", "110", "-5", "130", "15", "110"},
		{"exact close keeps entry", "10", "100", "-10", "130", "0", "100"},
		{"flip resets entry", "10", "100", "-15", "95", "-5", "95"},
		{"short enlarge", "-10", "50", "-10", "40", "-20", "45"},
		{"short cover keeps entry", "-10", "50", "4", "45", "-6", "50"},
		{"zero delta no-op", "7", "33", "0", "999", "7", "33"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			qty, avg := ApplyFill(d(tc.qty), d(tc.avg), d(tc.delta), d(tc.price))
			if !qty.Equal(d(tc.wantQty)) {
				t.Errorf("quantity = %s, want %s", qty, tc.wantQty)
			}
			if !avg.Equal(d(tc.wantAvg)) {
				t.Errorf("avg entry = %s, want %s", avg, tc.wantAvg)
			}
		})
	}
}

func TestFillDelta(t *testing.T) {
	order := &model.Order{FilledQuantity: d("3")}

	if got := fillDelta(order, d("5")); !got.Equal(d("2")) {
		t.Errorf("expected delta 2, got %s", got)
	}
	if got := fillDelta(order, d("3")); !got.IsZero() {
		t.Errorf("expected zero delta, got %s", got)
	}
	// Venue reporting less than the ledger is regressive; never unwind.
	if got := fillDelta(order, d("1")); !got.IsZero() {
		t.Errorf("expected zero delta for regressive report, got %s", got)
	}
}

func TestDeltaFillPrice(t *testing.T) {
	// First fill: the cumulative average is the slice price.
	if got := deltaFillPrice(d("0"), nil, d("5"), dp("100")); !got.Equal(d("100")) {
		t.Errorf("expected 100, got %s", got)
	}

	// 5 @ 100 then 5 more moving the average to 110: the slice was 120.
	if got := deltaFillPrice(d("5"), dp("100"), d("10"), dp("110")); !got.Equal(d("120")) {
		t.Errorf("expected 120, got %s", got)
	}

	// No average reported at all.
	if got := deltaFillPrice(d("0"), nil, d("5"), nil); !got.IsZero() {
		t.Errorf("expected zero, got %s", got)
	}

	// Degenerate data falls back to the cumulative average.
	if got := deltaFillPrice(d("10"), dp("200"), d("11"), dp("100")); !got.Equal(d("100")) {
		t.Errorf("expected fallback 100, got %s", got)
	}
}
