package domain

import "testing"

func TestEnumValues(t *testing.T) {
	if OrderSideBuy != "buy" || OrderSideSell != "sell" {
		t.Error("OrderSide constants have unexpected values")
	}
	if OrderMethodLimit != "limit" || OrderMethodMarket != "market" {
		t.Error("OrderMethod constants have unexpected values")
	}
	if PeriodDay != "day" || PeriodWeek != "week" || PeriodMonth != "month" {
		t.Error("ChartPeriod constants have unexpected values")
	}
	if PhaseOpen != "open" || PhaseClosed != "closed" {
		t.Error("MarketPhase constants have unexpected values")
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	terminal := []OrderStatus{OrderStatusFilled, OrderStatusRejected, OrderStatusCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s.Terminal() = false, want true", s)
		}
	}
	open := []OrderStatus{OrderStatusSubmitted, OrderStatusPending, OrderStatusPartiallyFilled}
	for _, s := range open {
		if s.Terminal() {
			t.Errorf("%s.Terminal() = true, want false", s)
		}
	}
}

func TestZeroValues(t *testing.T) {
	// Zero-value entities must be safe to construct and inspect.
	q := Quote{}
	if q.StockCode != "" || q.CurrentPrice != 0 || q.Volume != 0 {
		t.Error("expected zero fields for zero-value Quote")
	}
	if !q.Timestamp.IsZero() {
		t.Error("expected zero Timestamp for zero-value Quote")
	}

	o := Order{}
	if o.Price != nil {
		t.Error("expected nil Price for zero-value Order")
	}
	if o.Status.Terminal() {
		t.Error("zero-value Order status must not be terminal")
	}

	b := AccountBalance{}
	if len(b.Positions) != 0 {
		t.Error("expected no positions for zero-value AccountBalance")
	}
}
