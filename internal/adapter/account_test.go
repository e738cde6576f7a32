package adapter

import (
	"context"
	"net/http"
	"testing"
)

const (
	balancePath     = "/uapi/domestic-stock/v1/trading/inquire-balance"
	buyablePath     = "/uapi/domestic-stock/v1/trading/inquire-psbl-order"
	pendingPath     = "/uapi/domestic-stock/v1/trading/inquire-psbl-rvsecncl"
	dailyCcldPath   = "/uapi/domestic-stock/v1/trading/inquire-daily-ccld"
	periodProfPath  = "/uapi/domestic-stock/v1/trading/inquire-period-profit"
	balanceSummary  = "output2"
	balanceHoldings = "output1"
)

func balanceFixture() http.HandlerFunc {
	return kisOK(map[string]any{
		balanceHoldings: []map[string]any{
			{
				"pdno": "005930", "prdt_name": "삼성전자",
				"hldg_qty": "100", "ord_psbl_qty": "80",
				"pchs_avg_pric": "65000.00", "prpr": "71900",
				"evlu_amt": "7190000", "evlu_pfls_amt": "690000",
				"evlu_pfls_rt": "10.61",
			},
			// Sold-out line: zero quantity rows are omitted from positions.
			{"pdno": "000660", "prdt_name": "SK하이닉스", "hldg_qty": "0"},
		},
		balanceSummary: []map[string]any{{
			"tot_evlu_amt": "12190000", "nass_amt": "12190000",
			"prvs_rcdl_excc_amt": "5000000", "scts_evlu_amt": "7190000",
		}},
	})
}

func TestBalance(t *testing.T) {
	sess, mux := newTestSession(t)
	mux.Handle(balancePath, balanceFixture())

	acct := NewAccount(sess, testLogger())
	bal, err := acct.Balance(context.Background())
	if err != nil {
		t.Fatalf("Balance returned error: %v", err)
	}

	if bal.TotalValuation != 12190000 {
		t.Errorf("TotalValuation = %d, want 12190000", bal.TotalValuation)
	}
	if bal.CashBalance != 5000000 {
		t.Errorf("CashBalance = %d, want 5000000", bal.CashBalance)
	}
	if len(bal.Positions) != 1 {
		t.Fatalf("positions = %d, want 1 (zero-quantity line dropped)", len(bal.Positions))
	}
	pos := bal.Positions[0]
	if pos.StockCode != "005930" || pos.Quantity != 100 {
		t.Errorf("position = %+v, want 100 shares of 005930", pos)
	}
	if pos.AveragePrice != 65000 {
		t.Errorf("AveragePrice = %d, want 65000", pos.AveragePrice)
	}
	if pos.Profit != 690000 {
		t.Errorf("Profit = %d, want 690000", pos.Profit)
	}
}

func TestBalanceUnavailable(t *testing.T) {
	sess, mux := newTestSession(t)
	mux.Handle(balancePath, kisReject("EGW00001", "일시적인 오류입니다"))

	acct := NewAccount(sess, testLogger())
	_, err := acct.Balance(context.Background())
	wantKind(t, err, KindAccountDataUnavailable)
}

func TestBuyableAmountInvalidPrice(t *testing.T) {
	sess, mux := newTestSession(t)
	mux.HandleFunc(buyablePath, func(w http.ResponseWriter, r *http.Request) {
		t.Error("invalid price must not reach the brokerage")
	})

	acct := NewAccount(sess, testLogger())
	for _, bad := range []int64{0, -100} {
		price := bad
		_, err := acct.BuyableAmount(context.Background(), "005930", &price)
		wantKind(t, err, KindInvalidArgument)
	}
}

func TestBuyableAmountAtMarketPrice(t *testing.T) {
	sess, mux := newTestSession(t)
	mux.Handle(pricePath, kisOK(map[string]any{
		"output": map[string]any{"stck_prpr": "50000"},
	}))
	mux.Handle(buyablePath, kisOK(map[string]any{
		"output": map[string]any{
			"ord_psbl_cash": "5000000", "max_buy_qty": "100", "max_buy_amt": "5000000",
		},
	}))

	acct := NewAccount(sess, testLogger())
	out, err := acct.BuyableAmount(context.Background(), "005930", nil)
	if err != nil {
		t.Fatalf("BuyableAmount returned error: %v", err)
	}
	if out.ReferencePrice != 50000 {
		t.Errorf("ReferencePrice = %d, want current price 50000", out.ReferencePrice)
	}
	if out.Quantity != 100 || out.Cash != 5000000 {
		t.Errorf("Quantity/Cash = %d/%d, want 100/5000000", out.Quantity, out.Cash)
	}
}

func TestBuyableAmountQuantityFallback(t *testing.T) {
	// An endpoint revision that drops the quantity field still yields a
	// quantity derived from cash and the reference price.
	sess, mux := newTestSession(t)
	mux.Handle(buyablePath, kisOK(map[string]any{
		"output": map[string]any{"ord_psbl_cash": "1000000"},
	}))

	acct := NewAccount(sess, testLogger())
	price := int64(30000)
	out, err := acct.BuyableAmount(context.Background(), "005930", &price)
	if err != nil {
		t.Fatalf("BuyableAmount returned error: %v", err)
	}
	if out.Quantity != 33 {
		t.Errorf("Quantity = %d, want 33 (1000000/30000)", out.Quantity)
	}
}

func TestSellableQuantityNoPosition(t *testing.T) {
	sess, mux := newTestSession(t)
	mux.Handle(balancePath, balanceFixture())
	mux.Handle(pendingPath, kisOK(map[string]any{"output": []map[string]any{}}))

	acct := NewAccount(sess, testLogger())
	out, err := acct.SellableQuantity(context.Background(), "035420")
	if err != nil {
		t.Fatalf("SellableQuantity returned error: %v", err)
	}
	if out.Held != 0 || out.Sellable != 0 || out.PendingSell != 0 {
		t.Errorf("no-position result = %+v, want all zero", out)
	}
}

func TestSellableQuantityMinusPendingSells(t *testing.T) {
	sess, mux := newTestSession(t)
	mux.Handle(balancePath, balanceFixture())
	mux.Handle(pendingPath, kisOK(map[string]any{
		"output": []map[string]any{
			{"odno": "0001", "pdno": "005930", "sll_buy_dvsn_cd": "01", "psbl_qty": "30", "ord_qty": "30"},
			// Pending buy must not reduce sellable quantity.
			{"odno": "0002", "pdno": "005930", "sll_buy_dvsn_cd": "02", "psbl_qty": "10", "ord_qty": "10"},
			// Other stock's sell is irrelevant.
			{"odno": "0003", "pdno": "000660", "sll_buy_dvsn_cd": "01", "psbl_qty": "5", "ord_qty": "5"},
		},
	}))

	acct := NewAccount(sess, testLogger())
	out, err := acct.SellableQuantity(context.Background(), "005930")
	if err != nil {
		t.Fatalf("SellableQuantity returned error: %v", err)
	}
	if out.Held != 100 {
		t.Errorf("Held = %d, want 100", out.Held)
	}
	if out.PendingSell != 30 {
		t.Errorf("PendingSell = %d, want 30", out.PendingSell)
	}
	if out.Sellable != 70 {
		t.Errorf("Sellable = %d, want 70", out.Sellable)
	}
}

func TestPeriodProfitLossValidation(t *testing.T) {
	sess, mux := newTestSession(t)
	mux.HandleFunc(periodProfPath, func(w http.ResponseWriter, r *http.Request) {
		t.Error("invalid dates must not reach the brokerage")
	})

	acct := NewAccount(sess, testLogger())
	cases := [][2]string{
		{"2025/01/01", "2025-01-31"},
		{"2025-01-01", "31-01-2025"},
		{"2025-02-01", "2025-01-01"}, // start after end
	}
	for _, c := range cases {
		_, err := acct.PeriodProfitLoss(context.Background(), c[0], c[1])
		wantKind(t, err, KindInvalidArgument)
	}
}

func TestPeriodProfitLoss(t *testing.T) {
	sess, mux := newTestSession(t)
	mux.Handle(periodProfPath, kisOK(map[string]any{
		"output1": []map[string]any{
			{"trad_dt": "20250103", "rlzt_pfls": "15000"},
			{"trad_dt": "20250102", "rlzt_pfls": "-5000"},
		},
		"output2": []map[string]any{
			{"rlzt_pfls": "10000", "pchs_amt": "2000000", "sll_amt": "2010000"},
		},
	}))

	acct := NewAccount(sess, testLogger())
	rec, err := acct.PeriodProfitLoss(context.Background(), "2025-01-01", "2025-01-31")
	if err != nil {
		t.Fatalf("PeriodProfitLoss returned error: %v", err)
	}
	if rec.RealizedProfit != 10000 {
		t.Errorf("RealizedProfit = %d, want 10000", rec.RealizedProfit)
	}
	if len(rec.Daily) != 2 {
		t.Fatalf("daily rows = %d, want 2", len(rec.Daily))
	}
	if rec.Daily[0].Date != "2025-01-03" || rec.Daily[0].RealizedProfit != 15000 {
		t.Errorf("daily[0] = %+v, want 2025-01-03 / 15000", rec.Daily[0])
	}
	if rec.Daily[1].RealizedProfit != -5000 {
		t.Errorf("daily[1].RealizedProfit = %d, want -5000", rec.Daily[1].RealizedProfit)
	}
}

func TestDailyExecutionsEmpty(t *testing.T) {
	sess, mux := newTestSession(t)
	mux.Handle(dailyCcldPath, kisOK(map[string]any{"output1": []map[string]any{}}))

	acct := NewAccount(sess, testLogger())
	recs, err := acct.DailyExecutions(context.Background(), "2025-01-01")
	if err != nil {
		t.Fatalf("DailyExecutions returned error: %v", err)
	}
	if recs == nil || len(recs) != 0 {
		t.Errorf("executions = %v, want empty non-nil slice", recs)
	}
}

func TestDailyExecutions(t *testing.T) {
	sess, mux := newTestSession(t)
	mux.Handle(dailyCcldPath, kisOK(map[string]any{
		"output1": []map[string]any{{
			"odno": "0000117057", "pdno": "005930", "prdt_name": "삼성전자",
			"sll_buy_dvsn_cd": "02", "ord_qty": "10", "tot_ccld_qty": "10",
			"avg_prvs": "71900", "tot_ccld_amt": "719000", "ord_tmd": "091523",
		}},
	}))

	acct := NewAccount(sess, testLogger())
	recs, err := acct.DailyExecutions(context.Background(), "2025-06-02")
	if err != nil {
		t.Fatalf("DailyExecutions returned error: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("executions = %d, want 1", len(recs))
	}
	rec := recs[0]
	if rec.OrderID != "0000117057" || rec.Side != "buy" {
		t.Errorf("record = %+v, want buy order 0000117057", rec)
	}
	if rec.ExecutedQty != 10 || rec.Price != 71900 || rec.Amount != 719000 {
		t.Errorf("fill = qty %d @ %d (%d), want 10 @ 71900 (719000)", rec.ExecutedQty, rec.Price, rec.Amount)
	}
}

func TestDailyExecutionsBadDate(t *testing.T) {
	sess, _ := newTestSession(t)
	acct := NewAccount(sess, testLogger())
	_, err := acct.DailyExecutions(context.Background(), "20250101")
	wantKind(t, err, KindInvalidArgument)
}
