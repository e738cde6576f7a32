package adapter

import (
	"context"
	"log/slog"
	"time"

	"github.com/anc5557/kis-mcp/internal/domain"
	"github.com/anc5557/kis-mcp/internal/kis"
)

// dateLayout is the calendar-date representation accepted by account tools.
const dateLayout = "2006-01-02"

// Account serves read-only account operations. It never caches: every call
// re-fetches from the brokerage so concurrent tool calls cannot observe
// stale positions.
type Account struct {
	sess *kis.Session
	log  *slog.Logger
}

// NewAccount creates the account adapter on the given session.
func NewAccount(sess *kis.Session, log *slog.Logger) *Account {
	return &Account{sess: sess, log: log}
}

// Balance aggregates account totals and the full position list.
func (a *Account) Balance(ctx context.Context) (*domain.AccountBalance, error) {
	rows, summary, err := a.sess.API().Balance(ctx)
	if err != nil {
		return nil, Wrap(KindAccountDataUnavailable, err, "balance inquiry failed")
	}
	if summary == nil {
		return nil, Errorf(KindAccountDataUnavailable, "balance inquiry returned no account summary")
	}

	bal := &domain.AccountBalance{Positions: []domain.Position{}}
	bal.TotalValuation, _ = kis.Int(summary, "totalValuation")
	bal.NetAssets, _ = kis.Int(summary, "netAssets")
	bal.CashBalance, _ = kis.Int(summary, "withdrawable")
	bal.StocksValuation, _ = kis.Int(summary, "stocksValuation")
	if bal.TotalValuation < 0 || bal.CashBalance < 0 {
		return nil, Errorf(KindAccountDataUnavailable, "balance failed normalization (negative valuation)")
	}

	for _, row := range rows {
		pos, ok := positionFromPayload(row)
		if !ok {
			continue
		}
		bal.Positions = append(bal.Positions, pos)
	}
	return bal, nil
}

func positionFromPayload(row kis.Payload) (domain.Position, bool) {
	code, err := kis.Str(row, "stockCode")
	if err != nil {
		return domain.Position{}, false
	}
	qty, err := kis.Int(row, "holdingQty")
	if err != nil || qty <= 0 {
		return domain.Position{}, false
	}

	pos := domain.Position{StockCode: code, Quantity: qty}
	pos.Name, _ = kis.Str(row, "stockName")
	pos.AveragePrice, _ = kis.Int(row, "avgPurchasePrice")
	pos.CurrentPrice, _ = kis.Int(row, "currentPrice")
	pos.Valuation, _ = kis.Int(row, "valuationAmount")
	pos.Profit, _ = kis.Int(row, "profitAmount")
	pos.ProfitRate, _ = kis.Float(row, "profitRate")
	pos.SellableQty, _ = kis.Int(row, "orderableQty")
	return pos, true
}

// BuyableAmount computes the cash and share count available for buying a
// stock. A nil price means "at the current market price".
func (a *Account) BuyableAmount(ctx context.Context, code string, price *int64) (*domain.BuyableAmount, error) {
	if price != nil && *price <= 0 {
		return nil, Errorf(KindInvalidArgument, "price must be a positive amount of won; got %d", *price)
	}

	ref := int64(0)
	if price != nil {
		ref = *price
	} else {
		quote, err := a.sess.API().Price(ctx, code)
		if err != nil {
			return nil, quotationError(err, code)
		}
		if ref, err = kis.Int(quote, "currentPrice"); err != nil {
			return nil, Wrap(KindMarketDataUnavailable, err, "no reference price for '%s'", code)
		}
	}

	p, err := a.sess.API().BuyableAmount(ctx, code, ref)
	if err != nil {
		return nil, Wrap(KindAccountDataUnavailable, err, "buyable amount inquiry for '%s' failed", code)
	}

	out := &domain.BuyableAmount{StockCode: code, ReferencePrice: ref}
	out.Cash, _ = kis.Int(p, "buyableCash")
	out.MaxAmount, _ = kis.Int(p, "maxBuyAmount")
	if out.MaxAmount == 0 {
		out.MaxAmount = out.Cash
	}
	qty, err := kis.Int(p, "maxBuyQty")
	if err != nil && ref > 0 {
		// Endpoint revisions that omit the quantity still report cash.
		qty = out.Cash / ref
	}
	out.Quantity = qty
	return out, nil
}

// SellableQuantity reports how many shares of a stock can be sold now: the
// held quantity minus quantity tied up in pending sell orders. A stock with
// no position yields zero, not an error.
func (a *Account) SellableQuantity(ctx context.Context, code string) (*domain.SellableQuantity, error) {
	rows, _, err := a.sess.API().Balance(ctx)
	if err != nil {
		return nil, Wrap(KindAccountDataUnavailable, err, "balance inquiry failed")
	}

	out := &domain.SellableQuantity{StockCode: code}
	for _, row := range rows {
		if c, err := kis.Str(row, "stockCode"); err != nil || c != code {
			continue
		}
		out.Held, _ = kis.Int(row, "holdingQty")
		break
	}

	pending, err := a.sess.API().PendingOrders(ctx)
	if err != nil {
		return nil, Wrap(KindAccountDataUnavailable, err, "pending order inquiry failed")
	}
	for _, row := range pending {
		c, err := kis.Str(row, "stockCode")
		if err != nil || c != code {
			continue
		}
		if sideFromPayload(row) != domain.OrderSideSell {
			continue
		}
		qty, _ := kis.Int(row, "pendingQty")
		out.PendingSell += qty
	}

	out.Sellable = out.Held - out.PendingSell
	if out.Sellable < 0 {
		out.Sellable = 0
	}
	return out, nil
}

// PeriodProfitLoss reports realized profit over a closed date range.
func (a *Account) PeriodProfitLoss(ctx context.Context, startDate, endDate string) (*domain.ProfitLossRecord, error) {
	start, err := time.Parse(dateLayout, startDate)
	if err != nil {
		return nil, Errorf(KindInvalidArgument, "start_date %q is not a YYYY-MM-DD date", startDate)
	}
	end, err := time.Parse(dateLayout, endDate)
	if err != nil {
		return nil, Errorf(KindInvalidArgument, "end_date %q is not a YYYY-MM-DD date", endDate)
	}
	if start.After(end) {
		return nil, Errorf(KindInvalidArgument, "start_date %s is after end_date %s", startDate, endDate)
	}

	daily, summary, err := a.sess.API().PeriodProfit(ctx, start, end)
	if err != nil {
		return nil, Wrap(KindAccountDataUnavailable, err, "period profit inquiry failed")
	}

	rec := &domain.ProfitLossRecord{StartDate: startDate, EndDate: endDate, Daily: []domain.DailyProfitLoss{}}
	if summary != nil {
		rec.RealizedProfit, _ = kis.Int(summary, "realizedProfit")
		rec.BuyAmount, _ = kis.Int(summary, "buyAmount")
		rec.SellAmount, _ = kis.Int(summary, "sellAmount")
	}
	for _, row := range daily {
		date, err := kis.Str(row, "tradeDate")
		if err != nil {
			continue
		}
		profit, _ := kis.Int(row, "realizedProfit")
		rec.Daily = append(rec.Daily, domain.DailyProfitLoss{
			Date:           formatChartDate(date),
			RealizedProfit: profit,
		})
	}
	return rec, nil
}

// DailyExecutions reports the fills of one calendar day. A day without
// executions yields an empty slice, not an error.
func (a *Account) DailyExecutions(ctx context.Context, date string) ([]domain.ExecutionRecord, error) {
	day, err := time.Parse(dateLayout, date)
	if err != nil {
		return nil, Errorf(KindInvalidArgument, "date %q is not a YYYY-MM-DD date", date)
	}

	rows, err := a.sess.API().DailyOrders(ctx, day, day)
	if err != nil {
		return nil, Wrap(KindAccountDataUnavailable, err, "daily execution inquiry failed")
	}

	records := []domain.ExecutionRecord{}
	for _, row := range rows {
		rec := domain.ExecutionRecord{Side: sideFromPayload(row)}
		rec.OrderID, _ = kis.Str(row, "orderID")
		rec.StockCode, _ = kis.Str(row, "stockCode")
		rec.Name, _ = kis.Str(row, "stockName")
		rec.OrderedQty, _ = kis.Int(row, "orderQty")
		rec.ExecutedQty, _ = kis.Int(row, "executedQty")
		rec.Amount, _ = kis.Int(row, "executedAmount")
		rec.Time, _ = kis.Str(row, "orderTime")
		if rec.Price, err = kis.Int(row, "avgExecPrice"); err != nil {
			rec.Price, _ = kis.Int(row, "orderPrice")
		}
		if rec.OrderID == "" {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}
