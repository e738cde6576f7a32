package adapter

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/anc5557/kis-mcp/internal/domain"
	"github.com/anc5557/kis-mcp/internal/kis"
	"github.com/anc5557/kis-mcp/internal/util"
)

// MaxChartBars bounds chart queries so one tool call cannot fan out into an
// unbounded KIS request range.
const MaxChartBars = 100

const orderBookDepth = 10

// MarketData serves read-only quotation operations.
type MarketData struct {
	sess *kis.Session
	cal  *util.TradingCalendar
	now  func() time.Time
	log  *slog.Logger
}

// NewMarketData creates the market-data adapter on the given session.
func NewMarketData(sess *kis.Session, log *slog.Logger) *MarketData {
	return &MarketData{
		sess: sess,
		cal:  util.NewTradingCalendar(),
		now:  time.Now,
		log:  log,
	}
}

// Quote fetches the current price snapshot for one stock.
func (m *MarketData) Quote(ctx context.Context, code string) (*domain.Quote, error) {
	p, err := m.sess.API().Price(ctx, code)
	if err != nil {
		return nil, quotationError(err, code)
	}

	// A resolvable price is the one hard requirement; everything else
	// degrades to zero when an alias is missing.
	price, err := kis.Int(p, "currentPrice")
	if err != nil {
		return nil, Wrap(KindMarketDataUnavailable, err, "no tradable price for '%s'", code)
	}

	q := &domain.Quote{
		StockCode:    code,
		CurrentPrice: price,
		Timestamp:    m.now(),
	}
	q.Change, _ = kis.Int(p, "changeAmount")
	q.ChangeRate, _ = kis.Float(p, "changeRate")
	q.Volume, _ = kis.Int(p, "volume")
	q.TradingValue, _ = kis.Int(p, "tradingValue")
	q.MarketCap, _ = kis.Int(p, "marketCap")
	q.Open, _ = kis.Int(p, "openPrice")
	q.High, _ = kis.Int(p, "highPrice")
	q.Low, _ = kis.Int(p, "lowPrice")

	if q.CurrentPrice < 0 || q.Volume < 0 {
		return nil, Errorf(KindMarketDataUnavailable, "quote for '%s' failed normalization (negative price or volume)", code)
	}
	return q, nil
}

// OrderBook fetches both sides of the book for one stock, each ordered
// best-price-first.
func (m *MarketData) OrderBook(ctx context.Context, code string) (*domain.OrderBook, error) {
	p, err := m.sess.API().OrderBook(ctx, code)
	if err != nil {
		return nil, quotationError(err, code)
	}

	book := &domain.OrderBook{StockCode: code, Timestamp: m.now()}
	for i := 1; i <= orderBookDepth; i++ {
		if price, err := kis.IntAt(p, "askPrice", i); err == nil && price > 0 {
			qty, _ := kis.IntAt(p, "askQty", i)
			book.Asks = append(book.Asks, domain.OrderBookLevel{Price: price, Quantity: qty})
		}
		if price, err := kis.IntAt(p, "bidPrice", i); err == nil && price > 0 {
			qty, _ := kis.IntAt(p, "bidQty", i)
			book.Bids = append(book.Bids, domain.OrderBookLevel{Price: price, Quantity: qty})
		}
	}
	if len(book.Asks) == 0 && len(book.Bids) == 0 {
		return nil, Errorf(KindMarketDataUnavailable, "no order book levels for '%s'", code)
	}

	// Best price first, whatever order the payload arrived in.
	sort.Slice(book.Asks, func(i, j int) bool { return book.Asks[i].Price < book.Asks[j].Price })
	sort.Slice(book.Bids, func(i, j int) bool { return book.Bids[i].Price > book.Bids[j].Price })
	return book, nil
}

// Chart fetches up to count OHLCV bars, newest first.
func (m *MarketData) Chart(ctx context.Context, code string, period domain.ChartPeriod, count int) (*domain.Chart, error) {
	var periodCode string
	var lookbackDays int
	switch period {
	case domain.PeriodDay:
		periodCode, lookbackDays = "D", count*2+14
	case domain.PeriodWeek:
		periodCode, lookbackDays = "W", count*10
	case domain.PeriodMonth:
		periodCode, lookbackDays = "M", count*40
	default:
		return nil, Errorf(KindInvalidArgument, "period must be one of day, week, month; got %q", period)
	}
	if count <= 0 || count > MaxChartBars {
		return nil, Errorf(KindInvalidArgument, "count must be between 1 and %d; got %d", MaxChartBars, count)
	}

	end := m.now()
	start := end.AddDate(0, 0, -lookbackDays)
	rows, err := m.sess.API().DailyChart(ctx, code, periodCode, start, end)
	if err != nil {
		return nil, quotationError(err, code)
	}

	chart := &domain.Chart{StockCode: code, Period: period, Bars: []domain.ChartBar{}}
	for _, row := range rows {
		if len(chart.Bars) == count {
			break
		}
		date, err := kis.Str(row, "barDate")
		if err != nil {
			continue // filler row without a date
		}
		bar := domain.ChartBar{Date: formatChartDate(date)}
		bar.Open, _ = kis.Int(row, "openPrice")
		bar.High, _ = kis.Int(row, "highPrice")
		bar.Low, _ = kis.Int(row, "lowPrice")
		bar.Close, _ = kis.Int(row, "closePrice")
		bar.Volume, _ = kis.Int(row, "volume")
		chart.Bars = append(chart.Bars, bar)
	}
	return chart, nil
}

// MarketStatus reports the KRX session phase. Computed from the local
// trading calendar; no brokerage call involved.
func (m *MarketData) MarketStatus(_ context.Context) (*domain.MarketStatus, error) {
	st := m.cal.Status(m.now())
	return &st, nil
}

// formatChartDate converts the KIS YYYYMMDD date to YYYY-MM-DD.
func formatChartDate(d string) string {
	if len(d) != 8 {
		return d
	}
	return d[:4] + "-" + d[4:6] + "-" + d[6:]
}

// quotationError translates a KIS call failure in the quotation paths: a
// business-level rejection means the brokerage could not resolve the code,
// anything else is the market data being unreachable.
func quotationError(err error, code string) error {
	var apiErr *kis.APIError
	if errors.As(err, &apiErr) {
		return Wrap(KindInvalidStockCode, err, "stock code '%s' was rejected by the brokerage: %s", code, apiErr.Message)
	}
	return Wrap(KindMarketDataUnavailable, err, "market data call for '%s' failed", code)
}
