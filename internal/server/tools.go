package server

import (
	"context"
	"regexp"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anc5557/kis-mcp/internal/adapter"
	"github.com/anc5557/kis-mcp/internal/domain"
)

var stockCodeRe = regexp.MustCompile(`^\d{6}$`)

const stockCodePattern = `^\d{6}$`

// ---------------------------------------------------------------------------
// Tool inputs
// ---------------------------------------------------------------------------

type emptyInput struct{}

type stockCodeInput struct {
	StockCode string `json:"stock_code" jsonschema:"6-digit stock code, e.g. '005930' for Samsung Electronics"`
}

type chartInput struct {
	StockCode string `json:"stock_code" jsonschema:"6-digit stock code"`
	Period    string `json:"period,omitempty" jsonschema:"bar interval: day, week, or month (default day)"`
	Count     int    `json:"count,omitempty" jsonschema:"number of bars to return, 1-100 (default 20)"`
}

type placeOrderInput struct {
	StockCode   string `json:"stock_code" jsonschema:"6-digit stock code to trade"`
	OrderType   string `json:"order_type" jsonschema:"buy or sell"`
	Quantity    int64  `json:"quantity" jsonschema:"number of shares, must be positive"`
	Price       *int64 `json:"price,omitempty" jsonschema:"limit price in won; required for limit orders, forbidden for market orders"`
	OrderMethod string `json:"order_method,omitempty" jsonschema:"limit or market (default limit)"`
}

type cancelOrderInput struct {
	OrderID string `json:"order_id" jsonschema:"id of the order to cancel, as returned by place_stock_order or get_pending_orders"`
}

type buyableInput struct {
	StockCode string `json:"stock_code" jsonschema:"6-digit stock code"`
	Price     *int64 `json:"price,omitempty" jsonschema:"intended purchase price in won; omit to use the current market price"`
}

type periodInput struct {
	StartDate string `json:"start_date" jsonschema:"start of the range, YYYY-MM-DD"`
	EndDate   string `json:"end_date" jsonschema:"end of the range, YYYY-MM-DD"`
}

type dateInput struct {
	Date string `json:"date" jsonschema:"calendar day to inspect, YYYY-MM-DD"`
}

// List results are wrapped so every tool returns a JSON object.
type pendingOrdersOutput struct {
	Orders []domain.Order `json:"orders"`
}

type executionsOutput struct {
	Executions []domain.ExecutionRecord `json:"executions"`
}

// ---------------------------------------------------------------------------
// Registration
// ---------------------------------------------------------------------------

func (s *Server) registerTools() {
	addTool(s, &mcp.Tool{
		Name:        "get_account_balance",
		Description: "Fetch the full account balance: total assets, cash, and per-holding valuation.",
	}, adapter.KindAccountDataUnavailable, s.getAccountBalance)

	addTool(s, &mcp.Tool{
		Name:        "get_stock_quote",
		Description: "Fetch the real-time quote for a stock: current price, change, volume, day range.",
		InputSchema: schemaFor[stockCodeInput](withStockCodePattern),
	}, adapter.KindMarketDataUnavailable, s.getStockQuote)

	addTool(s, &mcp.Tool{
		Name:        "get_stock_orderbook",
		Description: "Fetch the current order book (bid/ask price levels with quantities) for a stock.",
		InputSchema: schemaFor[stockCodeInput](withStockCodePattern),
	}, adapter.KindMarketDataUnavailable, s.getStockOrderBook)

	addTool(s, &mcp.Tool{
		Name:        "get_stock_chart",
		Description: "Fetch daily, weekly, or monthly OHLCV chart bars for a stock, newest first.",
		InputSchema: schemaFor[chartInput](func(sc *jsonschema.Schema) {
			sc.Properties["stock_code"].Pattern = stockCodePattern
			sc.Properties["period"].Enum = []any{"day", "week", "month"}
		}),
	}, adapter.KindMarketDataUnavailable, s.getStockChart)

	addTool(s, &mcp.Tool{
		Name:        "get_market_status",
		Description: "Report whether the Korean stock market is open and the current session phase.",
	}, adapter.KindMarketDataUnavailable, s.getMarketStatus)

	addTool(s, &mcp.Tool{
		Name:        "place_stock_order",
		Description: "Submit a buy or sell order. Limit orders require a price; market orders must not carry one.",
		InputSchema: schemaFor[placeOrderInput](func(sc *jsonschema.Schema) {
			sc.Properties["stock_code"].Pattern = stockCodePattern
			sc.Properties["order_type"].Enum = []any{"buy", "sell"}
			sc.Properties["order_method"].Enum = []any{"limit", "market"}
		}),
	}, adapter.KindOrderSubmissionFailed, s.placeStockOrder)

	addTool(s, &mcp.Tool{
		Name:        "cancel_stock_order",
		Description: "Cancel a pending order by its order id. Filled or cancelled orders cannot be cancelled.",
	}, adapter.KindOrderSubmissionFailed, s.cancelStockOrder)

	addTool(s, &mcp.Tool{
		Name:        "get_pending_orders",
		Description: "List all orders that are still pending or partially filled.",
	}, adapter.KindAccountDataUnavailable, s.getPendingOrders)

	addTool(s, &mcp.Tool{
		Name:        "get_buyable_amount",
		Description: "Compute the cash and share count available for buying a stock at a given or current price.",
		InputSchema: schemaFor[buyableInput](withStockCodePattern),
	}, adapter.KindAccountDataUnavailable, s.getBuyableAmount)

	addTool(s, &mcp.Tool{
		Name:        "get_sellable_quantity",
		Description: "Report how many shares of a stock can be sold now, net of pending sell orders.",
		InputSchema: schemaFor[stockCodeInput](withStockCodePattern),
	}, adapter.KindAccountDataUnavailable, s.getSellableQuantity)

	addTool(s, &mcp.Tool{
		Name:        "get_period_profit_loss",
		Description: "Summarize realized profit and loss over a date range, with per-day detail.",
	}, adapter.KindAccountDataUnavailable, s.getPeriodProfitLoss)

	addTool(s, &mcp.Tool{
		Name:        "get_daily_executions",
		Description: "List the order executions (fills) of one calendar day.",
	}, adapter.KindAccountDataUnavailable, s.getDailyExecutions)
}

// schemaFor infers the input schema from the struct and applies constraint
// tweaks that struct tags cannot express.
func schemaFor[T any](mutate func(*jsonschema.Schema)) *jsonschema.Schema {
	sc, err := jsonschema.For[T](nil)
	if err != nil {
		panic(err)
	}
	if mutate != nil {
		mutate(sc)
	}
	return sc
}

func withStockCodePattern(sc *jsonschema.Schema) {
	sc.Properties["stock_code"].Pattern = stockCodePattern
}

// ---------------------------------------------------------------------------
// Handlers. Input-shape checks happen here, mirroring the adapter
// preconditions, so malformed input never reaches a brokerage call.
// ---------------------------------------------------------------------------

func validStockCode(code string) error {
	if !stockCodeRe.MatchString(code) {
		return adapter.Errorf(adapter.KindInvalidArgument, "stock_code must be exactly 6 digits; got %q", code)
	}
	return nil
}

func (s *Server) getAccountBalance(ctx context.Context, _ emptyInput) (*domain.AccountBalance, error) {
	return s.acct.Balance(ctx)
}

func (s *Server) getStockQuote(ctx context.Context, in stockCodeInput) (*domain.Quote, error) {
	if err := validStockCode(in.StockCode); err != nil {
		return nil, err
	}
	return s.market.Quote(ctx, in.StockCode)
}

func (s *Server) getStockOrderBook(ctx context.Context, in stockCodeInput) (*domain.OrderBook, error) {
	if err := validStockCode(in.StockCode); err != nil {
		return nil, err
	}
	return s.market.OrderBook(ctx, in.StockCode)
}

func (s *Server) getStockChart(ctx context.Context, in chartInput) (*domain.Chart, error) {
	if err := validStockCode(in.StockCode); err != nil {
		return nil, err
	}
	period := domain.ChartPeriod(in.Period)
	if in.Period == "" {
		period = domain.PeriodDay
	}
	count := in.Count
	if count == 0 {
		count = 20
	}
	return s.market.Chart(ctx, in.StockCode, period, count)
}

func (s *Server) getMarketStatus(ctx context.Context, _ emptyInput) (*domain.MarketStatus, error) {
	return s.market.MarketStatus(ctx)
}

func (s *Server) placeStockOrder(ctx context.Context, in placeOrderInput) (*domain.Order, error) {
	if err := validStockCode(in.StockCode); err != nil {
		return nil, err
	}
	method := domain.OrderMethod(in.OrderMethod)
	if in.OrderMethod == "" {
		method = domain.OrderMethodLimit
	}
	return s.orders.Place(ctx, adapter.PlaceRequest{
		StockCode: in.StockCode,
		Side:      domain.OrderSide(in.OrderType),
		Quantity:  in.Quantity,
		Price:     in.Price,
		Method:    method,
	})
}

func (s *Server) cancelStockOrder(ctx context.Context, in cancelOrderInput) (*domain.Order, error) {
	if in.OrderID == "" {
		return nil, adapter.Errorf(adapter.KindInvalidArgument, "order_id must not be empty")
	}
	return s.orders.Cancel(ctx, in.OrderID)
}

func (s *Server) getPendingOrders(ctx context.Context, _ emptyInput) (*pendingOrdersOutput, error) {
	orders, err := s.orders.Pending(ctx)
	if err != nil {
		return nil, err
	}
	return &pendingOrdersOutput{Orders: orders}, nil
}

func (s *Server) getBuyableAmount(ctx context.Context, in buyableInput) (*domain.BuyableAmount, error) {
	if err := validStockCode(in.StockCode); err != nil {
		return nil, err
	}
	return s.acct.BuyableAmount(ctx, in.StockCode, in.Price)
}

func (s *Server) getSellableQuantity(ctx context.Context, in stockCodeInput) (*domain.SellableQuantity, error) {
	if err := validStockCode(in.StockCode); err != nil {
		return nil, err
	}
	return s.acct.SellableQuantity(ctx, in.StockCode)
}

func (s *Server) getPeriodProfitLoss(ctx context.Context, in periodInput) (*domain.ProfitLossRecord, error) {
	return s.acct.PeriodProfitLoss(ctx, in.StartDate, in.EndDate)
}

func (s *Server) getDailyExecutions(ctx context.Context, in dateInput) (*executionsOutput, error) {
	execs, err := s.acct.DailyExecutions(ctx, in.Date)
	if err != nil {
		return nil, err
	}
	return &executionsOutput{Executions: execs}, nil
}
