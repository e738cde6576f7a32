// Package domain defines the plain value types exchanged between the tool
// layer and the brokerage adapters. Every type here is a fully-resolved
// snapshot; none holds a live handle back into the brokerage client.
package domain

import "time"

// OrderSide is the direction of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderMethod distinguishes limit orders from market orders.
type OrderMethod string

const (
	OrderMethodLimit  OrderMethod = "limit"
	OrderMethodMarket OrderMethod = "market"
)

// OrderStatus is the lifecycle state of an order as reported by the
// brokerage. Filled, rejected, and cancelled are terminal.
type OrderStatus string

const (
	OrderStatusSubmitted       OrderStatus = "submitted"
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusRejected        OrderStatus = "rejected"
	OrderStatusCancelled       OrderStatus = "cancelled"
)

// Terminal reports whether s is a terminal order state.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFilled || s == OrderStatusRejected || s == OrderStatusCancelled
}

// ChartPeriod selects the bar interval for chart queries.
type ChartPeriod string

const (
	PeriodDay   ChartPeriod = "day"
	PeriodWeek  ChartPeriod = "week"
	PeriodMonth ChartPeriod = "month"
)

// MarketPhase is the current KRX trading session phase.
type MarketPhase string

const (
	PhaseClosed      MarketPhase = "closed"
	PhasePremarket   MarketPhase = "premarket"
	PhaseOpen        MarketPhase = "open"
	PhaseAftermarket MarketPhase = "aftermarket"
)

// Quote is a point-in-time price snapshot for one stock. All KRW amounts are
// integer won; rates are percentages.
type Quote struct {
	StockCode    string    `json:"stock_code"`
	CurrentPrice int64     `json:"current_price"`
	Change       int64     `json:"change"`
	ChangeRate   float64   `json:"change_percent"`
	Volume       int64     `json:"volume"`
	TradingValue int64     `json:"trading_value"`
	MarketCap    int64     `json:"market_cap"`
	Open         int64     `json:"open_price"`
	High         int64     `json:"high_price"`
	Low          int64     `json:"low_price"`
	Timestamp    time.Time `json:"timestamp"`
}

// OrderBookLevel is one price level of the order book.
type OrderBookLevel struct {
	Price    int64 `json:"price"`
	Quantity int64 `json:"quantity"`
}

// OrderBook holds both sides of the book, each ordered best-price-first:
// asks ascending by price, bids descending.
type OrderBook struct {
	StockCode string           `json:"stock_code"`
	Asks      []OrderBookLevel `json:"asks"`
	Bids      []OrderBookLevel `json:"bids"`
	Timestamp time.Time        `json:"timestamp"`
}

// ChartBar is one OHLCV bar. Date is formatted YYYY-MM-DD.
type ChartBar struct {
	Date   string `json:"date"`
	Open   int64  `json:"open"`
	High   int64  `json:"high"`
	Low    int64  `json:"low"`
	Close  int64  `json:"close"`
	Volume int64  `json:"volume"`
}

// Chart is an ordered bar sequence, newest bar first.
type Chart struct {
	StockCode string      `json:"stock_code"`
	Period    ChartPeriod `json:"period"`
	Bars      []ChartBar  `json:"data"`
}

// Position is one holding in the account.
type Position struct {
	StockCode    string  `json:"stock_code"`
	Name         string  `json:"item_name"`
	Quantity     int64   `json:"quantity"`
	AveragePrice int64   `json:"average_purchase_price"`
	CurrentPrice int64   `json:"current_price"`
	Valuation    int64   `json:"evaluation_amount"`
	Profit       int64   `json:"profit_loss"`
	ProfitRate   float64 `json:"profit_loss_ratio"`
	SellableQty  int64   `json:"sellable_quantity"`
}

// AccountBalance aggregates account-level totals and all positions.
type AccountBalance struct {
	TotalValuation  int64      `json:"total_evaluation_amount"`
	NetAssets       int64      `json:"net_asset_amount"`
	CashBalance     int64      `json:"cash_balance"`
	StocksValuation int64      `json:"securities_evaluation_amount"`
	Positions       []Position `json:"holdings"`
}

// Order is one brokerage order. Price is nil for market orders.
type Order struct {
	ID         string      `json:"order_id"`
	StockCode  string      `json:"stock_code"`
	Side       OrderSide   `json:"order_type"`
	Method     OrderMethod `json:"order_method"`
	Quantity   int64       `json:"quantity"`
	PendingQty int64       `json:"pending_quantity,omitempty"`
	Price      *int64      `json:"price,omitempty"`
	Status     OrderStatus `json:"status"`
	SubmitTime string      `json:"order_time,omitempty"`
	Message    string      `json:"message,omitempty"`
}

// BuyableAmount is the cash and share count available for a buy at a
// reference price.
type BuyableAmount struct {
	StockCode      string `json:"stock_code"`
	Cash           int64  `json:"buyable_cash"`
	Quantity       int64  `json:"buyable_quantity"`
	ReferencePrice int64  `json:"reference_price"`
	MaxAmount      int64  `json:"max_buyable_amount"`
}

/// SellableQuantity is the share count available for a sell: the held
// quantity minus quantity tied up in pending sell orders.
type SellableQuantity struct {
	StockCode   string `json:"stock_code"`
	Held        int64  `json:"total_quantity"`
	Sellable    int64  `json:"sellable_quantity"`
	PendingSell int64  `json:"pending_sell_quantity"`
}

// ExecutionRecord is one fill (or partial fill) from the daily execution
// history.
type ExecutionRecord struct {
	OrderID     string    `json:"order_id"`
	StockCode   string    `json:"stock_code"`
	Name        string    `json:"stock_name"`
	Side        OrderSide `json:"order_type"`
	OrderedQty  int64     `json:"quantity"`
	ExecutedQty int64     `json:"executed_quantity"`
	Price       int64     `json:"price"`
	Amount      int64     `json:"amount"`
	Time        string    `json:"execution_time"`
}

// ProfitLossRecord summarizes realized performance over a date range.
type ProfitLossRecord struct {
	StartDate      string            `json:"start_date"`
	EndDate        string            `json:"end_date"`
	RealizedProfit int64             `json:"realized_profit_loss"`
	BuyAmount      int64             `json:"buy_amount"`
	SellAmount     int64             `json:"sell_amount"`
	Daily          []DailyProfitLoss `json:"daily"`
}

// DailyProfitLoss is one day's realized profit within a period query.
type DailyProfitLoss struct {
	Date           string `json:"date"`
	RealizedProfit int64  `json:"realized_profit_loss"`
}

// MarketStatus describes the KRX session at a moment in time.
type MarketStatus struct {
	IsTradingDay   bool        `json:"is_trading_day"`
	Phase          MarketPhase `json:"market_status"`
	CurrentTime    string      `json:"current_time"`
	MarketOpen     string      `json:"market_open_time"`
	MarketClose    string      `json:"market_close_time"`
	PremarketStart string      `json:"premarket_start"`
	AftermarketEnd string      `json:"aftermarket_end"`
}
