package adapter

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/anc5557/kis-mcp/internal/domain"
	"github.com/anc5557/kis-mcp/internal/kis"
)

// KIS order division codes.
const (
	ordDvsnLimit  = "00"
	ordDvsnMarket = "01"
)

// Orders is the only adapter issuing brokerage-state-mutating calls. It
// validates every order before anything reaches the KIS API and never
// re-queries balance itself.
type Orders struct {
	sess *kis.Session
	now  func() time.Time
	log  *slog.Logger
}

// NewOrders creates the order adapter on the given session.
func NewOrders(sess *kis.Session, log *slog.Logger) *Orders {
	return &Orders{sess: sess, now: time.Now, log: log}
}

// PlaceRequest carries the parameters of one order submission.
type PlaceRequest struct {
	StockCode string
	Side      domain.OrderSide
	Quantity  int64
	Price     *int64 // nil for market orders
	Method    domain.OrderMethod
}

// validate enforces the trading-safety preconditions locally, before any
// brokerage call.
func (r *PlaceRequest) validate() error {
	if r.Side != domain.OrderSideBuy && r.Side != domain.OrderSideSell {
		return Errorf(KindInvalidArgument, "order side must be buy or sell; got %q", r.Side)
	}
	if r.Quantity <= 0 {
		return Errorf(KindInvalidArgument, "quantity must be a positive number of shares; got %d", r.Quantity)
	}
	switch r.Method {
	case domain.OrderMethodLimit:
		if r.Price == nil {
			return Errorf(KindInvalidArgument, "a limit order requires a price")
		}
		if *r.Price <= 0 {
			return Errorf(KindInvalidArgument, "limit price must be a positive amount of won; got %d", *r.Price)
		}
	case domain.OrderMethodMarket:
		// A priced market order is a contradiction; reject rather than guess
		// which of the two the caller meant.
		if r.Price != nil {
			return Errorf(KindInvalidArgument, "a market order must not carry a price (got %d); omit price or use a limit order", *r.Price)
		}
	default:
		return Errorf(KindInvalidArgument, "order method must be limit or market; got %q", r.Method)
	}
	return nil
}

// Place submits an order. The returned Order reflects the state reported by
// the brokerage: pending when accepted, rejected when refused.
func (o *Orders) Place(ctx context.Context, req PlaceRequest) (*domain.Order, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	ordDvsn, price := ordDvsnMarket, int64(0)
	if req.Method == domain.OrderMethodLimit {
		ordDvsn, price = ordDvsnLimit, *req.Price
	}

	order := &domain.Order{
		StockCode: req.StockCode,
		Side:      req.Side,
		Method:    req.Method,
		Quantity:  req.Quantity,
		Price:     req.Price,
		Status:    domain.OrderStatusSubmitted,
	}

	p, err := o.sess.API().SubmitOrder(ctx, req.Side == domain.OrderSideBuy, req.StockCode, req.Quantity, price, ordDvsn)
	if err != nil {
		var apiErr *kis.APIError
		if errors.As(err, &apiErr) {
			// The brokerage saw the order and refused it. That is a terminal
			// order state, not a transport failure.
			order.Status = domain.OrderStatusRejected
			order.Message = apiErr.Message
			o.log.Warn("order rejected", "code", req.StockCode, "side", req.Side, "reason", apiErr.Message)
			return order, nil
		}
		return nil, Wrap(KindOrderSubmissionFailed, err, "order submission for '%s' failed", req.StockCode)
	}

	id, err := kis.Str(p, "orderID")
	if err != nil {
		return nil, Wrap(KindOrderSubmissionFailed, err, "brokerage returned no order id for '%s'", req.StockCode)
	}
	order.ID = id
	order.Status = domain.OrderStatusPending
	order.PendingQty = req.Quantity
	order.SubmitTime, _ = kis.Str(p, "orderTime")
	order.Message = "order submitted"
	o.log.Info("order placed", "id", id, "code", req.StockCode, "side", req.Side, "qty", req.Quantity, "method", req.Method)
	return order, nil
}

// Cancel cancels a pending order by id. An id present in today's order
// history but absent from the pending list is terminal, hence not
// cancellable; an id in neither place is unknown.
func (o *Orders) Cancel(ctx context.Context, orderID string) (*domain.Order, error) {
	if orderID == "" {
		return nil, Errorf(KindInvalidArgument, "order_id must not be empty")
	}

	pending, err := o.sess.API().PendingOrders(ctx)
	if err != nil {
		return nil, Wrap(KindOrderSubmissionFailed, err, "pending order inquiry failed")
	}

	var target kis.Payload
	for _, row := range pending {
		if id, err := kis.Str(row, "orderID"); err == nil && id == orderID {
			target = row
			break
		}
		if id, err := kis.Str(row, "originalID"); err == nil && id == orderID {
			target = row
			break
		}
	}

	if target == nil {
		day := o.now()
		history, err := o.sess.API().DailyOrders(ctx, day, day)
		if err != nil {
			return nil, Wrap(KindOrderSubmissionFailed, err, "order history inquiry failed")
		}
		for _, row := range history {
			if id, err := kis.Str(row, "orderID"); err == nil && id == orderID {
				return nil, Errorf(KindOrderNotCancellable, "order '%s' is already filled or cancelled", orderID)
			}
		}
		return nil, Errorf(KindOrderNotFound, "order '%s' is unknown to the brokerage", orderID)
	}

	branch, _ := kis.Str(target, "orderBranch")
	if _, err := o.sess.API().CancelOrder(ctx, branch, orderID); err != nil {
		var apiErr *kis.APIError
		if errors.As(err, &apiErr) {
			return nil, Wrap(KindOrderNotCancellable, err, "brokerage refused to cancel order '%s': %s", orderID, apiErr.Message)
		}
		return nil, Wrap(KindOrderSubmissionFailed, err, "cancel request for order '%s' failed", orderID)
	}

	o.log.Info("order cancelled", "id", orderID)
	return &domain.Order{
		ID:      orderID,
		Status:  domain.OrderStatusCancelled,
		Message: "cancel request submitted",
	}, nil
}

// Pending lists the orders currently in pending or partially_filled state.
func (o *Orders) Pending(ctx context.Context) ([]domain.Order, error) {
	rows, err := o.sess.API().PendingOrders(ctx)
	if err != nil {
		return nil, Wrap(KindAccountDataUnavailable, err, "pending order inquiry failed")
	}

	orders := []domain.Order{}
	for _, row := range rows {
		id, err := kis.Str(row, "orderID")
		if err != nil {
			continue
		}
		ord := domain.Order{ID: id, Side: sideFromPayload(row)}
		ord.StockCode, _ = kis.Str(row, "stockCode")
		ord.Quantity, _ = kis.Int(row, "orderQty")
		ord.PendingQty, _ = kis.Int(row, "pendingQty")
		ord.SubmitTime, _ = kis.Str(row, "orderTime")

		if price, err := kis.Int(row, "orderPrice"); err == nil && price > 0 {
			ord.Method = domain.OrderMethodLimit
			ord.Price = &price
		} else {
			ord.Method = domain.OrderMethodMarket
		}

		ord.Status = domain.OrderStatusPending
		if ord.PendingQty > 0 && ord.PendingQty < ord.Quantity {
			ord.Status = domain.OrderStatusPartiallyFilled
		}
		orders = append(orders, ord)
	}
	return orders, nil
}

// sideFromPayload maps the KIS sell/buy division code ("01" sell, "02" buy)
// to an order side.
func sideFromPayload(row kis.Payload) domain.OrderSide {
	code, err := kis.Str(row, "sideCode")
	if err != nil {
		return ""
	}
	switch code {
	case "01":
		return domain.OrderSideSell
	case "02":
		return domain.OrderSideBuy
	default:
		return ""
	}
}
