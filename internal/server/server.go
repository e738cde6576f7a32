// Package server is the tool dispatcher: it validates tool inputs, routes
// them to the brokerage adapters, and wraps every result or failure into the
// uniform MCP response envelope. It also owns transport startup (stdio by
// default, streamable HTTP with metrics as the alternative).
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/anc5557/kis-mcp/internal/adapter"
	"github.com/anc5557/kis-mcp/internal/config"
	"github.com/anc5557/kis-mcp/internal/domain"
)

// serverName and serverVersion identify this MCP implementation to clients.
const (
	serverName    = "kis-trading-mcp"
	serverVersion = "1.0.0"
)

const instructions = "MCP server for Korea Investment Securities: real-time quotes, " +
	"order book and chart data, account balance, buy/sell orders, and pending order management."

// MarketData is what the dispatcher needs from the market-data adapter.
type MarketData interface {
	Quote(ctx context.Context, code string) (*domain.Quote, error)
	OrderBook(ctx context.Context, code string) (*domain.OrderBook, error)
	Chart(ctx context.Context, code string, period domain.ChartPeriod, count int) (*domain.Chart, error)
	MarketStatus(ctx context.Context) (*domain.MarketStatus, error)
}

// Account is what the dispatcher needs from the account adapter.
type Account interface {
	Balance(ctx context.Context) (*domain.AccountBalance, error)
	BuyableAmount(ctx context.Context, code string, price *int64) (*domain.BuyableAmount, error)
	SellableQuantity(ctx context.Context, code string) (*domain.SellableQuantity, error)
	PeriodProfitLoss(ctx context.Context, startDate, endDate string) (*domain.ProfitLossRecord, error)
	DailyExecutions(ctx context.Context, date string) ([]domain.ExecutionRecord, error)
}

// Orders is what the dispatcher needs from the order adapter.
type Orders interface {
	Place(ctx context.Context, req adapter.PlaceRequest) (*domain.Order, error)
	Cancel(ctx context.Context, orderID string) (*domain.Order, error)
	Pending(ctx context.Context) ([]domain.Order, error)
}

// Compile-time interface checks against the concrete adapters.
var (
	_ MarketData = (*adapter.MarketData)(nil)
	_ Account    = (*adapter.Account)(nil)
	_ Orders     = (*adapter.Orders)(nil)
)

// Server hosts the MCP tool surface.
type Server struct {
	cfg    *config.Config
	impl   *mcp.Server
	market MarketData
	acct   Account
	orders Orders
	log    *slog.Logger
}

// New creates a Server and registers all tools on it.
func New(cfg *config.Config, market MarketData, acct Account, orders Orders, log *slog.Logger) *Server {
	s := &Server{
		cfg: cfg,
		impl: mcp.NewServer(
			&mcp.Implementation{Name: serverName, Version: serverVersion},
			&mcp.ServerOptions{Instructions: instructions},
		),
		market: market,
		acct:   acct,
		orders: orders,
		log:    log,
	}
	s.registerTools()
	return s
}

// Run serves MCP on the configured transport and blocks until the context is
// cancelled or the transport fails.
func (s *Server) Run(ctx context.Context) error {
	switch s.cfg.Server.Transport {
	case "http", "streamable-http":
		return s.runHTTP(ctx)
	case "", "stdio":
		s.log.Info("starting MCP server", "transport", "stdio")
		return s.impl.Run(ctx, &mcp.StdioTransport{})
	default:
		return fmt.Errorf("unknown transport %q (want stdio or http)", s.cfg.Server.Transport)
	}
}

func (s *Server) runHTTP(ctx context.Context) error {
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.impl
	}, nil)

	mux := http.NewServeMux()
	mux.Handle(s.cfg.Server.Path, handler)
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("starting MCP server", "transport", "http", "addr", addr, "path", s.cfg.Server.Path)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// addTool registers one typed tool handler, wrapping it with per-call
// logging, metrics, and the uniform error envelope. fallback is the error
// kind reported if a failure ever escapes the adapter taxonomy.
func addTool[In, Out any](s *Server, tool *mcp.Tool, fallback adapter.Kind, h func(ctx context.Context, in In) (Out, error)) {
	mcp.AddTool(s.impl, tool, func(ctx context.Context, _ *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
		callID := uuid.NewString()
		start := time.Now()

		out, err := h(ctx, in)
		elapsed := time.Since(start)
		observeToolCall(tool.Name, err, elapsed)

		if err != nil {
			var zero Out
			s.log.Warn("tool call failed", "tool", tool.Name, "call_id", callID,
				"elapsed", elapsed, "error", err)
			return nil, zero, envelopeError(err, fallback)
		}
		s.log.Debug("tool call ok", "tool", tool.Name, "call_id", callID, "elapsed", elapsed)
		return nil, out, nil
	})
}

// envelopeError guarantees every failure surfaces as "KIND: message". The
// adapter taxonomy already formats itself that way; anything else is masked
// under the tool's fallback kind so internal details never reach the caller.
func envelopeError(err error, fallback adapter.Kind) error {
	if _, ok := adapter.KindOf(err); ok {
		return err
	}
	return fmt.Errorf("%s: unexpected internal error", fallback)
}
