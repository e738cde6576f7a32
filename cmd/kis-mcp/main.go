package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/anc5557/kis-mcp/internal/adapter"
	"github.com/anc5557/kis-mcp/internal/config"
	"github.com/anc5557/kis-mcp/internal/kis"
	"github.com/anc5557/kis-mcp/internal/server"
	"github.com/anc5557/kis-mcp/internal/util"
)

func main() {
	// Load config. Credentials normally arrive through the environment so
	// the server can run under an MCP client with no config file at all.
	var (
		cfg *config.Config
		err error
	)
	cfgPath := os.Getenv("KIS_MCP_CONFIG")
	if cfgPath == "" {
		if _, statErr := os.Stat("config/kis-mcp.yaml"); statErr == nil {
			cfgPath = "config/kis-mcp.yaml"
		}
	}
	if cfgPath != "" {
		cfg, err = config.Load(cfgPath)
		if err != nil {
			log.Fatalf("loading config: %v", err)
		}
	} else {
		cfg = config.LoadFromEnv()
	}

	// An explicit transport argument wins over config, so the same binary
	// serves both `kis-mcp` (stdio) and `kis-mcp http` deployments.
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "stdio", "http":
			cfg.Server.Transport = os.Args[1]
		default:
			log.Fatalf("unknown transport %q (want stdio or http)", os.Args[1])
		}
	}

	// Logs go to stderr: on the stdio transport, stdout carries the
	// protocol stream.
	logger := util.NewLogger(cfg.Logging.Level)
	util.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	provider := kis.NewProvider(cfg.KIS, logger)
	sess, err := provider.Session(ctx)
	if err != nil {
		var authErr *kis.AuthError
		if errors.As(err, &authErr) {
			log.Fatalf("brokerage authentication failed: %v", err)
		}
		log.Fatalf("opening brokerage session: %v", err)
	}
	if !sess.Virtual {
		logger.Warn("live trading mode: orders will reach the real market",
			"account", sess.AccountNo)
	}

	srv := server.New(cfg,
		adapter.NewMarketData(sess, logger),
		adapter.NewAccount(sess, logger),
		adapter.NewOrders(sess, logger),
		logger,
	)

	if err := srv.Run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
	logger.Info("server stopped")
}
