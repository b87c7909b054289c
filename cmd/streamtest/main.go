// streamtest connects one market feed and streams normalized events to the console.
// Usage: go run ./cmd/streamtest --market stocks --channels T.AAPL,Q.AAPL
//
// Required environment variables (or a .env file):
//
//	POLYGON_API_KEY - feed API key
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rickgao/marketstream/internal/buffer"
	"github.com/rickgao/marketstream/internal/connection"
	"github.com/rickgao/marketstream/internal/event"
	"github.com/rickgao/marketstream/internal/router"
)

func main() {
	market := flag.String("market", "stocks", "market to connect (stocks, crypto, forex, options, indices)")
	endpoint := flag.String("endpoint", "", "feed URL (default: public endpoint for the market)")
	channels := flag.String("channels", "T.AAPL,Q.AAPL,AM.AAPL", "comma-separated channels to subscribe")
	verbose := flag.Bool("verbose", false, "print full message JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Error("failed to load .env", "error", err)
		os.Exit(1)
	}
	apiKey := os.Getenv("POLYGON_API_KEY")
	if apiKey == "" {
		logger.Error("POLYGON_API_KEY is not set")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	rtr := router.NewRouter(router.DefaultRouterConfig(), nil, logger)

	conn, err := connection.NewMarketConn(*market, *endpoint, apiKey,
		connection.WithLogger(logger),
		connection.WithHandler(rtr.Handle),
		connection.WithHandler(func(msg connection.Message) error {
			// Categories the router does not buffer are printed directly.
			switch msg.Event.(type) {
			case event.Trade, event.Quote, event.Aggregate:
				return nil
			}
			printEvent(msg.Event.Category(), msg, *verbose)
			return nil
		}),
	)
	if err != nil {
		logger.Error("failed to create connection", "error", err)
		os.Exit(1)
	}
	conn.OnStateChange(func(c connection.StateChange) {
		logger.Info("state change", "from", c.From, "to", c.To, "error", c.Err)
	})

	// Start Router
	if err := rtr.Start(ctx); err != nil {
		logger.Error("failed to start router", "error", err)
		os.Exit(1)
	}

	logger.Info("connecting", "market", *market, "endpoint", conn.Endpoint())
	if err := conn.Connect(ctx); err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}

	subs := strings.Split(*channels, ",")
	if err := conn.Subscribe(subs); err != nil {
		logger.Error("failed to subscribe", "error", err)
		os.Exit(1)
	}

	// Start console printers
	buffers := rtr.Buffers()
	go printLoop(ctx, buffers.Trade, func(m router.TradeMsg) {
		if *verbose {
			printEvent(event.CategoryTrade, m, true)
			return
		}
		fmt.Printf("[TRADE] symbol=%s price=%v size=%v exchange=%d id=%s\n",
			m.Trade.Symbol, m.Trade.Price, m.Trade.Size, m.Trade.Venue, m.Trade.TradeID)
	})
	go printLoop(ctx, buffers.Quote, func(m router.QuoteMsg) {
		if *verbose {
			printEvent(event.CategoryQuote, m, true)
			return
		}
		fmt.Printf("[QUOTE] symbol=%s bid=%v x %v ask=%v x %v spread=%v\n",
			m.Quote.Symbol, m.Quote.Bid.Price, m.Quote.Bid.Size, m.Quote.Ask.Price, m.Quote.Ask.Size, m.Quote.Spread)
	})
	go printLoop(ctx, buffers.Aggregate, func(m router.AggregateMsg) {
		if *verbose {
			printEvent(m.Aggregate.Category(), m, true)
			return
		}
		fmt.Printf("[%s] symbol=%s o=%v h=%v l=%v c=%v v=%v start=%s\n",
			m.Aggregate.Category(), m.Aggregate.Symbol,
			m.Aggregate.Open, m.Aggregate.High, m.Aggregate.Low, m.Aggregate.Close,
			m.Aggregate.Volume, m.Aggregate.StartTime)
	})

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				routerStats := rtr.Stats()
				logger.Info("stats",
					"connection", conn.Status().String(),
					"router_received", routerStats.MessagesReceived,
					"router_routed", routerStats.MessagesRouted,
					"router_skipped", routerStats.MessagesSkipped,
					"trade_buf", routerStats.TradeBuffer.Count,
					"quote_buf", routerStats.QuoteBuffer.Count,
					"aggregate_buf", routerStats.AggregateBuffer.Count,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")

	// Wait for shutdown
	<-ctx.Done()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down...")
	conn.Close()
	rtr.Stop(shutdownCtx)

	logger.Info("shutdown complete")
}

func printLoop[T any](ctx context.Context, buf *buffer.Growable[T], show func(T)) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			msg, ok := buf.TryReceive()
			if !ok {
				time.Sleep(10 * time.Millisecond)
				continue
			}
			show(msg)
		}
	}
}

func printEvent(category event.Category, v any, verbose bool) {
	if !verbose {
		if msg, ok := v.(connection.Message); ok {
			fmt.Printf("[%s] symbol=%s ev=%s\n", category, event.SymbolOf(msg.Event), msg.Event.Raw()["ev"])
			return
		}
	}
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Printf("[%s] %s\n", category, data)
}
