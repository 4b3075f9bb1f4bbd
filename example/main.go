package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/tripwire"
	"github.com/jpalmerr/tripwire/example/shop"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// start the mock shop (see shop/shop.go)
	go func() {
		if err := http.ListenAndServe(":9999", shop.New(logger).Handler()); err != nil {
			logger.Error("mock shop error", "error", err)
		}
	}()
	time.Sleep(100 * time.Millisecond)

	// one site per product from a single declaration
	prices, err := tripwire.NewSiteGrid("Price", "span.price",
		tripwire.WithURLTemplate("http://localhost:9999/product/{{.item}}"),
		tripwire.WithDimensions(map[string][]string{"item": {"gpu", "keyboard"}}),
		tripwire.WithGridSiteOptions(
			tripwire.WithInterval(10*time.Second),
			// "1.299,99 €" -> "129999"
			tripwire.WithTransformers(
				tripwire.RegexExtract(`([\d.]+),(\d+)`),
				tripwire.Replace(".", ""),
			),
			tripwire.WithRules(tripwire.OnDecrease(), tripwire.OnIncrease()),
			tripwire.WithChannels(tripwire.ChannelNtfy),
		),
	)
	if err != nil {
		logger.Error("failed to create sites", "error", err)
		os.Exit(1)
	}

	monitor, err := tripwire.NewSite("Monitor stock", "http://localhost:9999/product/monitor", "#stock",
		tripwire.WithInterval(10*time.Second),
		tripwire.WithRules(tripwire.OnChangeTo("In stock")),
		tripwire.WithChannels(tripwire.ChannelNtfy),
	)
	if err != nil {
		logger.Error("failed to create site", "error", err)
		os.Exit(1)
	}

	// print notifications instead of publishing them to ntfy.sh
	printer := tripwire.NotifierFunc(func(_ context.Context, ch tripwire.Channel, n tripwire.Notification) error {
		fmt.Printf("[%s] %s\n", ch, n.Message())
		return nil
	})

	tw, err := tripwire.New(
		tripwire.WithSites(append(prices, monitor)...),
		tripwire.WithNotifier(printer),
		tripwire.WithStatusPort(8080),
		tripwire.WithLogger(logger),
	)
	if err != nil {
		logger.Error("failed to create tripwire", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  tripwire demo")
	fmt.Println()
	fmt.Println("  Status page: http://localhost:8080")
	fmt.Println("  Mock shop:   http://localhost:9999/product/gpu")
	fmt.Println()
	fmt.Println("  Prices drift every 20-60s. Press Ctrl+C to stop.")
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := tw.Run(ctx); err != nil {
		logger.Error("tripwire error", "error", err)
		os.Exit(1)
	}
}
