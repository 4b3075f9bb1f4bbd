// Standalone mock shop for trying the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/tripwire run -c example/tripwire.yaml
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/jpalmerr/tripwire/example/shop"
)

func main() {
	fmt.Println("Mock shop starting on :9999")
	fmt.Println("Products: /product/gpu, /product/monitor, /product/keyboard")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := http.ListenAndServe(":9999", shop.New(logger).Handler()); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
