// textgatectl administers a textgate data store directly, without going
// through the HTTP server.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/raakeshmj/textgate/internal/app"
	"github.com/raakeshmj/textgate/internal/audit"
	"github.com/raakeshmj/textgate/internal/config"
	"github.com/raakeshmj/textgate/internal/logger"
)

func main() {
	cmd := newRootCommand(func(ctx context.Context) (*app.App, error) {
		cfg := config.Load()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if _, err := logger.Setup(cfg.LogLevel, ""); err != nil {
			return nil, err
		}
		return app.Open(ctx, cfg, audit.NewJSONLogger(os.Stderr))
	})
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
