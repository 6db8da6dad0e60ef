package main

import (
	"context"
	"os"

	"github.com/raakeshmj/textgate/internal/app"
	"github.com/raakeshmj/textgate/internal/audit"
	"github.com/raakeshmj/textgate/internal/config"
	"github.com/raakeshmj/textgate/internal/logger"
	"github.com/raakeshmj/textgate/internal/server"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Logger.WithError(err).Fatal("invalid configuration")
	}

	closer, err := logger.Setup(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		logger.Logger.WithError(err).Fatal("logger setup failed")
	}
	defer closer.Close()

	a, err := app.Open(context.Background(), cfg, audit.NewJSONLogger(os.Stdout))
	if err != nil {
		logger.Logger.WithError(err).Fatal("startup failed")
	}
	defer a.Close()

	srv, err := server.New(a)
	if err != nil {
		logger.Logger.WithError(err).Fatal("startup failed")
	}

	if err := srv.Start(); err != nil {
		logger.LogEvent(logrus.ErrorLevel, "server stopped", logrus.Fields{"error": err.Error()})
		os.Exit(1)
	}
}
