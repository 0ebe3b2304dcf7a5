package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jun/drivegate/internal/app"
	"github.com/jun/drivegate/internal/config"
	"github.com/jun/drivegate/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log := logger.New("drivegate", cfg.LogLevel)

	application, err := app.NewApp(context.Background(), cfg, log, prometheus.NewRegistry())
	if err != nil {
		log.Error("init app", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer application.Close()

	lambda.Start(application.HandleRequest)
}
