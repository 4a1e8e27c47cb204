package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"heartrisk/config"
	rhttp "heartrisk/http"
	"heartrisk/ml"
	"heartrisk/monitoring"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config")
	flag.Parse()

	// 1. Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := monitoring.NewLogger(monitoring.LogConfig{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	// 2. Load model
	invoker, loadErr := loadInvoker(cfg.ML)
	if loadErr != nil {
		if cfg.ML.ModelRequired() {
			logger.Fatal("failed to load model", zap.String("path", cfg.ML.ModelPath), zap.Error(loadErr))
		}
		logger.Error("model not loaded, serving disabled form", zap.String("path", cfg.ML.ModelPath), zap.Error(loadErr))
	} else {
		logger.Info("model loaded",
			zap.String("path", cfg.ML.ModelPath),
			zap.Float64("threshold", invoker.Threshold()))
	}

	serverConfig := rhttp.ServerConfig{
		Port:           cfg.Http.Port,
		Timeout:        cfg.Http.Timeout,
		AllowedOrigins: cfg.Http.AllowedOrigins,
		MaxBodyBytes:   cfg.Http.MaxBodyBytes,
	}
	if cfg.Metrics.Enabled {
		monitoring.Register()
		monitoring.SetModelLoaded(invoker.Ready())
		serverConfig.MetricsHandler = monitoring.Handler()
	}

	// 3. Start HTTP server
	server := rhttp.NewServer(serverConfig, rhttp.NewHandlers(invoker, loadErr, logger), logger)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// 4. Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	if err := server.Stop(); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("exiting")
}

// loadInvoker always returns a usable invoker; without a model it reports
// not ready.
func loadInvoker(cfg config.MLConfig) (*ml.Invoker, error) {
	model, err := ml.LoadModel(cfg.ModelType, cfg.ModelPath)
	if err != nil {
		return ml.NewInvoker(nil), err
	}
	if cfg.Threshold != nil {
		if model, err = model.WithThreshold(*cfg.Threshold); err != nil {
			return ml.NewInvoker(nil), err
		}
	}
	return ml.NewInvoker(model), nil
}
