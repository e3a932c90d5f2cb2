package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"backdash/internal/config"
	"backdash/internal/mockapi"
	"backdash/internal/util"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	addr := flag.String("addr", "", "listen address (default mock.addr)")
	completeAfter := flag.Int("complete-after", -1, "status polls before a run finishes (default mock.complete_after)")
	flag.Parse()

	// Load config.
	cfg, err := config.Load(config.Path(*configPath))
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if *addr != "" {
		cfg.Mock.Addr = *addr
	}
	if *completeAfter >= 0 {
		cfg.Mock.CompleteAfter = *completeAfter
	}

	// Setup logging.
	logFileName := fmt.Sprintf("/tmp/backdash-mock-%s.log", time.Now().Format("2006-01-02"))
	logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Fatalf("opening log file: %v", err)
	}
	defer logFile.Close()

	w := io.MultiWriter(os.Stdout, logFile)
	logger := util.NewLoggerTo(w, cfg.Logging.Level, "text")
	util.SetDefault(logger)

	srv := mockapi.New(mockapi.Options{
		CompleteAfter:  cfg.Mock.CompleteAfter,
		FailStrategies: cfg.Mock.FailStrategies,
		Logger:         logger,
	})

	httpServer := &http.Server{
		Addr:              cfg.Mock.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		logger.Info("mock backend listening", "addr", httpServer.Addr,
			"complete_after", cfg.Mock.CompleteAfter, "fail_strategies", cfg.Mock.FailStrategies)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down mock backend")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
