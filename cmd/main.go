package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"email-tracker/internal/config"
	"email-tracker/internal/emailprocessor"
	"email-tracker/internal/httpserver"
	imapclient "email-tracker/internal/imap"
	"email-tracker/internal/liveness"
	"email-tracker/internal/logging"
	"email-tracker/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Log.Fatalf("Error reading configuration file: %v", err)
	}
	logging.SetLevel(cfg.LogLevel)

	emailStore, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		logging.Log.Fatalf("Error opening store: %v", err)
	}
	defer func() {
		if err := emailStore.Close(); err != nil {
			logging.Log.Errorf("Error closing store: %v", err)
		}
	}()
	logging.Log.Infof("Store opened at %s", cfg.Store.Path)

	tracker := liveness.NewTracker(cfg.Liveness, cfg.Server.AllowedOrigins...)

	imapOpts := imapclient.Options{
		Host:        cfg.Email.Host,
		Port:        cfg.Email.Port,
		AuthTimeout: cfg.Email.AuthTimeout,
		ConnTimeout: cfg.Email.ConnTimeout,
	}
	processor := emailprocessor.NewProcessor(func() imapclient.Client {
		return imapclient.NewStandardClient(imapOpts)
	}, emailStore, tracker, cfg.Email)

	router := httpserver.NewRouter(httpserver.New(emailStore, tracker), tracker.ServeWS, cfg.Server)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		tracker.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		processor.Run(ctx)
	}()

	serverErr := make(chan error, 1)
	go func() {
		logging.Log.Infof("Listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logging.Log.Info("Shutting down gracefully...")
	case err := <-serverErr:
		logging.Log.Errorf("Server failed: %v", err)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	tracker.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Log.Errorf("Server shutdown error: %v", err)
	}

	// Waits for an in-flight polling cycle
	wg.Wait()
	logging.Log.Info("Stopped")
}
