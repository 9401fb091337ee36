package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"

	"mediasniff/internal/api"
	"mediasniff/internal/bot"
	"mediasniff/internal/config"
	"mediasniff/internal/intake"
	"mediasniff/internal/logging"
	"mediasniff/internal/query"
	"mediasniff/internal/sniffer"
	"mediasniff/internal/storage"
)

func main() {
	// --- Configuration Loading ---
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger Setup ---
	log, logCloser, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error setting up logging: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	log.WithFields(logrus.Fields{
		"registry_backend": cfg.RegistryBackend,
		"http_addr":        cfg.HTTPAddr,
		"telegram_enabled": cfg.TelegramBotToken != "",
	}).Info("Configuration loaded successfully")

	if err := run(cfg, log); err != nil {
		log.WithError(err).Error("mediasniff exited with error")
		logCloser.Close()
		os.Exit(1)
	}
}

func run(cfg config.Config, log *logrus.Logger) error {
	log.Info("Initializing components...")

	// Registry
	reg, err := storage.New(cfg.RegistryBackend, log)
	if err != nil {
		return fmt.Errorf("failed to initialize registry: %w", err)
	}
	defer func() {
		if err := reg.Close(); err != nil {
			log.WithError(err).Error("Error closing registry")
		}
	}()

	dispatcher := intake.NewDispatcher(reg, cfg.EventBuffer, log)
	svc := query.NewService(dispatcher, log)

	var snf sniffer.Sniffer = sniffer.NewRodSniffer(sniffer.Options{
		ControlURL:      cfg.BrowserControlURL,
		Bin:             cfg.BrowserBin,
		Headless:        cfg.BrowserHeadless,
		StartURLs:       cfg.StartURLs,
		DOMScanInterval: cfg.DOMScanInterval,
	}, log)
	defer func() {
		if err := snf.Close(); err != nil {
			log.WithError(err).Error("Error closing browser")
		}
	}()

	var botHandler *bot.Handler
	if cfg.TelegramBotToken != "" {
		botHandler, err = bot.NewHandler(cfg.TelegramBotToken, svc, snf, log)
		if err != nil {
			return fmt.Errorf("failed to initialize Telegram bot handler: %w", err)
		}
	}

	// --- Application Startup ---
	log.Info("Starting mediasniff...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		dispatcher.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := snf.Run(ctx, dispatcher); err != nil {
			errCh <- fmt.Errorf("sniffer: %w", err)
			stop()
		}
	}()

	if cfg.HTTPAddr != "" {
		server := api.NewServer(svc, snf, log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.ListenAndServe(ctx, cfg.HTTPAddr); err != nil {
				errCh <- err
				stop()
			}
		}()
	}

	if botHandler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			botHandler.Start(ctx)
		}()
	}

	log.Info("mediasniff is running. Press Ctrl+C to exit.")

	// --- Wait for Shutdown Signal ---
	<-ctx.Done()

	log.Info("Shutting down mediasniff...")
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	log.Info("mediasniff shut down gracefully.")
	return nil
}
