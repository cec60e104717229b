package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	appConfig "github.com/Thomas5624/echo-backend/config"
	"github.com/Thomas5624/echo-backend/handlers"
	"github.com/Thomas5624/echo-backend/sentry"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
	}
	appConfig.NewConfig()
	appConfig.ConfigureLogging(appConfig.Config.Options.LogLevel)

	sentry.Init(appConfig.Config.Sentry.DSN, appConfig.Config.Sentry.Release)
	defer sentry.Flush()

	if err := run(context.Background()); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context) error {
	if appConfig.Config.Server.IsServerless() {
		// the host runtime imports api.Handler and owns the listener
		log.Info("serverless deployment, not starting a listener")
		return nil
	}

	server, err := handlers.NewFromConfig(ctx, appConfig.Config, sentry.GetSentryGin())
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + appConfig.Config.Server.Port,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		log.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("server forced shutdown: %v", err)
		}
	}()

	log.Printf("Starting server on :%s", appConfig.Config.Server.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
