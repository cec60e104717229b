// Package handler is the serverless entry point. The host runtime calls Handler per request.
package handler

import (
	"context"
	"net/http"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/Thomas5624/echo-backend/config"
	"github.com/Thomas5624/echo-backend/handlers"
	"github.com/Thomas5624/echo-backend/sentry"
)

var (
	once   sync.Once
	router http.Handler
	err    error
)

func setup() {
	config.NewConfig()
	config.ConfigureLogging(config.Config.Options.LogLevel)
	sentry.Init(config.Config.Sentry.DSN, config.Config.Sentry.Release)

	var server *handlers.Server
	server, err = handlers.NewFromConfig(context.Background(), config.Config, sentry.GetSentryGin())
	if err != nil {
		log.WithFields(log.Fields{"module": "api", "error": err}).Error("failed to build router")
		return
	}
	router = server.Router()
}

// Handler serves one request, building the router on first use.
func Handler(w http.ResponseWriter, r *http.Request) {
	once.Do(setup)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"internal","message":"server failed to start"}`))
		return
	}
	router.ServeHTTP(w, r)
}
