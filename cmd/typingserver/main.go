// Copyright 2025 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sentry "github.com/getsentry/sentry-go"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/element-hq/typingserver/internal/clock"
	"github.com/element-hq/typingserver/internal/httputil"
	"github.com/element-hq/typingserver/setup/config"
	"github.com/element-hq/typingserver/syncapi/streams"
	"github.com/element-hq/typingserver/typingapi"
	"github.com/element-hq/typingserver/typingapi/routing"
)

var configPath = flag.String("config", "typingserver.yaml", "The path to the config file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatalf("Invalid config file: %s", *configPath)
	}

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		logrus.WithError(err).Fatalf("Invalid log level: %s", cfg.Logging.Level)
	}
	logrus.SetLevel(level)

	if cfg.Global.Sentry.Enabled {
		logrus.Info("Setting up Sentry for debugging...")
		err = sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Global.Sentry.DSN,
			Environment:      cfg.Global.Sentry.Environment,
			AttachStacktrace: true,
		})
		if err != nil {
			logrus.WithError(err).Panic("failed to start Sentry")
		}
		defer sentry.Flush(time.Second * 2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rsAPI := newHTTPRoomserver(cfg.Global.RoomserverURL)
	fedClient := newHTTPFederation(cfg.Global.ServerName)

	inputAPI, cache := typingapi.NewInternalAPI(ctx, &cfg.TypingAPI, clock.System(), rsAPI, fedClient)
	defer cache.Stop()

	rateLimits := httputil.NewRateLimits(&cfg.RateLimiting)
	defer rateLimits.Stop()

	router := mux.NewRouter().SkipClean(true).UseEncodedPath()
	routing.Setup(
		router.PathPrefix("/_matrix/client/v3").Subrouter(),
		inputAPI, rsAPI, rateLimits,
		newTokenAuthenticator(cfg.Global.AuthURL),
	)
	routing.SetupInternalAPI(
		router.PathPrefix("/api").Subrouter(),
		streams.NewTypingStreamProvider(cache, rsAPI),
	)
	if cfg.Global.Metrics.Enabled {
		router.Handle("/metrics", promhttp.Handler())
	}

	srv := &http.Server{
		Addr:              cfg.Global.ListenAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logrus.WithField("address", cfg.Global.ListenAddress).Info("Starting typing server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("failed to serve HTTP")
		}
	}()

	<-ctx.Done()
	logrus.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("failed to shut down HTTP server cleanly")
	}
	logrus.Info("Typing server stopped")
}
