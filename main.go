// zevy - backend service for the Zevy AI chat application.
//
// Copyright (c) 2025 Zevy Cloud
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zevy-cloud/zevy/internal/config"
	"github.com/zevy-cloud/zevy/internal/database"
	"github.com/zevy-cloud/zevy/internal/keys"
	"github.com/zevy-cloud/zevy/internal/server"
)

// Version information (set at build time)
var (
	Version   = "1.0.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "version") {
		fmt.Printf("zevy %s (%s, built %s)\n", Version, GitCommit, BuildDate)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("CONFIG_FAIL | %v", err)
	}
	config.SetGlobal(cfg)

	if cfg.Auth.JWTSecret == "" {
		log.Fatalf("CONFIG_FAIL | auth.jwt_secret is required (set ZEVY_JWT_SECRET)")
	}

	db, err := database.Open(cfg.Storage.DatabasePath)
	if err != nil {
		log.Fatalf("DB_FAIL | %v", err)
	}
	defer db.Close()

	// Environment credential slots win; config pools fill the gaps.
	selector := keys.FromEnv()
	if pools := cfg.Keys.Pools(); poolCount(selector) == 0 {
		selector.SetPools(pools)
	}

	srv := server.NewServer(cfg, db, selector)

	// Hot-reload credential pools when the config file changes.
	if path, err := config.ConfigPath(); err == nil {
		watcher, err := config.NewWatcher(path, func(next *config.Config) {
			config.SetGlobal(next)
			selector.SetPools(next.Keys.Pools())
			log.Printf("CONFIG_RELOAD | credential pools refreshed")
		})
		if err == nil {
			if err := watcher.Watch(); err != nil {
				log.Printf("CONFIG_WATCH_FAIL | %v", err)
			}
			defer watcher.Close()
		}
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("SERVER_FAIL | %v", err)
	case sig := <-stop:
		log.Printf("SERVER_SIGNAL | %v", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("SERVER_SHUTDOWN_FAIL | %v", err)
	}
}

func poolCount(s *keys.Selector) int {
	total := 0
	for _, p := range []keys.Provider{
		keys.ProviderGemini, keys.ProviderGroq, keys.ProviderGoogle,
		keys.ProviderNews, keys.ProviderFlux,
	} {
		total += s.PoolSize(p)
	}
	return total
}
