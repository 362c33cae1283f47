// Copyright (c) chatlogd contributors.
// All rights reserved. This file is part of chatlogd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/chatlogd/chatlogd/internal/config"
	"github.com/chatlogd/chatlogd/internal/httpapi"
	"github.com/chatlogd/chatlogd/internal/ingest"
	"github.com/chatlogd/chatlogd/internal/metrics"
	"github.com/chatlogd/chatlogd/internal/migrate"
	"github.com/chatlogd/chatlogd/internal/store"
	"github.com/chatlogd/chatlogd/internal/writer"
	"github.com/chatlogd/chatlogd/pkg/clog"
)

// version is set at build time via -ldflags, same convention as the
// teacher's cmd/cc-backend build info.
var version = "dev"

func main() {
	cliInit()
	clog.SetLevel(flagLogLevel)
	clog.SetLogDateTime(flagLogDateTime)

	if flagVersion {
		fmt.Printf("chatlogd %s\n", version)
		return
	}

	config.Init(flagConfigFile)

	st, err := store.Connect(config.Keys.ClickHouseDSN)
	if err != nil {
		clog.Fatal(err)
	}
	defer st.Close()

	if flagMigrateDB {
		if err := store.MigrateDB(config.Keys.ClickHouseDSN, st); err != nil {
			clog.Fatal(err)
		}
		clog.Info("chatlogd: schema migrations applied")
		return
	}
	st.CheckVersion()

	reg := prometheus.NewRegistry()
	m := metrics.NewHandles(reg)

	if flagMigrateRoot != "" {
		runLegacyMigration(st, m)
		return
	}

	if !flagServer {
		clog.Fatal("chatlogd: nothing to do; pass -server, -migrate-db, or -migrate-legacy-logs")
	}

	runServer(st, m)
}

// runLegacyMigration drives internal/migrate.Migrator to completion from
// the CLI, honouring the safety gate of spec.md §4.5.1 before doing any
// work, and printing a "don't spam the terminal" progress line the way
// the teacher's initDB.go does.
func runLegacyMigration(st *store.Store, m *metrics.Handles) {
	ctx := context.Background()

	if err := migrate.CheckSafetyGate(ctx, st); err != nil {
		clog.Error(err)
		os.Exit(1)
	}

	var allowlist []string
	if flagMigrateChannels != "" {
		allowlist = strings.Split(flagMigrateChannels, ",")
	}

	migCfg := migrate.DefaultConfig()
	migCfg.Concurrency = config.Keys.MigrationWorkers
	if flush, err := time.ParseDuration(config.Keys.MigrationFlush); err != nil {
		clog.Fatalf("chatlogd: invalid migration-flush-interval %q: %v", config.Keys.MigrationFlush, err)
	} else {
		migCfg.Inserter.FlushPeriod = flush
	}

	mig := migrate.New(st, m, migCfg)
	progressCh, wait := mig.Run(ctx, flagMigrateRoot, allowlist)
	for p := range progressCh {
		fmt.Printf("\rchatlogd: migrating... %3d%% (%d/%d bytes)", p.Percent, p.BytesProcessed, p.BytesTotal)
	}
	fmt.Println()

	rep, err := wait()
	if err != nil {
		clog.Errorf("chatlogd: migration finished with errors: %v", err)
		for _, taskErr := range rep.TaskErrors {
			clog.Errorf("chatlogd:   %v", taskErr)
		}
		os.Exit(1)
	}
	clog.Infof("chatlogd: migration complete: %d files, %d rows inserted, %d parse errors",
		rep.FilesProcessed, rep.RowsInserted, rep.ParseErrors)
}

// runServer starts the ingest-writer pipeline, the optional NATS ingest
// path, and the read-only query API, then blocks until SIGINT/SIGTERM.
func runServer(st *store.Store, m *metrics.Handles) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	flushInterval, err := time.ParseDuration(config.Keys.FlushInterval)
	if err != nil {
		clog.Fatalf("chatlogd: invalid flush-interval %q: %v", config.Keys.FlushInterval, err)
	}
	retryDelay, err := time.ParseDuration(config.Keys.FlushRetryDelay)
	if err != nil {
		clog.Fatalf("chatlogd: invalid flush-retry-delay %q: %v", config.Keys.FlushRetryDelay, err)
	}

	w := writer.New(st, m, writer.Config{
		ChannelCapacity: config.Keys.ChannelCapacity,
		FlushInterval:   flushInterval,
		Retry:           writer.RetryConfig{MaxAttempts: config.Keys.FlushRetryCount, Delay: retryDelay},
	})
	if err := w.Start(ctx); err != nil {
		clog.Fatal(err)
	}

	sub, err := ingest.Connect(config.Keys.Nats)
	if err != nil {
		clog.Warnf("chatlogd: nats ingest disabled: %v", err)
	}
	if sub != nil {
		if err := sub.Start(ctx, w, m); err != nil {
			clog.Fatal(err)
		}
		defer sub.Close()
	}

	api := httpapi.New(st, w, m)
	r := mux.NewRouter()
	api.MountRoutes(r)

	r.Use(handlers.CompressHandler)
	r.Use(handlers.RecoveryHandler(handlers.PrintRecoveryStack(true)))
	handler := handlers.CustomLoggingHandler(io.Discard, r, func(_ io.Writer, params handlers.LogFormatterParams) {
		clog.Debugf("%s %s (%d, %.02fkb, %dms)",
			params.Request.Method, params.URL.RequestURI(),
			params.StatusCode, float32(params.Size)/1024,
			time.Since(params.TimeStamp).Milliseconds())
	})

	server := http.Server{
		Addr:         config.Keys.Addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // logs streams can run long; no fixed write deadline
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		clog.Infof("chatlogd: listening on %s", config.Keys.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			clog.Fatal(err)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	clog.Info("chatlogd: shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		clog.Warnf("chatlogd: http server shutdown: %v", err)
	}

	if err := w.Shutdown(shutdownCtx); err != nil {
		clog.Warnf("chatlogd: writer shutdown: %v", err)
	}

	cancel()
	wg.Wait()
	clog.Info("chatlogd: shutdown complete")
}
