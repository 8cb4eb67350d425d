// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command workcelld runs the workcell engine: the state store, Node
// Liveness Poller, Scheduler, Step Dispatcher, and Ingress API, wired
// together and served until a shutdown signal arrives.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/madsci/workcell/internal/api"
	"github.com/madsci/workcell/internal/collab"
	"github.com/madsci/workcell/internal/config"
	"github.com/madsci/workcell/internal/dispatcher"
	"github.com/madsci/workcell/internal/liveness"
	"github.com/madsci/workcell/internal/log"
	"github.com/madsci/workcell/internal/nodeclient"
	"github.com/madsci/workcell/internal/scheduler"
	"github.com/madsci/workcell/internal/store"
	"github.com/madsci/workcell/internal/store/memory"
	"github.com/madsci/workcell/internal/store/sqlite"
	"github.com/madsci/workcell/internal/workflowmgr"
	"github.com/madsci/workcell/pkg/httpclient"
	"github.com/madsci/workcell/pkg/madsci"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to workcell.yaml")
		listenAddr  = flag.String("listen", "", "Ingress API listen address, overrides config")
		backend     = flag.String("backend", "", "State backend: memory or sqlite, overrides config")
		definition  = flag.String("definition", "", "Path to the workcell definition JSON file, overrides config")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("workcelld %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	logger := log.New(log.FromEnv())
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *backend != "" {
		cfg.Backend = config.Backend(*backend)
	}
	if *definition != "" {
		cfg.WorkcellDefinitionPath = *definition
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("workcelld exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	s, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening state store: %w", err)
	}
	defer s.Close()

	httpCfg := httpclient.DefaultConfig()

	resourceMgr, err := collab.NewResourceManagerClient(cfg.Collaborators.ResourceManagerURL, httpCfg, log.WithComponent(logger, "resource-manager"))
	if err != nil {
		return fmt.Errorf("building resource manager client: %w", err)
	}
	dataMgr, err := collab.NewDataManagerClient(cfg.Collaborators.DataManagerURL, httpCfg, log.WithComponent(logger, "data-manager"))
	if err != nil {
		return fmt.Errorf("building data manager client: %w", err)
	}
	eventMgr, err := collab.NewEventManagerClient(cfg.Collaborators.EventManagerURL, httpCfg, log.WithComponent(logger, "event-manager"))
	if err != nil {
		return fmt.Errorf("building event manager client: %w", err)
	}

	if cfg.WorkcellDefinitionPath != "" {
		if err := seedDefinition(ctx, s, cfg, resourceMgr, logger); err != nil {
			return fmt.Errorf("seeding workcell definition: %w", err)
		}
	}

	clientFactory := nodeclient.NewRESTFactory(httpCfg)

	disp := dispatcher.New(s, clientFactory, dispatcher.Config{
		PollInterval: cfg.Dispatch.PollInterval,
		Timeout:      cfg.Dispatch.Timeout,
		StateLockTTL: cfg.Dispatch.StateLockTTL,
	})
	sched := scheduler.New(s, disp, scheduler.Config{
		TickInterval:      cfg.Scheduler.TickInterval,
		ColdStartDelay:    cfg.Scheduler.ColdStartDelay,
		HeartbeatInterval: cfg.Scheduler.HeartbeatInterval,
		StateLockTTL:      cfg.Scheduler.StateLockTTL,
	})
	poller := liveness.New(s, clientFactory, liveness.Config{
		Interval:          cfg.Liveness.Interval,
		RequestsPerSecond: cfg.Liveness.RequestsPerSecond,
	})

	manager := workflowmgr.New(s, clientFactory)
	manager.SetEventManager(eventMgr)

	router := api.New(s, manager, clientFactory)
	router.SetDataManager(dataMgr)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	sched.Start(ctx)
	poller.Start(ctx)
	defer sched.Stop()
	defer poller.Stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("ingress API listening", slog.String("addr", cfg.ListenAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, draining ingress API")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("ingress API: %w", err)
		}
		return nil
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down ingress API", slog.Any("error", err))
	}
	return nil
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		return sqlite.New(sqlite.Config{Path: cfg.SQLitePath, WAL: true})
	case config.BackendMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// seedDefinition loads the workcell definition from cfg.WorkcellDefinitionPath
// and runs the atomic startup sequence, unless the store already has a
// definition from a prior run.
func seedDefinition(ctx context.Context, s store.Store, cfg *config.Config, resourceMgr *collab.ResourceManagerClient, logger *slog.Logger) error {
	if existing, err := s.GetWorkcellDefinition(ctx); err == nil && existing != nil {
		logger.Info("state store already has a workcell definition, skipping seed file")
		return nil
	}

	data, err := os.ReadFile(cfg.WorkcellDefinitionPath)
	if err != nil {
		return fmt.Errorf("reading workcell definition file: %w", err)
	}
	var def madsci.WorkcellDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return fmt.Errorf("parsing workcell definition JSON: %w", err)
	}

	logger.Info("initializing workcell from definition file", slog.String("path", cfg.WorkcellDefinitionPath))
	return store.InitializeWorkcell(ctx, s, &def, resourceMgr)
}
