package app

import (
	"context"
	"fmt"

	"coverscope/internal/gateway/config"
	"coverscope/internal/gateway/handler"
	"coverscope/internal/gateway/server"
	"coverscope/internal/ingest"
	"coverscope/internal/push"
	"coverscope/internal/scanjob"
)

type App struct {
	server *server.Server
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	stores, err := initStores(cfg)
	if err != nil {
		return nil, err
	}

	hub := push.NewHub()
	ingestSvc := ingest.New(stores.registry, stores.importer, stores.blobs, nil, nil, nil)
	var orch *scanjob.Orchestrator
	if cfg.Scan.Enabled {
		runner := &scanjob.ExecRunner{Path: cfg.Scan.Tool, Args: cfg.Scan.Args}
		orch = scanjob.NewOrchestrator(stores.registry, hub, runner, ingestSvc)
		ingestSvc.AttachScans(orch)
	}

	projectHandler := handler.NewProjectHandler(ingestSvc, stores.registry, stores.blobs, orch)
	scanWSHandler := handler.NewScanSocketHandler(hub, stores.registry)

	mux := server.NewMux(projectHandler, scanWSHandler)
	srv := server.New(cfg.Port, mux)

	return &App{
		server: srv,
	}, nil
}

func (a *App) Start() error {
	return a.server.Start()
}

func (a *App) Shutdown(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}
