package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quotepilot/internal/browser"
	"quotepilot/internal/carrier"
	"quotepilot/internal/carrier/geico"
	"quotepilot/internal/carrier/progressive"
	"quotepilot/internal/config"
	"quotepilot/internal/recorder"
	"quotepilot/internal/server"
	"quotepilot/internal/task"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the quotepilot config file")
	listenAddr := flag.String("listen", "", "Optional listen address override (falls back to config)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}

	if cfg.Server.LogFile != "" {
		logFile, err := os.OpenFile(cfg.Server.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			log.SetOutput(logFile)
			defer logFile.Close()
		} else {
			log.Printf("could not open log file %s, keeping stderr: %v", cfg.Server.LogFile, err)
		}
	}

	shots, err := recorder.New(cfg.Recorder)
	if err != nil {
		log.Fatalf("failed to initialize recorder: %v", err)
	}
	defer shots.Close()

	manager := browser.NewManager(cfg.Browser)
	if err := manager.Start(ctx); err != nil {
		log.Fatalf("failed to start browser manager: %v", err)
	}
	defer manager.Shutdown()

	agents := carrier.NewRegistry()
	agents.Register(progressive.New())
	agents.Register(geico.New())

	tasks := task.NewRegistry()
	tasks.OnCleanup(func(taskID string) {
		manager.CloseTask(taskID)
		for _, a := range agents.All() {
			a.Cleanup(taskID)
		}
	})

	sweepStop := make(chan struct{})
	defer close(sweepStop)
	tasks.StartSweeper(cfg.Task.GetTTL(), cfg.Task.GetSweepInterval(), sweepStop)

	srv := server.New(cfg.Server, tasks, agents, manager, shots)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server exited with error: %v", err)
		}
	case <-ctx.Done():
		log.Printf("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("graceful shutdown failed: %v", err)
		}
	}
}
