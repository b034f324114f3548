package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"workshop-scan-backend/config"
	"workshop-scan-backend/internal/api"
	"workshop-scan-backend/internal/db"
	"workshop-scan-backend/internal/gateway"
	"workshop-scan-backend/internal/lockout"
	"workshop-scan-backend/internal/model"
	"workshop-scan-backend/internal/notify"
	"workshop-scan-backend/internal/session"
	"workshop-scan-backend/internal/txlog"
	"workshop-scan-backend/internal/workflow"
)

func main() {
	logger := log.New(os.Stdout, "workshop-scan ", log.LstdFlags)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	// A terminal state must exist or open and collected work orders are
	// indistinguishable.
	terminalID, err := cfg.TerminalStateID()
	if err != nil {
		logger.Fatalf("configuration invalid: %v", err)
	}

	storeDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to connect to record store on cold start: %v", err)
	}

	gw, err := gateway.New(storeDB, cfg, terminalID)
	if err != nil {
		logger.Fatalf("failed to initialize gateway: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Prime the caches now so an empty bay catalog kills the process
	// before it starts accepting scans.
	if _, err := gw.StorageLocations(ctx); err != nil {
		logger.Fatalf("storage location check failed: %v", err)
	}
	if _, err := gw.StatusCatalog(ctx); err != nil {
		logger.Fatalf("status catalog check failed: %v", err)
	}
	logger.Println("record store gateway initialized")

	locks := lockout.NewDisabled()
	if cfg.Lockouts.Enabled {
		lockDB, err := db.OpenLocal(cfg.Lockouts.DatabaseFile, &model.Lockout{})
		if err != nil {
			logger.Fatalf("failed to initialize lockout store: %v", err)
		}
		locks = lockout.NewStore(lockDB)
		logger.Println("lockout store initialized")
	}

	txs := txlog.NewDisabled()
	if cfg.Transactions.Enabled {
		txDB, err := db.OpenLocal(cfg.Transactions.DatabaseFile, &model.Transaction{})
		if err != nil {
			logger.Fatalf("failed to initialize transaction log: %v", err)
		}
		txs = txlog.NewLog(txDB)
		logger.Println("transaction log initialized")
	}

	notifier := notify.NewClient(&cfg.Notify)
	alloc := workflow.NewAllocator(gw, locks)

	coord := session.New(cfg, gw, alloc, locks, txs, notifier, cancel)
	go coord.Run(ctx)

	router := api.NewRouter(&cfg.Server, coord)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// A SHUTDOWN admin scan cancels the root context; signals arrive here.
	select {
	case <-stop:
		logger.Println("Shutdown signal received, stopping services...")
		cancel()
	case <-ctx.Done():
		logger.Println("Shutdown requested, stopping services...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
