package main

import (
	"context"
	"net/rpc"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wfunc/rpgserver/auth"
	"github.com/wfunc/rpgserver/config"
	"github.com/wfunc/rpgserver/coordinator"
	"github.com/wfunc/rpgserver/dice"
	"github.com/wfunc/rpgserver/game"
	"github.com/wfunc/rpgserver/logger"
	"github.com/wfunc/rpgserver/monitor"
	"github.com/wfunc/rpgserver/oracle"
	"github.com/wfunc/rpgserver/pending"
	"github.com/wfunc/rpgserver/persistence"
	"github.com/wfunc/rpgserver/registry"
	rpgserver_rpc "github.com/wfunc/rpgserver/rpc"
	"github.com/wfunc/rpgserver/server"
	"github.com/wfunc/rpgserver/services"
	"github.com/wfunc/rpgserver/timer"
)

func main() {
	// Initialize logger
	logger.Init()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize Database. The engine keeps running without one; only
	// history and character sheets are lost.
	var recorder coordinator.Recorder
	var sheets coordinator.SheetResolver
	db, err := persistence.Open(cfg.Database)
	if err != nil {
		logger.Log.Warnf("Database unavailable, running without persistence: %v", err)
	} else {
		logger.Log.Info("Database connection successful.")
		defer db.Close()
		recorder = db
		sheets = services.NewCharacterService(db)
	}

	// Monitoring
	mon := monitor.NewMonitor("rpgserver")
	if cfg.Server.MetricsAddress != "" {
		mon.StartServer(cfg.Server.MetricsAddress)
	}

	// Narrative oracle
	oracleClient := oracle.NewOllamaClient(cfg.Oracle.URL, cfg.Oracle.Model, cfg.Oracle.Timeout)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if oracleClient.HealthCheck(ctx) {
			logger.Log.Infof("Oracle reachable at %s (model %s)", cfg.Oracle.URL, cfg.Oracle.Model)
		} else {
			logger.Log.Warnf("Oracle not reachable at %s, responses will use fallbacks", cfg.Oracle.URL)
		}
	}()

	// Auth
	var validator auth.Validator
	if cfg.Auth.ValidatorURL != "" {
		validator = auth.NewHTTPValidator(cfg.Auth.ValidatorURL)
	} else {
		logger.Log.Warn("No auth validator configured, accepting id:name tokens")
		validator = auth.LocalValidator{}
	}

	// Engine wiring
	timers := timer.NewManager(time.Second)
	defer timers.Stop()

	sessions := game.NewManager()
	reg := registry.NewRegistry()
	checks := pending.NewStore(timers)

	coord := coordinator.New(coordinator.Options{
		Sessions:      sessions,
		Broadcaster:   reg,
		Checks:        checks,
		Roller:        dice.NewRoller(),
		Oracle:        oracleClient,
		Sheets:        sheets,
		Recorder:      recorder,
		Monitor:       mon,
		MaxPlayers:    cfg.Game.MaxPlayers,
		CheckTTL:      cfg.Game.PendingCheckTTL,
		OracleTimeout: cfg.Oracle.Timeout,
	})

	// Admin RPC
	rpcServer, err := rpgserver_rpc.NewServer(cfg.Server.RPCAddress)
	if err != nil {
		logger.Log.Fatalf("Failed to create RPC server: %v", err)
	}
	if err := rpc.Register(rpgserver_rpc.NewAdminService(sessions, coord, reg)); err != nil {
		logger.Log.Fatalf("Failed to register admin service: %v", err)
	}
	go rpcServer.Start()

	// Game server
	gameServer := server.NewGameServer(cfg.Server.HTTPAddress, reg, coord, validator, mon)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Log.Info("Shutting down")
		rpcServer.Stop()
		gameServer.Shutdown()
	}()

	logger.Log.Infof("Starting game server on %s", cfg.Server.HTTPAddress)
	if err := gameServer.Start(); err != nil {
		logger.Log.Infof("Game server stopped: %v", err)
	}
}
