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

	"github.com/SherClockHolmes/webpush-go"

	"github.com/Taufiq-1904/WeighBridge-IoT/config"
	"github.com/Taufiq-1904/WeighBridge-IoT/internal/api"
	"github.com/Taufiq-1904/WeighBridge-IoT/internal/bridge"
	"github.com/Taufiq-1904/WeighBridge-IoT/internal/broker"
	"github.com/Taufiq-1904/WeighBridge-IoT/internal/command"
	"github.com/Taufiq-1904/WeighBridge-IoT/internal/db"
	"github.com/Taufiq-1904/WeighBridge-IoT/internal/hub"
	"github.com/Taufiq-1904/WeighBridge-IoT/internal/state"
)

func main() {
	logger := log.New(os.Stdout, "weighbridge ", log.LstdFlags)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	if cfg.MQTT.BrokerURL == "" {
		logger.Fatalf("mqtt.broker_url must be configured")
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Canonical device state and the broker link feeding it.
	states := state.New(cfg.MQTT.WeightTopic, cfg.MQTT.StatusTopic)
	link := broker.New(cfg.MQTT, cfg.MQTT.WeightTopic, cfg.MQTT.StatusTopic)

	// Relay engine: broker streams -> state store, history, alerts.
	bridgeSvc := bridge.NewService(cfg, states, link, gormDB)
	go bridgeSvc.Run(ctx)

	// Command path and viewer fan-out.
	dispatcher := command.New(link, cfg.MQTT.CommandTopic, cfg.MQTT.CommandQoS > 0)
	wsHub := hub.New(states, dispatcher)
	go wsHub.Run(ctx)

	webpushOptions := webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}

	handler := api.NewHandler(gormDB, states, dispatcher, &webpushOptions)
	router := api.NewRouter(&cfg.Server, handler, wsHub)
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

	<-stop
	logger.Println("Shutdown signal received, stopping services...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
