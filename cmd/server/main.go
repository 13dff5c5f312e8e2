package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cbodonnell/partyroom/pkg/api"
	"github.com/cbodonnell/partyroom/pkg/log"
	"github.com/cbodonnell/partyroom/pkg/store"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	port := flag.Int("port", 8080, "Port to listen on")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	parsedLogLevel, err := log.ParseLogLevel(*logLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", err))
	}

	logger := log.New(os.Stdout, "", log.DefaultLoggerFlag, parsedLogLevel)
	log.SetDefaultLogger(logger)
	log.Info("Log level set to %s", parsedLogLevel)

	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file loaded: %v", err)
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	ctx := context.Background()

	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: os.Getenv("REDIS_PASSWORD"),
	})
	if err := client.Ping(ctx).Err(); err != nil {
		panic(fmt.Sprintf("Failed to connect to redis at %s: %v", redisAddr, err))
	}
	log.Info("Connected to redis at %s", redisAddr)

	documentStore := store.NewRedisStore(client)
	defer documentStore.Close(ctx)

	apiServer := api.NewAPIServer(api.NewAPIServerOptions{
		Port:  *port,
		Store: documentStore,
	})
	go apiServer.Start()

	stopSignal := make(chan os.Signal, 1)
	signal.Notify(stopSignal, os.Interrupt, syscall.SIGTERM)
	<-stopSignal

	log.Info("Received stop signal, shutting down")
	if err := apiServer.Stop(ctx); err != nil {
		log.Error("Failed to stop API server: %v", err)
	}
}
