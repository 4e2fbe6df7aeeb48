package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/npezzotti/go-chatroom/internal/ai"
	"github.com/npezzotti/go-chatroom/internal/api"
	"github.com/npezzotti/go-chatroom/internal/config"
	"github.com/npezzotti/go-chatroom/internal/database"
	"github.com/npezzotti/go-chatroom/internal/directory"
	"github.com/npezzotti/go-chatroom/internal/server"
	"github.com/npezzotti/go-chatroom/internal/session"
	"github.com/npezzotti/go-chatroom/internal/stats"
)

const defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	dsn            string
	signingKey     string
	store          string
	allowedOrigins stringSliceFlag
)

// openStore returns the repository selected by cfg and a function that
// releases it. For postgres, change notifications are forwarded to broker
// until ctx is done.
func openStore(ctx context.Context, cfg *config.Config, broker *database.Broker, logger *log.Logger) (database.GoChatRepository, func(), error) {
	if cfg.Store == config.StoreMemory {
		logger.Println("using in-memory store")
		return database.NewMemoryRepository(broker, logger), func() {}, nil
	}

	repo, err := database.NewPgGoChatRepository(cfg.DatabaseDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("db open: %w", err)
	}

	if err := repo.Migrate(); err != nil {
		repo.Close()
		return nil, nil, fmt.Errorf("db migrate: %w", err)
	}

	listener, err := database.NewPgListener(cfg.DatabaseDSN, broker, logger)
	if err != nil {
		repo.Close()
		return nil, nil, fmt.Errorf("db listen: %w", err)
	}
	go listener.Run(ctx)

	return repo, func() {
		if err := listener.Close(); err != nil {
			logger.Println("listener close:", err)
		}
		if err := repo.Close(); err != nil {
			logger.Println("db close:", err)
		}
	}, nil
}

func main() {
	flag.StringVar(&addr, "addr", "localhost:8000", "server address")
	flag.StringVar(&dsn, "dsn", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable", "database connection string")
	flag.StringVar(&signingKey, "signing-key", defaultSigningKey, "base64 encoded signing key")
	flag.StringVar(&store, "store", config.StorePostgres, "storage backend, postgres or memory")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage of %s:\n", os.Args[0])
		flag.PrintDefaults()
		fmt.Fprintln(flag.CommandLine.Output(), config.AIUsage())
	}
	flag.Parse()

	logger := log.New(os.Stderr, "[go-chat] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, dsn, signingKey, allowedOrigins, store)
	if err != nil {
		logger.Fatal("config:", err)
	}

	ctx, stopListening := context.WithCancel(context.Background())
	defer stopListening()

	broker := database.NewBroker(logger)
	repo, closeStore, err := openStore(ctx, cfg, broker, logger)
	if err != nil {
		logger.Fatal(err)
	}
	defer closeStore()

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	responder := ai.NewResponder(ai.Config{
		BaseURL:      cfg.AI.BaseURL,
		APIKey:       cfg.AI.APIKey,
		Model:        cfg.AI.Model,
		Timeout:      cfg.AI.Timeout,
		ProbeTimeout: cfg.AI.ProbeTimeout,
	}, logger)

	chatServer, err := server.NewChatServer(logger, repo, broker, responder, statsUpdater, session.DefaultOptions())
	if err != nil {
		logger.Fatal("new chat server:", err)
	}

	srv := api.NewGoChatApp(mux, logger, chatServer, repo, directory.New(repo, logger), cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go chatServer.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Println("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Println("chat server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
