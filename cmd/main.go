package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pairchat/auth"
	"pairchat/contract"
	"pairchat/gateway"
	"pairchat/internal"
	"pairchat/moderation"
	"pairchat/repositories"
	"pairchat/runtime"
	"pairchat/runtime/workers"
	"pairchat/services"
	"pairchat/sink"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting, so deferred cleanups always execute and
// the entry point stays testable.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := internal.LoggerFromString(config.LogLevel)

	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return err
	}

	// 2. Storage (BadgerDB + Bluge index)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	indexWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return fmt.Errorf("search index opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing search index...")
		_ = indexWriter.Close()
	}()

	// 3. Repositories
	users := repositories.NewUserRepository(db, contract.UTCClock)
	conversations := repositories.NewConversationRegistry(db, users, contract.UTCClock)
	messages := repositories.NewMessageLog(db, indexWriter, conversations, log, contract.UTCClock)

	// 4. Moderation
	loader := runtime.NewCensoredLoader()
	data, err := loader.LoadAll("censored")
	if err != nil {
		return err
	}
	log.Info(fmt.Sprintf("%d unique censored words loaded from %d dictionaries",
		len(data.Words), len(data.Languages)))
	moderator, err := moderation.NewModerator(data.Words, charReplacement)
	if err != nil {
		return err
	}

	// 5. Supervision & Dispatch
	supervisor := workers.NewSupervisor(log, config.RestartInterval)
	sessions := runtime.NewRegistry()
	dispatcher := runtime.NewDispatcher(log, supervisor, sessions,
		users, conversations, messages, moderator,
		config.NumberOfWorkers, config.BufferSize,
		config.SinkTimeout, config.MetricInterval, contract.UTCClock)
	dispatcher.Add(sink.NewTimeline())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err = dispatcher.Start(ctx); err != nil {
		return fmt.Errorf("dispatcher failed to start: %w", err)
	}

	// 6. Gateway
	tokens := auth.NewTokenManager(config.AuthSecret, config.AuthTokenDuration)
	chatService := services.NewChatService(dispatcher, conversations, messages)
	identityService := services.NewIdentityService(users, conversations, messages, log)
	server := gateway.NewServer(log, chatService, identityService, tokens,
		config.ConnectionBufferSize, config.ListLimit)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := &http.Server{Addr: address, Handler: server.Router()}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 8. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	dispatcher.Stop()
	log.Info("Program stopped cleanly")

	return nil
}
