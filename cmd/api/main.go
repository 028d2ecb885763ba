package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"luxe-booking/internal/booking"
	"luxe-booking/internal/clock"
	"luxe-booking/internal/config"
	"luxe-booking/internal/database"
	"luxe-booking/internal/events"
	"luxe-booking/internal/server"
	"luxe-booking/internal/session"
	"luxe-booking/internal/suggest"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	if err := database.Migrate(cfg.DB.DSN(), cfg.MigrationsPath); err != nil {
		log.Fatalf("Error running migrations: %v", err)
	}
	db := database.New(cfg.DB, clock.NewSystem())
	defer db.Close()

	// Wizard sessions live in Redis when it is reachable
	var sessions session.Store
	if client := session.NewRedisClient(cfg.Redis); client != nil {
		defer client.Close()
		sessions = session.NewRedisStore(client, clock.NewSystem(), cfg.SessionTTL)
		log.Printf("Using Redis session store at %s", cfg.Redis.Addr)
	} else {
		sessions = session.NewMemoryStore(clock.NewSystem(), cfg.SessionTTL)
		log.Println("Using in-memory session store")
	}

	var notifier booking.Notifier
	if cfg.RabbitMQURL != "" {
		notifier = events.NewPublisher(cfg.RabbitMQURL)
	}

	var suggester suggest.Suggester
	if client, err := suggest.NewClient(context.Background(), cfg.AI); err != nil {
		log.Printf("Preference suggestions disabled: %v", err)
		suggester = suggest.Unavailable{Err: err}
	} else {
		suggester = client
	}

	// Create a new server instance
	srv := server.NewServer(cfg, db, sessions, notifier, suggester)

	// Create a listener on the desired address
	listener, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		log.Fatalf("Error creating listener: %v", err)
	}

	errChan := make(chan error, 1)

	go func() {
		log.Printf("Server started on %s...", srv.Addr)
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("Server encountered an error: %v", err)
			errChan <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		log.Fatalf("Server error: %v", err)
	case sig := <-stop:
		log.Printf("Received signal %s, initiating graceful shutdown", sig)

		// Submissions in flight get a little longer than plain reads
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Fatalf("Could not gracefully shut down the server: %v", err)
		}

		log.Println("Server gracefully stopped")
	}
}
