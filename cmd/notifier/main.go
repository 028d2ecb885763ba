package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"luxe-booking/internal/config"
	"luxe-booking/internal/events"
)

// notifier drains booking confirmations and hands them to the passenger channel.
// For now that channel is the log.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("Waiting for confirmations on %s", events.BookingConfirmedQueue)
	err = events.Consume(ctx, cfg.RabbitMQURL, func(ctx context.Context, ev events.BookingConfirmedEvent) error {
		guardian := ""
		if ev.HasGuardian {
			guardian = " (travelling with guardian)"
		}
		log.Printf("Booking %s confirmed for %s%s: %s on %s by %s, contact %s",
			ev.BookingID, ev.PassengerName, guardian, ev.Destination, ev.DepartureDate, ev.Vehicle, ev.Contact)
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Consumer stopped: %v", err)
	}
	log.Println("Notifier stopped")
}
