// Package events carries booking confirmations over RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"luxe-booking/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
)

const BookingConfirmedQueue = "booking.confirmed"

// BookingConfirmedEvent has enough detail for consumers to notify the passenger
// without reading the database.
type BookingConfirmedEvent struct {
	BookingID     string `json:"booking_id"`
	OwnerID       string `json:"owner_id"`
	PassengerName string `json:"passenger_name"`
	Contact       string `json:"contact"`
	Destination   string `json:"destination"`
	DepartureDate string `json:"departure_date"`
	Vehicle       string `json:"vehicle"`
	HasGuardian   bool   `json:"has_guardian"`
	ConfirmedAt   string `json:"confirmed_at"`
}

func NewBookingConfirmedEvent(b models.ConfirmedBooking) BookingConfirmedEvent {
	return BookingConfirmedEvent{
		BookingID:     b.ID.String(),
		OwnerID:       b.OwnerID.String(),
		PassengerName: b.FullName,
		Contact:       b.ContactDetails,
		Destination:   b.Destination,
		DepartureDate: b.DepartureDate,
		Vehicle:       models.VehicleType(b.PreferredVehicle).Label(),
		HasGuardian:   b.GuardianName != "",
		ConfirmedAt:   b.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Publisher sends confirmations to the booking.confirmed queue. It dials per
// message; confirmations are rare enough that a pooled channel is not worth it.
type Publisher struct {
	url string
}

func NewPublisher(url string) *Publisher {
	return &Publisher{url: url}
}

// BookingConfirmed publishes a persistent JSON message for b.
func (p *Publisher) BookingConfirmed(ctx context.Context, b models.ConfirmedBooking) error {
	body, err := json.Marshal(NewBookingConfirmedEvent(b))
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(BookingConfirmedQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err = ch.PublishWithContext(ctx, "", BookingConfirmedQueue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		MessageId:    b.ID.String(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	log.Printf("Published confirmation for booking %s", b.ID)
	return nil
}

// Handler processes one decoded confirmation.
type Handler func(ctx context.Context, ev BookingConfirmedEvent) error

// Consume reads booking.confirmed until ctx is cancelled, reconnecting with
// exponential backoff when the broker goes away.
func Consume(ctx context.Context, url string, h Handler) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Printf("booking-consumer: dial failed: %v; retrying in %s", err, backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, h)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("booking-consumer: consume loop ended: %v; reconnecting", err)
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, h Handler) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(20, 0, false); err != nil {
		log.Printf("booking-consumer: set QoS failed: %v", err)
	}
	if _, err := ch.QueueDeclare(BookingConfirmedQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	msgs, err := ch.Consume(BookingConfirmedQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("deliveries channel closed")
			}
			if err := handleDelivery(ctx, d.Body, h); err != nil {
				log.Printf("booking-consumer: %v", err)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func handleDelivery(ctx context.Context, body []byte, h Handler) error {
	var ev BookingConfirmedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal event: %w", err)
	}
	if ev.BookingID == "" {
		return fmt.Errorf("event without booking id")
	}
	if err := h(ctx, ev); err != nil {
		return fmt.Errorf("handle booking %s: %w", ev.BookingID, err)
	}
	return nil
}
