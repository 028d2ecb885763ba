package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"luxe-booking/internal/clock"
	"luxe-booking/internal/config"
	"luxe-booking/internal/models"

	"github.com/google/uuid"

	// PostgreSQL driver
	_ "github.com/jackc/pgx/v5/stdlib"
)

var ErrNotFound = errors.New("not found")

// Service represents a service that interacts with a database.
type Service interface {
	// Health returns a map of health status information.
	// The keys and values in the map are service-specific.
	Health() map[string]string

	// Close terminates the database connection.
	// It returns an error if the connection cannot be closed.
	Close() error

	// EnsureUser returns the user for an identity-provider UID, creating it on first sight.
	EnsureUser(ctx context.Context, externalUID, email, passwordHash string) (models.User, error)
	ResolveOwner(ctx context.Context, externalUID string) (uuid.UUID, error)
	FindUserByEmail(ctx context.Context, email string) (models.User, error)

	CreateBooking(ctx context.Context, draft models.BookingDraft, ownerID uuid.UUID, age int) (models.ConfirmedBooking, error)
	GetBooking(ctx context.Context, ownerID, bookingID uuid.UUID) (models.ConfirmedBooking, error)
	ListConfirmedBookings(ctx context.Context, ownerID uuid.UUID) ([]models.ConfirmedBooking, error)

	GetProfile(ctx context.Context, ownerID uuid.UUID) (models.Profile, error)
	UpdateProfile(ctx context.Context, ownerID uuid.UUID, upd models.ProfileUpdate) (models.Profile, error)
}

type service struct {
	db    *sql.DB
	clock clock.Clock
	name  string
}

var dbInstance *service

func New(cfg config.Database, c clock.Clock) Service {
	// Reuse Connection
	if dbInstance != nil {
		return dbInstance
	}
	db, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		log.Fatal(err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	dbInstance = &service{
		db:    db,
		clock: c,
		name:  cfg.Name,
	}
	return dbInstance
}

// Health pings the database and reports pool statistics.
func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	stats := make(map[string]string)

	if err := s.db.PingContext(ctx); err != nil {
		log.Printf("db down: %v", err)
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		return stats
	}

	stats["status"] = "up"
	stats["message"] = "It's healthy"

	dbStats := s.db.Stats()
	stats["open_connections"] = strconv.Itoa(dbStats.OpenConnections)
	stats["in_use"] = strconv.Itoa(dbStats.InUse)
	stats["idle"] = strconv.Itoa(dbStats.Idle)
	stats["wait_count"] = strconv.FormatInt(dbStats.WaitCount, 10)
	stats["wait_duration"] = dbStats.WaitDuration.String()

	if dbStats.WaitCount > 1000 {
		stats["message"] = "The database has a high number of wait events, indicating potential bottlenecks."
	}
	return stats
}

func (s *service) Close() error {
	log.Printf("Disconnected from database: %s", s.name)
	return s.db.Close()
}

const userColumns = `id, external_uid, email, password_hash, created_at`

func (s *service) EnsureUser(ctx context.Context, externalUID, email, passwordHash string) (models.User, error) {
	// The no-op update makes RETURNING yield the existing row on conflict.
	query := `
		INSERT INTO users (id, external_uid, email, password_hash)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (external_uid) DO UPDATE SET external_uid = EXCLUDED.external_uid
		RETURNING ` + userColumns
	var u models.User
	err := s.db.QueryRowContext(ctx, query, uuid.New(), externalUID, strings.ToLower(email), passwordHash).
		Scan(&u.ID, &u.ExternalUID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		return models.User{}, fmt.Errorf("ensure user: %w", err)
	}
	return u, nil
}

func (s *service) ResolveOwner(ctx context.Context, externalUID string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.db.QueryRowContext(ctx, `SELECT id FROM users WHERE external_uid = $1`, externalUID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, ErrNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("resolve owner: %w", err)
	}
	return id, nil
}

func (s *service) FindUserByEmail(ctx context.Context, email string) (models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(email)).
		Scan(&u.ID, &u.ExternalUID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}
