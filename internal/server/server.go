package server

import (
	"fmt"
	"net/http"
	"time"

	"luxe-booking/internal/auth"
	"luxe-booking/internal/booking"
	"luxe-booking/internal/clock"
	"luxe-booking/internal/config"
	"luxe-booking/internal/database"
	"luxe-booking/internal/session"
	"luxe-booking/internal/suggest"
)

type Server struct {
	port       int
	db         database.Service
	sessions   session.Store
	issuer     *auth.Issuer
	submitter  *booking.Submitter
	submitting *inflight
	suggester  suggest.Suggester
	clock      clock.Clock
	limiter    *ipLimiter
	bcryptCost int
}

// NewServer wires the handlers to their collaborators. notifier may be nil.
func NewServer(cfg config.Config, db database.Service, sessions session.Store, notifier booking.Notifier, suggester suggest.Suggester) *http.Server {
	c := clock.NewSystem()

	var opts []booking.SubmitterOption
	if notifier != nil {
		opts = append(opts, booking.WithNotifier(notifier))
	}

	s := &Server{
		port:       cfg.Port,
		db:         db,
		sessions:   sessions,
		issuer:     auth.NewIssuer(cfg.JWTSecret, cfg.AccessTokenTTL, c),
		submitter:  booking.NewSubmitter(db, c, opts...),
		submitting: newInflight(),
		suggester:  suggester,
		clock:      c,
		limiter:    newIPLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
		bcryptCost: cfg.BcryptCost,
	}

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
}
