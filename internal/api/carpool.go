package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/mgoodwin/go-carpool/internal/booking"
	"github.com/mgoodwin/go-carpool/internal/cache"
	"github.com/mgoodwin/go-carpool/internal/config"
	"github.com/mgoodwin/go-carpool/internal/database"
	"github.com/mgoodwin/go-carpool/internal/server"
	"github.com/teris-io/shortid"
)

type CarpoolApp struct {
	log            *log.Logger
	db             database.CarpoolRepository
	listings       cache.ListingCache
	ledger         *booking.Ledger
	mux            *http.Server
	cs             *server.ChatServer
	sid            *shortid.Shortid
	signingKey     []byte
	allowedOrigins []string
}

func NewCarpoolApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer,
	db database.CarpoolRepository, ledger *booking.Ledger, listings cache.ListingCache,
	cfg *config.Config) (*CarpoolApp, error) {
	sid, err := shortid.New(1, shortid.DefaultABC, 2342)
	if err != nil {
		return nil, fmt.Errorf("shortid: %w", err)
	}

	s := &CarpoolApp{
		log:            logger,
		db:             db,
		listings:       listings,
		ledger:         ledger,
		cs:             cs,
		sid:            sid,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.Handle("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.Handle("GET /api/carpools", s.authMiddleware(s.listCarpools))
	mux.Handle("POST /api/carpools", s.authMiddleware(s.createCarpool))
	mux.Handle("POST /api/carpools/book", s.authMiddleware(s.bookSeats))
	mux.Handle("POST /api/carpools/cancel", s.authMiddleware(s.cancelBooking))
	mux.Handle("GET /api/messages", s.authMiddleware(s.getMessages))
	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s, nil
}

func (s *CarpoolApp) generateShortId() (string, error) {
	return s.sid.Generate()
}

func (s *CarpoolApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *CarpoolApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
