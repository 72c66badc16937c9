package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"

	"github.com/collabdraw/collabdraw/internal/config"
	"github.com/collabdraw/collabdraw/internal/relay"
	"github.com/collabdraw/collabdraw/internal/stats"
	"github.com/collabdraw/collabdraw/internal/store"
)

// BoardApp is the HTTP surface around the relay: the websocket entry
// point, the guest-token issuer and the durable stroke endpoints.
type BoardApp struct {
	log            *log.Logger
	store          store.BoardRepository
	mux            *http.Server
	rs             *relay.RelayServer
	stats          stats.StatsProvider
	signingKey     []byte
	allowedOrigins []string
}

func NewBoardApp(mux *http.ServeMux, logger *log.Logger, rs *relay.RelayServer, repo store.BoardRepository, sp stats.StatsProvider, cfg *config.Config) *BoardApp {
	s := &BoardApp{
		log:            logger,
		store:          repo,
		rs:             rs,
		stats:          sp,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /ws", s.serveWs)
	mux.HandleFunc("POST /api/guest-token", s.guestToken)
	mux.Handle("GET /api/strokes", s.authMiddleware(s.listStrokes))
	mux.Handle("POST /api/strokes", s.authMiddleware(s.appendStroke))
	mux.Handle("DELETE /api/strokes", s.authMiddleware(s.deleteStroke))
	mux.HandleFunc("GET /healthz", s.health)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *BoardApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *BoardApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
