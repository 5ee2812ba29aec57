package http

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"chatrelay/internal/api"
)

// AdminServer exposes operator endpoints on a separate, normally loopback-only, address.
type AdminServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

func NewAdminServer(adminHandler *api.AdminHandler, addr string) *AdminServer {
	if addr == "" {
		addr = "localhost:8081"
	}

	return &AdminServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           NewAdminHandler(adminHandler),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func NewAdminHandler(adminHandler *api.AdminHandler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /admin/presence", adminHandler.PresenceHandler)
	mux.HandleFunc("POST /admin/users/{id}/disconnect", adminHandler.DisconnectHandler)
	mux.HandleFunc("/", api.NotFoundHandler)
	return loggingMiddleware(mux)
}

func (s *AdminServer) Start() error {
	log.Printf("Admin API started on %s", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *AdminServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
