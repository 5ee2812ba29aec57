package http

import (
	"bufio"
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"chatrelay/internal/api"
	"chatrelay/internal/ws"

	"github.com/rs/cors"
)

type APIServer struct {
	server *http.Server
	wg     sync.WaitGroup
}

func NewAPIServer(apiHandlers *api.API, wsServer *ws.Server, addr string, allowedOrigins []string) *APIServer {
	if addr == "" {
		addr = ":8080"
	}

	return &APIServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           NewHandler(apiHandlers, wsServer, allowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// NewHandler builds the routed handler with CORS and access logging applied.
func NewHandler(apiHandlers *api.API, wsServer *ws.Server, allowedOrigins []string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", api.HealthHandler)

	mux.HandleFunc("GET /api/conversations", api.RequireAuth(apiHandlers.ListConversationsHandler))
	mux.HandleFunc("POST /api/conversations", api.RequireAuth(apiHandlers.EnsureConversationHandler))
	mux.HandleFunc("GET /api/conversations/{id}", api.RequireAuth(apiHandlers.GetConversationHandler))
	mux.HandleFunc("GET /api/messages/{conversationId}", api.RequireAuth(apiHandlers.ListMessagesHandler))
	mux.HandleFunc("POST /api/messages", api.RequireAuth(apiHandlers.SendMessageHandler))
	mux.HandleFunc("GET /api/users", api.RequireAuth(apiHandlers.ListUsersHandler))
	mux.HandleFunc("POST /api/users/sync", api.RequireAuth(apiHandlers.SyncUserHandler))

	// WebSocket endpoint
	mux.HandleFunc("GET /api/ws", wsServer.HandleConnections)

	mux.HandleFunc("/", api.NotFoundHandler)

	options := cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-User-Id"},
	}
	if len(allowedOrigins) > 0 {
		options.AllowedOrigins = allowedOrigins
	}

	return loggingMiddleware(cors.New(options).Handler(mux))
}

func (s *APIServer) Start() error {
	log.Printf("Server started on %s", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Info("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}
