package api

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/wayfinder-proxy/wayfinder/internal/journal"
	"github.com/wayfinder-proxy/wayfinder/internal/observe"
	"github.com/wayfinder-proxy/wayfinder/internal/route"
	"github.com/wayfinder-proxy/wayfinder/internal/track"
)

// Server wraps the HTTP server and mux for the wayfinder status API.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer creates a new status API server wired with all routes.
// journalRepo may be nil when journaling is disabled.
func NewServer(
	listenAddress string,
	port int,
	tracker *track.Tracker,
	registry *route.Registry,
	observer *observe.Observer,
	journalRepo *journal.Repo,
) *Server {
	mux := http.NewServeMux()

	mux.Handle("GET /healthz", HandleHealthz())

	mux.Handle("GET /api/v1/snapshot", HandleSnapshot(observer))
	mux.Handle("GET /api/v1/recommendations", HandleRecommendations(observer))
	mux.Handle("GET /api/v1/alerts", HandleAlerts(observer))
	mux.Handle("GET /api/v1/events", HandleEvents(observer))

	mux.Handle("GET /api/v1/routes", HandleListRoutes(registry))
	mux.Handle("GET /api/v1/routes/stats", HandleRouteStats(registry))
	mux.Handle("GET /api/v1/routes/{id}", HandleGetRoute(registry))

	mux.Handle("GET /api/v1/connections", HandleListConnections(tracker))
	mux.Handle("GET /api/v1/connections/stats", HandleConnectionStats(tracker))
	mux.Handle("GET /api/v1/connections/{id}", HandleGetConnection(tracker))

	if journalRepo != nil {
		mux.Handle("GET /api/v1/journal", HandleQueryJournal(journalRepo))
	}

	srv := &http.Server{
		Addr:    net.JoinHostPort(listenAddress, strconv.Itoa(port)),
		Handler: mux,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
	}
}

// ListenAndServe starts the HTTP server. It blocks until the server stops.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.mux
}
