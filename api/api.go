package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/vocdoni/blindvote/authority"
	"github.com/vocdoni/blindvote/log"
)

// APIConfig type represents the configuration for the API HTTP server.
type APIConfig struct {
	Host      string
	Port      int
	Authority *authority.Authority
	// DevEndpoints enables the election creation endpoint.
	DevEndpoints bool
}

// API type represents the election authority HTTP server.
type API struct {
	router    *chi.Mux
	authority *authority.Authority
	dev       bool
	server    *http.Server
	addr      net.Addr
}

// New creates a new API instance with the given configuration and starts
// listening on Host:Port. Port 0 picks a free port, see Addr.
func New(conf *APIConfig) (*API, error) {
	a, err := NewHandler(conf)
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(conf.Host, fmt.Sprint(conf.Port)))
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	a.addr = ln.Addr()
	a.server = &http.Server{
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infow("starting API server", "address", a.addr.String())
		if err := a.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Errorw(err, "API server failed")
		}
	}()
	return a, nil
}

// NewHandler creates the API without starting a server. Use Router to
// mount it.
func NewHandler(conf *APIConfig) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing API configuration")
	}
	if conf.Authority == nil {
		return nil, fmt.Errorf("missing election authority")
	}
	a := &API{
		authority: conf.Authority,
		dev:       conf.DevEndpoints,
	}
	a.initRouter()
	return a, nil
}

// Router returns the chi router for testing purposes
func (a *API) Router() *chi.Mux {
	return a.router
}

// Addr returns the listening address, nil if the server was not started.
func (a *API) Addr() net.Addr {
	return a.addr
}

// Close stops the HTTP server.
func (a *API) Close(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

// registerHandlers registers all the API handlers.
func (a *API) registerHandlers() {
	log.Infow("register handler", "endpoint", PingEndpoint, "method", "GET")
	a.router.Get(PingEndpoint, func(w http.ResponseWriter, r *http.Request) {
		httpWriteOK(w)
	})
	log.Infow("register handler", "endpoint", PublicKeysEndpoint, "method", "GET")
	a.router.Get(PublicKeysEndpoint, a.publicKeys)
	log.Infow("register handler", "endpoint", RSAKeyEndpoint, "method", "GET")
	a.router.Get(RSAKeyEndpoint, a.rsaKey)
	log.Infow("register handler", "endpoint", PaillierKeyEndpoint, "method", "GET")
	a.router.Get(PaillierKeyEndpoint, a.paillierKey)
	log.Infow("register handler", "endpoint", VoterElectionEndpoint, "method", "GET")
	a.router.Get(VoterElectionEndpoint, a.election)
	log.Infow("register handler", "endpoint", BlindSignEndpoint, "method", "POST")
	a.router.Post(BlindSignEndpoint, a.blindSign)
	log.Infow("register handler", "endpoint", CastVoteEndpoint, "method", "POST")
	a.router.Post(CastVoteEndpoint, a.castVote)
	log.Infow("register handler", "endpoint", ProofEndpoint, "method", "GET")
	a.router.Get(ProofEndpoint, a.proof)
	log.Infow("register handler", "endpoint", TallyEndpoint, "method", "GET")
	a.router.Get(TallyEndpoint, a.tally)
	if a.dev {
		log.Infow("register handler", "endpoint", ElectionsEndpoint, "method", "POST")
		a.router.Post(ElectionsEndpoint, a.newElection)
	}
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() {
	// Create the router with a basic middleware stack
	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}).Handler)
	a.router.Use(middleware.RequestID)
	a.router.Use(middleware.Logger)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Throttle(100))
	a.router.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))
	a.router.Use(middleware.Timeout(45 * time.Second))

	// Register the API handlers
	a.registerHandlers()
}
