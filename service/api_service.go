package service

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/vocdoni/blindvote/api"
	"github.com/vocdoni/blindvote/authority"
	"github.com/vocdoni/blindvote/log"
)

// shutdownTimeout bounds the graceful shutdown of the HTTP server.
const shutdownTimeout = 5 * time.Second

// APIService represents a service that manages the election authority HTTP
// API server.
type APIService struct {
	authority *authority.Authority
	api       *api.API
	mu        sync.Mutex
	host      string
	port      int
	dev       bool
}

// NewAPI creates a new APIService instance. Port 0 lets the OS choose a
// free port, HostPort returns it once started. dev enables the election
// creation endpoint.
func NewAPI(a *authority.Authority, host string, port int, dev bool) *APIService {
	return &APIService{
		authority: a,
		host:      host,
		port:      port,
		dev:       dev,
	}
}

// Start begins the API server. It returns an error if the service
// is already running or if it fails to start.
func (as *APIService) Start(ctx context.Context) error {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.api != nil {
		return fmt.Errorf("service already running")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	srv, err := api.New(&api.APIConfig{
		Host:         as.host,
		Port:         as.port,
		Authority:    as.authority,
		DevEndpoints: as.dev,
	})
	if err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}
	as.api = srv
	return nil
}

// Stop halts the API server.
func (as *APIService) Stop() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.api == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := as.api.Close(ctx); err != nil {
		log.Warnw("failed to stop API server", "error", err.Error())
	}
	as.api = nil
}

// HostPort returns the host and port of the API server. Once started it
// returns the address the server listens on.
func (as *APIService) HostPort() (string, int) {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.api != nil {
		if addr, ok := as.api.Addr().(*net.TCPAddr); ok {
			return addr.IP.String(), addr.Port
		}
	}
	return as.host, as.port
}

// URL returns the base URL of the running API server.
func (as *APIService) URL() string {
	host, port := as.HostPort()
	return fmt.Sprintf("http://%s", net.JoinHostPort(host, fmt.Sprint(port)))
}
