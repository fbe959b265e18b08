package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/claims"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/persistence"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/types"
)

/*
Server exposes one distribution over HTTP.

Read endpoints:
  GET /root
    - Root, token total, claim count, window bounds, holder, drain count
  GET /claims?address=0x..
    - The claim record (index, amount, proof) of an account
  GET /status?index=N
    - Whether an index has been paid

Write endpoints:
  POST /claim
    - Request: the claim record as served by /claims
    - Verifies the proof against the root, marks the index, pays the account
    - Rate limited; failures carry { code, message } with a status per error
  POST /drain
    - Request: { destination, amount?, signature }
    - signature is a secp256k1 signature over
      keccak256("drain" || root || destination || uint256(amount) || uint64(sequence))
      where sequence is the number of drains already performed
    - The recovered signer must be the administrator
    - An omitted or zero amount drains the whole held balance

Operational endpoints:
  GET /healthz  - claim-state backend health
  GET /metrics  - prometheus collectors
*/

// Config holds the HTTP server settings
type Config struct {
	Port int

	// ClaimRatePerSecond and ClaimBurst bound POST /claim. A zero rate disables the limit.
	ClaimRatePerSecond float64
	ClaimBurst         int

	// Clock returns the time claims are checked against the window. Defaults to time.Now.
	Clock func() time.Time
}

// Server handles HTTP requests for a claim registry
type Server struct {
	registry     *claims.Registry
	distribution *types.Distribution
	limiter      *rate.Limiter
	clock        func() time.Time
	logger       *zap.Logger
	httpServer   *http.Server
}

// NewServer creates a new server instance. The distribution must be the one
// the registry's root was built from.
func NewServer(cfg *Config, registry *claims.Registry, dist *types.Distribution, logger *zap.Logger) (*Server, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if dist == nil {
		return nil, fmt.Errorf("distribution is required")
	}
	if dist.Root != registry.Root() {
		return nil, fmt.Errorf("distribution root %s does not match registry root %s",
			persistence.RootKey(dist.Root), persistence.RootKey(registry.Root()))
	}

	s := &Server{
		registry:     registry,
		distribution: dist,
		clock:        cfg.Clock,
		logger:       logger,
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if cfg.ClaimRatePerSecond > 0 {
		burst := cfg.ClaimBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.ClaimRatePerSecond), burst)
	}

	mux := http.NewServeMux()

	// Distribution reads
	mux.HandleFunc("/root", s.instrument("/root", s.handleGetRoot))
	mux.HandleFunc("/claims", s.instrument("/claims", s.handleGetClaim))
	mux.HandleFunc("/status", s.instrument("/status", s.handleGetStatus))

	// Claim and administration
	mux.HandleFunc("/claim", s.instrument("/claim", s.handleClaim))
	mux.HandleFunc("/drain", s.instrument("/drain", s.handleDrain))

	// Operations
	mux.HandleFunc("/healthz", s.instrument("/healthz", s.handleHealth))
	mux.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// Start starts the HTTP server
func (s *Server) Start() error {
	go func() {
		s.logger.Sugar().Infow("Starting HTTP server",
			"root", persistence.RootKey(s.registry.Root()),
			"port", s.httpServer.Addr,
		)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Sugar().Errorw("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Stop stops the HTTP server
func (s *Server) Stop() error {
	return s.httpServer.Close()
}

// GetHandler returns the HTTP handler (for testing)
func (s *Server) GetHandler() http.Handler {
	return s.httpServer.Handler
}
