package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"ucontrol/internal/log"
	"ucontrol/internal/middleware/ratelimit"
	"ucontrol/internal/middleware/security"
	"ucontrol/internal/middleware/trace"
	"ucontrol/internal/services"
)

// downstreamTimeout bounds every storage call made while serving a request.
const downstreamTimeout = 7 * time.Second

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services are the application services the handlers call.
type Services struct {
	Ledger  *services.LedgerService
	Budgets *services.BudgetService
	Summary *services.SummaryService
	Cutoff  *services.CutoffService
}

// Config holds transport settings.
type Config struct {
	Addr              string
	RequestsPerMinute int
	TrustedProxies    []string
}

type Server struct {
	http.Server

	svc         Services
	ready       []Pinger
	logger      *log.Logger
	rateLimiter *ratelimit.Limiter
	detector    *security.Detector
	tracer      *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// server. Every pinger must answer for /readyz to report ready.
func NewServer(cfg Config, svc Services, logger *log.Logger, ready ...Pinger) *Server {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	detector := security.NewDetector()
	for _, cidr := range cfg.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", log.FieldError, err)
		}
	}

	limits := ratelimit.DefaultConfig()
	if cfg.RequestsPerMinute > 0 {
		limits.RequestsPerMinute = cfg.RequestsPerMinute
	}

	s := &Server{
		svc:         svc,
		ready:       ready,
		logger:      logger,
		rateLimiter: ratelimit.NewLimiter(limits),
		detector:    detector,
		tracer:      trace.NewMiddleware(logger, detector.ExtractClientIP),
	}

	mux := http.NewServeMux()
	s.routes(mux)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           s.middleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /cutoff-config", s.handleGetCutoff)
	mux.HandleFunc("PUT /cutoff-config", s.handleUpdateCutoff)
	mux.HandleFunc("POST /cutoff-config", s.handleCutoffAction)

	mux.HandleFunc("GET /accounts", s.handleListAccounts)
	mux.HandleFunc("POST /accounts", s.handleCreateAccount)
	mux.HandleFunc("GET /accounts/{id}", s.handleGetAccount)
	mux.HandleFunc("PUT /accounts/{id}", s.handleUpdateAccount)
	mux.HandleFunc("DELETE /accounts/{id}", s.handleDeleteAccount)

	mux.HandleFunc("GET /incomes", s.handleListIncomes)
	mux.HandleFunc("POST /incomes", s.handleCreateIncome)
	mux.HandleFunc("DELETE /incomes/{id}", s.handleDeleteIncome)

	mux.HandleFunc("GET /expenses", s.handleListExpenses)
	mux.HandleFunc("POST /expenses", s.handleCreateExpense)
	mux.HandleFunc("DELETE /expenses/{id}", s.handleDeleteExpense)

	mux.HandleFunc("GET /budgets", s.handleListBudgets)
	mux.HandleFunc("POST /budgets", s.handleCreateBudget)
	mux.HandleFunc("PUT /budgets/{id}", s.handleUpdateBudget)
	mux.HandleFunc("DELETE /budgets/{id}", s.handleDeleteBudget)

	mux.HandleFunc("GET /summary", s.handleSummary)
}

// middleware wraps the mux, outermost first: security headers, tracing,
// probe detection, then rate limiting of mutating requests.
func (s *Server) middleware(next http.Handler) http.Handler {
	h := s.rateLimiter.Middleware(s.detector.ExtractClientIP, ratelimit.MutatingOnly, s.onRateLimit)(next)
	h = s.detector.Middleware(s.logger)(h)
	h = s.tracer.Middleware(h)
	return security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldComponent, log.ComponentRateLimit,
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	writeMessage(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
}

// Shutdown stops background goroutines and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	for _, p := range s.ready {
		if err := p.Ping(ctx); err != nil {
			log.FromContext(ctx).LogError(ctx, "Readiness check failed", err, log.ErrorTypeDatabase)
			writeMessage(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func withTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), downstreamTimeout)
}
