package http

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/report"
	"fintrack/internal/services"
	"fintrack/internal/source"
)

// Session is the slice of services.Session the API serves.
type Session interface {
	Owner() string
	Offline() bool
	Totals(ctx context.Context) (core.Totals, error)
	Dashboard(ctx context.Context) (services.Dashboard, error)
	Report(period core.Period, kind core.Kind) report.Report
	Transactions() []core.Transaction
	Search(query string) []core.Transaction
	List(ctx context.Context, f core.Filters) ([]core.Transaction, error)
	Categories(kind core.Kind) []string
	AddTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
	RemoveTransaction(ctx context.Context, id string) error
	Export(ctx context.Context, format source.ExportFormat, w io.Writer) (string, error)
}

// Options configures a Server. Zero values are usable.
type Options struct {
	Logger *log.Logger
	// MutationsPerMinute limits POST and DELETE requests per client IP.
	MutationsPerMinute int
	// ChartMaxAge is how long clients may cache chart images, in seconds.
	ChartMaxAge int
	Now         func() time.Time
}

type Server struct {
	http.Server
	session     Session
	logger      *log.Logger
	rateLimiter *ratelimit.Limiter
	detector    *security.Detector
	trace       *trace.Middleware
	started     time.Time
	now         func() time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, session Session, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	chartMaxAge := opts.ChartMaxAge
	if chartMaxAge <= 0 {
		chartMaxAge = 60
	}

	detector := security.NewDetector(logger)
	s := &Server{
		session:     session,
		logger:      logger.WithComponent(log.ComponentHTTP),
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.MutationsPerMinute}),
		detector:    detector,
		trace:       trace.NewMiddleware(logger, detector.ExtractClientIP),
		started:     now(),
		now:         now,
	}

	noStore := security.CacheControl(0)
	chartCache := security.CacheControl(chartMaxAge)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.Handle("GET /api/dashboard", noStore(http.HandlerFunc(s.handleDashboard)))
	mux.Handle("GET /api/reports", noStore(http.HandlerFunc(s.handleReport)))
	mux.Handle("GET /api/transactions", noStore(http.HandlerFunc(s.handleSearch)))
	mux.Handle("POST /api/transactions", noStore(http.HandlerFunc(s.handleCreateTransaction)))
	mux.Handle("DELETE /api/transactions/{id}", noStore(http.HandlerFunc(s.handleDeleteTransaction)))
	mux.Handle("GET /api/categories", noStore(http.HandlerFunc(s.handleCategories)))
	mux.Handle("GET /api/export/{format}", noStore(http.HandlerFunc(s.handleExport)))

	mux.Handle("GET /charts/trend.png", chartCache(http.HandlerFunc(s.handleTrendChart)))
	mux.Handle("GET /charts/breakdown.png", chartCache(http.HandlerFunc(s.handleBreakdownChart)))

	limit := s.rateLimiter.Middleware(detector.ExtractClientIP, s.onRateLimit, http.MethodPost, http.MethodDelete)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.trace.Middleware(headers.Middleware(s.withDetection(limit(mux)))),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// withDetection logs suspicious requests. They are still served: the
// routes reject anything they do not recognise on their own.
func (s *Server) withDetection(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.detector.DetectSuspiciousRequest(r)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldComponent, log.ComponentRateLimit,
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, try again later", trace.GetRequestID(r.Context())).
		Write(w)
}

// Shutdown stops the rate limiter and then the HTTP server. Only the
// first call has any effect.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.logger.Info("HTTP server shutting down", log.FieldOperation, log.OpShutdown)
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
