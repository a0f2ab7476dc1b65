package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"dinero/internal/cache"
	"dinero/internal/core"
	"dinero/internal/ledger"
	applog "dinero/internal/log"
	"dinero/internal/middleware/ratelimit"
	"dinero/internal/middleware/security"
	"dinero/internal/middleware/trace"
	"dinero/internal/services"
)

const (
	dashboardCacheKey      = "dashboard"
	cacheCleanupInterval   = 10 * time.Minute
	readTimeout            = 10 * time.Second
	writeTimeout           = 30 * time.Second
	idleTimeout            = 60 * time.Second
	readinessCheckDeadline = 5 * time.Second
)

// Options tunes the server. Zero values fall back to defaults.
type Options struct {
	RateLimitPerMinute int
	// DashboardCacheTTL caches the dashboard aggregate; zero disables it.
	DashboardCacheTTL time.Duration
	Logger            *applog.Logger
	Now               func() time.Time
}

// Pinger is implemented by stores that can report their own health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// appMetrics tracks application-level counters
type appMetrics struct {
	transactionsCreated int64
	transfersCreated    int64
	sourcesCreated      int64
	uptime              time.Time
}

type Server struct {
	http.Server

	ledger *services.Ledger
	store  ledger.Store
	logger *applog.Logger
	now    func() time.Time

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware

	dashboardCache *cache.LRUCache[core.DashboardData]
	// dashboardGen counts writes; a dashboard computed across one is not cached.
	dashboardMu  sync.Mutex
	dashboardGen uint64
	cacheManager *cache.Manager
	appMetrics   *appMetrics

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps services.Deps, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)
	if deps.Logger == nil {
		deps.Logger = applog.NewStructuredLogger(logger.WithComponent(applog.ComponentLedger))
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	rlConfig := ratelimit.DefaultConfig()
	if opts.RateLimitPerMinute > 0 {
		rlConfig.RequestsPerMinute = opts.RateLimitPerMinute
	}

	detector := security.NewDetector()
	s := &Server{
		ledger:           services.New(deps),
		store:            deps.Store,
		logger:           logger,
		now:              now,
		rateLimiter:      ratelimit.NewLimiter(rlConfig),
		securityDetector: detector,
		traceMiddleware:  trace.NewMiddleware(detector.ExtractClientIP, logger),
		cacheManager:     cache.NewManager(),
		appMetrics:       &appMetrics{uptime: time.Now()},
	}

	if opts.DashboardCacheTTL > 0 {
		s.dashboardCache = cache.NewLRUCache[core.DashboardData](1, opts.DashboardCacheTTL)
		s.cacheManager.Register("dashboard", s.dashboardCache)
		s.cacheManager.StartCleanup(cacheCleanupInterval)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /api/sources", s.handleListSources)
	mux.HandleFunc("POST /api/sources", s.handleCreateSource)
	mux.HandleFunc("DELETE /api/sources/{id}", s.handleArchiveSource)
	mux.HandleFunc("GET /api/sources/{id}/balance", s.handleSourceBalance)
	mux.HandleFunc("GET /api/transactions", s.handleListTransactions)
	mux.HandleFunc("POST /api/transactions", s.handleCreateTransaction)
	mux.HandleFunc("POST /api/transfers", s.handleCreateTransfer)
	mux.HandleFunc("GET /api/categories", s.handleCategories)
	mux.HandleFunc("GET /api/dashboard-data", s.handleDashboardData)
	mux.HandleFunc("/", s.handleNotFound)

	// Outermost first: trace, security headers, detection, rate limit
	var handler http.Handler = mux
	handler = s.rateLimiter.Middleware(detector.ExtractClientIP, s.handleRateLimited)(handler)
	handler = detector.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
	return s
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldComponent, applog.ComponentRateLimit,
		applog.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		applog.FieldMethod, r.Method,
		applog.FieldPath, r.URL.Path)
	RateLimitedError().Write(w)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	NotFoundError("no route for " + r.Method + " " + r.URL.Path).Write(w)
}

// invalidateDashboard drops the cached aggregate after a write.
func (s *Server) invalidateDashboard() {
	if s.dashboardCache == nil {
		return
	}
	s.dashboardMu.Lock()
	defer s.dashboardMu.Unlock()
	s.dashboardGen++
	s.dashboardCache.Delete(dashboardCacheKey)
}

func (s *Server) dashboardGeneration() uint64 {
	s.dashboardMu.Lock()
	defer s.dashboardMu.Unlock()
	return s.dashboardGen
}

// cacheDashboard stores data unless a write landed since gen was taken.
func (s *Server) cacheDashboard(gen uint64, data core.DashboardData) bool {
	s.dashboardMu.Lock()
	defer s.dashboardMu.Unlock()
	if s.dashboardGen != gen {
		return false
	}
	s.dashboardCache.Set(dashboardCacheKey, data)
	return true
}
