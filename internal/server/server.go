// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/shopspring/decimal"

	"github.com/kbaffoe/momoguard/internal/commands"
	"github.com/kbaffoe/momoguard/internal/config"
	"github.com/kbaffoe/momoguard/internal/confirm"
	"github.com/kbaffoe/momoguard/internal/engine"
	"github.com/kbaffoe/momoguard/internal/health"
	"github.com/kbaffoe/momoguard/internal/history"
	"github.com/kbaffoe/momoguard/internal/logging"
	"github.com/kbaffoe/momoguard/internal/messenger"
	"github.com/kbaffoe/momoguard/internal/metrics"
	"github.com/kbaffoe/momoguard/internal/profile"
	"github.com/kbaffoe/momoguard/internal/ratelimit"
	"github.com/kbaffoe/momoguard/internal/realtime"
	"github.com/kbaffoe/momoguard/internal/scoring"
	"github.com/kbaffoe/momoguard/internal/security"
	"github.com/kbaffoe/momoguard/internal/validation"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg          *config.Config
	profiles     profile.Store
	confirms     confirm.Store
	history      history.Store
	audit        scoring.Store
	engine       *engine.Service
	interp       *commands.Interpreter
	msgr         *messenger.Service
	hub          *realtime.Hub
	sweeper      *confirm.Timer
	limiter      *ratelimit.Limiter
	checks       *health.Registry
	db           *sql.DB // nil if using in-memory
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMessenger replaces the outbound messenger (for testing)
func WithMessenger(m *messenger.Service) Option {
	return func(s *Server) {
		s.msgr = m
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
		checks: health.NewRegistry(),
	}

	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()
	loc := cfg.Location()

	// Limits applied to freshly created profiles
	profile.DefaultDailyLimit = decimal.NewFromFloat(cfg.DefaultDailyLimit)
	profile.DefaultAverageAmount = decimal.NewFromFloat(cfg.DefaultAvgAmount)

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		profileStore := profile.NewPostgresStore(db)
		if err := profileStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate profile store", "error", err)
		}
		s.profiles = profileStore

		confirmStore := confirm.NewPostgresStore(db)
		if err := confirmStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate confirmation store", "error", err)
		}
		s.confirms = confirmStore

		historyStore := history.NewPostgresStore(db)
		if err := historyStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate history store", "error", err)
		}
		s.history = historyStore

		auditStore := scoring.NewPostgresStore(db)
		if err := auditStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate assessment store", "error", err)
		}
		s.audit = auditStore

		s.checks.Register("database", health.DBChecker("database", db.PingContext))
	} else {
		s.profiles = profile.NewMemoryStore()
		s.confirms = confirm.NewMemoryStore()
		s.history = history.NewMemoryStore()
		s.audit = scoring.NewMemoryStore()
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	// Outbound messenger: whichever platform credentials are configured.
	if s.msgr == nil {
		var senders []messenger.Sender
		if cfg.TelegramBotToken != "" {
			senders = append(senders, messenger.NewTelegramSender(cfg.TelegramBotToken))
			s.logger.Info("telegram sender enabled")
		}
		if cfg.TwilioAccountSID != "" {
			senders = append(senders, messenger.NewWhatsAppSender(
				cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioWhatsAppNumber))
			s.logger.Info("whatsapp sender enabled")
		}
		s.msgr = messenger.NewService(loc, s.logger, senders...)
	}

	// Risk engine
	s.engine = engine.New(s.profiles, s.confirms, s.history, s.audit, s.msgr,
		engine.Config{
			Location:   loc,
			AvgAlpha:   cfg.AvgAlpha,
			ConfirmTTL: cfg.ConfirmTTL(),
		}, s.logger)

	// Command interpreter
	s.interp = commands.New(s.profiles, s.history, loc)

	// Realtime hub for the dashboard feed
	s.hub = realtime.NewHub(s.logger)
	s.engine.WithEmitter(&hubEmitter{s.hub})

	// Expired confirmation sweeper
	s.sweeper = confirm.NewTimer(s.confirms, s.logger)

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS for the dashboard API
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Per-IP rate limiting for the dashboard API (webhooks are exempt)
	s.limiter = ratelimit.New(ratelimit.DefaultConfig())
	s.router.Use(s.limiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// Inbound chat platform webhooks
	s.router.POST("/webhooks/telegram", s.telegramWebhook)
	s.router.POST("/webhooks/whatsapp", s.whatsappWebhook)

	// WebSocket feed of live assessments
	s.router.GET("/ws", func(c *gin.Context) {
		s.hub.HandleWebSocket(c.Writer, c.Request)
	})

	// Dashboard API
	v1 := s.router.Group("/api/v1")
	v1.GET("/stats", s.statsHandler)
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, statuses := s.checks.CheckAll(ctx)

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"version":   "0.1.0",
		"checks":    statuses,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// statsHandler aggregates dashboard figures across all stores.
func (s *Server) statsHandler(c *gin.Context) {
	ctx := c.Request.Context()

	totals, err := s.history.Totals(ctx)
	if err != nil {
		logging.L(ctx).Error("failed to aggregate totals", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to aggregate statistics",
		})
		return
	}

	resp := gin.H{
		"transactions":    totals.Transactions,
		"flagged":         totals.Flagged,
		"fraudConfirmed":  totals.FraudConfirmed,
		"amountFlagged":   totals.AmountFlagged,
		"amountProtected": totals.AmountProtected,
		"realtime":        s.hub.Stats(),
	}

	if users, err := s.profiles.Count(ctx); err == nil {
		resp["users"] = users
	}
	if pending, err := s.confirms.Count(ctx); err == nil {
		resp["pendingConfirmations"] = pending
	}

	c.JSON(http.StatusOK, resp)
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "timezone", s.cfg.Timezone)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Background workers
	go s.hub.Run(runCtx)
	go s.sweeper.Start(runCtx)
	if s.db != nil {
		metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, sweeper)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	s.sweeper.Stop()
	s.logger.Info("confirmation sweeper stopped")

	if s.limiter != nil {
		s.limiter.Stop()
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}

// hubEmitter adapts the realtime hub to the engine's Emitter interface.
type hubEmitter struct {
	hub *realtime.Hub
}

func (e *hubEmitter) TransactionScored(entry *history.Entry) {
	e.hub.Broadcast(&realtime.Event{
		Type:      realtime.EventTransaction,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"id":        entry.ID,
			"provider":  entry.Provider,
			"direction": entry.Direction,
			"amount":    entry.Amount,
			"score":     entry.Score,
			"level":     string(entry.Level),
			"flagged":   entry.Flagged,
		},
	})
}

func (e *hubEmitter) ConfirmationResolved(userID string, res confirm.Resolution) {
	e.hub.Broadcast(&realtime.Event{
		Type:      realtime.EventConfirmation,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"resolution": string(res),
		},
	})
}
