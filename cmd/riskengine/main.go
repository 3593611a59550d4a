package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/contentrisk/internal/auditlog"
	"github.com/jmerrifield20/contentrisk/internal/email"
	"github.com/jmerrifield20/contentrisk/internal/health"
	"github.com/jmerrifield20/contentrisk/internal/identity"
	"github.com/jmerrifield20/contentrisk/internal/moderation/handler"
	"github.com/jmerrifield20/contentrisk/internal/moderation/model"
	"github.com/jmerrifield20/contentrisk/internal/moderation/repository"
	"github.com/jmerrifield20/contentrisk/internal/moderation/service"
	"github.com/jmerrifield20/contentrisk/internal/notify"
	"github.com/jmerrifield20/contentrisk/internal/risk"
	"github.com/jmerrifield20/contentrisk/internal/velocity"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	if err := loadConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "riskengine: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "riskengine: build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("riskengine exited with error", zap.Error(err))
	}
}

// ── Configuration ────────────────────────────────────────────────────────

func loadConfig() error {
	viper.SetConfigName("riskengine")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("configs")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.port", 8090)
	viper.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	viper.SetDefault("server.rate_limit_rps", 50)
	viper.SetDefault("server.shutdown_timeout", "15s")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("database.url", "")
	viper.SetDefault("redis.url", "")
	viper.SetDefault("auth.token_key", "")
	viper.SetDefault("auth.issuer", "contentrisk")
	viper.SetDefault("auth.token_ttl", "8h")
	viper.SetDefault("auth.principals", []map[string]any{})
	viper.SetDefault("engine.sender_cache_size", 10000)
	viper.SetDefault("engine.sender_cache_ttl", "1m")
	viper.SetDefault("engine.bulk_concurrency", 8)
	viper.SetDefault("notify.endpoints", []map[string]any{})
	viper.SetDefault("notify.retry_max", 3)
	viper.SetDefault("notify.email.to", []string{})
	viper.SetDefault("notify.email.min_level", "high")
	viper.SetDefault("notify.email.smtp.port", 587)
	viper.SetDefault("health.check_interval", "30s")
	viper.SetDefault("health.fail_threshold", 3)

	if err := viper.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgNotFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// newLogger builds a production JSON logger, or a development console logger
// when logging.format is "console".
func newLogger() (*zap.Logger, error) {
	var cfg zap.Config
	if viper.GetString("logging.format") == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	level, err := zap.ParseAtomicLevel(viper.GetString("logging.level"))
	if err != nil {
		return nil, err
	}
	cfg.Level = level
	return cfg.Build()
}

func run(logger *zap.Logger) error {
	if viper.ConfigFileUsed() == "" {
		logger.Warn("no config file found, using defaults and env vars")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Policy ────────────────────────────────────────────────────────────────
	policy, err := loadPolicy(viper.GetViper())
	if err != nil {
		return err
	}
	analyzer, err := risk.NewAnalyzer(policy)
	if err != nil {
		return fmt.Errorf("invalid policy: %w", err)
	}
	logger.Info("risk policy loaded",
		zap.String("version", policy.Version),
		zap.Float64("medium_threshold", policy.MediumThreshold),
		zap.Float64("high_threshold", policy.HighThreshold),
	)

	checker := health.New(health.Config{
		CheckInterval: viper.GetDuration("health.check_interval"),
		FailThreshold: viper.GetInt("health.fail_threshold"),
	}, logger)
	checker.SetMetricsRecord(handler.RecordHealthCheck)

	// ── Storage ───────────────────────────────────────────────────────────────
	var (
		flags   service.FlagStore
		content service.ContentSource
		reports service.ReportStore
		audit   auditlog.Log
	)
	if dbURL := viper.GetString("database.url"); dbURL != "" {
		db, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer db.Close()
		if err := db.Ping(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		logger.Info("connected to postgres")
		checker.Register("postgres", true, db.Ping)

		flags = repository.NewFlagRepository(db)
		content = repository.NewContentRepository(db)
		reports = repository.NewReportRepository(db)
		audit = auditlog.NewPostgresLog(db, logger)
	} else {
		logger.Warn("database.url not set, using in-memory stores; data is lost on exit")
		memFlags := repository.NewMemoryFlagRepository()
		flags = memFlags
		content = repository.NewMemoryContent(memFlags)
		reports = repository.NewMemoryReportRepository()
		audit = auditlog.NewMemoryLog()
	}

	if err := audit.Verify(ctx); err != nil {
		logger.Warn("audit log integrity check FAILED", zap.Error(err))
	} else {
		n, _ := audit.Len(ctx)
		root, _ := audit.Root(ctx)
		logger.Info("audit log verified", zap.Int("entries", n), zap.String("root", root))
	}

	// ── Velocity counters ─────────────────────────────────────────────────────
	var counts velocity.Store
	if redisURL := viper.GetString("redis.url"); redisURL != "" {
		rs, err := velocity.NewRedisStore(ctx, redisURL)
		if err != nil {
			return fmt.Errorf("velocity store: %w", err)
		}
		defer rs.Close() //nolint:errcheck
		checker.Register("redis", false, func(ctx context.Context) error { return rs.Client.Ping(ctx).Err() })
		counts = rs
		logger.Info("velocity counters: redis")
	} else {
		counts = velocity.NewMemStore()
		logger.Info("velocity counters: in-memory (set redis.url to share across instances)")
	}

	// ── Engine ────────────────────────────────────────────────────────────────
	engine := service.NewEngine(analyzer, flags, content, counts, logger)
	engine.SetAuditLog(audit)
	engine.SetMetrics(handler.PrometheusRecorder{})
	engine.SetSenderCache(viper.GetInt("engine.sender_cache_size"), viper.GetDuration("engine.sender_cache_ttl"))
	engine.SetBulkConcurrency(viper.GetInt("engine.bulk_concurrency"))

	var endpoints []notify.Endpoint
	if err := viper.UnmarshalKey("notify.endpoints", &endpoints); err != nil {
		return fmt.Errorf("decode notify.endpoints: %w", err)
	}
	var (
		dispatchers notify.Fanout
		drains      []func()
	)
	if len(endpoints) > 0 {
		notifier := notify.New(endpoints, logger,
			notify.WithRetry(viper.GetInt("notify.retry_max"), time.Second, 10*time.Second))
		notifier.SetMetricsRecorder(handler.RecordWebhookDelivery)
		dispatchers = append(dispatchers, notifier)
		drains = append(drains, notifier.Wait)
		logger.Info("webhook notifier configured", zap.Int("endpoints", len(endpoints)))
	}
	if to := viper.GetStringSlice("notify.email.to"); len(to) > 0 {
		var sender email.Sender = email.NewNoopSender(logger)
		var smtpCfg email.SMTPConfig
		if err := viper.UnmarshalKey("notify.email.smtp", &smtpCfg); err != nil {
			return fmt.Errorf("decode notify.email.smtp: %w", err)
		}
		if smtpCfg.Host != "" {
			s, err := email.NewSMTPSender(smtpCfg)
			if err != nil {
				return fmt.Errorf("notify.email.smtp: %w", err)
			}
			sender = s
		}
		alerter := notify.NewMailAlerter(sender, to, model.RiskLevel(viper.GetString("notify.email.min_level")), logger)
		alerter.SetMetricsRecorder(handler.RecordWebhookDelivery)
		dispatchers = append(dispatchers, alerter)
		drains = append(drains, alerter.Wait)
		logger.Info("reviewer email alerts configured", zap.Strings("to", to), zap.Bool("smtp", smtpCfg.Host != ""))
	}
	if len(dispatchers) > 0 {
		engine.SetEventDispatcher(dispatchers)
	}

	reportSvc := service.NewReportService(reports, engine, logger)

	// ── Identity ──────────────────────────────────────────────────────────────
	var principals []identity.Principal
	if err := viper.UnmarshalKey("auth.principals", &principals); err != nil {
		return fmt.Errorf("decode auth.principals: %w", err)
	}
	directory, err := identity.NewDirectory(principals)
	if err != nil {
		return fmt.Errorf("auth.principals: %w", err)
	}
	if directory.Len() == 0 {
		logger.Warn("no principals configured; only /healthz, /metrics and reputation are usable")
	}
	tokens, err := identity.NewTokenIssuer(
		[]byte(viper.GetString("auth.token_key")),
		viper.GetString("auth.issuer"),
		viper.GetDuration("auth.token_ttl"),
	)
	if err != nil {
		return fmt.Errorf("auth.token_key: %w", err)
	}

	// ── HTTP Router ───────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	corsOrigins := viper.GetStringSlice("server.cors_origins")
	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: !containsWildcard(corsOrigins),
		MaxAge:           12 * time.Hour,
	}))

	// Security headers
	router.Use(func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	})

	// Request body size limit (1 MB)
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20)
		c.Next()
	})

	if rps := viper.GetFloat64("server.rate_limit_rps"); rps > 0 {
		router.Use(handler.RateLimiter(ctx, rps, int(rps*2), handler.PrincipalKey(tokens)))
	}
	router.Use(requestLogger(logger))
	router.Use(handler.PrometheusMiddleware())

	// Ops (public, no auth)
	router.GET("/healthz", handler.NewHealthHandler(checker).Healthz)
	router.GET("/metrics", handler.MetricsHandler())

	v1 := router.Group("/api/v1")
	handler.NewAuthHandler(directory, tokens, logger).Register(v1)
	handler.NewAnalyzeHandler(engine, tokens, logger).Register(v1)
	handler.NewFlagHandler(engine, tokens, logger).Register(v1)
	handler.NewReportHandler(reportSvc, tokens, logger).Register(v1)
	handler.NewAuditHandler(audit, tokens, logger).Register(v1)

	go checker.Run(ctx)

	port := viper.GetInt("server.port")
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("riskengine HTTP listening", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// ── Graceful shutdown ──────────────────────────────────────────────────────
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("HTTP listen: %w", err)
	}
	logger.Info("shutting down riskengine...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), viper.GetDuration("server.shutdown_timeout"))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}
	for _, drain := range drains {
		drain()
	}

	logger.Info("riskengine stopped")
	return nil
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// requestLogger returns a Gin middleware that tags each request with an id
// and logs it with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header("X-Request-ID", reqID)
		c.Next()

		fields := []zap.Field{
			zap.String("request_id", reqID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if claims := identity.ClaimsFromCtx(c); claims != nil {
			fields = append(fields, zap.Int64("principal_id", claims.PrincipalID))
		}
		logger.Info("request", fields...)
	}
}
