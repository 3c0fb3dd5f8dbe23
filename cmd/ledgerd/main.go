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

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/jmerrifield20/SovereignLedger/internal/auditlog"
	"github.com/jmerrifield20/SovereignLedger/internal/identity"
	"github.com/jmerrifield20/SovereignLedger/internal/ledger"
	"github.com/jmerrifield20/SovereignLedger/internal/ledger/handler"
	"github.com/jmerrifield20/SovereignLedger/internal/ledger/store"
	"github.com/jmerrifield20/SovereignLedger/internal/notify"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("ledgerd exited with error", zap.Error(err))
	}
}

// apiKey is one entry of auth.api_keys.
type apiKey struct {
	Address string `mapstructure:"address"`
	KeyHash string `mapstructure:"key_hash"`
}

func run(logger *zap.Logger) error {
	// ── Configuration ────────────────────────────────────────────────────────
	viper.SetConfigName("ledgerd")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("configs")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	viper.SetDefault("server.rate_limit_rps", 20)
	viper.SetDefault("database.url", "")
	viper.SetDefault("ledger.owner", "")
	viper.SetDefault("ledger.base_uri", "")
	viper.SetDefault("ledger.contract_uri", "")
	viper.SetDefault("ledger.proof_cache_size", 4096)
	viper.SetDefault("auth.token_secret", "")
	viper.SetDefault("auth.token_issuer", "sovereign-ledger")
	viper.SetDefault("auth.token_ttl", "1h")
	viper.SetDefault("notify.webhooks", []string{})
	viper.SetDefault("notify.webhook_secret", "")
	viper.SetDefault("audit.enabled", true)

	if err := viper.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgNotFound) {
			return fmt.Errorf("read config: %w", err)
		}
		logger.Warn("no config file found, using defaults and env vars")
	}

	startCtx := context.Background()

	// ── Storage ──────────────────────────────────────────────────────────────
	var (
		backing ledger.Store
		audit   auditlog.Log
	)
	if dbURL := viper.GetString("database.url"); dbURL != "" {
		db, err := pgxpool.New(startCtx, dbURL)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer db.Close()

		if err := db.Ping(startCtx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		logger.Info("connected to postgres")

		backing = store.NewPostgresStore(db, logger)
		audit = auditlog.NewPostgresLog(db, logger)
	} else {
		logger.Warn("database.url not set, ledger state is held in memory only")
		backing = store.NewMemoryStore()
		audit = auditlog.NewMemoryLog()
	}

	// ── Audit Log ────────────────────────────────────────────────────────────
	auditEnabled := viper.GetBool("audit.enabled")
	if auditEnabled {
		if err := audit.Verify(startCtx); err != nil {
			logger.Warn("audit log integrity check FAILED", zap.Error(err))
		} else {
			n, _ := audit.Len(startCtx)
			root, _ := audit.Root(startCtx)
			logger.Info("audit log verified",
				zap.Int("entries", n),
				zap.String("root", root),
			)
		}
	}

	// ── Notifications ────────────────────────────────────────────────────────
	fanout := notify.Fanout{notify.NewLogNotifier(logger)}
	if auditEnabled {
		an := notify.NewAuditNotifier(audit, logger)
		an.SetAppendRecorder(handler.RecordAuditAppend)
		fanout = append(fanout, an)
	}
	var webhooks *notify.WebhookNotifier
	if urls := viper.GetStringSlice("notify.webhooks"); len(urls) > 0 {
		secret := viper.GetString("notify.webhook_secret")
		if secret == "" {
			logger.Warn("notify.webhook_secret not set, webhook payloads are signed with an empty key")
		}
		webhooks = notify.NewWebhookNotifier(urls, secret, logger)
		webhooks.SetMetricsRecorder(handler.RecordWebhookDelivery)
		fanout = append(fanout, webhooks)
		logger.Info("webhook delivery enabled", zap.Int("endpoints", len(urls)))
	}

	// ── Ledger ───────────────────────────────────────────────────────────────
	ownerHex := viper.GetString("ledger.owner")
	if ownerHex != "" && !common.IsHexAddress(ownerHex) {
		return fmt.Errorf("ledger.owner %q is not a hex address", ownerHex)
	}
	genesis := ledger.Genesis{
		Owner:       common.HexToAddress(ownerHex),
		BaseURI:     viper.GetString("ledger.base_uri"),
		ContractURI: viper.GetString("ledger.contract_uri"),
	}

	l, err := ledger.Open(startCtx, backing, genesis, logger,
		ledger.WithNotifier(fanout),
		ledger.WithProofCacheSize(viper.GetInt("ledger.proof_cache_size")),
	)
	if err != nil {
		return err
	}

	st, err := l.State(startCtx)
	if err != nil {
		return fmt.Errorf("load ledger state: %w", err)
	}
	handler.SetTotalMinted(st.TotalMinted)
	logger.Info("ledger opened",
		zap.String("owner", st.Owner.Hex()),
		zap.Uint64("total_minted", st.TotalMinted),
		zap.Bool("minting_enabled", st.MintingEnabled),
	)

	// ── Identity ─────────────────────────────────────────────────────────────
	tokenTTL, err := time.ParseDuration(viper.GetString("auth.token_ttl"))
	if err != nil {
		return fmt.Errorf("parse auth.token_ttl: %w", err)
	}
	tokens, err := identity.NewTokenIssuer(
		[]byte(viper.GetString("auth.token_secret")),
		viper.GetString("auth.token_issuer"),
		tokenTTL,
	)
	if err != nil {
		return fmt.Errorf("init token issuer: %w", err)
	}

	var keys []apiKey
	if err := viper.UnmarshalKey("auth.api_keys", &keys); err != nil {
		return fmt.Errorf("parse auth.api_keys: %w", err)
	}
	keyRing := identity.NewKeyRing()
	for _, k := range keys {
		if !common.IsHexAddress(k.Address) {
			return fmt.Errorf("auth.api_keys: %q is not a hex address", k.Address)
		}
		if err := keyRing.Add(common.HexToAddress(k.Address), k.KeyHash); err != nil {
			return fmt.Errorf("auth.api_keys %s: %w", k.Address, err)
		}
	}
	if keyRing.Len() == 0 {
		logger.Warn("no API keys configured, POST /api/v1/auth/token will reject every request")
	}

	// ── Handlers ─────────────────────────────────────────────────────────────
	ledgerHandler := handler.NewLedgerHandler(l, tokens, logger)
	auditHandler := handler.NewAuditHandler(audit, logger)
	authHandler := handler.NewAuthHandler(keyRing, tokens, logger)

	// ── HTTP Router ──────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	// CORS
	corsOrigins := viper.GetStringSlice("server.cors_origins")
	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !containsWildcard(corsOrigins),
		MaxAge:           12 * time.Hour,
	}))

	// Security headers
	router.Use(func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	})

	// Request body size limit (1 MB)
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<20)
		c.Next()
	})

	// Per-IP rate limiting
	limiterCtx, stopLimiter := context.WithCancel(context.Background())
	defer stopLimiter()
	if rps := viper.GetFloat64("server.rate_limit_rps"); rps > 0 {
		router.Use(handler.RateLimiter(limiterCtx, rps, int(rps*2)))
	}

	router.Use(requestLogger(logger))
	router.Use(handler.PrometheusMiddleware())

	// Health and metrics (public, no auth)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", handler.MetricsHandler())

	// API v1
	v1 := router.Group("/api/v1")
	ledgerHandler.Register(v1)
	auditHandler.Register(v1)
	authHandler.Register(v1)

	// ── HTTP Server ──────────────────────────────────────────────────────────
	httpPort := viper.GetInt("server.port")
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", httpPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("ledgerd HTTP listening", zap.Int("port", httpPort))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP listen error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	<-quit
	logger.Info("shutting down ledgerd...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}
	// No mutation can run after Shutdown returns, so the queue is final.
	if webhooks != nil {
		webhooks.Close()
	}

	logger.Info("ledgerd stopped")
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

// requestLogger returns a Gin middleware that logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
