package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"admission-gateway/middleware/admission"
	"admission-gateway/middleware/admission/application"
	"admission-gateway/middleware/admission/domain"
	"admission-gateway/middleware/admission/infra"
)

func main() {
	// .env é opcional; variáveis já exportadas têm precedência
	_ = godotenv.Load()

	cfg, err := readConfig()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	target, err := url.Parse(cfg.upstreamURL)
	if err != nil {
		log.Fatalf("invalid UPSTREAM_URL: %v", err)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Printf("proxy error: %v", err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	source, err := infra.NewFileSource(cfg.policyFile)
	if err != nil {
		log.Fatalf("policy source error: %v", err)
	}
	store := infra.NewConfigStore(source, infra.ValidatePolicySet,
		infra.WithMaxVersions(cfg.policyMaxVersions),
	)
	res := store.Reload(ctx)
	if res.Outcome == domain.ReloadRejected {
		log.Fatalf("initial policy load rejected: %v", res.Err)
	}
	log.Printf("policies loaded: version=%d", res.Version)

	quotas := infra.NewQuotaStore(
		infra.WithIdleTTL(cfg.idleTTL),
		infra.WithCleanupEvery(cfg.cleanupEvery),
	)
	quotas.StartJanitor(ctx)

	reg := prometheus.NewRegistry()
	metrics := admission.NewMetrics(reg, quotas, store)

	if cfg.policyWatch {
		watcher, err := infra.NewWatcher(cfg.policyFile, store,
			infra.WithDebounce(cfg.policyDebounce),
			infra.WithOnReload(func(res domain.ReloadResult) {
				metrics.ObserveReload(res)
				if res.Outcome == domain.ReloadRejected {
					log.Printf("policy reload rejected: %v", res.Err)
					return
				}
				log.Printf("policy reload: outcome=%s version=%d", res.Outcome, res.Version)
			}),
		)
		if err != nil {
			log.Fatalf("policy watcher error: %v", err)
		}
		if err := watcher.Start(ctx); err != nil {
			log.Fatalf("policy watcher error: %v", err)
		}
	}

	engine := &application.Engine{
		Snapshots: store,
		Quotas:    quotas,
		Resolver:  application.NewResolver(cfg.resolverCache),
		Fallback:  infra.NewFailsafe(cfg.failsafeRPS, cfg.failsafeBurst),
	}

	var statsStore domain.StatsStore
	if cfg.statsEnabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.statsRedisAddr,
			Password: cfg.statsRedisPassword,
			DB:       cfg.statsRedisDB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, cancelPing := context.WithTimeout(context.Background(), 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		cancelPing()
		if err != nil {
			log.Fatalf("redis stats ping error: %v", err)
		}

		statsStore = infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.statsPrefix),
			infra.WithStatsTTL(cfg.statsTTL),
			infra.WithStatsBucket(cfg.statsBucket),
			infra.WithStatsTrackKeys(cfg.statsTrackKeys),
		)
	}

	h := http.Handler(proxy)
	h = admission.ConcurrencyMiddleware(admission.ConcurrencyOptions{
		Max:            cfg.concurrencyMax,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: cfg.concurrencyTimeout,
	})(h)
	h = admission.Middleware(admission.Options{
		Engine:              engine,
		Stats:               statsStore,
		Metrics:             metrics,
		KeyHeader:           cfg.keyHeader,
		TierHeader:          cfg.tierHeader,
		TrustXForwardedFor:  cfg.trustXFF,
		RejectStatus:        http.StatusTooManyRequests,
		AddRateLimitHeaders: cfg.addHeaders,
	})(h)

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	var adminSrv *http.Server
	if cfg.adminAddr != "" {
		mux := chi.NewRouter()
		mux.Mount("/admin", admission.AdminAPI{Store: store, Quotas: quotas}.Router())
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		adminSrv = &http.Server{
			Addr:              cfg.adminAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Printf("admin api listening on %s", cfg.adminAddr)
			if err := adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("admin server error: %v", err)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		_ = srv.Shutdown(shutdownCtx)
		if adminSrv != nil {
			_ = adminSrv.Shutdown(shutdownCtx)
		}
	}()

	log.Printf("gateway listening on %s -> %s", cfg.listenAddr, target)
	log.Printf("policies: file=%q watch=%v debounce=%s maxVersions=%d", cfg.policyFile, cfg.policyWatch, cfg.policyDebounce, cfg.policyMaxVersions)
	log.Printf("admission: keyHeader=%q tierHeader=%q trustXFF=%v headers=%v failsafe=%.3frps/%d", cfg.keyHeader, cfg.tierHeader, cfg.trustXFF, cfg.addHeaders, cfg.failsafeRPS, cfg.failsafeBurst)
	log.Printf("stats: enabled=%v redisAddr=%q bucket=%q ttl=%s trackKeys=%v", cfg.statsEnabled, cfg.statsRedisAddr, cfg.statsBucket, cfg.statsTTL, cfg.statsTrackKeys)
	log.Printf("concurrency: max=%d acquireTimeout=%s", cfg.concurrencyMax, cfg.concurrencyTimeout)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}

type config struct {
	listenAddr  string
	upstreamURL string
	adminAddr   string

	policyFile        string
	policyWatch       bool
	policyDebounce    time.Duration
	policyMaxVersions int
	resolverCache     int

	keyHeader  string
	tierHeader string
	trustXFF   bool
	addHeaders bool

	idleTTL      time.Duration
	cleanupEvery time.Duration

	failsafeRPS   float64
	failsafeBurst int

	concurrencyMax     int
	concurrencyTimeout time.Duration

	statsEnabled       bool
	statsRedisAddr     string
	statsRedisPassword string
	statsRedisDB       int
	statsPrefix        string
	statsTTL           time.Duration
	statsBucket        string
	statsTrackKeys     bool
}

func readConfig() (config, error) {
	cfg := config{}
	cfg.listenAddr = getenvDefault("LISTEN_ADDR", ":8080")
	cfg.upstreamURL = os.Getenv("UPSTREAM_URL")
	cfg.adminAddr = getenvDefault("ADMIN_ADDR", ":8090")

	cfg.policyFile = os.Getenv("POLICY_FILE")
	cfg.policyWatch = getenvBoolDefault("POLICY_WATCH", true)
	cfg.policyDebounce = getenvDurationDefault("POLICY_DEBOUNCE", 250*time.Millisecond)
	cfg.policyMaxVersions = getenvIntDefault("POLICY_MAX_VERSIONS", 10)
	cfg.resolverCache = getenvIntDefault("RESOLVER_CACHE", 1024)

	cfg.keyHeader = os.Getenv("KEY_HEADER")
	cfg.tierHeader = getenvDefault("TIER_HEADER", "X-Tier")
	cfg.trustXFF = getenvBoolDefault("TRUST_XFF", false)
	cfg.addHeaders = getenvBoolDefault("ADD_RATELIMIT_HEADERS", true)

	cfg.idleTTL = getenvDurationDefault("IDLE_TTL", 15*time.Minute)
	cfg.cleanupEvery = getenvDurationDefault("CLEANUP_EVERY", 2*time.Minute)

	// anteparo de último recurso: de propósito bem conservador
	cfg.failsafeRPS = getenvFloatDefault("FAILSAFE_RPS", 1)
	cfg.failsafeBurst = getenvIntDefault("FAILSAFE_BURST", 5)

	cfg.concurrencyMax = getenvIntDefault("CONCURRENCY_MAX", 100)
	cfg.concurrencyTimeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", 0)

	cfg.statsEnabled = getenvBoolDefault("STATS_ENABLED", false)
	cfg.statsRedisAddr = getenvDefault("STATS_REDIS_ADDR", "")
	cfg.statsRedisPassword = os.Getenv("STATS_REDIS_PASSWORD")
	cfg.statsRedisDB = getenvIntDefault("STATS_REDIS_DB", 0)
	cfg.statsPrefix = getenvDefault("STATS_PREFIX", "admission:stats")
	cfg.statsTTL = getenvDurationDefault("STATS_TTL", 24*time.Hour)
	cfg.statsBucket = getenvDefault("STATS_BUCKET", "minute")
	cfg.statsTrackKeys = getenvBoolDefault("STATS_TRACK_KEYS", false)

	if cfg.upstreamURL == "" {
		return config{}, errors.New("UPSTREAM_URL is required")
	}
	if cfg.policyFile == "" {
		return config{}, errors.New("POLICY_FILE is required")
	}
	if cfg.statsEnabled && strings.TrimSpace(cfg.statsRedisAddr) == "" {
		return config{}, errors.New("STATS_REDIS_ADDR is required when STATS_ENABLED=true")
	}
	if cfg.failsafeRPS <= 0 {
		return config{}, errors.New("FAILSAFE_RPS must be > 0")
	}
	if cfg.failsafeBurst <= 0 {
		return config{}, errors.New("FAILSAFE_BURST must be > 0")
	}
	if cfg.concurrencyMax < 0 {
		return config{}, errors.New("CONCURRENCY_MAX must be >= 0")
	}
	if cfg.policyMaxVersions < 1 {
		return config{}, errors.New("POLICY_MAX_VERSIONS must be >= 1")
	}
	return cfg, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
