package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"

	apihttp "fieldlog/internal/api/http"
	"fieldlog/internal/audit"
	equipment "fieldlog/internal/equipment/domain"
	"fieldlog/internal/observability/metrics"
	"fieldlog/internal/readings/application"
	"fieldlog/internal/retry"
	"fieldlog/internal/syncer"
	syncerpg "fieldlog/internal/syncer/infrastructure/postgres"
	syncerrest "fieldlog/internal/syncer/infrastructure/rest"
	sqlitequeue "fieldlog/internal/syncqueue/infrastructure/sqlite"
	validation "fieldlog/internal/validation/domain"
	"fieldlog/internal/validation/ruleset"
)

func main() {
	_ = godotenv.Load()
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	queue, err := sqlitequeue.Open(cfg.QueuePath)
	if err != nil {
		logger.Fatalf("queue open error: %v", err)
	}
	defer queue.Close()

	auditRepo := audit.NewRepository(queue.DB())
	if err := auditRepo.EnsureSchema(context.Background()); err != nil {
		logger.Fatalf("audit schema error: %v", err)
	}

	rules, err := ruleset.Load(cfg.RuleSetPath, logger)
	if err != nil {
		logger.Fatalf("ruleset load error: %v", err)
	}
	engine := validation.NewEngine(rules.Rules, logger)

	provider, err := loadEquipment(cfg.EquipmentPath)
	if err != nil {
		logger.Fatalf("equipment load error: %v", err)
	}

	intake, err := application.NewIntakeService(queue, engine, rules.Fields, provider, auditRepo, logger)
	if err != nil {
		logger.Fatalf("intake service error: %v", err)
	}

	remote, err := buildRemoteStore(cfg)
	if err != nil {
		logger.Fatalf("remote store error: %v", err)
	}

	exec := retry.NewExecutor(retryProfile(cfg.RetryProfile),
		retry.WithLogger(logger),
		retry.WithObserver(func(attempt int, delay time.Duration, err error) {
			metrics.IncRetry(retry.Class(err))
		}),
	)

	sync := syncer.NewSynchronizer(queue, remote, exec, syncer.NewResolver(logger), logger,
		syncer.WithMaxParallel(cfg.SyncParallel),
		syncer.WithObserver(application.NewSyncObserver(auditRepo, logger)),
	)
	intake.AttachDrainer(sync)

	metrics.Init(func(ctx context.Context) (int, error) {
		return queue.Depth(ctx)
	}, logger)

	// Background drain: every tick, try to push whatever is pending. Manual
	// POST /api/v1/sync passes interleave safely; drains serialize.
	go func() {
		ticker := time.NewTicker(cfg.SyncInterval)
		defer ticker.Stop()
		for range ticker.C {
			if _, err := sync.SyncAll(context.Background()); err != nil {
				logger.Printf("background sync error: %v", err)
			}
		}
	}()

	pendingHandler := apihttp.NewPendingHandler(intake)
	mux := http.NewServeMux()
	mux.Handle("/api/v1/readings", apihttp.NewReadingsHandler(intake))
	mux.Handle("/api/v1/readings/pending", pendingHandler)
	mux.Handle("/api/v1/readings/pending/", pendingHandler)
	mux.Handle("/api/v1/sync", apihttp.NewSyncHandler(intake))
	mux.Handle("/api/v1/audit/report.pdf", apihttp.NewAuditReportHandler(auditRepo))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	handler := loggingMiddleware(apihttp.OperatorMiddleware([]byte(cfg.JWTSecret), logger, mux), logger)
	server := &http.Server{Addr: cfg.HTTPAddr, Handler: handler}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

type config struct {
	HTTPAddr      string
	QueuePath     string
	RuleSetPath   string
	EquipmentPath string
	JWTSecret     string

	RemoteMode    string
	RemoteBaseURL string
	RemoteToken   string
	RemotePGDSN   string

	RetryProfile string
	SyncParallel int
	SyncInterval time.Duration
}

func loadConfig() config {
	cfg := config{
		HTTPAddr:      getenvDefault("HTTP_ADDR", ":8080"),
		QueuePath:     getenvDefault("QUEUE_PATH", "fieldlog.db"),
		RuleSetPath:   getenvDefault("RULESET_PATH", "ruleset.yaml"),
		EquipmentPath: getenvDefault("EQUIPMENT_PATH", "equipment.yaml"),
		JWTSecret:     getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		RemoteMode:    getenvDefault("REMOTE_MODE", "rest"),
		RemoteBaseURL: getenvDefault("REMOTE_BASE_URL", ""),
		RemoteToken:   getenvDefault("REMOTE_TOKEN", ""),
		RemotePGDSN:   getenvDefault("REMOTE_PG_DSN", getenvDefault("PG_DSN", "")),
		RetryProfile:  getenvDefault("RETRY_PROFILE", "network"),
		SyncParallel:  getenvIntDefault("SYNC_PARALLEL", 4),
		SyncInterval:  getenvDuration("SYNC_INTERVAL", time.Minute),
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	switch cfg.RemoteMode {
	case "rest":
		if cfg.RemoteBaseURL == "" {
			log.Fatal("REMOTE_BASE_URL is required for REMOTE_MODE=rest")
		}
	case "postgres":
		if cfg.RemotePGDSN == "" {
			log.Fatal("REMOTE_PG_DSN is required for REMOTE_MODE=postgres")
		}
	default:
		log.Fatalf("REMOTE_MODE must be rest or postgres, got %q", cfg.RemoteMode)
	}
	return cfg
}

func buildRemoteStore(cfg config) (syncer.RemoteStore, error) {
	switch cfg.RemoteMode {
	case "rest":
		opts := []syncerrest.Option{}
		if cfg.RemoteToken != "" {
			opts = append(opts, syncerrest.WithAuthToken(cfg.RemoteToken))
		}
		return syncerrest.NewClient(cfg.RemoteBaseURL, opts...), nil
	case "postgres":
		db, err := syncerpg.Open(cfg.RemotePGDSN)
		if err != nil {
			return nil, err
		}
		store := syncerpg.NewStore(db)
		if err := store.EnsureSchema(context.Background()); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown remote mode %q", cfg.RemoteMode)
	}
}

func retryProfile(name string) retry.Config {
	switch name {
	case "conservative":
		return retry.Conservative()
	case "aggressive":
		return retry.Aggressive()
	default:
		return retry.Network()
	}
}

// loadEquipment reads the per-project equipment reference data served to
// the validation engine.
func loadEquipment(path string) (equipment.Provider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("equipment: read %s: %w", path, err)
	}
	var doc struct {
		Projects []equipment.Context `yaml:"projects"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("equipment: parse %s: %w", path, err)
	}
	provider := make(equipment.StaticProvider, len(doc.Projects))
	for _, project := range doc.Projects {
		if project.ProjectID == "" {
			return nil, fmt.Errorf("equipment: project with no id in %s", path)
		}
		provider[project.ProjectID] = project
	}
	return provider, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
