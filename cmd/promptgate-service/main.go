package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/promptgate/promptgate/internal/audit"
	"github.com/promptgate/promptgate/internal/config"
	"github.com/promptgate/promptgate/internal/evalexec"
	"github.com/promptgate/promptgate/internal/gate"
	"github.com/promptgate/promptgate/internal/history"
	"github.com/promptgate/promptgate/internal/httpserver"
	"github.com/promptgate/promptgate/internal/regress"
	"github.com/promptgate/promptgate/internal/registry"
	"github.com/promptgate/promptgate/internal/release"
	"github.com/promptgate/promptgate/internal/suite"
)

// bundledDefaults are the templates served when the artifact store is
// unreachable, and the seed set registered on first startup.
var bundledDefaults = map[string]string{
	"orchestrator-base": "You are the orchestrator agent. Route the user request to the right specialist and summarize the outcome.",
	"tone-guard":        "Review the drafted reply for tone. Keep it professional, direct, and free of filler.",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	var (
		regStore   registry.Store
		histReader history.Reader
		auditStore audit.Store
		recorder   suite.Recorder
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db open: %v", err)
		}
		defer db.Close()
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
		if err := db.Ping(); err != nil {
			log.Printf("db ping failed (%v); continuing, loads will fall back to bundled defaults", err)
		}
		regStore = registry.NewPGStore(db)
		histReader = history.NewPGReader(db)
		recorder = history.NewPGWriter(db, nil)
		auditStore = audit.NewPGStore(db)
	} else {
		log.Printf("no DATABASE_URL set; using in-memory stores")
		regStore = registry.NewMemoryStore()
		mem := history.NewMemoryReader()
		histReader = mem
		recorder = mem
		auditStore = audit.NewMemoryStore()
	}

	reg := registry.New(regStore, registry.Config{
		AliasTTL:     cfg.CacheTTL,
		DefaultAlias: cfg.DefaultAlias,
		Defaults:     bundledDefaults,
	})
	seeded, skipped := reg.SeedDefaults(context.Background())
	log.Printf("seed defaults: %d seeded, %d skipped", seeded, skipped)

	var publisher audit.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := audit.NewKafkaPublisher(audit.KafkaPublisherConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		})
		if err != nil {
			log.Fatalf("kafka publisher init: %v", err)
		}
		defer kp.Close()
		publisher = kp
	}
	var archiver audit.Archiver
	if cfg.S3Bucket != "" {
		a, err := audit.NewS3Archiver(context.Background(), cfg.S3Bucket, cfg.S3Prefix)
		if err != nil {
			log.Fatalf("s3 archiver init: %v", err)
		}
		archiver = a
	}
	auditLog := audit.NewLog(auditStore, publisher, archiver, nil)

	policy := regress.Policy{
		Thresholds:       cfg.GateThresholds,
		DefaultThreshold: cfg.DefaultThreshold,
	}
	detector := regress.NewDetector(histReader, policy, cfg.TolerancePp)
	promotionGate := gate.New(reg, histReader, policy)
	executor := release.NewExecutor(reg, auditLog)

	var runner evalexec.Runner
	if cfg.EvalServiceURL != "" {
		runner, err = evalexec.NewHTTPClient(evalexec.HTTPClientConfig{
			BaseURL: cfg.EvalServiceURL,
			Timeout: cfg.EvalServiceTimeout,
			Retries: cfg.EvalServiceRetries,
		})
		if err != nil {
			log.Fatalf("eval client init: %v", err)
		}
	} else {
		log.Printf("no eval service URL set; suite runs will record dataset errors")
		runner = evalexec.Unavailable{}
	}
	orchestrator := suite.NewOrchestrator(runner, detector, recorder, nil)

	server := httpserver.New(cfg, reg, histReader, detector, promotionGate, executor, orchestrator, auditLog)
	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: server.Router(),
	}

	go func() {
		log.Printf("promptgate service listening on %s", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	waitForShutdown(httpServer)
}

func waitForShutdown(srv *http.Server) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
