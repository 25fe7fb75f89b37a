package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	accesshandler "support-access-plane/internal/access/handler"
	accessrepo "support-access-plane/internal/access/repository"
	accessservice "support-access-plane/internal/access/service"
	"support-access-plane/internal/access/sweeper"
	"support-access-plane/internal/audit"
	auditrepo "support-access-plane/internal/audit/repository"
	"support-access-plane/internal/config"
	"support-access-plane/internal/db"
	healthhandler "support-access-plane/internal/health/handler"
	identityhandler "support-access-plane/internal/identity/handler"
	identityservice "support-access-plane/internal/identity/service"
	"support-access-plane/internal/policy/engine"
	"support-access-plane/internal/security"
	"support-access-plane/internal/server"
	"support-access-plane/internal/server/middleware"
	"support-access-plane/internal/telemetry"
	"support-access-plane/internal/telemetry/otel"
	"support-access-plane/internal/telemetry/producer"
	userrepo "support-access-plane/internal/user/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	signer, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		log.Fatalf("jwt private key: %v", err)
	}
	verifier, err := security.ParsePublicKey(cfg.JWTPublicKey)
	if err != nil {
		log.Fatalf("jwt public key: %v", err)
	}
	tokens := security.NewTokenProvider(signer, verifier, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL())

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	ctx := context.Background()
	providers, err := otel.NewProviders(ctx, cfg.OTLPEndpoint, "support-access-plane", cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	providers.SetGlobal()

	evaluator, err := engine.NewOPAEvaluator(ctx)
	if err != nil {
		log.Fatalf("policy: %v", err)
	}

	kafkaProducer, err := producer.NewKafkaProducer(cfg.TelemetryKafkaBrokersList(), cfg.TelemetryKafkaTopic)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}

	users := userrepo.NewPostgresRepository(conn)
	sessions := accessrepo.NewPostgresRepository(conn)
	auditEntries := auditrepo.NewPostgresRepository(conn)

	recorder := audit.NewRecorder(auditEntries, middleware.ClientIPFromContext, middleware.UserAgentFromContext)
	manager := accessservice.NewManager(sessions, users, evaluator, recorder)
	authService := identityservice.NewAuthService(users, security.NewHasher(cfg.BcryptCost), tokens)

	sw, err := sweeper.New(sessions, cfg.SweepEvery(), providers.MeterProvider.Meter("support-access-plane/sweeper"))
	if err != nil {
		log.Fatalf("sweeper: %v", err)
	}
	sweepCtx, stopSweeper := context.WithCancel(ctx)
	go sw.Run(sweepCtx)

	deps := server.Deps{
		Tokens:   tokens,
		Access:   accesshandler.NewHandler(manager, users),
		Identity: identityhandler.NewHandler(authService),
		Health:   healthhandler.NewHandler(conn),
	}
	if kafkaProducer != nil {
		deps.Producer = kafkaProducer
	}
	router := server.NewRouter(deps)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down HTTP server...")
	stopSweeper()
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}

	// Give in-flight async telemetry emits time to complete before closing.
	time.Sleep(telemetry.ShutdownDrainDuration)
	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			log.Printf("telemetry: close producer: %v", err)
		}
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("otel: shutdown: %v", err)
	}
	log.Println("HTTP server stopped")
}
