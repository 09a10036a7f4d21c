package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"fleet-access-control/internal/audit"
	audithandler "fleet-access-control/internal/audit/handler"
	auditrepo "fleet-access-control/internal/audit/repository"
	"fleet-access-control/internal/authz"
	authzhandler "fleet-access-control/internal/authz/handler"
	"fleet-access-control/internal/cache"
	"fleet-access-control/internal/config"
	"fleet-access-control/internal/db"
	healthhandler "fleet-access-control/internal/health/handler"
	"fleet-access-control/internal/identity"
	membershiphandler "fleet-access-control/internal/membership/handler"
	membershiprepo "fleet-access-control/internal/membership/repository"
	membershipservice "fleet-access-control/internal/membership/service"
	orghandler "fleet-access-control/internal/organization/handler"
	orgrepo "fleet-access-control/internal/organization/repository"
	"fleet-access-control/internal/permission"
	"fleet-access-control/internal/policy/engine"
	policyhandler "fleet-access-control/internal/policy/handler"
	policyrepo "fleet-access-control/internal/policy/repository"
	"fleet-access-control/internal/security"
	"fleet-access-control/internal/server"
	"fleet-access-control/internal/server/middleware"
	"fleet-access-control/internal/telemetry"
	telemetryotel "fleet-access-control/internal/telemetry/otel"
	"fleet-access-control/internal/telemetry/producer"
	userrepo "fleet-access-control/internal/user/repository"
	"fleet-access-control/internal/webhook"
)

const (
	serviceName       = "fleet-access-control"
	readinessInterval = 10 * time.Second
	janitorInterval   = time.Minute
	shutdownTimeout   = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}
	if cfg.JWTPublicKey == "" {
		log.Fatal("JWT_PUBLIC_KEY is not set")
	}
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.OpenContext(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	var extraChecks []healthhandler.Check
	var store cache.Store
	switch cfg.CacheBackend {
	case config.CacheBackendRedis:
		rdb, err := cache.NewRedisClient(ctx, cache.RedisConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			log.Fatalf("cache: %v", err)
		}
		store = cache.NewRedisStore(rdb, "")
		extraChecks = append(extraChecks, healthhandler.Check{Name: "redis", Fn: redisPing(rdb)})
	default:
		mem := cache.NewMemoryStore(cache.WithMaxEntries(cfg.CacheMaxEntries))
		mem.StartJanitor(janitorInterval)
		store = mem
	}
	defer store.Close()

	users := userrepo.NewPostgresRepository(conn)
	orgs := orgrepo.NewPostgresRepository(conn)
	memberships := membershiprepo.NewPostgresRepository(conn)
	policies := policyrepo.NewPostgresRepository(conn)
	auditLogs := auditrepo.NewPostgresRepository(conn)
	auditLogger := audit.NewLogger(auditLogs, middleware.ClientIP)
	membershipSvc := membershipservice.NewService(memberships, store, auditLogger)

	pub, err := security.ParsePublicKey(cfg.JWTPublicKey)
	if err != nil {
		log.Fatalf("jwt public key: %v", err)
	}
	tokens := security.NewTokenVerifier(pub, cfg.JWTIssuer, cfg.JWTAudience)
	identities := identity.NewResolver(users, memberships, store, cfg.IdentityCacheTTL())

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, serviceName, cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	providers.SetGlobal()
	counter, err := telemetryotel.NewDecisionCounter(providers.MeterProvider)
	if err != nil {
		log.Fatalf("otel metrics: %v", err)
	}

	emitters := []telemetry.EventEmitter{telemetryotel.NewEventEmitter(providers.LoggerProvider)}
	kafkaProducer, err := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.AuthzEventsTopic)
	if err != nil {
		log.Fatalf("kafka: %v", err)
	}
	if kafkaProducer != nil {
		emitters = append(emitters, kafkaProducer)
		log.Printf("publishing authorization events to kafka topic %s", cfg.AuthzEventsTopic)
	}
	emitter := telemetry.Multi(emitters...)

	evaluator := engine.NewOPAEvaluator(policies)
	authorizer := authz.NewAuthorizer(
		permission.NewResolver(permission.DefaultTable()),
		authz.WithOverlay(evaluator),
		authz.WithEmitter(emitter),
		authz.WithMetrics(counter),
		authz.WithAuditLogger(auditLogger),
		authz.WithRoutes(permission.DefaultRoutes()),
	)

	var webhookHandler *webhook.Handler
	if cfg.WebhookSecret != "" {
		verifier, err := webhook.NewVerifier(cfg.WebhookSecret)
		if err != nil {
			log.Fatalf("webhook: %v", err)
		}
		webhookHandler = webhook.NewHandler(verifier, users, orgs, membershipSvc, store, auditLogger)
	} else {
		log.Println("WEBHOOK_SECRET not set; identity webhook disabled")
	}

	checker := healthhandler.NewChecker(conn, evaluator, extraChecks...)
	router := server.NewRouter(server.Deps{
		ServiceName: serviceName,
		Authorizer:  authorizer,
		Tokens:      tokens,
		Identities:  identities,
		Checker:     checker,
		Webhook:     webhookHandler,
		AuditLogger: auditLogger,
		Emitter:     emitter,
		Authz:       authzhandler.NewHandler(authorizer),
		Orgs:        orghandler.NewHandler(orgs),
		Memberships: membershiphandler.NewHandler(membershipSvc, users, orgs),
		Policies:    policyhandler.NewHandler(policies, evaluator),
		AuditLogs:   audithandler.NewHandler(auditLogs),
	})
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http serve: %v", err)
		}
	}()

	var grpcSrv *grpc.Server
	if cfg.GRPCHealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCHealthAddr)
		if err != nil {
			log.Fatalf("listen: %v", err)
		}
		s, healthSrv := server.NewGRPCServer()
		grpcSrv = s
		go healthhandler.WatchReadiness(ctx, healthSrv, checker, readinessInterval)
		go func() {
			log.Printf("gRPC health server listening on %s", cfg.GRPCHealthAddr)
			if err := s.Serve(lis); err != nil {
				log.Fatalf("grpc serve: %v", err)
			}
		}()
	}

	<-ctx.Done()
	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	// In-flight EmitAsync calls finish within ShutdownDrainDuration.
	time.Sleep(telemetry.ShutdownDrainDuration)
	if err := kafkaProducer.Close(); err != nil {
		log.Printf("kafka close: %v", err)
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("otel shutdown: %v", err)
	}
	log.Println("server stopped")
}

func redisPing(rdb *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}
