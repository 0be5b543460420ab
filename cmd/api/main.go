package main

import (
	"context"
	"database/sql"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"authgate.org/internal/auth"
	"authgate.org/internal/httpapi"
	"authgate.org/internal/obs"
	"authgate.org/internal/throttle"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	_ = godotenv.Load()

	obs.Init()
	obs.InitBuildInfo(version, commit)
	if err := obs.InitSentry(os.Getenv("SENTRY_DSN"), envOrDefault("APP_ENV", "development")); err != nil {
		log.Printf("init sentry: %v", err)
	}
	defer obs.FlushSentry()

	cfg, err := auth.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	algorithm, err := auth.BuildAlgorithm(cfg)
	if err != nil {
		log.Fatalf("build algorithm: %v", err)
	}
	if algorithm.Insecure() {
		log.Printf("WARNING: the %q algorithm performs no signing; never use it in production", algorithm.Name())
	}
	codec := auth.NewTokenCodec(algorithm, cfg.Issuer)

	dsn := os.Getenv("AUTHGATE_PG_DSN")
	if dsn == "" {
		log.Fatal("AUTHGATE_PG_DSN is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	store := auth.NewPGStore(db)
	svc, err := auth.NewService(store, codec, cfg.TokenExpiration)
	if err != nil {
		log.Fatalf("build auth service: %v", err)
	}

	logins := throttle.NewLoginAttemptService(cfg.LoginMaxAttempts, cfg.LoginWindow)
	defer logins.Close()
	ips := throttle.NewIPThrottle(cfg.IPMaxRequests, cfg.IPWindow)
	defer ips.Close()

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, svc, store, logins, ips, httpapi.DefaultLimits())

	srv := &http.Server{
		Addr:              envOrDefault("AUTHGATE_HTTP_ADDR", ":8080"),
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting authgate-api %s on %s (algorithm=%s)", version, srv.Addr, algorithm.Name())

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	var grpcSrv *grpc.Server
	if addr := os.Getenv("AUTHGATE_GRPC_ADDR"); addr != "" {
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		grpcSrv = grpc.NewServer()
		healthSrv := health.NewServer()
		healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		healthpb.RegisterHealthServer(grpcSrv, healthSrv)
		log.Printf("Serving gRPC health on %s", addr)
		go func() {
			if err := grpcSrv.Serve(lis); err != nil {
				log.Fatalf("grpc serve: %v", err)
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	_ = db.Close()
	log.Println("Stopped")
}

func envOrDefault(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
