package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"univ_erp/backend/internal/app"
	"univ_erp/backend/internal/gateway"
	"univ_erp/backend/internal/shared"
)

// healthService is the name the storage probe reports under
const healthService = "grading.GradingEngine"

func main() {
	log.Println("INFO: Starting Grading Service...")

	if err := shared.LoadEnv(".env"); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	// 1. Load Configuration
	cfg, err := shared.LoadServiceConfig("grading-service")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := shared.ValidateServiceConfig(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	shared.PrintConfig(cfg)

	// 2. Open the store and wire the services
	openCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	svc, err := app.Open(openCtx, cfg)
	cancel()
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.Storage.Driver, err)
	}

	// 3. gRPC health and reflection
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	probeCtx, stopProbe := context.WithCancel(context.Background())
	go runStorageProbe(probeCtx, svc, healthServer, 15*time.Second)

	listener, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		log.Fatalf("Failed to listen on port %s: %v", cfg.GRPCPort, err)
	}
	go func() {
		log.Printf("INFO: Health server listening on port %s", cfg.GRPCPort)
		if err := grpcServer.Serve(listener); err != nil {
			log.Fatalf("FATAL: gRPC server error: %v", err)
		}
	}()

	// 4. HTTP gateway
	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      gateway.SetupRoutes(svc),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Printf("INFO: Gateway listening on port %s", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("FATAL: HTTP server error: %v", err)
		}
	}()

	// 5. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("INFO: Shutting down Grading Service...")

	stopProbe()
	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	}
	grpcServer.GracefulStop()

	if err := svc.Close(shutdownCtx); err != nil {
		log.Printf("Error closing store: %v", err)
	}
	log.Println("INFO: Grading Service stopped.")
}

// runStorageProbe reports SERVING while the maintenance flag can be read and
// NOT_SERVING while it cannot.
func runStorageProbe(ctx context.Context, svc *app.Services, hs *health.Server, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		probeOnce(ctx, svc, hs)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func probeOnce(ctx context.Context, svc *app.Services, hs *health.Server) {
	status := grpc_health_v1.HealthCheckResponse_SERVING
	if _, err := svc.Gate.State(ctx); err != nil {
		log.Printf("[Health] Storage probe failed: %v", err)
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	hs.SetServingStatus(healthService, status)
	hs.SetServingStatus("", status)
}
