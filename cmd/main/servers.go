package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"trading-relay/src/config"
	"trading-relay/src/grpc_control"
	"trading-relay/src/logger"
	"trading-relay/src/server"

	"google.golang.org/grpc"
)

const (
	shutdownTimeout = 10 * time.Second
	cleanupInterval = 6 * time.Hour
)

// run starts every component and blocks until a signal arrives.
func run(parent context.Context, cfgPath string) error {
	if parent == nil {
		parent = context.Background()
	}

	conf, err := config.NewConfig(cfgPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		return err
	}
	appLogger := logger.NewLogger(conf.LogLevel, conf.Name)
	defer appLogger.Sync()

	r, err := setupRelay(conf, appLogger)
	if err != nil {
		appLogger.Critical("Setup failed: %v", err)
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	// 1. Upstream link
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.link.Run(ctx)
	}()

	// 2. Analytics ingress
	if err := r.analytics.Start(ctx, &wg); err != nil {
		appLogger.Error("Failed to start analytics sources: %v", err)
	}

	// 3. REST and push channel
	srv := server.NewRelayServer(conf, r.gw, r.hub, r.link, r.store, logger.NewLogger(conf.LogLevel, "RelayServer"))
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("Server failed: %v", err)
			stop()
		}
	}()

	// 4. gRPC control
	grpcServer, err := startGrpc(conf, r, appLogger)
	if err != nil {
		appLogger.Error("gRPC control disabled: %v", err)
	}

	// 5. Audit retention
	if r.audit != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cleanupLoop(ctx, r, conf.Retention())
		}()
	}

	appLogger.Info("trading-relay %s running", version)
	<-ctx.Done()
	appLogger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		appLogger.Warning("HTTP shutdown: %v", err)
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	_ = r.analytics.Stop()
	r.gw.Close()
	wg.Wait()

	r.rec.Close()
	if r.audit != nil {
		if err := r.audit.Close(); err != nil {
			appLogger.Warning("Audit close: %v", err)
		}
	}
	appLogger.Info("Shutdown complete.")
	return nil
}

// -----------------------------------------------------------------------------

func startGrpc(conf *config.Config, r *relay, appLogger *logger.Logger) (*grpc.Server, error) {
	if conf.GrpcPort == 0 {
		return nil, nil
	}
	addr := fmt.Sprintf("%s:%d", conf.GrpcHost, conf.GrpcPort)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for gRPC: %w", err)
	}
	grpcLogger := logger.NewLogger(conf.LogLevel, "ControlService")
	grpcServer := grpc_control.NewServer(grpc_control.NewControlService(r.gw, r.analytics, grpcLogger), grpcLogger)

	go func() {
		appLogger.Info("Starting gRPC Control Server on %s", addr)
		if err := grpcServer.Serve(lis); err != nil {
			appLogger.Error("failed to serve gRPC: %v", err)
		}
	}()
	return grpcServer, nil
}

// -----------------------------------------------------------------------------

func cleanupLoop(ctx context.Context, r *relay, retention time.Duration) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := r.audit.CleanupOldData(now.Add(-retention)); err != nil {
				r.log.Warning("Audit cleanup failed: %v", err)
			}
		}
	}
}
