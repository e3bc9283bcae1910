package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	grpcadapter "github.com/simaogato/dealflow-backend/internal/adapter/grpc"
	"github.com/simaogato/dealflow-backend/internal/adapter/rest"
	"github.com/simaogato/dealflow-backend/internal/auth"
)

const shutdownTimeout = 10 * time.Second

func serveCmd(configPath *string) *cobra.Command {
	var seed bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gRPC service and the HTTP gateway",
		Long: `Start the gRPC CommissionService and the HTTP JSON gateway.

Both listeners require a bearer JWT signed with auth.jwt_secret;
mint one for local use with "dealflow token".

Examples:
  dealflow serve
  dealflow serve --seed
  DEALFLOW_STORE_DRIVER=postgres DEALFLOW_STORE_DSN=... dealflow serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := bootstrap(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.cfg.Auth.JWTSecret == "" {
				return errors.New("auth.jwt_secret is required to serve (set DEALFLOW_AUTH_JWT_SECRET)")
			}

			if seed {
				if _, err := runSeed(ctx, a); err != nil {
					return err
				}
			}

			return runServe(a)
		},
	}

	cmd.Flags().BoolVar(&seed, "seed", false, "seed the demo deal before serving")
	return cmd
}

func runServe(a *app) error {
	jwtManager := auth.NewJWTManager(a.cfg.Auth.JWTSecret, a.cfg.Auth.TokenTTL)

	// Auth runs first so the logging interceptor sees the actor
	grpcServer := grpclib.NewServer(
		grpclib.ChainUnaryInterceptor(
			grpcadapter.AuthInterceptor(jwtManager),
			grpcadapter.LoggingInterceptor(a.logger),
		),
	)
	grpcadapter.RegisterCommissionServiceServer(grpcServer, grpcadapter.NewServer(a.orchestrator, a.summary))
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", a.cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.cfg.GRPC.Addr, err)
	}

	gin.SetMode(gin.ReleaseMode)
	handler := rest.NewHandler(a.orchestrator, a.summary, a.store)
	httpServer := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           rest.NewRouter(handler, jwtManager, a.registry, a.logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)

	go func() {
		a.logger.Info("gRPC server listening", "addr", a.cfg.GRPC.Addr)
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("gRPC server: %w", err)
		}
	}()

	go func() {
		a.logger.Info("HTTP server listening", "addr", a.cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	serveErr := waitForShutdown(a.logger, errCh)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		a.logger.Warn("HTTP server shutdown", "error", err)
	}
	a.logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	a.logger.Info("gRPC server stopped")

	return serveErr
}

// waitForShutdown blocks until SIGTERM or SIGINT, or until a listener fails
func waitForShutdown(logger *slog.Logger, errCh <-chan error) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logger.Info("shutting down gracefully", "signal", sig.String())
		return nil
	case err := <-errCh:
		logger.Error("server failed, shutting down", "error", err)
		return err
	}
}
