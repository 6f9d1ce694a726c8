// Command devauthd serves the devauth user routes over HTTP and, when
// GRPC_PORT is set, a gRPC health endpoint behind the session guard.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/cors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	da "github.com/developerus/devauth"
	"github.com/developerus/devauth/config"
	grpcauth "github.com/developerus/devauth/grpc"
)

func main() {
	if err := run(); err != nil {
		slog.Error("devauthd failed", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := cfg.Log.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	users, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	sessions, err := da.NewSessionTokens(cfg.Session.Secret, cfg.Session.TTL)
	if err != nil {
		return err
	}
	sessions.Issuer = cfg.Session.Issuer

	svc := &da.Service{
		Users:        users,
		Sessions:     sessions,
		Hasher:       da.NewHasher(cfg.Hashing.Cost, cfg.Hashing.MaxConcurrent),
		ResetExpiry:  cfg.Reset.TTL,
		StoreTimeout: cfg.Store.Timeout,
		Logger:       logger,
	}
	svc.EnsureDefaults()
	for _, p := range providers(cfg) {
		svc.RegisterProvider(p)
		logger.Info("oauth provider enabled", "provider", p.Name())
	}

	httpAuth := &da.HTTPAuth{
		Service:     svc,
		EmailSender: emailSender(cfg, logger),
		ResetURL:    cfg.Reset.BaseURL,
		PathPrefix:  cfg.Server.PathPrefix,
		Logger:      logger,
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      c.Handler(httpAuth.Handler()),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errc := make(chan error, 2)
	go func() {
		logger.Info("HTTP server listening", "addr", srv.Addr, "store", cfg.Store.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	var grpcServer *grpc.Server
	if cfg.Server.GRPCPort != "" {
		grpcServer, err = serveGRPC(cfg, svc.Guard(), logger, errc)
		if err != nil {
			return err
		}
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down server")
	case err := <-errc:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "err", err)
	}
	logger.Info("server stopped")
	return nil
}

// serveGRPC starts a gRPC server whose methods require a session, except
// the standard health check.
func serveGRPC(cfg *config.Config, guard *da.Guard, logger *slog.Logger, errc chan<- error) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", ":"+cfg.Server.GRPCPort)
	if err != nil {
		return nil, err
	}

	authConfig := grpcauth.NewPublicMethodsConfig(guard, healthpb.Health_Check_FullMethodName, healthpb.Health_Watch_FullMethodName)
	server := grpc.NewServer(
		grpc.UnaryInterceptor(grpcauth.UnaryAuthInterceptor(authConfig)),
		grpc.StreamInterceptor(grpcauth.StreamAuthInterceptor(authConfig)),
	)
	healthpb.RegisterHealthServer(server, health.NewServer())

	go func() {
		logger.Info("gRPC server listening", "addr", lis.Addr().String())
		if err := server.Serve(lis); err != nil {
			errc <- err
		}
	}()
	return server, nil
}

func emailSender(cfg *config.Config, logger *slog.Logger) da.SendEmail {
	if !cfg.IsEmailConfigured() {
		return &da.ConsoleEmailSender{Logger: logger}
	}
	return da.NewSMTPEmailSender(da.SMTPConfig{
		Host:     cfg.Email.SMTPHost,
		Port:     cfg.Email.SMTPPort,
		Username: cfg.Email.SMTPUsername,
		Password: cfg.Email.SMTPPassword,
		From:     cfg.Email.FromEmail,
		FromName: cfg.Email.FromName,
	})
}
