package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "github.com/prekclip/server/docs"
	"github.com/prekclip/server/internal/auth"
	"github.com/prekclip/server/internal/config"
	"github.com/prekclip/server/internal/media"
	"github.com/prekclip/server/internal/notification"
	"github.com/prekclip/server/internal/post"
	"github.com/prekclip/server/internal/server"
	"github.com/prekclip/server/internal/store"
	"github.com/prekclip/server/internal/user"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := loadConfig()
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	// Storage
	backend, err := store.Open(ctx, cfg)
	if err != nil {
		logger.Error("failed to open storage", zap.String("driver", cfg.StorageDriver), zap.Error(err))
		return err
	}
	st := store.New(backend, logger)
	defer st.Close()
	logger.Info("storage ready", zap.String("driver", cfg.StorageDriver))

	mediaStorage, err := media.NewStorage(cfg.UploadDir)
	if err != nil {
		return err
	}

	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return fmt.Errorf("failed to generate token secret: %w", err)
		}
		logger.Warn("JWT_SECRET not set; sessions will not survive a restart")
	}
	tokens := auth.NewTokenManager(secret, cfg.TokenTTL)

	// User feature
	userService := user.NewService(st, logger)
	userHandler := user.NewHandler(userService, tokens, mediaStorage, cfg.MaxUploadBytes(), logger)

	// Post feature
	postService := post.NewService(st, logger)
	postHandler := post.NewHandler(postService, mediaStorage, cfg.MaxUploadBytes(), logger)

	// Notification feature
	notificationService := notification.NewService(st)
	notificationHandler := notification.NewHandler(notificationService)

	if err := bootstrap(ctx, userService, cfg, logger); err != nil {
		return err
	}

	router := server.NewRouter(server.Deps{
		AuthMode:            cfg.AuthMode,
		UploadDir:           mediaStorage.Dir(),
		Tokens:              tokens,
		UserHandler:         userHandler,
		PostHandler:         postHandler,
		NotificationHandler: notificationHandler,
		Logger:              logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("auth_mode", cfg.AuthMode), zap.String("uploads", mediaStorage.Dir()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		logger.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}

// bootstrap creates the reserved verified account on first start
func bootstrap(ctx context.Context, users *user.Service, cfg *config.Config, logger *zap.Logger) error {
	u, generated, err := users.Bootstrap(ctx, cfg.BootstrapUsername, cfg.BootstrapPassword)
	if err != nil {
		return fmt.Errorf("failed to create bootstrap account: %w", err)
	}
	if u == nil {
		return nil
	}

	fields := []zap.Field{zap.String("username", u.Username), zap.String("user_id", u.ID)}
	if generated != "" {
		fields = append(fields, zap.String("generated_password", generated))
	}
	logger.Info("bootstrap account created", fields...)
	return nil
}
