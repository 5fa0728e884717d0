package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/go-api-accounts/internal/application/confirmation"
	"github.com/go-api-accounts/internal/application/notification"
	"github.com/go-api-accounts/internal/config"
	"github.com/go-api-accounts/internal/infrastructure/dynamo"
	"github.com/go-api-accounts/internal/infrastructure/google"
	jwtinfra "github.com/go-api-accounts/internal/infrastructure/jwt"
	"github.com/go-api-accounts/internal/infrastructure/memstore"
	"github.com/go-api-accounts/internal/infrastructure/postgres"
	"github.com/go-api-accounts/internal/infrastructure/queue"
	redisinfra "github.com/go-api-accounts/internal/infrastructure/redis"
	resendinfra "github.com/go-api-accounts/internal/infrastructure/resend"
	"github.com/go-api-accounts/internal/infrastructure/smtp"
	"github.com/go-api-accounts/internal/infrastructure/sns"
	transporthttp "github.com/go-api-accounts/internal/transport/http"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "No .env file found, reading from environment")
	}
	cfg := config.Load()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	var cleanups []func()
	defer func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}()

	var dynamoClient *dynamodb.Client
	if cfg.UserStore == "dynamo" || cfg.CodeStore == "dynamo" {
		c, err := dynamo.NewClient(ctx, cfg)
		if err != nil {
			return fmt.Errorf("dynamodb client: %w", err)
		}
		dynamo.Bootstrap(ctx, c, cfg.DynamoTables)
		dynamoClient = c
	}

	var userRepo transporthttp.UserRepository
	switch cfg.UserStore {
	case "dynamo":
		t := cfg.DynamoTables
		userRepo = dynamo.NewUserRepo(dynamoClient, t.Users, t.UserEmails, t.APITokens)
	case "postgres":
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		cleanups = append(cleanups, func() { _ = db.Close() })
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}
		userRepo = postgres.NewUserRepo(db)
	default:
		return fmt.Errorf("unknown USER_STORE %q", cfg.UserStore)
	}

	var codeStore confirmation.CodeStore
	switch cfg.CodeStore {
	case "redis":
		rc, err := redisinfra.NewClient(ctx, cfg)
		if err != nil {
			return err
		}
		cleanups = append(cleanups, func() { _ = rc.Close() })
		codeStore = redisinfra.NewCodeStore(rc, cfg.RedisNativeGetDel)
	case "dynamo":
		codeStore = dynamo.NewCodeStore(dynamoClient, cfg.DynamoTables.ConfirmationCodes)
	case "memory":
		slog.Warn("in-memory code store: codes are lost on restart and not shared between instances")
		codeStore = memstore.New()
	default:
		return fmt.Errorf("unknown CODE_STORE %q", cfg.CodeStore)
	}
	confirm, err := confirmation.NewService(codeStore, confirmation.Options{
		TTL:       cfg.ConfirmationTTL,
		KeyPrefix: cfg.ConfirmationKeyPrefix,
		Atomic:    cfg.ConfirmationAtomicConsume,
	})
	if err != nil {
		return fmt.Errorf("confirmation service: %w", err)
	}
	if cfg.DebugExposeConfirmationCode {
		slog.Warn("confirmation codes are exposed in registration responses")
	}

	jwtProvider, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		return fmt.Errorf("jwt provider: %w", err)
	}

	var mailer smtp.Mailer
	switch cfg.MailProvider {
	case "resend":
		mailer = resendinfra.NewMailer(cfg)
	default:
		mailer = smtp.NewMailer(cfg)
	}

	notifDeps := notification.ServiceDeps{Mailer: mailer, AdminEmail: cfg.AdminEmail}
	if sender, err := sns.NewSender(ctx, cfg); err == nil {
		notifDeps.SMSSender = sender
	} else {
		slog.Warn("SNS sender not available, SMS codes disabled", "error", err)
	}

	tasks := queue.New(queue.Options{
		Workers:    cfg.QueueWorkers,
		Buffer:     cfg.QueueBuffer,
		MaxRetries: cfg.QueueMaxRetries,
		RetryBase:  cfg.QueueRetryBase,
	})
	notification.NewService(notifDeps).RegisterHandlers(tasks)

	deps := &transporthttp.Deps{
		UserRepo:     userRepo,
		Confirmation: confirm,
		Tasks:        tasks,
		JWTProvider:  jwtProvider,
	}
	if gc := google.NewClient(cfg); gc.Configured() {
		deps.Google = gc
	}

	router, stopRouter := transporthttp.NewRouter(cfg, deps)
	cleanups = append(cleanups, stopRouter)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return tasks.Run(gctx) })
	g.Go(func() error {
		slog.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv,
			"user_store", cfg.UserStore, "code_store", cfg.CodeStore)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
