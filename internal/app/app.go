// Package app assembles the gateway: configuration, AWS clients (or their
// in-process dev substitutes), the provider registry and the HTTP server.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/xjonsson/kin-api-server/internal/auth"
	"github.com/xjonsson/kin-api-server/internal/config"
	"github.com/xjonsson/kin-api-server/internal/crypto"
	"github.com/xjonsson/kin-api-server/internal/httpapi"
	"github.com/xjonsson/kin-api-server/internal/logger"
	"github.com/xjonsson/kin-api-server/internal/metrics"
	"github.com/xjonsson/kin-api-server/internal/providers"
	"github.com/xjonsson/kin-api-server/internal/secret"
	"github.com/xjonsson/kin-api-server/internal/source"
	"github.com/xjonsson/kin-api-server/internal/store"
)

// Run wires the gateway and serves until SIGINT or SIGTERM.
func Run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.Setup(os.Stdout, parseLevel(cfg.LogLevel))
	slog.SetDefault(log)

	var (
		client   store.Client
		enc      crypto.Encryptor
		resolver secret.Resolver
	)
	if cfg.DevMode {
		log.Info("dev mode: in-memory store, mock encryption, env secrets")
		client = store.NewMemoryClient()
		enc = crypto.NewMockEncryptor()
		resolver = secret.NewEnvResolver()
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return fmt.Errorf("load AWS config: %w", err)
		}
		client = store.NewDynamoClient(dynamodb.NewFromConfig(awsCfg), cfg.TableName)
		kmsKeyID := os.Getenv("KMS_KEY_ID")
		if kmsKeyID == "" {
			kmsKeyID = "alias/kin-token-key"
		}
		enc = crypto.NewKMSService(kms.NewFromConfig(awsCfg), kmsKeyID)
		resolver = secret.NewSSMResolver(ssm.NewFromConfig(awsCfg))
	}

	secrets, err := secret.LoadCache(ctx, resolver, cfg.ParamPrefix)
	if err != nil {
		return fmt.Errorf("load secrets: %w", err)
	}
	jwtSecret := secrets.Get("JWT_SECRET")
	if jwtSecret == "" {
		if !cfg.DevMode {
			return fmt.Errorf("secret JWT_SECRET is not configured")
		}
		jwtSecret = "dev-only-signing-key"
	}

	promReg := prometheus.NewRegistry()
	st := store.New(client, enc)
	reg := providers.NewRegistry(secrets)
	svc := source.NewService(st, reg, metrics.NewCollector(promReg), log)
	sessions := auth.NewSessions(jwtSecret)

	api := httpapi.New(cfg, st, svc, reg, secrets, sessions, promReg, log)
	defer api.Close()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      api.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		log.Info("API server starting",
			slog.String("addr", server.Addr),
			slog.Int("providers", len(reg.Names())))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-stop:
	}

	log.Info("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	log.Info("API server stopped")
	return nil
}

func parseLevel(s string) slog.Level {
	switch s {
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
