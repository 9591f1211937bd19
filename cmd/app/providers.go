package main

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/xray-diagnosis/internal/bootstrap"
	"github.com/yanqian/xray-diagnosis/internal/domain/auth"
	"github.com/yanqian/xray-diagnosis/internal/domain/diagnosis"
	"github.com/yanqian/xray-diagnosis/internal/infra/accountrepo"
	"github.com/yanqian/xray-diagnosis/internal/infra/config"
	"github.com/yanqian/xray-diagnosis/internal/infra/imagestore"
	"github.com/yanqian/xray-diagnosis/internal/infra/reportstore"
)

func provideDiagnosisConfig(cfg *config.Config) diagnosis.Config {
	return diagnosis.Config{
		MockDelay:        cfg.Diagnosis.MockDelay,
		ProgressInterval: cfg.Diagnosis.ProgressInterval,
		MaxImageBytes:    cfg.Diagnosis.MaxImageBytes,
		MaxAge:           cfg.Diagnosis.MaxAge,
		HistoryTTL:       cfg.Diagnosis.HistoryTTL,
		HistoryLimit:     cfg.Diagnosis.HistoryLimit,
	}
}

func provideAnalyzer(cfg diagnosis.Config) diagnosis.Analyzer {
	return diagnosis.NewMockAnalyzer(cfg.MockDelay)
}

func provideAuthConfig(cfg *config.Config) auth.Config {
	return auth.Config{
		Secret:          cfg.Auth.Secret,
		TokenTTL:        cfg.Auth.TokenTTL,
		RefreshTokenTTL: cfg.Auth.RefreshTokenTTL,
		Google: auth.GoogleConfig{
			ClientID:             cfg.Auth.Google.ClientID,
			ClientSecret:         cfg.Auth.Google.ClientSecret,
			RedirectURL:          cfg.Auth.Google.RedirectURL,
			TokenEncryptionKey:   cfg.Auth.Google.TokenEncryptionKey,
			PostLoginRedirectURL: cfg.Auth.Google.PostLoginRedirectURL,
		},
	}
}

func provideAccountRepository(cfg *config.Config, resources *bootstrap.Resources, logger *slog.Logger) auth.Repository {
	fallback := accountrepo.NewMemoryRepository()
	dsn := strings.TrimSpace(cfg.Postgres.DSN)
	if dsn == "" {
		logger.Info("postgres dsn not set, using memory account repository")
		return fallback
	}
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		logger.Error("invalid postgres dsn, using memory account repository", "error", err)
		return fallback
	}
	if cfg.Postgres.MaxConns > 0 {
		poolConfig.MaxConns = cfg.Postgres.MaxConns
	}
	if cfg.Postgres.MinConns > 0 {
		poolConfig.MinConns = cfg.Postgres.MinConns
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		logger.Error("failed to initialize postgres pool, using memory account repository", "error", err)
		return fallback
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("postgres ping failed, using memory account repository", "error", err)
		pool.Close()
		return fallback
	}
	resources.Add(pool.Close)
	logger.Info("postgres account repository enabled")
	return accountrepo.NewPostgresRepository(pool)
}

func provideReportStore(cfg *config.Config, resources *bootstrap.Resources, logger *slog.Logger) diagnosis.ReportStore {
	if !cfg.Valkey.Enabled {
		return reportstore.NewMemoryStore()
	}
	opt, err := buildValkeyOptions(cfg)
	if err != nil {
		logger.Error("invalid valkey configuration, falling back to memory report store", "error", err)
		return reportstore.NewMemoryStore()
	}
	client, err := valkey.NewClient(opt)
	if err != nil {
		logger.Error("failed to create valkey client, falling back to memory report store", "error", err)
		return reportstore.NewMemoryStore()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		logger.Error("valkey ping failed, falling back to memory report store", "error", err)
		client.Close()
		return reportstore.NewMemoryStore()
	}
	resources.Add(client.Close)
	logger.Info("valkey report store enabled", "addr", cfg.Valkey.Addr)
	return reportstore.NewValkeyStore(client, cfg.Valkey.Prefix)
}

func buildValkeyOptions(cfg *config.Config) (valkey.ClientOption, error) {
	if strings.Contains(cfg.Valkey.Addr, "://") {
		return valkey.ParseURL(cfg.Valkey.Addr)
	}
	return valkey.ClientOption{InitAddress: []string{cfg.Valkey.Addr}}, nil
}

func provideImageStorage(cfg *config.Config, logger *slog.Logger) diagnosis.ImageStorage {
	if strings.TrimSpace(cfg.Storage.Endpoint) == "" {
		logger.Info("r2 endpoint not set, archiving uploads in memory")
		return imagestore.NewMemoryStorage()
	}
	storage, err := imagestore.NewR2Storage(imagestore.R2Config{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
	}, logger)
	if err != nil {
		logger.Error("failed to initialize r2 storage, archiving uploads in memory", "error", err)
		return imagestore.NewMemoryStorage()
	}
	logger.Info("r2 image archive enabled", "bucket", cfg.Storage.Bucket)
	return storage
}
