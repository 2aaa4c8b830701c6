package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-chi/jwtauth"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-moderation/pkg/moderation"
	redislock "github.com/tendant/simple-moderation/pkg/moderation/lock/redis"
	"github.com/tendant/simple-moderation/pkg/moderation/repo/memory"
	repopg "github.com/tendant/simple-moderation/pkg/moderation/repo/postgres"
	fsstorage "github.com/tendant/simple-moderation/pkg/moderation/storage/fs"
	memorystorage "github.com/tendant/simple-moderation/pkg/moderation/storage/memory"
	s3storage "github.com/tendant/simple-moderation/pkg/moderation/storage/s3"
)

// developmentJWTSecret signs tokens when no secret is configured outside production.
const developmentJWTSecret = "development-only-secret"

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:           "8080",
		Environment:    "development",
		DatabaseType:   "memory",
		DBSchema:       "moderation",
		Storage:        StorageConfig{Type: "memory"},
		AssetURLPrefix: "/assets",
		MaxAssetBytes:  moderation.DefaultMaxAssetBytes,
		SweepEnabled:   true,
		SweepRetention: moderation.DefaultRetention,
	}
}

// ServerConfig represents server configuration for the moderation service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "postgres"
	DBSchema     string // Postgres schema to use (default: moderation)
	AutoMigrate  bool   // Apply embedded migrations on startup

	// Asset storage configuration
	Storage        StorageConfig
	AssetURLPrefix string
	MaxAssetBytes  int64

	// Credential verification
	JWTSecret string

	// Retention sweeper
	SweepEnabled   bool
	SweepRetention time.Duration
	SweepAt        time.Duration // local wall-clock time of day
	RedisURL       string        // optional, enables the distributed sweep lock
}

// StorageConfig selects the blob store behind the asset store
type StorageConfig struct {
	Type    string // "memory", "fs", "s3"
	BaseDir string
	S3      s3storage.Config
}

// Validate checks the configuration for consistency
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port cannot be empty")
	}

	switch c.Environment {
	case "development", "production", "testing":
	default:
		return fmt.Errorf("environment must be development, production, or testing, got: %s", c.Environment)
	}

	switch c.DatabaseType {
	case "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("database URL is required for postgres")
		}
	default:
		return fmt.Errorf("database type must be 'memory' or 'postgres', got: %s", c.DatabaseType)
	}

	switch c.Storage.Type {
	case "memory":
	case "fs":
		if c.Storage.BaseDir == "" {
			return errors.New("filesystem base directory cannot be empty")
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return errors.New("s3 bucket cannot be empty")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}

	if c.MaxAssetBytes <= 0 {
		return errors.New("max asset bytes must be positive")
	}
	if c.SweepRetention <= 0 {
		return errors.New("sweep retention must be positive")
	}
	if c.SweepAt < 0 || c.SweepAt >= 24*time.Hour {
		return fmt.Errorf("sweep time of day out of range: %s", c.SweepAt)
	}
	if c.Environment == "production" && c.JWTSecret == "" {
		return errors.New("JWT secret is required in production")
	}

	return nil
}

// Runtime is the set of components built from a ServerConfig
type Runtime struct {
	Service *moderation.Service
	Blobs   moderation.BlobStore
	Sweeper *moderation.Sweeper

	closers []func()
}

// Close releases connections held by the runtime
func (r *Runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}

// Build creates the service, its blob store and the sweeper
func (c *ServerConfig) Build(ctx context.Context, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rt := &Runtime{}

	repo, err := c.buildRepository(ctx, rt)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}

	blobs, err := c.buildBlobStore(ctx)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to build storage backend %s: %w", c.Storage.Type, err)
	}
	rt.Blobs = blobs

	assets := moderation.NewAssetStore(blobs, moderation.WithMaxAssetBytes(c.MaxAssetBytes))
	svc, err := moderation.New(repo,
		moderation.WithAssetStore(assets),
		moderation.WithLogger(logger),
	)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Service = svc

	sweeperOpts := []moderation.SweeperOption{
		moderation.WithRetention(c.SweepRetention),
		moderation.WithDailyAt(c.SweepAt),
		moderation.WithSweepLogger(logger),
	}
	if c.RedisURL != "" {
		client, err := redislock.NewClient(ctx, c.RedisURL)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, func() { client.Close() })
		sweeperOpts = append(sweeperOpts, moderation.WithLocker(redislock.New(client), "", 0))
	}
	rt.Sweeper = moderation.NewSweeper(svc.Sweepables(), sweeperOpts...)

	return rt, nil
}

// buildRepository creates a Repository based on the configuration
func (c *ServerConfig) buildRepository(ctx context.Context, rt *Runtime) (moderation.Repository, error) {
	switch c.DatabaseType {
	case "memory":
		return memory.New(), nil
	case "postgres":
		if c.AutoMigrate {
			if err := repopg.MigrateUp(c.DatabaseURL); err != nil {
				return nil, err
			}
		}
		cfg, err := pgxpool.ParseConfig(c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		// Optionally set search_path for the connection
		schema := c.DBSchema
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			if schema == "" {
				return nil
			}
			_, err := conn.Exec(ctx, "SET search_path TO "+pgx.Identifier{schema}.Sanitize())
			return err
		}
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		rt.closers = append(rt.closers, pool.Close)
		return repopg.NewWithPool(pool), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// buildBlobStore creates the blob store behind the asset store
func (c *ServerConfig) buildBlobStore(ctx context.Context) (moderation.BlobStore, error) {
	switch c.Storage.Type {
	case "memory":
		return memorystorage.New(), nil
	case "fs":
		return fsstorage.New(fsstorage.Config{BaseDir: c.Storage.BaseDir})
	case "s3":
		return s3storage.New(ctx, c.Storage.S3)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", c.Storage.Type)
	}
}

// BuildTokenAuth returns the verifier for bearer tokens. Outside production
// an unset secret falls back to a fixed development secret.
func (c *ServerConfig) BuildTokenAuth() *jwtauth.JWTAuth {
	secret := c.JWTSecret
	if secret == "" {
		secret = developmentJWTSecret
	}
	return jwtauth.New("HS256", []byte(secret), nil)
}
