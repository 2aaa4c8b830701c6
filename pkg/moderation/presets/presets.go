package presets

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/tendant/simple-moderation/pkg/moderation"
	"github.com/tendant/simple-moderation/pkg/moderation/config"
)

// Configuration Presets
//
// Ready-made runtimes for common setups. Each preset is a thin layer over
// config.Load and ServerConfig.Build, so anything a preset does can also be
// spelled out with config options.

// FixtureActor is the admin the testing fixtures are created and approved by.
var FixtureActor = moderation.Actor{ID: "fixtures", Username: "fixtures", Roles: []string{moderation.RoleAdmin}}

// NewDevelopment creates a runtime for local development.
//
// Features:
//   - In-memory database (instant startup, no setup required)
//   - Filesystem assets at ./dev-data/ (persistent across restarts)
//   - Sweeper configured but not started
//
// The returned cleanup function closes the runtime and removes the asset
// directory.
//
// Example:
//
//	rt, cleanup, err := presets.NewDevelopment()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cleanup()
func NewDevelopment(opts ...DevelopmentOption) (*config.Runtime, func(), error) {
	cfg := &devConfig{
		storageDir: "./dev-data",
		port:       "8080",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	serverConfig, err := config.Load(
		config.WithEnvironment("development"),
		config.WithPort(cfg.port),
		config.WithDatabase("memory", ""),
		config.WithFilesystemStorage(cfg.storageDir),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load development configuration: %w", err)
	}

	rt, err := serverConfig.Build(context.Background(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build development runtime: %w", err)
	}

	cleanup := func() {
		rt.Close()
		os.RemoveAll(cfg.storageDir)
	}
	return rt, cleanup, nil
}

// NewTesting creates a runtime for unit and integration tests: in-memory
// database and assets, isolated per test, closed via t.Cleanup.
//
// Example:
//
//	func TestMyFeature(t *testing.T) {
//	    rt := presets.NewTesting(t, presets.WithTestFixtures())
//	    // rt.Service.Articles()...
//	}
func NewTesting(t *testing.T, opts ...TestingOption) *config.Runtime {
	t.Helper()
	cfg := &testConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	serverConfig, err := config.Load(
		config.WithEnvironment("testing"),
		config.WithDatabase("memory", ""),
		config.WithMemoryStorage(),
	)
	if err != nil {
		t.Fatalf("failed to load test configuration: %v", err)
	}

	rt, err := serverConfig.Build(context.Background(), nil)
	if err != nil {
		t.Fatalf("failed to create test runtime: %v", err)
	}
	t.Cleanup(rt.Close)

	if cfg.fixtures {
		if err := seedFixtures(context.Background(), rt.Service); err != nil {
			t.Fatalf("failed to seed fixtures: %v", err)
		}
	}
	return rt
}

// NewProduction creates a runtime from the environment and refuses
// non-persistent backends.
//
// Required Environment Variables:
//   - DATABASE_URL: PostgreSQL connection string
//   - STORAGE_URL: file://<dir> or s3://<bucket>
//   - JWT_SECRET: HS256 secret for bearer tokens
func NewProduction(ctx context.Context, opts ...config.Option) (*config.Runtime, error) {
	all := append([]config.Option{config.WithEnv(), config.WithEnvironment("production")}, opts...)
	serverConfig, err := config.Load(all...)
	if err != nil {
		return nil, err
	}

	if serverConfig.DatabaseType == "memory" {
		return nil, fmt.Errorf("production preset requires DATABASE_URL=postgres://... (memory not allowed in production)")
	}
	if serverConfig.Storage.Type == "memory" {
		return nil, fmt.Errorf("production preset requires persistent storage (s3 or fs, not memory)")
	}
	return serverConfig.Build(ctx, nil)
}

// seedFixtures adds and approves a category and a tag
func seedFixtures(ctx context.Context, svc *moderation.Service) error {
	category, err := svc.Categories().Submit(ctx, FixtureActor, moderation.SubmitRequest[moderation.CategoryFields]{
		Action: moderation.ActionAdd,
		Data:   moderation.CategoryFields{Name: "General"},
	})
	if err != nil {
		return err
	}
	if _, err := svc.Categories().Decide(ctx, FixtureActor, moderation.DecideRequest{ProposalID: category.ID, AuthCode: string(moderation.AuthApproved)}); err != nil {
		return err
	}

	tag, err := svc.Tags().Submit(ctx, FixtureActor, moderation.SubmitRequest[moderation.TagFields]{
		Action: moderation.ActionAdd,
		Data:   moderation.TagFields{Name: "Featured"},
	})
	if err != nil {
		return err
	}
	_, err = svc.Tags().Decide(ctx, FixtureActor, moderation.DecideRequest{ProposalID: tag.ID, AuthCode: string(moderation.AuthApproved)})
	return err
}

// devConfig holds development preset configuration
type devConfig struct {
	storageDir string
	port       string
}

// testConfig holds testing preset configuration
type testConfig struct {
	fixtures bool
}

// DevelopmentOption is a functional option for NewDevelopment
type DevelopmentOption func(*devConfig)

// WithDevStorage sets the development asset directory
func WithDevStorage(dir string) DevelopmentOption {
	return func(cfg *devConfig) {
		cfg.storageDir = dir
	}
}

// WithDevPort sets the development server port
func WithDevPort(port string) DevelopmentOption {
	return func(cfg *devConfig) {
		cfg.port = port
	}
}

// TestingOption is a functional option for NewTesting
type TestingOption func(*testConfig)

// WithTestFixtures seeds an approved "General" category and "Featured" tag
func WithTestFixtures() TestingOption {
	return func(cfg *testConfig) {
		cfg.fixtures = true
	}
}
