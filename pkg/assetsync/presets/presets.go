// Package presets builds ready-to-use services for common setups so that
// callers can skip assembling stores and indexes by hand.
package presets

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tendant/assetsync/pkg/assetsync"
	"github.com/tendant/assetsync/pkg/assetsync/config"
	memoryindex "github.com/tendant/assetsync/pkg/assetsync/metaindex/memory"
	memorystorage "github.com/tendant/assetsync/pkg/assetsync/storage/memory"
)

// NewDevelopment creates a service for local development.
//
// Objects are stored under ./dev-data/objects and their metadata records in
// a sqlite database at ./dev-data/index.db, so both survive restarts.
// Logs are colored and event logging is on.
//
// The returned cleanup function closes the index and removes the data
// directory.
//
//	rt, cleanup, err := presets.NewDevelopment()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cleanup()
func NewDevelopment(opts ...DevelopmentOption) (*config.Runtime, func(), error) {
	cfg := &devConfig{
		dataDir:   "./dev-data",
		publicURL: "http://localhost:8080/api/v1",
		logOutput: os.Stderr,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	sc, err := config.Load(
		config.WithEnvironment("development"),
		config.WithLogLevel("debug"),
		config.WithFilesystemStorage(filepath.Join(cfg.dataDir, "objects"), ""),
		config.WithIndexURL("sqlite://"+filepath.Join(cfg.dataDir, "index.db")),
		config.WithAPIBaseURL(cfg.publicURL),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load development config: %w", err)
	}
	if err := os.MkdirAll(cfg.dataDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	rt, err := sc.BuildService(context.Background(), sc.NewLogger(cfg.logOutput))
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		_ = rt.Close()
		os.RemoveAll(cfg.dataDir)
	}
	return rt, cleanup, nil
}

// Fixture is a test service with direct access to its in-memory adapters
type Fixture struct {
	Service assetsync.Service
	Store   *memorystorage.Backend
	Index   *memoryindex.Index
}

// NewTesting creates an isolated in-memory service for a test. Logging is
// discarded and nothing outlives the test, so parallel tests are safe.
//
//	func TestMyFeature(t *testing.T) {
//	    fx := presets.NewTesting(t, presets.WithTestFixtures())
//	    ...
//	}
func NewTesting(t testing.TB, opts ...TestingOption) *Fixture {
	t.Helper()
	cfg := &testConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	fx := &Fixture{
		Store: memorystorage.New(),
		Index: memoryindex.New(),
	}
	svc, err := assetsync.New(
		assetsync.WithBlobStore(fx.Store),
		assetsync.WithMetadataIndex(fx.Index),
		assetsync.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatalf("failed to create test service: %v", err)
	}
	fx.Service = svc

	if cfg.fixtures {
		for _, f := range sampleObjects {
			_, err := svc.Upload(context.Background(), assetsync.UploadRequest{
				Key:            f.key,
				Body:           strings.NewReader(f.body),
				ContentType:    f.contentType,
				AdditionalData: f.data,
			})
			if err != nil {
				t.Fatalf("failed to load fixture %s: %v", f.key, err)
			}
		}
	}
	return fx
}

// TestService is NewTesting without options, returning only the service
func TestService(t testing.TB) assetsync.Service {
	t.Helper()
	return NewTesting(t).Service
}

// NewProduction creates a service from environment variables read with the
// given prefix (see config.WithEnv). It refuses in-memory adapters since
// their contents are lost on restart, and requires an explicit index URL.
func NewProduction(ctx context.Context, prefix string, opts ...config.Option) (*config.Runtime, error) {
	all := append([]config.Option{config.WithEnvironment("production"), config.WithEnv(prefix)}, opts...)
	sc, err := config.Load(all...)
	if err != nil {
		return nil, err
	}
	if sc.Storage.Type == "memory" {
		return nil, fmt.Errorf("production preset requires persistent storage (s3 or fs, not memory)")
	}
	if sc.Index.Type == "memory" {
		return nil, fmt.Errorf("production preset requires a postgres or sqlite index (memory not allowed in production)")
	}
	return sc.BuildService(ctx, sc.NewLogger(os.Stderr))
}

// devConfig holds development preset configuration
type devConfig struct {
	dataDir   string
	publicURL string
	logOutput io.Writer
}

// testConfig holds testing preset configuration
type testConfig struct {
	fixtures bool
}

// DevelopmentOption is a functional option for NewDevelopment
type DevelopmentOption func(*devConfig)

// WithDevDataDir sets the development data directory
func WithDevDataDir(dir string) DevelopmentOption {
	return func(cfg *devConfig) {
		cfg.dataDir = dir
	}
}

// WithDevPublicURL sets the API base URL recorded as public_url
func WithDevPublicURL(baseURL string) DevelopmentOption {
	return func(cfg *devConfig) {
		cfg.publicURL = baseURL
	}
}

// WithDevLogOutput redirects development logs
func WithDevLogOutput(w io.Writer) DevelopmentOption {
	return func(cfg *devConfig) {
		cfg.logOutput = w
	}
}

// TestingOption is a functional option for NewTesting
type TestingOption func(*testConfig)

// WithTestFixtures loads the sample objects listed in SampleKeys
func WithTestFixtures() TestingOption {
	return func(cfg *testConfig) {
		cfg.fixtures = true
	}
}

type sample struct {
	key         string
	body        string
	contentType string
	data        map[string]any
}

var sampleObjects = []sample{
	{"acme/brand/logo.png", "png", "image/png", map[string]any{"color": "red"}},
	{"acme/docs/readme.txt", "hello", "text/plain", map[string]any{"lang": "en"}},
	{"globex/reports/q1.csv", "a,b\n1,2\n", "text/csv", nil},
}

// SampleKeys returns the keys loaded by WithTestFixtures
func SampleKeys() []string {
	keys := make([]string, len(sampleObjects))
	for i, s := range sampleObjects {
		keys[i] = s.key
	}
	return keys
}
