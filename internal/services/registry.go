package services

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"addonplan/internal/metrics"
	"addonplan/internal/models"

	"go.uber.org/zap"
)

//go:embed data/registry.json
var packagedRegistry []byte

const (
	// DefaultRegistryTTL is how long a cached registry is trusted before a refresh
	DefaultRegistryTTL = 24 * time.Hour

	registryCacheFile    = "registry.json"
	registryMetadataFile = "registry.meta.json"
)

// RegistryCacheOptions configures a RegistryCache
type RegistryCacheOptions struct {
	// URL of the remote registry; empty disables the network entirely
	URL string
	TTL time.Duration
	// CacheDir holds the cached registry and its metadata
	CacheDir string
	Fetcher  *RegistryFetcher
	// Packaged is the last-resort registry; defaults to the embedded one
	Packaged []byte
	Now      func() time.Time
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
}

// RegistryCache resolves the tool registry through remote fetch, local cache and
// the packaged fallback. It resolves at most once and then serves the memoized value.
type RegistryCache struct {
	url      string
	ttl      time.Duration
	cacheDir string
	fetcher  *RegistryFetcher
	packaged []byte
	now      func() time.Time
	logger   *zap.Logger
	metrics  *metrics.Metrics

	mu       sync.Mutex
	resolved bool
	registry *models.ToolRegistry
}

// NewRegistryCache creates a cache; nothing is read until the first Resolve
func NewRegistryCache(opts RegistryCacheOptions) *RegistryCache {
	c := &RegistryCache{
		url:      opts.URL,
		ttl:      opts.TTL,
		cacheDir: opts.CacheDir,
		fetcher:  opts.Fetcher,
		packaged: opts.Packaged,
		now:      opts.Now,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
	if c.ttl <= 0 {
		c.ttl = DefaultRegistryTTL
	}
	if c.fetcher == nil {
		c.fetcher = NewRegistryFetcher(DefaultFetchTimeout, "addonplan")
	}
	if c.packaged == nil {
		c.packaged = packagedRegistry
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.metrics == nil {
		c.metrics = metrics.Nop()
	}
	return c
}

// Resolve returns the registry, resolving it on first use
func (c *RegistryCache) Resolve(ctx context.Context) (*models.ToolRegistry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.resolved {
		return c.registry, nil
	}

	registry, err := c.resolve(ctx)
	if err != nil {
		return nil, err
	}
	c.registry = registry
	c.resolved = true
	return registry, nil
}

// FindTool looks a key up across every category
func (c *RegistryCache) FindTool(ctx context.Context, key string) (models.ToolEntry, error) {
	registry, err := c.Resolve(ctx)
	if err != nil {
		return models.ToolEntry{}, err
	}
	entry, ok := registry.Find(key)
	if !ok {
		return models.ToolEntry{}, fmt.Errorf("%w: %s", ErrUnknownTool, key)
	}
	return entry, nil
}

// ListTools returns every tool in registry order
func (c *RegistryCache) ListTools(ctx context.Context) ([]models.ToolEntry, error) {
	registry, err := c.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	return registry.Tools(), nil
}

func (c *RegistryCache) cachePath() string {
	return filepath.Join(c.cacheDir, registryCacheFile)
}

func (c *RegistryCache) metadataPath() string {
	return filepath.Join(c.cacheDir, registryMetadataFile)
}

func (c *RegistryCache) resolve(ctx context.Context) (*models.ToolRegistry, error) {
	if c.url != "" && c.cacheDir != "" {
		c.refresh(ctx)
	}

	if c.cacheDir != "" {
		data, err := os.ReadFile(c.cachePath())
		switch {
		case err == nil:
			var registry models.ToolRegistry
			parseErr := json.Unmarshal(data, &registry)
			if parseErr == nil {
				c.metrics.ObserveRegistrySource(metrics.SourceCache)
				return &registry, nil
			}
			c.logger.Warn("ignoring malformed registry cache", zap.String("path", c.cachePath()), zap.Error(parseErr))
		case !errors.Is(err, os.ErrNotExist):
			c.logger.Warn("failed to read registry cache", zap.String("path", c.cachePath()), zap.Error(err))
		}
	}

	var registry models.ToolRegistry
	if err := json.Unmarshal(c.packaged, &registry); err != nil {
		return nil, fmt.Errorf("%w: packaged registry: %v", ErrRegistryUnavailable, err)
	}
	c.metrics.ObserveRegistrySource(metrics.SourcePackaged)
	return &registry, nil
}

// refresh makes at most one conditional fetch and records the attempt in the metadata.
// Failures are logged and never returned.
func (c *RegistryCache) refresh(ctx context.Context) {
	meta := c.loadMetadata()
	now := c.now()
	nowSeconds := float64(now.UnixNano()) / float64(time.Second)

	_, statErr := os.Stat(c.cachePath())
	cacheExists := statErr == nil

	if cacheExists && meta.FetchedAt != nil && nowSeconds-*meta.FetchedAt <= c.ttl.Seconds() {
		c.metrics.ObserveRegistryFetch(metrics.FetchSkipped)
		return
	}

	etag := ""
	if cacheExists && meta.ETag != nil {
		etag = *meta.ETag
	}

	result, err := c.fetcher.Fetch(ctx, c.url, etag)
	switch {
	case err != nil:
		c.logger.Warn("registry refresh failed, using local registry", zap.String("url", c.url), zap.Error(err))
		c.metrics.ObserveRegistryFetch(metrics.FetchFailed)
	case result.NotModified:
		c.logger.Debug("registry not modified", zap.String("etag", etag))
		c.metrics.ObserveRegistryFetch(metrics.FetchNotModified)
	default:
		if err := writeFileAtomic(c.cachePath(), result.Body); err != nil {
			c.logger.Warn("failed to write registry cache", zap.String("path", c.cachePath()), zap.Error(err))
			c.metrics.ObserveRegistryFetch(metrics.FetchFailed)
			break
		}
		// a response without ETag keeps the previous validator
		if result.ETag != "" {
			tag := result.ETag
			meta.ETag = &tag
		}
		c.logger.Debug("registry refreshed", zap.String("url", c.url), zap.Int("bytes", len(result.Body)))
		c.metrics.ObserveRegistryFetch(metrics.FetchFresh)
	}

	meta.FetchedAt = &nowSeconds
	if err := c.saveMetadata(meta); err != nil {
		c.logger.Warn("failed to write registry metadata", zap.String("path", c.metadataPath()), zap.Error(err))
	}
}

// loadMetadata treats a missing or corrupt metadata file as never fetched
func (c *RegistryCache) loadMetadata() models.CacheMetadata {
	var meta models.CacheMetadata
	data, err := os.ReadFile(c.metadataPath())
	if err != nil {
		return meta
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		c.logger.Debug("ignoring corrupt registry metadata", zap.Error(err))
		return models.CacheMetadata{}
	}
	return meta
}

func (c *RegistryCache) saveMetadata(meta models.CacheMetadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return writeFileAtomic(c.metadataPath(), data)
}

// writeFileAtomic replaces path so readers never observe a partial file
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
