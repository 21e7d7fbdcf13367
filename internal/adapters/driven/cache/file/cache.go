package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/custodia-labs/sercha-docs/internal/core/domain"
	"github.com/custodia-labs/sercha-docs/internal/core/ports/driven"
)

// Ensure the types implement the interfaces.
var (
	_ driven.CacheProvider = (*Provider)(nil)
	_ driven.PageCache     = (*Cache)(nil)
)

const (
	entryExt = ".json"
	bodyExt  = ".body"
)

// Provider hands out one Cache per source under a root directory.
type Provider struct {
	mu     sync.Mutex
	root   string
	caches map[string]*Cache
}

// NewProvider creates a provider rooted at dir.
func NewProvider(dir string) (*Provider, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Provider{root: dir, caches: make(map[string]*Cache)}, nil
}

// ForSource returns the cache for a source, creating its directory.
func (p *Provider) ForSource(sourceName string) (driven.PageCache, error) {
	if strings.TrimSpace(sourceName) == "" {
		return nil, fmt.Errorf("%w: source name is required", domain.ErrInvalidInput)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.caches[sourceName]; ok {
		return c, nil
	}
	// Hashing keeps arbitrary source names filesystem safe.
	dir := filepath.Join(p.root, domain.HashContent([]byte(sourceName))[:16])
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create source cache dir: %w", err)
	}
	c := &Cache{dir: dir}
	p.caches[sourceName] = c
	return c, nil
}

// Cache is the page cache of one source.
type Cache struct {
	mu  sync.RWMutex
	dir string
}

func (c *Cache) paths(identifier string) (hash, entryPath, bodyPath string) {
	hash = domain.HashContent([]byte(identifier))
	return hash, filepath.Join(c.dir, hash+entryExt), filepath.Join(c.dir, hash+bodyExt)
}

// Get returns the entry and body for an identifier.
func (c *Cache) Get(_ context.Context, identifier string) (*domain.CacheEntry, []byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, entryPath, bodyPath := c.paths(identifier)
	entry, err := readEntry(entryPath)
	if err != nil {
		return nil, nil, err
	}
	body, err := os.ReadFile(bodyPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, domain.ErrNotFound
		}
		return nil, nil, err
	}
	// A body that no longer matches its entry is treated as a miss.
	if entry.ContentHash != "" && entry.ContentHash != domain.HashContent(body) {
		return nil, nil, domain.ErrNotFound
	}
	return entry, body, nil
}

// Put writes the body first, then the entry, each through a temp file
// renamed into place.
func (c *Cache) Put(_ context.Context, entry *domain.CacheEntry, body []byte) error {
	if entry == nil || entry.Identifier == "" {
		return fmt.Errorf("%w: cache entry needs an identifier", domain.ErrInvalidInput)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	hash, entryPath, bodyPath := c.paths(entry.Identifier)
	stored := *entry
	stored.IdentifierHash = hash
	if stored.ContentHash == "" {
		stored.ContentHash = domain.HashContent(body)
	}
	stored.ContentLength = len(body)

	data, err := json.MarshalIndent(&stored, "", "  ")
	if err != nil {
		return err
	}
	if err := writeAtomic(bodyPath, body); err != nil {
		return err
	}
	if err := writeAtomic(entryPath, data); err != nil {
		return err
	}
	*entry = stored
	return nil
}

// Delete removes an identifier. Missing entries are not an error.
func (c *Cache) Delete(_ context.Context, identifier string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, entryPath, bodyPath := c.paths(identifier)
	for _, p := range []string{entryPath, bodyPath} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

// Entries lists every cached entry. Unreadable entries are skipped.
func (c *Cache) Entries(_ context.Context) ([]domain.CacheEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	files, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, err
	}
	var entries []domain.CacheEntry
	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != entryExt {
			continue
		}
		entry, err := readEntry(filepath.Join(c.dir, f.Name()))
		if err != nil {
			continue
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

func readEntry(path string) (*domain.CacheEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	var entry domain.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decode cache entry %s: %w", filepath.Base(path), err)
	}
	return &entry, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
