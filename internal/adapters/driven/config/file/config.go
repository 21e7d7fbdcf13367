package file

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/sercha-docs/internal/core/domain"
)

const (
	// DefaultDirName is the directory under the user's home that holds
	// the configuration, the index and the page cache.
	DefaultDirName = ".sercha-docs"

	// DefaultFileName is the configuration file looked up in DefaultDirName.
	DefaultFileName = "config.toml"

	// EnvGitHubToken supplies github.token when the file leaves it empty.
	EnvGitHubToken = "GITHUB_TOKEN"

	// EnvOllamaHost supplies embedding.base_url when the file leaves it empty.
	EnvOllamaHost = "OLLAMA_HOST"
)

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// MCP transports.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Config is the validated application configuration.
type Config struct {
	// Path is the file the configuration was read from. Empty when the
	// defaults were used because no file exists.
	Path string

	DataDir   string
	Backend   string
	Sources   []domain.Source
	Fetch     domain.FetchConfig
	Refresh   domain.RefreshConfig
	Embedding domain.EmbeddingConfig
	Chunking  domain.ChunkConfig
	GitHub    GitHubConfig
	Server    ServerConfig
}

// GitHubConfig holds GitHub API access settings.
type GitHubConfig struct {
	Token  string
	APIURL string
}

// ServerConfig holds the serve command settings.
type ServerConfig struct {
	Transport   string
	Host        string
	Port        int
	MetricsAddr string
	QueryLimit  int
}

// IndexDir is where the vector store lives.
func (c *Config) IndexDir() string {
	return filepath.Join(c.DataDir, "data")
}

// CacheDir is where fetched pages are cached.
func (c *Config) CacheDir() string {
	return filepath.Join(c.DataDir, "cache")
}

// Source returns the configured source with the given name.
func (c *Config) Source(name string) (domain.Source, bool) {
	for _, s := range c.Sources {
		if s.Name == name {
			return s, true
		}
	}
	return domain.Source{}, false
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Backend:   BackendSQLite,
		Fetch:     domain.DefaultFetchConfig(),
		Refresh:   domain.DefaultRefreshConfig(),
		Embedding: domain.DefaultEmbeddingConfig(),
		Chunking:  domain.DefaultChunkConfig(),
		GitHub:    GitHubConfig{APIURL: "https://api.github.com"},
		Server: ServerConfig{
			Transport:   TransportStdio,
			Host:        "127.0.0.1",
			Port:        8080,
			MetricsAddr: "",
			QueryLimit:  domain.DefaultQueryLimit,
		},
	}
}

// DefaultDir returns ~/.sercha-docs.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DefaultDirName), nil
}

// DefaultPath returns ~/.sercha-docs/config.toml.
func DefaultPath() (string, error) {
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultFileName), nil
}

// Load reads and validates the configuration at path. An empty path means
// DefaultPath; a missing default file yields the defaults, a missing
// explicit file is an error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			cfg := Default()
			loadDotEnv(filepath.Dir(path))
			if err := cfg.resolve(filepath.Dir(path)); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	loadDotEnv(filepath.Dir(path))

	doc, err := decode(path, data)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	cfg.Path = path
	if err := doc.apply(cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.resolve(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// loadDotEnv loads dir/.env without overriding variables already set.
func loadDotEnv(dir string) {
	envPath := filepath.Join(dir, ".env")
	if _, err := os.Stat(envPath); err == nil {
		_ = godotenv.Load(envPath)
	}
}

func decode(path string, data []byte) (*document, error) {
	var doc document
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %v", domain.ErrInvalidInput, path, err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: parse %s: %v", domain.ErrInvalidInput, path, err)
		}
	default:
		return nil, fmt.Errorf("%w: config format %q (use .toml, .yaml or .yml)", domain.ErrUnsupportedType, filepath.Ext(path))
	}
	return &doc, nil
}

// resolve fills values from the environment, expands paths and validates.
func (c *Config) resolve(baseDir string) error {
	if c.GitHub.Token == "" {
		c.GitHub.Token = os.Getenv(EnvGitHubToken)
	}
	if host := os.Getenv(EnvOllamaHost); host != "" && c.Embedding.BaseURL == domain.DefaultEmbeddingConfig().BaseURL {
		if !strings.Contains(host, "://") {
			host = "http://" + host
		}
		c.Embedding.BaseURL = host
	}

	if c.DataDir == "" {
		dir, err := DefaultDir()
		if err != nil {
			return err
		}
		c.DataDir = dir
	}
	dir, err := expandPath(c.DataDir, baseDir)
	if err != nil {
		return err
	}
	c.DataDir = dir

	return c.Validate()
}

// Validate checks every section.
func (c *Config) Validate() error {
	if c.Backend != BackendSQLite && c.Backend != BackendMemory {
		return fmt.Errorf("%w: storage.backend must be %q or %q, got %q",
			domain.ErrInvalidInput, BackendSQLite, BackendMemory, c.Backend)
	}
	if err := c.Fetch.Validate(); err != nil {
		return err
	}
	if err := c.Refresh.Validate(); err != nil {
		return err
	}
	if err := c.Embedding.Validate(); err != nil {
		return err
	}
	if err := validURL("embedding.base_url", c.Embedding.BaseURL); err != nil {
		return err
	}
	if err := c.Chunking.Validate(); err != nil {
		return err
	}
	if err := validURL("github.api_url", c.GitHub.APIURL); err != nil {
		return err
	}

	switch c.Server.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("%w: server.transport must be %q or %q", domain.ErrInvalidInput, TransportStdio, TransportHTTP)
	}
	if c.Server.Port < 1024 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port=%d must be in [1024,65535]", domain.ErrInvalidInput, c.Server.Port)
	}
	if c.Server.QueryLimit < 1 || c.Server.QueryLimit > domain.MaxQueryLimit {
		return fmt.Errorf("%w: server.query_limit=%d must be in [1,%d]",
			domain.ErrInvalidInput, c.Server.QueryLimit, domain.MaxQueryLimit)
	}

	seen := make(map[string]bool, len(c.Sources))
	for i := range c.Sources {
		s := &c.Sources[i]
		if err := s.Validate(); err != nil {
			return err
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: duplicate source name %q", domain.ErrInvalidInput, s.Name)
		}
		seen[s.Name] = true
		if s.Repository != nil {
			for _, p := range s.Repository.Paths {
				if !doublestar.ValidatePattern(p) {
					return fmt.Errorf("%w: source %q: invalid path pattern %q", domain.ErrInvalidInput, s.Name, p)
				}
			}
		}
	}
	return nil
}

func validURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: %s %q is not an http(s) url", domain.ErrInvalidInput, field, raw)
	}
	return nil
}

// expandPath resolves "~" and makes relative paths relative to baseDir.
func expandPath(p, baseDir string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(baseDir, p)
	}
	return filepath.Clean(p), nil
}

// durationOr parses s, returning def when s is empty.
func durationOr(field, s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", domain.ErrInvalidInput, field, err)
	}
	return d, nil
}
