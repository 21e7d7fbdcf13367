package file

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/sercha-docs/internal/core/domain"
)

// document mirrors the configuration file. Pointers distinguish an unset
// value from an explicit zero.
type document struct {
	DataDir   string           `toml:"data_dir,omitempty" yaml:"data_dir"`
	Storage   storageSection   `toml:"storage" yaml:"storage"`
	Sources   sourcesSection   `toml:"sources" yaml:"sources"`
	Fetching  fetchingSection  `toml:"fetching" yaml:"fetching"`
	GitHub    githubSection    `toml:"github" yaml:"github"`
	Refresh   refreshSection   `toml:"refresh" yaml:"refresh"`
	Embedding embeddingSection `toml:"embedding" yaml:"embedding"`
	Chunking  chunkingSection  `toml:"chunking" yaml:"chunking"`
	Server    serverSection    `toml:"server" yaml:"server"`
}

type storageSection struct {
	Backend string `toml:"backend,omitempty" yaml:"backend"`
}

type sourcesSection struct {
	Websites    []websiteEntry `toml:"websites" yaml:"websites"`
	GitHubRepos []repoEntry    `toml:"github_repos" yaml:"github_repos"`
}

type websiteEntry struct {
	Name       string `toml:"name" yaml:"name"`
	URL        string `toml:"url" yaml:"url"`
	PathPrefix string `toml:"path_prefix,omitempty" yaml:"path_prefix"`
	MaxDepth   int    `toml:"max_depth,omitempty" yaml:"max_depth"`
	Enabled    *bool  `toml:"enabled,omitempty" yaml:"enabled"`
}

type repoEntry struct {
	Name      string   `toml:"name" yaml:"name"`
	RepoOwner string   `toml:"repo_owner" yaml:"repo_owner"`
	RepoName  string   `toml:"repo_name" yaml:"repo_name"`
	Branch    string   `toml:"branch,omitempty" yaml:"branch"`
	Paths     []string `toml:"paths,omitempty" yaml:"paths"`
	Enabled   *bool    `toml:"enabled,omitempty" yaml:"enabled"`
}

type fetchingSection struct {
	Timeout         *int   `toml:"timeout,omitempty" yaml:"timeout"`
	MaxRetries      *int   `toml:"max_retries,omitempty" yaml:"max_retries"`
	ConcurrentLimit *int   `toml:"concurrent_limit,omitempty" yaml:"concurrent_limit"`
	DelayMS         *int   `toml:"delay_ms,omitempty" yaml:"delay_ms"`
	MaxDepth        *int   `toml:"max_depth,omitempty" yaml:"max_depth"`
	CacheTTL        string `toml:"cache_ttl,omitempty" yaml:"cache_ttl"`
	UserAgent       string `toml:"user_agent,omitempty" yaml:"user_agent"`
}

type githubSection struct {
	Token  string `toml:"token,omitempty" yaml:"token"`
	APIURL string `toml:"api_url,omitempty" yaml:"api_url"`
}

type refreshSection struct {
	Enabled           *bool `toml:"enabled,omitempty" yaml:"enabled"`
	IntervalHours     *int  `toml:"interval_hours,omitempty" yaml:"interval_hours"`
	MaxConcurrentJobs *int  `toml:"max_concurrent_jobs,omitempty" yaml:"max_concurrent_jobs"`
}

type embeddingSection struct {
	BaseURL    string `toml:"base_url,omitempty" yaml:"base_url"`
	Model      string `toml:"model,omitempty" yaml:"model"`
	Dimensions int    `toml:"dimensions,omitempty" yaml:"dimensions"`
	BatchSize  int    `toml:"batch_size,omitempty" yaml:"batch_size"`
}

type chunkingSection struct {
	ChunkSize    int  `toml:"chunk_size,omitempty" yaml:"chunk_size"`
	MinChunkSize *int `toml:"min_chunk_size,omitempty" yaml:"min_chunk_size"`
	MaxChunkSize int  `toml:"max_chunk_size,omitempty" yaml:"max_chunk_size"`
	Overlap      *int `toml:"overlap,omitempty" yaml:"overlap"`
}

type serverSection struct {
	Transport   string `toml:"transport,omitempty" yaml:"transport"`
	Host        string `toml:"host,omitempty" yaml:"host"`
	Port        int    `toml:"port,omitempty" yaml:"port"`
	MetricsAddr string `toml:"metrics_addr,omitempty" yaml:"metrics_addr"`
	QueryLimit  int    `toml:"query_limit,omitempty" yaml:"query_limit"`
}

// apply overlays the document on cfg, which holds the defaults.
func (d *document) apply(cfg *Config) error {
	if d.DataDir != "" {
		cfg.DataDir = d.DataDir
	}
	if d.Storage.Backend != "" {
		cfg.Backend = d.Storage.Backend
	}

	f := d.Fetching
	setInt(&cfg.Fetch.TimeoutSeconds, f.Timeout)
	setInt(&cfg.Fetch.MaxRetries, f.MaxRetries)
	setInt(&cfg.Fetch.ConcurrentLimit, f.ConcurrentLimit)
	setInt(&cfg.Fetch.DelayMS, f.DelayMS)
	setInt(&cfg.Fetch.MaxDepth, f.MaxDepth)
	ttl, err := durationOr("fetching.cache_ttl", f.CacheTTL, cfg.Fetch.CacheTTL)
	if err != nil {
		return err
	}
	cfg.Fetch.CacheTTL = ttl
	if f.UserAgent != "" {
		cfg.Fetch.UserAgent = f.UserAgent
	}

	if d.GitHub.Token != "" {
		cfg.GitHub.Token = d.GitHub.Token
	}
	if d.GitHub.APIURL != "" {
		cfg.GitHub.APIURL = d.GitHub.APIURL
	}

	if d.Refresh.Enabled != nil {
		cfg.Refresh.Enabled = *d.Refresh.Enabled
	}
	setInt(&cfg.Refresh.IntervalHours, d.Refresh.IntervalHours)
	setInt(&cfg.Refresh.MaxConcurrentJobs, d.Refresh.MaxConcurrentJobs)

	e := d.Embedding
	if e.BaseURL != "" {
		cfg.Embedding.BaseURL = e.BaseURL
	}
	if e.Model != "" {
		cfg.Embedding.Model = e.Model
	}
	if e.Dimensions != 0 {
		cfg.Embedding.Dimensions = e.Dimensions
	}
	if e.BatchSize != 0 {
		cfg.Embedding.BatchSize = e.BatchSize
	}

	c := d.Chunking
	if c.ChunkSize != 0 {
		cfg.Chunking.TargetTokens = c.ChunkSize
		// The ceiling follows the target unless set explicitly.
		cfg.Chunking.MaxTokens = c.ChunkSize + c.ChunkSize/4
	}
	if c.MaxChunkSize != 0 {
		cfg.Chunking.MaxTokens = c.MaxChunkSize
	}
	setInt(&cfg.Chunking.MinTokens, c.MinChunkSize)
	setInt(&cfg.Chunking.OverlapTokens, c.Overlap)

	s := d.Server
	if s.Transport != "" {
		cfg.Server.Transport = s.Transport
	}
	if s.Host != "" {
		cfg.Server.Host = s.Host
	}
	if s.Port != 0 {
		cfg.Server.Port = s.Port
	}
	if s.MetricsAddr != "" {
		cfg.Server.MetricsAddr = s.MetricsAddr
	}
	if s.QueryLimit != 0 {
		cfg.Server.QueryLimit = s.QueryLimit
	}

	cfg.Sources = d.sources()
	return nil
}

// sources converts the file entries, websites first, in file order.
func (d *document) sources() []domain.Source {
	sources := make([]domain.Source, 0, len(d.Sources.Websites)+len(d.Sources.GitHubRepos))
	for _, w := range d.Sources.Websites {
		sources = append(sources, domain.Source{
			Name:    w.Name,
			Kind:    domain.SourceKindWebsite,
			Enabled: enabled(w.Enabled),
			Website: &domain.WebsiteSource{URL: w.URL, PathPrefix: w.PathPrefix, MaxDepth: w.MaxDepth},
		})
	}
	for _, r := range d.Sources.GitHubRepos {
		sources = append(sources, domain.Source{
			Name:    r.Name,
			Kind:    domain.SourceKindRepository,
			Enabled: enabled(r.Enabled),
			Repository: &domain.RepositorySource{
				Owner:  r.RepoOwner,
				Repo:   r.RepoName,
				Branch: r.Branch,
				Paths:  append([]string(nil), r.Paths...),
			},
		})
	}
	return sources
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

// Sources are enabled unless the file says otherwise.
func enabled(v *bool) bool {
	return v == nil || *v
}

// WriteExample writes a starter TOML configuration to path. It refuses to
// overwrite an existing file.
func WriteExample(path string) error {
	def := Default()
	no := false
	doc := document{
		Storage: storageSection{Backend: def.Backend},
		Sources: sourcesSection{
			Websites: []websiteEntry{{
				Name:       "example-docs",
				URL:        "https://docs.example.com/",
				PathPrefix: "/",
				Enabled:    &no,
			}},
			GitHubRepos: []repoEntry{{
				Name:      "example-repo",
				RepoOwner: "example",
				RepoName:  "docs",
				Paths:     []string{"docs/**/*.md"},
				Enabled:   &no,
			}},
		},
		Fetching: fetchingSection{
			Timeout:         &def.Fetch.TimeoutSeconds,
			MaxRetries:      &def.Fetch.MaxRetries,
			ConcurrentLimit: &def.Fetch.ConcurrentLimit,
			DelayMS:         &def.Fetch.DelayMS,
			MaxDepth:        &def.Fetch.MaxDepth,
			CacheTTL:        def.Fetch.CacheTTL.String(),
		},
		Refresh: refreshSection{
			Enabled:           &def.Refresh.Enabled,
			IntervalHours:     &def.Refresh.IntervalHours,
			MaxConcurrentJobs: &def.Refresh.MaxConcurrentJobs,
		},
		Embedding: embeddingSection{
			BaseURL:    def.Embedding.BaseURL,
			Model:      def.Embedding.Model,
			Dimensions: def.Embedding.Dimensions,
			BatchSize:  def.Embedding.BatchSize,
		},
		Chunking: chunkingSection{
			ChunkSize:    def.Chunking.TargetTokens,
			MinChunkSize: &def.Chunking.MinTokens,
			Overlap:      &def.Chunking.OverlapTokens,
		},
		Server: serverSection{
			Transport:  def.Server.Transport,
			Host:       def.Server.Host,
			Port:       def.Server.Port,
			QueryLimit: def.Server.QueryLimit,
		},
	}

	data, err := toml.Marshal(doc)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
