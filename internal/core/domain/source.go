package domain

import (
	"fmt"
	"net/url"
	"strings"
)

// SourceKind identifies how a source is fetched.
type SourceKind string

const (
	// SourceKindWebsite is a crawled documentation site.
	SourceKindWebsite SourceKind = "website"

	// SourceKindRepository is a set of files in a GitHub repository.
	SourceKindRepository SourceKind = "repository"
)

// DefaultBranch is used when a repository source has no branch configured
// and the repository's default branch cannot be resolved.
const DefaultBranch = "main"

// Source is one configured documentation origin.
// A Source is immutable for the duration of a pipeline run.
type Source struct {
	// Name is the unique name of the source. It scopes chunk identifiers,
	// cache namespaces and pruning.
	Name string

	// Kind selects the fetcher.
	Kind SourceKind

	// Enabled sources take part in ingestion runs.
	Enabled bool

	// Website is set when Kind is SourceKindWebsite.
	Website *WebsiteSource

	// Repository is set when Kind is SourceKindRepository.
	Repository *RepositorySource
}

// WebsiteSource describes a crawl root.
type WebsiteSource struct {
	// URL is the crawl entry point.
	URL string

	// PathPrefix restricts discovered links. Defaults to "/".
	PathPrefix string

	// MaxDepth overrides FetchConfig.MaxDepth when > 0.
	MaxDepth int
}

// RepositorySource describes files in a GitHub repository.
type RepositorySource struct {
	Owner string
	Repo  string

	// Branch is optional; the repository default branch is used when empty.
	Branch string

	// Paths are doublestar glob patterns ("docs/**/*.md").
	// An empty list matches every file.
	Paths []string
}

// FullName returns "owner/repo".
func (r *RepositorySource) FullName() string {
	return r.Owner + "/" + r.Repo
}

// Validate checks that the source is internally consistent.
func (s *Source) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: source name is required", ErrInvalidInput)
	}

	switch s.Kind {
	case SourceKindWebsite:
		if s.Website == nil {
			return fmt.Errorf("%w: source %q: website settings missing", ErrInvalidInput, s.Name)
		}
		u, err := url.Parse(s.Website.URL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("%w: source %q: invalid url %q", ErrInvalidInput, s.Name, s.Website.URL)
		}
		if s.Website.PathPrefix != "" && !strings.HasPrefix(s.Website.PathPrefix, "/") {
			return fmt.Errorf("%w: source %q: path prefix must start with /", ErrInvalidInput, s.Name)
		}
		if s.Website.MaxDepth < 0 || s.Website.MaxDepth > MaxCrawlDepth {
			return fmt.Errorf("%w: source %q: max depth must be in [0,%d]", ErrInvalidInput, s.Name, MaxCrawlDepth)
		}
	case SourceKindRepository:
		if s.Repository == nil {
			return fmt.Errorf("%w: source %q: repository settings missing", ErrInvalidInput, s.Name)
		}
		if s.Repository.Owner == "" || s.Repository.Repo == "" {
			return fmt.Errorf("%w: source %q: repository owner and name are required", ErrInvalidInput, s.Name)
		}
	default:
		return fmt.Errorf("%w: source %q: kind %q", ErrUnsupportedType, s.Name, s.Kind)
	}
	return nil
}

// Prefix returns the website path prefix, defaulting to "/".
func (w *WebsiteSource) Prefix() string {
	if w.PathPrefix == "" {
		return "/"
	}
	return w.PathPrefix
}

// EnabledSources filters sources to those with Enabled set.
func EnabledSources(sources []Source) []Source {
	out := make([]Source, 0, len(sources))
	for i := range sources {
		if sources[i].Enabled {
			out = append(out, sources[i])
		}
	}
	return out
}
