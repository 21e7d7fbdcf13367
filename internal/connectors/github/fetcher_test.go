package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	filecache "github.com/custodia-labs/sercha-docs/internal/adapters/driven/cache/file"
	"github.com/custodia-labs/sercha-docs/internal/core/domain"
)

// fakeRepo serves the repository, tree and blob endpoints for owner/repo.
type fakeRepo struct {
	defaultBranch string
	files         map[string]string // path -> content

	mu        sync.Mutex
	blobCalls int
	// failBlob returns the status for a blob path, or 0 to serve it.
	failBlob func(path string, call int) int
	calls    map[string]int
}

func sha(p string) string {
	return "sha-" + strings.NewReplacer("/", "-", ".", "-").Replace(p)
}

func (f *fakeRepo) handler(t *testing.T) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/docs", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"full_name": "acme/docs", "default_branch": f.defaultBranch})
	})
	mux.HandleFunc("/repos/acme/docs/git/trees/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("recursive"))
		entries := []map[string]any{{"path": "docs", "type": "tree", "sha": "dir"}}
		for p, content := range f.files {
			entries = append(entries, map[string]any{"path": p, "type": "blob", "sha": sha(p), "size": len(content)})
		}
		writeJSON(w, map[string]any{"sha": "root", "tree": entries, "truncated": false})
	})
	mux.HandleFunc("/repos/acme/docs/git/blobs/", func(w http.ResponseWriter, r *http.Request) {
		blobSHA := strings.TrimPrefix(r.URL.Path, "/repos/acme/docs/git/blobs/")
		for p, content := range f.files {
			if sha(p) != blobSHA {
				continue
			}
			f.mu.Lock()
			f.blobCalls++
			if f.calls == nil {
				f.calls = make(map[string]int)
			}
			f.calls[p]++
			call := f.calls[p]
			f.mu.Unlock()

			if f.failBlob != nil {
				if status := f.failBlob(p, call); status != 0 {
					if status == http.StatusTooManyRequests {
						w.Header().Set(HeaderRetryAfter, "1")
					}
					w.WriteHeader(status)
					_, _ = w.Write([]byte(`{"message":"failure"}`))
					return
				}
			}
			writeJSON(w, map[string]any{
				"sha":      blobSHA,
				"encoding": "base64",
				"content":  base64.StdEncoding.EncodeToString([]byte(content)),
			})
			return
		}
		http.NotFound(w, r)
	})
	return mux
}

func (f *fakeRepo) blobRequests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blobCalls
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestFetcher(t *testing.T, srv *httptest.Server, opts ...Option) *Fetcher {
	t.Helper()
	client, err := NewClient(context.Background(), "", WithBaseURL(srv.URL), WithRequestRate(0))
	require.NoError(t, err)

	cfg := domain.DefaultFetchConfig()
	cfg.ConcurrentLimit = 3
	opts = append([]Option{WithRetryDelay(time.Millisecond)}, opts...)
	return NewFetcher(client, cfg, opts...)
}

func repoSource(paths ...string) domain.Source {
	return domain.Source{
		Name:       "acme-docs",
		Kind:       domain.SourceKindRepository,
		Enabled:    true,
		Repository: &domain.RepositorySource{Owner: "acme", Repo: "docs", Paths: paths},
	}
}

// collect returns an emit func recording documents in emit order.
func collect(docs *[]*domain.FetchedDocument) func(context.Context, *domain.FetchedDocument) error {
	return func(_ context.Context, doc *domain.FetchedDocument) error {
		*docs = append(*docs, doc)
		return nil
	}
}

func TestFetcher_Kind(t *testing.T) {
	f := NewFetcher(nil, domain.DefaultFetchConfig())
	assert.Equal(t, domain.SourceKindRepository, f.Kind())
}

func TestFetcher_FetchMatchingFilesInPathOrder(t *testing.T) {
	repo := &fakeRepo{
		defaultBranch: "trunk",
		files: map[string]string{
			"docs/b.md":        "# B\n\nSecond page of the docs.",
			"docs/a.md":        "# A\n\nFirst page of the docs.",
			"docs/guide/c.md":  "# C\n\nNested page.",
			"docs/logo.png":    "binary",
			"src/main.go":      "package main",
			"docs/config.yaml": "key: value",
			"README.md":        "# Readme",
		},
	}
	srv := httptest.NewServer(repo.handler(t))
	defer srv.Close()

	var docs []*domain.FetchedDocument
	stats, err := newTestFetcher(t, srv).Fetch(context.Background(), repoSource("docs/**/*.md"), collect(&docs))
	require.NoError(t, err)

	require.Len(t, docs, 3)
	assert.Equal(t, "https://github.com/acme/docs/blob/trunk/docs/a.md", docs[0].Identifier)
	assert.Equal(t, "https://github.com/acme/docs/blob/trunk/docs/b.md", docs[1].Identifier)
	assert.Equal(t, "https://github.com/acme/docs/blob/trunk/docs/guide/c.md", docs[2].Identifier)

	assert.Equal(t, "acme-docs", docs[0].SourceName)
	assert.Equal(t, domain.ContentKindMarkdown, docs[0].Kind)
	assert.Equal(t, "# A\n\nFirst page of the docs.", string(docs[0].Content))
	assert.Equal(t, domain.HashContent(docs[0].Content), docs[0].ContentHash)
	assert.False(t, docs[0].FromCache)

	assert.Equal(t, 3, stats.Discovered)
	assert.Equal(t, 3, stats.Fetched)
	assert.Zero(t, stats.Failed)
	// One repository lookup, one tree listing and three blobs.
	assert.Equal(t, 5, stats.Attempts)
}

func TestFetcher_ConfiguredBranchSkipsLookup(t *testing.T) {
	var repoCalls atomic.Int32
	repo := &fakeRepo{files: map[string]string{"index.md": "# Index\n\nHello."}}
	mux := http.NewServeMux()
	mux.Handle("/", repo.handler(t))
	mux.HandleFunc("/repos/acme/docs", func(http.ResponseWriter, *http.Request) { repoCalls.Add(1) })
	srv := httptest.NewServer(mux)
	defer srv.Close()

	source := repoSource()
	source.Repository.Branch = "v2"

	var docs []*domain.FetchedDocument
	_, err := newTestFetcher(t, srv).Fetch(context.Background(), source, collect(&docs))
	require.NoError(t, err)

	require.Len(t, docs, 1)
	assert.Equal(t, "https://github.com/acme/docs/blob/v2/index.md", docs[0].Identifier)
	assert.Zero(t, repoCalls.Load())
}

func TestFetcher_ReusesCachedBlobs(t *testing.T) {
	repo := &fakeRepo{
		defaultBranch: "main",
		files:         map[string]string{"a.md": "# A\n\nAlpha.", "b.md": "# B\n\nBeta."},
	}
	srv := httptest.NewServer(repo.handler(t))
	defer srv.Close()

	caches, err := filecache.NewProvider(t.TempDir())
	require.NoError(t, err)
	f := newTestFetcher(t, srv, WithCache(caches))

	var first []*domain.FetchedDocument
	stats, err := f.Fetch(context.Background(), repoSource(), collect(&first))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Fetched)
	assert.Equal(t, 2, repo.blobRequests())

	var second []*domain.FetchedDocument
	stats, err = f.Fetch(context.Background(), repoSource(), collect(&second))
	require.NoError(t, err)

	assert.Equal(t, 2, repo.blobRequests(), "unchanged blobs are not downloaded again")
	assert.Equal(t, 2, stats.Cached)
	assert.Zero(t, stats.Fetched)
	assert.InDelta(t, 1.0, stats.CacheHitRate(), 1e-9)
	require.Len(t, second, 2)
	assert.True(t, second[0].FromCache)
	assert.Equal(t, first[0].Content, second[0].Content)
	assert.Equal(t, first[0].ContentHash, second[0].ContentHash)
}

func TestFetcher_MissingRepositoryIsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := newTestFetcher(t, srv).Fetch(context.Background(), repoSource(), collect(new([]*domain.FetchedDocument)))
	assert.ErrorIs(t, err, domain.ErrSourceUnreachable)
	assert.ErrorIs(t, err, ErrRepoNotFound)
}

func TestFetcher_RetriesTransientFailures(t *testing.T) {
	repo := &fakeRepo{
		defaultBranch: "main",
		files:         map[string]string{"a.md": "# A\n\nAlpha."},
		failBlob: func(_ string, call int) int {
			if call <= 2 {
				return http.StatusBadGateway
			}
			return 0
		},
	}
	srv := httptest.NewServer(repo.handler(t))
	defer srv.Close()

	var docs []*domain.FetchedDocument
	stats, err := newTestFetcher(t, srv).Fetch(context.Background(), repoSource(), collect(&docs))
	require.NoError(t, err)

	require.Len(t, docs, 1)
	assert.Equal(t, 3, repo.blobRequests())
	// Repository, tree and three blob attempts.
	assert.Equal(t, 5, stats.Attempts)
}

func TestFetcher_WaitsOutRateLimit(t *testing.T) {
	repo := &fakeRepo{
		defaultBranch: "main",
		files:         map[string]string{"a.md": "# A\n\nAlpha."},
		failBlob: func(_ string, call int) int {
			if call == 1 {
				return http.StatusTooManyRequests
			}
			return 0
		},
	}
	srv := httptest.NewServer(repo.handler(t))
	defer srv.Close()

	start := time.Now()
	var docs []*domain.FetchedDocument
	_, err := newTestFetcher(t, srv).Fetch(context.Background(), repoSource(), collect(&docs))
	require.NoError(t, err)

	require.Len(t, docs, 1)
	assert.Equal(t, 2, repo.blobRequests())
	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
}

func TestFetcher_RateLimitBeyondMaxWaitFails(t *testing.T) {
	repo := &fakeRepo{
		defaultBranch: "main",
		files:         map[string]string{"a.md": "# A\n\nAlpha."},
		failBlob:      func(string, int) int { return http.StatusTooManyRequests },
	}
	srv := httptest.NewServer(repo.handler(t))
	defer srv.Close()

	f := newTestFetcher(t, srv, WithMaxRateLimitWait(time.Millisecond))
	stats, err := f.Fetch(context.Background(), repoSource(), collect(new([]*domain.FetchedDocument)))

	assert.ErrorIs(t, err, domain.ErrSourceUnreachable)
	assert.Equal(t, 1, repo.blobRequests())
	assert.Equal(t, 1, stats.Failed)
}

func TestFetcher_RecordsFailedFiles(t *testing.T) {
	repo := &fakeRepo{
		defaultBranch: "main",
		files:         map[string]string{"a.md": "# A\n\nAlpha.", "b.md": "# B\n\nBeta."},
		failBlob: func(p string, _ int) int {
			if p == "b.md" {
				return http.StatusForbidden
			}
			return 0
		},
	}
	srv := httptest.NewServer(repo.handler(t))
	defer srv.Close()

	var docs []*domain.FetchedDocument
	stats, err := newTestFetcher(t, srv).Fetch(context.Background(), repoSource(), collect(&docs))
	require.NoError(t, err)

	require.Len(t, docs, 1)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, []string{"https://github.com/acme/docs/blob/main/b.md"}, stats.FailedIdentifiers)
	// A 403 without rate limit headers is terminal and not retried.
	assert.Equal(t, 2, repo.blobRequests())
}

func TestFetcher_AllFilesFailedIsUnreachable(t *testing.T) {
	repo := &fakeRepo{
		defaultBranch: "main",
		files:         map[string]string{"a.md": "# A"},
		failBlob:      func(string, int) int { return http.StatusNotFound },
	}
	srv := httptest.NewServer(repo.handler(t))
	defer srv.Close()

	stats, err := newTestFetcher(t, srv).Fetch(context.Background(), repoSource(), collect(new([]*domain.FetchedDocument)))
	assert.ErrorIs(t, err, domain.ErrSourceUnreachable)
	require.NotNil(t, stats)
	assert.Equal(t, 1, stats.Discovered)
	assert.Equal(t, 1, stats.Failed)
}

func TestFetcher_NoMatchingFilesSucceeds(t *testing.T) {
	repo := &fakeRepo{defaultBranch: "main", files: map[string]string{"src/main.go": "package main"}}
	srv := httptest.NewServer(repo.handler(t))
	defer srv.Close()

	stats, err := newTestFetcher(t, srv).Fetch(context.Background(), repoSource("docs/**"), collect(new([]*domain.FetchedDocument)))
	require.NoError(t, err)
	assert.Zero(t, stats.Discovered)
}

func TestFetcher_EmitErrorStopsFetch(t *testing.T) {
	repo := &fakeRepo{
		defaultBranch: "main",
		files:         map[string]string{"a.md": "# A", "b.md": "# B", "c.md": "# C"},
	}
	srv := httptest.NewServer(repo.handler(t))
	defer srv.Close()

	stop := errors.New("stop")
	emitted := 0
	_, err := newTestFetcher(t, srv).Fetch(context.Background(), repoSource(), func(context.Context, *domain.FetchedDocument) error {
		emitted++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, emitted)
}

func TestFetcher_RejectsBadSources(t *testing.T) {
	f := NewFetcher(nil, domain.DefaultFetchConfig())

	_, err := f.Fetch(context.Background(), domain.Source{Name: "w", Kind: domain.SourceKindWebsite}, nil)
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)

	_, err = f.Fetch(context.Background(), repoSource("docs/[a-"), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
