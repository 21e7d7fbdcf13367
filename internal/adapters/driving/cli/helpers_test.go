package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const testDims = 16

// fakeOllama serves /api/tags and a bag-of-words /api/embed.
func fakeOllama(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tags", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"models":[{"name":"test-embed:latest"}]}`))
	})
	mux.HandleFunc("POST /api/embed", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp := struct {
			Model      string      `json:"model"`
			Embeddings [][]float64 `json:"embeddings"`
		}{Model: req.Model}
		for _, text := range req.Input {
			resp.Embeddings = append(resp.Embeddings, bagOfWords(text))
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func bagOfWords(text string) []float64 {
	v := make([]float64, testDims)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(strings.Trim(w, ".,:;#")))
		v[h.Sum32()%testDims]++
	}
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range v {
			v[i] /= norm
		}
	}
	return v
}

func page(title, body string, links ...string) string {
	var b strings.Builder
	b.WriteString("<html><head><title>" + title + "</title></head><body><nav>")
	for _, l := range links {
		fmt.Fprintf(&b, `<a href="%s">%s</a> `, l, l)
	}
	b.WriteString("</nav><main><h1>" + title + "</h1>")
	for i := 0; i < 6; i++ {
		b.WriteString("<p>" + body + "</p>")
	}
	b.WriteString("</main></body></html>")
	return b.String()
}

// docsSite serves three linked documentation pages.
func docsSite(t *testing.T) *httptest.Server {
	t.Helper()
	pages := map[string]string{
		"/docs/": page("Overview", "This guide explains the product and links to every topic.",
			"/docs/install", "/docs/configure"),
		"/docs/install": page("Install",
			"Download the binary and install the package with the installer before first use.", "/docs/"),
		"/docs/configure": page("Configure",
			"Edit the settings file to configure options such as the listen address.", "/docs/"),
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// writeTestConfig writes a TOML config indexing site into a temp dir.
func writeTestConfig(t *testing.T, siteURL, ollamaURL, extra string) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("GITHUB_TOKEN", "")
	os.Unsetenv("GITHUB_TOKEN")
	t.Setenv("OLLAMA_HOST", "")
	os.Unsetenv("OLLAMA_HOST")

	content := fmt.Sprintf(`data_dir = "data"

[storage]
backend = "sqlite"

[[sources.websites]]
name = "guide"
url = "%s/docs/"
path_prefix = "/docs/"

[[sources.github_repos]]
name = "sdk"
repo_owner = "acme"
repo_name = "sdk"
enabled = false

[fetching]
max_retries = 1
delay_ms = 0
timeout = 5

[embedding]
base_url = "%s"
model = "test-embed"
dimensions = %d
batch_size = 8

[chunking]
chunk_size = 40
min_chunk_size = 5
overlap = 5

[refresh]
enabled = true
interval_hours = 24
max_concurrent_jobs = 1
%s`, siteURL, ollamaURL, testDims, extra)

	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

// resetFlags restores package-level flag values between commands.
func resetFlags() {
	cfgPath = ""
	verbose = false
	indexJSON = false
	indexRebuild = false
	queryType = "semantic"
	queryLimit = 0
	queryMinScore = 0
	queryJSON = false
	chunkJSON = false
	initAskToken = false
	statusRuns = 5
	servePort = 0
	serveHost = ""
	serveMetricsAddr = ""
}

// execute runs the root command and returns its combined output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeContext(context.Background(), t, args...)
}

func executeContext(ctx context.Context, t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
		resetFlags()
	}()

	err := rootCmd.ExecuteContext(ctx)
	return buf.String(), err
}

// freePort returns a port that was free a moment ago.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}
