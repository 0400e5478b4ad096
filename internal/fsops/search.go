package fsops

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/zjrosen/codexwui/internal/cachemanager"
	"github.com/zjrosen/codexwui/internal/codex"
	"github.com/zjrosen/codexwui/internal/log"
)

const (
	searchMaxDepth   = 4
	searchMaxResults = 20
	searchCacheTTL   = 30 * time.Second

	webSearchTopics = 5

	// DefaultWebSearchURL is the DuckDuckGo instant answer endpoint.
	DefaultWebSearchURL = "https://api.duckduckgo.com/"
)

var ignoredDirs = []string{
	"node_modules", ".git", "dist", "dist-electron", ".next", ".vite",
	"coverage", "__pycache__", ".cache",
}

// FileMatch is one SearchFiles result.
type FileMatch struct {
	Name         string `json:"name"`
	Path         string `json:"path"`
	RelativePath string `json:"relativePath"`
	IsDirectory  bool   `json:"isDirectory"`
}

// WebResult is one WebSearch result.
type WebResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

type searchInput struct {
	workspace string
	query     string
}

// Service holds the cached and networked file helpers.
type Service struct {
	files     *cachemanager.ReadThroughCache[[]FileMatch, searchInput]
	client    *http.Client
	searchURL string
	start     func(name string, args ...string) error
}

// Option configures a Service.
type Option func(*Service)

// WithHTTPClient sets the client used by WebSearch.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) { s.client = c }
}

// WithWebSearchURL overrides the instant answer endpoint.
func WithWebSearchURL(u string) Option {
	return func(s *Service) { s.searchURL = u }
}

// WithStarter replaces the detached process launcher used by OpenInEditor.
func WithStarter(fn func(name string, args ...string) error) Option {
	return func(s *Service) { s.start = fn }
}

// NewService creates a Service.
func NewService(opts ...Option) *Service {
	s := &Service{
		client:    &http.Client{Timeout: 15 * time.Second},
		searchURL: DefaultWebSearchURL,
		start:     startDetached,
	}
	for _, opt := range opts {
		opt(s)
	}
	cache := cachemanager.NewInMemoryCacheManager[[]FileMatch]("file-search", searchCacheTTL, time.Minute)
	s.files = cachemanager.NewReadThroughCache(cache, func(_ context.Context, in searchInput) ([]FileMatch, error) {
		return searchFiles(in.workspace, in.query), nil
	}, false)
	return s
}

// SearchFiles finds files and directories under workspace whose name or
// relative path contains query, case-insensitively. Results are cached
// for 30 seconds per workspace and query.
func (s *Service) SearchFiles(ctx context.Context, workspace, query string) ([]FileMatch, error) {
	root := codex.ExpandTildePath(workspace)
	q := strings.ToLower(query)
	return s.files.Get(ctx, root+"\x00"+q, searchInput{workspace: root, query: q}, searchCacheTTL)
}

func searchFiles(root, q string) []FileMatch {
	var all []FileMatch
	walk(root, root, 0, &all)

	matches := all[:0]
	for _, f := range all {
		if strings.Contains(strings.ToLower(f.RelativePath), q) || strings.Contains(strings.ToLower(f.Name), q) {
			matches = append(matches, f)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.IsDirectory != b.IsDirectory {
			return a.IsDirectory
		}
		aExact, bExact := strings.ToLower(a.Name) == q, strings.ToLower(b.Name) == q
		if aExact != bExact {
			return aExact
		}
		return len(a.RelativePath) < len(b.RelativePath)
	})

	if len(matches) > searchMaxResults {
		matches = matches[:searchMaxResults]
	}
	return slices.Clone(matches)
}

func walk(dir, base string, depth int, out *[]FileMatch) {
	if depth > searchMaxDepth {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		full := filepath.Join(dir, e.Name())
		rel, err := filepath.Rel(base, full)
		if err != nil {
			rel = full
		}
		isDir := e.IsDir()
		if isDir && (slices.Contains(ignoredDirs, e.Name()) || strings.HasPrefix(e.Name(), ".")) {
			continue
		}
		*out = append(*out, FileMatch{Name: e.Name(), Path: full, RelativePath: rel, IsDirectory: isDir})
		if isDir {
			walk(full, base, depth+1, out)
		}
	}
}

type instantAnswer struct {
	Heading       string `json:"Heading"`
	Abstract      string `json:"Abstract"`
	AbstractURL   string `json:"AbstractURL"`
	RelatedTopics []struct {
		Text     string `json:"Text"`
		FirstURL string `json:"FirstURL"`
	} `json:"RelatedTopics"`
}

// WebSearch queries the DuckDuckGo instant answer API and returns the
// abstract followed by up to five related topics.
func (s *Service) WebSearch(ctx context.Context, query string) ([]WebResult, error) {
	u, err := url.Parse(s.searchURL)
	if err != nil {
		return nil, fmt.Errorf("parsing search url: %w", err)
	}
	params := url.Values{"q": {query}, "format": {"json"}, "no_html": {"1"}}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web search: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("web search: HTTP %d", resp.StatusCode)
	}

	var answer instantAnswer
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return nil, fmt.Errorf("decoding web search: %w", err)
	}

	results := []WebResult{}
	if answer.Abstract != "" {
		title := answer.Heading
		if title == "" {
			title = query
		}
		results = append(results, WebResult{Title: title, URL: answer.AbstractURL, Snippet: answer.Abstract})
	}
	for i, topic := range answer.RelatedTopics {
		if i == webSearchTopics {
			break
		}
		if topic.Text == "" || topic.FirstURL == "" {
			continue
		}
		title, _, _ := strings.Cut(topic.Text, " - ")
		results = append(results, WebResult{Title: title, URL: topic.FirstURL, Snippet: topic.Text})
	}
	log.Debug(log.CatFS, "web search", "query", query, "results", len(results))
	return results, nil
}

// OpenInEditor opens path in editor, or in code then cursor when editor is
// empty, falling back to the system opener. It returns the editor used.
func (s *Service) OpenInEditor(path, editor string) (string, error) {
	expanded := codex.ExpandTildePath(path)
	if _, err := os.Stat(expanded); err != nil {
		return "", fmt.Errorf("file does not exist: %s", path)
	}

	editors := []string{"code", "cursor"}
	if editor != "" {
		editors = []string{editor}
	}
	for _, ed := range editors {
		if err := s.start(ed, expanded); err == nil {
			return ed, nil
		}
	}

	var err error
	switch runtime.GOOS {
	case "darwin":
		err = s.start("open", expanded)
	case "windows":
		err = s.start("cmd", "/C", "start", "", expanded)
	default:
		err = s.start("xdg-open", expanded)
	}
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	return "system", nil
}

func startDetached(name string, args ...string) error {
	// #nosec G204 -- editor chosen by the user
	cmd := exec.Command(codex.ResolveBinary(name), args...)
	cmd.Env = codex.SpawnEnv()
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
