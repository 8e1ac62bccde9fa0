// Package indexcache implements a TTL-cached view of a single upstream
// Simple Repository API index: the project list and, per project, its
// file list.
package indexcache

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kexi/pypi-cache-proxy/internal/lock"
	"github.com/kexi/pypi-cache-proxy/internal/metrics"
	"github.com/kexi/pypi-cache-proxy/internal/model"
	"github.com/kexi/pypi-cache-proxy/internal/upstream"
	"github.com/kexi/pypi-cache-proxy/internal/util"
)

// maxIndexResponseBytes bounds how much of an index or file-listing
// response this cache will parse, guarding against a misbehaving or
// malicious upstream returning an unbounded body.
const maxIndexResponseBytes = 64 * 1024 * 1024

// NotFound reports that a project or file does not exist in this index.
type NotFound struct {
	Name string
}

func (e *NotFound) Error() string {
	return fmt.Sprintf("not found: %s", e.Name)
}

const acceptHeader = "application/vnd.pypi.simple.v1+json, application/vnd.pypi.simple.v1+html;q=0.1"

// project is a cached file listing for one project.
type project struct {
	files     map[string]*model.File
	refreshed time.Time
}

// IndexCache caches one upstream index's project list and per-project
// file listings, each with its own TTL-based staleness window.
type IndexCache struct {
	indexURL string
	ttl      time.Duration
	client   *upstream.Client
	logger   *zap.Logger

	indexMu      sync.Mutex
	indexAt      time.Time
	names        map[string]string // normalized name -> relative href
	haveIndex    bool
	projectLocks lock.Table

	projectsMu sync.Mutex
	projects   map[string]*project
}

// New builds an IndexCache for the index at indexURL with the given TTL.
func New(indexURL string, ttl time.Duration, client *upstream.Client, logger *zap.Logger) *IndexCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IndexCache{
		indexURL: indexURL,
		ttl:      ttl,
		client:   client,
		logger:   logger,
		names:    make(map[string]string),
		projects: make(map[string]*project),
	}
}

// ListProjects returns the normalized names of every project in the
// index, refreshing the cached listing first if it is stale.
func (c *IndexCache) ListProjects() ([]string, error) {
	c.indexMu.Lock()
	defer c.indexMu.Unlock()
	if err := c.refreshProjectList(); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(c.names))
	for n := range c.names {
		names = append(names, n)
	}
	return names, nil
}

// refreshProjectList re-fetches the project list if the cached one is
// absent or older than the TTL. Caller must hold indexMu.
func (c *IndexCache) refreshProjectList() error {
	if c.haveIndex && time.Since(c.indexAt) < c.ttl {
		metrics.RecordIndexCacheHit(c.indexURL)
		return nil
	}
	metrics.RecordIndexCacheMiss(c.indexURL)

	c.logger.Debug("listing projects", zap.String("index_url", c.indexURL))
	req, err := http.NewRequest(http.MethodGet, c.indexURL, nil)
	if err != nil {
		return fmt.Errorf("building project-list request: %w", err)
	}
	req.Header.Set("Accept", acceptHeader)

	resp, err := c.client.Do(req)
	if err != nil {
		return &util.UpstreamFailure{URL: c.indexURL, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &util.UpstreamFailure{URL: c.indexURL, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	limited := util.NewLimitedReader(resp.Body, maxIndexResponseBytes)

	var names map[string]string
	if isJSONContentType(resp.Header.Get("Content-Type")) {
		names, err = model.ParseProjectListJSON(limited)
		if err != nil {
			return &util.UpstreamFailure{URL: c.indexURL, Err: fmt.Errorf("parsing JSON project list: %w", err)}
		}
	} else {
		files, err := model.ParseHTML(limited, resp.Request.URL.String(), c.logger)
		if err != nil {
			return &util.UpstreamFailure{URL: c.indexURL, Err: fmt.Errorf("parsing HTML project list: %w", err)}
		}
		names = make(map[string]string, len(files))
		for _, f := range files {
			names[model.NormalizeName(f.Name)] = f.URL
		}
	}

	c.names = names
	c.indexAt = time.Now()
	c.haveIndex = true
	c.logger.Debug("finished listing projects", zap.String("index_url", c.indexURL), zap.Int("count", len(names)))
	return nil
}

// ListFiles returns the files of the named project, refreshing the
// cached listing first if it is stale. When the project list is itself
// absent or stale, the refresh is speculative: it fetches the project's
// URL directly (relative to the index root) and only falls back to a
// project-list lookup (to confirm existence and find the correct URL)
// if that speculative fetch fails. When the project list is fresh, the
// project's URL is taken from it without a speculative fetch.
func (c *IndexCache) ListFiles(projectName string) ([]*model.File, error) {
	normalized := model.NormalizeName(projectName)
	mu := c.projectLocks.Get(normalized)
	mu.Lock()
	defer mu.Unlock()

	if err := c.refreshFiles(normalized); err != nil {
		return nil, err
	}

	c.projectsMu.Lock()
	p := c.projects[normalized]
	c.projectsMu.Unlock()

	files := make([]*model.File, 0, len(p.files))
	for _, f := range p.files {
		files = append(files, f)
	}
	return files, nil
}

func (c *IndexCache) refreshFiles(normalized string) error {
	c.projectsMu.Lock()
	existing := c.projects[normalized]
	c.projectsMu.Unlock()
	if existing != nil && time.Since(existing.refreshed) < c.ttl {
		metrics.RecordIndexCacheHit(c.indexURL)
		return nil
	}

	metrics.RecordIndexCacheMiss(c.indexURL)
	c.logger.Debug("listing files", zap.String("project", normalized))

	var resp *http.Response
	c.indexMu.Lock()
	indexStale := !c.haveIndex || time.Since(c.indexAt) >= c.ttl
	c.indexMu.Unlock()

	if indexStale {
		speculativeURL, err := resolveURL(c.indexURL, normalized+"/")
		if err == nil {
			req, reqErr := http.NewRequest(http.MethodGet, speculativeURL, nil)
			if reqErr == nil {
				req.Header.Set("Accept", acceptHeader)
				if r, doErr := c.client.Do(req); doErr == nil {
					resp = r
				}
			}
		}
	}

	if resp == nil || resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp != nil {
			resp.Body.Close()
		}
		c.indexMu.Lock()
		if err := c.refreshProjectList(); err != nil {
			c.indexMu.Unlock()
			return err
		}
		href, ok := c.names[normalized]
		c.indexMu.Unlock()
		if !ok {
			return &NotFound{Name: normalized}
		}

		target, err := resolveURL(c.indexURL, href)
		if err != nil {
			return fmt.Errorf("resolving project URL for %q: %w", normalized, err)
		}
		req, err := http.NewRequest(http.MethodGet, target, nil)
		if err != nil {
			return fmt.Errorf("building file-list request: %w", err)
		}
		req.Header.Set("Accept", acceptHeader)
		r, err := c.client.Do(req)
		if err != nil {
			return &util.UpstreamFailure{URL: target, Err: err}
		}
		if r.StatusCode != http.StatusOK {
			r.Body.Close()
			return &util.UpstreamFailure{URL: target, Err: fmt.Errorf("status %d", r.StatusCode)}
		}
		resp = r
	}
	defer resp.Body.Close()

	files := make(map[string]*model.File)
	requestURL := c.indexURL
	if resp.Request != nil && resp.Request.URL != nil {
		requestURL = resp.Request.URL.String()
	}

	limited := util.NewLimitedReader(resp.Body, maxIndexResponseBytes)

	var list []*model.File
	var err error
	if isJSONContentType(resp.Header.Get("Content-Type")) {
		list, err = model.ParseJSON(limited, requestURL, c.logger)
	} else {
		list, err = model.ParseHTML(limited, requestURL, c.logger)
	}
	if err != nil {
		return &util.UpstreamFailure{URL: requestURL, Err: fmt.Errorf("parsing file list for %q: %w", normalized, err)}
	}
	for _, f := range list {
		files[f.Name] = f
	}

	c.projectsMu.Lock()
	c.projects[normalized] = &project{files: files, refreshed: time.Now()}
	c.projectsMu.Unlock()
	c.logger.Debug("finished listing files", zap.String("project", normalized), zap.Int("count", len(files)))
	return nil
}

// GetFileURL resolves fileName within projectName to the absolute
// upstream URL that serves its bytes (or, for a "<file>.metadata"
// pseudo-file, the URL of its PEP 658 sibling resource).
func (c *IndexCache) GetFileURL(projectName, fileName string) (string, error) {
	normalized := model.NormalizeName(projectName)
	if _, err := c.ListFiles(normalized); err != nil {
		return "", err
	}

	isMetadata := strings.HasSuffix(fileName, ".metadata")
	lookupName := fileName
	if isMetadata {
		lookupName = strings.TrimSuffix(fileName, ".metadata")
	}

	c.projectsMu.Lock()
	p := c.projects[normalized]
	c.projectsMu.Unlock()
	file, ok := p.files[lookupName]
	if !ok {
		return "", &NotFound{Name: fileName}
	}

	if !isMetadata {
		return file.URL, nil
	}
	u, err := url.Parse(file.URL)
	if err != nil {
		return "", fmt.Errorf("parsing file URL %q: %w", file.URL, err)
	}
	u.Path += ".metadata"
	return u.String(), nil
}

// InvalidateList drops the cached project list, forcing the next
// ListProjects call to refresh it. A no-op while a refresh is already
// in flight, matching the upstream's "don't fight a concurrent update"
// semantics.
func (c *IndexCache) InvalidateList() {
	if !c.indexMu.TryLock() {
		c.logger.Info("index already undergoing update", zap.String("index_url", c.indexURL))
		return
	}
	defer c.indexMu.Unlock()
	c.haveIndex = false
	c.names = make(map[string]string)
}

// InvalidateProject drops the cached file listing for the named
// project. A no-op while that project's listing is already being
// refreshed.
func (c *IndexCache) InvalidateProject(projectName string) {
	normalized := model.NormalizeName(projectName)
	if c.projectLocks.Locked(normalized) {
		c.logger.Info("project already undergoing update", zap.String("project", normalized))
		return
	}
	c.projectsMu.Lock()
	delete(c.projects, normalized)
	c.projectsMu.Unlock()
}

func resolveURL(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := b.Parse(ref)
	if err != nil {
		return "", err
	}
	return r.String(), nil
}

func isJSONContentType(contentType string) bool {
	mediaType := contentType
	if idx := strings.IndexByte(contentType, ';'); idx >= 0 {
		mediaType = contentType[:idx]
	}
	mediaType = strings.TrimSpace(mediaType)
	return strings.Contains(mediaType, "json")
}
