// Package filecache implements a bounded on-disk cache of downloaded
// package distribution files, with single-flight download coalescing
// and least-frequently-used eviction.
package filecache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/kexi/pypi-cache-proxy/internal/metrics"
	"github.com/kexi/pypi-cache-proxy/internal/upstream"
	"github.com/kexi/pypi-cache-proxy/internal/util"
)

var hostnameNormalizeRe = regexp.MustCompile(`[^a-z0-9]+`)

const keyCacheSize = 8096

// cachedFile is a completed, locally-stored download.
type cachedFile struct {
	path   string
	size   int64
	nHits  int64
	sha256 string
}

// download is an in-flight download. done closes once the download
// finishes, whether it succeeded or failed; err is only meaningful
// after done closes.
type download struct {
	done chan struct{}
	err  error
}

// FileCache caches downloaded distribution files on disk, bounded by
// total byte size, deduplicating concurrent downloads of the same URL
// and evicting least-frequently-used entries to stay under budget.
type FileCache struct {
	maxSize          int64
	cacheDir         string
	cacheDirProvided bool
	downloadTimeout  time.Duration
	client           *upstream.Client
	logger           *zap.Logger

	keyCache *lru.Cache[string, string]

	mu    sync.Mutex
	files map[string]any // *cachedFile or *download

	evictMu sync.Mutex
}

// Config controls how a FileCache is constructed.
type Config struct {
	MaxSize         int64
	CacheDir        string // empty: a temp dir is created and removed on Close
	DownloadTimeout time.Duration
}

// New builds a FileCache. If cfg.CacheDir is empty a temporary directory
// is created and will be removed by Close; if it is user-supplied,
// pre-existing files under it are re-discovered with a zero hit count
// and the directory is left alone on Close.
func New(cfg Config, client *upstream.Client, logger *zap.Logger) (*FileCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = 900 * time.Millisecond
	}

	provided := cfg.CacheDir != ""
	dir := cfg.CacheDir
	if !provided {
		d, err := os.MkdirTemp("", "pypi-cache-proxy-")
		if err != nil {
			return nil, fmt.Errorf("creating temporary cache directory: %w", err)
		}
		dir = d
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving cache directory: %w", err)
	}

	keyCache, err := lru.New[string, string](keyCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating key-derivation cache: %w", err)
	}

	fc := &FileCache{
		maxSize:          cfg.MaxSize,
		cacheDir:         abs,
		cacheDirProvided: provided,
		downloadTimeout:  cfg.DownloadTimeout,
		client:           client,
		logger:           logger,
		keyCache:         keyCache,
		files:            make(map[string]any),
	}
	if err := fc.populateFromExistingCacheDir(); err != nil {
		return nil, err
	}
	return fc, nil
}

func (fc *FileCache) populateFromExistingCacheDir() error {
	return filepath.Walk(fc.cacheDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(fc.cacheDir, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		fc.files[key] = &cachedFile{path: path, size: info.Size(), nHits: 0}
		return nil
	})
}

// Close removes the cache directory if it was not user-supplied.
func (fc *FileCache) Close() error {
	if fc.cacheDirProvided {
		return nil
	}
	fc.logger.Debug("deleting cache directory", zap.String("dir", fc.cacheDir))
	return os.RemoveAll(fc.cacheDir)
}

// getKey derives (and memoizes) the cache key for a file URL: the
// normalized hostname joined with the URL path's components.
func (fc *FileCache) getKey(rawURL string) (string, error) {
	if key, ok := fc.keyCache.Get(rawURL); ok {
		return key, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing file URL %q: %w", rawURL, err)
	}
	host := hostnameNormalizeRe.ReplaceAllString(strings.ToLower(u.Hostname()), "-")
	key := joinCacheKey(host, u.Path)
	fc.keyCache.Add(rawURL, key)
	return key, nil
}

func joinCacheKey(host, p string) string {
	parts := make([]string, 0, 8)
	parts = append(parts, host)
	for _, seg := range strings.Split(p, "/") {
		if seg != "" {
			parts = append(parts, seg)
		}
	}
	return strings.Join(parts, "/")
}

// Get returns a local path serving url's content, downloading it first
// if necessary. If the cache is disabled (max size zero), or the
// caller times out waiting on someone else's in-flight download, or
// the download itself failed, Get returns the original URL instead
// and the caller should redirect there.
func (fc *FileCache) Get(rawURL string) (string, error) {
	if fc.maxSize == 0 {
		return rawURL, nil
	}
	key, err := fc.getKey(rawURL)
	if err != nil {
		return "", err
	}

	for {
		// Check the entry and, if absent, register a new in-flight
		// download in the same critical section: this is what keeps at
		// most one download per key in flight, closing the race a
		// separate check-then-act would leave open.
		fc.mu.Lock()
		entry, ok := fc.files[key]
		var started *download
		if !ok {
			started = &download{done: make(chan struct{})}
			fc.files[key] = started
		}
		fc.mu.Unlock()

		if started != nil {
			go fc.downloadFile(rawURL, key, started)
			fc.evictMu.Lock()
			fc.evictLFU(rawURL)
			fc.evictMu.Unlock()
			continue
		}

		switch v := entry.(type) {
		case *cachedFile:
			fc.mu.Lock()
			v.nHits++
			path := v.path
			fc.mu.Unlock()
			metrics.RecordFileCacheHit()
			return path, nil
		case *download:
			if fc.waitForDownload(key, v) {
				return rawURL, nil
			}
			// fall through and re-check: it should now be a cachedFile
		}
	}
}

// waitForDownload blocks on dl's completion up to downloadTimeout. It
// reports whether the caller should give up and fall back to the
// original URL: true on timeout, or if the download finished without
// ever replacing itself with a cachedFile (meaning it failed).
func (fc *FileCache) waitForDownload(key string, dl *download) bool {
	select {
	case <-dl.done:
	case <-time.After(fc.downloadTimeout):
		return true
	}

	fc.mu.Lock()
	current, stillDownload := fc.files[key].(*download)
	if stillDownload && current == dl {
		// The download finished but never replaced itself with a
		// cachedFile: it failed. Drop it so a future Get retries.
		delete(fc.files, key)
	}
	fc.mu.Unlock()

	if dl.err != nil {
		fc.logger.Error("download failed", zap.String("key", key), zap.Error(dl.err))
		return true
	}
	return false
}

func (fc *FileCache) downloadFile(rawURL, key string, dl *download) {
	defer close(dl.done)

	metrics.RecordFileCacheMiss()
	metrics.IncrementDownloadsInFlight()
	defer metrics.DecrementDownloadsInFlight()

	path := filepath.Join(fc.cacheDir, filepath.FromSlash(key))
	fc.logger.Debug("downloading", zap.String("url", rawURL), zap.String("path", path))

	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		dl.err = err
		metrics.RecordUpstreamRequest("error")
		return
	}
	resp, err := fc.client.Do(req)
	if err != nil {
		dl.err = err
		metrics.RecordUpstreamRequest("error")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 >= 4 {
		dl.err = fmt.Errorf("downloading %s: status %d", rawURL, resp.StatusCode)
		fc.logger.Error("download rejected by upstream", zap.String("url", rawURL), zap.Int("status", resp.StatusCode))
		metrics.RecordUpstreamRequest("error")
		return
	}
	metrics.RecordUpstreamRequest("success")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		dl.err = err
		return
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		dl.err = err
		return
	}
	tmpPath := tmp.Name()
	hasher := sha256.New()
	if _, err := util.CopyBuffer(util.MultiWriter(tmp, hasher), resp.Body, nil); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		dl.err = err
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		dl.err = err
		return
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		dl.err = err
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		dl.err = err
		return
	}

	digest := hex.EncodeToString(hasher.Sum(nil))
	fc.mu.Lock()
	fc.files[key] = &cachedFile{path: path, size: info.Size(), nHits: 0, sha256: digest}
	fc.mu.Unlock()
	fc.logger.Debug("finished downloading", zap.String("url", rawURL), zap.String("sha256", digest))
	metrics.SetFileCacheBytesInUse(float64(fc.bytesInUse()))
}

// bytesInUse returns the total size of all completed cache entries.
func (fc *FileCache) bytesInUse() int64 {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	var total int64
	for _, v := range fc.files {
		if cf, ok := v.(*cachedFile); ok {
			total += cf.size
		}
	}
	return total
}

// evictLFU frees least-frequently-used entries until the cache has
// room for a file the size of the Content-Length reported by a HEAD
// request against url (best-effort; a failed HEAD treats the
// anticipated size as zero). Caller must hold evictMu.
func (fc *FileCache) evictLFU(rawURL string) {
	anticipated := fc.headContentLength(rawURL)

	fc.mu.Lock()
	type candidate struct {
		key string
		cf  *cachedFile
	}
	candidates := make([]candidate, 0, len(fc.files))
	var existing int64
	for k, v := range fc.files {
		if cf, ok := v.(*cachedFile); ok {
			candidates = append(candidates, candidate{key: k, cf: cf})
			existing += cf.size
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].cf.nHits != candidates[j].cf.nHits {
			return candidates[i].cf.nHits < candidates[j].cf.nHits
		}
		return candidates[i].cf.size < candidates[j].cf.size
	})

	i := 0
	for existing+anticipated > fc.maxSize && existing > 0 && i < len(candidates) {
		c := candidates[i]
		i++
		delete(fc.files, c.key)
		existing -= c.cf.size
		if err := os.Remove(c.cf.path); err != nil && !os.IsNotExist(err) {
			fc.logger.Error("failed to remove evicted file", zap.String("path", c.cf.path), zap.Error(err))
		}
		metrics.RecordFileCacheEviction()
	}
	fc.mu.Unlock()
}

func (fc *FileCache) headContentLength(rawURL string) int64 {
	req, err := http.NewRequest(http.MethodHead, rawURL, nil)
	if err != nil {
		return 0
	}
	resp, err := fc.client.Do(req)
	if err != nil {
		return 0
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return 0
	}
	n, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
