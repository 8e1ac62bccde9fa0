package aggregator

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kexi/pypi-cache-proxy/internal/filecache"
	"github.com/kexi/pypi-cache-proxy/internal/indexcache"
	"github.com/kexi/pypi-cache-proxy/internal/upstream"
)

func newTestClient(t *testing.T) *upstream.Client {
	t.Helper()
	c, err := upstream.New(upstream.DefaultConfig())
	if err != nil {
		t.Fatalf("upstream.New: %v", err)
	}
	return c
}

func newTestFileCache(t *testing.T) *filecache.FileCache {
	t.Helper()
	fc, err := filecache.New(filecache.Config{MaxSize: 1 << 20, DownloadTimeout: time.Second}, newTestClient(t), nil)
	if err != nil {
		t.Fatalf("filecache.New: %v", err)
	}
	t.Cleanup(func() { fc.Close() })
	return fc
}

func TestListProjectsUnionsAndSorts(t *testing.T) {
	rootSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<a href="zeta/">zeta</a><a href="alpha/">alpha</a>`))
	}))
	defer rootSrv.Close()
	extraSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<a href="alpha/">alpha</a><a href="beta/">beta</a>`))
	}))
	defer extraSrv.Close()

	client := newTestClient(t)
	root := indexcache.New(rootSrv.URL+"/simple/", time.Minute, client, nil)
	extra := indexcache.New(extraSrv.URL+"/simple/", time.Minute, client, nil)
	agg := New(root, []*indexcache.IndexCache{extra}, newTestFileCache(t), nil)

	names, err := agg.ListProjects()
	if err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	want := []string{"alpha", "beta", "zeta"}
	if len(names) != len(want) {
		t.Fatalf("got %v, want %v", names, want)
	}
	for i, n := range want {
		if names[i] != n {
			t.Errorf("names[%d] = %q, want %q", i, names[i], n)
		}
	}
}

func TestListFilesRootWinsExtraAppendsNewNames(t *testing.T) {
	rootSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<a href="https://root.example.org/numpy-1.0.tar.gz">numpy-1.0.tar.gz</a>`))
	}))
	defer rootSrv.Close()
	extraSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<a href="https://extra.example.org/numpy-1.0.tar.gz">numpy-1.0.tar.gz</a><a href="https://extra.example.org/numpy-0.9.tar.gz">numpy-0.9.tar.gz</a>`))
	}))
	defer extraSrv.Close()

	client := newTestClient(t)
	root := indexcache.New(rootSrv.URL+"/simple/", time.Minute, client, nil)
	extra := indexcache.New(extraSrv.URL+"/simple/", time.Minute, client, nil)
	agg := New(root, []*indexcache.IndexCache{extra}, newTestFileCache(t), nil)

	files, err := agg.ListFiles("numpy")
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 distinct filenames, got %d: %+v", len(files), files)
	}
	for _, f := range files {
		if f.Name == "numpy-1.0.tar.gz" && f.URL != "https://root.example.org/numpy-1.0.tar.gz" {
			t.Errorf("expected root's URL to win for a name present in both, got %q", f.URL)
		}
	}
}

func TestListFilesNotFoundOnlyWhenAllFail(t *testing.T) {
	notFoundSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/simple/" {
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(``))
			return
		}
		http.NotFound(w, r)
	}))
	defer notFoundSrv.Close()

	client := newTestClient(t)
	root := indexcache.New(notFoundSrv.URL+"/simple/", time.Minute, client, nil)
	agg := New(root, nil, newTestFileCache(t), nil)

	_, err := agg.ListFiles("ghost")
	if err == nil {
		t.Fatal("expected NotFound error")
	}
	if _, ok := err.(*NotFound); !ok {
		t.Fatalf("expected *NotFound, got %T: %v", err, err)
	}
}

func TestListFilesPropagatesRootUpstreamFailureWithoutConsultingExtras(t *testing.T) {
	rootSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer rootSrv.Close()

	extraHit := false
	extraSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		extraHit = true
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<a href="https://extra.example.org/numpy-1.0.tar.gz">numpy-1.0.tar.gz</a>`))
	}))
	defer extraSrv.Close()

	client := newTestClient(t)
	root := indexcache.New(rootSrv.URL+"/simple/", time.Minute, client, nil)
	extra := indexcache.New(extraSrv.URL+"/simple/", time.Minute, client, nil)
	agg := New(root, []*indexcache.IndexCache{extra}, newTestFileCache(t), nil)

	_, err := agg.ListFiles("numpy")
	if err == nil {
		t.Fatal("expected the root's upstream failure to propagate")
	}
	if _, ok := err.(*NotFound); ok {
		t.Fatalf("expected an upstream failure, not NotFound: %v", err)
	}
	if extraHit {
		t.Error("extra index must not be consulted when root fails with something other than NotFound")
	}
}

func TestGetFileFallsBackToExtraIndex(t *testing.T) {
	rootSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/simple/" {
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(``))
			return
		}
		http.NotFound(w, r)
	}))
	defer rootSrv.Close()

	var fileSrv *httptest.Server
	extraSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<a href="` + fileSrv.URL + `/numpy-1.0.tar.gz">numpy-1.0.tar.gz</a>`))
	}))
	defer extraSrv.Close()
	fileSrv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("bytes"))
	}))
	defer fileSrv.Close()

	client := newTestClient(t)
	root := indexcache.New(rootSrv.URL+"/simple/", time.Minute, client, nil)
	extra := indexcache.New(extraSrv.URL+"/simple/", time.Minute, client, nil)
	agg := New(root, []*indexcache.IndexCache{extra}, newTestFileCache(t), nil)

	path, err := agg.GetFile("numpy", "numpy-1.0.tar.gz")
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if path == "" {
		t.Fatal("expected a resolved path")
	}
}

func TestGetFilePropagatesRootUpstreamFailureWithoutConsultingExtras(t *testing.T) {
	rootSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer rootSrv.Close()

	extraHit := false
	var fileSrv *httptest.Server
	extraSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		extraHit = true
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<a href="` + fileSrv.URL + `/numpy-1.0.tar.gz">numpy-1.0.tar.gz</a>`))
	}))
	defer extraSrv.Close()
	fileSrv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("bytes"))
	}))
	defer fileSrv.Close()

	client := newTestClient(t)
	root := indexcache.New(rootSrv.URL+"/simple/", time.Minute, client, nil)
	extra := indexcache.New(extraSrv.URL+"/simple/", time.Minute, client, nil)
	agg := New(root, []*indexcache.IndexCache{extra}, newTestFileCache(t), nil)

	_, err := agg.GetFile("numpy", "numpy-1.0.tar.gz")
	if err == nil {
		t.Fatal("expected the root's upstream failure to propagate")
	}
	if _, ok := err.(*NotFound); ok {
		t.Fatalf("expected an upstream failure, not NotFound: %v", err)
	}
	if extraHit {
		t.Error("extra index must not be consulted when root fails with something other than NotFound")
	}
}

func TestInvalidateFanOut(t *testing.T) {
	rootHits, extraHits := 0, 0
	rootSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rootHits++
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<a href="numpy/">numpy</a>`))
	}))
	defer rootSrv.Close()
	extraSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		extraHits++
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<a href="numpy/">numpy</a>`))
	}))
	defer extraSrv.Close()

	client := newTestClient(t)
	root := indexcache.New(rootSrv.URL+"/simple/", time.Hour, client, nil)
	extra := indexcache.New(extraSrv.URL+"/simple/", time.Hour, client, nil)
	agg := New(root, []*indexcache.IndexCache{extra}, newTestFileCache(t), nil)

	if _, err := agg.ListProjects(); err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	agg.InvalidateList()
	if _, err := agg.ListProjects(); err != nil {
		t.Fatalf("ListProjects (after invalidate): %v", err)
	}
	if rootHits != 2 || extraHits != 2 {
		t.Errorf("expected invalidate to fan out to both indexes, got root=%d extra=%d", rootHits, extraHits)
	}
}
