package indexcache

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

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

func TestListProjectsParsesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.pypi.simple.v1+json")
		w.Write([]byte(`{"meta":{"api-version":"1.0"},"projects":[{"name":"NumPy"},{"name":"Flask_Login"}]}`))
	}))
	defer srv.Close()

	ic := New(srv.URL+"/simple/", time.Minute, newTestClient(t), nil)
	names, err := ic.ListProjects()
	if err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	want := map[string]bool{"numpy": true, "flask-login": true}
	if len(names) != 2 {
		t.Fatalf("expected 2 names, got %v", names)
	}
	for _, n := range names {
		if !want[n] {
			t.Errorf("unexpected name %q", n)
		}
	}
}

func TestListProjectsParsesHTML(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<a href="numpy/">numpy</a>`))
	}))
	defer srv.Close()

	ic := New(srv.URL+"/simple/", time.Minute, newTestClient(t), nil)
	if _, err := ic.ListProjects(); err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	if _, err := ic.ListProjects(); err != nil {
		t.Fatalf("ListProjects (cached): %v", err)
	}
	if hits != 1 {
		t.Errorf("expected cached listing to avoid a second fetch, got %d hits", hits)
	}
}

func TestListProjectsRefetchesAfterTTL(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<a href="numpy/">numpy</a>`))
	}))
	defer srv.Close()

	ic := New(srv.URL+"/simple/", time.Nanosecond, newTestClient(t), nil)
	if _, err := ic.ListProjects(); err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	time.Sleep(time.Millisecond)
	if _, err := ic.ListProjects(); err != nil {
		t.Fatalf("ListProjects (second): %v", err)
	}
	if hits != 2 {
		t.Errorf("expected TTL expiry to trigger a refetch, got %d hits", hits)
	}
}

func TestListFilesSpeculativeFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/simple/numpy/" {
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(`<a href="https://files.example.org/numpy-1.0.tar.gz#sha256=abc">numpy-1.0.tar.gz</a>`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	ic := New(srv.URL+"/simple/", time.Minute, newTestClient(t), nil)
	files, err := ic.ListFiles("numpy")
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(files) != 1 || files[0].Name != "numpy-1.0.tar.gz" {
		t.Fatalf("unexpected files: %+v", files)
	}
}

func TestListFilesFallsBackToProjectListWhenNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/simple/":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(`<a href="numpy-project/">numpy</a>`))
		case "/simple/numpy-project/":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(`<a href="https://files.example.org/numpy-1.0.tar.gz">numpy-1.0.tar.gz</a>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ic := New(srv.URL+"/simple/", time.Minute, newTestClient(t), nil)
	files, err := ic.ListFiles("numpy")
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 file, got %d", len(files))
	}
}

func TestListFilesNotFoundForUnknownProject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/simple/" {
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(``))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	ic := New(srv.URL+"/simple/", time.Minute, newTestClient(t), nil)
	_, err := ic.ListFiles("ghost")
	if err == nil {
		t.Fatal("expected NotFound error")
	}
	if _, ok := err.(*NotFound); !ok {
		t.Fatalf("expected *NotFound, got %T: %v", err, err)
	}
}

func TestGetFileURLMetadataSuffix(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<a href="https://files.example.org/pkg/numpy-1.0.tar.gz">numpy-1.0.tar.gz</a>`))
	}))
	defer srv.Close()

	ic := New(srv.URL+"/simple/", time.Minute, newTestClient(t), nil)
	url, err := ic.GetFileURL("numpy", "numpy-1.0.tar.gz.metadata")
	if err != nil {
		t.Fatalf("GetFileURL: %v", err)
	}
	if url != "https://files.example.org/pkg/numpy-1.0.tar.gz.metadata" {
		t.Errorf("unexpected metadata URL: %q", url)
	}
}

func TestInvalidateListForcesRefresh(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<a href="numpy/">numpy</a>`))
	}))
	defer srv.Close()

	ic := New(srv.URL+"/simple/", time.Hour, newTestClient(t), nil)
	if _, err := ic.ListProjects(); err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	ic.InvalidateList()
	if _, err := ic.ListProjects(); err != nil {
		t.Fatalf("ListProjects (after invalidate): %v", err)
	}
	if hits != 2 {
		t.Errorf("expected invalidate to force a refetch, got %d hits", hits)
	}
}

func TestInvalidateProjectForcesRefresh(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/simple/numpy/" {
			hits++
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(`<a href="https://files.example.org/numpy-1.0.tar.gz">numpy-1.0.tar.gz</a>`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	ic := New(srv.URL+"/simple/", time.Hour, newTestClient(t), nil)
	if _, err := ic.ListFiles("numpy"); err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	ic.InvalidateProject("numpy")
	if _, err := ic.ListFiles("numpy"); err != nil {
		t.Fatalf("ListFiles (after invalidate): %v", err)
	}
	if hits != 2 {
		t.Errorf("expected invalidate to force a refetch, got %d hits", hits)
	}
}
