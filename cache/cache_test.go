package cache

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"go.uber.org/zap/zaptest"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"peo/config"
)

type site struct {
	*httptest.Server
	hits  atomic.Int32
	agent atomic.Value
}

func newSite(t *testing.T) *site {
	t.Helper()
	s := &site{}
	mux := http.NewServeMux()
	mux.HandleFunc("/problem=1", func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		s.agent.Store(r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html>one</html>"))
	})
	mux.HandleFunc("/empty", func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		http.Redirect(w, r, "/problem=1", http.StatusFound)
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		http.Error(w, "nope", http.StatusInternalServerError)
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func openCache(t *testing.T) (*Cache, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "http_cache.sqlite3")
	c, err := Open(path, &config.SourceConfig{UserAgent: "peo-test"}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, path
}

func TestRetrieve_CachesResponse(t *testing.T) {
	s := newSite(t)
	c, _ := openCache(t)
	ctx := context.Background()
	url := s.URL + "/problem=1"

	for range 3 {
		data, err := c.Retrieve(ctx, url, Options{})
		if err != nil {
			t.Fatalf("Retrieve() error = %v", err)
		}
		if string(data) != "<html>one</html>" {
			t.Fatalf("Retrieve() = %q", data)
		}
	}
	if n := s.hits.Load(); n != 1 {
		t.Errorf("site was hit %d times, want 1", n)
	}
	if ua := s.agent.Load(); ua != "peo-test" {
		t.Errorf("User-Agent = %v", ua)
	}

	// cache only serves stored data
	if _, err := c.Retrieve(ctx, url, Options{CacheOnly: true}); err != nil {
		t.Errorf("cache only Retrieve() error = %v", err)
	}
	if n := s.hits.Load(); n != 1 {
		t.Errorf("cache only mode went to network")
	}
}

func TestRetrieve_Force(t *testing.T) {
	s := newSite(t)
	c, path := openCache(t)
	ctx := context.Background()
	url := s.URL + "/problem=1"

	for range 2 {
		if _, err := c.Retrieve(ctx, url, Options{Force: true}); err != nil {
			t.Fatalf("Retrieve() error = %v", err)
		}
	}
	if n := s.hits.Load(); n != 2 {
		t.Errorf("site was hit %d times, want 2", n)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if n := countRows(t, path, url); n != 1 {
		t.Errorf("cache keeps %d rows for url, want 1", n)
	}
}

func TestRetrieve_Disable(t *testing.T) {
	s := newSite(t)
	c, path := openCache(t)
	ctx := context.Background()
	url := s.URL + "/problem=1"

	for range 2 {
		if _, err := c.Retrieve(ctx, url, Options{Disable: true}); err != nil {
			t.Fatalf("Retrieve() error = %v", err)
		}
	}
	if n := s.hits.Load(); n != 2 {
		t.Errorf("site was hit %d times, want 2", n)
	}
	if _, err := c.Retrieve(ctx, url, Options{CacheOnly: true}); !errors.Is(err, ErrNotCached) {
		t.Errorf("disabled cache stored data, err = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if n := countRows(t, path, url); n != 0 {
		t.Errorf("cache keeps %d rows for url, want 0", n)
	}
}

func TestRetrieve_Errors(t *testing.T) {
	s := newSite(t)
	c, _ := openCache(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		path   string
		opts   Options
		target error
		status int
	}{
		{"cache miss", "/problem=1", Options{CacheOnly: true}, ErrNotCached, 0},
		{"empty body", "/empty", Options{}, ErrMissingData, 0},
		{"redirect", "/moved", Options{}, ErrMissingData, 0},
		{"server error", "/broken", Options{}, nil, http.StatusInternalServerError},
		{"not found", "/absent", Options{}, nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := c.Retrieve(ctx, s.URL+tt.path, tt.opts)
			if err == nil {
				t.Fatalf("Retrieve() = %q, want error", data)
			}
			if tt.target != nil && !errors.Is(err, tt.target) {
				t.Errorf("error = %v, want %v", err, tt.target)
			}
			if tt.status != 0 {
				var se *StatusError
				if !errors.As(err, &se) || se.Code != tt.status {
					t.Errorf("error = %v, want status %d", err, tt.status)
				}
			}
		})
	}
	if n := s.hits.Load(); n != 3 {
		t.Errorf("site was hit %d times, want 3", n)
	}
}

func TestOpen_Reopen(t *testing.T) {
	s := newSite(t)
	c, path := openCache(t)
	url := s.URL + "/problem=1"
	if _, err := c.Retrieve(context.Background(), url, Options{}); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	c, err := Open(path, &config.SourceConfig{}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer c.Close()
	data, err := c.Retrieve(context.Background(), url, Options{CacheOnly: true})
	if err != nil || string(data) != "<html>one</html>" {
		t.Errorf("Retrieve() after reopen = %q, %v", data, err)
	}
}

func countRows(t *testing.T, path, url string) int {
	t.Helper()
	conn, err := sqlite.OpenConn(path, sqlite.OpenReadOnly)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	var n int
	err = sqlitex.Execute(conn, `SELECT count(*) FROM http_cache WHERE request_url = ?`,
		&sqlitex.ExecOptions{
			Args: []any{url},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				n = stmt.ColumnInt(0)
				return nil
			},
		})
	if err != nil {
		t.Fatal(err)
	}
	return n
}
