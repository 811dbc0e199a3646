// Package cache keeps retrieved site pages and resources in a local sqlite
// database so documents can be rebuilt without touching the network.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"peo/config"
)

var (
	// ErrNotCached is returned in cache only mode when requested url has no
	// usable cached data.
	ErrNotCached = errors.New("not in cache")
	// ErrMissingData is returned when site answers without payload or
	// redirects, which is how absent pages look like.
	ErrMissingData = errors.New("missing data")
)

// StatusError reports unexpected HTTP status.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d", e.URL, e.Code)
}

// Options control single retrieval.
type Options struct {
	// CacheOnly never goes to network, miss is reported as ErrNotCached.
	CacheOnly bool
	// Force ignores cached data and always fetches.
	Force bool
	// Disable bypasses cache completely: nothing is read or stored.
	Disable bool
}

const (
	schema = `CREATE TABLE IF NOT EXISTS http_cache (
	request_timestamp datetime,
	request_url text,
	request_headers dictionary,
	response_headers dictionary,
	response_data blob
);`
	// layout python isoformat() produces for timestamps with microseconds
	stampLayout = "2006-01-02T15:04:05.000000"
)

// Cache is page cache backed by sqlite. It is not safe for concurrent use.
type Cache struct {
	conn      *sqlite.Conn
	client    *http.Client
	userAgent string
	log       *zap.Logger
}

// Open opens (creating if necessary) cache database at path.
func Open(path string, cfg *config.SourceConfig, log *zap.Logger) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("unable to create cache directory: %w", err)
	}

	conn, err := sqlite.OpenConn(path, sqlite.OpenReadWrite, sqlite.OpenCreate)
	if err != nil {
		return nil, fmt.Errorf("unable to open cache database (%s): %w", path, err)
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("unable to prepare cache database (%s): %w", path, err)
	}

	return &Cache{
		conn: conn,
		client: &http.Client{
			Timeout: cfg.Timeout,
			// redirects are meaningful answers (missing pages), do not follow
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		userAgent: cfg.UserAgent,
		log:       log.Named("cache"),
	}, nil
}

// Close releases database.
func (c *Cache) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Retrieve returns data for url, from cache when possible.
func (c *Cache) Retrieve(ctx context.Context, url string, opts Options) ([]byte, error) {
	if !opts.Disable && !opts.Force {
		data, err := c.lookup(url)
		if err != nil {
			return nil, err
		}
		if len(data) > 0 {
			c.log.Debug("Cache hit", zap.String("url", url), zap.Int("size", len(data)))
			return data, nil
		}
	}

	if opts.CacheOnly {
		return nil, fmt.Errorf("%s: %w", url, ErrNotCached)
	}
	return c.fetch(ctx, url, !opts.Disable)
}

func (c *Cache) fetch(ctx context.Context, url string, keep bool) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to prepare request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	stamp := time.Now()
	c.log.Debug("Fetching", zap.String("url", url))
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusFound:
		return nil, fmt.Errorf("%s: HTTP 302 (object moved temporarily): %w", url, ErrMissingData)
	default:
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("unable to read response from %s: %w", url, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%s: missing response payload: %w", url, ErrMissingData)
	}

	if keep {
		if err := c.store(url, stamp, req.Header, resp.Header, data); err != nil {
			return nil, err
		}
	}
	return data, nil
}

func (c *Cache) lookup(url string) ([]byte, error) {
	var data []byte
	err := sqlitex.Execute(c.conn,
		`SELECT response_data FROM http_cache WHERE request_url = ? ORDER BY rowid DESC LIMIT 1`,
		&sqlitex.ExecOptions{
			Args: []any{url},
			ResultFunc: func(stmt *sqlite.Stmt) (err error) {
				data, err = io.ReadAll(stmt.ColumnReader(0))
				return err
			},
		})
	if err != nil {
		return nil, fmt.Errorf("unable to query cache for %s: %w", url, err)
	}
	return data, nil
}

func (c *Cache) store(url string, stamp time.Time, reqHeaders, respHeaders http.Header, data []byte) (err error) {
	defer sqlitex.Save(c.conn)(&err)

	reqJSON, err := encodeHeaders(reqHeaders)
	if err != nil {
		return err
	}
	respJSON, err := encodeHeaders(respHeaders)
	if err != nil {
		return err
	}

	if err = sqlitex.Execute(c.conn, `DELETE FROM http_cache WHERE request_url = ?`,
		&sqlitex.ExecOptions{Args: []any{url}}); err != nil {
		return fmt.Errorf("unable to replace cache entry for %s: %w", url, err)
	}
	err = sqlitex.Execute(c.conn,
		`INSERT INTO http_cache (request_timestamp, request_url, request_headers, response_headers, response_data)
		VALUES (:stamp, :url, :req, :resp, :data)`,
		&sqlitex.ExecOptions{Named: map[string]any{
			":stamp": stamp.Format(stampLayout),
			":url":   url,
			":req":   reqJSON,
			":resp":  respJSON,
			":data":  data,
		}})
	if err != nil {
		return fmt.Errorf("unable to store cache entry for %s: %w", url, err)
	}
	c.log.Debug("Stored", zap.String("url", url), zap.Int("size", len(data)))
	return nil
}

// encodeHeaders stores headers as flat json object, multiple values are
// joined the way they would be sent on the wire.
func encodeHeaders(h http.Header) ([]byte, error) {
	flat := make(map[string]string, len(h))
	for k, v := range h {
		flat[k] = strings.Join(v, ", ")
	}
	data, err := json.Marshal(flat)
	if err != nil {
		return nil, fmt.Errorf("unable to encode headers: %w", err)
	}
	return data, nil
}
