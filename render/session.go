// Package render implements program commands: fetching site pages into the
// cache and building the document from cached pages.
package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"peo/cache"
	"peo/config"
	"peo/state"
)

// Retriever gives access to site pages and resources.
type Retriever interface {
	Retrieve(ctx context.Context, url string, opts cache.Options) ([]byte, error)
}

// Options of a single program run.
type Options struct {
	// Dest is output directory, cache database lives there too unless
	// configured otherwise.
	Dest      string
	Problems  []int
	CacheOnly bool
	Force     bool
	Spaced    bool
	PDF       bool
}

type session struct {
	cfg    *config.Config
	opts   Options
	src    Retriever
	runner CommandRunner
	rpt    *config.Report
	log    *zap.Logger
}

func newSession(cfg *config.Config, opts Options, src Retriever, log *zap.Logger) *session {
	return &session{
		cfg:    cfg,
		opts:   opts,
		src:    src,
		runner: ExecRunner{},
		log:    log,
	}
}

// url returns absolute url for site path.
func (s *session) url(p string) string {
	return strings.TrimSuffix(s.cfg.Source.BaseURL, "/") + "/" + strings.TrimPrefix(p, "/")
}

func (s *session) cacheOptions() cache.Options {
	return cache.Options{CacheOnly: s.opts.CacheOnly, Force: s.opts.Force}
}

func (s *session) retrieve(ctx context.Context, p string, opts cache.Options) ([]byte, error) {
	return s.src.Retrieve(ctx, s.url(p), opts)
}

// localPath maps site path to a relative location inside output directory
// which cannot escape it.
func localPath(p string, flat bool) string {
	p = path.Clean("/" + p)
	if flat {
		return config.CleanFileName(path.Base(p))
	}
	return filepath.FromSlash(strings.TrimPrefix(p, "/"))
}

// writeResource stores site resource in output directory, in its root when
// flat is requested. Returns path relative to output directory.
func (s *session) writeResource(ctx context.Context, p string, flat bool) (string, error) {
	data, err := s.retrieve(ctx, p, s.cacheOptions())
	if err != nil {
		return "", err
	}
	rel := localPath(p, flat)
	full := filepath.Join(s.opts.Dest, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return "", fmt.Errorf("unable to create resource directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0644); err != nil {
		return "", fmt.Errorf("unable to write resource: %w", err)
	}
	return rel, nil
}

// isUnavailable reports errors meaning requested page does not exist or
// could not be obtained, as opposed to local failures.
func isUnavailable(err error) bool {
	var se *cache.StatusError
	return errors.Is(err, cache.ErrNotCached) || errors.Is(err, cache.ErrMissingData) || errors.As(err, &se)
}

// prepare builds session for a command from program state and command line.
// Returned cleanup closes page cache.
func prepare(ctx context.Context, cmd *cli.Command, name string) (*session, func() error, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	env := state.EnvFromContext(ctx)
	log := env.Log.Named(name)

	ids, err := ParseProblemIDs(cmd.String("problems"))
	if err != nil {
		return nil, nil, err
	}

	dest := cmd.Args().Get(0)
	if dest == "" {
		dest = "out"
	}
	if dest, err = filepath.Abs(dest); err != nil {
		return nil, nil, err
	}
	if cmd.Args().Len() > 1 {
		log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[1:]))
	}

	if u := cmd.String("base-url"); u != "" {
		env.Cfg.Source.BaseURL = u
	}

	dbPath := env.Cfg.Cache.Path
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(dest, dbPath)
	}
	c, err := cache.Open(dbPath, &env.Cfg.Source, log)
	if err != nil {
		return nil, nil, err
	}

	s := newSession(env.Cfg, Options{
		Dest:      dest,
		Problems:  ids,
		CacheOnly: cmd.Bool("cache-only"),
		Force:     cmd.Bool("force"),
		Spaced:    cmd.Bool("spaced") || env.Cfg.Document.Spaced,
		PDF:       cmd.Bool("pdf"),
	}, c, log)
	s.rpt = env.Rpt
	return s, c.Close, nil
}
