package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gosimple/slug"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"peo/cache"
	"peo/document"
	"peo/images"
)

// Render is "render" command action: it builds the document from cached
// pages.
func Render(ctx context.Context, cmd *cli.Command) (err error) {
	s, closeCache, err := prepare(ctx, cmd, "render")
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, closeCache())
	}()

	s.log.Info("Rendering starting", zap.String("destination", s.opts.Dest), zap.Bool("spaced", s.opts.Spaced))
	defer func(start time.Time) {
		s.log.Info("Rendering completed", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	_, err = s.render(ctx)
	return err
}

// render builds the document, returns path to produced LaTeX source.
func (s *session) render(ctx context.Context) (string, error) {
	docCfg := s.cfg.Document
	docCfg.Spaced = s.opts.Spaced
	b := document.New(&docCfg, s.url(""), s.log)

	if err := s.renderProblems(ctx, b); err != nil {
		return "", err
	}
	if err := s.renderAppendices(ctx, b); err != nil {
		return "", err
	}

	animated, err := s.processImages(ctx, b)
	if err != nil {
		return "", err
	}
	if err := s.processAttachments(ctx, b); err != nil {
		return "", err
	}
	b.ProcessAnimatedResources(animated)

	if err := linkAssets(s.cfg.Document.AssetsDir, s.opts.Dest, s.log); err != nil {
		return "", err
	}

	name := document.BuildName(s.cfg.Document.BuildName, s.opts.Spaced)
	texPath, err := b.Write(s.opts.Dest, name)
	if err != nil {
		return "", err
	}
	s.rpt.Store(filepath.Base(texPath), texPath)
	s.rpt.Store(document.DebugClassesName, filepath.Join(s.opts.Dest, document.DebugClassesName))
	s.rpt.Store(document.DebugOutputName, filepath.Join(s.opts.Dest, document.DebugOutputName))
	if dir := s.cfg.Document.OverridesDir; dir != "" {
		s.rpt.Store("overrides", dir)
	}

	if s.opts.PDF {
		if err := s.buildPDF(ctx, texPath); err != nil {
			return "", err
		}
	}
	return texPath, nil
}

// renderProblems appends explicitly requested problems or every cached
// problem starting from the first one until cache reports a miss.
func (s *session) renderProblems(ctx context.Context, b *document.Builder) error {
	explicit := len(s.opts.Problems) > 0
	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		id := i + 1
		if explicit {
			if i >= len(s.opts.Problems) {
				break
			}
			id = s.opts.Problems[i]
		}

		markup, ok, err := s.readOverride(strconv.Itoa(id))
		if err != nil {
			return err
		}
		if ok {
			s.log.Debug("Using problem override", zap.Int("id", id))
			b.AppendProblem(id, markup)
			continue
		}

		// only cache is consulted, the first miss ends the document
		data, err := s.retrieve(ctx, "problem="+strconv.Itoa(id), cache.Options{CacheOnly: true})
		if err != nil {
			if errors.Is(err, cache.ErrNotCached) {
				s.log.Info("No more cached problems", zap.Int("id", id))
				break
			}
			return err
		}
		if err := b.ProcessProblemHTML(id, data); err != nil {
			return err
		}
		s.log.Debug("Problem rendered", zap.Int("id", id))
	}
	return nil
}

// renderAppendices appends every referenced about page, appendices could
// reference more appendices.
func (s *session) renderAppendices(ctx context.Context, b *document.Builder) error {
	pages := &b.Refs().Appendices
	for i := 0; i < pages.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		p := pages.At(i)

		markup, ok, err := s.readOverride(overrideName(p))
		if err != nil {
			return err
		}
		if ok {
			s.log.Debug("Using appendix override", zap.String("path", p))
			b.AppendAbout(markup)
			continue
		}

		data, err := s.retrieve(ctx, p, s.cacheOptions())
		if err != nil {
			if isUnavailable(err) {
				s.log.Error("Unable to retrieve appendix, skipping", zap.String("path", p), zap.Error(err))
				continue
			}
			return err
		}
		if err := b.ProcessAboutHTML(p, data); err != nil {
			return err
		}
	}
	return nil
}

// processImages stores every referenced image in output directory and
// prepares PNG variants for formats LaTeX could not include directly.
func (s *session) processImages(ctx context.Context, b *document.Builder) ([]document.AnimatedResource, error) {
	var animated []document.AnimatedResource
	for _, p := range b.Refs().Images.Sorted() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rel, err := s.writeResource(ctx, p, false)
		if err != nil {
			if isUnavailable(err) {
				s.log.Warn("Unable to retrieve image, leaving as is", zap.String("path", p), zap.Error(err))
				continue
			}
			return nil, err
		}

		v, err := images.Rasterize(filepath.Join(s.opts.Dest, rel), s.log)
		if err != nil {
			s.log.Warn("Unable to rasterize image, leaving as is", zap.String("path", p), zap.Error(err))
			continue
		}
		if v == nil {
			continue
		}
		animated = append(animated, document.AnimatedResource{
			URLPath:  p,
			FilePath: filepath.ToSlash(rel),
			Frames:   v.Info.Frames,
		})
	}
	return animated, nil
}

// processAttachments stores attachments in the root of output directory
// where embedding command expects them.
func (s *session) processAttachments(ctx context.Context, b *document.Builder) error {
	for _, p := range b.Refs().Attachments.Sorted() {
		if _, err := s.writeResource(ctx, p, true); err != nil {
			if isUnavailable(err) {
				s.log.Warn("Unable to retrieve attachment", zap.String("path", p), zap.Error(err))
				continue
			}
			return err
		}
	}
	return nil
}

func (s *session) buildPDF(ctx context.Context, texPath string) error {
	pdf := s.cfg.Document.PDF
	args := append(append([]string{}, pdf.Args...), filepath.Base(texPath))

	s.log.Info("Building PDF", zap.String("command", pdf.Command), zap.Strings("args", args))
	stdout, stderr, err := s.runner.Run(ctx, s.opts.Dest, pdf.Command, args...)
	if err != nil {
		s.log.Debug("PDF build output", zap.String("stdout", stdout), zap.String("stderr", stderr))
		return fmt.Errorf("unable to build pdf with %s: %w", pdf.Command, err)
	}
	return nil
}

// overrideName returns override file name for site path in snake case:
// "about=prime_numbers" becomes "about_prime_numbers".
func overrideName(p string) string {
	return strings.ReplaceAll(slug.Make(p), "-", "_")
}

// readOverride reads <name>.tex from overrides directory if it is configured
// and the file exists.
func (s *session) readOverride(name string) (string, bool, error) {
	dir := s.cfg.Document.OverridesDir
	if dir == "" {
		return "", false, nil
	}
	data, err := os.ReadFile(filepath.Join(dir, name+".tex"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("unable to read override: %w", err)
	}
	return string(data), true, nil
}

// linkAssets links static *.tex and *.sty files into output directory,
// existing files are left alone.
func linkAssets(dir, dest string, log *zap.Logger) error {
	if dir == "" {
		return nil
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dest, 0755); err != nil {
		return fmt.Errorf("unable to create output directory: %w", err)
	}

	var files []string
	for _, pattern := range []string{"*.tex", "*.sty"} {
		m, err := filepath.Glob(filepath.Join(abs, pattern))
		if err != nil {
			return err
		}
		files = append(files, m...)
	}

	for _, src := range files {
		dst := filepath.Join(dest, filepath.Base(src))
		if _, err := os.Lstat(dst); err == nil {
			continue
		}
		if err := os.Symlink(src, dst); err != nil {
			return fmt.Errorf("unable to link asset %s: %w", filepath.Base(src), err)
		}
		log.Debug("Asset linked", zap.String("file", filepath.Base(src)))
	}
	return nil
}
