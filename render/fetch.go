package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"peo/cache"
)

// Fetch is "fetch" command action: it fills page cache with problem pages.
func Fetch(ctx context.Context, cmd *cli.Command) (err error) {
	s, closeCache, err := prepare(ctx, cmd, "fetch")
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, closeCache())
	}()

	s.log.Info("Fetching starting", zap.String("destination", s.opts.Dest), zap.String("site", s.cfg.Source.BaseURL))
	defer func(start time.Time) {
		s.log.Info("Fetching completed", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	return s.fetch(ctx)
}

func (s *session) fetch(ctx context.Context) error {
	ids := s.opts.Problems
	if len(ids) == 0 {
		// list of recent problems must never come from cache
		data, err := s.retrieve(ctx, "recent", cache.Options{Disable: true})
		if err != nil {
			return fmt.Errorf("unable to get list of recent problems: %w", err)
		}
		latest, err := latestProblem(data)
		if err != nil {
			return err
		}
		s.log.Info("Latest problem found", zap.Int("id", latest))
		for id := 1; id <= latest; id++ {
			ids = append(ids, id)
		}
	}

	var fetched int
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.retrieve(ctx, "problem="+strconv.Itoa(id), s.cacheOptions()); err != nil {
			if errors.Is(err, cache.ErrMissingData) || errors.Is(err, cache.ErrNotCached) {
				s.log.Error("Failed to retrieve problem", zap.Int("id", id), zap.Error(err))
				continue
			}
			return fmt.Errorf("problem %d: %w", id, err)
		}
		fetched++
		s.log.Debug("Problem retrieved", zap.Int("id", id))
	}
	s.log.Info("Problems retrieved", zap.Int("requested", len(ids)), zap.Int("retrieved", fetched))
	return nil
}

// latestProblem returns largest problem id listed on recent problems page.
// First cell of the id column is table header.
func latestProblem(data []byte) (int, error) {
	r, err := charset.NewReader(bytes.NewReader(data), "text/html")
	if err != nil {
		return 0, fmt.Errorf("unable to detect page encoding: %w", err)
	}
	doc, err := html.Parse(r)
	if err != nil {
		return 0, fmt.Errorf("unable to parse recent problems page: %w", err)
	}

	var table *html.Node
	for n := range doc.Descendants() {
		if n.Type == html.ElementNode && attrValue(n, "id") == "problems_table" {
			table = n
			break
		}
	}
	if table == nil {
		return 0, errors.New("recent problems page has no problems table")
	}

	var latest, cells int
	for n := range table.Descendants() {
		if n.Type != html.ElementNode || !hasClass(n, "id_column") {
			continue
		}
		cells++
		if cells == 1 {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(textContent(n)))
		if err != nil {
			return 0, fmt.Errorf("unexpected problem id in recent problems table: %w", err)
		}
		latest = max(latest, id)
	}
	if latest == 0 {
		return 0, errors.New("recent problems table lists no problems")
	}
	return latest, nil
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	return slices.Contains(strings.Fields(attrValue(n, "class")), class)
}

func textContent(n *html.Node) string {
	var b strings.Builder
	for d := range n.Descendants() {
		if d.Type == html.TextNode {
			b.WriteString(d.Data)
		}
	}
	return b.String()
}
