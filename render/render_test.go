package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"peo/cache"
	"peo/config"
)

const site = "https://example.test/"

type request struct {
	url  string
	opts cache.Options
}

type fakeSite struct {
	pages    map[string][]byte
	fail     map[string]error
	requests []request
}

func (f *fakeSite) Retrieve(_ context.Context, url string, opts cache.Options) ([]byte, error) {
	f.requests = append(f.requests, request{url: url, opts: opts})
	if err, ok := f.fail[url]; ok {
		return nil, err
	}
	if data, ok := f.pages[strings.TrimPrefix(url, site)]; ok {
		return data, nil
	}
	if opts.CacheOnly {
		return nil, fmt.Errorf("%s: %w", url, cache.ErrNotCached)
	}
	return nil, fmt.Errorf("%s: %w", url, cache.ErrMissingData)
}

func (f *fakeSite) requested(path string) []cache.Options {
	var out []cache.Options
	for _, r := range f.requests {
		if r.url == site+path {
			out = append(out, r.opts)
		}
	}
	return out
}

type fakeRunner struct {
	dir  string
	name string
	args []string
	err  error
}

func (r *fakeRunner) Run(_ context.Context, dir, name string, args ...string) (string, string, error) {
	r.dir, r.name, r.args = dir, name, args
	return "", "latexmk output", r.err
}

func makeGIF(t *testing.T, frames int) []byte {
	t.Helper()
	g := &gif.GIF{Config: image.Config{Width: 4, Height: 4, ColorModel: color.Palette(palette.Plan9)}}
	for i := range frames {
		img := image.NewPaletted(image.Rect(0, 0, 4, 4), palette.Plan9)
		img.Set(i%4, i%4, color.RGBA{0, 0, 255, 255})
		g.Image = append(g.Image, img)
		g.Delay = append(g.Delay, 10)
	}
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, g); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func makePNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func problemPage(id int, title, body string) []byte {
	return fmt.Appendf(nil, `<html><head><title>#%d %s - Project Euler</title></head>
<body><div class="problem_content" role="problem">%s</div></body></html>`, id, title, body)
}

func testConfig() *config.Config {
	return &config.Config{
		Version: 1,
		Source:  config.SourceConfig{BaseURL: site},
		Document: config.DocumentConfig{
			BuildName: "peo",
			FrameRate: 1,
			LinkColor: "linkcolor",
			PDF:       config.PDFConfig{Command: "latexmk", Args: []string{"-pdf"}},
		},
	}
}

func newTestSession(t *testing.T, cfg *config.Config, opts Options, src Retriever) (*session, *fakeRunner) {
	t.Helper()
	if opts.Dest == "" {
		opts.Dest = t.TempDir()
	}
	s := newSession(cfg, opts, src, zaptest.NewLogger(t))
	r := &fakeRunner{}
	s.runner = r
	return s, r
}

func TestRender_EndToEnd(t *testing.T) {
	overrides := t.TempDir()
	if err := os.WriteFile(filepath.Join(overrides, "about_more.tex"), []byte(`\section{More}`), 0644); err != nil {
		t.Fatal(err)
	}

	src := &fakeSite{pages: map[string][]byte{
		"problem=1": problemPage(1, "First", `<p>Watch <a href="about=faq">faq</a> and get <a href="project/resources/p001_data.txt">data</a>.</p>
<p><img src="project/images/anim.gif"></p>
<p><img src="project/images/plain.png?123"></p>`),
		"problem=2":                       problemPage(2, "Second", `<p>See <a href="problem=1">first</a>.</p>`),
		"about=faq":                       []byte(`<html><body><div id="about_page"><h2>About... FAQ</h2><p>Read <a href="about=more">more</a>.</p></div></body></html>`),
		"project/images/anim.gif":         makeGIF(t, 3),
		"project/images/plain.png":        makePNG(t),
		"project/resources/p001_data.txt": []byte("1,2,3"),
	}}
	cfg := testConfig()
	cfg.Document.OverridesDir = overrides
	s, runner := newTestSession(t, cfg, Options{PDF: true}, src)

	texPath, err := s.render(context.Background())
	if err != nil {
		t.Fatalf("render() error = %v", err)
	}
	if texPath != filepath.Join(s.opts.Dest, "peo.tex") {
		t.Errorf("render() = %q", texPath)
	}
	data, err := os.ReadFile(texPath)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)

	for _, want := range []string{
		`\section[Problem \#1: First]{First}`,
		`\section[Problem \#2: Second]{Second}`,
		`\hyperref[sec:problem_1]{first}`,
		`\hyperref[sec:about=faq]{faq}`,
		`\section[Appendix: FAQ]{FAQ}`,
		`\section{More}`,
		`\textattachfile[color=linkcolor]{p001_data.txt}{data}`,
		`\animategraphics[controls=all,keepaspectratio,loop,width=\linewidth]{1}{project/images/anim-}{0}{2}`,
		`\includegraphics{project/images/plain.png}`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("document misses %q", want)
		}
	}

	for _, f := range []string{
		"p001_data.txt",
		"project/images/anim.gif",
		"project/images/anim.png",
		"project/images/anim-0.png",
		"project/images/anim-2.png",
		"project/images/plain.png",
	} {
		if _, err := os.Stat(filepath.Join(s.opts.Dest, filepath.FromSlash(f))); err != nil {
			t.Errorf("%s not written: %v", f, err)
		}
	}

	// iteration stops at the first problem missing from cache
	if opts := src.requested("problem=3"); len(opts) != 1 || !opts[0].CacheOnly {
		t.Errorf("problem=3 requests = %v", opts)
	}
	if len(src.requested("problem=4")) != 0 {
		t.Error("iteration continued past cache miss")
	}
	if len(src.requested("about=more")) != 0 {
		t.Error("overridden appendix was retrieved")
	}

	if runner.dir != s.opts.Dest || runner.name != "latexmk" || !slices.Equal(runner.args, []string{"-pdf", "peo.tex"}) {
		t.Errorf("pdf build = %+v", runner)
	}
}

func TestRender_ExplicitProblems(t *testing.T) {
	overrides := t.TempDir()
	if err := os.WriteFile(filepath.Join(overrides, "2.tex"), []byte(`\section{Two}`), 0644); err != nil {
		t.Fatal(err)
	}
	src := &fakeSite{pages: map[string][]byte{
		"problem=3": problemPage(3, "Third", `<p>three</p>`),
	}}
	cfg := testConfig()
	cfg.Document.OverridesDir = overrides
	s, runner := newTestSession(t, cfg, Options{Problems: []int{2, 3}, Spaced: true}, src)

	texPath, err := s.render(context.Background())
	if err != nil {
		t.Fatalf("render() error = %v", err)
	}
	if filepath.Base(texPath) != "peo_spaced.tex" {
		t.Errorf("render() = %q", texPath)
	}
	data, err := os.ReadFile(texPath)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	two, three := strings.Index(out, `\section{Two}`), strings.Index(out, `\section[Problem \#3: Third]{Third}`)
	if two < 0 || three < 0 || two > three {
		t.Errorf("problems missing or out of order:\n%s", out)
	}
	if !strings.Contains(out[two:three], `\newpage`) {
		t.Error("spaced build must separate pages")
	}
	if len(src.requested("problem=2")) != 0 {
		t.Error("overridden problem was retrieved")
	}
	if runner.name != "" {
		t.Error("pdf built without request")
	}
}

func TestRender_Failures(t *testing.T) {
	t.Run("broken page", func(t *testing.T) {
		src := &fakeSite{pages: map[string][]byte{"problem=1": []byte("<html><body>gone</body></html>")}}
		s, _ := newTestSession(t, testConfig(), Options{}, src)
		if _, err := s.render(context.Background()); err == nil {
			t.Error("expected error for page without content")
		}
	})
	t.Run("missing image is left alone", func(t *testing.T) {
		src := &fakeSite{pages: map[string][]byte{
			"problem=1": problemPage(1, "One", `<p>x <img src="lost.gif"></p>`),
		}}
		s, _ := newTestSession(t, testConfig(), Options{}, src)
		texPath, err := s.render(context.Background())
		if err != nil {
			t.Fatalf("render() error = %v", err)
		}
		data, _ := os.ReadFile(texPath)
		if !strings.Contains(string(data), `\includegraphics{lost.gif}`) {
			t.Error("inclusion of missing image was altered")
		}
	})
	t.Run("pdf failure", func(t *testing.T) {
		src := &fakeSite{pages: map[string][]byte{}}
		s, runner := newTestSession(t, testConfig(), Options{PDF: true}, src)
		runner.err = errors.New("exit status 12")
		if _, err := s.render(context.Background()); err == nil {
			t.Error("expected pdf build error")
		}
	})
	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		s, _ := newTestSession(t, testConfig(), Options{}, &fakeSite{})
		if _, err := s.render(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("render() error = %v", err)
		}
	})
}

func TestLinkAssets(t *testing.T) {
	assets, dest := t.TempDir(), t.TempDir()
	for _, name := range []string{"a.tex", "b.sty", "c.txt"} {
		if err := os.WriteFile(filepath.Join(assets, name), []byte(name), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dest, "b.sty"), []byte("local"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := linkAssets(assets, dest, zaptest.NewLogger(t)); err != nil {
		t.Fatalf("linkAssets() error = %v", err)
	}
	if fi, err := os.Lstat(filepath.Join(dest, "a.tex")); err != nil || fi.Mode()&os.ModeSymlink == 0 {
		t.Errorf("a.tex is not linked: %v", err)
	}
	if data, _ := os.ReadFile(filepath.Join(dest, "b.sty")); string(data) != "local" {
		t.Error("existing file was replaced")
	}
	if _, err := os.Lstat(filepath.Join(dest, "c.txt")); err == nil {
		t.Error("unexpected file linked")
	}
	// repeated run keeps links
	if err := linkAssets(assets, dest, zaptest.NewLogger(t)); err != nil {
		t.Errorf("second linkAssets() error = %v", err)
	}
}

func TestOverrideName(t *testing.T) {
	tests := map[string]string{
		"about=prime_numbers":  "about_prime_numbers",
		"about=faq":            "about_faq",
		"about=Roman.Numerals": "about_roman_numerals",
	}
	for in, want := range tests {
		if got := overrideName(in); got != want {
			t.Errorf("overrideName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLocalPath(t *testing.T) {
	tests := []struct {
		in   string
		flat bool
		want string
	}{
		{"project/images/p1.gif", false, filepath.FromSlash("project/images/p1.gif")},
		{"/project/images/p1.gif", false, filepath.FromSlash("project/images/p1.gif")},
		{"../../etc/passwd", false, filepath.FromSlash("etc/passwd")},
		{"project/resources/p022_names.txt", true, "p022_names.txt"},
	}
	for _, tt := range tests {
		if got := localPath(tt.in, tt.flat); got != tt.want {
			t.Errorf("localPath(%q, %v) = %q, want %q", tt.in, tt.flat, got, tt.want)
		}
	}
}
