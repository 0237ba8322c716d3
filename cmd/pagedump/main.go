// Package main is pagedump, a developer tool that runs one PDF through the
// viewer pipeline offline: each selected page is rasterized to a PNG and
// its text layer reduced to plain text, exactly as the server would.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Shimizu-Technology/study-viewer/internal/services/pdf"
	"github.com/Shimizu-Technology/study-viewer/internal/services/render"
	"github.com/Shimizu-Technology/study-viewer/internal/services/textlayer"
	"github.com/Shimizu-Technology/study-viewer/internal/services/viewport"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type options struct {
	pages       string
	scale       float64
	outDir      string
	text        bool
	layer       bool
	concurrency int
	lineGap     float64
	ascent      float64
}

// pageResult is what one page produced; results are printed in page order.
type pageResult struct {
	page   int
	png    string
	layer  textlayer.Layer
	width  int
	height int
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "pagedump <file.pdf>",
		Short: "Render PDF pages and dump their text layers",
		Long: `Render selected pages of a PDF to PNG files and print what the text
layer extracted from each, using the same pipeline as the viewer server.

Examples:
  pagedump notes.pdf                      # every page at 1.2x into ./pages
  pagedump notes.pdf --pages 1,3-5 -s 2   # some pages at 2x
  pagedump notes.pdf --text --out ""      # text only, no images`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd.OutOrStdout(), args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.pages, "pages", "p", "", "pages to dump, e.g. 1,3-5 (default: all)")
	cmd.Flags().Float64VarP(&opts.scale, "scale", "s", 1.2, "zoom factor")
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", "pages", "directory for PNG files; empty skips rendering")
	cmd.Flags().BoolVar(&opts.text, "text", false, "print each page's plain text")
	cmd.Flags().BoolVar(&opts.layer, "layer", false, "print each page's text layer as JSON")
	cmd.Flags().IntVarP(&opts.concurrency, "concurrency", "j", runtime.NumCPU(), "pages rendered in parallel")
	cmd.Flags().Float64Var(&opts.lineGap, "line-threshold", textlayer.DefaultLineThreshold, "baseline delta that starts a new line")
	cmd.Flags().Float64Var(&opts.ascent, "ascent-ratio", textlayer.DefaultAscentRatio, "ascent as a fraction of font size")

	return cmd
}

func run(ctx context.Context, w io.Writer, path string, opts options) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.scale <= 0 {
		return fmt.Errorf("scale must be positive, got %v", opts.scale)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	doc, err := pdf.Open(data)
	if err != nil {
		return err
	}
	defer doc.Close()

	pages, err := parsePages(opts.pages, doc.NumPages())
	if err != nil {
		return err
	}

	if opts.outDir != "" {
		if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", opts.outDir, err)
		}
	}

	renderer, err := render.NewRenderer()
	if err != nil {
		return err
	}

	textOpts := textlayer.Options{AscentRatio: opts.ascent, LineThreshold: opts.lineGap}
	results := make([]pageResult, len(pages))

	// Go Pattern: errgroup runs one goroutine per page, caps how many run
	// at once, and cancels the rest on the first error.
	g, gctx := errgroup.WithContext(ctx)
	if opts.concurrency > 0 {
		g.SetLimit(opts.concurrency)
	}
	for i, n := range pages {
		i, n := i, n
		g.Go(func() error {
			res, err := dumpPage(gctx, doc, renderer, n, opts, textOpts)
			if err != nil {
				return fmt.Errorf("page %d: %w", n, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Fprintf(w, "%s: %d pages, dumping %d at %gx\n", filepath.Base(path), doc.NumPages(), len(pages), opts.scale)
	for _, res := range results {
		line := fmt.Sprintf("page %d  %dx%d  %s", res.page, res.width, res.height, res.layer.Summary(res.page))
		if res.png != "" {
			line += "  -> " + res.png
		}
		fmt.Fprintln(w, line)

		if opts.text && res.layer.PlainText != "" {
			fmt.Fprintln(w, indent(res.layer.PlainText))
		}
		if opts.layer {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			if err := enc.Encode(res.layer.Regions); err != nil {
				return err
			}
		}
	}
	return nil
}

func dumpPage(ctx context.Context, doc *pdf.Document, r *render.Renderer, n int, opts options, textOpts textlayer.Options) (pageResult, error) {
	page, err := doc.Page(n)
	if err != nil {
		return pageResult{}, err
	}
	content, err := page.Content()
	if err != nil {
		return pageResult{}, err
	}

	vp := viewport.New(page.Box(), opts.scale, page.Rotation())
	w, h := vp.PixelSize()
	res := pageResult{
		page:   n,
		layer:  textlayer.Build(content.Runs, vp, textOpts),
		width:  w,
		height: h,
	}

	if opts.outDir == "" {
		return res, nil
	}

	img, err := r.Rasterize(ctx, content, vp)
	if err != nil {
		return pageResult{}, err
	}

	res.png = filepath.Join(opts.outDir, fmt.Sprintf("page-%03d.png", n))
	f, err := os.Create(res.png)
	if err != nil {
		return pageResult{}, err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return pageResult{}, err
	}
	return res, f.Close()
}

// parsePages turns "1,3-5" into [1 3 4 5]. Empty means every page.
// Duplicates are dropped; order follows first mention.
func parsePages(spec string, total int) ([]int, error) {
	if strings.TrimSpace(spec) == "" {
		all := make([]int, total)
		for i := range all {
			all[i] = i + 1
		}
		return all, nil
	}

	seen := make(map[int]bool)
	var pages []int
	add := func(n int) error {
		if n < 1 || n > total {
			return fmt.Errorf("page %d out of range [1, %d]", n, total)
		}
		if !seen[n] {
			seen[n] = true
			pages = append(pages, n)
		}
		return nil
	}

	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		lo, hi, isRange := strings.Cut(part, "-")

		from, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("invalid page %q", part)
		}
		to := from
		if isRange {
			if to, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil || to < from {
				return nil, fmt.Errorf("invalid page range %q", part)
			}
		}
		for n := from; n <= to; n++ {
			if err := add(n); err != nil {
				return nil, err
			}
		}
	}
	return pages, nil
}

func indent(text string) string {
	return "    " + strings.ReplaceAll(text, "\n", "\n    ")
}
