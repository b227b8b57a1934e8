// Command pdfstamp crops a region from every page of an overlay PDF and stamps it onto
// copies of a template page, without the HTTP service.
//
// Region coordinates are overlay pixels at OVERLAY_DPI; the -at position is template
// preview pixels at TEMPLATE_DPI.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfstamp/internal/compose"
	cfgpkg "github.com/local/pdfstamp/internal/config"
	"github.com/local/pdfstamp/internal/document"
	"github.com/local/pdfstamp/internal/imagerender"
	logpkg "github.com/local/pdfstamp/internal/logger"
	"github.com/local/pdfstamp/internal/session"
)

func main() {
	var (
		templatePath = flag.String("template", "", "template PDF (first page is used)")
		overlayPath  = flag.String("overlay", "", "overlay PDF (one output page per page)")
		regionArg    = flag.String("region", "", "overlay region as x0,y0,x1,y1")
		width        = flag.Int("width", 0, "stamp width in preview pixels (default STAMP_DEFAULT_WIDTH)")
		atArg        = flag.String("at", "", "stamp top-left as x,y (default centered)")
		out          = flag.String("out", "", "output PDF (default OUTPUT_PATH)")
		previewPath  = flag.String("preview", "", "also write the template preview with the stamp as PNG")
		variantName  = flag.String("variant", "", "label variant: insert or qr (default STAMP_VARIANT)")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s -template t.pdf -overlay o.pdf -region x0,y0,x1,y1 [options]\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *templatePath == "" || *overlayPath == "" || *regionArg == "" {
		flag.Usage()
		os.Exit(2)
	}
	region, err := parseRect(*regionArg)
	if err != nil {
		fatalf("bad -region: %v", err)
	}
	var at *image.Point
	if *atArg != "" {
		p, err := parsePoint(*atArg)
		if err != nil {
			fatalf("bad -at: %v", err)
		}
		at = &p
	}

	cfg := cfgpkg.FromEnv()
	if *variantName != "" {
		cfg.Variant = cfgpkg.VariantByName(*variantName)
	}
	if *out != "" {
		cfg.Merge.OutputPath = *out
	}

	_ = logpkg.Init(logpkg.Options{
		Level:      cfg.Logging.Level,
		Pretty:     true,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
		Stderr:     true,
	})
	defer logpkg.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess := session.New("", &session.Deps{
		Config:   cfg,
		Loader:   document.NewLoader(cfg.Render),
		Composer: compose.New(cfg, nil),
	})

	if _, err := sess.LoadTemplate(*templatePath); err != nil {
		fatalf("%v", err)
	}
	fmt.Fprintln(os.Stderr, sess.Status())
	if _, err := sess.LoadOverlay(*overlayPath); err != nil {
		fatalf("%v", err)
	}
	fmt.Fprintln(os.Stderr, sess.Status())

	if err := sess.SelectionPressed(region.Min); err != nil {
		fatalf("%v", err)
	}
	if _, err := sess.SelectionReleased(region.Max); err != nil {
		fatalf("%s (%v)", sess.Status(), err)
	}
	fmt.Fprintln(os.Stderr, sess.Status())

	if *width != 0 {
		if err := sess.SetWidth(*width); err != nil {
			fatalf("%v", err)
		}
	}
	if at != nil {
		if err := sess.MoveStamp(*at); err != nil {
			fatalf("%v", err)
		}
	}

	if *previewPath != "" {
		img, err := sess.Preview()
		if err != nil {
			fatalf("%v", err)
		}
		if err := imagerender.WritePNGFile(*previewPath, img); err != nil {
			fatalf("write preview: %v", err)
		}
	}

	res, err := sess.Merge(ctx)
	if err != nil {
		log.Error().Err(err).Msg("merge failed")
		fatalf("%v", err)
	}
	fmt.Fprintln(os.Stderr, sess.Status())
	fmt.Printf("%s\t%d pages\t%s\n", res.OutputPath, res.Pages, res.Placement)
}

func parseInts(s string, n int) ([]int, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("want %d comma separated integers, got %q", n, s)
	}
	vals := make([]int, n)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

func parseRect(s string) (image.Rectangle, error) {
	v, err := parseInts(s, 4)
	if err != nil {
		return image.Rectangle{}, err
	}
	return image.Rect(v[0], v[1], v[2], v[3]), nil
}

func parsePoint(s string) (image.Point, error) {
	v, err := parseInts(s, 2)
	if err != nil {
		return image.Point{}, err
	}
	return image.Pt(v[0], v[1]), nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "pdfstamp: "+format+"\n", args...)
	os.Exit(1)
}
