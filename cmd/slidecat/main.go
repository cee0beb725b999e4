// Command slidecat reads one region of a whole-slide image and writes it
// out as an image file, using internal/encode the way a caller outside
// the library would: read_region only ever hands back raw ARGB32 bytes,
// so turning those into something a viewer can open is the caller's job.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"os"

	"github.com/pspoerri/slidepyramid/internal/encode"
	"github.com/pspoerri/slidepyramid/internal/slide"
)

func main() {
	level := flag.Int("level", 0, "pyramid level to read")
	x := flag.Float64("x", 0, "region origin x, in level-0 pixel coordinates")
	y := flag.Float64("y", 0, "region origin y, in level-0 pixel coordinates")
	w := flag.Int("w", 512, "region width in level pixels")
	h := flag.Int("h", 512, "region height in level pixels")
	format := flag.String("format", "png", "output format: png, jpeg, webp")
	quality := flag.Int("quality", 85, "output quality for lossy formats")
	out := flag.String("out", "", "output path (default: region.<ext>)")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: slidecat [flags] <file>\n")
		flag.PrintDefaults()
		os.Exit(1)
	}
	path := flag.Arg(0)

	enc, err := encode.NewEncoder(*format, *quality)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	outPath := *out
	if outPath == "" {
		outPath = "region" + enc.FileExtension()
	}

	s, err := slide.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer s.Close()

	dest := make([]byte, (*w)*(*h)*4)
	if err := s.ReadRegion(context.Background(), dest, *x, *y, *level, *w, *h); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	data, err := enc.Encode(argbToNRGBA(dest, *w, *h))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s (%dx%d, %s)\n", outPath, *w, *h, enc.Format())
}

// argbToNRGBA converts the row-major ARGB32 bytes read_region produces
// into a standard library image.Image for PNG encoding.
func argbToNRGBA(buf []byte, w, h int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < w*h; i++ {
		off := i * 4
		a, r, g, b := buf[off], buf[off+1], buf[off+2], buf[off+3]
		img.SetNRGBA(i%w, i/w, color.NRGBA{R: r, G: g, B: b, A: a})
	}
	return img
}
