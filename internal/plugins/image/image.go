// Package image optimizes raster and vector images and produces their WebP
// copies.
package image

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"github.com/tdewolff/minify/v2"
	mcss "github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/svg"

	ferrors "github.com/conneroisu/assetforge/internal/errors"
	"github.com/conneroisu/assetforge/internal/plugins"
)

// DefaultRasterSize is used for SVGs without a usable viewBox.
const DefaultRasterSize = 512

const svgMime = "image/svg+xml"

// Ext returns the lower-cased extension of name.
func Ext(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

// NeedsWebP reports whether name gets an extra WebP copy. WebP and icon
// sources are copied as they are.
func NeedsWebP(name string) bool {
	switch Ext(name) {
	case ".png", ".jpg", ".jpeg", ".gif", ".svg":
		return true
	}
	return false
}

// Optimizer recompresses images. It never returns output larger than its
// input.
type Optimizer struct {
	quality int
	m       *minify.M
}

// NewOptimizer creates an optimizer; quality applies to JPEG (1..100).
func NewOptimizer(quality int) *Optimizer {
	m := minify.New()
	m.AddFunc(svgMime, svg.Minify)
	m.AddFunc("text/css", mcss.Minify)
	return &Optimizer{quality: quality, m: m}
}

// Optimize returns the smaller of data and its recompressed form. Unknown
// formats come back unchanged.
func (o *Optimizer) Optimize(name string, data []byte) ([]byte, error) {
	var (
		out []byte
		err error
	)

	switch Ext(name) {
	case ".png":
		out, err = o.png(data)
	case ".jpg", ".jpeg":
		out, err = o.jpeg(data)
	case ".gif":
		out, err = o.gif(data)
	case ".svg":
		out, err = o.m.Bytes(svgMime, data)
	default:
		return data, nil
	}

	if err != nil {
		return nil, ferrors.NewTransformError(ferrors.ErrCodeImageFailed,
			fmt.Sprintf("failed to optimize %s", filepath.Base(name)), err).WithFile(name)
	}
	if len(out) >= len(data) {
		return data, nil
	}
	return out, nil
}

func (o *Optimizer) png(data []byte) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (o *Optimizer) jpeg(data []byte) ([]byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: o.quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (o *Optimizer) gif(data []byte) ([]byte, error) {
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, g); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RasterizeSVG renders an SVG document to PNG at its viewBox size.
func RasterizeSVG(data []byte) ([]byte, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data), oksvg.IgnoreErrorMode)
	if err != nil {
		return nil, err
	}

	w, h := int(icon.ViewBox.W), int(icon.ViewBox.H)
	if w <= 0 || h <= 0 {
		w, h = DefaultRasterSize, DefaultRasterSize
	}
	icon.SetTarget(0, 0, float64(w), float64(h))

	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	scanner := rasterx.NewScannerGV(w, h, rgba, rgba.Bounds())
	icon.Draw(rasterx.NewDasher(w, h, scanner), 1)

	var buf bytes.Buffer
	if err := png.Encode(&buf, rgba); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// gifToPNG keeps the first frame; the WebP encoder reads PNG and JPEG only.
func gifToPNG(data []byte) ([]byte, error) {
	img, err := gif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Runner runs an external command. *plugins.Command implements it.
type Runner interface {
	Run(ctx context.Context, inv plugins.Invocation) ([]byte, error)
}

// WebPEncoder produces WebP copies through an external encoder such as
// cwebp. The command receives {input}, {output} and {quality}.
type WebPEncoder struct {
	runner  Runner
	quality int
}

// NewWebPEncoder creates an encoder.
func NewWebPEncoder(runner Runner, quality int) *WebPEncoder {
	return &WebPEncoder{runner: runner, quality: quality}
}

// Encode converts data, named name, to WebP.
func (e *WebPEncoder) Encode(ctx context.Context, name string, data []byte) ([]byte, error) {
	ext := Ext(name)
	input := data

	var err error
	switch ext {
	case ".svg":
		input, err = RasterizeSVG(data)
		ext = ".png"
	case ".gif":
		input, err = gifToPNG(data)
		ext = ".png"
	}
	if err != nil {
		return nil, ferrors.NewTransformError(ferrors.ErrCodeImageFailed,
			fmt.Sprintf("failed to rasterize %s", filepath.Base(name)), err).WithFile(name)
	}

	out, err := e.runner.Run(ctx, plugins.Invocation{
		Input:     input,
		InputExt:  ext,
		OutputExt: ".webp",
		Vars:      map[string]string{"quality": strconv.Itoa(e.quality)},
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
