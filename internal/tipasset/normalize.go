// Package tipasset converts source tip rasters into the pixel formats and canvas sizes the
// destination expects: an 8-bit grayscale shape, an optional grayscale grain and an RGBA
// preview thumbnail.
package tipasset

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/floegence/brushport/internal/brush"
)

const (
	DefaultShapeSize     = 1024
	DefaultGrainSize     = 1024
	DefaultPreviewWidth  = 1060
	DefaultPreviewHeight = 324
)

type Options struct {
	// ShapeSize is the side of the square shape canvas.
	ShapeSize int
	// GrainSize is the side of the square grain canvas.
	GrainSize     int
	PreviewWidth  int
	PreviewHeight int
}

func (o Options) withDefaults() Options {
	if o.ShapeSize <= 0 {
		o.ShapeSize = DefaultShapeSize
	}
	if o.GrainSize <= 0 {
		o.GrainSize = DefaultGrainSize
	}
	if o.PreviewWidth <= 0 {
		o.PreviewWidth = DefaultPreviewWidth
	}
	if o.PreviewHeight <= 0 {
		o.PreviewHeight = DefaultPreviewHeight
	}
	return o
}

// Normalizer holds no mutable state and may be shared across goroutines.
type Normalizer struct {
	opts Options
	enc  png.Encoder
}

func New(opts Options) *Normalizer {
	return &Normalizer{
		opts: opts.withDefaults(),
		enc:  png.Encoder{CompressionLevel: png.BestCompression},
	}
}

// Options returns the effective options.
func (n *Normalizer) Options() Options { return n.opts }

// Normalize converts one tip. A raster that cannot be decoded yields
// brush.ErrUnsupportedAssetFormat; the caller drops the tip.
func (n *Normalizer) Normalize(tip brush.SourceTip) (brush.TargetTip, error) {
	out := brush.TargetTip{Index: tip.Index}

	stamp, err := decode(tip.Shape)
	if err != nil {
		return brush.TargetTip{}, fmt.Errorf("%w: shape: %v", brush.ErrUnsupportedAssetFormat, err)
	}
	if out.Shape, err = n.encode(n.shape(stamp)); err != nil {
		return brush.TargetTip{}, err
	}

	if len(tip.Grain) > 0 {
		grain, err := decode(tip.Grain)
		if err != nil {
			return brush.TargetTip{}, fmt.Errorf("%w: grain: %v", brush.ErrUnsupportedAssetFormat, err)
		}
		if out.Grain, err = n.encode(n.grain(grain)); err != nil {
			return brush.TargetTip{}, err
		}
	}

	source := stamp
	if len(tip.Preview) > 0 {
		// An undecodable preview is replaced by a synthesized one.
		if p, err := decode(tip.Preview); err == nil {
			source = p
		}
	}
	if out.Preview, err = n.encode(n.preview(source)); err != nil {
		return brush.TargetTip{}, err
	}
	return out, nil
}

func decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty raster")
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("empty raster bounds %v", b)
	}
	return img, nil
}

func (n *Normalizer) encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := n.enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// shape turns a dark-on-transparent stamp into a white-on-black mask: the inverted
// luminance multiplied by alpha, centered on a square canvas.
func (n *Normalizer) shape(src image.Image) *image.Gray {
	b := src.Bounds()
	mask := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(src.At(x, y)).(color.NRGBA)
			inv := 255 - luma(c.R, c.G, c.B)
			mask.SetGray(x-b.Min.X, y-b.Min.Y, color.Gray{Y: uint8((uint32(inv)*uint32(c.A) + 127) / 255)})
		}
	}
	size := n.opts.ShapeSize
	if mask.Bounds().Dx() == size && mask.Bounds().Dy() == size {
		return mask
	}
	canvas := image.NewGray(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(canvas, fit(mask.Bounds(), canvas.Bounds()), mask, mask.Bounds(), draw.Src, nil)
	return canvas
}

// grain flattens the texture over white and stretches it to the square grain canvas.
func (n *Normalizer) grain(src image.Image) *image.Gray {
	b := src.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(src.At(x, y)).(color.NRGBA)
			l := uint32(luma(c.R, c.G, c.B))
			v := (l*uint32(c.A) + 255*(255-uint32(c.A)) + 127) / 255
			gray.SetGray(x-b.Min.X, y-b.Min.Y, color.Gray{Y: uint8(v)})
		}
	}
	size := n.opts.GrainSize
	if b.Dx() == size && b.Dy() == size {
		return gray
	}
	canvas := image.NewGray(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(canvas, canvas.Bounds(), gray, gray.Bounds(), draw.Src, nil)
	return canvas
}

// preview centers the stamp on a transparent thumbnail canvas, scaled with Lanczos to
// fill the canvas height.
func (n *Normalizer) preview(src image.Image) *image.NRGBA {
	w, h := n.opts.PreviewWidth, n.opts.PreviewHeight
	canvas := image.NewNRGBA(image.Rect(0, 0, w, h))
	r := fit(src.Bounds(), canvas.Bounds())
	scaled := resize.Resize(uint(r.Dx()), uint(r.Dy()), src, resize.Lanczos3)
	draw.Draw(canvas, r, scaled, scaled.Bounds().Min, draw.Over)
	return canvas
}

// fit returns the largest rectangle with src's aspect ratio centered inside dst.
func fit(src, dst image.Rectangle) image.Rectangle {
	sw, sh := src.Dx(), src.Dy()
	dw, dh := dst.Dx(), dst.Dy()
	w, h := dw, sh*dw/sw
	if h > dh {
		w, h = sw*dh/sh, dh
	}
	w, h = max(w, 1), max(h, 1)
	x := dst.Min.X + (dw-w)/2
	y := dst.Min.Y + (dh-h)/2
	return image.Rect(x, y, x+w, y+h)
}

// luma uses the ITU-R 601-2 weights.
func luma(r, g, b uint8) uint8 {
	return uint8((299*uint32(r) + 587*uint32(g) + 114*uint32(b) + 500) / 1000)
}
