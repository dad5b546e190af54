package imageprocessor

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/disintegration/imaging"
	"github.com/kolesa-team/go-webp/decoder"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
)

const (
	// MaxSide bounds the longer edge of the image sent to the generation API.
	MaxSide = 1024

	JPEGQuality    = 95
	PreviewQuality = 85
	PreviewWidth   = 512
)

var ErrDecode = errors.New("cannot decode image")

// Prepared is the square canvas sent to the generation API plus what is needed to undo it.
type Prepared struct {
	PNG []byte

	// OrigWidth and OrigHeight are the upright source dimensions.
	OrigWidth  int
	OrigHeight int
}

// Result holds the final encoded outputs.
type Result struct {
	JPEG    []byte
	Preview []byte
	Width   int
	Height  int
}

// Decode decodes data and normalises its EXIF orientation.
func Decode(data []byte) (image.Image, error) {
	var (
		img image.Image
		err error
	)
	if isWebP(data) {
		img, err = webp.Decode(bytes.NewReader(data), &decoder.Options{})
	} else {
		img, err = imaging.Decode(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return ApplyOrientation(img, ReadOrientation(data)), nil
}

// Prepare downsizes src so its longer edge is at most MaxSide and centres it
// on a black square, encoded as PNG.
func Prepare(src image.Image) (*Prepared, error) {
	b := src.Bounds()
	origW, origH := b.Dx(), b.Dy()
	if origW == 0 || origH == 0 {
		return nil, ErrDecode
	}

	img := src
	if origW > MaxSide || origH > MaxSide {
		if origW > origH {
			img = imaging.Resize(src, MaxSide, 0, imaging.Lanczos)
		} else {
			img = imaging.Resize(src, 0, MaxSide, imaging.Lanczos)
		}
	}

	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	side := max(w, h)
	canvas := imaging.New(side, side, color.Black)
	canvas = imaging.Paste(canvas, img, image.Pt((side-w)/2, (side-h)/2))

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("error encoding PNG: %w", err)
	}
	return &Prepared{PNG: buf.Bytes(), OrigWidth: origW, OrigHeight: origH}, nil
}

// Finish crops the generated square back to the source aspect ratio, scales
// it to the source size and encodes the JPEG and WebP preview.
func (p *Prepared) Finish(generated []byte) (*Result, error) {
	img, err := imaging.Decode(bytes.NewReader(generated))
	if err != nil {
		return nil, fmt.Errorf("%w: generated image: %v", ErrDecode, err)
	}

	img = CropToAspect(img, p.OrigWidth, p.OrigHeight)
	img = imaging.Resize(img, p.OrigWidth, p.OrigHeight, imaging.Lanczos)

	var out bytes.Buffer
	if err := imaging.Encode(&out, img, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return nil, fmt.Errorf("error encoding JPEG: %w", err)
	}

	preview, err := EncodePreview(img)
	if err != nil {
		return nil, err
	}

	return &Result{JPEG: out.Bytes(), Preview: preview, Width: p.OrigWidth, Height: p.OrigHeight}, nil
}

// CropToAspect cuts the centred w:h region out of a square image.
func CropToAspect(img image.Image, w, h int) image.Image {
	if w == h {
		return img
	}
	b := img.Bounds()
	size := b.Dx()
	if w > h {
		target := size * h / w
		top := (b.Dy() - target) / 2
		return imaging.Crop(img, image.Rect(b.Min.X, b.Min.Y+top, b.Max.X, b.Min.Y+top+target))
	}
	size = b.Dy()
	target := size * w / h
	left := (b.Dx() - target) / 2
	return imaging.Crop(img, image.Rect(b.Min.X+left, b.Min.Y, b.Min.X+left+target, b.Max.Y))
}

// EncodePreview returns a lossy WebP no wider than PreviewWidth.
func EncodePreview(img image.Image) ([]byte, error) {
	if img.Bounds().Dx() > PreviewWidth {
		img = imaging.Resize(img, PreviewWidth, 0, imaging.Lanczos)
	}

	options, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, PreviewQuality)
	if err != nil {
		return nil, fmt.Errorf("error creating encoder options: %w", err)
	}
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, options); err != nil {
		return nil, fmt.Errorf("error encoding WebP image: %w", err)
	}
	return buf.Bytes(), nil
}

func isWebP(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP"
}
