package imageprocessor

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestPrepareLandscapeIsPaddedSquare(t *testing.T) {
	src := imaging.New(2048, 1024, color.White)

	p, err := Prepare(src)
	require.NoError(t, err)
	assert.Equal(t, 2048, p.OrigWidth)
	assert.Equal(t, 1024, p.OrigHeight)

	canvas, err := png.Decode(bytes.NewReader(p.PNG))
	require.NoError(t, err)
	assert.Equal(t, MaxSide, canvas.Bounds().Dx())
	assert.Equal(t, MaxSide, canvas.Bounds().Dy())

	// Top band is padding, the centre row is image content
	r, g, b, _ := canvas.At(MaxSide/2, 10).RGBA()
	assert.Zero(t, r+g+b)
	r, _, _, _ = canvas.At(MaxSide/2, MaxSide/2).RGBA()
	assert.NotZero(t, r)
}

func TestPrepareSmallImageIsNotUpscaled(t *testing.T) {
	p, err := Prepare(imaging.New(300, 600, color.White))
	require.NoError(t, err)

	canvas, err := png.Decode(bytes.NewReader(p.PNG))
	require.NoError(t, err)
	assert.Equal(t, 600, canvas.Bounds().Dx())
}

func TestCropToAspect(t *testing.T) {
	square := imaging.New(1024, 1024, color.White)

	wide := CropToAspect(square, 2000, 1000)
	assert.Equal(t, 1024, wide.Bounds().Dx())
	assert.Equal(t, 512, wide.Bounds().Dy())

	tall := CropToAspect(square, 500, 1000)
	assert.Equal(t, 512, tall.Bounds().Dx())
	assert.Equal(t, 1024, tall.Bounds().Dy())

	same := CropToAspect(square, 10, 10)
	assert.Equal(t, 1024, same.Bounds().Dx())
}

func TestFinishRestoresOriginalSize(t *testing.T) {
	p := &Prepared{OrigWidth: 800, OrigHeight: 400}
	generated := encodePNG(t, imaging.New(1024, 1024, color.RGBA{R: 200, A: 255}))

	res, err := p.Finish(generated)
	require.NoError(t, err)
	assert.Equal(t, 800, res.Width)
	assert.Equal(t, 400, res.Height)

	out, err := imaging.Decode(bytes.NewReader(res.JPEG))
	require.NoError(t, err)
	assert.Equal(t, 800, out.Bounds().Dx())
	assert.Equal(t, 400, out.Bounds().Dy())

	assert.True(t, isWebP(res.Preview))
}

func TestFinishRejectsGarbage(t *testing.T) {
	p := &Prepared{OrigWidth: 10, OrigHeight: 10}
	_, err := p.Finish([]byte("not an image"))
	assert.ErrorIs(t, err, ErrDecode)
}

func TestDecodePNGWithoutExif(t *testing.T) {
	img, err := Decode(encodePNG(t, imaging.New(30, 20, color.White)))
	require.NoError(t, err)
	assert.Equal(t, 30, img.Bounds().Dx())

	_, err = Decode([]byte("nope"))
	assert.ErrorIs(t, err, ErrDecode)
}

func TestApplyOrientation(t *testing.T) {
	img := imaging.New(30, 20, color.White)
	assert.Equal(t, 20, ApplyOrientation(img, 6).Bounds().Dx())
	assert.Equal(t, 20, ApplyOrientation(img, 8).Bounds().Dx())
	assert.Equal(t, 30, ApplyOrientation(img, 3).Bounds().Dx())
	assert.Equal(t, 30, ApplyOrientation(img, 1).Bounds().Dx())
	assert.Equal(t, 1, ReadOrientation([]byte("no exif here")))
}
