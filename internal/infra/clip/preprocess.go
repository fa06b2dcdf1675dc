package clip

import (
	"errors"
	"fmt"
	"image"
	"image/draw"

	"github.com/nfnt/resize"
)

const ImageSize = 224

var (
	clipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

var ErrMalformedFrame = errors.New("malformed frame")

// canonical returns img as 8-bit RGBA. *image.RGBA values are returned unchanged.
func canonical(img image.Image) (*image.RGBA, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil raster", ErrMalformedFrame)
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("%w: empty bounds %v", ErrMalformedFrame, b)
	}
	if rgba, ok := img.(*image.RGBA); ok {
		if rgba.Stride < 4*b.Dx() || len(rgba.Pix) < rgba.Stride*(b.Dy()-1)+4*b.Dx() {
			return nil, fmt.Errorf("%w: pixel buffer too short for %dx%d", ErrMalformedFrame, b.Dx(), b.Dy())
		}
		return rgba, nil
	}
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst, nil
}

// pixelValues resizes the shorter side to ImageSize, center crops, and writes
// normalized CHW floats into dst, which must hold 3*ImageSize*ImageSize values.
func pixelValues(img image.Image, dst []float32) error {
	rgba, err := canonical(img)
	if err != nil {
		return err
	}

	b := rgba.Bounds()
	var resized image.Image
	if b.Dx() <= b.Dy() {
		resized = resize.Resize(ImageSize, 0, rgba, resize.Bicubic)
	} else {
		resized = resize.Resize(0, ImageSize, rgba, resize.Bicubic)
	}

	rb := resized.Bounds()
	if rb.Dx() < ImageSize || rb.Dy() < ImageSize {
		return fmt.Errorf("%w: resized to %dx%d", ErrMalformedFrame, rb.Dx(), rb.Dy())
	}
	x0 := rb.Min.X + (rb.Dx()-ImageSize)/2
	y0 := rb.Min.Y + (rb.Dy()-ImageSize)/2

	plane := ImageSize * ImageSize
	for y := 0; y < ImageSize; y++ {
		for x := 0; x < ImageSize; x++ {
			r, g, bl, _ := resized.At(x0+x, y0+y).RGBA()
			i := y*ImageSize + x
			dst[i] = (float32(r>>8)/255 - clipMean[0]) / clipStd[0]
			dst[plane+i] = (float32(g>>8)/255 - clipMean[1]) / clipStd[1]
			dst[2*plane+i] = (float32(bl>>8)/255 - clipMean[2]) / clipStd[2]
		}
	}
	return nil
}
