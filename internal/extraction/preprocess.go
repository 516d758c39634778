package extraction

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"sort"

	// Register decoders for the formats phone cameras produce.
	_ "image/gif"
	_ "image/jpeg"

	"golang.org/x/image/draw"

	apperrors "github.com/dosewise/rxlens/pkg/errors"
)

// minOCRWidth is the narrowest image the OCR engine handles reliably;
// anything smaller gets upscaled.
const minOCRWidth = 1024

// preprocessForOCR prepares a photo for the OCR engine: decode, size-normalize
// with Catmull-Rom resampling, convert to grayscale, then run the fixed
// cleanup passes (contrast stretch, sharpen, denoise).  Returns the image
// re-encoded as PNG.  Handwriting on low-contrast thermal paper is the common
// case; the passes measurably improve recognition there.
func preprocessForOCR(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnreadableInput,
			"image cannot be decoded")
	}

	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return nil, apperrors.UnreadableInput("image has zero dimensions")
	}

	scale := 1
	if width < minOCRWidth {
		scale = (minOCRWidth + width - 1) / width
	}

	gray := image.NewGray(image.Rect(0, 0, width*scale, height*scale))
	if scale == 1 {
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				gray.Set(x-bounds.Min.X, y-bounds.Min.Y, color.GrayModel.Convert(src.At(x, y)))
			}
		}
	} else {
		draw.CatmullRom.Scale(gray, gray.Bounds(), src, bounds, draw.Over, nil)
	}

	gray = stretchContrast(gray)
	gray = sharpen(gray)
	gray = denoise(gray)

	var out bytes.Buffer
	if err := png.Encode(&out, gray); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "preprocessed image encode")
	}
	return out.Bytes(), nil
}

// stretchContrast remaps the gray levels linearly so the darkest pixel
// becomes 0 and the brightest 255.  A flat image is returned unchanged.
func stretchContrast(img *image.Gray) *image.Gray {
	lo, hi := 255, 0
	for _, p := range img.Pix {
		if int(p) < lo {
			lo = int(p)
		}
		if int(p) > hi {
			hi = int(p)
		}
	}
	if hi <= lo {
		return img
	}

	out := image.NewGray(img.Bounds())
	span := hi - lo
	for i, p := range img.Pix {
		out.Pix[i] = uint8(((int(p)-lo)*255 + span/2) / span)
	}
	return out
}

// sharpen applies a 3x3 unsharp kernel (center 5, cross neighbours -1),
// clamped to [0, 255].  Border pixels are copied unchanged.
func sharpen(img *image.Gray) *image.Gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(b)
	copy(out.Pix, img.Pix)
	if w < 3 || h < 3 {
		return out
	}

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*img.Stride + x
			v := 5*int(img.Pix[i]) -
				int(img.Pix[i-1]) - int(img.Pix[i+1]) -
				int(img.Pix[i-img.Stride]) - int(img.Pix[i+img.Stride])
			if v < 0 {
				v = 0
			} else if v > 255 {
				v = 255
			}
			out.Pix[y*out.Stride+x] = uint8(v)
		}
	}
	return out
}

// denoise replaces each interior pixel with the median of its 3x3
// neighbourhood, removing the salt-and-pepper speckle that defeats character
// segmentation.  Border pixels are copied unchanged.
func denoise(img *image.Gray) *image.Gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := image.NewGray(b)
	copy(out.Pix, img.Pix)
	if w < 3 || h < 3 {
		return out
	}

	window := make([]uint8, 9)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			n := 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					window[n] = img.Pix[(y+dy)*img.Stride+(x+dx)]
					n++
				}
			}
			sort.Slice(window, func(i, j int) bool { return window[i] < window[j] })
			out.Pix[y*out.Stride+x] = window[4]
		}
	}
	return out
}
