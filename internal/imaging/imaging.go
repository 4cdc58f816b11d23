// Package imaging decodes figure assets and composites multi-image figures.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"path"
	"strings"

	// Stdlib decoders; x/image covers the formats arXiv figures also use.
	_ "image/gif"
	_ "image/jpeg"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/dgallion1/figcap/internal/figure"
)

var ErrNoImages = errors.New("imaging: no images to composite")

// Decode decodes an image in any registered format.
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, format, nil
}

// Check validates that data is a decodable image without decoding pixels.
func Check(data []byte) (string, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image config: %w", err)
	}
	return format, nil
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Composite stacks imgs on a white canvas in encounter order. Horizontal
// stacking stretches every image to the tallest height; vertical stacking
// stretches every image to the widest width.
func Composite(imgs []image.Image, arr figure.Arrangement) (image.Image, error) {
	if len(imgs) == 0 {
		return nil, ErrNoImages
	}
	var sumW, sumH, maxW, maxH int
	for _, img := range imgs {
		b := img.Bounds()
		sumW += b.Dx()
		sumH += b.Dy()
		maxW = max(maxW, b.Dx())
		maxH = max(maxH, b.Dy())
	}

	var canvas *image.RGBA
	if arr == figure.Vertical {
		canvas = image.NewRGBA(image.Rect(0, 0, maxW, sumH))
	} else {
		canvas = image.NewRGBA(image.Rect(0, 0, sumW, maxH))
	}
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	offset := 0
	for _, img := range imgs {
		b := img.Bounds()
		var dst image.Rectangle
		if arr == figure.Vertical {
			dst = image.Rect(0, offset, maxW, offset+b.Dy())
			offset += b.Dy()
		} else {
			dst = image.Rect(offset, 0, offset+b.Dx(), maxH)
			offset += b.Dx()
		}
		draw.ApproxBiLinear.Scale(canvas, dst, img, b, draw.Over, nil)
	}
	return canvas, nil
}

// CompositeName joins the constituent file names with "_" and adds a .png
// suffix.
func CompositeName(names []string) string {
	return strings.Join(names, "_") + ".png"
}

// PNGName replaces the extension of name with .png.
func PNGName(name string) string {
	return strings.TrimSuffix(name, path.Ext(name)) + ".png"
}
