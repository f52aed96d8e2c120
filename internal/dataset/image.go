package dataset

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Brownie44l1/flower-cnn/internal/tensor"
	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// ImageExtensions are the file extensions picked up by the directory iterator.
var ImageExtensions = []string{".png", ".jpg", ".jpeg", ".bmp", ".ppm", ".tif", ".tiff"}

func isImageFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range ImageExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// LoadImage decodes the image at path and resizes it to size x size. The
// result is an HWC RGB tensor with values in [0, 255].
func LoadImage(path string, size int) (*tensor.Tensor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening image: %w", err)
	}
	defer f.Close()

	t, err := DecodeImage(f, size)
	if err != nil {
		return nil, fmt.Errorf("error loading %s: %w", path, err)
	}
	return t, nil
}

// DecodeImage is LoadImage for an already opened stream.
func DecodeImage(r io.Reader, size int) (*tensor.Tensor, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return ImageToTensor(img, size), nil
}

// ImageToTensor resizes img with nearest-neighbour sampling and drops alpha.
// Source pixel i of a target pixel x is floor((x+0.5)*src/size). nfnt only
// does that when no axis shrinks; its nearest filter averages when
// downscaling, so shrinking images are sampled directly.
func ImageToTensor(img image.Image, size int) *tensor.Tensor {
	b := img.Bounds()
	if b.Dx() > size || b.Dy() > size {
		return pixels(size, func(x, y int) color.Color {
			return img.At(b.Min.X+nearest(x, b.Dx(), size), b.Min.Y+nearest(y, b.Dy(), size))
		})
	}

	resized := resize.Resize(uint(size), uint(size), img, resize.NearestNeighbor)
	rb := resized.Bounds()
	return pixels(size, func(x, y int) color.Color { return resized.At(rb.Min.X+x, rb.Min.Y+y) })
}

func nearest(i, src, dst int) int {
	center := float64(i) + 0.5
	return min(int(center*float64(src)/float64(dst)), src-1)
}

func pixels(size int, at func(x, y int) color.Color) *tensor.Tensor {
	out := tensor.Zeros(size, size, 3)
	data := out.DataPtr()
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := color.NRGBAModel.Convert(at(x, y)).(color.NRGBA)
			i := (y*size + x) * 3
			data[i] = float32(c.R)
			data[i+1] = float32(c.G)
			data[i+2] = float32(c.B)
		}
	}
	return out
}

// ScalePixels maps [0, 255] pixel values to [0, 1] in place, dividing in
// float64 before rounding to float32.
func ScalePixels(x *tensor.Tensor) {
	data := x.DataPtr()
	for i, v := range data {
		data[i] = float32(float64(v) / 255)
	}
}
