package dataset

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"strconv"
)

func init() {
	image.RegisterFormat("ppm", "P6", decodePPM, decodePPMConfig)
}

type ppmHeader struct {
	width, height, maxval int
}

// readPPMHeader reads "P6 <width> <height> <maxval>" and the single
// whitespace byte that precedes the raster. '#' starts a comment.
func readPPMHeader(r *bufio.Reader) (ppmHeader, error) {
	var fields [4]string
	for i := range fields {
		tok, err := ppmToken(r)
		if err != nil {
			return ppmHeader{}, fmt.Errorf("ppm: reading header: %w", err)
		}
		fields[i] = tok
	}
	if fields[0] != "P6" {
		return ppmHeader{}, fmt.Errorf("ppm: unsupported format %q", fields[0])
	}

	var vals [3]int
	for i, f := range fields[1:] {
		v, err := strconv.Atoi(f)
		if err != nil || v <= 0 {
			return ppmHeader{}, fmt.Errorf("ppm: invalid header value %q", f)
		}
		vals[i] = v
	}
	if vals[2] > 65535 {
		return ppmHeader{}, fmt.Errorf("ppm: invalid maxval %d", vals[2])
	}
	return ppmHeader{width: vals[0], height: vals[1], maxval: vals[2]}, nil
}

func ppmToken(r *bufio.Reader) (string, error) {
	var tok []byte
	for {
		c, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && len(tok) > 0 {
				return string(tok), nil
			}
			return "", err
		}
		switch {
		case c == '#' && len(tok) == 0:
			if _, err := r.ReadString('\n'); err != nil {
				return "", err
			}
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			if len(tok) > 0 {
				return string(tok), nil
			}
		default:
			tok = append(tok, c)
		}
	}
}

func decodePPMConfig(r io.Reader) (image.Config, error) {
	h, err := readPPMHeader(bufio.NewReader(r))
	if err != nil {
		return image.Config{}, err
	}
	return image.Config{ColorModel: color.RGBAModel, Width: h.width, Height: h.height}, nil
}

func decodePPM(r io.Reader) (image.Image, error) {
	br := bufio.NewReader(r)
	h, err := readPPMHeader(br)
	if err != nil {
		return nil, err
	}

	depth := 1
	if h.maxval > 255 {
		depth = 2
	}
	raster := make([]byte, h.width*h.height*3*depth)
	if _, err := io.ReadFull(br, raster); err != nil {
		return nil, fmt.Errorf("ppm: reading pixels: %w", err)
	}

	img := image.NewRGBA(image.Rect(0, 0, h.width, h.height))
	for i := 0; i < h.width*h.height*3; i++ {
		v := int(raster[i*depth])
		if depth == 2 {
			v = v<<8 | int(raster[i*depth+1])
		}
		v = min(v, h.maxval)
		img.Pix[i/3*4+i%3] = uint8((v*255 + h.maxval/2) / h.maxval)
	}
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
	return img, nil
}
