// Package imageutil converts uploaded CAPTCHA images into the representations
// the label stores and the model providers expect.
package imageutil

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
)

// DefaultMaxWidth bounds images stored as base64 text in spreadsheet cells
const DefaultMaxWidth = 200

// ErrUnsupportedImage is returned for payloads image.Decode does not understand
var ErrUnsupportedImage = errors.New("unsupported image format")

// Decode reads a PNG, JPEG or GIF payload
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, "", ErrUnsupportedImage
		}
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return img, format, nil
}

// EncodePNG encodes img losslessly
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// NormalizeToPNG decodes any supported upload and re-encodes it as PNG
func NormalizeToPNG(data []byte) ([]byte, error) {
	img, format, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if format == "png" {
		return data, nil
	}
	return EncodePNG(img)
}

// Downscale shrinks img to maxWidth keeping the aspect ratio.
// Images already narrow enough are returned unchanged.
func Downscale(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return img
	}
	height := b.Dy() * maxWidth / b.Dx()
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

// ToBase64PNG downscales a PNG payload and returns it base64 encoded
func ToBase64PNG(data []byte, maxWidth int) (string, error) {
	img, _, err := Decode(data)
	if err != nil {
		return "", err
	}
	encoded, err := EncodePNG(Downscale(img, maxWidth))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(encoded), nil
}

// FromBase64PNG reverses ToBase64PNG
func FromBase64PNG(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 image: %w", err)
	}
	if _, _, err := Decode(data); err != nil {
		return nil, err
	}
	return data, nil
}
