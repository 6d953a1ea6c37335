// Package testdata generates synthetic CAPTCHA images for tests.
package testdata

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
)

// Captcha draws a deterministic striped image seeded by seed
func Captcha(width, height int, seed uint8) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(x*7) + seed,
				G: uint8(y*13) ^ seed,
				B: uint8((x + y) * 3),
				A: 0xff,
			})
		}
	}
	return img
}

// CaptchaPNG returns Captcha encoded as PNG
func CaptchaPNG(width, height int, seed uint8) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, Captcha(width, height, seed)); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// CaptchaJPEG returns Captcha encoded as JPEG
func CaptchaJPEG(width, height int, seed uint8) []byte {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Captcha(width, height, seed), nil); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
