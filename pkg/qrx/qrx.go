// Package qrx renders QR codes for the portal's SignedQRCode, the value
// printed on an e-invoice.
package qrx

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
)

const (
	// ModuleSize is the edge of one QR module in pixels.
	ModuleSize = 5

	// Border is the quiet zone around the symbol, in modules.
	Border = 2
)

// ErrEmpty is returned for empty content.
var ErrEmpty = errors.New("qrx: empty content")

// Image returns the QR symbol for content: low error correction, the
// smallest version that fits, black on white.
func Image(content string) (image.Image, error) {
	if content == "" {
		return nil, ErrEmpty
	}

	code, err := qr.Encode(content, qr.L, qr.Auto)
	if err != nil {
		return nil, fmt.Errorf("qrx: failed to encode: %w", err)
	}

	modules := code.Bounds().Dx()
	scaled, err := barcode.Scale(code, modules*ModuleSize, modules*ModuleSize)
	if err != nil {
		return nil, fmt.Errorf("qrx: failed to scale: %w", err)
	}

	pad := Border * ModuleSize
	side := modules*ModuleSize + 2*pad
	img := image.NewGray(image.Rect(0, 0, side, side))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(pad, pad, side-pad, side-pad), scaled, scaled.Bounds().Min, draw.Src)
	return img, nil
}

// PNG returns the QR symbol for content as PNG bytes.
func PNG(content string) ([]byte, error) {
	img, err := Image(content)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("qrx: failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// DataURI returns the PNG as a data:image/png;base64 URI.
func DataURI(content string) (string, error) {
	b, err := PNG(content)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(b), nil
}

// HTML returns an img tag embedding the QR code.
func HTML(content string) (string, error) {
	uri, err := DataURI(content)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`<img src="%s" alt="e-invoice QR code">`, uri), nil
}
