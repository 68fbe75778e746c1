// Package imaging normalizes arbitrary user-supplied receipt images into a
// compact, size-bounded JPEG suitable for AI extraction and inline display.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // register GIF decoder
	"image/jpeg"
	_ "image/png" // register PNG decoder
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
	"golang.org/x/image/draw"
)

// ErrDecode reports input that could not be decoded as an image or PDF.
// Callers must not forward undecodable input to extraction.
var ErrDecode = errors.New("imaging: input is not a decodable image")

const (
	// maxDimension is the ceiling on the longest side after normalization.
	maxDimension = 1600

	// maxBytes bounds the encoded payload. The re-encode loop steps quality
	// down until the payload fits; fidelity is traded for storage economy.
	maxBytes = 1 << 20 // 1 MiB
)

// Image is a normalized receipt image: always JPEG, bounded in dimensions and
// encoded size.
type Image struct {
	Data     []byte
	MIMEType string
	Width    int
	Height   int
}

// DataURI returns the embeddable data-URI form of the image.
func (i *Image) DataURI() string {
	return "data:" + i.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// Normalize decodes data of any supported format (JPEG, PNG, GIF, HEIC/HEIF,
// PDF), downscales it to the dimension ceiling, and re-encodes it as JPEG
// under the byte ceiling. The input blob is never retained or modified.
func Normalize(data []byte, contentType string) (*Image, error) {
	img, err := decode(data, contentType)
	if err != nil {
		return nil, err
	}

	img = downscale(img, maxDimension)

	encoded, err := encodeBounded(img, maxBytes)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	return &Image{
		Data:     encoded,
		MIMEType: "image/jpeg",
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
	}, nil
}

// decode turns the raw blob into an image.Image, dispatching on format.
func decode(data []byte, contentType string) (image.Image, error) {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))

	if mimeType == "application/pdf" || bytes.HasPrefix(data, []byte("%PDF")) {
		return decodePDF(data)
	}

	if isHEICData(data) || isHEICMimeType(mimeType) {
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: decoding HEIC: %v", ErrDecode, err)
		}
		return img, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, nil
}

// decodePDF renders the first page of a PDF. Receipts are single page in
// practice.
func decodePDF(data []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("%w: opening PDF: %v", ErrDecode, err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("%w: rendering PDF page: %v", ErrDecode, err)
	}
	return img, nil
}

// downscale shrinks img so its longest side is at most limit. Images already
// within the limit are returned unchanged.
func downscale(img image.Image, limit int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= limit && h <= limit {
		return img
	}

	var dw, dh int
	if w >= h {
		dw = limit
		dh = h * limit / w
	} else {
		dh = limit
		dw = w * limit / h
	}
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

// encodeBounded re-encodes img as JPEG, stepping quality down until the
// payload fits under limit. Returns the lowest-quality encoding if even the
// floor quality exceeds the limit.
func encodeBounded(img image.Image, limit int) ([]byte, error) {
	var buf bytes.Buffer
	for quality := 85; quality >= 35; quality -= 10 {
		buf.Reset()
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encoding JPEG: %w", err)
		}
		if buf.Len() <= limit {
			break
		}
	}
	return append([]byte(nil), buf.Bytes()...), nil
}

// isHEICData checks the ftyp box brands HEIC/HEIF containers start with.
func isHEICData(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isHEICMimeType(mimeType string) bool {
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}
