// Package media resizes profile pictures and stores them in S3.
package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"path"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ProfileSize is the edge length of stored profile pictures.
const ProfileSize = 200

// MaxPixels bounds the decoded size of an upload.
const MaxPixels = 25_000_000

var ErrTooLarge = errors.New("image dimensions are too large")

// Resized is an encoded image ready for upload.
type Resized struct {
	Data        []byte
	Format      string
	ContentType string
	Ext         string
}

// Resize decodes src, scales it to size x size and re-encodes it in its
// original format. Formats without an encoder fall back to JPEG.
func Resize(src []byte, size int) (*Resized, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
	}

	img, format, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	out := Resized{Format: format}
	switch format {
	case "png":
		err = png.Encode(&buf, dst)
		out.ContentType, out.Ext = "image/png", ".png"
	case "gif":
		err = gif.Encode(&buf, dst, nil)
		out.ContentType, out.Ext = "image/gif", ".gif"
	case "bmp":
		err = bmp.Encode(&buf, dst)
		out.ContentType, out.Ext = "image/bmp", ".bmp"
	case "tiff":
		err = tiff.Encode(&buf, dst, nil)
		out.ContentType, out.Ext = "image/tiff", ".tiff"
	default:
		out.Format = "jpeg"
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 90})
		out.ContentType, out.Ext = "image/jpeg", ".jpg"
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", out.Format, err)
	}
	out.Data = buf.Bytes()
	return &out, nil
}

// objectName keeps the uploaded file's base name but forces the extension of
// the stored format.
func objectName(filename, ext string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	base = strings.TrimSuffix(base, path.Ext(base))
	if base == "" || base == "." || base == "/" {
		base = "profile"
	}
	return base + ext
}
