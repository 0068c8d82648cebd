// Package photo prepares classroom photos before they are submitted for recognition.
package photo

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/disintegration/imaging"
)

// ErrNotImage is returned when the payload is not a decodable image.
var ErrNotImage = errors.New("payload is not an image")

// Options bound the normalised output.
type Options struct {
	MaxDimension int
	JPEGQuality  int
}

// Photo is a normalised JPEG ready for upload.
type Photo struct {
	Data        []byte
	ContentType string
	Filename    string
	Width       int
	Height      int
}

// Normalize decodes the upload honouring EXIF orientation, fits it inside MaxDimension and re-encodes
// it as JPEG.
func Normalize(data []byte, filename string, opts Options) (*Photo, error) {
	if len(data) == 0 {
		return nil, ErrNotImage
	}
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	if !strings.HasPrefix(http.DetectContentType(head), "image/") {
		return nil, ErrNotImage
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotImage, err)
	}

	if opts.MaxDimension > 0 {
		b := img.Bounds()
		if b.Dx() > opts.MaxDimension || b.Dy() > opts.MaxDimension {
			img = imaging.Fit(img, opts.MaxDimension, opts.MaxDimension, imaging.Lanczos)
		}
	}

	quality := opts.JPEGQuality
	if quality <= 0 || quality > 100 {
		quality = 90
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}

	b := img.Bounds()
	return &Photo{
		Data:        buf.Bytes(),
		ContentType: "image/jpeg",
		Filename:    jpegName(filename),
		Width:       b.Dx(),
		Height:      b.Dy(),
	}, nil
}

func jpegName(filename string) string {
	name := strings.TrimSpace(filename)
	if name == "" {
		return "photo.jpg"
	}
	if dot := strings.LastIndex(name, "."); dot > 0 {
		name = name[:dot]
	}
	return name + ".jpg"
}
