package processor

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/san-kum/shot-tracer/server/models"
	"github.com/san-kum/shot-tracer/server/vision"
)

var ErrInvalidFrame = errors.New("invalid frame")

// DecodeFrame turns a request into a frame view. Raw pixel buffers are used
// in place; a malformed geometry is left for the session to skip. Encoded
// images that fail to decode are rejected.
func DecodeFrame(req *models.FrameRequest) (vision.Frame, error) {
	if !req.Orientation.Valid() {
		return vision.Frame{}, fmt.Errorf("%w: unknown orientation %q", ErrInvalidFrame, req.Orientation)
	}

	if req.Image != "" {
		data, err := decodeDataURL(req.Image)
		if err != nil {
			return vision.Frame{}, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
		}
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return vision.Frame{}, fmt.Errorf("%w: decode image: %v", ErrInvalidFrame, err)
		}
		return vision.FrameFromImage(img), nil
	}

	format := vision.PixelFormat(strings.ToLower(req.Format))
	if format == "" {
		format = vision.FormatRGBA
	}
	stride := req.Stride
	if stride == 0 {
		stride = req.Width * 4
	}
	return vision.Frame{
		Pix:    req.Pixels,
		Width:  req.Width,
		Height: req.Height,
		Stride: stride,
		Format: format,
	}, nil
}

// decodeDataURL accepts "data:image/png;base64,..." or bare base64.
func decodeDataURL(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		comma := strings.IndexByte(s, ',')
		if comma < 0 || !strings.HasSuffix(s[:comma], ";base64") {
			return nil, errors.New("data url must be base64 encoded")
		}
		s = s[comma+1:]
	}
	return base64.StdEncoding.DecodeString(s)
}
