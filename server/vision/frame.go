package vision

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/san-kum/shot-tracer/server/models"
)

type PixelFormat string

const (
	FormatRGBA PixelFormat = "rgba"
	FormatBGRA PixelFormat = "bgra"
)

// Frame is a read-only view over a 4-byte-per-pixel capture buffer.
type Frame struct {
	Pix    []byte
	Width  int
	Height int
	Stride int
	Format PixelFormat
}

// Valid reports whether the buffer is large enough for its declared geometry.
func (f Frame) Valid() bool {
	if f.Width <= 0 || f.Height <= 0 || f.Stride < f.Width*4 {
		return false
	}
	if f.Format != FormatRGBA && f.Format != FormatBGRA {
		return false
	}
	return len(f.Pix) >= (f.Height-1)*f.Stride+f.Width*4
}

// RGB returns the red, green and blue bytes of the pixel at (x, y). The
// caller guarantees the coordinates are inside the frame.
func (f Frame) RGB(x, y int) (r, g, b uint8) {
	i := y*f.Stride + x*4
	if f.Format == FormatBGRA {
		return f.Pix[i+2], f.Pix[i+1], f.Pix[i]
	}
	return f.Pix[i], f.Pix[i+1], f.Pix[i+2]
}

// FrameFromImage converts a decoded image into an RGBA frame.
func FrameFromImage(img image.Image) Frame {
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Rect.Min != (image.Point{}) {
		b := img.Bounds()
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Rect, img, b.Min, draw.Src)
	}
	return Frame{
		Pix:    rgba.Pix,
		Width:  rgba.Rect.Dx(),
		Height: rgba.Rect.Dy(),
		Stride: rgba.Stride,
		Format: FormatRGBA,
	}
}

// Rect is a half-open pixel rectangle [MinX, MaxX) x [MinY, MaxY).
type Rect struct {
	MinX, MinY int
	MaxX, MaxY int
}

func (r Rect) Empty() bool {
	return r.MaxX <= r.MinX || r.MaxY <= r.MinY
}

func (r Rect) Width() int  { return r.MaxX - r.MinX }
func (r Rect) Height() int { return r.MaxY - r.MinY }

// ClipTo intersects the rectangle with the frame bounds.
func (r Rect) ClipTo(f Frame) Rect {
	c := Rect{
		MinX: max(r.MinX, 0),
		MinY: max(r.MinY, 0),
		MaxX: min(r.MaxX, f.Width),
		MaxY: min(r.MaxY, f.Height),
	}
	if c.Empty() {
		return Rect{}
	}
	return c
}

func (r Rect) String() string {
	return fmt.Sprintf("[%d,%d)-[%d,%d)", r.MinX, r.MinY, r.MaxX, r.MaxY)
}

// ToBuffer maps a display-space normalized point into normalized buffer
// coordinates for the given orientation.
func ToBuffer(p models.NormalizedPoint, o models.Orientation) models.NormalizedPoint {
	switch o {
	case models.OrientationRight:
		return models.NormalizedPoint{X: p.Y, Y: 1 - p.X}
	case models.OrientationLeft:
		return models.NormalizedPoint{X: 1 - p.Y, Y: p.X}
	case models.OrientationDown:
		return models.NormalizedPoint{X: 1 - p.X, Y: 1 - p.Y}
	default:
		return p
	}
}

// FromBuffer is the inverse of ToBuffer.
func FromBuffer(p models.NormalizedPoint, o models.Orientation) models.NormalizedPoint {
	switch o {
	case models.OrientationRight:
		return models.NormalizedPoint{X: 1 - p.Y, Y: p.X}
	case models.OrientationLeft:
		return models.NormalizedPoint{X: p.Y, Y: 1 - p.X}
	case models.OrientationDown:
		return models.NormalizedPoint{X: 1 - p.X, Y: 1 - p.Y}
	default:
		return p
	}
}

// WindowToPixels maps a display-space window (center plus normalized width
// and height) to a buffer pixel rectangle clipped to the frame.
func WindowToPixels(f Frame, center models.NormalizedPoint, w, h float64, o models.Orientation) Rect {
	corners := [2]models.NormalizedPoint{
		ToBuffer(models.NormalizedPoint{X: center.X - w/2, Y: center.Y - h/2}, o),
		ToBuffer(models.NormalizedPoint{X: center.X + w/2, Y: center.Y + h/2}, o),
	}
	minX := min(corners[0].X, corners[1].X)
	maxX := max(corners[0].X, corners[1].X)
	minY := min(corners[0].Y, corners[1].Y)
	maxY := max(corners[0].Y, corners[1].Y)

	r := Rect{
		MinX: int(minX * float64(f.Width)),
		MinY: int(minY * float64(f.Height)),
		MaxX: int(maxX*float64(f.Width)) + 1,
		MaxY: int(maxY*float64(f.Height)) + 1,
	}
	return r.ClipTo(f)
}

// PixelToNormalized converts a buffer pixel position into display-space
// normalized coordinates.
func PixelToNormalized(f Frame, x, y float64, o models.Orientation) models.NormalizedPoint {
	buf := models.NormalizedPoint{X: x / float64(f.Width), Y: y / float64(f.Height)}
	return FromBuffer(buf, o)
}
