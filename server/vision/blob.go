package vision

// BlobParams configures target-color classification and component size
// limits.
type BlobParams struct {
	BrightnessFloor   uint8   `json:"brightness_floor"`
	SaturationCeiling float64 `json:"saturation_ceiling"`
	MinPixels         int     `json:"min_pixels"`
	MaxPixels         int     `json:"max_pixels"`
	// Stride is the seed sampling step. Any component at least Stride x
	// Stride pixels is guaranteed to be seeded; smaller ones may be missed.
	Stride int `json:"stride"`
}

func DefaultBlobParams() BlobParams {
	return BlobParams{
		BrightnessFloor:   200,
		SaturationCeiling: 0.3,
		MinPixels:         4,
		MaxPixels:         600,
		Stride:            1,
	}
}

// Blob is an accepted connected component. Centroid coordinates are in
// buffer pixels, measured at pixel centers.
type Blob struct {
	CentroidX      float64
	CentroidY      float64
	Pixels         int
	MeanBrightness float64
	Confidence     float64
}

// IsTargetColor classifies a pixel. Both bounds are inclusive.
func IsTargetColor(r, g, b uint8, p BlobParams) bool {
	hi := max(r, g, b)
	if hi < p.BrightnessFloor {
		return false
	}
	return saturation(r, g, b) <= p.SaturationCeiling
}

func saturation(r, g, b uint8) float64 {
	hi := max(r, g, b)
	if hi == 0 {
		return 0
	}
	lo := min(r, g, b)
	return float64(hi-lo) / float64(hi)
}

// Detector finds the brightest compact target-colored component inside a
// region. It keeps scratch buffers between calls so steady-state detection
// does not allocate; a Detector must not be shared between goroutines.
type Detector struct {
	visited []uint32
	gen     uint32
	stack   []int32
}

func NewDetector() *Detector {
	return &Detector{}
}

// FindBlob runs a one-off detection with a fresh detector.
func FindBlob(f Frame, region Rect, p BlobParams) (Blob, bool) {
	return NewDetector().Detect(f, region, p)
}

type component struct {
	pixels     int
	overflow   bool
	sumX, sumY float64
	sumBright  float64
}

// Detect returns the accepted component with the highest mean brightness.
// Invalid frames and empty or out-of-bounds regions yield no detection.
func (d *Detector) Detect(f Frame, region Rect, p BlobParams) (Blob, bool) {
	if !f.Valid() || region.Empty() {
		return Blob{}, false
	}
	r := region.ClipTo(f)
	if r.Empty() {
		return Blob{}, false
	}

	d.prepare(r.Width() * r.Height())

	step := max(p.Stride, 1)
	minPixels := max(p.MinPixels, 1)

	var best Blob
	found := false
	for y := r.MinY; y < r.MaxY; y += step {
		for x := r.MinX; x < r.MaxX; x += step {
			idx := (y-r.MinY)*r.Width() + (x - r.MinX)
			if d.visited[idx] == d.gen {
				continue
			}
			cr, cg, cb := f.RGB(x, y)
			if !IsTargetColor(cr, cg, cb, p) {
				continue
			}

			c := d.grow(f, r, x, y, p)
			if c.overflow || c.pixels < minPixels {
				continue
			}
			n := float64(c.pixels)
			mean := c.sumBright / n
			if !found || mean > best.MeanBrightness {
				best = Blob{
					CentroidX:      c.sumX / n,
					CentroidY:      c.sumY / n,
					Pixels:         c.pixels,
					MeanBrightness: mean,
					Confidence:     mean / 255,
				}
				found = true
			}
		}
	}
	return best, found
}

func (d *Detector) prepare(area int) {
	if len(d.visited) < area {
		d.visited = make([]uint32, area)
		d.gen = 0
	}
	d.gen++
	if d.gen == 0 {
		clear(d.visited)
		d.gen = 1
	}
	d.stack = d.stack[:0]
}

// grow flood-fills the 4-connected component containing (sx, sy). Once the
// component exceeds MaxPixels the remaining pixels are still marked visited
// so the rejected component is not re-seeded. Each pixel is filled at most
// once per Detect, so the work is bounded by the search region's area, not
// by MaxPixels.
func (d *Detector) grow(f Frame, r Rect, sx, sy int, p BlobParams) component {
	w := r.Width()
	var c component

	push := func(x, y int) {
		idx := (y-r.MinY)*w + (x - r.MinX)
		if d.visited[idx] == d.gen {
			return
		}
		cr, cg, cb := f.RGB(x, y)
		if !IsTargetColor(cr, cg, cb, p) {
			return
		}
		d.visited[idx] = d.gen
		d.stack = append(d.stack, int32(idx))
	}

	push(sx, sy)
	for len(d.stack) > 0 {
		idx := int(d.stack[len(d.stack)-1])
		d.stack = d.stack[:len(d.stack)-1]
		x := r.MinX + idx%w
		y := r.MinY + idx/w

		c.pixels++
		if p.MaxPixels > 0 && c.pixels > p.MaxPixels {
			c.overflow = true
		}
		if !c.overflow {
			cr, cg, cb := f.RGB(x, y)
			c.sumX += float64(x) + 0.5
			c.sumY += float64(y) + 0.5
			c.sumBright += float64(max(cr, cg, cb))
		}

		if x > r.MinX {
			push(x-1, y)
		}
		if x+1 < r.MaxX {
			push(x+1, y)
		}
		if y > r.MinY {
			push(x, y-1)
		}
		if y+1 < r.MaxY {
			push(x, y+1)
		}
	}
	return c
}
