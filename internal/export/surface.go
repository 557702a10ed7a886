package export

import (
	"errors"
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

var errReleased = errors.New("surface already released")

// Surface is an off-screen rendering of a note: a display list plus the
// font faces needed to draw it.
type Surface struct {
	width, height float64
	items         []item
	layout        *faceCache
	raster        *faceCache
	released      bool
}

// Size returns the surface dimensions in CSS pixels.
func (s *Surface) Size() (w, h float64) { return s.width, s.height }

// RasterPixels returns the pixel count Rasterize would allocate at scale.
func (s *Surface) RasterPixels(scale int) int64 {
	sc := float64(scale)
	return int64(math.Ceil(s.width*sc)) * int64(math.Ceil(s.height*sc))
}

// Rasterize draws the surface at scale device pixels per CSS pixel.
func (s *Surface) Rasterize(p Palette, scale int) (*image.RGBA, error) {
	if s.released {
		return nil, errReleased
	}
	if scale < 1 {
		return nil, fmt.Errorf("invalid scale %d", scale)
	}
	if s.raster == nil || s.raster.scale != float64(scale) {
		if s.raster != nil {
			s.raster.Close()
		}
		fc, err := newFaceCache(float64(scale))
		if err != nil {
			return nil, err
		}
		s.raster = fc
	}

	sc := float64(scale)
	w := int(math.Ceil(s.width * sc))
	h := int(math.Ceil(s.height * sc))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(p[roleSurface]), image.Point{}, draw.Src)

	for _, it := range s.items {
		switch it.kind {
		case kindRect:
			r := image.Rect(
				int(math.Round(it.x*sc)), int(math.Round(it.y*sc)),
				int(math.Round((it.x+it.w)*sc)), int(math.Round((it.y+it.h)*sc)),
			)
			if r.Dx() == 0 {
				r.Max.X++
			}
			if r.Dy() == 0 {
				r.Max.Y++
			}
			draw.Draw(img, r, image.NewUniform(p[it.color]), image.Point{}, draw.Over)

		case kindText:
			face, err := s.raster.face(it.font)
			if err != nil {
				return nil, err
			}
			d := font.Drawer{
				Dst:  img,
				Src:  image.NewUniform(p[it.color]),
				Face: face,
				Dot:  fixed.Point26_6{X: toFixed(it.x * sc), Y: toFixed(it.y * sc)},
			}
			d.DrawString(it.text)
		}
	}
	return img, nil
}

// Release frees the surface's faces. It is safe to call more than once.
func (s *Surface) Release() {
	if s.released {
		return
	}
	s.released = true
	s.items = nil
	if s.layout != nil {
		s.layout.Close()
	}
	if s.raster != nil {
		s.raster.Close()
	}
}
