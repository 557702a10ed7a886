package export

import (
	"fmt"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"
	"golang.org/x/image/font/gofont/gomonobolditalic"
	"golang.org/x/image/font/gofont/gomonoitalic"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

type variant int

const (
	regular variant = iota
	bold
	italic
	boldItalic
)

func styled(b, i bool) variant {
	switch {
	case b && i:
		return boldItalic
	case b:
		return bold
	case i:
		return italic
	}
	return regular
}

func (v variant) bold() bool   { return v == bold || v == boldItalic }
func (v variant) italic() bool { return v == italic || v == boldItalic }

// fontKey identifies a face by variant and CSS pixel size.
type fontKey struct {
	v    variant
	size float64
}

var loadFonts = sync.OnceValues(func() ([4]*opentype.Font, error) {
	var set [4]*opentype.Font
	for v, ttf := range [4][]byte{gomono.TTF, gomonobold.TTF, gomonoitalic.TTF, gomonobolditalic.TTF} {
		f, err := opentype.Parse(ttf)
		if err != nil {
			return set, fmt.Errorf("parse font %d: %w", v, err)
		}
		set[v] = f
	}
	return set, nil
})

// faceCache creates faces on demand at a fixed scale. It is not safe for
// concurrent use.
type faceCache struct {
	fonts [4]*opentype.Font
	scale float64
	faces map[fontKey]font.Face
}

func newFaceCache(scale float64) (*faceCache, error) {
	fonts, err := loadFonts()
	if err != nil {
		return nil, err
	}
	return &faceCache{fonts: fonts, scale: scale, faces: make(map[fontKey]font.Face)}, nil
}

func (c *faceCache) face(k fontKey) (font.Face, error) {
	if f, ok := c.faces[k]; ok {
		return f, nil
	}
	f, err := opentype.NewFace(c.fonts[k.v], &opentype.FaceOptions{
		Size:    k.size * c.scale,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil, fmt.Errorf("face %v/%v: %w", k.v, k.size, err)
	}
	c.faces[k] = f
	return f, nil
}

// measure returns the advance of s in unscaled pixels.
func (c *faceCache) measure(k fontKey, s string) (float64, error) {
	f, err := c.face(k)
	if err != nil {
		return 0, err
	}
	return fromFixed(font.MeasureString(f, s)) / c.scale, nil
}

// metrics returns ascent and descent in unscaled pixels.
func (c *faceCache) metrics(k fontKey) (ascent, descent float64, err error) {
	f, err := c.face(k)
	if err != nil {
		return 0, 0, err
	}
	m := f.Metrics()
	return fromFixed(m.Ascent) / c.scale, fromFixed(m.Descent) / c.scale, nil
}

func (c *faceCache) Close() error {
	var first error
	for k, f := range c.faces {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
		delete(c.faces, k)
	}
	return first
}

func fromFixed(v fixed.Int26_6) float64 { return float64(v) / 64 }

func toFixed(v float64) fixed.Int26_6 { return fixed.Int26_6(v * 64) }
