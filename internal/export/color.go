package export

import (
	"errors"
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// ErrUnsupportedColor is returned for colour expressions the rasterizer
// cannot draw, such as oklch().
var ErrUnsupportedColor = errors.New("unsupported colour expression")

type role int

const (
	roleSurface role = iota
	roleText
	roleMuted
	roleLink
	roleBorder
	roleRule
	roleQuoteBorder
	roleCodeInlineBg
	roleCodeInline
	roleCodeBlockBg
	roleCodeBlock
	roleTableHeaderBg
	roleHeader
	rolePage

	numRoles
)

// Palette is a theme with every colour resolved to an opaque value.
type Palette [numRoles]color.RGBA

// Page returns the page fill colour.
func (p Palette) Page() color.RGBA { return p[rolePage] }

// Header returns the header watermark colour.
func (p Palette) Header() color.RGBA { return p[roleHeader] }

// Resolve collapses t into explicit colours. Transparent colours become
// the page colour and translucent ones are blended over it.
func Resolve(t Theme) (Palette, error) {
	var p Palette

	page, err := parseColor(t.Page, colorful.Color{R: 1, G: 1, B: 1})
	if err != nil {
		return p, fmt.Errorf("page colour: %w", err)
	}
	p[rolePage] = toRGBA(page)

	surface, err := parseColor(t.Surface, page)
	if err != nil {
		return p, fmt.Errorf("surface colour: %w", err)
	}
	p[roleSurface] = toRGBA(surface)

	fields := []struct {
		r    role
		name string
		expr string
	}{
		{roleText, "text", t.Text},
		{roleMuted, "muted", t.Muted},
		{roleLink, "link", t.Link},
		{roleBorder, "border", t.Border},
		{roleRule, "rule", t.Rule},
		{roleQuoteBorder, "quote border", t.QuoteBorder},
		{roleCodeInlineBg, "inline code background", t.CodeInlineBg},
		{roleCodeInline, "inline code", t.CodeInline},
		{roleCodeBlockBg, "code block background", t.CodeBlockBg},
		{roleCodeBlock, "code block", t.CodeBlock},
		{roleTableHeaderBg, "table header background", t.TableHeaderBg},
		{roleHeader, "header", t.Header},
	}
	for _, f := range fields {
		c, err := parseColor(f.expr, surface)
		if err != nil {
			return p, fmt.Errorf("%s colour: %w", f.name, err)
		}
		p[f.r] = toRGBA(c)
	}
	return p, nil
}

// parseColor resolves expr against the colour beneath it.
func parseColor(expr string, under colorful.Color) (colorful.Color, error) {
	s := strings.ToLower(strings.TrimSpace(expr))
	switch {
	case s == "" || s == "transparent":
		return under, nil
	case strings.HasPrefix(s, "#"):
		c, err := colorful.Hex(s)
		if err != nil {
			return colorful.Color{}, fmt.Errorf("%w: %q", ErrUnsupportedColor, expr)
		}
		return c, nil
	case strings.HasPrefix(s, "rgb(") || strings.HasPrefix(s, "rgba("):
		return parseRGB(s, under)
	}
	if i := strings.IndexByte(s, '('); i > 0 {
		return colorful.Color{}, fmt.Errorf("%w: color function %q", ErrUnsupportedColor, s[:i])
	}
	return colorful.Color{}, fmt.Errorf("%w: %q", ErrUnsupportedColor, expr)
}

func parseRGB(s string, under colorful.Color) (colorful.Color, error) {
	open, end := strings.IndexByte(s, '('), strings.LastIndexByte(s, ')')
	if end < open {
		return colorful.Color{}, fmt.Errorf("%w: %q", ErrUnsupportedColor, s)
	}
	parts := strings.FieldsFunc(s[open+1:end], func(r rune) bool {
		return r == ',' || r == ' ' || r == '/'
	})
	if len(parts) != 3 && len(parts) != 4 {
		return colorful.Color{}, fmt.Errorf("%w: %q", ErrUnsupportedColor, s)
	}

	var ch [3]float64
	for i := range 3 {
		v, err := strconv.ParseFloat(parts[i], 64)
		if err != nil || v < 0 || v > 255 {
			return colorful.Color{}, fmt.Errorf("%w: %q", ErrUnsupportedColor, s)
		}
		ch[i] = v / 255
	}
	c := colorful.Color{R: ch[0], G: ch[1], B: ch[2]}

	if len(parts) == 4 {
		a, err := parseAlpha(parts[3])
		if err != nil {
			return colorful.Color{}, fmt.Errorf("%w: %q", ErrUnsupportedColor, s)
		}
		c = under.BlendRgb(c, a)
	}
	return c, nil
}

func parseAlpha(s string) (float64, error) {
	pct := strings.HasSuffix(s, "%")
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	if err != nil {
		return 0, err
	}
	if pct {
		v /= 100
	}
	if v < 0 || v > 1 {
		return 0, fmt.Errorf("alpha %v out of range", v)
	}
	return v, nil
}

func toRGBA(c colorful.Color) color.RGBA {
	r, g, b := c.Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}
