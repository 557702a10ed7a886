package export

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// Layout metrics in CSS pixels.
const (
	bodySize       = 14.0
	bodyLine       = bodySize * 1.625
	codeSize       = 12.0
	codeLine       = 16.0
	inlineCodeSize = bodySize * 0.9
	inset          = 5.0
	tabWidth       = 4
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

type itemKind int

const (
	kindRect itemKind = iota
	kindText
)

// item is one display-list entry. Text items are positioned by baseline.
type item struct {
	kind       itemKind
	x, y, w, h float64
	text       string
	font       fontKey
	color      role
}

type frame struct {
	x, w   float64
	color  role
	italic bool
}

type run struct {
	text      string
	font      fontKey
	color     role
	code      bool
	underline bool
	strike    bool
	id        int
}

type frag struct {
	run
	x, w  float64
	space bool
	pad   bool
}

type layouter struct {
	src     []byte
	faces   *faceCache
	items   []item
	y       float64
	pending float64
	started bool
	nextID  int
	err     error
}

// Render lays content out as markdown on a surface width CSS pixels wide.
// The caller must Release the surface.
func Render(content string, width int) (*Surface, error) {
	if width <= 2*inset {
		return nil, fmt.Errorf("surface width %d too small", width)
	}
	faces, err := newFaceCache(1)
	if err != nil {
		return nil, err
	}

	l := &layouter{src: []byte(content), faces: faces, y: inset}
	root := markdown.Parser().Parse(text.NewReader(l.src))
	l.blocks(root, frame{x: inset, w: float64(width) - 2*inset, color: roleText})
	if l.err != nil {
		faces.Close()
		return nil, l.err
	}

	return &Surface{
		width:  float64(width),
		height: math.Ceil(l.y + l.pending + inset),
		items:  l.items,
		layout: faces,
	}, nil
}

func (l *layouter) blocks(parent ast.Node, f frame) {
	for n := parent.FirstChild(); n != nil && l.err == nil; n = n.NextSibling() {
		l.block(n, f)
	}
}

func (l *layouter) block(node ast.Node, f frame) {
	switch n := node.(type) {
	case *ast.Heading:
		size, lh, mt, mb := headingMetrics(n.Level)
		l.gap(mt)
		l.flow(l.runs(n, f, fontKey{styled(true, f.italic), size}), f, lh)
		l.pending = mb

	case *ast.Paragraph:
		l.gap(0)
		l.flow(l.runs(n, f, fontKey{styled(false, f.italic), bodySize}), f, bodyLine)
		l.pending = 12

	case *ast.TextBlock:
		l.gap(0)
		l.flow(l.runs(n, f, fontKey{styled(false, f.italic), bodySize}), f, bodyLine)

	case *ast.Blockquote:
		l.gap(12)
		top := l.y
		l.blocks(n, frame{x: f.x + 16, w: f.w - 16, color: roleMuted, italic: true})
		l.rect(f.x, top, 4, l.y-top, roleQuoteBorder)
		l.pending = max(l.pending, 12)

	case *ast.List:
		l.gap(0)
		l.list(n, f)
		l.pending = max(l.pending, 12)

	case *ast.FencedCodeBlock:
		l.gap(12)
		l.codeBlock(n, f)
		l.pending = 12

	case *ast.CodeBlock:
		l.gap(12)
		l.codeBlock(n, f)
		l.pending = 12

	case *ast.ThematicBreak:
		l.gap(16)
		l.rect(f.x, l.y, f.w, 1, roleRule)
		l.y++
		l.pending = 16

	case *east.Table:
		l.gap(12)
		l.table(n, f)
		l.pending = 12

	case *ast.HTMLBlock:
		// Raw HTML is not rendered.

	default:
		l.blocks(n, f)
	}
}

func headingMetrics(level int) (size, lineHeight, mt, mb float64) {
	switch level {
	case 1:
		return 24, 32, 16, 8
	case 2:
		return 20, 28, 16, 8
	case 3:
		return 18, 28, 12, 4
	default:
		return bodySize, bodyLine, 12, 4
	}
}

// gap collapses the previous block's bottom margin with the next block's
// top margin. The first block gets no top margin.
func (l *layouter) gap(mt float64) {
	if l.started {
		l.y += max(l.pending, mt)
	}
	l.pending = 0
	l.started = true
}

func (l *layouter) list(n *ast.List, f frame) {
	index := n.Start
	if index == 0 {
		index = 1
	}
	inner := frame{x: f.x + 20, w: f.w - 20, color: f.color, italic: f.italic}
	k := fontKey{styled(false, f.italic), bodySize}

	for li := n.FirstChild(); li != nil; li = li.NextSibling() {
		marker := "•"
		if n.IsOrdered() {
			marker = strconv.Itoa(index) + "."
		}
		index++

		l.gap(0)
		top := l.y
		l.blocks(li, inner)
		if l.y == top {
			l.y += bodyLine
		}

		asc, desc := l.metrics(k)
		l.text(inner.x-6-l.measure(k, marker), top+baseline(bodyLine, asc, desc), marker, k, f.color)
		l.pending = max(l.pending, 4)
	}
}

func (l *layouter) codeBlock(n ast.Node, f frame) {
	var b strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(l.src))
	}
	src := strings.TrimSuffix(b.String(), "\n")

	top := l.y
	mark := len(l.items)
	k := fontKey{regular, codeSize}
	asc, desc := l.metrics(k)
	x, w := f.x+13, f.w-26
	y := top + 13

	if src != "" {
		for _, line := range strings.Split(src, "\n") {
			line = strings.ReplaceAll(line, "\t", strings.Repeat(" ", tabWidth))
			for _, chunk := range l.split(k, line, w) {
				l.text(x, y+baseline(codeLine, asc, desc), chunk, k, roleCodeBlock)
				y += codeLine
			}
		}
	}

	bottom := y + 13
	l.insert(mark, item{kind: kindRect, x: f.x, y: top, w: f.w, h: bottom - top, color: roleCodeBlockBg})
	l.border(f.x, top, f.w, bottom-top, roleBorder)
	l.y = bottom
}

func (l *layouter) table(t *east.Table, f frame) {
	type cell struct {
		runs []run
	}
	var rows [][]cell
	var header []bool
	cols := 0
	for r := t.FirstChild(); r != nil; r = r.NextSibling() {
		_, isHeader := r.(*east.TableHeader)
		var row []cell
		for c := r.FirstChild(); c != nil; c = c.NextSibling() {
			row = append(row, cell{runs: l.runs(c, f, fontKey{styled(isHeader, f.italic), bodySize})})
		}
		rows = append(rows, row)
		header = append(header, isHeader)
		cols = max(cols, len(row))
	}
	if cols == 0 {
		return
	}

	widths := make([]float64, cols)
	for _, row := range rows {
		for i, c := range row {
			var w float64
			for _, r := range c.runs {
				w += l.measure(r.font, strings.ReplaceAll(r.text, "\n", " "))
				if r.code {
					w += 8
				}
			}
			widths[i] = max(widths[i], w+18)
		}
	}
	if total := sum(widths); total > f.w {
		for i := range widths {
			widths[i] = max(24, math.Floor(widths[i]*f.w/total))
		}
	}

	top := l.y
	for ri, row := range rows {
		mark := len(l.items)
		bottom := top
		x := f.x
		for i := range cols {
			l.y = top + 5
			if i < len(row) {
				l.flow(row[i].runs, frame{x: x + 9, w: widths[i] - 18, color: f.color, italic: f.italic}, bodyLine)
			}
			bottom = max(bottom, l.y)
			x += widths[i] - 1
		}
		bottom += 5
		if bottom-top < bodyLine+10 {
			bottom = top + bodyLine + 10
		}

		width := sum(widths) - float64(cols-1)
		if header[ri] {
			l.insert(mark, item{kind: kindRect, x: f.x, y: top, w: width, h: bottom - top, color: roleTableHeaderBg})
		}
		x = f.x
		for i := range cols {
			l.border(x, top, widths[i], bottom-top, roleBorder)
			x += widths[i] - 1
		}
		top = bottom - 1
	}
	l.y = top + 1
}

// runs flattens the inline children of n into styled text runs.
func (l *layouter) runs(n ast.Node, f frame, base fontKey) []run {
	var out []run
	l.collect(n, run{font: base, color: f.color}, &out)
	return out
}

func (l *layouter) collect(n ast.Node, st run, out *[]run) {
	add := func(s string, r run) {
		if s == "" {
			return
		}
		r.text = s
		*out = append(*out, r)
	}

	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch c := c.(type) {
		case *ast.Text:
			add(string(c.Segment.Value(l.src)), st)
			if c.HardLineBreak() {
				add("\n", st)
			} else if c.SoftLineBreak() {
				add(" ", st)
			}

		case *ast.String:
			add(string(c.Value), st)

		case *ast.CodeSpan:
			l.nextID++
			add(plainText(c, l.src), run{
				font:  fontKey{regular, inlineCodeSize},
				color: roleCodeInline,
				code:  true,
				id:    l.nextID,
			})

		case *ast.Emphasis:
			s := st
			s.font.v = styled(st.font.v.bold() || c.Level >= 2, st.font.v.italic() || c.Level == 1)
			l.collect(c, s, out)

		case *east.Strikethrough:
			s := st
			s.strike = true
			l.collect(c, s, out)

		case *ast.Link:
			s := st
			s.color, s.underline = roleLink, true
			l.collect(c, s, out)

		case *ast.AutoLink:
			s := st
			s.color, s.underline = roleLink, true
			add(string(c.URL(l.src)), s)

		case *ast.Image:
			s := st
			s.color = roleMuted
			l.collect(c, s, out)

		case *east.TaskCheckBox:
			if c.IsChecked {
				add("[x] ", st)
			} else {
				add("[ ] ", st)
			}

		case *ast.RawHTML:

		default:
			l.collect(c, st, out)
		}
	}
}

// flow word-wraps runs into lines of the frame width starting at l.y.
func (l *layouter) flow(runs []run, f frame, lineHeight float64) {
	if len(runs) == 0 {
		return
	}
	base := fontKey{styled(runs[0].font.v.bold(), f.italic), runs[0].font.size}
	if runs[0].code {
		base = fontKey{styled(false, f.italic), bodySize}
	}

	var line []frag
	x := 0.0
	flush := func() {
		for len(line) > 0 && line[len(line)-1].space {
			line = line[:len(line)-1]
		}
		l.emit(line, f, lineHeight, base)
		l.y += lineHeight
		line = line[:0]
		x = 0
	}
	place := func(r run, tok string, w float64, space, pad bool) {
		line = append(line, frag{run: r, x: x, w: w, space: space, pad: pad})
		line[len(line)-1].text = tok
		x += w
	}

	for _, r := range runs {
		if r.code {
			place(r, "", 4, false, true)
		}
		for _, tok := range tokens(r.text) {
			if tok == "\n" {
				flush()
				continue
			}
			space := strings.TrimSpace(tok) == ""
			if space && x == 0 {
				continue
			}
			w := l.measure(r.font, tok)
			if !space && x > 0 && x+w > f.w {
				flush()
			}
			if !space && w > f.w {
				pieces := l.split(r.font, tok, f.w)
				for _, p := range pieces[:len(pieces)-1] {
					place(r, p, l.measure(r.font, p), false, false)
					flush()
				}
				tok = pieces[len(pieces)-1]
				w = l.measure(r.font, tok)
			}
			place(r, tok, w, space, false)
		}
		if r.code {
			place(r, "", 4, false, true)
		}
	}
	if len(line) > 0 {
		flush()
	}
}

// emit draws one laid-out line. All fragments share the base baseline.
func (l *layouter) emit(line []frag, f frame, lineHeight float64, base fontKey) {
	asc, desc := l.metrics(base)
	bl := l.y + baseline(lineHeight, asc, desc)

	for i := 0; i < len(line); {
		if !line[i].code {
			i++
			continue
		}
		j := i
		for j+1 < len(line) && line[j+1].code && line[j+1].id == line[i].id {
			j++
		}
		ca, cd := l.metrics(line[i].font)
		x0, x1 := f.x+line[i].x, f.x+line[j].x+line[j].w
		y0, y1 := bl-ca-2, bl+cd+2
		l.rect(x0, y0, x1-x0, y1-y0, roleCodeInlineBg)
		l.border(x0, y0, x1-x0, y1-y0, roleBorder)
		i = j + 1
	}

	for _, fr := range line {
		if fr.pad {
			continue
		}
		if !fr.space {
			l.text(f.x+fr.x, bl, fr.text, fr.font, fr.color)
		}
		if fr.underline {
			l.rect(f.x+fr.x, bl+1.5, fr.w, 1, fr.color)
		}
		if fr.strike {
			a, _ := l.metrics(fr.font)
			l.rect(f.x+fr.x, bl-a*0.3, fr.w, 1, fr.color)
		}
	}
}

// split breaks s into pieces no wider than w, at least one rune each.
func (l *layouter) split(k fontKey, s string, w float64) []string {
	if s == "" || l.measure(k, s) <= w {
		return []string{s}
	}
	var out []string
	start, width := 0, 0.0
	for i, r := range s {
		rw := l.measure(k, string(r))
		if width+rw > w && i > start {
			out = append(out, s[start:i])
			start, width = i, 0
		}
		width += rw
	}
	return append(out, s[start:])
}

// tokens splits s into alternating words and whitespace, with each
// newline as its own token.
func tokens(s string) []string {
	var out []string
	start := 0
	inSpace := false
	for i, r := range s {
		if r == '\n' {
			if i > start {
				out = append(out, s[start:i])
			}
			out = append(out, "\n")
			start = i + 1
			inSpace = false
			continue
		}
		sp := unicode.IsSpace(r)
		if i > start && sp != inSpace {
			out = append(out, s[start:i])
			start = i
		}
		inSpace = sp
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

func baseline(lineHeight, ascent, descent float64) float64 {
	return (lineHeight-(ascent+descent))/2 + ascent
}

func (l *layouter) measure(k fontKey, s string) float64 {
	if l.err != nil {
		return 0
	}
	w, err := l.faces.measure(k, s)
	if err != nil {
		l.err = err
	}
	return w
}

func (l *layouter) metrics(k fontKey) (float64, float64) {
	if l.err != nil {
		return 0, 0
	}
	a, d, err := l.faces.metrics(k)
	if err != nil {
		l.err = err
	}
	return a, d
}

func (l *layouter) text(x, y float64, s string, k fontKey, c role) {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "�")
	}
	l.items = append(l.items, item{kind: kindText, x: x, y: y, text: s, font: k, color: c})
}

func (l *layouter) rect(x, y, w, h float64, c role) {
	if w <= 0 || h <= 0 {
		return
	}
	l.items = append(l.items, item{kind: kindRect, x: x, y: y, w: w, h: h, color: c})
}

func (l *layouter) border(x, y, w, h float64, c role) {
	l.rect(x, y, w, 1, c)
	l.rect(x, y+h-1, w, 1, c)
	l.rect(x, y, 1, h, c)
	l.rect(x+w-1, y, 1, h, c)
}

func (l *layouter) insert(at int, it item) {
	l.items = slices.Insert(l.items, at, it)
}

func plainText(n ast.Node, src []byte) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
		case *ast.String:
			b.Write(t.Value)
		default:
			b.WriteString(plainText(c, src))
		}
	}
	return b.String()
}

func sum(xs []float64) float64 {
	var t float64
	for _, x := range xs {
		t += x
	}
	return t
}
