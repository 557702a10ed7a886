package export

import "strings"

// Theme names the colours used to render a note. Values are CSS-style
// colour expressions: #rgb, #rrggbb, rgb(), rgba() or "transparent".
// Transparent colours are seamless with the page.
type Theme struct {
	Name string

	Page          string
	Surface       string
	Text          string
	Muted         string
	Link          string
	Border        string
	Rule          string
	QuoteBorder   string
	CodeInlineBg  string
	CodeInline    string
	CodeBlockBg   string
	CodeBlock     string
	TableHeaderBg string
	Header        string
}

// Default is the paper-coloured theme.
var Default = Theme{
	Name:          "default",
	Page:          "#fdfbf7",
	Surface:       "transparent",
	Text:          "#1f2937",
	Muted:         "#4b5563",
	Link:          "#9a8c73",
	Border:        "#e6ddcc",
	Rule:          "#e6ddcc",
	QuoteBorder:   "#e6ddcc",
	CodeInlineBg:  "#fff7ee",
	CodeInline:    "#9a8c73",
	CodeBlockBg:   "transparent",
	CodeBlock:     "#1a1a1a",
	TableHeaderBg: "transparent",
	Header:        "#a8a29a",
}

// Galaxy is the dark theme.
var Galaxy = Theme{
	Name:          "galaxy",
	Page:          "#0d0b1a",
	Surface:       "transparent",
	Text:          "#e5e7eb",
	Muted:         "#9ca3af",
	Link:          "#ff8ccf",
	Border:        "#374151",
	Rule:          "#374151",
	QuoteBorder:   "#4b5563",
	CodeInlineBg:  "rgba(31, 41, 55, 0.5)",
	CodeInline:    "#ff8ccf",
	CodeBlockBg:   "transparent",
	CodeBlock:     "#d1d5db",
	TableHeaderBg: "transparent",
	Header:        "#6b6880",
}

// Themes lists the built-in themes.
var Themes = []Theme{Default, Galaxy}

// ThemeByName looks a built-in theme up by name, case-insensitively.
// Unknown or blank names yield Default and false.
func ThemeByName(name string) (Theme, bool) {
	name = strings.TrimSpace(name)
	for _, t := range Themes {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return Default, false
}
