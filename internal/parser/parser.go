// Package parser derives listing metadata from note text.
package parser

import (
	"bytes"
	"regexp"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// ExcerptLen caps Summary.Excerpt in runes.
const ExcerptLen = 140

var tagRe = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)

// Summary describes a note for the file list.
type Summary struct {
	Title   string   `json:"title,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	Excerpt string   `json:"excerpt,omitempty"`
	Words   int      `json:"words"`
}

// Summarize reads optional YAML frontmatter and the markdown body of text.
// Malformed frontmatter is treated as body.
func Summarize(text string) Summary {
	fm, body := splitFrontmatter([]byte(text))
	return Summary{
		Title:   title(fm, body),
		Tags:    tags(fm, body),
		Excerpt: excerpt(body),
		Words:   len(strings.Fields(body)),
	}
}

// Body returns text without its frontmatter block.
func Body(text string) string {
	_, body := splitFrontmatter([]byte(text))
	return body
}

func splitFrontmatter(data []byte) (map[string]any, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}

	rest := trimmed[len(delim):]
	end := bytes.Index(rest, []byte("\n"+delim))
	if end < 0 {
		return nil, string(data)
	}

	var fm map[string]any
	if err := yaml.Unmarshal(rest[:end], &fm); err != nil {
		return nil, string(data)
	}
	body := strings.TrimLeft(string(rest[end+1+len(delim):]), "\n\r")
	return fm, body
}

// title prefers a frontmatter title, then the first level-one heading.
func title(fm map[string]any, body string) string {
	if s, ok := fm["title"].(string); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, "#"); ok && (strings.HasPrefix(rest, " ") || strings.HasPrefix(rest, "\t")) {
			return strings.TrimSpace(strings.TrimRight(rest, "# \t"))
		}
	}
	return ""
}

func tags(fm map[string]any, body string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(t string) {
		t = strings.TrimSpace(t)
		if t == "" {
			return
		}
		if _, dup := seen[t]; dup {
			return
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}

	switch v := fm["tags"].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				add(s)
			}
		}
	case string:
		for _, s := range strings.Split(v, ",") {
			add(s)
		}
	}

	inFence := false
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		for _, m := range tagRe.FindAllStringSubmatch(line, -1) {
			add(m[1])
		}
	}
	return out
}

// excerpt returns the first prose line, skipping headings and fences.
func excerpt(body string) string {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "```") || line == "---" {
			continue
		}
		if utf8.RuneCountInString(line) > ExcerptLen {
			r := []rune(line)
			return strings.TrimSpace(string(r[:ExcerptLen])) + "…"
		}
		return line
	}
	return ""
}
