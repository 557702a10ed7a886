package parser

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSummarize_FrontmatterAndBody(t *testing.T) {
	s := Summarize("---\ntitle: Hello\ntags:\n  - go\n  - notes\n---\n# Heading\nBody text here.\n")
	if s.Title != "Hello" {
		t.Errorf("title = %q, want %q", s.Title, "Hello")
	}
	if len(s.Tags) != 2 || s.Tags[0] != "go" || s.Tags[1] != "notes" {
		t.Errorf("tags = %v, want [go notes]", s.Tags)
	}
	if s.Excerpt != "Body text here." {
		t.Errorf("excerpt = %q", s.Excerpt)
	}
	if s.Words != 5 {
		t.Errorf("words = %d, want 5", s.Words)
	}
}

func TestSummarize_FirstHeading(t *testing.T) {
	s := Summarize("intro line\n\n## Not this\n# Cell Biology #\nmore")
	if s.Title != "Cell Biology" {
		t.Errorf("title = %q, want %q", s.Title, "Cell Biology")
	}
}

func TestSummarize_HashtagIsNotHeading(t *testing.T) {
	s := Summarize("#todo buy milk")
	if s.Title != "" {
		t.Errorf("title = %q, want empty", s.Title)
	}
	if len(s.Tags) != 1 || s.Tags[0] != "todo" {
		t.Errorf("tags = %v, want [todo]", s.Tags)
	}
}

func TestSummarize_InvalidYAMLFallback(t *testing.T) {
	in := "---\n: invalid: yaml: {{{\n---\nBody\n"
	if got := Body(in); got != in {
		t.Errorf("invalid frontmatter should be kept as body, got %q", got)
	}
}

func TestSummarize_Unclosed(t *testing.T) {
	in := "---\ntitle: x\nno closing"
	if got := Body(in); got != in {
		t.Errorf("body = %q", got)
	}
}

func TestTags_FrontmatterStringAndFences(t *testing.T) {
	s := Summarize("---\ntags: alpha, beta\n---\nSee #gamma and #alpha.\n```\n#notatag\n```\n")
	want := []string{"alpha", "beta", "gamma"}
	if strings.Join(s.Tags, ",") != strings.Join(want, ",") {
		t.Errorf("tags = %v, want %v", s.Tags, want)
	}
}

func TestExcerpt_Truncates(t *testing.T) {
	s := Summarize(strings.Repeat("a", 500))
	if n := utf8.RuneCountInString(s.Excerpt); n != ExcerptLen+1 {
		t.Errorf("excerpt runes = %d, want %d", n, ExcerptLen+1)
	}
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize("")
	if s.Title != "" || s.Excerpt != "" || s.Words != 0 || len(s.Tags) != 0 {
		t.Errorf("summary = %+v, want zero", s)
	}
}
