package parser

import (
	"testing"
)

func TestParse_DeclaredSourceAndBody(t *testing.T) {
	input := []byte("---\nsource: \"[[Videos/clip.mp4]]\"\ntags:\n  - video\n---\n![[clip.mp4]]")
	r, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Source != "Videos/clip.mp4" {
		t.Errorf("source = %q, want %q", r.Source, "Videos/clip.mp4")
	}
	if r.Body != "![[clip.mp4]]" {
		t.Errorf("body = %q", r.Body)
	}
	if len(r.Links) != 1 || r.Links[0] != "clip.mp4" {
		t.Errorf("links = %v", r.Links)
	}
	if len(r.Tags) != 1 || r.Tags[0] != "video" {
		t.Errorf("tags = %v", r.Tags)
	}
}

func TestParse_NoFrontmatter(t *testing.T) {
	r, err := Parse([]byte("# Just a heading\nSome text.\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Frontmatter != nil {
		t.Errorf("expected nil frontmatter, got %v", r.Frontmatter)
	}
	if r.Source != "" {
		t.Errorf("source = %q, want empty", r.Source)
	}
}

func TestParse_InvalidYAMLFallback(t *testing.T) {
	r, err := Parse([]byte("---\n: invalid: yaml: {{{\n---\nBody\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Frontmatter != nil {
		t.Errorf("expected nil frontmatter on invalid YAML")
	}
}

func TestDeclaredSource(t *testing.T) {
	cases := []struct {
		name string
		fm   map[string]interface{}
		want string
		ok   bool
	}{
		{"wrapped", map[string]interface{}{"source": "[[A/report.pdf]]"}, "A/report.pdf", true},
		{"bare", map[string]interface{}{"source": "A/report.pdf"}, "A/report.pdf", true},
		{"missing", map[string]interface{}{"title": "x"}, "", false},
		{"nil map", nil, "", false},
		{"non-string", map[string]interface{}{"source": 42}, "", false},
		{"list", map[string]interface{}{"source": []interface{}{"[[a.pdf]]"}}, "", false},
		{"half open", map[string]interface{}{"source": "[[A/report.pdf"}, "", false},
		{"half closed", map[string]interface{}{"source": "A/report.pdf]]"}, "", false},
		{"empty link", map[string]interface{}{"source": "[[]]"}, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := DeclaredSource(tc.fm)
			if got != tc.want || ok != tc.ok {
				t.Errorf("DeclaredSource = (%q, %v), want (%q, %v)", got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestExtractLinks_Basic(t *testing.T) {
	links := extractLinks("See [[Note A]] and [[Note B|alias]].\nAlso ![[Note A]] again.")
	if len(links) != 2 {
		t.Fatalf("len(links) = %d, want 2", len(links))
	}
	if links[0] != "Note A" || links[1] != "Note B" {
		t.Errorf("links = %v", links)
	}
}

func TestExtractLinks_EmptyTarget(t *testing.T) {
	links := extractLinks("see [[ ]] and [[|alias]]")
	if len(links) != 0 {
		t.Errorf("expected no links, got %v", links)
	}
}

func TestExtractTags_InlineAndFrontmatter(t *testing.T) {
	fm := map[string]any{"tags": []any{"alpha"}}
	tags := extractTags("Some text #beta and #alpha again.", fm)
	if len(tags) != 2 || tags[0] != "alpha" || tags[1] != "beta" {
		t.Errorf("tags = %v, want [alpha beta]", tags)
	}
}

func TestExtractTags_CommaString(t *testing.T) {
	tags := extractTags("", map[string]any{"tags": "pdf, scan"})
	if len(tags) != 2 || tags[0] != "pdf" || tags[1] != "scan" {
		t.Errorf("tags = %v, want [pdf scan]", tags)
	}
}
