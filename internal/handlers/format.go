package handlers

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"draftforge/internal/engine"
	"draftforge/internal/pipeline"
)

const maxDescriptionLen = 160

// ExportFormatter produces the publishable export: the article body
// prefixed with YAML front matter, plus a metadata bundle with the
// SEO title, description and slug.
type ExportFormatter struct{}

type frontMatter struct {
	Title           string   `yaml:"title"`
	Slug            string   `yaml:"slug"`
	SEOTitle        string   `yaml:"seo_title"`
	MetaDescription string   `yaml:"meta_description"`
	Keywords        []string `yaml:"keywords,omitempty"`
}

func (h *ExportFormatter) Process(ctx context.Context, art pipeline.Article) engine.Outcome {
	content := bodyOf(art)
	if strings.TrimSpace(content) == "" {
		return engine.Fail("no content to format")
	}

	keyword, keywords := seoTerms(art.SEO)
	fm := frontMatter{
		Title:           art.Title,
		Slug:            Slugify(art.Title),
		SEOTitle:        seoTitle(art.Title, keyword),
		MetaDescription: describe(content),
		Keywords:        keywords,
	}

	head, err := yaml.Marshal(fm)
	if err != nil {
		return engine.Failf("marshal front matter: %v", err)
	}

	meta := map[string]any{
		"slug":             fm.Slug,
		"seo_title":        fm.SEOTitle,
		"meta_description": fm.MetaDescription,
		"keywords":         fm.Keywords,
	}
	return engine.Succeed(map[string]any{
		pipeline.SlotWordPressContent:  "---\n" + string(head) + "---\n\n" + content,
		pipeline.SlotWordPressMetadata: meta,
	})
}

// bodyOf picks the richest content variant available.
func bodyOf(art pipeline.Article) string {
	for _, c := range []string{art.LinkedContent, art.FinalContent, art.RevisedDraft, art.Draft} {
		if strings.TrimSpace(c) != "" {
			return c
		}
	}
	return ""
}

func seoTitle(title, keyword string) string {
	if keyword == "" || strings.Contains(strings.ToLower(title), strings.ToLower(keyword)) {
		return title
	}
	return title + " | " + keyword
}

// seoTerms pulls the focus keyword and keyword list out of the SEO
// bundle; a missing or malformed bundle just yields empty values.
func seoTerms(raw json.RawMessage) (string, []string) {
	if len(raw) == 0 {
		return "", nil
	}
	var bundle struct {
		Keyword  string   `json:"keyword"`
		Keywords []string `json:"keywords"`
	}
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return "", nil
	}
	return bundle.Keyword, bundle.Keywords
}

var (
	tagPattern      = regexp.MustCompile(`<[^>]*>`)
	headingPattern  = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	markupRunes     = strings.NewReplacer("*", "", "_", "", "`", "")
	spacesPattern   = regexp.MustCompile(`\s+`)
	nonSlugPattern  = regexp.MustCompile(`[^a-z0-9]+`)
	edgeDashPattern = regexp.MustCompile(`^-+|-+$`)
)

// describe builds a meta description from the leading prose of the
// content, capped at maxDescriptionLen.
func describe(content string) string {
	text := tagPattern.ReplaceAllString(content, " ")
	text = headingPattern.ReplaceAllString(text, "")
	text = markupRunes.Replace(text)
	text = strings.TrimSpace(spacesPattern.ReplaceAllString(text, " "))
	if len(text) <= maxDescriptionLen {
		return text
	}
	// The byte cut may land inside a multibyte rune; strip the partial
	// tail before looking for a word boundary.
	cut := strings.ToValidUTF8(text[:maxDescriptionLen-3], "")
	if sp := strings.LastIndexByte(cut, ' '); sp > 0 {
		cut = cut[:sp]
	}
	return cut + "..."
}

// Slugify turns a title into a URL slug: accents stripped, lowered,
// runs of anything non-alphanumeric collapsed to single hyphens.
func Slugify(title string) string {
	decomposed := norm.NFD.String(title)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	slug := strings.ToLower(b.String())
	slug = nonSlugPattern.ReplaceAllString(slug, "-")
	return edgeDashPattern.ReplaceAllString(slug, "")
}
