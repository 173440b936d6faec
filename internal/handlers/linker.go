package handlers

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"draftforge/internal/engine"
	"draftforge/internal/pipeline"
)

// DefaultMaxLinks caps how many internal links a single article gets.
const DefaultMaxLinks = 5

// InternalLinker inserts links into the humanized content: for each
// configured phrase it finds the first paragraph mentioning it and
// wraps the mention in an anchor to the mapped URL. At most one link
// per phrase, at most MaxLinks overall, and paragraphs that already
// carry a link are left alone.
type InternalLinker struct {
	// Links maps a phrase to the URL it should point at.
	Links map[string]string
	// MaxLinks limits total insertions; zero means DefaultMaxLinks.
	MaxLinks int
}

func (h *InternalLinker) Process(ctx context.Context, art pipeline.Article) engine.Outcome {
	content := art.FinalContent
	if strings.TrimSpace(content) == "" {
		return engine.Fail("no humanized content to link")
	}
	if len(h.Links) == 0 {
		return engine.Succeed(map[string]any{pipeline.SlotLinkedContent: content})
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return engine.Failf("parse content: %v", err)
	}

	max := h.MaxLinks
	if max <= 0 {
		max = DefaultMaxLinks
	}

	phrases := make([]string, 0, len(h.Links))
	for phrase := range h.Links {
		phrases = append(phrases, phrase)
	}
	sort.Strings(phrases)

	inserted := 0
	for _, phrase := range phrases {
		if inserted >= max {
			break
		}
		if h.linkPhrase(doc, phrase, h.Links[phrase]) {
			inserted++
		}
	}

	out, err := doc.Find("body").Html()
	if err != nil {
		return engine.Failf("render content: %v", err)
	}
	return engine.Succeed(map[string]any{pipeline.SlotLinkedContent: out})
}

// linkPhrase wraps the first unlinked paragraph mention of phrase in
// an anchor, preserving the original casing of the matched text.
func (h *InternalLinker) linkPhrase(doc *goquery.Document, phrase, url string) bool {
	linked := false
	doc.Find("p").EachWithBreak(func(_ int, p *goquery.Selection) bool {
		if p.Find("a").Length() > 0 {
			return true
		}
		inner, err := p.Html()
		if err != nil {
			return true
		}
		idx := strings.Index(strings.ToLower(inner), strings.ToLower(phrase))
		if idx < 0 {
			return true
		}
		// Don't splice into the middle of a tag.
		if open := strings.LastIndex(inner[:idx], "<"); open > strings.LastIndex(inner[:idx], ">") {
			return true
		}
		match := inner[idx : idx+len(phrase)]
		anchor := fmt.Sprintf("<a href=%q>%s</a>", url, match)
		p.SetHtml(inner[:idx] + anchor + inner[idx+len(phrase):])
		linked = true
		return false
	})
	return linked
}
