package handlers

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"draftforge/internal/engine"
	"draftforge/internal/pipeline"
)

// Scripted is a handler with a fixed outcome, used in tests and as a
// stand-in for stages that would normally call out to a model API.
type Scripted struct {
	// Fields is copied into the success outcome. Ignored when Err is set.
	Fields map[string]any
	// Err, when non-empty, makes every invocation fail with this reason.
	Err string
	// Delay is slept before returning, honoring context cancellation.
	Delay time.Duration

	calls atomic.Int64
}

func (h *Scripted) Process(ctx context.Context, art pipeline.Article) engine.Outcome {
	h.calls.Add(1)
	if h.Delay > 0 {
		select {
		case <-time.After(h.Delay):
		case <-ctx.Done():
			return engine.Failf("canceled: %v", ctx.Err())
		}
	}
	if h.Err != "" {
		return engine.Fail(h.Err)
	}
	return engine.Succeed(h.Fields)
}

// Calls reports how many times Process has run.
func (h *Scripted) Calls() int64 {
	return h.calls.Load()
}

// Noop returns a handler that succeeds without producing any fields.
// It serves the gate stages: queue admission and the publish step.
func Noop() engine.Handler {
	return engine.HandlerFunc(func(ctx context.Context, art pipeline.Article) engine.Outcome {
		return engine.Succeed(nil)
	})
}

// Stub returns a handler producing plausible canned output for the
// given stage, so a full pipeline can run end to end without any
// external service. Stages whose slot is empty get a plain Noop.
func Stub(state pipeline.State) engine.Handler {
	return engine.HandlerFunc(func(ctx context.Context, art pipeline.Article) engine.Outcome {
		return engine.Succeed(stubFields(state, art))
	})
}

func stubFields(state pipeline.State, art pipeline.Article) map[string]any {
	switch state {
	case pipeline.StateResearching:
		return map[string]any{
			pipeline.SlotResearch: map[string]any{
				"summary": fmt.Sprintf("Background research for %q.", art.Title),
				"sources": []string{
					"https://example.com/industry-report",
					"https://example.com/expert-interview",
				},
				"facts": []string{
					"Adoption grew 40% year over year.",
					"Three vendors dominate the market.",
				},
			},
		}
	case pipeline.StateWriting:
		return map[string]any{
			pipeline.SlotDraft: fmt.Sprintf(
				"# %s\n\nThis article covers %s in depth.\n\n## Overview\n\nDraft body goes here.\n",
				art.Title, art.Title),
		}
	case pipeline.StateEnriching:
		return map[string]any{
			pipeline.SlotEnrichment: map[string]any{
				"statistics": []string{"According to recent surveys, 62% of teams report improvements."},
				"quotes":     []string{"\"The shift has been dramatic,\" one practitioner noted."},
			},
		}
	case pipeline.StateRevising:
		return map[string]any{
			pipeline.SlotRevisedDraft: revisedOf(art),
		}
	case pipeline.StateFactChecking:
		return map[string]any{
			pipeline.SlotFactCheck: map[string]any{
				"verified":       true,
				"claims_checked": 4,
				"flagged":        []string{},
			},
		}
	case pipeline.StateSEOOptimizing:
		return map[string]any{
			pipeline.SlotSEO: map[string]any{
				"keyword":  art.Title,
				"keywords": []string{art.Title, "guide", "best practices"},
				"score":    87,
			},
		}
	case pipeline.StateHumanizing:
		return map[string]any{
			pipeline.SlotFinalContent: finalOf(art),
		}
	case pipeline.StateInternalLinking:
		return map[string]any{
			pipeline.SlotLinkedContent: finalOf(art),
		}
	case pipeline.StateMediaGenerating:
		return map[string]any{
			pipeline.SlotMedia: map[string]any{
				"featured_image": "https://example.com/images/featured.jpg",
				"alt_text":       fmt.Sprintf("Illustration for %s", art.Title),
			},
		}
	default:
		return nil
	}
}

func revisedOf(art pipeline.Article) string {
	if art.Draft != "" {
		return art.Draft
	}
	return fmt.Sprintf("# %s\n\nRevised body.\n", art.Title)
}

func finalOf(art pipeline.Article) string {
	switch {
	case art.RevisedDraft != "":
		return art.RevisedDraft
	case art.Draft != "":
		return art.Draft
	default:
		return fmt.Sprintf("<h1>%s</h1>\n<p>Final body.</p>\n", art.Title)
	}
}
