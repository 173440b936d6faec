package pipeline

import "fmt"

// Slot names, matching the article table columns a handler may write.
const (
	SlotResearch          = "research"
	SlotDraft             = "draft"
	SlotEnrichment        = "enrichment"
	SlotRevisedDraft      = "revised_draft"
	SlotFactCheck         = "fact_check"
	SlotSEO               = "seo"
	SlotFinalContent      = "final_content"
	SlotLinkedContent     = "linked_content"
	SlotMedia             = "media"
	SlotWordPressContent  = "wordpress_content"
	SlotWordPressMetadata = "wordpress_metadata"
)

// stageSlots maps each runnable state to the payload slots its handler
// may fill. StatePending (queue admission) and StateReady (publish)
// produce no payload.
var stageSlots = map[State][]string{
	StatePending:         {},
	StateResearching:     {SlotResearch},
	StateWriting:         {SlotDraft},
	StateEnriching:       {SlotEnrichment},
	StateRevising:        {SlotRevisedDraft},
	StateFactChecking:    {SlotFactCheck},
	StateSEOOptimizing:   {SlotSEO},
	StateHumanizing:      {SlotFinalContent},
	StateInternalLinking: {SlotLinkedContent},
	StateMediaGenerating: {SlotMedia},
	StateFormatting:      {SlotWordPressContent, SlotWordPressMetadata},
	StateReady:           {},
}

// SlotsFor returns the payload slots the handler for state s may write.
func SlotsFor(s State) []string {
	slots := stageSlots[s]
	out := make([]string, len(slots))
	copy(out, slots)
	return out
}

// ValidateFields checks a handler outcome's field updates against the
// slot whitelist for the stage that produced them. A field outside the
// stage's slots is a handler bug and is rejected so it cannot corrupt
// another stage's output.
func ValidateFields(s State, fields map[string]any) error {
	allowed := make(map[string]bool, len(stageSlots[s]))
	for _, slot := range stageSlots[s] {
		allowed[slot] = true
	}
	for key := range fields {
		if !allowed[key] {
			return fmt.Errorf("stage %s may not write field %q", s, key)
		}
	}
	return nil
}
