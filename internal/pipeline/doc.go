// Package pipeline defines the domain model of the content pipeline:
// the Article, Topic and Event records, the fixed ordered set of
// pipeline states, the linear transition table, and the per-stage
// payload-slot whitelist.
//
// The state column on an article is the single source of truth for its
// progress. There is no separate task entity: an article in state
// "writing" IS the writing task. The only legal moves are the edges of
// the transition table plus the universal edge into StateFailed.
//
// Payload slots are write-once-per-attempt: the handler executing stage
// S may only fill the slot(s) registered for S in stageSlots. The store
// and engine both enforce this whitelist so a misbehaving handler
// cannot corrupt another stage's output.
package pipeline
