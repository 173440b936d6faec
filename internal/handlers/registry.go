package handlers

import (
	"draftforge/internal/engine"
	"draftforge/internal/pipeline"
)

// DefaultRegistry wires a handler for every runnable stage: scripted
// stand-ins for the model-backed stages, the real linker and export
// formatter, and gates for admission and publish. links and maxLinks
// configure the internal linker; links may be nil and a non-positive
// maxLinks falls back to DefaultMaxLinks.
func DefaultRegistry(links map[string]string, maxLinks int) (*engine.Registry, error) {
	reg := engine.NewRegistry()
	bindings := map[pipeline.State]engine.Handler{
		pipeline.StatePending:         Noop(),
		pipeline.StateResearching:     Stub(pipeline.StateResearching),
		pipeline.StateWriting:         Stub(pipeline.StateWriting),
		pipeline.StateEnriching:       Stub(pipeline.StateEnriching),
		pipeline.StateRevising:        Stub(pipeline.StateRevising),
		pipeline.StateFactChecking:    Stub(pipeline.StateFactChecking),
		pipeline.StateSEOOptimizing:   Stub(pipeline.StateSEOOptimizing),
		pipeline.StateHumanizing:      Stub(pipeline.StateHumanizing),
		pipeline.StateInternalLinking: &InternalLinker{Links: links, MaxLinks: maxLinks},
		pipeline.StateMediaGenerating: Stub(pipeline.StateMediaGenerating),
		pipeline.StateFormatting:      &ExportFormatter{},
		pipeline.StateReady:           Noop(),
	}
	for state, h := range bindings {
		if err := reg.Register(state, h); err != nil {
			return nil, err
		}
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}
