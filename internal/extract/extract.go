package extract

import (
	"context"
	"fmt"
)

// Extractor composes the Scanner and Classifier into the one-shot Build
// pipeline. A single Extractor is safe to use across documents; it carries
// no per-document state, and independent documents may be extracted in
// parallel.
type Extractor struct {
	scanner    *Scanner
	classifier *Classifier
}

// ExtractorConfig configures the pipeline.
type ExtractorConfig struct {
	// IdiomPatterns are extra regular-language placeholder idioms,
	// e.g. `the sum of \$_+`.
	IdiomPatterns []string
	// ContextWindow is the classification window size in bytes per side
	// (0 = DefaultContextWindow).
	ContextWindow int
	// Inferencer is the optional advisory semantic-inference collaborator.
	Inferencer Inferencer
}

// NewExtractor builds the pipeline, compiling configured idiom patterns.
func NewExtractor(cfg ExtractorConfig) (*Extractor, error) {
	scanner, err := NewScanner(cfg.IdiomPatterns...)
	if err != nil {
		return nil, fmt.Errorf("building scanner: %w", err)
	}

	opts := []ClassifierOption{}
	if cfg.ContextWindow > 0 {
		opts = append(opts, WithContextWindow(cfg.ContextWindow))
	}
	if cfg.Inferencer != nil {
		opts = append(opts, WithInferencer(cfg.Inferencer))
	}

	return &Extractor{
		scanner:    scanner,
		classifier: NewClassifier(opts...),
	}, nil
}

// Build runs the full extraction pipeline over the document text and
// returns a fresh Registry with every slot PENDING. Ids are assigned as a
// strictly increasing sequence from 0 in document order. Candidate spans
// from the scanner are already deduplicated (consumed text is never
// rescanned), so each occurrence maps to exactly one slot.
//
// Build is synchronous and has no side effects until it returns;
// cancelling ctx mid-flight only shortens the advisory inference calls.
func (e *Extractor) Build(ctx context.Context, text string) *Registry {
	spans := e.scanner.Scan(text)

	slots := make([]Slot, 0, len(spans))
	for i, sp := range spans {
		window := e.classifier.ContextWindow(text, sp.Start, sp.End)
		slotType, prompt := e.classifier.Classify(ctx, sp.Token, window)
		slots = append(slots, Slot{
			ID:       int64(i),
			Start:    sp.Start,
			End:      sp.End,
			RawToken: sp.Token,
			Type:     slotType,
			Prompt:   prompt,
			Status:   StatusPending,
		})
	}
	return NewRegistry(slots)
}
