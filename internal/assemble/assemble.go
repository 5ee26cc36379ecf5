// Package assemble rebuilds the completed document from the original text
// and its slot registry.
package assemble

import (
	"fmt"
	"strings"

	"github.com/docufill/docufill/internal/common"
	"github.com/docufill/docufill/internal/extract"
)

// SkipPolicy controls how SKIPPED slots are treated during assembly.
type SkipPolicy int

const (
	// KeepToken re-emits a skipped slot's original raw token unchanged.
	KeepToken SkipPolicy = iota
	// Strict fails assembly when any slot is SKIPPED.
	Strict
)

// Snapshot pairs the immutable original document text with its slot
// registry. Assembly never mutates the snapshot; offsets always refer to
// the original text.
type Snapshot struct {
	DocumentID int64
	Text       string
	Registry   *extract.Registry
}

// Assemble substitutes each slot's accepted value into its original span and
// returns the completed text. Spans are processed in descending start order
// so earlier replacements of different lengths never invalidate offsets of
// spans not yet processed. Any slot still PENDING (and, under Strict, any
// SKIPPED slot) fails with ErrIncompleteDocument instead of emitting a
// partially filled document.
func Assemble(snap Snapshot, policy SkipPolicy) (string, error) {
	slots := snap.Registry.Slots()

	for _, s := range slots {
		switch s.Status {
		case extract.StatusPending:
			return "", fmt.Errorf("%w: slot %d (%s) is still pending", common.ErrIncompleteDocument, s.ID, s.RawToken)
		case extract.StatusSkipped:
			if policy == Strict {
				return "", fmt.Errorf("%w: slot %d (%s) was skipped", common.ErrIncompleteDocument, s.ID, s.RawToken)
			}
		}
	}

	// Slots are sorted ascending by start; walk them backwards.
	var b strings.Builder
	out := snap.Text
	for i := len(slots) - 1; i >= 0; i-- {
		s := slots[i]
		replacement := s.Value
		if s.Status == extract.StatusSkipped {
			replacement = s.RawToken
		}
		b.Reset()
		b.Grow(len(out) - (s.End - s.Start) + len(replacement))
		b.WriteString(out[:s.Start])
		b.WriteString(replacement)
		b.WriteString(out[s.End:])
		out = b.String()
	}
	return out, nil
}
