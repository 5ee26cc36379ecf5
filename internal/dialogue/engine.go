package dialogue

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/docufill/docufill/internal/common"
	"github.com/docufill/docufill/internal/extract"
	"github.com/docufill/docufill/internal/validate"
)

// Engine executes state-machine transitions for conversation sessions.
//
// Transitions on one session are serialized through a per-session mutex, so
// two concurrent replies can never both land on the same cursor. Slot-level
// consistency across sessions sharing a document is guaranteed by the
// Registry's own locking.
type Engine struct {
	validators *validate.Set
	now        func() time.Time

	mu       sync.Mutex
	sessions map[string]*sync.Mutex
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock replaces the timestamp source (tests).
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine returns an Engine using the given validator set.
func NewEngine(validators *validate.Set, opts ...EngineOption) *Engine {
	e := &Engine{
		validators: validators,
		now:        func() time.Time { return time.Now().UTC() },
		sessions:   map[string]*sync.Mutex{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// lock returns the mutex serializing transitions for one session id.
func (e *Engine) lock(sessionID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.sessions[sessionID]
	if !ok {
		m = &sync.Mutex{}
		e.sessions[sessionID] = m
	}
	return m
}

// Start begins the dialogue: it picks the lowest-id pending slot, emits its
// prompt, and moves to AWAITING_INPUT. When no slot is pending the session
// goes straight to COMPLETE. Start is only legal in IDLE.
func (e *Engine) Start(sess *Session, reg *extract.Registry) ([]Message, error) {
	mu := e.lock(sess.ID)
	mu.Lock()
	defer mu.Unlock()

	if sess.State != StateIdle {
		return nil, common.InvalidStatef("start on session %s in state %s", sess.ID, sess.State)
	}
	return e.advance(sess, reg), nil
}

// Receive applies one user reply to the current slot. Only legal in
// AWAITING_INPUT. A rejected input re-asserts the prompt and leaves the
// cursor and state untouched; an accepted input fills the slot and advances
// to the next pending slot or to COMPLETE. Validation rejection is a normal
// outcome carried back as an assistant message, never an error.
func (e *Engine) Receive(sess *Session, reg *extract.Registry, userText string) ([]Message, error) {
	mu := e.lock(sess.ID)
	mu.Lock()
	defer mu.Unlock()

	if sess.State != StateAwaitingInput {
		return nil, common.InvalidStatef("receive on session %s in state %s", sess.ID, sess.State)
	}

	slot, err := reg.Get(sess.Cursor)
	if err != nil {
		return nil, fmt.Errorf("loading cursor slot: %w", err)
	}

	sess.append(Message{Role: RoleUser, Text: userText, Timestamp: e.now(), SlotID: slot.ID})

	result := e.validators.Validate(slot.Type, userText)
	if !result.OK {
		reassert := Message{
			Role:      RoleAssistant,
			Text:      fmt.Sprintf("That doesn't work: %s. %s", result.Reason, slot.Prompt),
			Timestamp: e.now(),
			SlotID:    slot.ID,
		}
		sess.append(reassert)
		return []Message{reassert}, nil
	}

	if _, err := reg.Update(slot.ID, result.Value); err != nil {
		return nil, fmt.Errorf("updating slot %d: %w", slot.ID, err)
	}

	ack := Message{
		Role:      RoleAssistant,
		Text:      fmt.Sprintf("Recorded %q for %s.", result.Value, slotLabel(slot)),
		Timestamp: e.now(),
		SlotID:    slot.ID,
	}
	sess.append(ack)

	out := []Message{ack}
	out = append(out, e.advance(sess, reg)...)
	return out, nil
}

// Skip marks the current slot SKIPPED and advances, regardless of any prior
// validation failures. Only legal in AWAITING_INPUT.
func (e *Engine) Skip(sess *Session, reg *extract.Registry) ([]Message, error) {
	mu := e.lock(sess.ID)
	mu.Lock()
	defer mu.Unlock()

	if sess.State != StateAwaitingInput {
		return nil, common.InvalidStatef("skip on session %s in state %s", sess.ID, sess.State)
	}

	slot, err := reg.MarkSkipped(sess.Cursor)
	if err != nil {
		return nil, fmt.Errorf("skipping slot %d: %w", sess.Cursor, err)
	}

	ack := Message{
		Role:      RoleAssistant,
		Text:      fmt.Sprintf("Skipped %s. Its original text will be kept.", slotLabel(slot)),
		Timestamp: e.now(),
		SlotID:    slot.ID,
	}
	sess.append(ack)

	out := []Message{ack}
	out = append(out, e.advance(sess, reg)...)
	return out, nil
}

// advance moves the cursor to the next pending slot and emits its prompt,
// or completes the session when none remain. Callers hold the session lock.
func (e *Engine) advance(sess *Session, reg *extract.Registry) []Message {
	next, ok := reg.NextPending()
	if !ok {
		sess.Cursor = NoSlot
		sess.State = StateComplete
		done := Message{
			Role:      RoleAssistant,
			Text:      "All fields are resolved; the document is ready to assemble.",
			Timestamp: e.now(),
			SlotID:    NoSlot,
		}
		sess.append(done)
		return []Message{done}
	}

	sess.Cursor = next.ID
	sess.State = StateAwaitingInput

	text := next.Prompt
	if hint := reuseHint(next, reg); hint != "" {
		text += " " + hint
	}
	prompt := Message{Role: RoleAssistant, Text: text, Timestamp: e.now(), SlotID: next.ID}
	sess.append(prompt)
	return []Message{prompt}
}

// Progress is the resolved fraction of the registry, recomputed on every
// read. An empty registry counts as fully resolved.
func Progress(reg *extract.Registry) float64 {
	resolved, total := reg.Progress()
	if total == 0 {
		return 1.0
	}
	return float64(resolved) / float64(total)
}

// IsTrigger reports whether a first message is a start trigger rather than
// an answer ("start", "begin", "help me fill", or anything very short).
// Callers route triggers on an IDLE session to Start instead of Receive.
func IsTrigger(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	if len(t) < 5 {
		return true
	}
	for _, phrase := range []string{"start", "begin", "help me fill"} {
		if strings.Contains(t, phrase) {
			return true
		}
	}
	return false
}

// reuseHint suggests reusing an already-accepted value when another slot of
// the same type has a matching label (e.g. a second "[NAME]" occurrence).
func reuseHint(next extract.Slot, reg *extract.Registry) string {
	label := normalizeLabel(next.RawToken)
	if label == "" {
		return ""
	}
	for _, filled := range reg.Filled() {
		if filled.Type != next.Type {
			continue
		}
		if normalizeLabel(filled.RawToken) == label {
			return fmt.Sprintf("You previously used %q for a matching field; reply with the same value if it applies here.", filled.Value)
		}
	}
	return ""
}

// normalizeLabel folds a raw token to a comparable label: lowercased,
// decoration stripped, trailing digits dropped so [NAME] and [NAME2] match.
func normalizeLabel(token string) string {
	label := strings.ToLower(extract.TokenLabel(token))
	return strings.TrimRight(label, "0123456789 ")
}

func slotLabel(s extract.Slot) string {
	if label := extract.TokenLabel(s.RawToken); label != "" {
		return fmt.Sprintf("%q", label)
	}
	return fmt.Sprintf("field #%d", s.ID+1)
}
