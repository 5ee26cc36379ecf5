package dialogue

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/docufill/docufill/internal/common"
	"github.com/docufill/docufill/internal/extract"
	"github.com/docufill/docufill/internal/validate"
)

func testEngine() *Engine {
	t := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return NewEngine(validate.NewSet(), WithClock(func() time.Time {
		t = t.Add(time.Second)
		return t
	}))
}

func twoSlotRegistry() *extract.Registry {
	return extract.NewRegistry([]extract.Slot{
		{ID: 0, RawToken: "[CLIENT_NAME]", Type: extract.TypePersonName,
			Prompt: "Who should be named?", Status: extract.StatusPending},
		{ID: 1, RawToken: "[START_DATE]", Type: extract.TypeDate,
			Prompt: "What date applies?", Status: extract.StatusPending},
	})
}

func TestStart_AsksFirstPrompt(t *testing.T) {
	e := testEngine()
	sess := NewSession("s1", 1, time.Now())
	reg := twoSlotRegistry()

	msgs, err := e.Start(sess, reg)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if sess.State != StateAwaitingInput {
		t.Errorf("expected AWAITING_INPUT, got %s", sess.State)
	}
	if sess.Cursor != 0 {
		t.Errorf("expected cursor 0, got %d", sess.Cursor)
	}
	if len(msgs) != 1 || msgs[0].Text != "Who should be named?" {
		t.Errorf("expected first prompt, got %+v", msgs)
	}
	if len(sess.History) != 1 {
		t.Errorf("expected 1 history entry, got %d", len(sess.History))
	}
}

func TestStart_OnlyLegalInIdle(t *testing.T) {
	e := testEngine()
	sess := NewSession("s1", 1, time.Now())
	reg := twoSlotRegistry()

	if _, err := e.Start(sess, reg); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := e.Start(sess, reg); !errors.Is(err, common.ErrInvalidState) {
		t.Errorf("second Start: expected ErrInvalidState, got %v", err)
	}
}

func TestStart_EmptyRegistryCompletesImmediately(t *testing.T) {
	e := testEngine()
	sess := NewSession("s1", 1, time.Now())
	reg := extract.NewRegistry(nil)

	msgs, err := e.Start(sess, reg)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if sess.State != StateComplete {
		t.Errorf("expected COMPLETE, got %s", sess.State)
	}
	if sess.Cursor != NoSlot {
		t.Errorf("expected cursor NoSlot, got %d", sess.Cursor)
	}
	if len(msgs) != 1 || !strings.Contains(msgs[0].Text, "ready to assemble") {
		t.Errorf("expected completion message, got %+v", msgs)
	}
	if got := Progress(reg); got != 1.0 {
		t.Errorf("empty registry progress: expected 1.0, got %v", got)
	}
}

func TestReceive_HappyPathToCompletion(t *testing.T) {
	e := testEngine()
	sess := NewSession("s1", 1, time.Now())
	reg := twoSlotRegistry()
	e.Start(sess, reg)

	msgs, err := e.Receive(sess, reg, "Jane Doe")
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	// Ack for slot 0, then prompt for slot 1.
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %+v", msgs)
	}
	if !strings.Contains(msgs[0].Text, `"Jane Doe"`) {
		t.Errorf("expected ack with value, got %q", msgs[0].Text)
	}
	if msgs[1].Text != "What date applies?" {
		t.Errorf("expected next prompt, got %q", msgs[1].Text)
	}
	if sess.Cursor != 1 {
		t.Errorf("expected cursor 1, got %d", sess.Cursor)
	}

	msgs, err = e.Receive(sess, reg, "March 1, 2024")
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if sess.State != StateComplete {
		t.Errorf("expected COMPLETE, got %s", sess.State)
	}
	last := msgs[len(msgs)-1]
	if !strings.Contains(last.Text, "ready to assemble") {
		t.Errorf("expected completion message, got %q", last.Text)
	}

	// Values were normalized before hitting the registry.
	slot, _ := reg.Get(1)
	if slot.Value != "2024-03-01" {
		t.Errorf("expected normalized date, got %q", slot.Value)
	}
	if got := Progress(reg); got != 1.0 {
		t.Errorf("expected progress 1.0, got %v", got)
	}
}

func TestReceive_RejectionReassertsWithoutAdvancing(t *testing.T) {
	e := testEngine()
	sess := NewSession("s1", 1, time.Now())
	reg := twoSlotRegistry()
	e.Start(sess, reg)
	e.Receive(sess, reg, "Jane Doe")

	historyBefore := len(sess.History)
	msgs, err := e.Receive(sess, reg, "not a date")
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected only the reassert message, got %+v", msgs)
	}
	if !strings.Contains(msgs[0].Text, "That doesn't work") ||
		!strings.Contains(msgs[0].Text, "What date applies?") {
		t.Errorf("expected rejection + re-asserted prompt, got %q", msgs[0].Text)
	}
	if sess.State != StateAwaitingInput || sess.Cursor != 1 {
		t.Errorf("rejection must not advance: state=%s cursor=%d", sess.State, sess.Cursor)
	}
	// User message + reassert.
	if len(sess.History) != historyBefore+2 {
		t.Errorf("expected history +2, got %d -> %d", historyBefore, len(sess.History))
	}

	// Retries are unlimited: a later valid answer still lands.
	for i := 0; i < 5; i++ {
		e.Receive(sess, reg, "still not a date")
	}
	if _, err := e.Receive(sess, reg, "2024-06-15"); err != nil {
		t.Fatalf("valid answer after retries: %v", err)
	}
	slot, _ := reg.Get(1)
	if slot.Value != "2024-06-15" || slot.Status != extract.StatusFilled {
		t.Errorf("expected filled slot, got %+v", slot)
	}
}

func TestReceive_OnlyLegalAwaitingInput(t *testing.T) {
	e := testEngine()
	sess := NewSession("s1", 1, time.Now())
	reg := twoSlotRegistry()

	if _, err := e.Receive(sess, reg, "hello"); !errors.Is(err, common.ErrInvalidState) {
		t.Errorf("Receive in IDLE: expected ErrInvalidState, got %v", err)
	}

	e.Start(sess, reg)
	e.Receive(sess, reg, "Jane Doe")
	e.Receive(sess, reg, "2024-01-01")

	if _, err := e.Receive(sess, reg, "more"); !errors.Is(err, common.ErrInvalidState) {
		t.Errorf("Receive in COMPLETE: expected ErrInvalidState, got %v", err)
	}
}

func TestSkip_AdvancesAndCountsTowardProgress(t *testing.T) {
	e := testEngine()
	sess := NewSession("s1", 1, time.Now())
	reg := twoSlotRegistry()
	e.Start(sess, reg)

	msgs, err := e.Skip(sess, reg)
	if err != nil {
		t.Fatalf("Skip: %v", err)
	}
	if len(msgs) != 2 || !strings.Contains(msgs[0].Text, "Skipped") {
		t.Fatalf("expected skip ack + next prompt, got %+v", msgs)
	}
	slot, _ := reg.Get(0)
	if slot.Status != extract.StatusSkipped {
		t.Errorf("expected SKIPPED, got %s", slot.Status)
	}
	if got := Progress(reg); got != 0.5 {
		t.Errorf("expected progress 0.5, got %v", got)
	}

	// Skipping the last slot completes the session.
	msgs, err = e.Skip(sess, reg)
	if err != nil {
		t.Fatalf("Skip: %v", err)
	}
	if sess.State != StateComplete {
		t.Errorf("expected COMPLETE, got %s", sess.State)
	}
	if _, err := e.Skip(sess, reg); !errors.Is(err, common.ErrInvalidState) {
		t.Errorf("Skip in COMPLETE: expected ErrInvalidState, got %v", err)
	}
}

func TestReuseHint_MatchingLabelSuggestsPriorValue(t *testing.T) {
	e := testEngine()
	sess := NewSession("s1", 1, time.Now())
	reg := extract.NewRegistry([]extract.Slot{
		{ID: 0, RawToken: "[NAME]", Type: extract.TypePersonName,
			Prompt: "Name?", Status: extract.StatusPending},
		{ID: 1, RawToken: "[NAME2]", Type: extract.TypePersonName,
			Prompt: "Name again?", Status: extract.StatusPending},
	})
	e.Start(sess, reg)

	msgs, err := e.Receive(sess, reg, "Jane Doe")
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	prompt := msgs[len(msgs)-1].Text
	if !strings.Contains(prompt, `"Jane Doe"`) {
		t.Errorf("expected reuse hint with prior value, got %q", prompt)
	}
}

func TestReuseHint_DifferentTypeDoesNotSuggest(t *testing.T) {
	e := testEngine()
	sess := NewSession("s1", 1, time.Now())
	reg := extract.NewRegistry([]extract.Slot{
		{ID: 0, RawToken: "[CLIENT]", Type: extract.TypePersonName,
			Prompt: "Client?", Status: extract.StatusPending},
		{ID: 1, RawToken: "[DATE]", Type: extract.TypeDate,
			Prompt: "Date?", Status: extract.StatusPending},
	})
	e.Start(sess, reg)

	msgs, _ := e.Receive(sess, reg, "Jane Doe")
	prompt := msgs[len(msgs)-1].Text
	if strings.Contains(prompt, "Jane Doe") {
		t.Errorf("unexpected reuse hint across types: %q", prompt)
	}
}

func TestIsTrigger(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"start", true},
		{"  BEGIN  ", true},
		{"please help me fill this out", true},
		{"hi", true}, // very short
		{"Jane Doe", false},
		{"1500 dollars exactly", false},
	}
	for _, tc := range cases {
		if got := IsTrigger(tc.text); got != tc.want {
			t.Errorf("IsTrigger(%q): expected %v, got %v", tc.text, tc.want, got)
		}
	}
}

func TestHistory_TimestampsMonotonic(t *testing.T) {
	e := testEngine()
	sess := NewSession("s1", 1, time.Now())
	reg := twoSlotRegistry()
	e.Start(sess, reg)
	e.Receive(sess, reg, "Jane Doe")
	e.Receive(sess, reg, "2024-01-01")

	for i := 1; i < len(sess.History); i++ {
		if sess.History[i].Timestamp.Before(sess.History[i-1].Timestamp) {
			t.Fatalf("history timestamps not monotonic at %d", i)
		}
	}
	if sess.UpdatedAt != sess.History[len(sess.History)-1].Timestamp {
		t.Errorf("UpdatedAt should track the last message")
	}
}
