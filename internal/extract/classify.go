package extract

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// SlotType is the fixed enumeration of semantic placeholder types.
type SlotType string

const (
	TypePersonName       SlotType = "PERSON_NAME"
	TypeOrganizationName SlotType = "ORGANIZATION_NAME"
	TypeDate             SlotType = "DATE"
	TypeMonetaryAmount   SlotType = "MONETARY_AMOUNT"
	TypeAddress          SlotType = "ADDRESS"
	TypeDuration         SlotType = "DURATION"
	TypeEmail            SlotType = "EMAIL"
	TypePhone            SlotType = "PHONE"
	TypeNumber           SlotType = "NUMBER"
	TypePercentage       SlotType = "PERCENTAGE"
	TypeBoolean          SlotType = "BOOLEAN"
	TypeFreeText         SlotType = "FREE_TEXT"
)

// SlotTypes lists every supported type, in display order.
var SlotTypes = []SlotType{
	TypePersonName, TypeOrganizationName, TypeDate, TypeMonetaryAmount,
	TypeAddress, TypeDuration, TypeEmail, TypePhone,
	TypeNumber, TypePercentage, TypeBoolean, TypeFreeText,
}

// ValidSlotType reports whether t is a member of the enumeration.
func ValidSlotType(t SlotType) bool {
	for _, known := range SlotTypes {
		if t == known {
			return true
		}
	}
	return false
}

// DefaultContextWindow is the number of bytes of surrounding text given to
// the keyword heuristics and the advisory inferencer on each side of a span.
const DefaultContextWindow = 100

// DefaultInferTimeout bounds a single advisory inference call.
const DefaultInferTimeout = 10 * time.Second

// inferMinConfidence is the threshold below which advisory results are
// discarded in favor of the heuristics.
const inferMinConfidence = 0.6

// Inferencer is an optional semantic-inference collaborator. Its output is
// advisory: any error, timeout, or low-confidence result falls back to the
// keyword heuristics. Implementations live outside this package so tests can
// use a deterministic stub.
type Inferencer interface {
	InferType(ctx context.Context, spanText, contextWindow string) (SlotType, float64, error)
}

// Classifier assigns a semantic type and a user-facing prompt to a span.
type Classifier struct {
	window       int
	inferencer   Inferencer
	inferTimeout time.Duration
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithContextWindow overrides the context window size in bytes.
func WithContextWindow(n int) ClassifierOption {
	return func(c *Classifier) {
		if n > 0 {
			c.window = n
		}
	}
}

// WithInferencer attaches an advisory inference collaborator.
func WithInferencer(inf Inferencer) ClassifierOption {
	return func(c *Classifier) { c.inferencer = inf }
}

// WithInferTimeout bounds each advisory inference call.
func WithInferTimeout(d time.Duration) ClassifierOption {
	return func(c *Classifier) {
		if d > 0 {
			c.inferTimeout = d
		}
	}
}

// NewClassifier returns a Classifier with the given options applied.
func NewClassifier(opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		window:       DefaultContextWindow,
		inferTimeout: DefaultInferTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify infers the semantic type of the span and generates its prompt.
// The advisory inferencer, when present and confident, takes precedence;
// the heuristics always produce a result when it is absent or failing, so
// classification never errors.
func (c *Classifier) Classify(ctx context.Context, spanText, contextWindow string) (SlotType, string) {
	t := c.inferAdvisory(ctx, spanText, contextWindow)
	if t == "" {
		t = heuristicType(spanText, contextWindow)
	}
	return t, BuildPrompt(t, spanText, contextWindow)
}

// ContextWindow returns up to the configured number of bytes on each side of
// the span [start, end) in text. The bounds are widened to rune boundaries
// so a multi-byte character is never split at a window edge.
func (c *Classifier) ContextWindow(text string, start, end int) string {
	lo := start - c.window
	if lo < 0 {
		lo = 0
	}
	for lo > 0 && !utf8.RuneStart(text[lo]) {
		lo--
	}
	hi := end + c.window
	if hi > len(text) {
		hi = len(text)
	}
	for hi < len(text) && !utf8.RuneStart(text[hi]) {
		hi++
	}
	return text[lo:hi]
}

func (c *Classifier) inferAdvisory(ctx context.Context, spanText, contextWindow string) SlotType {
	if c.inferencer == nil {
		return ""
	}

	inferCtx, cancel := context.WithTimeout(ctx, c.inferTimeout)
	defer cancel()

	t, confidence, err := c.inferencer.InferType(inferCtx, spanText, contextWindow)
	if err != nil || confidence < inferMinConfidence || !ValidSlotType(t) {
		return ""
	}
	return t
}

// heuristicType applies keyword heuristics first to the span token itself,
// then to the surrounding context when the token carries no words (bare
// underscores, symbols), and finally falls back to FREE_TEXT.
func heuristicType(spanText, contextWindow string) SlotType {
	label := TokenLabel(spanText)
	if label != "" {
		if t, ok := keywordType(label); ok {
			return t
		}
		return TypeFreeText
	}
	if t, ok := keywordType(contextWindow); ok {
		return t
	}
	return TypeFreeText
}

// typeKeywords maps each type to the keywords that signal it. Order matters:
// earlier entries win, so ORGANIZATION_NAME is checked before PERSON_NAME
// ("company name" must not classify as a person).
var typeKeywords = []struct {
	slotType SlotType
	words    []string
}{
	{TypeEmail, []string{"email", "e-mail", "@"}},
	{TypePhone, []string{"phone", "telephone", "mobile", "cell", "fax"}},
	{TypeMonetaryAmount, []string{"amount", "price", "cost", "fee", "payment", "salary", "rent", "sum", "dollar", "$", "compensation"}},
	{TypeDate, []string{"date", "dated", "day of", "month", "year", "deadline", "expires", "effective"}},
	{TypeDuration, []string{"duration", "term of", "period", "notice period", "within"}},
	{TypeAddress, []string{"address", "street", "city", "state of", "zip", "located at", "residing at", "principal place"}},
	{TypeOrganizationName, []string{"company", "corporation", "organization", "employer", "firm", "entity", "llc", "inc"}},
	{TypePersonName, []string{"name", "client", "party", "person", "individual", "employee", "tenant", "landlord", "buyer", "seller", "witness", "signature"}},
	{TypePercentage, []string{"percent", "percentage", "%", "rate of", "interest rate"}},
	{TypeNumber, []string{"number of", "count of", "quantity", "how many"}},
	{TypeBoolean, []string{"yes or no", "true or false", "checkbox", "(y/n)"}},
}

func keywordType(text string) (SlotType, bool) {
	lower := strings.ToLower(text)
	for _, entry := range typeKeywords {
		for _, w := range entry.words {
			if strings.Contains(lower, w) {
				return entry.slotType, true
			}
		}
	}
	return "", false
}

// TokenLabel strips placeholder decoration ([ ], { }, underscores) from a
// raw token and returns the human-readable label inside, or "" when the
// token is a bare blank.
func TokenLabel(token string) string {
	label := strings.Trim(token, "[]{}")
	label = strings.Map(func(r rune) rune {
		if r == '_' {
			return ' '
		}
		return r
	}, label)
	label = strings.Join(strings.Fields(label), " ")
	if !containsLetter(label) {
		return ""
	}
	return label
}

func containsLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// promptTemplates holds the per-type question wording. Each template takes
// the subject phrase ("Client Name" or "the blank field near ...").
var promptTemplates = map[SlotType]string{
	TypePersonName:       "Who should be named for %s? Please provide the full legal name.",
	TypeOrganizationName: "What is the full legal name of the organization for %s?",
	TypeDate:             "What date applies to %s? Common formats work, e.g. March 1, 2024 or 2024-03-01.",
	TypeMonetaryAmount:   "What amount applies to %s? For example: $1,500.00 or 1500.",
	TypeAddress:          "What is the full address for %s?",
	TypeDuration:         "What duration applies to %s? For example: 12 months.",
	TypeEmail:            "What email address should go in %s?",
	TypePhone:            "What phone number should go in %s?",
	TypeNumber:           "What number applies to %s?",
	TypePercentage:       "What percentage applies to %s? For example: 5%% or 5.25%%.",
	TypeBoolean:          "Is %s a yes or a no?",
	TypeFreeText:         "What should go in %s?",
}

// BuildPrompt generates the user-facing question for a slot. It is a pure
// function of (type, token, context) so repeated extraction produces
// identical prompts.
func BuildPrompt(t SlotType, spanText, contextWindow string) string {
	subject := TokenLabel(spanText)
	if subject != "" {
		subject = fmt.Sprintf("%q", subject)
	} else {
		subject = "the blank field"
		if snippet := contextSnippet(contextWindow, spanText); snippet != "" {
			subject = fmt.Sprintf("the blank field after %q", snippet)
		}
	}

	tpl, ok := promptTemplates[t]
	if !ok {
		tpl = promptTemplates[TypeFreeText]
	}
	return fmt.Sprintf(tpl, subject)
}

// contextSnippet returns a short stretch of text immediately before the
// span, used to anchor prompts for anonymous blanks.
func contextSnippet(contextWindow, spanText string) string {
	idx := strings.Index(contextWindow, spanText)
	if idx <= 0 {
		return ""
	}
	before := strings.TrimSpace(contextWindow[:idx])
	const maxSnippet = 40
	if len(before) > maxSnippet {
		tail := before[len(before)-maxSnippet:]
		if cut := strings.IndexAny(tail, " \t"); cut >= 0 && cut < len(tail)-1 {
			tail = tail[cut+1:]
		}
		before = tail
	}
	return before
}
