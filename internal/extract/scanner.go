package extract

import (
	"fmt"
	"regexp"
	"strings"
)

// Span is one placeholder candidate found in the document text. Offsets are
// byte positions into the original text, [Start, End).
type Span struct {
	Start int
	End   int
	Token string
}

// Scanner finds placeholder candidates in a single left-to-right pass.
//
// Three families are recognized: bracketed tokens ([NAME], {party_a}),
// blank runs of three or more underscores, and configured idiom patterns
// (e.g. `the sum of \$_+`). At each position the scanner takes the longest
// match across all families and never rescans consumed text, so overlapping
// candidates collapse into one span.
type Scanner struct {
	idioms []*regexp.Regexp
}

// blankRunRE matches an underscore blank at the current position.
var blankRunRE = regexp.MustCompile(`^_{3,}`)

// NewScanner compiles the configured idiom patterns. Each pattern is
// anchored to the scan position; writing ^ yourself is unnecessary.
func NewScanner(idiomPatterns ...string) (*Scanner, error) {
	s := &Scanner{}
	for _, p := range idiomPatterns {
		if strings.TrimSpace(p) == "" {
			continue
		}
		re, err := regexp.Compile("^(?:" + p + ")")
		if err != nil {
			return nil, fmt.Errorf("compiling idiom pattern %q: %w", p, err)
		}
		s.idioms = append(s.idioms, re)
	}
	return s, nil
}

// Scan walks the text and returns every placeholder span in document order.
func (s *Scanner) Scan(text string) []Span {
	var spans []Span
	for i := 0; i < len(text); {
		length := s.matchAt(text[i:])
		if length == 0 {
			i++
			continue
		}
		spans = append(spans, Span{Start: i, End: i + length, Token: text[i : i+length]})
		i += length
	}
	return spans
}

// matchAt returns the length of the longest placeholder starting at the
// head of rest, or 0.
func (s *Scanner) matchAt(rest string) int {
	best := 0

	switch rest[0] {
	case '[':
		best = matchDelimited(rest, '[', ']')
	case '{':
		best = matchDelimited(rest, '{', '}')
	}

	if m := blankRunRE.FindString(rest); len(m) > best {
		best = len(m)
	}

	for _, re := range s.idioms {
		if m := re.FindString(rest); len(m) > best {
			best = len(m)
		}
	}

	return best
}

// matchDelimited matches a bracketed token at the head of rest. Zero-width
// tokens, unterminated tokens, nested openers, and newlines inside the
// token all disqualify the match; the opener then scans as plain text.
func matchDelimited(rest string, open, closing byte) int {
	for i := 1; i < len(rest); i++ {
		switch rest[i] {
		case closing:
			if i == 1 {
				return 0 // zero-width, e.g. []
			}
			return i + 1
		case open, '\n':
			return 0
		}
	}
	return 0 // unterminated
}
