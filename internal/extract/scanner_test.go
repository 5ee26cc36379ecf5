package extract

import (
	"testing"
)

func TestScan_BracketAndBraceTokens(t *testing.T) {
	s, err := NewScanner()
	if err != nil {
		t.Fatalf("NewScanner: %v", err)
	}

	text := "This Agreement is between [CLIENT_NAME] and {company}."
	spans := s.Scan(text)

	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d: %+v", len(spans), spans)
	}
	if spans[0].Token != "[CLIENT_NAME]" {
		t.Errorf("span 0: expected [CLIENT_NAME], got %q", spans[0].Token)
	}
	if spans[1].Token != "{company}" {
		t.Errorf("span 1: expected {company}, got %q", spans[1].Token)
	}

	// Offsets must point back into the original text.
	for _, sp := range spans {
		if text[sp.Start:sp.End] != sp.Token {
			t.Errorf("span %q: offsets %d..%d point at %q", sp.Token, sp.Start, sp.End, text[sp.Start:sp.End])
		}
	}
}

func TestScan_BlankRuns(t *testing.T) {
	s, _ := NewScanner()

	cases := []struct {
		text string
		want []string
	}{
		{"Signature: ____", []string{"____"}},
		{"Initials: __ here", nil},                      // two underscores is not a blank
		{"___", []string{"___"}},                        // exactly three qualifies
		{"a ___ b ______ c", []string{"___", "______"}}, // whole run is one span
	}

	for _, tc := range cases {
		spans := s.Scan(tc.text)
		if len(spans) != len(tc.want) {
			t.Errorf("%q: expected %d spans, got %d: %+v", tc.text, len(tc.want), len(spans), spans)
			continue
		}
		for i, w := range tc.want {
			if spans[i].Token != w {
				t.Errorf("%q: span %d: expected %q, got %q", tc.text, i, w, spans[i].Token)
			}
		}
	}
}

func TestScan_MalformedTokensAreText(t *testing.T) {
	s, _ := NewScanner()

	cases := []struct {
		name string
		text string
		want []string
	}{
		{"zero width", "empty [] token", nil},
		{"unterminated", "open [NAME and nothing", nil},
		{"newline inside", "open [NA\nME] across lines", nil},
		{"nested opener outer dropped", "x [A[B]] y", []string{"[B]"}},
	}

	for _, tc := range cases {
		spans := s.Scan(tc.text)
		var got []string
		for _, sp := range spans {
			got = append(got, sp.Token)
		}
		if len(got) != len(tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, got)
			continue
		}
		for i := range tc.want {
			if got[i] != tc.want[i] {
				t.Errorf("%s: span %d: expected %q, got %q", tc.name, i, tc.want[i], got[i])
			}
		}
	}
}

func TestScan_IdiomPatternsTakeLongestMatch(t *testing.T) {
	s, err := NewScanner(`the sum of \$_+`)
	if err != nil {
		t.Fatalf("NewScanner: %v", err)
	}

	text := "pay the sum of $____ monthly"
	spans := s.Scan(text)

	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d: %+v", len(spans), spans)
	}
	// The idiom consumes the blank run, so the underscores are not
	// rescanned as a second candidate.
	if spans[0].Token != "the sum of $____" {
		t.Errorf("expected idiom span, got %q", spans[0].Token)
	}
}

func TestNewScanner_BadPattern(t *testing.T) {
	if _, err := NewScanner(`([unclosed`); err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

func TestScan_DocumentOrder(t *testing.T) {
	s, _ := NewScanner()
	text := "[A] then ___ then {b} then [C]"
	spans := s.Scan(text)

	if len(spans) != 4 {
		t.Fatalf("expected 4 spans, got %d", len(spans))
	}
	for i := 1; i < len(spans); i++ {
		if spans[i].Start < spans[i-1].End {
			t.Errorf("spans out of order or overlapping: %+v", spans)
		}
	}
}
