package validate

import (
	"testing"

	"github.com/docufill/docufill/internal/extract"
)

func TestValidateName(t *testing.T) {
	s := NewSet()

	cases := []struct {
		input string
		ok    bool
	}{
		{"Jane Doe", true},
		{"  Jane Doe  ", true},
		{"O'Brien-Smith, Jr.", true},
		{"", false},
		{"   ", false},
		{"12345", false},
	}

	for _, tc := range cases {
		got := s.Validate(extract.TypePersonName, tc.input)
		if got.OK != tc.ok {
			t.Errorf("name %q: expected ok=%v, got %+v", tc.input, tc.ok, got)
		}
		if got.OK && got.Value != "Jane Doe" && tc.input == "  Jane Doe  " {
			t.Errorf("name %q: expected trimmed value, got %q", tc.input, got.Value)
		}
	}
}

func TestValidateDate_NormalizesToISO(t *testing.T) {
	s := NewSet()

	cases := []struct {
		input string
		want  string
	}{
		{"2024-03-01", "2024-03-01"},
		{"March 1, 2024", "2024-03-01"},
		{"Mar 1, 2024", "2024-03-01"},
		{"3/1/2024", "2024-03-01"},
		{"01/02/2024", "2024-01-02"},
	}

	for _, tc := range cases {
		got := s.Validate(extract.TypeDate, tc.input)
		if !got.OK {
			t.Errorf("date %q: unexpected rejection: %s", tc.input, got.Reason)
			continue
		}
		if got.Value != tc.want {
			t.Errorf("date %q: expected %q, got %q", tc.input, tc.want, got.Value)
		}
	}
}

func TestValidateDate_RejectsImpossibleAndGarbage(t *testing.T) {
	s := NewSet()

	for _, input := range []string{"", "soon", "2024-02-30", "February 30, 2024", "13/45/2024"} {
		if got := s.Validate(extract.TypeDate, input); got.OK {
			t.Errorf("date %q: expected rejection, got %+v", input, got)
		}
	}
}

func TestValidateDate_CustomLayouts(t *testing.T) {
	s := NewSet(WithDateLayouts([]string{"02.01.2006"}))

	if got := s.Validate(extract.TypeDate, "01.03.2024"); !got.OK || got.Value != "2024-03-01" {
		t.Errorf("expected custom layout to parse, got %+v", got)
	}
	// Default layouts are replaced, not extended.
	if got := s.Validate(extract.TypeDate, "2024-03-01"); got.OK {
		t.Errorf("expected ISO input to be rejected under custom layouts, got %+v", got)
	}
}

func TestValidateAmount(t *testing.T) {
	s := NewSet()

	cases := []struct {
		input string
		want  string
	}{
		{"1500", "1500.00"},
		{"$1,500.00", "1500.00"},
		{"€2500.5", "2500.50"},
		{"0", "0.00"},
	}
	for _, tc := range cases {
		got := s.Validate(extract.TypeMonetaryAmount, tc.input)
		if !got.OK {
			t.Errorf("amount %q: unexpected rejection: %s", tc.input, got.Reason)
			continue
		}
		if got.Value != tc.want {
			t.Errorf("amount %q: expected %q, got %q", tc.input, tc.want, got.Value)
		}
	}

	for _, input := range []string{"", "a lot", "-50", "$-1"} {
		if got := s.Validate(extract.TypeMonetaryAmount, input); got.OK {
			t.Errorf("amount %q: expected rejection, got %+v", input, got)
		}
	}
}

func TestValidateEmail(t *testing.T) {
	s := NewSet()

	for _, input := range []string{"jane@example.com", "a.b+c@sub.domain.org"} {
		if got := s.Validate(extract.TypeEmail, input); !got.OK {
			t.Errorf("email %q: unexpected rejection: %s", input, got.Reason)
		}
	}
	for _, input := range []string{"", "jane", "jane@", "@example.com", "jane@example"} {
		if got := s.Validate(extract.TypeEmail, input); got.OK {
			t.Errorf("email %q: expected rejection", input)
		}
	}
}

func TestValidatePhone(t *testing.T) {
	s := NewSet()

	for _, input := range []string{"+1 (555) 123-4567", "555-1234", "02079460000"} {
		if got := s.Validate(extract.TypePhone, input); !got.OK {
			t.Errorf("phone %q: unexpected rejection: %s", input, got.Reason)
		}
	}
	// Separator-only input passes the character class but carries no digits.
	for _, input := range []string{"", "123", "call me maybe", "-------", "((( ---  )))"} {
		if got := s.Validate(extract.TypePhone, input); got.OK {
			t.Errorf("phone %q: expected rejection", input)
		}
	}
}

func TestValidateNumber(t *testing.T) {
	s := NewSet()

	accept := []struct{ input, want string }{
		{"42", "42"},
		{"1,234.5", "1234.5"},
		{"-3.25", "-3.25"},
		{" 7 ", "7"},
	}
	for _, tc := range accept {
		got := s.Validate(extract.TypeNumber, tc.input)
		if !got.OK || got.Value != tc.want {
			t.Errorf("number %q: expected %q, got %+v", tc.input, tc.want, got)
		}
	}
	for _, input := range []string{"", "twelve", "1.2.3"} {
		if got := s.Validate(extract.TypeNumber, input); got.OK {
			t.Errorf("number %q: expected rejection", input)
		}
	}
}

func TestValidatePercentageAndBoolean(t *testing.T) {
	s := NewSet()

	if got := s.Validate(extract.TypePercentage, " 5.25% "); !got.OK || got.Value != "5.25%" {
		t.Errorf("percentage: expected trimmed accept, got %+v", got)
	}
	if got := s.Validate(extract.TypeBoolean, "yes"); !got.OK || got.Value != "yes" {
		t.Errorf("boolean: expected accept, got %+v", got)
	}
	if got := s.Validate(extract.TypeBoolean, "   "); got.OK {
		t.Errorf("boolean: expected blank rejection, got %+v", got)
	}
}

func TestValidateFreeTextAndUnknownType(t *testing.T) {
	s := NewSet()

	if got := s.Validate(extract.TypeFreeText, "  anything at all  "); !got.OK || got.Value != "anything at all" {
		t.Errorf("free text: expected trimmed accept, got %+v", got)
	}
	if got := s.Validate(extract.SlotType("LEGACY_TYPE"), "value"); !got.OK {
		t.Errorf("unknown type should fall back to non-empty, got %+v", got)
	}
	if got := s.Validate(extract.SlotType("LEGACY_TYPE"), "   "); got.OK {
		t.Errorf("unknown type should still reject blank input, got %+v", got)
	}
}
