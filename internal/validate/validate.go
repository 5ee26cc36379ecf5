// Package validate holds the per-type input validators for slot filling.
//
// Validation is pure: a validator maps raw user input to either an accepted
// normalized value or a rejection reason, and never touches registry or
// session state. Callers apply the result.
package validate

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/docufill/docufill/internal/extract"
)

// Result is the outcome of validating one input.
type Result struct {
	OK     bool
	Value  string // normalized value when OK
	Reason string // rejection reason when !OK
}

// Accepted returns a successful result with a normalized value.
func Accepted(value string) Result {
	return Result{OK: true, Value: value}
}

// Rejected returns a failed result with a user-facing reason.
func Rejected(reason string) Result {
	return Result{Reason: reason}
}

// Func validates one raw input for a single slot type.
type Func func(raw string) Result

// DefaultDateLayouts are the accepted date input formats, tried in order.
var DefaultDateLayouts = []string{
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
	"January 2 2006",
	"2 January 2006",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"2006/01/02",
}

// Set selects a validator per slot type via a lookup table over the fixed
// enumeration: one entry per variant, no dynamic dispatch.
type Set struct {
	validators map[extract.SlotType]Func
}

// Option configures a Set.
type Option func(*settings)

type settings struct {
	dateLayouts []string
}

// WithDateLayouts replaces the accepted date input formats.
func WithDateLayouts(layouts []string) Option {
	return func(s *settings) {
		if len(layouts) > 0 {
			s.dateLayouts = layouts
		}
	}
}

// NewSet builds the validator lookup table.
func NewSet(opts ...Option) *Set {
	cfg := settings{dateLayouts: DefaultDateLayouts}
	for _, opt := range opts {
		opt(&cfg)
	}

	nonEmpty := validateNonEmpty
	return &Set{validators: map[extract.SlotType]Func{
		extract.TypePersonName:       validateName,
		extract.TypeOrganizationName: validateName,
		extract.TypeDate:             validateDate(cfg.dateLayouts),
		extract.TypeMonetaryAmount:   validateAmount,
		extract.TypeAddress:          nonEmpty,
		extract.TypeDuration:         nonEmpty,
		extract.TypeEmail:            validateEmail,
		extract.TypePhone:            validatePhone,
		extract.TypeNumber:           validateNumber,
		extract.TypePercentage:       nonEmpty,
		extract.TypeBoolean:          nonEmpty,
		extract.TypeFreeText:         nonEmpty,
	}}
}

// Validate runs the validator registered for the slot type. Unknown types
// fall back to the FREE_TEXT rule so a registry row with a stale type never
// hard-fails a session.
func (s *Set) Validate(t extract.SlotType, raw string) Result {
	fn, ok := s.validators[t]
	if !ok {
		fn = validateNonEmpty
	}
	return fn(raw)
}

func validateNonEmpty(raw string) Result {
	v := strings.TrimSpace(raw)
	if v == "" {
		return Rejected("a non-empty value is required")
	}
	return Accepted(v)
}

func validateName(raw string) Result {
	v := strings.TrimSpace(raw)
	if v == "" {
		return Rejected("a non-empty name is required")
	}
	if !containsLetter(v) {
		return Rejected("a name cannot be purely numeric")
	}
	return Accepted(v)
}

// validateDate accepts input parsing under at least one configured layout
// and normalizes it to ISO 2006-01-02. time.Parse already rejects
// impossible calendar dates such as February 30.
func validateDate(layouts []string) Func {
	return func(raw string) Result {
		v := strings.TrimSpace(raw)
		if v == "" {
			return Rejected("a date is required")
		}
		for _, layout := range layouts {
			if t, err := time.Parse(layout, v); err == nil {
				return Accepted(t.Format("2006-01-02"))
			}
		}
		return Rejected("unparsable date")
	}
}

var currencyStripper = strings.NewReplacer("$", "", "€", "", "£", "", ",", "", " ", "")

func validateAmount(raw string) Result {
	v := currencyStripper.Replace(strings.TrimSpace(raw))
	if v == "" {
		return Rejected("an amount is required")
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return Rejected("not a valid amount")
	}
	if d.IsNegative() {
		return Rejected("amount cannot be negative")
	}
	return Accepted(d.StringFixed(2))
}

// validateNumber accepts any decimal number, thousands separators allowed.
func validateNumber(raw string) Result {
	v := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if v == "" {
		return Rejected("a number is required")
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return Rejected("not a valid number")
	}
	return Accepted(d.String())
}

var emailRE = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

func validateEmail(raw string) Result {
	v := strings.TrimSpace(raw)
	if !emailRE.MatchString(v) {
		return Rejected("not a valid email address")
	}
	return Accepted(v)
}

var phoneRE = regexp.MustCompile(`^\+?[\d\s\-()]{7,}$`)

func validatePhone(raw string) Result {
	v := strings.TrimSpace(raw)
	// The character class alone would accept digit-free strings of
	// separators such as "-------".
	if !phoneRE.MatchString(v) || !strings.ContainsAny(v, "0123456789") {
		return Rejected("not a valid phone number")
	}
	return Accepted(v)
}

func containsLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
