// Package duration parses the duration strings staff type into moderation commands
// ("10m", "1.5h", "7d", "TEST"). Every time-bounded workflow and the expiry scheduler
// share this parser.
package duration

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type Kind int

const (
	Invalid Kind = iota
	Permanent
	Finite
)

func (k Kind) String() string {
	switch k {
	case Permanent:
		return "permanent"
	case Finite:
		return "finite"
	}
	return "invalid"
}

// TestSentinel maps to TestDelay so temporary actions can be exercised end to end.
const (
	TestSentinel = "TEST"
	TestDelay    = 30 * time.Second
)

// number is the accepted amount: digits with an optional fractional part. No signs,
// exponents, hex floats or digit separators.
var number = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

var multipliers = map[byte]time.Duration{
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
}

// Spec is the parsed form of a raw duration string.
type Spec struct {
	Raw   string        `json:"raw"`
	Kind  Kind          `json:"kind"`
	Delay time.Duration `json:"delay"`
}

func (s Spec) IsFinite() bool    { return s.Kind == Finite }
func (s Spec) IsPermanent() bool { return s.Kind == Permanent }
func (s Spec) IsInvalid() bool   { return s.Kind == Invalid }

// Parse never fails; an unparsable input yields Kind Invalid, which callers must treat
// as an input-validation error rather than a permanent action.
func Parse(raw string) Spec {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Spec{Raw: raw, Kind: Permanent}
	}
	if strings.EqualFold(trimmed, TestSentinel) {
		return Spec{Raw: TestSentinel, Kind: Finite, Delay: TestDelay}
	}

	lower := strings.ToLower(trimmed)
	unit, ok := multipliers[lower[len(lower)-1]]
	if !ok || len(lower) < 2 {
		return Spec{Raw: raw, Kind: Invalid}
	}
	digits := lower[:len(lower)-1]
	if !number.MatchString(digits) {
		return Spec{Raw: raw, Kind: Invalid}
	}
	n, err := strconv.ParseFloat(digits, 64)
	if err != nil || n <= 0 {
		return Spec{Raw: raw, Kind: Invalid}
	}
	delay := time.Duration(n * float64(unit))
	if delay < time.Second {
		return Spec{Raw: raw, Kind: Invalid}
	}
	return Spec{Raw: trimmed, Kind: Finite, Delay: delay.Truncate(time.Second)}
}

// Label is how the duration is shown to staff and subjects.
func (s Spec) Label() string {
	switch s.Kind {
	case Permanent:
		return "Permanent"
	case Finite:
		return s.Raw
	}
	return fmt.Sprintf("invalid (%q)", s.Raw)
}
