package duration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in    string
		kind  Kind
		delay time.Duration
	}{
		{"10m", Finite, 600 * time.Second},
		{"1h", Finite, 3600 * time.Second},
		{"1d", Finite, 86400 * time.Second},
		{"1.5h", Finite, 90 * time.Minute},
		{"2H", Finite, 2 * time.Hour},
		{"TEST", Finite, 30 * time.Second},
		{"test", Finite, 30 * time.Second},
		{"", Permanent, 0},
		{"   ", Permanent, 0},
		{"xyz", Invalid, 0},
		{"10", Invalid, 0},
		{"m", Invalid, 0},
		{"10w", Invalid, 0},
		{"-1h", Invalid, 0},
		{"0d", Invalid, 0},
		{"abch", Invalid, 0},
		{"1e3m", Invalid, 0},
		{"0x1p4m", Invalid, 0},
		{"1_0m", Invalid, 0},
		{"+5m", Invalid, 0},
		{".5h", Invalid, 0},
		{"1.h", Invalid, 0},
		{"Infm", Invalid, 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Parse(tt.in)
			assert.Equal(t, tt.kind, got.Kind)
			assert.Equal(t, tt.delay, got.Delay)
		})
	}
}

func TestSpecLabel(t *testing.T) {
	assert.Equal(t, "Permanent", Parse("").Label())
	assert.Equal(t, "TEST", Parse("test").Label())
	assert.Equal(t, "10m", Parse(" 10m ").Label())
	assert.Contains(t, Parse("nope").Label(), "invalid")
}
