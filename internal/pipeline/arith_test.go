package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRound(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		decimals int32
		want     float64
	}{
		{"one third", 1.0 / 3, 4, 0.3333},
		{"two thirds", 2.0 / 3, 4, 0.6667},
		{"half away from zero", 0.53125, 4, 0.5313},
		{"negative half", -0.00005, 4, -0.0001},
		{"already rounded", 0.25, 4, 0.25},
		{"zero decimals", 2.5, 0, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Round(tt.value, tt.decimals))
			// same input, same output
			assert.Equal(t, Round(tt.value, tt.decimals), Round(tt.value, tt.decimals))
		})
	}
}

func TestTurnout(t *testing.T) {
	got, ok := Turnout(600, 1000)
	assert.True(t, ok)
	assert.Equal(t, "0.6000", got.String())

	got, ok = Turnout(2, 3)
	assert.True(t, ok)
	assert.Equal(t, "0.6667", got.String())
}

func TestRelativeShare(t *testing.T) {
	got, ok := RelativeShare(300, 640)
	assert.True(t, ok)
	assert.Equal(t, "0.4688", got.String())

	got, ok = RelativeShare(0, 640)
	assert.True(t, ok)
	assert.True(t, got.IsZero())
}

func TestZeroGuard(t *testing.T) {
	turnout, ok := Turnout(100, 0)
	assert.False(t, ok)
	assert.True(t, turnout.IsZero())

	share, ok := RelativeShare(50, 0)
	assert.False(t, ok)
	assert.True(t, share.IsZero())
}
