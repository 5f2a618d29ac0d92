package sqlite

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRound2HalfAwayFromZero(t *testing.T) {
	// GIVEN coordinate values on both sides of zero
	// THEN halves round away from zero, not toward positive infinity
	assert.Equal(t, 0.13, round2(0.125))
	assert.Equal(t, -0.13, round2(-0.125))

	// AND plain values survive unchanged
	assert.InDelta(t, 31.78, round2(31.78), 1e-9)
	assert.InDelta(t, -58.38, round2(-58.38), 1e-9)
}
