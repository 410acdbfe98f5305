package extraction

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{StatusPending, StatusExtracting, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusCompleted, false},
		{StatusExtracting, StatusGenerating, true},
		{StatusExtracting, StatusCompleted, true},
		{StatusExtracting, StatusFailed, true},
		{StatusGenerating, StatusCompleted, true},
		{StatusGenerating, StatusExtracting, false},
		{StatusCompleted, StatusExtracting, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusPending, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestValidateTransition(t *testing.T) {
	assert.NoError(t, ValidateTransition(StatusPending, StatusExtracting))

	err := ValidateTransition(StatusFailed, StatusExtracting)
	var te *TransitionError
	if assert.True(t, errors.As(err, &te)) {
		assert.Equal(t, StatusFailed, te.From)
		assert.Equal(t, StatusExtracting, te.To)
	}
	assert.True(t, Terminal(StatusCompleted))
	assert.False(t, Terminal(StatusGenerating))
}
