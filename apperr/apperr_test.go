package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindsMatchThroughWrapping(t *testing.T) {
	err := fmt.Errorf("reserve: %w", Conflict("la chambre %s est déjà réservée", "A101"))

	assert.True(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "la chambre A101 est déjà réservée", Message(err))
}

func TestValidationCarriesFields(t *testing.T) {
	err := Validation("invalid input", map[string]string{"date": "required"})

	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, map[string]string{"date": "required"}, Fields(err))
}

func TestMessageFallsBackToErrorText(t *testing.T) {
	assert.Equal(t, "boom", Message(errors.New("boom")))
	assert.Nil(t, Fields(errors.New("boom")))
}
