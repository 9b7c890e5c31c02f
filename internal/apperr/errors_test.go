package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInsufficientQuantityErrorUnwraps(t *testing.T) {
	err := fmt.Errorf("removing stock: %w", &InsufficientQuantityError{
		MaterialName: "Mask", SerialLotNumber: "L1", Available: 3, Requested: 5,
	})

	assert.ErrorIs(t, err, ErrInsufficientQuantity)

	var iq *InsufficientQuantityError
	assert.ErrorAs(t, err, &iq)
	assert.Equal(t, 3, iq.Available)
	assert.Contains(t, err.Error(), "available 3, requested 5")
}

func TestValidationErrorKeepsFirstMessage(t *testing.T) {
	v := &ValidationError{}
	assert.NoError(t, v.OrNil())

	v.Add("quantity", "must be at least 1")
	v.Add("quantity", "second message")
	v.Add("materialName", "required")

	err := v.OrNil()
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "must be at least 1", v.Fields["quantity"])
	assert.Equal(t, "validation failed: materialName: required; quantity: must be at least 1", err.Error())
}

func TestIsClientError(t *testing.T) {
	assert.True(t, IsClientError(fmt.Errorf("x: %w", ErrForbidden)))
	assert.True(t, IsClientError(NewValidation("a", "b")))
	assert.True(t, IsClientError(ErrAlreadyProcessed))
	assert.False(t, IsClientError(errors.New("disk full")))
	assert.False(t, IsClientError(nil))
}
