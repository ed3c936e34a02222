package utils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chargeBody struct {
	Kind        string `json:"kind" validate:"required,oneof=tuition fee adjustment"`
	AmountCents int64  `json:"amount_cents" validate:"gt=0"`
	Memo        string `json:"memo" validate:"max=500"`
}

func TestValidateStruct(t *testing.T) {
	assert.NoError(t, ValidateStruct(chargeBody{Kind: "fee", AmountCents: 100}))

	err := ValidateStruct(chargeBody{Kind: "refund"})
	require.Error(t, err)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Fields, 2)
	assert.Equal(t, FieldError{Field: "kind", Rule: "oneof", Param: "tuition fee adjustment"}, verr.Fields[0])
	assert.Equal(t, "amount_cents", verr.Fields[1].Field)
	assert.Contains(t, err.Error(), "amount_cents failed gt=0")
}
