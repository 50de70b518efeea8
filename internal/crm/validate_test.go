package crm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/crmdesk/model"
)

func TestValidateClient(t *testing.T) {
	assert.NoError(t, ValidateClient(model.ClientInput{Name: "Acme"}))
	assert.NoError(t, ValidateClient(model.ClientInput{Name: "Acme", Email: "ivan@acme.test"}))

	err := ValidateClient(model.ClientInput{Name: "  ", Email: "nope"})
	var gap *model.ValidationGapError
	require.True(t, errors.As(err, &gap))
	assert.Equal(t, "client", gap.Resource)
	require.Len(t, gap.Fields, 2)
	assert.Equal(t, model.FieldError{Field: "name", Code: "required", Message: "is required"}, gap.Fields[0])
	assert.Equal(t, "email", gap.Fields[1].Field)
	assert.Equal(t, "invalid", gap.Fields[1].Code)
}

func TestValidateDeal(t *testing.T) {
	assert.NoError(t, ValidateDeal(model.DealInput{Title: "Поставка", Amount: 0}))
	assert.NoError(t, ValidateDeal(model.DealInput{Title: "Поставка", Deadline: "2024-05-01"}))

	err := ValidateDeal(model.DealInput{Amount: -5, Deadline: "скоро"})
	var gap *model.ValidationGapError
	require.True(t, errors.As(err, &gap))
	assert.Equal(t, "deal", gap.Resource)

	fields := make([]string, len(gap.Fields))
	for i, f := range gap.Fields {
		fields[i] = f.Field
	}
	assert.Equal(t, []string{"title", "amount", "deadline"}, fields)
	assert.Contains(t, err.Error(), "title, amount, deadline")
}
